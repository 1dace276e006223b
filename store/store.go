// Package store implements the result cache: short-lived memoization of
// upstream API responses keyed by a request fingerprint. Two backends are
// provided, an in-process map and Redis. Both uphold single-flight
// semantics: concurrent callers for the same fingerprint trigger exactly
// one upstream fetch and share its result.
package store

import (
	"context"
	"net/url"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/stemformatics/mcp", "store")

// FetchFunc produces the value for a cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Cache memoizes fetched byte payloads with a TTL. Entries are never
// mutated in place; a refresh replaces the entry.
type Cache interface {
	// GetOrFetch returns the cached value for key, or invokes fetch exactly
	// once (across concurrent callers) and caches the result. If ctx expires
	// while a fetch is in flight the caller gets ctx's error, but the fetch
	// keeps running and its eventual result still populates the cache.
	GetOrFetch(ctx context.Context, key string, fetch FetchFunc) ([]byte, error)
	// Invalidate drops the entry for key, if present.
	Invalidate(ctx context.Context, key string) error
	// Purge drops all entries.
	Purge(ctx context.Context) error
}

// Fingerprint derives a deterministic cache key from an upstream endpoint
// and its query parameters. url.Values.Encode sorts by key, so equal
// requests always produce equal fingerprints.
func Fingerprint(endpoint string, params url.Values) string {
	h := xxhash.New()
	_, _ = h.WriteString(endpoint)
	_, _ = h.WriteString("?")
	_, _ = h.WriteString(params.Encode())
	return strconv.FormatUint(h.Sum64(), 16)
}
