package stemformatics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemformatics/mcp/faults"
	"github.com/stemformatics/mcp/stemformatics"
	"github.com/stemformatics/mcp/store"
)

func Test_Client_AuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"name":"test dataset"}`))
	}))
	defer srv.Close()

	c := stemformatics.New(srv.URL, stemformatics.WithAPIKey("sekrit"))
	_, err := c.DatasetMetadata(context.Background(), "7283")
	require.NoError(t, err)
	assert.Equal(t, "Bearer sekrit", gotAuth)

	gotAuth = ""
	c = stemformatics.New(srv.URL)
	_, err = c.DatasetMetadata(context.Background(), "7283")
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func Test_Client_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := stemformatics.New(srv.URL, stemformatics.WithMaxRetries(3))
	_, err := c.DatasetMetadata(context.Background(), "7283")
	require.NoError(t, err)
	assert.EqualValues(t, 3, attempts.Load())
}

func Test_Client_NoRetryOnClientError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := stemformatics.New(srv.URL, stemformatics.WithMaxRetries(3))
	_, err := c.DatasetMetadata(context.Background(), "9999")
	require.Error(t, err)
	assert.Equal(t, faults.Upstream, faults.KindOf(err))
	assert.EqualValues(t, 1, attempts.Load())
}

func Test_Client_AuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := stemformatics.New(srv.URL, stemformatics.WithAPIKey("wrong"))
	_, err := c.DatasetMetadata(context.Background(), "7283")
	require.Error(t, err)
	assert.Equal(t, faults.Auth, faults.KindOf(err))
}

func Test_Client_UnparsableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	c := stemformatics.New(srv.URL)
	_, err := c.DatasetMetadata(context.Background(), "7283")
	require.Error(t, err)
	assert.Equal(t, faults.Parse, faults.KindOf(err))
}

func Test_Client_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := stemformatics.New(srv.URL,
		stemformatics.WithTimeout(20*time.Millisecond),
		stemformatics.WithMaxRetries(0))
	_, err := c.DatasetMetadata(context.Background(), "7283")
	require.Error(t, err)
	assert.Equal(t, faults.Timeout, faults.KindOf(err))
}

func Test_Client_CachedGet(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"name":"cached dataset"}`))
	}))
	defer srv.Close()

	cache := store.NewMemoryCache(time.Minute)
	c := stemformatics.New(srv.URL, stemformatics.WithCache(cache))

	for i := 0; i < 3; i++ {
		out, err := c.DatasetMetadata(context.Background(), "7283")
		require.NoError(t, err)
		require.NotNil(t, out)
	}
	assert.EqualValues(t, 1, hits.Load())

	// Different parameters miss the cache.
	_, err := c.DatasetMetadata(context.Background(), "2000")
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func Test_Client_FileResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/tab-separated-values")
		_, _ = w.Write([]byte("sample_id\tcell_type\ns1\tmonocyte\n"))
	}))
	defer srv.Close()

	c := stemformatics.New(srv.URL)
	out, err := c.DatasetSamples(context.Background(), "7283", "records", true)
	require.NoError(t, err)
	fc, ok := out.(*stemformatics.FileContent)
	require.True(t, ok)
	assert.True(t, fc.IsFile)
	assert.Contains(t, fc.Content, "monocyte")
}
