// Package main runs the Stemformatics tool server: it loads the
// configuration, wires the caching API client and the tool catalog into
// the dispatcher, and serves the tool protocol over stdio or TCP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"

	"github.com/stemformatics/mcp/config"
	"github.com/stemformatics/mcp/mcp"
	"github.com/stemformatics/mcp/mcp/transport"
	"github.com/stemformatics/mcp/mcp/transport/stdiotransport"
	"github.com/stemformatics/mcp/mcp/transport/tcptransport"
	"github.com/stemformatics/mcp/metrics"
	"github.com/stemformatics/mcp/stemformatics"
	"github.com/stemformatics/mcp/store"
	"github.com/stemformatics/mcp/tools"
	"github.com/stemformatics/mcp/tools/stemtools"
)

var logger = xlog.NewPackageLogger("github.com/stemformatics/mcp", "main")

func main() {
	var (
		cfgFile      = flag.String("cfg", "stemformatics-mcp.yaml", "configuration file")
		transportSel = flag.String("transport", "", "override the configured transport (stdio or network)")
		logLevel     = flag.String("log-level", "INFO", "log level: DEBUG, INFO, WARNING, ERROR")
	)
	flag.Parse()

	// stdout is the protocol channel; all logging goes to stderr.
	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	switch strings.ToUpper(*logLevel) {
	case "DEBUG":
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	case "WARNING":
		xlog.SetGlobalLogLevel(xlog.WARNING)
	case "ERROR":
		xlog.SetGlobalLogLevel(xlog.ERROR)
	default:
		xlog.SetGlobalLogLevel(xlog.INFO)
	}

	if err := run(*cfgFile, *transportSel); err != nil {
		fmt.Fprintf(os.Stderr, "stemformatics-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgFile, transportSel string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if transportSel != "" {
		cfg.Transport = transportSel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := buildCache(ctx, cfg)
	if err != nil {
		return err
	}

	clientOpts := []stemformatics.Option{
		stemformatics.WithTimeout(time.Duration(cfg.APIServer.TimeoutSeconds) * time.Second),
		stemformatics.WithCache(cache),
	}
	if cfg.Auth.UseAuth {
		clientOpts = append(clientOpts, stemformatics.WithAPIKey(cfg.Auth.APIKey))
	}
	client := stemformatics.New(cfg.APIServer.BaseURL, clientOpts...)

	svc := stemtools.NewService(client,
		stemtools.WithPValueAdjustment(cfg.Analysis.MultipleTestingCorrection))
	reg := tools.NewRegistry()
	if err := svc.RegisterAll(reg); err != nil {
		return err
	}

	tr, err := buildTransport(cfg)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				logger.KV(xlog.ERROR, "reason", "metrics_listener_failed", "addr", cfg.MetricsAddr, "err", err.Error())
			}
		}()
	}

	d := mcp.NewDispatcher(reg, tr,
		mcp.WithRequestTimeout(time.Duration(cfg.RequestTimeoutSeconds)*time.Second))

	logger.KV(xlog.INFO,
		"reason", "starting",
		"transport", cfg.Transport,
		"api", cfg.APIServer.BaseURL,
		"cache", cfg.Cache.Backend,
		"tools", len(reg.Names()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.KV(xlog.INFO, "reason", "shutdown_signal")
		_ = tr.Close()
		<-errCh
		return nil
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	}
}

func buildCache(ctx context.Context, cfg *config.Config) (store.Cache, error) {
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return store.NewRedisCache(rdb, cfg.Cache.RedisPrefix, ttl), nil
	default:
		c := store.NewMemoryCache(ttl)
		c.StartSweep(ctx, ttl)
		return c, nil
	}
}

func buildTransport(cfg *config.Config) (transport.Transport, error) {
	if cfg.Transport == config.TransportNetwork {
		tr := tcptransport.New(fmt.Sprintf("%s:%d", cfg.Network.Host, cfg.Network.Port))
		// Bind now so a bad listen address fails startup, not the serve loop.
		if err := tr.Listen(); err != nil {
			return nil, err
		}
		return tr, nil
	}
	return stdiotransport.New(), nil
}
