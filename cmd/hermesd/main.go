// Command hermesd runs a self-hosted DNS resolver: an authoritative
// zone store backed by a concurrent record cache, serving queries
// either recursively from the root servers, by forwarding to a single
// upstream, or strictly from local authority data.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/poyrazK/hermesdns/internal/admin"
	"github.com/poyrazK/hermesdns/internal/authority"
	"github.com/poyrazK/hermesdns/internal/cache"
	"github.com/poyrazK/hermesdns/internal/config"
	"github.com/poyrazK/hermesdns/internal/dns/master"
	"github.com/poyrazK/hermesdns/internal/dns/server"
	"github.com/poyrazK/hermesdns/internal/metrics"
	"github.com/poyrazK/hermesdns/internal/resolver"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	store := authority.NewStore()
	if cfg.ZoneFile != "" {
		if err := preloadZoneFile(store, cfg.ZoneFile); err != nil {
			return fmt.Errorf("preload zone file: %w", err)
		}
	}

	var mirror cache.Mirror
	var redisMirror *cache.RedisMirror
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		redisMirror = cache.NewRedisMirror(client, logger)
		mirror = redisMirror
	}
	recordCache := cache.New(mirror)
	if redisMirror != nil {
		warmCtx, cancelWarm := context.WithTimeout(context.Background(), 30*time.Second)
		redisMirror.WarmAll(warmCtx, recordCache)
		cancelWarm()
	}

	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	stop := make(chan struct{})
	go func() {
		<-cleanupCtx.Done()
		close(stop)
	}()
	go recordCache.RunCleanupLoop(5*time.Minute, stop)

	reg := metrics.NewRegistry(prometheus.DefaultRegisterer)

	res := resolver.New(cfg.Mode, store, recordCache, cfg.ForwardAddr, reg, logger)

	dnsServer := server.NewServer(cfg.Addr, res, reg, logger)

	ctx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	adminHandler := admin.NewHandler(store, recordCache, logger)
	mux := http.NewServeMux()
	adminHandler.RegisterRoutes(mux)
	adminServer := &http.Server{Addr: cfg.AdminAddr, Handler: mux}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("starting admin interface", "addr", cfg.AdminAddr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()
	go func() {
		if err := dnsServer.Run(ctx); err != nil {
			errCh <- fmt.Errorf("dns server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		_ = adminServer.Shutdown(context.Background())
		return nil
	case err := <-errCh:
		return err
	}
}

func preloadZoneFile(store *authority.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	p := master.NewParser()
	data, err := p.Parse(f)
	if err != nil {
		return err
	}
	if err := store.AddZone(data.Apex, data.Config); err != nil {
		return err
	}
	for _, rec := range data.Records {
		if err := store.UpsertRecord(data.Apex, rec); err != nil {
			return err
		}
	}
	return nil
}
