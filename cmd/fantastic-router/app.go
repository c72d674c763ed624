package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"

	"github.com/fantastic-router/fantastic-router/config"
	"github.com/fantastic-router/fantastic-router/datastore"
	"github.com/fantastic-router/fantastic-router/datastore/postgres"
	"github.com/fantastic-router/fantastic-router/datastore/sqlitestore"
	"github.com/fantastic-router/fantastic-router/llm"
	"github.com/fantastic-router/fantastic-router/planning"
	"github.com/fantastic-router/fantastic-router/site"
)

// app holds the wired process components and their teardown hooks.
type app struct {
	cfg     *config.Config
	store   *site.Store
	watcher *site.Watcher
	planner *planning.Planner
	pinger  datastore.Pinger
	redis   *redis.Client
	closers []func()
	logger  *slog.Logger
}

// buildApp wires the full component graph from the process configuration:
// site store (plus watcher), datastore, language-model client, caches, and
// the planner. Telemetry observers are attached by the caller so one-shot
// commands stay free of metrics state.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, observers ...planning.Observer) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	siteCfg, err := site.LoadFile(cfg.Site.Path)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("load site configuration: %w", err)
	}
	a.store = site.NewStore(siteCfg, logger)

	if cfg.Site.Watch {
		watcher, err := site.NewWatcher(cfg.Site.Path, a.store, logger)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("watch site configuration: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			_ = watcher.Stop()
			a.close()
			return nil, fmt.Errorf("watch site configuration: %w", err)
		}
		a.watcher = watcher
		a.closers = append(a.closers, func() { _ = watcher.Stop() })
	}

	store, err := a.openDatastore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	client := llm.NewClient(cfg.LLM.Endpoints, llm.WithLogger(logger))
	resolver := planning.NewResolver(store, planning.WithResolverLogger(logger))

	opts := []planning.PlannerOption{
		planning.WithPlannerLogger(logger),
	}
	if cfg.LLM.Timeout > 0 {
		opts = append(opts, planning.WithUnderstandingTimeout(cfg.LLM.Timeout))
	}
	if rc, err := a.requestCache(); err != nil {
		a.close()
		return nil, err
	} else if rc != nil {
		opts = append(opts, planning.WithRequestCache(rc))
	}
	for _, obs := range observers {
		opts = append(opts, planning.WithObserver(obs))
	}

	a.planner = planning.NewPlanner(a.store, client, resolver, opts...)
	return a, nil
}

func (a *app) openDatastore(ctx context.Context) (datastore.Client, error) {
	switch a.cfg.Datastore.Driver {
	case "postgres":
		store, err := postgres.New(ctx, a.cfg.Datastore.DSN, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres datastore: %w", err)
		}
		a.pinger = store
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "sqlite":
		store, err := sqlitestore.Open(a.cfg.Datastore.DSN, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite datastore: %w", err)
		}
		a.pinger = store
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown datastore driver %q", a.cfg.Datastore.Driver)
	}
}

// requestCache returns the configured cache backend, or nil to use the
// planner's built-in memory cache.
func (a *app) requestCache() (planning.RequestCache, error) {
	switch a.cfg.Cache.Backend {
	case "redis":
		redisOpts, err := redis.ParseURL(a.cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.redis = redis.NewClient(redisOpts)
		a.closers = append(a.closers, func() { _ = a.redis.Close() })
		return planning.NewRedisRequestCache(a.redis, a.cfg.Cache.TTL, a.logger), nil
	default:
		if a.cfg.Cache.TTL > 0 || a.cfg.Cache.MaxEntries > 0 {
			return planning.NewMemoryRequestCache(a.cfg.Cache.TTL, a.cfg.Cache.MaxEntries), nil
		}
		return nil, nil
	}
}

// connectNATS opens the event connection when one is configured, returning
// nil when events are disabled.
func connectNATS(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
