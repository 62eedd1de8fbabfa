// Package server provides the public entry point for initializing the
// AgentMint control plane server.
//
// It wires configuration, storage, the runtime client, the upgrade
// queue and the template cache into a ready http.Handler:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/agentmint/agentmint/internal/api"
	"github.com/agentmint/agentmint/internal/api/handlers"
	"github.com/agentmint/agentmint/internal/archive"
	"github.com/agentmint/agentmint/internal/cache"
	"github.com/agentmint/agentmint/internal/config"
	"github.com/agentmint/agentmint/internal/idempotency"
	"github.com/agentmint/agentmint/internal/migration"
	"github.com/agentmint/agentmint/internal/queue"
	"github.com/agentmint/agentmint/internal/registry"
	"github.com/agentmint/agentmint/internal/runtime"
	"github.com/agentmint/agentmint/internal/store"
	"github.com/agentmint/agentmint/internal/telemetry"
)

// Server holds the initialized AgentMint control plane.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Store is the data store (in-memory unless DATABASE_URL is set).
	Store store.Store

	// Queue is the asynchronous upgrade queue.
	Queue queue.Queue

	// Config is the loaded configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all control plane components from the environment.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the control plane with an explicit configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	var dataStore store.Store
	if cfg.Database.URL != "" {
		dataStore, err = store.NewPostgresStore(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
	} else {
		dataStore = store.NewMemoryStore()
		log.Info().Msg("In-memory store initialized")
	}

	var upgradeQueue queue.Queue
	if cfg.Queue.NATSURL != "" {
		upgradeQueue, err = queue.NewNATSQueue(cfg.Queue.NATSURL, cfg.Queue.Subject)
		if err != nil {
			return nil, fmt.Errorf("init queue: %w", err)
		}
	} else {
		upgradeQueue = queue.NewMemoryQueue()
		log.Info().Msg("In-process upgrade queue initialized")
	}

	var templateCache cache.TemplateCache = cache.NoopCache{}
	if cfg.Cache.RedisURL != "" {
		templateCache, err = cache.NewRedisCache(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
	}

	archiver, err := archive.NewLocalFileArchiver(cfg.Archive.Dir)
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}

	runtimeClient := runtime.NewHTTPClient(cfg.Runtime.BaseURL, cfg.Runtime.Timeout)
	guard := idempotency.NewGuard(dataStore)
	reg := registry.New(dataStore, guard, archiver, templateCache)
	exec := migration.NewExecutor(dataStore, runtimeClient, upgradeQueue, cfg.Proxy.BaseURL)

	h := handlers.New(dataStore, reg, guard, exec, runtimeClient, cfg.Version)
	router := api.NewRouter(cfg, h)

	return &Server{
		Handler:      router,
		Store:        dataStore,
		Queue:        upgradeQueue,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
