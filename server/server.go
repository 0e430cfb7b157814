package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"

	"github.com/meshboardio/meshboard/server/activity"
	"github.com/meshboardio/meshboard/server/activity/sqlite"
	"github.com/meshboardio/meshboard/server/agents"
	"github.com/meshboardio/meshboard/server/cache"
	"github.com/meshboardio/meshboard/server/github"
	mbhttp "github.com/meshboardio/meshboard/server/http"
	"github.com/meshboardio/meshboard/server/http/middleware"
	"github.com/meshboardio/meshboard/server/notifications"
	"github.com/meshboardio/meshboard/server/posts"
	"github.com/meshboardio/meshboard/server/projects"
	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/server/telemetry"
	"github.com/meshboardio/meshboard/server/webhooks"
)

const shutdownTimeout = 10 * time.Second

// Server is the assembled MeshBoard service. It owns the stores, the managers
// and the HTTP listeners and coordinates their startup and shutdown.
type Server struct {
	config *Config

	appMetrics  telemetry.AppMetrics
	store       store.Store
	eventStore  activity.Store
	rateLimiter *middleware.RateLimiter
	apiHandler  http.Handler

	listener   net.Listener
	httpServer *http.Server
}

// New assembles a Server according to the config. The returned server does not
// accept connections until Start is called.
func New(ctx context.Context, config *Config) (*Server, error) {
	if config.HttpConfig == nil {
		return nil, fmt.Errorf("config is missing the HTTP section")
	}

	appMetrics, err := telemetry.NewDefaultAppMetrics(ctx)
	if err != nil {
		return nil, err
	}

	str, err := store.NewStore(ctx, config.StoreConfig.Engine, config.Datadir, appMetrics)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	encryptionKey, err := resolveEncryptionKey(config)
	if err != nil {
		return nil, err
	}

	eventStore, err := sqlite.NewSQLiteStore(config.Datadir, encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("create event store: %w", err)
	}

	cacheStore, err := cache.NewStore(cache.DefaultAgentCacheExpirationMax, cache.DefaultAgentCacheCleanupInterval)
	if err != nil {
		return nil, fmt.Errorf("create cache store: %w", err)
	}

	agentsManager := agents.NewManager(str, eventStore, cache.NewAgentDataCache(cacheStore))
	projectsManager := projects.NewManager(str, eventStore)
	notificationsManager := notifications.NewManager(str, eventStore)
	dispatcher := webhooks.NewDispatcher(str, appMetrics.WebhookMetrics())
	postsManager := posts.NewManager(str, eventStore, projectsManager, agentsManager, notificationsManager, dispatcher, appMetrics)
	webhooksManager := webhooks.NewManager(str, eventStore, projectsManager)
	receiver := github.NewReceiver(str, eventStore, agentsManager, notificationsManager)

	rateLimiterConfig := config.RateLimits
	if rateLimiterConfig == nil {
		rateLimiterConfig = middleware.DefaultRateLimiterConfig()
	}
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig)

	apiHandler, err := mbhttp.APIHandler(str, eventStore, agentsManager, projectsManager, postsManager, notificationsManager, webhooksManager, receiver, appMetrics, rateLimiter, mbhttp.APIConfig{
		AdminKey:            config.AdminApiKey,
		GitHubWebhookSecret: config.GitHub.WebhookSecret,
		SiteConfig:          config.Site,
		CORSAllowedOrigins:  config.HttpConfig.CORSAllowedOrigins,
	})
	if err != nil {
		rateLimiter.Stop()
		return nil, fmt.Errorf("create API handler: %w", err)
	}

	return &Server{
		config:      config,
		appMetrics:  appMetrics,
		store:       str,
		eventStore:  eventStore,
		rateLimiter: rateLimiter,
		apiHandler:  apiHandler,
	}, nil
}

// Start binds the API listener and begins serving. The metrics endpoint is
// exposed on its own listener when configured.
func (s *Server) Start(ctx context.Context) error {
	if s.config.Metrics != nil {
		if err := s.appMetrics.Expose(ctx, s.config.Metrics.Port, ""); err != nil {
			return fmt.Errorf("expose metrics: %w", err)
		}
	}

	listener, err := net.Listen("tcp", s.config.HttpConfig.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.HttpConfig.Address, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s.apiHandler}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.WithContext(ctx).Errorf("API server error: %v", err)
		}
	}()

	log.WithContext(ctx).Infof("started MeshBoard server on %s", listener.Addr().String())

	return nil
}

// Addr returns the address the API listener is bound to. It is nil before
// Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop drains the HTTP server and closes the stores, aggregating any errors
// encountered on the way down.
func (s *Server) Stop(ctx context.Context) error {
	var result *multierror.Error

	if s.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			result = multierror.Append(result, fmt.Errorf("shutdown API server: %w", err))
		}
	}

	s.rateLimiter.Stop()

	if err := s.eventStore.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close event store: %w", err))
	}
	if err := s.store.Close(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("close store: %w", err))
	}
	if err := s.appMetrics.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close metrics listener: %w", err))
	}

	log.WithContext(ctx).Info("stopped MeshBoard server")

	return result.ErrorOrNil()
}

// resolveEncryptionKey returns the configured event field encryption key or
// falls back to the key file in the datadir, generating one on first boot.
func resolveEncryptionKey(config *Config) (string, error) {
	if config.DataStoreEncryptionKey != "" {
		return config.DataStoreEncryptionKey, nil
	}

	key, err := sqlite.RestoreKey(config.Datadir)
	if err == nil {
		return key, nil
	}

	log.Infof("generating a new datastore encryption key in %s", config.Datadir)
	key, err = sqlite.GenerateKey(config.Datadir)
	if err != nil {
		return "", fmt.Errorf("generate encryption key: %w", err)
	}

	return key, nil
}
