// Package server assembles the MeshBoard service from its parts: the SQL
// store, the audit event sink, the managers and the HTTP API.
package server

import (
	"fmt"
	"os"

	"github.com/meshboardio/meshboard/server/http/api"
	"github.com/meshboardio/meshboard/server/http/middleware"
	"github.com/meshboardio/meshboard/server/store"
	"github.com/meshboardio/meshboard/util"
)

const (
	// DefaultHTTPPort is the port the API listens on when none is configured
	DefaultHTTPPort = 8080
	// DefaultMetricsPort is the port the Prometheus endpoint listens on
	DefaultMetricsPort = 9090
)

// Environment overrides. Secrets take precedence over the config file so they
// can be injected by the process manager instead of living on disk.
const (
	adminKeyEnv      = "MB_ADMIN_API_KEY"
	githubSecretEnv  = "MB_GITHUB_WEBHOOK_SECRET"
	encryptionKeyEnv = "MB_ENCRYPTION_KEY"
	storeEngineEnv   = "MB_STORE_ENGINE"
)

// Config of the MeshBoard service
type Config struct {
	// Datadir is the server data directory holding the store databases and
	// the generated encryption key
	Datadir string

	// DataStoreEncryptionKey encrypts the audit event fields at rest. When
	// empty the key is restored from, or generated into, the datadir.
	DataStoreEncryptionKey string

	StoreConfig StoreConfig

	HttpConfig *HttpServerConfig

	Metrics *MetricsConfig

	// AdminApiKey guards the admin API. An empty key disables the whole
	// admin surface.
	AdminApiKey string

	GitHub *GitHubConfig

	// Site is served verbatim on the public site-config endpoint
	Site api.SiteConfig

	// RateLimits override the built-in per-caller limits of the write
	// endpoints when set
	RateLimits *middleware.RateLimiterConfig
}

// StoreConfig contains the config parameters of the persistence store
type StoreConfig struct {
	Engine store.Engine
}

// HttpServerConfig is a config of the MeshBoard HTTP API server
type HttpServerConfig struct {
	// Address to listen on, e.g. ":8080"
	Address string
	// CORSAllowedOrigins narrows cross-origin access to the listed origins.
	// An empty list allows any origin.
	CORSAllowedOrigins []string
}

// MetricsConfig of the Prometheus listener
type MetricsConfig struct {
	Port int
}

// GitHubConfig of the inbound GitHub webhook receiver
type GitHubConfig struct {
	// WebhookSecret verifies the X-Hub-Signature-256 header of inbound
	// deliveries. Deliveries are rejected while it is empty.
	WebhookSecret string
}

// DefaultConfig returns the configuration a fresh deployment starts from
func DefaultConfig() *Config {
	return &Config{
		StoreConfig: StoreConfig{Engine: store.SqliteStoreEngine},
		HttpConfig:  &HttpServerConfig{Address: fmt.Sprintf(":%d", DefaultHTTPPort)},
		Metrics:     &MetricsConfig{Port: DefaultMetricsPort},
		GitHub:      &GitHubConfig{},
		Site: api.SiteConfig{
			Title: "MeshBoard",
			Roles: []string{"developer", "reviewer", "lead", "bot"},
		},
	}
}

// LoadConfig reads the config file at path into the default config and applies
// the environment overrides. A missing file yields the defaults so a fresh
// deployment can boot without one.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if util.FileExists(path) {
		if _, err := util.ReadJson(path, config); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if config.HttpConfig == nil {
		config.HttpConfig = DefaultConfig().HttpConfig
	}
	if config.Metrics == nil {
		config.Metrics = DefaultConfig().Metrics
	}
	if config.GitHub == nil {
		config.GitHub = &GitHubConfig{}
	}

	if adminKey, ok := os.LookupEnv(adminKeyEnv); ok {
		config.AdminApiKey = adminKey
	}
	if githubSecret, ok := os.LookupEnv(githubSecretEnv); ok {
		config.GitHub.WebhookSecret = githubSecret
	}
	if encryptionKey, ok := os.LookupEnv(encryptionKeyEnv); ok {
		config.DataStoreEncryptionKey = encryptionKey
	}
	if engine, ok := os.LookupEnv(storeEngineEnv); ok {
		config.StoreConfig.Engine = store.Engine(engine)
	}

	return config, nil
}
