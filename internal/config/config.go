// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

// Package config loads MediaSync configuration from defaults, an optional
// YAML file and environment variables (in that order of precedence, lowest
// first) using koanf, then validates the result.
package config

import (
	"time"
)

// Config is the complete application configuration.
type Config struct {
	// Jellyfin is a single server declared through environment variables.
	// Servers holds any number of servers declared in the config file.
	Jellyfin JellyfinConfig `koanf:"jellyfin"`
	Servers  []ServerConfig `koanf:"servers" validate:"dive"`

	Database  DatabaseConfig  `koanf:"database"`
	Jobs      JobsConfig      `koanf:"jobs"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Sync      SyncConfig      `koanf:"sync"`
	Sessions  SessionsConfig  `koanf:"sessions"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Cache     CacheConfig     `koanf:"cache"`
	Events    EventsConfig    `koanf:"events"`
	HTTP      HTTPConfig      `koanf:"http"`
	Logging   LoggingConfig   `koanf:"logging"`
	Security  SecurityConfig  `koanf:"security"`
}

// JellyfinConfig declares one server via JELLYFIN_* environment variables.
type JellyfinConfig struct {
	Enabled  bool   `koanf:"enabled"`
	ServerID string `koanf:"server_id"`
	Name     string `koanf:"name"`
	URL      string `koanf:"url" validate:"omitempty,url"`
	APIKey   string `koanf:"api_key"`
}

// ServerConfig declares a media server to synchronize.
type ServerConfig struct {
	ID     string `koanf:"id" validate:"required,max=64"`
	Name   string `koanf:"name"`
	URL    string `koanf:"url" validate:"required,url"`
	APIKey string `koanf:"api_key" validate:"required"`
}

// DatabaseConfig configures the DuckDB store.
type DatabaseConfig struct {
	Path      string `koanf:"path" validate:"required"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads" validate:"gte=0"`
}

// JobOptionsConfig overrides the built-in options of one job name.
// Zero values keep the built-in default.
type JobOptionsConfig struct {
	ExpireIn   time.Duration `koanf:"expire_in"`
	RetryLimit int           `koanf:"retry_limit" validate:"gte=0"`
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// JobsConfig configures the durable job queue.
type JobsConfig struct {
	DBPath          string                      `koanf:"db_path" validate:"required"`
	Workers         int                         `koanf:"workers" validate:"min=1,max=64"`
	ReleaseAfter    time.Duration               `koanf:"release_after"`
	CleanupInterval time.Duration               `koanf:"cleanup_interval"`
	Concurrency     map[string]int              `koanf:"concurrency"`
	Options         map[string]JobOptionsConfig `koanf:"options"`
}

// SchedulerConfig holds one cron expression per trigger.
type SchedulerConfig struct {
	Enabled          bool   `koanf:"enabled"`
	RecentActivities string `koanf:"recent_activities" validate:"required,cron"`
	RecentItems      string `koanf:"recent_items" validate:"required,cron"`
	Users            string `koanf:"users" validate:"required,cron"`
	FullSync         string `koanf:"full_sync" validate:"required,cron"`
	StaleSweep       string `koanf:"stale_sweep" validate:"required,cron"`
}

// SyncConfig tunes the entity synchronization modules.
type SyncConfig struct {
	PageSize           int           `koanf:"page_size" validate:"min=1,max=10000"`
	PageDelay          time.Duration `koanf:"page_delay"`
	LibraryConcurrency int           `koanf:"library_concurrency" validate:"min=1"`
	ItemConcurrency    int           `koanf:"item_concurrency" validate:"min=1"`
	ActivityMaxPages   int           `koanf:"activity_max_pages" validate:"min=1"`
	RecentItemsLimit   int           `koanf:"recent_items_limit" validate:"min=1"`
	StaleLockAfter     time.Duration `koanf:"stale_lock_after"`
	Client             ClientConfig  `koanf:"client"`
}

// ClientConfig tunes the media server HTTP client.
type ClientConfig struct {
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	Burst             int           `koanf:"burst" validate:"min=1"`
	Timeout           time.Duration `koanf:"timeout"`
	MaxRetries        int           `koanf:"max_retries" validate:"gte=0,lte=10"`
	RetryBaseDelay    time.Duration `koanf:"retry_base_delay"`
}

// SessionsConfig configures the session poller.
type SessionsConfig struct {
	Enabled           bool          `koanf:"enabled"`
	PollInterval      time.Duration `koanf:"poll_interval"`
	MaxPendingRetries int           `koanf:"max_pending_retries" validate:"gte=0"`
	Journal           JournalConfig `koanf:"journal"`
}

// JournalConfig configures the BadgerDB journal that keeps session records
// awaiting retry across restarts. An empty Path keeps them in memory only.
type JournalConfig struct {
	Path       string        `koanf:"path"`
	SyncWrites bool          `koanf:"sync_writes"`
	GCInterval time.Duration `koanf:"gc_interval"`
	GCRatio    float64       `koanf:"gc_ratio" validate:"gte=0,lt=1"`
}

// ProviderConfig selects the embedding provider.
type ProviderConfig struct {
	Kind      string        `koanf:"kind" validate:"oneof=openai ollama"`
	Model     string        `koanf:"model" validate:"required"`
	BaseURL   string        `koanf:"base_url" validate:"required,url"`
	APIKey    string        `koanf:"api_key"`
	BatchSize int           `koanf:"batch_size" validate:"min=1"`
	Timeout   time.Duration `koanf:"timeout"`
}

// EmbeddingConfig configures the embedding pipeline.
type EmbeddingConfig struct {
	Dimensions        int            `koanf:"dimensions" validate:"min=1"`
	BatchSize         int            `koanf:"batch_size" validate:"min=1"`
	MaxIterations     int            `koanf:"max_iterations" validate:"min=1"`
	MaxInputChars     int            `koanf:"max_input_chars" validate:"min=16"`
	HeartbeatInterval time.Duration  `koanf:"heartbeat_interval"`
	StaleAfter        time.Duration  `koanf:"stale_after"`
	HeartbeatGrace    time.Duration  `koanf:"heartbeat_grace"`
	Provider          ProviderConfig `koanf:"provider"`
}

// CacheConfig configures the embedding vector cache. An empty RedisURL
// selects the in-process LRU.
type CacheConfig struct {
	RedisURL    string        `koanf:"redis_url"`
	LRUCapacity int           `koanf:"lru_capacity" validate:"min=1"`
	TTL         time.Duration `koanf:"ttl"`
}

// EventsConfig configures session event publishing. An empty NATSURL
// selects the in-process channel transport.
type EventsConfig struct {
	NATSURL string `koanf:"nats_url"`
	Topic   string `koanf:"topic" validate:"required"`
}

// HTTPConfig configures the admin API server.
type HTTPConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimit       int           `koanf:"rate_limit" validate:"gte=0"`
	RateWindow      time.Duration `koanf:"rate_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig holds the secret used to encrypt stored API keys.
type SecurityConfig struct {
	CredentialSecret string `koanf:"credential_secret"`
}

// DefaultJellyfinServerID is used when JELLYFIN_SERVER_ID is not set.
const DefaultJellyfinServerID = "jellyfin-default"

// EffectiveServers returns every configured server, the env-declared
// Jellyfin server first.
func (c *Config) EffectiveServers() []ServerConfig {
	out := make([]ServerConfig, 0, len(c.Servers)+1)
	if c.Jellyfin.Enabled {
		id := c.Jellyfin.ServerID
		if id == "" {
			id = DefaultJellyfinServerID
		}
		name := c.Jellyfin.Name
		if name == "" {
			name = id
		}
		out = append(out, ServerConfig{ID: id, Name: name, URL: c.Jellyfin.URL, APIKey: c.Jellyfin.APIKey})
	}
	return append(out, c.Servers...)
}
