// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/mediasync/config.yaml",
	"/etc/mediasync/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "/data/mediasync.duckdb",
			MaxMemory: "1GB",
		},
		Jobs: JobsConfig{
			DBPath:          "/data/mediasync-jobs.db",
			Workers:         4,
			ReleaseAfter:    4*time.Hour + 5*time.Minute,
			CleanupInterval: time.Hour,
			Concurrency: map[string]int{
				"full-sync":                1,
				"users-sync":               2,
				"libraries-sync":           2,
				"items-sync":               1,
				"activities-sync":          2,
				"recent-items-sync":        2,
				"recent-activities-sync":   2,
				"generate-item-embeddings": 1,
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:          true,
			RecentActivities: "*/5 * * * *",
			RecentItems:      "*/15 * * * *",
			Users:            "0 * * * *",
			FullSync:         "0 3 * * *",
			StaleSweep:       "*/5 * * * *",
		},
		Sync: SyncConfig{
			PageSize:           100,
			PageDelay:          100 * time.Millisecond,
			LibraryConcurrency: 2,
			ItemConcurrency:    4,
			ActivityMaxPages:   10,
			RecentItemsLimit:   100,
			StaleLockAfter:     6 * time.Hour,
			Client: ClientConfig{
				RequestsPerSecond: 10,
				Burst:             20,
				Timeout:           30 * time.Second,
				MaxRetries:        3,
				RetryBaseDelay:    time.Second,
			},
		},
		Sessions: SessionsConfig{
			Enabled:           true,
			PollInterval:      5 * time.Second,
			MaxPendingRetries: 1000,
			Journal: JournalConfig{
				Path:       "/data/sessions-journal",
				SyncWrites: true,
				GCInterval: 10 * time.Minute,
				GCRatio:    0.5,
			},
		},
		Embedding: EmbeddingConfig{
			Dimensions:        768,
			BatchSize:         50,
			MaxIterations:     200,
			MaxInputChars:     2000,
			HeartbeatInterval: 30 * time.Second,
			StaleAfter:        10 * time.Minute,
			HeartbeatGrace:    2 * time.Minute,
			Provider: ProviderConfig{
				Kind:      "ollama",
				Model:     "nomic-embed-text",
				BaseURL:   "http://127.0.0.1:11434",
				BatchSize: 16,
				Timeout:   60 * time.Second,
			},
		},
		Cache: CacheConfig{
			LRUCapacity: 10000,
			TTL:         24 * time.Hour,
		},
		Events: EventsConfig{
			Topic: "sessions.finalized",
		},
		HTTP: HTTPConfig{
			Host:            "127.0.0.1",
			Port:            9096,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       100,
			RateWindow:      time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration in three layers: struct defaults, the first
// config file found, and environment variables. The merged result is
// validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"http.cors_origins",
}

// processSliceFields splits comma-separated env values for slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	"jellyfin_enabled":   "jellyfin.enabled",
	"jellyfin_server_id": "jellyfin.server_id",
	"jellyfin_name":      "jellyfin.name",
	"jellyfin_url":       "jellyfin.url",
	"jellyfin_api_key":   "jellyfin.api_key",

	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"jobs_db_path": "jobs.db_path",
	"jobs_workers": "jobs.workers",

	"scheduler_enabled":          "scheduler.enabled",
	"schedule_recent_activities": "scheduler.recent_activities",
	"schedule_recent_items":      "scheduler.recent_items",
	"schedule_users":             "scheduler.users",
	"schedule_full_sync":         "scheduler.full_sync",
	"schedule_stale_sweep":       "scheduler.stale_sweep",

	"sync_page_size":           "sync.page_size",
	"sync_page_delay":          "sync.page_delay",
	"sync_library_concurrency": "sync.library_concurrency",
	"sync_item_concurrency":    "sync.item_concurrency",
	"sync_activity_max_pages":  "sync.activity_max_pages",
	"sync_recent_items_limit":  "sync.recent_items_limit",
	"sync_stale_lock_after":    "sync.stale_lock_after",
	"api_requests_per_second":  "sync.client.requests_per_second",
	"api_burst":                "sync.client.burst",
	"api_timeout":              "sync.client.timeout",
	"api_max_retries":          "sync.client.max_retries",

	"session_polling_enabled":  "sessions.enabled",
	"session_polling_interval": "sessions.poll_interval",
	"session_journal_path":     "sessions.journal.path",

	"embedding_dimensions":          "embedding.dimensions",
	"embedding_batch_size":          "embedding.batch_size",
	"embedding_max_iterations":      "embedding.max_iterations",
	"embedding_provider":            "embedding.provider.kind",
	"embedding_model":               "embedding.provider.model",
	"embedding_base_url":            "embedding.provider.base_url",
	"embedding_api_key":             "embedding.provider.api_key",
	"embedding_provider_batch_size": "embedding.provider.batch_size",

	"redis_url":    "cache.redis_url",
	"cache_ttl":    "cache.ttl",
	"nats_url":     "events.nats_url",
	"events_topic": "events.topic",

	"http_host":    "http.host",
	"http_port":    "http.port",
	"rate_limit":   "http.rate_limit",
	"cors_origins": "http.cors_origins",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"credential_secret": "security.credential_secret",
}

// envTransformFunc maps an environment variable name to its koanf path,
// returning "" for unrelated variables so koanf skips them.
func envTransformFunc(key string) string {
	if path, ok := envMappings[strings.ToLower(key)]; ok {
		return path
	}
	return ""
}
