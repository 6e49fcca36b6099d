// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "*/5 * * * *", cfg.Scheduler.RecentActivities)
	assert.Equal(t, "0 3 * * *", cfg.Scheduler.FullSync)
	assert.Equal(t, 10*time.Minute, cfg.Embedding.StaleAfter)
	assert.Equal(t, 2*time.Minute, cfg.Embedding.HeartbeatGrace)
	assert.Equal(t, 5*time.Second, cfg.Sessions.PollInterval)
	assert.Equal(t, "/data/sessions-journal", cfg.Sessions.Journal.Path)
	assert.Empty(t, cfg.EffectiveServers())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("JELLYFIN_ENABLED", "true")
	t.Setenv("JELLYFIN_URL", "http://jellyfin.local:8096")
	t.Setenv("JELLYFIN_API_KEY", "key")
	t.Setenv("CREDENTIAL_SECRET", testSecret)
	t.Setenv("SESSION_POLLING_INTERVAL", "10s")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("SCHEDULE_USERS", "30 * * * *")
	journal := filepath.Join(t.TempDir(), "journal")
	t.Setenv("SESSION_JOURNAL_PATH", journal)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Sessions.PollInterval)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.HTTP.CORSOrigins)
	assert.Equal(t, "30 * * * *", cfg.Scheduler.Users)
	assert.Equal(t, journal, cfg.Sessions.Journal.Path)

	servers := cfg.EffectiveServers()
	require.Len(t, servers, 1)
	assert.Equal(t, DefaultJellyfinServerID, servers[0].ID)
	assert.Equal(t, "http://jellyfin.local:8096", servers[0].URL)
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
servers:
  - id: living-room
    name: Living Room
    url: http://10.0.0.5:8096
    api_key: abc
  - id: basement
    url: http://10.0.0.6:8096
    api_key: def
security:
  credential_secret: ` + testSecret + `
sync:
  page_size: 250
jobs:
  options:
    items-sync:
      retry_limit: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, "living-room", cfg.Servers[0].ID)
	assert.Equal(t, 250, cfg.Sync.PageSize)
	assert.Equal(t, 5, cfg.Jobs.Options["items-sync"].RetryLimit)
	assert.Equal(t, 1, cfg.Jobs.Concurrency["full-sync"])
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad cron", func(c *Config) { c.Scheduler.FullSync = "not a cron" }},
		{"heartbeat too long", func(c *Config) { c.Embedding.HeartbeatInterval = time.Minute }},
		{"stale before grace", func(c *Config) { c.Embedding.StaleAfter = time.Minute }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider.Kind = "other" }},
		{"jellyfin without key", func(c *Config) {
			c.Jellyfin = JellyfinConfig{Enabled: true, URL: "http://x"}
		}},
		{"duplicate server", func(c *Config) {
			c.Security.CredentialSecret = testSecret
			c.Servers = []ServerConfig{
				{ID: "a", URL: "http://a", APIKey: "k"},
				{ID: "a", URL: "http://b", APIKey: "k"},
			}
		}},
		{"short secret", func(c *Config) {
			c.Servers = []ServerConfig{{ID: "a", URL: "http://a", APIKey: "k"}}
		}},
		{"poll too fast", func(c *Config) { c.Sessions.PollInterval = 100 * time.Millisecond }},
		{"journal gc ratio", func(c *Config) { c.Sessions.Journal.GCRatio = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCredentialEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewCredentialEncryptor(testSecret)
	require.NoError(t, err)

	ct, err := enc.Encrypt("api-key-123")
	require.NoError(t, err)
	assert.NotContains(t, ct, "api-key-123")
	assert.True(t, IsSealedCredential(ct))
	assert.False(t, IsSealedCredential("api-key-123"))

	pt, err := enc.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "api-key-123", pt)

	other, err := NewCredentialEncryptor("another-secret-another-secret-xx")
	require.NoError(t, err)
	_, err = other.Decrypt(ct)
	assert.True(t, errors.Is(err, ErrDecryptionFailed))
}

func TestCredentialEncryptor_Errors(t *testing.T) {
	_, err := NewCredentialEncryptor("")
	assert.ErrorIs(t, err, ErrEmptySecret)

	enc, err := NewCredentialEncryptor(testSecret)
	require.NoError(t, err)

	_, err = enc.Encrypt("")
	assert.ErrorIs(t, err, ErrEmptyPlaintext)
	_, err = enc.Decrypt("")
	assert.ErrorIs(t, err, ErrEmptyCiphertext)
	_, err = enc.Decrypt("plain-api-key")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
	_, err = enc.Decrypt("enc:v1:!!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
	_, err = enc.Decrypt("enc:v1:YWJj")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestMaskCredential(t *testing.T) {
	assert.Equal(t, "", MaskCredential(""))
	assert.Equal(t, "****", MaskCredential("abc"))
	assert.Equal(t, "****...6789", MaskCredential("123456789"))
}
