// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/mediasync/internal/validation"
)

// MaxHeartbeatInterval bounds embedding heartbeats so that the stale sweep
// never mistakes a healthy job for a dead one.
const MaxHeartbeatInterval = 30 * time.Second

// MinCredentialSecretLength is enforced whenever servers are configured.
const MinCredentialSecretLength = 32

// Validate checks struct tags first and then rules spanning several fields.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}
	if err := c.validateJellyfin(); err != nil {
		return err
	}
	if err := c.validateServers(); err != nil {
		return err
	}
	if err := c.validateEmbedding(); err != nil {
		return err
	}
	return c.validateSessions()
}

func (c *Config) validateJellyfin() error {
	if !c.Jellyfin.Enabled {
		return nil
	}
	if c.Jellyfin.URL == "" {
		return fmt.Errorf("JELLYFIN_URL is required when JELLYFIN_ENABLED=true")
	}
	if c.Jellyfin.APIKey == "" {
		return fmt.Errorf("JELLYFIN_API_KEY is required when JELLYFIN_ENABLED=true")
	}
	return nil
}

func (c *Config) validateServers() error {
	servers := c.EffectiveServers()
	seen := make(map[string]bool, len(servers))
	for _, s := range servers {
		if seen[s.ID] {
			return fmt.Errorf("duplicate server id %q", s.ID)
		}
		seen[s.ID] = true
	}
	if len(servers) > 0 && len(c.Security.CredentialSecret) < MinCredentialSecretLength {
		return fmt.Errorf("CREDENTIAL_SECRET must be at least %d characters when servers are configured", MinCredentialSecretLength)
	}
	return nil
}

func (c *Config) validateEmbedding() error {
	e := c.Embedding
	if e.HeartbeatInterval <= 0 || e.HeartbeatInterval > MaxHeartbeatInterval {
		return fmt.Errorf("embedding.heartbeat_interval must be in (0, %s], got %s", MaxHeartbeatInterval, e.HeartbeatInterval)
	}
	if e.HeartbeatGrace <= e.HeartbeatInterval {
		return fmt.Errorf("embedding.heartbeat_grace (%s) must exceed heartbeat_interval (%s)", e.HeartbeatGrace, e.HeartbeatInterval)
	}
	if e.StaleAfter <= e.HeartbeatGrace {
		return fmt.Errorf("embedding.stale_after (%s) must exceed heartbeat_grace (%s)", e.StaleAfter, e.HeartbeatGrace)
	}
	return nil
}

func (c *Config) validateSessions() error {
	if c.Sessions.Enabled && c.Sessions.PollInterval < time.Second {
		return fmt.Errorf("sessions.poll_interval must be at least 1s, got %s", c.Sessions.PollInterval)
	}
	return nil
}
