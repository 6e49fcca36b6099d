// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/models"
)

// ServerUpserter stores a server's identity and credentials.
type ServerUpserter interface {
	UpsertServer(ctx context.Context, s *models.Server) error
}

// newEncryptor returns nil when no secret is configured. Validation
// already requires one whenever servers are declared.
func newEncryptor(secret string) (*config.CredentialEncryptor, error) {
	if secret == "" {
		return nil, nil
	}
	enc, err := config.NewCredentialEncryptor(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to create credential encryptor: %w", err)
	}
	return enc, nil
}

// seedServers upserts every configured server with its API key encrypted.
// Sync state of servers already in the store is left alone.
func seedServers(ctx context.Context, store ServerUpserter, servers []config.ServerConfig, enc *config.CredentialEncryptor) error {
	for _, sc := range servers {
		key := sc.APIKey
		if enc != nil {
			sealed, err := enc.Encrypt(sc.APIKey)
			if err != nil {
				return fmt.Errorf("failed to encrypt API key for server %s: %w", sc.ID, err)
			}
			key = sealed
		}
		name := sc.Name
		if name == "" {
			name = sc.ID
		}
		if err := store.UpsertServer(ctx, &models.Server{ID: sc.ID, Name: name, URL: sc.URL, APIKeyEncrypted: key}); err != nil {
			return err
		}
		logging.Info().
			Str("server_id", sc.ID).
			Str("url", sc.URL).
			Str("api_key", config.MaskCredential(sc.APIKey)).
			Msg("Server registered")
	}
	return nil
}
