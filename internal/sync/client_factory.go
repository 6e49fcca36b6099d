// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sync

import (
	"fmt"
	gosync "sync"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/models"
)

// Decrypter recovers a plaintext API key from its stored form.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// ClientProvider returns the client for a server.
type ClientProvider interface {
	For(server *models.Server) (Client, error)
}

// ClientFactory builds and caches one breaker-wrapped client per server,
// so every job and the poller share the server's rate limiter and breaker.
// A cached client is rebuilt when the server's URL or key changes.
type ClientFactory struct {
	cfg       config.ClientConfig
	decrypter Decrypter

	mu      gosync.Mutex
	clients map[string]cachedClient
}

type cachedClient struct {
	url    string
	key    string
	client Client
}

var _ ClientProvider = (*ClientFactory)(nil)

// NewClientFactory creates a factory. decrypter may be nil when keys are
// stored in plaintext (tests only).
func NewClientFactory(cfg config.ClientConfig, decrypter Decrypter) *ClientFactory {
	return &ClientFactory{
		cfg:       cfg,
		decrypter: decrypter,
		clients:   make(map[string]cachedClient),
	}
}

// For returns the client for server.
func (f *ClientFactory) For(server *models.Server) (Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[server.ID]; ok && c.url == server.URL && c.key == server.APIKeyEncrypted {
		return c.client, nil
	}

	apiKey := server.APIKeyEncrypted
	if f.decrypter == nil && config.IsSealedCredential(apiKey) {
		return nil, fmt.Errorf("server %s has a sealed API key: %w", server.ID, config.ErrEmptySecret)
	}
	if f.decrypter != nil {
		plain, err := f.decrypter.Decrypt(server.APIKeyEncrypted)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt API key for server %s: %w", server.ID, err)
		}
		apiKey = plain
	}

	client := NewCircuitBreakerClient("jellyfin-"+server.ID, NewJellyfinClient(server.URL, apiKey, f.cfg))
	f.clients[server.ID] = cachedClient{url: server.URL, key: server.APIKeyEncrypted, client: client}
	return client, nil
}
