// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/jobs"
)

func credentialConfig(baseURL string) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		Dimensions:        4,
		BatchSize:         4,
		MaxIterations:     1,
		MaxInputChars:     512,
		HeartbeatInterval: time.Hour,
		Provider: config.ProviderConfig{
			Kind:      "openai",
			Model:     "text-embedding-3-small",
			BaseURL:   baseURL,
			APIKey:    "sk-secret",
			BatchSize: 2,
		},
	}
}

func TestPipeline_PayloadCarriesNoAPIKey(t *testing.T) {
	enq := &fakeEnqueuer{}
	p := NewPipeline(credentialConfig("http://embed"), newFakeRepo(0), &fakeResults{}, enq)

	_, err := p.Start(context.Background(), "jf1", 0, 0)
	require.NoError(t, err)
	require.Len(t, enq.queued, 1)

	raw, err := json.Marshal(enq.queued[0])
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-secret")
	assert.NotContains(t, string(raw), "api_key")
}

func TestPipeline_APIKeyFor(t *testing.T) {
	p := NewPipeline(credentialConfig("http://embed:8080/"), newFakeRepo(0), &fakeResults{}, &fakeEnqueuer{})

	tests := []struct {
		name string
		spec jobs.ProviderSpec
		want string
	}{
		{name: "configured provider", spec: jobs.ProviderSpec{Kind: "openai", BaseURL: "http://embed:8080"}, want: "sk-secret"},
		{name: "other host", spec: jobs.ProviderSpec{Kind: "openai", BaseURL: "http://elsewhere:8080"}, want: ""},
		{name: "other kind", spec: jobs.ProviderSpec{Kind: "ollama", BaseURL: "http://embed:8080"}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.apiKeyFor(tt.spec))
		})
	}
}

func TestPipeline_SendsConfiguredAPIKey(t *testing.T) {
	var authorized atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer sk-secret" {
			authorized.Add(1)
		}
		var req openAIRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		type datum struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]datum, len(req.Input))
		for i := range req.Input {
			data[i] = datum{Index: i, Embedding: []float32{1, 2}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	repo := newFakeRepo(1)
	enq := &fakeEnqueuer{}
	p := NewPipeline(credentialConfig(srv.URL), repo, &fakeResults{}, enq)

	_, err := p.Start(context.Background(), "jf1", 0, 0)
	require.NoError(t, err)
	require.Len(t, enq.queued, 1)

	out, err := p.GenerateEmbeddings(context.Background(), enq.queued[0])
	require.NoError(t, err)
	assert.Equal(t, 1, out.(*BatchSummary).Embedded)
	assert.Equal(t, int32(1), authorized.Load())
	assert.Equal(t, []float32{1, 2, 0, 0}, repo.vectors["item-000"])
}
