// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

/*
Package embedding turns unprocessed items into fixed-dimension vectors.

One generate-item-embeddings job handles one batch: it lists the items
after its cursor, builds an input per item, asks the provider for the
vectors the cache does not already hold, resizes every vector to the
configured dimension and stores it. When the batch was full and the
iteration budget allows, the job enqueues its own continuation with the
cursor moved to the last item it saw. While running it writes heartbeat
rows so the Sweeper can tell a slow job from an abandoned one.
*/
package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/jobs"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/metrics"
	"github.com/tomtom215/mediasync/internal/models"
)

// maxHeartbeatInterval is the longest gap allowed between heartbeats.
const maxHeartbeatInterval = 30 * time.Second

// Repository is the item storage the pipeline reads and writes.
type Repository interface {
	ListUnprocessed(ctx context.Context, kind models.EntityKind, serverID, afterExternalID string, limit int) ([]models.Entity, error)
	SaveItemEmbedding(ctx context.Context, key models.EntityKey, vector []float32, model string) error
}

// ResultStore receives heartbeat rows.
type ResultStore interface {
	InsertJobResult(ctx context.Context, r *models.JobResult) error
}

// VectorCache holds normalized vectors by CacheKey.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

// ProviderFactory builds the provider of one job.
type ProviderFactory func(spec jobs.ProviderSpec) (Provider, error)

// BatchSummary is the result payload of one job.
type BatchSummary struct {
	ServerID  string `json:"server_id"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Iteration int    `json:"iteration"`
	Cursor    string `json:"cursor"`
	Fetched   int    `json:"fetched"`
	Embedded  int    `json:"embedded"`
	Cached    int    `json:"cached"`
	Failed    int    `json:"failed"`
	NextJobID string `json:"next_job_id,omitempty"`
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache enables the vector cache.
func WithCache(c VectorCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithProviderFactory replaces NewProvider.
func WithProviderFactory(f ProviderFactory) Option {
	return func(p *Pipeline) { p.newProvider = f }
}

// Pipeline implements the generate-item-embeddings job.
type Pipeline struct {
	cfg         config.EmbeddingConfig
	repo        Repository
	results     ResultStore
	jobs        jobs.Enqueuer
	cache       VectorCache
	newProvider ProviderFactory
	now         func() time.Time
}

// NewPipeline creates a Pipeline. Continuations are enqueued on enq.
func NewPipeline(cfg config.EmbeddingConfig, repo Repository, results ResultStore, enq jobs.Enqueuer, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		repo:    repo,
		results: results,
		jobs:    enq,
		now:     time.Now,
	}
	timeout := cfg.Provider.Timeout
	p.newProvider = func(spec jobs.ProviderSpec) (Provider, error) {
		return NewProvider(spec, p.apiKeyFor(spec), timeout)
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Start enqueues the first batch for a server using the configured
// provider and returns its job id. Zero batchSize or maxIterations fall
// back to the configured values.
func (p *Pipeline) Start(ctx context.Context, serverID string, batchSize, maxIterations int) (string, error) {
	if batchSize <= 0 {
		batchSize = p.cfg.BatchSize
	}
	if maxIterations <= 0 {
		maxIterations = p.cfg.MaxIterations
	}
	pc := p.cfg.Provider
	payload := jobs.GenerateEmbeddingsPayload{
		ServerID: serverID,
		Provider: jobs.ProviderSpec{
			Kind:      pc.Kind,
			Model:     pc.Model,
			BaseURL:   pc.BaseURL,
			BatchSize: pc.BatchSize,
		},
		BatchSize:     batchSize,
		MaxIterations: maxIterations,
	}
	return p.jobs.Enqueue(ctx, payload)
}

// apiKeyFor returns the configured provider key when spec targets the
// configured provider. A payload naming any other endpoint gets no key.
func (p *Pipeline) apiKeyFor(spec jobs.ProviderSpec) string {
	pc := p.cfg.Provider
	if spec.Kind != pc.Kind || strings.TrimRight(spec.BaseURL, "/") != strings.TrimRight(pc.BaseURL, "/") {
		return ""
	}
	return pc.APIKey
}

// GenerateEmbeddings processes one batch. Provider failures only count
// against the affected items; a storage failure fails the job.
func (p *Pipeline) GenerateEmbeddings(ctx context.Context, payload jobs.GenerateEmbeddingsPayload) (any, error) {
	log := logging.Ctx(ctx)
	stop := p.startHeartbeat(ctx, payload)
	defer stop()

	if payload.BatchSize <= 0 {
		payload.BatchSize = p.cfg.BatchSize
	}
	if payload.MaxIterations <= 0 {
		payload.MaxIterations = p.cfg.MaxIterations
	}

	provider, err := p.newProvider(payload.Provider)
	if err != nil {
		return nil, err
	}
	summary := &BatchSummary{
		ServerID:  payload.ServerID,
		Provider:  provider.Name(),
		Model:     provider.Model(),
		Iteration: payload.Iteration,
		Cursor:    payload.Cursor,
	}

	entities, err := p.repo.ListUnprocessed(ctx, models.KindItem, payload.ServerID, payload.Cursor, payload.BatchSize)
	if err != nil {
		return summary, fmt.Errorf("failed to list unprocessed items: %w", err)
	}
	items := make([]*models.Item, 0, len(entities))
	for _, e := range entities {
		if it, ok := e.(*models.Item); ok {
			items = append(items, it)
		}
	}
	summary.Fetched = len(items)
	if len(items) == 0 {
		log.Info().Msg("No items waiting for embeddings")
		return summary, nil
	}

	vectors, cached := p.embed(ctx, provider, items)
	summary.Cached = cached

	for i, it := range items {
		if vectors[i] == nil {
			summary.Failed++
			continue
		}
		if err := p.repo.SaveItemEmbedding(ctx, it.Key(), vectors[i], provider.Model()); err != nil {
			return summary, fmt.Errorf("failed to store embedding for %s: %w", it.ExternalID, err)
		}
		summary.Embedded++
	}
	// The cursor moves past failed items too; they stay unprocessed for a
	// later run.
	summary.Cursor = items[len(items)-1].ExternalID

	metrics.RecordEmbedding(provider.Name(), "stored", summary.Embedded)
	metrics.RecordEmbedding(provider.Name(), "failed", summary.Failed)

	if payload.ShouldContinue(len(items)) {
		id, err := p.jobs.Enqueue(ctx, payload.Next(summary.Cursor))
		if err != nil {
			return summary, fmt.Errorf("failed to enqueue next batch: %w", err)
		}
		summary.NextJobID = id
	}

	log.Info().
		Int("iteration", payload.Iteration).
		Int("embedded", summary.Embedded).
		Int("cached", summary.Cached).
		Int("failed", summary.Failed).
		Str("next_job_id", summary.NextJobID).
		Msg("Embedding batch processed")
	return summary, nil
}

// embed returns one normalized vector per item, nil where the provider
// failed, and how many came from the cache.
func (p *Pipeline) embed(ctx context.Context, provider Provider, items []*models.Item) ([][]float32, int) {
	vectors := make([][]float32, len(items))
	keys := make([]string, len(items))
	var (
		missing []int
		inputs  []string
		cached  int
	)
	for i, it := range items {
		input := BuildInput(it, p.cfg.MaxInputChars)
		keys[i] = CacheKey(provider.Model(), input)
		if p.cache != nil {
			if v, ok := p.cache.Get(ctx, keys[i]); ok && len(v) == p.cfg.Dimensions {
				vectors[i] = v
				cached++
				continue
			}
		}
		missing = append(missing, i)
		inputs = append(inputs, input)
	}
	if len(inputs) == 0 {
		return vectors, cached
	}

	raw, err := provider.Embed(ctx, inputs)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("provider", provider.Name()).Msg("Embedding provider reported failures")
	}
	for j, idx := range missing {
		if j >= len(raw) || raw[j] == nil {
			continue
		}
		vec := Normalize(raw[j], p.cfg.Dimensions)
		vectors[idx] = vec
		if p.cache != nil {
			p.cache.Set(ctx, keys[idx], vec)
		}
	}
	return vectors, cached
}

// startHeartbeat writes a processing heartbeat row on every tick until the
// returned func is called.
func (p *Pipeline) startHeartbeat(ctx context.Context, payload jobs.GenerateEmbeddingsPayload) func() {
	interval := p.cfg.HeartbeatInterval
	if interval <= 0 || interval > maxHeartbeatInterval {
		interval = maxHeartbeatInterval
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				row := &models.JobResult{
					JobID:     payload.ID,
					JobName:   string(payload.JobName()),
					ServerID:  payload.ServerID,
					Status:    models.JobStatusProcessing,
					Heartbeat: true,
					CreatedAt: p.now(),
				}
				if err := p.results.InsertJobResult(context.WithoutCancel(ctx), row); err != nil {
					logging.Ctx(ctx).Warn().Err(err).Msg("Failed to write heartbeat")
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
