// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package embedding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mediasync/internal/jobs"
	"github.com/tomtom215/mediasync/internal/metrics"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	defaultProviderTimeout = 60 * time.Second
	defaultProviderBatch   = 32
)

var (
	// ErrUnknownProvider is returned by NewProvider for an unsupported kind.
	ErrUnknownProvider = errors.New("unknown embedding provider")

	// ErrResponseMismatch means a batched response did not carry exactly
	// one vector per input.
	ErrResponseMismatch = errors.New("embedding response does not match request")

	// ErrEmptyEmbedding means the provider answered with a missing or
	// zero-length vector.
	ErrEmptyEmbedding = errors.New("provider returned an empty embedding")

	// ErrStaleJob closes the bookkeeping of a job that stopped sending
	// heartbeats. Only the sweep produces it.
	ErrStaleJob = errors.New("job abandoned: no heartbeat within the grace period")
)

// Provider turns inputs into raw vectors. The result always has one slot
// per input; a nil slot marks an input that failed. The error describes
// the failures, if any.
type Provider interface {
	Name() string
	Model() string
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// NewProvider builds the provider named by spec. apiKey, when set, is sent
// as a bearer token; it never travels in the job payload.
func NewProvider(spec jobs.ProviderSpec, apiKey string, timeout time.Duration) (Provider, error) {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	base := httpProvider{
		baseURL: strings.TrimRight(spec.BaseURL, "/"),
		model:   spec.Model,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
	if base.baseURL == "" || base.model == "" {
		return nil, errors.New("embedding provider needs a base url and a model")
	}

	switch spec.Kind {
	case ProviderOpenAI:
		size := spec.BatchSize
		if size <= 0 {
			size = defaultProviderBatch
		}
		return &OpenAIProvider{httpProvider: base, batchSize: size}, nil
	case ProviderOllama:
		return &OllamaProvider{httpProvider: base}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, spec.Kind)
	}
}

type httpProvider struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

func (p *httpProvider) Model() string { return p.model }

// post sends body as JSON and decodes a 2xx response into out.
func (p *httpProvider) post(ctx context.Context, provider, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	metrics.EmbeddingProviderLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s request failed: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", provider, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", provider, err)
	}
	return nil
}

// OpenAIProvider calls an OpenAI-compatible /v1/embeddings endpoint with
// several inputs per request.
type OpenAIProvider struct {
	httpProvider
	batchSize int
}

func (p *OpenAIProvider) Name() string { return ProviderOpenAI }

type openAIRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed sends sub-batches of batchSize inputs. A failed sub-batch leaves
// its slots nil and the remaining sub-batches still run.
func (p *OpenAIProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	var errs []error
	for start := 0; start < len(inputs); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		end := min(start+p.batchSize, len(inputs))
		vecs, err := p.embedBatch(ctx, inputs[start:end])
		if err != nil {
			errs = append(errs, fmt.Errorf("inputs %d-%d: %w", start, end-1, err))
			continue
		}
		copy(out[start:end], vecs)
	}
	return out, errors.Join(errs...)
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var resp openAIResponse
	if err := p.post(ctx, ProviderOpenAI, "/v1/embeddings", openAIRequest{Model: p.model, Input: batch}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(batch) {
		return nil, fmt.Errorf("%w: sent %d inputs, got %d vectors", ErrResponseMismatch, len(batch), len(resp.Data))
	}
	vecs := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) || vecs[d.Index] != nil {
			return nil, fmt.Errorf("%w: bad index %d", ErrResponseMismatch, d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w at index %d", ErrEmptyEmbedding, d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	return vecs, nil
}

// OllamaProvider calls an Ollama /api/embeddings endpoint once per input.
type OllamaProvider struct {
	httpProvider
}

func (p *OllamaProvider) Name() string { return ProviderOllama }

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed issues one request per input. A failed input leaves its slot nil.
func (p *OllamaProvider) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	var errs []error
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		var resp ollamaResponse
		if err := p.post(ctx, ProviderOllama, "/api/embeddings", ollamaRequest{Model: p.model, Prompt: in}, &resp); err != nil {
			errs = append(errs, fmt.Errorf("input %d: %w", i, err))
			continue
		}
		if len(resp.Embedding) == 0 {
			errs = append(errs, fmt.Errorf("input %d: %w", i, ErrEmptyEmbedding))
			continue
		}
		out[i] = resp.Embedding
	}
	return out, errors.Join(errs...)
}
