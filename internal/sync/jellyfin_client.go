// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

/*
jellyfin_client.go - Jellyfin REST API Client

Read-only client for the endpoints MediaSync consumes. Every request:
  - waits on a token-bucket limiter shared by all calls to the server
  - retries HTTP 429 with exponential backoff, honoring Retry-After
  - retries 5xx and network failures with the same backoff
  - fails fast on other statuses with a typed *APIError

API Reference: https://api.jellyfin.org/
*/

package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/metrics"
	"github.com/tomtom215/mediasync/internal/models"
)

// Client is the media server surface used by the sync modules and the
// session poller. JellyfinClient and CircuitBreakerClient implement it.
type Client interface {
	GetSystemInfo(ctx context.Context) (*models.JellyfinSystemInfo, error)
	GetUsers(ctx context.Context) ([]models.JellyfinUser, error)
	GetLibraries(ctx context.Context) ([]models.JellyfinLibrary, error)
	GetItems(ctx context.Context, q ItemsQuery) (*models.JellyfinItemsResponse, error)
	GetActivityLog(ctx context.Context, startIndex, limit int) (*models.JellyfinActivityLogResponse, error)
	GetSessions(ctx context.Context) ([]models.JellyfinSession, error)
}

var _ Client = (*JellyfinClient)(nil)

// ItemsQuery selects one page of /Items. With ParentID empty and Recent
// set, the newest items across all libraries are returned.
type ItemsQuery struct {
	ParentID   string
	StartIndex int
	Limit      int
	Recent     bool
}

// itemFields are the optional BaseItemDto fields the item sync stores.
const itemFields = "Overview,Genres,People,DateCreated,Etag,ProductionYear,CommunityRating,OfficialRating,ParentId"

// itemTypes limits /Items to playable or browsable content.
const itemTypes = "Movie,Series,Episode,MusicAlbum,Audio,MusicVideo"

// JellyfinClient talks to one Jellyfin server.
type JellyfinClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

// NewJellyfinClient creates a client for baseURL authenticated with apiKey.
func NewJellyfinClient(baseURL, apiKey string, cfg config.ClientConfig) *JellyfinClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}

	return &JellyfinClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		maxRetries: cfg.MaxRetries,
		baseDelay:  baseDelay,
	}
}

// GetSystemInfo retrieves /System/Info.
func (c *JellyfinClient) GetSystemInfo(ctx context.Context) (*models.JellyfinSystemInfo, error) {
	var info models.JellyfinSystemInfo
	if err := c.getJSON(ctx, "system_info", "/System/Info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetUsers retrieves every user with its policy flags.
func (c *JellyfinClient) GetUsers(ctx context.Context) ([]models.JellyfinUser, error) {
	var users []models.JellyfinUser
	if err := c.getJSON(ctx, "users", "/Users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// GetLibraries retrieves the top-level media folders.
func (c *JellyfinClient) GetLibraries(ctx context.Context) ([]models.JellyfinLibrary, error) {
	var resp models.JellyfinLibrariesResponse
	if err := c.getJSON(ctx, "libraries", "/Library/MediaFolders", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// GetItems retrieves one page of items.
func (c *JellyfinClient) GetItems(ctx context.Context, q ItemsQuery) (*models.JellyfinItemsResponse, error) {
	params := url.Values{}
	params.Set("Recursive", "true")
	params.Set("Fields", itemFields)
	params.Set("IncludeItemTypes", itemTypes)
	params.Set("StartIndex", strconv.Itoa(q.StartIndex))
	params.Set("Limit", strconv.Itoa(q.Limit))
	if q.ParentID != "" {
		params.Set("ParentId", q.ParentID)
	}
	if q.Recent {
		params.Set("SortBy", "DateCreated")
		params.Set("SortOrder", "Descending")
	} else {
		params.Set("SortBy", "SortName")
		params.Set("SortOrder", "Ascending")
	}

	var resp models.JellyfinItemsResponse
	if err := c.getJSON(ctx, "items", "/Items", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetActivityLog retrieves one page of the activity log, newest first.
func (c *JellyfinClient) GetActivityLog(ctx context.Context, startIndex, limit int) (*models.JellyfinActivityLogResponse, error) {
	params := url.Values{}
	params.Set("startIndex", strconv.Itoa(startIndex))
	params.Set("limit", strconv.Itoa(limit))

	var resp models.JellyfinActivityLogResponse
	if err := c.getJSON(ctx, "activity_log", "/System/ActivityLog/Entries", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSessions retrieves all sessions, idle ones included.
func (c *JellyfinClient) GetSessions(ctx context.Context) ([]models.JellyfinSession, error) {
	var sessions []models.JellyfinSession
	if err := c.getJSON(ctx, "sessions", "/Sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *JellyfinClient) getJSON(ctx context.Context, endpoint, path string, params url.Values, out interface{}) error {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	resp, err := c.doWithRetry(ctx, endpoint, fullURL)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// doWithRetry returns a 2xx response or an error. The caller closes the body.
func (c *JellyfinClient) doWithRetry(ctx context.Context, endpoint, fullURL string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}

		resp, err := c.do(ctx, fullURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.MediaServerRequests.WithLabelValues(endpoint, "network_error").Inc()
			lastErr = fmt.Errorf("%s request failed: %w", endpoint, err)
			if !c.backoff(ctx, endpoint, "network", attempt, "") {
				break
			}
			continue
		}

		metrics.MediaServerRequests.WithLabelValues(endpoint, statusClass(resp.StatusCode)).Inc()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: readBodyForError(resp.Body)}
		_ = resp.Body.Close()
		if !apiErr.Transient() {
			return nil, apiErr
		}

		lastErr = apiErr
		reason := "server_error"
		if resp.StatusCode == http.StatusTooManyRequests {
			reason = "rate_limited"
			lastErr = fmt.Errorf("%w: %w", ErrRateLimited, apiErr)
		}
		if !c.backoff(ctx, endpoint, reason, attempt, resp.Header.Get("Retry-After")) {
			break
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return nil, lastErr
}

// backoff sleeps before the next attempt. It returns false when no attempt
// remains or the context ended.
func (c *JellyfinClient) backoff(ctx context.Context, endpoint, reason string, attempt int, retryAfter string) bool {
	if attempt >= c.maxRetries {
		return false
	}

	delay := c.baseDelay * (1 << attempt)
	if retryAfter != "" {
		if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
			delay = time.Duration(seconds) * time.Second
		}
	}

	metrics.MediaServerRetries.WithLabelValues(reason).Inc()
	logging.Ctx(ctx).Warn().
		Str("endpoint", endpoint).
		Str("reason", reason).
		Dur("retry_delay", delay).
		Int("attempt", attempt+1).
		Int("max_retries", c.maxRetries).
		Msg("Media server request failed, retrying")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *JellyfinClient) do(ctx context.Context, fullURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Emby-Token", c.apiKey)
	req.Header.Set("X-Emby-Client", "MediaSync")
	req.Header.Set("X-Emby-Device-Name", "MediaSync")
	req.Header.Set("X-Emby-Device-Id", "mediasync")
	req.Header.Set("X-Emby-Client-Version", "1.0.0")
	req.Header.Set("Accept", "application/json")

	return c.httpClient.Do(req)
}

// readBodyForError reads at most 512 bytes of an error body.
func readBodyForError(body io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// IsAuthError reports whether err carries a 401/403 from the media server.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}
