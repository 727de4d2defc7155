package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync/atomic"

	"fleetplane/internal/config"
)

// ============================================================================
// SURFACES
// ============================================================================

// Surface selects which authenticated API base a request targets.
type Surface int

const (
	// SurfaceApplication is the administrative surface (fleet-wide).
	SurfaceApplication Surface = iota
	// SurfaceClient is the per-tenant surface (power, console, backups).
	SurfaceClient
)

func (s Surface) String() string {
	if s == SurfaceApplication {
		return "application"
	}
	return "client"
}

func (s Surface) basePath() string {
	if s == SurfaceApplication {
		return "/api/application"
	}
	return "/api/client"
}

// ============================================================================
// METRICS
// ============================================================================

type ClientMetrics struct {
	requestsTotal    atomic.Uint64
	requestsAdmitted atomic.Uint64
	requestsRejected atomic.Uint64
	remoteErrors     atomic.Uint64
	transportErrors  atomic.Uint64
}

func (m *ClientMetrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"requests_total":    m.requestsTotal.Load(),
		"requests_admitted": m.requestsAdmitted.Load(),
		"requests_rejected": m.requestsRejected.Load(),
		"remote_errors":     m.remoteErrors.Load(),
		"transport_errors":  m.transportErrors.Load(),
	}
}

// ============================================================================
// CLIENT
// ============================================================================

// Client is the single chokepoint for outbound panel calls: it owns the
// credentials, the shared admission window, and the status-to-error mapping.
// It never retries and never swallows errors; callers decide backoff.
type Client struct {
	baseURL   string
	appKey    string
	clientKey string
	http      *http.Client
	window    *Window
	metrics   *ClientMetrics
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.PanelURL, "/"),
		appKey:    cfg.AppAPIKey,
		clientKey: cfg.ClientAPIKey,
		http:      &http.Client{Timeout: cfg.RequestTimeout},
		window:    NewWindow(cfg.RateLimitMaxRequests, cfg.RateLimitWindow),
		metrics:   &ClientMetrics{},
	}
}

func (c *Client) Window() *Window {
	return c.window
}

func (c *Client) Metrics() *ClientMetrics {
	return c.metrics
}

// remoteError is the error envelope the panel returns on failures.
type remoteError struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// Request dispatches one call against the selected surface and returns the
// raw response body. Admission control runs before dispatch; every
// dispatched attempt (success or transport failure) is stamped on the
// shared window, while admission rejections are not.
func (c *Client) Request(ctx context.Context, surface Surface, method, path string, body interface{}) (json.RawMessage, error) {
	c.metrics.requestsTotal.Add(1)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, ErrInvalidRequest(err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+surface.basePath()+path, reader)
	if err != nil {
		return nil, ErrInvalidRequest(err)
	}

	key := c.appKey
	if surface == SurfaceClient {
		key = c.clientKey
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if ok, inWindow := c.window.TryAcquire(); !ok {
		c.metrics.requestsRejected.Add(1)
		return nil, ErrRateLimitExceeded(inWindow, c.window.maxRequests)
	}
	c.metrics.requestsAdmitted.Add(1)

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.transportErrors.Add(1)
		return nil, ErrUnreachable(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.transportErrors.Add(1)
		return nil, ErrUnreachable(err)
	}

	if resp.StatusCode >= 400 {
		c.metrics.remoteErrors.Add(1)
		return nil, c.mapStatus(resp.StatusCode, surface, method, path, data)
	}

	return data, nil
}

// mapStatus translates an HTTP failure into the taxonomy.
func (c *Client) mapStatus(status int, surface Surface, method, path string, body []byte) *APIError {
	detail := remoteDetail(body)

	var apiErr *APIError
	switch status {
	case http.StatusUnauthorized:
		apiErr = NewError(ErrCodeUnauthorized, "panel rejected the API key", nil)
	case http.StatusForbidden:
		apiErr = NewError(ErrCodeForbidden, "panel denied access to this resource", nil)
	case http.StatusNotFound:
		apiErr = NewError(ErrCodeNotFound, "panel resource not found", nil)
	case http.StatusTooManyRequests:
		apiErr = NewError(ErrCodeRateLimited, "panel reported its rate limit was exceeded", nil)
	case http.StatusInternalServerError:
		apiErr = NewError(ErrCodeRemoteFault, "panel internal error", nil)
	default:
		msg := fmt.Sprintf("panel request failed with status %d", status)
		if detail != "" {
			msg = fmt.Sprintf("panel request failed: %s", detail)
		}
		apiErr = NewError(ErrCodeRequestFailed, msg, nil)
	}

	apiErr.WithContext("status", status).
		WithContext("surface", surface.String()).
		WithContext("method", method).
		WithContext("path", path)
	if detail != "" {
		apiErr.WithContext("detail", detail)
	}
	return apiErr
}

func remoteDetail(body []byte) string {
	var env remoteError
	if err := json.Unmarshal(body, &env); err == nil && len(env.Errors) > 0 {
		return env.Errors[0].Detail
	}
	return ""
}

// ============================================================================
// CONNECTIVITY
// ============================================================================

// TestConnectivity issues one lightweight call per surface. It never
// returns an error; a false means that surface is unusable right now.
func (c *Client) TestConnectivity(ctx context.Context) (appOK, clientOK bool) {
	if _, err := c.Request(ctx, SurfaceApplication, http.MethodGet, "/servers?per_page=1", nil); err != nil {
		log.Printf("[Panel] application surface check failed: %v", err)
	} else {
		appOK = true
	}

	if _, err := c.Request(ctx, SurfaceClient, http.MethodGet, "/account", nil); err != nil {
		log.Printf("[Panel] client surface check failed: %v", err)
	} else {
		clientOK = true
	}

	return appOK, clientOK
}
