// SPDX-License-Identifier: MIT

// Package runtime is the HTTP client for an Ollama-compatible local
// model runtime. It covers the model catalog, chat (plain and
// streamed), image description, embeddings with memoization, model
// pulls, health pings and spawning the runtime as a managed
// subprocess.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/memscreen/memscreen/internal/cache"
)

// DefaultBaseURL is where a locally installed runtime listens.
const DefaultBaseURL = "http://127.0.0.1:11434"

const (
	defaultTimeout = 60 * time.Second
	connectTimeout = 5 * time.Second
	maxStreamLine  = 1 << 20
	maxErrorBody   = 32 << 10
)

// Client talks to the model runtime. Safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	timeout   time.Duration
	heartbeat time.Duration
	logger    zerolog.Logger
	embeds    cache.Cache

	dims  sync.Map // model name -> probed dimension (int)
	group singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request default timeout. It does not
// apply to streamed responses or model pulls.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithEmbedCache memoizes Embed results in the given cache.
func WithEmbedCache(embeds cache.Cache) Option {
	return func(c *Client) {
		if embeds != nil {
			c.embeds = embeds
		}
	}
}

// WithLogger attaches a logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New constructs a Client for the runtime at baseURL. An empty baseURL
// falls back to DefaultBaseURL. A trailing slash is stripped.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		timeout:   defaultTimeout,
		heartbeat: pullHeartbeat,
		logger:    zerolog.Nop(),
		embeds:    cache.NewNoOpCache(),
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the normalized runtime base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks that the runtime answers on its base URL.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return ctx.Err()
		}
		return unavailable(err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode >= http.StatusInternalServerError {
		return unavailable(fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

// opCtx applies the default timeout unless the caller already set a
// deadline.
func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// postJSON issues a POST with a JSON body. Transport failures are
// classified: caller cancellation passes through, everything else
// becomes ErrUnavailable.
func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, ctx.Err()
		}
		return nil, unavailable(err)
	}
	return resp, nil
}

// responseError turns a non-200 response into an error. The runtime
// reports failures as {"error": "..."}; 5xx means the runtime itself
// is in trouble.
func (c *Client) responseError(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(raw))
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		message = payload.Error
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return unavailable(fmt.Errorf("status %d: %s", resp.StatusCode, message))
	}
	return &StatusError{Code: resp.StatusCode, Message: message}
}
