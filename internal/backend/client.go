// Package backend provides the HTTP client for the trading bot backend:
// the two polled feeds (status snapshot, trade history) and the
// human-triggered command endpoints.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rewired-gh/kalshideck/internal/models"
)

// ClientConfig tunes retry behavior for the polled feeds.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
}

// Client talks to the bot backend API.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
}

// ChatTurn is one message of the advisor chat transcript.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CommandResult is the backend's acknowledgement of a command. The
// dashboard only needs the success/failure signal and a message to
// surface; any business logic stays on the backend.
type CommandResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// NewClient creates a backend client.
func NewClient(baseURL string, timeout time.Duration, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = 500 * time.Millisecond
	}
	return &Client{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
	}
}

// Status fetches the current bot status snapshot.
func (c *Client) Status(ctx context.Context) (*models.StatusSnapshot, error) {
	var snap models.StatusSnapshot
	if err := c.getJSON(ctx, "/api/status", &snap); err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid status snapshot: %w", err)
	}
	return &snap, nil
}

// Trades fetches the trade history feed. The backend delivers trades
// newest-first.
func (c *Client) Trades(ctx context.Context) (*models.TradeFeed, error) {
	var feed models.TradeFeed
	if err := c.getJSON(ctx, "/api/trades", &feed); err != nil {
		return nil, fmt.Errorf("failed to fetch trades: %w", err)
	}
	return &feed, nil
}

// Start starts the trading loop.
func (c *Client) Start(ctx context.Context) error {
	return c.command(ctx, "/api/start", nil)
}

// Stop stops the trading loop.
func (c *Client) Stop(ctx context.Context) error {
	return c.command(ctx, "/api/stop", nil)
}

// SetMode switches the operating environment (paper or live). The
// confirmation step happens on the dashboard before this is called.
func (c *Client) SetMode(ctx context.Context, env string) error {
	if env != models.EnvPaper && env != models.EnvLive {
		return fmt.Errorf("invalid environment: %q", env)
	}
	return c.command(ctx, "/api/mode", map[string]string{"env": env})
}

// ResetPaper resets the paper trading balance.
func (c *Client) ResetPaper(ctx context.Context) error {
	return c.command(ctx, "/api/reset", nil)
}

// Reconcile triggers a trade ledger reconciliation against the exchange.
func (c *Client) Reconcile(ctx context.Context) error {
	return c.command(ctx, "/api/reconcile", nil)
}

// SaveConfig persists tunable overrides on the backend.
func (c *Client) SaveConfig(ctx context.Context, updates map[string]string) error {
	if len(updates) == 0 {
		return nil
	}
	return c.command(ctx, "/api/config", updates)
}

// Chat sends one advisor chat turn with the prior transcript and returns
// the reply text.
func (c *Client) Chat(ctx context.Context, message string, history []ChatTurn) (string, error) {
	payload := map[string]interface{}{
		"message": message,
		"history": history,
	}
	var reply struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/chat", payload, &reply); err != nil {
		return "", fmt.Errorf("chat failed: %w", err)
	}
	return reply.Response, nil
}

// getJSON performs a GET with linear-backoff retry. Feeds are polled
// repeatedly, so transient failures are worth riding out; commands are
// never retried.
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			resp.Body.Close()
			lastErr = fmt.Errorf("unexpected status: %s", resp.Status)
			continue
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to decode response: %w", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", c.maxRetries, lastErr)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// command posts a fire-and-forget control action. The backend's
// acknowledgement carries the user-facing failure message.
func (c *Client) command(ctx context.Context, path string, payload interface{}) error {
	var result CommandResult
	if err := c.postJSON(ctx, path, payload, &result); err != nil {
		return err
	}
	if !result.OK {
		if result.Message == "" {
			result.Message = "backend rejected command"
		}
		return fmt.Errorf("%s", result.Message)
	}
	return nil
}
