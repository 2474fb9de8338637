// Package publisher posts approved social content to the configured
// endpoint. Transient endpoint failures are retried with backoff; in dry
// run mode nothing leaves the machine and the caller gets a dry_run result.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"valet/internal/config"
	"valet/internal/retry"
	"valet/internal/services"
)

// Publish results reported to the audit trail.
const (
	ResultPosted = "posted"
	ResultDryRun = "dry_run"
)

const previewLimit = 120

// Client publishes posts over HTTP with a bearer token.
type Client struct {
	endpoint string
	token    string
	dryRun   bool
	client   *http.Client
	policy   retry.Policy
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client (useful for tests).
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.client = httpClient
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		c.policy = c.policy.WithSleeper(sleeper)
	}
}

// New builds a Client from publish settings.
func New(cfg config.Publish, opts ...Option) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		endpoint: strings.TrimSpace(cfg.Endpoint),
		token:    strings.TrimSpace(cfg.Token),
		dryRun:   cfg.DryRun,
		client:   &http.Client{Timeout: timeout},
		policy: retry.NewPolicy(
			cfg.RetryMaxAttempts,
			time.Duration(cfg.RetryBaseSeconds)*time.Second,
			time.Duration(cfg.RetryMaxSeconds)*time.Second,
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DryRun reports whether the client is in dry run mode.
func (c *Client) DryRun() bool { return c.dryRun }

type postRequest struct {
	Platform string `json:"platform"`
	Content  string `json:"content"`
}

// Publish sends one post to the endpoint and returns the audit result. In
// dry run mode the endpoint is never contacted.
func (c *Client) Publish(ctx context.Context, platform, content string) (string, error) {
	platform = strings.TrimSpace(platform)
	if platform == "" {
		return "", services.Wrap(services.ErrValidation, "publisher", "publish", "platform required", nil)
	}
	if c.dryRun {
		return ResultDryRun, nil
	}
	if c.endpoint == "" {
		return "", services.Wrap(services.ErrConfiguration, "publisher", "publish", "publish endpoint not configured", nil)
	}
	if c.token == "" {
		return "", services.Wrap(services.ErrConfiguration, "publisher", "publish",
			fmt.Sprintf("missing token for %s", platform), nil)
	}

	body, err := json.Marshal(postRequest{Platform: platform, Content: content})
	if err != nil {
		return "", fmt.Errorf("encode post: %w", err)
	}

	err = c.policy.Do(ctx, func(ctx context.Context) error {
		return c.post(ctx, body)
	})
	if err != nil {
		return "", err
	}
	return ResultPosted, nil
}

// Preview returns the audit-safe prefix of post content, truncated on a
// rune boundary so multi-byte text is never split mid-character.
func Preview(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= previewLimit {
		return content
	}
	return string([]rune(content)[:previewLimit])
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return services.Wrap(services.ErrTransient, "publisher", "post", "endpoint timeout", err)
		}
		return services.Wrap(services.ErrTransient, "publisher", "post", "endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	message := fmt.Sprintf("endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	if transientStatus(resp.StatusCode) {
		return services.Wrap(services.ErrTransient, "publisher", "post", message, nil)
	}
	return services.Wrap(services.ErrValidation, "publisher", "post", message, nil)
}

func transientStatus(code int) bool {
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
