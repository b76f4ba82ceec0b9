// Package rest is a JSON over HTTP client for remote record stores with bulk job support.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/comfforts/logger"
)

const (
	ERR_MISSING_BASE_URL = "rest: base url is required"
	ERR_INVALID_BASE_URL = "rest: invalid base url"
	ERR_MAX_RETRIES      = "rest: max retries exceeded"
	ERR_DECODE_RESPONSE  = "rest: error decoding response"
	ERR_CREATE_REQUEST   = "rest: error creating request"
)

var (
	ErrMissingBaseURL = errors.New(ERR_MISSING_BASE_URL)
	ErrInvalidBaseURL = errors.New(ERR_INVALID_BASE_URL)
	ErrMaxRetries     = errors.New(ERR_MAX_RETRIES)
	ErrDecodeResponse = errors.New(ERR_DECODE_RESPONSE)
	ErrCreateRequest  = errors.New(ERR_CREATE_REQUEST)
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultBackoff    = 500 * time.Millisecond
	DefaultBackoffMax = 10 * time.Second
)

type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	BackoffMax time.Duration
}

// Client sends JSON requests with retry and backoff.
type Client struct {
	http       *http.Client
	baseURL    *url.URL
	authHeader string
	maxRetries int
	backoff    time.Duration
	backoffMax time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBaseURL, cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = DefaultBackoffMax
	}

	authHeader := ""
	if cfg.Token != "" {
		authHeader = "Bearer " + cfg.Token
	}

	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		baseURL:    u,
		authHeader: authHeader,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		backoffMax: cfg.BackoffMax,
	}, nil
}

// HTTPError is a non success response.
type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// GetHTTPError extracts an HTTPError from err.
func GetHTTPError(err error) (*HTTPError, bool) {
	var httpErr *HTTPError
	ok := errors.As(err, &httpErr)
	return httpErr, ok
}

// Do sends an idempotent request with in as the JSON body and decodes the response into out.
// Network errors, 429 and 5xx responses are retried with exponential backoff.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	return c.send(ctx, method, path, in, out, isRetryable)
}

// Submit sends a request that must not be applied twice, such as a batch upload
// or a record write. Only throttled requests and requests that never reached
// the server are retried.
func (c *Client) Submit(ctx context.Context, method, path string, in, out any) error {
	return c.send(ctx, method, path, in, out, isUnsent)
}

func (c *Client) send(ctx context.Context, method, path string, in, out any, retryable func(error) bool) error {
	l, err := logger.LoggerFromContext(ctx)
	if err != nil {
		l = logger.GetSlogLogger()
	}

	var body []byte
	if in != nil {
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("rest: marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoffFor(attempt, lastErr)
			l.Debug("Client.send - retrying request", "method", method, "path", path, "attempt", attempt, "wait", wait.String())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		err := c.doOnce(ctx, method, path, body, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	l.Error("Client.send - max retries exceeded", "method", method, "path", path, "error", lastErr.Error())
	return fmt.Errorf("%w: %w", ErrMaxRetries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateRequest, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authHeader != "" {
		req.Header.Set("Authorization", c.authHeader)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("rest: http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrDecodeResponse, err)
	}
	return nil
}

func (c *Client) backoffFor(attempt int, lastErr error) time.Duration {
	if httpErr, ok := GetHTTPError(lastErr); ok && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}
	wait := c.backoff * time.Duration(1<<uint(attempt-1))
	return min(wait, c.backoffMax)
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrDecodeResponse) || errors.Is(err, ErrCreateRequest) {
		return false
	}
	httpErr, ok := GetHTTPError(err)
	if !ok {
		return true
	}
	return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
}

// isUnsent reports whether the request was rejected before the server applied it:
// a 429 response or a failure to connect.
func isUnsent(err error) bool {
	if httpErr, ok := GetHTTPError(err); ok {
		return httpErr.StatusCode == http.StatusTooManyRequests
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
