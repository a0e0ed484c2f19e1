package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

// Backoff constants for GET retries.
const (
	baseBackoff    = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFraction = 0.25

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 4 << 10
)

// Options tunes a Client. Zero values select defaults.
type Options struct {
	UserAgent  string
	MaxRetries int
	Timeout    time.Duration
}

// Client talks JSON to the backend. GET lookups are retried with exponential
// backoff and identical concurrent GETs share one request. PUTs are never
// retried: an update that reached the server must not be replayed.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger
	userAgent  string
	maxRetries int

	group singleflight.Group

	// sleepFunc waits between retries. Tests override it to avoid delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates a backend client. token may be nil for an
// unauthenticated backend.
func NewClient(baseURL string, httpClient *http.Client, token TokenSource, logger *slog.Logger, opts Options) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	if opts.UserAgent == "" {
		opts.UserAgent = "appdist"
	}

	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		sleepFunc:  timeSleep,
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetJSON fetches path with query and decodes the JSON body into out.
// Concurrent calls for the same path and query share one request.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	target := path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	v, err, shared := c.group.Do(target, func() (any, error) {
		return c.get(ctx, target)
	})
	if err != nil {
		return err
	}

	if shared {
		c.logger.Debug("lookup shared with in-flight request", slog.String("path", target))
	}

	dec := json.NewDecoder(bytes.NewReader(v.([]byte)))
	dec.UseNumber()

	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("backend: decoding %s: %w", target, err)
	}

	return nil
}

// PutJSON sends body as JSON with a single PUT and returns the decoded
// response, or nil for an empty response body.
func (c *Client) PutJSON(ctx context.Context, path string, body any) (any, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("backend: encoding %s body: %w", path, err)
	}

	resp, err := c.doOnce(ctx, http.MethodPut, path, data)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("backend: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("backend: PUT %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("backend: reading PUT %s response: %w", path, err)
	}

	if !isSuccess(resp.StatusCode) {
		return nil, c.statusError(http.MethodPut, path, resp.StatusCode, raw)
	}

	c.logger.Debug("update accepted",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
	)

	return decodeAny(raw)
}

// get performs a GET with retry and returns the response body.
func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	var attempt int

	for {
		resp, err := c.doOnce(ctx, http.MethodGet, target, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("backend: request canceled: %w", ctx.Err())
			}

			if attempt < c.maxRetries {
				backoff := c.calcBackoff(attempt)
				c.logger.Warn("retrying after network error",
					slog.String("path", target),
					slog.Int("attempt", attempt+1),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)

				if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
					return nil, fmt.Errorf("backend: request canceled: %w", sleepErr)
				}

				attempt++

				continue
			}

			return nil, fmt.Errorf("backend: GET %s failed after %d retries: %w", target, attempt, err)
		}

		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if isSuccess(resp.StatusCode) {
			if readErr != nil {
				return nil, fmt.Errorf("backend: reading GET %s response: %w", target, readErr)
			}

			return raw, nil
		}

		if isRetryable(resp.StatusCode) && attempt < c.maxRetries {
			backoff := c.retryBackoff(resp, attempt)
			c.logger.Warn("retrying after HTTP error",
				slog.String("path", target),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
			)

			if err := c.sleepFunc(ctx, backoff); err != nil {
				return nil, fmt.Errorf("backend: request canceled: %w", err)
			}

			attempt++

			continue
		}

		return nil, c.statusError(http.MethodGet, target, resp.StatusCode, raw)
	}
}

// doOnce executes a single request.
func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if c.token != nil {
		tok, err := c.token.Token()
		if err != nil {
			return nil, fmt.Errorf("obtaining token: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+tok)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) statusError(method, path string, code int, body []byte) error {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}

	c.logger.Debug("request failed",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", code),
	)

	return &Error{
		Method:     method,
		Path:       path,
		StatusCode: code,
		Message:    strings.TrimSpace(string(body)),
		Err:        classifyStatus(code),
	}
}

// retryBackoff honors Retry-After on 429 responses.
func (c *Client) retryBackoff(resp *http.Response, attempt int) time.Duration {
	if resp.StatusCode == http.StatusTooManyRequests {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return c.calcBackoff(attempt)
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(baseBackoff) * math.Pow(backoffFactor, float64(attempt))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand

	return time.Duration(backoff + jitter)
}

func isSuccess(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// decodeAny decodes a JSON body of any shape. Numbers keep full precision
// as json.Number. A body that is not JSON is returned as a string.
func decodeAny(raw []byte) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		var syntax *json.SyntaxError
		if errors.As(err, &syntax) {
			return string(raw), nil
		}

		return nil, fmt.Errorf("backend: decoding response: %w", err)
	}

	return v, nil
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
