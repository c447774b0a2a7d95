// Package rest implements the HTTP client for the managed search service.
//
// The client owns a single connection pool shared across components of one
// process. Definition writes go through idempotent PUTs; document batches
// are idempotent via merge-or-upload actions, so both are safe to retry.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/semaphore"

	"github.com/kestrelsearch/kestrel/internal/config"
	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

// retryableStatuses are HTTP statuses retried with backoff.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client is the REST client for the managed search service.
type Client struct {
	endpoint   string
	apiKey     string
	apiVersion string

	httpClient *http.Client
	transport  *http.Transport
	logger     *slog.Logger

	attempts       int
	initialDelay   time.Duration
	requestTimeout time.Duration

	// sem bounds concurrent HTTP calls to the service.
	sem *semaphore.Weighted
}

// NewClient creates a REST client from configuration.
func NewClient(cfg config.Config, logger *slog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, kerrors.New(kerrors.ErrCodeConfigMissing, "endpoint is required", nil)
	}
	if cfg.APIKey == "" {
		return nil, kerrors.New(kerrors.ErrCodeConfigMissing, "api_key is required", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	attempts := cfg.Retry.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := cfg.Retry.Delay
	if delay <= 0 {
		delay = time.Second
	}
	timeout := cfg.Retry.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxConcurrent := cfg.Upload.MaxConcurrentRequests
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}

	transport := &http.Transport{
		MaxIdleConns:        maxConcurrent,
		MaxIdleConnsPerHost: maxConcurrent,
		MaxConnsPerHost:     maxConcurrent * 2,
		IdleConnTimeout:     30 * time.Second,
	}

	return &Client{
		endpoint:       strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:         cfg.APIKey,
		apiVersion:     cfg.APIVersion,
		httpClient:     &http.Client{Transport: transport},
		transport:      transport,
		logger:         logger,
		attempts:       attempts,
		initialDelay:   delay,
		requestTimeout: timeout,
		sem:            semaphore.NewWeighted(int64(maxConcurrent)),
	}, nil
}

// Do issues a request against the service and returns the raw JSON body.
// The configured api-version is always appended; query may be nil.
// body is JSON-encoded when non-nil. A nil, nil return means HTTP 204.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, kerrors.ValidationError("request body is not serializable", err)
		}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, kerrors.New(kerrors.ErrCodeTimeout, "cancelled waiting for request slot", err)
	}
	defer c.sem.Release(1)

	u := c.buildURL(path, query)

	var result json.RawMessage
	operation := func() error {
		res, err := c.doOnce(ctx, method, u, payload)
		if err != nil {
			return err
		}
		result = res
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = 30 * time.Second

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.attempts-1)), ctx))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		err = c.classify(ctx, method, path, err)
		c.logger.Error("request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("code", kerrors.GetCode(err)))
		return nil, err
	}
	return result, nil
}

// doOnce performs a single HTTP exchange. Non-retryable failures are
// wrapped in backoff.Permanent so the retry loop stops immediately.
func (c *Client) doOnce(ctx context.Context, method, u string, payload []byte) (json.RawMessage, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u, reader)
	if err != nil {
		return nil, backoff.Permanent(kerrors.InternalError("cannot build request", err))
	}
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		// Network errors are retryable.
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if len(data) == 0 || resp.StatusCode == http.StatusNoContent {
			return nil, nil
		}
		return json.RawMessage(data), nil
	case retryableStatuses[resp.StatusCode]:
		return nil, &statusError{status: resp.StatusCode}
	default:
		return nil, backoff.Permanent(&statusError{status: resp.StatusCode})
	}
}

// buildURL joins the endpoint, path, query, and api-version.
func (c *Client) buildURL(path string, query url.Values) string {
	q := url.Values{}
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("api-version", c.apiVersion)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.endpoint + path + "?" + q.Encode()
}

// classify maps a terminal failure onto the error taxonomy.
// Response bodies never reach the error message.
func (c *Client) classify(ctx context.Context, method, path string, err error) error {
	var se *statusError
	if errors.As(err, &se) {
		if se.status == http.StatusTooManyRequests {
			return kerrors.New(kerrors.ErrCodeRateLimited,
				fmt.Sprintf("%s %s throttled after %d attempts", method, path, c.attempts), err)
		}
		return kerrors.HTTPStatusError(method, path, se.status)
	}
	if ctx.Err() != nil {
		return kerrors.New(kerrors.ErrCodeTimeout,
			fmt.Sprintf("%s %s cancelled or timed out", method, path), ctx.Err())
	}
	return kerrors.RequestError(fmt.Sprintf("%s %s failed after %d attempts", method, path, c.attempts), err)
}

// Cleanup closes idle connections in the shared pool.
func (c *Client) Cleanup() {
	c.transport.CloseIdleConnections()
}

// statusError carries an HTTP status through the retry loop.
type statusError struct {
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http status %d", e.status)
}
