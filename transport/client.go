// Package transport is the HTTP engine beneath the client: request
// encoding and compression, bearer auth, bounded retries, and
// concurrent batch dispatch.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBaseURL       = "https://api.nixtla.io"
	DefaultTimeout       = 60 * time.Second
	DefaultMaxRetries    = 6
	DefaultRetryInterval = 10 * time.Second
	DefaultMaxWaitTime   = 360 * time.Second

	// bodies above the threshold are zstd compressed; bodies above the
	// cap are rejected outright
	DefaultCompressionThreshold = 1 << 20
	DefaultMaxPayloadBytes      = 200 << 20

	defaultMaxWorkers = 10
)

// Options configures a Client. The zero value of any field falls back
// to the package default.
type Options struct {
	// APIKey is sent as a bearer token on every request.
	APIKey string

	BaseURL string

	// Timeout bounds each individual HTTP call, not the whole retry
	// budget.
	Timeout time.Duration

	// MaxRetries caps the number of attempts per request.
	MaxRetries int

	// RetryInterval is the fixed pause between attempts.
	RetryInterval time.Duration

	// MaxWaitTime caps the cumulative time spent retrying one request.
	MaxWaitTime time.Duration

	CompressionThreshold int
	MaxPayloadBytes      int

	// MaxWorkers bounds concurrent batch dispatch.
	MaxWorkers int

	UserAgent string

	Logger  *logrus.Logger
	Metrics *Metrics

	// HTTPClient overrides the underlying client, mainly for tests.
	HTTPClient *http.Client
}

// NewDefaultOptions returns Options with every tunable at its default.
// The APIKey still has to be set.
func NewDefaultOptions() *Options {
	return &Options{
		BaseURL:              DefaultBaseURL,
		Timeout:              DefaultTimeout,
		MaxRetries:           DefaultMaxRetries,
		RetryInterval:        DefaultRetryInterval,
		MaxWaitTime:          DefaultMaxWaitTime,
		CompressionThreshold: DefaultCompressionThreshold,
		MaxPayloadBytes:      DefaultMaxPayloadBytes,
		MaxWorkers:           defaultMaxWorkers,
	}
}

// Client talks to the forecasting service. Safe for concurrent use.
type Client struct {
	opt     Options
	http    *http.Client
	logger  *logrus.Logger
	metrics *Metrics
	encoder *zstd.Encoder
}

// New returns a Client for the given options. A nil opt uses defaults,
// which fails here since there is no API key to send.
func New(opt *Options) (*Client, error) {
	if opt == nil {
		opt = NewDefaultOptions()
	}
	o := *opt
	if o.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimSuffix(o.BaseURL, "/")
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryInterval == 0 {
		o.RetryInterval = DefaultRetryInterval
	}
	if o.MaxWaitTime == 0 {
		o.MaxWaitTime = DefaultMaxWaitTime
	}
	if o.CompressionThreshold == 0 {
		o.CompressionThreshold = DefaultCompressionThreshold
	}
	if o.MaxPayloadBytes == 0 {
		o.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if o.MaxWorkers == 0 {
		o.MaxWorkers = defaultMaxWorkers
	}

	logger := o.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	httpClient := o.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("initializing compressor: %w", err)
	}
	return &Client{
		opt:     o,
		http:    httpClient,
		logger:  logger,
		metrics: o.Metrics,
		encoder: enc,
	}, nil
}

// Post encodes payload, compresses it when large, and decodes the
// response into out. Transient failures are retried per the client's
// retry budget.
func (c *Client) Post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request for %s: %w", endpoint, err)
	}
	if len(body) > c.opt.MaxPayloadBytes {
		return fmt.Errorf("%d bytes for %s, %w", len(body), endpoint, ErrPayloadTooLarge)
	}

	compressed := false
	if len(body) > c.opt.CompressionThreshold {
		body = c.encoder.EncodeAll(body, nil)
		compressed = true
	}

	return c.withRetry(ctx, endpoint, func() error {
		return c.do(ctx, http.MethodPost, endpoint, body, compressed, nil, out)
	})
}

// Get issues a GET with optional query parameters, retrying transient
// failures.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, out any) error {
	return c.withRetry(ctx, endpoint, func() error {
		return c.do(ctx, http.MethodGet, endpoint, nil, false, params, out)
	})
}

// Delete issues a DELETE and reports whether the resource was removed
// (a 204 response).
func (c *Client) Delete(ctx context.Context, endpoint string) (bool, error) {
	deleted := false
	err := c.withRetry(ctx, endpoint, func() error {
		code, err := c.doStatus(ctx, http.MethodDelete, endpoint)
		deleted = code == http.StatusNoContent
		return err
	})
	return deleted, err
}

// PostAll dispatches one request per payload with bounded concurrency
// and returns the responses in payload order. Requests are
// independent: a terminal failure in one does not cancel the others,
// but any failure fails the whole call.
func (c *Client) PostAll(ctx context.Context, endpoint string, payloads []ForecastRequest) ([]ForecastResponse, error) {
	results := make([]ForecastResponse, len(payloads))
	errs := make([]error, len(payloads))

	var g errgroup.Group
	g.SetLimit(min(c.opt.MaxWorkers, len(payloads)))
	for i := range payloads {
		g.Go(func() error {
			errs[i] = c.Post(ctx, endpoint, &payloads[i], &results[i])
			return nil
		})
	}
	g.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) withRetry(ctx context.Context, endpoint string, fn func() error) error {
	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		err := fn()
		if err == nil {
			return struct{}{}, nil
		}
		if !Retryable(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		c.logger.WithError(err).WithFields(logrus.Fields{
			"endpoint": endpoint,
			"attempt":  attempt,
		}).Error("request attempt failed")
		c.metrics.incRetry(endpoint)
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.opt.RetryInterval)),
		backoff.WithMaxTries(uint(c.opt.MaxRetries)),
		backoff.WithMaxElapsedTime(c.opt.MaxWaitTime),
	)
	return err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, compressed bool, params url.Values, out any) error {
	resp, raw, err := c.roundTrip(ctx, method, endpoint, body, compressed, params)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}

	// some endpoints wrap the result in a data envelope
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Data) > 0 {
		raw = envelope.Data
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) doStatus(ctx context.Context, method, endpoint string) (int, error) {
	resp, raw, err := c.roundTrip(ctx, method, endpoint, nil, false, nil)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return resp.StatusCode, apiError(resp.StatusCode, raw)
	}
	return resp.StatusCode, nil
}

func (c *Client) roundTrip(ctx context.Context, method, endpoint string, body []byte, compressed bool, params url.Values) (*http.Response, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opt.Timeout)
	defer cancel()

	u := c.opt.BaseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("building %s %s: %w", method, endpoint, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.opt.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if compressed {
		req.Header.Set("Content-Encoding", "zstd")
	}
	if c.opt.UserAgent != "" {
		req.Header.Set("User-Agent", c.opt.UserAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.observeRequest(endpoint, 0, time.Since(start))
		return nil, nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.observeRequest(endpoint, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s response: %w", endpoint, err)
	}
	return resp, raw, nil
}

// apiError builds an APIError, pulling out the structured error
// document when the body carries one.
func apiError(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(raw)}
	var doc struct {
		Detail  string `json:"detail"`
		Code    string `json:"code"`
		Message string `json:"message"`
		Support string `json:"support"`
	}
	if err := json.Unmarshal(raw, &doc); err == nil {
		apiErr.Code = doc.Code
		apiErr.Support = doc.Support
		switch {
		case doc.Message != "":
			apiErr.Message = doc.Message
		case doc.Detail != "":
			apiErr.Message = doc.Detail
		}
	}
	return apiErr
}
