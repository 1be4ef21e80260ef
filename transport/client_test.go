package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, srv *httptest.Server, mutate func(*Options)) *Client {
	t.Helper()
	opt := NewDefaultOptions()
	opt.APIKey = "test-key"
	opt.BaseURL = srv.URL
	opt.RetryInterval = time.Millisecond
	opt.MaxWaitTime = time.Second
	if mutate != nil {
		mutate(opt)
	}
	c, err := New(opt)
	require.NoError(t, err)
	return c
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(NewDefaultOptions())
	require.ErrorIs(t, err, ErrNoAPIKey)
}

func TestPost(t *testing.T) {
	var gotAuth, gotContentType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"mean": [1.5, 2.5]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	var out ForecastResponse
	err := c.Post(context.Background(), "/v2/forecast", &ForecastRequest{H: 2, Freq: "D"}, &out)
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, []float64{1.5, 2.5}, out.Mean)

	var req map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &req))
	assert.Equal(t, float64(2), req["h"])
	assert.Equal(t, "D", req["freq"])
	assert.NotContains(t, req, "model")
}

func TestPostUnwrapsDataEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"mean": [3], "sizes": [1]}}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	var out ForecastResponse
	require.NoError(t, c.Post(context.Background(), "/v2/forecast", &ForecastRequest{}, &out))
	assert.Equal(t, []float64{3}, out.Mean)
	assert.Equal(t, []int{1}, out.Sizes)
}

func TestPostAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail": "horizon must be positive"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	err := c.Post(context.Background(), "/v2/forecast", &ForecastRequest{}, &ForecastResponse{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "horizon must be positive", apiErr.Message)
}

func TestPostRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"mean": [1]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	var out ForecastResponse
	require.NoError(t, c.Post(context.Background(), "/v2/forecast", &ForecastRequest{}, &out))
	assert.Equal(t, int64(3), calls.Load())
}

func TestPostDoesNotRetryTerminalFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail": "invalid api key"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	err := c.Post(context.Background(), "/v2/forecast", &ForecastRequest{}, &ForecastResponse{})
	require.Error(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestPostRetryBudgetExhausted(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(t, srv, func(o *Options) { o.MaxRetries = 3 })
	err := c.Post(context.Background(), "/v2/forecast", &ForecastRequest{}, &ForecastResponse{})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, int64(3), calls.Load())
}

func TestPostRetryWaitCapExhausted(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	// the cumulative wait cap binds long before the attempt cap
	c := testClient(t, srv, func(o *Options) {
		o.MaxRetries = 10
		o.RetryInterval = 60 * time.Millisecond
		o.MaxWaitTime = 100 * time.Millisecond
	})
	start := time.Now()
	err := c.Post(context.Background(), "/v2/forecast", &ForecastRequest{}, &ForecastResponse{})
	elapsed := time.Since(start)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	got := calls.Load()
	assert.GreaterOrEqual(t, got, int64(2))
	assert.Less(t, got, int64(10))
	assert.Less(t, elapsed, time.Second)
}

func TestPostCompressesLargeBodies(t *testing.T) {
	var gotEncoding string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding = r.Header.Get("Content-Encoding")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"mean": []}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, func(o *Options) { o.CompressionThreshold = 64 })

	y := make([]float64, 100)
	for i := range y {
		y[i] = float64(i)
	}
	req := &ForecastRequest{Series: &SeriesPayload{Y: y, Sizes: []int{100}}}
	require.NoError(t, c.Post(context.Background(), "/v2/forecast", req, &ForecastResponse{}))

	require.Equal(t, "zstd", gotEncoding)
	dec, err := zstd.NewReader(bytes.NewReader(gotBody))
	require.NoError(t, err)
	defer dec.Close()
	plain, err := io.ReadAll(dec)
	require.NoError(t, err)

	var decoded ForecastRequest
	require.NoError(t, json.Unmarshal(plain, &decoded))
	assert.Equal(t, y, decoded.Series.Y)
}

func TestPostRejectsOversizedPayload(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := testClient(t, srv, func(o *Options) { o.MaxPayloadBytes = 32 })
	req := &ForecastRequest{Series: &SeriesPayload{Y: make([]float64, 100), Sizes: []int{100}}}
	err := c.Post(context.Background(), "/v2/forecast", req, &ForecastResponse{})

	require.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Equal(t, int64(0), calls.Load(), "oversized payloads must be rejected before sending")
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/finetuned_models", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"models": []}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	var out struct {
		Models []any `json:"models"`
	}
	require.NoError(t, c.Get(context.Background(), "/v2/finetuned_models", nil, &out))
	assert.Empty(t, out.Models)
}

func TestDelete(t *testing.T) {
	testData := map[string]struct {
		status  int
		deleted bool
		err     bool
	}{
		"removed":   {status: http.StatusNoContent, deleted: true},
		"no-op":     {status: http.StatusOK, deleted: false},
		"not found": {status: http.StatusNotFound, err: true},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodDelete, r.Method)
				w.WriteHeader(td.status)
			}))
			defer srv.Close()

			c := testClient(t, srv, nil)
			deleted, err := c.Delete(context.Background(), "/v2/finetuned_models/abc")
			if td.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, td.deleted, deleted)
		})
	}
}

func TestPostAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ForecastRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		// echo the batch's first value back so ordering is observable
		resp := ForecastResponse{Mean: []float64{req.Series.Y[0]}}
		out, _ := json.Marshal(resp)
		w.Write(out)
	}))
	defer srv.Close()

	c := testClient(t, srv, func(o *Options) { o.MaxWorkers = 3 })

	payloads := make([]ForecastRequest, 7)
	for i := range payloads {
		payloads[i] = ForecastRequest{Series: &SeriesPayload{Y: []float64{float64(i)}, Sizes: []int{1}}}
	}
	results, err := c.PostAll(context.Background(), "/v2/forecast", payloads)
	require.NoError(t, err)

	require.Len(t, results, len(payloads))
	for i, res := range results {
		assert.Equal(t, []float64{float64(i)}, res.Mean)
	}
}

func TestPostAllPartialFailureFailsAll(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req ForecastRequest
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		if req.Series.Y[0] == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"mean": [0]}`))
	}))
	defer srv.Close()

	c := testClient(t, srv, nil)
	payloads := []ForecastRequest{
		{Series: &SeriesPayload{Y: []float64{0}, Sizes: []int{1}}},
		{Series: &SeriesPayload{Y: []float64{1}, Sizes: []int{1}}},
		{Series: &SeriesPayload{Y: []float64{2}, Sizes: []int{1}}},
	}
	_, err := c.PostAll(context.Background(), "/v2/forecast", payloads)
	require.Error(t, err)
	// siblings are not cancelled by the failing batch
	assert.Equal(t, int64(3), calls.Load())
}

func TestRetryable(t *testing.T) {
	testData := map[string]struct {
		err       error
		retryable bool
	}{
		"timeout 408":       {err: &APIError{StatusCode: 408}, retryable: true},
		"conflict 409":      {err: &APIError{StatusCode: 409}, retryable: true},
		"throttled 429":     {err: &APIError{StatusCode: 429}, retryable: true},
		"bad gateway 502":   {err: &APIError{StatusCode: 502}, retryable: true},
		"unavailable 503":   {err: &APIError{StatusCode: 503}, retryable: true},
		"gw timeout 504":    {err: &APIError{StatusCode: 504}, retryable: true},
		"bad request 400":   {err: &APIError{StatusCode: 400}, retryable: false},
		"unauthorized 401":  {err: &APIError{StatusCode: 401}, retryable: false},
		"unprocessable 422": {err: &APIError{StatusCode: 422}, retryable: false},
		"server error 500":  {err: &APIError{StatusCode: 500}, retryable: false},
		"payload too large": {err: ErrPayloadTooLarge, retryable: false},
		"context cancelled": {err: context.Canceled, retryable: false},
	}

	for name, td := range testData {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, td.retryable, Retryable(td.err))
		})
	}
}
