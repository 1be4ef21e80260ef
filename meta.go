package timegpt

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/PyQuantSharp/timegpt/transport"
)

const (
	endpointModelParams    = "/model_params"
	endpointValidateAPIKey = "/validate_api_key"
	endpointUsage          = "/usage"
)

// Usage reports consumed and remaining request quota, keyed by
// resource name, over the rolling minute and calendar month windows.
type Usage struct {
	Minute map[string]int `json:"minute"`
	Month  map[string]int `json:"month"`
}

func (c *Client) fetchModelParams(ctx context.Context, model, freq string) (*transport.ModelParams, error) {
	params := url.Values{}
	params.Set("model", model)
	params.Set("freq", freq)
	var resp transport.ModelParams
	if err := c.http.Get(ctx, endpointModelParams, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ModelParams returns the input size and maximum native horizon of a
// model for the given frequency.
func (c *Client) ModelParams(ctx context.Context, model, freq string) (inputSize, horizon int, err error) {
	if model == "" {
		model = ModelTimeGPT
	}
	resp, err := c.fetchModelParams(ctx, model, freq)
	if err != nil {
		return 0, 0, err
	}
	return resp.Detail.InputSize, resp.Detail.Horizon, nil
}

// ValidateAPIKey reports whether the configured key is accepted by the
// API. A rejected key yields false with a nil error; other transport
// failures are returned as errors.
func (c *Client) ValidateAPIKey(ctx context.Context) (bool, error) {
	var resp struct {
		Message string `json:"message"`
	}
	err := c.http.Get(ctx, endpointValidateAPIKey, nil, &resp)
	if err == nil {
		return true, nil
	}
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
		return false, nil
	}
	return false, err
}

// Usage returns the account's current API quota consumption.
func (c *Client) Usage(ctx context.Context) (*Usage, error) {
	var resp Usage
	if err := c.http.Get(ctx, endpointUsage, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
