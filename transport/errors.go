package transport

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrPayloadTooLarge is returned before sending when the encoded
	// request body exceeds MaxPayloadBytes. Split the input into more
	// partitions instead of retrying.
	ErrPayloadTooLarge = errors.New("encoded payload exceeds the maximum request size")

	ErrNoAPIKey = errors.New("no api key provided")
)

// APIError is a non-200 response from the service. Body carries the
// raw response; Code/Message/Support are populated when the service
// returned its structured error document.
type APIError struct {
	StatusCode int
	Body       string
	Code       string
	Message    string
	Support    string
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "" && e.Code != "":
		return fmt.Sprintf("status %d, %s (code %s)", e.StatusCode, e.Message, e.Code)
	case e.Message != "":
		return fmt.Sprintf("status %d, %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("status %d, %s", e.StatusCode, e.Body)
}

// retryable status codes are transient service conditions; everything
// else in the 4xx range means the request itself is wrong.
var retryableStatus = map[int]bool{
	408: true,
	409: true,
	429: true,
	502: true,
	503: true,
	504: true,
}

// Retryable reports whether err is worth retrying: a transient HTTP
// status, a network timeout, or a dropped connection.
func Retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableStatus[apiErr.StatusCode]
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
