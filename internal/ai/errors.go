package ai

import (
	"errors"
	"fmt"
)

// ErrMalformedResponse means a 2xx completion body had no usable answer.
var ErrMalformedResponse = errors.New("malformed completion response")

// UpstreamError reports a failed completion call. StatusCode is 0 when the
// request never got an HTTP response (network error, timeout, open breaker).
type UpstreamError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("upstream request failed: %v", e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Detail is the text surfaced to API callers: the upstream body verbatim when
// there is one, otherwise the transport error.
func (e *UpstreamError) Detail() string {
	if e.StatusCode != 0 {
		return e.Body
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown upstream error"
}
