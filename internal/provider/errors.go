package provider

import (
	"errors"
	"fmt"
)

// UnreadableBody replaces an error body that could not be read.
const UnreadableBody = "(unreadable)"

// TransportError means no HTTP response was received: the connection was
// refused, DNS failed or a timeout fired first.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("LLM server unreachable (%s): %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StatusError means the upstream answered with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("LLM server returned HTTP %d — %s", e.StatusCode, e.Body)
}

// DecodeError means a 2xx response carried a body that could not be decoded.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsUpstreamError reports whether err belongs to the adapter's error set.
func IsUpstreamError(err error) bool {
	var (
		transportErr *TransportError
		statusErr    *StatusError
		decodeErr    *DecodeError
	)
	return errors.As(err, &transportErr) || errors.As(err, &statusErr) || errors.As(err, &decodeErr)
}
