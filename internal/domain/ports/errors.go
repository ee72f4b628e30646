package ports

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrGatewayTimeout matches, via errors.Is, a GatewayError caused by a deadline.
var ErrGatewayTimeout = errors.New("language model gateway timed out")

// GatewayError describes a failed language model call: network failure, rejected
// credentials, non-2xx status, malformed body or timeout.
type GatewayError struct {
	Op         string // "token" or "completion"
	StatusCode int    // 0 when no response was received
	Timeout    bool
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("gateway %s: timed out: %v", e.Op, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("gateway %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool {
	return target == ErrGatewayTimeout && e.Timeout
}
