package usecases

import "errors"

// ErrInvalidRequest is returned when neither a prompt nor a document was supplied.
var ErrInvalidRequest = errors.New("invalid request: a prompt or a document is required")
