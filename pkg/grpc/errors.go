package grpc

import (
	"errors"
)

var (
	errInternalError    = errors.New("internal error")
	errRetriesExhausted = errors.New("all retry attempts failed")
)
