package domain

import "errors"

// Sentinel errors used throughout the application.
// HTTP handlers translate these to status codes via a single mapError function.
var (
	ErrNotFound             = errors.New("destination not found")
	ErrConflict             = errors.New("conflict: destination id already registered")
	ErrInvalidDestinationID = errors.New("destination id must not be empty")
	ErrInvalidEndpoint      = errors.New("endpoint URL must be an absolute http(s) URL")
	ErrInvalidRateLimit     = errors.New("rate limit must not be negative")
	ErrEmptyPayload         = errors.New("payload must not be empty")
)
