package transport

import (
	"context"
	"encoding/json"
)

// Class is the outcome classification of one send attempt.
type Class int

const (
	// ClassOK — the endpoint acknowledged the payload with a 2xx status.
	ClassOK Class = iota
	// ClassHTTPError — the endpoint was reachable but answered non-2xx.
	ClassHTTPError
	// ClassNetworkError — the request never produced an HTTP response
	// (connection failure, DNS error, timeout).
	ClassNetworkError
)

// Result describes one attempt. StatusCode is set for ClassOK and
// ClassHTTPError; Err is set for ClassNetworkError.
type Result struct {
	Class      Class
	StatusCode int
	Err        error
}

// Detail renders the failure detail carried in completion events: the HTTP
// status line for reachable failures, the error text otherwise.
func (r Result) Detail() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	return httpStatusLine(r.StatusCode)
}

// Sender performs exactly one POST-style attempt against an endpoint and
// classifies the outcome. Mocking this interface in tests gives full control
// over endpoint behaviour without real HTTP calls.
type Sender interface {
	Send(ctx context.Context, endpointURL string, payload json.RawMessage) Result
}
