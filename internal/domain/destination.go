package domain

import (
	"encoding/json"
	"net/url"
	"time"
)

// Destination is a registered HTTP callback endpoint.
// ID is the stable key (by convention the normalized endpoint URL, but any
// unique string accepted by the registry works). RateLimit is the minimum
// elapsed time between two dispatches to this destination; zero means
// unlimited — entries dispatch immediately in arrival order.
type Destination struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	EndpointURL string        `json:"endpoint_url"`
	RateLimit   time.Duration `json:"rate_limit"`
}

func (d *Destination) Validate() error {
	if d.ID == "" {
		return ErrInvalidDestinationID
	}
	u, err := url.Parse(d.EndpointURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidEndpoint
	}
	if d.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	return nil
}

// Entry is one queued delivery. Entries are immutable once created; the
// destination name is captured at enqueue time so completion notifications
// stay accurate even if the destination is later renamed or removed.
type Entry struct {
	ID              string          `json:"id"`
	DestinationID   string          `json:"destination_id"`
	DestinationName string          `json:"destination_name"`
	Payload         json.RawMessage `json:"payload"`
	EnqueuedAt      time.Time       `json:"enqueued_at"`
}

// Outcome classifies how a delivery terminated.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeHTTPError    Outcome = "httpError"    // endpoint reachable, non-2xx after all retries
	OutcomeNetworkError Outcome = "networkError" // endpoint unreachable after all retries
)

// CompletionEvent is emitted exactly once per dispatched entry, when its
// delivery reaches a terminal outcome. Detail carries the last HTTP status
// or network error text for failures.
type CompletionEvent struct {
	DestinationID   string  `json:"destination_id"`
	DestinationName string  `json:"destination_name"`
	Outcome         Outcome `json:"outcome"`
	Detail          string  `json:"detail,omitempty"`
}

// ProgressEvent describes a destination's deferred backlog: how many entries
// are waiting and a ceiling estimate of when the last of them dispatches.
type ProgressEvent struct {
	DestinationID    string `json:"destination_id"`
	DestinationName  string `json:"destination_name"`
	Position         int    `json:"position"`
	EstimatedSeconds int    `json:"estimated_seconds"`
}
