package domain_test

import (
	"testing"
	"time"

	"github.com/hookpace/hookpace/internal/domain"
)

func TestDestination_Validate(t *testing.T) {
	valid := domain.Destination{
		ID:          "https://hooks.example.com/ingest",
		Name:        "Example hook",
		EndpointURL: "https://hooks.example.com/ingest",
		RateLimit:   10 * time.Second,
	}

	t.Run("valid destination passes", func(t *testing.T) {
		if err := valid.Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("zero rate limit is allowed", func(t *testing.T) {
		d := valid
		d.RateLimit = 0
		if err := d.Validate(); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("empty id", func(t *testing.T) {
		d := valid
		d.ID = ""
		if err := d.Validate(); err != domain.ErrInvalidDestinationID {
			t.Fatalf("expected ErrInvalidDestinationID, got %v", err)
		}
	})

	t.Run("relative endpoint URL", func(t *testing.T) {
		d := valid
		d.EndpointURL = "/ingest"
		if err := d.Validate(); err != domain.ErrInvalidEndpoint {
			t.Fatalf("expected ErrInvalidEndpoint, got %v", err)
		}
	})

	t.Run("non-http scheme", func(t *testing.T) {
		d := valid
		d.EndpointURL = "ftp://hooks.example.com/ingest"
		if err := d.Validate(); err != domain.ErrInvalidEndpoint {
			t.Fatalf("expected ErrInvalidEndpoint, got %v", err)
		}
	})

	t.Run("negative rate limit", func(t *testing.T) {
		d := valid
		d.RateLimit = -time.Second
		if err := d.Validate(); err != domain.ErrInvalidRateLimit {
			t.Fatalf("expected ErrInvalidRateLimit, got %v", err)
		}
	})
}
