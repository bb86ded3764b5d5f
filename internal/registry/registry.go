// Package registry stores the set of known destinations. The registry holds
// static per-destination configuration only; queued entries live in memory
// with the queue manager and are not durable.
package registry

import (
	"context"

	"github.com/hookpace/hookpace/internal/domain"
)

// Registry defines all persistence operations for destinations.
// The pgx implementation is in pg.go; tests and database-less deployments
// use the in-memory implementation in mem.go.
type Registry interface {
	List(ctx context.Context) ([]domain.Destination, error)
	Get(ctx context.Context, id string) (*domain.Destination, error)
	// Upsert inserts the destination or updates name/endpoint/rate limit in
	// place when the ID already exists.
	Upsert(ctx context.Context, d domain.Destination) error
	Delete(ctx context.Context, id string) error
}
