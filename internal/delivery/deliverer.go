// Package delivery wraps the transport with the retry policy: a fixed number
// of attempts with a flat delay between them. Backoff is deliberately not
// exponential — destinations are low-volume rate-limited sinks, not
// large-scale fan-out targets.
package delivery

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hookpace/hookpace/internal/clock"
	"github.com/hookpace/hookpace/internal/domain"
	"github.com/hookpace/hookpace/internal/transport"
)

// Deliverer drives one entry through up to maxAttempts send attempts and
// emits exactly one completion event per entry. Failed entries are dropped
// once attempts are exhausted — there is no re-enqueue and no durability.
type Deliverer struct {
	sender      transport.Sender
	clk         clock.Clock
	logger      *zap.Logger
	maxAttempts int
	// Retry delays by failure class: a reachable-but-unsuccessful response
	// retries sooner than a network-level failure.
	httpRetryDelay time.Duration
	netRetryDelay  time.Duration

	onComplete func(domain.CompletionEvent)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDeliverer(
	sender transport.Sender,
	clk clock.Clock,
	maxAttempts int,
	httpRetryDelay, netRetryDelay time.Duration,
	onComplete func(domain.CompletionEvent),
	logger *zap.Logger,
) *Deliverer {
	if onComplete == nil {
		onComplete = func(domain.CompletionEvent) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Deliverer{
		sender:         sender,
		clk:            clk,
		logger:         logger,
		maxAttempts:    maxAttempts,
		httpRetryDelay: httpRetryDelay,
		netRetryDelay:  netRetryDelay,
		onComplete:     onComplete,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Dispatch blocks until the entry reaches a terminal outcome or the
// Deliverer is closed. The queue manager calls it on a dedicated goroutine.
func (d *Deliverer) Dispatch(endpointURL string, entry domain.Entry) {
	d.wg.Add(1)
	defer d.wg.Done()

	log := d.logger.With(
		zap.String("entry_id", entry.ID),
		zap.String("destination_id", entry.DestinationID),
	)

	var last transport.Result
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		res := d.sender.Send(d.ctx, endpointURL, entry.Payload)
		if res.Class == transport.ClassOK {
			log.Info("delivery succeeded",
				zap.Int("attempt", attempt),
				zap.Int("status", res.StatusCode),
			)
			d.onComplete(domain.CompletionEvent{
				DestinationID:   entry.DestinationID,
				DestinationName: entry.DestinationName,
				Outcome:         domain.OutcomeSuccess,
			})
			return
		}

		last = res
		log.Warn("delivery attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("remaining", d.maxAttempts-attempt),
			zap.String("detail", res.Detail()),
		)

		if attempt == d.maxAttempts {
			break
		}

		delay := d.httpRetryDelay
		if res.Class == transport.ClassNetworkError {
			delay = d.netRetryDelay
		}
		if !d.sleep(delay) {
			return // shutting down mid-retry; no terminal event
		}
	}

	outcome := domain.OutcomeHTTPError
	if last.Class == transport.ClassNetworkError {
		outcome = domain.OutcomeNetworkError
	}
	log.Error("delivery failed permanently",
		zap.String("outcome", string(outcome)),
		zap.String("detail", last.Detail()),
	)
	d.onComplete(domain.CompletionEvent{
		DestinationID:   entry.DestinationID,
		DestinationName: entry.DestinationName,
		Outcome:         outcome,
		Detail:          last.Detail(),
	})
}

// sleep waits for the retry delay on the injected clock. Returns false when
// the Deliverer was closed while waiting.
func (d *Deliverer) sleep(dur time.Duration) bool {
	fired := make(chan struct{})
	t := d.clk.AfterFunc(dur, func() { close(fired) })
	select {
	case <-fired:
		return true
	case <-d.ctx.Done():
		t.Stop()
		return false
	}
}

// Close aborts pending retry waits and blocks until every in-flight
// Dispatch call has returned.
func (d *Deliverer) Close() {
	d.cancel()
	d.wg.Wait()
}
