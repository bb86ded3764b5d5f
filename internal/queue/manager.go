package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hookpace/hookpace/internal/clock"
	"github.com/hookpace/hookpace/internal/domain"
)

// Dispatcher carries out the full delivery of one entry, including retries,
// and blocks until the delivery reaches a terminal outcome. The Manager
// always invokes Dispatch on a dedicated goroutine, so a slow or hanging
// endpoint never stalls scheduling for other destinations.
type Dispatcher interface {
	Dispatch(endpointURL string, entry domain.Entry)
}

// Hooks carries the observer callbacks injected by main (metrics and the
// progress notifier). Using a struct keeps the Manager constructor signature
// clean; nil funcs are replaced with no-ops.
type Hooks struct {
	// OnDeferred fires when an enqueued entry cannot dispatch immediately —
	// it is queued behind a backlog or a rate-limit cooldown.
	OnDeferred func(domain.ProgressEvent)
	// OnCleared fires when a destination's head entry dispatches, making any
	// live progress state for it stale.
	OnCleared func(destinationID string)
	// OnDispatch fires at the moment an entry is handed to the Dispatcher.
	OnDispatch func(destinationID string)
	// OnDepth reports the queue depth after every mutation.
	OnDepth func(destinationID string, depth int)
}

func (h *Hooks) fillDefaults() {
	if h.OnDeferred == nil {
		h.OnDeferred = func(domain.ProgressEvent) {}
	}
	if h.OnCleared == nil {
		h.OnCleared = func(string) {}
	}
	if h.OnDispatch == nil {
		h.OnDispatch = func(string) {}
	}
	if h.OnDepth == nil {
		h.OnDepth = func(string, int) {}
	}
}

// destQueue holds the FIFO backlog and rate-limit bookkeeping for exactly
// one destination. Queues are created lazily and never destroyed while the
// process runs: an empty queue is idle, not removed, so lastSentAt keeps
// enforcing the cadence across bursts.
type destQueue struct {
	mu          sync.Mutex
	id          string
	name        string
	endpointURL string
	rateLimit   time.Duration
	entries     []domain.Entry
	lastSentAt  time.Time   // zero until the first dispatch
	timer       clock.Timer // the single deferred-wake timer, nil when idle
	timerGen    uint64      // bumped on every arm; stale fires check it
}

// Manager owns the collection of per-destination queues, routes enqueue
// calls, and drives each queue's scheduling step.
//
// Each destination's cadence is measured between dispatches, not
// completions: lastSentAt is stamped the moment an entry is handed to the
// Dispatcher, so round-trip latency to a slow endpoint never throttles the
// queue beyond its configured interval.
type Manager struct {
	mu     sync.RWMutex
	queues map[string]*destQueue

	dispatcher Dispatcher
	clk        clock.Clock
	hooks      Hooks
	logger     *zap.Logger
}

func NewManager(dispatcher Dispatcher, clk clock.Clock, hooks Hooks, logger *zap.Logger) *Manager {
	hooks.fillDefaults()
	return &Manager{
		queues:     make(map[string]*destQueue),
		dispatcher: dispatcher,
		clk:        clk,
		hooks:      hooks,
		logger:     logger,
	}
}

// Configure creates or updates one queue per destination. It is idempotent:
// an existing queue keeps its pending entries and lastSentAt — only the
// name, endpoint, and rate-limit interval change, preserving fairness across
// reconfiguration. Invalid destinations are skipped and reported in the
// joined error; valid ones are still applied. Destinations absent from the
// list retain their queue until the process ends and drain with the
// last-known rate limit.
func (m *Manager) Configure(destinations []domain.Destination) error {
	var errs []error
	for _, d := range destinations {
		if err := d.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("destination %q: %w", d.ID, err))
			continue
		}

		m.mu.Lock()
		q, ok := m.queues[d.ID]
		if !ok {
			q = &destQueue{id: d.ID}
			m.queues[d.ID] = q
		}
		m.mu.Unlock()

		q.mu.Lock()
		q.name = d.Name
		q.endpointURL = d.EndpointURL
		q.rateLimit = d.RateLimit
		// Re-run the scheduling step so an armed wake timer is replaced with
		// one reflecting the new interval.
		fire := m.scheduleLocked(q)
		q.mu.Unlock()
		runAll(fire)
	}
	return errors.Join(errs...)
}

// Enqueue appends a payload to the destination's queue and triggers the
// scheduling step. It is fire-and-forget: delivery failures surface only
// through completion events, never to the caller.
//
// An unknown destination gets an ad-hoc zero-rate-limit queue rather than an
// error, so a user-triggered action is never lost to a registry race. By
// convention the destination ID is its normalized endpoint URL, which is
// what an ad-hoc queue posts to.
func (m *Manager) Enqueue(destinationID string, payload json.RawMessage, destinationName string) {
	q := m.getOrCreate(destinationID, destinationName)

	q.mu.Lock()
	now := m.clk.Now()
	deferred := len(q.entries) > 0 ||
		(q.rateLimit > 0 && !q.lastSentAt.IsZero() && now.Sub(q.lastSentAt) < q.rateLimit)

	q.entries = append(q.entries, domain.Entry{
		ID:              uuid.New().String(),
		DestinationID:   destinationID,
		DestinationName: destinationName,
		Payload:         payload,
		EnqueuedAt:      now,
	})

	var fire []func()
	if deferred {
		ev := q.progressLocked(now)
		fire = append(fire, func() { m.hooks.OnDeferred(ev) })
		m.logger.Debug("entry deferred",
			zap.String("destination_id", q.id),
			zap.Int("position", ev.Position),
			zap.Int("estimated_seconds", ev.EstimatedSeconds),
		)
	}
	fire = append(fire, m.scheduleLocked(q)...)
	q.mu.Unlock()
	runAll(fire)
}

// Snapshot returns the current progress view of one destination's backlog,
// or false when nothing is queued. The progress notifier polls this on its
// update cadence to refresh the rendered count and ETA.
func (m *Manager) Snapshot(destinationID string) (domain.ProgressEvent, bool) {
	m.mu.RLock()
	q, ok := m.queues[destinationID]
	m.mu.RUnlock()
	if !ok {
		return domain.ProgressEvent{}, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return domain.ProgressEvent{}, false
	}
	return q.progressLocked(m.clk.Now()), true
}

// Snapshots returns the progress view of every destination with a non-empty
// backlog. Used by the queue snapshot endpoint.
func (m *Manager) Snapshots() []domain.ProgressEvent {
	m.mu.RLock()
	queues := make([]*destQueue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.RUnlock()

	now := m.clk.Now()
	out := []domain.ProgressEvent{} // non-nil so the API renders [] when idle
	for _, q := range queues {
		q.mu.Lock()
		if len(q.entries) > 0 {
			out = append(out, q.progressLocked(now))
		}
		q.mu.Unlock()
	}
	return out
}

// Depths returns the current backlog size per destination, including idle
// (zero-depth) queues.
func (m *Manager) Depths() map[string]int {
	m.mu.RLock()
	queues := make([]*destQueue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.RUnlock()

	out := make(map[string]int, len(queues))
	for _, q := range queues {
		q.mu.Lock()
		out[q.id] = len(q.entries)
		q.mu.Unlock()
	}
	return out
}

// Stop cancels every armed wake timer. Pending entries are abandoned; the
// in-memory backlog is not durable across restarts.
func (m *Manager) Stop() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, q := range m.queues {
		q.mu.Lock()
		if q.timer != nil {
			q.timer.Stop()
			q.timer = nil
		}
		q.mu.Unlock()
	}
}

func (m *Manager) getOrCreate(destinationID, destinationName string) *destQueue {
	m.mu.RLock()
	q, ok := m.queues[destinationID]
	m.mu.RUnlock()
	if ok {
		return q
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok = m.queues[destinationID]; ok {
		return q
	}
	q = &destQueue{
		id:          destinationID,
		name:        destinationName,
		endpointURL: destinationID,
	}
	m.queues[destinationID] = q
	m.logger.Info("created ad-hoc queue for unregistered destination",
		zap.String("destination_id", destinationID))
	return q
}

// scheduleLocked is the scheduling step. It dispatches head entries while the
// rate limit allows, and otherwise arms the destination's single deferred-wake
// timer for exactly the remaining cooldown, replacing any previously armed
// timer (cancel-and-replace — two timers are never live for one destination).
//
// Hook invocations and the delivery goroutine launch are returned as deferred
// funcs so the caller can run them after releasing q.mu.
func (m *Manager) scheduleLocked(q *destQueue) []func() {
	var fire []func()
	for len(q.entries) > 0 {
		now := m.clk.Now()
		var wait time.Duration
		if q.rateLimit > 0 && !q.lastSentAt.IsZero() {
			wait = q.rateLimit - now.Sub(q.lastSentAt)
		}

		if wait > 0 {
			if q.timer != nil {
				q.timer.Stop()
			}
			// A real timer can fire concurrently with the Stop above: its
			// callback goroutine is already launched and will run once it
			// takes q.mu. The generation number lets that stale callback
			// recognise it has been replaced instead of clearing q.timer
			// (which would orphan the replacement) and arming another one.
			q.timerGen++
			gen := q.timerGen
			q.timer = m.clk.AfterFunc(wait, func() { m.onTimerFire(q, gen) })
			return fire
		}

		entry := q.entries[0]
		q.entries = q.entries[1:]
		q.lastSentAt = now // dispatch cadence, not completion cadence
		endpoint := q.endpointURL
		id, depth := q.id, len(q.entries)

		fire = append(fire, func() {
			m.hooks.OnCleared(id)
			m.hooks.OnDispatch(id)
			m.hooks.OnDepth(id, depth)
			m.logger.Debug("entry dispatched",
				zap.String("destination_id", id),
				zap.String("entry_id", entry.ID),
				zap.Int("remaining", depth),
			)
			go m.deliver(endpoint, q, entry)
		})
	}

	// Drained: a leftover wake timer would fire into an empty queue.
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	return fire
}

// onTimerFire re-enters the scheduling step when the deferred-wake timer
// elapses. Stale fires — the timer was replaced or stopped between expiring
// and taking the lock — are dropped so exactly one wake timer stays armed
// per destination.
func (m *Manager) onTimerFire(q *destQueue, gen uint64) {
	q.mu.Lock()
	if gen != q.timerGen || q.timer == nil {
		q.mu.Unlock()
		return
	}
	q.timer = nil
	fire := m.scheduleLocked(q)
	q.mu.Unlock()
	runAll(fire)
}

// deliver hands the entry to the Dispatcher and re-runs the scheduling step
// once the send completes. The post-completion step is usually a no-op (the
// dispatch-time step already armed a timer or drained the queue) but keeps
// the queue live if a timer was lost to reconfiguration.
func (m *Manager) deliver(endpointURL string, q *destQueue, entry domain.Entry) {
	m.dispatcher.Dispatch(endpointURL, entry)

	q.mu.Lock()
	fire := m.scheduleLocked(q)
	q.mu.Unlock()
	runAll(fire)
}

// progressLocked builds the progress view: position is the backlog size and
// the ETA is ceil(wait + (position-1) * rateLimit), i.e. when the last queued
// entry is expected to dispatch.
func (q *destQueue) progressLocked(now time.Time) domain.ProgressEvent {
	var wait time.Duration
	if q.rateLimit > 0 && !q.lastSentAt.IsZero() {
		if w := q.rateLimit - now.Sub(q.lastSentAt); w > 0 {
			wait = w
		}
	}
	pos := len(q.entries)
	eta := wait + time.Duration(pos-1)*q.rateLimit
	return domain.ProgressEvent{
		DestinationID:    q.id,
		DestinationName:  q.name,
		Position:         pos,
		EstimatedSeconds: int((eta + time.Second - 1) / time.Second),
	}
}

func runAll(fns []func()) {
	for _, f := range fns {
		f()
	}
}
