// Package notify maintains the live progress notification per destination:
// created when an enqueue is genuinely deferred, refreshed on a fixed
// cadence, and destroyed when the queue drains, when a send dispatches, or
// after a hard ceiling elapses regardless of further signals.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hookpace/hookpace/internal/clock"
	"github.com/hookpace/hookpace/internal/domain"
)

const (
	minUpdateInterval = time.Second
	maxUpdateInterval = time.Minute

	// MaxLifetime is the fail-safe ceiling on any live notification. It
	// protects against a missed clear signal leaving stale state forever.
	MaxLifetime = time.Minute
)

// Snapshotter re-reads the current progress view of a destination's backlog.
// Wired to queue.Manager.Snapshot.
type Snapshotter func(destinationID string) (domain.ProgressEvent, bool)

type liveNotification struct {
	update  clock.Timer
	ceiling clock.Timer
}

// Notifier coalesces progress signals into at most one live rendered
// notification per destination.
type Notifier struct {
	mu   sync.Mutex
	live map[string]*liveNotification

	snapshot Snapshotter
	renderer Renderer
	clk      clock.Clock
	interval time.Duration
	lifetime time.Duration
	logger   *zap.Logger
}

// NewNotifier builds a Notifier with the given update cadence, clamped to
// [1s, 60s].
func NewNotifier(
	snapshot Snapshotter,
	renderer Renderer,
	clk clock.Clock,
	updateInterval time.Duration,
	logger *zap.Logger,
) *Notifier {
	if updateInterval < minUpdateInterval {
		updateInterval = minUpdateInterval
	}
	if updateInterval > maxUpdateInterval {
		updateInterval = maxUpdateInterval
	}
	return &Notifier{
		live:     make(map[string]*liveNotification),
		snapshot: snapshot,
		renderer: renderer,
		clk:      clk,
		interval: updateInterval,
		lifetime: MaxLifetime,
		logger:   logger,
	}
}

// Deferred records that an entry was queued behind the rate limit or a
// backlog. The first signal for a destination creates the notification and
// arms its update and ceiling timers; repeats only refresh the rendered
// state.
func (n *Notifier) Deferred(ev domain.ProgressEvent) {
	id := ev.DestinationID

	n.mu.Lock()
	if _, ok := n.live[id]; !ok {
		n.live[id] = &liveNotification{
			update:  n.clk.AfterFunc(n.interval, func() { n.tick(id) }),
			ceiling: n.clk.AfterFunc(n.lifetime, func() { n.expire(id) }),
		}
	}
	n.mu.Unlock()

	n.renderer.Render(ev)
}

// Cleared destroys the destination's live notification, if any. Invoked by
// the queue manager at dispatch time and on terminal completion.
func (n *Notifier) Cleared(destinationID string) {
	if n.remove(destinationID) {
		n.renderer.Clear(destinationID)
	}
}

// tick refreshes the rendered state from a fresh snapshot and re-arms the
// update timer, or clears the notification when the backlog is gone.
func (n *Notifier) tick(destinationID string) {
	n.mu.Lock()
	ln, ok := n.live[destinationID]
	if !ok {
		n.mu.Unlock()
		return
	}

	ev, queued := n.snapshot(destinationID)
	if !queued {
		delete(n.live, destinationID)
		ln.ceiling.Stop()
		n.mu.Unlock()
		n.renderer.Clear(destinationID)
		return
	}

	ln.update = n.clk.AfterFunc(n.interval, func() { n.tick(destinationID) })
	n.mu.Unlock()

	n.renderer.Render(ev)
}

// expire enforces the hard lifetime ceiling independently of queue state.
func (n *Notifier) expire(destinationID string) {
	if n.remove(destinationID) {
		n.logger.Warn("progress notification hit lifetime ceiling",
			zap.String("destination_id", destinationID),
			zap.Duration("lifetime", n.lifetime),
		)
		n.renderer.Clear(destinationID)
	}
}

// Shutdown stops all timers and drops live state without rendering clears.
func (n *Notifier) Shutdown() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, ln := range n.live {
		ln.update.Stop()
		ln.ceiling.Stop()
		delete(n.live, id)
	}
}

func (n *Notifier) remove(destinationID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	ln, ok := n.live[destinationID]
	if !ok {
		return false
	}
	ln.update.Stop()
	ln.ceiling.Stop()
	delete(n.live, destinationID)
	return true
}
