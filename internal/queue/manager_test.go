package queue_test

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hookpace/hookpace/internal/clock"
	"github.com/hookpace/hookpace/internal/domain"
	"github.com/hookpace/hookpace/internal/queue"
)

type dispatchRecord struct {
	endpointURL string
	entry       domain.Entry
	at          time.Time
}

// recordingDispatcher captures every dispatch on a channel. The at timestamp
// is read from the fake clock inside the OnDispatch hook (synchronous with
// the scheduling step), not here, to stay deterministic.
type recordingDispatcher struct {
	ch chan dispatchRecord
}

func (d *recordingDispatcher) Dispatch(endpointURL string, entry domain.Entry) {
	d.ch <- dispatchRecord{endpointURL: endpointURL, entry: entry}
}

type testEnv struct {
	clk      *clock.Fake
	mgr      *queue.Manager
	disp     *recordingDispatcher
	deferred chan domain.ProgressEvent
	cleared  chan string

	mu            sync.Mutex
	dispatchTimes []time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		clk:      clock.NewFake(),
		disp:     &recordingDispatcher{ch: make(chan dispatchRecord, 64)},
		deferred: make(chan domain.ProgressEvent, 64),
		cleared:  make(chan string, 64),
	}
	env.mgr = queue.NewManager(env.disp, env.clk, queue.Hooks{
		OnDeferred: func(ev domain.ProgressEvent) { env.deferred <- ev },
		OnCleared:  func(id string) { env.cleared <- id },
		OnDispatch: func(string) {
			env.mu.Lock()
			env.dispatchTimes = append(env.dispatchTimes, env.clk.Now())
			env.mu.Unlock()
		},
	}, zap.NewNop())
	return env
}

func (e *testEnv) waitDispatch(t *testing.T) dispatchRecord {
	t.Helper()
	select {
	case rec := <-e.disp.ch:
		return rec
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a dispatch")
		return dispatchRecord{}
	}
}

func (e *testEnv) expectNoDispatch(t *testing.T) {
	t.Helper()
	select {
	case rec := <-e.disp.ch:
		t.Fatalf("unexpected dispatch of entry %s", rec.entry.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func (e *testEnv) times() []time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]time.Time(nil), e.dispatchTimes...)
}

func dest(id string, rateLimit time.Duration) domain.Destination {
	return domain.Destination{
		ID:          id,
		Name:        "dest " + id,
		EndpointURL: "https://" + id + ".example.com/hook",
		RateLimit:   rateLimit,
	}
}

func payload(s string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"msg":%q}`, s))
}

// manualClock hands out timers the test expires and fires by hand. It
// reproduces the window where a real time.AfterFunc has passed its deadline
// and launched the callback goroutine, but the callback has not run yet.
type manualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
}

type manualTimer struct {
	clk     *manualClock
	f       func()
	expired bool
	stopped bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) clock.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clk: c, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) last() *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers[len(c.timers)-1]
}

func (c *manualClock) armed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.expired {
			n++
		}
	}
	return n
}

func (t *manualTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	active := !t.stopped && !t.expired
	t.stopped = true
	return active
}

// expire marks the deadline as passed without running the callback, like a
// fired time.AfterFunc whose goroutine is not yet scheduled. Stop reports
// false from here on.
func (t *manualTimer) expire() {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	t.expired = true
}

// blockingDispatcher parks every Dispatch call until release is closed, so a
// test can assert on scheduling state before any post-completion step runs.
type blockingDispatcher struct {
	ch      chan dispatchRecord
	release chan struct{}
}

func (d *blockingDispatcher) Dispatch(endpointURL string, entry domain.Entry) {
	d.ch <- dispatchRecord{endpointURL: endpointURL, entry: entry}
	<-d.release
}

func TestManager_ZeroRateLimit_DispatchesImmediatelyInOrder(t *testing.T) {
	env := newTestEnv(t)
	if err := env.mgr.Configure([]domain.Destination{dest("b", 0)}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		env.mgr.Enqueue("b", payload(fmt.Sprintf("m%d", i)), "dest b")
	}

	start := env.clk.Now()
	for i := 0; i < 5; i++ {
		rec := env.waitDispatch(t)
		var body map[string]string
		if err := json.Unmarshal(rec.entry.Payload, &body); err != nil {
			t.Fatal(err)
		}
		if want := fmt.Sprintf("m%d", i); body["msg"] != want {
			t.Fatalf("out of order: dispatch %d carried %q, want %q", i, body["msg"], want)
		}
	}

	// Rate limit 0 induces no delay and no queued/progress events at all.
	for _, at := range env.times() {
		if !at.Equal(start) {
			t.Fatalf("dispatch delayed to %v, want immediate at %v", at, start)
		}
	}
	select {
	case ev := <-env.deferred:
		t.Fatalf("unexpected progress event for zero rate limit: %+v", ev)
	default:
	}
	if n := env.clk.Armed(); n != 0 {
		t.Fatalf("expected no armed timers, got %d", n)
	}
}

func TestManager_RateLimit_SpacesDispatchesFIFO(t *testing.T) {
	env := newTestEnv(t)
	const interval = 10 * time.Second
	if err := env.mgr.Configure([]domain.Destination{dest("a", interval)}); err != nil {
		t.Fatal(err)
	}

	env.mgr.Enqueue("a", payload("first"), "dest a")
	env.mgr.Enqueue("a", payload("second"), "dest a")
	env.mgr.Enqueue("a", payload("third"), "dest a")

	// First entry dispatches immediately (nothing sent yet).
	first := env.waitDispatch(t)
	env.expectNoDispatch(t)

	env.clk.Advance(interval)
	second := env.waitDispatch(t)
	env.expectNoDispatch(t)

	env.clk.Advance(interval)
	third := env.waitDispatch(t)

	for i, rec := range []dispatchRecord{first, second, third} {
		var body map[string]string
		_ = json.Unmarshal(rec.entry.Payload, &body)
		want := []string{"first", "second", "third"}[i]
		if body["msg"] != want {
			t.Fatalf("dispatch %d carried %q, want %q", i, body["msg"], want)
		}
	}

	times := env.times()
	if len(times) != 3 {
		t.Fatalf("expected 3 dispatch times, got %d", len(times))
	}
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < interval {
			t.Fatalf("dispatch gap %v below rate limit %v", gap, interval)
		}
	}
}

func TestManager_DeferredEntryEmitsProgressAndClears(t *testing.T) {
	env := newTestEnv(t)
	const interval = 10 * time.Second
	if err := env.mgr.Configure([]domain.Destination{dest("a", interval)}); err != nil {
		t.Fatal(err)
	}

	// Prime lastSentAt, then sit 2s into the 10s cooldown.
	env.mgr.Enqueue("a", payload("warmup"), "dest a")
	env.waitDispatch(t)
	<-env.cleared
	env.clk.Advance(2 * time.Second)

	env.mgr.Enqueue("a", payload("deferred"), "dest a")

	select {
	case ev := <-env.deferred:
		if ev.DestinationID != "a" || ev.Position != 1 || ev.EstimatedSeconds != 8 {
			t.Fatalf("unexpected progress event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a progress event for the deferred entry")
	}
	env.expectNoDispatch(t)

	env.clk.Advance(8 * time.Second)
	env.waitDispatch(t)
	select {
	case id := <-env.cleared:
		if id != "a" {
			t.Fatalf("cleared wrong destination: %s", id)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a cleared event after the deferred entry dispatched")
	}
}

func TestManager_SingleWakeTimerPerDestination(t *testing.T) {
	env := newTestEnv(t)
	if err := env.mgr.Configure([]domain.Destination{dest("a", time.Hour)}); err != nil {
		t.Fatal(err)
	}

	env.mgr.Enqueue("a", payload("head"), "dest a")
	env.waitDispatch(t)

	// Every enqueue during the cooldown re-runs the scheduling step; arming
	// must cancel-and-replace, never stack timers.
	for i := 0; i < 4; i++ {
		env.mgr.Enqueue("a", payload(fmt.Sprintf("q%d", i)), "dest a")
		if n := env.clk.Armed(); n > 1 {
			t.Fatalf("after enqueue %d: %d wake timers armed, want at most 1", i, n)
		}
	}
}

func TestManager_LateWakeAfterReplacementDoesNotStackTimers(t *testing.T) {
	clk := newManualClock()
	disp := &blockingDispatcher{ch: make(chan dispatchRecord, 8), release: make(chan struct{})}
	defer close(disp.release)
	mgr := queue.NewManager(disp, clk, queue.Hooks{}, zap.NewNop())

	const interval = 10 * time.Second
	if err := mgr.Configure([]domain.Destination{dest("a", interval)}); err != nil {
		t.Fatal(err)
	}

	mgr.Enqueue("a", payload("m0"), "dest a")
	<-disp.ch // lastSentAt stamped
	mgr.Enqueue("a", payload("m1"), "dest a")
	stale := clk.last() // the wake timer armed for m1

	// The cooldown elapses and the timer fires, but its callback loses the
	// race to an enqueue that re-runs the scheduling step first: m1
	// dispatches and a replacement timer is armed for m2.
	clk.set(clk.Now().Add(interval))
	stale.expire()
	mgr.Enqueue("a", payload("m2"), "dest a")
	<-disp.ch

	if n := clk.armed(); n != 1 {
		t.Fatalf("%d wake timers armed before the stale fire, want 1", n)
	}

	// The stale callback finally runs. It must notice it was replaced and
	// leave the current timer alone instead of orphaning it and arming
	// another.
	stale.f()
	if n := clk.armed(); n != 1 {
		t.Fatalf("%d wake timers armed after the stale fire, want 1", n)
	}
}

func TestManager_DrainTakesAtLeastNMinusOneIntervals(t *testing.T) {
	env := newTestEnv(t)
	const interval = 5 * time.Second
	const n = 4
	if err := env.mgr.Configure([]domain.Destination{dest("a", interval)}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < n; i++ {
		env.mgr.Enqueue("a", payload(fmt.Sprintf("m%d", i)), "dest a")
	}
	env.waitDispatch(t)
	for i := 1; i < n; i++ {
		env.clk.Advance(interval)
		env.waitDispatch(t)
	}

	times := env.times()
	if got, want := times[n-1].Sub(times[0]), time.Duration(n-1)*interval; got < want {
		t.Fatalf("drained %d entries in %v, want at least %v", n, got, want)
	}
}

func TestManager_ReconfigureKeepsPendingEntries(t *testing.T) {
	env := newTestEnv(t)
	if err := env.mgr.Configure([]domain.Destination{dest("a", time.Hour)}); err != nil {
		t.Fatal(err)
	}

	env.mgr.Enqueue("a", payload("head"), "dest a")
	env.waitDispatch(t)
	env.mgr.Enqueue("a", payload("p1"), "dest a")
	env.mgr.Enqueue("a", payload("p2"), "dest a")

	if depth := env.mgr.Depths()["a"]; depth != 2 {
		t.Fatalf("expected 2 pending entries before reconfigure, got %d", depth)
	}

	// Shrink the interval while entries are pending: nothing is dropped and
	// the new limit applies from the next scheduling step.
	if err := env.mgr.Configure([]domain.Destination{dest("a", time.Second)}); err != nil {
		t.Fatal(err)
	}
	if depth := env.mgr.Depths()["a"]; depth != 2 {
		t.Fatalf("reconfigure dropped entries: depth %d, want 2", depth)
	}

	env.clk.Advance(time.Second)
	p1 := env.waitDispatch(t)
	env.clk.Advance(time.Second)
	p2 := env.waitDispatch(t)

	var body map[string]string
	_ = json.Unmarshal(p1.entry.Payload, &body)
	if body["msg"] != "p1" {
		t.Fatalf("first pending entry was %q, want p1", body["msg"])
	}
	_ = json.Unmarshal(p2.entry.Payload, &body)
	if body["msg"] != "p2" {
		t.Fatalf("second pending entry was %q, want p2", body["msg"])
	}
}

func TestManager_UnknownDestinationGetsAdHocQueue(t *testing.T) {
	env := newTestEnv(t)

	// Never configured: the ID doubles as the endpoint URL and the queue has
	// no rate limit.
	env.mgr.Enqueue("https://adhoc.example.com/hook", payload("x"), "ad hoc")
	rec := env.waitDispatch(t)

	if rec.endpointURL != "https://adhoc.example.com/hook" {
		t.Fatalf("ad-hoc queue posted to %q, want the destination id", rec.endpointURL)
	}
	if rec.entry.DestinationName != "ad hoc" {
		t.Fatalf("entry name %q, want %q", rec.entry.DestinationName, "ad hoc")
	}
	select {
	case ev := <-env.deferred:
		t.Fatalf("unexpected progress event: %+v", ev)
	default:
	}
}

func TestManager_ConfigureRejectsInvalidDestinations(t *testing.T) {
	env := newTestEnv(t)

	err := env.mgr.Configure([]domain.Destination{
		{ID: "bad", Name: "bad", EndpointURL: "https://bad.example.com", RateLimit: -time.Second},
		dest("good", 0),
	})
	if err == nil {
		t.Fatal("expected an error for the invalid destination")
	}

	depths := env.mgr.Depths()
	if _, ok := depths["bad"]; ok {
		t.Fatal("invalid destination must be left unconfigured")
	}
	if _, ok := depths["good"]; !ok {
		t.Fatal("valid destination should still be configured")
	}
}

func TestManager_SnapshotReflectsBacklog(t *testing.T) {
	env := newTestEnv(t)
	const interval = 10 * time.Second
	if err := env.mgr.Configure([]domain.Destination{dest("a", interval)}); err != nil {
		t.Fatal(err)
	}

	if _, ok := env.mgr.Snapshot("a"); ok {
		t.Fatal("empty queue must have no snapshot")
	}

	env.mgr.Enqueue("a", payload("head"), "dest a")
	env.waitDispatch(t)
	env.mgr.Enqueue("a", payload("q1"), "dest a")
	env.mgr.Enqueue("a", payload("q2"), "dest a")

	ev, ok := env.mgr.Snapshot("a")
	if !ok {
		t.Fatal("expected a snapshot for the backlog")
	}
	if ev.Position != 2 {
		t.Fatalf("position %d, want 2", ev.Position)
	}
	// wait(10s) + (2-1)*10s = 20s
	if ev.EstimatedSeconds != 20 {
		t.Fatalf("estimated seconds %d, want 20", ev.EstimatedSeconds)
	}

	if got := len(env.mgr.Snapshots()); got != 1 {
		t.Fatalf("expected 1 pending snapshot, got %d", got)
	}
}

func TestManager_SlowDestinationDoesNotBlockOthers(t *testing.T) {
	env := newTestEnv(t)
	if err := env.mgr.Configure([]domain.Destination{dest("slow", 0), dest("fast", 0)}); err != nil {
		t.Fatal(err)
	}

	// The dispatcher channel serialises records but Dispatch runs on a
	// per-entry goroutine, so enqueues to one destination never wait on
	// another destination's send.
	env.mgr.Enqueue("slow", payload("s"), "dest slow")
	env.mgr.Enqueue("fast", payload("f"), "dest fast")

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		rec := env.waitDispatch(t)
		seen[rec.entry.DestinationID] = true
	}
	if !seen["slow"] || !seen["fast"] {
		t.Fatalf("expected both destinations to dispatch, got %v", seen)
	}
}
