package clock_test

import (
	"testing"
	"time"

	"github.com/hookpace/hookpace/internal/clock"
)

func TestFake_FiresInDeadlineOrder(t *testing.T) {
	clk := clock.NewFake()

	var order []string
	clk.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	clk.AfterFunc(time.Second, func() { order = append(order, "a") })
	clk.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	clk.Advance(5 * time.Second)

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("fired in order %v, want [a b c]", order)
	}
}

func TestFake_StopPreventsFiring(t *testing.T) {
	clk := clock.NewFake()

	fired := false
	timer := clk.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("Stop on a pending timer must report true")
	}
	clk.Advance(2 * time.Second)

	if fired {
		t.Fatal("stopped timer fired")
	}
	if timer.Stop() {
		t.Fatal("Stop on an already-stopped timer must report false")
	}
	if clk.Armed() != 0 {
		t.Fatalf("expected no armed timers, got %d", clk.Armed())
	}
}

func TestFake_CallbackCanArmTimers(t *testing.T) {
	clk := clock.NewFake()

	var fired []string
	clk.AfterFunc(time.Second, func() {
		fired = append(fired, "outer")
		clk.AfterFunc(time.Second, func() { fired = append(fired, "inner") })
	})

	// Both the original timer and the one it arms fall inside the window.
	clk.Advance(3 * time.Second)

	if len(fired) != 2 || fired[1] != "inner" {
		t.Fatalf("fired %v, want [outer inner]", fired)
	}
}

func TestFake_NowAdvances(t *testing.T) {
	clk := clock.NewFake()
	start := clk.Now()
	clk.Advance(90 * time.Second)
	if got := clk.Now().Sub(start); got != 90*time.Second {
		t.Fatalf("advanced %v, want 90s", got)
	}
}
