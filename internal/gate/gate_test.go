package gate

import (
	"testing"
	"time"

	"scangate/internal/model"
)

// newTestGate uses an hour-long tick so the real countdown never fires;
// tests drive ticks by hand for determinism.
func newTestGate() *Gate {
	return New(5, time.Hour, nil)
}

func drainCooldown(t *testing.T, g *Gate) {
	t.Helper()
	g.mu.Lock()
	epoch := g.epoch
	ticks := g.remaining
	g.mu.Unlock()
	for i := ticks - 1; i >= 0; i-- {
		g.tick(epoch, i)
	}
}

func TestAcceptFirstScan(t *testing.T) {
	g := newTestGate()
	g.NoteDetected()
	dec := g.Submit(`{"userId":"u1"}`)
	if !dec.Accepted {
		t.Fatalf("expected first scan accepted, got reason %q", dec.Reason)
	}
	snap := g.Snapshot()
	if snap.State != StateProcessing {
		t.Fatalf("expected processing state, got %s", snap.State)
	}
	if snap.CooldownRemaining != 5 {
		t.Fatalf("expected cooldown 5, got %d", snap.CooldownRemaining)
	}
}

func TestRejectWhileProcessing(t *testing.T) {
	g := newTestGate()
	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u1"}`); !dec.Accepted {
		t.Fatalf("setup: first scan not accepted")
	}
	// distinct payloads and visibility changes make no difference while
	// the toggle call is outstanding
	g.NoteNotDetected()
	g.NoteDetected()
	for i := 0; i < 10; i++ {
		dec := g.Submit(`{"userId":"u2"}`)
		if dec.Accepted {
			t.Fatalf("scan %d accepted while processing", i)
		}
		if dec.Reason != model.RejectProcessing {
			t.Fatalf("expected processing rejection, got %q", dec.Reason)
		}
	}
}

func TestRejectDuringCooldown(t *testing.T) {
	g := newTestGate()
	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u1"}`); !dec.Accepted {
		t.Fatalf("setup: first scan not accepted")
	}
	g.ToggleResolved()

	if dec := g.Submit(`{"userId":"u1"}`); dec.Reason != model.RejectCooldown {
		t.Fatalf("expected cooldown rejection for duplicate, got %q", dec.Reason)
	}
	// cooldown is global, not per payload
	g.NoteNotDetected()
	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u2"}`); dec.Reason != model.RejectCooldown {
		t.Fatalf("expected cooldown rejection for distinct payload, got %q", dec.Reason)
	}
}

func TestDisappearanceRequiredAfterCooldown(t *testing.T) {
	g := newTestGate()
	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u1"}`); !dec.Accepted {
		t.Fatalf("setup: first scan not accepted")
	}
	g.ToggleResolved()
	drainCooldown(t, g)

	// the code never left the frame; cooldown expiry alone must not
	// re-open the gate
	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u1"}`); dec.Reason != model.RejectStillVisible {
		t.Fatalf("expected still_visible rejection for same payload, got %q", dec.Reason)
	}
	if dec := g.Submit(`{"userId":"u2"}`); dec.Reason != model.RejectStillVisible {
		t.Fatalf("expected still_visible rejection for distinct payload, got %q", dec.Reason)
	}
}

func TestReacceptAfterDisappearance(t *testing.T) {
	g := newTestGate()
	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u1"}`); !dec.Accepted {
		t.Fatalf("setup: first scan not accepted")
	}
	g.ToggleResolved()
	drainCooldown(t, g)

	g.NoteNotDetected()
	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u1"}`); !dec.Accepted {
		t.Fatalf("expected re-acceptance after disappearance, got %q", dec.Reason)
	}
}

func TestDistinctPayloadAfterCooldownClears(t *testing.T) {
	g := newTestGate()
	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u1"}`); !dec.Accepted {
		t.Fatalf("setup: first scan not accepted")
	}
	g.ToggleResolved()
	// the first code leaves the frame during cooldown
	g.NoteNotDetected()
	drainCooldown(t, g)

	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u2"}`); !dec.Accepted {
		t.Fatalf("expected distinct payload accepted after cooldown, got %q", dec.Reason)
	}
}

func TestSlowToggleOutlastsCooldown(t *testing.T) {
	g := newTestGate()
	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u1"}`); !dec.Accepted {
		t.Fatalf("setup: first scan not accepted")
	}
	drainCooldown(t, g)

	// cooldown expired but the toggle call is still in flight
	if dec := g.Submit(`{"userId":"u2"}`); dec.Reason != model.RejectProcessing {
		t.Fatalf("expected processing rejection, got %q", dec.Reason)
	}
	g.ToggleResolved()
	g.NoteNotDetected()
	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u2"}`); !dec.Accepted {
		t.Fatalf("expected acceptance once toggle resolved, got %q", dec.Reason)
	}
}

func TestResetDropsStaleTicks(t *testing.T) {
	g := newTestGate()
	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u1"}`); !dec.Accepted {
		t.Fatalf("setup: first scan not accepted")
	}
	g.mu.Lock()
	staleEpoch := g.epoch
	g.mu.Unlock()

	g.Reset()
	snap := g.Snapshot()
	if snap.State != StateIdle || snap.CooldownRemaining != 0 || snap.Processing {
		t.Fatalf("expected idle gate after reset, got %+v", snap)
	}

	// a tick from the cancelled countdown must not mutate anything
	g.tick(staleEpoch, 2)
	if snap := g.Snapshot(); snap.CooldownRemaining != 0 {
		t.Fatalf("stale tick mutated gate: %+v", snap)
	}

	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u1"}`); !dec.Accepted {
		t.Fatalf("expected acceptance after reset, got %q", dec.Reason)
	}
}

func TestCooldownCountsDownInRealTime(t *testing.T) {
	g := New(3, 5*time.Millisecond, nil)
	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u1"}`); !dec.Accepted {
		t.Fatalf("setup: first scan not accepted")
	}
	g.ToggleResolved()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if g.Snapshot().CooldownRemaining == 0 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if remaining := g.Snapshot().CooldownRemaining; remaining != 0 {
		t.Fatalf("cooldown never reached 0, remaining %d", remaining)
	}
	g.NoteNotDetected()
	g.NoteDetected()
	if dec := g.Submit(`{"userId":"u2"}`); !dec.Accepted {
		t.Fatalf("expected acceptance after real countdown, got %q", dec.Reason)
	}
}

func TestCountdownSingleActiveRun(t *testing.T) {
	c := NewCountdown(5 * time.Millisecond)
	first := make(chan int, 10)
	c.Start(10, func(remaining int) {
		select {
		case first <- remaining:
		default:
		}
	})
	second := make(chan int, 10)
	c.Start(2, func(remaining int) {
		second <- remaining
	})

	deadline := time.After(500 * time.Millisecond)
	got := make([]int, 0, 2)
	for len(got) < 2 {
		select {
		case v := <-second:
			got = append(got, v)
		case <-deadline:
			t.Fatalf("second run incomplete, got %v", got)
		}
	}
	if got[0] != 1 || got[1] != 0 {
		t.Fatalf("expected ticks [1 0], got %v", got)
	}
	c.Cancel()

	// the first run was cancelled; it must not still be ticking
	drained := len(first)
	time.Sleep(30 * time.Millisecond)
	if len(first) != drained {
		t.Fatalf("cancelled countdown still ticking")
	}
}
