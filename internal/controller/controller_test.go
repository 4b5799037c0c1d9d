package controller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"scangate/internal/capture"
	"scangate/internal/decode"
	"scangate/internal/gate"
	"scangate/internal/model"
	"scangate/internal/recent"
	"scangate/internal/stats"
)

type fakeToggler struct {
	mu      sync.Mutex
	calls   []string
	release chan struct{}
	result  *model.ToggleResult
	err     error
}

func newFakeToggler() *fakeToggler {
	return &fakeToggler{
		result: &model.ToggleResult{
			Action: model.ActionCheckin,
			Record: model.AttendanceRecord{
				User:        model.AttendanceUser{FullName: "Ada Lovelace"},
				CheckinTime: time.Now().UTC(),
			},
		},
	}
}

func (f *fakeToggler) Toggle(_ context.Context, userID, _ string) (*model.ToggleResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, userID)
	release := f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	return f.result, f.err
}

func (f *fakeToggler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeHistory struct {
	mu      sync.Mutex
	calls   int
	records []model.AttendanceRecord
	err     error
}

func (f *fakeHistory) History(context.Context, string, time.Time, time.Time) ([]model.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.records, f.err
}

func (f *fakeHistory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestController(toggler *fakeToggler, history *fakeHistory) (*Controller, *gate.Gate, *stats.Store) {
	g := gate.New(5, time.Hour, nil)
	st := stats.NewStore()
	c := New(Options{
		StationID:   "gate-1",
		LocationID:  "loc1",
		HistoryDays: 1,
		Gate:        g,
		Toggler:     toggler,
		History:     history,
		Recent:      recent.NewStore(10),
		Stats:       st,
	}, nil)
	return c, g, st
}

func event(userID string) model.ScanEvent {
	return model.ScanEvent{
		EventID:    "ev-" + userID,
		Payload:    `{"userId":"` + userID + `"}`,
		UserID:     userID,
		DetectedAt: time.Now().UTC(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestAcceptedScanTogglesAndRefreshes(t *testing.T) {
	toggler := newFakeToggler()
	history := &fakeHistory{records: []model.AttendanceRecord{
		{User: model.AttendanceUser{FullName: "Ada Lovelace"}, CheckinTime: time.Now().UTC()},
	}}
	c, _, st := newTestController(toggler, history)
	defer c.Stop()

	c.Detected(event("u1"))
	waitFor(t, func() bool { return history.callCount() == 1 })

	if got := toggler.callCount(); got != 1 {
		t.Fatalf("expected 1 toggle call, got %d", got)
	}
	if got := c.Attendance(); len(got) != 1 || got[0].User.FullName != "Ada Lovelace" {
		t.Fatalf("history not cached: %+v", got)
	}
	snap := st.Snapshot()
	if snap.Accepted != 1 || snap.Checkins != 1 {
		t.Fatalf("counters wrong: %+v", snap)
	}
}

func TestSingleToggleInFlight(t *testing.T) {
	toggler := newFakeToggler()
	toggler.release = make(chan struct{})
	history := &fakeHistory{}
	c, g, st := newTestController(toggler, history)
	defer c.Stop()

	c.Detected(event("u1"))
	waitFor(t, func() bool { return toggler.callCount() == 1 })

	// new code appears and the original disappears while the call hangs
	c.NotDetected()
	c.Detected(event("u2"))

	if got := toggler.callCount(); got != 1 {
		t.Fatalf("second toggle dispatched while first in flight: %d calls", got)
	}
	snap := st.Snapshot()
	if snap.Rejected[model.RejectProcessing] != 1 {
		t.Fatalf("expected processing rejection, got %+v", snap.Rejected)
	}

	close(toggler.release)
	waitFor(t, func() bool { return g.Snapshot().State != gate.StateProcessing })
}

func TestToggleFailureLeavesHistoryStale(t *testing.T) {
	toggler := newFakeToggler()
	toggler.err = errors.New("backend down")
	toggler.result = nil
	history := &fakeHistory{}
	c, _, st := newTestController(toggler, history)
	defer c.Stop()

	c.Detected(event("u1"))
	waitFor(t, func() bool { return st.Snapshot().ToggleFailures == 1 })

	if history.callCount() != 0 {
		t.Fatalf("history refreshed after a failed toggle")
	}
	if len(c.Attendance()) != 0 {
		t.Fatalf("attendance cache changed after a failed toggle")
	}
}

func TestDecodeFailureTouchesNothing(t *testing.T) {
	toggler := newFakeToggler()
	history := &fakeHistory{}
	c, g, st := newTestController(toggler, history)
	defer c.Stop()

	c.DecodeFailed("%%garbage%%", errors.New("bad json"))

	if got := g.Snapshot().State; got != gate.StateIdle {
		t.Fatalf("gate state changed: %s", got)
	}
	snap := st.Snapshot()
	if snap.DecodeFailures != 1 || snap.Detections != 0 {
		t.Fatalf("counters wrong: %+v", snap)
	}
	if toggler.callCount() != 0 {
		t.Fatalf("toggle dispatched for a malformed payload")
	}
}

func TestHistoryFailureKeepsStaleList(t *testing.T) {
	toggler := newFakeToggler()
	history := &fakeHistory{records: []model.AttendanceRecord{
		{User: model.AttendanceUser{FullName: "Grace Hopper"}, CheckinTime: time.Now().UTC()},
	}}
	c, _, _ := newTestController(toggler, history)
	defer c.Stop()

	c.RefreshHistory()
	if len(c.Attendance()) != 1 {
		t.Fatalf("initial refresh did not populate the cache")
	}

	history.mu.Lock()
	history.err = errors.New("backend down")
	history.mu.Unlock()
	c.RefreshHistory()

	if got := c.Attendance(); len(got) != 1 || got[0].User.FullName != "Grace Hopper" {
		t.Fatalf("stale list lost on refresh failure: %+v", got)
	}
}

func TestStopDropsLateToggleResult(t *testing.T) {
	toggler := newFakeToggler()
	toggler.release = make(chan struct{})
	history := &fakeHistory{}
	c, _, st := newTestController(toggler, history)

	c.Detected(event("u1"))
	waitFor(t, func() bool { return toggler.callCount() == 1 })

	c.Stop()
	close(toggler.release)

	// give the dispatch goroutine time to observe the late result
	time.Sleep(20 * time.Millisecond)
	snap := st.Snapshot()
	if snap.Checkins != 0 {
		t.Fatalf("late toggle result applied after stop: %+v", snap)
	}
	if history.callCount() != 0 {
		t.Fatalf("history refreshed after stop")
	}

	// further listener calls after teardown are no-ops
	c.Detected(event("u2"))
	c.NotDetected()
	c.DecodeFailed("x", errors.New("x"))
	if toggler.callCount() != 1 {
		t.Fatalf("scan dispatched after stop")
	}
}

// TestScanFlowEndToEnd drives a full kiosk pass through the decode
// adapter: first member checks in, their code stays in frame past the
// cooldown, a second member is admitted only once the first code has left
// the frame.
func TestScanFlowEndToEnd(t *testing.T) {
	toggler := newFakeToggler()
	history := &fakeHistory{}
	g := gate.New(2, 3*time.Millisecond, nil)
	st := stats.NewStore()
	rec := recent.NewStore(10)
	c := New(Options{
		StationID:  "gate-1",
		LocationID: "loc1",
		Gate:       g,
		Toggler:    toggler,
		History:    history,
		Recent:     rec,
		Stats:      st,
	}, nil)
	defer c.Stop()

	adapter := decode.NewAdapter(c, time.Millisecond, 50*time.Millisecond, nil)
	defer adapter.Stop()

	u1 := `{"userId":"u1"}`
	adapter.Handle(capture.Raw{Payload: u1, At: time.Now()})
	waitFor(t, func() bool { return history.callCount() == 1 })
	if act, ok := rec.Latest(); !ok || act.Action != model.ActionCheckin {
		t.Fatalf("recent action not recorded: %+v ok=%v", act, ok)
	}

	// keep the first code in frame until the cooldown drains
	deadline := time.Now().Add(2 * time.Second)
	for g.Snapshot().State != gate.StateIdle {
		if !time.Now().Before(deadline) {
			t.Fatalf("gate never returned to idle: %+v", g.Snapshot())
		}
		time.Sleep(2 * time.Millisecond)
		adapter.Handle(capture.Raw{Payload: u1, At: time.Now()})
	}

	// cooldown expired but the code never left the frame
	time.Sleep(2 * time.Millisecond)
	adapter.Handle(capture.Raw{Payload: `{"userId":"u2"}`, At: time.Now()})
	if got := toggler.callCount(); got != 1 {
		t.Fatalf("second member admitted while first code still in frame: %d calls", got)
	}
	if st.Snapshot().Rejected[model.RejectStillVisible] == 0 {
		t.Fatalf("expected a still_visible rejection, got %+v", st.Snapshot().Rejected)
	}

	// the code leaves the frame; the silence watchdog relays it
	waitFor(t, func() bool { return !g.Snapshot().CodeVisible })

	adapter.Handle(capture.Raw{Payload: `{"userId":"u2"}`, At: time.Now()})
	waitFor(t, func() bool { return toggler.callCount() == 2 })
	waitFor(t, func() bool { return history.callCount() == 2 })
}

func TestResetClearsGateAndCounters(t *testing.T) {
	toggler := newFakeToggler()
	history := &fakeHistory{}
	c, g, st := newTestController(toggler, history)
	defer c.Stop()

	c.Detected(event("u1"))
	waitFor(t, func() bool { return toggler.callCount() == 1 })
	waitFor(t, func() bool { return g.Snapshot().State != gate.StateProcessing })

	c.Reset()
	if got := g.Snapshot().State; got != gate.StateIdle {
		t.Fatalf("gate not idle after reset: %s", got)
	}
	if snap := st.Snapshot(); snap.Accepted != 0 {
		t.Fatalf("counters not cleared: %+v", snap)
	}
}
