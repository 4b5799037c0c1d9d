package controller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"scangate/internal/gate"
	"scangate/internal/model"
	"scangate/internal/recent"
	"scangate/internal/stats"
	"scangate/internal/storage"
)

// Toggler flips attendance state on the backend.
type Toggler interface {
	Toggle(ctx context.Context, userID, locationID string) (*model.ToggleResult, error)
}

// HistorySource fetches attendance records for display.
type HistorySource interface {
	History(ctx context.Context, locationID string, start, end time.Time) ([]model.AttendanceRecord, error)
}

// Broadcaster pushes successful toggles to connected displays.
type Broadcaster interface {
	BroadcastRecent(action model.RecentAction)
}

// Controller wires the decode stream through the gate to the backend.
// It is the decode adapter's Listener.
type Controller struct {
	logger      *slog.Logger
	stationID   string
	locationID  string
	historyDays int

	gate    *gate.Gate
	toggler Toggler
	history HistorySource
	recent  *recent.Store
	stats   *stats.Store
	store   storage.Store
	hub     Broadcaster

	mu         sync.RWMutex
	attendance []model.AttendanceRecord

	closed atomic.Bool
}

type Options struct {
	StationID   string
	LocationID  string
	HistoryDays int
	Gate        *gate.Gate
	Toggler     Toggler
	History     HistorySource
	Recent      *recent.Store
	Stats       *stats.Store
	Store       storage.Store
	Hub         Broadcaster
}

func New(opts Options, logger *slog.Logger) *Controller {
	days := opts.HistoryDays
	if days <= 0 {
		days = 1
	}
	return &Controller{
		logger:      logger,
		stationID:   opts.StationID,
		locationID:  opts.LocationID,
		historyDays: days,
		gate:        opts.Gate,
		toggler:     opts.Toggler,
		history:     opts.History,
		recent:      opts.Recent,
		stats:       opts.Stats,
		store:       opts.Store,
		hub:         opts.Hub,
	}
}

// Detected submits one decoded scan to the gate and dispatches accepted
// scans to the toggle client. Rejections only bump counters.
func (c *Controller) Detected(ev model.ScanEvent) {
	if c.closed.Load() {
		return
	}
	c.stats.Detection()
	c.gate.NoteDetected()
	decision := c.gate.Submit(ev.Payload)

	if c.store != nil {
		_ = c.store.SaveDecision(context.Background(), model.ScanDecision{
			Timestamp: ev.DetectedAt,
			StationID: c.stationID,
			EventID:   ev.EventID,
			UserID:    ev.UserID,
			Accepted:  decision.Accepted,
			Reason:    decision.Reason,
		})
	}
	if !decision.Accepted {
		c.stats.Rejected(decision.Reason)
		if c.logger != nil {
			c.logger.Debug("scan rejected", "reason", decision.Reason, "user_id", ev.UserID)
		}
		return
	}
	c.stats.Accepted()
	if c.logger != nil {
		c.logger.Info("scan accepted", "event_id", ev.EventID, "user_id", ev.UserID)
	}
	go c.dispatch(ev)
}

// NotDetected relays the debounced code-gone signal to the gate.
func (c *Controller) NotDetected() {
	if c.closed.Load() {
		return
	}
	c.gate.NoteNotDetected()
}

// DecodeFailed surfaces a malformed payload. Gate state is untouched.
func (c *Controller) DecodeFailed(payload string, err error) {
	if c.closed.Load() {
		return
	}
	c.stats.DecodeFailure()
	if c.logger != nil {
		c.logger.Warn("unreadable scan payload", "err", err)
	}
}

// dispatch runs the toggle call for an accepted scan. Failures are not
// retried; the member re-presents the card once cooldown lapses.
func (c *Controller) dispatch(ev model.ScanEvent) {
	result, err := c.toggler.Toggle(context.Background(), ev.UserID, c.locationID)
	c.gate.ToggleResolved()
	if c.closed.Load() {
		// torn down while the call was in flight; drop the late result
		return
	}
	if err != nil {
		c.stats.ToggleFailure()
		if c.logger != nil {
			c.logger.Warn("attendance toggle failed", "event_id", ev.EventID, "user_id", ev.UserID, "err", err)
		}
		return
	}

	action := model.RecentAction{
		Timestamp: time.Now().UTC(),
		User:      result.Record.User,
		Action:    result.Action,
		Hours:     result.Record.Hours,
		EventID:   ev.EventID,
	}
	c.recent.Add(action)
	c.stats.Toggled(result.Action)
	if c.logger != nil {
		c.logger.Info("attendance toggled",
			"event_id", ev.EventID,
			"user_id", ev.UserID,
			"action", result.Action,
		)
	}
	if c.hub != nil {
		c.hub.BroadcastRecent(action)
	}
	if c.store != nil {
		_ = c.store.SaveToggle(context.Background(), c.stationID, ev, *result)
	}
	c.RefreshHistory()
}

// RefreshHistory reloads the display list. The result wholly replaces the
// cached list; on failure the stale list stays up.
func (c *Controller) RefreshHistory() {
	if c.closed.Load() {
		return
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -c.historyDays)
	records, err := c.history.History(context.Background(), c.locationID, start, end)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("history refresh failed", "err", err)
		}
		return
	}
	if c.closed.Load() {
		return
	}
	c.mu.Lock()
	c.attendance = records
	c.mu.Unlock()
}

// Attendance returns the cached display list from the last refresh.
func (c *Controller) Attendance() []model.AttendanceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.AttendanceRecord, len(c.attendance))
	copy(out, c.attendance)
	return out
}

// Reset clears gate state and counters. Exposed for the admin API.
func (c *Controller) Reset() {
	c.gate.Reset()
	c.stats.Clear()
}

// Stop tears the controller down: the gate resets and any toggle response
// arriving afterwards is silently dropped. The in-flight call itself is
// not cancelled.
func (c *Controller) Stop() {
	if c.closed.Swap(true) {
		return
	}
	c.gate.Reset()
	if c.logger != nil {
		c.logger.Info("controller stopped")
	}
}
