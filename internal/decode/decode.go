package decode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scangate/internal/capture"
	"scangate/internal/model"
)

var ErrMissingUserID = errors.New("payload has no userId")

// Listener receives the adapter's detection events.
type Listener interface {
	Detected(ev model.ScanEvent)
	NotDetected()
	DecodeFailed(payload string, err error)
}

type qrPayload struct {
	UserID string `json:"userId"`
}

// ParsePayload extracts the user identifier from a raw QR payload. The
// payload must be a JSON object carrying a non-empty userId field.
func ParsePayload(raw string) (string, error) {
	var p qrPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return "", fmt.Errorf("parse payload: %w", err)
	}
	if strings.TrimSpace(p.UserID) == "" {
		return "", ErrMissingUserID
	}
	return strings.TrimSpace(p.UserID), nil
}

// Adapter turns raw capture lines into detection events. It caps decode
// attempts at one per minInterval and synthesizes NotDetected once no line
// for the current code has arrived within the silence window.
type Adapter struct {
	mu          sync.Mutex
	listener    Listener
	logger      *slog.Logger
	minInterval time.Duration
	silence     time.Duration

	lastAttempt time.Time
	lastRaw     string
	watchdog    *time.Timer
	stopped     bool
}

func NewAdapter(listener Listener, minInterval, silence time.Duration, logger *slog.Logger) *Adapter {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	if silence <= 0 {
		silence = 500 * time.Millisecond
	}
	return &Adapter{
		listener:    listener,
		logger:      logger,
		minInterval: minInterval,
		silence:     silence,
	}
}

// Start consumes the capture channel until ctx is done.
func (a *Adapter) Start(ctx context.Context, in <-chan capture.Raw) {
	go func() {
		for {
			select {
			case raw := <-in:
				a.Handle(raw)
			case <-ctx.Done():
				a.Stop()
				return
			}
		}
	}()
}

// Handle processes a single raw line from the scanner.
func (a *Adapter) Handle(raw capture.Raw) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	now := raw.At
	if now.IsZero() {
		now = time.Now()
	}

	// Repeats of the code already in frame keep visibility alive without
	// re-decoding.
	if a.lastRaw != "" && raw.Payload == a.lastRaw {
		a.resetWatchdogLocked()
		if now.Sub(a.lastAttempt) < a.minInterval {
			a.mu.Unlock()
			return
		}
	} else if now.Sub(a.lastAttempt) < a.minInterval {
		a.mu.Unlock()
		return
	}
	a.lastAttempt = now
	a.mu.Unlock()

	userID, err := ParsePayload(raw.Payload)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("decode failed", "source", raw.Source, "err", err)
		}
		a.listener.DecodeFailed(raw.Payload, err)
		return
	}

	a.mu.Lock()
	a.lastRaw = raw.Payload
	a.resetWatchdogLocked()
	a.mu.Unlock()

	a.listener.Detected(model.ScanEvent{
		EventID:    uuid.NewString(),
		Payload:    raw.Payload,
		UserID:     userID,
		DetectedAt: now,
		Source:     raw.Source,
	})
}

func (a *Adapter) resetWatchdogLocked() {
	if a.watchdog != nil {
		a.watchdog.Stop()
	}
	a.watchdog = time.AfterFunc(a.silence, a.fireSilence)
}

func (a *Adapter) fireSilence() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.lastRaw = ""
	a.mu.Unlock()
	a.listener.NotDetected()
}

func (a *Adapter) Stop() {
	a.mu.Lock()
	a.stopped = true
	if a.watchdog != nil {
		a.watchdog.Stop()
		a.watchdog = nil
	}
	a.mu.Unlock()
}

// SetIntervals adjusts the decode rate cap and silence window, for config
// hot reload.
func (a *Adapter) SetIntervals(minInterval, silence time.Duration) {
	a.mu.Lock()
	if minInterval > 0 {
		a.minInterval = minInterval
	}
	if silence > 0 {
		a.silence = silence
	}
	a.mu.Unlock()
}
