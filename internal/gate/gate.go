package gate

import (
	"log/slog"
	"sync"
	"time"

	"scangate/internal/model"
)

type State string

const (
	StateIdle       State = "idle"
	StateCooldown   State = "cooldown"
	StateProcessing State = "processing"
)

// Decision is the outcome of submitting one detection to the gate.
type Decision struct {
	Accepted bool
	Reason   model.RejectReason
}

// Gate decides which detections become attendance toggles. All state is
// private; Submit is the only transition that can accept a scan.
type Gate struct {
	mu     sync.Mutex
	logger *slog.Logger

	cooldownTicks int
	tickInterval  time.Duration

	lastAccepted    string
	remaining       int
	visible         bool
	heldSinceAccept bool
	processing      bool

	epoch     int
	countdown *Countdown
}

type Snapshot struct {
	State             State `json:"state"`
	CooldownRemaining int   `json:"cooldown_remaining"`
	CodeVisible       bool  `json:"code_visible"`
	Processing        bool  `json:"processing"`
}

func New(cooldownSeconds int, tickInterval time.Duration, logger *slog.Logger) *Gate {
	if cooldownSeconds <= 0 {
		cooldownSeconds = 5
	}
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &Gate{
		logger:        logger,
		cooldownTicks: cooldownSeconds,
		tickInterval:  tickInterval,
		countdown:     NewCountdown(tickInterval),
	}
}

// NoteDetected marks the code-visible signal true. Called by the decode
// adapter for every detection, accepted or not.
func (g *Gate) NoteDetected() {
	g.mu.Lock()
	g.visible = true
	g.mu.Unlock()
}

// NoteNotDetected marks the code-visible signal false. The decode adapter
// debounces this behind its silence window, so a single missed frame never
// reaches here.
func (g *Gate) NoteNotDetected() {
	g.mu.Lock()
	g.visible = false
	g.heldSinceAccept = false
	g.mu.Unlock()
}

// Submit evaluates one detection against the gate rules, in order:
// in-flight toggle, cooldown, duplicate payload, previous code never left
// the frame. Acceptance installs the new payload and restarts the
// countdown atomically.
func (g *Gate) Submit(payload string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.processing {
		return Decision{Reason: model.RejectProcessing}
	}
	if g.remaining > 0 {
		return Decision{Reason: model.RejectCooldown}
	}
	if g.lastAccepted != "" && payload == g.lastAccepted {
		return Decision{Reason: model.RejectDuplicate}
	}
	if g.heldSinceAccept && g.visible {
		// The previously accepted code has not left the frame since it
		// was accepted. Require a disappearance before re-accepting, or
		// a held-up card would toggle again the instant cooldown lapses.
		return Decision{Reason: model.RejectStillVisible}
	}

	g.lastAccepted = payload
	g.processing = true
	g.heldSinceAccept = true
	g.remaining = g.cooldownTicks
	g.epoch++
	epoch := g.epoch
	g.countdown.Start(g.cooldownTicks, func(remaining int) {
		g.tick(epoch, remaining)
	})
	return Decision{Accepted: true}
}

// tick applies one countdown decrement. Stale ticks from a cancelled run
// are dropped by the epoch check.
func (g *Gate) tick(epoch, remaining int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if epoch != g.epoch {
		return
	}
	g.remaining = remaining
	if remaining == 0 {
		g.lastAccepted = ""
	}
}

// ToggleResolved clears the in-flight flag once the attendance toggle call
// completes, success or failure.
func (g *Gate) ToggleResolved() {
	g.mu.Lock()
	g.processing = false
	g.mu.Unlock()
}

// Reset returns the gate to idle and cancels any running countdown.
// Called when the capture stream is stopped.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.epoch++
	g.lastAccepted = ""
	g.remaining = 0
	g.visible = false
	g.heldSinceAccept = false
	g.processing = false
	g.mu.Unlock()
	g.countdown.Cancel()
	if g.logger != nil {
		g.logger.Debug("gate reset")
	}
}

// SetCooldown adjusts the cooldown length for future acceptances.
func (g *Gate) SetCooldown(seconds int) {
	if seconds <= 0 {
		return
	}
	g.mu.Lock()
	g.cooldownTicks = seconds
	g.mu.Unlock()
}

func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := Snapshot{
		State:             StateIdle,
		CooldownRemaining: g.remaining,
		CodeVisible:       g.visible,
		Processing:        g.processing,
	}
	if g.processing {
		s.State = StateProcessing
	} else if g.remaining > 0 {
		s.State = StateCooldown
	}
	return s
}
