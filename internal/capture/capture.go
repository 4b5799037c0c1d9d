package capture

import (
	"context"
	"log/slog"
	"time"
)

// Raw is one undecoded payload line read from a scanner source.
type Raw struct {
	Payload string
	Source  string
	At      time.Time
}

func SendNonBlocking(ctx context.Context, out chan<- Raw, raw Raw, logger *slog.Logger) bool {
	select {
	case out <- raw:
		return true
	case <-ctx.Done():
		return false
	default:
		if logger != nil {
			logger.Warn("capture channel full, dropping line", "source", raw.Source)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
