package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"scangate/internal/config"
)

var (
	ErrPermissionDenied = errors.New("capture permission denied")
	ErrDeviceNotFound   = errors.New("capture device not found")
	ErrUnavailable      = errors.New("capture source unavailable")
)

// Open tries each configured source profile in order and starts streaming
// from the first one that opens. It returns the name of the chosen profile
// or a classified error once every profile has been rejected. There is no
// automatic retry across the list; the operator restarts explicitly.
func Open(ctx context.Context, cfg *config.Manager, out chan<- Raw, logger *slog.Logger) (string, error) {
	profiles := cfg.Get().Capture.Profiles
	if len(profiles) == 0 {
		return "", ErrUnavailable
	}
	var lastErr error
	for _, p := range profiles {
		var err error
		name := strings.ToLower(p.Type)
		switch name {
		case "tcp":
			err = openTCP(ctx, p, out, logger)
		case "file":
			err = openFileTail(ctx, p, out, logger)
		case "kafka":
			err = openKafka(ctx, p, out, logger)
		case "rest":
			err = openREST(ctx, p, out, logger)
		default:
			err = fmt.Errorf("%w: unknown profile type %q", ErrUnavailable, p.Type)
		}
		if err == nil {
			if logger != nil {
				logger.Info("capture source opened", "profile", name, "addr", p.Addr, "path", p.Path)
			}
			return name, nil
		}
		if logger != nil {
			logger.Warn("capture profile failed", "profile", name, "err", err)
		}
		lastErr = err
	}
	return "", Classify(lastErr)
}

// Classify maps a raw open error onto the failure taxonomy.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ENOENT) {
		return fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// FailureMessage is the operator-facing message for a classified error.
func FailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "scanner access denied: check permissions on the scanner device and retry"
	case errors.Is(err, ErrDeviceNotFound):
		return "no scanner found: check the scanner connection and retry"
	default:
		return "scanner unavailable: check the scanner and retry"
	}
}
