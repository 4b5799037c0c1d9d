package capture

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"scangate/internal/config"
)

// openTCP dials the scanner daemon's line stream. The dial must succeed
// for the profile to be considered open; after that, dropped connections
// are redialed with backoff for the life of the session.
func openTCP(ctx context.Context, p config.ProfileConfig, out chan<- Raw, logger *slog.Logger) error {
	conn, err := net.DialTimeout("tcp", p.Addr, 3*time.Second)
	if err != nil {
		return err
	}
	go streamTCP(ctx, conn, p.Addr, out, logger)
	return nil
}

func streamTCP(ctx context.Context, conn net.Conn, addr string, out chan<- Raw, logger *slog.Logger) {
	for {
		readLines(ctx, conn, "tcp", out, logger)
		_ = conn.Close()
		select {
		case <-ctx.Done():
			return
		default:
		}
		if logger != nil {
			logger.Warn("tcp capture disconnected, redialing", "addr", addr)
		}
		var err error
		for {
			if !BackoffSleep(ctx, 500*time.Millisecond) {
				return
			}
			conn, err = net.DialTimeout("tcp", addr, 3*time.Second)
			if err == nil {
				break
			}
		}
	}
}

func readLines(ctx context.Context, conn net.Conn, source string, out chan<- Raw, logger *slog.Logger) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 8192), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		SendNonBlocking(ctx, out, Raw{Payload: line, Source: source, At: time.Now()}, logger)
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
	if err := scanner.Err(); err != nil && logger != nil {
		logger.Warn("tcp capture read error", "err", err)
	}
}
