package capture

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"scangate/internal/config"
)

// openKafka consumes decoded payloads published by scanner fleets. The
// first broker must be reachable at open time so profile fallback can move
// on quickly.
func openKafka(ctx context.Context, p config.ProfileConfig, out chan<- Raw, logger *slog.Logger) error {
	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	conn, err := kafka.DialContext(dialCtx, "tcp", p.Brokers[0])
	if err != nil {
		return err
	}
	_ = conn.Close()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  p.Brokers,
		Topic:    p.Topic,
		GroupID:  p.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	go func() {
		defer reader.Close()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				continue
			}
			line := strings.TrimSpace(string(m.Value))
			if line == "" {
				continue
			}
			SendNonBlocking(ctx, out, Raw{Payload: line, Source: "kafka", At: time.Now()}, logger)
		}
	}()
	return nil
}
