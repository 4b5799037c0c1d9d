package capture

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"scangate/internal/config"
)

// openFileTail follows the scanner daemon's decode log. The file must
// exist and be readable at open time; rotation is handled afterwards.
func openFileTail(ctx context.Context, p config.ProfileConfig, out chan<- Raw, logger *slog.Logger) error {
	f, err := os.Open(p.Path)
	if err != nil {
		return err
	}
	var offset int64
	if p.StartAtEnd {
		if pos, err := f.Seek(0, io.SeekEnd); err == nil {
			offset = pos
		}
	}
	go tailFile(ctx, f, p.Path, offset, out, logger)
	return nil
}

func tailFile(ctx context.Context, file *os.File, path string, offset int64, out chan<- Raw, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			if file != nil {
				_ = file.Close()
			}
			return
		default:
		}
		if file == nil {
			f, err := os.Open(path)
			if err != nil {
				if logger != nil {
					logger.Warn("tail reopen failed", "path", path, "err", err)
				}
				if !BackoffSleep(ctx, 500*time.Millisecond) {
					return
				}
				continue
			}
			file = f
			offset = 0
		}

		reader := bufio.NewReader(file)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF {
					if !BackoffSleep(ctx, 200*time.Millisecond) {
						_ = file.Close()
						return
					}
					info, statErr := os.Stat(path)
					if statErr == nil && info.Size() < offset {
						// rotated
						_ = file.Close()
						file = nil
						break
					}
					continue
				}
				if logger != nil {
					logger.Warn("tail read error", "path", path, "err", err)
				}
				_ = file.Close()
				file = nil
				break
			}
			offset += int64(len(line))
			trimmed := trimLine(line)
			if trimmed == "" {
				continue
			}
			SendNonBlocking(ctx, out, Raw{Payload: trimmed, Source: "file", At: time.Now()}, logger)
		}
	}
}

func trimLine(line string) string {
	start := 0
	for start < len(line) && (line[start] == ' ' || line[start] == '\t') {
		start++
	}
	end := len(line)
	for end > start && (line[end-1] == '\n' || line[end-1] == '\r' || line[end-1] == ' ' || line[end-1] == '\t') {
		end--
	}
	return line[start:end]
}
