package capture

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"scangate/internal/config"
)

type scanPush struct {
	Payload string `json:"payload"`
}

// openREST starts a push endpoint for scanner apps that POST decoded
// payloads. Binding the listen address is the open step; a port already in
// use or a privileged port rejects the profile.
func openREST(ctx context.Context, p config.ProfileConfig, out chan<- Raw, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", p.Addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/scan", func(w http.ResponseWriter, r *http.Request) {
		handleScanPush(ctx, w, r, out, logger)
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	server := &http.Server{Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("rest capture server error", "err", err)
			}
		}
	}()
	return nil
}

func handleScanPush(ctx context.Context, w http.ResponseWriter, r *http.Request, out chan<- Raw, logger *slog.Logger) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	trim := strings.TrimSpace(string(body))
	if trim == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	accepted := 0
	failed := 0
	push := func(payload string) {
		payload = strings.TrimSpace(payload)
		if payload == "" {
			failed++
			return
		}
		if SendNonBlocking(ctx, out, Raw{Payload: payload, Source: "rest", At: time.Now()}, logger) {
			accepted++
		} else {
			failed++
		}
	}

	if strings.HasPrefix(trim, "[") {
		var list []scanPush
		if err := json.Unmarshal([]byte(trim), &list); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, item := range list {
			push(item.Payload)
		}
	} else if strings.HasPrefix(trim, "{") {
		var item scanPush
		if err := json.Unmarshal([]byte(trim), &item); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if item.Payload != "" {
			push(item.Payload)
		} else {
			// a bare QR payload is itself a JSON object
			push(trim)
		}
	} else {
		push(trim)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{
		"accepted": accepted,
		"failed":   failed,
	})
}
