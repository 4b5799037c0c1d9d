package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"scangate/internal/config"
	"scangate/internal/gate"
	"scangate/internal/model"
	"scangate/internal/recent"
	"scangate/internal/stats"
)

// GateStatus exposes the gate's read-only snapshot.
type GateStatus interface {
	Snapshot() gate.Snapshot
}

// Control is what the admin endpoints may do to the running controller.
type Control interface {
	Reset()
	RefreshHistory()
	Attendance() []model.AttendanceRecord
}

type Server struct {
	cfg     *config.Manager
	gate    GateStatus
	recent  *recent.Store
	stats   *stats.Store
	control Control
	hub     *Hub
	logger  *slog.Logger
	version string
	source  string
	started time.Time
}

type statusResponse struct {
	Status     string        `json:"status"`
	Time       string        `json:"time"`
	Version    string        `json:"version"`
	UptimeSec  int64         `json:"uptime_sec"`
	ConfigPath string        `json:"config_path"`
	StationID  string        `json:"station_id"`
	LocationID string        `json:"location_id"`
	Capture    string        `json:"capture_source"`
	Gate       gate.Snapshot `json:"gate"`
}

func Start(ctx context.Context, cfg *config.Manager, gateStatus GateStatus, recentStore *recent.Store, statsStore *stats.Store, control Control, hub *Hub, logger *slog.Logger, version, source string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:     cfg,
		gate:    gateStatus,
		recent:  recentStore,
		stats:   statsStore,
		control: control,
		hub:     hub,
		logger:  logger,
		version: version,
		source:  source,
		started: time.Now().UTC(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", server.handleHealth).Methods("GET")
	r.HandleFunc("/status", server.handleStatus).Methods("GET")
	r.HandleFunc("/recent", server.handleRecent).Methods("GET")
	r.HandleFunc("/stats", server.handleStats).Methods("GET")
	r.HandleFunc("/attendance", server.handleAttendance).Methods("GET")
	r.HandleFunc("/attendance/refresh", server.handleAttendanceRefresh).Methods("POST")
	if hub != nil {
		r.HandleFunc("/ws", hub.ServeWS)
	}

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(server.apiKeyRequired)
	admin.HandleFunc("/reset", server.handleReset).Methods("POST")
	admin.HandleFunc("/clear", server.handleClear).Methods("POST")

	httpServer := &http.Server{Addr: current.Addr, Handler: r}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

// apiKeyRequired guards admin endpoints when keys are configured.
func (s *Server) apiKeyRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys := s.cfg.Get().API.Keys
		if len(keys) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}
		for _, key := range keys {
			if apiKey == key {
				next.ServeHTTP(w, r)
				return
			}
		}
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		UptimeSec:  int64(time.Since(s.started).Seconds()),
		ConfigPath: s.cfg.Path(),
		StationID:  cfg.Station.ID,
		LocationID: cfg.Station.LocationID,
		Capture:    s.source,
	}
	if s.gate != nil {
		resp.Gate = s.gate.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	list := s.recent.List(limit)
	resp := map[string]any{
		"actions": list,
		"count":   len(list),
	}
	if latest, ok := s.recent.Latest(); ok {
		resp["latest"] = latest
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleAttendance(w http.ResponseWriter, _ *http.Request) {
	records := s.control.Attendance()
	writeJSON(w, http.StatusOK, map[string]any{
		"attendances": records,
		"count":       len(records),
	})
}

func (s *Server) handleAttendanceRefresh(w http.ResponseWriter, _ *http.Request) {
	s.control.RefreshHistory()
	records := s.control.Attendance()
	writeJSON(w, http.StatusOK, map[string]any{
		"attendances": records,
		"count":       len(records),
	})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.control.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.recent.Clear()
	s.stats.Clear()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
