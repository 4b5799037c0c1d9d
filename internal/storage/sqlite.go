package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"scangate/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:scangate.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			station_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			user_id TEXT,
			accepted INTEGER NOT NULL,
			reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_ts ON scans(ts)`,
		`CREATE TABLE IF NOT EXISTS toggles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			station_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			user_name TEXT,
			phone TEXT,
			checkin_time TEXT,
			checkout_time TEXT,
			hours REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_toggles_user ON toggles(user_id, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveDecision(ctx context.Context, decision model.ScanDecision) error {
	if s.db == nil {
		return nil
	}
	accepted := 0
	if decision.Accepted {
		accepted = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (ts, station_id, event_id, user_id, accepted, reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		decision.Timestamp.UTC(),
		decision.StationID,
		decision.EventID,
		decision.UserID,
		accepted,
		string(decision.Reason),
	)
	return err
}

func (s *sqliteStore) SaveToggle(ctx context.Context, stationID string, ev model.ScanEvent, result model.ToggleResult) error {
	if s.db == nil {
		return nil
	}
	var checkout interface{}
	if result.Record.CheckoutTime != nil {
		checkout = result.Record.CheckoutTime.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO toggles (ts, station_id, event_id, user_id, action, user_name, phone, checkin_time, checkout_time, hours)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nowUTC(),
		stationID,
		ev.EventID,
		ev.UserID,
		string(result.Action),
		result.Record.User.FullName,
		result.Record.User.Phone,
		result.Record.CheckinTime.UTC(),
		checkout,
		result.Record.Hours,
	)
	return err
}
