package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"scangate/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/scangate?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scans (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			station_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			user_id TEXT,
			accepted BOOLEAN NOT NULL,
			reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scans_ts ON scans(ts)`,
		`CREATE TABLE IF NOT EXISTS toggles (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			station_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			user_name TEXT,
			phone TEXT,
			checkin_time TIMESTAMPTZ,
			checkout_time TIMESTAMPTZ,
			hours DOUBLE PRECISION
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

func (s *postgresStore) SaveDecision(ctx context.Context, decision model.ScanDecision) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (ts, station_id, event_id, user_id, accepted, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		decision.Timestamp.UTC(),
		decision.StationID,
		decision.EventID,
		decision.UserID,
		decision.Accepted,
		string(decision.Reason),
	)
	return err
}

func (s *postgresStore) SaveToggle(ctx context.Context, stationID string, ev model.ScanEvent, result model.ToggleResult) error {
	if s.db == nil {
		return nil
	}
	var checkout interface{}
	if result.Record.CheckoutTime != nil {
		checkout = result.Record.CheckoutTime.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO toggles (ts, station_id, event_id, user_id, action, user_name, phone, checkin_time, checkout_time, hours)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
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
