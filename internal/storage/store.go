package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"scangate/internal/config"
	"scangate/internal/model"
)

// Store is the local audit trail of gate decisions and toggle outcomes.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	SaveDecision(ctx context.Context, decision model.ScanDecision) error
	SaveToggle(ctx context.Context, stationID string, ev model.ScanEvent, result model.ToggleResult) error
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	default:
		return nil, errors.New("unsupported storage driver")
	}
}

type baseStore struct {
	db *sql.DB
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
