package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/rhysr01/jobping/internal/store/dbutil"
)

var (
	// ErrNotFound is returned when a keyed lookup has no row.
	ErrNotFound = errors.New("not found")
	// ErrVectorUnsupported marks failures caused by a database without vector search support.
	ErrVectorUnsupported = errors.New("vector search unsupported")
)

// Postgres error codes that mean the pgvector extension, its type, operators or the
// embedding column are missing.
var vectorCapabilityCodes = map[string]struct{}{
	"42883": {}, // undefined_function (operator <=> missing)
	"42704": {}, // undefined_object (type vector missing)
	"42703": {}, // undefined_column
	"0A000": {}, // feature_not_supported
	"58P01": {}, // undefined_file (extension not installed)
}

type Config struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max-open-conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn-max-lifetime"`
}

// Store is the Postgres backed job pool, profile store, match sink and send ledger.
type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("database dsn is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// classifyVectorErr wraps err with ErrVectorUnsupported when it comes from missing vector support.
func classifyVectorErr(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := vectorCapabilityCodes[dbutil.Code(err)]; ok {
		return fmt.Errorf("%w: %v", ErrVectorUnsupported, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "type \"vector\" does not exist") || strings.Contains(msg, "operator does not exist") {
		return fmt.Errorf("%w: %v", ErrVectorUnsupported, err)
	}
	return err
}
