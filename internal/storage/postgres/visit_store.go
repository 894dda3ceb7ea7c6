// Package postgres provides the Postgres-backed visit ledger.
package postgres

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/linkplayer/internal/report"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// VisitStoreConfig controls the Postgres connection pool used for visit rows.
type VisitStoreConfig struct {
	DSN      string
	Table    string
	MaxConns int32
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// VisitStore writes one row per visited link. It implements report.Recorder.
type VisitStore struct {
	pool  execCloser
	table string
}

// NewVisitStore connects a pool using cfg.
func NewVisitStore(ctx context.Context, cfg VisitStoreConfig) (*VisitStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("report.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &VisitStore{pool: pool, table: table}, nil
}

// NewVisitStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewVisitStoreWithPool(pool execCloser, table string) (*VisitStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &VisitStore{pool: pool, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "visits"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *VisitStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordVisit inserts v.
func (s *VisitStore) RecordVisit(ctx context.Context, v report.Visit) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("visit store is not configured")
	}
	if v.RunID == "" {
		return fmt.Errorf("visit run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	node_index,
	node_total,
	link_index,
	url,
	outcome,
	stage,
	play_method,
	screenshot_uri,
	error_text,
	started_at,
	finished_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, s.table)

	args := []any{
		v.RunID,
		v.NodeIndex,
		v.NodeTotal,
		v.Index,
		v.URL,
		string(v.Outcome),
		v.Stage,
		string(v.PlayMethod),
		v.ScreenshotURI,
		v.Error,
		v.StartedAt,
		v.FinishedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// RecordSummary is a no-op; the summary is derivable from the visit rows.
func (*VisitStore) RecordSummary(context.Context, report.Summary) error { return nil }
