// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pension-crawler/internal/crawler"
)

// DefaultTable receives exported items when no table is configured.
const DefaultTable = "pension_results"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ResultStoreConfig controls the Postgres connection pool used for result rows.
type ResultStoreConfig struct {
	DSN             string
	Table           string
	RunID           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ResultStore inserts one row per exported item.
type ResultStore struct {
	pool  execCloser
	table string
	runID string
	ids   crawler.IDGenerator
}

// NewResultStore connects to Postgres using the provided config.
func NewResultStore(ctx context.Context, cfg ResultStoreConfig, ids crawler.IDGenerator) (*ResultStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewResultStoreWithPool(pool, cfg.Table, cfg.RunID, ids)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewResultStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewResultStoreWithPool(pool execCloser, table, runID string, ids crawler.IDGenerator) (*ResultStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if ids == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ResultStore{pool: pool, table: table, runID: runID, ids: ids}, nil
}

// Close releases the underlying pool resources.
func (s *ResultStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the results table when it does not exist.
func (s *ResultStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	row_id        INTEGER NOT NULL,
	keyword       TEXT,
	url           TEXT NOT NULL,
	href          TEXT,
	title         TEXT,
	snippet       TEXT,
	link_text     TEXT,
	total         TEXT,
	state         TEXT,
	system        TEXT,
	report_type   TEXT,
	year          TEXT,
	page_count    INTEGER,
	path          TEXT,
	downloaded    BOOLEAN NOT NULL DEFAULT FALSE,
	discovered_at TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Export inserts item. Year and page count are stored as NULL when absent.
func (s *ResultStore) Export(ctx context.Context, item crawler.ResultItem) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("result store is not configured")
	}
	id, err := s.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate result id: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, run_id, row_id, keyword, url, href, title, snippet, link_text, total,
	state, system, report_type, year, page_count, path, downloaded, discovered_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18
)`, s.table)

	args := []any{
		id,
		s.runID,
		item.RowID,
		item.Keyword,
		item.URL,
		item.Href,
		item.Title,
		item.Snippet,
		item.Text,
		item.Total,
		item.State,
		item.System,
		item.ReportType,
		nullable(item.Year),
		nullable(item.PageCount),
		item.DownloadedPath,
		item.Downloaded,
		item.Timestamp,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
