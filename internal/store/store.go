// Package store provides the SQLite storage layer for rescuelog.
//
// A single database file holds:
// - Extracted records, one row per session, keyed by emission ID
// - Audited corrections, an overlay keyed by the same ID
// - Manually entered rescue logs
// - Schema metadata for migrations
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/hurttlocker/rescuelog/internal/record"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.rescuelog/rescuelog.db"

// DefaultBatchSize is the default batch size for bulk inserts.
const DefaultBatchSize = 500

// ErrNotFound is returned when a record or audit does not exist.
var ErrNotFound = errors.New("not found")

// ListOpts controls pagination and filtering for List operations.
type ListOpts struct {
	Limit  int
	Offset int

	// StartDate and EndDate are inclusive YYYY-MM-DD bounds on the record's
	// start day (end day when the start is missing). Records with no usable
	// timestamp are excluded whenever either bound is set.
	StartDate string
	EndDate   string

	// HideAudited drops records that have an audited correction.
	HideAudited bool
}

// Audit is a stored audited correction. Data is the corrected record as the
// reviewer submitted it, annotations included.
type Audit struct {
	ID        int64
	Data      json.RawMessage
	AuditedAt time.Time
}

// StoreStats holds observability statistics about the store.
type StoreStats struct {
	RecordCount int64
	AuditCount  int64
	ItemCount   int64
	ByDirection map[string]int64
	DBSizeBytes int64
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath    string
	BatchSize int
}

// Store defines the record storage interface.
type Store interface {
	// Records
	ReplaceRecords(ctx context.Context, records []record.Record) error
	GetRecord(ctx context.Context, id int64) (*record.Record, error)
	ListRecords(ctx context.Context, opts ListOpts) ([]record.Record, error)
	CountRecords(ctx context.Context, opts ListOpts) (int, error)
	RecordPosition(ctx context.Context, id int64, opts ListOpts) (int, bool, error)

	// Audited corrections
	SaveAudit(ctx context.Context, a *Audit) error
	GetAudit(ctx context.Context, id int64) (*Audit, error)
	ListAudits(ctx context.Context, opts ListOpts) ([]*Audit, error)
	CountAudits(ctx context.Context, opts ListOpts) (int, error)
	AuditedIDs(ctx context.Context) (map[int64]bool, error)
	DeleteAudit(ctx context.Context, id int64) error

	// Manual rescue log entries
	CreateRescueLog(ctx context.Context, l *RescueLog) error
	ListRescueLogs(ctx context.Context, opts ListOpts) ([]*RescueLog, error)

	// Observability
	Stats(ctx context.Context) (*StoreStats, error)

	// Maintenance
	Vacuum(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	dbPath    string
	batchSize int
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}
	cfg.DBPath = expandPath(cfg.DBPath)
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{
		db:        db,
		dbPath:    cfg.DBPath,
		batchSize: cfg.BatchSize,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database. Manual only, never automatic.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Stats returns row counts and the on-disk size.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	stats := &StoreStats{ByDirection: map[string]int64{}}

	queries := []struct {
		query string
		dest  *int64
	}{
		{"SELECT COUNT(*) FROM records", &stats.RecordCount},
		{"SELECT COUNT(*) FROM audited_records", &stats.AuditCount},
		{"SELECT COALESCE(SUM(item_count), 0) FROM records", &stats.ItemCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("querying stats (%s): %w", q.query, err)
		}
	}

	rows, err := s.db.QueryContext(ctx, "SELECT direction, COUNT(*) FROM records GROUP BY direction")
	if err != nil {
		return nil, fmt.Errorf("querying direction counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var dir string
		var n int64
		if err := rows.Scan(&dir, &n); err != nil {
			return nil, fmt.Errorf("scanning direction count: %w", err)
		}
		stats.ByDirection[dir] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Size is only meaningful for file-based DBs
	if s.dbPath != ":memory:" {
		var pageCount, pageSize int64
		s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
		s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		stats.DBSizeBytes = pageCount * pageSize
	}
	return stats, nil
}

// applyFilter adds the ListOpts date and audit filters to a query over a
// table with a start_day column.
func applyFilter(b sq.SelectBuilder, opts ListOpts, idColumn string) sq.SelectBuilder {
	if opts.StartDate != "" {
		b = b.Where(sq.GtOrEq{"start_day": opts.StartDate})
	}
	if opts.EndDate != "" {
		b = b.Where(sq.LtOrEq{"start_day": opts.EndDate})
	}
	if opts.HideAudited {
		b = b.Where(sq.Expr(idColumn + " NOT IN (SELECT id FROM audited_records)"))
	}
	return b
}

func applyPage(b sq.SelectBuilder, opts ListOpts) sq.SelectBuilder {
	if opts.Limit > 0 {
		b = b.Limit(uint64(opts.Limit))
	}
	if opts.Offset > 0 {
		if opts.Limit <= 0 {
			// SQLite requires LIMIT before OFFSET
			b = b.Limit(1<<63 - 1)
		}
		b = b.Offset(uint64(opts.Offset))
	}
	return b
}

func (s *SQLiteStore) count(ctx context.Context, b sq.SelectBuilder) (int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("building count query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting: %w", err)
	}
	return n, nil
}

// startDay returns the YYYY-MM-DD day of the first parseable timestamp, or
// nil when none parses.
func startDay(timestamps ...string) interface{} {
	for _, ts := range timestamps {
		if t := record.ParseTimestamp(ts); t != nil {
			return t.UTC().Format("2006-01-02")
		}
	}
	return nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
