package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// schemaVersion is bumped whenever a migration step is added below.
const schemaVersion = "3"

// migrate creates all tables if they don't exist and seeds metadata.
func (s *SQLiteStore) migrate() error {
	bootstrapDone, err := s.isMetaFlagEnabled("schema_bootstrap_complete")
	if err != nil {
		return fmt.Errorf("checking bootstrap state: %w", err)
	}

	if !bootstrapDone {
		if err := s.runBootstrapDDL(); err != nil {
			return err
		}
	}

	// Seed metadata (outside bootstrap transaction, meta table now exists)
	if err := s.seedMeta(); err != nil {
		return fmt.Errorf("seeding metadata: %w", err)
	}

	if !bootstrapDone {
		if err := s.setMetaFlag("schema_bootstrap_complete"); err != nil {
			return fmt.Errorf("marking bootstrap complete: %w", err)
		}
	}

	// Schema evolution: item_count column for store stats (v2).
	if err := s.migrateItemCountColumn(); err != nil {
		return fmt.Errorf("migrating item_count column: %w", err)
	}

	if err := s.migrateDayIndexes(); err != nil {
		return fmt.Errorf("migrating day indexes: %w", err)
	}

	// v3: manual rescue log entries.
	if err := s.migrateRescueLogs(); err != nil {
		return fmt.Errorf("migrating rescue_logs: %w", err)
	}

	return nil
}

func (s *SQLiteStore) runBootstrapDDL() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id           INTEGER PRIMARY KEY,
			user         TEXT NOT NULL DEFAULT '',
			start_ts     TEXT NOT NULL DEFAULT '',
			end_ts       TEXT NOT NULL DEFAULT '',
			start_day    TEXT,
			direction    TEXT NOT NULL DEFAULT 'unknown',
			data         TEXT NOT NULL,
			extracted_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS audited_records (
			id         INTEGER PRIMARY KEY,
			start_day  TEXT,
			data       TEXT NOT NULL,
			audited_at TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_records_direction ON records(direction)`,
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning bootstrap: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w\nSQL: %s", err, truncate(stmt, 100))
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) isMetaFlagEnabled(key string) (bool, error) {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists); err != nil {
		return false, err
	}
	if exists == 0 {
		return false, nil
	}

	value, err := s.getMetaValue(key)
	if err != nil {
		return false, err
	}
	return value == "true", nil
}

func (s *SQLiteStore) setMetaFlag(key string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, 'true')", key)
	return err
}

func (s *SQLiteStore) getMetaValue(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func isDuplicateColumnError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}

// migrateItemCountColumn adds records.item_count if it doesn't exist and
// backfills it from the stored JSON.
func (s *SQLiteStore) migrateItemCountColumn() error {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM pragma_table_info('records') WHERE name='item_count'",
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking for item_count column: %w", err)
	}
	if count > 0 {
		return nil // Already migrated
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning item_count migration: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("ALTER TABLE records ADD COLUMN item_count INTEGER NOT NULL DEFAULT 0"); err != nil {
		if !isDuplicateColumnError(err) {
			return fmt.Errorf("adding item_count column: %w", err)
		}
	}
	if _, err := tx.Exec("UPDATE records SET item_count = COALESCE(json_array_length(data, '$.items'), 0)"); err != nil {
		return fmt.Errorf("backfilling item_count: %w", err)
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion); err != nil {
		return fmt.Errorf("bumping schema_version: %w", err)
	}
	return tx.Commit()
}

// migrateDayIndexes adds the indexes behind date-range listing.
func (s *SQLiteStore) migrateDayIndexes() error {
	done, err := s.isMetaFlagEnabled("day_indexes_v1")
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_records_start_day ON records(start_day)`,
		`CREATE INDEX IF NOT EXISTS idx_audited_start_day ON audited_records(start_day)`,
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return s.setMetaFlag("day_indexes_v1")
}

// migrateRescueLogs creates the rescue_logs table for manual entries.
func (s *SQLiteStore) migrateRescueLogs() error {
	done, err := s.isMetaFlagEnabled("rescue_logs_v1")
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning rescue_logs migration: %w", err)
	}
	defer tx.Rollback()

	statements := []string{
		`CREATE TABLE IF NOT EXISTS rescue_logs (
			id                  INTEGER PRIMARY KEY AUTOINCREMENT,
			location            TEXT NOT NULL,
			rescued_at          TEXT NOT NULL,
			start_day           TEXT,
			total_estimated_lbs REAL,
			data                TEXT NOT NULL,
			created_at          TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rescue_logs_start_day ON rescue_logs(start_day)`,
		`INSERT OR REPLACE INTO meta (key, value) VALUES ('rescue_logs_v1', 'true')`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration: %w\nSQL: %s", err, truncate(stmt, 100))
		}
	}
	if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion); err != nil {
		return fmt.Errorf("bumping schema_version: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) seedMeta() error {
	defaults := map[string]string{
		"schema_version": "1",
		"created_at":     time.Now().UTC().Format(time.RFC3339),
	}

	for k, v := range defaults {
		_, err := s.db.Exec(
			"INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", k, v,
		)
		if err != nil {
			return fmt.Errorf("seeding meta key %q: %w", k, err)
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
