package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hurttlocker/rescuelog/internal/record"
)

// ReplaceRecords swaps the stored records for a fresh extraction run.
// Audited corrections are left untouched.
func (s *SQLiteStore) ReplaceRecords(ctx context.Context, records []record.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}

	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		ins := sq.Insert("records").
			Columns("id", "user", "start_ts", "end_ts", "start_day", "direction", "item_count", "data")
		for _, rec := range records[start:end] {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encoding record %d: %w", rec.ID, err)
			}
			ins = ins.Values(rec.ID, rec.User, rec.StartTS, rec.EndTS,
				startDay(rec.StartTS, rec.EndTS), string(rec.Direction), len(rec.Items), string(data))
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("building insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting records: %w", err)
		}
	}

	return tx.Commit()
}

// GetRecord retrieves a record by ID.
func (s *SQLiteStore) GetRecord(ctx context.Context, id int64) (*record.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data FROM records WHERE id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %d: %w", id, err)
	}
	var rec record.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decoding record %d: %w", id, err)
	}
	return &rec, nil
}

// ListRecords returns records in ID order.
func (s *SQLiteStore) ListRecords(ctx context.Context, opts ListOpts) ([]record.Record, error) {
	b := sq.Select("data").From("records").OrderBy("id")
	b = applyPage(applyFilter(b, opts, "id"), opts)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		var rec record.Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountRecords returns how many records match opts, ignoring pagination.
func (s *SQLiteStore) CountRecords(ctx context.Context, opts ListOpts) (int, error) {
	return s.count(ctx, applyFilter(sq.Select("COUNT(*)").From("records"), opts, "id"))
}

// RecordPosition returns the zero-based index of id within the records
// matching opts. ok is false when the record exists but is filtered out.
func (s *SQLiteStore) RecordPosition(ctx context.Context, id int64, opts ListOpts) (int, bool, error) {
	in, err := s.count(ctx, applyFilter(sq.Select("COUNT(*)").From("records").Where(sq.Eq{"id": id}), opts, "id"))
	if err != nil {
		return 0, false, err
	}
	if in == 0 {
		return 0, false, nil
	}
	before, err := s.count(ctx, applyFilter(sq.Select("COUNT(*)").From("records").Where(sq.Lt{"id": id}), opts, "id"))
	if err != nil {
		return 0, false, err
	}
	return before, true, nil
}
