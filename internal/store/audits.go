package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// auditHeader is the subset of an audited record the store indexes.
type auditHeader struct {
	StartTS string `json:"start_ts"`
	EndTS   string `json:"end_ts"`
}

// SaveAudit inserts or replaces the audited correction for a.ID.
// AuditedAt defaults to now.
func (s *SQLiteStore) SaveAudit(ctx context.Context, a *Audit) error {
	var hdr auditHeader
	if err := json.Unmarshal(a.Data, &hdr); err != nil {
		return fmt.Errorf("decoding audit %d: %w", a.ID, err)
	}
	if a.AuditedAt.IsZero() {
		a.AuditedAt = time.Now().UTC()
	}

	query, args, err := sq.Insert("audited_records").
		Columns("id", "start_day", "data", "audited_at").
		Values(a.ID, startDay(hdr.StartTS, hdr.EndTS), string(a.Data), a.AuditedAt.Format(time.RFC3339Nano)).
		Suffix("ON CONFLICT(id) DO UPDATE SET start_day = excluded.start_day, data = excluded.data, audited_at = excluded.audited_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building audit upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("saving audit %d: %w", a.ID, err)
	}
	return nil
}

// GetAudit retrieves the audited correction for id.
func (s *SQLiteStore) GetAudit(ctx context.Context, id int64) (*Audit, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, data, audited_at FROM audited_records WHERE id = ?", id)
	a, err := scanAudit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audit %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting audit %d: %w", id, err)
	}
	return a, nil
}

// ListAudits returns audited corrections in ID order. HideAudited is
// meaningless here and ignored.
func (s *SQLiteStore) ListAudits(ctx context.Context, opts ListOpts) ([]*Audit, error) {
	opts.HideAudited = false
	b := sq.Select("id", "data", "audited_at").From("audited_records").OrderBy("id")
	b = applyPage(applyFilter(b, opts, "id"), opts)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building audit list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing audits: %w", err)
	}
	defer rows.Close()

	var out []*Audit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning audit: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountAudits returns how many audits match opts, ignoring pagination.
func (s *SQLiteStore) CountAudits(ctx context.Context, opts ListOpts) (int, error) {
	opts.HideAudited = false
	return s.count(ctx, applyFilter(sq.Select("COUNT(*)").From("audited_records"), opts, "id"))
}

// AuditedIDs returns the set of record IDs with an audited correction.
func (s *SQLiteStore) AuditedIDs(ctx context.Context) (map[int64]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM audited_records")
	if err != nil {
		return nil, fmt.Errorf("listing audited ids: %w", err)
	}
	defer rows.Close()

	ids := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// DeleteAudit removes the audited correction for id. Deleting a missing
// audit is not an error.
func (s *SQLiteStore) DeleteAudit(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM audited_records WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting audit %d: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAudit(row rowScanner) (*Audit, error) {
	var (
		a         Audit
		data      string
		auditedAt string
	)
	if err := row.Scan(&a.ID, &data, &auditedAt); err != nil {
		return nil, err
	}
	a.Data = json.RawMessage(data)
	if t, err := time.Parse(time.RFC3339Nano, auditedAt); err == nil {
		a.AuditedAt = t
	}
	return &a, nil
}
