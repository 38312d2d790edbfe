package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// RescueLog is a manually entered pickup. Data holds the full entry as
// submitted, items with their weight estimates included.
type RescueLog struct {
	ID                int64
	Location          string
	RescuedAt         string
	TotalEstimatedLbs *float64
	Data              json.RawMessage
	CreatedAt         time.Time
}

// CreateRescueLog inserts l and sets its ID. CreatedAt defaults to now.
func (s *SQLiteStore) CreateRescueLog(ctx context.Context, l *RescueLog) error {
	if !json.Valid(l.Data) {
		return fmt.Errorf("rescue log data is not valid JSON")
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}

	query, args, err := sq.Insert("rescue_logs").
		Columns("location", "rescued_at", "start_day", "total_estimated_lbs", "data", "created_at").
		Values(l.Location, l.RescuedAt, startDay(l.RescuedAt), l.TotalEstimatedLbs, string(l.Data), l.CreatedAt.Format(time.RFC3339Nano)).
		ToSql()
	if err != nil {
		return fmt.Errorf("building rescue log insert: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("saving rescue log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading rescue log id: %w", err)
	}
	l.ID = id
	return nil
}

// ListRescueLogs returns rescue logs in ID order, filtered by the day of
// RescuedAt. HideAudited is ignored.
func (s *SQLiteStore) ListRescueLogs(ctx context.Context, opts ListOpts) ([]*RescueLog, error) {
	opts.HideAudited = false
	b := sq.Select("id", "location", "rescued_at", "total_estimated_lbs", "data", "created_at").
		From("rescue_logs").OrderBy("id")
	b = applyPage(applyFilter(b, opts, "id"), opts)

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building rescue log list query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing rescue logs: %w", err)
	}
	defer rows.Close()

	var out []*RescueLog
	for rows.Next() {
		var (
			l         RescueLog
			total     *float64
			data      string
			createdAt string
		)
		if err := rows.Scan(&l.ID, &l.Location, &l.RescuedAt, &total, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning rescue log: %w", err)
		}
		l.TotalEstimatedLbs = total
		l.Data = json.RawMessage(data)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			l.CreatedAt = t
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
