package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hurttlocker/rescuelog/internal/record"
	"github.com/hurttlocker/rescuelog/internal/store"
)

// RescueLog is a pickup entered by hand rather than extracted from chat.
type RescueLog struct {
	ID                int           `json:"id"`
	Location          string        `json:"location"`
	LocationCanonical string        `json:"location_canonical"`
	RescuedAt         string        `json:"rescued_at"`
	Items             []record.Item `json:"items"`
	TotalEstimatedLbs *float64      `json:"total_estimated_lbs"`
	PhotoURLs         []string      `json:"photo_urls"`
	Notes             string        `json:"notes,omitempty"`
}

// CreateRescueLog validates and stores a manual rescue log. Items without an
// estimate are estimated, and the total is their sum rounded to one decimal,
// or nil when nothing weighs anything. Returns the stored entry with its ID.
func (e *Engine) CreateRescueLog(ctx context.Context, l RescueLog) (RescueLog, error) {
	l.Location = strings.TrimSpace(l.Location)
	if l.Location == "" {
		return RescueLog{}, fmt.Errorf("%w: missing required field: location", ErrInvalidRescueLog)
	}
	if strings.TrimSpace(l.RescuedAt) == "" {
		return RescueLog{}, fmt.Errorf("%w: missing required field: rescued_at", ErrInvalidRescueLog)
	}
	if l.LocationCanonical == "" {
		l.LocationCanonical = e.aliases.Canonicalize(l.Location)
	}
	if l.PhotoURLs == nil {
		l.PhotoURLs = []string{}
	}

	items := make([]record.Item, len(l.Items))
	var total float64
	for i, it := range l.Items {
		if it.EstimatedLbs == nil {
			if est := e.weights.Estimate(it.Quantity, unitText(it), it.Name); est != nil {
				it.EstimatedLbs = record.Float(round(*est, 1))
			}
		}
		if it.EstimatedLbs != nil {
			total += *it.EstimatedLbs
		}
		items[i] = it
	}
	l.Items = items
	l.TotalEstimatedLbs = nil
	if total > 0 {
		l.TotalEstimatedLbs = record.Float(round(total, 1))
	}

	data, err := json.Marshal(l)
	if err != nil {
		return RescueLog{}, fmt.Errorf("encoding rescue log: %w", err)
	}
	row := &store.RescueLog{
		Location:          l.Location,
		RescuedAt:         l.RescuedAt,
		TotalEstimatedLbs: l.TotalEstimatedLbs,
		Data:              data,
	}
	if err := e.store.CreateRescueLog(ctx, row); err != nil {
		return RescueLog{}, err
	}
	l.ID = int(row.ID)
	return l, nil
}

// RescueLogs lists manual rescue logs in entry order. Only the paging and
// date fields of opts apply; dates bound the day of rescued_at.
func (e *Engine) RescueLogs(ctx context.Context, opts ListOptions) ([]RescueLog, error) {
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}
	rows, err := e.store.ListRescueLogs(ctx, store.ListOpts{
		Limit:     opts.Limit,
		Offset:    opts.Start,
		StartDate: opts.StartDate,
		EndDate:   opts.EndDate,
	})
	if err != nil {
		return nil, err
	}
	out := make([]RescueLog, 0, len(rows))
	for _, row := range rows {
		var l RescueLog
		if err := json.Unmarshal(row.Data, &l); err != nil {
			return nil, fmt.Errorf("decoding rescue log %d: %w", row.ID, err)
		}
		l.ID = int(row.ID)
		out = append(out, l)
	}
	return out, nil
}
