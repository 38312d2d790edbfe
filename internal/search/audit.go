package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hurttlocker/rescuelog/internal/record"
	"github.com/hurttlocker/rescuelog/internal/store"
)

// SaveAudit validates a corrected record and stores it in the audited
// overlay, replacing any earlier correction with the same ID. Section items
// without an estimate are estimated, and the total is recomputed from the
// section items and rounded to one decimal. Returns the stored record.
func (e *Engine) SaveAudit(ctx context.Context, rec Record) (Record, error) {
	if err := validateAudit(rec); err != nil {
		return Record{}, err
	}
	if rec.Recurring {
		if err := e.checkRecurringConflict(ctx, rec); err != nil {
			return Record{}, err
		}
	}

	rec.Audited = true
	if rec.Direction == "" {
		rec.Direction = record.DirectionUnknown
	}
	if rec.RescueLocationCanonical == "" {
		rec.RescueLocationCanonical = e.aliases.Canonicalize(rec.RescueLocation)
	}
	if rec.DropOffLocationCanonical == "" {
		rec.DropOffLocationCanonical = e.aliases.Canonicalize(rec.DropOffLocation)
	}
	if rec.Items == nil {
		rec.Items = []record.Item{}
	}
	if rec.RawMessages == nil {
		rec.RawMessages = []string{}
	}

	sections := make([]Section, len(rec.Sections))
	var total float64
	for i, sec := range rec.Sections {
		if sec.LocationCanonical == "" {
			sec.LocationCanonical = e.aliases.Canonicalize(sec.Location)
		}
		items := make([]record.Item, len(sec.Items))
		for j, it := range sec.Items {
			if it.EstimatedLbs == nil {
				if est := e.weights.Estimate(it.Quantity, unitText(it), it.Name); est != nil {
					it.EstimatedLbs = record.Float(round(*est, 1))
				}
			}
			if it.EstimatedLbs != nil {
				total += *it.EstimatedLbs
			}
			items[j] = it
		}
		sec.Items = items
		sections[i] = sec
	}
	rec.Sections = sections
	rec.TotalEstimatedLbs = nil
	if total > 0 {
		rec.TotalEstimatedLbs = record.Float(round(total, 1))
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encoding audit %d: %w", rec.ID, err)
	}
	if err := e.store.SaveAudit(ctx, &store.Audit{ID: int64(rec.ID), Data: data}); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// DeleteAudit removes the correction for id, returning the record to the
// unaudited feed.
func (e *Engine) DeleteAudit(ctx context.Context, id int) error {
	return e.store.DeleteAudit(ctx, int64(id))
}

func validateAudit(rec Record) error {
	if rec.ID <= 0 {
		return fmt.Errorf("%w: missing id", ErrInvalidAudit)
	}
	switch rec.Direction {
	case "", record.DirectionInbound, record.DirectionOutbound, record.DirectionBoth, record.DirectionUnknown:
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidAudit, rec.Direction)
	}
	check := func(where string, items []record.Item) error {
		for i, it := range items {
			if it.Name == "" {
				return fmt.Errorf("%w: %s item %d has no name", ErrInvalidAudit, where, i)
			}
			if it.Quantity != nil && *it.Quantity < 0 {
				return fmt.Errorf("%w: %s item %d has a negative quantity", ErrInvalidAudit, where, i)
			}
		}
		return nil
	}
	if err := check("record", rec.Items); err != nil {
		return err
	}
	for i, sec := range rec.Sections {
		if err := check(fmt.Sprintf("section %d", i), sec.Items); err != nil {
			return err
		}
	}

	if rec.Recurring {
		if rec.RescueLocationCanonical == "" {
			return fmt.Errorf("%w: recurring event requires rescue_location_canonical", ErrInvalidAudit)
		}
		if rec.DayOfWeek == nil || *rec.DayOfWeek < 0 || *rec.DayOfWeek > 6 {
			return fmt.Errorf("%w: recurring event requires day_of_week (0-6)", ErrInvalidAudit)
		}
		if len(rec.Sections) == 0 {
			return fmt.Errorf("%w: recurring event requires sections", ErrInvalidAudit)
		}
	}
	return nil
}

// checkRecurringConflict rejects a second recurring template for the same
// site and weekday.
func (e *Engine) checkRecurringConflict(ctx context.Context, rec Record) error {
	existing, err := e.audited(ctx, ListOptions{IncludeRecurring: true})
	if err != nil {
		return err
	}
	for _, other := range existing {
		if !other.Recurring || other.ID == rec.ID || other.DayOfWeek == nil {
			continue
		}
		if other.RescueLocationCanonical == rec.RescueLocationCanonical && *other.DayOfWeek == *rec.DayOfWeek {
			return fmt.Errorf("%w: a recurring event already exists for %s on this day", ErrConflict, rec.RescueLocationCanonical)
		}
	}
	return nil
}

func unitText(it record.Item) string {
	if u := it.UnitValue(); u != record.UnitNone {
		return string(u)
	}
	return it.RawUnit
}
