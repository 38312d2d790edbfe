// Package search is the read side of rescuelog: it browses stored records
// and the audited correction overlay.
//
// Records are annotated at read time, never at extraction time:
// - Canonical names for the rescue, drop-off and section locations
// - Pound-unit items get their quantity as the weight estimate
// - A total estimated weight per record
//
// Raw extracted fields are always kept next to the derived ones.
package search

import (
	"errors"
	"math"

	"github.com/hurttlocker/rescuelog/internal/canon"
	"github.com/hurttlocker/rescuelog/internal/record"
	"github.com/hurttlocker/rescuelog/internal/store"
	"github.com/hurttlocker/rescuelog/internal/weight"
)

var (
	// ErrInvalidQuery is returned for malformed list or search parameters.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidAudit is returned when a submitted correction has the wrong shape.
	ErrInvalidAudit = errors.New("invalid audit")
	// ErrConflict is returned when a recurring correction duplicates another.
	ErrConflict = errors.New("conflicting audit")
	// ErrInvalidRescueLog is returned when a manual rescue log lacks a
	// required field.
	ErrInvalidRescueLog = errors.New("invalid rescue log")
)

// Record is an extracted or audited record with read-time annotations.
type Record struct {
	ID                       int              `json:"id"`
	User                     string           `json:"user"`
	StartTS                  string           `json:"start_ts"`
	EndTS                    string           `json:"end_ts"`
	Direction                record.Direction `json:"direction"`
	RescueLocation           string           `json:"rescue_location"`
	DropOffLocation          string           `json:"drop_off_location"`
	RescueLocationCanonical  string           `json:"rescue_location_canonical"`
	DropOffLocationCanonical string           `json:"drop_off_location_canonical"`
	Items                    []record.Item    `json:"items"`
	Sections                 []Section        `json:"sections"`
	RawMessages              []string         `json:"raw_messages"`
	TotalEstimatedLbs        *float64         `json:"total_estimated_lbs"`
	Audited                  bool             `json:"audited"`

	// Recurring corrections are weekly templates rather than one-off rescues.
	Recurring bool   `json:"recurring,omitempty"`
	DayOfWeek *int   `json:"day_of_week,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// Section is a record section with its canonical location.
type Section struct {
	Location          string        `json:"location"`
	LocationCanonical string        `json:"location_canonical"`
	Items             []record.Item `json:"items"`
}

// Engine serves list, get, search and audit operations over a store.
type Engine struct {
	store   store.Store
	aliases *canon.Table
	weights *weight.Estimator
}

// NewEngine creates a browse engine. Nil tables fall back to the defaults.
func NewEngine(s store.Store, aliases *canon.Table, weights *weight.Estimator) *Engine {
	if aliases == nil {
		aliases = canon.Default()
	}
	if weights == nil {
		weights = weight.NewEstimator(weight.Config{})
	}
	return &Engine{store: s, aliases: aliases, weights: weights}
}

// Canonicalize resolves a raw location with the engine's alias table.
func (e *Engine) Canonicalize(raw string) string {
	return e.aliases.Canonicalize(raw)
}

// Annotate derives the read-time fields of an extracted record. The input
// is not modified.
func (e *Engine) Annotate(rec record.Record) Record {
	out := Record{
		ID:                       rec.ID,
		User:                     rec.User,
		StartTS:                  rec.StartTS,
		EndTS:                    rec.EndTS,
		Direction:                rec.Direction,
		RescueLocation:           rec.RescueLocation,
		DropOffLocation:          rec.DropOffLocation,
		RescueLocationCanonical:  e.aliases.Canonicalize(rec.RescueLocation),
		DropOffLocationCanonical: e.aliases.Canonicalize(rec.DropOffLocation),
		Items:                    normalizePoundItems(rec.Items),
		Sections:                 make([]Section, 0, len(rec.Sections)),
		RawMessages:              rec.RawMessages,
	}
	if out.RawMessages == nil {
		out.RawMessages = []string{}
	}
	for _, sec := range rec.Sections {
		out.Sections = append(out.Sections, Section{
			Location:          sec.Location,
			LocationCanonical: e.aliases.Canonicalize(sec.Location),
			Items:             normalizePoundItems(sec.Items),
		})
	}

	var total float64
	for _, it := range out.Items {
		if it.EstimatedLbs != nil {
			total += *it.EstimatedLbs
		}
	}
	out.TotalEstimatedLbs = record.Float(round(total, 2))
	return out
}

// normalizePoundItems copies items, replacing the estimate of pound-unit
// items with their quantity.
func normalizePoundItems(items []record.Item) []record.Item {
	out := make([]record.Item, len(items))
	for i, it := range items {
		unit := string(it.UnitValue())
		if unit == "" {
			unit = it.RawUnit
		}
		if record.IsWeight(unit) && it.Quantity != nil && *it.Quantity > 0 {
			it.EstimatedLbs = record.Float(round(*it.Quantity, 2))
		}
		out[i] = it
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
