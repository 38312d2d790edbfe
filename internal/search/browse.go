package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hurttlocker/rescuelog/internal/record"
	"github.com/hurttlocker/rescuelog/internal/store"
)

const (
	DefaultListLimit   = 1
	MaxListLimit       = 5000
	DefaultSearchLimit = 50
	MaxSearchLimit     = 500

	previewLen = 150
)

// ListOptions selects a page of records.
type ListOptions struct {
	Start     int
	Limit     int
	StartDate string // YYYY-MM-DD, inclusive
	EndDate   string // YYYY-MM-DD, inclusive

	// Audited lists the correction overlay instead of extracted records.
	Audited bool
	// HideAudited drops extracted records that have a correction.
	HideAudited bool
	// IncludeRecurring keeps recurring templates in the audited view.
	IncludeRecurring bool
}

// Page is one page of a listing. Start is the offset of the first record
// within the Total filtered records.
type Page struct {
	Total   int      `json:"total"`
	Records []Record `json:"records"`
	Start   int      `json:"start"`
	Limit   int      `json:"limit"`
	Audited bool     `json:"audited"`
}

// Result is one keyword search hit.
type Result struct {
	ID           int              `json:"id"`
	Index        int              `json:"index"`
	MatchedIn    []string         `json:"matched_in"`
	MatchPreview string           `json:"match_preview"`
	StartTS      string           `json:"start_ts"`
	Direction    record.Direction `json:"direction"`
	Audited      bool             `json:"audited"`
	Record       Record           `json:"record"`
}

// SearchResponse holds the hits for a query.
type SearchResponse struct {
	Query   string   `json:"query"`
	Total   int      `json:"total"`
	Results []Result `json:"results"`
}

func (o ListOptions) validate() (ListOptions, error) {
	if o.Start < 0 {
		return o, fmt.Errorf("%w: start must be >= 0", ErrInvalidQuery)
	}
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	for _, d := range []string{o.StartDate, o.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return o, fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidQuery, d)
		}
	}
	return o, nil
}

func (o ListOptions) storeOpts() store.ListOpts {
	return store.ListOpts{
		StartDate:   o.StartDate,
		EndDate:     o.EndDate,
		HideAudited: o.HideAudited && !o.Audited,
	}
}

// List returns a page of extracted records, or of audited corrections when
// opts.Audited is set.
func (e *Engine) List(ctx context.Context, opts ListOptions) (*Page, error) {
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}
	page := &Page{Start: opts.Start, Limit: opts.Limit, Audited: opts.Audited, Records: []Record{}}

	if opts.Audited {
		audited, err := e.audited(ctx, opts)
		if err != nil {
			return nil, err
		}
		page.Total = len(audited)
		if opts.Start < len(audited) {
			end := opts.Start + opts.Limit
			if end > len(audited) {
				end = len(audited)
			}
			page.Records = audited[opts.Start:end]
		}
		return page, nil
	}

	sopts := opts.storeOpts()
	total, err := e.store.CountRecords(ctx, sopts)
	if err != nil {
		return nil, err
	}
	page.Total = total

	sopts.Offset = opts.Start
	sopts.Limit = opts.Limit
	recs, err := e.store.ListRecords(ctx, sopts)
	if err != nil {
		return nil, err
	}
	ids, err := e.store.AuditedIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		ann := e.Annotate(rec)
		ann.Audited = ids[int64(rec.ID)]
		page.Records = append(page.Records, ann)
	}
	return page, nil
}

// Get returns the record with id together with its position in the listing
// opts describes. The record is found regardless of the filters; a record
// the filters exclude reports position 0.
func (e *Engine) Get(ctx context.Context, id int, opts ListOptions) (*Page, error) {
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}

	if opts.Audited {
		a, err := e.store.GetAudit(ctx, int64(id))
		if err != nil {
			return nil, err
		}
		target, err := decodeAudit(a)
		if err != nil {
			return nil, err
		}
		opts.IncludeRecurring = true
		audited, err := e.audited(ctx, opts)
		if err != nil {
			return nil, err
		}
		pos := 0
		for i, r := range audited {
			if r.ID == id {
				pos = i
				break
			}
		}
		return &Page{Total: len(audited), Records: []Record{target}, Start: pos, Limit: 1, Audited: true}, nil
	}

	rec, err := e.store.GetRecord(ctx, int64(id))
	if err != nil {
		return nil, err
	}
	sopts := opts.storeOpts()
	total, err := e.store.CountRecords(ctx, sopts)
	if err != nil {
		return nil, err
	}
	pos, _, err := e.store.RecordPosition(ctx, int64(id), sopts)
	if err != nil {
		return nil, err
	}
	ids, err := e.store.AuditedIDs(ctx)
	if err != nil {
		return nil, err
	}
	ann := e.Annotate(*rec)
	ann.Audited = ids[int64(id)]
	return &Page{Total: total, Records: []Record{ann}, Start: pos, Limit: 1}, nil
}

// Search finds extracted records where every whitespace-separated term of
// query appears, case-insensitively, in one searchable field. Hits are
// ordered newest first.
func (e *Engine) Search(ctx context.Context, query string, limit int) (*SearchResponse, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, fmt.Errorf("%w: query must not be empty", ErrInvalidQuery)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	recs, err := e.store.ListRecords(ctx, store.ListOpts{})
	if err != nil {
		return nil, err
	}
	ids, err := e.store.AuditedIDs(ctx)
	if err != nil {
		return nil, err
	}

	results := []Result{}
	for idx, rec := range recs {
		ann := e.Annotate(rec)
		matchedIn, first := matchRecord(ann, terms)
		if len(matchedIn) == 0 {
			continue
		}
		results = append(results, Result{
			ID:           ann.ID,
			Index:        idx,
			MatchedIn:    matchedIn,
			MatchPreview: preview(first),
			StartTS:      ann.StartTS,
			Direction:    ann.Direction,
			Audited:      ids[int64(ann.ID)],
			Record:       ann,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		ti, tj := record.ParseTimestamp(results[i].StartTS), record.ParseTimestamp(results[j].StartTS)
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		}
		return ti.After(*tj)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return &SearchResponse{Query: query, Total: len(results), Results: results}, nil
}

// matchRecord returns the fields rec matches in and the lowercased text of
// the first match.
func matchRecord(rec Record, terms []string) ([]string, string) {
	var matched []string
	var first string
	hit := func(field, text string) bool {
		text = strings.ToLower(text)
		if text == "" || !containsAll(text, terms) {
			return false
		}
		for _, m := range matched {
			if m == field {
				return true
			}
		}
		if len(matched) == 0 {
			first = text
		}
		matched = append(matched, field)
		return true
	}

	hit("raw_messages", strings.Join(rec.RawMessages, " "))
	hit("rescue_location", firstNonEmpty(rec.RescueLocationCanonical, rec.RescueLocation))
	hit("drop_off_location", firstNonEmpty(rec.DropOffLocationCanonical, rec.DropOffLocation))
	for _, it := range rec.Items {
		if hit("items", it.Name) {
			break
		}
	}
	for _, sec := range rec.Sections {
		hit("section_location", firstNonEmpty(sec.LocationCanonical, sec.Location))
		for _, it := range sec.Items {
			if hit("section_items", it.Name) {
				break
			}
		}
	}
	return matched, first
}

func containsAll(text string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewLen {
		return text
	}
	return string(r[:previewLen]) + "..."
}

// audited returns the decoded corrections matching opts' date range, in ID
// order, without pagination.
func (e *Engine) audited(ctx context.Context, opts ListOptions) ([]Record, error) {
	audits, err := e.store.ListAudits(ctx, store.ListOpts{StartDate: opts.StartDate, EndDate: opts.EndDate})
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(audits))
	for _, a := range audits {
		rec, err := decodeAudit(a)
		if err != nil {
			return nil, err
		}
		if rec.Recurring && !opts.IncludeRecurring {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeAudit(a *store.Audit) (Record, error) {
	var rec Record
	if err := json.Unmarshal(a.Data, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding audit %d: %w", a.ID, err)
	}
	rec.Audited = true
	return rec, nil
}
