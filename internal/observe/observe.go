// Package observe provides run statistics for rescuelog.
//
// A summary answers "what did this transcript yield?": how many sessions
// were grouped, how many produced items, the direction mix, and the most
// frequent rescue sites, drop-off sites and items.
package observe

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/hurttlocker/rescuelog/internal/record"
	"github.com/hurttlocker/rescuelog/internal/store"
)

// TopN is how many entries each ranking keeps.
const TopN = 10

// Count is one ranked key.
type Count struct {
	Key   string  `json:"key"`
	Count float64 `json:"count"`
}

// Summary holds aggregate statistics for a set of records.
type Summary struct {
	Records           int            `json:"records"`
	WithItems         int            `json:"with_items"`
	WithItemsRatio    float64        `json:"with_items_ratio"`
	Directions        []Count        `json:"directions"`
	TopRescue         []Count        `json:"top_rescue_locations"`
	TopDropOff        []Count        `json:"top_drop_off_locations"`
	TopItems          []Count        `json:"top_items"`
	TotalEstimatedLbs float64        `json:"total_estimated_lbs"`
	ItemsByCategory   map[string]int `json:"items_by_category"`

	// Store-backed fields, zero for in-memory summaries.
	Audited      int64 `json:"audited,omitempty"`
	StorageBytes int64 `json:"storage_bytes,omitempty"`
}

// counter tallies keys, remembering first-seen order for ties.
type counter struct {
	order  []string
	counts map[string]float64
}

func newCounter() *counter {
	return &counter{counts: map[string]float64{}}
}

func (c *counter) add(key string, n float64) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key] += n
}

// top returns up to n keys by descending count; ties keep first-seen order.
// n <= 0 returns all keys.
func (c *counter) top(n int) []Count {
	out := make([]Count, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, Count{Key: k, Count: c.counts[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Summarize computes statistics over records. Item totals add each item's
// quantity, or 1 when it has none, under its lowercased name.
func Summarize(records []record.Record) *Summary {
	s := &Summary{
		Records:         len(records),
		ItemsByCategory: map[string]int{},
	}
	dirs, rescue, drop, items := newCounter(), newCounter(), newCounter(), newCounter()

	var lbs float64
	for _, rec := range records {
		if len(rec.Items) > 0 {
			s.WithItems++
		}
		dirs.add(string(rec.Direction), 1)
		if rec.RescueLocation != "" {
			rescue.add(rec.RescueLocation, 1)
		}
		if rec.DropOffLocation != "" {
			drop.add(rec.DropOffLocation, 1)
		}
		for _, it := range rec.Items {
			qty := 1.0
			if it.Quantity != nil && *it.Quantity != 0 {
				qty = *it.Quantity
			}
			items.add(strings.ToLower(it.Name), qty)
			if it.EstimatedLbs != nil {
				lbs += *it.EstimatedLbs
			}
			cat := string(it.Subcategory)
			if cat == "" {
				cat = "uncategorized"
			}
			s.ItemsByCategory[cat]++
		}
	}

	if s.Records > 0 {
		s.WithItemsRatio = float64(s.WithItems) / float64(s.Records)
	}
	s.Directions = dirs.top(0)
	s.TopRescue = rescue.top(TopN)
	s.TopDropOff = drop.top(TopN)
	s.TopItems = items.top(TopN)
	s.TotalEstimatedLbs = math.Round(lbs*100) / 100
	return s
}

// Write prints a human-readable summary.
func (s *Summary) Write(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintln(&b, "Summary:")
	fmt.Fprintf(&b, "- grouped messages: %d\n", s.Records)
	fmt.Fprintf(&b, "- with parsed items: %d (%.1f%%)\n", s.WithItems, s.WithItemsRatio*100)
	fmt.Fprintf(&b, "- estimated weight: %.2f lbs\n", s.TotalEstimatedLbs)
	fmt.Fprintln(&b, "- direction counts:")
	for _, c := range s.Directions {
		fmt.Fprintf(&b, "  %s: %s\n", c.Key, formatCount(c.Count))
	}
	section := func(title string, counts []Count) {
		if len(counts) == 0 {
			return
		}
		fmt.Fprintf(&b, "- %s:\n", title)
		for _, c := range counts {
			fmt.Fprintf(&b, "  %s: %s\n", c.Key, formatCount(c.Count))
		}
	}
	section("top rescue locations", s.TopRescue)
	section("top drop-off locations", s.TopDropOff)
	section("top items (by mentions/quantity sum)", s.TopItems)
	if s.Audited > 0 {
		fmt.Fprintf(&b, "- audited corrections: %d\n", s.Audited)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatCount(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}

// Engine computes summaries over a store.
type Engine struct {
	store store.Store
}

// NewEngine creates a new statistics engine.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s}
}

// GetStats summarizes every stored record and adds store-level counts.
func (e *Engine) GetStats(ctx context.Context) (*Summary, error) {
	recs, err := e.store.ListRecords(ctx, store.ListOpts{})
	if err != nil {
		return nil, fmt.Errorf("loading records: %w", err)
	}
	s := Summarize(recs)

	st, err := e.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading store stats: %w", err)
	}
	s.Audited = st.AuditCount
	s.StorageBytes = st.DBSizeBytes
	return s, nil
}
