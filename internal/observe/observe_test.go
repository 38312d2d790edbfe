package observe

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/hurttlocker/rescuelog/internal/record"
	"github.com/hurttlocker/rescuelog/internal/store"
)

func sampleRecords() []record.Record {
	return []record.Record{
		{ID: 1, Direction: record.DirectionInbound, RescueLocation: "Aldi WP", Items: []record.Item{
			{Name: "Bananas", Quantity: record.Float(5), EstimatedLbs: record.Float(75), Subcategory: record.CategoryProduce},
			{Name: "bread", Subcategory: record.CategoryGrain},
		}},
		{ID: 2, Direction: record.DirectionOutbound, DropOffLocation: "NA4J", Items: []record.Item{
			{Name: "bananas", Quantity: record.Float(2), EstimatedLbs: record.Float(30)},
		}},
		{ID: 3, Direction: record.DirectionInbound, RescueLocation: "UC"},
		{ID: 4, Direction: record.DirectionUnknown, RescueLocation: "Aldi WP"},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRecords())

	if s.Records != 4 || s.WithItems != 2 {
		t.Fatalf("records=%d with_items=%d", s.Records, s.WithItems)
	}
	if s.WithItemsRatio != 0.5 {
		t.Errorf("ratio = %v, want 0.5", s.WithItemsRatio)
	}
	if s.TotalEstimatedLbs != 105 {
		t.Errorf("total lbs = %v, want 105", s.TotalEstimatedLbs)
	}

	if len(s.Directions) != 3 || s.Directions[0].Key != "inbound" || s.Directions[0].Count != 2 {
		t.Errorf("unexpected directions: %+v", s.Directions)
	}
	if len(s.TopRescue) != 2 || s.TopRescue[0].Key != "Aldi WP" || s.TopRescue[0].Count != 2 {
		t.Errorf("unexpected rescue ranking: %+v", s.TopRescue)
	}
	if len(s.TopDropOff) != 1 || s.TopDropOff[0].Key != "NA4J" {
		t.Errorf("unexpected drop-off ranking: %+v", s.TopDropOff)
	}
	// Names fold case; quantity-less items count once.
	if len(s.TopItems) != 2 || s.TopItems[0].Key != "bananas" || s.TopItems[0].Count != 7 || s.TopItems[1].Count != 1 {
		t.Errorf("unexpected item ranking: %+v", s.TopItems)
	}
	if s.ItemsByCategory["produce"] != 1 || s.ItemsByCategory["uncategorized"] != 1 {
		t.Errorf("unexpected categories: %v", s.ItemsByCategory)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	if s.Records != 0 || s.WithItemsRatio != 0 || len(s.TopItems) != 0 {
		t.Fatalf("unexpected empty summary: %+v", s)
	}
}

func TestCounter_TopKeepsFirstSeenOnTies(t *testing.T) {
	c := newCounter()
	for i := 0; i < 15; i++ {
		c.add(fmt.Sprintf("site-%02d", i), 1)
	}
	c.add("site-14", 1)

	top := c.top(TopN)
	if len(top) != TopN {
		t.Fatalf("expected %d entries, got %d", TopN, len(top))
	}
	if top[0].Key != "site-14" {
		t.Errorf("highest count should lead, got %s", top[0].Key)
	}
	if top[1].Key != "site-00" || top[9].Key != "site-08" {
		t.Errorf("ties should keep first-seen order: %+v", top)
	}
}

func TestSummary_Write(t *testing.T) {
	var buf bytes.Buffer
	if err := Summarize(sampleRecords()).Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"- grouped messages: 4",
		"- with parsed items: 2 (50.0%)",
		"  inbound: 2",
		"- top rescue locations:",
		"  bananas: 7",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEngine_GetStats(t *testing.T) {
	s, err := store.NewStore(store.StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if err := s.ReplaceRecords(ctx, sampleRecords()); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}
	if err := s.SaveAudit(ctx, &store.Audit{ID: 1, Data: []byte(`{"id": 1}`)}); err != nil {
		t.Fatalf("SaveAudit: %v", err)
	}

	stats, err := NewEngine(s).GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.Records != 4 || stats.Audited != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
