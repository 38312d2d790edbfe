package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hurttlocker/rescuelog/internal/record"
)

// newTestStore creates an in-memory store for testing.
func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewStore(StoreConfig{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecords() []record.Record {
	return []record.Record{
		{ID: 1, User: "U1", StartTS: "2024-03-01T10:00:00Z", EndTS: "2024-03-01T10:05:00Z", Direction: record.DirectionInbound,
			RescueLocation: "Aldi WP", Items: []record.Item{{Name: "bananas", Quantity: record.Float(5)}}, Sections: []record.Section{}, RawMessages: []string{"Picked up from Aldi WP: 5 bananas"}},
		{ID: 2, User: "U2", StartTS: "1709388300.000200", EndTS: "1709388300.000200", Direction: record.DirectionOutbound,
			DropOffLocation: "NA4J", Items: []record.Item{}, Sections: []record.Section{}, RawMessages: []string{"Dropped at NA4J"}},
		{ID: 3, User: "U1", StartTS: "", EndTS: "", Direction: record.DirectionUnknown,
			Items: []record.Item{{Name: "bread"}, {Name: "milk"}}, Sections: []record.Section{}, RawMessages: []string{"2 bread, 1 milk"}},
		{ID: 4, User: "U3", StartTS: "2024-03-05 09:00:00", EndTS: "2024-03-05 09:00:00", Direction: record.DirectionBoth,
			Items: []record.Item{}, Sections: []record.Section{}, RawMessages: []string{"x"}},
	}
}

func seeded(t *testing.T) Store {
	t.Helper()
	s := newTestStore(t)
	if err := s.ReplaceRecords(context.Background(), testRecords()); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}
	return s
}

// --- Database Initialization ---

func TestNewStore(t *testing.T) {
	s := newTestStore(t)
	ss := s.(*SQLiteStore)

	for _, table := range []string{"records", "audited_records", "rescue_logs", "meta"} {
		var name string
		err := ss.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}

	version, err := ss.getMetaValue("schema_version")
	if err != nil {
		t.Fatalf("getMetaValue: %v", err)
	}
	if version != schemaVersion {
		t.Errorf("schema_version = %q, want %q", version, schemaVersion)
	}
}

func TestNewStore_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rescuelog.db")
	s, err := NewStore(StoreConfig{DBPath: path})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s.ReplaceRecords(context.Background(), testRecords()); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}
	s.Close()

	s, err = NewStore(StoreConfig{DBPath: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	n, err := s.CountRecords(context.Background(), ListOpts{})
	if err != nil || n != 4 {
		t.Fatalf("CountRecords after reopen = %d, %v", n, err)
	}
	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.DBSizeBytes == 0 {
		t.Error("file-backed store should report a size")
	}
}

// --- Records ---

func TestReplaceRecords_RoundTrip(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	rec, err := s.GetRecord(ctx, 1)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	want := testRecords()[0]
	if rec.User != want.User || rec.RescueLocation != want.RescueLocation || len(rec.Items) != 1 {
		t.Fatalf("round trip mismatch: %+v", rec)
	}
	if rec.Items[0].Quantity == nil || *rec.Items[0].Quantity != 5 {
		t.Errorf("quantity lost: %+v", rec.Items[0])
	}

	// A second run replaces the first.
	if err := s.ReplaceRecords(ctx, testRecords()[:1]); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}
	if _, err := s.GetRecord(ctx, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after replace, got %v", err)
	}
}

func TestReplaceRecords_Batches(t *testing.T) {
	s, err := NewStore(StoreConfig{DBPath: ":memory:", BatchSize: 3})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer s.Close()

	var recs []record.Record
	for i := 1; i <= 10; i++ {
		recs = append(recs, record.Record{ID: i, Direction: record.DirectionUnknown, Items: []record.Item{}})
	}
	if err := s.ReplaceRecords(context.Background(), recs); err != nil {
		t.Fatalf("ReplaceRecords: %v", err)
	}
	n, _ := s.CountRecords(context.Background(), ListOpts{})
	if n != 10 {
		t.Fatalf("count = %d, want 10", n)
	}
}

func TestListRecords_Pagination(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	page, err := s.ListRecords(ctx, ListOpts{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if len(page) != 2 || page[0].ID != 2 || page[1].ID != 3 {
		t.Fatalf("unexpected page: %+v", page)
	}

	tail, err := s.ListRecords(ctx, ListOpts{Offset: 3})
	if err != nil {
		t.Fatalf("ListRecords offset only: %v", err)
	}
	if len(tail) != 1 || tail[0].ID != 4 {
		t.Fatalf("unexpected tail: %+v", tail)
	}
}

func TestListRecords_DateRange(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	tests := []struct {
		name string
		opts ListOpts
		want []int
	}{
		{"no filter", ListOpts{}, []int{1, 2, 3, 4}},
		{"start only", ListOpts{StartDate: "2024-03-02"}, []int{2, 4}},
		{"end only", ListOpts{EndDate: "2024-03-02"}, []int{1, 2}},
		{"inclusive day", ListOpts{StartDate: "2024-03-05", EndDate: "2024-03-05"}, []int{4}},
		{"empty range", ListOpts{StartDate: "2025-01-01"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := s.ListRecords(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListRecords: %v", err)
			}
			var got []int
			for _, r := range recs {
				got = append(got, r.ID)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ids = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("ids = %v, want %v", got, tt.want)
				}
			}
			n, err := s.CountRecords(ctx, tt.opts)
			if err != nil || n != len(tt.want) {
				t.Errorf("CountRecords = %d, %v; want %d", n, err, len(tt.want))
			}
		})
	}
}

func TestRecordPosition(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	pos, ok, err := s.RecordPosition(ctx, 4, ListOpts{StartDate: "2024-03-02"})
	if err != nil || !ok || pos != 1 {
		t.Fatalf("RecordPosition = %d, %v, %v; want 1, true", pos, ok, err)
	}
	_, ok, err = s.RecordPosition(ctx, 1, ListOpts{StartDate: "2024-03-02"})
	if err != nil || ok {
		t.Fatalf("filtered-out record should report ok=false, got %v, %v", ok, err)
	}
}

// --- Audits ---

func TestAudits_SaveGetDelete(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	a := &Audit{ID: 2, Data: json.RawMessage(`{"id": 2, "start_ts": "2024-03-02T14:05:00Z", "audited": true}`)}
	if err := s.SaveAudit(ctx, a); err != nil {
		t.Fatalf("SaveAudit: %v", err)
	}
	if a.AuditedAt.IsZero() {
		t.Error("AuditedAt should default to now")
	}

	// Upsert replaces.
	a.Data = json.RawMessage(`{"id": 2, "start_ts": "2024-03-02T14:05:00Z", "audited": true, "note": "v2"}`)
	if err := s.SaveAudit(ctx, a); err != nil {
		t.Fatalf("SaveAudit upsert: %v", err)
	}
	got, err := s.GetAudit(ctx, 2)
	if err != nil {
		t.Fatalf("GetAudit: %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(got.Data, &body); err != nil || body["note"] != "v2" {
		t.Fatalf("upsert did not replace data: %s", got.Data)
	}

	ids, err := s.AuditedIDs(ctx)
	if err != nil || !ids[2] || len(ids) != 1 {
		t.Fatalf("AuditedIDs = %v, %v", ids, err)
	}

	hidden, err := s.ListRecords(ctx, ListOpts{HideAudited: true})
	if err != nil {
		t.Fatalf("ListRecords hide audited: %v", err)
	}
	for _, r := range hidden {
		if r.ID == 2 {
			t.Fatal("audited record 2 should be hidden")
		}
	}
	if len(hidden) != 3 {
		t.Fatalf("expected 3 unaudited records, got %d", len(hidden))
	}

	audits, err := s.ListAudits(ctx, ListOpts{StartDate: "2024-03-02", EndDate: "2024-03-02"})
	if err != nil || len(audits) != 1 {
		t.Fatalf("ListAudits = %d, %v", len(audits), err)
	}
	if n, _ := s.CountAudits(ctx, ListOpts{StartDate: "2024-04-01"}); n != 0 {
		t.Errorf("CountAudits out of range = %d", n)
	}

	if err := s.DeleteAudit(ctx, 2); err != nil {
		t.Fatalf("DeleteAudit: %v", err)
	}
	if _, err := s.GetAudit(ctx, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteAudit(ctx, 99); err != nil {
		t.Fatalf("deleting a missing audit should be a no-op: %v", err)
	}
}

func TestSaveAudit_RejectsNonObject(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveAudit(context.Background(), &Audit{ID: 1, Data: json.RawMessage(`[1]`)}); err == nil {
		t.Fatal("expected error for non-object audit data")
	}
}

// --- Stats ---

func TestRescueLogs_CreateAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	total := 17.5
	first := &RescueLog{
		Location:          "Aldi Cicero",
		RescuedAt:         "2024-03-01T09:30:00Z",
		TotalEstimatedLbs: &total,
		Data:              json.RawMessage(`{"location":"Aldi Cicero","items":[]}`),
	}
	if err := s.CreateRescueLog(ctx, first); err != nil {
		t.Fatalf("CreateRescueLog: %v", err)
	}
	if first.ID != 1 || first.CreatedAt.IsZero() {
		t.Fatalf("expected id 1 and a created_at, got %+v", first)
	}
	second := &RescueLog{Location: "Jewel", RescuedAt: "2024-03-09", Data: json.RawMessage(`{}`)}
	if err := s.CreateRescueLog(ctx, second); err != nil {
		t.Fatalf("CreateRescueLog: %v", err)
	}
	if second.ID != 2 {
		t.Errorf("second id = %d, want 2", second.ID)
	}

	all, err := s.ListRescueLogs(ctx, ListOpts{})
	if err != nil {
		t.Fatalf("ListRescueLogs: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d logs, want 2", len(all))
	}
	if all[0].TotalEstimatedLbs == nil || *all[0].TotalEstimatedLbs != 17.5 {
		t.Errorf("total = %v, want 17.5", all[0].TotalEstimatedLbs)
	}
	if all[1].TotalEstimatedLbs != nil {
		t.Errorf("missing total should stay NULL, got %v", *all[1].TotalEstimatedLbs)
	}

	march1, err := s.ListRescueLogs(ctx, ListOpts{StartDate: "2024-03-01", EndDate: "2024-03-01"})
	if err != nil {
		t.Fatalf("ListRescueLogs range: %v", err)
	}
	if len(march1) != 1 || march1[0].Location != "Aldi Cicero" {
		t.Errorf("date filter returned %+v", march1)
	}
}

func TestCreateRescueLog_RejectsBadJSON(t *testing.T) {
	s := newTestStore(t)
	err := s.CreateRescueLog(context.Background(), &RescueLog{Location: "x", RescuedAt: "2024-03-01", Data: json.RawMessage(`{`)})
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestStats(t *testing.T) {
	s := seeded(t)
	stats, err := s.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.RecordCount != 4 || stats.ItemCount != 3 || stats.AuditCount != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.ByDirection["inbound"] != 1 || stats.ByDirection["both"] != 1 {
		t.Errorf("unexpected direction counts: %v", stats.ByDirection)
	}
	if stats.DBSizeBytes != 0 {
		t.Errorf("in-memory store should not report a size, got %d", stats.DBSizeBytes)
	}
}
