package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// ==================== CSV Importer Tests ====================

func TestCSVImport(t *testing.T) {
	ctx := context.Background()
	imp := &CSVImporter{}
	path := writeFile(t, t.TempDir(), "export.csv",
		"Timestamp,User,Message,Type,Subtype,ThreadTS\n"+
			"2024-03-02T14:05:00Z,U1,\"Picked up 5 cases bananas, 3 boxes lettuce\",message,,\n"+
			"2024-03-02T14:06:00Z,U2,joined,message,channel_join,\n"+
			",,,,,\n"+
			"not-a-time,U3,hello,message,,1709388300.000200\n")

	if !imp.CanHandle(path) {
		t.Fatal("CanHandle should return true for .csv files")
	}
	events, err := imp.Import(ctx, path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events (blank row skipped), got %d", len(events))
	}

	first := events[0]
	if first.Author != "U1" || first.Text != "Picked up 5 cases bananas, 3 boxes lettuce" || first.Kind != "message" {
		t.Errorf("unexpected first event: %+v", first)
	}
	if first.Time == nil || !first.Time.Equal(time.Date(2024, 3, 2, 14, 5, 0, 0, time.UTC)) {
		t.Errorf("timestamp not parsed: %v", first.Time)
	}
	if events[1].Subkind != "channel_join" {
		t.Errorf("subtype not carried: %+v", events[1])
	}
	if events[2].Time != nil || events[2].Timestamp != "not-a-time" {
		t.Errorf("unparseable timestamp should keep raw text and nil time: %+v", events[2])
	}
	if events[2].ThreadTS != "1709388300.000200" {
		t.Errorf("thread ts = %q", events[2].ThreadTS)
	}
}

func TestCSVImport_TSVAndHeaderCase(t *testing.T) {
	path := writeFile(t, t.TempDir(), "export.tsv", "timestamp\tuser\tmessage\n1709388300.000200\tU9\t2 crates milk\n")
	events, err := (&CSVImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(events) != 1 || events[0].Author != "U9" || events[0].Text != "2 crates milk" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Time == nil {
		t.Fatal("slack epoch timestamp should parse")
	}
}

// ==================== JSON Importer Tests ====================

func TestJSONImport_SlackArray(t *testing.T) {
	path := writeFile(t, t.TempDir(), "channel.json",
		`[{"ts": "1709388300.000200", "user": "U1", "text": "5 cases apples", "type": "message"},
		  {"ts": 1709388400, "user": "U2", "text": "hi", "type": "message", "subtype": "bot_message"}]`)

	events, err := (&JSONImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Text != "5 cases apples" || events[0].Time == nil {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Timestamp != "1709388400" || events[1].Subkind != "bot_message" {
		t.Errorf("numeric ts should be stringified: %+v", events[1])
	}
}

func TestJSONImport_MessagesObject(t *testing.T) {
	path := writeFile(t, t.TempDir(), "wrapped.json", `{"messages": [{"Timestamp": "2024-03-02 14:05:00", "User": "U1", "Message": "x"}]}`)
	events, err := (&JSONImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(events) != 1 || events[0].Author != "U1" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestJSONImport_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"broken.json": `[{"ts": `,
		"scalar.json": `42`,
		"nested.json": `[[1, 2]]`,
	} {
		path := writeFile(t, dir, name, content)
		_, err := (&JSONImporter{}).Import(context.Background(), path)
		if !errors.Is(err, ErrMalformedSource) {
			t.Errorf("%s: expected ErrMalformedSource, got %v", name, err)
		}
	}
}

func TestJSONImport_EmptyFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty.json", "  \n")
	events, err := (&JSONImporter{}).Import(context.Background(), path)
	if err != nil || len(events) != 0 {
		t.Fatalf("expected no events and no error, got %d, %v", len(events), err)
	}
}

func TestJSONLImport(t *testing.T) {
	path := writeFile(t, t.TempDir(), "events.jsonl",
		`{"timestamp": "2024-03-02T14:05:00Z", "author": "U1", "text": "one"}`+"\n\n"+
			`{"timestamp": "2024-03-02T14:06:00Z", "author": "U1", "text": "two"}`+"\n")
	events, err := (&JSONLImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(events) != 2 || events[1].Text != "two" {
		t.Fatalf("unexpected events: %+v", events)
	}

	bad := writeFile(t, t.TempDir(), "bad.jsonl", "{\"text\": \"ok\"}\nnot json\n")
	if _, err := (&JSONLImporter{}).Import(context.Background(), bad); !errors.Is(err, ErrMalformedSource) {
		t.Fatalf("expected ErrMalformedSource, got %v", err)
	}
}

// ==================== YAML Importer Tests ====================

func TestYAMLImport(t *testing.T) {
	path := writeFile(t, t.TempDir(), "events.yaml", `messages:
  - timestamp: "2024-03-02T14:05:00Z"
    user: U1
    text: 3 boxes pears
  - timestamp: 2024-03-02T14:06:00Z
    user: U1
    text: 1 crate milk
`)
	events, err := (&YAMLImporter{}).Import(context.Background(), path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Time == nil {
			t.Errorf("timestamp not parsed: %+v", ev)
		}
	}
}

// ==================== Loader Tests ====================

func TestLoader_FormatDetection(t *testing.T) {
	l := NewLoader()
	tests := map[string]string{
		"a.csv":    "*ingest.CSVImporter",
		"a.TSV":    "*ingest.CSVImporter",
		"a.json":   "*ingest.JSONImporter",
		"a.jsonl":  "*ingest.JSONLImporter",
		"a.ndjson": "*ingest.JSONLImporter",
		"a.yml":    "*ingest.YAMLImporter",
	}
	for path, want := range tests {
		imp := l.DetectFormat(path)
		if imp == nil {
			t.Errorf("no importer for %s", path)
			continue
		}
		if got := typeName(imp); got != want {
			t.Errorf("DetectFormat(%s) = %s, want %s", path, got, want)
		}
	}
	if l.DetectFormat("a.xlsx") != nil {
		t.Error("xlsx should not be handled")
	}
}

func typeName(imp Importer) string {
	switch imp.(type) {
	case *CSVImporter:
		return "*ingest.CSVImporter"
	case *JSONImporter:
		return "*ingest.JSONImporter"
	case *JSONLImporter:
		return "*ingest.JSONLImporter"
	case *YAMLImporter:
		return "*ingest.YAMLImporter"
	}
	return "unknown"
}

func TestLoader_MissingPath(t *testing.T) {
	_, _, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), ImportOptions{})
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if errors.Is(err, ErrMalformedSource) {
		t.Fatal("missing file must not look like a parse failure")
	}
}

func TestLoader_UnsupportedFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "export.xlsx", "PK")
	_, _, err := NewLoader().Load(context.Background(), path, ImportOptions{})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestLoader_Dir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "User,Message\nU1,one\n")
	writeFile(t, dir, "b.jsonl", `{"user": "U2", "text": "two"}`+"\n")
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "broken.json", "{")
	writeFile(t, dir, ".hidden/c.csv", "User,Message\nU3,hidden\n")
	writeFile(t, dir, "sub/d.csv", "User,Message\nU4,nested\n")

	events, result, err := NewLoader().Load(context.Background(), dir, ImportOptions{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(events) != 2 || events[0].Text != "one" || events[1].Text != "two" {
		t.Fatalf("unexpected events: %+v", events)
	}
	if result.FilesImported != 2 || result.FilesSkipped != 1 || len(result.Errors) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	var progress int
	events, result, err = NewLoader().Load(context.Background(), dir, ImportOptions{
		Recursive:  true,
		ProgressFn: func(current, total int, file string) { progress = current },
	})
	if err != nil {
		t.Fatalf("recursive Load: %v", err)
	}
	if len(events) != 3 || result.Events != 3 {
		t.Fatalf("recursive load should include sub/ but not .hidden/: %+v", events)
	}
	if progress != result.FilesScanned {
		t.Errorf("progress ended at %d of %d", progress, result.FilesScanned)
	}
}

func TestImportResult_Add(t *testing.T) {
	a := &ImportResult{FilesScanned: 1, Events: 2}
	a.Add(&ImportResult{FilesScanned: 2, Events: 3, Errors: []ImportError{{File: "x", Message: "y"}}})
	if a.FilesScanned != 3 || a.Events != 5 || len(a.Errors) != 1 {
		t.Fatalf("unexpected merge: %+v", a)
	}
}
