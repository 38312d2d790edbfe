package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/rescuelog/internal/record"
)

// JSONImporter handles .json exports.
type JSONImporter struct{}

// CanHandle returns true for JSON file extensions.
func (j *JSONImporter) CanHandle(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".json"
}

// Import parses a JSON export:
// - Array of objects: each element is one event (Slack channel export).
// - Object with a "messages" array: each element is one event.
func (j *JSONImporter) Import(ctx context.Context, path string) ([]record.MessageEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, unavailable(path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, malformed(path, err)
	}

	var elems []interface{}
	switch v := raw.(type) {
	case []interface{}:
		elems = v
	case map[string]interface{}:
		msgs, ok := v["messages"].([]interface{})
		if !ok {
			return nil, malformed(path, fmt.Errorf("object has no \"messages\" array"))
		}
		elems = msgs
	default:
		return nil, malformed(path, fmt.Errorf("expected array or object, got %T", raw))
	}
	return eventsFromElements(ctx, path, elems)
}

func eventsFromElements(ctx context.Context, path string, elems []interface{}) ([]record.MessageEvent, error) {
	events := make([]record.MessageEvent, 0, len(elems))
	for i, elem := range elems {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		obj, ok := elem.(map[string]interface{})
		if !ok {
			return nil, malformed(path, fmt.Errorf("element %d is %T, not an object", i, elem))
		}
		events = append(events, eventFromFields(fieldsFromObject(obj)))
	}
	return events, nil
}

// JSONLImporter handles newline-delimited JSON (.jsonl, .ndjson).
type JSONLImporter struct{}

// CanHandle returns true for JSONL file extensions.
func (j *JSONLImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".jsonl" || ext == ".ndjson"
}

// Import parses one event object per line. Blank lines are skipped.
func (j *JSONLImporter) Import(ctx context.Context, path string) ([]record.MessageEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, unavailable(path, err)
	}
	defer f.Close()

	var events []record.MessageEvent
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(text), &obj); err != nil {
			return nil, malformed(path, fmt.Errorf("line %d: %w", line, err))
		}
		events = append(events, eventFromFields(fieldsFromObject(obj)))
	}
	if err := sc.Err(); err != nil {
		return nil, malformed(path, err)
	}
	return events, nil
}
