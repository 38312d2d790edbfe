package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hurttlocker/rescuelog/internal/record"
)

var (
	// ErrSourceUnavailable means a caller-supplied path could not be opened.
	ErrSourceUnavailable = errors.New("transcript source unavailable")
	// ErrMalformedSource means a file opened but could not be parsed.
	ErrMalformedSource = errors.New("malformed transcript source")
	// ErrUnsupportedFormat means no importer handles the file extension.
	ErrUnsupportedFormat = errors.New("unsupported transcript format")
)

// Importer handles a specific file format.
type Importer interface {
	// CanHandle returns true if this importer supports the given file path.
	CanHandle(path string) bool

	// Import parses the file and returns its message events in file order.
	Import(ctx context.Context, path string) ([]record.MessageEvent, error)
}

// ImportOptions configures a directory load.
type ImportOptions struct {
	Recursive  bool
	ProgressFn func(current, total int, file string)
}

// ImportResult summarizes a load.
type ImportResult struct {
	FilesScanned  int
	FilesImported int
	FilesSkipped  int
	Events        int
	Errors        []ImportError
}

// Add merges another ImportResult into this one.
func (r *ImportResult) Add(other *ImportResult) {
	r.FilesScanned += other.FilesScanned
	r.FilesImported += other.FilesImported
	r.FilesSkipped += other.FilesSkipped
	r.Events += other.Events
	r.Errors = append(r.Errors, other.Errors...)
}

// ImportError records a non-fatal per-file error during a directory load.
type ImportError struct {
	File    string
	Message string
}

// fieldAliases maps each event field to the accepted column/key names,
// lowercased.
var fieldAliases = map[string][]string{
	"timestamp": {"timestamp", "ts", "time", "date", "datetime"},
	"author":    {"user", "author", "user_name", "username", "sender"},
	"text":      {"message", "text", "body", "content"},
	"kind":      {"type", "kind", "msg_type"},
	"subkind":   {"subtype", "subkind"},
	"thread":    {"threadts", "thread_ts", "thread"},
}

// eventFromFields builds an event from lowercased key → value pairs.
func eventFromFields(fields map[string]string) record.MessageEvent {
	get := func(field string) string {
		for _, alias := range fieldAliases[field] {
			if v, ok := fields[alias]; ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	ts := get("timestamp")
	return record.MessageEvent{
		Timestamp: ts,
		Time:      record.ParseTimestamp(ts),
		Author:    get("author"),
		Text:      fields[firstPresent(fields, fieldAliases["text"])],
		Kind:      get("kind"),
		Subkind:   get("subkind"),
		ThreadTS:  get("thread"),
	}
}

// firstPresent returns the first alias present in fields, or "".
func firstPresent(fields map[string]string, aliases []string) string {
	for _, alias := range aliases {
		if _, ok := fields[alias]; ok {
			return alias
		}
	}
	return ""
}

// fieldsFromObject lowercases keys and stringifies scalar values of a
// decoded JSON/YAML object. Nested values are ignored.
func fieldsFromObject(obj map[string]interface{}) map[string]string {
	out := make(map[string]string, len(obj))
	for k, v := range obj {
		key := strings.ToLower(strings.TrimSpace(k))
		switch val := v.(type) {
		case string:
			out[key] = val
		case float64:
			out[key] = strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			out[key] = strconv.Itoa(val)
		case bool:
			out[key] = strconv.FormatBool(val)
		case time.Time:
			// yaml.v3 decodes unquoted timestamps itself.
			out[key] = val.Format(time.RFC3339Nano)
		case nil:
		default:
			if s, ok := v.(fmt.Stringer); ok {
				out[key] = s.String()
			}
		}
	}
	return out
}

func malformed(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedSource, path, err)
}

func unavailable(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
}
