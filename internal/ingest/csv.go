package ingest

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/hurttlocker/rescuelog/internal/record"
)

// CSVImporter handles .csv and .tsv exports.
type CSVImporter struct{}

// CanHandle returns true for CSV/TSV file extensions.
func (c *CSVImporter) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".csv" || ext == ".tsv"
}

// Import parses a CSV export. The first row holds headers
// (Timestamp, User, Message, Type, Subtype, ThreadTS in any case); each
// following row becomes one event. Rows with no cells are skipped.
func (c *CSVImporter) Import(ctx context.Context, path string) ([]record.MessageEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, unavailable(path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)

	// Auto-detect TSV
	if strings.ToLower(filepath.Ext(path)) == ".tsv" {
		reader.Comma = '\t'
	}

	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, malformed(path, err)
	}

	if len(rows) < 2 {
		// Need at least headers + one row
		return nil, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}

	events := make([]record.MessageEvent, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields := make(map[string]string, len(headers))
		empty := true
		for j, val := range row {
			if j >= len(headers) {
				break
			}
			fields[headers[j]] = val
			if strings.TrimSpace(val) != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		events = append(events, eventFromFields(fields))
	}
	return events, nil
}
