// Package ingest loads chat transcript exports into message events.
//
// Each supported format (CSV/TSV, JSON, JSONL, YAML) has its own importer
// that implements the Importer interface. The loader picks an importer by
// file extension and can walk directories of exports.
//
// Column and field names are matched case-insensitively against a small
// alias set, so Slack exports ("ts", "user", "text") and spreadsheet dumps
// ("Timestamp", "User", "Message") load the same way.
package ingest
