package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hurttlocker/rescuelog/internal/record"
)

// Loader dispatches files to the importer for their format.
type Loader struct {
	importers []Importer
}

// NewLoader returns a loader with every built-in importer.
func NewLoader() *Loader {
	return &Loader{importers: []Importer{
		&CSVImporter{},
		&JSONImporter{},
		&JSONLImporter{},
		&YAMLImporter{},
	}}
}

// DetectFormat returns the importer for path, or nil if none handles it.
func (l *Loader) DetectFormat(path string) Importer {
	for _, imp := range l.importers {
		if imp.CanHandle(path) {
			return imp
		}
	}
	return nil
}

// LoadFile loads one export file.
func (l *Loader) LoadFile(ctx context.Context, path string) ([]record.MessageEvent, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, unavailable(path, err)
	}
	if info.IsDir() {
		return nil, unavailable(path, fmt.Errorf("is a directory"))
	}
	imp := l.DetectFormat(path)
	if imp == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return imp.Import(ctx, path)
}

// Load loads a file, or every supported file under a directory. Directory
// loads skip hidden entries and unsupported files; per-file failures are
// collected in the result instead of aborting the load. A path that cannot
// be opened at all fails with ErrSourceUnavailable.
func (l *Loader) Load(ctx context.Context, path string, opts ImportOptions) ([]record.MessageEvent, *ImportResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, unavailable(path, err)
	}
	if !info.IsDir() {
		events, err := l.LoadFile(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return events, &ImportResult{FilesScanned: 1, FilesImported: 1, Events: len(events)}, nil
	}
	return l.LoadDir(ctx, path, opts)
}

// LoadDir loads every supported file in dir in lexical path order.
func (l *Loader) LoadDir(ctx context.Context, dir string, opts ImportOptions) ([]record.MessageEvent, *ImportResult, error) {
	files, err := l.collectFiles(dir, opts.Recursive)
	if err != nil {
		return nil, nil, unavailable(dir, err)
	}

	result := &ImportResult{}
	var events []record.MessageEvent
	for i, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, result, err
		}
		result.FilesScanned++
		if opts.ProgressFn != nil {
			opts.ProgressFn(i+1, len(files), file)
		}
		imp := l.DetectFormat(file)
		if imp == nil {
			result.FilesSkipped++
			continue
		}
		fileEvents, err := imp.Import(ctx, file)
		if err != nil {
			result.Errors = append(result.Errors, ImportError{File: file, Message: err.Error()})
			continue
		}
		result.FilesImported++
		result.Events += len(fileEvents)
		events = append(events, fileEvents...)
	}
	return events, result, nil
}

func (l *Loader) collectFiles(dir string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
