package extract

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/rescuelog/internal/record"
	"github.com/hurttlocker/rescuelog/internal/weight"
)

// Pipeline builds one record per grouped session.
type Pipeline struct {
	items   *ItemParser
	window  time.Duration
	workers int
	logger  *zap.Logger
}

// PipelineOption configures the extraction pipeline.
type PipelineOption func(*Pipeline)

// WithLogger sets the logger used for debug tracing.
func WithLogger(l *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithWindow sets the idle gap that closes a session.
func WithWindow(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.window = d
		}
	}
}

// WithWorkers caps how many sessions are built concurrently.
func WithWorkers(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// NewPipeline creates a pipeline that estimates weights with est (nil means
// built-in rates).
func NewPipeline(est *weight.Estimator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		items:   NewItemParser(est),
		window:  DefaultWindow,
		workers: runtime.NumCPU(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run filters and groups events, then builds a record per session. IDs are
// assigned 1-based in session order. Empty input yields an empty result.
func (p *Pipeline) Run(ctx context.Context, events []record.MessageEvent) ([]record.Record, error) {
	usable := FilterMessages(events)
	sessions := Group(usable, p.window)
	p.logger.Debug("grouped sessions",
		zap.Int("events", len(events)),
		zap.Int("usable", len(usable)),
		zap.Int("sessions", len(sessions)),
	)

	records := make([]record.Record, len(sessions))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range sessions {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec := p.BuildRecord(sessions[i])
			rec.ID = i + 1
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("building records: %w", err)
	}
	return records, nil
}

// BuildRecord extracts one session. Locations are kept raw; canonical names
// are a read-side concern.
func (p *Pipeline) BuildRecord(s record.Session) record.Record {
	text := s.Text()
	rescue := ExtractRescueLocation(text)
	dropOff := ExtractDropOffLocation(text)
	direction := ClassifyDirection(text, rescue, dropOff)

	var items []record.Item
	sections := p.items.SplitSections(text)
	if len(sections) > 0 {
		for _, sec := range sections {
			items = append(items, sec.Items...)
		}
		if rescue == "" && sections[0].Location != "" {
			rescue = sections[0].Location
		}
		if dropOff != "" && !hasSection(sections, dropOff) {
			sections = append(sections, record.Section{Location: dropOff, Items: items})
		}
	} else {
		items = p.items.Parse(text)
		if rescue != "" || dropOff != "" {
			loc := rescue
			if loc == "" {
				loc = dropOff
			}
			sections = []record.Section{{Location: loc, Items: items}}
		}
	}
	if items == nil {
		items = []record.Item{}
	}
	if sections == nil {
		sections = []record.Section{}
	}
	for i := range sections {
		if sections[i].Items == nil {
			sections[i].Items = []record.Item{}
		}
	}

	endTS := s.StartTS
	if n := len(s.Timestamps); n > 0 {
		endTS = s.Timestamps[n-1]
	}
	p.logger.Debug("built record",
		zap.String("user", s.Author),
		zap.String("direction", string(direction)),
		zap.String("rescue", rescue),
		zap.String("drop_off", dropOff),
		zap.Int("items", len(items)),
	)
	return record.Record{
		User:            s.Author,
		StartTS:         s.StartTS,
		EndTS:           endTS,
		Direction:       direction,
		RescueLocation:  rescue,
		DropOffLocation: dropOff,
		Items:           items,
		Sections:        sections,
		RawMessages:     append([]string(nil), s.Messages...),
	}
}

func hasSection(sections []record.Section, location string) bool {
	for _, sec := range sections {
		if sec.Location == location {
			return true
		}
	}
	return false
}

// ExtractText builds a record from a single free-text message.
func (p *Pipeline) ExtractText(author, text string) record.Record {
	rec := p.BuildRecord(record.Session{Author: author, Messages: []string{text}})
	rec.ID = 1
	return rec
}

// WriteJSONL writes one JSON record per line.
func WriteJSONL(w io.Writer, records []record.Record) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encoding record %d: %w", rec.ID, err)
		}
	}
	return bw.Flush()
}
