package extract

import (
	"regexp"
	"strings"

	"github.com/hurttlocker/rescuelog/internal/record"
)

// sectionHeadingRE matches a line that is only a label and a colon,
// e.g. "Aldi Wicker Park:".
var sectionHeadingRE = regexp.MustCompile(`^([A-Za-z0-9 /&'’.-]+):\s*$`)

// SplitSections splits text into location-headed sections and parses each
// body. Lines before the first heading are ignored and sections without
// items are dropped. Returns nil when no heading is present.
func (p *ItemParser) SplitSections(text string) []record.Section {
	type chunk struct {
		location string
		lines    []string
	}
	var (
		chunks  []chunk
		current *chunk
	)
	for _, line := range strings.Split(normalizeText(text), "\n") {
		if m := sectionHeadingRE.FindStringSubmatch(line); m != nil {
			if current != nil {
				chunks = append(chunks, *current)
			}
			current = &chunk{location: strings.TrimSpace(m[1])}
			continue
		}
		if current != nil {
			current.lines = append(current.lines, line)
		}
	}
	if current != nil {
		chunks = append(chunks, *current)
	}

	var sections []record.Section
	for _, c := range chunks {
		if len(c.lines) == 0 {
			continue
		}
		items := p.Parse(strings.Join(c.lines, "\n"))
		if len(items) == 0 {
			continue
		}
		sections = append(sections, record.Section{
			Location: cleanLocation(c.location),
			Items:    items,
		})
	}
	return sections
}
