package record

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// slackTSRE matches Slack-style epoch timestamps ("1699999999.000100").
var slackTSRE = regexp.MustCompile(`^\d{9,11}(?:\.\d+)?$`)

// ParseTimestamp parses an exported timestamp. It accepts ISO-8601 variants
// (a trailing "Z" included) and Slack epoch seconds. Naive timestamps are
// read as UTC. Returns nil when raw is blank or unparseable.
func ParseTimestamp(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	if slackTSRE.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		sec, frac := math.Modf(f)
		t := time.Unix(int64(sec), int64(math.Round(frac*1e6))*int64(time.Microsecond)).UTC()
		return &t
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
