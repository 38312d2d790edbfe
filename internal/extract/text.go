// Package extract turns grouped warehouse chat sessions into structured
// food-rescue records without an LLM or external API:
// - Direction of flow (inbound, outbound, both, unknown)
// - Rescue (pickup) and drop-off locations
// - Location-headed sections
// - Items with quantity, unit, category and estimated weight
//
// Every stage is a pure function of its input and the read-only tables it
// was constructed with, so records are deterministic and sessions can be
// processed concurrently.
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// numberWords are the spelled-out quantities rewritten to digits.
var numberWords = map[string]float64{
	"zero":   0,
	"one":    1,
	"two":    2,
	"three":  3,
	"four":   4,
	"five":   5,
	"six":    6,
	"seven":  7,
	"eight":  8,
	"nine":   9,
	"ten":    10,
	"eleven": 11,
	"twelve": 12,
	"half":   0.5,
}

// numberWordRE matches a number word followed by whitespace and another word.
// Group 1 is the number word; group 2 is the following context.
var numberWordRE = regexp.MustCompile(`(?i)\b(zero|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|half)(\s+[A-Za-z])`)

var halfAndHalfRE = regexp.MustCompile(`(?i)^half\s+and\s+half\b`)

// normalizeText replaces non-breaking spaces, unifies line endings and trims.
func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimSpace(text)
}

// numberize rewrites spelled-out quantities ("two cases" → "2 cases").
// Words not followed by another word are left alone, as is the dairy
// product "half and half".
func numberize(text string) string {
	matches := numberWordRE.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	last := 0
	skipUntil := -1
	for _, m := range matches {
		start, end := m[2], m[3]
		if start < skipUntil {
			continue
		}
		word := strings.ToLower(text[start:end])
		if word == "half" {
			if loc := halfAndHalfRE.FindStringIndex(text[start:]); loc != nil {
				skipUntil = start + loc[1]
				continue
			}
		}
		b.WriteString(text[last:start])
		b.WriteString(strconv.FormatFloat(numberWords[word], 'f', -1, 64))
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

var (
	trailingLocPunctRE = regexp.MustCompile(`[;,.]+$`)
	whitespaceRE       = regexp.MustCompile(`\s+`)
)

// cleanLocation strips trailing ";,." and collapses whitespace.
func cleanLocation(value string) string {
	cleaned := trailingLocPunctRE.ReplaceAllString(value, "")
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(cleaned, " "))
}
