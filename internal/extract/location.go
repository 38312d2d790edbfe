package extract

import (
	"regexp"
	"strings"
)

// LocationRule is one ordered phrase pattern. The first capture group holds
// the location and everything after it.
type LocationRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// RescueRules are tried in order; the first match wins. Specific phrasings
// come before generic ones so "dropped off from X" is not read as "from X".
var RescueRules = []LocationRule{
	{Name: "dropped_off_from", Pattern: regexp.MustCompile(`(?i)(?:dropped\s+off\s+from|dropped\s+from|drop\s+off\s+from)\s+(.+)`)},
	{Name: "picked_up_from", Pattern: regexp.MustCompile(`(?i)(?:picked\s+up\s+(?:some\s+)?(?:produce\s+)?from|rescued\s+from|rescue\s+from|pickup(?:ed)?\s+from|earlier\s+today\s+from|today\s+from|scooped\s+(?:this\s+)?from)\s+(.+)`)},
	{Name: "verb_then_from", Pattern: regexp.MustCompile(`(?i)\b(?:picked\s+up|pickup|rescued)\s+[^\n]+?\s+from\s+(.+)`)},
	{Name: "leading_from", Pattern: regexp.MustCompile(`^(?:from|From)\s+([A-Z][A-Za-z0-9 &'’-]{2,})`)},
}

// DropOffRules are tried in order; the first match wins.
var DropOffRules = []LocationRule{
	{Name: "dropped_at", Pattern: regexp.MustCompile(`(?i)(?:dropped\s+off|dropped)\s+(?:at|to|surplus\s+at)\s+(.+)`)},
	{Name: "delivered_to", Pattern: regexp.MustCompile(`(?i)(?:delivered|deliver|delivering)\s+(?:to|at)\s+(.+)`)},
	{Name: "brought_to", Pattern: regexp.MustCompile(`(?i)(?:brought|bringing|took|taking|sent|sending)\s+(?:to|at)\s+(.+)`)},
	{Name: "taken_to", Pattern: regexp.MustCompile(`(?i)(?:taken\s+to|going\s+to)\s+(.+)`)},
	{Name: "verb_goods_to", Pattern: regexp.MustCompile(`(?i)(?:took|brought|delivered|dropped\s+off|sent|taking|bringing)\s+.+?\s+to\s+(.+)`)},
	{Name: "for_org", Pattern: regexp.MustCompile(`(?i)\bfor\s+([A-Z][A-Za-z0-9 &'-]{2,})`)},
	{Name: "actor_took", Pattern: regexp.MustCompile(`(?i)^([A-Za-z0-9 &'-]{2,})\s+(?:took|grabbed|picked\s+up)\b`)},
	{Name: "claimed_for", Pattern: regexp.MustCompile(`(?i)(?:claimed|labeled)\s+for\s+([A-Z][A-Za-z0-9 &'-]{2,})`)},
}

// FridgeDestination is reported when a take-away verb is used alongside
// "fridge" and no drop-off rule matched.
const FridgeDestination = "Love Fridge"

var (
	dashClauseRE     = regexp.MustCompile(`\s[-–—]\s`)
	trailingInAreaRE = regexp.MustCompile(`(?i)\s+in\s+\w+$`)
	trailingAndRE    = regexp.MustCompile(`(?i)\s+and\s+.*$`)
	fridgeVerbRE     = regexp.MustCompile(`(?i)\b(?:taken\s+to|took|taking|dropped)\b`)
)

// MatchRule returns the name of the first rule that matches text along with
// its captured remainder.
func MatchRule(rules []LocationRule, text string) (name, remainder string, ok bool) {
	for _, r := range rules {
		if m := r.Pattern.FindStringSubmatch(text); m != nil {
			return r.Name, m[1], true
		}
	}
	return "", "", false
}

// ExtractRescueLocation returns the raw pickup origin named in text, or "".
func ExtractRescueLocation(text string) string {
	_, rest, ok := MatchRule(RescueRules, text)
	if !ok {
		return ""
	}
	// Strip "in <area>" only when it ends the line, before the clause cut.
	rest = trailingInAreaRE.ReplaceAllString(firstLine(rest), "")
	return cleanLocation(truncateClause(rest))
}

// ExtractDropOffLocation returns the raw destination named in text, or "".
func ExtractDropOffLocation(text string) string {
	if _, rest, ok := MatchRule(DropOffRules, text); ok {
		return cleanLocation(truncateClause(firstLine(rest)))
	}
	if strings.Contains(strings.ToLower(text), "fridge") && fridgeVerbRE.MatchString(text) {
		return FridgeDestination
	}
	return ""
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// truncateClause cuts a captured location at the first colon, semicolon,
// comma, spaced dash or trailing " and ..." clause.
func truncateClause(s string) string {
	if i := strings.IndexAny(s, ":;,"); i >= 0 {
		s = s[:i]
	}
	if loc := dashClauseRE.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	return trailingAndRE.ReplaceAllString(s, "")
}
