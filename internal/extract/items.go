package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/hurttlocker/rescuelog/internal/record"
	"github.com/hurttlocker/rescuelog/internal/weight"
)

// Sanity ceilings for parsed quantities.
const (
	MaxQuantity         = 500.0
	MaxUnitlessQuantity = 150.0
)

// itemPattern matches one inventory phrase: quantity, optional size
// adjective, optional unit, optional "of", then the name. The unit must end
// on a word boundary so "canned corn" and "bagels" keep their names.
var itemPattern = regexp.MustCompile(`(?i)^\s*[-*•\[]*\s*~?\s*` +
	`(?P<qty>\d+(?:\.\d+)?)\s*` +
	`(?:(?:small|sm|large|lrg|big)\s+)?` +
	`(?:(?P<unit>cs|cases?|boxes|box|bins?|bags?|shopping\s+bags?|totes?|crates?|flats?|pkgs?|packages?|pallets?|lbs?|pounds?|gals?|gallons?|dozen|dz|bottles?|cans?|loaves|loaf|bunch(?:es)?|trays?|jars?|clamshells?)\b)?` +
	`\s*(?:of\s+)?` +
	`(?P<name>[A-Za-z][^,;|\n]*)`)

var (
	itemQtyIdx  = itemPattern.SubexpIndex("qty")
	itemUnitIdx = itemPattern.SubexpIndex("unit")
	itemNameIdx = itemPattern.SubexpIndex("name")
)

// unitSynonyms normalizes captured unit text.
var unitSynonyms = map[string]record.Unit{
	"cs": record.UnitCase, "case": record.UnitCase, "cases": record.UnitCase,
	"box": record.UnitBox, "boxes": record.UnitBox,
	"bin": record.UnitBin, "bins": record.UnitBin,
	"bag": record.UnitBag, "bags": record.UnitBag, "shopping bag": record.UnitBag, "shopping bags": record.UnitBag,
	"tote": record.UnitTote, "totes": record.UnitTote,
	"crate": record.UnitCrate, "crates": record.UnitCrate,
	"flat": record.UnitFlat, "flats": record.UnitFlat,
	"pkg": record.UnitPackage, "pkgs": record.UnitPackage, "package": record.UnitPackage, "packages": record.UnitPackage,
	"pallet": record.UnitPallet, "pallets": record.UnitPallet,
	"lb": record.UnitPound, "lbs": record.UnitPound, "pound": record.UnitPound, "pounds": record.UnitPound,
	"gal": record.UnitGallon, "gals": record.UnitGallon, "gallon": record.UnitGallon, "gallons": record.UnitGallon,
	"dozen": record.UnitDozen, "dz": record.UnitDozen,
	"bottle": record.UnitBottle, "bottles": record.UnitBottle,
	"can": record.UnitCan, "cans": record.UnitCan,
	"loaf": record.UnitLoaf, "loaves": record.UnitLoaf,
	"bunch": record.UnitBunch, "bunches": record.UnitBunch,
	"tray": record.UnitTray, "trays": record.UnitTray,
	"jar": record.UnitJar, "jars": record.UnitJar,
	"clamshell": record.UnitClamshell, "clamshells": record.UnitClamshell,
}

// NormalizeUnit maps raw unit text to a Unit, or UnitNone if unrecognized.
func NormalizeUnit(raw string) record.Unit {
	key := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	return unitSynonyms[key]
}

// nameTypos is the fixed set of operator misspellings we correct.
var nameTypos = map[string]string{
	"brocolli":        "broccoli",
	"brussel sprouts": "brussels sprouts",
}

// boilerplateTerms mark facility and meeting chatter, not inventory.
var boilerplateTerms = []string{
	"google", "docs.google", "guide", "meeting", "channel", "thermometer",
	"dumpster", "door", "code", "recycling", "compost", "cardboard",
	"loading", "schedule",
}

var (
	segmentSplitRE   = regexp.MustCompile(`[|;/,]+|\n+`)
	andSplitRE       = regexp.MustCompile(`(?i)\band\b|&`)
	halfAndHalfAnyRE = regexp.MustCompile(`(?i)\bhalf\s+and\s+half\b`)

	// quantityStartRE finds the first number that begins a token, so an
	// actor like "NA4J" ahead of the quantity is skipped as filler.
	quantityStartRE = regexp.MustCompile(`(?:^|[^A-Za-z0-9.])(~?\d)`)

	trailingNoteRE     = regexp.MustCompile(`\(([^)]{1,80})\)\s*$`)
	storageQualifierRE = regexp.MustCompile(`(?i)\b(?:in|on|inside)\s+(?:the\s+)?(?:cooler|freezer|fridges?)\b`)
	trailingPlaceRE    = regexp.MustCompile(`\s+(?:from|to|at|for|@)\s+[A-Z0-9].*$`)
	trailingTheRE      = regexp.MustCompile(`(?i)\s+(?:from|to|at)\s+the\s+.*$`)
	trailingUnitRE     = regexp.MustCompile(`(?i)^(?P<item>.+?)\s+(?P<unit>boxes|box|cases?|crates?|totes?|bins?|bags?)$`)
	leadingBagRE       = regexp.MustCompile(`(?i)^(?:big|large|lrg)?\s*bags?\b\s+(.*)$`)
	bigPrefixRE        = regexp.MustCompile(`(?i)^(?:big|large|lrg)\s+`)
	bagWordRE          = regexp.MustCompile(`(?i)\bbags?\b`)
	splitPeaSizeRE     = regexp.MustCompile(`(?i)^(?:big|large|small|lrg)\s+(split\s+peas?)`)
	timeOfDayRE        = regexp.MustCompile(`\b(?:am|pm)\b`)
	nonLetterRE        = regexp.MustCompile(`[^a-z]`)
)

// ItemParser turns free text into inventory items.
type ItemParser struct {
	weights *weight.Estimator
}

// NewItemParser returns a parser that estimates weights with est. A nil
// estimator uses the built-in rates.
func NewItemParser(est *weight.Estimator) *ItemParser {
	if est == nil {
		est = weight.NewEstimator(weight.Config{})
	}
	return &ItemParser{weights: est}
}

// Parse returns the accepted items of text in candidate order. Duplicates
// are not merged.
func (p *ItemParser) Parse(text string) []record.Item {
	var items []record.Item
	for _, segment := range SplitSegments(numberize(normalizeText(text))) {
		if it, ok := p.ParseSegment(segment); ok {
			items = append(items, it)
		}
	}
	return items
}

const halfAndHalfMark = "half\x00half"

// SplitSegments breaks text into candidate item phrases on bullets, "|;/,",
// newlines and the conjunctions "and" / "&".
func SplitSegments(text string) []string {
	text = strings.ReplaceAll(text, "•", "\n")
	text = segmentSplitRE.ReplaceAllString(text, "\n")

	var segments []string
	for _, block := range strings.Split(text, "\n") {
		block = strings.Trim(block, " -•\t")
		if block == "" {
			continue
		}
		// "half and half" is a product, not two items.
		block = halfAndHalfAnyRE.ReplaceAllString(block, halfAndHalfMark)
		for _, part := range andSplitRE.Split(block, -1) {
			part = strings.ReplaceAll(part, halfAndHalfMark, "half and half")
			if part = strings.Trim(part, " -•\t"); part != "" {
				segments = append(segments, part)
			}
		}
	}
	return segments
}

// ParseSegment parses one candidate phrase. ok is false when the phrase is
// rejected.
func (p *ItemParser) ParseSegment(segment string) (record.Item, bool) {
	lower := strings.ToLower(segment)
	if strings.HasPrefix(lower, "http") || strings.HasPrefix(lower, "<http") ||
		strings.Contains(lower, "google.com/maps") || strings.Contains(segment, "<@") {
		return record.Item{}, false
	}
	if containsAnyPhrase(lower, boilerplateTerms) {
		return record.Item{}, false
	}

	loc := quantityStartRE.FindStringSubmatchIndex(segment)
	if loc == nil {
		return record.Item{}, false
	}
	segment = strings.TrimSpace(segment[loc[2]:])

	m := itemPattern.FindStringSubmatch(segment)
	if m == nil {
		return record.Item{}, false
	}
	qty, err := strconv.ParseFloat(m[itemQtyIdx], 64)
	if err != nil {
		return record.Item{}, false
	}
	rawUnit := strings.ToLower(strings.Join(strings.Fields(m[itemUnitIdx]), " "))
	unit := NormalizeUnit(rawUnit)

	name := strings.TrimSpace(strings.Trim(m[itemNameIdx], " .;-"))
	if name == "" {
		return record.Item{}, false
	}
	name = strings.TrimSpace(trailingNoteRE.ReplaceAllString(name, ""))
	name = strings.TrimSpace(storageQualifierRE.ReplaceAllString(name, ""))
	name = strings.TrimSpace(trailingPlaceRE.ReplaceAllString(name, ""))
	name = strings.TrimSpace(trailingTheRE.ReplaceAllString(name, ""))

	if unit == record.UnitNone {
		if tm := trailingUnitRE.FindStringSubmatch(name); tm != nil {
			rawUnit = strings.ToLower(tm[2])
			unit = NormalizeUnit(rawUnit)
			name = strings.TrimSpace(tm[1])
		}
	}
	if unit == record.UnitNone {
		if bm := leadingBagRE.FindStringSubmatch(name); bm != nil {
			rawUnit = "bag"
			unit = record.UnitBag
			name = strings.TrimSpace(bm[1])
		}
	}
	if unit == record.UnitBag {
		name = strings.TrimSpace(bigPrefixRE.ReplaceAllString(name, ""))
	}
	name = bagWordRE.ReplaceAllString(name, "")
	name = splitPeaSizeRE.ReplaceAllString(strings.TrimSpace(name), "$1")
	name = strings.ToLower(strings.Join(strings.Fields(name), " "))
	if fixed, ok := nameTypos[name]; ok {
		name = fixed
	}

	category := Categorize(name)
	if rejectItem(name, qty, unit, category) {
		return record.Item{}, false
	}

	q := qty
	return record.Item{
		Name:         name,
		Quantity:     &q,
		Unit:         record.UnitPtr(unit),
		RawUnit:      rawUnit,
		EstimatedLbs: p.weights.Estimate(&q, string(unit), name),
		Subcategory:  category,
	}, true
}

// rejectItem applies the post-parse sanity rules.
func rejectItem(name string, qty float64, unit record.Unit, category record.Category) bool {
	if len(nonLetterRE.ReplaceAllString(name, "")) < 3 {
		return true
	}
	if strings.Contains(name, "<@") || strings.Contains(name, "http") {
		return true
	}
	if qty > MaxQuantity {
		return true
	}
	unitless := unit == record.UnitNone
	if unitless && qty > MaxUnitlessQuantity {
		return true
	}
	if strings.Contains(name, "!") {
		return true
	}
	if unitless && timeOfDayRE.MatchString(name) {
		return true
	}
	if unitless && category == record.CategoryNone && len(strings.Fields(name)) <= 1 && qty <= 2 {
		return true
	}
	return unitless && category == record.CategoryNone
}
