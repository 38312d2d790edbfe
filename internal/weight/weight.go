// Package weight estimates the weight in pounds of a parsed inventory line
// from its quantity, unit and name using a configurable rate table.
package weight

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultRate is the per-unit rate used when the config has no base.default.
const DefaultRate = 5.0

// Config is the rate table. It is read once and treated as read-only.
type Config struct {
	// Base holds per-unit rates: "default" plus one per food class
	// ("produce_heavy", "produce_light", "meat", "dairy").
	Base map[string]float64 `yaml:"base" json:"base"`
	// FoodWeights maps a food class to the name keywords that select it.
	FoodWeights map[string][]string `yaml:"food_weights" json:"food_weights"`
	// UnitOverrides are per-unit floors that replace the built-in ladder.
	UnitOverrides map[string]float64 `yaml:"unit_overrides" json:"unit_overrides"`
	// ItemSpecific are keyword → unit → rate overrides, kept in file order.
	ItemSpecific ItemOverrides `yaml:"item_specific" json:"item_specific"`
}

// ItemOverride sets exact per-unit rates for names containing Keyword.
type ItemOverride struct {
	Keyword string
	Rates   map[string]float64
}

// ItemOverrides preserves the order in which keywords appear in the file;
// the first keyword contained in a name that has a rate for the unit wins.
type ItemOverrides []ItemOverride

// UnmarshalYAML decodes a mapping node while keeping key order.
func (o *ItemOverrides) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("item_specific: expected mapping, got kind %d", node.Kind)
	}
	out := make(ItemOverrides, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var rates map[string]float64
		if err := node.Content[i+1].Decode(&rates); err != nil {
			return fmt.Errorf("item_specific %q: %w", node.Content[i].Value, err)
		}
		kw := strings.ToLower(strings.TrimSpace(node.Content[i].Value))
		if kw == "" {
			continue
		}
		normalized := make(map[string]float64, len(rates))
		for unit, rate := range rates {
			normalized[strings.ToLower(strings.TrimSpace(unit))] = rate
		}
		out = append(out, ItemOverride{Keyword: kw, Rates: normalized})
	}
	*o = out
	return nil
}

// Load reads a weight config file (JSON or YAML). An empty path or a missing
// file yields an empty Config and no error; an unreadable or invalid file
// yields an empty Config and an error to be reported as a warning.
func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Config{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading weight config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing weight config %s: %w", path, err)
	}
	return cfg, nil
}

// foodClasses is the order in which name keyword lists raise the base rate.
// Seafood is priced at the meat rate.
var foodClasses = []struct {
	list string
	rate string
}{
	{"produce_heavy", "produce_heavy"},
	{"produce_light", "produce_light"},
	{"meat", "meat"},
	{"dairy", "dairy"},
	{"seafood", "meat"},
}

// floorRule is one step of the built-in per-unit floor ladder, evaluated in
// order; the first matching step applies.
type floorRule struct {
	matches func(unit, name string) bool
	floor   float64
	exact   bool // set the rate instead of raising it
}

func unitHas(subs ...string) func(unit, name string) bool {
	return func(unit, _ string) bool {
		for _, s := range subs {
			if strings.Contains(unit, s) {
				return true
			}
		}
		return false
	}
}

var floorLadder = []floorRule{
	{matches: unitHas("bag"), floor: 8},
	{matches: unitHas("bin", "tote", "crate"), floor: 25},
	{matches: unitHas("box", "case", "cs", "pkg", "package"), floor: 15},
	{matches: unitHas("flat"), floor: 12},
	{matches: unitHas("gallon", "gal"), floor: 8},
	{matches: func(unit, _ string) bool { return unit == "lb" || unit == "pound" || unit == "pounds" }, floor: 1, exact: true},
	{matches: func(unit, _ string) bool { return strings.Contains(unit, "dozen") || unit == "dz" }, floor: 4},
	{matches: unitHas("loaf"), floor: 0.5},
	{matches: unitHas("bottle", "can", "jar"), floor: 2},
	{matches: unitHas("tray", "clamshell"), floor: 3},
	{matches: unitHas("bunch"), floor: 5},
	{matches: unitHas("each"), floor: 2},
	{matches: func(_, name string) bool { return strings.Contains(name, "bread") || strings.Contains(name, "dessert") }, floor: 2.5},
}

// Estimator converts quantity, unit and name into pounds.
type Estimator struct {
	cfg Config
}

// NewEstimator wraps cfg. The config must not be mutated afterwards.
func NewEstimator(cfg Config) *Estimator {
	return &Estimator{cfg: cfg}
}

// Estimate returns the estimated weight in pounds, or nil when qty is nil
// or not positive.
func (e *Estimator) Estimate(qty *float64, unit, name string) *float64 {
	if qty == nil || *qty <= 0 {
		return nil
	}
	q := *qty
	unitNorm := strings.ToLower(strings.TrimSpace(unit))
	nameNorm := strings.ToLower(name)

	switch unitNorm {
	case "lb", "lbs", "pound", "pounds":
		return finite(round2(q))
	}

	for _, o := range e.cfg.ItemSpecific {
		if !strings.Contains(nameNorm, o.Keyword) {
			continue
		}
		if rate, ok := o.Rates[unitNorm]; ok {
			return finite(round2(rate * q))
		}
	}

	rate := e.Rate(unitNorm, nameNorm)
	return finite(round2(rate * q))
}

// Rate returns the per-unit rate for a unit and name after the category
// and floor steps. Item-specific overrides are not consulted.
func (e *Estimator) Rate(unit, name string) float64 {
	unit = strings.ToLower(strings.TrimSpace(unit))
	name = strings.ToLower(name)

	perUnit := DefaultRate
	if v, ok := e.cfg.Base["default"]; ok {
		perUnit = v
	}

	for _, class := range foodClasses {
		if containsAny(name, e.cfg.FoodWeights[class.list]) {
			if v, ok := e.cfg.Base[class.rate]; ok {
				perUnit = v
			}
			break
		}
	}

	if floor, ok := e.cfg.UnitOverrides[unit]; ok {
		return math.Max(perUnit, floor)
	}
	for _, step := range floorLadder {
		if !step.matches(unit, name) {
			continue
		}
		if step.exact {
			return step.floor
		}
		return math.Max(perUnit, step.floor)
	}
	return perUnit
}

func containsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if tok != "" && strings.Contains(s, strings.ToLower(tok)) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func finite(v float64) *float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
