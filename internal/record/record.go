// Package record defines the value types that flow through the rescue-log
// extraction pipeline: raw message events, grouped sessions, and the
// structured records produced for each session.
package record

import (
	"strings"
	"time"
)

// MessageEvent is one row of a chat transcript export.
type MessageEvent struct {
	Timestamp string     // Raw timestamp as exported
	Time      *time.Time // Parsed Timestamp, nil when absent or unparseable
	Author    string
	Text      string
	Kind      string // "message", "system", ...
	Subkind   string // "channel_join", "bot_message", ...
	ThreadTS  string
}

// Session is a contiguous run of messages from one author.
type Session struct {
	Author     string
	StartTS    string
	EndTS      string
	Start      *time.Time
	End        *time.Time
	Messages   []string
	Timestamps []string
}

// Text joins the session messages with newlines.
func (s Session) Text() string {
	return strings.Join(s.Messages, "\n")
}

// Direction is the flow of goods described by a session.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
	DirectionBoth     Direction = "both"
	DirectionUnknown  Direction = "unknown"
)

// Unit is a normalized quantity unit. The empty Unit means none was recognized.
type Unit string

const (
	UnitNone      Unit = ""
	UnitCase      Unit = "case"
	UnitBox       Unit = "box"
	UnitBin       Unit = "bin"
	UnitBag       Unit = "bag"
	UnitTote      Unit = "tote"
	UnitCrate     Unit = "crate"
	UnitFlat      Unit = "flat"
	UnitPackage   Unit = "package"
	UnitPallet    Unit = "pallet"
	UnitPound     Unit = "lb"
	UnitGallon    Unit = "gallon"
	UnitDozen     Unit = "dozen"
	UnitBottle    Unit = "bottle"
	UnitCan       Unit = "can"
	UnitLoaf      Unit = "loaf"
	UnitBunch     Unit = "bunch"
	UnitTray      Unit = "tray"
	UnitJar       Unit = "jar"
	UnitClamshell Unit = "clamshell"
)

// IsWeight reports whether u (or a raw unit string) is a direct weight unit.
func IsWeight(u string) bool {
	switch strings.ToLower(strings.TrimSpace(u)) {
	case "lb", "lbs", "pound", "pounds":
		return true
	}
	return false
}

// Category is a coarse food-type classification. Empty means unknown.
type Category string

const (
	CategoryNone     Category = ""
	CategoryDrinks   Category = "drinks"
	CategorySnacks   Category = "snacks"
	CategoryProduce  Category = "produce"
	CategoryGrain    Category = "grain"
	CategoryMeat     Category = "meat"
	CategoryDryGoods Category = "dry goods"
	CategoryDairy    Category = "dairy"
	CategorySeafood  Category = "seafood"
)

// Item is one parsed inventory line.
type Item struct {
	Name         string   `json:"name"`
	Quantity     *float64 `json:"quantity"`
	Unit         *Unit    `json:"unit"`
	RawUnit      string   `json:"raw_unit,omitempty"`
	EstimatedLbs *float64 `json:"estimated_lbs"`
	Subcategory  Category `json:"subcategory"`
}

// UnitValue returns the item's unit, or UnitNone.
func (it Item) UnitValue() Unit {
	if it.Unit == nil {
		return UnitNone
	}
	return *it.Unit
}

// Section is a location-scoped group of items inside one session.
type Section struct {
	Location string `json:"location"`
	Items    []Item `json:"items"`
}

// Record is the structured result for one session.
type Record struct {
	ID              int       `json:"id"`
	User            string    `json:"user"`
	StartTS         string    `json:"start_ts"`
	EndTS           string    `json:"end_ts"`
	Direction       Direction `json:"direction"`
	RescueLocation  string    `json:"rescue_location"`
	DropOffLocation string    `json:"drop_off_location"`
	Items           []Item    `json:"items"`
	Sections        []Section `json:"sections"`
	RawMessages     []string  `json:"raw_messages"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// UnitPtr returns a pointer to u, or nil for UnitNone.
func UnitPtr(u Unit) *Unit {
	if u == UnitNone {
		return nil
	}
	return &u
}
