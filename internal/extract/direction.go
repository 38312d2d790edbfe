package extract

import (
	"strings"

	"github.com/hurttlocker/rescuelog/internal/record"
)

// inboundPhrases signal goods arriving at the warehouse. Dropping at the
// warehouse counts as inbound to storage.
var inboundPhrases = []string{
	"rescued from",
	"rescue from",
	"picked up from",
	"pickup from",
	"picked up at",
	"today from",
	"earlier today from",
	"drop off at uc",
	"dropped off at uc",
	"dropped at uc",
	"left at uc",
	"left in the warehouse",
	"dropped at warehouse",
	"dropped ",
	"left in",
	"left at",
	"drop off",
}

// outboundPhrases signal goods leaving for distribution.
var outboundPhrases = []string{
	"dropped off",
	"drop off",
	"delivered to",
	"deliver to",
	"brought to",
	"took to",
	"taking to",
	"grabbed",
	"took",
	"picked up for",
	"for distro",
	"headed to",
	"delivered",
	"delivery to",
	"for love fridge",
	"for lf",
	"stocked",
}

// ClassifyDirection decides the flow of goods. Extracted locations decide
// first; otherwise phrase voting over the session text.
func ClassifyDirection(text, rescue, dropOff string) record.Direction {
	switch {
	case rescue != "" && dropOff != "":
		return record.DirectionBoth
	case rescue != "":
		return record.DirectionInbound
	case dropOff != "":
		return record.DirectionOutbound
	}

	lower := strings.ToLower(text)
	inbound := containsAnyPhrase(lower, inboundPhrases)
	outbound := containsAnyPhrase(lower, outboundPhrases)
	switch {
	case inbound && outbound:
		return record.DirectionBoth
	case inbound:
		return record.DirectionInbound
	case outbound:
		return record.DirectionOutbound
	}
	return record.DirectionUnknown
}

func containsAnyPhrase(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
