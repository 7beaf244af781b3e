package energy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CAPACITY CODES - Connection capacity (aansluitwaarde)
// =============================================================================

// CapacityCode is the rated capacity of a connection. Codes form an ordered
// enumeration per commodity; the ">" codes are grootverbruik connections
// whose network fee is negotiated rather than published.
type CapacityCode string

const (
	Capacity1x25A  CapacityCode = "1x25A"
	Capacity1x35A  CapacityCode = "1x35A"
	Capacity1x40A  CapacityCode = "1x40A"
	Capacity3x25A  CapacityCode = "3x25A"
	Capacity3x35A  CapacityCode = "3x35A"
	Capacity3x40A  CapacityCode = "3x40A"
	Capacity3x50A  CapacityCode = "3x50A"
	Capacity3x63A  CapacityCode = "3x63A"
	Capacity3x80A  CapacityCode = "3x80A"
	CapacityOver80 CapacityCode = ">3x80A"

	CapacityG4      CapacityCode = "G4"
	CapacityG6      CapacityCode = "G6"
	CapacityG10     CapacityCode = "G10"
	CapacityG16     CapacityCode = "G16"
	CapacityG25     CapacityCode = "G25"
	CapacityOverG25 CapacityCode = ">G25"
)

var capacityOrder = map[Commodity][]CapacityCode{
	Electricity: {
		Capacity1x25A, Capacity1x35A, Capacity1x40A,
		Capacity3x25A, Capacity3x35A, Capacity3x40A, Capacity3x50A, Capacity3x63A, Capacity3x80A,
		CapacityOver80,
	},
	Gas: {CapacityG4, CapacityG6, CapacityG10, CapacityG16, CapacityG25, CapacityOverG25},
}

// CapacityCodes returns the ordered codes for a commodity.
func CapacityCodes(c Commodity) []CapacityCode {
	out := make([]CapacityCode, len(capacityOrder[c]))
	copy(out, capacityOrder[c])
	return out
}

// IsGrootverbruik reports whether the code lies above the small-consumer range.
func (c CapacityCode) IsGrootverbruik() bool {
	return strings.HasPrefix(string(c), ">")
}

// Rank returns the position of the code in its commodity's ordering, or -1.
func (c CapacityCode) Rank(commodity Commodity) int {
	for i, code := range capacityOrder[commodity] {
		if code == c {
			return i
		}
	}
	return -1
}

// ParseCapacityCode normalises user input such as "3X25A" or "3×25A".
func ParseCapacityCode(commodity Commodity, raw string) (CapacityCode, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	s = strings.ReplaceAll(s, "×", "x")
	s = strings.ToUpper(s)
	if commodity == Electricity {
		s = strings.ReplaceAll(s, "X", "x")
	}

	code := CapacityCode(s)
	if code.Rank(commodity) < 0 {
		return "", &ValidationError{
			Field:   string(commodity) + "_capacity",
			Message: fmt.Sprintf("unknown capacity code %q", raw),
		}
	}
	return code, nil
}

// =============================================================================
// CAPACITY ESTIMATE - From annual usage when the code is not known
// =============================================================================

type capacityStep struct {
	upTo decimal.Decimal
	code CapacityCode
}

var (
	electricitySteps = []capacityStep{
		{decimal.NewFromInt(5000), Capacity3x25A},
		{decimal.NewFromInt(15000), Capacity3x35A},
		{decimal.NewFromInt(30000), Capacity3x50A},
		{decimal.NewFromInt(50000), Capacity3x63A},
	}
	gasSteps = []capacityStep{
		{decimal.NewFromInt(2500), CapacityG6},
		{decimal.NewFromInt(10000), CapacityG10},
		{decimal.NewFromInt(25000), CapacityG16},
	}
)

// EstimateCapacity picks a plausible capacity code for an annual usage.
// Usage above the last step maps to the largest small-consumer code, never to
// grootverbruik: that classification has to come from the customer.
func EstimateCapacity(commodity Commodity, annual decimal.Decimal) CapacityCode {
	steps, top := electricitySteps, Capacity3x80A
	if commodity == Gas {
		steps, top = gasSteps, CapacityG25
		if !annual.IsPositive() {
			return CapacityG6
		}
	}
	for _, s := range steps {
		if annual.LessThanOrEqual(s.upTo) {
			return s.code
		}
	}
	return top
}

// =============================================================================
// POSTCODE
// =============================================================================

var postcodePattern = regexp.MustCompile(`^[0-9]{4}[A-Z]{2}$`)

// NormalizePostcode uppercases and strips whitespace, then validates the
// four-digits-two-letters format.
func NormalizePostcode(raw string) (string, error) {
	p := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if !postcodePattern.MatchString(p) {
		return "", &ValidationError{Field: "postcode", Message: fmt.Sprintf("invalid postcode %q", raw)}
	}
	return p, nil
}
