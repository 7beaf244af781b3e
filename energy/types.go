/*
Package energy provides the core types of the energy cost engine.

PURPOSE:
  This package contains the value types shared by every other package:
  commodities, consumption profiles, tax tables, network fee rows, contract
  tariffs and the cost breakdown produced by a calculation. It holds no I/O
  and no calculation logic beyond small helpers on the types themselves.

KEY CONCEPTS IN THIS FILE (types.go):
  - Commodity: electricity (kWh) or gas (m³)
  - ConsumptionProfile: annual usage for one address
  - TaxTable: one year of government energy tax rates
  - NetworkFeeRow: one (operator, year, commodity, capacity) fee
  - Rounding helpers: money at 2 decimals, rates at 5 decimals

DESIGN PRINCIPLES:
  1. Precision: every quantity and rate is a decimal.Decimal
  2. Immutability: values are passed by value and never mutated after
     they have been handed to the calculator
  3. Type Safety: operator IDs, capacity codes and commodities are typed

USAGE:
  profile := energy.ConsumptionProfile{
      Meter:             energy.MeterDual,
      ElectricityNormal: energy.MustParseDecimal("3500"),
      ElectricityOffPeak: energy.MustParseDecimal("2500"),
      Gas:               energy.DecimalPtr(energy.MustParseDecimal("1200")),
  }

SEE ALSO:
  - contract.go: Contract tariff variants
  - breakdown.go: Calculation input, tariff snapshot and output
  - capacity.go: Connection capacity codes
*/
package energy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COMMODITY
// =============================================================================

type Commodity string

const (
	Electricity Commodity = "electricity"
	Gas         Commodity = "gas"
)

type Unit string

const (
	UnitKWh Unit = "kWh"
	UnitM3  Unit = "m3"
	UnitEUR Unit = "EUR"
)

// Commodities lists every commodity in calculation order.
var Commodities = []Commodity{Electricity, Gas}

func (c Commodity) Unit() Unit {
	if c == Gas {
		return UnitM3
	}
	return UnitKWh
}

func (c Commodity) Valid() bool { return c == Electricity || c == Gas }

func ParseCommodity(s string) (Commodity, error) {
	c := Commodity(s)
	if !c.Valid() {
		return "", &ValidationError{Field: "commodity", Message: fmt.Sprintf("unknown commodity %q", s)}
	}
	return c, nil
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

const (
	// RatePlaces is the precision every per-unit rate is carried at.
	RatePlaces = 5
	// MoneyPlaces is the precision of subtotals and totals.
	MoneyPlaces = 2
)

var (
	MonthsPerYear = decimal.NewFromInt(12)
	Hundred       = decimal.NewFromInt(100)
)

// MustParseDecimal is decimal.RequireFromString for constants and tests. It
// panics on malformed input.
func MustParseDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func DecimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }

// RoundHalfUp rounds to places decimals with ties going toward +∞.
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Add(decimal.New(5, -(places + 1))).RoundFloor(places)
}

func RoundMoney(d decimal.Decimal) decimal.Decimal { return RoundHalfUp(d, MoneyPlaces) }
func RoundRate(d decimal.Decimal) decimal.Decimal  { return RoundHalfUp(d, RatePlaces) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OperatorID string
type QuoteID string

// Operator is a regional network operator (netbeheerder).
type Operator struct {
	ID   OperatorID `json:"id"`
	Name string     `json:"name"`
}

// =============================================================================
// CONSUMPTION PROFILE
// =============================================================================

type MeterType string

const (
	MeterSingle MeterType = "single"
	MeterDual   MeterType = "dual"
)

// ConsumptionProfile is the annual usage of one address.
//
// A dual meter reports normal (day) and off-peak (night) kWh separately. A
// single-rate meter reports one figure in ElectricitySingle; for tax purposes
// the whole figure is normal-rate usage.
//
// Gas == nil means there is no gas connection at all. Gas == 0 means a
// connection exists but nothing was used, so standing charges and the gas
// network fee still apply.
type ConsumptionProfile struct {
	Meter              MeterType
	ElectricityNormal  decimal.Decimal
	ElectricityOffPeak decimal.Decimal
	ElectricitySingle  decimal.Decimal
	Gas                *decimal.Decimal
	FeedIn             *decimal.Decimal

	ElectricityCapacity CapacityCode
	GasCapacity         CapacityCode
}

// MeterType returns the declared meter type, inferring it when empty.
func (p ConsumptionProfile) MeterType() MeterType {
	if p.Meter != "" {
		return p.Meter
	}
	if !p.ElectricitySingle.IsZero() && p.ElectricityNormal.IsZero() && p.ElectricityOffPeak.IsZero() {
		return MeterSingle
	}
	return MeterDual
}

// ElectricityTotal is the total kWh drawn from the grid.
func (p ConsumptionProfile) ElectricityTotal() decimal.Decimal {
	if p.MeterType() == MeterSingle {
		return p.ElectricitySingle
	}
	return p.ElectricityNormal.Add(p.ElectricityOffPeak)
}

func (p ConsumptionProfile) HasGas() bool { return p.Gas != nil }

// GasUsage returns the gas volume, zero when there is no connection.
func (p ConsumptionProfile) GasUsage() decimal.Decimal {
	if p.Gas == nil {
		return decimal.Zero
	}
	return *p.Gas
}

func (p ConsumptionProfile) FeedInUsage() decimal.Decimal {
	if p.FeedIn == nil {
		return decimal.Zero
	}
	return *p.FeedIn
}

// Usage returns the total consumption of a commodity.
func (p ConsumptionProfile) Usage(c Commodity) decimal.Decimal {
	if c == Gas {
		return p.GasUsage()
	}
	return p.ElectricityTotal()
}

// Capacity returns the connection capacity code for a commodity.
func (p ConsumptionProfile) Capacity(c Commodity) CapacityCode {
	if c == Gas {
		return p.GasCapacity
	}
	return p.ElectricityCapacity
}

// Validate checks the profile is internally consistent.
func (p ConsumptionProfile) Validate() error {
	switch p.MeterType() {
	case MeterSingle, MeterDual:
	default:
		return &ValidationError{Field: "meter_type", Message: fmt.Sprintf("unknown meter type %q", p.Meter)}
	}

	checks := []struct {
		field string
		value decimal.Decimal
	}{
		{"electricity_normal", p.ElectricityNormal},
		{"electricity_off_peak", p.ElectricityOffPeak},
		{"electricity_single", p.ElectricitySingle},
		{"gas", p.GasUsage()},
		{"feed_in", p.FeedInUsage()},
	}
	for _, c := range checks {
		if c.value.IsNegative() {
			return &ValidationError{Field: c.field, Message: "must not be negative"}
		}
	}

	if p.MeterType() == MeterSingle && (!p.ElectricityNormal.IsZero() || !p.ElectricityOffPeak.IsZero()) {
		return &ValidationError{Field: "meter_type", Message: "single-rate meter cannot report a day/night split"}
	}
	return nil
}

// =============================================================================
// ADDRESS
// =============================================================================

// Address is only used for its postcode.
type Address struct {
	Postcode    string
	HouseNumber string
}

// =============================================================================
// GOVERNMENT TAX TABLE
// =============================================================================

// TaxBracket is one step of a progressive tax. UpTo is the cumulative
// threshold the bracket ends at; nil means unbounded.
type TaxBracket struct {
	UpTo *decimal.Decimal `json:"up_to,omitempty" yaml:"up_to,omitempty"`
	Rate decimal.Decimal  `json:"rate" yaml:"rate"`
}

type CommodityTax struct {
	Brackets           []TaxBracket    `json:"brackets" yaml:"brackets"`
	RenewableSurcharge decimal.Decimal `json:"renewable_surcharge" yaml:"renewable_surcharge"`
}

// TaxTable is the active government tax row for one calendar year.
// Once a stored quote references it, it is never edited.
type TaxTable struct {
	Year              int             `json:"year" yaml:"year"`
	Electricity       CommodityTax    `json:"electricity" yaml:"electricity"`
	Gas               CommodityTax    `json:"gas" yaml:"gas"`
	ElectricityRebate decimal.Decimal `json:"electricity_rebate" yaml:"electricity_rebate"`
	VATPercent        decimal.Decimal `json:"vat_percent" yaml:"vat_percent"`
}

func (t TaxTable) For(c Commodity) CommodityTax {
	if c == Gas {
		return t.Gas
	}
	return t.Electricity
}

// Validate checks brackets are ordered and rates are non-negative.
func (t TaxTable) Validate() error {
	if t.Year <= 0 {
		return &ValidationError{Field: "year", Message: "must be positive"}
	}
	for _, c := range Commodities {
		ct := t.For(c)
		if len(ct.Brackets) == 0 {
			return &ValidationError{Field: string(c) + ".brackets", Message: "at least one bracket required"}
		}
		prev := decimal.Zero
		for i, b := range ct.Brackets {
			if b.Rate.IsNegative() {
				return &ValidationError{Field: fmt.Sprintf("%s.brackets[%d].rate", c, i), Message: "must not be negative"}
			}
			if b.UpTo == nil {
				if i != len(ct.Brackets)-1 {
					return &ValidationError{Field: fmt.Sprintf("%s.brackets[%d].up_to", c, i), Message: "only the last bracket may be unbounded"}
				}
				continue
			}
			if !b.UpTo.GreaterThan(prev) {
				return &ValidationError{Field: fmt.Sprintf("%s.brackets[%d].up_to", c, i), Message: "thresholds must be strictly ascending"}
			}
			prev = *b.UpTo
		}
		if ct.RenewableSurcharge.IsNegative() {
			return &ValidationError{Field: string(c) + ".renewable_surcharge", Message: "must not be negative"}
		}
	}
	if t.ElectricityRebate.IsNegative() {
		return &ValidationError{Field: "electricity_rebate", Message: "must not be negative"}
	}
	if t.VATPercent.IsNegative() {
		return &ValidationError{Field: "vat_percent", Message: "must not be negative"}
	}
	return nil
}

// =============================================================================
// NETWORK FEE TABLE
// =============================================================================

type FeePeriod string

const (
	FeeAnnual  FeePeriod = "annual"
	FeeMonthly FeePeriod = "monthly"
)

// NetworkFeeRow is the fee an operator charges for one capacity code.
type NetworkFeeRow struct {
	OperatorID OperatorID      `json:"operator_id" yaml:"operator_id"`
	Year       int             `json:"year" yaml:"year"`
	Commodity  Commodity       `json:"commodity" yaml:"commodity"`
	Capacity   CapacityCode    `json:"capacity" yaml:"capacity"`
	Amount     decimal.Decimal `json:"amount" yaml:"amount"`
	Period     FeePeriod       `json:"period" yaml:"period"`
}

// Annual converts the row amount to a yearly figure.
func (r NetworkFeeRow) Annual() decimal.Decimal {
	if r.Period == FeeMonthly {
		return r.Amount.Mul(MonthsPerYear)
	}
	return r.Amount
}

// PostcodeRange maps an inclusive postcode range to an operator.
type PostcodeRange struct {
	From       string     `json:"from" yaml:"from"`
	To         string     `json:"to" yaml:"to"`
	Commodity  Commodity  `json:"commodity" yaml:"commodity"`
	OperatorID OperatorID `json:"operator_id" yaml:"operator_id"`
}

// Contains reports whether a normalised postcode falls inside the range.
// Dutch postcodes sort lexically in the same order as numerically.
func (r PostcodeRange) Contains(postcode string) bool {
	return postcode >= r.From && postcode <= r.To
}
