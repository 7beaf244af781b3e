package energy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONTRACT TARIFF - Tagged union over the pricing variants
// =============================================================================

type ContractType string

const (
	ContractFixed   ContractType = "fixed"
	ContractDynamic ContractType = "dynamic"
	ContractCustom  ContractType = "custom"
)

// ContractTariff is implemented only by FixedTariff, DynamicTariff and
// CustomTariff. Consumers switch on the concrete type and treat any other
// value as ErrUnsupportedContractVariant.
type ContractTariff interface {
	Kind() ContractType
	Validate() error
	isContractTariff()
}

// StandingCharges are the supplier's fixed monthly fees (vastrecht).
type StandingCharges struct {
	ElectricityMonthly decimal.Decimal
	GasMonthly         decimal.Decimal
}

// FixedTariff prices every unit at a rate fixed for the contract term.
//
// ElectricityDay and ElectricityNight apply to a dual meter;
// ElectricitySingle applies to a single-rate meter or when a night rate is
// not offered. FeedIn is the credit per exported kWh.
type FixedTariff struct {
	ElectricityDay    *decimal.Decimal
	ElectricityNight  *decimal.Decimal
	ElectricitySingle *decimal.Decimal
	Gas               decimal.Decimal
	FeedIn            decimal.Decimal
	Standing          StandingCharges
}

func (FixedTariff) Kind() ContractType { return ContractFixed }
func (FixedTariff) isContractTariff()  {}

func (t FixedTariff) Validate() error {
	if t.ElectricityDay == nil && t.ElectricitySingle == nil {
		return &ValidationError{Field: "contract.electricity", Message: "a day or single electricity rate is required"}
	}
	rates := map[string]*decimal.Decimal{
		"contract.electricity_day":      t.ElectricityDay,
		"contract.electricity_night":    t.ElectricityNight,
		"contract.electricity_single":   t.ElectricitySingle,
		"contract.gas":                  &t.Gas,
		"contract.feed_in":              &t.FeedIn,
		"contract.standing.electricity": &t.Standing.ElectricityMonthly,
		"contract.standing.gas":         &t.Standing.GasMonthly,
	}
	for field, r := range rates {
		if r != nil && r.IsNegative() {
			return &ValidationError{Field: field, Message: "must not be negative"}
		}
	}
	return nil
}

// DynamicTariff follows a published market index. The supplier adds a
// markup per unit and may cap the effective rate. The index itself is
// injected with the calculation input.
type DynamicTariff struct {
	ElectricityMarkup decimal.Decimal
	GasMarkup         decimal.Decimal
	FeedInMarkup      decimal.Decimal
	ElectricityCap    *decimal.Decimal
	GasCap            *decimal.Decimal
	Standing          StandingCharges
}

func (DynamicTariff) Kind() ContractType { return ContractDynamic }
func (DynamicTariff) isContractTariff()  {}

func (t DynamicTariff) Validate() error {
	if t.ElectricityCap != nil && t.ElectricityCap.IsNegative() {
		return &ValidationError{Field: "contract.electricity_cap", Message: "must not be negative"}
	}
	if t.GasCap != nil && t.GasCap.IsNegative() {
		return &ValidationError{Field: "contract.gas_cap", Message: "must not be negative"}
	}
	if t.Standing.ElectricityMonthly.IsNegative() || t.Standing.GasMonthly.IsNegative() {
		return &ValidationError{Field: "contract.standing", Message: "must not be negative"}
	}
	return nil
}

// CustomTariff is a negotiated contract. It has the fixed-rate shape plus a
// reference to the agreement it was entered from.
type CustomTariff struct {
	FixedTariff
	Reference string
}

func (CustomTariff) Kind() ContractType { return ContractCustom }

// =============================================================================
// MARKET INDEX - Injected at call time for dynamic contracts
// =============================================================================

// MarketIndex holds the published index prices a dynamic contract tracks.
type MarketIndex struct {
	ElectricityDay    decimal.Decimal  `json:"electricity_day"`
	ElectricityNight  *decimal.Decimal `json:"electricity_night,omitempty"`
	ElectricitySingle *decimal.Decimal `json:"electricity_single,omitempty"`
	FeedIn            *decimal.Decimal `json:"feed_in,omitempty"`
	Gas               decimal.Decimal  `json:"gas"`
}

// Single returns the single-rate index, using the day index when no
// single-rate price was published.
func (m MarketIndex) Single() decimal.Decimal {
	if m.ElectricitySingle != nil {
		return *m.ElectricitySingle
	}
	return m.ElectricityDay
}

// Night returns the night index, using the day index when absent.
func (m MarketIndex) Night() decimal.Decimal {
	if m.ElectricityNight != nil {
		return *m.ElectricityNight
	}
	return m.ElectricityDay
}

// FeedInBase is the index exported energy is credited against.
func (m MarketIndex) FeedInBase() decimal.Decimal {
	if m.FeedIn != nil {
		return *m.FeedIn
	}
	return m.Single()
}

// DescribeContract is a short label used in logs and exports.
func DescribeContract(t ContractTariff) string {
	switch c := t.(type) {
	case CustomTariff:
		if c.Reference != "" {
			return fmt.Sprintf("custom (%s)", c.Reference)
		}
		return "custom"
	case nil:
		return "none"
	default:
		return string(t.Kind())
	}
}
