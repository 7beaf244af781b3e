/*
Package factory provides JSON to Go conversion for contracts and
calculation requests.

PURPOSE:
  Converts JSON contract definitions into the energy.ContractTariff tagged
  union, and back. The same JSON shape is used by the HTTP API, by the
  seed file's sample contracts and by frozen quotes, which store their
  input verbatim.

JSON SCHEMA:
  {
    "contract_type": "fixed",            // fixed | dynamic | custom
    "electricity_day": 0.30,
    "electricity_night": 0.28,
    "electricity_single": null,
    "gas": 1.30,
    "feed_in": 0.05,
    "standing_charge": {"electricity_monthly": 4.00, "gas_monthly": 4.00}
  }

  Dynamic contracts replace the rates with markups and optional caps:
  {
    "contract_type": "dynamic",
    "electricity_markup": 0.02,
    "gas_markup": 0.10,
    "feed_in_markup": -0.01,
    "electricity_cap": 0.40,
    "standing_charge": {...}
  }

  Custom contracts use the fixed shape plus a "reference".

DISCRIMINATOR:
  contract_type selects the variant. Any other value is rejected with
  energy.ErrUnsupportedContractVariant.

USAGE:
  factory := NewContractFactory()
  contract, err := factory.ParseContract(jsonString)

SEE ALSO:
  - energy/contract.go: The tagged union
  - factory/input.go: Full calculation request
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/energy-engine/energy"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ContractJSON is the JSON representation of a contract tariff.
type ContractJSON struct {
	ContractType string `json:"contract_type" yaml:"contract_type"`

	// Fixed and custom
	ElectricityDay    *decimal.Decimal `json:"electricity_day,omitempty" yaml:"electricity_day,omitempty"`
	ElectricityNight  *decimal.Decimal `json:"electricity_night,omitempty" yaml:"electricity_night,omitempty"`
	ElectricitySingle *decimal.Decimal `json:"electricity_single,omitempty" yaml:"electricity_single,omitempty"`
	Gas               *decimal.Decimal `json:"gas,omitempty" yaml:"gas,omitempty"`
	FeedIn            *decimal.Decimal `json:"feed_in,omitempty" yaml:"feed_in,omitempty"`
	Reference         string           `json:"reference,omitempty" yaml:"reference,omitempty"`

	// Dynamic
	ElectricityMarkup *decimal.Decimal `json:"electricity_markup,omitempty" yaml:"electricity_markup,omitempty"`
	GasMarkup         *decimal.Decimal `json:"gas_markup,omitempty" yaml:"gas_markup,omitempty"`
	FeedInMarkup      *decimal.Decimal `json:"feed_in_markup,omitempty" yaml:"feed_in_markup,omitempty"`
	ElectricityCap    *decimal.Decimal `json:"electricity_cap,omitempty" yaml:"electricity_cap,omitempty"`
	GasCap            *decimal.Decimal `json:"gas_cap,omitempty" yaml:"gas_cap,omitempty"`

	StandingCharge StandingChargeJSON `json:"standing_charge" yaml:"standing_charge"`
}

// StandingChargeJSON holds the monthly standing charges.
type StandingChargeJSON struct {
	ElectricityMonthly decimal.Decimal `json:"electricity_monthly" yaml:"electricity_monthly"`
	GasMonthly         decimal.Decimal `json:"gas_monthly" yaml:"gas_monthly"`
}

// =============================================================================
// CONTRACT FACTORY
// =============================================================================

// ContractFactory converts JSON contracts to the tagged union.
type ContractFactory struct{}

func NewContractFactory() *ContractFactory {
	return &ContractFactory{}
}

// ParseContract parses a JSON string into a contract tariff.
func (f *ContractFactory) ParseContract(jsonStr string) (energy.ContractTariff, error) {
	var cj ContractJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, &energy.ValidationError{Field: "contract", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return f.FromJSON(cj)
}

// FromJSON converts ContractJSON to a contract tariff and validates it.
func (f *ContractFactory) FromJSON(cj ContractJSON) (energy.ContractTariff, error) {
	standing := energy.StandingCharges{
		ElectricityMonthly: cj.StandingCharge.ElectricityMonthly,
		GasMonthly:         cj.StandingCharge.GasMonthly,
	}

	var contract energy.ContractTariff
	switch energy.ContractType(cj.ContractType) {
	case energy.ContractFixed:
		contract = fixedFromJSON(cj, standing)
	case energy.ContractCustom:
		contract = energy.CustomTariff{FixedTariff: fixedFromJSON(cj, standing), Reference: cj.Reference}
	case energy.ContractDynamic:
		contract = energy.DynamicTariff{
			ElectricityMarkup: orZero(cj.ElectricityMarkup),
			GasMarkup:         orZero(cj.GasMarkup),
			FeedInMarkup:      orZero(cj.FeedInMarkup),
			ElectricityCap:    cj.ElectricityCap,
			GasCap:            cj.GasCap,
			Standing:          standing,
		}
	case "":
		return nil, &energy.ValidationError{Field: "contract_type", Message: "is required"}
	default:
		return nil, &energy.UnsupportedContractError{Variant: cj.ContractType}
	}

	if err := contract.Validate(); err != nil {
		return nil, err
	}
	return contract, nil
}

// ToJSON converts a contract tariff back to its JSON form.
func (f *ContractFactory) ToJSON(contract energy.ContractTariff) (ContractJSON, error) {
	switch c := contract.(type) {
	case energy.FixedTariff:
		return fixedToJSON(energy.ContractFixed, c), nil
	case energy.CustomTariff:
		cj := fixedToJSON(energy.ContractCustom, c.FixedTariff)
		cj.Reference = c.Reference
		return cj, nil
	case energy.DynamicTariff:
		return ContractJSON{
			ContractType:      string(energy.ContractDynamic),
			ElectricityMarkup: energy.DecimalPtr(c.ElectricityMarkup),
			GasMarkup:         energy.DecimalPtr(c.GasMarkup),
			FeedInMarkup:      energy.DecimalPtr(c.FeedInMarkup),
			ElectricityCap:    c.ElectricityCap,
			GasCap:            c.GasCap,
			StandingCharge:    standingToJSON(c.Standing),
		}, nil
	default:
		return ContractJSON{}, &energy.UnsupportedContractError{Variant: fmt.Sprintf("%T", contract)}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func fixedFromJSON(cj ContractJSON, standing energy.StandingCharges) energy.FixedTariff {
	return energy.FixedTariff{
		ElectricityDay:    cj.ElectricityDay,
		ElectricityNight:  cj.ElectricityNight,
		ElectricitySingle: cj.ElectricitySingle,
		Gas:               orZero(cj.Gas),
		FeedIn:            orZero(cj.FeedIn),
		Standing:          standing,
	}
}

func fixedToJSON(kind energy.ContractType, t energy.FixedTariff) ContractJSON {
	return ContractJSON{
		ContractType:      string(kind),
		ElectricityDay:    t.ElectricityDay,
		ElectricityNight:  t.ElectricityNight,
		ElectricitySingle: t.ElectricitySingle,
		Gas:               energy.DecimalPtr(t.Gas),
		FeedIn:            energy.DecimalPtr(t.FeedIn),
		StandingCharge:    standingToJSON(t.Standing),
	}
}

func standingToJSON(s energy.StandingCharges) StandingChargeJSON {
	return StandingChargeJSON{ElectricityMonthly: s.ElectricityMonthly, GasMonthly: s.GasMonthly}
}

func orZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
