package calculator

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/energy-engine/energy"
)

// =============================================================================
// SUPPLIER COST - Dispatch over the contract variants
// =============================================================================

// ComputeSupplierCost prices a profile under a contract. index is only read
// for dynamic contracts.
func ComputeSupplierCost(p energy.ConsumptionProfile, contract energy.ContractTariff, index *energy.MarketIndex) (energy.SupplierCost, error) {
	switch c := contract.(type) {
	case energy.FixedTariff:
		return fixedSupplierCost(p, c)
	case energy.CustomTariff:
		return fixedSupplierCost(p, c.FixedTariff)
	case energy.DynamicTariff:
		if index == nil {
			return energy.SupplierCost{}, &energy.ValidationError{Field: "index", Message: "dynamic contract requires market index prices"}
		}
		return dynamicSupplierCost(p, c, *index), nil
	case nil:
		return energy.SupplierCost{}, &energy.ValidationError{Field: "contract", Message: "contract tariff is required"}
	default:
		return energy.SupplierCost{}, &energy.UnsupportedContractError{Variant: fmt.Sprintf("%T", contract)}
	}
}

// =============================================================================
// FIXED AND CUSTOM
// =============================================================================

func fixedSupplierCost(p energy.ConsumptionProfile, t energy.FixedTariff) (energy.SupplierCost, error) {
	var electricity decimal.Decimal
	switch {
	case p.MeterType() == energy.MeterDual && t.ElectricityDay != nil && t.ElectricityNight != nil:
		electricity = p.ElectricityNormal.Mul(energy.RoundRate(*t.ElectricityDay)).
			Add(p.ElectricityOffPeak.Mul(energy.RoundRate(*t.ElectricityNight)))
	case t.ElectricitySingle != nil:
		electricity = p.ElectricityTotal().Mul(energy.RoundRate(*t.ElectricitySingle))
	case t.ElectricityDay != nil:
		electricity = p.ElectricityTotal().Mul(energy.RoundRate(*t.ElectricityDay))
	default:
		return energy.SupplierCost{}, &energy.ValidationError{Field: "contract.electricity", Message: "no usable electricity rate"}
	}

	gas := decimal.Zero
	if p.HasGas() {
		gas = p.GasUsage().Mul(energy.RoundRate(t.Gas))
	}

	credit := p.FeedInUsage().Mul(energy.RoundRate(t.FeedIn))
	return supplierCost(p, electricity, gas, credit, t.Standing), nil
}

// =============================================================================
// DYNAMIC
// =============================================================================

func dynamicSupplierCost(p energy.ConsumptionProfile, t energy.DynamicTariff, idx energy.MarketIndex) energy.SupplierCost {
	var electricity decimal.Decimal
	if p.MeterType() == energy.MeterDual {
		electricity = p.ElectricityNormal.Mul(effectiveRate(idx.ElectricityDay, t.ElectricityMarkup, t.ElectricityCap)).
			Add(p.ElectricityOffPeak.Mul(effectiveRate(idx.Night(), t.ElectricityMarkup, t.ElectricityCap)))
	} else {
		electricity = p.ElectricityTotal().Mul(effectiveRate(idx.Single(), t.ElectricityMarkup, t.ElectricityCap))
	}

	gas := decimal.Zero
	if p.HasGas() {
		gas = p.GasUsage().Mul(effectiveRate(idx.Gas, t.GasMarkup, t.GasCap))
	}

	feedInRate := energy.RoundRate(idx.FeedInBase().Add(t.FeedInMarkup))
	credit := p.FeedInUsage().Mul(feedInRate)
	return supplierCost(p, electricity, gas, credit, t.Standing)
}

// effectiveRate is index + markup, clamped from above by the cap if set.
func effectiveRate(index, markup decimal.Decimal, ceiling *decimal.Decimal) decimal.Decimal {
	rate := index.Add(markup)
	if ceiling != nil && rate.GreaterThan(*ceiling) {
		rate = *ceiling
	}
	return energy.RoundRate(rate)
}

// =============================================================================
// SHARED
// =============================================================================

// supplierCost applies the feed-in credit and standing charges. The credit
// is not floored: a net exporter gets a negative electricity line.
func supplierCost(p energy.ConsumptionProfile, electricity, gas, credit decimal.Decimal, s energy.StandingCharges) energy.SupplierCost {
	standing := s.ElectricityMonthly.Mul(energy.MonthsPerYear)
	if p.HasGas() {
		standing = standing.Add(s.GasMonthly.Mul(energy.MonthsPerYear))
	}

	electricity = electricity.Sub(credit)
	return energy.SupplierCost{
		Electricity:    electricity,
		Gas:            gas,
		StandingCharge: standing,
		FeedInCredit:   credit,
		Subtotal:       electricity.Add(gas).Add(standing),
		NetExport:      electricity.IsNegative(),
	}
}
