/*
tax.go - Government energy tax (energiebelasting)

PURPOSE:
  Applies the progressive tax brackets of one year's tax table to a
  consumption profile, independently per commodity.

ALGORITHM:
  For each commodity, walk the ordered brackets. The quantity taxed in a
  bracket is min(remaining, bracket width), the final bracket has no upper
  bound. Consumption exactly at a threshold stays inside that bracket.

  The renewable surcharge (ODE) is a flat per-unit charge on the total,
  added on top of the bracketed amount.

  The electricity rebate (vermindering energiebelasting) is subtracted once
  per small-consumer electricity connection, and never takes electricity
  tax below zero. Grootverbruik connections get no rebate.

PRECISION:
  Rates are carried at 5 decimals and products are not rounded here. The
  aggregator rounds the subtotal.

SEE ALSO:
  - aggregate.go: Rounds the tax subtotal
  - energy/types.go: TaxTable, TaxBracket
*/
package calculator

import (
	"github.com/shopspring/decimal"
	"github.com/warp/energy-engine/energy"
)

// ComputeTax returns the unrounded energy tax for a profile.
func ComputeTax(p energy.ConsumptionProfile, table energy.TaxTable) energy.TaxCost {
	elecCharges, elecBracketed := BracketCharges(energy.Electricity, p.ElectricityTotal(), table.Electricity)
	elecGross := elecBracketed.Add(renewableSurcharge(p.ElectricityTotal(), table.Electricity))

	rebate := decimal.Zero
	if !p.ElectricityCapacity.IsGrootverbruik() {
		rebate = decimal.Min(table.ElectricityRebate, elecGross)
	}

	var gasCharges []energy.BracketCharge
	gasTax := decimal.Zero
	if p.HasGas() {
		var bracketed decimal.Decimal
		gasCharges, bracketed = BracketCharges(energy.Gas, p.GasUsage(), table.Gas)
		gasTax = bracketed.Add(renewableSurcharge(p.GasUsage(), table.Gas))
	}

	return energy.TaxCost{
		Electricity: elecGross,
		Gas:         gasTax,
		Rebate:      rebate,
		Subtotal:    elecGross.Sub(rebate).Add(gasTax),
		Year:        table.Year,
		Brackets:    append(elecCharges, gasCharges...),
	}
}

// BracketCharges walks the brackets for one commodity and returns the
// charge per bracket that received any quantity, plus their sum.
func BracketCharges(c energy.Commodity, usage decimal.Decimal, tax energy.CommodityTax) ([]energy.BracketCharge, decimal.Decimal) {
	var charges []energy.BracketCharge
	total := decimal.Zero
	remaining := usage
	from := decimal.Zero

	for i, b := range tax.Brackets {
		if !remaining.IsPositive() {
			break
		}

		qty := remaining
		var upTo *decimal.Decimal
		if i < len(tax.Brackets)-1 && b.UpTo != nil {
			width := b.UpTo.Sub(from)
			if qty.GreaterThan(width) {
				qty = width
			}
			upTo = energy.DecimalPtr(*b.UpTo)
		}

		rate := energy.RoundRate(b.Rate)
		amount := qty.Mul(rate)
		charges = append(charges, energy.BracketCharge{
			Commodity: c,
			From:      from,
			UpTo:      upTo,
			Quantity:  qty,
			Rate:      rate,
			Amount:    amount,
		})

		total = total.Add(amount)
		remaining = remaining.Sub(qty)
		if upTo != nil {
			from = *upTo
		}
	}
	return charges, total
}

func renewableSurcharge(usage decimal.Decimal, tax energy.CommodityTax) decimal.Decimal {
	return usage.Mul(energy.RoundRate(tax.RenewableSurcharge))
}
