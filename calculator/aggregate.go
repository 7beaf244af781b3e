package calculator

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/energy-engine/energy"
)

// =============================================================================
// NETWORK FEE COST - From the resolved snapshot
// =============================================================================

// NetworkFeeCost builds the network fee section from a snapshot. A commodity
// without a connection contributes nothing.
func NetworkFeeCost(snap energy.TariffSnapshot) energy.NetworkFeeCost {
	cost := energy.NetworkFeeCost{Electricity: decimal.Zero, Gas: decimal.Zero}

	var names []string
	for _, c := range energy.Commodities {
		fee := snap.NetworkFee(c)
		if !fee.Connected {
			continue
		}
		if c == energy.Gas {
			cost.Gas = fee.Annual
		} else {
			cost.Electricity = fee.Annual
		}
		cost.IsEstimate = cost.IsEstimate || fee.IsEstimate
		if fee.Operator.Name != "" && !contains(names, fee.Operator.Name) {
			names = append(names, fee.Operator.Name)
		}
	}
	cost.OperatorName = strings.Join(names, " / ")
	cost.Subtotal = cost.Electricity.Add(cost.Gas)
	return cost
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// =============================================================================
// AGGREGATE - Subtotals, VAT and monthly figures
// =============================================================================

// Aggregate rounds the three subtotals to cents and derives the totals from
// the rounded values, so the displayed subtotals always add up. VAT is applied
// once, to the grand total.
func Aggregate(kind energy.ContractType, supplier energy.SupplierCost, tax energy.TaxCost, network energy.NetworkFeeCost, vatPercent decimal.Decimal) energy.CostBreakdown {
	supplier.Subtotal = energy.RoundMoney(supplier.Subtotal)
	tax.Subtotal = energy.RoundMoney(tax.Subtotal)
	network.Subtotal = energy.RoundMoney(network.Subtotal)

	annualExcl := supplier.Subtotal.Add(tax.Subtotal).Add(network.Subtotal)
	factor := decimal.NewFromInt(1).Add(vatPercent.Div(energy.Hundred))
	annualIncl := energy.RoundMoney(annualExcl.Mul(factor))

	return energy.CostBreakdown{
		ContractType: kind,
		Supplier:     supplier,
		Tax:          tax,
		NetworkFee:   network,
		Totals: energy.Totals{
			AnnualExclVAT:  annualExcl,
			AnnualInclVAT:  annualIncl,
			MonthlyExclVAT: energy.RoundMoney(annualExcl.Div(energy.MonthsPerYear)),
			MonthlyInclVAT: energy.RoundMoney(annualIncl.Div(energy.MonthsPerYear)),
			VATPercent:     vatPercent,
			VAT:            annualIncl.Sub(annualExcl),
		},
	}
}
