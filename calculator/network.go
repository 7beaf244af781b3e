package calculator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/energy-engine/energy"
)

// =============================================================================
// NETWORK FEE RESOLVER
// =============================================================================

// Estimates are the annual network fees assumed for grootverbruik
// connections when the caller has no negotiated figure.
type Estimates struct {
	Electricity decimal.Decimal
	Gas         decimal.Decimal
}

// DefaultEstimates are deliberately on the high side.
var DefaultEstimates = Estimates{
	Electricity: decimal.NewFromInt(2500),
	Gas:         decimal.NewFromInt(1200),
}

func (e Estimates) For(c energy.Commodity) decimal.Decimal {
	if c == energy.Gas {
		return e.Gas
	}
	return e.Electricity
}

// ResolveNetworkFee resolves one commodity's annual network fee.
//
// The postcode is mapped to the operator serving that commodity. Small
// consumer codes are looked up in the fee table and a missing row is a
// data-completeness error. Grootverbruik codes skip the table: the fee is
// the negotiated value when given, otherwise the configured estimate, and
// the result is flagged as an estimate.
func ResolveNetworkFee(ctx context.Context, repo energy.TariffRepository, postcode string, commodity energy.Commodity, capacity energy.CapacityCode, year int, negotiated *decimal.Decimal, estimates Estimates) (energy.ResolvedNetworkFee, error) {
	resolved := energy.ResolvedNetworkFee{
		Commodity: commodity,
		Connected: true,
		Capacity:  capacity,
	}

	op, err := repo.OperatorForPostcode(ctx, postcode, commodity)
	if err != nil {
		return energy.ResolvedNetworkFee{}, fmt.Errorf("lookup %s operator: %w", commodity, err)
	}
	if op == nil {
		return energy.ResolvedNetworkFee{}, &energy.OperatorUnknownError{Postcode: postcode, Commodity: commodity}
	}
	resolved.Operator = *op

	if capacity.IsGrootverbruik() {
		resolved.IsEstimate = true
		resolved.Annual = estimates.For(commodity)
		if negotiated != nil {
			resolved.Annual = *negotiated
		}
		return resolved, nil
	}

	row, err := repo.NetworkFee(ctx, op.ID, year, commodity, capacity)
	if err != nil {
		return energy.ResolvedNetworkFee{}, fmt.Errorf("lookup %s network fee: %w", commodity, err)
	}
	if row == nil {
		return energy.ResolvedNetworkFee{}, &energy.NetworkFeeUnavailableError{
			OperatorID: op.ID,
			Year:       year,
			Commodity:  commodity,
			Capacity:   capacity,
		}
	}
	resolved.Annual = row.Annual()
	return resolved, nil
}

// Disconnected is the resolved fee for a commodity with no connection.
func Disconnected(c energy.Commodity) energy.ResolvedNetworkFee {
	return energy.ResolvedNetworkFee{Commodity: c, Annual: decimal.Zero}
}
