package calculator_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/energy-engine/energy"
	"github.com/warp/energy-engine/energy/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) decimal.Decimal { return energy.MustParseDecimal(s) }

func dp(s string) *decimal.Decimal { return energy.DecimalPtr(d(s)) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	if !got.Equal(d(want)) {
		t.Errorf("expected %s, got %s %v", want, got.String(), msgAndArgs)
	}
}

// flatTaxTable has a single electricity bracket at 0.10/kWh with a 50 rebate
// and a single gas bracket at 0.58/m³.
func flatTaxTable(year int) energy.TaxTable {
	return energy.TaxTable{
		Year: year,
		Electricity: energy.CommodityTax{
			Brackets: []energy.TaxBracket{{Rate: d("0.10")}},
		},
		Gas: energy.CommodityTax{
			Brackets: []energy.TaxBracket{{Rate: d("0.58")}},
		},
		ElectricityRebate: d("50"),
		VATPercent:        d("21"),
	}
}

// progressiveTaxTable mirrors the usual four electricity and two gas brackets.
func progressiveTaxTable(year int) energy.TaxTable {
	return energy.TaxTable{
		Year: year,
		Electricity: energy.CommodityTax{
			Brackets: []energy.TaxBracket{
				{UpTo: dp("2900"), Rate: d("0.10880")},
				{UpTo: dp("10000"), Rate: d("0.10880")},
				{UpTo: dp("50000"), Rate: d("0.09037")},
				{Rate: d("0.03943")},
			},
			RenewableSurcharge: d("0.00500"),
		},
		Gas: energy.CommodityTax{
			Brackets: []energy.TaxBracket{
				{UpTo: dp("1000"), Rate: d("0.58301")},
				{Rate: d("0.31155")},
			},
			RenewableSurcharge: d("0.01000"),
		},
		ElectricityRebate: d("524.95"),
		VATPercent:        d("21"),
	}
}

func scenarioAContract() energy.FixedTariff {
	return energy.FixedTariff{
		ElectricityDay:   dp("0.30"),
		ElectricityNight: dp("0.28"),
		Gas:              d("1.30"),
		FeedIn:           d("0.05"),
		Standing: energy.StandingCharges{
			ElectricityMonthly: d("4.00"),
			GasMonthly:         d("4.00"),
		},
	}
}

func scenarioAProfile() energy.ConsumptionProfile {
	return energy.ConsumptionProfile{
		Meter:               energy.MeterDual,
		ElectricityNormal:   d("3500"),
		ElectricityOffPeak:  d("2500"),
		Gas:                 dp("1200"),
		ElectricityCapacity: energy.Capacity3x25A,
		GasCapacity:         energy.CapacityG6,
	}
}

func scenarioAInput() energy.CalculationInput {
	return energy.CalculationInput{
		Consumption: scenarioAProfile(),
		Address:     energy.Address{Postcode: "1012 ab"},
		Contract:    scenarioAContract(),
		Year:        2025,
	}
}

// newTestRepo seeds one operator covering 1000AA-1099ZZ for both
// commodities with a 300 electricity and 200 gas fee for 2025.
func newTestRepo(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	repo := store.NewMemory()

	require.NoError(t, repo.SaveTaxTable(ctx, flatTaxTable(2025)))
	require.NoError(t, repo.SaveOperator(ctx, energy.Operator{ID: "liander", Name: "Liander"}))
	for _, c := range energy.Commodities {
		require.NoError(t, repo.SavePostcodeRange(ctx, energy.PostcodeRange{
			From: "1000AA", To: "1099ZZ", Commodity: c, OperatorID: "liander",
		}))
	}
	require.NoError(t, repo.SaveNetworkFee(ctx, energy.NetworkFeeRow{
		OperatorID: "liander", Year: 2025, Commodity: energy.Electricity,
		Capacity: energy.Capacity3x25A, Amount: d("300"), Period: energy.FeeAnnual,
	}))
	require.NoError(t, repo.SaveNetworkFee(ctx, energy.NetworkFeeRow{
		OperatorID: "liander", Year: 2025, Commodity: energy.Gas,
		Capacity: energy.CapacityG6, Amount: d("200"), Period: energy.FeeAnnual,
	}))
	return repo
}

// zeroFeeSnapshot is a snapshot with connected commodities and no network fee.
func zeroFeeSnapshot(table energy.TaxTable) energy.TariffSnapshot {
	return energy.TariffSnapshot{
		RequestedYear: table.Year,
		TaxTable:      table,
		Electricity: energy.ResolvedNetworkFee{
			Commodity: energy.Electricity, Connected: true, Capacity: energy.Capacity3x25A, Annual: decimal.Zero,
		},
		Gas: energy.ResolvedNetworkFee{
			Commodity: energy.Gas, Connected: true, Capacity: energy.CapacityG6, Annual: decimal.Zero,
		},
	}
}
