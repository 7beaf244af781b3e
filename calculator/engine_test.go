package calculator_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/energy-engine/calculator"
	"github.com/warp/energy-engine/energy"
)

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarioA_FixedDualMeter(t *testing.T) {
	// GIVEN: Fixed contract, dual meter, flat tax table, no network fee
	// WHEN: Computing the breakdown
	// THEN: Supplier 3406, tax 1246, total 4652 excl / 5628.92 incl VAT

	b, err := calculator.Compute(scenarioAInput(), zeroFeeSnapshot(flatTaxTable(2025)))
	require.NoError(t, err)

	assertDecimal(t, "1750", b.Supplier.Electricity, "electricity supplier")
	assertDecimal(t, "1560", b.Supplier.Gas, "gas supplier")
	assertDecimal(t, "96", b.Supplier.StandingCharge, "standing charge")
	assertDecimal(t, "3406", b.Supplier.Subtotal, "supplier subtotal")

	assertDecimal(t, "600", b.Tax.Electricity, "gross electricity tax")
	assertDecimal(t, "50", b.Tax.Rebate, "rebate")
	assertDecimal(t, "696", b.Tax.Gas, "gas tax")
	assertDecimal(t, "1246", b.Tax.Subtotal, "tax subtotal")

	assertDecimal(t, "4652", b.Totals.AnnualExclVAT)
	assertDecimal(t, "5628.92", b.Totals.AnnualInclVAT)
	assertDecimal(t, "387.67", b.Totals.MonthlyExclVAT)
	assertDecimal(t, "469.08", b.Totals.MonthlyInclVAT)
	assert.Equal(t, energy.ContractFixed, b.ContractType)
}

func TestScenarioA_WithNetworkFees(t *testing.T) {
	// GIVEN: Scenario A against a repository with 300 + 200 network fees
	// WHEN: Calculating through the engine
	// THEN: Network fee is added before VAT

	engine := calculator.NewEngine(newTestRepo(t))
	b, snap, err := engine.Calculate(context.Background(), scenarioAInput())
	require.NoError(t, err)

	assertDecimal(t, "300", b.NetworkFee.Electricity)
	assertDecimal(t, "200", b.NetworkFee.Gas)
	assertDecimal(t, "500", b.NetworkFee.Subtotal)
	assert.Equal(t, "Liander", b.NetworkFee.OperatorName)
	assert.False(t, b.NetworkFee.IsEstimate)

	assertDecimal(t, "5152", b.Totals.AnnualExclVAT)
	assertDecimal(t, "6233.92", b.Totals.AnnualInclVAT)
	assert.Equal(t, 2025, snap.TaxTable.Year)
	assert.Equal(t, energy.OperatorID("liander"), snap.Electricity.Operator.ID)
}

func TestScenarioB_FeedInCredit(t *testing.T) {
	// GIVEN: Scenario A plus 3000 kWh fed back at 0.05
	// THEN: Electricity supplier cost drops by exactly 150

	base, err := calculator.Compute(scenarioAInput(), zeroFeeSnapshot(flatTaxTable(2025)))
	require.NoError(t, err)

	in := scenarioAInput()
	in.Consumption.FeedIn = dp("3000")
	withSolar, err := calculator.Compute(in, zeroFeeSnapshot(flatTaxTable(2025)))
	require.NoError(t, err)

	assertDecimal(t, "150", base.Supplier.Electricity.Sub(withSolar.Supplier.Electricity))
	assertDecimal(t, "150", withSolar.Supplier.FeedInCredit)
	assertDecimal(t, "3256", withSolar.Supplier.Subtotal)
	assert.False(t, withSolar.Supplier.NetExport)
}

func TestScenarioC_Grootverbruik(t *testing.T) {
	// GIVEN: Electricity capacity ">3×80A" (no fee row exists for it)
	// THEN: No error, network fee is flagged as an estimate

	in := scenarioAInput()
	in.Consumption.ElectricityCapacity = ">3×80A"

	engine := calculator.NewEngine(newTestRepo(t))
	b, snap, err := engine.Calculate(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, b.NetworkFee.IsEstimate)
	assert.True(t, snap.Electricity.IsEstimate)
	assert.Equal(t, energy.CapacityOver80, snap.Electricity.Capacity)
	assertDecimal(t, calculator.DefaultEstimates.Electricity.String(), b.NetworkFee.Electricity)
	assertDecimal(t, "0", b.Tax.Rebate, "grootverbruik gets no rebate")
}

func TestScenarioC_NegotiatedFee(t *testing.T) {
	in := scenarioAInput()
	in.Consumption.ElectricityCapacity = energy.CapacityOver80
	in.NegotiatedFees.Electricity = dp("1875.50")

	engine := calculator.NewEngine(newTestRepo(t))
	b, _, err := engine.Calculate(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, b.NetworkFee.IsEstimate)
	assertDecimal(t, "1875.50", b.NetworkFee.Electricity)
}

func TestScenarioD_MissingTaxYear(t *testing.T) {
	// GIVEN: Only a 2025 tax table
	// WHEN: Requesting 2020
	// THEN: TariffUnavailable, no breakdown

	in := scenarioAInput()
	in.Year = 2020

	engine := calculator.NewEngine(newTestRepo(t))
	b, _, err := engine.Calculate(context.Background(), in)

	require.Error(t, err)
	assert.True(t, errors.Is(err, energy.ErrTariffUnavailable))
	var tu *energy.TariffUnavailableError
	require.ErrorAs(t, err, &tu)
	assert.Equal(t, 2020, tu.Year)
	assert.True(t, b.Totals.AnnualInclVAT.IsZero(), "no partial breakdown")

	res := engine.Evaluate(context.Background(), in)
	assert.False(t, res.Success)
	assert.Nil(t, res.Breakdown)
	assert.Equal(t, energy.CodeTariffUnavailable, res.ErrorCode)
}

// =============================================================================
// RESOLUTION
// =============================================================================

func TestTaxTable_FallsBackToEarlierYear(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveTaxTable(ctx, flatTaxTable(2023)))
	require.NoError(t, repo.SaveNetworkFee(ctx, energy.NetworkFeeRow{
		OperatorID: "liander", Year: 2027, Commodity: energy.Electricity,
		Capacity: energy.Capacity3x25A, Amount: d("25"), Period: energy.FeeMonthly,
	}))

	in := scenarioAInput()
	in.Year = 2027
	in.Consumption.Gas = nil

	engine := calculator.NewEngine(repo)
	b, snap, err := engine.Calculate(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, 2025, snap.TaxTable.Year, "most recent earlier year wins")
	assert.Equal(t, 2027, snap.RequestedYear)
	assert.Equal(t, 2025, b.Tax.Year)
	assertDecimal(t, "300", b.NetworkFee.Electricity, "monthly fee is annualised")
}

func TestOperatorUnknown(t *testing.T) {
	in := scenarioAInput()
	in.Address.Postcode = "9999ZZ"

	engine := calculator.NewEngine(newTestRepo(t))
	_, _, err := engine.Calculate(context.Background(), in)

	require.Error(t, err)
	assert.True(t, errors.Is(err, energy.ErrOperatorUnknown))
	assert.True(t, energy.IsDataCompleteness(err))
	assert.Equal(t, energy.CodeOperatorUnknown, energy.Code(err))
}

func TestNetworkFeeUnavailable(t *testing.T) {
	in := scenarioAInput()
	in.Consumption.ElectricityCapacity = energy.Capacity3x63A

	engine := calculator.NewEngine(newTestRepo(t))
	_, _, err := engine.Calculate(context.Background(), in)

	require.Error(t, err)
	var nf *energy.NetworkFeeUnavailableError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, energy.Capacity3x63A, nf.Capacity)
	assert.Equal(t, energy.CodeNetworkFeeUnavailable, energy.Code(err))
}

func TestValidationErrors(t *testing.T) {
	engine := calculator.NewEngine(newTestRepo(t))
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*energy.CalculationInput)
	}{
		{"bad postcode", func(in *energy.CalculationInput) { in.Address.Postcode = "12AB34" }},
		{"negative usage", func(in *energy.CalculationInput) { in.Consumption.ElectricityNormal = d("-1") }},
		{"unknown capacity", func(in *energy.CalculationInput) { in.Consumption.GasCapacity = "G7" }},
		{"missing contract", func(in *energy.CalculationInput) { in.Contract = nil }},
		{"dynamic without index", func(in *energy.CalculationInput) { in.Contract = energy.DynamicTariff{} }},
		{"negative feed-in", func(in *energy.CalculationInput) { in.Consumption.FeedIn = dp("-5") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := scenarioAInput()
			tt.mutate(&in)
			_, _, err := engine.Calculate(ctx, in)
			require.Error(t, err)
			assert.True(t, energy.IsClientError(err), "expected validation error, got %v", err)
			assert.Equal(t, energy.CodeValidation, energy.Code(err))
		})
	}
}

func TestCapacityEstimatedWhenMissing(t *testing.T) {
	in := scenarioAInput()
	in.Consumption.ElectricityCapacity = ""
	in.Consumption.GasCapacity = ""

	// 6000 kWh estimates to 3x35A
	repo := newTestRepo(t)
	require.NoError(t, repo.SaveNetworkFee(context.Background(), energy.NetworkFeeRow{
		OperatorID: "liander", Year: 2025, Commodity: energy.Electricity,
		Capacity: energy.Capacity3x35A, Amount: d("420"), Period: energy.FeeAnnual,
	}))

	engine := calculator.NewEngine(repo)
	b, snap, err := engine.Calculate(context.Background(), in)
	require.NoError(t, err)

	assertDecimal(t, "420", b.NetworkFee.Electricity)
	assert.Equal(t, energy.Capacity3x35A, snap.Electricity.Capacity)
	assert.Equal(t, energy.CapacityG6, snap.Gas.Capacity)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestDeterminism(t *testing.T) {
	engine := calculator.NewEngine(newTestRepo(t))
	ctx := context.Background()

	b1, _, err := engine.Calculate(ctx, scenarioAInput())
	require.NoError(t, err)
	b2, _, err := engine.Calculate(ctx, scenarioAInput())
	require.NoError(t, err)

	assert.True(t, b1.Equal(b2))
	j1, _ := json.Marshal(b1)
	j2, _ := json.Marshal(b2)
	assert.Equal(t, string(j1), string(j2))
}

func TestVATRoundTrip(t *testing.T) {
	for _, vat := range []string{"0", "6", "9", "19", "21", "21.5", "33.333"} {
		table := flatTaxTable(2025)
		table.VATPercent = d(vat)

		b, err := calculator.Compute(scenarioAInput(), zeroFeeSnapshot(table))
		require.NoError(t, err)

		factor := d("1").Add(d(vat).Div(d("100")))
		back := b.Totals.AnnualInclVAT.Div(factor)
		diff := back.Sub(b.Totals.AnnualExclVAT).Abs()
		assert.True(t, diff.LessThanOrEqual(d("0.01")), "vat %s: diff %s", vat, diff)
	}
}

func TestZeroConsumptionFloor(t *testing.T) {
	// GIVEN: Connected for both commodities but zero usage
	// THEN: Variable cost is zero, standing charges and network fees remain

	in := scenarioAInput()
	in.Consumption.ElectricityNormal = d("0")
	in.Consumption.ElectricityOffPeak = d("0")
	in.Consumption.Gas = dp("0")

	engine := calculator.NewEngine(newTestRepo(t))
	b, _, err := engine.Calculate(context.Background(), in)
	require.NoError(t, err)

	assertDecimal(t, "0", b.Supplier.Electricity)
	assertDecimal(t, "0", b.Supplier.Gas)
	assertDecimal(t, "96", b.Supplier.StandingCharge)
	assertDecimal(t, "0", b.Tax.Subtotal)
	assert.True(t, b.NetworkFee.Electricity.IsPositive())
	assert.True(t, b.NetworkFee.Gas.IsPositive())
}

func TestNoGasConnection(t *testing.T) {
	in := scenarioAInput()
	in.Consumption.Gas = nil

	engine := calculator.NewEngine(newTestRepo(t))
	b, snap, err := engine.Calculate(context.Background(), in)
	require.NoError(t, err)

	assertDecimal(t, "0", b.Supplier.Gas)
	assertDecimal(t, "48", b.Supplier.StandingCharge, "no gas standing charge")
	assertDecimal(t, "0", b.Tax.Gas)
	assertDecimal(t, "0", b.NetworkFee.Gas)
	assert.False(t, snap.Gas.Connected)
}

func TestEvaluate_Success(t *testing.T) {
	engine := calculator.NewEngine(newTestRepo(t))
	res := engine.Evaluate(context.Background(), scenarioAInput())

	assert.True(t, res.Success)
	require.NotNil(t, res.Breakdown)
	assert.Empty(t, res.ErrorCode)
}

func TestDefaultYearFromClock(t *testing.T) {
	clock := func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	engine := calculator.NewEngine(newTestRepo(t), calculator.WithClock(clock))

	in := scenarioAInput()
	in.Year = 0
	_, snap, err := engine.Calculate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 2025, snap.RequestedYear)
}

func TestDefaultYearPastPublishedData(t *testing.T) {
	// GIVEN: Tax and fee rows for 2025 only, and a clock in 2026
	clock := func() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) }
	engine := calculator.NewEngine(newTestRepo(t), calculator.WithClock(clock))

	// WHEN: Calculating without a year
	in := scenarioAInput()
	in.Year = 0
	norm, snap, err := engine.Resolve(context.Background(), in)

	// THEN: Tax table and network fees both come from 2025
	require.NoError(t, err)
	assert.Equal(t, 2025, snap.RequestedYear)
	assert.Equal(t, 2025, snap.TaxTable.Year)
	assert.Equal(t, 2025, norm.Year)
	assertDecimal(t, "300", snap.Electricity.Annual)
	assertDecimal(t, "200", snap.Gas.Annual)

	// AND: An explicit year keeps fees strictly per year
	in.Year = 2026
	_, _, err = engine.Calculate(context.Background(), in)
	assert.True(t, errors.Is(err, energy.ErrNetworkFeeUnavailable))
}

type recordingObserver struct {
	codes     []string
	estimates []energy.Commodity
}

func (r *recordingObserver) ObserveCalculation(_ energy.ContractType, code string, _ time.Duration) {
	r.codes = append(r.codes, code)
}

func (r *recordingObserver) ObserveEstimate(c energy.Commodity) {
	r.estimates = append(r.estimates, c)
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	engine := calculator.NewEngine(newTestRepo(t), calculator.WithObserver(obs))
	ctx := context.Background()

	in := scenarioAInput()
	in.Consumption.ElectricityCapacity = energy.CapacityOver80
	_, _, err := engine.Calculate(ctx, in)
	require.NoError(t, err)

	in.Year = 2000
	_, _, err = engine.Calculate(ctx, in)
	require.Error(t, err)

	assert.Equal(t, []string{"", energy.CodeTariffUnavailable}, obs.codes)
	assert.Equal(t, []energy.Commodity{energy.Electricity}, obs.estimates)
}
