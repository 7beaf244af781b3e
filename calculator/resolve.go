package calculator

import (
	"context"
	"fmt"

	"github.com/warp/energy-engine/energy"
)

// =============================================================================
// INPUT NORMALISATION
// =============================================================================

// normalize validates the input and fills in derived fields: the year, the
// normalised postcode and the capacity codes (parsed, or estimated from
// usage when the caller did not supply one). It performs no I/O.
func normalize(in energy.CalculationInput, defaultYear int) (energy.CalculationInput, error) {
	if in.Contract == nil {
		return in, &energy.ValidationError{Field: "contract", Message: "contract tariff is required"}
	}
	if err := in.Contract.Validate(); err != nil {
		return in, err
	}
	if in.Contract.Kind() == energy.ContractDynamic && in.Index == nil {
		return in, &energy.ValidationError{Field: "index", Message: "dynamic contract requires market index prices"}
	}
	if err := in.Consumption.Validate(); err != nil {
		return in, err
	}

	if in.Year == 0 {
		in.Year = defaultYear
	}
	if in.Year < 0 {
		return in, &energy.ValidationError{Field: "year", Message: "must be positive"}
	}

	postcode, err := energy.NormalizePostcode(in.Address.Postcode)
	if err != nil {
		return in, err
	}
	in.Address.Postcode = postcode

	p := &in.Consumption
	p.Meter = p.MeterType()
	if p.ElectricityCapacity, err = capacityFor(energy.Electricity, p.ElectricityCapacity, *p); err != nil {
		return in, err
	}
	if p.HasGas() {
		if p.GasCapacity, err = capacityFor(energy.Gas, p.GasCapacity, *p); err != nil {
			return in, err
		}
	} else {
		p.GasCapacity = ""
	}

	for _, c := range energy.Commodities {
		if n := in.NegotiatedFees.For(c); n != nil && n.IsNegative() {
			return in, &energy.ValidationError{Field: "negotiated_fees." + string(c), Message: "must not be negative"}
		}
	}
	return in, nil
}

func capacityFor(c energy.Commodity, code energy.CapacityCode, p energy.ConsumptionProfile) (energy.CapacityCode, error) {
	if code == "" {
		return energy.EstimateCapacity(c, p.Usage(c)), nil
	}
	return energy.ParseCapacityCode(c, string(code))
}

// =============================================================================
// TARIFF RESOLUTION - The only stage that performs I/O
// =============================================================================

// resolveTaxTable returns the table for year, falling back to the most
// recent earlier year.
func resolveTaxTable(ctx context.Context, repo energy.TariffRepository, year int) (energy.TaxTable, error) {
	t, err := repo.ActiveTaxTable(ctx, year)
	if err != nil {
		return energy.TaxTable{}, fmt.Errorf("lookup tax table %d: %w", year, err)
	}
	if t != nil {
		return *t, nil
	}

	years, err := repo.TaxTableYears(ctx)
	if err != nil {
		return energy.TaxTable{}, fmt.Errorf("list tax table years: %w", err)
	}
	fallback := 0
	for _, y := range years {
		if y < year && y > fallback {
			fallback = y
		}
	}
	if fallback == 0 {
		return energy.TaxTable{}, &energy.TariffUnavailableError{Year: year}
	}

	t, err = repo.ActiveTaxTable(ctx, fallback)
	if err != nil {
		return energy.TaxTable{}, fmt.Errorf("lookup tax table %d: %w", fallback, err)
	}
	if t == nil {
		return energy.TaxTable{}, &energy.TariffUnavailableError{Year: year}
	}
	return *t, nil
}

// resolveSnapshot pins every external rate for a normalised input. When the
// caller gave no year, fees are read for the year the tax table resolved to
// and that year is recorded in the snapshot.
func resolveSnapshot(ctx context.Context, repo energy.TariffRepository, in energy.CalculationInput, yearDefaulted bool, estimates Estimates) (energy.TariffSnapshot, error) {
	table, err := resolveTaxTable(ctx, repo, in.Year)
	if err != nil {
		return energy.TariffSnapshot{}, err
	}
	if yearDefaulted {
		in.Year = table.Year
	}

	snap := energy.TariffSnapshot{
		RequestedYear: in.Year,
		TaxTable:      table,
		Gas:           Disconnected(energy.Gas),
	}
	if in.Contract.Kind() == energy.ContractDynamic && in.Index != nil {
		idx := *in.Index
		snap.Index = &idx
	}

	snap.Electricity, err = ResolveNetworkFee(ctx, repo, in.Address.Postcode, energy.Electricity,
		in.Consumption.ElectricityCapacity, in.Year, in.NegotiatedFees.Electricity, estimates)
	if err != nil {
		return energy.TariffSnapshot{}, err
	}

	if in.Consumption.HasGas() {
		snap.Gas, err = ResolveNetworkFee(ctx, repo, in.Address.Postcode, energy.Gas,
			in.Consumption.GasCapacity, in.Year, in.NegotiatedFees.Gas, estimates)
		if err != nil {
			return energy.TariffSnapshot{}, err
		}
	}
	return snap, nil
}
