/*
Package tariffdata loads tariff reference data from YAML.

PURPOSE:
  Populates a tariff store with government tax tables, network operators,
  postcode ranges, network fee schedules and a set of sample contracts.
  The server loads the embedded default on first start and can reload a
  file through the admin API.

FILE FORMAT:
  tax_tables:
    - year: 2025
      electricity:
        brackets:
          - {up_to: "2900", rate: "0.10154"}
          - {rate: "0.00321"}
        renewable_surcharge: "0"
      gas: {...}
      electricity_rebate: "524.95"
      vat_percent: "21"
  operators:
    - {id: liander, name: Liander}
  postcode_ranges:
    - {from: 1000AA, to: 1299ZZ, commodity: electricity, operator_id: liander}
  network_fees:
    - operator_id: liander
      year: 2025
      commodity: electricity
      period: annual
      amounts: {"3x25A": "465.00", ...}
  contracts:
    - id: fixed-1y
      name: Vast 1 jaar
      contract: {contract_type: fixed, ...}

  Decimal values are quoted so they are parsed as exact decimals.

VALIDATION:
  The whole file is validated before anything is written. A file with one
  bad row changes nothing.

SEE ALSO:
  - default.yaml: Embedded default data
  - api/handlers.go: ReloadTariffs admin endpoint
*/
package tariffdata

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/energy-engine/energy"
	"github.com/warp/energy-engine/factory"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultSeed []byte

// =============================================================================
// FILE TYPES
// =============================================================================

type Seed struct {
	TaxTables      []energy.TaxTable      `yaml:"tax_tables"`
	Operators      []energy.Operator      `yaml:"operators"`
	PostcodeRanges []energy.PostcodeRange `yaml:"postcode_ranges"`
	NetworkFees    []FeeSchedule          `yaml:"network_fees"`
	Contracts      []SampleContract       `yaml:"contracts"`
}

// FeeSchedule is one operator's fees for one commodity and year, keyed by
// capacity code.
type FeeSchedule struct {
	OperatorID energy.OperatorID          `yaml:"operator_id"`
	Year       int                        `yaml:"year"`
	Commodity  energy.Commodity           `yaml:"commodity"`
	Period     energy.FeePeriod           `yaml:"period"`
	Amounts    map[string]decimal.Decimal `yaml:"amounts"`
}

// SampleContract is a named contract offered on the comparison page.
type SampleContract struct {
	ID          string               `yaml:"id" json:"id"`
	Name        string               `yaml:"name" json:"name"`
	Description string               `yaml:"description" json:"description"`
	Contract    factory.ContractJSON `yaml:"contract" json:"contract"`
}

// Summary counts what Apply wrote.
type Summary struct {
	TaxTables      int `json:"tax_tables"`
	Operators      int `json:"operators"`
	PostcodeRanges int `json:"postcode_ranges"`
	NetworkFees    int `json:"network_fees"`
	Contracts      int `json:"contracts"`
}

// =============================================================================
// LOADING
// =============================================================================

// Default returns the embedded seed.
func Default() (*Seed, error) {
	return Parse(defaultSeed)
}

// Load reads and validates a seed file.
func Load(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tariff file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates seed YAML. Unknown keys are rejected.
func Parse(data []byte) (*Seed, error) {
	var s Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse tariff file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks every row and cross-reference.
func (s *Seed) Validate() error {
	var errs []error

	years := map[int]bool{}
	for _, t := range s.TaxTables {
		if years[t.Year] {
			errs = append(errs, fmt.Errorf("tax table %d: duplicate year", t.Year))
		}
		years[t.Year] = true
		if err := t.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("tax table %d: %w", t.Year, err))
		}
	}

	ops := map[energy.OperatorID]bool{}
	for _, op := range s.Operators {
		if op.ID == "" {
			errs = append(errs, errors.New("operator with empty id"))
		}
		if ops[op.ID] {
			errs = append(errs, fmt.Errorf("operator %s: duplicate id", op.ID))
		}
		ops[op.ID] = true
	}

	spans := map[energy.Commodity][]postcodeSpan{}
	for i, r := range s.PostcodeRanges {
		from, errFrom := energy.NormalizePostcode(r.From)
		to, errTo := energy.NormalizePostcode(r.To)
		switch {
		case errFrom != nil || errTo != nil:
			errs = append(errs, fmt.Errorf("postcode range %d: %w", i, errors.Join(errFrom, errTo)))
		case from > to:
			errs = append(errs, fmt.Errorf("postcode range %d: %s after %s", i, from, to))
		default:
			spans[r.Commodity] = append(spans[r.Commodity], postcodeSpan{index: i, from: from, to: to})
		}
		if !r.Commodity.Valid() {
			errs = append(errs, fmt.Errorf("postcode range %d: unknown commodity %q", i, r.Commodity))
		}
		if !ops[r.OperatorID] {
			errs = append(errs, fmt.Errorf("postcode range %d: unknown operator %s", i, r.OperatorID))
		}
	}

	for _, c := range energy.Commodities {
		errs = append(errs, overlaps(c, spans[c])...)
	}

	for _, fs := range s.NetworkFees {
		label := fmt.Sprintf("network fees %s/%d/%s", fs.OperatorID, fs.Year, fs.Commodity)
		if !ops[fs.OperatorID] {
			errs = append(errs, fmt.Errorf("%s: unknown operator", label))
		}
		if !fs.Commodity.Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown commodity", label))
			continue
		}
		if fs.Period != energy.FeeAnnual && fs.Period != energy.FeeMonthly {
			errs = append(errs, fmt.Errorf("%s: period must be annual or monthly", label))
		}
		for code, amount := range fs.Amounts {
			if _, err := energy.ParseCapacityCode(fs.Commodity, code); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", label, err))
			}
			if amount.IsNegative() {
				errs = append(errs, fmt.Errorf("%s: %s amount is negative", label, code))
			}
		}
	}

	f := factory.NewContractFactory()
	for _, c := range s.Contracts {
		if _, err := f.FromJSON(c.Contract); err != nil {
			errs = append(errs, fmt.Errorf("contract %s: %w", c.ID, err))
		}
	}

	return errors.Join(errs...)
}

type postcodeSpan struct {
	index    int
	from, to string
}

// overlaps reports ranges of one commodity that share a postcode. Normalised
// postcodes sort lexically in postcode order.
func overlaps(c energy.Commodity, spans []postcodeSpan) []error {
	sort.Slice(spans, func(i, j int) bool { return spans[i].from < spans[j].from })
	var errs []error
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		if cur.from <= prev.to {
			errs = append(errs, fmt.Errorf("postcode range %d: %s %s-%s overlaps range %d (%s-%s)",
				cur.index, c, cur.from, cur.to, prev.index, prev.from, prev.to))
		}
		if cur.to < prev.to {
			spans[i] = prev
		}
	}
	return errs
}

// FeeRows flattens the fee schedules into table rows.
func (s *Seed) FeeRows() []energy.NetworkFeeRow {
	var rows []energy.NetworkFeeRow
	for _, fs := range s.NetworkFees {
		for raw, amount := range fs.Amounts {
			code, err := energy.ParseCapacityCode(fs.Commodity, raw)
			if err != nil {
				continue
			}
			rows = append(rows, energy.NetworkFeeRow{
				OperatorID: fs.OperatorID,
				Year:       fs.Year,
				Commodity:  fs.Commodity,
				Capacity:   code,
				Amount:     amount,
				Period:     fs.Period,
			})
		}
	}
	return rows
}

// Contract returns a sample contract by id.
func (s *Seed) Contract(id string) (energy.ContractTariff, bool, error) {
	for _, c := range s.Contracts {
		if c.ID == id {
			t, err := factory.NewContractFactory().FromJSON(c.Contract)
			return t, true, err
		}
	}
	return nil, false, nil
}

// =============================================================================
// APPLY
// =============================================================================

// Apply writes the seed into a tariff store. Rows are upserts, so applying
// the same file twice is harmless.
func Apply(ctx context.Context, w energy.TariffWriter, s *Seed) (Summary, error) {
	var sum Summary

	for _, t := range s.TaxTables {
		if err := w.SaveTaxTable(ctx, t); err != nil {
			return sum, fmt.Errorf("save tax table %d: %w", t.Year, err)
		}
		sum.TaxTables++
	}
	for _, op := range s.Operators {
		if err := w.SaveOperator(ctx, op); err != nil {
			return sum, fmt.Errorf("save operator %s: %w", op.ID, err)
		}
		sum.Operators++
	}
	for _, r := range s.PostcodeRanges {
		r.From, _ = energy.NormalizePostcode(r.From)
		r.To, _ = energy.NormalizePostcode(r.To)
		if err := w.SavePostcodeRange(ctx, r); err != nil {
			return sum, fmt.Errorf("save postcode range %s-%s: %w", r.From, r.To, err)
		}
		sum.PostcodeRanges++
	}
	for _, row := range s.FeeRows() {
		if err := w.SaveNetworkFee(ctx, row); err != nil {
			return sum, fmt.Errorf("save network fee %s/%d/%s/%s: %w", row.OperatorID, row.Year, row.Commodity, row.Capacity, err)
		}
		sum.NetworkFees++
	}
	sum.Contracts = len(s.Contracts)
	return sum, nil
}
