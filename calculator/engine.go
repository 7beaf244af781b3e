/*
Package calculator implements the energy cost engine.

PURPOSE:
  Turns a consumption profile, an address and a contract tariff into an
  itemized annual and monthly cost breakdown: supplier cost, government
  energy tax, network operator fees and VAT.

PIPELINE (strictly linear, no callbacks into earlier stages):
  1. normalize:   Validate input, normalise postcode and capacity codes
  2. Resolve:     Read the tax table and network fees into a TariffSnapshot
  3. Compute:     Supplier cost, tax, network fee, aggregate (pure)

TWO PHASES:
  Resolve is the only stage that touches the repository. Compute is a pure
  function of (input, snapshot), which is what makes a frozen quote
  reproducible: store the snapshot and Compute returns the same breakdown
  forever, whatever happens to the tariff tables afterwards.

ERRORS:
  Every error aborts the pipeline. There is no partial breakdown.
  Grootverbruik estimates are not errors; see NetworkFeeCost.IsEstimate.

CONCURRENCY:
  Engine holds no mutable state and is safe for concurrent use. Caching
  belongs to the repository (see tariffcache).

USAGE:
  engine := calculator.NewEngine(repo)
  breakdown, snapshot, err := engine.Calculate(ctx, input)

SEE ALSO:
  - tax.go, supplier.go, network.go, aggregate.go: The individual stages
  - quote/service.go: Freezing and reproducing breakdowns
*/
package calculator

import (
	"context"
	"time"

	"github.com/warp/energy-engine/energy"
)

// Observer receives calculation outcomes. The metrics package implements it.
type Observer interface {
	ObserveCalculation(contractType energy.ContractType, code string, duration time.Duration)
	ObserveEstimate(commodity energy.Commodity)
}

// Engine runs calculations against a tariff repository.
type Engine struct {
	repo      energy.TariffRepository
	estimates Estimates
	observer  Observer
	now       func() time.Time
}

type Option func(*Engine)

// WithEstimates sets the grootverbruik network fee defaults.
func WithEstimates(e Estimates) Option {
	return func(eng *Engine) { eng.estimates = e }
}

func WithObserver(o Observer) Option {
	return func(eng *Engine) { eng.observer = o }
}

// WithClock sets the clock used to pick the default year.
func WithClock(now func() time.Time) Option {
	return func(eng *Engine) { eng.now = now }
}

func NewEngine(repo energy.TariffRepository, opts ...Option) *Engine {
	e := &Engine{
		repo:      repo,
		estimates: DefaultEstimates,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// PHASES
// =============================================================================

// Resolve validates the input and reads every tariff it needs. The returned
// input is the normalised form Compute expects.
func (e *Engine) Resolve(ctx context.Context, in energy.CalculationInput) (energy.CalculationInput, energy.TariffSnapshot, error) {
	norm, err := normalize(in, e.now().Year())
	if err != nil {
		return in, energy.TariffSnapshot{}, err
	}
	snap, err := resolveSnapshot(ctx, e.repo, norm, in.Year == 0, e.estimates)
	if err != nil {
		return norm, energy.TariffSnapshot{}, err
	}
	norm.Year = snap.RequestedYear
	return norm, snap, nil
}

// Compute produces a breakdown from an input and a pinned snapshot. It
// performs no I/O, so the same arguments always yield the same breakdown.
func Compute(in energy.CalculationInput, snap energy.TariffSnapshot) (energy.CostBreakdown, error) {
	if in.Contract == nil {
		return energy.CostBreakdown{}, &energy.ValidationError{Field: "contract", Message: "contract tariff is required"}
	}

	profile := in.Consumption
	if snap.Electricity.Capacity != "" {
		profile.ElectricityCapacity = snap.Electricity.Capacity
	}

	index := snap.Index
	if index == nil {
		index = in.Index
	}

	supplier, err := ComputeSupplierCost(profile, in.Contract, index)
	if err != nil {
		return energy.CostBreakdown{}, err
	}
	tax := ComputeTax(profile, snap.TaxTable)
	network := NetworkFeeCost(snap)

	return Aggregate(in.Contract.Kind(), supplier, tax, network, snap.TaxTable.VATPercent), nil
}

// Calculate runs Resolve then Compute.
func (e *Engine) Calculate(ctx context.Context, in energy.CalculationInput) (energy.CostBreakdown, energy.TariffSnapshot, error) {
	start := e.now()

	_, snap, b, err := e.calculate(ctx, in)
	e.observe(in, snap, err, e.now().Sub(start))
	if err != nil {
		return energy.CostBreakdown{}, energy.TariffSnapshot{}, err
	}
	return b, snap, nil
}

// CalculateNormalized is Calculate that also returns the normalised input,
// which is what a frozen quote stores.
func (e *Engine) CalculateNormalized(ctx context.Context, in energy.CalculationInput) (energy.CalculationInput, energy.TariffSnapshot, energy.CostBreakdown, error) {
	start := e.now()

	norm, snap, b, err := e.calculate(ctx, in)
	e.observe(in, snap, err, e.now().Sub(start))
	return norm, snap, b, err
}

func (e *Engine) calculate(ctx context.Context, in energy.CalculationInput) (energy.CalculationInput, energy.TariffSnapshot, energy.CostBreakdown, error) {
	norm, snap, err := e.Resolve(ctx, in)
	if err != nil {
		return norm, energy.TariffSnapshot{}, energy.CostBreakdown{}, err
	}
	b, err := Compute(norm, snap)
	if err != nil {
		return norm, energy.TariffSnapshot{}, energy.CostBreakdown{}, err
	}
	return norm, snap, b, nil
}

func (e *Engine) observe(in energy.CalculationInput, snap energy.TariffSnapshot, err error, d time.Duration) {
	if e.observer == nil {
		return
	}
	kind := energy.ContractType("unknown")
	if in.Contract != nil {
		kind = in.Contract.Kind()
	}
	e.observer.ObserveCalculation(kind, energy.Code(err), d)
	if err != nil {
		return
	}
	for _, c := range energy.Commodities {
		if snap.NetworkFee(c).IsEstimate {
			e.observer.ObserveEstimate(c)
		}
	}
}

// =============================================================================
// RESULT ENVELOPE
// =============================================================================

// Result is the success-or-error envelope returned across the boundary.
type Result struct {
	Success   bool                  `json:"success"`
	Breakdown *energy.CostBreakdown `json:"breakdown,omitempty"`
	ErrorCode string                `json:"errorCode,omitempty"`
	Message   string                `json:"message,omitempty"`
}

// Evaluate runs a calculation and wraps the outcome in a Result. Errors
// never escape as anything other than a typed code and a message.
func (e *Engine) Evaluate(ctx context.Context, in energy.CalculationInput) Result {
	b, _, err := e.Calculate(ctx, in)
	return NewResult(b, err)
}

func NewResult(b energy.CostBreakdown, err error) Result {
	if err != nil {
		return Result{Success: false, ErrorCode: energy.Code(err), Message: err.Error()}
	}
	return Result{Success: true, Breakdown: &b}
}
