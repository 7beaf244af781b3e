/*
Package quote freezes calculations so they can be shown again, verified and
compared against current tariffs.

PURPOSE:
  An application shows a customer a price. That price must stay exactly
  what it was, even after the tariff tables are updated. Freeze stores the
  normalised input, the TariffSnapshot and the breakdown together with a
  sha256 hash over all three. The stored row is never updated.

OPERATIONS:
  Freeze:  Calculate and store. Returns the frozen quote.
  Get:     Return the stored breakdown as-is. Nothing is recomputed.
  Verify:  Recompute from the stored snapshot (pure) and check that the
           result and the hash still match.
  Reprice: Explicitly run the stored input against current tariffs. The
           frozen quote is not touched; both breakdowns are returned.

HASH:
  sha256(inputJSON || 0x00 || snapshotJSON || 0x00 || breakdownJSON),
  hex encoded. The JSON documents are hashed as stored, byte for byte.

SEE ALSO:
  - calculator/engine.go: Resolve/Compute split
  - quote/export.go: PDF and XLSX rendering
*/
package quote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/energy-engine/calculator"
	"github.com/warp/energy-engine/energy"
	"github.com/warp/energy-engine/factory"
)

// Observer receives quote outcomes. The metrics package implements it.
type Observer interface {
	ObserveQuote(action, code string)
}

const (
	ActionFreeze  = "freeze"
	ActionVerify  = "verify"
	ActionReprice = "reprice"
)

// =============================================================================
// TYPES
// =============================================================================

// Quote is a decoded frozen calculation.
type Quote struct {
	ID           energy.QuoteID                 `json:"id"`
	Reference    string                         `json:"reference,omitempty"`
	ContractType energy.ContractType            `json:"contractType"`
	Year         int                            `json:"year"`
	SnapshotHash string                         `json:"snapshotHash"`
	CreatedAt    time.Time                      `json:"createdAt"`
	Input        factory.CalculationRequestJSON `json:"input"`
	Snapshot     energy.TariffSnapshot          `json:"snapshot"`
	Breakdown    energy.CostBreakdown           `json:"breakdown"`
}

// Summary is a list entry.
type Summary struct {
	ID            energy.QuoteID      `json:"id"`
	Reference     string              `json:"reference,omitempty"`
	ContractType  energy.ContractType `json:"contractType"`
	Year          int                 `json:"year"`
	AnnualInclVAT string              `json:"annualInclVat"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// Verification is the outcome of Verify.
type Verification struct {
	QuoteID energy.QuoteID `json:"quoteId"`
	// HashValid is false when a stored document no longer matches its hash.
	HashValid bool `json:"hashValid"`
	// Reproducible is true when Compute on the stored snapshot returns the
	// stored breakdown.
	Reproducible bool                 `json:"reproducible"`
	Recomputed   energy.CostBreakdown `json:"recomputed"`
}

// Err returns ErrSnapshotMismatch when verification failed.
func (v Verification) Err() error {
	if v.HashValid && v.Reproducible {
		return nil
	}
	return fmt.Errorf("quote %s: %w", v.QuoteID, energy.ErrSnapshotMismatch)
}

// Repricing compares a frozen quote with the same input at current tariffs.
type Repricing struct {
	QuoteID  energy.QuoteID        `json:"quoteId"`
	Frozen   energy.CostBreakdown  `json:"frozen"`
	Current  energy.CostBreakdown  `json:"current"`
	Snapshot energy.TariffSnapshot `json:"snapshot"`
	Delta    energy.Totals         `json:"delta"`
	Changed  bool                  `json:"changed"`
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	engine   *calculator.Engine
	store    energy.QuoteStore
	factory  *factory.ContractFactory
	observer Observer
	log      zerolog.Logger
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the uuid generator, for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func NewService(engine *calculator.Engine, store energy.QuoteStore, opts ...Option) *Service {
	s := &Service{
		engine:  engine,
		store:   store,
		factory: factory.NewContractFactory(),
		log:     zerolog.Nop(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Freeze calculates the input against current tariffs and stores the result.
// reference is the caller's application reference and may be empty.
func (s *Service) Freeze(ctx context.Context, in energy.CalculationInput, reference string) (q *Quote, err error) {
	defer func() { s.observe(ActionFreeze, err) }()

	norm, snap, b, err := s.engine.CalculateNormalized(ctx, in)
	if err != nil {
		return nil, err
	}

	rj, err := s.factory.InputToJSON(norm)
	if err != nil {
		return nil, err
	}
	inputJSON, err := json.Marshal(rj)
	if err != nil {
		return nil, fmt.Errorf("encode input: %w", err)
	}
	snapshotJSON, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	breakdownJSON, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode breakdown: %w", err)
	}

	rec := energy.QuoteRecord{
		ID:            energy.QuoteID(s.newID()),
		Reference:     reference,
		ContractType:  b.ContractType,
		Year:          norm.Year,
		InputJSON:     inputJSON,
		SnapshotJSON:  snapshotJSON,
		BreakdownJSON: breakdownJSON,
		SnapshotHash:  SnapshotHash(inputJSON, snapshotJSON, breakdownJSON),
		AnnualInclVAT: b.Totals.AnnualInclVAT.StringFixed(energy.MoneyPlaces),
		CreatedAt:     s.now().UTC(),
	}
	if err := s.store.SaveQuote(ctx, rec); err != nil {
		return nil, fmt.Errorf("save quote: %w", err)
	}

	s.log.Info().
		Str("quote_id", string(rec.ID)).
		Str("reference", reference).
		Str("contract", energy.DescribeContract(in.Contract)).
		Int("year", rec.Year).
		Str("annual_incl_vat", rec.AnnualInclVAT).
		Bool("estimate", b.NetworkFee.IsEstimate).
		Msg("quote frozen")

	return &Quote{
		ID:           rec.ID,
		Reference:    rec.Reference,
		ContractType: rec.ContractType,
		Year:         rec.Year,
		SnapshotHash: rec.SnapshotHash,
		CreatedAt:    rec.CreatedAt,
		Input:        rj,
		Snapshot:     snap,
		Breakdown:    b,
	}, nil
}

// Get returns a frozen quote exactly as stored.
func (s *Service) Get(ctx context.Context, id energy.QuoteID) (*Quote, error) {
	rec, err := s.store.GetQuote(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("quote %s: %w", id, energy.ErrQuoteNotFound)
	}
	return decode(rec)
}

// GetByReference returns the latest quote frozen for an application reference.
func (s *Service) GetByReference(ctx context.Context, reference string) (*Quote, error) {
	rec, err := s.store.GetQuoteByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("quote for reference %s: %w", reference, energy.ErrQuoteNotFound)
	}
	return decode(rec)
}

// List returns the most recent quotes.
func (s *Service) List(ctx context.Context, limit int) ([]Summary, error) {
	recs, err := s.store.ListQuotes(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, len(recs))
	for i, r := range recs {
		out[i] = Summary{
			ID:            r.ID,
			Reference:     r.Reference,
			ContractType:  r.ContractType,
			Year:          r.Year,
			AnnualInclVAT: r.AnnualInclVAT,
			CreatedAt:     r.CreatedAt,
		}
	}
	return out, nil
}

// Verify recomputes a frozen quote from its own snapshot. No tariff table is
// read.
func (s *Service) Verify(ctx context.Context, id energy.QuoteID) (*Verification, error) {
	v, err := s.verify(ctx, id)
	if err != nil {
		s.observe(ActionVerify, err)
		return nil, err
	}
	s.observe(ActionVerify, v.Err())
	return v, nil
}

func (s *Service) verify(ctx context.Context, id energy.QuoteID) (*Verification, error) {
	rec, err := s.store.GetQuote(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("quote %s: %w", id, energy.ErrQuoteNotFound)
	}
	q, err := decode(rec)
	if err != nil {
		return nil, err
	}

	in, err := s.factory.InputFromJSON(q.Input)
	if err != nil {
		return nil, fmt.Errorf("quote %s: stored input: %w", id, err)
	}
	recomputed, err := calculator.Compute(in, q.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("quote %s: recompute: %w", id, err)
	}

	v := &Verification{
		QuoteID:      id,
		HashValid:    SnapshotHash(rec.InputJSON, rec.SnapshotJSON, rec.BreakdownJSON) == rec.SnapshotHash,
		Reproducible: recomputed.Equal(q.Breakdown),
		Recomputed:   recomputed,
	}
	if !v.HashValid || !v.Reproducible {
		s.log.Warn().
			Str("quote_id", string(id)).
			Bool("hash_valid", v.HashValid).
			Bool("reproducible", v.Reproducible).
			Msg("frozen quote failed verification")
	}
	return v, nil
}

// Reprice runs a frozen quote's input against the current tariff tables.
// The frozen quote is left unchanged.
func (s *Service) Reprice(ctx context.Context, id energy.QuoteID) (r *Repricing, err error) {
	defer func() { s.observe(ActionReprice, err) }()

	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in, err := s.factory.InputFromJSON(q.Input)
	if err != nil {
		return nil, fmt.Errorf("quote %s: stored input: %w", id, err)
	}
	current, snap, err := s.engine.Calculate(ctx, in)
	if err != nil {
		return nil, err
	}

	r = &Repricing{
		QuoteID:  id,
		Frozen:   q.Breakdown,
		Current:  current,
		Snapshot: snap,
		Delta:    totalsDelta(current.Totals, q.Breakdown.Totals),
		Changed:  !current.Equal(q.Breakdown),
	}

	s.log.Info().
		Str("quote_id", string(id)).
		Bool("changed", r.Changed).
		Str("delta_annual_incl_vat", r.Delta.AnnualInclVAT.StringFixed(energy.MoneyPlaces)).
		Msg("frozen quote recalculated")
	return r, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// SnapshotHash is the integrity hash stored with every quote.
func SnapshotHash(input, snapshot, breakdown []byte) string {
	h := sha256.New()
	h.Write(input)
	h.Write([]byte{0})
	h.Write(snapshot)
	h.Write([]byte{0})
	h.Write(breakdown)
	return hex.EncodeToString(h.Sum(nil))
}

func decode(rec *energy.QuoteRecord) (*Quote, error) {
	q := &Quote{
		ID:           rec.ID,
		Reference:    rec.Reference,
		ContractType: rec.ContractType,
		Year:         rec.Year,
		SnapshotHash: rec.SnapshotHash,
		CreatedAt:    rec.CreatedAt,
	}
	if err := json.Unmarshal(rec.InputJSON, &q.Input); err != nil {
		return nil, fmt.Errorf("quote %s: corrupt input: %w", rec.ID, err)
	}
	if err := json.Unmarshal(rec.SnapshotJSON, &q.Snapshot); err != nil {
		return nil, fmt.Errorf("quote %s: corrupt snapshot: %w", rec.ID, err)
	}
	if err := json.Unmarshal(rec.BreakdownJSON, &q.Breakdown); err != nil {
		return nil, fmt.Errorf("quote %s: corrupt breakdown: %w", rec.ID, err)
	}
	return q, nil
}

func totalsDelta(current, frozen energy.Totals) energy.Totals {
	return energy.Totals{
		AnnualExclVAT:  current.AnnualExclVAT.Sub(frozen.AnnualExclVAT),
		AnnualInclVAT:  current.AnnualInclVAT.Sub(frozen.AnnualInclVAT),
		MonthlyExclVAT: current.MonthlyExclVAT.Sub(frozen.MonthlyExclVAT),
		MonthlyInclVAT: current.MonthlyInclVAT.Sub(frozen.MonthlyInclVAT),
		VATPercent:     current.VATPercent.Sub(frozen.VATPercent),
		VAT:            current.VAT.Sub(frozen.VAT),
	}
}

func (s *Service) observe(action string, err error) {
	if s.observer != nil {
		s.observer.ObserveQuote(action, energy.Code(err))
	}
}
