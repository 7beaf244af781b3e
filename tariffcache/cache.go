/*
Package tariffcache provides a caching decorator around a tariff repository.

PURPOSE:
  Tariff tables change a few times a year but are read on every
  calculation. Repository caches lookups in memory so the engine can stay a
  pure consumer of a TariffRepository.

KEYS:
  tax tables:   year
  years list:   single entry
  operators:    (postcode, commodity)
  network fees: (operatorId, year, commodity, capacityCode)

  Misses are cached too: a year without a tax table is looked up once, not
  on every request that falls back to an earlier year.

INVALIDATION:
  Explicit only, plus an optional TTL. Invalidate() drops everything,
  InvalidateYear() drops the tax table and fee rows of one year. A load that
  raced with an invalidation is returned to its caller but not stored.

CONCURRENCY:
  Concurrent misses on the same key share one repository call through
  golang.org/x/sync/singleflight.

SEE ALSO:
  - energy/repository.go: TariffRepository
  - api/handlers.go: Admin cache invalidation endpoint
*/
package tariffcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/energy-engine/energy"
	"golang.org/x/sync/singleflight"
)

// Observer receives hit/miss notifications. The metrics package implements it.
type Observer interface {
	ObserveCacheLookup(kind string, hit bool)
}

const (
	KindTaxTable   = "tax_table"
	KindYears      = "tax_years"
	KindOperator   = "operator"
	KindNetworkFee = "network_fee"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

type operatorKey struct {
	Postcode  string
	Commodity energy.Commodity
}

type feeKey struct {
	OperatorID energy.OperatorID
	Year       int
	Commodity  energy.Commodity
	Capacity   energy.CapacityCode
}

// Repository caches an underlying TariffRepository.
type Repository struct {
	next     energy.TariffRepository
	ttl      time.Duration
	observer Observer
	now      func() time.Time
	group    singleflight.Group

	mu         sync.RWMutex
	generation uint64
	taxTables  map[int]entry[*energy.TaxTable]
	years      *entry[[]int]
	operators  map[operatorKey]entry[*energy.Operator]
	fees       map[feeKey]entry[*energy.NetworkFeeRow]
}

type Option func(*Repository)

// WithTTL expires entries after d. Zero keeps entries until invalidated.
func WithTTL(d time.Duration) Option {
	return func(r *Repository) { r.ttl = d }
}

func WithObserver(o Observer) Option {
	return func(r *Repository) { r.observer = o }
}

func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

func New(next energy.TariffRepository, opts ...Option) *Repository {
	r := &Repository{next: next, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.reset()
	return r
}

func (r *Repository) reset() {
	r.taxTables = make(map[int]entry[*energy.TaxTable])
	r.years = nil
	r.operators = make(map[operatorKey]entry[*energy.Operator])
	r.fees = make(map[feeKey]entry[*energy.NetworkFeeRow])
}

// =============================================================================
// TARIFF REPOSITORY
// =============================================================================

func (r *Repository) ActiveTaxTable(ctx context.Context, year int) (*energy.TaxTable, error) {
	r.mu.RLock()
	e, ok := r.taxTables[year]
	r.mu.RUnlock()
	if ok && r.fresh(e.expiresAt) {
		r.observe(KindTaxTable, true)
		return copyTaxTable(e.value), nil
	}
	r.observe(KindTaxTable, false)

	v, err := r.load(ctx, fmt.Sprintf("tax:%d", year), func(ctx context.Context, gen uint64) (any, error) {
		t, err := r.next.ActiveTaxTable(ctx, year)
		if err != nil {
			return nil, err
		}
		r.store(gen, func() { r.taxTables[year] = entry[*energy.TaxTable]{value: t, expiresAt: r.expiry()} })
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return copyTaxTable(v.(*energy.TaxTable)), nil
}

func (r *Repository) TaxTableYears(ctx context.Context) ([]int, error) {
	r.mu.RLock()
	e := r.years
	r.mu.RUnlock()
	if e != nil && r.fresh(e.expiresAt) {
		r.observe(KindYears, true)
		return append([]int(nil), e.value...), nil
	}
	r.observe(KindYears, false)

	v, err := r.load(ctx, "years", func(ctx context.Context, gen uint64) (any, error) {
		years, err := r.next.TaxTableYears(ctx)
		if err != nil {
			return nil, err
		}
		r.store(gen, func() { r.years = &entry[[]int]{value: years, expiresAt: r.expiry()} })
		return years, nil
	})
	if err != nil {
		return nil, err
	}
	return append([]int(nil), v.([]int)...), nil
}

func (r *Repository) OperatorForPostcode(ctx context.Context, postcode string, commodity energy.Commodity) (*energy.Operator, error) {
	k := operatorKey{Postcode: postcode, Commodity: commodity}
	r.mu.RLock()
	e, ok := r.operators[k]
	r.mu.RUnlock()
	if ok && r.fresh(e.expiresAt) {
		r.observe(KindOperator, true)
		return copyPtr(e.value), nil
	}
	r.observe(KindOperator, false)

	v, err := r.load(ctx, fmt.Sprintf("op:%s:%s", postcode, commodity), func(ctx context.Context, gen uint64) (any, error) {
		op, err := r.next.OperatorForPostcode(ctx, postcode, commodity)
		if err != nil {
			return nil, err
		}
		r.store(gen, func() { r.operators[k] = entry[*energy.Operator]{value: op, expiresAt: r.expiry()} })
		return op, nil
	})
	if err != nil {
		return nil, err
	}
	return copyPtr(v.(*energy.Operator)), nil
}

func (r *Repository) NetworkFee(ctx context.Context, operatorID energy.OperatorID, year int, commodity energy.Commodity, capacity energy.CapacityCode) (*energy.NetworkFeeRow, error) {
	k := feeKey{OperatorID: operatorID, Year: year, Commodity: commodity, Capacity: capacity}
	r.mu.RLock()
	e, ok := r.fees[k]
	r.mu.RUnlock()
	if ok && r.fresh(e.expiresAt) {
		r.observe(KindNetworkFee, true)
		return copyPtr(e.value), nil
	}
	r.observe(KindNetworkFee, false)

	v, err := r.load(ctx, fmt.Sprintf("fee:%s:%d:%s:%s", operatorID, year, commodity, capacity), func(ctx context.Context, gen uint64) (any, error) {
		row, err := r.next.NetworkFee(ctx, operatorID, year, commodity, capacity)
		if err != nil {
			return nil, err
		}
		r.store(gen, func() { r.fees[k] = entry[*energy.NetworkFeeRow]{value: row, expiresAt: r.expiry()} })
		return row, nil
	})
	if err != nil {
		return nil, err
	}
	return copyPtr(v.(*energy.NetworkFeeRow)), nil
}

// =============================================================================
// INVALIDATION
// =============================================================================

// Invalidate drops every cached entry.
func (r *Repository) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.reset()
}

// InvalidateYear drops the tax table, the years list and every fee row of
// one year.
func (r *Repository) InvalidateYear(year int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	delete(r.taxTables, year)
	r.years = nil
	for k := range r.fees {
		if k.Year == year {
			delete(r.fees, k)
		}
	}
}

// Len returns the number of cached entries.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.taxTables) + len(r.operators) + len(r.fees)
	if r.years != nil {
		n++
	}
	return n
}

// =============================================================================
// INTERNALS
// =============================================================================

// load runs fn once per key and generation. Callers arriving after an
// invalidation start a new load. The shared load ignores the cancellation of
// whichever caller started it; each caller still returns on its own ctx.
func (r *Repository) load(ctx context.Context, key string, fn func(ctx context.Context, gen uint64) (any, error)) (any, error) {
	r.mu.RLock()
	gen := r.generation
	r.mu.RUnlock()

	loadCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(fmt.Sprintf("%d/%s", gen, key), func() (any, error) { return fn(loadCtx, gen) })
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// store applies set only if nothing was invalidated since the load began.
func (r *Repository) store(gen uint64, set func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.generation {
		return
	}
	set()
}

func (r *Repository) expiry() time.Time {
	if r.ttl <= 0 {
		return time.Time{}
	}
	return r.now().Add(r.ttl)
}

func (r *Repository) fresh(expiresAt time.Time) bool {
	return expiresAt.IsZero() || r.now().Before(expiresAt)
}

func (r *Repository) observe(kind string, hit bool) {
	if r.observer != nil {
		r.observer.ObserveCacheLookup(kind, hit)
	}
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// copyTaxTable copies the bracket slices so callers cannot mutate the cache.
func copyTaxTable(t *energy.TaxTable) *energy.TaxTable {
	if t == nil {
		return nil
	}
	c := *t
	c.Electricity.Brackets = append([]energy.TaxBracket(nil), t.Electricity.Brackets...)
	c.Gas.Brackets = append([]energy.TaxBracket(nil), t.Gas.Brackets...)
	return &c
}
