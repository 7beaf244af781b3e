// Package store provides in-memory implementations of the energy stores.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/energy-engine/energy"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	taxTables map[int]energy.TaxTable
	operators map[energy.OperatorID]energy.Operator
	ranges    []energy.PostcodeRange
	fees      map[feeKey]energy.NetworkFeeRow
	quotes    map[energy.QuoteID]energy.QuoteRecord
	order     []energy.QuoteID
}

type feeKey struct {
	OperatorID energy.OperatorID
	Year       int
	Commodity  energy.Commodity
	Capacity   energy.CapacityCode
}

func NewMemory() *Memory {
	return &Memory{
		taxTables: make(map[int]energy.TaxTable),
		operators: make(map[energy.OperatorID]energy.Operator),
		fees:      make(map[feeKey]energy.NetworkFeeRow),
		quotes:    make(map[energy.QuoteID]energy.QuoteRecord),
	}
}

// =============================================================================
// TARIFF REPOSITORY
// =============================================================================

func (m *Memory) ActiveTaxTable(_ context.Context, year int) (*energy.TaxTable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.taxTables[year]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *Memory) TaxTableYears(_ context.Context) ([]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	years := make([]int, 0, len(m.taxTables))
	for y := range m.taxTables {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

func (m *Memory) OperatorForPostcode(_ context.Context, postcode string, commodity energy.Commodity) (*energy.Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.ranges {
		if r.Commodity != commodity || !r.Contains(postcode) {
			continue
		}
		op, ok := m.operators[r.OperatorID]
		if !ok {
			return nil, fmt.Errorf("postcode range %s-%s references unknown operator %s", r.From, r.To, r.OperatorID)
		}
		return &op, nil
	}
	return nil, nil
}

func (m *Memory) NetworkFee(_ context.Context, operatorID energy.OperatorID, year int, commodity energy.Commodity, capacity energy.CapacityCode) (*energy.NetworkFeeRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.fees[feeKey{OperatorID: operatorID, Year: year, Commodity: commodity, Capacity: capacity}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

// =============================================================================
// TARIFF WRITER
// =============================================================================

func (m *Memory) SaveTaxTable(_ context.Context, table energy.TaxTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taxTables[table.Year] = table
	return nil
}

func (m *Memory) SaveOperator(_ context.Context, op energy.Operator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operators[op.ID] = op
	return nil
}

// SavePostcodeRange replaces a range with the same bounds and commodity.
func (m *Memory) SavePostcodeRange(_ context.Context, r energy.PostcodeRange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.ranges {
		if existing.From == r.From && existing.To == r.To && existing.Commodity == r.Commodity {
			m.ranges[i] = r
			return nil
		}
	}
	m.ranges = append(m.ranges, r)
	sort.Slice(m.ranges, func(i, j int) bool { return m.ranges[i].From < m.ranges[j].From })
	return nil
}

func (m *Memory) SaveNetworkFee(_ context.Context, row energy.NetworkFeeRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fees[feeKey{OperatorID: row.OperatorID, Year: row.Year, Commodity: row.Commodity, Capacity: row.Capacity}] = row
	return nil
}

func (m *Memory) ListOperators(_ context.Context) ([]energy.Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ops := make([]energy.Operator, 0, len(m.operators))
	for _, op := range m.operators {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })
	return ops, nil
}

// =============================================================================
// QUOTE STORE - Append-only
// =============================================================================

func (m *Memory) SaveQuote(_ context.Context, q energy.QuoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.quotes[q.ID]; exists {
		return fmt.Errorf("quote %s already exists", q.ID)
	}
	m.quotes[q.ID] = q
	m.order = append(m.order, q.ID)
	return nil
}

func (m *Memory) GetQuote(_ context.Context, id energy.QuoteID) (*energy.QuoteRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.quotes[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (m *Memory) GetQuoteByReference(_ context.Context, reference string) (*energy.QuoteRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.order) - 1; i >= 0; i-- {
		q := m.quotes[m.order[i]]
		if q.Reference == reference {
			return &q, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListQuotes(_ context.Context, limit int) ([]energy.QuoteRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []energy.QuoteRecord
	for i := len(m.order) - 1; i >= 0; i-- {
		if limit > 0 && len(result) >= limit {
			break
		}
		result = append(result, m.quotes[m.order[i]])
	}
	return result, nil
}
