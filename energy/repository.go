/*
repository.go - Persistence interfaces for tariff data and frozen quotes

PURPOSE:
  Defines the boundary between the calculation engine and the stores that
  hold the year-versioned tariff tables. The engine only reads; writes go
  through TariffWriter, which the seed loader and admin reload use.

KEY INTERFACES:
  TariffRepository: Read side used while resolving a tariff snapshot
  TariffWriter:     Write side used by the seed loader
  QuoteStore:       Append-only storage of frozen quotes

NOT-FOUND CONVENTION:
  Lookups that find nothing return a nil pointer and a nil error. The
  resolver decides which missing row is fatal and which has a fallback.

IMPLEMENTATIONS:
  - energy/store/memory.go: In-memory for tests and demos
  - store/sqlite/sqlite.go: Embedded SQLite
  - store/postgres/postgres.go: PostgreSQL via sqlx
  - tariffcache: Caching decorator over any TariffRepository

SEE ALSO:
  - calculator/resolve.go: Uses TariffRepository
  - quote/service.go: Uses QuoteStore
*/
package energy

import (
	"context"
	"time"
)

// =============================================================================
// TARIFF REPOSITORY - Read side
// =============================================================================

type TariffRepository interface {
	// ActiveTaxTable returns the active tax table for exactly this year.
	ActiveTaxTable(ctx context.Context, year int) (*TaxTable, error)

	// TaxTableYears returns every year that has an active tax table, ascending.
	TaxTableYears(ctx context.Context) ([]int, error)

	// OperatorForPostcode resolves the operator serving a normalised postcode.
	OperatorForPostcode(ctx context.Context, postcode string, commodity Commodity) (*Operator, error)

	// NetworkFee returns the fee row for one capacity code.
	NetworkFee(ctx context.Context, operatorID OperatorID, year int, commodity Commodity, capacity CapacityCode) (*NetworkFeeRow, error)
}

// =============================================================================
// TARIFF WRITER - Write side
// =============================================================================

type TariffWriter interface {
	// SaveTaxTable upserts the active table for its year.
	SaveTaxTable(ctx context.Context, table TaxTable) error

	SaveOperator(ctx context.Context, op Operator) error

	SavePostcodeRange(ctx context.Context, r PostcodeRange) error

	// SaveNetworkFee upserts a row keyed by (operator, year, commodity, capacity).
	SaveNetworkFee(ctx context.Context, row NetworkFeeRow) error

	// ListOperators returns every operator, ordered by ID.
	ListOperators(ctx context.Context) ([]Operator, error)
}

// TariffStore is a store that supports both sides.
type TariffStore interface {
	TariffRepository
	TariffWriter
}

// =============================================================================
// QUOTE STORE - Append-only
// =============================================================================

// QuoteRecord is a frozen calculation. InputJSON, SnapshotJSON and
// BreakdownJSON are stored verbatim; SnapshotHash covers all three.
type QuoteRecord struct {
	ID            QuoteID
	Reference     string
	ContractType  ContractType
	Year          int
	InputJSON     []byte
	SnapshotJSON  []byte
	BreakdownJSON []byte
	SnapshotHash  string
	AnnualInclVAT string
	CreatedAt     time.Time
}

// QuoteStore persists frozen quotes. There is no update and no delete.
type QuoteStore interface {
	// SaveQuote persists a new quote. Saving an existing ID is an error.
	SaveQuote(ctx context.Context, q QuoteRecord) error

	// GetQuote returns nil, nil when the quote does not exist.
	GetQuote(ctx context.Context, id QuoteID) (*QuoteRecord, error)

	// GetQuoteByReference finds the quote frozen for an application reference.
	GetQuoteByReference(ctx context.Context, reference string) (*QuoteRecord, error)

	// ListQuotes returns the most recent quotes first.
	ListQuotes(ctx context.Context, limit int) ([]QuoteRecord, error)
}
