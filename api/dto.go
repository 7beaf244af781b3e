/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication that are not already
  owned by a domain package. Calculation requests reuse
  factory.CalculationRequestJSON and breakdowns are serialized straight from
  energy.CostBreakdown, so this file only holds the envelopes around them.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Response wrappers

SEE ALSO:
  - handlers.go: Uses these types
  - factory/input.go: CalculationRequestJSON
  - calculator/engine.go: Result envelope for /api/calculate
*/
package api

import (
	"github.com/warp/energy-engine/energy"
	"github.com/warp/energy-engine/factory"
	"github.com/warp/energy-engine/tariffdata"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// FreezeQuoteRequest is a calculation request plus an optional application
// reference the quote is filed under.
type FreezeQuoteRequest struct {
	factory.CalculationRequestJSON
	Reference string `json:"reference,omitempty"`
}

// ScenarioCalculateRequest selects the contract a demo scenario is priced on.
type ScenarioCalculateRequest struct {
	ContractID string `json:"contract_id"`
	Year       int    `json:"year,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the error envelope of every endpoint except
// /api/calculate, which answers with calculator.Result.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// OperatorLookupDTO is the answer to GET /api/operators.
type OperatorLookupDTO struct {
	Postcode    string           `json:"postcode"`
	Electricity *energy.Operator `json:"electricity,omitempty"`
	Gas         *energy.Operator `json:"gas,omitempty"`
}

// CapacityEstimateDTO is the answer to GET /api/capacity/estimate.
type CapacityEstimateDTO struct {
	Electricity energy.CapacityCode `json:"electricity"`
	Gas         energy.CapacityCode `json:"gas,omitempty"`
}

// TaxYearsDTO lists the years with an active tax table.
type TaxYearsDTO struct {
	Years []int `json:"years"`
}

// InvalidateResponse reports what the admin cache endpoint cleared.
type InvalidateResponse struct {
	Year    int `json:"year,omitempty"`
	Entries int `json:"entriesBefore"`
}

// ReloadResponse reports what a tariff reload wrote.
type ReloadResponse struct {
	Source  string             `json:"source"`
	Summary tariffdata.Summary `json:"summary"`
}

// ScenarioDTO describes a demo consumption profile.
type ScenarioDTO struct {
	ID          string                         `json:"id"`
	Name        string                         `json:"name"`
	Description string                         `json:"description"`
	Request     factory.CalculationRequestJSON `json:"request"`
}

// HealthDTO is the answer to GET /health.
type HealthDTO struct {
	Status string `json:"status"`
}
