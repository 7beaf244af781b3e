/*
errors.go - Centralized error types for the cost engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers branch on the sentinel with errors.Is() and read the details
  from the structured error with errors.As().

ERROR CATEGORIES:
  1. Validation errors - Caller supplied malformed input (4xx)
  2. Data-completeness errors - Tariff tables are missing a row the
     calculation needs (tax year, operator, fee row)
  3. Programming errors - An unhandled contract variant
  4. Quote errors - Stored quote lookups

NO PARTIAL RESULTS:
  Every calculation error aborts before a breakdown is produced. A
  grootverbruik estimate is not an error; it is flagged on the breakdown.

SEE ALSO:
  - calculator/engine.go: Maps errors onto the Result envelope
  - api/handlers.go: Maps errors onto HTTP status codes
*/
package energy

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when consumption, address or contract input is
	// malformed or missing required fields.
	ErrValidation = errors.New("validation failed")

	// ErrTariffUnavailable is returned when no government tax table exists for
	// the requested year or any earlier year.
	ErrTariffUnavailable = errors.New("tariff unavailable")

	// ErrOperatorUnknown is returned when a postcode does not resolve to a
	// network operator.
	ErrOperatorUnknown = errors.New("network operator unknown")

	// ErrNetworkFeeUnavailable is returned when the fee table has no row for a
	// small-consumer capacity code. This indicates incomplete tariff data.
	ErrNetworkFeeUnavailable = errors.New("network fee unavailable")

	// ErrUnsupportedContractVariant is returned when a contract tariff is not
	// one of the known variants.
	ErrUnsupportedContractVariant = errors.New("unsupported contract variant")

	// ErrQuoteNotFound is returned when a frozen quote does not exist.
	ErrQuoteNotFound = errors.New("quote not found")

	// ErrSnapshotMismatch is returned when a frozen quote no longer matches
	// the hash recorded when it was frozen.
	ErrSnapshotMismatch = errors.New("snapshot hash mismatch")
)

// =============================================================================
// ERROR CODES - Stable identifiers for the wire format
// =============================================================================

const (
	CodeValidation                 = "VALIDATION_ERROR"
	CodeTariffUnavailable          = "TARIFF_UNAVAILABLE"
	CodeOperatorUnknown            = "OPERATOR_UNKNOWN"
	CodeNetworkFeeUnavailable      = "NETWORK_FEE_UNAVAILABLE"
	CodeUnsupportedContractVariant = "UNSUPPORTED_CONTRACT_VARIANT"
	CodeQuoteNotFound              = "QUOTE_NOT_FOUND"
	CodeSnapshotMismatch           = "SNAPSHOT_MISMATCH"
	CodeInternal                   = "INTERNAL_ERROR"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// TariffUnavailableError records the year that could not be resolved.
type TariffUnavailableError struct {
	Year int
}

func (e *TariffUnavailableError) Error() string {
	return fmt.Sprintf("no government tax table for %d or any earlier year", e.Year)
}

func (e *TariffUnavailableError) Unwrap() error {
	return ErrTariffUnavailable
}

// OperatorUnknownError records the postcode that did not resolve.
type OperatorUnknownError struct {
	Postcode  string
	Commodity Commodity
}

func (e *OperatorUnknownError) Error() string {
	return fmt.Sprintf("no %s network operator for postcode %s", e.Commodity, e.Postcode)
}

func (e *OperatorUnknownError) Unwrap() error {
	return ErrOperatorUnknown
}

// NetworkFeeUnavailableError records the missing fee table key.
type NetworkFeeUnavailableError struct {
	OperatorID OperatorID
	Year       int
	Commodity  Commodity
	Capacity   CapacityCode
}

func (e *NetworkFeeUnavailableError) Error() string {
	return fmt.Sprintf("no %s network fee for operator %s, year %d, capacity %s",
		e.Commodity, e.OperatorID, e.Year, e.Capacity)
}

func (e *NetworkFeeUnavailableError) Unwrap() error {
	return ErrNetworkFeeUnavailable
}

// UnsupportedContractError records the variant that was not handled.
type UnsupportedContractError struct {
	Variant string
}

func (e *UnsupportedContractError) Error() string {
	return fmt.Sprintf("unsupported contract variant %q", e.Variant)
}

func (e *UnsupportedContractError) Unwrap() error {
	return ErrUnsupportedContractVariant
}

// =============================================================================
// HELPERS
// =============================================================================

// IsClientError returns true for errors caused by the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsDataCompleteness returns true when tariff data is missing. These are
// operator-facing faults, not caller mistakes.
func IsDataCompleteness(err error) bool {
	return errors.Is(err, ErrTariffUnavailable) ||
		errors.Is(err, ErrOperatorUnknown) ||
		errors.Is(err, ErrNetworkFeeUnavailable)
}

// IsNotFound returns true for missing stored quotes.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrQuoteNotFound)
}

// Code maps an error onto its stable wire code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrTariffUnavailable):
		return CodeTariffUnavailable
	case errors.Is(err, ErrOperatorUnknown):
		return CodeOperatorUnknown
	case errors.Is(err, ErrNetworkFeeUnavailable):
		return CodeNetworkFeeUnavailable
	case errors.Is(err, ErrUnsupportedContractVariant):
		return CodeUnsupportedContractVariant
	case errors.Is(err, ErrQuoteNotFound):
		return CodeQuoteNotFound
	case errors.Is(err, ErrSnapshotMismatch):
		return CodeSnapshotMismatch
	default:
		return CodeInternal
	}
}
