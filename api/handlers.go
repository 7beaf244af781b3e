/*
handlers.go - HTTP API handlers for the energy cost engine

PURPOSE:
  Exposes the calculator, the tariff tables and the quote service via REST.
  Handles HTTP request/response and JSON serialization, and delegates to
  the domain packages.

ENDPOINTS:
  Calculation:
    POST   /api/calculate                 Calculate a cost breakdown
    GET    /api/operators                 Network operator for a postcode
    GET    /api/capacity/estimate         Capacity codes from annual usage
    GET    /api/tariffs/tax               Years with an active tax table
    GET    /api/tariffs/tax/{year}        Tax table of one year
    GET    /api/contracts                 Sample contracts

  Quotes:
    POST   /api/quotes                    Freeze a calculation
    GET    /api/quotes                    Most recent quotes
    GET    /api/quotes/by-reference/{ref} Quote filed under a reference
    GET    /api/quotes/{id}               Frozen quote (no recomputation)
    GET    /api/quotes/{id}/verify        Hash and reproducibility check
    GET    /api/quotes/{id}/export        PDF or XLSX rendering

  Admin (JWT, role admin):
    POST   /api/admin/quotes/{id}/reprice Frozen vs. current tariffs
    POST   /api/admin/cache/invalidate    Clear the tariff cache
    POST   /api/admin/tariffs/reload      Re-apply the tariff file

ERROR HANDLING:
  Errors are returned as {success:false, errorCode, message} with:
  - 400: Validation errors, unsupported contract variant
  - 404: Quote not found
  - 409: Snapshot mismatch
  - 422: Tariff data incomplete (tax table, operator, network fee)
  - 500: Internal errors (logged; the message is generic)

SEE ALSO:
  - dto.go: Request/response envelopes
  - scenarios.go: Demo consumption profiles
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/energy-engine/calculator"
	"github.com/warp/energy-engine/energy"
	"github.com/warp/energy-engine/factory"
	"github.com/warp/energy-engine/quote"
)

const (
	defaultQuoteLimit = 50
	maxQuoteLimit     = 500
	maxBodyBytes      = 1 << 20
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// ExportObserver is implemented by metrics.Recorder.
type ExportObserver interface {
	ObserveExport(format, code string, duration time.Duration)
}

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of Handler. Cache, Reloader, Exports and
// Pinger are optional.
type Deps struct {
	Engine   *calculator.Engine
	Tariffs  energy.TariffRepository
	Quotes   *quote.Service
	Cache    CacheInvalidator
	Reloader *TariffReloader
	Exports  ExportObserver
	Pinger   Pinger
	Logger   zerolog.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	engine   *calculator.Engine
	tariffs  energy.TariffRepository
	quotes   *quote.Service
	cache    CacheInvalidator
	reloader *TariffReloader
	exports  ExportObserver
	pinger   Pinger
	factory  *factory.ContractFactory
	log      zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		engine:   d.Engine,
		tariffs:  d.Tariffs,
		quotes:   d.Quotes,
		cache:    d.Cache,
		reloader: d.Reloader,
		exports:  d.Exports,
		pinger:   d.Pinger,
		factory:  factory.NewContractFactory(),
		log:      d.Logger,
	}
}

// =============================================================================
// CALCULATION HANDLERS
// =============================================================================

// Calculate runs one calculation.
// POST /api/calculate
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req factory.CalculationRequestJSON
	if err := decodeBody(w, r, &req); err != nil {
		writeResult(w, calculator.NewResult(energy.CostBreakdown{}, err))
		return
	}
	in, err := h.factory.InputFromJSON(req)
	if err != nil {
		writeResult(w, calculator.NewResult(energy.CostBreakdown{}, err))
		return
	}

	res := h.engine.Evaluate(r.Context(), in)
	if !res.Success && res.ErrorCode == energy.CodeInternal {
		h.log.Error().Str("request_id", middleware.GetReqID(r.Context())).Str("error", res.Message).Msg("calculation failed")
		res.Message = "internal error"
	}
	writeResult(w, res)
}

// LookupOperator resolves the operators serving a postcode.
// GET /api/operators?postcode=1012AB[&commodity=gas]
func (h *Handler) LookupOperator(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	postcode, err := energy.NormalizePostcode(r.URL.Query().Get("postcode"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	commodities := energy.Commodities
	if raw := r.URL.Query().Get("commodity"); raw != "" {
		c, err := energy.ParseCommodity(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		commodities = []energy.Commodity{c}
	}

	dto := OperatorLookupDTO{Postcode: postcode}
	for _, c := range commodities {
		op, err := h.tariffs.OperatorForPostcode(ctx, postcode, c)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if c == energy.Gas {
			dto.Gas = op
		} else {
			dto.Electricity = op
		}
	}
	if dto.Electricity == nil && dto.Gas == nil {
		h.writeErrorStatus(w, r, http.StatusNotFound,
			&energy.OperatorUnknownError{Postcode: postcode, Commodity: commodities[0]})
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// EstimateCapacity picks capacity codes from annual usage.
// GET /api/capacity/estimate?electricity=3500[&gas=1200]
func (h *Handler) EstimateCapacity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	elec, err := queryDecimal(q.Get("electricity"), "electricity", true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dto := CapacityEstimateDTO{Electricity: energy.EstimateCapacity(energy.Electricity, elec)}

	if raw := q.Get("gas"); raw != "" {
		gas, err := queryDecimal(raw, "gas", true)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		dto.Gas = energy.EstimateCapacity(energy.Gas, gas)
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListTaxYears returns every year with an active tax table.
// GET /api/tariffs/tax
func (h *Handler) ListTaxYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.tariffs.TaxTableYears(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if years == nil {
		years = []int{}
	}
	writeJSON(w, http.StatusOK, TaxYearsDTO{Years: years})
}

// GetTaxTable returns the active tax table of exactly one year.
// GET /api/tariffs/tax/{year}
func (h *Handler) GetTaxTable(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year <= 0 {
		h.writeError(w, r, &energy.ValidationError{Field: "year", Message: "must be a positive integer"})
		return
	}
	table, err := h.tariffs.ActiveTaxTable(r.Context(), year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if table == nil {
		h.writeErrorStatus(w, r, http.StatusNotFound, &energy.TariffUnavailableError{Year: year})
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// ListContracts returns the sample contracts of the tariff file.
// GET /api/contracts
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	contracts := h.reloader.Contracts()
	if contracts == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, contracts)
}

// =============================================================================
// QUOTE HANDLERS
// =============================================================================

// FreezeQuote calculates and stores a quote.
// POST /api/quotes
func (h *Handler) FreezeQuote(w http.ResponseWriter, r *http.Request) {
	var req FreezeQuoteRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in, err := h.factory.InputFromJSON(req.CalculationRequestJSON)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	q, err := h.quotes.Freeze(r.Context(), in, strings.TrimSpace(req.Reference))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/quotes/"+string(q.ID))
	writeJSON(w, http.StatusCreated, q)
}

// ListQuotes returns the most recent quotes.
// GET /api/quotes?limit=50
func (h *Handler) ListQuotes(w http.ResponseWriter, r *http.Request) {
	limit := defaultQuoteLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, r, &energy.ValidationError{Field: "limit", Message: "must be a positive integer"})
			return
		}
		limit = min(n, maxQuoteLimit)
	}

	list, err := h.quotes.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []quote.Summary{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetQuote returns a frozen quote as stored.
// GET /api/quotes/{id}
func (h *Handler) GetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := h.quotes.Get(r.Context(), quoteID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// GetQuoteByReference returns the latest quote filed under a reference.
// GET /api/quotes/by-reference/{ref}
func (h *Handler) GetQuoteByReference(w http.ResponseWriter, r *http.Request) {
	q, err := h.quotes.GetByReference(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// VerifyQuote recomputes a quote from its snapshot.
// GET /api/quotes/{id}/verify
func (h *Handler) VerifyQuote(w http.ResponseWriter, r *http.Request) {
	v, err := h.quotes.Verify(r.Context(), quoteID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if v.Err() != nil {
		h.log.Warn().Str("quote_id", string(v.QuoteID)).
			Bool("hash_valid", v.HashValid).
			Bool("reproducible", v.Reproducible).
			Msg("frozen quote failed verification")
		status = http.StatusConflict
	}
	writeJSON(w, status, v)
}

// ExportQuote renders a frozen quote.
// GET /api/quotes/{id}/export?format=pdf|xlsx
func (h *Handler) ExportQuote(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = quote.FormatPDF
	}

	data, err := h.export(r.Context(), quoteID(r), format)
	if h.exports != nil {
		h.exports.ObserveExport(format, energy.Code(err), time.Since(start))
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", quote.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="quote-%s.%s"`, quoteID(r), format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) export(ctx context.Context, id energy.QuoteID, format string) ([]byte, error) {
	q, err := h.quotes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return quote.Export(q, format)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RepriceQuote compares a frozen quote with current tariffs.
// POST /api/admin/quotes/{id}/reprice
func (h *Handler) RepriceQuote(w http.ResponseWriter, r *http.Request) {
	rep, err := h.quotes.Reprice(r.Context(), quoteID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// InvalidateCache clears the tariff cache, or one year of it.
// POST /api/admin/cache/invalidate[?year=2025]
func (h *Handler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeJSON(w, http.StatusOK, InvalidateResponse{})
		return
	}

	resp := InvalidateResponse{Entries: h.cache.Len()}
	if raw := r.URL.Query().Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year <= 0 {
			h.writeError(w, r, &energy.ValidationError{Field: "year", Message: "must be a positive integer"})
			return
		}
		h.cache.InvalidateYear(year)
		resp.Year = year
	} else {
		h.cache.Invalidate()
	}

	h.log.Info().Int("year", resp.Year).Int("entries", resp.Entries).Msg("tariff cache invalidated")
	writeJSON(w, http.StatusOK, resp)
}

// ReloadTariffs re-applies the tariff file.
// POST /api/admin/tariffs/reload[?replace=true]
func (h *Handler) ReloadTariffs(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeErrorStatus(w, r, http.StatusNotImplemented, errors.New("tariff reload is not configured"))
		return
	}

	reload := h.reloader.Reload
	if r.URL.Query().Get("replace") == "true" {
		reload = h.reloader.Replace
	}
	summary, err := reload(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReloadResponse{Source: h.reloader.Source(), Summary: summary})
}

// Health reports liveness and storage reachability.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.log.Error().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, HealthDTO{Status: "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func quoteID(r *http.Request) energy.QuoteID {
	return energy.QuoteID(chi.URLParam(r, "id"))
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return &energy.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

func queryDecimal(raw, field string, required bool) (decimal.Decimal, error) {
	if raw == "" {
		if required {
			return decimal.Zero, &energy.ValidationError{Field: field, Message: "required"}
		}
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &energy.ValidationError{Field: field, Message: fmt.Sprintf("not a number: %q", raw)}
	}
	if d.IsNegative() {
		return decimal.Zero, &energy.ValidationError{Field: field, Message: "must not be negative"}
	}
	return d, nil
}

// statusFor maps a domain error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case energy.IsClientError(err), errors.Is(err, energy.ErrUnsupportedContractVariant):
		return http.StatusBadRequest
	case energy.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, energy.ErrSnapshotMismatch):
		return http.StatusConflict
	case energy.IsDataCompleteness(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeResult(w http.ResponseWriter, res calculator.Result) {
	status := http.StatusOK
	if !res.Success {
		status = statusFor(errorForCode(res.ErrorCode))
	}
	writeJSON(w, status, res)
}

// errorForCode recovers the sentinel behind a wire code.
func errorForCode(code string) error {
	switch code {
	case energy.CodeValidation:
		return energy.ErrValidation
	case energy.CodeUnsupportedContractVariant:
		return energy.ErrUnsupportedContractVariant
	case energy.CodeTariffUnavailable:
		return energy.ErrTariffUnavailable
	case energy.CodeOperatorUnknown:
		return energy.ErrOperatorUnknown
	case energy.CodeNetworkFeeUnavailable:
		return energy.ErrNetworkFeeUnavailable
	default:
		return errors.New(code)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	h.writeErrorStatus(w, r, statusFor(err), err)
}

func (h *Handler) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	resp := ErrorResponse{ErrorCode: energy.Code(err), Message: err.Error()}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		if resp.ErrorCode == energy.CodeInternal {
			resp.Message = "internal error"
		}
	}
	writeJSON(w, status, resp)
}

// writeAuthError renders auth middleware failures in the same envelope.
func writeAuthError(w http.ResponseWriter, status int, err error) {
	code := "UNAUTHORIZED"
	if status == http.StatusForbidden {
		code = "FORBIDDEN"
	}
	writeJSON(w, status, ErrorResponse{ErrorCode: code, Message: err.Error()})
}
