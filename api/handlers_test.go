/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Calculation envelope and status mapping
- Operator, capacity and tax table lookups
- Quote freeze, verify and export
- Admin routes behind JWT
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/energy-engine/auth"
	"github.com/warp/energy-engine/calculator"
	"github.com/warp/energy-engine/energy"
	"github.com/warp/energy-engine/metrics"
	"github.com/warp/energy-engine/quote"
	"github.com/warp/energy-engine/store/sqlite"
	"github.com/warp/energy-engine/tariffcache"
)

const testSecret = "test-secret"

type testServer struct {
	router   http.Handler
	store    *sqlite.Store
	cache    *tariffcache.Repository
	reloader *TariffReloader
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	cache := tariffcache.New(store, tariffcache.WithObserver(rec))

	reloader := NewTariffReloader(store, cache, "", zerolog.Nop())
	reloader.Observer = rec
	_, err = reloader.Reload(ctx)
	require.NoError(t, err)

	clock := func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	engine := calculator.NewEngine(cache, calculator.WithClock(clock), calculator.WithObserver(rec))
	quotes := quote.NewService(engine, store, quote.WithClock(clock), quote.WithObserver(rec))

	h := NewHandler(Deps{
		Engine:   engine,
		Tariffs:  cache,
		Quotes:   quotes,
		Cache:    cache,
		Reloader: reloader,
		Exports:  rec,
		Pinger:   store,
	})
	router := NewRouter(h, RouterConfig{
		JWTSecret: testSecret,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return &testServer{router: router, store: store, cache: cache, reloader: reloader}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.router.ServeHTTP(resp, req)
	return resp
}

func adminToken(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.Sign([]byte(testSecret), "ops", role, time.Hour)
	require.NoError(t, err)
	return token
}

func decode[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &v), resp.Body.String())
	return v
}

// dualRequest is a dual-meter household with gas in Amsterdam on the fixed
// sample rates.
func dualRequest(year int) map[string]any {
	return map[string]any{
		"consumption": map[string]any{
			"electricity_normal":   "1600",
			"electricity_off_peak": "1200",
			"gas":                  "1200",
		},
		"address": map[string]any{"postcode": "1012 ab"},
		"contract": map[string]any{
			"contract_type":     "fixed",
			"electricity_day":   "0.285",
			"electricity_night": "0.265",
			"gas":               "1.245",
			"standing_charge":   map[string]any{"electricity_monthly": "6.25", "gas_monthly": "6.25"},
		},
		"year": year,
	}
}

// =============================================================================
// CALCULATE
// =============================================================================

func TestCalculate_Success(t *testing.T) {
	// GIVEN: A seeded server
	s := newTestServer(t)

	// WHEN: A valid request is posted
	resp := s.do(t, http.MethodPost, "/api/calculate", dualRequest(2025), "")

	// THEN: The envelope carries a breakdown
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	res := decode[calculator.Result](t, resp)
	assert.True(t, res.Success)
	require.NotNil(t, res.Breakdown)
	assert.Equal(t, energy.ContractFixed, res.Breakdown.ContractType)
	assert.Equal(t, "Liander", res.Breakdown.NetworkFee.OperatorName)
	assert.True(t, res.Breakdown.NetworkFee.Electricity.Equal(energy.MustParseDecimal("465")))
	assert.True(t, res.Breakdown.Totals.AnnualInclVAT.IsPositive())
	assert.Empty(t, res.ErrorCode)
}

func TestCalculate_StatusMapping(t *testing.T) {
	s := newTestServer(t)

	badPostcode := dualRequest(2025)
	badPostcode["address"] = map[string]any{"postcode": "12345"}

	unsupported := dualRequest(2025)
	unsupported["contract"] = map[string]any{"contract_type": "prepaid"}

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"malformed json", `{"consumption":`, http.StatusBadRequest, energy.CodeValidation},
		{"bad postcode", badPostcode, http.StatusBadRequest, energy.CodeValidation},
		{"unsupported contract", unsupported, http.StatusBadRequest, energy.CodeUnsupportedContractVariant},
		{"no tax table", dualRequest(2019), http.StatusUnprocessableEntity, energy.CodeTariffUnavailable},
		{"no fee rows for 2024", dualRequest(2024), http.StatusUnprocessableEntity, energy.CodeNetworkFeeUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, "/api/calculate", tt.body, "")
			assert.Equal(t, tt.status, resp.Code, resp.Body.String())
			res := decode[calculator.Result](t, resp)
			assert.False(t, res.Success)
			assert.Nil(t, res.Breakdown)
			assert.Equal(t, tt.code, res.ErrorCode)
			assert.NotEmpty(t, res.Message)
		})
	}
}

// =============================================================================
// LOOKUPS
// =============================================================================

func TestLookupOperator(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/operators?postcode=7511%20ab", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	dto := decode[OperatorLookupDTO](t, resp)
	assert.Equal(t, "7511AB", dto.Postcode)
	require.NotNil(t, dto.Electricity)
	require.NotNil(t, dto.Gas)
	assert.Equal(t, energy.OperatorID("enexis"), dto.Electricity.ID)
	assert.Equal(t, energy.OperatorID("liander"), dto.Gas.ID)

	resp = s.do(t, http.MethodGet, "/api/operators?postcode=7511AB&commodity=gas", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	dto = decode[OperatorLookupDTO](t, resp)
	assert.Nil(t, dto.Electricity)
	assert.Equal(t, energy.OperatorID("liander"), dto.Gas.ID)

	resp = s.do(t, http.MethodGet, "/api/operators?postcode=0999ZZ", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, energy.CodeOperatorUnknown, decode[ErrorResponse](t, resp).ErrorCode)

	resp = s.do(t, http.MethodGet, "/api/operators?postcode=abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = s.do(t, http.MethodGet, "/api/operators?postcode=7511AB&commodity=water", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestEstimateCapacity(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/capacity/estimate?electricity=3500&gas=1200", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	dto := decode[CapacityEstimateDTO](t, resp)
	assert.Equal(t, energy.Capacity3x25A, dto.Electricity)
	assert.Equal(t, energy.CapacityG6, dto.Gas)

	resp = s.do(t, http.MethodGet, "/api/capacity/estimate?electricity=20000", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	dto = decode[CapacityEstimateDTO](t, resp)
	assert.Equal(t, energy.Capacity3x50A, dto.Electricity)
	assert.Empty(t, dto.Gas)

	for _, q := range []string{"", "?electricity=lots", "?electricity=-1", "?electricity=10&gas=-5"} {
		resp = s.do(t, http.MethodGet, "/api/capacity/estimate"+q, nil, "")
		assert.Equal(t, http.StatusBadRequest, resp.Code, q)
	}
}

func TestTaxTables(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/tariffs/tax", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []int{2024, 2025}, decode[TaxYearsDTO](t, resp).Years)

	resp = s.do(t, http.MethodGet, "/api/tariffs/tax/2025", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	table := decode[energy.TaxTable](t, resp)
	assert.Equal(t, 2025, table.Year)
	assert.True(t, table.VATPercent.Equal(energy.MustParseDecimal("21")))

	resp = s.do(t, http.MethodGet, "/api/tariffs/tax/2031", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, energy.CodeTariffUnavailable, decode[ErrorResponse](t, resp).ErrorCode)

	resp = s.do(t, http.MethodGet, "/api/tariffs/tax/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestListContracts(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/contracts", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	var contracts []map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &contracts))
	require.Len(t, contracts, 3)
	assert.Equal(t, "fixed-1y", contracts[0]["id"])
}

// =============================================================================
// QUOTES
// =============================================================================

func TestQuoteLifecycle(t *testing.T) {
	// GIVEN: A frozen quote
	s := newTestServer(t)
	body := dualRequest(0)
	body["reference"] = "APP-42"

	resp := s.do(t, http.MethodPost, "/api/quotes", body, "")
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	q := decode[quote.Quote](t, resp)
	assert.Equal(t, "/api/quotes/"+string(q.ID), resp.Header().Get("Location"))
	assert.Equal(t, 2025, q.Year)
	assert.Equal(t, "APP-42", q.Reference)

	// WHEN/THEN: It can be read back by id and reference
	resp = s.do(t, http.MethodGet, "/api/quotes/"+string(q.ID), nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	got := decode[quote.Quote](t, resp)
	assert.True(t, got.Breakdown.Equal(q.Breakdown))
	assert.Equal(t, q.SnapshotHash, got.SnapshotHash)

	resp = s.do(t, http.MethodGet, "/api/quotes/by-reference/APP-42", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, q.ID, decode[quote.Quote](t, resp).ID)

	resp = s.do(t, http.MethodGet, "/api/quotes?limit=5", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	list := decode[[]quote.Summary](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, q.ID, list[0].ID)

	// AND: It verifies
	resp = s.do(t, http.MethodGet, "/api/quotes/"+string(q.ID)+"/verify", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	v := decode[quote.Verification](t, resp)
	assert.True(t, v.HashValid)
	assert.True(t, v.Reproducible)
}

func TestQuoteErrors(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/api/quotes/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, energy.CodeQuoteNotFound, decode[ErrorResponse](t, resp).ErrorCode)

	resp = s.do(t, http.MethodGet, "/api/quotes/nope/verify", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = s.do(t, http.MethodGet, "/api/quotes?limit=0", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	bad := dualRequest(2025)
	bad["consumption"] = map[string]any{"electricity_normal": "-5"}
	resp = s.do(t, http.MethodPost, "/api/quotes", bad, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = s.do(t, http.MethodPost, "/api/quotes", dualRequest(2024), "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestVerifyReportsTampering(t *testing.T) {
	// GIVEN: A stored quote whose breakdown was edited afterwards
	s := newTestServer(t)
	ctx := context.Background()
	resp := s.do(t, http.MethodPost, "/api/quotes", dualRequest(2025), "")
	require.Equal(t, http.StatusCreated, resp.Code)
	q := decode[quote.Quote](t, resp)

	rec, err := s.store.GetQuote(ctx, q.ID)
	require.NoError(t, err)
	tampered := *rec
	tampered.ID = "tampered"
	tampered.BreakdownJSON = bytes.Replace(rec.BreakdownJSON, []byte(`"contractType":"fixed"`), []byte(`"contractType":"custom"`), 1)
	require.NoError(t, s.store.SaveQuote(ctx, tampered))

	// WHEN: It is verified
	resp = s.do(t, http.MethodGet, "/api/quotes/tampered/verify", nil, "")

	// THEN: 409 with the verification body
	assert.Equal(t, http.StatusConflict, resp.Code)
	v := decode[quote.Verification](t, resp)
	assert.False(t, v.HashValid)
}

func TestExportQuote(t *testing.T) {
	s := newTestServer(t)
	resp := s.do(t, http.MethodPost, "/api/quotes", dualRequest(2025), "")
	require.Equal(t, http.StatusCreated, resp.Code)
	q := decode[quote.Quote](t, resp)
	base := "/api/quotes/" + string(q.ID) + "/export"

	resp = s.do(t, http.MethodGet, base, nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/pdf", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Header().Get("Content-Disposition"), ".pdf")
	assert.True(t, bytes.HasPrefix(resp.Body.Bytes(), []byte("%PDF")))

	resp = s.do(t, http.MethodGet, base+"?format=XLSX", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, quote.ContentType(quote.FormatXLSX), resp.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(resp.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	resp = s.do(t, http.MethodGet, base+"?format=docx", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = s.do(t, http.MethodGet, "/api/quotes/nope/export", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAdminRequiresAdminToken(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/api/admin/cache/invalidate", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "UNAUTHORIZED", decode[ErrorResponse](t, resp).ErrorCode)

	resp = s.do(t, http.MethodPost, "/api/admin/cache/invalidate", nil, adminToken(t, "viewer"))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = s.do(t, http.MethodPost, "/api/admin/cache/invalidate", nil, adminToken(t, auth.RoleAdmin))
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAdminRoutesAbsentWithoutSecret(t *testing.T) {
	s := newTestServer(t)
	h := NewHandler(Deps{Cache: s.cache})
	router := NewRouter(h, RouterConfig{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/cache/invalidate", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAdminInvalidateCache(t *testing.T) {
	s := newTestServer(t)
	token := adminToken(t, auth.RoleAdmin)

	// GIVEN: A warm cache
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/calculate", dualRequest(2025), "").Code)
	require.Positive(t, s.cache.Len())

	// WHEN: One year is invalidated
	resp := s.do(t, http.MethodPost, "/api/admin/cache/invalidate?year=2025", nil, token)
	require.Equal(t, http.StatusOK, resp.Code)
	out := decode[InvalidateResponse](t, resp)
	assert.Equal(t, 2025, out.Year)
	assert.Positive(t, out.Entries)

	// THEN: Operators stay cached, the year's rows are gone
	assert.Less(t, s.cache.Len(), out.Entries)

	resp = s.do(t, http.MethodPost, "/api/admin/cache/invalidate", nil, token)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Zero(t, s.cache.Len())

	resp = s.do(t, http.MethodPost, "/api/admin/cache/invalidate?year=x", nil, token)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminRepriceQuote(t *testing.T) {
	// GIVEN: A quote frozen before a network fee increase
	s := newTestServer(t)
	ctx := context.Background()
	resp := s.do(t, http.MethodPost, "/api/quotes", dualRequest(2025), "")
	require.Equal(t, http.StatusCreated, resp.Code)
	q := decode[quote.Quote](t, resp)

	require.NoError(t, s.store.SaveNetworkFee(ctx, energy.NetworkFeeRow{
		OperatorID: "liander",
		Year:       2025,
		Commodity:  energy.Electricity,
		Capacity:   energy.Capacity3x25A,
		Amount:     energy.MustParseDecimal("540.05"),
		Period:     energy.FeeAnnual,
	}))
	s.cache.Invalidate()

	// WHEN: An admin reprices it
	resp = s.do(t, http.MethodPost, "/api/admin/quotes/"+string(q.ID)+"/reprice", nil, adminToken(t, auth.RoleAdmin))

	// THEN: The delta shows, the frozen quote does not move
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	rep := decode[quote.Repricing](t, resp)
	assert.True(t, rep.Changed)
	assert.True(t, rep.Delta.AnnualExclVAT.Equal(energy.MustParseDecimal("75.05")), rep.Delta.AnnualExclVAT.String())

	resp = s.do(t, http.MethodGet, "/api/quotes/"+string(q.ID), nil, "")
	assert.True(t, decode[quote.Quote](t, resp).Breakdown.Equal(q.Breakdown))
}

func TestAdminReloadTariffs(t *testing.T) {
	s := newTestServer(t)
	token := adminToken(t, auth.RoleAdmin)
	ctx := context.Background()

	// An extra operator that is not in the tariff file
	require.NoError(t, s.store.SaveOperator(ctx, energy.Operator{ID: "coteq", Name: "Coteq"}))

	resp := s.do(t, http.MethodPost, "/api/admin/tariffs/reload", nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	out := decode[ReloadResponse](t, resp)
	assert.Equal(t, "embedded", out.Source)
	assert.Equal(t, 42, out.Summary.NetworkFees)

	ops, err := s.store.ListOperators(ctx)
	require.NoError(t, err)
	assert.Len(t, ops, 4, "reload upserts and keeps extra rows")

	resp = s.do(t, http.MethodPost, "/api/admin/tariffs/reload?replace=true", nil, token)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	ops, err = s.store.ListOperators(ctx)
	require.NoError(t, err)
	assert.Len(t, ops, 3, "replace drops rows missing from the file")
}

// =============================================================================
// HEALTH / METRICS
// =============================================================================

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ok", decode[HealthDTO](t, resp).Status)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/calculate", dualRequest(2025), "").Code)

	resp = s.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.True(t, strings.Contains(body, `energy_engine_calculations_total{contract_type="fixed",result="success"} 1`), body)
	assert.Contains(t, body, "energy_engine_tariff_cache_lookups_total")
	assert.Contains(t, body, `energy_engine_tariff_reloads_total{result="success"} 1`)
}
