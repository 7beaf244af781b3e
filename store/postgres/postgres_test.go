package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/energy-engine/calculator"
	"github.com/warp/energy-engine/energy"
	"github.com/warp/energy-engine/tariffdata"
)

func connect(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	s, err := Connect(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTariffRoundTrip_Postgres(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	seed, err := tariffdata.Default()
	require.NoError(t, err)
	_, err = tariffdata.Apply(ctx, s, seed)
	require.NoError(t, err)

	table, err := s.ActiveTaxTable(ctx, 2025)
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.NoError(t, table.Validate())
	assert.True(t, table.ElectricityRebate.Equal(energy.MustParseDecimal("524.95")))

	op, err := s.OperatorForPostcode(ctx, "3011AB", energy.Gas)
	require.NoError(t, err)
	require.NotNil(t, op)
	assert.Equal(t, energy.OperatorID("stedin"), op.ID)

	row, err := s.NetworkFee(ctx, "stedin", 2025, energy.Electricity, energy.Capacity3x25A)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.True(t, row.Annual().Equal(energy.MustParseDecimal("469.2")))

	missing, err := s.NetworkFee(ctx, "stedin", 1990, energy.Electricity, energy.Capacity3x25A)
	require.NoError(t, err)
	assert.Nil(t, missing)

	contract, _, err := seed.Contract("fixed-1y")
	require.NoError(t, err)
	gas := energy.MustParseDecimal("1200")
	_, _, err = calculator.NewEngine(s).Calculate(ctx, energy.CalculationInput{
		Consumption: energy.ConsumptionProfile{ElectricitySingle: energy.MustParseDecimal("2800"), Gas: &gas},
		Address:     energy.Address{Postcode: "3011AB"},
		Contract:    contract,
		Year:        2025,
	})
	assert.NoError(t, err)
}

func TestQuotes_Postgres(t *testing.T) {
	s := connect(t)
	ctx := context.Background()

	id := energy.QuoteID(fmt.Sprintf("it-%d", time.Now().UnixNano()))
	q := energy.QuoteRecord{
		ID:            id,
		Reference:     string(id) + "-ref",
		ContractType:  energy.ContractDynamic,
		Year:          2025,
		InputJSON:     []byte(`{"year": 2025}`),
		SnapshotJSON:  []byte(`{"requested_year": 2025}`),
		BreakdownJSON: []byte(`{"contractType": "dynamic"}`),
		SnapshotHash:  "deadbeef",
		AnnualInclVAT: "1234.50",
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, s.SaveQuote(ctx, q))
	assert.Error(t, s.SaveQuote(ctx, q), "quotes are append-only")

	got, err := s.GetQuote(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "1234.50", got.AnnualInclVAT)
	assert.JSONEq(t, string(q.SnapshotJSON), string(got.SnapshotJSON))
	assert.True(t, got.CreatedAt.Equal(q.CreatedAt))

	byRef, err := s.GetQuoteByReference(ctx, q.Reference)
	require.NoError(t, err)
	require.NotNil(t, byRef)
	assert.Equal(t, id, byRef.ID)
}
