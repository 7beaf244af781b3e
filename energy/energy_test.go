package energy_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/energy-engine/energy"
)

func TestNormalizePostcode(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1012AB", "1012AB", false},
		{"1012 ab", "1012AB", false},
		{"  3511 cd ", "3511CD", false},
		{"101AB", "", true},
		{"1012A", "", true},
		{"ABCD12", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := energy.NormalizePostcode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			assert.True(t, errors.Is(err, energy.ErrValidation))
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseCapacityCode(t *testing.T) {
	tests := []struct {
		commodity energy.Commodity
		in        string
		want      energy.CapacityCode
	}{
		{energy.Electricity, "3x25A", energy.Capacity3x25A},
		{energy.Electricity, "3X25A", energy.Capacity3x25A},
		{energy.Electricity, "3×25a", energy.Capacity3x25A},
		{energy.Electricity, ">3×80A", energy.CapacityOver80},
		{energy.Gas, "g6", energy.CapacityG6},
		{energy.Gas, ">G25", energy.CapacityOverG25},
	}
	for _, tt := range tests {
		got, err := energy.ParseCapacityCode(tt.commodity, tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := energy.ParseCapacityCode(energy.Gas, "3x25A")
	assert.True(t, energy.IsClientError(err), "electricity code is not a gas code")
}

func TestCapacityCode_Grootverbruik(t *testing.T) {
	assert.True(t, energy.CapacityOver80.IsGrootverbruik())
	assert.True(t, energy.CapacityOverG25.IsGrootverbruik())
	assert.False(t, energy.Capacity3x80A.IsGrootverbruik())
	assert.False(t, energy.CapacityG25.IsGrootverbruik())

	assert.Less(t, energy.Capacity3x25A.Rank(energy.Electricity), energy.CapacityOver80.Rank(energy.Electricity))
	assert.Equal(t, -1, energy.CapacityG6.Rank(energy.Electricity))
}

func TestEstimateCapacity(t *testing.T) {
	tests := []struct {
		commodity energy.Commodity
		usage     string
		want      energy.CapacityCode
	}{
		{energy.Electricity, "2500", energy.Capacity3x25A},
		{energy.Electricity, "5000", energy.Capacity3x25A},
		{energy.Electricity, "5001", energy.Capacity3x35A},
		{energy.Electricity, "30000", energy.Capacity3x50A},
		{energy.Electricity, "45000", energy.Capacity3x63A},
		{energy.Electricity, "90000", energy.Capacity3x80A},
		{energy.Gas, "0", energy.CapacityG6},
		{energy.Gas, "1200", energy.CapacityG6},
		{energy.Gas, "8000", energy.CapacityG10},
		{energy.Gas, "20000", energy.CapacityG16},
		{energy.Gas, "40000", energy.CapacityG25},
	}
	for _, tt := range tests {
		got := energy.EstimateCapacity(tt.commodity, energy.MustParseDecimal(tt.usage))
		assert.Equal(t, tt.want, got, "%s %s", tt.commodity, tt.usage)
	}
}

func TestMustParseDecimal(t *testing.T) {
	assert.Equal(t, "12.5", energy.MustParseDecimal("12.50").String())
	assert.Panics(t, func() { energy.MustParseDecimal("12,50") })
	assert.Panics(t, func() { energy.MustParseDecimal("") })
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct{ in, want string }{
		{"1.005", "1.01"},
		{"1.004", "1"},
		{"2.675", "2.68"},
		{"-1.005", "-1"},
		{"-1.006", "-1.01"},
		{"387.666666", "387.67"},
	}
	for _, tt := range tests {
		got := energy.RoundMoney(energy.MustParseDecimal(tt.in))
		assert.True(t, got.Equal(energy.MustParseDecimal(tt.want)), "%s → %s, want %s", tt.in, got, tt.want)
	}

	assert.Equal(t, "0.10881", energy.RoundRate(energy.MustParseDecimal("0.108805")).String())
}

func TestTaxTable_Validate(t *testing.T) {
	valid := energy.TaxTable{
		Year: 2025,
		Electricity: energy.CommodityTax{Brackets: []energy.TaxBracket{
			{UpTo: energy.DecimalPtr(energy.MustParseDecimal("2900")), Rate: energy.MustParseDecimal("0.1")},
			{Rate: energy.MustParseDecimal("0.05")},
		}},
		Gas:        energy.CommodityTax{Brackets: []energy.TaxBracket{{Rate: energy.MustParseDecimal("0.5")}}},
		VATPercent: energy.MustParseDecimal("21"),
	}
	require.NoError(t, valid.Validate())

	descending := valid
	descending.Electricity = energy.CommodityTax{Brackets: []energy.TaxBracket{
		{UpTo: energy.DecimalPtr(energy.MustParseDecimal("10000")), Rate: energy.MustParseDecimal("0.1")},
		{UpTo: energy.DecimalPtr(energy.MustParseDecimal("2900")), Rate: energy.MustParseDecimal("0.1")},
		{Rate: energy.MustParseDecimal("0.05")},
	}}
	assert.Error(t, descending.Validate())

	noGas := valid
	noGas.Gas = energy.CommodityTax{}
	assert.Error(t, noGas.Validate())
}

func TestConsumptionProfile(t *testing.T) {
	p := energy.ConsumptionProfile{ElectricitySingle: energy.MustParseDecimal("4000")}
	assert.Equal(t, energy.MeterSingle, p.MeterType(), "inferred from single figure")
	assert.True(t, p.ElectricityTotal().Equal(energy.MustParseDecimal("4000")))
	assert.False(t, p.HasGas())

	bad := energy.ConsumptionProfile{
		Meter:             energy.MeterSingle,
		ElectricityNormal: energy.MustParseDecimal("1000"),
	}
	assert.True(t, energy.IsClientError(bad.Validate()))
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, energy.CodeValidation, energy.Code(&energy.ValidationError{Field: "x"}))
	assert.Equal(t, energy.CodeTariffUnavailable, energy.Code(&energy.TariffUnavailableError{Year: 2020}))
	assert.Equal(t, energy.CodeInternal, energy.Code(errors.New("boom")))
	assert.Equal(t, "", energy.Code(nil))
	assert.True(t, energy.IsDataCompleteness(&energy.OperatorUnknownError{Postcode: "1012AB"}))
	assert.False(t, energy.IsDataCompleteness(&energy.ValidationError{}))
}
