package energy

import "github.com/shopspring/decimal"

// =============================================================================
// CALCULATION INPUT
// =============================================================================

// CalculationInput is everything a caller supplies for one calculation.
type CalculationInput struct {
	Consumption ConsumptionProfile
	Address     Address
	Contract    ContractTariff
	Year        int

	// Index is required for dynamic contracts and ignored otherwise.
	Index *MarketIndex

	// NegotiatedFees override the default grootverbruik network fee estimate.
	NegotiatedFees NegotiatedFees
}

// NegotiatedFees are caller-supplied annual network fees for grootverbruik
// connections. Nil means "use the configured default".
type NegotiatedFees struct {
	Electricity *decimal.Decimal
	Gas         *decimal.Decimal
}

func (n NegotiatedFees) For(c Commodity) *decimal.Decimal {
	if c == Gas {
		return n.Gas
	}
	return n.Electricity
}

// =============================================================================
// TARIFF SNAPSHOT - Every tariff row one calculation used
// =============================================================================

// ResolvedNetworkFee is the outcome of resolving one commodity's fee.
type ResolvedNetworkFee struct {
	Commodity  Commodity       `json:"commodity"`
	Connected  bool            `json:"connected"`
	Operator   Operator        `json:"operator"`
	Capacity   CapacityCode    `json:"capacity"`
	Annual     decimal.Decimal `json:"annual"`
	IsEstimate bool            `json:"is_estimate"`
}

// TariffSnapshot pins every external rate a breakdown depends on. Computing
// the same input against the same snapshot always yields the same breakdown,
// regardless of later edits to the tariff tables.
type TariffSnapshot struct {
	RequestedYear int                `json:"requested_year"`
	TaxTable      TaxTable           `json:"tax_table"`
	Electricity   ResolvedNetworkFee `json:"electricity"`
	Gas           ResolvedNetworkFee `json:"gas"`
	Index         *MarketIndex       `json:"index,omitempty"`
}

func (s TariffSnapshot) NetworkFee(c Commodity) ResolvedNetworkFee {
	if c == Gas {
		return s.Gas
	}
	return s.Electricity
}

// =============================================================================
// COST BREAKDOWN - The only structure exposed across the system boundary
// =============================================================================

type SupplierCost struct {
	Electricity    decimal.Decimal `json:"electricity"`
	Gas            decimal.Decimal `json:"gas"`
	StandingCharge decimal.Decimal `json:"standingCharge"`
	FeedInCredit   decimal.Decimal `json:"feedInCredit"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	// NetExport is set when the feed-in credit exceeds the electricity cost.
	NetExport bool `json:"netExport"`
}

// BracketCharge is one bracket's share of a commodity's energy tax.
type BracketCharge struct {
	Commodity Commodity        `json:"commodity"`
	From      decimal.Decimal  `json:"from"`
	UpTo      *decimal.Decimal `json:"upTo,omitempty"`
	Quantity  decimal.Decimal  `json:"quantity"`
	Rate      decimal.Decimal  `json:"rate"`
	Amount    decimal.Decimal  `json:"amount"`
}

type TaxCost struct {
	Electricity decimal.Decimal `json:"electricity"`
	Gas         decimal.Decimal `json:"gas"`
	Rebate      decimal.Decimal `json:"rebate"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Year        int             `json:"year"`
	Brackets    []BracketCharge `json:"brackets,omitempty"`
}

type NetworkFeeCost struct {
	Electricity  decimal.Decimal `json:"electricity"`
	Gas          decimal.Decimal `json:"gas"`
	OperatorName string          `json:"operatorName"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	IsEstimate   bool            `json:"isEstimate"`
}

type Totals struct {
	AnnualExclVAT  decimal.Decimal `json:"annualExclVat"`
	AnnualInclVAT  decimal.Decimal `json:"annualInclVat"`
	MonthlyExclVAT decimal.Decimal `json:"monthlyExclVat"`
	MonthlyInclVAT decimal.Decimal `json:"monthlyInclVat"`
	VATPercent     decimal.Decimal `json:"vatPercent"`
	VAT            decimal.Decimal `json:"vat"`
}

// CostBreakdown is a value object. Once stored it is never recomputed
// against different tariff data.
type CostBreakdown struct {
	ContractType ContractType   `json:"contractType"`
	Supplier     SupplierCost   `json:"supplier"`
	Tax          TaxCost        `json:"tax"`
	NetworkFee   NetworkFeeCost `json:"networkFee"`
	Totals       Totals         `json:"totals"`
}

// Equal compares every figure numerically.
func (b CostBreakdown) Equal(o CostBreakdown) bool {
	pairs := [][2]decimal.Decimal{
		{b.Supplier.Electricity, o.Supplier.Electricity},
		{b.Supplier.Gas, o.Supplier.Gas},
		{b.Supplier.StandingCharge, o.Supplier.StandingCharge},
		{b.Supplier.Subtotal, o.Supplier.Subtotal},
		{b.Tax.Electricity, o.Tax.Electricity},
		{b.Tax.Gas, o.Tax.Gas},
		{b.Tax.Rebate, o.Tax.Rebate},
		{b.Tax.Subtotal, o.Tax.Subtotal},
		{b.NetworkFee.Electricity, o.NetworkFee.Electricity},
		{b.NetworkFee.Gas, o.NetworkFee.Gas},
		{b.NetworkFee.Subtotal, o.NetworkFee.Subtotal},
		{b.Totals.AnnualExclVAT, o.Totals.AnnualExclVAT},
		{b.Totals.AnnualInclVAT, o.Totals.AnnualInclVAT},
		{b.Totals.MonthlyExclVAT, o.Totals.MonthlyExclVAT},
		{b.Totals.MonthlyInclVAT, o.Totals.MonthlyInclVAT},
	}
	for _, p := range pairs {
		if !p[0].Equal(p[1]) {
			return false
		}
	}
	return b.ContractType == o.ContractType &&
		b.NetworkFee.IsEstimate == o.NetworkFee.IsEstimate &&
		b.NetworkFee.OperatorName == o.NetworkFee.OperatorName
}
