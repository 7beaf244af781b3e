/*
scenarios.go - Demo consumption profiles for testing and demonstrations

PURPOSE:
	Provides pre-built households and businesses that can be priced against
	any sample contract of the tariff file. Each scenario demonstrates one
	feature of the engine.

AVAILABLE SCENARIOS:

	apartment:        Single meter, small gas usage, Amsterdam
	family-dual:      Dual meter with gas, Rotterdam
	solar-home:       Single meter with feed-in larger than half the usage
	all-electric:     Dual meter, no gas connection
	bakery:           Grootverbruik electricity and gas, estimated network fees
	new-build:        No capacity codes given; both are estimated from usage

HOW SCENARIOS WORK:
 1. Pick a scenario and a sample contract id
 2. The scenario request gets the contract and a demo market index
 3. The engine calculates as for POST /api/calculate

USAGE VIA API:

	GET  /api/scenarios
	POST /api/scenarios/{id}/calculate
	{"contract_id": "dynamic", "year": 2025}

ADDING NEW SCENARIOS:
 1. Add an entry to 'scenarios' with ID, name, description and request
 2. Nothing else: every scenario works with every contract

SEE ALSO:
  - handlers.go: Calculate handler
  - tariffdata/default.yaml: Sample contracts and postcode ranges
*/
package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/energy-engine/calculator"
	"github.com/warp/energy-engine/energy"
	"github.com/warp/energy-engine/factory"
)

// DefaultScenarioContract is priced when a request names no contract.
const DefaultScenarioContract = "fixed-1y"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

func dec(s string) decimal.Decimal { return energy.MustParseDecimal(s) }

func decPtr(s string) *decimal.Decimal { return energy.DecimalPtr(dec(s)) }

var scenarios = []ScenarioDTO{
	{
		ID:          "apartment",
		Name:        "Apartment",
		Description: "Single meter, 1800 kWh and 600 m3 gas in Amsterdam",
		Request: factory.CalculationRequestJSON{
			Consumption: factory.ConsumptionJSON{
				MeterType:           string(energy.MeterSingle),
				ElectricitySingle:   dec("1800"),
				Gas:                 decPtr("600"),
				ElectricityCapacity: string(energy.Capacity1x35A),
				GasCapacity:         string(energy.CapacityG4),
			},
			Address: factory.AddressJSON{Postcode: "1012 AB", HouseNumber: "12"},
		},
	},
	{
		ID:          "family-dual",
		Name:        "Family, dual meter",
		Description: "2000 kWh normal, 1500 kWh off-peak and 1200 m3 gas in Rotterdam",
		Request: factory.CalculationRequestJSON{
			Consumption: factory.ConsumptionJSON{
				MeterType:           string(energy.MeterDual),
				ElectricityNormal:   dec("2000"),
				ElectricityOffPeak:  dec("1500"),
				Gas:                 decPtr("1200"),
				ElectricityCapacity: string(energy.Capacity3x25A),
				GasCapacity:         string(energy.CapacityG6),
			},
			Address: factory.AddressJSON{Postcode: "3011 AB", HouseNumber: "4"},
		},
	},
	{
		ID:          "solar-home",
		Name:        "Solar home",
		Description: "3500 kWh usage and 2800 kWh feed-in, 900 m3 gas in Eindhoven",
		Request: factory.CalculationRequestJSON{
			Consumption: factory.ConsumptionJSON{
				MeterType:           string(energy.MeterSingle),
				ElectricitySingle:   dec("3500"),
				FeedIn:              decPtr("2800"),
				Gas:                 decPtr("900"),
				ElectricityCapacity: string(energy.Capacity3x25A),
				GasCapacity:         string(energy.CapacityG6),
			},
			Address: factory.AddressJSON{Postcode: "5611 AB", HouseNumber: "88"},
		},
	},
	{
		ID:          "all-electric",
		Name:        "All-electric",
		Description: "Heat pump household without a gas connection in Enschede",
		Request: factory.CalculationRequestJSON{
			Consumption: factory.ConsumptionJSON{
				MeterType:           string(energy.MeterDual),
				ElectricityNormal:   dec("3200"),
				ElectricityOffPeak:  dec("2400"),
				ElectricityCapacity: string(energy.Capacity3x35A),
			},
			Address: factory.AddressJSON{Postcode: "7511 AB", HouseNumber: "3"},
		},
	},
	{
		ID:          "bakery",
		Name:        "Bakery (grootverbruik)",
		Description: "60000 kWh and 30000 m3 on large connections; network fees are estimates",
		Request: factory.CalculationRequestJSON{
			Consumption: factory.ConsumptionJSON{
				MeterType:           string(energy.MeterDual),
				ElectricityNormal:   dec("42000"),
				ElectricityOffPeak:  dec("18000"),
				Gas:                 decPtr("30000"),
				ElectricityCapacity: string(energy.CapacityOver80),
				GasCapacity:         string(energy.CapacityOverG25),
			},
			Address: factory.AddressJSON{Postcode: "2511 AB", HouseNumber: "1"},
		},
	},
	{
		ID:          "new-build",
		Name:        "New build",
		Description: "No capacity codes known yet; both are estimated from usage",
		Request: factory.CalculationRequestJSON{
			Consumption: factory.ConsumptionJSON{
				MeterType:         string(energy.MeterSingle),
				ElectricitySingle: dec("2600"),
				Gas:               decPtr("0"),
			},
			Address: factory.AddressJSON{Postcode: "8011 AB", HouseNumber: "21"},
		},
	},
}

// demoIndex is the market index dynamic contracts are priced on in scenarios.
var demoIndex = energy.MarketIndex{
	ElectricityDay:   dec("0.11"),
	ElectricityNight: decPtr("0.08"),
	FeedIn:           decPtr("0.06"),
	Gas:              dec("0.45"),
}

func findScenario(id string) (ScenarioDTO, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return ScenarioDTO{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns all demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// CalculateScenario prices a scenario on a sample contract.
// POST /api/scenarios/{id}/calculate
func (h *Handler) CalculateScenario(w http.ResponseWriter, r *http.Request) {
	sc, ok := findScenario(chi.URLParam(r, "id"))
	if !ok {
		h.writeErrorStatus(w, r, http.StatusNotFound,
			&energy.ValidationError{Field: "scenario", Message: fmt.Sprintf("unknown scenario %q", chi.URLParam(r, "id"))})
		return
	}

	var req ScenarioCalculateRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeResult(w, calculator.NewResult(energy.CostBreakdown{}, err))
			return
		}
	}
	if req.ContractID == "" {
		req.ContractID = DefaultScenarioContract
	}

	in, err := h.scenarioInput(sc, req)
	if err != nil {
		writeResult(w, calculator.NewResult(energy.CostBreakdown{}, err))
		return
	}
	writeResult(w, h.engine.Evaluate(r.Context(), in))
}

func (h *Handler) scenarioInput(sc ScenarioDTO, req ScenarioCalculateRequest) (energy.CalculationInput, error) {
	if h.reloader == nil {
		return energy.CalculationInput{}, &energy.ValidationError{Field: "contract_id", Message: "no sample contracts loaded"}
	}
	contract, ok, err := h.reloader.Contract(req.ContractID)
	if err != nil {
		return energy.CalculationInput{}, err
	}
	if !ok {
		return energy.CalculationInput{}, &energy.ValidationError{
			Field:   "contract_id",
			Message: fmt.Sprintf("unknown sample contract %q", req.ContractID),
		}
	}

	cj, err := h.factory.ToJSON(contract)
	if err != nil {
		return energy.CalculationInput{}, err
	}
	rj := sc.Request
	rj.Contract = cj
	rj.Year = req.Year
	if contract.Kind() == energy.ContractDynamic {
		idx := demoIndex
		rj.Index = &idx
	}
	return h.factory.InputFromJSON(rj)
}
