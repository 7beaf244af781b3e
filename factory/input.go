package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/energy-engine/energy"
)

// =============================================================================
// CALCULATION REQUEST - JSON form of energy.CalculationInput
// =============================================================================

// ConsumptionJSON is the annual usage. "gas": null means no gas connection.
type ConsumptionJSON struct {
	MeterType           string           `json:"meter_type,omitempty"`
	ElectricityNormal   decimal.Decimal  `json:"electricity_normal"`
	ElectricityOffPeak  decimal.Decimal  `json:"electricity_off_peak"`
	ElectricitySingle   decimal.Decimal  `json:"electricity_single"`
	Gas                 *decimal.Decimal `json:"gas"`
	FeedIn              *decimal.Decimal `json:"feed_in,omitempty"`
	ElectricityCapacity string           `json:"electricity_capacity,omitempty"`
	GasCapacity         string           `json:"gas_capacity,omitempty"`
}

type AddressJSON struct {
	Postcode    string `json:"postcode"`
	HouseNumber string `json:"house_number,omitempty"`
}

type NegotiatedFeesJSON struct {
	Electricity *decimal.Decimal `json:"electricity,omitempty"`
	Gas         *decimal.Decimal `json:"gas,omitempty"`
}

// CalculationRequestJSON is the body of a calculate or freeze request.
type CalculationRequestJSON struct {
	Consumption    ConsumptionJSON     `json:"consumption"`
	Address        AddressJSON         `json:"address"`
	Contract       ContractJSON        `json:"contract"`
	Year           int                 `json:"year,omitempty"`
	Index          *energy.MarketIndex `json:"index,omitempty"`
	NegotiatedFees *NegotiatedFeesJSON `json:"negotiated_fees,omitempty"`
}

// ParseRequest parses a JSON calculation request.
func (f *ContractFactory) ParseRequest(jsonStr string) (energy.CalculationInput, error) {
	var rj CalculationRequestJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return energy.CalculationInput{}, &energy.ValidationError{Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return f.InputFromJSON(rj)
}

// InputFromJSON converts a request into a calculation input. Capacity codes
// are kept as given; the engine normalises them.
func (f *ContractFactory) InputFromJSON(rj CalculationRequestJSON) (energy.CalculationInput, error) {
	contract, err := f.FromJSON(rj.Contract)
	if err != nil {
		return energy.CalculationInput{}, err
	}

	in := energy.CalculationInput{
		Consumption: energy.ConsumptionProfile{
			Meter:               energy.MeterType(rj.Consumption.MeterType),
			ElectricityNormal:   rj.Consumption.ElectricityNormal,
			ElectricityOffPeak:  rj.Consumption.ElectricityOffPeak,
			ElectricitySingle:   rj.Consumption.ElectricitySingle,
			Gas:                 rj.Consumption.Gas,
			FeedIn:              rj.Consumption.FeedIn,
			ElectricityCapacity: energy.CapacityCode(rj.Consumption.ElectricityCapacity),
			GasCapacity:         energy.CapacityCode(rj.Consumption.GasCapacity),
		},
		Address: energy.Address{
			Postcode:    rj.Address.Postcode,
			HouseNumber: rj.Address.HouseNumber,
		},
		Contract: contract,
		Year:     rj.Year,
		Index:    rj.Index,
	}
	if rj.NegotiatedFees != nil {
		in.NegotiatedFees = energy.NegotiatedFees{
			Electricity: rj.NegotiatedFees.Electricity,
			Gas:         rj.NegotiatedFees.Gas,
		}
	}
	return in, nil
}

// InputToJSON converts a calculation input back to its request form.
func (f *ContractFactory) InputToJSON(in energy.CalculationInput) (CalculationRequestJSON, error) {
	cj, err := f.ToJSON(in.Contract)
	if err != nil {
		return CalculationRequestJSON{}, err
	}

	p := in.Consumption
	rj := CalculationRequestJSON{
		Consumption: ConsumptionJSON{
			MeterType:           string(p.Meter),
			ElectricityNormal:   p.ElectricityNormal,
			ElectricityOffPeak:  p.ElectricityOffPeak,
			ElectricitySingle:   p.ElectricitySingle,
			Gas:                 p.Gas,
			FeedIn:              p.FeedIn,
			ElectricityCapacity: string(p.ElectricityCapacity),
			GasCapacity:         string(p.GasCapacity),
		},
		Address: AddressJSON{
			Postcode:    in.Address.Postcode,
			HouseNumber: in.Address.HouseNumber,
		},
		Contract: cj,
		Year:     in.Year,
		Index:    in.Index,
	}
	if in.NegotiatedFees.Electricity != nil || in.NegotiatedFees.Gas != nil {
		rj.NegotiatedFees = &NegotiatedFeesJSON{
			Electricity: in.NegotiatedFees.Electricity,
			Gas:         in.NegotiatedFees.Gas,
		}
	}
	return rj, nil
}
