// Package model defines the shared record and report types flowing through
// the rate sheet analysis pipeline.
package model

import "strings"

// VehicleRecord is one parsed lease line from a provider rate sheet.
// Numeric fields hold the raw cell text (possibly currency-formatted) until
// scoring time; an absent field is the empty string, never "0".
type VehicleRecord struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
	CapID        string `json:"cap_id,omitempty"`

	MonthlyPayment string `json:"monthly_payment"`
	P11D           string `json:"p11d"`
	OTRPrice       string `json:"otr_price,omitempty"`
	Term           string `json:"term,omitempty"`
	Mileage        string `json:"mileage,omitempty"`
	Upfront        string `json:"upfront,omitempty"`

	MPG            string `json:"mpg,omitempty"`
	CO2            string `json:"co2,omitempty"`
	FuelType       string `json:"fuel_type,omitempty"`
	MilesPerKWh    string `json:"miles_per_kwh,omitempty"`
	KWhPer100Km    string `json:"kwh_per_100km,omitempty"`
	ElectricRange  string `json:"electric_range,omitempty"`
	InsuranceGroup string `json:"insurance_group,omitempty"`
}

// HasIdentity reports whether the record carries enough identifying data to
// be worth retaining (manufacturer or model present).
func (r *VehicleRecord) HasIdentity() bool {
	return strings.TrimSpace(r.Manufacturer) != "" || strings.TrimSpace(r.Model) != ""
}

// LightDeal is the compact projection kept in the large ranking set; it
// carries only the fields needed for list display.
type LightDeal struct {
	Manufacturer   string  `json:"manufacturer"`
	Model          string  `json:"model"`
	FuelType       string  `json:"fuel_type,omitempty"`
	MonthlyPayment float64 `json:"monthly_payment"`
	Term           float64 `json:"term"`
	Mileage        float64 `json:"mileage"`
	Score          float64 `json:"score"`
}
