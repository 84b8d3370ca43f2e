package model

// BreakdownInputs holds the parsed numeric inputs a score was computed from.
type BreakdownInputs struct {
	MonthlyPayment float64 `json:"monthly_payment"`
	P11D           float64 `json:"p11d"`
	OTRPrice       float64 `json:"otr_price,omitempty"`
	Term           float64 `json:"term"`
	Mileage        float64 `json:"mileage"`
	MPG            float64 `json:"mpg,omitempty"`
	CO2            float64 `json:"co2,omitempty"`
	FuelType       string  `json:"fuel_type,omitempty"`
	MilesPerKWh    float64 `json:"miles_per_kwh,omitempty"`
	ElectricRange  float64 `json:"electric_range,omitempty"`
	InsuranceGroup float64 `json:"insurance_group,omitempty"`
}

// DefaultsApplied records which assumption defaults were substituted for
// missing inputs. This materially affects comparability across records, so
// it is always included in the breakdown.
type DefaultsApplied struct {
	Term    bool `json:"term"`
	Mileage bool `json:"mileage"`
}

// BreakdownDerived holds intermediate quantities derived from the inputs.
type BreakdownDerived struct {
	TotalLeaseCost float64 `json:"total_lease_cost"`
	CostVsP11DPct  float64 `json:"cost_vs_p11d_pct"`
	CostPerMile    float64 `json:"cost_per_mile,omitempty"`
	EffectiveMPG   float64 `json:"effective_mpg,omitempty"`
	P11DFromOTR    bool    `json:"p11d_from_otr,omitempty"`
	HybridAdjusted bool    `json:"hybrid_adjusted,omitempty"`
}

// BreakdownComponents holds the named sub-scores, each 0-100. Optional
// components are nil when not applicable to the record.
type BreakdownComponents struct {
	CostEfficiency float64  `json:"cost_efficiency"`
	Mileage        float64  `json:"mileage"`
	Fuel           float64  `json:"fuel"`
	Emissions      float64  `json:"emissions"`
	Operating      *float64 `json:"operating_cost,omitempty"`
	EVRange        *float64 `json:"ev_range,omitempty"`
	Insurance      *float64 `json:"insurance,omitempty"`
}

// ScoreBreakdown is the full audit trail for one scored record. Immutable
// once computed.
type ScoreBreakdown struct {
	Inputs          BreakdownInputs     `json:"inputs"`
	DefaultsApplied DefaultsApplied     `json:"defaults_applied"`
	Derived         BreakdownDerived    `json:"derived"`
	Components      BreakdownComponents `json:"components"`
	Weights         map[string]float64  `json:"weights"`
}

// ScoredDeal pairs a vehicle record with its score and full breakdown; it is
// the element type of the top-deals result set.
type ScoredDeal struct {
	Vehicle   VehicleRecord  `json:"vehicle"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"score_breakdown"`
}
