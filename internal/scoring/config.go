// Package scoring computes the composite value score for normalized lease
// records: component sub-scores, weight modes, and the full audit breakdown.
package scoring

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/fleetscore/ratesheet-cli/internal/config"
)

// Mode selects a named weighting preset.
type Mode string

const (
	// ModeStandard weights cost efficiency, mileage, fuel, and emissions;
	// insurance is only a sort tie-break.
	ModeStandard Mode = "standard"
	// ModeExtended adds operating cost and an optional EV range component.
	// When EV range is absent its term is simply omitted; the remaining
	// weights are NOT renormalized, so non-EV records score on an
	// effective 0-95 scale. That asymmetry is a long-standing property of
	// the rule set and is kept as-is for comparability with prior runs.
	ModeExtended Mode = "extended"
)

// ParseMode maps a mode label to a Mode, defaulting to standard.
func ParseMode(s string) Mode {
	if Mode(strings.ToLower(strings.TrimSpace(s))) == ModeExtended {
		return ModeExtended
	}
	return ModeStandard
}

// Weights holds the component weights applied in the weighted sum.
type Weights struct {
	CostEfficiency float64
	Operating      float64
	Mileage        float64
	Fuel           float64
	Emissions      float64
	EVRange        float64
}

// WeightsFor returns the preset weights for a mode.
func WeightsFor(mode Mode) Weights {
	if mode == ModeExtended {
		return Weights{
			CostEfficiency: 0.5,
			Operating:      0.2,
			Mileage:        0.15,
			Emissions:      0.1,
			Fuel:           0.05,
			EVRange:        0.05,
		}
	}
	return Weights{
		CostEfficiency: 0.6,
		Mileage:        0.2,
		Fuel:           0.1,
		Emissions:      0.1,
	}
}

// Assumptions holds the fixed prices and defaults the scoring formulas use.
type Assumptions struct {
	DefaultTermMonths      float64
	DefaultAnnualMileage   float64
	ReferenceAnnualMileage float64
	PetrolPricePerLitre    float64
	DieselPricePerLitre    float64
	ElectricityPricePerKWh float64
	FallbackEVCostPerMile  float64
}

// DefaultAssumptions returns the standard UK-market assumptions.
func DefaultAssumptions() Assumptions {
	return Assumptions{
		DefaultTermMonths:      36,
		DefaultAnnualMileage:   10000,
		ReferenceAnnualMileage: 15000,
		PetrolPricePerLitre:    1.45,
		DieselPricePerLitre:    1.53,
		ElectricityPricePerKWh: 0.30,
		FallbackEVCostPerMile:  0.12,
	}
}

// Config is the immutable per-run scoring configuration.
type Config struct {
	Mode        Mode
	Weights     Weights
	Assumptions Assumptions
	// InsuranceWeight blends the insurance component on top of the base
	// score; clamped to [0, 0.2]. Zero disables blending.
	InsuranceWeight float64
}

// NewConfig builds a Config for the given mode, clamping the insurance
// weight to its allowed range.
func NewConfig(mode Mode, a Assumptions, insuranceWeight float64) Config {
	if insuranceWeight < 0 {
		insuranceWeight = 0
	}
	if insuranceWeight > 0.2 {
		insuranceWeight = 0.2
	}
	return Config{
		Mode:            mode,
		Weights:         WeightsFor(mode),
		Assumptions:     a,
		InsuranceWeight: insuranceWeight,
	}
}

// FromConfig converts the application-level scoring section into an engine
// Config.
func FromConfig(sc config.ScoringConfig) Config {
	a := DefaultAssumptions()
	if sc.DefaultTermMonths > 0 {
		a.DefaultTermMonths = sc.DefaultTermMonths
	}
	if sc.DefaultAnnualMileage > 0 {
		a.DefaultAnnualMileage = sc.DefaultAnnualMileage
	}
	if sc.ReferenceAnnualMileage > 0 {
		a.ReferenceAnnualMileage = sc.ReferenceAnnualMileage
	}
	if sc.PetrolPricePerLitre > 0 {
		a.PetrolPricePerLitre = sc.PetrolPricePerLitre
	}
	if sc.DieselPricePerLitre > 0 {
		a.DieselPricePerLitre = sc.DieselPricePerLitre
	}
	if sc.ElectricityPricePerKWh > 0 {
		a.ElectricityPricePerKWh = sc.ElectricityPricePerKWh
	}
	if sc.FallbackEVCostPerMile > 0 {
		a.FallbackEVCostPerMile = sc.FallbackEVCostPerMile
	}
	return NewConfig(ParseMode(sc.Mode), a, sc.InsuranceWeight)
}

// ValidateConfig checks that a Config is internally consistent.
func ValidateConfig(c Config) error {
	var errs []string

	weights := map[string]float64{
		"cost_efficiency": c.Weights.CostEfficiency,
		"operating":       c.Weights.Operating,
		"mileage":         c.Weights.Mileage,
		"fuel":            c.Weights.Fuel,
		"emissions":       c.Weights.Emissions,
		"ev_range":        c.Weights.EVRange,
	}
	for name, w := range weights {
		if w < 0 || w > 1 {
			errs = append(errs, fmt.Sprintf("%s weight must be in [0, 1]", name))
		}
	}
	if c.Weights.CostEfficiency == 0 {
		errs = append(errs, "cost_efficiency weight must be > 0")
	}
	if c.InsuranceWeight < 0 || c.InsuranceWeight > 0.2 {
		errs = append(errs, "insurance weight must be in [0, 0.2]")
	}

	a := c.Assumptions
	if a.DefaultTermMonths <= 0 || a.DefaultAnnualMileage <= 0 || a.ReferenceAnnualMileage <= 0 {
		errs = append(errs, "term and mileage assumptions must be > 0")
	}
	if a.PetrolPricePerLitre <= 0 || a.DieselPricePerLitre <= 0 || a.ElectricityPricePerKWh <= 0 {
		errs = append(errs, "price assumptions must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("scoring: config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Describe returns the audit description recorded in report payloads.
func (c Config) Describe() (formula string, weights map[string]float64, assumptions map[string]float64) {
	formula = "weighted sum of banded component scores (0-100)"
	weights = map[string]float64{
		"cost_efficiency": c.Weights.CostEfficiency,
		"mileage":         c.Weights.Mileage,
		"fuel":            c.Weights.Fuel,
		"emissions":       c.Weights.Emissions,
	}
	if c.Mode == ModeExtended {
		weights["operating"] = c.Weights.Operating
		weights["ev_range"] = c.Weights.EVRange
	}
	if c.InsuranceWeight > 0 {
		weights["insurance"] = c.InsuranceWeight
	}
	a := c.Assumptions
	assumptions = map[string]float64{
		"default_term_months":       a.DefaultTermMonths,
		"default_annual_mileage":    a.DefaultAnnualMileage,
		"reference_annual_mileage":  a.ReferenceAnnualMileage,
		"petrol_price_per_litre":    a.PetrolPricePerLitre,
		"diesel_price_per_litre":    a.DieselPricePerLitre,
		"electricity_price_per_kwh": a.ElectricityPricePerKWh,
		"fallback_ev_cost_per_mile": a.FallbackEVCostPerMile,
	}
	return formula, weights, assumptions
}
