package scoring

import (
	"math"
	"strings"

	"github.com/fleetscore/ratesheet-cli/internal/model"
	"github.com/fleetscore/ratesheet-cli/internal/sheet"
)

// Unit conversions.
const (
	litresPerGallon = 4.54609 // UK gallon
	milesPer100Km   = 62.1371
)

// Score computes the composite 0-100 value score and full breakdown for one
// vehicle record. Deterministic, pure, no I/O: the same record and config
// always produce the same result. Data-quality problems degrade to defaults
// or neutral values; Score never fails.
func Score(rec *model.VehicleRecord, cfg Config) (float64, model.ScoreBreakdown) {
	a := cfg.Assumptions

	monthly := sheet.ParseNumeric(rec.MonthlyPayment)
	p11d := sheet.ParseNumeric(rec.P11D)
	otr := sheet.ParseNumeric(rec.OTRPrice)
	term := sheet.ParseNumeric(rec.Term)
	mileage := sheet.ParseNumeric(rec.Mileage)
	mpg := sheet.ParseNumeric(rec.MPG)
	co2 := sheet.ParseNumeric(rec.CO2)
	rng := sheet.ParseNumeric(rec.ElectricRange)
	insGroup := sheet.ParseNumeric(rec.InsuranceGroup)
	fuel := strings.TrimSpace(rec.FuelType)

	defaults := model.DefaultsApplied{}
	if term == 0 {
		term = a.DefaultTermMonths
		defaults.Term = true
	}
	if mileage == 0 {
		mileage = a.DefaultAnnualMileage
		defaults.Mileage = true
	}

	// Commercial-vehicle files often omit P11D; OTR is the explicit,
	// recorded substitute.
	p11dFromOTR := false
	if p11d == 0 && otr > 0 {
		p11d = otr
		p11dFromOTR = true
	}

	milesPerKWh := sheet.ParseNumeric(rec.MilesPerKWh)
	if milesPerKWh == 0 {
		if kwh100 := sheet.ParseNumeric(rec.KWhPer100Km); kwh100 > 0 {
			milesPerKWh = milesPer100Km / kwh100
		}
	}

	effMPG, hybridAdjusted := effectiveMPG(mpg, fuel, rng)

	var (
		totalCost float64
		ratio     float64
		costEff   float64
		hardFail  bool
	)
	if monthly > 0 && p11d > 0 {
		totalCost = monthly * term
		ratio = totalCost / p11d * 100
		costEff = costEfficiencyScore(ratio)
	} else {
		// Unpriceable record: cost efficiency is 0 and the overall score
		// collapses to 0 rather than an error.
		totalCost = monthly * term
		hardFail = true
	}

	mileageComp := math.Min(100, mileage/a.ReferenceAnnualMileage*100)

	fuelComp := 50.0
	if mpg > 0 {
		fuelComp = math.Min(100, effMPG*1.5)
	}

	emissionsComp := 50.0
	if co2 > 0 {
		emissionsComp = math.Max(0, 100-co2/2)
	}

	costPerMile, operatingComp := operatingCost(fuel, co2, milesPerKWh, effMPG, a)

	var evComp *float64
	if rng > 0 {
		v := evRangeScore(rng)
		evComp = &v
	}

	insComp := insuranceScore(insGroup)

	components := model.BreakdownComponents{
		CostEfficiency: costEff,
		Mileage:        mileageComp,
		Fuel:           fuelComp,
		Emissions:      emissionsComp,
		Operating:      operatingComp,
		EVRange:        evComp,
		Insurance:      insComp,
	}

	base, weights := combine(cfg, components)

	final := base
	if cfg.InsuranceWeight > 0 {
		ins := 50.0 // neutral when the group is unknown
		if insComp != nil {
			ins = *insComp
		}
		final = base*(1-cfg.InsuranceWeight) + ins*cfg.InsuranceWeight
		weights["insurance"] = cfg.InsuranceWeight
	}
	if hardFail {
		final = 0
	}
	final = round1(final)

	breakdown := model.ScoreBreakdown{
		Inputs: model.BreakdownInputs{
			MonthlyPayment: monthly,
			P11D:           p11d,
			OTRPrice:       otr,
			Term:           term,
			Mileage:        mileage,
			MPG:            mpg,
			CO2:            co2,
			FuelType:       fuel,
			MilesPerKWh:    milesPerKWh,
			ElectricRange:  rng,
			InsuranceGroup: insGroup,
		},
		DefaultsApplied: defaults,
		Derived: model.BreakdownDerived{
			TotalLeaseCost: totalCost,
			CostVsP11DPct:  ratio,
			CostPerMile:    costPerMile,
			EffectiveMPG:   effMPG,
			P11DFromOTR:    p11dFromOTR,
			HybridAdjusted: hybridAdjusted,
		},
		Components: components,
		Weights:    weights,
	}

	return final, breakdown
}

// combine applies the mode's weights. Optional components simply drop out of
// the sum when absent; weights are not renormalized.
func combine(cfg Config, c model.BreakdownComponents) (float64, map[string]float64) {
	w := cfg.Weights
	weights := map[string]float64{
		"cost_efficiency": w.CostEfficiency,
		"mileage":         w.Mileage,
		"fuel":            w.Fuel,
		"emissions":       w.Emissions,
	}

	base := w.CostEfficiency*c.CostEfficiency +
		w.Mileage*c.Mileage +
		w.Fuel*c.Fuel +
		w.Emissions*c.Emissions

	if cfg.Mode == ModeExtended {
		if c.Operating != nil {
			base += w.Operating * *c.Operating
			weights["operating"] = w.Operating
		}
		if c.EVRange != nil {
			base += w.EVRange * *c.EVRange
			weights["ev_range"] = w.EVRange
		}
	}

	return base, weights
}

// costEfficiencyScore maps the total-lease-cost-to-P11D percentage onto the
// discrete deal-quality tiers brokers reason about. The banding, including
// boundary inclusivity, is deliberate; do not smooth it.
func costEfficiencyScore(ratio float64) float64 {
	switch {
	case ratio <= 30:
		return 100
	case ratio <= 40:
		return 90
	case ratio <= 50:
		return 75
	case ratio <= 60:
		return 60
	case ratio <= 70:
		return 40
	case ratio <= 80:
		return 20
	default:
		return 0
	}
}

// effectiveMPG applies the hybrid correction: combined-cycle test figures
// above 100 MPG for hybrids/PHEVs are unrealistic, so an adjusted figure is
// derived from electric range instead.
func effectiveMPG(mpg float64, fuel string, electricRange float64) (float64, bool) {
	if !isHybrid(fuel) || mpg <= 100 {
		return mpg, false
	}
	switch {
	case electricRange <= 0:
		return math.Min(65, mpg*0.3), true
	case electricRange < 60:
		return 45 + electricRange/60*25, true
	default:
		return math.Min(80, 60+(electricRange-60)/3), true
	}
}

// operatingCost derives cost-per-mile and its banded score. The electric
// path applies when the fuel type says so, when CO2 is zero, or when a
// miles-per-kWh figure exists (directly or via kWh/100km). Returns a nil
// component when cost-per-mile cannot be derived at all.
func operatingCost(fuel string, co2, milesPerKWh, effMPG float64, a Assumptions) (float64, *float64) {
	var costPerMile float64
	switch {
	case isElectric(fuel) || co2 == 0 || milesPerKWh > 0:
		if milesPerKWh > 0 {
			costPerMile = a.ElectricityPricePerKWh / milesPerKWh
		} else {
			costPerMile = a.FallbackEVCostPerMile
		}
	case effMPG > 0:
		price := a.PetrolPricePerLitre
		if isDiesel(fuel) {
			price = a.DieselPricePerLitre
		}
		costPerMile = litresPerGallon / effMPG * price
	default:
		return 0, nil
	}

	score := operatingScore(costPerMile)
	return costPerMile, &score
}

func operatingScore(costPerMile float64) float64 {
	switch {
	case costPerMile <= 0.08:
		return 100
	case costPerMile <= 0.12:
		return 80
	case costPerMile <= 0.20:
		return 40
	case costPerMile <= 0.35:
		return 15
	default:
		return 0
	}
}

func evRangeScore(rangeMiles float64) float64 {
	switch {
	case rangeMiles >= 250:
		return 100
	case rangeMiles >= 200:
		return 90
	case rangeMiles >= 150:
		return 70
	case rangeMiles >= 100:
		return 50
	default:
		return 20
	}
}

// insuranceScore maps ABI group 1-50 onto 100..0, or nil when missing or
// out of range. Informational in standard mode; blended only when an
// insurance weight is configured.
func insuranceScore(group float64) *float64 {
	if group < 1 || group > 50 {
		return nil
	}
	v := round1(100 - (group-1)/49*100)
	return &v
}

func isElectric(fuel string) bool {
	f := strings.ToLower(fuel)
	return strings.Contains(f, "electric") || f == "ev" || f == "bev"
}

func isHybrid(fuel string) bool {
	f := strings.ToLower(fuel)
	return strings.Contains(f, "hybrid") || strings.Contains(f, "phev") || strings.Contains(f, "plug")
}

func isDiesel(fuel string) bool {
	return strings.Contains(strings.ToLower(fuel), "diesel")
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
