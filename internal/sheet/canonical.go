package sheet

// Field is a canonical rate sheet field name.
type Field string

// Canonical fields. monthly_payment is the customer-facing rental, distinct
// from any wholesale rental column the provider may also expose.
const (
	FieldManufacturer   Field = "manufacturer"
	FieldModel          Field = "model"
	FieldMonthlyPayment Field = "monthly_payment"
	FieldP11D           Field = "p11d"
	FieldOTRPrice       Field = "otr_price"
	FieldTerm           Field = "term"
	FieldMileage        Field = "mileage"
	FieldMPG            Field = "mpg"
	FieldCO2            Field = "co2"
	FieldFuelType       Field = "fuel_type"
	FieldMilesPerKWh    Field = "miles_per_kwh"
	FieldKWhPer100Km    Field = "kwh_per_100km"
	FieldElectricRange  Field = "electric_range"
	FieldInsuranceGroup Field = "insurance_group"
	FieldUpfront        Field = "upfront"
	FieldCapID          Field = "cap_id"
)

// AllFields lists every canonical field in a stable order.
var AllFields = []Field{
	FieldManufacturer, FieldModel, FieldMonthlyPayment, FieldP11D,
	FieldOTRPrice, FieldTerm, FieldMileage, FieldMPG, FieldCO2,
	FieldFuelType, FieldMilesPerKWh, FieldKWhPer100Km, FieldElectricRange,
	FieldInsuranceGroup, FieldUpfront, FieldCapID,
}

// ColumnIndexMap maps canonical fields to zero-based column positions. A
// missing key means the field is unmapped for this file and must be treated
// as absent, not zero.
type ColumnIndexMap map[Field]int

// ToStringMap converts the map to plain string keys for report payloads and
// persistence.
func (m ColumnIndexMap) ToStringMap() map[string]int {
	out := make(map[string]int, len(m))
	for f, idx := range m {
		out[string(f)] = idx
	}
	return out
}

// FromStringMap rebuilds a ColumnIndexMap from its persisted form. Unknown
// keys are dropped.
func FromStringMap(in map[string]int) ColumnIndexMap {
	known := make(map[Field]bool, len(AllFields))
	for _, f := range AllFields {
		known[f] = true
	}
	m := make(ColumnIndexMap, len(in))
	for k, idx := range in {
		if known[Field(k)] {
			m[Field(k)] = idx
		}
	}
	return m
}

// SynonymTable maps each canonical field to its known header synonyms in
// priority order: the first synonym in the list is preferred on tie.
// Matching is case-insensitive on trimmed, uppercased header cells.
type SynonymTable map[Field][]string

// DefaultSynonyms returns the synonym table shared by most provider
// formats. The monthly_payment list holds only customer-facing rental
// headers; generic "RENTAL"-like headers are handled by the resolver's
// rental heuristic so a wholesale column is never picked by accident.
func DefaultSynonyms() SynonymTable {
	return SynonymTable{
		FieldManufacturer:   {"MANUFACTURER", "MAKE", "MARQUE", "BRAND"},
		FieldModel:          {"MODEL", "DERIVATIVE", "MODEL DERIVATIVE", "VEHICLE DESCRIPTION", "DESCRIPTION", "VEHICLE"},
		FieldMonthlyPayment: {"MONTHLY PAYMENT", "MONTHLY RENTAL", "CUSTOMER RENTAL", "NET RENTAL CM", "RENTAL EX VAT", "CUSTOMER MONTHLY"},
		FieldP11D:           {"P11D", "P11D VALUE", "P11D PRICE", "LIST PRICE"},
		FieldOTRPrice:       {"OTR", "OTR PRICE", "ON THE ROAD", "ON THE ROAD PRICE"},
		FieldTerm:           {"TERM", "CONTRACT TERM", "TERM MONTHS", "CONTRACT LENGTH", "PERIOD", "DURATION"},
		FieldMileage:        {"MILEAGE", "ANNUAL MILEAGE", "MILES PA", "MILES PER ANNUM", "CONTRACT MILEAGE"},
		FieldMPG:            {"MPG", "COMBINED MPG", "FUEL CONSUMPTION"},
		FieldCO2:            {"CO2", "CO2 G/KM", "CO2 EMISSIONS", "EMISSIONS"},
		FieldFuelType:       {"FUEL TYPE", "FUEL"},
		FieldMilesPerKWh:    {"MILES PER KWH", "MILES/KWH", "MI/KWH"},
		FieldKWhPer100Km:    {"KWH PER 100KM", "KWH/100KM", "KWH PER 100 KM"},
		FieldElectricRange:  {"ELECTRIC RANGE", "EV RANGE", "EAER", "RANGE MILES", "RANGE"},
		FieldInsuranceGroup: {"INSURANCE GROUP", "INS GROUP", "ABI GROUP", "INSURANCE"},
		FieldUpfront:        {"INITIAL RENTAL", "INITIAL PAYMENT", "UPFRONT", "DEPOSIT", "ADVANCE RENTAL"},
		FieldCapID:          {"CAP ID", "CAP CODE", "CAPID", "CAPCODE"},
	}
}

// SecondaryRentalSynonyms are weaker monthly_payment headers tried only
// after the primary list fails both matching passes.
func SecondaryRentalSynonyms() []string {
	return []string{"PER MONTH", "PCM", "P/M", "MONTHLY COST", "MONTHLY PRICE"}
}

// Format identifies a provider rate sheet layout. It selects the synonym
// table, the static fallback column table, and the scoring weight mode.
type Format string

const (
	// FormatGeneric covers most broker exports: header row near the top,
	// standard weighting.
	FormatGeneric Format = "generic"
	// FormatLex covers Lex-style fleet exports: extended weighting with
	// operating cost and EV range components.
	FormatLex Format = "lex"
	// FormatVanaramaLCV covers headerless commercial-vehicle exports that
	// quote OTR instead of P11D and always use the same column order.
	FormatVanaramaLCV Format = "vanarama-lcv"
)

// ParseFormat maps a format label to a Format, defaulting to generic.
func ParseFormat(s string) Format {
	switch Format(s) {
	case FormatLex:
		return FormatLex
	case FormatVanaramaLCV:
		return FormatVanaramaLCV
	default:
		return FormatGeneric
	}
}

// StaticFallbacks returns the fixed column index table per format, used when
// no row in the preamble meets the header detection threshold. Some provider
// exports omit headers entirely and always use the same column order; the
// tables below are configuration constants, not inferred.
func StaticFallbacks() map[Format]ColumnIndexMap {
	return map[Format]ColumnIndexMap{
		FormatLex: {
			FieldCapID:          0,
			FieldManufacturer:   1,
			FieldModel:          2,
			FieldMonthlyPayment: 3,
			FieldP11D:           4,
			FieldTerm:           5,
			FieldMileage:        6,
			FieldFuelType:       7,
			FieldMPG:            8,
			FieldCO2:            9,
			FieldElectricRange:  10,
			FieldInsuranceGroup: 11,
		},
		FormatVanaramaLCV: {
			FieldManufacturer:   0,
			FieldModel:          1,
			FieldOTRPrice:       2,
			FieldMonthlyPayment: 3,
			FieldTerm:           4,
			FieldMileage:        5,
			FieldFuelType:       6,
			FieldCO2:            7,
		},
	}
}
