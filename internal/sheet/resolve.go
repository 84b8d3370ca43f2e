package sheet

import "strings"

// Customer-facing and wholesale indicators for the rental heuristic.
// Provider files frequently expose both a wholesale and a customer rental
// column; picking the wholesale one would systematically misprice every
// record in the file.
var (
	rentalLikeIndicators = []string{"RENTAL", "MONTHLY"}
	customerIndicators   = []string{"CUSTOMER", "DRIVER", "CM"}
	wholesaleIndicators  = []string{"WHOLESALE", "WM", "SUPPLIER"}
)

// HeaderScanRows is how many leading rows are considered as header
// candidates before falling back to a static column table.
const HeaderScanRows = 10

// Resolver maps provider header rows to canonical field columns.
type Resolver struct {
	synonyms        SynonymTable
	secondaryRental []string
}

// NewResolver creates a Resolver for the given synonym table. A nil table
// uses DefaultSynonyms.
func NewResolver(synonyms SynonymTable) *Resolver {
	if synonyms == nil {
		synonyms = DefaultSynonyms()
	}
	return &Resolver{
		synonyms:        synonyms,
		secondaryRental: SecondaryRentalSynonyms(),
	}
}

// normalizeHeader uppercases and trims a header cell for matching.
func normalizeHeader(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Resolve determines the column index for each canonical field in the given
// header row. Matching is exact-first, then substring containment, each in
// synonym priority order. Resolution never fails; an unmatched field is
// simply absent from the returned map.
func (r *Resolver) Resolve(header []string) ColumnIndexMap {
	cells := make([]string, len(header))
	for i, h := range header {
		cells[i] = normalizeHeader(h)
	}

	m := make(ColumnIndexMap)
	for _, field := range AllFields {
		if idx, ok := matchField(cells, r.synonyms[field]); ok {
			m[field] = idx
		}
	}

	// Rental special case: try the secondary list, then the heuristic scan.
	if _, ok := m[FieldMonthlyPayment]; !ok {
		if idx, ok := matchField(cells, r.secondaryRental); ok {
			m[FieldMonthlyPayment] = idx
		} else if idx, ok := rentalHeuristic(cells); ok {
			m[FieldMonthlyPayment] = idx
		}
	}

	return m
}

// matchField runs the exact pass and then the containment pass over the
// synonyms in priority order; the first hit wins. The containment pass
// recovers headers like "RENTAL EX VAT 9+35" against "RENTAL EX VAT".
func matchField(cells []string, synonyms []string) (int, bool) {
	for _, syn := range synonyms {
		for i, cell := range cells {
			if cell == syn {
				return i, true
			}
		}
	}
	for _, syn := range synonyms {
		for i, cell := range cells {
			if cell != "" && strings.Contains(cell, syn) {
				return i, true
			}
		}
	}
	return 0, false
}

// rentalHeuristic scans for rental/monthly-like headers when no synonym
// resolved the monthly_payment column. Among the candidates it prefers one
// carrying a customer/driver indicator without a wholesale indicator, then
// any non-wholesale candidate, then the first candidate found.
func rentalHeuristic(cells []string) (int, bool) {
	var candidates []int
	for i, cell := range cells {
		if cell == "" {
			continue
		}
		if containsAny(cell, rentalLikeIndicators) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return 0, false
	}

	for _, i := range candidates {
		if containsAny(cells[i], customerIndicators) && !containsAny(cells[i], wholesaleIndicators) {
			return i, true
		}
	}
	for _, i := range candidates {
		if !containsAny(cells[i], wholesaleIndicators) {
			return i, true
		}
	}
	return candidates[0], true
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// headerThresholdMet reports whether a resolved map is confident enough to
// accept its row as the true header: at least 3 fields besides term and
// mileage, or at least 5 fields total with both term and mileage resolved.
func headerThresholdMet(m ColumnIndexMap) bool {
	general := len(m)
	_, hasTerm := m[FieldTerm]
	if hasTerm {
		general--
	}
	_, hasMileage := m[FieldMileage]
	if hasMileage {
		general--
	}
	if general >= 3 {
		return true
	}
	return len(m) >= 5 && hasTerm && hasMileage
}

// ResolveHeader resolves a single candidate row and reports whether it meets
// the header acceptance threshold. Streaming callers use this to test rows
// as they arrive instead of buffering the whole preamble first.
func (r *Resolver) ResolveHeader(row []string) (ColumnIndexMap, bool) {
	m := r.Resolve(row)
	return m, headerThresholdMet(m)
}

// DetectHeader scans the given leading rows for the first one whose column
// resolution meets the acceptance threshold. It returns the header row
// index, the resolved map, and whether detection succeeded. Rows before the
// detected header are preamble to discard. Only the first HeaderScanRows
// rows are considered.
func (r *Resolver) DetectHeader(rows [][]string) (int, ColumnIndexMap, bool) {
	limit := len(rows)
	if limit > HeaderScanRows {
		limit = HeaderScanRows
	}
	for i := 0; i < limit; i++ {
		m := r.Resolve(rows[i])
		if headerThresholdMet(m) {
			return i, m, true
		}
	}
	return 0, nil, false
}
