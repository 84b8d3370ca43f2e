// Package sheet locates and decodes tabular data inside provider rate
// sheets: numeric cell parsing, column resolution against canonical field
// synonyms, chunked row streaming for delimited files, and an XLSX adapter.
package sheet

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ParseNumeric converts a raw cell value into a float64. Currency symbols,
// thousands separators, percent signs, and surrounding whitespace are
// stripped before parsing. Empty, unparseable, or non-finite input yields 0;
// absent-vs-zero is not distinguished at this layer, so callers needing that
// distinction must inspect the raw string first.
func ParseNumeric(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '£', '$', '€', ',', '%':
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
