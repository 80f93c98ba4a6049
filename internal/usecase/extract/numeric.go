package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// magnitude suffixes accepted after a numeric value. Case-insensitive;
// written-out words are matched before single letters.
var magnitudes = []struct {
	suffix string
	factor float64
}{
	{"trillion", 1e12},
	{"billion", 1e9},
	{"million", 1e6},
	{"thousand", 1e3},
	{"bn", 1e9},
	{"mm", 1e6},
	{"t", 1e12},
	{"b", 1e9},
	{"m", 1e6},
	{"k", 1e3},
}

var numberPattern = regexp.MustCompile(`^[-+]?\d{1,3}(?:,\d{3})*(?:\.\d+)?$|^[-+]?\d+(?:\.\d+)?$`)

// parseNumeric resolves a reported metric value into a float. It tolerates
// currency symbols, thousands separators, parenthesized negatives, percent
// signs, and magnitude suffixes (B/M/K and written-out words).
//
// ok is false when the magnitude cannot be resolved deterministically; the
// caller flags the metric as ambiguous instead of guessing.
func parseNumeric(raw string) (value float64, ok bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, sym := range []string{"$", "€", "£", "¥", "US$"} {
		s = strings.TrimPrefix(s, sym)
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	s = strings.TrimSpace(s)

	factor := 1.0
	lower := strings.ToLower(s)
	for _, m := range magnitudes {
		if strings.HasSuffix(lower, m.suffix) {
			head := strings.TrimSpace(s[:len(s)-len(m.suffix)])
			// A bare suffix with no digits, or trailing garbage between the
			// number and the suffix, is ambiguous.
			if head == "" {
				return 0, false
			}
			s = head
			factor = m.factor
			break
		}
	}

	if !numberPattern.MatchString(s) {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v * factor, true
}

// revenueAliases maps common issuer vocabulary onto the canonical metric
// name so "net sales" and "total revenue" land in the same chunk family.
var revenueAliases = map[string]string{
	"total revenue":   "revenue",
	"total revenues":  "revenue",
	"revenues":        "revenue",
	"net revenue":     "revenue",
	"net revenues":    "revenue",
	"net sales":       "revenue",
	"total net sales": "revenue",
	"sales":           "revenue",
}

// canonicalMetricName lowercases, collapses whitespace, and folds revenue
// aliases onto "revenue".
func canonicalMetricName(name string) string {
	n := strings.ToLower(strings.Join(strings.Fields(name), " "))
	if canonical, ok := revenueAliases[n]; ok {
		return canonical
	}
	return n
}
