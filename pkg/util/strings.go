package util

import (
	"strconv"
	"strings"
)

// ParseIntDefault parses s as an int, falling back to def when s is empty
// or malformed. Query parameters never abort a request over a bad number.
func ParseIntDefault(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

// ParseFloatDefault parses s as a float64, falling back to def when s is
// empty or malformed.
func ParseFloatDefault(s string, def float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}

// NormalizeSymbol canonicalizes a ticker: trimmed and upper-cased. Upstream
// feeds occasionally serve lower-case or padded symbols; everything past the
// provider boundary assumes the canonical form.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
