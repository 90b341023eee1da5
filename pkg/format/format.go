// Package format provides pure display-string helpers for CryptoPulse.
// All functions render NaN inputs as "N/A" instead of propagating a parse
// failure to the user.
package format

import (
	"fmt"
	"math"
	"strings"
)

// NotAvailable is the sentinel shown for values the provider could not supply.
const NotAvailable = "N/A"

// USD formats a dollar amount with thousands grouping ($67,432.11).
// Sub-dollar prices keep six decimals so small-cap coins stay readable.
func USD(v float64) string {
	if math.IsNaN(v) {
		return NotAvailable
	}
	negative := v < 0
	v = math.Abs(v)

	var s string
	if v < 1 {
		s = fmt.Sprintf("%.6f", v)
	} else {
		// Round to cents before splitting so a fractional part of .995+
		// carries into the whole dollars instead of being dropped.
		r := math.Round(v*100) / 100
		whole := math.Trunc(r)
		s = groupThousands(int64(whole)) + fmt.Sprintf("%.2f", r-whole)[1:]
	}

	if negative {
		return "-$" + s
	}
	return "$" + s
}

// CompactUSD formats a dollar amount in compact magnitude notation.
// e.g., 1_927_345 → "$1.93M", 1_234_000_000_000 → "$1.23T"
func CompactUSD(v float64) string {
	if math.IsNaN(v) {
		return NotAvailable
	}
	prefix := "$"
	if v < 0 {
		prefix = "-$"
		v = -v
	}

	switch {
	case v >= 1e12:
		return fmt.Sprintf("%s%.2fT", prefix, v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("%s%.2fB", prefix, v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%s%.2fM", prefix, v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%s%.2fK", prefix, v/1e3)
	default:
		return fmt.Sprintf("%s%.2f", prefix, v)
	}
}

// Pct formats a percentage value with explicit sign and suffix.
// e.g., 2.45 → "+2.45%", -1.23 → "-1.23%"
func Pct(v float64) string {
	if math.IsNaN(v) {
		return NotAvailable
	}
	if v >= 0 {
		return fmt.Sprintf("+%.2f%%", v)
	}
	return fmt.Sprintf("%.2f%%", v)
}

// Supply formats a coin supply in compact notation with the asset symbol.
// e.g., 19_800_000 BTC → "19.80M BTC"
func Supply(v float64, symbol string) string {
	if math.IsNaN(v) {
		return NotAvailable
	}
	var s string
	switch {
	case v >= 1e12:
		s = fmt.Sprintf("%.2fT", v/1e12)
	case v >= 1e9:
		s = fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		s = fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		s = fmt.Sprintf("%.2fK", v/1e3)
	default:
		s = fmt.Sprintf("%.2f", v)
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return s
	}
	return s + " " + symbol
}

// groupThousands formats an integer with western grouping (1,234,567).
func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, ",")
}
