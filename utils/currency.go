package utils

import (
	"fmt"
	"os"
	"strings"
)

// CurrencyCode returns the single currency the whole system operates
// in. No conversion happens anywhere; gateways receive amounts in this
// currency's minor units.
func CurrencyCode() string {
	code := os.Getenv("CURRENCY")
	if code == "" {
		code = "IDR"
	}
	return strings.ToUpper(code)
}

// FormatAmount renders an amount in minor currency units for display,
// e.g. 1500050 -> "15.000,50".
func FormatAmount(minor int64) string {
	units := minor / 100
	cents := minor % 100
	if cents < 0 {
		cents = -cents
	}

	digits := fmt.Sprintf("%d", units)
	neg := false
	if strings.HasPrefix(digits, "-") {
		neg = true
		digits = digits[1:]
	}

	var groups []string
	for i := len(digits); i > 0; i -= 3 {
		start := i - 3
		if start < 0 {
			start = 0
		}
		groups = append([]string{digits[start:i]}, groups...)
	}

	out := strings.Join(groups, ".") + fmt.Sprintf(",%02d", cents)
	if neg {
		out = "-" + out
	}
	return out
}
