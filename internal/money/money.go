// Package money provides fixed-precision currency amounts for billing rows.
//
// Source sheets carry prices as display text ("$1,250.00", "1250", "(75.50)")
// and the pipeline compares, sums, and fingerprints those values. Integer
// minor units avoid the float drift that a careless Sum would introduce, and
// give every amount exactly one canonical text form.
package money

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Cents is a monetary amount in integer minor units (hundredths).
type Cents int64

// Parse reads a price as delivered by a source sheet and returns its value in
// cents. Currency symbols, thousands separators, and surrounding whitespace
// are ignored, so "$1,250.00", "1250.00" and "1250" all parse to 125000.
// Accounting-style parentheses mark a negative amount. Anything beyond two
// decimal digits rounds half away from zero.
func Parse(raw string) (Cents, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, eris.New("money: empty amount")
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = s[1:]
	}
	if s == "" {
		return 0, eris.Errorf("money: no digits in %q", raw)
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
		if strings.IndexByte(fracPart, '.') >= 0 {
			return 0, eris.Errorf("money: malformed amount %q", raw)
		}
	}
	if intPart == "" && fracPart == "" {
		return 0, eris.Errorf("money: no digits in %q", raw)
	}

	var units int64
	for _, r := range intPart {
		if r < '0' || r > '9' {
			return 0, eris.Errorf("money: malformed amount %q", raw)
		}
		units = units*10 + int64(r-'0')
	}

	var cents int64
	switch {
	case len(fracPart) == 0:
		// whole units
	case len(fracPart) == 1:
		if fracPart[0] < '0' || fracPart[0] > '9' {
			return 0, eris.Errorf("money: malformed amount %q", raw)
		}
		cents = int64(fracPart[0]-'0') * 10
	default:
		for _, r := range fracPart {
			if r < '0' || r > '9' {
				return 0, eris.Errorf("money: malformed amount %q", raw)
			}
		}
		cents = int64(fracPart[0]-'0')*10 + int64(fracPart[1]-'0')
		if len(fracPart) > 2 && fracPart[2] >= '5' {
			cents++
		}
	}

	total := units*100 + cents
	if neg {
		total = -total
	}
	return Cents(total), nil
}

// String renders the amount in the canonical form used for fingerprinting:
// an optional minus sign, no thousands separators, always two decimals.
func (c Cents) String() string {
	abs := int64(c)
	sign := ""
	if abs < 0 {
		sign = "-"
		abs = -abs
	}
	return sign + itoa(abs/100) + "." + pad2(abs%100)
}

// Float64 converts to major units for statistics that tolerate float math,
// such as audit mean and deviation calculations.
func (c Cents) Float64() float64 {
	return float64(c) / 100
}

// Positive reports whether the amount is strictly greater than zero.
func (c Cents) Positive() bool { return c > 0 }

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func pad2(v int64) string {
	return string([]byte{byte('0' + v/10), byte('0' + v%10)})
}
