// Package fixedpoint implements the 18-fractional-digit decimal price codec
// used for all monetary values in the pipeline. Everything is exact big.Int
// arithmetic; no floating point is involved anywhere.
package fixedpoint

import (
	"math/big"
	"strings"
)

// FractionDigits is the fixed number of fractional digits in formatted prices,
// chosen for NUMERIC(20,18) column compatibility.
const FractionDigits = 18

// Zero is the formatted zero price.
const Zero = "0.000000000000000000"

// scale is 10^18.
var scale = big.NewInt(1_000_000_000_000_000_000)

// Format renders the ratio num/den as a decimal string with exactly 18
// fractional digits. The division truncates toward zero; there is no
// rounding. A zero denominator formats as Zero. Both inputs must be
// non-negative.
func Format(num, den *big.Int) string {
	if den.Sign() == 0 {
		return Zero
	}

	scaled := new(big.Int).Mul(num, scale)
	scaled.Quo(scaled, den)

	s := scaled.String()
	switch {
	case len(s) < FractionDigits:
		return "0." + strings.Repeat("0", FractionDigits-len(s)) + s
	case len(s) == FractionDigits:
		return "0." + s
	default:
		return s[:len(s)-FractionDigits] + "." + s[len(s)-FractionDigits:]
	}
}

// Parse converts a formatted price back to its 10^18-scaled integer value.
//
// Parse is only well-defined for inputs in [0, 1): strings of the form
// "0.dddddddddddddddddd" or ".dddddddddddddddddd". The strip step discards
// every leading zero and the decimal point, so any value >= 1.0 leaves a '.'
// embedded in the digits and parses to zero. This asymmetry with Format is a
// deliberate contract, not a bug to fix in passing: outcome token prices live
// in [0, 1], and widening the domain would silently change every realized
// P&L figure derived from historical fills. Unparseable input also yields
// zero rather than an error.
func Parse(s string) *big.Int {
	cleaned := strings.TrimLeft(s, "0")
	cleaned = strings.TrimLeft(cleaned, ".")
	if len(cleaned) < FractionDigits {
		cleaned = strings.Repeat("0", FractionDigits-len(cleaned)) + cleaned
	}

	v, ok := new(big.Int).SetString(cleaned, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
