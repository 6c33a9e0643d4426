package fixedpoint

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func bi(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad big int literal: " + s)
	}
	return v
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name string
		num  string
		den  string
		want string
	}{
		{"half", "500000", "1000000", "0.500000000000000000"},
		{"six decimals", "123456", "1000000", "0.123456000000000000"},
		{"above one", "1500000", "1000000", "1.500000000000000000"},
		{"exactly one", "1000000", "1000000", "1.000000000000000000"},
		{"ten", "10000000", "1000000", "10.000000000000000000"},
		{"zero numerator", "0", "1000000", "0.000000000000000000"},
		{"zero denominator", "1000000", "0", "0.000000000000000000"},
		{"very small", "1", "1000000", "0.000001000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(bi(tt.num), bi(tt.den)))
		})
	}
}

func TestFormatTruncates(t *testing.T) {
	// 1/3 keeps repeating digits with no rounding on the last one.
	assert.Equal(t, "0.333333333333333333", Format(bi("1000000"), bi("3000000")))
	// 2/3 would round up to ...667 under round-half-up; it must not.
	assert.Equal(t, "0.666666666666666666", Format(bi("2000000"), bi("3000000")))
}

func TestFormatAlwaysHas18FractionDigits(t *testing.T) {
	out := Format(bi("123456789"), bi("987654321"))
	parts := assert.New(t)
	i := len(out) - FractionDigits - 1
	parts.Equal(".", out[i:i+1])
	parts.Len(out[i+1:], FractionDigits)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"half", "0.500000000000000000", "500000000000000000"},
		{"zero", "0.000000000000000000", "0"},
		{"small", "0.000001000000000000", "1000000000000"},
		{"no leading zero", ".500000000000000000", "500000000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, bi(tt.want), Parse(tt.in))
		})
	}
}

// Parse discards the integer part, so anything >= 1.0 collapses to zero.
// These cases pin the documented domain restriction.
func TestParseDomainRestriction(t *testing.T) {
	assert.Equal(t, bi("0"), Parse("1.000000000000000000"))
	assert.Equal(t, bi("0"), Parse("1.500000000000000000"))
}

func TestParseGarbageIsZero(t *testing.T) {
	assert.Equal(t, bi("0"), Parse("not a price"))
	assert.Equal(t, bi("0"), Parse(""))
}

// Format and Parse are inverses for all ratios strictly below one.
func TestRoundTripBelowOne(t *testing.T) {
	cases := [][2]string{
		{"678901", "1000000"},
		{"1", "3"},
		{"999999", "1000000"},
		{"123456789", "987654321000"},
	}
	scale := bi("1000000000000000000")
	for _, c := range cases {
		num, den := bi(c[0]), bi(c[1])
		want := new(big.Int).Mul(num, scale)
		want.Quo(want, den)
		assert.Equal(t, want, Parse(Format(num, den)), "num=%s den=%s", c[0], c[1])
	}
}
