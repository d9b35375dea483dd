package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SheetFormats(t *testing.T) {
	cases := []struct {
		raw  string
		want Cents
	}{
		{"1250.00", 125000},
		{"$1,250.00", 125000},
		{" $1,250 ", 125000},
		{"1250", 125000},
		{"1250.5", 125050},
		{"0.07", 7},
		{"-75.50", -7550},
		{"(75.50)", -7550},
		{"$-75.50", -7550},
		{"0", 0},
		{".50", 50},
		{"12.", 1200},
	}
	for _, tc := range cases {
		got, err := Parse(tc.raw)
		require.NoError(t, err, "raw=%q", tc.raw)
		assert.Equal(t, tc.want, got, "raw=%q", tc.raw)
	}
}

func TestParse_RoundsHalfAwayFromZero(t *testing.T) {
	got, err := Parse("1.005")
	require.NoError(t, err)
	assert.Equal(t, Cents(101), got)

	got, err = Parse("1.004")
	require.NoError(t, err)
	assert.Equal(t, Cents(100), got)

	got, err = Parse("(1.005)")
	require.NoError(t, err)
	assert.Equal(t, Cents(-101), got)
}

func TestParse_Malformed(t *testing.T) {
	for _, raw := range []string{"", "   ", "$", "abc", "12.3.4", "1O0", "--5", "."} {
		_, err := Parse(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}

func TestString_CanonicalForm(t *testing.T) {
	cases := []struct {
		in   Cents
		want string
	}{
		{125000, "1250.00"},
		{125050, "1250.50"},
		{7, "0.07"},
		{0, "0.00"},
		{-7550, "-75.50"},
		{-5, "-0.05"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.in.String())
	}
}

func TestString_RoundTripsThroughParse(t *testing.T) {
	for _, c := range []Cents{0, 1, 99, 100, 125000, -1, -99, -125050} {
		back, err := Parse(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, back)
	}
}

func TestFloat64(t *testing.T) {
	assert.InDelta(t, 1250.0, Cents(125000).Float64(), 1e-9)
	assert.InDelta(t, -0.05, Cents(-5).Float64(), 1e-9)
}
