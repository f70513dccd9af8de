package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertSameCurrency(t *testing.T) {
	assert.Equal(t, 12.35, Convert(12.345, "USD", "usd"))
}

func TestConvertFromBase(t *testing.T) {
	assert.Equal(t, 6.5, Convert(100, "GHS", "USD"))
	assert.Equal(t, 10450.0, Convert(100, "GHS", "NGN"))
}

func TestConvertToBase(t *testing.T) {
	assert.Equal(t, 100.0, Convert(6.5, "USD", "GHS"))
}

func TestConvertRoutesThroughBase(t *testing.T) {
	// 10 USD -> 153.85 GHS -> 9.23 EUR, rounding at each step.
	assert.Equal(t, 9.23, Convert(10, "USD", "EUR"))
}

func TestConvertUnknownCurrencyIsUnconverted(t *testing.T) {
	assert.Equal(t, 42.5, Convert(42.5, "GHS", "XYZ"))
}

func TestConvertNonFiniteIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Convert(math.NaN(), "GHS", "USD"))
	assert.Equal(t, 0.0, Convert(math.Inf(1), "USD", "GHS"))
}

func TestConvertRoundTrip(t *testing.T) {
	amounts := []float64{0, 0.5, 1.23, 19.99, 100, 1234.56, 99999.99}
	for from := range Rates {
		for to := range Rates {
			for _, x := range amounts {
				back := Convert(Convert(x, from, to), to, from)
				// Each rounding step loses at most half a minor unit of the
				// intermediate currency, expressed back in the source.
				ratio := Rates[from].Div(Rates[to]).InexactFloat64()
				tol := 0.01*math.Max(1, ratio)*2 + 0.005
				assert.InDelta(t, x, back, tol, "%v %s->%s->%s", x, from, to, from)
			}
		}
	}
}

func TestFormat(t *testing.T) {
	cases := []struct {
		amount   float64
		currency string
		want     string
	}{
		{1234.5, "GHS", "GH₵1,234.50"},
		{0, "USD", "$0.00"},
		{1000000, "NGN", "₦1,000,000.00"},
		{-12.3, "USD", "-$12.30"},
		{999.999, "EUR", "€1,000.00"},
		{5, "xyz", "XYZ 5.00"},
		{math.NaN(), "GBP", "£0.00"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Format(tc.amount, tc.currency))
	}
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(12999), ToMinorUnits(129.99))
	assert.Equal(t, int64(1001), ToMinorUnits(10.005))
	assert.Equal(t, int64(0), ToMinorUnits(math.NaN()))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("usd"))
	assert.True(t, Supported(""))
	assert.False(t, Supported("JPY"))
}
