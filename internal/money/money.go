// Package money converts and formats amounts between the base currency and
// display currencies using a static rate table. Nothing here performs I/O or
// returns errors: a bad amount renders as zero rather than blocking checkout.
package money

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Base is the currency every stored amount is denominated in.
const Base = "GHS"

// Rates are units of each currency per one unit of Base.
var Rates = map[string]decimal.Decimal{
	"GHS": decimal.NewFromInt(1),
	"USD": decimal.RequireFromString("0.065"),
	"EUR": decimal.RequireFromString("0.060"),
	"GBP": decimal.RequireFromString("0.051"),
	"NGN": decimal.RequireFromString("104.50"),
}

var symbols = map[string]string{
	"GHS": "GH₵",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"NGN": "₦",
}

// Supported reports whether code has a rate.
func Supported(code string) bool {
	_, ok := Rates[normalize(code)]
	return ok
}

// Convert moves amount from one currency to another. Non-base pairs route
// through Base, and every step rounds to two places. Unknown currencies leave
// the amount unconverted.
func Convert(amount float64, from, to string) float64 {
	return ConvertDecimal(fromFloat(amount), from, to).InexactFloat64()
}

// ConvertDecimal is Convert on decimals.
func ConvertDecimal(amount decimal.Decimal, from, to string) decimal.Decimal {
	from, to = normalize(from), normalize(to)
	amount = amount.Round(2)
	if from == to {
		return amount
	}
	fromRate, okFrom := Rates[from]
	toRate, okTo := Rates[to]
	if !okFrom || !okTo || fromRate.IsZero() {
		return amount
	}
	inBase := amount
	if from != Base {
		inBase = amount.Div(fromRate).Round(2)
	}
	if to == Base {
		return inBase
	}
	return inBase.Mul(toRate).Round(2)
}

// FromBase converts a base amount into a display currency.
func FromBase(amount float64, to string) float64 {
	return Convert(amount, Base, to)
}

// Format renders amount with the currency symbol, thousands separators and
// two decimals. Negative amounts get a leading sign.
func Format(amount float64, currency string) string {
	return FormatDecimal(fromFloat(amount), currency)
}

// FormatDecimal is Format on decimals.
func FormatDecimal(amount decimal.Decimal, currency string) string {
	code := normalize(currency)
	prefix, ok := symbols[code]
	if !ok {
		prefix = code + " "
	}
	amount = amount.Round(2)
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + prefix + groupThousands(whole) + "." + frac
}

// ToMinorUnits converts a base amount to the provider's smallest unit.
func ToMinorUnits(amount float64) int64 {
	return fromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Round2 rounds a float to two decimal places half away from zero.
func Round2(amount float64) float64 {
	return fromFloat(amount).Round(2).InexactFloat64()
}

func fromFloat(amount float64) decimal.Decimal {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(amount)
}

func normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Base
	}
	return code
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
