// Package money provides the fixed-point decimal primitives used throughout
// the engine. BTC amounts carry 8 fractional digits, USD amounts carry 2,
// and intermediate rates (prices, fees derived from a price) carry 4.
// Floating point is never used for monetary values; all arithmetic goes
// through github.com/shopspring/decimal.
package money

import "github.com/shopspring/decimal"

// Scale exponents, expressed as the number of fractional digits kept.
const (
	BTCScale  = 8
	USDScale  = 2
	RateScale = 4
)

// Zero is the shared zero value, safe to use as a decimal.Decimal literal.
var Zero = decimal.Zero

// RoundBTC rounds d to BTC precision (8 fractional digits).
func RoundBTC(d decimal.Decimal) decimal.Decimal {
	return d.Round(BTCScale)
}

// RoundUSD rounds d to USD precision using banker's rounding (half-even),
// applied at every USD-denominated sum per the engine's determinism
// requirement.
func RoundUSD(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(USDScale)
}

// RoundRate rounds d to the 4-digit precision used for intermediate
// fee/price computations.
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(RateScale)
}

// Price returns usd/btc rounded to rate precision, or Zero if btc is zero.
func Price(usd, btc decimal.Decimal) decimal.Decimal {
	if btc.IsZero() {
		return Zero
	}
	return RoundRate(usd.Div(btc))
}

// Parse parses a decimal string, returning Zero for an empty string (many
// CSV exports leave a column blank rather than "0").
func Parse(s string) (decimal.Decimal, error) {
	if s == "" {
		return Zero, nil
	}
	return decimal.NewFromString(s)
}

// MustParse is Parse, panicking on error; used only for literals known to
// be well-formed (e.g. constants in source adapters).
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}
