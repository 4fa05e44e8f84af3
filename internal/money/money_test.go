package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundUSDHalfEven(t *testing.T) {
	assert.Equal(t, "2.00", RoundUSD(decimal.RequireFromString("1.995")).String())
	assert.Equal(t, "2.02", RoundUSD(decimal.RequireFromString("2.015")).String())
}

func TestPrice(t *testing.T) {
	assert.Equal(t, decimal.Zero, Price(decimal.NewFromInt(100), decimal.Zero))
	assert.Equal(t, "500.0000", Price(decimal.NewFromInt(500), decimal.NewFromInt(1)).String())
}

func TestParseEmpty(t *testing.T) {
	d, err := Parse("")
	assert.NoError(t, err)
	assert.True(t, d.IsZero())
}
