package oracle

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
)

func TestStaticOraclePrefersExactDate(t *testing.T) {
	ts := clock.New(time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC))
	def := decimal.NewFromInt(100)
	o := &Static{Prices: map[string]decimal.Decimal{"2020-06-01": decimal.NewFromInt(9000)}, Default: &def}

	price, err := o.Price(context.Background(), ts)
	assert.NoError(t, err)
	assert.Equal(t, decimal.NewFromInt(9000), price)
}

func TestStaticOracleMissingWithoutDefault(t *testing.T) {
	ts := clock.New(time.Date(2020, 6, 1, 12, 0, 0, 0, time.UTC))
	o := &Static{Prices: map[string]decimal.Decimal{}}

	_, err := o.Price(context.Background(), ts)
	assert.Error(t, err)
	var missing *MissingPriceError
	assert.ErrorAs(t, err, &missing)
}
