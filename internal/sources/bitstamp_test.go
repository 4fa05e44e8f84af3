package sources

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
)

func TestBitstampCanParseMatchesHeaderPrefix(t *testing.T) {
	b := NewBitstamp()
	path := writeTempFile(t, "bitstamp.csv", bitstampHeader+"\n")
	ok, err := b.CanParse(path)
	require.NoError(t, err)
	assert.True(t, ok)

	other := writeTempFile(t, "other.csv", "Type,Date\n")
	ok, err = b.CanParse(other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBitstampParseDispatchesOnRowType(t *testing.T) {
	b := NewBitstamp()
	contents := bitstampHeader + "\n" +
		"0,2020-01-01 00:00:00,1.0,,,0\n" +
		"1,2020-02-01 00:00:00,0.5,,,0\n" +
		"2,2020-03-01 00:00:00,1.0,-9000,9000,10\n"
	path := writeTempFile(t, "bitstamp.csv", contents)

	txns, err := b.Parse(path)
	require.NoError(t, err)
	require.Len(t, txns, 3)

	assert.Equal(t, ledger.Deposit, txns[0].Type)
	assert.True(t, txns[0].Btc.Equal(decimal.RequireFromString("1.0")))

	assert.Equal(t, ledger.Withdraw, txns[1].Type)

	assert.Equal(t, ledger.Trade, txns[2].Type)
	require.NotNil(t, txns[2].Usd)
	assert.True(t, txns[2].Usd.Equal(decimal.RequireFromString("-9000")))
	assert.True(t, txns[2].FeeUsd.Equal(decimal.RequireFromString("10")))
}

func TestBitstampParseRejectsUnknownRowType(t *testing.T) {
	b := NewBitstamp()
	contents := bitstampHeader + "\n" + "9,2020-01-01 00:00:00,1.0,,,0\n"
	path := writeTempFile(t, "bitstamp.csv", contents)

	_, err := b.Parse(path)
	assert.Error(t, err)
}
