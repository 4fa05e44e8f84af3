package sources

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
)

func TestCoinbaseProCanParseAcceptsAccountsAndFillsHeaders(t *testing.T) {
	c := NewCoinbasePro(false)

	accounts := writeTempFile(t, "accounts.csv", coinbaseProAccountsHeader+"\n")
	ok, err := c.CanParse(accounts)
	require.NoError(t, err)
	assert.True(t, ok)

	fills := writeTempFile(t, "fills.csv", coinbaseProFillsHeader+"\n")
	ok, err = c.CanParse(fills)
	require.NoError(t, err)
	assert.True(t, ok)

	other := writeTempFile(t, "other.csv", "a,b,c\n")
	ok, err = c.CanParse(other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCoinbaseProParseAccountsSkipsNonBTCRows(t *testing.T) {
	c := NewCoinbasePro(false)
	contents := coinbaseProAccountsHeader + "\n" +
		"default,deposit,2020-01-01T00:00:00Z,1.0,1.0,BTC,tid1,,\n" +
		"default,match,2020-01-02T00:00:00Z,5,5,USD,,ord1,ord1\n" +
		"default,withdrawal,2020-02-01T00:00:00Z,-0.5,0.5,BTC,tid2,,\n"
	path := writeTempFile(t, "accounts.csv", contents)

	txns, err := c.Parse(path)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, ledger.Deposit, txns[0].Type)
	assert.Equal(t, ledger.Withdraw, txns[1].Type)
	assert.True(t, txns[1].Btc.IsNegative())
	assert.Equal(t, "coinbasepro-default", txns[0].Account)
}

func TestCoinbaseProParseFillsComputesSignedBtcAndUsd(t *testing.T) {
	c := NewCoinbasePro(false)
	contents := coinbaseProFillsHeader + "\n" +
		"default,trade1,BTC-USD,BUY,2020-01-01T00:00:00.000Z,1.0,BTC,10000,5,-10005,USD\n" +
		"default,trade2,BTC-USD,SELL,2020-02-01T00:00:00.000Z,1.0,BTC,11000,5,10995,USD\n"
	path := writeTempFile(t, "fills.csv", contents)

	txns, err := c.Parse(path)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.True(t, txns[0].Btc.Equal(decimal.RequireFromString("1.0")))
	require.NotNil(t, txns[0].Usd)
	assert.True(t, txns[0].Usd.Equal(decimal.RequireFromString("-10000")))
	assert.True(t, txns[0].FeeUsd.Equal(decimal.RequireFromString("5")))

	assert.True(t, txns[1].Btc.Equal(decimal.RequireFromString("-1.0")))
	require.NotNil(t, txns[1].Usd)
	assert.True(t, txns[1].Usd.Equal(decimal.RequireFromString("11000")))
}

func TestCoinbaseProConsolidateFoldsPortfoliosIntoOneAccount(t *testing.T) {
	c := NewCoinbasePro(true)
	contents := coinbaseProAccountsHeader + "\n" +
		"default,deposit,2020-01-01T00:00:00Z,1.0,1.0,BTC,tid1,,\n" +
		"trading,withdrawal,2020-02-01T00:00:00Z,-0.5,0.5,BTC,tid2,,\n"
	path := writeTempFile(t, "accounts.csv", contents)

	txns, err := c.Parse(path)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "coinbasepro", txns[0].Account)
	assert.Equal(t, "coinbasepro", txns[1].Account)
}
