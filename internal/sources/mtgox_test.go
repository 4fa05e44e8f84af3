package sources

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
)

func TestMtGoxCanParseMatchesHeader(t *testing.T) {
	m := NewMtGox()
	path := writeTempFile(t, "mtgoxBTC.csv", mtgoxHeader+"\n")
	ok, err := m.CanParse(path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMtGoxParseDepositAndWithdrawOnBTCFile(t *testing.T) {
	m := NewMtGox()
	contents := mtgoxHeader + "\n" +
		"1,2020-01-01 00:00:00,deposit,tid:1,1.0,1.0\n" +
		"2,2020-02-01 00:00:00,withdraw,tid:2,0.5,0.5\n"
	path := writeTempFile(t, "mtgoxBTC.csv", contents)

	txns, err := m.Parse(path)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, ledger.Deposit, txns[0].Type)
	assert.True(t, txns[0].Btc.Equal(decimal.RequireFromString("1.0")))
	assert.Equal(t, "tid:1", txns[0].ID)

	assert.Equal(t, ledger.Withdraw, txns[1].Type)
	assert.True(t, txns[1].Btc.Equal(decimal.RequireFromString("-0.5")))
}

func TestMtGoxParseRejectsFilenameWithoutBTCOrUSD(t *testing.T) {
	m := NewMtGox()
	path := writeTempFile(t, "mtgox.csv", mtgoxHeader+"\n")

	_, err := m.Parse(path)
	assert.Error(t, err)
}

func TestMtGoxCheckCompleteRequiresMatchedPairsAndFirstRow(t *testing.T) {
	m := NewMtGox()
	btcPath := writeTempFile(t, "mtgoxBTC.csv", mtgoxHeader+"\n"+"1,2020-01-01 00:00:00,deposit,tid:1,1.0,1.0\n")
	usdPath := writeTempFile(t, "mtgoxUSD.csv", mtgoxHeader+"\n"+"1,2020-01-01 00:00:00,earned,tid:1,100,100\n")

	_, err := m.Parse(btcPath)
	require.NoError(t, err)
	assert.Error(t, m.CheckComplete()) // USD side not yet seen

	_, err = m.Parse(usdPath)
	require.NoError(t, err)
	assert.NoError(t, m.CheckComplete())
}

func TestMtGoxParseInOutSetsBtcLeg(t *testing.T) {
	m := NewMtGox()
	contents := mtgoxHeader + "\n" +
		"1,2020-01-01 00:00:00,in,tid:1,1.0,1.0\n" +
		"2,2020-01-01 00:00:01,out,tid:2,0.5,0.5\n"
	path := writeTempFile(t, "mtgoxBTC.csv", contents)

	txns, err := m.Parse(path)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, ledger.Trade, txns[0].Type)
	assert.True(t, txns[0].Btc.Equal(decimal.RequireFromString("1.0")))
	require.NotNil(t, txns[0].Usd)
	assert.True(t, txns[0].Usd.IsZero())

	assert.True(t, txns[1].Btc.Equal(decimal.RequireFromString("-0.5")))
}

func TestMtGoxMergeCombinesBTCAndUSDLegsByTid(t *testing.T) {
	m := NewMtGox()
	btcPath := writeTempFile(t, "mtgoxBTC.csv", mtgoxHeader+"\n"+"1,2020-01-01 00:00:00,in,tid:1,1.0,1.0\n")
	usdPath := writeTempFile(t, "mtgoxUSD.csv", mtgoxHeader+"\n"+"1,2020-01-01 00:00:00,spent,tid:1,100,100\n")

	btcTxns, err := m.Parse(btcPath)
	require.NoError(t, err)
	usdTxns, err := m.Parse(usdPath)
	require.NoError(t, err)

	merged, err := m.Merge(append(btcTxns, usdTxns...))
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, ledger.Trade, merged[0].Type)
	assert.True(t, merged[0].Btc.Equal(decimal.RequireFromString("1.0")))
	require.NotNil(t, merged[0].Usd)
	assert.True(t, merged[0].Usd.Equal(decimal.RequireFromString("-100")))
}

// A fee row sharing the trade's tid contributes its fee fields to the
// merged event without overriding the trade type; the missing USD fee is
// derived from the trade's price.
func TestMtGoxMergeAbsorbsFeeRow(t *testing.T) {
	m := NewMtGox()
	btcPath := writeTempFile(t, "mtgoxBTC.csv",
		mtgoxHeader+"\n"+
			"1,2020-01-01 00:00:00,in,tid:1,1.0,1.0\n"+
			"2,2020-01-01 00:00:00,fee,tid:1,0.005,0.995\n")
	usdPath := writeTempFile(t, "mtgoxUSD.csv", mtgoxHeader+"\n"+"1,2020-01-01 00:00:00,spent,tid:1,100,100\n")

	btcTxns, err := m.Parse(btcPath)
	require.NoError(t, err)
	usdTxns, err := m.Parse(usdPath)
	require.NoError(t, err)

	merged, err := m.Merge(append(btcTxns, usdTxns...))
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, ledger.Trade, merged[0].Type)
	assert.True(t, merged[0].FeeBtc.Equal(decimal.RequireFromString("0.005")), "fee_btc, got %s", merged[0].FeeBtc)
	assert.True(t, merged[0].FeeUsd.Equal(decimal.RequireFromString("0.5")), "fee_usd, got %s", merged[0].FeeUsd)
}
