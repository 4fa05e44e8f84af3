package sources

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
)

func TestElectrumCanParseAcceptsBothVersions(t *testing.T) {
	e := NewElectrum()

	v2 := writeTempFile(t, "v2.csv", electrumV2Header+"\n")
	ok, err := e.CanParse(v2)
	require.NoError(t, err)
	assert.True(t, ok)

	v3 := writeTempFile(t, "v3.csv", electrumV3Header+"\n")
	ok, err = e.CanParse(v3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestElectrumParseV2DepositAndWithdraw(t *testing.T) {
	e := NewElectrum()
	contents := electrumV2Header + "\n" +
		"abc123,received,2,1.5,2020-01-01 12:00\n" +
		"def456,sent,2,-0.5,2020-02-01 12:00\n"
	path := writeTempFile(t, "v2.csv", contents)

	txns, err := e.Parse(path)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, ledger.Deposit, txns[0].Type)
	assert.True(t, txns[0].Btc.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "abc123", txns[0].Txid)

	assert.Equal(t, ledger.Withdraw, txns[1].Type)
}

func TestElectrumParseV3DerivesPriceFromFiatValue(t *testing.T) {
	e := NewElectrum()
	contents := electrumV3Header + "\n" +
		"abc123,received,2,0.5,4500.00,2020-01-01 12:00\n"
	path := writeTempFile(t, "v3.csv", contents)

	txns, err := e.Parse(path)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	require.NotNil(t, txns[0].Price)
	assert.True(t, txns[0].Price.Equal(decimal.RequireFromString("9000")))
}
