package sources

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
)

func TestBitcoindCanParseSniffsLeadingArrayShape(t *testing.T) {
	b := NewBitcoind(false)
	path := writeTempFile(t, "dump.json", `[{"account": "", "category": "receive"}]`)
	ok, err := b.CanParse(path)
	require.NoError(t, err)
	assert.True(t, ok)

	other := writeTempFile(t, "other.json", `{"address":"1abc"}`)
	ok, err = b.CanParse(other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBitcoindParseReceiveSendAndMove(t *testing.T) {
	b := NewBitcoind(false)
	contents := `[
		{"account":"","category":"receive","amount":"1.5","time":1577836800,"txid":"h1","address":"addr1"},
		{"account":"savings","category":"send","amount":"-0.5","fee":"-0.0001","time":1580515200,"txid":"h2"},
		{"account":"","otheraccount":"savings","category":"move","amount":"-0.25","time":1583020800}
	]`
	path := writeTempFile(t, "dump.json", contents)

	txns, err := b.Parse(path)
	require.NoError(t, err)
	require.Len(t, txns, 3)

	assert.Equal(t, ledger.Deposit, txns[0].Type)
	assert.Equal(t, "bitcoind", txns[0].Account)

	assert.Equal(t, ledger.Withdraw, txns[1].Type)
	assert.Equal(t, "bitcoind-savings", txns[1].Account)
	assert.True(t, txns[1].FeeBtc.Equal(decimal.RequireFromString("0.0001")))

	assert.Equal(t, ledger.Transfer, txns[2].Type)
	assert.Equal(t, "bitcoind", txns[2].Account)
	assert.Equal(t, "bitcoind-savings", txns[2].DestAccount)
}

func TestBitcoindConsolidateDropsMoveEvents(t *testing.T) {
	b := NewBitcoind(true)
	contents := `[
		{"account":"","otheraccount":"savings","category":"move","amount":"-0.25","time":1583020800}
	]`
	path := writeTempFile(t, "dump.json", contents)

	txns, err := b.Parse(path)
	require.NoError(t, err)
	assert.Empty(t, txns)
}
