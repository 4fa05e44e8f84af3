package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
)

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestCanonicalCanParseMatchesExactHeader(t *testing.T) {
	c := NewCanonical()
	path := writeTempFile(t, "ledger.csv", "timestamp,account,type,btc,usd,fee_btc,fee_usd,info\n")
	ok, err := c.CanParse(path)
	require.NoError(t, err)
	assert.True(t, ok)

	other := writeTempFile(t, "other.csv", "date,amount\n")
	ok, err = c.CanParse(other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanonicalParseRoundTripsRows(t *testing.T) {
	c := NewCanonical()
	contents := "timestamp,account,type,btc,usd,fee_btc,fee_usd,info\n" +
		"2020-01-01 00:00:00,acct,trade,1,-100,0,0,initial buy\n" +
		"2020-06-01 00:00:00,acct,trade,-1,500,0,0,sale\n"
	path := writeTempFile(t, "ledger.csv", contents)

	txns, err := c.Parse(path)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	first := txns[0]
	assert.Equal(t, ledger.Trade, first.Type)
	assert.Equal(t, "acct", first.Account)
	assert.True(t, first.Btc.Equal(decimal.RequireFromString("1")))
	require.NotNil(t, first.Usd)
	assert.True(t, first.Usd.Equal(decimal.RequireFromString("-100")))
	assert.Equal(t, "initial buy", first.Info)
	assert.Equal(t, "canonical", first.Parser)
	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, txns[1].ID)
}

func TestCanonicalParseRejectsUnknownType(t *testing.T) {
	c := NewCanonical()
	contents := "timestamp,account,type,btc,usd,fee_btc,fee_usd,info\n" +
		"2020-01-01 00:00:00,acct,bogus,1,-100,0,0,x\n"
	path := writeTempFile(t, "ledger.csv", contents)

	_, err := c.Parse(path)
	assert.Error(t, err)
}

func TestCanonicalMergeRejectsMultipleRowsPerID(t *testing.T) {
	c := NewCanonical()
	_, err := c.Merge([]*ledger.Transaction{{ID: "a"}, {ID: "a"}})
	assert.Error(t, err)

	out, err := c.Merge([]*ledger.Transaction{{ID: "a"}})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}
