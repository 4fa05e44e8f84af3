package merge

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/source"
)

// singleParser collapses any group of rows sharing an id into the first
// row, the simplest adapter Merge behavior.
type singleParser struct{ name string }

func (p *singleParser) Name() string                                { return p.name }
func (p *singleParser) CanParse(string) (bool, error)               { return false, nil }
func (p *singleParser) Parse(string) ([]*ledger.Transaction, error) { return nil, nil }
func (p *singleParser) DefaultAccount() string                      { return p.name }
func (p *singleParser) CheckComplete() error                        { return nil }
func (p *singleParser) Reset()                                      {}
func (p *singleParser) Merge(rows []*ledger.Transaction) ([]*ledger.Transaction, error) {
	return rows[:1], nil
}

func TestMergeGroupsByParserAndID(t *testing.T) {
	ts := clock.New(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	usd := decimal.NewFromInt(100)
	rows := []*ledger.Transaction{
		{Parser: "bitstamp", ID: "a", Timestamp: ts, Type: ledger.Deposit, Btc: decimal.NewFromInt(1)},
		{Parser: "bitstamp", ID: "a", Timestamp: ts, Type: ledger.Deposit, Btc: decimal.NewFromInt(1), Usd: &usd},
		{Parser: "bitstamp", ID: "b", Timestamp: ts, Type: ledger.Withdraw, Btc: decimal.NewFromInt(-1)},
	}
	p := &singleParser{name: "bitstamp"}
	out, err := Merge(rows, map[string]source.Parser{"bitstamp": p})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
