package transfer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
)

func ts(h int) clock.Timestamp {
	return clock.New(time.Date(2020, 1, 1, h, 0, 0, 0, time.UTC))
}

func TestPass1MatchesByAmountAndTime(t *testing.T) {
	w := &ledger.Transaction{ID: "w1", Type: ledger.Withdraw, Timestamp: ts(0), Btc: decimal.NewFromInt(-1), Account: "B"}
	d := &ledger.Transaction{ID: "d1", Type: ledger.Deposit, Timestamp: ts(1), Btc: decimal.NewFromInt(1), Account: "A"}

	res := Match([]*ledger.Transaction{w, d}, 24)
	assert.Len(t, res.Events, 1)
	assert.Equal(t, ledger.Transfer, res.Events[0].Type)
	assert.Equal(t, "A", res.Events[0].DestAccount)
	assert.Equal(t, "B", res.Events[0].Account)
	assert.Empty(t, res.Mismatches)
}

// Amounts parsed with different trailing scale (e.g. a withdrawal recorded
// as "1" by one adapter and a deposit recorded as "1.00000000" by another)
// must still match as the same transfer.
func TestPass1MatchesAcrossDifferingDecimalScale(t *testing.T) {
	w := &ledger.Transaction{ID: "w1", Type: ledger.Withdraw, Timestamp: ts(0), Btc: decimal.RequireFromString("-1"), Account: "B"}
	d := &ledger.Transaction{ID: "d1", Type: ledger.Deposit, Timestamp: ts(1), Btc: decimal.RequireFromString("1.00000000"), Account: "A"}

	res := Match([]*ledger.Transaction{w, d}, 24)
	assert.Len(t, res.Events, 1)
	assert.Equal(t, ledger.Transfer, res.Events[0].Type)
	assert.Empty(t, res.Mismatches)
}

// A withdrawal fee recorded separately by the source folds into the
// transfer's btc so the field carries the full debit on the originating
// side.
func TestPass1FoldsWithdrawFeeIntoTransferAmount(t *testing.T) {
	w := &ledger.Transaction{ID: "w1", Type: ledger.Withdraw, Timestamp: ts(0), Btc: decimal.NewFromInt(-1), FeeBtc: decimal.RequireFromString("0.0005"), Account: "B"}
	d := &ledger.Transaction{ID: "d1", Type: ledger.Deposit, Timestamp: ts(1), Btc: decimal.NewFromInt(1), Account: "A"}

	res := Match([]*ledger.Transaction{w, d}, 24)
	assert.Len(t, res.Events, 1)
	tr := res.Events[0]
	assert.True(t, tr.Btc.Equal(decimal.RequireFromString("-1.0005")), "btc, got %s", tr.Btc)
	assert.True(t, tr.FeeBtc.Equal(decimal.RequireFromString("0.0005")), "fee_btc, got %s", tr.FeeBtc)
}

func TestPass1SkipsSameAccount(t *testing.T) {
	w := &ledger.Transaction{ID: "w1", Type: ledger.Withdraw, Timestamp: ts(0), Btc: decimal.NewFromInt(-1), Account: "A"}
	d := &ledger.Transaction{ID: "d1", Type: ledger.Deposit, Timestamp: ts(1), Btc: decimal.NewFromInt(1), Account: "A"}

	res := Match([]*ledger.Transaction{w, d}, 24)
	assert.Len(t, res.Events, 2)
	assert.Len(t, res.Mismatches, 1)
}

// Matching is idempotent: transfers produced by a first run are not
// withdrawals or deposits, so a second run leaves the ledger unchanged.
func TestMatchIsIdempotent(t *testing.T) {
	w := &ledger.Transaction{ID: "w1", Type: ledger.Withdraw, Timestamp: ts(0), Btc: decimal.NewFromInt(-1), Account: "B"}
	d := &ledger.Transaction{ID: "d1", Type: ledger.Deposit, Timestamp: ts(1), Btc: decimal.NewFromInt(1), Account: "A"}
	lone := &ledger.Transaction{ID: "d2", Type: ledger.Deposit, Timestamp: ts(2), Btc: decimal.NewFromInt(2), Account: "A"}

	once := Match([]*ledger.Transaction{w, d, lone}, 24)
	twice := Match(once.Events, 24)
	assert.Equal(t, once.Events, twice.Events)
	assert.Empty(t, twice.Mismatches)
}

func TestPass2MatchesByTxidWithFee(t *testing.T) {
	w := &ledger.Transaction{ID: "w1", Type: ledger.Withdraw, Timestamp: ts(0), Btc: decimal.RequireFromString("-1.0"), Account: "A", Txid: "tx1"}
	d := &ledger.Transaction{ID: "d1", Type: ledger.Deposit, Timestamp: ts(100), Btc: decimal.RequireFromString("0.999"), Account: "B", Txid: "tx1"}

	res := Match([]*ledger.Transaction{w, d}, 24)
	assert.Len(t, res.Events, 1)
	tr := res.Events[0]
	assert.Equal(t, ledger.Transfer, tr.Type)
	assert.True(t, tr.FeeBtc.Equal(decimal.RequireFromString("0.001")), "fee_btc, got %s", tr.FeeBtc)
	assert.True(t, tr.Btc.Equal(decimal.RequireFromString("-1.0")), "btc, got %s", tr.Btc)
}
