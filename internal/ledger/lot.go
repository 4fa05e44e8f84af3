package ledger

import (
	"github.com/shopspring/decimal"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
	"github.com/sklarsa/bitcoin-gains/internal/money"
)

// Lot is a unit of holdings eligible to be sold or transferred, in whole
// or in part. Price is preserved across splits so proportional
// splitting is exact even after repeated partial sales.
type Lot struct {
	Timestamp      clock.Timestamp
	Btc            decimal.Decimal
	Usd            decimal.Decimal
	Price          decimal.Decimal
	Transaction    *Transaction
	DisallowedLoss decimal.Decimal
}

// NewLot constructs a Lot from an acquisition amount/cost, deriving Price
// from usd/btc.
func NewLot(ts clock.Timestamp, btc, usd decimal.Decimal, txn *Transaction) *Lot {
	return &Lot{
		Timestamp:      ts,
		Btc:            btc,
		Usd:            usd,
		Price:          money.Price(usd, btc),
		Transaction:    txn,
		DisallowedLoss: decimal.Zero,
	}
}

// Split divides the lot into (head, tail) where head.Btc = min(n, l.Btc).
// Disallowed loss splits proportionally with the rest of the cost basis.
// Split(0) returns (nil, l) unchanged; splitting off the whole lot (or
// more) returns (l, nil).
func (l *Lot) Split(n decimal.Decimal) (head, tail *Lot) {
	if n.Sign() <= 0 {
		return nil, l
	}
	if n.GreaterThanOrEqual(l.Btc) {
		return l, nil
	}

	headUsd := money.RoundUSD(l.Price.Mul(n))
	var headLoss, tailLoss decimal.Decimal
	if l.Btc.Sign() != 0 {
		proportion := n.Div(l.Btc)
		headLoss = money.RoundUSD(l.DisallowedLoss.Mul(proportion))
		tailLoss = l.DisallowedLoss.Sub(headLoss)
	}

	head = &Lot{
		Timestamp:      l.Timestamp,
		Btc:            n,
		Usd:            headUsd,
		Price:          l.Price,
		Transaction:    l.Transaction,
		DisallowedLoss: headLoss,
	}
	tail = &Lot{
		Timestamp:      l.Timestamp,
		Btc:            l.Btc.Sub(n),
		Usd:            l.Usd.Sub(headUsd),
		Price:          l.Price,
		Transaction:    l.Transaction,
		DisallowedLoss: tailLoss,
	}
	return head, tail
}

// Empty reports whether the lot has no remaining BTC.
func (l *Lot) Empty() bool {
	return l == nil || l.Btc.Sign() <= 0
}
