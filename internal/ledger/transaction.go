// Package ledger defines the canonical event and lot model the rest of the
// engine operates on: the Transaction records ingested from source adapters
// and normalized by merge/transfer-matching, and the Lot records held in
// per-account inventories.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
)

// Type is the closed set of transaction kinds the engine understands.
type Type string

const (
	Deposit     Type = "deposit"
	Withdraw    Type = "withdraw"
	Trade       Type = "trade"
	Transfer    Type = "transfer"
	TransferOut Type = "transfer_out"
	Gift        Type = "gift"
	Fee         Type = "fee"
)

// UnknownTypeError is returned when a source adapter or classification
// yields a type this engine does not model.
type UnknownTypeError struct {
	Type Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown transaction type %q", e.Type)
}

// Valid reports whether t is one of the closed enumeration values.
func (t Type) Valid() bool {
	switch t {
	case Deposit, Withdraw, Trade, Transfer, TransferOut, Gift, Fee:
		return true
	}
	return false
}

// Transaction is the canonical unit of ingest and replay.
//
// Sign convention: Btc positive means an increase of the user's holdings,
// negative a decrease. For Trade, Usd carries the opposite sign of Btc
// (buy: Btc>0, Usd<0; sell: Btc<0, Usd>0). Usd is a pointer so that an
// event can be "awaiting classification" (nil Usd) until an external
// classification or interactive prompt supplies one.
type Transaction struct {
	Timestamp   clock.Timestamp
	Type        Type
	Btc         decimal.Decimal
	Usd         *decimal.Decimal
	Price       *decimal.Decimal
	FeeBtc      decimal.Decimal
	FeeUsd      decimal.Decimal
	Account     string
	DestAccount string
	ID          string
	Txid        string
	Info        string
	Parser      string
}

// EffectivePrice returns the Price field if set, else derives it from
// Usd/Btc, else reports ok=false.
func (t *Transaction) EffectivePrice() (decimal.Decimal, bool) {
	if t.Price != nil {
		return *t.Price, true
	}
	if t.Usd == nil || t.Btc.IsZero() {
		return decimal.Zero, false
	}
	return (*t.Usd).Div(t.Btc), true
}

// Less implements the ledger's total order: primarily by Timestamp;
// on a tie, transfer arrivals on the destination side precede the outgoing
// leg, and otherwise by (descending Btc, ascending stringified ID) so
// incoming amounts apply before outgoings at the same instant.
func Less(left, right *Transaction) bool {
	if !left.Timestamp.Equal(right.Timestamp) {
		return left.Timestamp.Before(right.Timestamp)
	}

	if left.Type == Transfer && left.DestAccount == right.Account {
		return left.Btc.IsNegative()
	}
	if right.Type == Transfer && right.DestAccount == left.Account {
		return !right.Btc.IsNegative()
	}

	if !left.Btc.Equal(right.Btc) {
		return left.Btc.GreaterThan(right.Btc)
	}
	return left.ID < right.ID
}

// ByOrder sorts a slice of *Transaction using Less, for use with sort.Slice.
func ByOrder(txns []*Transaction) func(i, j int) bool {
	return func(i, j int) bool { return Less(txns[i], txns[j]) }
}
