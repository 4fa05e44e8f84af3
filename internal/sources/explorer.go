package sources

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/source"
)

// explorerDump is the shape of a single-address history as returned by a
// blockchain-explorer JSON API: an address plus its
// transaction list, each carrying the net BTC delta for that address.
type explorerDump struct {
	Address      string      `json:"address"`
	Transactions []explorerTx `json:"txs"`
}

type explorerTx struct {
	Hash   string      `json:"hash"`
	Time   int64       `json:"time"`
	Result json.Number `json:"result"` // net BTC change to the address, signed
	Fee    json.Number `json:"fee"`
}

// Explorer parses a single-address blockchain-explorer JSON history:
// distinct from Bitcoind's multi-account wallet dump, every row belongs
// to the one address named at the top level and is attributed to an
// account named after that address.
type Explorer struct {
	counter source.Counter
}

// NewExplorer constructs an Explorer adapter.
func NewExplorer() *Explorer { return &Explorer{} }

// Name implements source.Parser.
func (e *Explorer) Name() string { return "explorer" }

// CanParse implements source.Parser.
func (e *Explorer) CanParse(path string) (bool, error) {
	head, err := peekBytes(path, 256)
	if err != nil {
		return false, err
	}
	trimmed := strings.TrimSpace(head)
	return strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, `"address"`) && strings.Contains(trimmed, `"txs"`), nil
}

// Parse implements source.Parser.
func (e *Explorer) Parse(path string) ([]*ledger.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var dump explorerDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, &source.ParseError{File: path, Err: err}
	}

	var out []*ledger.Transaction
	for i, tx := range dump.Transactions {
		result, err := decimal.NewFromString(tx.Result.String())
		if err != nil {
			return nil, &source.ParseError{File: path, Row: i + 1, Err: err}
		}
		result = result.Round(8)

		var fee decimal.Decimal
		if tx.Fee.String() != "" {
			fee, err = decimal.NewFromString(tx.Fee.String())
			if err != nil {
				return nil, &source.ParseError{File: path, Row: i + 1, Err: err}
			}
			fee = fee.Round(8)
		}

		z := decimal.Zero
		ts := clock.New(secondsToTime(tx.Time))
		typ := ledger.Deposit
		if result.IsNegative() {
			typ = ledger.Withdraw
		}
		out = append(out, &ledger.Transaction{
			Timestamp: ts, Type: typ, Btc: result, Usd: &z, FeeBtc: fee,
			Account: "explorer-" + dump.Address, ID: tx.Hash, Txid: tx.Hash, Parser: e.Name(),
		})
	}
	return out, nil
}

// Merge implements source.Parser.
func (e *Explorer) Merge(rows []*ledger.Transaction) ([]*ledger.Transaction, error) {
	return singleMerge(rows)
}

// DefaultAccount implements source.Parser.
func (e *Explorer) DefaultAccount() string { return "explorer" }

// CheckComplete implements source.Parser.
func (e *Explorer) CheckComplete() error { return nil }

// Reset implements source.Parser.
func (e *Explorer) Reset() {}
