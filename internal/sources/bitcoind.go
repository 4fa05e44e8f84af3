package sources

import (
	"encoding/json"
	"os"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/source"
)

// bitcoindWhitespace supports the loose shape check in CanParse: the
// first ~100 whitespace-collapsed bytes must start with '[{"account":'.
var bitcoindWhitespace = regexp.MustCompile(`\s+`)

type bitcoindEntry struct {
	Account      string      `json:"account"`
	OtherAccount string      `json:"otheraccount"`
	Category     string      `json:"category"`
	Amount       json.Number `json:"amount"`
	Fee          json.Number `json:"fee"`
	Time         int64       `json:"time"`
	Txid         string      `json:"txid"`
	To           string      `json:"to"`
	Comment      string      `json:"comment"`
	Address      string      `json:"address"`
}

// Bitcoind parses a `bitcoind listtransactions`-style JSON array dump:
// "receive" rows are deposits, "send" rows are withdrawals carrying the
// network fee, and "move" rows with a negative amount become an internal
// transfer (unless sub-accounts are consolidated into one).
type Bitcoind struct {
	Consolidate bool

	counter source.Counter
}

// NewBitcoind constructs a Bitcoind adapter. consolidate mirrors the
// consolidate_bitcoind flag: when true, every sub-account collapses to a
// single "bitcoind" account and move events (internal transfers between
// sub-accounts) are dropped entirely.
func NewBitcoind(consolidate bool) *Bitcoind {
	return &Bitcoind{Consolidate: consolidate}
}

// Name implements source.Parser.
func (b *Bitcoind) Name() string { return "bitcoind" }

// CanParse implements source.Parser.
func (b *Bitcoind) CanParse(path string) (bool, error) {
	head, err := peekBytes(path, 100)
	if err != nil {
		return false, err
	}
	collapsed := bitcoindWhitespace.ReplaceAllString(head, "")
	return strings.HasPrefix(collapsed, `[{"account":`), nil
}

// Parse implements source.Parser.
func (b *Bitcoind) Parse(path string) ([]*ledger.Transaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []bitcoindEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &source.ParseError{File: path, Err: err}
	}

	var out []*ledger.Transaction
	for i, e := range entries {
		amount, err := decimal.NewFromString(e.Amount.String())
		if err != nil {
			return nil, &source.ParseError{File: path, Row: i + 1, Err: err}
		}
		amount = amount.Round(8)

		// The daemon reports fees as negative amounts.
		var fee decimal.Decimal
		if e.Fee.String() != "" {
			fee, err = decimal.NewFromString(e.Fee.String())
			if err != nil {
				return nil, &source.ParseError{File: path, Row: i + 1, Err: err}
			}
			fee = fee.Round(8).Abs()
		}

		info := strings.TrimSpace(strings.Join([]string{e.To, e.Comment, e.Address}, " "))
		ts := clock.New(secondsToTime(e.Time))
		account := b.account(e.Account)

		z := decimal.Zero
		switch e.Category {
		case "receive":
			out = append(out, &ledger.Transaction{
				Timestamp: ts, Type: ledger.Deposit, Btc: amount, Usd: &z,
				ID: e.Txid, Info: info, Account: account, Parser: b.Name(),
			})
		case "send":
			out = append(out, &ledger.Transaction{
				Timestamp: ts, Type: ledger.Withdraw, Btc: amount, Usd: &z, FeeBtc: fee,
				ID: e.Txid, Info: info, Account: account, Parser: b.Name(),
			})
		case "move":
			if amount.IsNegative() && !b.Consolidate {
				out = append(out, &ledger.Transaction{
					Timestamp: ts, Type: ledger.Transfer, Btc: amount, Usd: &z,
					Info: info, Account: account, DestAccount: b.account(e.OtherAccount),
					ID: b.counter.Next(), Parser: b.Name(),
				})
			}
		}
	}
	return out, nil
}

func (b *Bitcoind) account(sub string) string {
	if b.Consolidate {
		return "bitcoind"
	}
	return strings.Trim("bitcoind-"+sub, "-")
}

// Merge implements source.Parser: a send's network fee only applies once
// even if bitcoind split it across several outputs sharing a txid.
func (b *Bitcoind) Merge(rows []*ledger.Transaction) ([]*ledger.Transaction, error) {
	for i, t := range rows {
		if i > 0 {
			t.FeeBtc = decimal.Zero
		}
	}
	return rows, nil
}

// DefaultAccount implements source.Parser.
func (b *Bitcoind) DefaultAccount() string { return "bitcoind" }

// CheckComplete implements source.Parser.
func (b *Bitcoind) CheckComplete() error { return nil }

// Reset implements source.Parser.
func (b *Bitcoind) Reset() {}
