package sources

import (
	"fmt"
	"io"
	"strings"

	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/source"
)

// bitstampHeader is the account-history export's first line.
const bitstampHeader = "Type,Datetime,BTC,USD,BTC Price,FEE"

// Bitstamp parses a Bitstamp account-history CSV export: type 0 is a
// deposit, type 1 a withdrawal, type 2 a trade.
type Bitstamp struct {
	counter source.Counter
}

// NewBitstamp constructs a Bitstamp adapter.
func NewBitstamp() *Bitstamp { return &Bitstamp{} }

// Name implements source.Parser.
func (b *Bitstamp) Name() string { return "bitstamp" }

// CanParse implements source.Parser.
func (b *Bitstamp) CanParse(path string) (bool, error) {
	line, err := peekLine(path)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(line, bitstampHeader), nil
}

// Parse implements source.Parser.
func (b *Bitstamp) Parse(path string) ([]*ledger.Transaction, error) {
	f, r, err := openCSVReader(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []*ledger.Transaction
	row := 0
	for {
		record, err := r.Read()
		row++
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		if row == 1 {
			continue
		}
		if len(record) < 6 {
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("expected 6 columns, got %d", len(record))}
		}

		typ, tsField, btcField, usdField, _, feeField := record[0], record[1], record[2], record[3], record[4], record[5]
		ts, err := parseTimestamp("2006-01-02 15:04:05", tsField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		btc, err := parseDecimal("btc", btcField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}

		switch typ {
		case "0":
			usd := decimalZero()
			out = append(out, &ledger.Transaction{
				Timestamp: ts, Type: ledger.Deposit, Btc: btc, Usd: &usd,
				ID: b.counter.Next(), Parser: b.Name(),
			})
		case "1":
			usd := decimalZero()
			out = append(out, &ledger.Transaction{
				Timestamp: ts, Type: ledger.Withdraw, Btc: btc, Usd: &usd,
				ID: b.counter.Next(), Parser: b.Name(),
			})
		case "2":
			usd, err := parseDecimal("usd", usdField)
			if err != nil {
				return nil, &source.ParseError{File: path, Row: row, Err: err}
			}
			fee, err := parseDecimal("fee", feeField)
			if err != nil {
				return nil, &source.ParseError{File: path, Row: row, Err: err}
			}
			out = append(out, &ledger.Transaction{
				Timestamp: ts, Type: ledger.Trade, Btc: btc, Usd: &usd, FeeUsd: fee,
				ID: b.counter.Next(), Parser: b.Name(),
			})
		default:
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("unrecognized bitstamp row type %q", typ)}
		}
	}
	return out, nil
}

// Merge implements source.Parser.
func (b *Bitstamp) Merge(rows []*ledger.Transaction) ([]*ledger.Transaction, error) {
	return singleMerge(rows)
}

// DefaultAccount implements source.Parser.
func (b *Bitstamp) DefaultAccount() string { return "bitstamp" }

// CheckComplete implements source.Parser.
func (b *Bitstamp) CheckComplete() error { return nil }

// Reset implements source.Parser.
func (b *Bitstamp) Reset() {}
