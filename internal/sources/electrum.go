package sources

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/money"
	"github.com/sklarsa/bitcoin-gains/internal/source"
)

// electrumV2Header and electrumV3Header distinguish Electrum's wallet
// history export across its two CSV shapes (the v3 export added a
// "fiat_value" column).
const (
	electrumV2Header = "transaction_hash,label,confirmations,value,timestamp"
	electrumV3Header = "transaction_hash,label,confirmations,value,fiat_value,timestamp"
)

// Electrum parses an Electrum wallet-history CSV export, in either its v2
// or v3 column layout.
type Electrum struct {
	counter source.Counter
}

// NewElectrum constructs an Electrum adapter.
func NewElectrum() *Electrum { return &Electrum{} }

// Name implements source.Parser.
func (e *Electrum) Name() string { return "electrum" }

// CanParse implements source.Parser.
func (e *Electrum) CanParse(path string) (bool, error) {
	line, err := peekLine(path)
	if err != nil {
		return false, err
	}
	lower := strings.ToLower(line)
	return lower == electrumV2Header || lower == electrumV3Header, nil
}

// Parse implements source.Parser.
func (e *Electrum) Parse(path string) ([]*ledger.Transaction, error) {
	header, err := peekLine(path)
	if err != nil {
		return nil, err
	}
	hasFiat := strings.EqualFold(header, electrumV3Header)

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

		var valueField, tsField, fiatField string
		switch {
		case hasFiat && len(record) >= 6:
			valueField, fiatField, tsField = record[3], record[4], record[5]
		case !hasFiat && len(record) >= 5:
			valueField, tsField = record[3], record[4]
		default:
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("unexpected column count %d", len(record))}
		}

		ts, err := parseTimestamp("2006-01-02 15:04", tsField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		btc, err := parseDecimal("value", valueField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}

		z := decimal.Zero
		txn := &ledger.Transaction{
			Timestamp: ts, Btc: btc, Usd: &z,
			ID: record[0], Txid: record[0], Info: record[1], Parser: e.Name(),
		}
		if btc.IsNegative() {
			txn.Type = ledger.Withdraw
		} else {
			txn.Type = ledger.Deposit
		}
		// fiat_value is the transaction's total fiat worth, not a rate.
		if hasFiat && strings.TrimSpace(fiatField) != "" && !btc.IsZero() {
			if fiat, err := parseDecimal("fiat_value", fiatField); err == nil {
				price := money.Price(fiat, btc)
				txn.Price = &price
			}
		}
		out = append(out, txn)
	}
	return out, nil
}

// Merge implements source.Parser.
func (e *Electrum) Merge(rows []*ledger.Transaction) ([]*ledger.Transaction, error) {
	return singleMerge(rows)
}

// DefaultAccount implements source.Parser.
func (e *Electrum) DefaultAccount() string { return "electrum" }

// CheckComplete implements source.Parser.
func (e *Electrum) CheckComplete() error { return nil }

// Reset implements source.Parser.
func (e *Electrum) Reset() {}
