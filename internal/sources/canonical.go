package sources

import (
	"fmt"
	"io"
	"strings"

	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/source"
)

// canonicalHeader is the flat ledger input header, used for CanParse
// sniffing.
const canonicalHeader = "timestamp,account,type,btc,usd,fee_btc,fee_usd,info"

// Canonical reads the generic canonical CSV, an input format of its own.
// The flat ledger the orchestration layer writes uses a different header
// and column order, so this adapter does not read that output back.
type Canonical struct {
	counter source.Counter
}

// NewCanonical constructs a Canonical adapter.
func NewCanonical() *Canonical { return &Canonical{} }

// Name implements source.Parser.
func (c *Canonical) Name() string { return "canonical" }

// CanParse implements source.Parser.
func (c *Canonical) CanParse(path string) (bool, error) {
	line, err := peekLine(path)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(line) == canonicalHeader, nil
}

// Parse implements source.Parser.
func (c *Canonical) Parse(path string) ([]*ledger.Transaction, error) {
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
			continue // header
		}
		if len(record) < 8 {
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("expected 8 columns, got %d", len(record))}
		}

		ts, err := parseTimestamp("2006-01-02 15:04:05", record[0])
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		typ := ledger.Type(record[2])
		if !typ.Valid() {
			return nil, &source.ParseError{File: path, Row: row, Err: &ledger.UnknownTypeError{Type: typ}}
		}
		btc, err := parseDecimal("btc", record[3])
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		usd, err := parseDecimal("usd", record[4])
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		feeBtc, err := parseDecimal("fee_btc", record[5])
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		feeUsd, err := parseDecimal("fee_usd", record[6])
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}

		u := usd
		out = append(out, &ledger.Transaction{
			Timestamp: ts,
			Type:      typ,
			Btc:       btc,
			Usd:       &u,
			FeeBtc:    feeBtc,
			FeeUsd:    feeUsd,
			Account:   record[1],
			Info:      record[7],
			ID:        c.counter.Next(),
			Parser:    c.Name(),
		})
	}
	return out, nil
}

// Merge implements source.Parser: the canonical format is already final,
// one row per event.
func (c *Canonical) Merge(rows []*ledger.Transaction) ([]*ledger.Transaction, error) {
	return singleMerge(rows)
}

// DefaultAccount implements source.Parser.
func (c *Canonical) DefaultAccount() string { return "canonical" }

// CheckComplete implements source.Parser.
func (c *Canonical) CheckComplete() error { return nil }

// Reset implements source.Parser.
func (c *Canonical) Reset() {}
