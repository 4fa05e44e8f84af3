package sources

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/money"
	"github.com/sklarsa/bitcoin-gains/internal/source"
)

// krakenHeader matches the export header of Kraken's "ledgers" CSV.
const krakenHeader = "txid,refid,time,type,subtype,aclass,asset,amount,fee,balance"

// Kraken parses a Kraken ledger-history CSV export. Rows come in XBT and
// ZUSD pairs sharing a refid for trades; deposits and withdrawals are
// single XBT rows.
type Kraken struct {
	counter source.Counter

	pending map[string]*ledger.Transaction
}

// NewKraken constructs a Kraken adapter.
func NewKraken() *Kraken { return &Kraken{pending: make(map[string]*ledger.Transaction)} }

// Name implements source.Parser.
func (k *Kraken) Name() string { return "kraken" }

// CanParse implements source.Parser.
func (k *Kraken) CanParse(path string) (bool, error) {
	line, err := peekLine(path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(line, krakenHeader), nil
}

// Parse implements source.Parser.
func (k *Kraken) Parse(path string) ([]*ledger.Transaction, error) {
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
		if len(record) < 10 {
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("expected 10 columns, got %d", len(record))}
		}

		refid, tsField, typ, asset, amountField, feeField := record[1], record[2], record[3], record[6], record[7], record[8]
		ts, err := parseTimestamp("2006-01-02 15:04:05", tsField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		amount, err := parseDecimal("amount", amountField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		fee, err := parseDecimal("fee", feeField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}

		asset = strings.ToUpper(asset)
		isBTC := asset == "XBT" || asset == "XXBT"

		switch strings.ToLower(typ) {
		case "deposit", "withdrawal":
			if !isBTC {
				continue // USD deposits/withdrawals carry no BTC leg
			}
			z := decimal.Zero
			ltype := ledger.Deposit
			if strings.ToLower(typ) == "withdrawal" {
				ltype = ledger.Withdraw
			}
			out = append(out, &ledger.Transaction{
				Timestamp: ts, Type: ltype, Btc: amount, Usd: &z, FeeBtc: fee,
				ID: refid, Parser: k.Name(),
			})
		case "trade":
			k.accumulateTrade(refid, ts, isBTC, amount, fee)
		}
	}

	for _, t := range k.pending {
		if t.Price == nil && !t.Btc.IsZero() && t.Usd != nil {
			p := money.Price(*t.Usd, t.Btc)
			t.Price = &p
		}
		out = append(out, t)
	}
	k.pending = make(map[string]*ledger.Transaction)
	return out, nil
}

// accumulateTrade pairs the XBT and ZUSD legs of a single trade sharing a
// refid, since Kraken's ledger export records each leg as its own row: the
// XBT leg supplies btc, the ZUSD leg supplies usd, and either leg may carry
// the exchange fee.
func (k *Kraken) accumulateTrade(refid string, ts clock.Timestamp, isBTC bool, amount, fee decimal.Decimal) {
	t, ok := k.pending[refid]
	if !ok {
		z := decimal.Zero
		t = &ledger.Transaction{Timestamp: ts, Type: ledger.Trade, Usd: &z, ID: refid, Parser: k.Name()}
		k.pending[refid] = t
	}
	if isBTC {
		t.Btc = t.Btc.Add(amount)
		t.FeeBtc = t.FeeBtc.Add(fee)
	} else {
		u := t.Usd.Add(amount)
		t.Usd = &u
		t.FeeUsd = t.FeeUsd.Add(fee.Abs())
	}
}

// Merge implements source.Parser.
func (k *Kraken) Merge(rows []*ledger.Transaction) ([]*ledger.Transaction, error) {
	return singleMerge(rows)
}

// DefaultAccount implements source.Parser.
func (k *Kraken) DefaultAccount() string { return "kraken" }

// CheckComplete implements source.Parser.
func (k *Kraken) CheckComplete() error { return nil }

// Reset implements source.Parser.
func (k *Kraken) Reset() {}
