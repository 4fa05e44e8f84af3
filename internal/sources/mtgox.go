package sources

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/money"
	"github.com/sklarsa/bitcoin-gains/internal/source"
)

// mtgoxHeader is the ledger export's first line, shared by the BTC and
// USD sides.
const mtgoxHeader = "Index,Date,Type,Info,Value,Balance"

// MtGox parses the paired Mt. Gox BTC/USD ledger CSV exports: each row is
// tagged as belonging to the BTC or USD side by its filename, and rows sharing an id
// (a "tid:N" token pulled from the info column, or synthesized) are merged
// across the pair in Merge, combining an in/out/earned/spent/fee/withdraw/
// deposit row from one side with its counterpart from the other.
type MtGox struct {
	counter source.Counter

	seenBTCFiles int
	seenUSDFiles int
	sawFirstBTC  bool
	sawFirstUSD  bool
}

// NewMtGox constructs an MtGox adapter.
func NewMtGox() *MtGox { return &MtGox{} }

// Name implements source.Parser.
func (m *MtGox) Name() string { return "mtgox" }

// CanParse implements source.Parser.
func (m *MtGox) CanParse(path string) (bool, error) {
	line, err := peekLine(path)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(line, mtgoxHeader), nil
}

func (m *MtGox) isBTCFile(path string) (bool, error) {
	name := strings.ToUpper(filepath.Base(path))
	switch {
	case strings.Contains(name, "BTC"):
		return true, nil
	case strings.Contains(name, "USD"):
		return false, nil
	}
	return false, fmt.Errorf("mtgox: filename must contain BTC or USD: %s", path)
}

// Parse implements source.Parser.
func (m *MtGox) Parse(path string) ([]*ledger.Transaction, error) {
	isBTC, err := m.isBTCFile(path)
	if err != nil {
		return nil, &source.ParseError{File: path, Err: err}
	}
	if isBTC {
		m.seenBTCFiles++
	} else {
		m.seenUSDFiles++
	}

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

		ix, tsField, typ, info := record[0], record[1], record[2], record[3]
		if ix == "1" {
			if isBTC {
				m.sawFirstBTC = true
			} else {
				m.sawFirstUSD = true
			}
		}
		ts, err := parseTimestamp("2006-01-02 15:04:05", tsField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		value, err := parseDecimal("value", record[4])
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}

		id := tidPattern.FindString(info)
		if id == "" {
			id = m.counter.Next()
		}

		txn, err := m.rowToTransaction(path, row, ts, typ, info, value, isBTC, id)
		if err != nil {
			return nil, err
		}
		if txn != nil {
			out = append(out, txn)
		}
	}
	return out, nil
}

// rowToTransaction dispatches a ledger row on its type column.
func (m *MtGox) rowToTransaction(path string, row int, ts clock.Timestamp, typ, info string, value decimal.Decimal, isBTC bool, id string) (*ledger.Transaction, error) {
	base := &ledger.Transaction{Timestamp: ts, Info: info, ID: id, Parser: m.Name()}

	switch typ {
	case "out":
		z := decimal.Zero
		base.Type, base.Usd, base.Btc = ledger.Trade, &z, value.Neg()
		return base, nil
	case "in":
		z := decimal.Zero
		base.Type, base.Usd, base.Btc = ledger.Trade, &z, value
		return base, nil
	case "earned":
		u := value
		base.Type, base.Usd, base.Btc = ledger.Trade, &u, decimal.Zero
		return base, nil
	case "spent":
		u := value.Neg()
		base.Type, base.Usd, base.Btc = ledger.Trade, &u, decimal.Zero
		return base, nil
	case "fee":
		z := decimal.Zero
		base.Type, base.Usd, base.Btc = ledger.Fee, &z, decimal.Zero
		if isBTC {
			base.FeeBtc = value
		} else {
			base.FeeUsd = value
		}
		return base, nil
	case "withdraw":
		if !isBTC {
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("unexpected withdraw on USD side")}
		}
		z := decimal.Zero
		base.Type, base.Usd, base.Btc = ledger.Withdraw, &z, value.Neg()
		return base, nil
	case "deposit":
		if !isBTC {
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("unexpected deposit on USD side")}
		}
		z := decimal.Zero
		base.Type, base.Usd, base.Btc = ledger.Deposit, &z, value
		return base, nil
	default:
		return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("unrecognized mtgox row type %q", typ)}
	}
}

// Merge implements source.Parser: combines the in/out (BTC leg) and
// earned/spent (USD leg) halves of a single trade sharing a tid into one
// canonical trade event.
func (m *MtGox) Merge(rows []*ledger.Transaction) ([]*ledger.Transaction, error) {
	if len(rows) == 1 {
		return rows, nil
	}

	merged := &ledger.Transaction{
		Timestamp: rows[0].Timestamp,
		Type:      ledger.Trade,
		ID:        rows[0].ID,
		Parser:    rows[0].Parser,
	}
	for _, t := range rows {
		// Fee rows contribute their fee fields but never the merged type.
		if t.Type != ledger.Fee {
			merged.Type = t.Type
		}
		if t.Account != "" {
			merged.Account = t.Account
		}
		if !t.Btc.IsZero() {
			merged.Btc = t.Btc
		}
		if t.Usd != nil && !t.Usd.IsZero() {
			merged.Usd = t.Usd
		}
		if !t.FeeBtc.IsZero() {
			merged.FeeBtc = t.FeeBtc
		}
		if !t.FeeUsd.IsZero() {
			merged.FeeUsd = t.FeeUsd
		}
	}
	if merged.Usd == nil {
		z := decimal.Zero
		merged.Usd = &z
	}
	if merged.Type == ledger.Trade && merged.Price == nil && !merged.Btc.IsZero() {
		p := money.Price(*merged.Usd, merged.Btc)
		merged.Price = &p
	}
	if merged.FeeUsd.IsZero() && !merged.FeeBtc.IsZero() && merged.Price != nil {
		merged.FeeUsd = money.RoundRate(merged.Price.Mul(merged.FeeBtc)).Abs()
	} else if merged.FeeUsd.IsZero() && !merged.FeeBtc.IsZero() {
		merged.Btc = merged.Btc.Add(merged.FeeBtc)
	}
	return []*ledger.Transaction{merged}, nil
}

// DefaultAccount implements source.Parser.
func (m *MtGox) DefaultAccount() string { return "mtgox" }

// CheckComplete implements source.Parser: the BTC and USD ledger files must
// be in matched pairs, and both must include the transaction at index 1.
func (m *MtGox) CheckComplete() error {
	if m.seenBTCFiles != m.seenUSDFiles {
		return fmt.Errorf("mtgox: mismatched number of BTC and USD files (%d vs %d)", m.seenBTCFiles, m.seenUSDFiles)
	}
	if !m.sawFirstBTC || !m.sawFirstUSD {
		return fmt.Errorf("mtgox: missing first transaction (did you download the full history export?)")
	}
	return nil
}

// Reset implements source.Parser.
func (m *MtGox) Reset() {}
