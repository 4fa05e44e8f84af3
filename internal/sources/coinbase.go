package sources

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/source"
)

// coinbaseHeaderPattern matches the old Coinbase export's
// account-identifying first line.
var coinbaseHeaderPattern = regexp.MustCompile(`^User,.*,[0-9a-f]+`)

// coinbaseDollarPrice extracts a single "$123.45" token from a free-text
// note.
var coinbaseDollarPrice = regexp.MustCompile(`\$\d+\.\d+`)

// Coinbase parses the legacy Coinbase "transaction history" CSV export:
// buy/sell rows are recognized by a "$" in the note column, with the USD amount
// taken from the Total column when present, else extracted from the note
// text (erroring if ambiguous); anything else is a deposit or withdrawal
// depending on the sign of the BTC amount.
type Coinbase struct {
	counter source.Counter
}

// NewCoinbase constructs a Coinbase adapter.
func NewCoinbase() *Coinbase { return &Coinbase{} }

// Name implements source.Parser.
func (c *Coinbase) Name() string { return "coinbase" }

// CanParse implements source.Parser.
func (c *Coinbase) CanParse(path string) (bool, error) {
	line, err := peekLine(path)
	if err != nil {
		return false, err
	}
	return coinbaseHeaderPattern.MatchString(line), nil
}

// Parse implements source.Parser.
func (c *Coinbase) Parse(path string) ([]*ledger.Transaction, error) {
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
			continue // account-identifying header row
		}
		if len(record) == 0 {
			continue
		}
		if strings.HasPrefix(strings.Join(record, ","), "Timestamp,Balance,BTC Amount") {
			continue // Coinbase's second header line
		}
		if len(record) < 7 {
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("expected at least 7 columns, got %d", len(record))}
		}

		ts, err := parseTimestamp("2006-01-02 15:04:05 -0700", record[0])
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		btcField, note, totalField, totalCurrency := record[2], record[4], record[5], record[6]
		btc, err := parseDecimal("btc", btcField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}

		txn := &ledger.Transaction{
			Timestamp: ts, Btc: btc, Info: note, ID: c.counter.Next(), Parser: c.Name(),
		}

		if strings.Contains(note, "$") {
			var usd decimal.Decimal
			if strings.TrimSpace(totalField) != "" {
				if strings.TrimSpace(totalCurrency) != "USD" {
					return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("expected USD total, got %q", totalCurrency)}
				}
				usd, err = parseDecimal("total", totalField)
				if err != nil {
					return nil, &source.ParseError{File: path, Row: row, Err: err}
				}
			} else {
				matches := coinbaseDollarPrice.FindAllString(note, -1)
				switch len(matches) {
				case 0:
					return nil, &source.ParseError{File: path, Row: row, Err: &source.MissingNotePriceError{Note: note}}
				case 1:
					// exactly one candidate, proceed below
				default:
					return nil, &source.ParseError{File: path, Row: row, Err: &source.AmbiguousPriceError{Note: note}}
				}
				usd, err = parseDecimal("note price", strings.TrimPrefix(matches[0], "$"))
				if err != nil {
					return nil, &source.ParseError{File: path, Row: row, Err: err}
				}
			}
			if strings.Contains(note, "Paid for") {
				usd = usd.Neg()
			}
			txn.Type = ledger.Trade
			txn.Usd = &usd
		} else {
			z := decimal.Zero
			txn.Usd = &z
			if btc.IsPositive() {
				txn.Type = ledger.Deposit
			} else {
				txn.Type = ledger.Withdraw
			}
		}

		out = append(out, txn)
	}
	return out, nil
}

// Merge implements source.Parser.
func (c *Coinbase) Merge(rows []*ledger.Transaction) ([]*ledger.Transaction, error) {
	return singleMerge(rows)
}

// DefaultAccount implements source.Parser.
func (c *Coinbase) DefaultAccount() string { return "coinbase" }

// CheckComplete implements source.Parser.
func (c *Coinbase) CheckComplete() error { return nil }

// Reset implements source.Parser.
func (c *Coinbase) Reset() {}
