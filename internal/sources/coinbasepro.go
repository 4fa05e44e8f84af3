package sources

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/source"
)

// coinbaseProAccountsHeader and coinbaseProFillsHeader distinguish
// Coinbase Pro's two export kinds.
const (
	coinbaseProAccountsHeader = "portfolio,type,time,amount,balance,amount/balance unit,transfer id,trade id,order id"
	coinbaseProFillsHeader    = "portfolio,trade id,product,side,created at,size,size unit,price,fee,total,price/fee/total unit"
)

// CoinbasePro parses either of Coinbase Pro's CSV exports: the "accounts"
// ledger (deposits, withdrawals, and internal transfers) or the "fills"
// trade log (one row per matched order).
type CoinbasePro struct {
	Consolidate bool

	counter source.Counter
}

// NewCoinbasePro constructs a CoinbasePro adapter. consolidate mirrors the
// consolidate_coinbase flag: when true, every portfolio collapses to a
// single "coinbasepro" account, same as Bitcoind's consolidate_bitcoind
// folding its sub-accounts into one.
func NewCoinbasePro(consolidate bool) *CoinbasePro {
	return &CoinbasePro{Consolidate: consolidate}
}

// account names the account a portfolio's rows are attributed to, folding
// every portfolio into one shared name when Consolidate is set, which
// erases internal transfers among them.
func (c *CoinbasePro) account(portfolio string) string {
	if c.Consolidate {
		return "coinbasepro"
	}
	return "coinbasepro-" + portfolio
}

// Name implements source.Parser.
func (c *CoinbasePro) Name() string { return "coinbasepro" }

// CanParse implements source.Parser.
func (c *CoinbasePro) CanParse(path string) (bool, error) {
	line, err := peekLine(path)
	if err != nil {
		return false, err
	}
	lower := strings.ToLower(line)
	return lower == coinbaseProAccountsHeader || lower == coinbaseProFillsHeader, nil
}

// Parse implements source.Parser.
func (c *CoinbasePro) Parse(path string) ([]*ledger.Transaction, error) {
	header, err := peekLine(path)
	if err != nil {
		return nil, err
	}
	if strings.ToLower(header) == coinbaseProFillsHeader {
		return c.parseFills(path)
	}
	return c.parseAccounts(path)
}

func (c *CoinbasePro) parseAccounts(path string) ([]*ledger.Transaction, error) {
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
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("expected at least 6 columns, got %d", len(record))}
		}

		portfolio, typ, tsField, amountField, _, unit := record[0], record[1], record[2], record[3], record[4], record[5]
		if !strings.EqualFold(unit, "BTC") {
			continue // a USD-denominated ledger row (fee, rebate); not a BTC event
		}
		ts, err := parseTimestamp("2006-01-02T15:04:05Z", tsField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		amount, err := parseDecimal("amount", amountField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}

		z := decimal.Zero
		var ltype ledger.Type
		switch strings.ToLower(typ) {
		case "deposit":
			ltype = ledger.Deposit
		case "withdrawal":
			ltype = ledger.Withdraw
		case "match", "fee", "rebate":
			continue // trade legs come from the fills export instead
		default:
			continue
		}
		out = append(out, &ledger.Transaction{
			Timestamp: ts, Type: ltype, Btc: amount, Usd: &z,
			Account: c.account(portfolio), ID: c.counter.Next(), Parser: c.Name(),
		})
	}
	return out, nil
}

func (c *CoinbasePro) parseFills(path string) ([]*ledger.Transaction, error) {
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
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("expected at least 10 columns, got %d", len(record))}
		}

		portfolio, tradeID, product, side, tsField, sizeField := record[0], record[1], record[2], record[3], record[4], record[5]
		feeField, totalField := record[8], record[9]
		if !strings.HasPrefix(strings.ToUpper(product), "BTC-") {
			continue // not a BTC-quoted product
		}
		ts, err := parseTimestamp("2006-01-02T15:04:05.000Z", tsField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		size, err := parseDecimal("size", sizeField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		fee, err := parseDecimal("fee", feeField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}
		total, err := parseDecimal("total", totalField)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: err}
		}

		btc := size
		if strings.EqualFold(side, "SELL") {
			btc = size.Neg()
		}
		// total is signed (negative for buys) and already net of the fee;
		// the usd leg carries the pre-fee subtotal with the fee separate.
		usd := total.Add(fee.Abs())
		out = append(out, &ledger.Transaction{
			Timestamp: ts, Type: ledger.Trade, Btc: btc, Usd: &usd, FeeUsd: fee.Abs(),
			Account: c.account(portfolio), ID: tradeID, Parser: c.Name(),
		})
	}
	return out, nil
}

// Merge implements source.Parser.
func (c *CoinbasePro) Merge(rows []*ledger.Transaction) ([]*ledger.Transaction, error) {
	return singleMerge(rows)
}

// DefaultAccount implements source.Parser.
func (c *CoinbasePro) DefaultAccount() string { return "coinbasepro" }

// CheckComplete implements source.Parser.
func (c *CoinbasePro) CheckComplete() error { return nil }

// Reset implements source.Parser.
func (c *CoinbasePro) Reset() {}
