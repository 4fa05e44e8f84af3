package sources

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/source"
)

// WalletDump parses a ".walletdump" text file: one line per
// transaction, tab-separated, as produced by a hand-rolled wallet export
// tool rather than an exchange. Each line is:
//
//	<unix-seconds>\t<direction>\t<btc>\t<txid>[\t<note>]
//
// where direction is "in" or "out". Unlike the exchange adapters, a wallet
// dump carries no USD leg at all, so every row arrives awaiting
// classification (nil Usd).
type WalletDump struct {
	counter source.Counter
}

// NewWalletDump constructs a WalletDump adapter.
func NewWalletDump() *WalletDump { return &WalletDump{} }

// Name implements source.Parser.
func (w *WalletDump) Name() string { return "walletdump" }

// CanParse implements source.Parser: recognized solely by the .walletdump
// extension, since the line format has no distinguishing header.
func (w *WalletDump) CanParse(path string) (bool, error) {
	return strings.EqualFold(filepath.Ext(path), ".walletdump"), nil
}

// Parse implements source.Parser.
func (w *WalletDump) Parse(path string) ([]*ledger.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []*ledger.Transaction
	scanner := bufio.NewScanner(f)
	row := 0
	for scanner.Scan() {
		row++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 4 {
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("expected at least 4 tab-separated fields, got %d", len(fields))}
		}

		sec, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("bad unix timestamp %q: %w", fields[0], err)}
		}
		direction := strings.ToLower(strings.TrimSpace(fields[1]))
		btc, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
		if err != nil {
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("bad btc amount %q: %w", fields[2], err)}
		}
		btc = btc.Round(8).Abs()
		txid := strings.TrimSpace(fields[3])
		var info string
		if len(fields) > 4 {
			info = strings.TrimSpace(strings.Join(fields[4:], " "))
		}

		var typ ledger.Type
		switch direction {
		case "in":
			typ = ledger.Deposit
		case "out":
			btc = btc.Neg()
			typ = ledger.Withdraw
		default:
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("unknown direction %q, want \"in\" or \"out\"", fields[1])}
		}

		id := txid
		if id == "" {
			id = w.counter.Next()
		}
		out = append(out, &ledger.Transaction{
			Timestamp: clock.New(secondsToTime(sec)), Type: typ, Btc: btc,
			ID: id, Txid: txid, Info: info, Parser: w.Name(),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Merge implements source.Parser: rows sharing a txid are distinct atomic
// payments of a multi-output send and stay separate.
func (w *WalletDump) Merge(rows []*ledger.Transaction) ([]*ledger.Transaction, error) {
	return rows, nil
}

// DefaultAccount implements source.Parser.
func (w *WalletDump) DefaultAccount() string { return "walletdump" }

// CheckComplete implements source.Parser.
func (w *WalletDump) CheckComplete() error { return nil }

// Reset implements source.Parser.
func (w *WalletDump) Reset() {}
