// Package sources implements the source-adapter contract for every
// recognized input shape: exchange CSV exports, on-chain JSON dumps,
// address lists, and the generic canonical CSV. Adapters share a common
// idiom: sniff the header (or leading bytes) in CanParse, then scan the
// file row by row into canonical transactions.
package sources

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
)

// peekLine returns the first line of path without consuming the file, for
// CanParse header checks.
func peekLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return strings.TrimRight(scanner.Text(), "\r\n"), nil
}

// peekBytes returns up to n leading bytes of path, for shape checks that
// aren't line-oriented (e.g. bitcoind's JSON array dump).
func peekBytes(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && read == 0 {
		return "", err
	}
	return string(buf[:read]), nil
}

// openCSVReader opens path and returns a csv.Reader positioned at the first
// record, allowing a variable number of fields per row (several exchange
// exports have ragged trailing columns).
func openCSVReader(path string) (*os.File, *csv.Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	return f, r, nil
}

// parseDecimal wraps decimal.NewFromString with a column-aware error.
func parseDecimal(field, value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return d, nil
}

// parseTimestamp parses t in layout, truncated to second precision.
func parseTimestamp(layout, value string) (clock.Timestamp, error) {
	parsed, err := time.Parse(layout, value)
	if err != nil {
		return clock.Timestamp{}, err
	}
	return clock.New(parsed), nil
}

// singleMerge is the default Merge behavior: a (parser,id) group of
// exactly one row passes through unchanged; more than one is a caller
// error for adapters that expect unique ids.
func singleMerge(rows []*ledger.Transaction) ([]*ledger.Transaction, error) {
	if len(rows) != 1 {
		return nil, fmt.Errorf("expected a single row per id, got %d", len(rows))
	}
	return rows, nil
}

var tidPattern = regexp.MustCompile(`tid:\d+`)

// decimalZero returns a fresh zero decimal.Decimal for callers that need an
// addressable value to stick in a *decimal.Decimal field.
func decimalZero() decimal.Decimal { return decimal.Zero }

// secondsToTime converts a Unix epoch timestamp (as stored in bitcoind's
// JSON dumps and on-chain explorer responses) into a time.Time.
func secondsToTime(sec int64) time.Time { return time.Unix(sec, 0).UTC() }
