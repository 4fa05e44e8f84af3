package sources

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/source"
)

// AddressList parses a plain-text list of base58 Bitcoin addresses
//: one address per line, used to drive a separate history
// fetch rather than to carry transaction data itself. Parse returns no
// events; Addresses exposes the validated list to the orchestration layer,
// which only reports how many were found. This program does not fetch the
// addresses' histories itself.
type AddressList struct {
	addresses []string
}

// NewAddressList constructs an AddressList adapter.
func NewAddressList() *AddressList { return &AddressList{} }

// Name implements source.Parser.
func (a *AddressList) Name() string { return "addresslist" }

// CanParse implements source.Parser: every non-blank line must decode as
// base58check, and the file must be a plain list (no commas, no braces).
func (a *AddressList) CanParse(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	seen := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.ContainsAny(line, ",{}\t") {
			return false, nil
		}
		if !isValidBase58Address(line) {
			return false, nil
		}
		seen = true
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return seen, nil
}

func isValidBase58Address(s string) bool {
	decoded, version, err := base58.CheckDecode(s)
	if err != nil {
		return false
	}
	return len(decoded) == 20 && (version == 0x00 || version == 0x05)
}

// Parse implements source.Parser, populating Addresses and returning no
// events of its own; address histories are fetched by a separate
// collaborator and re-ingested as Explorer dumps.
func (a *AddressList) Parse(path string) ([]*ledger.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	row := 0
	for scanner.Scan() {
		row++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !isValidBase58Address(line) {
			return nil, &source.ParseError{File: path, Row: row, Err: fmt.Errorf("invalid base58 address %q", line)}
		}
		a.addresses = append(a.addresses, line)
	}
	return nil, scanner.Err()
}

// Addresses returns the validated addresses collected across all parsed
// files.
func (a *AddressList) Addresses() []string {
	out := make([]string, len(a.addresses))
	copy(out, a.addresses)
	return out
}

// Merge implements source.Parser.
func (a *AddressList) Merge(rows []*ledger.Transaction) ([]*ledger.Transaction, error) {
	return rows, nil
}

// DefaultAccount implements source.Parser.
func (a *AddressList) DefaultAccount() string { return "addresslist" }

// CheckComplete implements source.Parser.
func (a *AddressList) CheckComplete() error { return nil }

// Reset implements source.Parser.
func (a *AddressList) Reset() {}
