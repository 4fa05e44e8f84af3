// Package classify implements the external-classification store: a keyed
// mapping from event id to a user-supplied classification record, with
// fuzzy short-key lookup and JSON persistence.
package classify

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
)

// Kind is the closed set of classification types a user may assign to an
// otherwise-unclassified event.
type Kind string

const (
	Income      Kind = "income"
	Expense     Kind = "expense"
	TransferIn  Kind = "transfer_in"
	TransferOut Kind = "transfer_out"
	Gift        Kind = "gift"
	Buy         Kind = "buy"
	Sale        Kind = "sale"
	Purchase    Kind = "purchase"
)

// Record is a single user-supplied classification.
type Record struct {
	Usd          decimal.Decimal `json:"usd"`
	Btc          decimal.Decimal `json:"btc"`
	Price        decimal.Decimal `json:"price"`
	Type         Kind            `json:"type"`
	Note         string          `json:"note,omitempty"`
	Info         string          `json:"info,omitempty"`
	Account      string          `json:"account,omitempty"`
	Timestamp    *time.Time      `json:"timestamp,omitempty"`
	PurchaseDate *time.Time      `json:"purchase_date,omitempty"`
	Ephemeral    bool            `json:"-"`
}

// Store is the keyed mapping the replay engine consults for otherwise-
// ambiguous on-chain events.
type Store interface {
	// Lookup returns the classification for id, trying an exact match
	// first and, on a miss, an unambiguous short-key match.
	Lookup(id string) (Record, bool)
	// Put records a classification, unless the user marked it ephemeral.
	Put(id string, rec Record)
	// Flush persists pending writes. Called on clean shutdown or an
	// explicit "quit".
	Flush() error
}

// shortKeyPattern strips a trailing ":<counter>" segment, canonicalizing
// ids synthesized by source.Counter or the original txid:index scheme.
var shortKeyPattern = regexp.MustCompile(`:[0-9]+$`)

func shortKey(id string) string {
	return shortKeyPattern.ReplaceAllString(id, "")
}

// JSONStore is a Store backed by a single JSON file, written with sorted
// keys and 4-space indent.
type JSONStore struct {
	path    string
	records map[string]Record
	dirty   bool

	shortIndex map[string][]string // short key -> original keys sharing it
}

// Load reads path if it exists, or starts empty if it doesn't.
func Load(path string) (*JSONStore, error) {
	s := &JSONStore{path: path, records: make(map[string]Record)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.rebuildIndex()
			return s, nil
		}
		return nil, fmt.Errorf("classify: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("classify: parsing %s: %w", path, err)
	}
	s.rebuildIndex()
	return s, nil
}

func (s *JSONStore) rebuildIndex() {
	s.shortIndex = make(map[string][]string)
	for id := range s.records {
		k := shortKey(id)
		s.shortIndex[k] = append(s.shortIndex[k], id)
	}
}

// Lookup implements Store.
func (s *JSONStore) Lookup(id string) (Record, bool) {
	if rec, ok := s.records[id]; ok {
		return rec, true
	}
	k := shortKey(id)
	candidates := s.shortIndex[k]
	if len(candidates) != 1 {
		return Record{}, false
	}
	return s.records[candidates[0]], true
}

// Put implements Store.
func (s *JSONStore) Put(id string, rec Record) {
	if rec.Ephemeral {
		return
	}
	s.records[id] = rec
	k := shortKey(id)
	found := false
	for _, existing := range s.shortIndex[k] {
		if existing == id {
			found = true
			break
		}
	}
	if !found {
		s.shortIndex[k] = append(s.shortIndex[k], id)
	}
	s.dirty = true
}

// Flush implements Store.
func (s *JSONStore) Flush() error {
	if !s.dirty {
		return nil
	}
	data, err := json.MarshalIndent(s.records, "", "    ")
	if err != nil {
		return fmt.Errorf("classify: marshaling %s: %w", s.path, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("classify: writing %s: %w", s.path, err)
	}
	s.dirty = false
	log.WithField("path", s.path).Debug("classify: flushed")
	return nil
}

// ApplyTo reinterprets txn per rec's classification: the stored usd, type,
// and purchase date override the event (the stored price is not applied),
// and txn.Type may be reinterpreted as trade, transfer_out, or gift.
// acquiredAt is non-nil only when rec carries a PurchaseDate, in which case the caller must use it as
// the resulting lot's acquisition timestamp instead of txn.Timestamp (a
// pre-existing holding transferred in keeps its stated purchase date).
func ApplyTo(txn *ledger.Transaction, rec Record) (usd decimal.Decimal, btc decimal.Decimal, acquiredAt *clock.Timestamp) {
	btc = txn.Btc
	usd = rec.Usd
	switch rec.Type {
	case Buy, Sale, Purchase:
		txn.Type = ledger.Trade
	case TransferOut:
		txn.Type = ledger.TransferOut
	case Gift:
		txn.Type = ledger.Gift
	}
	if rec.PurchaseDate != nil {
		ts := clock.New(*rec.PurchaseDate)
		acquiredAt = &ts
	}
	return usd, btc, acquiredAt
}
