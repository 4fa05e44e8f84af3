// Package oracle implements the fair-market-value oracle: a pure
// price(date) -> USD function, here wrapped with a write-through on-disk
// cache (keyed by date, via badger) and a single forced-refetch retry on
// transient network errors (via backoff).
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
	"github.com/sklarsa/bitcoin-gains/internal/money"
)

// NetworkError wraps a transient failure fetching a price; the caller
// retries once with a forced refetch before giving up.
type NetworkError struct {
	Date string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("oracle: network error fetching %s: %v", e.Date, e.Err)
}
func (e *NetworkError) Unwrap() error { return e.Err }

// MissingPriceError is returned when no source (primary, secondary, or
// cache) has a price for the requested date.
type MissingPriceError struct {
	Date string
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("oracle: no price available for %s", e.Date)
}

// Source is a single price source: a pure function from calendar date
// (YYYY-MM-DD) to USD price. Implementations may hit the network; a
// *NetworkError return triggers the caching oracle's retry/fallback.
type Source func(ctx context.Context, date string) (decimal.Decimal, error)

// Oracle is the FMV oracle interface consumed by the replay engine.
type Oracle interface {
	// Price returns the USD price of 1 BTC on ts's calendar date, rounded
	// to 2 decimal places.
	Price(ctx context.Context, ts clock.Timestamp) (decimal.Decimal, error)
}

// CachingOracle wraps a primary and optional secondary Source with a
// write-through badger-backed disk cache that is never invalidated. On a
// NetworkError from the primary it retries once via backoff before falling
// back to the secondary.
type CachingOracle struct {
	db        *badger.DB
	primary   Source
	secondary Source
	mem       map[string]decimal.Decimal
}

// Open opens (or creates) the badger cache at dir and returns a
// CachingOracle over primary/secondary sources. secondary may be nil.
func Open(dir string, primary, secondary Source) (*CachingOracle, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("oracle: opening price cache: %w", err)
	}
	return &CachingOracle{db: db, primary: primary, secondary: secondary, mem: make(map[string]decimal.Decimal)}, nil
}

// Close closes the underlying cache database.
func (o *CachingOracle) Close() error {
	if o.db == nil {
		return nil
	}
	return o.db.Close()
}

func dateKey(ts clock.Timestamp) string {
	return ts.Format("2006-01-02")
}

func (o *CachingOracle) lookupCache(key string) (decimal.Decimal, bool) {
	if d, ok := o.mem[key]; ok {
		return d, true
	}
	var value decimal.Decimal
	found := false
	err := o.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			d, perr := decimal.NewFromString(string(val))
			if perr != nil {
				return perr
			}
			value = d
			found = true
			return nil
		})
	})
	if err != nil {
		log.WithError(err).Warn("oracle: cache read failed")
	}
	return value, found
}

func (o *CachingOracle) store(key string, price decimal.Decimal) {
	o.mem[key] = price
	err := o.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(price.String()))
	})
	if err != nil {
		log.WithError(err).Warn("oracle: cache write failed")
	}
}

// Price implements Oracle.
func (o *CachingOracle) Price(ctx context.Context, ts clock.Timestamp) (decimal.Decimal, error) {
	key := dateKey(ts)
	if cached, ok := o.lookupCache(key); ok {
		return cached, nil
	}

	price, err := o.fetch(ctx, key)
	if err == nil {
		price = money.RoundUSD(price)
		o.store(key, price)
		return price, nil
	}

	if o.secondary != nil {
		if p2, err2 := o.secondary(ctx, key); err2 == nil {
			p2 = money.RoundUSD(p2)
			o.store(key, p2)
			return p2, nil
		}
	}
	return decimal.Zero, &MissingPriceError{Date: key}
}

// fetch calls the primary source, retrying exactly once via backoff on a
// *NetworkError; a second failure surfaces to the caller as a missing
// price.
func (o *CachingOracle) fetch(ctx context.Context, key string) (decimal.Decimal, error) {
	var result decimal.Decimal
	attempt := func() error {
		d, err := o.primary(ctx, key)
		if err != nil {
			var netErr *NetworkError
			if errors.As(err, &netErr) {
				return err // retryable
			}
			return backoff.Permanent(err)
		}
		result = d
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), 1)
	err := backoff.Retry(attempt, backoff.WithContext(b, ctx))
	return result, err
}

// Static is a trivial Oracle backed by an in-memory date->price table,
// useful for tests and for pinning a current-price tail lookup.
type Static struct {
	Prices  map[string]decimal.Decimal
	Default *decimal.Decimal
}

// Price implements Oracle.
func (s *Static) Price(_ context.Context, ts clock.Timestamp) (decimal.Decimal, error) {
	key := ts.Format("2006-01-02")
	if p, ok := s.Prices[key]; ok {
		return p, nil
	}
	if s.Default != nil {
		return *s.Default, nil
	}
	return decimal.Zero, &MissingPriceError{Date: key}
}
