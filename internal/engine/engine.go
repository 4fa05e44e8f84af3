// Package engine implements the replay engine: the state machine that
// consumes the ordered ledger and drives wash-sale bookkeeping, lot
// splits, short-cover accounting, per-account balances, and the running
// monthly report.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sklarsa/bitcoin-gains/internal/classify"
	"github.com/sklarsa/bitcoin-gains/internal/clock"
	"github.com/sklarsa/bitcoin-gains/internal/inventory"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/money"
	"github.com/sklarsa/bitcoin-gains/internal/oracle"
	"github.com/sklarsa/bitcoin-gains/internal/prompt"
	"github.com/sklarsa/bitcoin-gains/internal/report"
)

// NegativeBalanceError is raised when an account not explicitly permitted
// to run short goes negative. Short permission is a per-account setting,
// never implied by the account's name.
type NegativeBalanceError struct {
	Account string
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("engine: account %q went negative and is not permitted to run short", e.Account)
}

// washWindow is the wash-sale lookback window.
const washWindow = 30 * 24 * time.Hour

// recentSell is a (sell_lot, matching_buy_lot) pair retained for wash-sale
// matching.
type recentSell struct {
	sell *ledger.Lot
	buy  *ledger.Lot
}

// TransferredOutRecord records a disposal to an external party whose basis
// must still be tracked, for the list_purchases-style
// "transferred out" report section.
type TransferredOutRecord struct {
	Txn *ledger.Transaction
	Lot *ledger.Lot
}

// GiftRecord records a charitable donation's consumed lots,
// for the list_gifts report section.
type GiftRecord struct {
	Txn  *ledger.Transaction
	Lots []*ledger.Lot
}

// Config bundles the engine's construction-time parameters.
type Config struct {
	Policy         inventory.Policy
	NoWash         bool
	EndDate        *clock.Timestamp
	NonInteractive bool
	AllowShort     map[string]bool // per-account short permission
	Oracle         oracle.Oracle
	Classify       classify.Store
	Prompt         prompt.Prompter
}

// Totals holds the running aggregates maintained across the replay.
type Totals struct {
	TotalCost             decimal.Decimal
	TotalBuy              decimal.Decimal
	TotalSell             decimal.Decimal
	TotalCostBasis        decimal.Decimal
	LongTermCostBasis     decimal.Decimal
	LongTermGiftCostBasis decimal.Decimal
	Income                decimal.Decimal
	GrossReceipts         decimal.Decimal
	Gains                 decimal.Decimal
	LongTermGains         decimal.Decimal
	LongTermGifts         decimal.Decimal
	DisallowedLoss        decimal.Decimal
}

// Engine is the per-account lot inventory plus the running aggregates,
// replayed event by event.
type Engine struct {
	cfg Config

	totals Totals

	accountBtc map[string]decimal.Decimal
	lots       map[string]*inventory.Inventory

	recentSells []recentSell

	transferredOut []TransferredOutRecord
	giftTxns       []GiftRecord

	running *report.RunningReport
}

// New constructs an Engine ready to replay events.
func New(cfg Config) *Engine {
	return &Engine{
		cfg:        cfg,
		accountBtc: make(map[string]decimal.Decimal),
		lots:       make(map[string]*inventory.Inventory),
		running:    report.New("2006-01"),
	}
}

// Totals returns a copy of the current running aggregates.
func (e *Engine) Totals() Totals { return e.totals }

// AccountBalance returns the current signed BTC balance of account.
func (e *Engine) AccountBalance(account string) decimal.Decimal {
	return e.accountBtc[account]
}

// Report returns the accumulated monthly running report.
func (e *Engine) Report() *report.RunningReport { return e.running }

// TransferredOut returns the disposals to external parties recorded during
// replay, for the list_purchases report section.
func (e *Engine) TransferredOut() []TransferredOutRecord { return e.transferredOut }

// Gifts returns the charitable donations recorded during replay, for the
// list_gifts report section.
func (e *Engine) Gifts() []GiftRecord { return e.giftTxns }

func (e *Engine) inventoryFor(account string) *inventory.Inventory {
	inv, ok := e.lots[account]
	if !ok {
		inv = inventory.New(e.cfg.Policy)
		e.lots[account] = inv
	}
	return inv
}

// Replay drives the engine through the ordered ledger, stopping strictly
// after cfg.EndDate if set.
func (e *Engine) Replay(ctx context.Context, events []*ledger.Transaction) error {
	for _, t := range events {
		if e.cfg.EndDate != nil && t.Timestamp.After(*e.cfg.EndDate) {
			break
		}
		if err := e.apply(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// apply runs the full per-event pipeline: effective-value determination,
// fee folding, balance update, lot dispatch, and report recording.
func (e *Engine) apply(ctx context.Context, t *ledger.Transaction) error {
	usd, btc, acquiredAt, err := e.effective(ctx, t)
	if err != nil {
		return err
	}

	// Fold the network fee into the removal amount for disposals.
	// Transfers are exempt: the matcher already folds the fee into the
	// transfer's btc, and the fee portion is split off as lost below. A
	// pure fee event carries its whole cost in FeeBtc.
	if btc.IsNegative() && t.Type != ledger.Transfer {
		btc = btc.Sub(t.FeeBtc)
	} else if t.Type == ledger.Fee && btc.IsZero() {
		btc = t.FeeBtc.Neg()
	}

	e.accountBtc[t.Account] = e.accountBtc[t.Account].Add(btc)

	if btc.IsZero() {
		e.recordRunning(t)
		return nil
	}

	if btc.IsPositive() {
		if err := e.applyAcquisition(t, usd, btc, acquiredAt); err != nil {
			return err
		}
	} else {
		if err := e.applyDisposal(t, usd, btc); err != nil {
			return err
		}
	}

	e.recordRunning(t)
	return nil
}

// effective determines the (usd, btc) pair to apply for t, plus an optional
// acquisition-timestamp override for pre-existing transfers in.
func (e *Engine) effective(ctx context.Context, t *ledger.Transaction) (usd, btc decimal.Decimal, acquiredAt *clock.Timestamp, err error) {
	switch t.Type {
	case ledger.Trade:
		if t.Usd == nil {
			return decimal.Zero, decimal.Zero, nil, fmt.Errorf("engine: trade %s missing usd", t.ID)
		}
		return (*t.Usd).Sub(t.FeeUsd), t.Btc, nil, nil
	case ledger.Transfer:
		return decimal.Zero, t.Btc, nil, nil
	default:
		if t.Usd != nil {
			return *t.Usd, t.Btc, nil, nil
		}
		if e.cfg.Classify != nil {
			if rec, ok := e.cfg.Classify.Lookup(t.ID); ok {
				usd, btc, acquiredAt := classify.ApplyTo(t, rec)
				if rec.Type == classify.Income {
					e.totals.GrossReceipts = e.totals.GrossReceipts.Sub(usd)
				}
				if rec.Type == classify.Income || rec.Type == classify.Expense {
					e.totals.Income = e.totals.Income.Sub(usd)
				}
				return usd, btc, acquiredAt, nil
			}
		}
		if e.cfg.NonInteractive || e.cfg.Prompt == nil {
			return decimal.Zero, decimal.Zero, nil, fmt.Errorf("engine: unclassified %s event %s in non-interactive mode", t.Type, t.ID)
		}
		rec, err := e.cfg.Prompt.Ask(t)
		if err != nil {
			return decimal.Zero, decimal.Zero, nil, err
		}
		usd, btc, acquiredAt := classify.ApplyTo(t, rec)
		if e.cfg.Classify != nil {
			e.cfg.Classify.Put(t.ID, rec)
		}
		return usd, btc, acquiredAt, nil
	}
}

// pushLot deposits a lot into account's inventory, covering any
// outstanding short first; returns the USD gain realized by the cover.
func (e *Engine) pushLot(account string, lot *ledger.Lot) decimal.Decimal {
	short := e.accountBtc[account].Neg()
	toSell, toHold := lot.Split(short)
	if toHold != nil && !toHold.Empty() {
		e.inventoryFor(account).Push(toHold)
	}
	if toSell != nil {
		return toSell.Usd.Neg()
	}
	return decimal.Zero
}

func (e *Engine) applyAcquisition(t *ledger.Transaction, usd, btc decimal.Decimal, acquiredAt *clock.Timestamp) error {
	ts := t.Timestamp
	if acquiredAt != nil {
		ts = *acquiredAt
	}
	buy := ledger.NewLot(ts, btc, usd.Neg(), t)

	if !e.cfg.NoWash {
		buy = e.applyWashSale(t, buy)
	}

	if buy != nil && !buy.Empty() {
		gain := e.pushLot(t.Account, buy)
		e.totals.Gains = e.totals.Gains.Add(gain)
		e.totals.TotalCost = e.totals.TotalCost.Add(buy.Usd)
		e.totals.TotalBuy = e.totals.TotalBuy.Sub(usd)
	}
	return nil
}

// applyWashSale runs the wash-sale loop: while there are
// recent loss-making sells within the 30-day window and buy has remaining
// amount, the loss is disallowed and carried forward as additional basis
// on the replacement lot.
func (e *Engine) applyWashSale(t *ledger.Transaction, buy *ledger.Lot) *ledger.Lot {
	for len(e.recentSells) > 0 && buy != nil && !buy.Empty() {
		pair := e.recentSells[0]
		if pair.sell.Timestamp.Before(t.Timestamp.Add(-washWindow)) {
			e.recentSells = e.recentSells[1:]
			continue
		}
		// pair.buy.Usd is the sold lot's cost basis, pair.sell.Usd its
		// proceeds; cost basis not exceeding proceeds means the prior sale
		// had no loss to disallow.
		if pair.buy.Usd.LessThanOrEqual(pair.sell.Usd) {
			e.recentSells = e.recentSells[1:]
			continue
		}

		n := decimal.Min(buy.Btc, pair.sell.Btc)
		sellHead, sellTail := pair.sell.Split(n)
		buyHead, buyTail := pair.buy.Split(n)
		e.recentSells = e.recentSells[1:]
		if sellTail != nil && !sellTail.Empty() {
			e.recentSells = append([]recentSell{{sell: sellTail, buy: buyTail}}, e.recentSells...)
		}

		washBuy, remainder := buy.Split(n)

		loss := buyHead.Usd.Sub(sellHead.Usd)
		e.totals.Gains = e.totals.Gains.Add(loss)
		e.totals.DisallowedLoss = e.totals.DisallowedLoss.Add(loss)
		washBuy.DisallowedLoss = washBuy.DisallowedLoss.Add(loss)
		washBuy.Usd = washBuy.Usd.Add(loss)

		gain := e.pushLot(t.Account, washBuy)
		e.totals.Gains = e.totals.Gains.Add(gain)
		e.totals.TotalCost = e.totals.TotalCost.Add(washBuy.Usd.Sub(loss))

		buy = remainder
	}
	return buy
}

func (e *Engine) applyDisposal(t *ledger.Transaction, usd, btc decimal.Decimal) error {
	toSell := ledger.NewLot(t.Timestamp, btc.Neg(), usd, t)
	lostInTransfer := t.FeeBtc

	var gain, longTermGain, longTermGift decimal.Decimal
	var soldLots []*ledger.Lot

	for toSell != nil && !toSell.Empty() {
		var buy *ledger.Lot
		inv := e.inventoryFor(t.Account)
		if inv.Len() == 0 {
			if !e.cfg.AllowShort[t.Account] {
				return &NegativeBalanceError{Account: t.Account}
			}
			buy = ledger.NewLot(t.Timestamp, toSell.Btc, decimal.Zero, t)
		} else {
			buy = inv.Pop()
		}

		var remaining *ledger.Lot
		buy, remaining = buy.Split(toSell.Btc)
		if remaining != nil && !remaining.Empty() {
			inv.Unpop(remaining)
		}
		var sell *ledger.Lot
		sell, toSell = toSell.Split(buy.Btc)

		if t.Type == ledger.Transfer {
			var lost *ledger.Lot
			lost, buy = buy.Split(lostInTransfer)
			if lost != nil {
				lostInTransfer = lostInTransfer.Sub(lost.Btc)
				// The fee portion leaves the books without gain
				// recognition; its basis and any carried disallowed loss
				// go with it.
				e.totals.TotalCost = e.totals.TotalCost.Sub(lost.Usd.Sub(lost.DisallowedLoss))
				e.totals.DisallowedLoss = e.totals.DisallowedLoss.Sub(lost.DisallowedLoss)
			}
			if buy != nil && !buy.Empty() {
				e.inventoryFor(t.DestAccount).Push(buy)
				e.accountBtc[t.DestAccount] = e.accountBtc[t.DestAccount].Add(buy.Btc)
			}
			continue
		}

		soldLots = append(soldLots, buy)
		g := sell.Usd.Sub(buy.Usd)
		gain = gain.Add(g)
		e.totals.TotalSell = e.totals.TotalSell.Add(sell.Usd)
		e.totals.TotalCostBasis = e.totals.TotalCostBasis.Add(buy.Usd)
		isLT := IsLongTerm(buy, sell)
		if isLT {
			longTermGain = longTermGain.Add(g)
			e.totals.LongTermCostBasis = e.totals.LongTermCostBasis.Add(buy.Usd)
		}
		e.totals.TotalCost = e.totals.TotalCost.Sub(buy.Usd.Sub(buy.DisallowedLoss))

		switch {
		case t.Type == ledger.TransferOut:
			e.transferredOut = append(e.transferredOut, TransferredOutRecord{Txn: t, Lot: buy})
		case t.Type == ledger.Gift && isLT:
			longTermGift = longTermGift.Add(g)
			e.totals.LongTermGiftCostBasis = e.totals.LongTermGiftCostBasis.Add(buy.Usd)
		default:
			e.totals.DisallowedLoss = e.totals.DisallowedLoss.Sub(buy.DisallowedLoss)
			e.recentSells = append(e.recentSells, recentSell{sell: sell, buy: buy})
		}
	}

	e.totals.Gains = e.totals.Gains.Add(gain)
	e.totals.LongTermGains = e.totals.LongTermGains.Add(longTermGain)
	e.totals.LongTermGifts = e.totals.LongTermGifts.Add(longTermGift)
	if t.Type == ledger.Gift {
		e.giftTxns = append(e.giftTxns, GiftRecord{Txn: t, Lots: soldLots})
	}
	return nil
}

func (e *Engine) recordRunning(t *ledger.Transaction) {
	var market decimal.Decimal
	if e.cfg.Oracle != nil {
		p, err := e.cfg.Oracle.Price(context.Background(), t.Timestamp)
		if err != nil {
			log.WithError(err).WithField("txn", t.ID).Warn("engine: market price unavailable, treating as zero")
		} else {
			market = p
		}
	}

	totalBtc := decimal.Zero
	for _, b := range e.accountBtc {
		totalBtc = totalBtc.Add(b)
	}

	unrealized := money.RoundUSD(market.Mul(totalBtc).Sub(e.totals.TotalCost).Sub(e.totals.DisallowedLoss))
	total := e.totals.Income.Add(e.totals.Gains).Add(unrealized)

	e.running.Record(t.Timestamp, report.Row{
		"income":           e.totals.Income,
		"gross_receipts":   e.totals.GrossReceipts,
		"gains":            e.totals.Gains,
		"long_term_gains":  e.totals.LongTermGains,
		"long_term_gifts":  e.totals.LongTermGifts,
		"total_buy":        e.totals.TotalBuy,
		"total_sell":       e.totals.TotalSell,
		"total_cost":       e.totals.TotalCost,
		"total_cost_basis": e.totals.TotalCostBasis,
		"disallowed_loss":  e.totals.DisallowedLoss,
		"unrealized_gains": unrealized,
		"total":            total,
	})
}

// IsLongTerm reports whether a holding was disposed of more than one
// calendar year after acquisition: elementwise comparison of
// (Y+1,M,D,h,m,s) against sell's parts, deliberately not
// calendar-validating the Feb-29 edge case.
func IsLongTerm(buy, sell *ledger.Lot) bool {
	buyParts := buy.Timestamp.Parts().PlusOneCalendarYear()
	sellParts := sell.Timestamp.Parts()
	return buyParts.Less(sellParts)
}
