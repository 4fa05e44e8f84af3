// Package transfer implements the two-pass transfer matcher: pairing
// withdrawals with deposits first by amount+time, then by on-chain txid,
// rewriting each matched pair into a single transfer event.
package transfer

import (
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
)

// Mismatch records a withdrawal that had same-amount deposit candidates
// but none satisfied the time/account predicate.
type Mismatch struct {
	Withdraw   *ledger.Transaction
	Candidates []*ledger.Transaction
}

// Result is the outcome of running Match.
type Result struct {
	Events     []*ledger.Transaction
	Mismatches []Mismatch
}

// Match runs both passes over the chronologically sorted ledger and
// returns the rewritten event list plus any non-fatal mismatches.
func Match(events []*ledger.Transaction, windowHours float64) Result {
	out := pass1(events, windowHours)
	events2, mismatches := out.Events, out.Mismatches
	final := pass2(events2)
	return Result{Events: final, Mismatches: mismatches}
}

// amountKey canonicalizes a BTC amount to its 8-decimal-place form before
// using it as a map key: adapters vary in how many trailing zeros they
// leave in a parsed decimal.Decimal (internal/sources/common.go's
// parseDecimal never normalizes scale), so two numerically equal amounts
// from different sources (e.g. "1" vs "1.00000000") would otherwise hash
// to different keys and fail to match as the same transfer.
func amountKey(d decimal.Decimal) string {
	return d.Round(8).String()
}

// pass1 pairs withdrawals with deposits of the exact opposite amount whose
// timestamps fall within windowHours of each other and whose accounts
// differ.
func pass1(events []*ledger.Transaction, windowHours float64) Result {
	deposits := make(map[string][]*ledger.Transaction)
	for _, t := range events {
		if t.Type == ledger.Deposit && !t.Btc.IsZero() {
			deposits[amountKey(t.Btc)] = append(deposits[amountKey(t.Btc)], t)
		}
	}

	matched := make(map[*ledger.Transaction]bool)
	var transfers []*ledger.Transaction
	var mismatches []Mismatch
	window := time.Duration(windowHours * float64(time.Hour))

	for _, w := range events {
		if w.Type != ledger.Withdraw || w.Btc.IsZero() || matched[w] {
			continue
		}
		candidates := deposits[amountKey(w.Btc.Neg())]
		var matchedCandidate *ledger.Transaction
		var stillCandidates []*ledger.Transaction
		for _, d := range candidates {
			if matched[d] {
				continue
			}
			stillCandidates = append(stillCandidates, d)
		}
		for _, d := range stillCandidates {
			delta := w.Timestamp.Time().Sub(d.Timestamp.Time())
			if delta < 0 {
				delta = -delta
			}
			if delta < window && d.Account != w.Account {
				matchedCandidate = d
				break
			}
		}
		if matchedCandidate != nil {
			matched[w] = true
			matched[matchedCandidate] = true
			// The transfer's btc is the full debit on the originating side:
			// the matched amount plus the withdrawal's network fee, which
			// the replay engine splits back off as the lost portion.
			transfer := &ledger.Transaction{
				Timestamp:   w.Timestamp,
				Type:        ledger.Transfer,
				Btc:         w.Btc.Sub(w.FeeBtc),
				Usd:         zeroUSD(),
				FeeUsd:      w.FeeUsd,
				FeeBtc:      w.FeeBtc,
				Account:     w.Account,
				DestAccount: matchedCandidate.Account,
				ID:          w.ID,
				Parser:      w.Parser,
				Info:        w.Info,
			}
			transfers = append(transfers, transfer)
			log.WithFields(log.Fields{
				"withdraw": w.ID, "deposit": matchedCandidate.ID,
			}).Debug("transfer: matched by amount+time")
		} else if len(stillCandidates) > 0 {
			mismatches = append(mismatches, Mismatch{Withdraw: w, Candidates: stillCandidates})
		}
	}

	var out []*ledger.Transaction
	for _, t := range events {
		if matched[t] {
			continue
		}
		out = append(out, t)
	}
	out = append(out, transfers...)
	return Result{Events: out, Mismatches: mismatches}
}

// pass2 pairs remaining withdrawals and deposits sharing a txid, absorbing
// the implied network fee into the resulting transfer.
func pass2(events []*ledger.Transaction) []*ledger.Transaction {
	byTxid := make(map[string][]*ledger.Transaction)
	for _, t := range events {
		if t.Type == ledger.Deposit && t.Txid != "" {
			byTxid[t.Txid] = append(byTxid[t.Txid], t)
		}
	}

	matched := make(map[*ledger.Transaction]bool)
	var transfers []*ledger.Transaction

	for _, w := range events {
		if w.Type != ledger.Withdraw || w.Txid == "" || matched[w] {
			continue
		}
		deposits := byTxid[w.Txid]
		var unmatched []*ledger.Transaction
		for _, d := range deposits {
			if !matched[d] {
				unmatched = append(unmatched, d)
			}
		}
		if len(unmatched) != 1 {
			if len(unmatched) > 1 {
				log.WithField("txid", w.Txid).Warn("transfer: multiple txid matches, not merged")
			}
			continue
		}
		d := unmatched[0]
		matched[w] = true
		matched[d] = true

		// feeBtc is always non-negative on a legitimate match: the sender's
		// outflow exceeds the receiver's inflow by exactly the network fee.
		feeBtc := w.Btc.Add(d.Btc).Neg()
		// btc represents the amount actually sent: the deposit amount plus
		// the absorbed fee, signed negative (outgoing from w.Account).
		btc := d.Btc.Add(feeBtc).Neg()

		transfer := &ledger.Transaction{
			Timestamp:   w.Timestamp,
			Type:        ledger.Transfer,
			Btc:         btc,
			Usd:         zeroUSD(),
			FeeBtc:      feeBtc,
			FeeUsd:      w.FeeUsd,
			Account:     w.Account,
			DestAccount: d.Account,
			ID:          w.ID,
			Txid:        w.Txid,
			Parser:      w.Parser,
			Info:        w.Info,
		}
		transfers = append(transfers, transfer)
		log.WithFields(log.Fields{"txid": w.Txid, "fee_btc": feeBtc.String()}).Debug("transfer: matched by txid")
	}

	var out []*ledger.Transaction
	for _, t := range events {
		if matched[t] {
			continue
		}
		out = append(out, t)
	}
	return append(out, transfers...)
}

func zeroUSD() *decimal.Decimal {
	z := decimal.Zero
	return &z
}
