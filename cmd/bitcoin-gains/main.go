// Command bitcoin-gains computes cost basis and realized capital gains from
// one or more transaction-history exports across exchanges and on-chain
// wallets, with FIFO/LIFO/oldest/newest lot-selection policies, wash-sale
// carryforward, and cross-account transfer matching.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/sklarsa/bitcoin-gains/internal/classify"
	"github.com/sklarsa/bitcoin-gains/internal/config"
	"github.com/sklarsa/bitcoin-gains/internal/engine"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
	"github.com/sklarsa/bitcoin-gains/internal/merge"
	"github.com/sklarsa/bitcoin-gains/internal/oracle"
	"github.com/sklarsa/bitcoin-gains/internal/prompt"
	"github.com/sklarsa/bitcoin-gains/internal/report"
	"github.com/sklarsa/bitcoin-gains/internal/source"
	"github.com/sklarsa/bitcoin-gains/internal/sources"
	"github.com/sklarsa/bitcoin-gains/internal/transfer"
)

// outputHeader is the flat canonical ledger CSV header as printed on
// output. It deliberately differs in column order from
// sources.canonical's input-side header: the two are independent ends of
// the pipeline, not a shared format.
var outputHeader = []string{"time", "type", "usd", "btc", "price", "fee_usd", "fee_btc", "account", "id", "info"}

// usage prints the command's argument form and flag list.
func usage(fs *flag.FlagSet) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] file [file ...]\n\n", os.Args[0])
		fs.PrintDefaults()
	}
}

// preScanConfigFlag finds -config/--config's value without requiring the
// rest of the flags to be registered yet: the config file has to be loaded
// before cfg.RegisterFlags can bind CLI flags over its defaults, and Go's
// flag package aborts on any unrecognized flag before that binding exists.
func preScanConfigFlag(args []string) string {
	for i, a := range args {
		switch {
		case a == "-config" || a == "--config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}

func main() {
	cfg, err := config.Load(preScanConfigFlag(os.Args[1:]))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.Usage = usage(fs)
	var configPath string
	fs.StringVar(&configPath, "config", "", "path to a YAML config file, loaded before flags/env")
	cfg.RegisterFlags(fs)
	fs.Parse(os.Args[1:])

	if cfg.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	if err := run(cfg, fs.Args()); err != nil {
		var abortErr prompt.UserAbortError
		if errors.As(err, &abortErr) {
			log.Warn("aborted; classification store not saved")
			os.Exit(1)
		}
		log.WithError(err).Fatal("bitcoin-gains failed")
	}
}

func run(cfg *config.Config, files []string) error {
	registry := buildRegistry(cfg)
	parsersByName := make(map[string]source.Parser)
	for _, p := range registry.Parsers() {
		parsersByName[p.Name()] = p
	}

	var raw []*ledger.Transaction
	for _, path := range files {
		p, err := registry.Find(path)
		if err != nil {
			return fmt.Errorf("dispatching %s: %w", path, err)
		}
		if p == nil {
			return fmt.Errorf("no source adapter recognizes %s", path)
		}
		p.Reset()
		events, err := p.Parse(path)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		for _, e := range events {
			if e.Parser == "" {
				e.Parser = p.Name()
			}
			if e.Account == "" {
				e.Account = p.DefaultAccount()
			}
		}
		log.WithFields(log.Fields{"file": path, "adapter": p.Name(), "rows": len(events)}).Debug("parsed source file")
		raw = append(raw, events...)
	}

	for _, p := range registry.Parsers() {
		if err := p.CheckComplete(); err != nil {
			return fmt.Errorf("completeness check for %s: %w", p.Name(), err)
		}
	}

	if addrList, ok := parsersByName["addresslist"].(*sources.AddressList); ok {
		if addrs := addrList.Addresses(); len(addrs) > 0 {
			log.WithField("count", len(addrs)).Info("address list supplied; fetch and re-run with an explorer dump per address to include their history")
		}
	}

	events, err := merge.Merge(raw, parsersByName)
	if err != nil {
		return fmt.Errorf("merging source rows: %w", err)
	}

	result := transfer.Match(events, float64(cfg.TransferWindowHours))
	for _, mm := range result.Mismatches {
		log.WithFields(log.Fields{
			"withdraw":   mm.Withdraw.ID,
			"candidates": len(mm.Candidates),
		}).Warn("withdrawal had same-amount deposit candidates but none matched by time+account")
	}
	final := result.Events
	sort.Slice(final, ledger.ByOrder(final))

	store, err := classify.Load(cfg.ClassifyPath)
	if err != nil {
		return fmt.Errorf("loading classification store: %w", err)
	}

	fmvCache, err := oracle.Open(cfg.FMVCacheDir, coindeskSource, nil)
	if err != nil {
		return fmt.Errorf("opening FMV cache: %w", err)
	}
	defer fmvCache.Close()

	var prompter prompt.Prompter
	if !cfg.NonInteractive {
		prompter = &prompt.Stdin{In: os.Stdin, Out: os.Stdout}
	}

	eng := engine.New(engine.Config{
		Policy:         cfg.Policy,
		NoWash:         cfg.NoWash,
		EndDate:        cfg.EndTimestamp,
		NonInteractive: cfg.NonInteractive,
		AllowShort:     cfg.AllowShortSet,
		Oracle:         fmvCache,
		Classify:       store,
		Prompt:         prompter,
	})

	replayErr := eng.Replay(context.Background(), final)

	var quitErr prompt.UserQuitError
	if replayErr != nil && !errors.As(replayErr, &quitErr) {
		return replayErr
	}

	if err := store.Flush(); err != nil {
		log.WithError(err).Warn("classification store did not flush cleanly")
	}

	writeCanonicalLedger(os.Stdout, final)
	printReport(os.Stdout, eng, cfg)

	if replayErr != nil {
		log.Info("stopped on user quit; partial results printed above")
	}
	return nil
}

// buildRegistry orders adapters from most-specific CanParse check to
// loosest, so a
// loosely-matching format (a bare address list, a JSON blob) never shadows
// an exact header match.
func buildRegistry(cfg *config.Config) *source.Registry {
	var parsers []source.Parser
	parsers = append(parsers, sources.NewCanonical())

	includeLegacyCoinbase := cfg.IgnoreOldCoinbase != "true"
	if cfg.IgnoreOldCoinbase == "auto" {
		// "auto" defers to whichever other exports are present; with no
		// reliable signal until files are actually parsed, auto behaves as
		// "include" here and leaves precedence to registration order, same
		// as the original tool's default.
		includeLegacyCoinbase = true
	}
	if includeLegacyCoinbase {
		parsers = append(parsers, sources.NewCoinbase())
	}

	parsers = append(parsers,
		sources.NewCoinbasePro(cfg.ConsolidateCoinbase),
		sources.NewElectrum(),
		sources.NewKraken(),
		sources.NewBitstamp(),
		sources.NewMtGox(),
		sources.NewBitcoind(cfg.ConsolidateBitcoind),
		sources.NewExplorer(),
		sources.NewWalletDump(),
		sources.NewAddressList(),
	)
	return source.NewRegistry(parsers...)
}

// writeCanonicalLedger prints the merged, transfer-matched ledger in the
// flat canonical CSV format.
func writeCanonicalLedger(w *os.File, events []*ledger.Transaction) {
	cw := csv.NewWriter(w)
	defer cw.Flush()
	cw.Write(outputHeader)
	for _, t := range events {
		var usd, price string
		if t.Usd != nil {
			usd = t.Usd.String()
		}
		if t.Price != nil {
			price = t.Price.String()
		} else if p, ok := t.EffectivePrice(); ok {
			price = p.String()
		}
		info := strings.ReplaceAll(strings.ReplaceAll(t.Info, "\r", " "), "\n", " ")
		cw.Write([]string{
			t.Timestamp.Format("2006-01-02 15:04:05"),
			string(t.Type),
			usd,
			t.Btc.String(),
			price,
			t.FeeUsd.String(),
			t.FeeBtc.String(),
			t.Account,
			t.ID,
			info,
		})
	}
}

// reportColumns selects which running-report fields to print and in what
// order: the default layout favors the tax-year gain/loss figures, the
// cost-basis layout favors the running total-cost and disallowed-loss
// figures. buyInSellMonth switches the basis column from total_buy
// (attributed to the acquisition month) to total_cost_basis (the basis of
// lots consumed, attributed to the disposal month).
func reportColumns(costBasis, buyInSellMonth bool) []string {
	basisCol := "total_buy"
	if buyInSellMonth {
		basisCol = "total_cost_basis"
	}
	if costBasis {
		return []string{basisCol, "total_cost", "disallowed_loss", "unrealized_gains", "total"}
	}
	return []string{"income", "gains", "long_term_gains", "long_term_gifts", basisCol, "total"}
}

// printReport prints the monthly deltas plus yearly and lifetime
// consolidated totals.
func printReport(w *os.File, eng *engine.Engine, cfg *config.Config) {
	cols := reportColumns(cfg.CostBasis, cfg.BuyInSellMonth)

	monthly := eng.Report()
	fmt.Fprintln(w, "\n=== Monthly ===")
	printTable(w, monthly.Deltas(), cols)

	yearly, err := monthly.Consolidate("2006")
	if err != nil {
		log.WithError(err).Warn("could not consolidate yearly report")
	} else {
		fmt.Fprintln(w, "\n=== Yearly ===")
		printTable(w, yearly.Deltas(), cols)
		printGiftNotice(w, yearly)
	}

	totals := eng.Totals()
	fmt.Fprintln(w, "\n=== Lifetime ===")
	fmt.Fprintf(w, "total_buy=%s total_sell=%s total_cost=%s disallowed_loss=%s\n",
		totals.TotalBuy.String(), totals.TotalSell.String(), totals.TotalCost.String(), totals.DisallowedLoss.String())
	fmt.Fprintf(w, "gains=%s long_term_gains=%s long_term_gifts=%s income=%s\n",
		totals.Gains.String(), totals.LongTermGains.String(), totals.LongTermGifts.String(), totals.Income.String())

	if cfg.ListPurchases {
		printTransferredOutList(w, eng.TransferredOut())
	}
	if cfg.ListGifts {
		printGiftsList(w, eng.Gifts())
	}
}

// printTransferredOutList prints the lot consumed by each disposal to an
// external party, for the list_purchases option: these are the
// purchases whose basis left via a non-transfer, non-sale exit. Their gain
// is counted in the monthly/yearly gain tables like a sale's; this list
// names the lots behind it.
func printTransferredOutList(w *os.File, records []engine.TransferredOutRecord) {
	fmt.Fprintln(w, "\n=== Transferred-out purchases ===")
	fmt.Fprintln(w, strings.Join([]string{"txn_id", "txn_time", "account", "lot_time", "lot_btc", "lot_usd", "lot_price"}, "\t"))
	for _, r := range records {
		fmt.Fprintln(w, strings.Join([]string{
			r.Txn.ID,
			r.Txn.Timestamp.Format("2006-01-02T15:04:05Z"),
			r.Txn.Account,
			r.Lot.Timestamp.Format("2006-01-02T15:04:05Z"),
			r.Lot.Btc.String(),
			r.Lot.Usd.String(),
			r.Lot.Price.String(),
		}, "\t"))
	}
}

// printGiftsList prints the lots consumed by each charitable donation, for
// the list_gifts option: one row per lot a gift drew from, so
// the donor can substantiate the long-term/short-term split of the donated
// basis.
func printGiftsList(w *os.File, records []engine.GiftRecord) {
	fmt.Fprintln(w, "\n=== Gifts ===")
	fmt.Fprintln(w, strings.Join([]string{"txn_id", "txn_time", "account", "lot_time", "lot_btc", "lot_usd", "lot_price"}, "\t"))
	for _, r := range records {
		for _, lot := range r.Lots {
			fmt.Fprintln(w, strings.Join([]string{
				r.Txn.ID,
				r.Txn.Timestamp.Format("2006-01-02T15:04:05Z"),
				r.Txn.Account,
				lot.Timestamp.Format("2006-01-02T15:04:05Z"),
				lot.Btc.String(),
				lot.Usd.String(),
				lot.Price.String(),
			}, "\t"))
		}
	}
}

func printTable(w *os.File, rows []struct {
	Bucket string
	Values report.Row
}, cols []string) {
	fmt.Fprintln(w, strings.Join(append([]string{"bucket"}, cols...), "\t"))
	for _, row := range rows {
		fields := make([]string, 0, len(cols)+1)
		fields = append(fields, row.Bucket)
		for _, c := range cols {
			v, ok := row.Values[c]
			if !ok {
				v = decimal.Zero
			}
			fields = append(fields, v.String())
		}
		fmt.Fprintln(w, strings.Join(fields, "\t"))
	}
}

// printGiftNotice warns for any year whose cumulative long-term gifts
// reached the $5000 qualified-appraisal threshold.
func printGiftNotice(w *os.File, yearly *report.RunningReport) {
	threshold := decimal.NewFromInt(5000)
	for _, b := range yearly.Buckets() {
		row := yearly.Row(b)
		if v, ok := row["long_term_gifts"]; ok && v.GreaterThanOrEqual(threshold) {
			fmt.Fprintf(w, "NOTE: %s long-term gifts total %s, at or above the $5000 qualified-appraisal threshold.\n", b, v.String())
		}
	}
}

// coindeskSource is the default FMV oracle.Source: a historical daily
// closing price lookup. A non-2xx or transport error is wrapped in
// *oracle.NetworkError so the caching oracle's retry/fallback applies.
func coindeskSource(ctx context.Context, date string) (decimal.Decimal, error) {
	url := fmt.Sprintf("https://api.coindesk.com/v1/bpi/historical/close.json?start=%s&end=%s", date, date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return decimal.Zero, &oracle.NetworkError{Date: date, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return decimal.Zero, &oracle.NetworkError{Date: date, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("oracle: unexpected status %d fetching %s", resp.StatusCode, date)
	}

	var payload struct {
		BPI map[string]json.Number `json:"bpi"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("oracle: decoding response for %s: %w", date, err)
	}
	price, ok := payload.BPI[date]
	if !ok {
		return decimal.Zero, fmt.Errorf("oracle: no price for %s in response", date)
	}
	return decimal.NewFromString(price.String())
}
