// Package prompt models the interactive-classification collaborator:
// invoked only when the engine meets an unclassified deposit/withdraw/fee
// and is running interactively.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sklarsa/bitcoin-gains/internal/classify"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
)

// UserAbortError signals the user chose to abandon the run without
// flushing the classification store.
type UserAbortError struct{}

func (UserAbortError) Error() string { return "user aborted without saving" }

// UserQuitError signals the user chose to end the run cleanly; the
// classification store must be flushed first.
type UserQuitError struct{}

func (UserQuitError) Error() string { return "user quit" }

// Prompter asks the user to classify an event the engine could not
// classify automatically.
type Prompter interface {
	Ask(txn *ledger.Transaction) (classify.Record, error)
}

// Stdin is a Prompter reading from a terminal: "type usd [ephemeral]" or
// "quit"/"abort".
type Stdin struct {
	In  io.Reader
	Out io.Writer
}

// Ask implements Prompter.
func (s *Stdin) Ask(txn *ledger.Transaction) (classify.Record, error) {
	r := bufio.NewReader(s.In)
	fmt.Fprintf(s.Out, "Unclassified %s on %s (%s BTC, account %s): type usd [ephemeral]? ",
		txn.Type, txn.Timestamp.Format("2006-01-02"), txn.Btc.String(), txn.Account)

	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return classify.Record{}, err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return classify.Record{}, fmt.Errorf("prompt: empty response")
	}
	switch strings.ToLower(fields[0]) {
	case "quit":
		return classify.Record{}, UserQuitError{}
	case "abort":
		return classify.Record{}, UserAbortError{}
	}
	if len(fields) < 2 {
		return classify.Record{}, fmt.Errorf("prompt: expected 'type usd [ephemeral]'")
	}
	usd, err := decimal.NewFromString(fields[1])
	if err != nil {
		return classify.Record{}, fmt.Errorf("prompt: invalid usd amount %q: %w", fields[1], err)
	}
	// The user answers with a magnitude; the stored usd follows the ledger
	// sign convention (negative on acquisitions, positive on disposals).
	usd = usd.Abs()
	if txn.Btc.IsPositive() {
		usd = usd.Neg()
	}
	rec := classify.Record{Type: classify.Kind(fields[0]), Usd: usd, Btc: txn.Btc}
	if len(fields) > 2 && strings.EqualFold(fields[2], "ephemeral") {
		rec.Ephemeral = true
	}
	return rec, nil
}

// Scripted is a Prompter that returns a pre-recorded answer per call,
// used by tests in place of an interactive terminal.
type Scripted struct {
	Answers []classify.Record
	Errors  []error
	n       int
}

// Ask implements Prompter.
func (s *Scripted) Ask(_ *ledger.Transaction) (classify.Record, error) {
	if s.n < len(s.Errors) && s.Errors[s.n] != nil {
		err := s.Errors[s.n]
		s.n++
		return classify.Record{}, err
	}
	if s.n >= len(s.Answers) {
		return classify.Record{}, fmt.Errorf("prompt: scripted answers exhausted")
	}
	rec := s.Answers[s.n]
	s.n++
	return rec, nil
}
