package prompt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sklarsa/bitcoin-gains/internal/classify"
	"github.com/sklarsa/bitcoin-gains/internal/ledger"
)

func TestStdinAskParsesTypeAndAmount(t *testing.T) {
	in := bytes.NewBufferString("income 500\n")
	var out bytes.Buffer
	s := &Stdin{In: in, Out: &out}

	rec, err := s.Ask(&ledger.Transaction{Type: ledger.Deposit, Btc: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.Equal(t, classify.Income, rec.Type)
	assert.True(t, rec.Usd.Equal(decimal.NewFromInt(-500)), "a deposit's usd leg is stored as an outflow, got %s", rec.Usd)
	assert.False(t, rec.Ephemeral)
	assert.Contains(t, out.String(), "Unclassified")
}

func TestStdinAskEphemeralFlag(t *testing.T) {
	in := bytes.NewBufferString("expense 10 ephemeral\n")
	s := &Stdin{In: in, Out: &bytes.Buffer{}}

	rec, err := s.Ask(&ledger.Transaction{Type: ledger.Withdraw})
	require.NoError(t, err)
	assert.True(t, rec.Ephemeral)
}

func TestStdinAskQuitAndAbort(t *testing.T) {
	s := &Stdin{In: bytes.NewBufferString("quit\n"), Out: &bytes.Buffer{}}
	_, err := s.Ask(&ledger.Transaction{})
	var quitErr UserQuitError
	assert.ErrorAs(t, err, &quitErr)

	s2 := &Stdin{In: bytes.NewBufferString("abort\n"), Out: &bytes.Buffer{}}
	_, err2 := s2.Ask(&ledger.Transaction{})
	var abortErr UserAbortError
	assert.ErrorAs(t, err2, &abortErr)
}

func TestStdinAskRejectsMalformedResponse(t *testing.T) {
	s := &Stdin{In: bytes.NewBufferString("income\n"), Out: &bytes.Buffer{}}
	_, err := s.Ask(&ledger.Transaction{})
	assert.Error(t, err)
}

func TestScriptedReturnsAnswersInOrderThenErrors(t *testing.T) {
	want := errors.New("boom")
	s := &Scripted{
		Answers: []classify.Record{{Type: classify.Income}},
		Errors:  []error{nil, want},
	}

	rec, err := s.Ask(&ledger.Transaction{})
	require.NoError(t, err)
	assert.Equal(t, classify.Income, rec.Type)

	_, err = s.Ask(&ledger.Transaction{})
	assert.Equal(t, want, err)
}

func TestScriptedExhaustedAnswersErrors(t *testing.T) {
	s := &Scripted{}
	_, err := s.Ask(&ledger.Transaction{})
	assert.Error(t, err)
}
