package classify

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")

	s, err := Load(path)
	require.NoError(t, err)

	s.Put("tx:1", Record{Usd: decimal.NewFromInt(100), Type: Income})
	require.NoError(t, s.Flush())

	s2, err := Load(path)
	require.NoError(t, err)
	rec, ok := s2.Lookup("tx:1")
	assert.True(t, ok)
	assert.Equal(t, Income, rec.Type)
}

func TestShortKeyLookupUnambiguous(t *testing.T) {
	s := &JSONStore{records: map[string]Record{
		"abc:1": {Type: Income},
	}}
	s.rebuildIndex()

	rec, ok := s.Lookup("abc:2")
	assert.True(t, ok, "abc:2 shares the canonical short key abc with the stored abc:1")
	assert.Equal(t, Income, rec.Type)

	rec, ok = s.Lookup("abc")
	assert.True(t, ok)
	assert.Equal(t, Income, rec.Type)
}

func TestShortKeyLookupAmbiguousFails(t *testing.T) {
	s := &JSONStore{records: map[string]Record{
		"abc:1": {Type: Income},
		"abc:2": {Type: Expense},
	}}
	s.rebuildIndex()

	_, ok := s.Lookup("abc")
	assert.False(t, ok, "ambiguous short key must not resolve")
}

func TestEphemeralNotPersisted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.json")
	s, err := Load(path)
	require.NoError(t, err)

	s.Put("tx:1", Record{Type: Income, Ephemeral: true})
	require.NoError(t, s.Flush())

	_, ok := s.Lookup("tx:1")
	assert.False(t, ok)
}
