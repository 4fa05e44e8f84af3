package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "fifo", cfg.Method)
	assert.Equal(t, 24, cfg.TransferWindowHours)
	assert.Equal(t, "auto", cfg.IgnoreOldCoinbase)
}

func TestLoadYamlOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("method: lifo\nnowash: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "lifo", cfg.Method)
	assert.True(t, cfg.NoWash)
}

func TestValidateRejectsUnknownMethod(t *testing.T) {
	cfg := defaults()
	cfg.Method = "bogus"
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateBuildsAllowShortSet(t *testing.T) {
	cfg := defaults()
	cfg.AllowShort = []string{"bitcoind", "mining-rig"}
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.AllowShortSet["bitcoind"])
	assert.True(t, cfg.AllowShortSet["mining-rig"])
	assert.False(t, cfg.AllowShortSet["exchange"])
}

func TestValidateParsesEndDate(t *testing.T) {
	cfg := defaults()
	cfg.EndDate = "2021-12-31"
	require.NoError(t, cfg.Validate())
	require.NotNil(t, cfg.EndTimestamp)
}
