package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such-config.toml"))
	require.NoError(t, err)

	assert.Equal(t, "anonymous", cfg.Privacy.DefaultLevel)
	assert.True(t, cfg.Ingest.Enabled)
	assert.NotEmpty(t, cfg.Ledger.SnapshotPath)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[privacy]
default_level = "private"

[ingest]
enabled = false

[points]
plastic_bottle = 20
drone_wreckage = 42
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "private", cfg.Privacy.DefaultLevel)
	assert.False(t, cfg.Ingest.Enabled)
	// Untouched sections keep their defaults.
	assert.Equal(t, "ANONPICK_LEDGER_PASSPHRASE", cfg.Ledger.PassphraseEnv)

	table := cfg.PointsTable()
	assert.Equal(t, 20, table["plastic_bottle"], "override should win")
	assert.Equal(t, 42, table["drone_wreckage"], "new labels can be added")
	assert.Equal(t, 5, table["cigarette_butt"], "defaults survive the overlay")
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("privacy = [broken"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := Default()
	cfg.Privacy.DefaultLevel = "cloaked"

	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNegativePoints(t *testing.T) {
	cfg := Default()
	cfg.Points = map[string]int{"can": -1}

	assert.Error(t, cfg.Validate())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "x"), ExpandPath("~/x"))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, "/absolute/path", ExpandPath("/absolute/path"))
}
