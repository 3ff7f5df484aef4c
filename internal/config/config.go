// Package config loads TOML configuration for the anonpick daemon and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/anonpick/anonpick/internal/classify"
	"github.com/anonpick/anonpick/pkg/geo"
)

// Paths holds XDG-compliant paths for anonpick.
type Paths struct {
	ConfigDir  string // ~/.config/anonpick
	DataDir    string // ~/.local/share/anonpick
	ConfigFile string // ~/.config/anonpick/config.toml
	LedgerPath string // ~/.local/share/anonpick/ledger.snap
	IngestDir  string // ~/.local/share/anonpick/inbox
	ArchiveDir string // ~/.local/share/anonpick/processed
}

// ExpandPath expands ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
// Panics if the home directory cannot be determined when expansion is needed.
func ExpandPath(path string) string {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get home directory: %v", err))
		}
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			panic(fmt.Sprintf("failed to get home directory: %v", err))
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultPaths returns the default XDG-compliant paths.
// Panics if the user's home directory cannot be determined.
func DefaultPaths() Paths {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Sprintf("failed to get home directory: %v", err))
	}
	configDir := filepath.Join(home, ".config", "anonpick")
	dataDir := filepath.Join(home, ".local", "share", "anonpick")

	return Paths{
		ConfigDir:  configDir,
		DataDir:    dataDir,
		ConfigFile: filepath.Join(configDir, "config.toml"),
		LedgerPath: filepath.Join(dataDir, "ledger.snap"),
		IngestDir:  filepath.Join(dataDir, "inbox"),
		ArchiveDir: filepath.Join(dataDir, "processed"),
	}
}

// EnsureDirectories creates config and data directories if they don't exist.
func (p Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ConfigDir, p.DataDir, p.IngestDir, p.ArchiveDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}

// Config holds daemon configuration.
type Config struct {
	Privacy PrivacyConfig  `toml:"privacy"`
	Ingest  IngestConfig   `toml:"ingest"`
	Ledger  LedgerConfig   `toml:"ledger"`
	Points  map[string]int `toml:"points"`
}

// PrivacyConfig holds anonymization settings.
type PrivacyConfig struct {
	// DefaultLevel applies when a submission names no privacy level:
	// public, anonymous, or private.
	DefaultLevel string `toml:"default_level"`
}

// IngestConfig holds drop-folder intake settings.
type IngestConfig struct {
	Enabled    bool     `toml:"enabled"`
	Directory  string   `toml:"directory"`
	ArchiveDir string   `toml:"archive_dir"`
	Extensions []string `toml:"extensions"`
}

// LedgerConfig holds ledger snapshot settings.
type LedgerConfig struct {
	SnapshotPath string `toml:"snapshot_path"`

	// PassphraseEnv names the environment variable carrying the snapshot
	// passphrase. The passphrase itself never appears in the file.
	PassphraseEnv string `toml:"passphrase_env"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	paths := DefaultPaths()
	return Config{
		Privacy: PrivacyConfig{
			DefaultLevel: string(geo.LevelAnonymous),
		},
		Ingest: IngestConfig{
			Enabled:    true,
			Directory:  paths.IngestDir,
			ArchiveDir: paths.ArchiveDir,
			Extensions: []string{".jpg", ".jpeg", ".png"},
		},
		Ledger: LedgerConfig{
			SnapshotPath:  paths.LedgerPath,
			PassphraseEnv: "ANONPICK_LEDGER_PASSPHRASE",
		},
		Points: nil, // classification defaults apply
	}
}

// Load reads a Config from a TOML file, overlaying the defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg.Ingest.Directory = ExpandPath(cfg.Ingest.Directory)
	cfg.Ingest.ArchiveDir = ExpandPath(cfg.Ingest.ArchiveDir)
	cfg.Ledger.SnapshotPath = ExpandPath(cfg.Ledger.SnapshotPath)

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := geo.ParseLevel(c.Privacy.DefaultLevel); err != nil {
		return fmt.Errorf("config: privacy.default_level: %w", err)
	}
	if c.Ingest.Enabled && c.Ingest.Directory == "" {
		return fmt.Errorf("config: ingest.directory is required when ingest is enabled")
	}
	for label, points := range c.Points {
		if points < 0 {
			return fmt.Errorf("config: points[%s] must be non-negative", label)
		}
	}
	return nil
}

// PointsTable merges configured overrides over the classification defaults.
func (c *Config) PointsTable() map[classify.Label]int {
	table := classify.Table()
	for label, points := range c.Points {
		table[classify.Label(label)] = points
	}
	return table
}
