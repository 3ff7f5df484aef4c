package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/anonpick/anonpick/internal/classify"
	"github.com/anonpick/anonpick/internal/config"
	"github.com/anonpick/anonpick/internal/ledger"
	"github.com/anonpick/anonpick/internal/pipeline"
	"github.com/anonpick/anonpick/internal/store"
)

// ErrBadArguments is returned when a command receives malformed arguments.
var ErrBadArguments = errors.New("bad arguments")

// CLI runs commands against the local data directory.
type CLI struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	output io.Writer
}

// NewCLI creates a CLI over an already-loaded configuration.
func NewCLI(cfg *config.Config, passphrase string) (*CLI, error) {
	led, err := ledger.Load(ledger.NewSnapshotter(cfg.Ledger.SnapshotPath, passphrase))
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	return &CLI{
		cfg:    cfg,
		ledger: led,
		output: os.Stdout,
	}, nil
}

// NewCLIWithDefaults loads the default config file and snapshot.
func NewCLIWithDefaults() (*CLI, error) {
	paths := config.DefaultPaths()
	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, err
	}

	passphrase := os.Getenv(cfg.Ledger.PassphraseEnv)
	if passphrase == "" {
		passphrase = "anonpick-local-ledger"
	}
	return NewCLI(cfg, passphrase)
}

// Identity handles `identity new [--recover]` and `identity recover <words...>`.
func (c *CLI) Identity(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: identity needs a subcommand (new, recover)", ErrBadArguments)
	}

	switch args[0] {
	case "new":
		withRecovery := len(args) > 1 && args[1] == "--recover"

		id, material, err := c.ledger.Create(withRecovery)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.output, "Identity created\n  public hash: %s\n", id.PublicHash)
		if material != nil {
			fmt.Fprintf(c.output, "  recovery phrase: %s\n", material.Phrase)
			fmt.Fprintln(c.output, "  Write the phrase down. It is shown exactly once.")
		}
		return nil

	case "recover":
		if len(args) < 2 {
			return fmt.Errorf("%w: recover needs the 12-word phrase", ErrBadArguments)
		}
		phrase := strings.Join(args[1:], " ")

		id, ok := c.ledger.Recover(phrase)
		if !ok {
			return errors.New("no identity exists for that phrase")
		}

		fmt.Fprintf(c.output, "Identity recovered\n  public hash: %s\n  balance: %s\n  actions: %d\n",
			id.PublicHash, id.Balance, id.TotalActions)
		return nil

	default:
		return fmt.Errorf("%w: unknown identity subcommand %q", ErrBadArguments, args[0])
	}
}

// Submit handles `submit <image> <lat> <lng> [level] [secret]`.
func (c *CLI) Submit(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: submit <image> <lat> <lng> [level] [secret]", ErrBadArguments)
	}

	image, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	lat, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("%w: latitude %q", ErrBadArguments, args[1])
	}
	lng, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("%w: longitude %q", ErrBadArguments, args[2])
	}

	level := c.cfg.Privacy.DefaultLevel
	if len(args) > 3 {
		level = args[3]
	}
	secret := ""
	if len(args) > 4 {
		secret = args[4]
	}

	service := pipeline.New(store.NewMemStore(), classify.HashClassifier{}, c.ledger, pipeline.Options{
		Points: c.cfg.PointsTable(),
		Logger: slog.New(slog.DiscardHandler),
	})

	res, err := service.Submit(context.Background(), pipeline.Submission{
		ImageBytes:   image,
		ImageRef:     "file://" + args[0],
		Lat:          lat,
		Lng:          lng,
		UserSecret:   secret,
		PrivacyLevel: level,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.output, "Report accepted\n  pick: %s\n  classification: %s (%.0f%%)\n  points: %d\n  accuracy: %.1f km\n  commitment: %s\n",
		res.PickID, res.Classification, res.Confidence*100, res.Points, res.Location.AccuracyKm, res.CommitmentHash.Short())
	return nil
}

// Stats prints ledger aggregates.
func (c *CLI) Stats() error {
	stats := c.ledger.Aggregate()

	fmt.Fprintf(c.output, "Ledger\n  identities: %d\n  total balance: %s\n  total actions: %d\n  avg actions: %.2f\n",
		stats.Identities, stats.TotalBalance, stats.TotalActions, stats.AvgActions)
	return nil
}
