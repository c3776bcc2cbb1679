package cli

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sfc-gh-svemuri/feedcheck/internal/engine"
	"github.com/sfc-gh-svemuri/feedcheck/internal/status"
	"github.com/sfc-gh-svemuri/feedcheck/internal/verify"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Config   string
	Database string
}

// VerifyResult is the verify command's JSON payload.
type VerifyResult struct {
	Consistent bool   `json:"consistent"`
	RangeID    string `json:"range_id"`
	VersionA   int64  `json:"version_a"`
	VersionB   int64  `json:"version_b"`
	Findings   int    `json:"findings"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run a single verification iteration",
		Long: `Run one verification iteration against a store and report the result.

Registers a change feed, takes two snapshots, replays the feed's
mutation log between them, and compares.

Exit codes:
  0 - Snapshots reconciled (feed is consistent)
  1 - Inconsistency detected
  2 - Command error (database not found, broken config, etc.)

Example:
  feedcheck verify --db ./feedcheck.db
  feedcheck verify --config ./feedcheck.toml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to TOML config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := loadConfig(opts.Config, opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	setupLogging(opts.Verbose)

	eng, err := engine.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer eng.Close()

	recorder := status.NewRecorder(8)
	verifier := verify.New(verify.WrapEngine(eng), verifierOptions(cfg, recorder)...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	formatter.VerboseLog("verifying feed %s in %s", verifier.RangeID(), cfg.Database.Path)
	if err := verifier.RunOnce(ctx); err != nil {
		return WrapExitError(ExitCommandError, "verification iteration failed", err)
	}

	stats := verifier.Stats()
	findings := recorder.Findings()
	result := VerifyResult{
		Consistent: len(findings) == 0,
		RangeID:    verifier.RangeID(),
		VersionA:   stats.LastVersionA,
		VersionB:   stats.LastVersionB,
		Findings:   len(findings),
	}

	if result.Consistent {
		if opts.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "✓ feed consistent over [%d, %d)\n", result.VersionA, result.VersionB)
		return nil
	}

	if opts.Format == "json" {
		_ = formatter.Error("E_FEED_MISMATCH", "change feed mismatch detected", result)
	} else {
		fmt.Fprintf(formatter.Writer, "✗ feed mismatch over [%d, %d)\n", result.VersionA, result.VersionB)
		for _, f := range findings {
			printFinding(formatter, f)
		}
	}
	return NewExitError(ExitFailure, "change feed mismatch detected")
}

func printFinding(formatter *OutputFormatter, f verify.Finding) {
	if f.Result.SizeMismatch {
		fmt.Fprintf(formatter.Writer, "  size mismatch: expected %d entries, got %d\n",
			f.Result.ExpectedLen, f.Result.ActualLen)
		return
	}
	fmt.Fprintf(formatter.Writer, "  entry mismatch at index %d: key %s expected %s, got %s\n",
		f.Result.Index,
		hex.EncodeToString(f.Result.Expected.Key),
		hex.EncodeToString(f.Result.Expected.Value),
		hex.EncodeToString(f.Result.Actual.Value))
}
