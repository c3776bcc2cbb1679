package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	mrand "math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sfc-gh-svemuri/feedcheck/internal/config"
	"github.com/sfc-gh-svemuri/feedcheck/internal/engine"
	"github.com/sfc-gh-svemuri/feedcheck/internal/status"
	"github.com/sfc-gh-svemuri/feedcheck/internal/testutil"
	"github.com/sfc-gh-svemuri/feedcheck/internal/verify"
	"github.com/sfc-gh-svemuri/feedcheck/internal/workload"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config   string
	Database string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the verification loop until interrupted",
		Long: `Run the continuous verification loop against a store.

The loop registers a change feed over the full key range and repeatedly
takes two snapshots, replays the feed's mutation log between them, and
compares. Detected inconsistencies are logged and retained for the
status endpoint; they never stop the loop.

Optionally starts a background workload generator and an HTTP status
endpoint, both controlled by the config file.

Example:
  feedcheck run --db ./feedcheck.db
  feedcheck run --config ./feedcheck.toml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to TOML config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func runDaemon(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.Config, opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	setupLogging(opts.Verbose)

	slog.Info("opening database", "path", cfg.Database.Path)
	eng, err := engine.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	recorder := status.NewRecorder(128)
	verifier := verify.New(verify.WrapEngine(eng), verifierOptions(cfg, recorder)...)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	errCh := make(chan error, 3)

	if cfg.Workload.Enabled {
		gen := workload.New(eng, workloadRand(cfg), workload.Config{
			Interval:  cfg.Workload.Interval.Std(),
			Ops:       cfg.Workload.Ops,
			Keys:      cfg.Workload.Keys,
			ClearProb: cfg.Workload.ClearProb,
		}, slog.Default())
		slog.Info("workload generator enabled", "interval", cfg.Workload.Interval.Std())
		go func() { errCh <- gen.Run(ctx) }()
	}

	var srv *http.Server
	if cfg.Status.Listen != "" {
		srv = &http.Server{
			Addr:    cfg.Status.Listen,
			Handler: status.NewHandler(verifier, recorder),
		}
		slog.Info("status endpoint listening", "addr", cfg.Status.Listen)
		go func() {
			if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				errCh <- fmt.Errorf("status endpoint: %w", serveErr)
			}
		}()
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Verification loop started. Press Ctrl-C to stop.")
	go func() { errCh <- verifier.Run(ctx) }()

	// The first goroutine to stop decides the outcome; cancellation drains
	// the rest.
	runErr := <-errCh
	cancel()

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			slog.Error("status endpoint shutdown", "error", shutdownErr)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return WrapExitError(ExitFailure, "verification loop error", runErr)
	}

	stats := verifier.Stats()
	slog.Info("verification loop stopped",
		"iterations", stats.Iterations,
		"mismatches", stats.Mismatches)
	return nil
}

// loadConfig resolves the effective config: defaults, then the file,
// then the --db override.
func loadConfig(path, dbOverride string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
	}
	if dbOverride != "" {
		cfg.Database.Path = dbOverride
	}
	return cfg, cfg.Validate()
}

// setupLogging configures the process-wide logger.
func setupLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

func verifierOptions(cfg config.Config, recorder *status.Recorder) []verify.Option {
	vopts := []verify.Option{
		verify.WithWaits(cfg.Loop.ShortWait.Std(), cfg.Loop.LongWait.Std()),
		verify.WithReporter(recorder),
	}
	if cfg.Loop.ScanTimeout > 0 {
		vopts = append(vopts, verify.WithScanTimeout(cfg.Loop.ScanTimeout.Std()))
	}
	if cfg.Loop.Seed != 0 {
		vopts = append(vopts, verify.WithRand(testutil.Rand(cfg.Loop.Seed)))
	}
	return vopts
}

// workloadRand gives the generator its own randomness source; sharing
// the verifier's would race.
func workloadRand(cfg config.Config) *mrand.Rand {
	if cfg.Loop.Seed != 0 {
		return testutil.Rand(cfg.Loop.Seed + 1)
	}
	return testutil.Rand(time.Now().UnixNano())
}
