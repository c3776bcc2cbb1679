// Package config loads the daemon's TOML configuration.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration for TOML fields like "10s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the daemon's runtime configuration.
type Config struct {
	Database Database `toml:"database"`
	Loop     Loop     `toml:"loop"`
	Workload Workload `toml:"workload"`
	Status   Status   `toml:"status"`
}

// Database locates the store under verification.
type Database struct {
	Path string `toml:"path"`
}

// Loop controls the verification loop's timing.
type Loop struct {
	ShortWait   Duration `toml:"short_wait"`   // jitter bound before snapshot A
	LongWait    Duration `toml:"long_wait"`    // jitter bound between snapshots
	ScanTimeout Duration `toml:"scan_timeout"` // hard bound per streaming read; 0 disables
	Seed        int64    `toml:"seed"`         // randomness seed; 0 seeds from time
}

// Workload controls the built-in background mutator.
type Workload struct {
	Enabled   bool     `toml:"enabled"`
	Interval  Duration `toml:"interval"`
	Ops       int      `toml:"ops_per_commit"`
	Keys      int      `toml:"keys"`
	ClearProb float64  `toml:"clear_probability"`
}

// Status controls the HTTP diagnostics endpoint.
type Status struct {
	Listen string `toml:"listen"` // empty disables the endpoint
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Database: Database{Path: "feedcheck.db"},
		Loop: Loop{
			ShortWait: Duration(time.Second),
			LongWait:  Duration(10 * time.Second),
		},
		Workload: Workload{
			Interval:  Duration(100 * time.Millisecond),
			Ops:       4,
			Keys:      64,
			ClearProb: 0.1,
		},
	}
}

// Load reads path over the defaults. Unknown keys are rejected to catch
// typos.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Loop.ShortWait < 0 || c.Loop.LongWait < 0 || c.Loop.ScanTimeout < 0 {
		return fmt.Errorf("loop durations must not be negative")
	}
	if c.Workload.ClearProb < 0 || c.Workload.ClearProb > 1 {
		return fmt.Errorf("workload.clear_probability must be in [0, 1]")
	}
	if c.Workload.Ops < 0 || c.Workload.Keys < 0 {
		return fmt.Errorf("workload counts must not be negative")
	}
	return nil
}
