// Package workload generates randomized write traffic so the verifier
// has real mutation volume to check while the daemon soaks.
package workload

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/sfc-gh-svemuri/feedcheck/internal/engine"
	"github.com/sfc-gh-svemuri/feedcheck/internal/kv"
)

// Generator commits random sets and occasional clear-ranges over a small
// key alphabet on a fixed interval.
type Generator struct {
	eng       *engine.Engine
	rnd       *rand.Rand
	interval  time.Duration
	ops       int
	keys      int
	clearProb float64
	log       *slog.Logger
}

// Config controls the generated traffic.
type Config struct {
	Interval  time.Duration // time between commits
	Ops       int           // mutations per commit
	Keys      int           // size of the key alphabet
	ClearProb float64       // probability a mutation is a clear-range
}

// New creates a generator. rnd drives all randomness so traffic is
// reproducible under a fixed seed.
func New(eng *engine.Engine, rnd *rand.Rand, cfg Config, log *slog.Logger) *Generator {
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.Ops <= 0 {
		cfg.Ops = 4
	}
	if cfg.Keys <= 0 {
		cfg.Keys = 64
	}
	return &Generator{
		eng:       eng,
		rnd:       rnd,
		interval:  cfg.Interval,
		ops:       cfg.Ops,
		keys:      cfg.Keys,
		clearProb: cfg.ClearProb,
		log:       log,
	}
}

// Run commits random batches until ctx is cancelled. Retryable engine
// errors skip the tick; anything else stops the generator.
func (g *Generator) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		muts := g.commit()
		version, err := g.eng.Apply(ctx, muts)
		if err != nil {
			if engine.IsRetryable(err) {
				g.log.Debug("workload commit deferred", "error", err)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("workload commit: %w", err)
		}
		g.log.Debug("workload committed", "version", version, "mutations", len(muts))
	}
}

// commit builds one random mutation batch.
func (g *Generator) commit() []kv.Mutation {
	muts := make([]kv.Mutation, 0, g.ops)
	for i := 0; i < g.ops; i++ {
		if g.rnd.Float64() < g.clearProb {
			a, b := g.key(), g.key()
			if string(a) > string(b) {
				a, b = b, a
			}
			muts = append(muts, kv.Clear(a, b))
			continue
		}
		muts = append(muts, kv.Set(g.key(), g.value()))
	}
	return muts
}

func (g *Generator) key() []byte {
	return []byte(fmt.Sprintf("key-%04d", g.rnd.Intn(g.keys)))
}

func (g *Generator) value() []byte {
	return []byte(fmt.Sprintf("val-%08x", g.rnd.Uint32()))
}
