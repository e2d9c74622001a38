package testutil

import (
	"strings"
	"testing"
)

// RunConfig configures a model-vs-catalog run.
type RunConfig struct {
	// MaxOps is the maximum number of operations to execute.
	MaxOps int

	// CompareStateEveryN runs a full state comparison every N operations.
	// Zero compares only at the end.
	CompareStateEveryN int
}

// DefaultRunConfig returns the configuration used by the fuzz tests.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxOps:             200,
		CompareStateEveryN: 10,
	}
}

// Run executes the operations derived from fuzzBytes against a fresh catalog
// and the model, failing tb on the first disagreement.
func Run(tb testing.TB, cfg RunConfig, genCfg OpGenConfig, fuzzBytes []byte) {
	tb.Helper()

	if cfg.MaxOps <= 0 {
		tb.Fatalf("Run requires MaxOps > 0")
	}

	h := NewHarness(tb, genCfg.Capacity)
	gen := NewOpGenerator(fuzzBytes, h.Model, &genCfg)
	history := make([]string, 0, cfg.MaxOps)

	for i := 1; i <= cfg.MaxOps && gen.HasMore(); i++ {
		op := gen.NextOp()
		history = append(history, op.String())

		err := h.Apply(op)
		if err != nil {
			tb.Fatalf("op %d %s: %v\nhistory:\n  %s", i, op, err, strings.Join(history, "\n  "))
		}

		if cfg.CompareStateEveryN > 0 && i%cfg.CompareStateEveryN == 0 {
			err = h.CheckState()
			if err != nil {
				tb.Fatalf("state after op %d: %v\nhistory:\n  %s", i, err, strings.Join(history, "\n  "))
			}
		}
	}

	err := h.CheckState()
	if err != nil {
		tb.Fatalf("final state: %v\nhistory:\n  %s", err, strings.Join(history, "\n  "))
	}

	h.Reopen()

	err = h.CheckState()
	if err != nil {
		tb.Fatalf("state after final reopen: %v\nhistory:\n  %s", err, strings.Join(history, "\n  "))
	}
}
