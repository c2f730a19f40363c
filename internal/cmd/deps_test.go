package cmd

import (
	"testing"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

func TestNewDepsCmd(t *testing.T) {
	logger.Init(false, false, true)
	cfg := &config.Config{}

	cmd := NewDepsCmd(cfg)
	if cmd.Use != "deps FORMULA..." {
		t.Errorf("Use = %q, want %q", cmd.Use, "deps FORMULA...")
	}
	for _, flag := range []string{"dependents", "tree"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected flag %s to exist", flag)
		}
	}
}

func TestRunDepsUnknownFormula(t *testing.T) {
	logger.Init(false, false, true)
	cfg := testConfig(t)

	if err := runDeps(cfg, []string{"nonexistent"}, false, false); err == nil {
		t.Error("expected error fetching dependencies of an unknown formula")
	}
}
