package cmd

import (
	"testing"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

func TestNewPinCmd(t *testing.T) {
	logger.Init(false, false, true)
	cfg := &config.Config{}

	cmd := NewPinCmd(cfg)
	if cmd.Use != "pin FORMULA..." {
		t.Errorf("Use = %q, want %q", cmd.Use, "pin FORMULA...")
	}
}

func TestNewUnpinCmd(t *testing.T) {
	logger.Init(false, false, true)
	cfg := &config.Config{}

	cmd := NewUnpinCmd(cfg)
	if cmd.Use != "unpin FORMULA..." {
		t.Errorf("Use = %q, want %q", cmd.Use, "unpin FORMULA...")
	}
}

func TestRunPinRequiresInstalled(t *testing.T) {
	logger.Init(false, false, true)
	cfg := testConfig(t)

	if err := runPin(cfg, []string{"nonexistent"}); err == nil {
		t.Error("expected error pinning a formula that isn't installed")
	}
}

func TestRunUnpinOfUnpinnedIsNoop(t *testing.T) {
	logger.Init(false, false, true)
	cfg := testConfig(t)

	if err := runUnpin(cfg, []string{"nonexistent"}); err != nil {
		t.Errorf("runUnpin: %v", err)
	}
}
