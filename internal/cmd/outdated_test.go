package cmd

import (
	"path/filepath"
	"testing"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

func TestNewOutdatedCmd(t *testing.T) {
	logger.Init(false, false, true)
	cfg := &config.Config{}

	cmd := NewOutdatedCmd(cfg)

	if cmd.Use != "outdated" {
		t.Errorf("Use = %q, want %q", cmd.Use, "outdated")
	}

	for _, flag := range []string{"json", "quiet", "pinned"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("expected flag %s to exist", flag)
		}
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		HomebrewPrefix:     root,
		HomebrewRepository: root,
		HomebrewCellar:     filepath.Join(root, "Cellar"),
		HomebrewCache:      filepath.Join(root, "Cache"),
		HomebrewLogs:       filepath.Join(root, "Logs"),
		HomebrewTemp:       filepath.Join(root, "Temp"),
	}
}

func TestRunOutdatedEmptyInstallation(t *testing.T) {
	logger.Init(false, false, true)
	cfg := testConfig(t)

	if err := runOutdated(cfg, false, true, false); err != nil {
		t.Fatalf("runOutdated: %v", err)
	}
}
