package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

// NewAutoremoveCmd creates the autoremove command
func NewAutoremoveCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "autoremove",
		Short: "Uninstall formulae that were installed only as dependencies and are no longer needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAutoremove(cfg)
		},
	}
}

func runAutoremove(cfg *config.Config) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	logger.Progress("Checking for unneeded dependencies")
	removed, err := s.inst.Autoremove()
	if err != nil {
		return fmt.Errorf("autoremove: %w", err)
	}

	if len(removed) == 0 {
		logger.Success("No unneeded dependencies to remove")
		return nil
	}
	logger.Success("Autoremoved %d formula(e): %s", len(removed), strings.Join(removed, ", "))
	return nil
}
