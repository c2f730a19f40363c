package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

// NewGCCmd creates the gc command
func NewGCCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Remove store entries no longer referenced by any installed formula",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGC(cfg)
		},
	}
}

func runGC(cfg *config.Config) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	logger.Progress("Collecting unreferenced store entries")
	removed, err := s.inst.GC()
	if err != nil {
		return fmt.Errorf("gc: %w", err)
	}

	if len(removed) == 0 {
		logger.Success("No unreferenced store entries to remove")
		return nil
	}
	logger.Success("Removed %d unreferenced store entries", len(removed))
	return nil
}
