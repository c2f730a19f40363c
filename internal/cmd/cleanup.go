package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

// NewCleanupCmd creates the cleanup command
func NewCleanupCmd(cfg *config.Config) *cobra.Command {
	var prune string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove unreferenced store entries, stale blobs, and stale locks",
		RunE: func(cmd *cobra.Command, args []string) error {
			days := 0
			if prune != "" {
				d, err := strconv.Atoi(prune)
				if err != nil {
					return fmt.Errorf("--prune must be a number of days: %w", err)
				}
				days = d
			}
			return runCleanup(cfg, days)
		},
	}

	cmd.Flags().StringVar(&prune, "prune", "0", "Also remove cached blobs older than this many days (0 disables age pruning)")

	return cmd
}

func runCleanup(cfg *config.Config, pruneDays int) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	logger.Progress("Running cleanup")
	result, err := s.inst.Cleanup(pruneDays)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	logger.Success("Removed %d store entries and %d blob(s), freed %s",
		len(result.StoreEntriesRemoved), result.BlobsRemoved, formatFileSize(result.BytesFreed))
	return nil
}
