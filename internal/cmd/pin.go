package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

// NewPinCmd creates the pin command
func NewPinCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pin FORMULA...",
		Short: "Pin the specified formulae to their current versions",
		Long: `Pin the specified formulae to their current versions, preventing them
from being upgraded when running 'upgrade'.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPin(cfg, args)
		},
	}

	return cmd
}

// NewUnpinCmd creates the unpin command
func NewUnpinCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unpin FORMULA...",
		Short: "Unpin specified formulae, allowing them to be upgraded again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnpin(cfg, args)
		},
	}

	return cmd
}

func runPin(cfg *config.Config, names []string) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, name := range names {
		installed, err := s.db.IsInstalled(name)
		if err != nil {
			return fmt.Errorf("check %s: %w", name, err)
		}
		if !installed {
			return fmt.Errorf("%s is not installed", name)
		}
		changed, err := s.db.Pin(name)
		if err != nil {
			return fmt.Errorf("pin %s: %w", name, err)
		}
		if !changed {
			logger.Info("%s is already pinned", name)
			continue
		}
		logger.Success("Pinned %s", name)
	}
	return nil
}

func runUnpin(cfg *config.Config, names []string) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, name := range names {
		changed, err := s.db.Unpin(name)
		if err != nil {
			return fmt.Errorf("unpin %s: %w", name, err)
		}
		if !changed {
			logger.Info("%s is not pinned", name)
			continue
		}
		logger.Success("Unpinned %s", name)
	}
	return nil
}
