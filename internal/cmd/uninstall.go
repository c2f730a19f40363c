package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

// NewUninstallCmd creates the uninstall command
func NewUninstallCmd(cfg *config.Config) *cobra.Command {
	var (
		force      bool
		ignoreDeps bool
	)

	cmd := &cobra.Command{
		Use:     "uninstall FORMULA...",
		Aliases: []string{"remove", "rm"},
		Short:   "Uninstall a formula",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUninstall(cfg, args, force, ignoreDeps)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Don't fail if the formula isn't installed")
	cmd.Flags().BoolVar(&ignoreDeps, "ignore-dependencies", false, "Uninstall even if other installed formulae depend on it")

	return cmd
}

func runUninstall(cfg *config.Config, names []string, force, ignoreDeps bool) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, name := range names {
		row, ok, err := s.db.GetInstalled(name)
		if err != nil {
			return fmt.Errorf("check %s: %w", name, err)
		}
		if !ok {
			if force {
				logger.Warn("%s is not installed", name)
				continue
			}
			return fmt.Errorf("%s is not installed", name)
		}

		if !ignoreDeps {
			dependents, err := s.inst.Dependents(name)
			if err != nil {
				return fmt.Errorf("check dependents of %s: %w", name, err)
			}
			if len(dependents) > 0 {
				return fmt.Errorf("cannot uninstall %s because it is required by: %s (use --ignore-dependencies to override)",
					name, strings.Join(dependents, ", "))
			}
		}

		logger.Step("Uninstalling %s", name)
		if err := s.inst.Uninstall(name); err != nil {
			return fmt.Errorf("uninstall %s: %w", name, err)
		}
		logger.Success("Uninstalled %s %s", name, row.Version)
	}

	return nil
}
