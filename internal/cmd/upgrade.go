package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

// NewUpgradeCmd creates the upgrade command
func NewUpgradeCmd(cfg *config.Config) *cobra.Command {
	var noLink bool

	cmd := &cobra.Command{
		Use:   "upgrade [FORMULA...]",
		Short: "Upgrade outdated formulae",
		Long: `Upgrade the named formulae, or every outdated installed formula when
no names are given. Pinned formulae are skipped unless named explicitly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpgrade(cfg, args, !noLink)
		},
	}

	cmd.Flags().BoolVar(&noLink, "no-link", false, "Do not relink the upgraded keg into the prefix")

	return cmd
}

func runUpgrade(cfg *config.Config, names []string, link bool) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if len(names) == 0 {
		outdated, err := s.inst.Outdated(false)
		if err != nil {
			return fmt.Errorf("find outdated formulae: %w", err)
		}
		if len(outdated) == 0 {
			logger.Info("All formulae are up to date")
			return nil
		}
		for _, o := range outdated {
			names = append(names, o.Name)
		}
	}

	for _, name := range names {
		result, err := s.inst.UpgradeOne(name, link, nil)
		if err != nil {
			return fmt.Errorf("upgrade %s: %w", name, err)
		}
		if result == nil {
			logger.Info("%s is already up to date", name)
			continue
		}
		logger.Success("Upgraded %s %s -> %s", name, result.OldVersion, result.NewVersion)
	}

	if cfg.InstallCleanup {
		if _, err := s.inst.Cleanup(30); err != nil {
			logger.Warn("cleanup: %v", err)
		}
	}

	return nil
}
