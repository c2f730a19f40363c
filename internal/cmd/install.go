package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	zberrors "github.com/zb-pm/zb/internal/errors"
	"github.com/zb-pm/zb/internal/installer"
	"github.com/zb-pm/zb/internal/logger"
)

// NewInstallCmd creates the install command
func NewInstallCmd(cfg *config.Config) *cobra.Command {
	var noLink bool

	cmd := &cobra.Command{
		Use:   "install FORMULA...",
		Short: "Install a formula",
		Long: `Install one or more formulae, resolving and installing their
dependencies first.

Unless HOMEBREW_NO_INSTALL_UPGRADE is set, installing an already-installed
formula upgrades it instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cfg, args, !noLink)
		},
	}

	cmd.Flags().BoolVar(&noLink, "no-link", false, "Do not symlink the installed keg into the prefix")

	return cmd
}

func runInstall(cfg *config.Config, names []string, link bool) error {
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
		if installed {
			if cfg.NoInstallUpgrade {
				logger.Info("%s is already installed", name)
				continue
			}
			logger.Progress("%s is already installed, upgrading", name)
			if _, err := s.inst.UpgradeOne(name, link, nil); err != nil && !zberrors.Is(err, zberrors.NotInstalled) {
				return fmt.Errorf("upgrade %s: %w", name, err)
			}
			continue
		}

		logger.Progress("Installing %s", name)
		timer := logger.NewTimer(name)
		progress := make(chan installer.ProgressEvent, 32)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for e := range progress {
				logProgressEvent(e)
			}
		}()

		result, err := s.inst.InstallByName(name, link, progress)
		close(progress)
		<-done
		timer.Stop()
		if err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
		logger.Success("Installed %s (%d package(s))", name, result.InstalledCount)
	}

	if cfg.InstallCleanup {
		if _, err := s.inst.Cleanup(30); err != nil {
			logger.Warn("cleanup: %v", err)
		}
	}

	return nil
}

// logProgressEvent renders one pipeline event the way the teacher's
// progress spinner narrated download/build steps.
func logProgressEvent(e installer.ProgressEvent) {
	switch e.Kind {
	case installer.DownloadStarted:
		logger.Step("Downloading %s", e.Name)
	case installer.UnpackStarted:
		logger.Step("Extracting %s", e.Name)
	case installer.LinkStarted:
		logger.Step("Linking %s", e.Name)
	}
}
