package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/installer"
	"github.com/zb-pm/zb/internal/logger"
)

// NewBundleCmd creates the bundle command
func NewBundleCmd(cfg *config.Config) *cobra.Command {
	var (
		file   string
		noLink bool
	)

	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Install everything listed in a Brewfile",
		Long: `Install everything listed in a Brewfile. Taps are added before the
formulae that might need them; already-tapped taps and already-installed
formulae are skipped, and one formula's failure does not abort the rest
of the manifest.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBundle(cfg, file, !noLink)
		},
	}

	cmd.Flags().StringVar(&file, "file", "Brewfile", "Path to the Brewfile to read")
	cmd.Flags().BoolVar(&noLink, "no-link", false, "Do not symlink installed kegs into the prefix")

	return cmd
}

func runBundle(cfg *config.Config, path string, link bool) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	progress := make(chan installer.ProgressEvent, 32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range progress {
			logProgressEvent(e)
		}
	}()

	result, err := s.inst.Bundle(path, link, progress)
	close(progress)
	<-done
	if err != nil {
		return fmt.Errorf("bundle: %w", err)
	}

	for name, ferr := range result.Failed {
		logger.Warn("%s: %v", name, ferr)
	}

	logger.Success("Tapped %d, installed %d, skipped %d, failed %d",
		len(result.Tapped), len(result.Installed), len(result.Skipped), len(result.Failed))
	return nil
}
