package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

// NewLinkCmd creates the link command
func NewLinkCmd(cfg *config.Config) *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "link FORMULA...",
		Short: "Symlink a formula's installed files into the prefix",
		Long: `Symlink all of an installed formula's files into the prefix. This is
done automatically during install but can be used to re-link after a
manual unlink.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(cfg, args, overwrite)
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing files that conflict with the link")

	return cmd
}

// NewUnlinkCmd creates the unlink command
func NewUnlinkCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlink FORMULA...",
		Short: "Remove a formula's symlinks from the prefix",
		Long: `Remove the prefix symlinks for the given formulae without deleting
their installed files.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnlink(cfg, args)
		},
	}

	return cmd
}

func runLink(cfg *config.Config, names []string, overwrite bool) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, name := range names {
		links, err := s.inst.Link(name, overwrite)
		if err != nil {
			return fmt.Errorf("link %s: %w", name, err)
		}
		logger.Success("Linked %s (%d file(s))", name, len(links))
	}
	return nil
}

func runUnlink(cfg *config.Config, names []string) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, name := range names {
		links, err := s.inst.Unlink(name)
		if err != nil {
			return fmt.Errorf("unlink %s: %w", name, err)
		}
		logger.Success("Unlinked %s (%d file(s))", name, len(links))
	}
	return nil
}
