package cmd

import (
	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/tap"
)

// NewUntapCmd creates the untap command
func NewUntapCmd(cfg *config.Config) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "untap TAP",
		Short: "Remove a tapped formula repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tapName := args[0]

			s, err := newStack(cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			options := &tap.TapOptions{Force: force}
			return s.inst.RemoveTap(tapName, options)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Untap even if formulae from this tap are installed")

	return cmd
}
