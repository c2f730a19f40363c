package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
)

// NewLeavesCmd creates the leaves command
func NewLeavesCmd(cfg *config.Config) *cobra.Command {
	var (
		installedOnRequest bool
		installedAsDep     bool
	)

	cmd := &cobra.Command{
		Use:   "leaves",
		Short: "List installed formulae that are not dependencies of other installed formulae",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeaves(cfg, installedOnRequest, installedAsDep)
		},
	}

	cmd.Flags().BoolVar(&installedOnRequest, "installed-on-request", false, "Show only formulae installed on request")
	cmd.Flags().BoolVar(&installedAsDep, "installed-as-dependency", false, "Show only formulae installed as dependencies")

	return cmd
}

func runLeaves(cfg *config.Config, installedOnRequest, installedAsDep bool) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	rows, err := s.db.ListInstalled()
	if err != nil {
		return fmt.Errorf("list installed: %w", err)
	}

	var leaves []string
	for _, row := range rows {
		dependents, err := s.inst.Dependents(row.Name)
		if err != nil {
			return fmt.Errorf("dependents of %s: %w", row.Name, err)
		}
		if len(dependents) > 0 {
			continue
		}
		if installedOnRequest && !row.Explicit {
			continue
		}
		if installedAsDep && row.Explicit {
			continue
		}
		leaves = append(leaves, row.Name)
	}

	sort.Strings(leaves)
	for _, name := range leaves {
		fmt.Println(name)
	}
	return nil
}
