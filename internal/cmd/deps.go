package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
)

// NewDepsCmd creates the deps command
func NewDepsCmd(cfg *config.Config) *cobra.Command {
	var (
		showDependents bool
		tree           bool
	)

	cmd := &cobra.Command{
		Use:   "deps FORMULA...",
		Short: "Show dependencies for formulae",
		Long: `Show the effective dependencies for the given formulae, or with
--dependents, the installed formulae that depend on them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeps(cfg, args, showDependents, tree)
		},
	}

	cmd.Flags().BoolVar(&showDependents, "dependents", false, "Show formulae that depend on the specified formula")
	cmd.Flags().BoolVar(&tree, "tree", false, "Show dependencies recursively as a tree")

	return cmd
}

func runDeps(cfg *config.Config, names []string, showDependents, tree bool) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, name := range names {
		if showDependents {
			dependents, err := s.inst.Dependents(name)
			if err != nil {
				return fmt.Errorf("find dependents of %s: %w", name, err)
			}
			sort.Strings(dependents)
			for _, d := range dependents {
				fmt.Println(d)
			}
			continue
		}

		if tree {
			if err := printDepsTree(s, name, 0, map[string]bool{}); err != nil {
				return fmt.Errorf("deps tree for %s: %w", name, err)
			}
			continue
		}

		deps, err := s.inst.Dependencies(name)
		if err != nil {
			return fmt.Errorf("dependencies of %s: %w", name, err)
		}
		sort.Strings(deps)
		for _, d := range deps {
			fmt.Println(d)
		}
	}

	return nil
}

func printDepsTree(s *stack, name string, depth int, seen map[string]bool) error {
	if seen[name] {
		return nil
	}
	seen[name] = true

	for i := 0; i < depth; i++ {
		fmt.Print("  ")
	}
	fmt.Println(name)

	deps, err := s.inst.Dependencies(name)
	if err != nil {
		return err
	}
	sort.Strings(deps)
	for _, d := range deps {
		if err := printDepsTree(s, d, depth+1, seen); err != nil {
			return err
		}
	}
	return nil
}
