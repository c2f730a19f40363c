package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

// NewSearchCmd creates the search command
func NewSearchCmd(cfg *config.Config) *cobra.Command {
	var desc bool

	cmd := &cobra.Command{
		Use:   "search TEXT",
		Short: "Search the formula index by name or description",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cfg, strings.Join(args, " "), desc)
		},
	}

	cmd.Flags().BoolVar(&desc, "desc", false, "Also match against formula descriptions")

	return cmd
}

func runSearch(cfg *config.Config, query string, desc bool) error {
	apiClient := newAPIClient(cfg)
	logger.Step("Searching for %q", query)

	entries, err := apiClient.GetIndex()
	if err != nil {
		return fmt.Errorf("fetch formula index: %w", err)
	}

	q := strings.ToLower(query)
	var names []string
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Name), q) {
			names = append(names, e.Name)
			continue
		}
		if desc && strings.Contains(strings.ToLower(e.Desc), q) {
			names = append(names, e.Name)
		}
	}

	if len(names) == 0 {
		fmt.Printf("No formulae found matching %q\n", query)
		return nil
	}

	printColumns(names, 80)
	return nil
}
