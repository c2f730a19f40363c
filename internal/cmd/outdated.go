package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

// NewOutdatedCmd creates the outdated command
func NewOutdatedCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		quiet      bool
		includePin bool
	)

	cmd := &cobra.Command{
		Use:   "outdated",
		Short: "List installed formulae that have a more recent version available",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutdated(cfg, jsonOutput, quiet, includePin)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print a JSON representation of the outdated formulae")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "List only the names of outdated kegs")
	cmd.Flags().BoolVar(&includePin, "pinned", false, "Also list pinned formulae that are outdated")

	return cmd
}

func runOutdated(cfg *config.Config, jsonOutput, quiet, includePin bool) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	entries, err := s.inst.Outdated(includePin)
	if err != nil {
		return fmt.Errorf("find outdated formulae: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}

	if len(entries) == 0 {
		if !quiet {
			logger.Info("No outdated formulae")
		}
		return nil
	}

	for _, e := range entries {
		if quiet {
			fmt.Println(e.Name)
			continue
		}
		pinned := ""
		if e.Pinned {
			pinned = " [pinned]"
		}
		fmt.Printf("%s (%s) < %s%s\n", e.Name, e.CurrentVersion, e.LatestVersion, pinned)
	}

	return nil
}
