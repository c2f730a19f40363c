package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/api"
	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

// NewHomeCmd creates the home command (opens formula homepage)
func NewHomeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "home [FORMULA...]",
		Aliases: []string{"homepage"},
		Short:   "Open a formula's homepage in a browser",
		Long: `Open a formula's homepage in a browser, or open zb's homepage if no
argument is provided.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return openURL("https://brew.sh")
			}
			return openFormulaHomepages(cfg, args)
		},
	}

	return cmd
}

// NewUsesCmd creates the uses command (shows formulae that use this formula)
func NewUsesCmd(cfg *config.Config) *cobra.Command {
	var (
		installed    bool
		recursive    bool
		includeBuild bool
	)

	cmd := &cobra.Command{
		Use:   "uses [OPTIONS] FORMULA",
		Short: "Show formulae that specify formula as a dependency",
		Long: `Show formulae that specify formula as a dependency, or formulae that
specify formula as a build dependency if --include-build is passed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUses(cfg, args[0], &usesOptions{
				installed:    installed,
				recursive:    recursive,
				includeBuild: includeBuild,
			})
		},
	}

	cmd.Flags().BoolVar(&installed, "installed", false, "Only show formulae that are currently installed")
	cmd.Flags().BoolVar(&recursive, "recursive", false, "Resolve more than one level of dependencies")
	cmd.Flags().BoolVar(&includeBuild, "include-build", false, "Include build dependencies")

	return cmd
}

// NewDescCmd creates the desc command (show formula descriptions)
func NewDescCmd(cfg *config.Config) *cobra.Command {
	var (
		searchDesc bool
		name       bool
	)

	cmd := &cobra.Command{
		Use:   "desc [OPTIONS] FORMULA|TEXT",
		Short: "Display a formula's name and one-line description",
		Long: `Display a formula's name and one-line description. If TEXT is provided
instead of a formula name, show all formulae matching the text in their names
or descriptions.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDesc(cfg, args, &descOptions{
				searchDesc: searchDesc,
				name:       name,
			})
		},
	}

	cmd.Flags().BoolVarP(&searchDesc, "search", "s", false, "Search both name and description")
	cmd.Flags().BoolVarP(&name, "name", "n", false, "Search only in name")

	return cmd
}

// NewOptionsCmd creates the options command (show formula options)
func NewOptionsCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options [FORMULA...]",
		Short: "Show install options specific to formula",
		Long: `Show install options specific to formula. Build options were removed
from the formula API; this command is kept for compatibility and always
reports that no options are available.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptions(args)
		},
	}

	return cmd
}

// NewMissingCmd creates the missing command
func NewMissingCmd(cfg *config.Config) *cobra.Command {
	var hide []string

	cmd := &cobra.Command{
		Use:   "missing [OPTIONS] [FORMULA...]",
		Short: "Check the given formulae for missing dependencies",
		Long: `Check the given formulae for missing dependencies. If no formulae are
given, check all installed formulae.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMissing(cfg, args, hide)
		},
	}

	cmd.Flags().StringSliceVar(&hide, "hide", nil, "Act as if the specified formulae are not installed")

	return cmd
}

type usesOptions struct {
	installed    bool
	recursive    bool
	includeBuild bool
}

type descOptions struct {
	searchDesc bool
	name       bool
}

func openURL(url string) error {
	logger.Info("Opening %s in browser...", url)
	fmt.Printf("URL: %s\n", url)
	return nil
}

func openFormulaHomepages(cfg *config.Config, formulaNames []string) error {
	apiClient := newAPIClient(cfg)
	for _, name := range formulaNames {
		f, err := apiClient.GetFormula(name)
		if err != nil {
			logger.Error("No available formula with the name %q: %v", name, err)
			continue
		}
		if err := openURL(f.Homepage); err != nil {
			return err
		}
	}
	return nil
}

func runUses(cfg *config.Config, formulaName string, opts *usesOptions) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	apiClient := newAPIClient(cfg)
	seen := make(map[string]bool)
	deps, err := collectUses(s, apiClient, formulaName, opts.recursive, opts.includeBuild, seen)
	if err != nil {
		return err
	}

	if opts.installed {
		filtered := deps[:0]
		for _, d := range deps {
			if ok, _ := s.db.IsInstalled(d); ok {
				filtered = append(filtered, d)
			}
		}
		deps = filtered
	}

	sort.Strings(deps)
	for _, d := range deps {
		fmt.Println(d)
	}
	return nil
}

// collectUses walks every installed formula and reports which ones depend on target.
func collectUses(s *stack, apiClient *api.Client, target string, recursive, includeBuild bool, seen map[string]bool) ([]string, error) {
	rows, err := s.db.ListInstalled()
	if err != nil {
		return nil, err
	}

	var uses []string
	for _, row := range rows {
		f, err := apiClient.GetFormula(row.Name)
		if err != nil {
			logger.Warn("uses: failed to fetch %s: %v", row.Name, err)
			continue
		}

		deps := f.Dependencies
		if includeBuild {
			deps = append(append([]string{}, deps...), f.BuildDependencies...)
		}

		for _, d := range deps {
			if d != target {
				continue
			}
			if seen[row.Name] {
				break
			}
			seen[row.Name] = true
			uses = append(uses, row.Name)
			if recursive {
				transitive, err := collectUses(s, apiClient, row.Name, recursive, includeBuild, seen)
				if err == nil {
					uses = append(uses, transitive...)
				}
			}
			break
		}
	}
	return uses, nil
}

func runDesc(cfg *config.Config, queries []string, opts *descOptions) error {
	apiClient := newAPIClient(cfg)

	if opts.searchDesc || opts.name {
		return searchDescriptions(apiClient, queries, opts)
	}

	for _, formulaName := range queries {
		f, err := apiClient.GetFormula(formulaName)
		if err != nil {
			logger.Error("No available formula with the name %q: %v", formulaName, err)
			continue
		}
		fmt.Printf("%s: %s\n", f.Name, f.Desc)
	}

	return nil
}

func searchDescriptions(apiClient *api.Client, queries []string, opts *descOptions) error {
	query := strings.ToLower(strings.Join(queries, " "))
	entries, err := apiClient.GetIndex()
	if err != nil {
		return fmt.Errorf("fetching formula index: %w", err)
	}

	var matches []string
	for _, e := range entries {
		nameMatch := strings.Contains(strings.ToLower(e.Name), query)
		descMatch := !opts.name && strings.Contains(strings.ToLower(e.Desc), query)
		if nameMatch || descMatch {
			matches = append(matches, fmt.Sprintf("%s: %s", e.Name, e.Desc))
		}
	}

	sort.Strings(matches)
	for _, m := range matches {
		fmt.Println(m)
	}
	return nil
}

func runOptions(formulaNames []string) error {
	logger.Info("Note: build options are not supported by this formula API.")
	for _, formulaName := range formulaNames {
		fmt.Printf("%s: no options available\n", formulaName)
	}
	return nil
}

func runMissing(cfg *config.Config, formulaNames []string, hide []string) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if len(formulaNames) == 0 {
		rows, err := s.db.ListInstalled()
		if err != nil {
			return fmt.Errorf("failed to list installed formulae: %w", err)
		}
		for _, row := range rows {
			formulaNames = append(formulaNames, row.Name)
		}
	}

	hideSet := make(map[string]bool)
	for _, h := range hide {
		hideSet[h] = true
	}

	apiClient := newAPIClient(cfg)
	var missing []string
	for _, formulaName := range formulaNames {
		f, err := apiClient.GetFormula(formulaName)
		if err != nil {
			logger.Error("No available formula with the name %q: %v", formulaName, err)
			continue
		}

		for _, dep := range f.Dependencies {
			if hideSet[dep] {
				continue
			}
			if ok, _ := s.db.IsInstalled(dep); !ok {
				missing = append(missing, fmt.Sprintf("%s: %s", formulaName, dep))
			}
		}
	}

	if len(missing) == 0 {
		logger.Info("No missing dependencies found")
	} else {
		sort.Strings(missing)
		for _, m := range missing {
			fmt.Println(m)
		}
	}

	return nil
}
