package cmd

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/formula"
	"github.com/zb-pm/zb/internal/logger"
)

// NewInfoCmd creates the info command
func NewInfoCmd(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "info [FORMULA...]",
		Aliases: []string{"abv"},
		Short:   "Display information about a formula, or the installation overall",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return showSystemInfo(cfg, jsonOutput)
			}

			apiClient := newAPIClient(cfg)
			for _, name := range args {
				logger.Step("Getting info for %s", name)

				f, err := apiClient.GetFormula(name)
				if err != nil {
					logger.LogDetailedError(logger.ErrorContext{
						Operation: "formula lookup",
						Formula:   name,
						Error:     err,
					})
					continue
				}
				showFormulaInfo(f, jsonOutput)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "JSON output is not implemented: prints a notice instead of the info")

	return cmd
}

func showSystemInfo(cfg *config.Config, jsonOutput bool) error {
	if jsonOutput {
		logger.Info("JSON output not yet implemented")
		return nil
	}

	formulaeCount := 0
	if files, err := os.ReadDir(cfg.HomebrewCellar); err == nil {
		for _, file := range files {
			if file.IsDir() {
				formulaeCount++
			}
		}
	}

	fmt.Printf("==> zb %s\n", "3.0.0-go")
	fmt.Printf("Go: %s\n", runtime.Version())
	fmt.Printf("\n")
	fmt.Printf("==> Configuration\n")
	fmt.Printf("HOMEBREW_PREFIX: %s\n", cfg.HomebrewPrefix)
	fmt.Printf("HOMEBREW_REPOSITORY: %s\n", cfg.HomebrewRepository)
	fmt.Printf("HOMEBREW_CELLAR: %s\n", cfg.HomebrewCellar)
	fmt.Printf("\n")
	fmt.Printf("==> Installation\n")

	if formulaeCount > 0 {
		fmt.Printf("%d formulae installed\n", formulaeCount)
	} else {
		fmt.Printf("No formulae installed\n")
	}

	return nil
}

func showFormulaInfo(f *formula.Formula, jsonOutput bool) {
	if jsonOutput {
		fmt.Printf("JSON output not yet implemented\n")
		return
	}

	fmt.Printf("==> %s: %s\n", f.Name, f.Desc)
	fmt.Printf("%s\n", f.Homepage)
	if f.License != "" {
		fmt.Printf("License: %s\n", f.License)
	}
	fmt.Printf("Version: %s\n", f.EffectiveVersion())

	if len(f.Dependencies) > 0 {
		fmt.Printf("Dependencies: %s\n", strings.Join(f.Dependencies, ", "))
	}

	if f.KegOnly {
		fmt.Printf("This formula is keg-only.\n")
	}

	if f.Caveats != "" {
		fmt.Printf("\n==> Caveats\n%s\n", f.Caveats)
	}

	fmt.Println()
}
