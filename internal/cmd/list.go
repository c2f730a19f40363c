package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

// NewListCmd creates the list command
func NewListCmd(cfg *config.Config) *cobra.Command {
	var versions bool

	cmd := &cobra.Command{
		Use:     "list [FORMULA...]",
		Aliases: []string{"ls"},
		Short:   "List installed formulae",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return listInstalled(cfg, versions)
			}

			for _, name := range args {
				logger.Progress("Listing files for %s", name)
				if err := listFormulaFiles(cfg, name); err != nil {
					logger.Error("Failed to list files for %s: %v", name, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&versions, "versions", false, "Show version numbers")

	return cmd
}

func listInstalled(cfg *config.Config, versions bool) error {
	s, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	rows, err := s.db.ListInstalled()
	if err != nil {
		return fmt.Errorf("list installed: %w", err)
	}

	var names []string
	for _, row := range rows {
		if versions {
			names = append(names, fmt.Sprintf("%s %s", row.Name, row.Version))
		} else {
			names = append(names, row.Name)
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		fmt.Println("No formulae installed.")
		return nil
	}

	printColumns(names, 80)
	return nil
}

// listFormulaFiles lists all files installed by a specific formula
func listFormulaFiles(cfg *config.Config, name string) error {
	formulaDir := filepath.Join(cfg.HomebrewCellar, name)
	if _, err := os.Stat(formulaDir); os.IsNotExist(err) {
		return fmt.Errorf("formula %s is not installed", name)
	}

	versions, err := os.ReadDir(formulaDir)
	if err != nil {
		return fmt.Errorf("read formula directory: %w", err)
	}

	var latestVersion string
	for _, version := range versions {
		if version.IsDir() {
			latestVersion = version.Name()
		}
	}
	if latestVersion == "" {
		return fmt.Errorf("no version found for formula %s", name)
	}

	versionDir := filepath.Join(formulaDir, latestVersion)
	logger.Info("%s/%s:", name, latestVersion)

	return filepath.Walk(versionDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(versionDir, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		if info.IsDir() {
			fmt.Printf("  %s/ (%d items)\n", relPath, countDirItems(path))
		} else {
			fmt.Printf("  %s (%s)\n", relPath, formatFileSize(info.Size()))
		}
		return nil
	})
}

func countDirItems(dirPath string) int {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return 0
	}
	return len(entries)
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
