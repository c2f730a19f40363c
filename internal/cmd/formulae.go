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

// NewFormulaeCmd creates the formulae command
func NewFormulaeCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		onePerLine bool
	)

	cmd := &cobra.Command{
		Use:   "formulae",
		Short: "List all formulae in the upstream index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormulae(cfg, jsonOutput, onePerLine)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output formula information in JSON format")
	cmd.Flags().BoolVar(&onePerLine, "1", false, "List one formula per line")

	return cmd
}

// NewCommandsCmd creates the commands command
func NewCommandsCmd(cfg *config.Config) *cobra.Command {
	var (
		quiet    bool
		builtin  bool
		external bool
	)

	cmd := &cobra.Command{
		Use:   "commands",
		Short: "Show lists of built-in and external commands",
		Long: `Show lists of built-in and external commands. Built-in commands are
part of this tool itself, while external commands are scripts in the
PATH that start with 'zb-'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommands(quiet, builtin, external)
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "List only the names of commands")
	cmd.Flags().BoolVar(&builtin, "builtin", false, "Show only built-in commands")
	cmd.Flags().BoolVar(&external, "external", false, "Show only external commands")

	return cmd
}

func runFormulae(cfg *config.Config, jsonOutput, onePerLine bool) error {
	logger.Debug("Listing available formulae...")

	client := newAPIClient(cfg)
	entries, err := client.GetIndex()
	if err != nil {
		return fmt.Errorf("fetch formula index: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}

	if onePerLine {
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	printColumns(names, 80)
	return nil
}

func runCommands(quiet, builtin, external bool) error {
	builtinCommands := getBuiltinCommands()
	externalCommands := getExternalCommands()

	if builtin && !external {
		return printCommands(builtinCommands, "Built-in commands", quiet)
	}

	if external && !builtin {
		return printCommands(externalCommands, "External commands", quiet)
	}

	if err := printCommands(builtinCommands, "Built-in commands", quiet); err != nil {
		return err
	}

	if len(externalCommands) > 0 {
		if !quiet {
			fmt.Println()
		}
		return printCommands(externalCommands, "External commands", quiet)
	}

	return nil
}

func getBuiltinCommands() []string {
	return []string{
		"autoremove",
		"bundle",
		"cleanup",
		"commands",
		"config",
		"deps",
		"doctor",
		"env",
		"formulae",
		"info",
		"install",
		"leaves",
		"link",
		"list",
		"outdated",
		"pin",
		"tap",
		"uninstall",
		"unlink",
		"unpin",
		"untap",
		"update",
		"upgrade",
		"--cache",
		"--cellar",
		"--prefix",
		"--repository",
		"--version",
	}
}

func getExternalCommands() []string {
	return []string{}
}

func printCommands(commands []string, title string, quiet bool) error {
	if !quiet {
		fmt.Printf("%s:\n", title)
	}

	sort.Strings(commands)

	if quiet {
		for _, cmd := range commands {
			fmt.Println(cmd)
		}
	} else {
		printColumns(commands, 80)
	}

	return nil
}

func printColumns(items []string, maxWidth int) {
	if len(items) == 0 {
		return
	}

	maxLen := 0
	for _, item := range items {
		if len(item) > maxLen {
			maxLen = len(item)
		}
	}

	colWidth := maxLen + 2
	cols := maxWidth / colWidth
	if cols < 1 {
		cols = 1
	}

	for i, item := range items {
		fmt.Printf("%-*s", colWidth, item)
		if (i+1)%cols == 0 || i == len(items)-1 {
			fmt.Println()
		}
	}
}
