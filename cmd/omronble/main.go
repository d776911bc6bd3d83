package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"unicode"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// formatVersion adds 'v' prefix if version starts with a digit
func formatVersion(ver string) string {
	if len(ver) > 0 && unicode.IsDigit(rune(ver[0])) {
		return "v" + ver
	}
	return ver
}

// newRootCmd builds the command tree. Commands are rebuilt per invocation so
// flag values never leak between runs.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "omronble",
		Short: "Omron BLE health device tool",
		Long: `Command-line tool for Omron Bluetooth Low Energy health devices:

- Scan for nearby Omron blood pressure monitors, scales and thermometers
- Connect and download stored records over the Record Access Control Point
- Decode advertisements and measurement payloads offline
- Keep a local history of synced measurements in SQLite`,
		Version:       formatVersion(version),
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.NoColor = !isTerminal(cmd.OutOrStdout())
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("omronble {{.Version}} (commit %s, built %s)\n", commit, date))

	root.PersistentFlags().String("config", "", "Path to a YAML config file")
	root.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	root.AddCommand(newScanCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newDecodeCmd())
	root.AddCommand(newHistoryCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Ctrl+C is a normal exit, not an error
		if errors.Is(err, context.Canceled) {
			return
		}
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", FormatUserError(err))
		os.Exit(1)
	}
}
