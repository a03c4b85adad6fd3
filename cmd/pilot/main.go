// pilot drives a running game from its pixels: it captures the game window,
// asks a policy for an action every tick and injects the matching keys.
//
// Usage:
//
//	pilot run                 - Start the perception-action loop
//	pilot policies            - List available policies
//	pilot episodes            - Show stored episodes
//	pilot sessions            - Show stored sessions
//	pilot inspect <dir>       - Action statistics of a recorded rollout
//	pilot report              - Render episode returns as an HTML chart
//	pilot config              - Print the effective configuration
//
// Global flags:
//
//	--config <path>  - Configuration file (default: ~/.pilot/pilot.yaml)
//	--db <path>      - Episode database (default: storage.path from config)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/pixelpilot/internal/core"

	// Import policies to register them
	_ "github.com/vovakirdan/pixelpilot/internal/policies"
)

var (
	// Global flags
	flagConfig string
	flagDBPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(core.ExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "pilot",
	Short: "pixelpilot - a pixels-in, keys-out game agent",
	Long: `pixelpilot runs a fixed-rate control loop against a game window:
capture a frame, ask a policy for an action, inject the keys, and record
rewards reported by the game into episodes.

Available commands:
  run       - Start the agent
  policies  - Show all available policies
  episodes  - Show stored episodes
  sessions  - Show stored sessions
  inspect   - Summarize a recorded rollout
  report    - Chart episode returns
  config    - Print the effective configuration

Exit codes:
  0  normal stop
  1  generic failure
  2  frame source lost
  3  consecutive dispatch failures
  4  configuration error

Examples:
  pilot run --policy random --console
  pilot run --dry-run --synthetic
  pilot run --record ./rollouts/run1
  pilot inspect ./rollouts/run1
  pilot report --out returns.html`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to configuration YAML")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Path to episode database (overrides storage.path)")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(policiesCmd)
	rootCmd.AddCommand(episodesCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(configCmd)
}
