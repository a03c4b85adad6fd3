package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/pixelpilot/internal/rollout"
)

var flagTop int

var inspectCmd = &cobra.Command{
	Use:   "inspect <rollout-dir>",
	Short: "Summarize a recorded rollout",
	Long: `Print how often each key was held in a rollout recorded with
'pilot run --record', and the most frequent key combinations.

Examples:
  pilot inspect ./rollouts/run1
  pilot inspect ./rollouts/run1 --top 20`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().IntVar(&flagTop, "top", 10, "Number of key combinations to show")
}

func runInspect(_ *cobra.Command, args []string) error {
	meta, err := rollout.Load(args[0])
	if err != nil {
		return err
	}
	s := rollout.Summarize(meta, flagTop)

	fmt.Printf("Rollout %s\n", args[0])
	if meta.Policy != "" {
		fmt.Printf("Policy: %s  Session: %s\n", meta.Policy, short(meta.SessionID))
	}
	fmt.Printf("Frames: %d at %.1f Hz (%s)\n", s.Frames, s.Hz, rolloutLength(s))
	fmt.Println()

	if s.Frames == 0 {
		fmt.Println("No steps recorded.")
		return nil
	}

	maxName := 3 // "Key" header
	for _, n := range s.Names {
		if len(n) > maxName {
			maxName = len(n)
		}
	}

	fmt.Printf("  %-*s  %7s  %6s\n", maxName, "Key", "On", "Share")
	fmt.Printf("  %-*s  %7s  %6s\n", maxName, "---", "--", "-----")
	for i, n := range s.Names {
		share := float64(s.OnCounts[i]) / float64(s.Frames) * 100
		fmt.Printf("  %-*s  %7d  %5.1f%%  %s\n", maxName, n, s.OnCounts[i], share, bar(share))
	}

	fmt.Println()
	fmt.Printf("Top combinations (%d unique):\n", s.Unique)
	for _, c := range s.Combos {
		share := float64(c.Count) / float64(s.Frames) * 100
		fmt.Printf("  %7d  %5.1f%%  %s\n", c.Count, share, c.Label())
	}
	return nil
}

// rolloutLength formats the wall-clock length of the recording.
func rolloutLength(s rollout.Summary) string {
	if s.Hz <= 0 {
		return "unknown length"
	}
	return fmt.Sprintf("%.1fs", float64(s.Frames)/s.Hz)
}

// bar draws a 20-column share bar.
func bar(percent float64) string {
	n := int(percent/5 + 0.5)
	return strings.Repeat("#", n)
}
