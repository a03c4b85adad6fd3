package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/pixelpilot/internal/report"
	"github.com/vovakirdan/pixelpilot/internal/storage"
)

var (
	flagReportOut    string
	flagReportLimit  int
	flagReportWindow int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Chart episode returns as an HTML page",
	Long: `Render the stored episodes as an HTML page with the return curve,
its moving average and the length of every episode.

Examples:
  pilot report
  pilot report --session 3f2a9c1e-... --out run1.html
  pilot report --limit 500 --window 20`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&flagReportOut, "out", "pilot_report.html", "Output HTML file")
	reportCmd.Flags().IntVar(&flagReportLimit, "limit", 200, "Number of recent episodes to plot")
	reportCmd.Flags().IntVar(&flagReportWindow, "window", 10, "Moving-average window (0 disables)")
	reportCmd.Flags().StringVar(&flagSession, "session", "", "Only plot episodes of this session")
}

func runReport(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var entries []storage.EpisodeEntry
	title := "Episode returns"
	if flagSession != "" {
		entries, err = store.SessionEpisodes(flagSession)
		title = "Episode returns - " + short(flagSession)
	} else {
		entries, err = store.RecentEpisodes(flagReportLimit)
		reverseEntries(entries)
	}
	if err != nil {
		return err
	}

	episodes := reportEpisodes(entries)
	if err := report.WriteFile(flagReportOut, episodes, report.Options{Title: title, Window: flagReportWindow}); err != nil {
		return err
	}

	fmt.Printf("Wrote %d episodes to %s\n", len(episodes), flagReportOut)
	return nil
}

// reportEpisodes converts stored episodes into chart points, keeping order.
func reportEpisodes(entries []storage.EpisodeEntry) []report.Episode {
	out := make([]report.Episode, len(entries))
	for i, e := range entries {
		out[i] = report.Episode{
			Session: short(e.SessionID),
			ID:      short(e.EpisodeID),
			Outcome: e.Outcome,
			Return:  e.Return,
			Steps:   e.Steps,
		}
	}
	return out
}

// reverseEntries turns newest-first query results into chronological order.
func reverseEntries(entries []storage.EpisodeEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
