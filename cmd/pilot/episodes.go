package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/pixelpilot/internal/storage"
)

var (
	flagLimit   int
	flagSession string
	flagStats   bool
)

var episodesCmd = &cobra.Command{
	Use:   "episodes",
	Short: "Show stored episodes",
	Long: `Display the most recent episodes from the episode database.

Examples:
  pilot episodes
  pilot episodes --limit 50
  pilot episodes --session 3f2a9c1e-...
  pilot episodes --stats`,
	Args: cobra.NoArgs,
	RunE: runEpisodes,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Show stored sessions",
	Long:  `Display the most recent agent sessions and how they ended.`,
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func init() {
	episodesCmd.Flags().IntVar(&flagLimit, "limit", 20, "Number of episodes to show")
	episodesCmd.Flags().StringVar(&flagSession, "session", "", "Only show episodes of this session")
	episodesCmd.Flags().BoolVar(&flagStats, "stats", false, "Show per-policy statistics instead")
	sessionsCmd.Flags().IntVar(&flagLimit, "limit", 20, "Number of sessions to show")
}

// openStore opens the episode database named by --db or the configuration.
func openStore() (*storage.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := dbPath(cfg)
	if path == "" {
		return nil, fmt.Errorf("no episode database configured (set storage.path or --db)")
	}
	store, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening episode database: %w", err)
	}
	return store, nil
}

func runEpisodes(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if flagStats {
		return printPolicyStats(store)
	}

	var episodes []storage.EpisodeEntry
	if flagSession != "" {
		episodes, err = store.SessionEpisodes(flagSession)
	} else {
		episodes, err = store.RecentEpisodes(flagLimit)
	}
	if err != nil {
		return err
	}

	if len(episodes) == 0 {
		fmt.Println("No episodes recorded yet.")
		fmt.Println()
		fmt.Println("Run 'pilot run' with a reward address configured to record episodes.")
		return nil
	}

	fmt.Printf("  %-8s  %-8s  %-10s  %10s  %6s  %-9s  %s\n", "Session", "Episode", "Outcome", "Return", "Steps", "Length", "Ended")
	fmt.Printf("  %-8s  %-8s  %-10s  %10s  %6s  %-9s  %s\n", "-------", "-------", "-------", "------", "-----", "------", "-----")

	for _, e := range episodes {
		fmt.Printf("  %-8s  %-8s  %-10s  %10.2f  %6d  %-9s  %s\n",
			short(e.SessionID), short(e.EpisodeID), e.Outcome, e.Return, e.Steps,
			e.Duration().Round(100 * time.Millisecond).String(), e.EndedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func printPolicyStats(store *storage.Store) error {
	stats, err := store.GetAllPolicyStats()
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		fmt.Println("No episodes recorded yet.")
		return nil
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("  %-12s  %8s  %10s  %10s  %10s  %s\n", "Policy", "Episodes", "Terminated", "Best", "Average", "Last")
	fmt.Printf("  %-12s  %8s  %10s  %10s  %10s  %s\n", "------", "--------", "----------", "----", "-------", "----")
	for _, name := range names {
		s := stats[name]
		fmt.Printf("  %-12s  %8d  %10d  %10.2f  %10.2f  %s\n",
			s.Policy, s.Episodes, s.Terminated, s.BestReturn, s.AvgReturn, s.LastPlayed.Format("2006-01-02 15:04"))
	}
	return nil
}

func runSessions(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	sessions, err := store.RecentSessions(flagLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded yet.")
		return nil
	}

	fmt.Printf("  %-8s  %-10s  %5s  %8s  %8s  %9s  %-16s  %s\n", "Session", "Policy", "Hz", "Ticks", "Overruns", "Fallbacks", "Started", "Exit")
	fmt.Printf("  %-8s  %-10s  %5s  %8s  %8s  %9s  %-16s  %s\n", "-------", "------", "--", "-----", "--------", "---------", "-------", "----")
	for _, s := range sessions {
		exit := s.ExitReason
		if s.EndedAt.IsZero() {
			exit = "(running or crashed)"
		}
		fmt.Printf("  %-8s  %-10s  %5.1f  %8d  %8d  %9d  %-16s  %s\n",
			short(s.SessionID), s.Policy, s.TickRateHz, s.Ticks, s.Overruns, s.Fallbacks,
			s.StartedAt.Format("2006-01-02 15:04"), exit)
	}
	return nil
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
