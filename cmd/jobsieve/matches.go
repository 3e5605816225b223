package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobsieve/internal/model"
	"github.com/amishk599/jobsieve/internal/tui"
)

var (
	matchesUser      string
	matchesSaved     bool
	matchesAll       bool
	matchesMinScore  int
	matchesLimit     int
	matchesBrowseTUI bool
)

var matchesCmd = &cobra.Command{
	Use:   "matches",
	Short: "List stored matches",
	RunE:  runMatches,
}

func init() {
	matchesCmd.Flags().StringVar(&matchesUser, "user", "", "user whose matches to list (default: pipeline.user_id)")
	matchesCmd.Flags().BoolVar(&matchesSaved, "saved", false, "only saved matches")
	matchesCmd.Flags().BoolVar(&matchesAll, "all", false, "include dismissed matches")
	matchesCmd.Flags().IntVar(&matchesMinScore, "min-score", 0, "minimum score")
	matchesCmd.Flags().IntVar(&matchesLimit, "limit", 50, "maximum matches to list")
	matchesCmd.Flags().BoolVar(&matchesBrowseTUI, "tui", false, "browse matches interactively")
	rootCmd.AddCommand(matchesCmd)
}

func runMatches(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		records, err := a.matches.List(ctx, firstNonEmpty(matchesUser, a.cfg.Pipeline.UserID), model.MatchFilter{
			IncludeDismissed: matchesAll,
			OnlySaved:        matchesSaved,
			MinScore:         matchesMinScore,
			Limit:            matchesLimit,
		})
		if err != nil {
			return err
		}

		if matchesBrowseTUI {
			return tui.RunMatchBrowser(records, a.matches)
		}

		if len(records) == 0 {
			fmt.Println("No matches.")
			return nil
		}
		fmt.Printf("%-5s %-30s %-22s %-20s %-10s %s\n", "Score", "Title", "Company", "Location", "Source", "ID")
		fmt.Println(strings.Repeat("─", 120))
		for _, r := range records {
			fmt.Printf("%-5d %-30s %-22s %-20s %-10s %s\n",
				r.Score, truncate(r.Title, 30), truncate(r.Company, 22), truncate(r.Location, 20), r.Source, r.ID)
		}
		fmt.Printf("\nTotal: %d matches\n", len(records))
		return nil
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
