package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobsieve/internal/model"
)

var (
	prefEnabled       bool
	prefMinDelayMs    int
	prefMaxConcurrent int
	prefMaxResults    int
	prefSafety        bool
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change stored settings",
}

var thresholdCmd = &cobra.Command{
	Use:   "threshold [value]",
	Short: "Show or set the relevance threshold (0-100)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runThreshold,
}

var sourcesCmd = &cobra.Command{
	Use:   "sources <source>",
	Short: "Show or change a source's access preferences",
	Long:  "Without flags, prints the stored preferences. Any flag given updates that field; values are clamped to safe bounds.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSources,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cumulative ingestion stats",
	RunE:  runStats,
}

func init() {
	sourcesCmd.Flags().BoolVar(&prefEnabled, "enabled", true, "allow calls to this source")
	sourcesCmd.Flags().IntVar(&prefMinDelayMs, "min-delay-ms", 0, "minimum delay between calls")
	sourcesCmd.Flags().IntVar(&prefMaxConcurrent, "max-concurrent", 0, "maximum concurrent calls")
	sourcesCmd.Flags().IntVar(&prefMaxResults, "max-results", 0, "maximum candidates per query")
	sourcesCmd.Flags().BoolVar(&prefSafety, "safety", true, "require safety measures")

	settingsCmd.AddCommand(thresholdCmd, sourcesCmd, statsCmd)
	rootCmd.AddCommand(settingsCmd)
}

// withApp builds the app for a short-lived command and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, logger := mustLoad()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runThreshold(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		if len(args) == 0 {
			v, err := a.settings.Threshold(ctx)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("threshold must be an integer: %w", err)
		}
		v, err := a.settings.SetThreshold(ctx, n)
		if err != nil {
			return err
		}
		fmt.Printf("threshold set to %d\n", v)
		return nil
	})
}

func runSources(cmd *cobra.Command, args []string) error {
	src, ok := model.ParseSourceKind(args[0])
	if !ok {
		return fmt.Errorf("unknown source %q", args[0])
	}
	return withApp(func(ctx context.Context, a *app) error {
		prefs, err := a.settings.AccessPreferences(ctx, src)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		changed := false
		if flags.Changed("enabled") {
			prefs.Enabled, changed = prefEnabled, true
		}
		if flags.Changed("min-delay-ms") {
			prefs.MinDelayMs, changed = prefMinDelayMs, true
		}
		if flags.Changed("max-concurrent") {
			prefs.MaxConcurrent, changed = prefMaxConcurrent, true
		}
		if flags.Changed("max-results") {
			prefs.MaxResultsPerQuery, changed = prefMaxResults, true
		}
		if flags.Changed("safety") {
			prefs.RequireSafetyMeasures, changed = prefSafety, true
		}
		if changed {
			if prefs, err = a.settings.SetAccessPreferences(ctx, src, prefs); err != nil {
				return err
			}
		}
		return printJSON(prefs)
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		st, err := a.settings.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(st)
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
