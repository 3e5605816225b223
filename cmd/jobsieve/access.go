package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/jobsieve/internal/model"
)

var accessCmd = &cobra.Command{
	Use:   "access <source>",
	Short: "Show whether the access gate would allow a call to a source now",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccess,
}

func init() {
	rootCmd.AddCommand(accessCmd)
}

func runAccess(cmd *cobra.Command, args []string) error {
	src, ok := model.ParseSourceKind(args[0])
	if !ok {
		return fmt.Errorf("unknown source %q", args[0])
	}
	return withApp(func(ctx context.Context, a *app) error {
		d, prefs, err := a.gate.Check(ctx, src)
		if err != nil {
			return err
		}
		if d.Allowed {
			fmt.Printf("%s: allowed (min delay %s, hourly cap %d)\n", src, prefs.MinDelay(), src.HourlyCap())
			return nil
		}
		fmt.Printf("%s: denied, %s\n", src, d.Reason)
		if !d.NextAllowedAt.IsZero() {
			fmt.Printf("next allowed at %s (in %s)\n",
				d.NextAllowedAt.Local().Format(time.RFC3339), time.Until(d.NextAllowedAt).Round(time.Second))
		}
		return nil
	})
}
