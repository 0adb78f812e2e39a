package main

import (
	"errors"
	"log/slog"

	"github.com/openmined/syftsync/internal/client"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newPlanCmd())
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [dir]",
		Short: "Sync a directory with the server",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			out := cmd.OutOrStdout()
			if watch, _ := cmd.Flags().GetBool("watch"); watch {
				return c.Watch(cmd.Context(), dirArg(args), func(s *client.Summary, err error) {
					printSummary(out, s, err)
				})
			}

			summary, err := c.Sync(cmd.Context(), dirArg(args))
			if summary != nil {
				printSummary(out, summary, err)
			}
			if errors.Is(err, client.ErrFilesFailed) {
				slog.Warn("some files failed to sync, see the log for details")
			}
			return err
		},
	}
	cmd.Flags().BoolP("watch", "w", false, "Keep syncing on local changes")
	return cmd
}

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [dir]",
		Short: "Show what a sync would do without changing anything",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, err := newClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			report, err := c.Plan(cmd.Context(), dirArg(args))
			if err != nil {
				return err
			}
			all, _ := cmd.Flags().GetBool("all")
			return report.Write(cmd.OutOrStdout(), cfg.Zone(), all)
		},
	}
	cmd.Flags().BoolP("all", "a", false, "Include entries that are up to date")
	return cmd
}

func dirArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
