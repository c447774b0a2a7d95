package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kestrelsearch/kestrel/internal/automation"
)

func newPipelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Manage pull-model indexer pipelines",
	}
	cmd.AddCommand(
		newPipelineCreateCmd(),
		newPipelineHealthCmd(),
		newPipelineOptimizeCmd(),
		newPipelineResetCmd(),
	)
	return cmd
}

func newPipelineCreateCmd() *cobra.Command {
	var (
		prefix        string
		connection    string
		container     string
		scheduleHours int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a blob datasource and scheduled indexer",
		Long: `Create provisions a blob-storage datasource and an indexer feeding
the configured index, schedules it, and triggers an immediate first
run. If any step fails the resources created by this call are removed
again.`,
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := newCLI()
			if err != nil {
				return err
			}
			defer cli.Cleanup()

			result, err := cli.Indexer.CreateBlobIndexerPipeline(c.Context(), automation.PipelineParams{
				Prefix:           prefix,
				IndexName:        cli.IndexName(),
				ConnectionString: connection,
				Container:        container,
				ScheduleHours:    scheduleHours,
			})
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			fmt.Fprintf(out, "Pipeline created\n")
			fmt.Fprintf(out, "  datasource: %s\n", result.DataSourceName)
			fmt.Fprintf(out, "  indexer:    %s (every %dh, first run started)\n", result.IndexerName, scheduleHours)
			return nil
		},
	}
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Name prefix for pipeline resources")
	cmd.Flags().StringVar(&connection, "connection-string", "", "Blob storage connection string")
	cmd.Flags().StringVar(&container, "container", "", "Blob container to index")
	cmd.Flags().IntVar(&scheduleHours, "every", 24, "Schedule interval in hours")
	_ = cmd.MarkFlagRequired("prefix")
	_ = cmd.MarkFlagRequired("connection-string")
	_ = cmd.MarkFlagRequired("container")
	return cmd
}

func newPipelineHealthCmd() *cobra.Command {
	var lookbackHours int

	cmd := &cobra.Command{
		Use:   "health <indexer>",
		Short: "Score an indexer's recent execution history",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := newCLI()
			if err != nil {
				return err
			}
			defer cli.Cleanup()

			health, err := cli.Indexer.MonitorIndexerHealth(c.Context(), args[0],
				time.Duration(lookbackHours)*time.Hour)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			fmt.Fprintf(out, "%s: %s (%.0f%% of %d runs in last %dh)\n",
				args[0], health.Status, health.Score, health.Executions, health.WindowHours)
			if health.LastError != "" {
				fmt.Fprintf(out, "  last error: %s\n", health.LastError)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lookbackHours, "lookback", 24, "Execution window in hours")
	return cmd
}

func newPipelineOptimizeCmd() *cobra.Command {
	var freshnessHours int

	cmd := &cobra.Command{
		Use:   "optimize <indexer>",
		Short: "Recommend a schedule change from recent run history",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := newCLI()
			if err != nil {
				return err
			}
			defer cli.Cleanup()

			rec, err := cli.Indexer.OptimizeIndexerSchedule(c.Context(), args[0],
				time.Duration(freshnessHours)*time.Hour)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", args[0], rec.Action)
			fmt.Fprintf(out, "  %s\n", rec.Reason)
			return nil
		},
	}
	cmd.Flags().IntVar(&freshnessHours, "target-freshness", 24, "Desired data freshness in hours")
	return cmd
}

func newPipelineResetCmd() *cobra.Command {
	var wait bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "reset <indexer>",
		Short: "Reset an indexer's change tracking and run it",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := newCLI()
			if err != nil {
				return err
			}
			defer cli.Cleanup()

			status, err := cli.Indexer.ResetAndRun(c.Context(), args[0], wait, timeout)
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			if status != nil && status.LastResult != nil {
				fmt.Fprintf(out, "%s finished: %s (%d items)\n",
					args[0], status.LastResult.Status, status.LastResult.ItemsProcessed)
				return nil
			}
			fmt.Fprintf(out, "%s reset and started\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run to reach a terminal state")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Wait timeout")
	return cmd
}
