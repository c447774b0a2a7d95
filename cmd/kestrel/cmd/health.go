package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Roll up service, index, and indexer health",
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := newCLI()
			if err != nil {
				return err
			}
			defer cli.Cleanup()

			health, err := cli.Health.CheckService(c.Context())
			if err != nil {
				return err
			}

			out := c.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(health)
			}

			fmt.Fprintf(out, "Service: %s\n", health.Status)
			for _, q := range health.Quotas {
				if q.Quota > 0 {
					fmt.Fprintf(out, "  %-20s %d / %d (%.0f%%)\n", q.Name, q.Usage, q.Quota, q.Percent)
				} else {
					fmt.Fprintf(out, "  %-20s %d\n", q.Name, q.Usage)
				}
			}
			for _, ix := range health.Indexes {
				fmt.Fprintf(out, "  index %-14s %d docs, %d bytes\n", ix.Name, ix.DocumentCount, ix.StorageSize)
			}
			for _, indexer := range health.Indexers {
				fmt.Fprintf(out, "  indexer %-12s last run %s\n", indexer.Name, indexer.LastStatus)
			}
			for _, issue := range health.Issues {
				fmt.Fprintf(out, "  [%s] %s: %s\n", issue.Severity, issue.Type, issue.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	return cmd
}
