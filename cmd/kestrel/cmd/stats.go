package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show document count and storage for the index",
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := newCLI()
			if err != nil {
				return err
			}
			defer cli.Cleanup()

			stats, err := cli.Stats(c.Context())
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			fmt.Fprintf(out, "Index %q\n", cli.IndexName())
			fmt.Fprintf(out, "  documents:    %d\n", stats.DocumentCount)
			fmt.Fprintf(out, "  storage:      %d bytes\n", stats.StorageSize)
			if stats.VectorIndexSize > 0 {
				fmt.Fprintf(out, "  vector index: %d bytes\n", stats.VectorIndexSize)
			}
			return nil
		},
	}
}
