package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect, back up, and restore the index schema",
	}
	cmd.AddCommand(newSchemaValidateCmd(), newSchemaBackupCmd(), newSchemaRestoreCmd())
	return cmd
}

func newSchemaValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the live schema against the expected field set",
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := newCLI()
			if err != nil {
				return err
			}
			defer cli.Cleanup()

			health, err := cli.Reindex.GetIndexHealth(c.Context(), cli.IndexName())
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			if !health.Exists {
				fmt.Fprintf(out, "Index %q does not exist\n", cli.IndexName())
				return nil
			}
			fmt.Fprintf(out, "Index %q: %d fields, %d documents\n",
				cli.IndexName(), health.FieldCount, health.DocumentCount)
			for _, issue := range health.Issues {
				fmt.Fprintf(out, "  ISSUE (%s): %s\n", issue.Type, issue.Message)
			}
			for _, warning := range health.Warnings {
				fmt.Fprintf(out, "  warn  (%s): %s\n", warning.Type, warning.Message)
			}
			if len(health.Issues) == 0 && len(health.Warnings) == 0 {
				fmt.Fprintln(out, "  schema is valid")
			}
			return nil
		},
	}
}

func newSchemaBackupCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write the live schema to a timestamped backup file",
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := newCLI()
			if err != nil {
				return err
			}
			defer cli.Cleanup()

			path, err := cli.Reindex.Backup(c.Context(), cli.IndexName(), dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "Backup written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "Directory to write the backup into")
	return cmd
}

func newSchemaRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup-file>",
		Short: "Recreate an index from a backup file",
		Long: `Restore deletes the index named in the backup and recreates it
from the stored definition. Documents are not restored; run a reindex
afterwards.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cli, err := newCLI()
			if err != nil {
				return err
			}
			defer cli.Cleanup()

			if err := cli.Reindex.Restore(c.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "Restored schema from %s\n", args[0])
			return nil
		},
	}
}
