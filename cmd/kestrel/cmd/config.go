package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrelsearch/kestrel/configs"
	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var path string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an annotated example configuration file",
		RunE: func(c *cobra.Command, args []string) error {
			if _, err := os.Stat(path); err == nil && !force {
				return kerrors.ValidationError(path+" already exists", nil).
					WithSuggestion("pass --force to overwrite it")
			}
			if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o600); err != nil {
				return kerrors.Wrap(err, kerrors.ErrCodeFilePermission, "writing config file")
			}
			fmt.Fprintf(c.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "kestrel.yaml", "Where to write the config file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets redacted",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			fmt.Fprintf(out, "endpoint:            %s\n", cfg.Endpoint)
			fmt.Fprintf(out, "api_key:             %s\n", redact(cfg.APIKey))
			fmt.Fprintf(out, "api_version:         %s\n", cfg.APIVersion)
			fmt.Fprintf(out, "index_name:          %s\n", cfg.IndexName)
			fmt.Fprintf(out, "embedding.provider:  %s\n", cfg.Embedding.Provider)
			if cfg.Embedding.Provider != "" {
				fmt.Fprintf(out, "embedding.endpoint:  %s\n", cfg.Embedding.Endpoint)
				fmt.Fprintf(out, "embedding.api_key:   %s\n", redact(cfg.Embedding.APIKey))
				fmt.Fprintf(out, "embedding.dimensions: %d\n", cfg.Embedding.Dimensions)
			}
			fmt.Fprintf(out, "upload.batch_size:   %d\n", cfg.Upload.BatchSize)
			fmt.Fprintf(out, "log_level:           %s\n", cfg.LogLevel)
			return nil
		},
	}
}

// redact keeps a short prefix so keys can be told apart in support
// sessions without exposing them.
func redact(secret string) string {
	if secret == "" {
		return "(unset)"
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}
