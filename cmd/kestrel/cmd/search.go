package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kestrelsearch/kestrel/internal/query"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	repository string
	language   string
	framework  string
	exclude    []string
	format     string // text, json
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search over the index",
		Long: `Search fuses three channels: semantic ranking, keyword matching,
and vector similarity. Quoted phrases and long numbers in the query
become exact-match terms that boost documents containing them.

Examples:
  kestrel search "token refresh"
  kestrel search 'handleRequest' --repository payments --language go
  kestrel search '"ConnectionPool"' --limit 5 --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return runSearch(c, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.repository, "repository", "r", "", "Filter by repository")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g. go, python)")
	cmd.Flags().StringVar(&opts.framework, "framework", "", "Filter by imported framework or dependency")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "Exclude documents matching a term (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runSearch(c *cobra.Command, q string, opts searchOptions) error {
	cli, err := newCLI()
	if err != nil {
		return err
	}
	defer cli.Cleanup()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fm := query.NewFilterManager(cfg.Search.ExcludedPathPrefixes)
	searchOpts := query.OptionsFromConfig(cfg.Search, opts.limit)
	searchOpts.Filter = fm.Build(query.Filters{
		Repository:   opts.repository,
		Language:     opts.language,
		Framework:    opts.framework,
		ExcludeTerms: opts.exclude,
	})

	results, err := cli.Searcher().Search(c.Context(), q, searchOpts)
	if err != nil {
		return err
	}

	out := c.OutOrStdout()
	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	for i, r := range results {
		path, _ := r.Document["file_path"].(string)
		repo, _ := r.Document["repository"].(string)
		fmt.Fprintf(out, "%2d. [%.3f] %s/%s\n", i+1, r.Score, repo, path)
		if name, _ := r.Document["function_name"].(string); name != "" {
			fmt.Fprintf(out, "    %s\n", name)
		}
		for _, caption := range r.Captions {
			fmt.Fprintf(out, "    %s\n", caption)
		}
	}
	return nil
}
