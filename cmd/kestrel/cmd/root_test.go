package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestRootRegistersSubcommands(t *testing.T) {
	root := NewRootCmd()
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{
		"config", "index", "search", "reindex", "schema", "pipeline",
		"health", "stats", "watch", "version",
	} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "kestrel")
}

func TestVersionCommandJSON(t *testing.T) {
	out, err := runCommand(t, "version", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version"`)
	assert.Contains(t, out, `"go_version"`)
}

func TestStatsRequiresConfiguration(t *testing.T) {
	t.Setenv("KESTREL_ENDPOINT", "")
	t.Setenv("KESTREL_API_KEY", "")

	_, err := runCommand(t, "stats")
	require.Error(t, err)
	assert.Equal(t, 2, kerrors.ExitCode(err), "configuration errors exit with code 2")
}

func TestIndexNameRequired(t *testing.T) {
	t.Setenv("KESTREL_ENDPOINT", "https://example.search.windows.net")
	t.Setenv("KESTREL_API_KEY", "key")
	t.Setenv("KESTREL_INDEX_NAME", "")

	_, err := runCommand(t, "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index name is required")
}

func TestSearchRequiresQuery(t *testing.T) {
	_, err := runCommand(t, "search")
	require.Error(t, err)
}

func TestReindexRejectsUnknownMethod(t *testing.T) {
	t.Setenv("KESTREL_ENDPOINT", "https://example.search.windows.net")
	t.Setenv("KESTREL_API_KEY", "key")
	t.Setenv("KESTREL_INDEX_NAME", "code-index")

	_, err := runCommand(t, "reindex", "--method", "sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown reindex method")
}
