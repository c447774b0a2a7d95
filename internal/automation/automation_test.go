package automation

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrelsearch/kestrel/internal/config"
	"github.com/kestrelsearch/kestrel/internal/ops"
	"github.com/kestrelsearch/kestrel/internal/rest"
)

// newService spins an httptest server behind a full client/operations
// stack.
func newService(t *testing.T, handler http.Handler) *ops.Operations {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Endpoint = srv.URL
	cfg.APIKey = "test-key"
	cfg.Retry.Delay = time.Millisecond

	client, err := rest.NewClient(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(client.Cleanup)
	return ops.New(client, nil)
}
