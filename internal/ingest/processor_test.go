package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsearch/kestrel/internal/chunk"
	"github.com/kestrelsearch/kestrel/internal/config"
	"github.com/kestrelsearch/kestrel/internal/embed"
	"github.com/kestrelsearch/kestrel/internal/ops"
	"github.com/kestrelsearch/kestrel/internal/rest"
	"github.com/kestrelsearch/kestrel/internal/scanner"
)

// captureServer records uploaded documents and acknowledges every one.
type captureServer struct {
	mu      sync.Mutex
	batches [][]map[string]any
}

func (c *captureServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Value []map[string]any `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		c.mu.Lock()
		c.batches = append(c.batches, body.Value)
		c.mu.Unlock()

		type item struct {
			Key        string `json:"key"`
			Status     bool   `json:"status"`
			StatusCode int    `json:"statusCode"`
		}
		resp := struct {
			Value []item `json:"value"`
		}{}
		for _, doc := range body.Value {
			resp.Value = append(resp.Value, item{Key: doc["id"].(string), Status: true, StatusCode: 200})
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
}

func (c *captureServer) documents() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, batch := range c.batches {
		out = append(out, batch...)
	}
	return out
}

func newProcessor(t *testing.T, capture *captureServer, cfg config.Config) *Processor {
	t.Helper()
	srv := httptest.NewServer(capture.handler())
	t.Cleanup(srv.Close)

	cfg.Endpoint = srv.URL
	cfg.APIKey = "test-key"
	cfg.Retry.Delay = time.Millisecond

	client, err := rest.NewClient(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(client.Cleanup)

	sc, err := scanner.New(cfg.Processor, nil)
	require.NoError(t, err)

	return NewProcessor(cfg, sc, chunk.NewCodeChunker(), embed.NewNullEmbedder(), ops.New(client, nil), nil)
}

func writeRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"main.go": "package main\n\n// Run starts the service.\nfunc Run() {}\n",
		"auth.go": "package main\n\ntype Session struct{}\n\nfunc Login() {}\n",
		"doc.md":  "# title\nbody\n",
	}
	for rel, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
	}
	return root
}

func TestIngestRepository(t *testing.T) {
	capture := &captureServer{}
	p := newProcessor(t, capture, config.Default())
	root := writeRepo(t)

	stats, err := p.IngestRepository(context.Background(), root, "kestrel", "code-index")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.FilesScanned)
	assert.Equal(t, 0, stats.FilesFailed)
	assert.GreaterOrEqual(t, stats.ChunksCreated, 4, "Run, Session, Login, plus the markdown file chunk")
	assert.Equal(t, stats.ChunksCreated, stats.DocumentsUploaded)
	assert.Equal(t, 0, stats.DocumentsFailed)

	docs := capture.documents()
	require.Len(t, docs, stats.DocumentsUploaded)

	byName := map[string]map[string]any{}
	for _, doc := range docs {
		assert.Equal(t, "kestrel", doc["repository"])
		assert.Equal(t, "mergeOrUpload", doc["@search.action"])
		if fn, ok := doc["function_name"].(string); ok && fn != "" {
			byName[fn] = doc
		}
	}
	require.Contains(t, byName, "Run")
	assert.Equal(t, "main.go", byName["Run"]["file_path"])
	assert.Equal(t, "Run starts the service.", byName["Run"]["docstring"])
}

func TestIngestRepositoryIdempotentIDs(t *testing.T) {
	capture := &captureServer{}
	p := newProcessor(t, capture, config.Default())
	root := writeRepo(t)

	ctx := context.Background()
	_, err := p.IngestRepository(ctx, root, "kestrel", "code-index")
	require.NoError(t, err)
	firstIDs := idSet(capture.documents())

	capture.mu.Lock()
	capture.batches = nil
	capture.mu.Unlock()

	_, err = p.IngestRepository(ctx, root, "kestrel", "code-index")
	require.NoError(t, err)
	assert.Equal(t, firstIDs, idSet(capture.documents()), "re-ingest uploads identical keys")
}

func idSet(docs []map[string]any) map[string]bool {
	out := make(map[string]bool, len(docs))
	for _, doc := range docs {
		out[doc["id"].(string)] = true
	}
	return out
}

func TestIngestRepositoryBatching(t *testing.T) {
	capture := &captureServer{}
	cfg := config.Default()
	cfg.Upload.BatchSize = 2
	cfg.Upload.RateLimitDelay = 0
	p := newProcessor(t, capture, cfg)

	root := t.TempDir()
	for i := 0; i < 5; i++ {
		content := fmt.Sprintf("package p\n\nfunc F%d() {}\n", i)
		require.NoError(t, os.WriteFile(filepath.Join(root, fmt.Sprintf("f%d.go", i)), []byte(content), 0o644))
	}

	_, err := p.IngestRepository(context.Background(), root, "kestrel", "code-index")
	require.NoError(t, err)

	capture.mu.Lock()
	defer capture.mu.Unlock()
	require.NotEmpty(t, capture.batches)
	for _, batch := range capture.batches {
		assert.LessOrEqual(t, len(batch), 2)
	}
}

// downEmbedder fails every request, simulating a provider outage.
type downEmbedder struct{}

func (downEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("provider down")
}

func (downEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("provider down")
}

func (downEmbedder) EmbedCode(ctx context.Context, code, fileContext string) ([]float32, error) {
	return nil, errors.New("provider down")
}

func (downEmbedder) Dimensions() int                    { return 1536 }
func (downEmbedder) ModelName() string                  { return "down" }
func (downEmbedder) Available(ctx context.Context) bool { return false }
func (downEmbedder) Close() error                       { return nil }

func TestIngestRepositoryUploadsWithoutVectorsWhenEmbedderFails(t *testing.T) {
	capture := &captureServer{}
	p := newProcessor(t, capture, config.Default())
	p.embedder = downEmbedder{}
	root := writeRepo(t)

	stats, err := p.IngestRepository(context.Background(), root, "kestrel", "code-index")
	require.NoError(t, err, "a provider outage degrades to keyword-only documents")

	docs := capture.documents()
	require.NotEmpty(t, docs)
	assert.Equal(t, stats.ChunksCreated, stats.DocumentsUploaded)
	assert.Equal(t, stats.ChunksCreated, stats.EmbedFailed)
	for _, doc := range docs {
		assert.NotContains(t, doc, "content_vector")
	}
}

func TestIngestRepositoryUnreadableFileCounted(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	capture := &captureServer{}
	p := newProcessor(t, capture, config.Default())

	root := writeRepo(t)
	locked := filepath.Join(root, "locked.go")
	require.NoError(t, os.WriteFile(locked, []byte("package main\n"), 0o000))
	t.Cleanup(func() { _ = os.Chmod(locked, 0o644) })

	stats, err := p.IngestRepository(context.Background(), root, "kestrel", "code-index")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.FilesFailed, 1)
	assert.GreaterOrEqual(t, stats.DocumentsUploaded, 1, "other files still index")
}
