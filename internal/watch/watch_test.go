package watch

import (
	"context"
	"encoding/json"
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
	"github.com/kestrelsearch/kestrel/internal/ingest"
	"github.com/kestrelsearch/kestrel/internal/ops"
	"github.com/kestrelsearch/kestrel/internal/rest"
	"github.com/kestrelsearch/kestrel/internal/scanner"
)

func collectBatch(t *testing.T, d *debouncer) []Event {
	t.Helper()
	select {
	case batch := <-d.out:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("no batch emitted")
		return nil
	}
}

func TestDebouncerCoalescesCreateModify(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	d.add(Event{Path: "a.go", Op: OpCreate})
	d.add(Event{Path: "a.go", Op: OpModify})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Op)
}

func TestDebouncerCancelsCreateDelete(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	d.add(Event{Path: "a.go", Op: OpCreate})
	d.add(Event{Path: "a.go", Op: OpDelete})
	d.add(Event{Path: "b.go", Op: OpModify})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "b.go", batch[0].Path)
}

func TestDebouncerDeleteCreateBecomesModify(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	d.add(Event{Path: "a.go", Op: OpDelete})
	d.add(Event{Path: "a.go", Op: OpCreate})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Op)
}

func TestDebouncerModifyDeleteBecomesDelete(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	d.add(Event{Path: "a.go", Op: OpModify})
	d.add(Event{Path: "a.go", Op: OpDelete})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpDelete, batch[0].Op)
}

// syncHarness spins a service recording searches, uploads, and deletes.
type syncHarness struct {
	mu       sync.Mutex
	uploaded []map[string]any
	deleted  []string
	existing []string // ids returned for any search
}

func (h *syncHarness) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		defer h.mu.Unlock()
		switch {
		case r.URL.Path == "/indexes/code-index/docs/search":
			docs := make([]map[string]any, 0, len(h.existing))
			for _, id := range h.existing {
				docs = append(docs, map[string]any{"@search.score": 1.0, "id": id})
			}
			h.existing = nil
			resp, _ := json.Marshal(map[string]any{"value": docs})
			_, _ = w.Write(resp)
		case r.URL.Path == "/indexes/code-index/docs/index":
			var body map[string][]map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			acks := make([]map[string]any, 0, len(body["value"]))
			for _, doc := range body["value"] {
				if doc["@search.action"] == "delete" {
					h.deleted = append(h.deleted, doc["id"].(string))
				} else {
					h.uploaded = append(h.uploaded, doc)
				}
				acks = append(acks, map[string]any{"key": doc["id"], "status": true, "statusCode": 200})
			}
			resp, _ := json.Marshal(map[string]any{"value": acks})
			_, _ = w.Write(resp)
		}
	})
}

func newSyncer(t *testing.T, h *syncHarness) (*Syncer, string) {
	return newSyncerWithEmbedder(t, h, embed.NewNullEmbedder())
}

func newSyncerWithEmbedder(t *testing.T, h *syncHarness, em embed.Embedder) (*Syncer, string) {
	t.Helper()
	srv := httptest.NewServer(h.handler())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Endpoint = srv.URL
	cfg.APIKey = "test-key"
	cfg.Retry.Delay = time.Millisecond

	client, err := rest.NewClient(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(client.Cleanup)
	svc := ops.New(client, nil)

	sc, err := scanner.New(cfg.Processor, nil)
	require.NoError(t, err)
	processor := ingest.NewProcessor(cfg, sc, chunk.NewCodeChunker(), em, svc, nil)

	root := t.TempDir()
	return NewSyncer(processor, sc, svc, "kestrel", "code-index", nil), root
}

func TestSyncerUploadsChangedFile(t *testing.T) {
	h := &syncHarness{}
	s, root := newSyncer(t, h)

	path := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc Run() {}\n"), 0o644))

	s.Apply(context.Background(), root, []Event{{Path: "main.go", Op: OpModify}})

	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.uploaded)
	assert.Equal(t, "main.go", h.uploaded[0]["file_path"])
	assert.Equal(t, "kestrel", h.uploaded[0]["repository"])
}

// fixedEmbedder returns a constant vector for every input.
type fixedEmbedder struct{}

func (fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.5, 0.5}, nil
}

func (fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.5, 0.5}
	}
	return out, nil
}

func (fixedEmbedder) EmbedCode(ctx context.Context, code, fileContext string) ([]float32, error) {
	return []float32{0.5, 0.5}, nil
}

func (fixedEmbedder) Dimensions() int                    { return 2 }
func (fixedEmbedder) ModelName() string                  { return "fixed" }
func (fixedEmbedder) Available(ctx context.Context) bool { return true }
func (fixedEmbedder) Close() error                       { return nil }

func TestSyncerEmbedsUploadedDocuments(t *testing.T) {
	h := &syncHarness{}
	s, root := newSyncerWithEmbedder(t, h, fixedEmbedder{})

	path := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc Run() {}\n"), 0o644))

	s.Apply(context.Background(), root, []Event{{Path: "main.go", Op: OpModify}})

	h.mu.Lock()
	defer h.mu.Unlock()
	require.NotEmpty(t, h.uploaded)
	for _, doc := range h.uploaded {
		assert.Contains(t, doc, "content_vector", "re-synced files keep their vectors")
	}
}

func TestSyncerRemovesStaleDocumentsBeforeUpload(t *testing.T) {
	h := &syncHarness{existing: []string{"stale1", "stale2"}}
	s, root := newSyncer(t, h)

	path := filepath.Join(root, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n"), 0o644))

	s.Apply(context.Background(), root, []Event{{Path: "main.go", Op: OpModify}})

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.ElementsMatch(t, []string{"stale1", "stale2"}, h.deleted)
}

func TestSyncerDeleteRemovesDocuments(t *testing.T) {
	h := &syncHarness{existing: []string{"d1"}}
	s, root := newSyncer(t, h)

	s.Apply(context.Background(), root, []Event{{Path: "gone.go", Op: OpDelete}})

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, []string{"d1"}, h.deleted)
	assert.Empty(t, h.uploaded)
}

func TestSyncerSkipsIneligibleFileAsDeletion(t *testing.T) {
	h := &syncHarness{existing: []string{"old"}}
	s, root := newSyncer(t, h)

	// A sensitive file never uploads; its old documents are removed.
	path := filepath.Join(root, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SECRET=1"), 0o644))

	s.Apply(context.Background(), root, []Event{{Path: ".env", Op: OpCreate}})

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(t, h.uploaded)
	assert.Equal(t, []string{"old"}, h.deleted)
}

func TestWatcherEmitsForNewFile(t *testing.T) {
	root := t.TempDir()
	w, err := NewWatcher(root, config.Default().Processor, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))

	select {
	case batch := <-w.Batches():
		require.NotEmpty(t, batch)
		assert.Equal(t, "a.go", batch[0].Path)
	case <-time.After(3 * time.Second):
		t.Fatal("no batch emitted for new file")
	}
}
