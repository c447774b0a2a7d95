package automation

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsearch/kestrel/internal/config"
	"github.com/kestrelsearch/kestrel/internal/schema"
)

const indexFixture = `{
	"name": "x",
	"@odata.etag": "\"0x1\"",
	"fields": [
		{"name": "id", "type": "Edm.String", "key": true},
		{"name": "content", "type": "Edm.String", "searchable": true},
		{"name": "content_vector", "type": "Collection(Edm.Single)", "searchable": true, "dimensions": 1536, "vectorSearchProfile": "vector-profile"},
		{"name": "repository", "type": "Edm.String", "filterable": true}
	]
}`

// indexServer replays the fixture schema and records index mutations.
type indexServer struct {
	mu      sync.Mutex
	deletes []string
	puts    []schema.Index
}

func (s *indexServer) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/indexes/x":
			_, _ = w.Write([]byte(indexFixture))
		case r.Method == http.MethodGet && r.URL.Path == "/indexes/x/docs/$count":
			_, _ = w.Write([]byte(`42`))
		case r.Method == http.MethodDelete:
			s.deletes = append(s.deletes, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPut:
			var ix schema.Index
			require.NoError(t, json.NewDecoder(r.Body).Decode(&ix))
			s.puts = append(s.puts, ix)
			_, _ = w.Write([]byte(indexFixture))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
}

func TestBackupThenDropRebuildPreservesFields(t *testing.T) {
	srv := &indexServer{}
	svc := newService(t, srv.handler(t))
	r := NewReindexAutomation(svc, nil, config.Default(), nil)
	ctx := context.Background()

	dir := t.TempDir()
	path, err := r.Backup(ctx, "x", dir)
	require.NoError(t, err)
	require.FileExists(t, path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	meta, ok := payload["_backup_metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "x", meta["index_name"])
	assert.Equal(t, float64(42), meta["document_count"])
	assert.NotEmpty(t, meta["timestamp"])

	result, err := r.PerformReindex(ctx, ReindexRequest{
		Method:     MethodDropRebuild,
		IndexName:  "x",
		SchemaPath: path,
	})
	require.NoError(t, err)
	assert.False(t, result.DryRun)

	require.Len(t, srv.puts, 1)
	recreated := srv.puts[0]
	assert.Equal(t, []string{"content", "content_vector", "id", "repository"},
		schema.FieldNames(&recreated))
	assert.Empty(t, recreated.ETag, "service metadata is stripped before recreation")
	for _, f := range recreated.Fields {
		if f.Name == "content_vector" {
			assert.Equal(t, 1536, f.Dimensions)
		}
	}
	assert.Contains(t, srv.deletes, "/indexes/x")
}

func TestDropRebuildDryRunMakesNoMutations(t *testing.T) {
	srv := &indexServer{}
	svc := newService(t, srv.handler(t))
	r := NewReindexAutomation(svc, nil, config.Default(), nil)

	result, err := r.PerformReindex(context.Background(), ReindexRequest{
		Method:    MethodDropRebuild,
		IndexName: "x",
		DryRun:    true,
	})
	require.NoError(t, err)
	assert.Contains(t, result.PlannedAction, "recreate")
	assert.Empty(t, srv.deletes)
	assert.Empty(t, srv.puts)
}

func TestRestoreRecreatesFromBackup(t *testing.T) {
	srv := &indexServer{}
	svc := newService(t, srv.handler(t))
	r := NewReindexAutomation(svc, nil, config.Default(), nil)
	ctx := context.Background()

	dir := t.TempDir()
	path, err := r.Backup(ctx, "x", dir)
	require.NoError(t, err)

	require.NoError(t, r.Restore(ctx, path))
	assert.Contains(t, srv.deletes, "/indexes/x")
	require.Len(t, srv.puts, 1)
	assert.Equal(t, "x", srv.puts[0].Name)
}

func TestRestoreRejectsEmptyBackup(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no HTTP call expected")
	}))
	r := NewReindexAutomation(svc, nil, config.Default(), nil)

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	err := r.Restore(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index definition")
}

func TestClearByFilterDeletesAllPages(t *testing.T) {
	var searches, deletes int
	var mu sync.Mutex
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.URL.Path {
		case "/indexes/x/docs/search":
			searches++
			if searches == 1 {
				// Full page forces a second fetch.
				docs := `{"@search.score":1,"id":"d0"}`
				for i := 1; i < MaxBatchDocuments; i++ {
					docs += `,{"@search.score":1,"id":"d` + string(rune('0'+i%10)) + `"}`
				}
				_, _ = w.Write([]byte(`{"value":[` + docs + `]}`))
				return
			}
			_, _ = w.Write([]byte(`{"value":[{"@search.score":1,"id":"last"}]}`))
		case "/indexes/x/docs/index":
			deletes++
			_, _ = w.Write([]byte(`{"value":[]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	r := NewReindexAutomation(svc, nil, config.Default(), nil)

	result, err := r.PerformReindex(context.Background(), ReindexRequest{
		Method:    MethodClear,
		IndexName: "x",
		Filter:    "repository eq 'stale'",
	})
	require.NoError(t, err)
	assert.Equal(t, MaxBatchDocuments+1, result.DocumentsCleared)
	assert.Equal(t, 2, deletes)
}

func TestClearRequiresFilter(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no HTTP call expected")
	}))
	r := NewReindexAutomation(svc, nil, config.Default(), nil)

	_, err := r.PerformReindex(context.Background(), ReindexRequest{Method: MethodClear, IndexName: "x"})
	require.Error(t, err)
}

func TestGetIndexHealthMissingIndex(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	r := NewReindexAutomation(svc, nil, config.Default(), nil)

	health, err := r.GetIndexHealth(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, health.Exists)
	require.Len(t, health.Issues, 1)
	assert.Equal(t, "missing_index", health.Issues[0].Type)
}

func TestGetIndexHealthDimensionMismatch(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/indexes/x":
			_, _ = w.Write([]byte(`{
				"name": "x",
				"fields": [
					{"name": "id", "type": "Edm.String", "key": true},
					{"name": "content", "type": "Edm.String"},
					{"name": "repository", "type": "Edm.String"},
					{"name": "file_path", "type": "Edm.String"},
					{"name": "content_vector", "type": "Collection(Edm.Single)", "dimensions": 768, "vectorSearchProfile": "vector-profile"}
				]
			}`))
		case "/indexes/x/stats":
			_, _ = w.Write([]byte(`{"documentCount": 10, "storageSize": 2048}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	cfg := config.Default()
	cfg.Embedding.Dimensions = 1536
	r := NewReindexAutomation(svc, nil, cfg, nil)

	health, err := r.GetIndexHealth(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, health.Exists)
	assert.Equal(t, int64(10), health.DocumentCount)
	require.Len(t, health.Issues, 1)
	assert.Equal(t, "dimension_mismatch", health.Issues[0].Type)
}

func TestAnalyzeReindexNeedOrdersByPriority(t *testing.T) {
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	r := NewReindexAutomation(svc, nil, config.Default(), nil)

	recs, err := r.AnalyzeReindexNeed(context.Background(), "missing", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 1, recs[0].Priority)
	assert.Equal(t, "create", recs[0].Action)
}

func TestAnalyzeReindexNeedFlagsStaleDocuments(t *testing.T) {
	healthyIndex := `{
		"name": "x",
		"fields": [
			{"name": "id", "type": "Edm.String", "key": true},
			{"name": "content", "type": "Edm.String"},
			{"name": "repository", "type": "Edm.String"},
			{"name": "file_path", "type": "Edm.String"}
		]
	}`
	newest := time.Now().Add(-40 * 24 * time.Hour).UTC().Format(time.RFC3339)
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/indexes/x":
			_, _ = w.Write([]byte(healthyIndex))
		case "/indexes/x/stats":
			_, _ = w.Write([]byte(`{"documentCount": 10, "storageSize": 2048}`))
		case "/indexes/x/docs/search":
			_, _ = w.Write([]byte(`{"value":[{"@search.score":1,"id":"d1","last_modified":"` + newest + `"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	r := NewReindexAutomation(svc, nil, config.Default(), nil)

	recs, err := r.AnalyzeReindexNeed(context.Background(), "x", 30)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].Priority)
	assert.Equal(t, MethodRepository, recs[0].Action)
	assert.Contains(t, recs[0].Reason, "30-day")

	// Inside the window the same index is healthy.
	recs, err = r.AnalyzeReindexNeed(context.Background(), "x", 60)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "none", recs[0].Action)
}
