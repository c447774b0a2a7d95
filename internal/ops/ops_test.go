package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsearch/kestrel/internal/config"
	"github.com/kestrelsearch/kestrel/internal/rest"
	"github.com/kestrelsearch/kestrel/internal/schema"
)

func newOps(t *testing.T, handler http.Handler) *Operations {
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
	return New(client, nil)
}

func TestUploadDocumentsMergeAction(t *testing.T) {
	var gotBody map[string][]map[string]any
	o := newOps(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/indexes/code-index/docs/index", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"value":[
			{"key":"a1","status":true,"statusCode":200},
			{"key":"b2","status":false,"statusCode":422,"errorMessage":"vector dimension mismatch"}
		]}`))
	}))

	docs := []Document{
		{"id": "a1", "content": "def authenticate"},
		{"id": "b2", "content": "class AuthManager"},
	}
	result, err := o.UploadDocuments(context.Background(), "code-index", docs, true)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.FailedKeys, 1)
	assert.Equal(t, "b2", result.FailedKeys[0].Key)

	require.Len(t, gotBody["value"], 2)
	assert.Equal(t, ActionMergeOrUpload, gotBody["value"][0]["@search.action"])
}

func TestUploadDocumentsEmptyBatchNoCall(t *testing.T) {
	o := newOps(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no HTTP call expected for empty batch")
	}))
	result, err := o.UploadDocuments(context.Background(), "code-index", nil, true)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Succeeded)
}

func TestDeleteDocumentsByKeys(t *testing.T) {
	var gotBody map[string][]map[string]any
	o := newOps(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"value":[{"key":"a1","status":true,"statusCode":200}]}`))
	}))

	_, err := o.DeleteDocumentsByKeys(context.Background(), "code-index", []string{"a1"})
	require.NoError(t, err)
	assert.Equal(t, ActionDelete, gotBody["value"][0]["@search.action"])
	assert.Equal(t, "a1", gotBody["value"][0]["id"])
}

func TestCountDocuments(t *testing.T) {
	o := newOps(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/indexes/code-index/docs/$count", r.URL.Path)
		_, _ = w.Write([]byte(`1742`))
	}))

	n, err := o.CountDocuments(context.Background(), "code-index")
	require.NoError(t, err)
	assert.Equal(t, int64(1742), n)
}

func TestSearchSplitsMetadata(t *testing.T) {
	o := newOps(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"@odata.count": 2,
			"value": [
				{"@search.score": 2.5, "@search.rerankerScore": 3.1,
				 "@search.captions": [{"text":"auth entry point"}],
				 "id": "a1", "content": "def authenticate", "repository": "kestrel"},
				{"@search.score": 1.1, "id": "b2", "content": "class AuthManager"}
			]
		}`))
	}))

	resp, err := o.Search(context.Background(), "code-index", &SearchRequest{Search: "authenticate", Top: 10})
	require.NoError(t, err)
	require.NotNil(t, resp.Count)
	assert.Equal(t, int64(2), *resp.Count)
	require.Len(t, resp.Results, 2)

	first := resp.Results[0]
	assert.Equal(t, 2.5, first.Score)
	require.NotNil(t, first.RerankerScore)
	assert.Equal(t, 3.1, *first.RerankerScore)
	assert.Equal(t, "a1", first.Document.Key())
	assert.Equal(t, "kestrel", first.Document["repository"])
	assert.NotContains(t, first.Document, "@search.score")

	assert.Nil(t, resp.Results[1].RerankerScore)
}

func TestIndexCRUDPaths(t *testing.T) {
	var paths []string
	o := newOps(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/indexes":
			_, _ = w.Write([]byte(`{"value":[{"name":"a"},{"name":"b"}]}`))
		default:
			_, _ = w.Write([]byte(`{"name":"code-index","fields":[{"name":"id","type":"Edm.String","key":true}]}`))
		}
	}))

	ctx := context.Background()
	_, err := o.CreateOrUpdateIndex(ctx, &schema.Index{Name: "code-index", Fields: []schema.Field{{Name: "id", Type: schema.TypeString, Key: true}}})
	require.NoError(t, err)

	ix, err := o.GetIndex(ctx, "code-index")
	require.NoError(t, err)
	assert.Equal(t, "code-index", ix.Name)

	list, err := o.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, o.DeleteIndex(ctx, "code-index"))

	assert.Equal(t, []string{
		"PUT /indexes/code-index",
		"GET /indexes/code-index",
		"GET /indexes",
		"DELETE /indexes/code-index",
	}, paths)
}

func TestRunAndWaitPollsToTerminal(t *testing.T) {
	var statusCalls atomic.Int32
	o := newOps(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/indexers/code-indexer/run":
			w.WriteHeader(http.StatusAccepted)
		case "/indexers/code-indexer/status":
			if statusCalls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"status":"running","lastResult":{"status":"inProgress"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"running","lastResult":{"status":"success","itemsProcessed":42}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	status, err := o.RunAndWait(context.Background(), "code-indexer", 10*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, status.LastResult)
	assert.Equal(t, IndexerStatusSuccess, status.LastResult.Status)
	assert.Equal(t, int64(42), status.LastResult.ItemsProcessed)
}

func TestRunAndWaitTimeout(t *testing.T) {
	o := newOps(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/indexers/slow/run":
			w.WriteHeader(http.StatusAccepted)
		default:
			_, _ = w.Write([]byte(`{"status":"running","lastResult":{"status":"inProgress"}}`))
		}
	}))

	_, err := o.RunAndWait(context.Background(), "slow", 10*time.Millisecond, 50*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal state")
}

func TestDataSourceAndSkillsetCRUD(t *testing.T) {
	o := newOps(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/datasources/blob-ds":
			_, _ = w.Write([]byte(`{"name":"blob-ds","type":"azureblob"}`))
		case "/skillsets/enrich":
			_, _ = w.Write([]byte(`{"name":"enrich","skills":[]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	ctx := context.Background()
	ds, err := o.CreateOrUpdateDataSource(ctx, &DataSource{Name: "blob-ds", Type: "azureblob"})
	require.NoError(t, err)
	assert.Equal(t, "azureblob", ds.Type)

	ss, err := o.GetSkillset(ctx, "enrich")
	require.NoError(t, err)
	assert.Equal(t, "enrich", ss.Name)
}
