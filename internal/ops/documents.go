package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// UploadDocuments submits a document batch. merge=true uses the
// mergeOrUpload action so re-uploading a document is idempotent by key;
// merge=false uses plain upload. Per-item failures are aggregated, not
// raised.
func (o *Operations) UploadDocuments(ctx context.Context, index string, docs []Document, merge bool) (*IndexBatchResult, error) {
	if len(docs) == 0 {
		return &IndexBatchResult{}, nil
	}
	action := ActionUpload
	if merge {
		action = ActionMergeOrUpload
	}

	items := make([]batchItem, 0, len(docs))
	for _, d := range docs {
		item := batchItem{"@search.action": action}
		for k, v := range d {
			item[k] = v
		}
		items = append(items, item)
	}
	return o.submitBatch(ctx, index, items)
}

// DeleteDocumentsByKeys deletes documents by primary key.
func (o *Operations) DeleteDocumentsByKeys(ctx context.Context, index string, keys []string) (*IndexBatchResult, error) {
	if len(keys) == 0 {
		return &IndexBatchResult{}, nil
	}
	items := make([]batchItem, 0, len(keys))
	for _, k := range keys {
		items = append(items, batchItem{"@search.action": ActionDelete, "id": k})
	}
	return o.submitBatch(ctx, index, items)
}

// submitBatch posts a batch to the documents index endpoint and
// aggregates per-item statuses.
func (o *Operations) submitBatch(ctx context.Context, index string, items []batchItem) (*IndexBatchResult, error) {
	body := map[string]any{"value": items}
	raw, err := o.client.Do(ctx, http.MethodPost,
		"/indexes/"+url.PathEscape(index)+"/docs/index", nil, body)
	if err != nil {
		return nil, err
	}

	var resp batchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding batch response: %w", err)
	}

	result := &IndexBatchResult{}
	for _, item := range resp.Value {
		if item.Status {
			result.Succeeded++
			continue
		}
		result.Failed++
		result.FailedKeys = append(result.FailedKeys, FailedKey{
			Key:        item.Key,
			StatusCode: item.StatusCode,
			Message:    item.Message,
		})
	}
	return result, nil
}

// GetDocument looks up one document by key.
func (o *Operations) GetDocument(ctx context.Context, index, key string) (Document, error) {
	raw, err := o.client.Do(ctx, http.MethodGet,
		"/indexes/"+url.PathEscape(index)+"/docs/"+url.PathEscape(key), nil, nil)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	delete(doc, "@odata.context")
	return doc, nil
}

// CountDocuments returns the index's document count.
func (o *Operations) CountDocuments(ctx context.Context, index string) (int64, error) {
	raw, err := o.client.Do(ctx, http.MethodGet,
		"/indexes/"+url.PathEscape(index)+"/docs/$count", nil, nil)
	if err != nil {
		return 0, err
	}
	n, err := countFromBody(raw)
	if err != nil {
		return 0, fmt.Errorf("decoding document count: %w", err)
	}
	return n, nil
}

// Search runs a documents search with the given request.
func (o *Operations) Search(ctx context.Context, index string, req *SearchRequest) (*SearchResponse, error) {
	raw, err := o.client.Do(ctx, http.MethodPost,
		"/indexes/"+url.PathEscape(index)+"/docs/search", nil, req)
	if err != nil {
		return nil, err
	}
	var wire searchResponseWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	return &SearchResponse{Count: wire.Count, Results: wire.Results}, nil
}
