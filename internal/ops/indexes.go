package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/kestrelsearch/kestrel/internal/rest"
	"github.com/kestrelsearch/kestrel/internal/schema"
)

// Operations exposes typed CRUD over the managed search service.
type Operations struct {
	client *rest.Client
	logger *slog.Logger
}

// New creates an Operations layer over the REST client.
func New(client *rest.Client, logger *slog.Logger) *Operations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Operations{client: client, logger: logger}
}

// Cleanup releases the underlying HTTP pool.
func (o *Operations) Cleanup() {
	o.client.Cleanup()
}

// CreateOrUpdateIndex PUTs the index definition; create and update share
// the same idempotent call.
func (o *Operations) CreateOrUpdateIndex(ctx context.Context, ix *schema.Index) (*schema.Index, error) {
	raw, err := o.client.Do(ctx, http.MethodPut, "/indexes/"+url.PathEscape(ix.Name), nil, ix)
	if err != nil {
		return nil, err
	}
	out := &schema.Index{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decoding index definition: %w", err)
		}
	}
	return out, nil
}

// DeleteIndex removes the index and all its documents.
func (o *Operations) DeleteIndex(ctx context.Context, name string) error {
	_, err := o.client.Do(ctx, http.MethodDelete, "/indexes/"+url.PathEscape(name), nil, nil)
	return err
}

// GetIndex fetches the live index definition.
func (o *Operations) GetIndex(ctx context.Context, name string) (*schema.Index, error) {
	raw, err := o.client.Do(ctx, http.MethodGet, "/indexes/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return nil, err
	}
	ix := &schema.Index{}
	if err := json.Unmarshal(raw, ix); err != nil {
		return nil, fmt.Errorf("decoding index definition: %w", err)
	}
	return ix, nil
}

// ListIndexes returns all index definitions.
func (o *Operations) ListIndexes(ctx context.Context) ([]schema.Index, error) {
	raw, err := o.client.Do(ctx, http.MethodGet, "/indexes", nil, nil)
	if err != nil {
		return nil, err
	}
	var list listResponse[schema.Index]
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decoding index list: %w", err)
	}
	return list.Value, nil
}

// GetIndexStats returns document count and storage size for an index.
func (o *Operations) GetIndexStats(ctx context.Context, name string) (*IndexStats, error) {
	raw, err := o.client.Do(ctx, http.MethodGet, "/indexes/"+url.PathEscape(name)+"/stats", nil, nil)
	if err != nil {
		return nil, err
	}
	stats := &IndexStats{}
	if err := json.Unmarshal(raw, stats); err != nil {
		return nil, fmt.Errorf("decoding index stats: %w", err)
	}
	return stats, nil
}

// AnalyzeText runs the index's analyzer over text and returns tokens.
func (o *Operations) AnalyzeText(ctx context.Context, index, text, analyzer string) ([]string, error) {
	body := map[string]string{"text": text}
	if analyzer != "" {
		body["analyzer"] = analyzer
	}
	raw, err := o.client.Do(ctx, http.MethodPost, "/indexes/"+url.PathEscape(index)+"/analyze", nil, body)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Tokens []struct {
			Token string `json:"token"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decoding analyze response: %w", err)
	}
	tokens := make([]string, 0, len(resp.Tokens))
	for _, t := range resp.Tokens {
		tokens = append(tokens, t.Token)
	}
	return tokens, nil
}

// GetServiceStats returns service-level counters versus limits.
func (o *Operations) GetServiceStats(ctx context.Context) (*ServiceStats, error) {
	raw, err := o.client.Do(ctx, http.MethodGet, "/servicestats", nil, nil)
	if err != nil {
		return nil, err
	}
	stats := &ServiceStats{}
	if err := json.Unmarshal(raw, stats); err != nil {
		return nil, fmt.Errorf("decoding service stats: %w", err)
	}
	return stats, nil
}
