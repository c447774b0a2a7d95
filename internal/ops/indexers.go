package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

// Defaults for RunAndWait polling.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultRunTimeout   = 5 * time.Minute
)

// CreateOrUpdateIndexer PUTs the indexer definition.
func (o *Operations) CreateOrUpdateIndexer(ctx context.Context, idx *Indexer) (*Indexer, error) {
	raw, err := o.client.Do(ctx, http.MethodPut, "/indexers/"+url.PathEscape(idx.Name), nil, idx)
	if err != nil {
		return nil, err
	}
	out := &Indexer{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decoding indexer definition: %w", err)
		}
	}
	return out, nil
}

// DeleteIndexer removes an indexer.
func (o *Operations) DeleteIndexer(ctx context.Context, name string) error {
	_, err := o.client.Do(ctx, http.MethodDelete, "/indexers/"+url.PathEscape(name), nil, nil)
	return err
}

// GetIndexer fetches an indexer definition.
func (o *Operations) GetIndexer(ctx context.Context, name string) (*Indexer, error) {
	raw, err := o.client.Do(ctx, http.MethodGet, "/indexers/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return nil, err
	}
	idx := &Indexer{}
	if err := json.Unmarshal(raw, idx); err != nil {
		return nil, fmt.Errorf("decoding indexer definition: %w", err)
	}
	return idx, nil
}

// ListIndexers returns all indexer definitions.
func (o *Operations) ListIndexers(ctx context.Context) ([]Indexer, error) {
	raw, err := o.client.Do(ctx, http.MethodGet, "/indexers", nil, nil)
	if err != nil {
		return nil, err
	}
	var list listResponse[Indexer]
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decoding indexer list: %w", err)
	}
	return list.Value, nil
}

// RunIndexer triggers an immediate run.
func (o *Operations) RunIndexer(ctx context.Context, name string) error {
	_, err := o.client.Do(ctx, http.MethodPost, "/indexers/"+url.PathEscape(name)+"/run", nil, nil)
	return err
}

// ResetIndexer resets change tracking so the next run is a full run.
func (o *Operations) ResetIndexer(ctx context.Context, name string) error {
	_, err := o.client.Do(ctx, http.MethodPost, "/indexers/"+url.PathEscape(name)+"/reset", nil, nil)
	return err
}

// GetIndexerStatus returns current status and execution history.
func (o *Operations) GetIndexerStatus(ctx context.Context, name string) (*IndexerStatus, error) {
	raw, err := o.client.Do(ctx, http.MethodGet, "/indexers/"+url.PathEscape(name)+"/status", nil, nil)
	if err != nil {
		return nil, err
	}
	status := &IndexerStatus{}
	if err := json.Unmarshal(raw, status); err != nil {
		return nil, fmt.Errorf("decoding indexer status: %w", err)
	}
	return status, nil
}

// RunAndWait triggers a run and polls status every pollInterval until
// the last result is terminal or timeout elapses. Returns the final
// status; a deadline miss returns a Timeout error with the last
// observed status attached.
func (o *Operations) RunAndWait(ctx context.Context, name string, pollInterval, timeout time.Duration) (*IndexerStatus, error) {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}

	if err := o.RunIndexer(ctx, name); err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var last *IndexerStatus
	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return last, kerrors.New(kerrors.ErrCodeTimeout,
					fmt.Sprintf("waiting for indexer %s cancelled", name), ctx.Err())
			}
			return last, kerrors.New(kerrors.ErrCodeTimeout,
				fmt.Sprintf("indexer %s did not reach a terminal state within %s", name, timeout), waitCtx.Err())
		case <-ticker.C:
			status, err := o.GetIndexerStatus(waitCtx, name)
			if err != nil {
				if waitCtx.Err() != nil {
					continue
				}
				return last, err
			}
			last = status
			if status.LastResult != nil && status.LastResult.IsTerminal() {
				o.logger.Debug("indexer run finished",
					slog.String("indexer", name),
					slog.String("status", status.LastResult.Status))
				return status, nil
			}
		}
	}
}
