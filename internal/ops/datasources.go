package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// CreateOrUpdateDataSource PUTs the datasource definition.
func (o *Operations) CreateOrUpdateDataSource(ctx context.Context, ds *DataSource) (*DataSource, error) {
	raw, err := o.client.Do(ctx, http.MethodPut, "/datasources/"+url.PathEscape(ds.Name), nil, ds)
	if err != nil {
		return nil, err
	}
	out := &DataSource{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decoding datasource definition: %w", err)
		}
	}
	return out, nil
}

// DeleteDataSource removes a datasource.
func (o *Operations) DeleteDataSource(ctx context.Context, name string) error {
	_, err := o.client.Do(ctx, http.MethodDelete, "/datasources/"+url.PathEscape(name), nil, nil)
	return err
}

// GetDataSource fetches a datasource definition.
func (o *Operations) GetDataSource(ctx context.Context, name string) (*DataSource, error) {
	raw, err := o.client.Do(ctx, http.MethodGet, "/datasources/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return nil, err
	}
	ds := &DataSource{}
	if err := json.Unmarshal(raw, ds); err != nil {
		return nil, fmt.Errorf("decoding datasource definition: %w", err)
	}
	return ds, nil
}

// ListDataSources returns all datasource definitions.
func (o *Operations) ListDataSources(ctx context.Context) ([]DataSource, error) {
	raw, err := o.client.Do(ctx, http.MethodGet, "/datasources", nil, nil)
	if err != nil {
		return nil, err
	}
	var list listResponse[DataSource]
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decoding datasource list: %w", err)
	}
	return list.Value, nil
}
