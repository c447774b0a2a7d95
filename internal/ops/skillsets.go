package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// CreateOrUpdateSkillset PUTs the skillset definition.
func (o *Operations) CreateOrUpdateSkillset(ctx context.Context, ss *Skillset) (*Skillset, error) {
	raw, err := o.client.Do(ctx, http.MethodPut, "/skillsets/"+url.PathEscape(ss.Name), nil, ss)
	if err != nil {
		return nil, err
	}
	out := &Skillset{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decoding skillset definition: %w", err)
		}
	}
	return out, nil
}

// DeleteSkillset removes a skillset.
func (o *Operations) DeleteSkillset(ctx context.Context, name string) error {
	_, err := o.client.Do(ctx, http.MethodDelete, "/skillsets/"+url.PathEscape(name), nil, nil)
	return err
}

// GetSkillset fetches a skillset definition.
func (o *Operations) GetSkillset(ctx context.Context, name string) (*Skillset, error) {
	raw, err := o.client.Do(ctx, http.MethodGet, "/skillsets/"+url.PathEscape(name), nil, nil)
	if err != nil {
		return nil, err
	}
	ss := &Skillset{}
	if err := json.Unmarshal(raw, ss); err != nil {
		return nil, fmt.Errorf("decoding skillset definition: %w", err)
	}
	return ss, nil
}

// ListSkillsets returns all skillset definitions.
func (o *Operations) ListSkillsets(ctx context.Context) ([]Skillset, error) {
	raw, err := o.client.Do(ctx, http.MethodGet, "/skillsets", nil, nil)
	if err != nil {
		return nil, err
	}
	var list listResponse[Skillset]
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decoding skillset list: %w", err)
	}
	return list.Value, nil
}
