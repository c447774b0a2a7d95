package schema

import (
	"context"
	"fmt"
	"log/slog"

	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
)

// knownAnalyzers are analyzer names accepted without substitution.
var knownAnalyzers = map[string]bool{
	"standard.lucene": true,
	"simple":          true,
	"keyword":         true,
	"whitespace":      true,
	"en.lucene":       true,
	"en.microsoft":    true,
}

// NegotiationResult reports the outcome of schema negotiation.
type NegotiationResult struct {
	Success    bool     `json:"success"`
	Negotiated *Index   `json:"negotiated,omitempty"`
	Changes    []string `json:"changes,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// UpdateResult reports the outcome of a schema diff against a live index.
type UpdateResult struct {
	AddedFields     []string `json:"added_fields,omitempty"`
	RequiresReindex bool     `json:"requires_reindex"`
	Reasons         []string `json:"reasons,omitempty"`
}

// Negotiator validates desired schemas against the service and applies
// compatibility adjustments until they are accepted.
type Negotiator struct {
	svc    Service
	logger *slog.Logger
}

// NewNegotiator creates a negotiator over the given service.
func NewNegotiator(svc Service, logger *slog.Logger) *Negotiator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Negotiator{svc: svc, logger: logger}
}

// Negotiate attempts to create or update the index with the desired
// schema. If the service rejects it, compatibility adjustments are
// applied and recorded, then the submission is retried once.
func (n *Negotiator) Negotiate(ctx context.Context, desired *Index, name string) (*NegotiationResult, error) {
	candidate := cloneIndex(desired)
	candidate.Name = name
	candidate.StripServiceMetadata()

	if _, err := n.svc.CreateOrUpdateIndex(ctx, candidate); err == nil {
		return &NegotiationResult{Success: true, Negotiated: candidate}, nil
	} else if kerrors.GetCategory(err) == kerrors.CategoryNetwork && kerrors.HTTPStatus(err) == 0 {
		// Transport failure, not a schema rejection.
		return nil, err
	}

	result := &NegotiationResult{Negotiated: candidate}
	n.adjust(candidate, result)

	if len(result.Changes) == 0 {
		result.Warnings = append(result.Warnings, "schema rejected and no compatibility adjustment applies")
	}

	if _, err := n.svc.CreateOrUpdateIndex(ctx, candidate); err != nil {
		return result, kerrors.SchemaError(
			fmt.Sprintf("index %s rejected after %d adjustments", name, len(result.Changes)), err)
	}

	for _, c := range result.Changes {
		n.logger.Info("schema adjusted during negotiation",
			slog.String("index", name), slog.String("change", c))
	}
	result.Success = true
	return result, nil
}

// adjust applies the compatibility rules in place, recording each change.
func (n *Negotiator) adjust(ix *Index, result *NegotiationResult) {
	for i := range ix.Fields {
		f := &ix.Fields[i]

		if f.IsVector() {
			if flag(f.Filterable) || flag(f.Sortable) || flag(f.Facetable) || flag(f.Retrievable) || !flag(f.Searchable) {
				f.Filterable = boolPtr(false)
				f.Sortable = boolPtr(false)
				f.Facetable = boolPtr(false)
				f.Retrievable = boolPtr(false)
				f.Searchable = boolPtr(true)
				result.Changes = append(result.Changes,
					fmt.Sprintf("vector field %s: forced attribute flags", f.Name))
			}
			continue
		}

		if flag(f.Searchable) && f.Type != TypeString && f.Type != TypeStringCollection {
			f.Searchable = boolPtr(false)
			result.Changes = append(result.Changes,
				fmt.Sprintf("field %s: searchable disabled for type %s", f.Name, f.Type))
		}

		if f.Analyzer != "" && !knownAnalyzers[f.Analyzer] {
			result.Changes = append(result.Changes,
				fmt.Sprintf("field %s: analyzer %s replaced with %s", f.Name, f.Analyzer, DefaultAnalyzer))
			f.Analyzer = DefaultAnalyzer
		}
	}
}

// EnsureIndexExists creates the index if absent and updates it when the
// local definition differs on comparable attributes. Applying the same
// desired schema twice performs at most one update. Incompatible drift
// (type or key changes) returns a schema error recommending
// drop-rebuild.
func (n *Negotiator) EnsureIndexExists(ctx context.Context, desired *Index) error {
	live, err := n.svc.GetIndex(ctx, desired.Name)
	if err != nil {
		if !kerrors.IsNotFound(err) {
			return err
		}
		_, err := n.svc.CreateOrUpdateIndex(ctx, desired)
		return err
	}

	diff := DiffIndexes(live, desired)
	if diff.RequiresReindex {
		return kerrors.SchemaError(
			fmt.Sprintf("index %s has incompatible drift: %v", desired.Name, diff.Reasons), nil)
	}
	if len(diff.AddedFields) == 0 && !comparableAttributesDiffer(live, desired) {
		return nil
	}

	n.logger.Info("updating index schema",
		slog.String("index", desired.Name),
		slog.Int("added_fields", len(diff.AddedFields)))
	_, err = n.svc.CreateOrUpdateIndex(ctx, desired)
	return err
}

// UpdateExisting diffs a live index against a newly generated schema.
// Field additions are safe updates; type and key changes require a
// full reindex.
func (n *Negotiator) UpdateExisting(ctx context.Context, name string, desired *Index) (*UpdateResult, error) {
	live, err := n.svc.GetIndex(ctx, name)
	if err != nil {
		return nil, err
	}
	diff := DiffIndexes(live, desired)
	return diff, nil
}

// DiffIndexes computes the comparable difference from live to desired.
func DiffIndexes(live, desired *Index) *UpdateResult {
	result := &UpdateResult{}
	liveFields := map[string]*Field{}
	for i := range live.Fields {
		liveFields[live.Fields[i].Name] = &live.Fields[i]
	}

	for i := range desired.Fields {
		d := &desired.Fields[i]
		l, ok := liveFields[d.Name]
		if !ok {
			result.AddedFields = append(result.AddedFields, d.Name)
			continue
		}
		if l.Type != d.Type {
			result.RequiresReindex = true
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("field %s: type %s -> %s", d.Name, l.Type, d.Type))
		}
		if l.Key != d.Key {
			result.RequiresReindex = true
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("field %s: key flag changed", d.Name))
		}
	}
	return result
}

// comparableAttributesDiffer reports whether the live index differs from
// the desired one on attribute flags or vector configuration presence.
func comparableAttributesDiffer(live, desired *Index) bool {
	if (live.VectorSearch == nil) != (desired.VectorSearch == nil) {
		return true
	}
	liveFields := map[string]*Field{}
	for i := range live.Fields {
		liveFields[live.Fields[i].Name] = &live.Fields[i]
	}
	for i := range desired.Fields {
		d := &desired.Fields[i]
		l, ok := liveFields[d.Name]
		if !ok {
			return true
		}
		if flag(l.Searchable) != flag(d.Searchable) ||
			flag(l.Filterable) != flag(d.Filterable) ||
			flag(l.Sortable) != flag(d.Sortable) ||
			flag(l.Facetable) != flag(d.Facetable) {
			return true
		}
	}
	return false
}

// cloneIndex deep-copies an index definition so adjustments never
// mutate the caller's copy.
func cloneIndex(ix *Index) *Index {
	out := *ix
	out.Fields = append([]Field(nil), ix.Fields...)
	if ix.VectorSearch != nil {
		vs := *ix.VectorSearch
		vs.Profiles = append([]VectorProfile(nil), ix.VectorSearch.Profiles...)
		vs.Algorithms = append([]VectorAlgorithm(nil), ix.VectorSearch.Algorithms...)
		out.VectorSearch = &vs
	}
	if ix.Semantic != nil {
		sem := *ix.Semantic
		sem.Configurations = append([]SemanticConfiguration(nil), ix.Semantic.Configurations...)
		out.Semantic = &sem
	}
	out.ScoringProfiles = append([]ScoringProfile(nil), ix.ScoringProfiles...)
	out.Suggesters = append([]Suggester(nil), ix.Suggesters...)
	return &out
}
