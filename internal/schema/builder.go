package schema

import (
	"fmt"
	"sort"
)

// Feature selects an optional index capability.
type Feature string

const (
	FeatureVectorSearch    Feature = "vector_search"
	FeatureSemanticSearch  Feature = "semantic_search"
	FeatureFacetedSearch   Feature = "faceted_search"
	FeatureScoringProfiles Feature = "scoring_profiles"
)

// AllFeatures lists every feature in merge-precedence order.
var AllFeatures = []Feature{
	FeatureVectorSearch,
	FeatureSemanticSearch,
	FeatureFacetedSearch,
	FeatureScoringProfiles,
}

// Vector field and profile names used across the system.
const (
	VectorFieldName     = "content_vector"
	vectorProfileName   = "vector-profile"
	vectorAlgorithmName = "hnsw-algorithm"
	scoringProfileName  = "code-boost"
)

// Builder composes index definitions from feature flags.
type Builder struct {
	// Dimensions is the vector length for the content_vector field.
	Dimensions int
}

// NewBuilder creates a builder with the given vector dimensions.
// Zero falls back to 1536.
func NewBuilder(dimensions int) *Builder {
	if dimensions <= 0 {
		dimensions = FallbackDimensions
	}
	return &Builder{Dimensions: dimensions}
}

// Generate builds an index definition. The base schema carries only the
// key field; each feature merges its required fields and top-level
// sections; customFields come last. Duplicate names resolve by
// precedence: base, then features in AllFeatures order, then custom.
func (b *Builder) Generate(name string, features []Feature, customFields []Field) (*Index, error) {
	if name == "" {
		return nil, fmt.Errorf("index name is required")
	}

	ix := &Index{
		Name:   name,
		Fields: []Field{keyField()},
	}
	seen := map[string]bool{"id": true}

	requested := map[Feature]bool{}
	for _, f := range features {
		switch f {
		case FeatureVectorSearch, FeatureSemanticSearch, FeatureFacetedSearch, FeatureScoringProfiles:
			requested[f] = true
		default:
			return nil, fmt.Errorf("unknown feature %q", f)
		}
	}

	for _, f := range AllFeatures {
		if !requested[f] {
			continue
		}
		for _, fld := range b.featureFields(f) {
			if !seen[fld.Name] {
				ix.Fields = append(ix.Fields, fld)
				seen[fld.Name] = true
			}
		}
		b.applyFeatureSections(ix, f)
	}

	for _, fld := range customFields {
		if !seen[fld.Name] {
			ix.Fields = append(ix.Fields, fld)
			seen[fld.Name] = true
		}
	}

	return ix, nil
}

// keyField is the mandatory document key.
func keyField() Field {
	return Field{
		Name:        "id",
		Type:        TypeString,
		Key:         true,
		Filterable:  boolPtr(true),
		Retrievable: boolPtr(true),
	}
}

// featureFields returns the fields a feature requires.
func (b *Builder) featureFields(f Feature) []Field {
	switch f {
	case FeatureVectorSearch:
		return []Field{
			{
				Name:                VectorFieldName,
				Type:                TypeSingleCollection,
				Searchable:          boolPtr(true),
				Retrievable:         boolPtr(false),
				Dimensions:          b.Dimensions,
				VectorSearchProfile: vectorProfileName,
			},
		}
	case FeatureSemanticSearch:
		return []Field{
			searchableText("content"),
			searchableText("function_name"),
			searchableText("docstring"),
			filterableText("repository"),
			filterableText("language"),
		}
	case FeatureFacetedSearch:
		return []Field{
			facetableText("repository"),
			facetableText("language"),
			filterableText("file_extension"),
			filterableText("chunk_type"),
		}
	case FeatureScoringProfiles:
		return []Field{
			searchableText("function_name"),
			searchableText("class_name"),
			searchableText("content"),
			{
				Name:       "last_modified",
				Type:       TypeDateTimeOffset,
				Filterable: boolPtr(true),
				Sortable:   boolPtr(true),
			},
		}
	}
	return nil
}

// applyFeatureSections merges a feature's top-level sections into ix.
func (b *Builder) applyFeatureSections(ix *Index, f Feature) {
	switch f {
	case FeatureVectorSearch:
		if ix.VectorSearch == nil {
			ix.VectorSearch = &VectorSearch{
				Profiles: []VectorProfile{
					{Name: vectorProfileName, Algorithm: vectorAlgorithmName},
				},
				Algorithms: []VectorAlgorithm{
					{
						Name: vectorAlgorithmName,
						Kind: "hnsw",
						HNSWParameters: &HNSWParameters{
							M:              4,
							EfConstruction: 400,
							EfSearch:       500,
							Metric:         MetricCosine,
						},
					},
				},
			}
		}
	case FeatureSemanticSearch:
		if ix.Semantic == nil {
			ix.Semantic = &Semantic{
				Configurations: []SemanticConfiguration{
					{
						Name: SemanticConfigName,
						PrioritizedFields: SemanticPrioritizedFields{
							TitleField: &SemanticField{FieldName: "function_name"},
							ContentFields: []SemanticField{
								{FieldName: "content"},
								{FieldName: "docstring"},
							},
							KeywordsFields: []SemanticField{
								{FieldName: "repository"},
								{FieldName: "language"},
							},
						},
					},
				},
			}
		}
	case FeatureScoringProfiles:
		if len(ix.ScoringProfiles) == 0 {
			ix.ScoringProfiles = []ScoringProfile{
				{
					Name: scoringProfileName,
					Text: &TextWeights{
						Weights: map[string]float64{
							"function_name": 3.0,
							"class_name":    2.0,
							"content":       1.0,
						},
					},
					Functions: []ScoringFunction{
						{
							Type:          "freshness",
							FieldName:     "last_modified",
							Boost:         2.0,
							Interpolation: "quadratic",
							Freshness:     &FreshnessParameters{BoostingDuration: "P30D"},
						},
					},
				},
			}
		}
	}
}

// CodeDocumentFields returns the canonical document field set of the
// code index (§ data model). Passed as customFields so that feature
// fields win on overlap.
func CodeDocumentFields() []Field {
	return []Field{
		searchableText("content"),
		filterableText("repository"),
		filterableText("file_path"),
		filterableText("file_extension"),
		filterableText("language"),
		filterableText("chunk_type"),
		{Name: "chunk_id", Type: TypeString, Filterable: boolPtr(true), Retrievable: boolPtr(true)},
		{Name: "start_line", Type: TypeInt32, Filterable: boolPtr(true), Sortable: boolPtr(true)},
		{Name: "end_line", Type: TypeInt32, Filterable: boolPtr(true), Sortable: boolPtr(true)},
		searchableText("function_name"),
		searchableText("class_name"),
		searchableText("signature"),
		searchableText("docstring"),
		{Name: "imports", Type: TypeStringCollection, Searchable: boolPtr(true), Filterable: boolPtr(true)},
		{Name: "dependencies", Type: TypeStringCollection, Searchable: boolPtr(true), Filterable: boolPtr(true)},
		{Name: "last_modified", Type: TypeDateTimeOffset, Filterable: boolPtr(true), Sortable: boolPtr(true)},
		{Name: "truncated", Type: TypeBoolean, Filterable: boolPtr(true)},
	}
}

func searchableText(name string) Field {
	return Field{
		Name:        name,
		Type:        TypeString,
		Searchable:  boolPtr(true),
		Retrievable: boolPtr(true),
		Analyzer:    DefaultAnalyzer,
	}
}

func filterableText(name string) Field {
	return Field{
		Name:        name,
		Type:        TypeString,
		Filterable:  boolPtr(true),
		Retrievable: boolPtr(true),
	}
}

func facetableText(name string) Field {
	f := filterableText(name)
	f.Facetable = boolPtr(true)
	return f
}

// FieldNames returns the sorted names of an index's fields.
func FieldNames(ix *Index) []string {
	names := make([]string, 0, len(ix.Fields))
	for _, f := range ix.Fields {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}
