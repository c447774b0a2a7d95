// Package schema builds and negotiates index definitions for the managed
// search service. Definitions are plain wire-shaped structs; the builder
// composes them from feature flags and the negotiator adjusts them until
// the service accepts them.
package schema

// EDM field types used by the index schema.
const (
	TypeString           = "Edm.String"
	TypeInt32            = "Edm.Int32"
	TypeInt64            = "Edm.Int64"
	TypeDouble           = "Edm.Double"
	TypeBoolean          = "Edm.Boolean"
	TypeDateTimeOffset   = "Edm.DateTimeOffset"
	TypeStringCollection = "Collection(Edm.String)"
	TypeSingleCollection = "Collection(Edm.Single)"
)

// Vector similarity metrics supported by HNSW.
const (
	MetricCosine     = "cosine"
	MetricEuclidean  = "euclidean"
	MetricDotProduct = "dotProduct"
)

// DefaultAnalyzer is the analyzer substituted for unknown analyzer names.
const DefaultAnalyzer = "standard.lucene"

// SemanticConfigName is the semantic configuration referenced by queries.
const SemanticConfigName = "semantic-config"

// Index is a top-level index definition.
type Index struct {
	Name            string           `json:"name"`
	Fields          []Field          `json:"fields"`
	VectorSearch    *VectorSearch    `json:"vectorSearch,omitempty"`
	Semantic        *Semantic        `json:"semantic,omitempty"`
	ScoringProfiles []ScoringProfile `json:"scoringProfiles,omitempty"`
	Suggesters      []Suggester      `json:"suggesters,omitempty"`
	CORSOptions     *CORSOptions     `json:"corsOptions,omitempty"`

	// Service metadata; stripped before re-submitting a fetched schema.
	ODataContext string `json:"@odata.context,omitempty"`
	ETag         string `json:"@odata.etag,omitempty"`
}

// StripServiceMetadata removes fields the service attaches to fetched
// definitions that must not be sent back on create.
func (ix *Index) StripServiceMetadata() {
	ix.ODataContext = ""
	ix.ETag = ""
}

// KeyField returns the index's key field, if any.
func (ix *Index) KeyField() *Field {
	for i := range ix.Fields {
		if ix.Fields[i].Key {
			return &ix.Fields[i]
		}
	}
	return nil
}

// FieldByName returns the named field, if present.
func (ix *Index) FieldByName(name string) *Field {
	for i := range ix.Fields {
		if ix.Fields[i].Name == name {
			return &ix.Fields[i]
		}
	}
	return nil
}

// Field is a single index field. Attribute flags use pointers so an
// unset flag is distinguishable from an explicit false.
type Field struct {
	Name                string `json:"name"`
	Type                string `json:"type"`
	Key                 bool   `json:"key,omitempty"`
	Searchable          *bool  `json:"searchable,omitempty"`
	Filterable          *bool  `json:"filterable,omitempty"`
	Sortable            *bool  `json:"sortable,omitempty"`
	Facetable           *bool  `json:"facetable,omitempty"`
	Retrievable         *bool  `json:"retrievable,omitempty"`
	Analyzer            string `json:"analyzer,omitempty"`
	Dimensions          int    `json:"dimensions,omitempty"`
	VectorSearchProfile string `json:"vectorSearchProfile,omitempty"`
}

// IsVector reports whether the field carries embedding vectors.
func (f *Field) IsVector() bool {
	return f.Dimensions > 0 || f.VectorSearchProfile != ""
}

// boolPtr returns a pointer to b.
func boolPtr(b bool) *bool { return &b }

// flag dereferences an attribute pointer with a default of false.
func flag(p *bool) bool { return p != nil && *p }

// VectorSearch is the vectorSearch section of an index.
type VectorSearch struct {
	Profiles   []VectorProfile   `json:"profiles"`
	Algorithms []VectorAlgorithm `json:"algorithms"`
}

// VectorProfile binds a vector field to an algorithm configuration.
type VectorProfile struct {
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
}

// VectorAlgorithm is a named ANN algorithm configuration.
type VectorAlgorithm struct {
	Name           string          `json:"name"`
	Kind           string          `json:"kind"`
	HNSWParameters *HNSWParameters `json:"hnswParameters,omitempty"`
}

// HNSWParameters tunes the HNSW graph.
type HNSWParameters struct {
	M              int    `json:"m"`
	EfConstruction int    `json:"efConstruction"`
	EfSearch       int    `json:"efSearch"`
	Metric         string `json:"metric"`
}

// Semantic is the semantic section of an index.
type Semantic struct {
	Configurations []SemanticConfiguration `json:"configurations"`
}

// SemanticConfiguration names the fields feeding the semantic reranker.
type SemanticConfiguration struct {
	Name              string                    `json:"name"`
	PrioritizedFields SemanticPrioritizedFields `json:"prioritizedFields"`
}

// SemanticPrioritizedFields declares title, content, and keyword fields.
type SemanticPrioritizedFields struct {
	TitleField     *SemanticField  `json:"titleField,omitempty"`
	ContentFields  []SemanticField `json:"prioritizedContentFields,omitempty"`
	KeywordsFields []SemanticField `json:"prioritizedKeywordsFields,omitempty"`
}

// SemanticField references an index field by name.
type SemanticField struct {
	FieldName string `json:"fieldName"`
}

// ScoringProfile is a named scoring profile.
type ScoringProfile struct {
	Name      string            `json:"name"`
	Text      *TextWeights      `json:"text,omitempty"`
	Functions []ScoringFunction `json:"functions,omitempty"`
}

// TextWeights maps field names to boost weights.
type TextWeights struct {
	Weights map[string]float64 `json:"weights"`
}

// ScoringFunction is a tagged scoring function variant; exactly one of
// the parameter blocks matching Type is set.
type ScoringFunction struct {
	Type          string               `json:"type"`
	FieldName     string               `json:"fieldName"`
	Boost         float64              `json:"boost"`
	Interpolation string               `json:"interpolation,omitempty"`
	Freshness     *FreshnessParameters `json:"freshness,omitempty"`
	Magnitude     *MagnitudeParameters `json:"magnitude,omitempty"`
	Tag           *TagParameters       `json:"tag,omitempty"`
}

// FreshnessParameters configures a freshness scoring function.
type FreshnessParameters struct {
	BoostingDuration string `json:"boostingDuration"`
}

// MagnitudeParameters configures a magnitude scoring function.
type MagnitudeParameters struct {
	BoostingRangeStart       float64 `json:"boostingRangeStart"`
	BoostingRangeEnd         float64 `json:"boostingRangeEnd"`
	ConstantBoostBeyondRange bool    `json:"constantBoostBeyondRange,omitempty"`
}

// TagParameters configures a tag scoring function.
type TagParameters struct {
	TagsParameter string `json:"tagsParameter"`
}

// Suggester is an index suggester.
type Suggester struct {
	Name         string   `json:"name"`
	SearchMode   string   `json:"searchMode"`
	SourceFields []string `json:"sourceFields"`
}

// CORSOptions configures cross-origin access to the index.
type CORSOptions struct {
	AllowedOrigins  []string `json:"allowedOrigins"`
	MaxAgeInSeconds int64    `json:"maxAgeInSeconds,omitempty"`
}
