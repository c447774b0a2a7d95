// Package ops provides typed operations over the managed search
// service's REST contract: indexes, documents, indexers, datasources,
// skillsets, and service statistics.
package ops

import (
	"encoding/json"
	"strconv"
)

// Search actions for document batches.
const (
	ActionUpload        = "upload"
	ActionMerge         = "merge"
	ActionMergeOrUpload = "mergeOrUpload"
	ActionDelete        = "delete"
)

// Terminal indexer execution statuses.
const (
	IndexerStatusSuccess          = "success"
	IndexerStatusTransientFailure = "transientFailure"
	IndexerStatusError            = "error"
)

// Document is one index record on the wire. Keys are index field names.
type Document map[string]any

// Key returns the document's id, if present.
func (d Document) Key() string {
	if v, ok := d["id"].(string); ok {
		return v
	}
	return ""
}

// batchItem is one entry in a document batch request.
type batchItem map[string]any

// IndexBatchResult aggregates per-item statuses from a batch submission.
type IndexBatchResult struct {
	Succeeded int
	Failed    int
	// FailedKeys holds keys of failed items with their status codes.
	FailedKeys []FailedKey
}

// FailedKey is a single failed batch item.
type FailedKey struct {
	Key        string `json:"key"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"errorMessage,omitempty"`
}

// batchResponse is the wire response to a batch submission.
type batchResponse struct {
	Value []struct {
		Key        string `json:"key"`
		Status     bool   `json:"status"`
		StatusCode int    `json:"statusCode"`
		Message    string `json:"errorMessage"`
	} `json:"value"`
}

// SearchRequest is the body of a documents search call.
type SearchRequest struct {
	Search                string        `json:"search,omitempty"`
	QueryType             string        `json:"queryType,omitempty"`
	SemanticConfiguration string        `json:"semanticConfiguration,omitempty"`
	Filter                string        `json:"filter,omitempty"`
	Top                   int           `json:"top,omitempty"`
	Skip                  int           `json:"skip,omitempty"`
	Select                string        `json:"select,omitempty"`
	OrderBy               string        `json:"orderby,omitempty"`
	SearchFields          string        `json:"searchFields,omitempty"`
	Captions              string        `json:"captions,omitempty"`
	Answers               string        `json:"answers,omitempty"`
	Count                 bool          `json:"count,omitempty"`
	DisableRandomization  bool          `json:"disableRandomization,omitempty"`
	VectorQueries         []VectorQuery `json:"vectorQueries,omitempty"`
}

// VectorQuery is one vector channel of a search request.
type VectorQuery struct {
	Kind   string    `json:"kind"`
	Vector []float32 `json:"vector"`
	K      int       `json:"k"`
	Fields string    `json:"fields"`
}

// SearchResponse is the parsed response to a search call.
type SearchResponse struct {
	Count   *int64
	Results []SearchResult
}

// SearchResult is one hit. Score metadata is split out of the document.
type SearchResult struct {
	Score         float64
	RerankerScore *float64
	Captions      []Caption
	Document      Document
}

// Caption is a semantic caption attached to a hit.
type Caption struct {
	Text      string `json:"text"`
	Highlight string `json:"highlights,omitempty"`
}

// UnmarshalJSON splits @search.* metadata from document fields.
func (r *SearchResult) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Document = Document{}
	for k, v := range raw {
		switch k {
		case "@search.score":
			if err := json.Unmarshal(v, &r.Score); err != nil {
				return err
			}
		case "@search.rerankerScore":
			var score float64
			if err := json.Unmarshal(v, &score); err == nil {
				r.RerankerScore = &score
			}
		case "@search.captions":
			_ = json.Unmarshal(v, &r.Captions)
		default:
			if len(k) > 0 && k[0] == '@' {
				continue
			}
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			r.Document[k] = val
		}
	}
	return nil
}

// searchResponseWire is the raw search response envelope.
type searchResponseWire struct {
	Count   *int64          `json:"@odata.count"`
	Results []SearchResult  `json:"value"`
	NextRaw json.RawMessage `json:"@odata.nextLink"`
}

// IndexStats reports per-index document count and storage size.
type IndexStats struct {
	DocumentCount   int64 `json:"documentCount"`
	StorageSize     int64 `json:"storageSize"`
	VectorIndexSize int64 `json:"vectorIndexSize,omitempty"`
}

// ServiceStats reports service-level counters and limits.
type ServiceStats struct {
	Counters map[string]ServiceCounter `json:"counters"`
	Limits   map[string]int64          `json:"limits"`
}

// ServiceCounter is a usage counter with an optional quota.
type ServiceCounter struct {
	Usage int64  `json:"usage"`
	Quota *int64 `json:"quota"`
}

// DataSource is a datasource definition; structural beyond name/wiring.
type DataSource struct {
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Credentials json.RawMessage `json:"credentials,omitempty"`
	Container   *DataContainer  `json:"container,omitempty"`
	Description string          `json:"description,omitempty"`
}

// DataContainer names the container a datasource reads.
type DataContainer struct {
	Name  string `json:"name"`
	Query string `json:"query,omitempty"`
}

// Skillset is an enrichment pipeline definition.
type Skillset struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Skills      []json.RawMessage `json:"skills"`
}

// Indexer wires a datasource to a target index.
type Indexer struct {
	Name            string            `json:"name"`
	DataSourceName  string            `json:"dataSourceName"`
	TargetIndexName string            `json:"targetIndexName"`
	SkillsetName    string            `json:"skillsetName,omitempty"`
	Schedule        *IndexerSchedule  `json:"schedule,omitempty"`
	Parameters      *IndexerParams    `json:"parameters,omitempty"`
	FieldMappings   []json.RawMessage `json:"fieldMappings,omitempty"`
}

// IndexerSchedule is an ISO-8601 interval schedule.
type IndexerSchedule struct {
	Interval  string `json:"interval"`
	StartTime string `json:"startTime,omitempty"`
}

// IndexerParams carries execution parameters.
type IndexerParams struct {
	MaxFailedItems         int                `json:"maxFailedItems"`
	MaxFailedItemsPerBatch int                `json:"maxFailedItemsPerBatch"`
	Configuration          *IndexerParamsConf `json:"configuration,omitempty"`
}

// IndexerParamsConf is the nested configuration block.
type IndexerParamsConf struct {
	ParsingMode string `json:"parsingMode,omitempty"`
}

// IndexerStatus is the response of the indexer status endpoint.
type IndexerStatus struct {
	Status           string             `json:"status"`
	LastResult       *IndexerExecution  `json:"lastResult"`
	ExecutionHistory []IndexerExecution `json:"executionHistory,omitempty"`
}

// IndexerExecution is one run of an indexer.
type IndexerExecution struct {
	Status         string `json:"status"`
	ErrorMessage   string `json:"errorMessage,omitempty"`
	StartTime      string `json:"startTime,omitempty"`
	EndTime        string `json:"endTime,omitempty"`
	ItemsProcessed int64  `json:"itemsProcessed"`
	ItemsFailed    int64  `json:"itemsFailed"`
}

// IsTerminal reports whether an execution status is terminal.
func (e *IndexerExecution) IsTerminal() bool {
	switch e.Status {
	case IndexerStatusSuccess, IndexerStatusTransientFailure, IndexerStatusError:
		return true
	}
	return false
}

// listResponse is the generic list envelope.
type listResponse[T any] struct {
	Value []T `json:"value"`
}

// countFromBody parses the plain-number body of $count endpoints.
func countFromBody(raw json.RawMessage) (int64, error) {
	s := string(raw)
	// The endpoint returns a bare number, sometimes quoted.
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	return strconv.ParseInt(s, 10, 64)
}
