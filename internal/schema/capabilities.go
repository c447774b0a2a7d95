package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// FallbackDimensions is used when capability detection fails.
const FallbackDimensions = 1536

// probeDimensions are tried in descending order of preference.
var probeDimensions = []int{3072, 1536, 1024, 512}

// Service is the slice of index operations the schema layer needs.
// Implemented by the ops package.
type Service interface {
	GetIndex(ctx context.Context, name string) (*Index, error)
	CreateOrUpdateIndex(ctx context.Context, index *Index) (*Index, error)
	DeleteIndex(ctx context.Context, name string) error
}

// DetectDimensions probes the service for the largest supported vector
// dimension by creating and deleting a throwaway index per candidate.
// Falls back to FallbackDimensions when no probe succeeds.
func DetectDimensions(ctx context.Context, svc Service, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dims := range probeDimensions {
		name := fmt.Sprintf("kestrel-probe-%s", uuid.NewString()[:8])
		probe := &Index{
			Name: name,
			Fields: []Field{
				keyField(),
				{
					Name:                VectorFieldName,
					Type:                TypeSingleCollection,
					Searchable:          boolPtr(true),
					Retrievable:         boolPtr(false),
					Dimensions:          dims,
					VectorSearchProfile: vectorProfileName,
				},
			},
			VectorSearch: &VectorSearch{
				Profiles: []VectorProfile{{Name: vectorProfileName, Algorithm: vectorAlgorithmName}},
				Algorithms: []VectorAlgorithm{{
					Name: vectorAlgorithmName,
					Kind: "hnsw",
					HNSWParameters: &HNSWParameters{
						M: 4, EfConstruction: 400, EfSearch: 500, Metric: MetricCosine,
					},
				}},
			},
		}

		if _, err := svc.CreateOrUpdateIndex(ctx, probe); err != nil {
			logger.Debug("dimension probe rejected",
				slog.Int("dimensions", dims))
			continue
		}
		if err := svc.DeleteIndex(ctx, name); err != nil {
			logger.Warn("failed to delete probe index",
				slog.String("index", name))
		}
		logger.Debug("dimension probe accepted", slog.Int("dimensions", dims))
		return dims
	}
	logger.Warn("dimension detection failed, using fallback",
		slog.Int("dimensions", FallbackDimensions))
	return FallbackDimensions
}
