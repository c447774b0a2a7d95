package automation

import (
	"context"
	"log/slog"

	"github.com/kestrelsearch/kestrel/internal/chunk"
	"github.com/kestrelsearch/kestrel/internal/config"
	"github.com/kestrelsearch/kestrel/internal/embed"
	"github.com/kestrelsearch/kestrel/internal/ingest"
	"github.com/kestrelsearch/kestrel/internal/ops"
	"github.com/kestrelsearch/kestrel/internal/query"
	"github.com/kestrelsearch/kestrel/internal/rest"
	"github.com/kestrelsearch/kestrel/internal/scanner"
	"github.com/kestrelsearch/kestrel/internal/schema"
)

// UnifiedAutomation bundles every automation surface over one shared
// connection pool and one default index.
type UnifiedAutomation struct {
	Data    *DataAutomation
	Indexer *IndexerAutomation
	Reindex *ReindexAutomation
	Health  *HealthMonitor

	Service  *ops.Operations
	Embedder embed.Embedder

	client    *rest.Client
	cfg       config.Config
	indexName string
	logger    *slog.Logger
}

// NewUnifiedAutomation builds the full automation stack from
// configuration.
func NewUnifiedAutomation(cfg config.Config, logger *slog.Logger) (*UnifiedAutomation, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := rest.NewClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	svc := ops.New(client, logger)

	embedder, err := embed.NewFromConfig(cfg.Embedding)
	if err != nil {
		client.Cleanup()
		return nil, err
	}
	sc, err := scanner.New(cfg.Processor, logger)
	if err != nil {
		client.Cleanup()
		return nil, err
	}
	processor := ingest.NewProcessor(cfg, sc, chunk.NewCodeChunker(), embedder, svc, logger)

	return &UnifiedAutomation{
		Data:      NewDataAutomation(svc, logger),
		Indexer:   NewIndexerAutomation(svc, logger),
		Reindex:   NewReindexAutomation(svc, processor, cfg, logger),
		Health:    NewHealthMonitor(svc, logger),
		Service:   svc,
		Embedder:  embedder,
		client:    client,
		cfg:       cfg,
		indexName: cfg.IndexName,
		logger:    logger,
	}, nil
}

// IndexName is the default index automation targets.
func (u *UnifiedAutomation) IndexName() string {
	return u.indexName
}

// Searcher builds a hybrid searcher over the default index.
func (u *UnifiedAutomation) Searcher() *query.HybridSearcher {
	return query.NewHybridSearcher(u.Service, u.Embedder, u.indexName, u.logger)
}

// Cleanup closes the embedder and the shared connection pool.
func (u *UnifiedAutomation) Cleanup() {
	if u.Embedder != nil {
		_ = u.Embedder.Close()
	}
	u.client.Cleanup()
}

// CLIAutomation is the workflow layer the CLI drives: it ensures the
// index exists before ingesting and exposes the stats the commands
// print.
type CLIAutomation struct {
	*UnifiedAutomation
}

// NewCLIAutomation builds the CLI workflow layer.
func NewCLIAutomation(cfg config.Config, logger *slog.Logger) (*CLIAutomation, error) {
	u, err := NewUnifiedAutomation(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &CLIAutomation{UnifiedAutomation: u}, nil
}

// EnsureIndex creates or negotiates the default index with the full
// feature set, detecting supported vector dimensions first.
func (c *CLIAutomation) EnsureIndex(ctx context.Context) error {
	dims := c.cfg.Embedding.Dimensions
	if dims <= 0 {
		dims = schema.DetectDimensions(ctx, c.Service, c.logger)
	}
	desired, err := schema.NewBuilder(dims).Generate(c.indexName, schema.AllFeatures, schema.CodeDocumentFields())
	if err != nil {
		return err
	}
	return schema.NewNegotiator(c.Service, c.logger).EnsureIndexExists(ctx, desired)
}

// IndexRepository ensures the index exists, then ingests the tree at
// root under the given repository tag.
func (c *CLIAutomation) IndexRepository(ctx context.Context, root, repository string) (*ingest.Stats, error) {
	if err := c.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	return c.Reindex.processor.IngestRepository(ctx, root, repository, c.indexName)
}

// Stats reports document count and storage for the default index.
func (c *CLIAutomation) Stats(ctx context.Context) (*ops.IndexStats, error) {
	return c.Service.GetIndexStats(ctx, c.indexName)
}
