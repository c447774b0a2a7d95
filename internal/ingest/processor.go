package ingest

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelsearch/kestrel/internal/chunk"
	"github.com/kestrelsearch/kestrel/internal/config"
	"github.com/kestrelsearch/kestrel/internal/embed"
	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
	"github.com/kestrelsearch/kestrel/internal/ops"
	"github.com/kestrelsearch/kestrel/internal/rest"
	"github.com/kestrelsearch/kestrel/internal/scanner"
)

// Stats summarizes one ingestion run.
type Stats struct {
	FilesScanned      int
	FilesFailed       int
	ChunksCreated     int
	DocumentsUploaded int
	DocumentsFailed   int
	EmbedFailed       int
	Truncated         int
	EmbedCache        embed.Stats
}

// Processor runs the scan, chunk, embed, upload pipeline for a
// repository root.
type Processor struct {
	scanner  *scanner.Scanner
	chunker  chunk.Chunker
	embedder embed.Embedder
	ops      *ops.Operations
	cfg      config.Config
	logger   *slog.Logger
}

// NewProcessor wires the pipeline from its parts.
func NewProcessor(cfg config.Config, sc *scanner.Scanner, ch chunk.Chunker, em embed.Embedder, svc *ops.Operations, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		scanner:  sc,
		chunker:  ch,
		embedder: em,
		ops:      svc,
		cfg:      cfg,
		logger:   logger,
	}
}

// IngestRepository indexes every eligible file under root into
// indexName, tagged with the repository name. File-level failures are
// recorded in Stats and do not abort the run; the returned error is
// non-nil only when the pipeline itself fails.
func (p *Processor) IngestRepository(ctx context.Context, root, repository, indexName string) (*Stats, error) {
	g, gctx := errgroup.WithContext(ctx)

	// Scan under the group context so an upload failure also stops the
	// walk.
	files, err := p.scanner.Scan(gctx, root)
	if err != nil {
		return nil, err
	}

	stats := &Stats{}
	var mu sync.Mutex

	docs := make(chan *Document, p.cfg.Upload.BatchSize*2)

	// Chunking workers.
	workers := runtime.NumCPU()
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			for result := range files {
				if result.Err != nil {
					mu.Lock()
					stats.FilesFailed++
					mu.Unlock()
					p.logger.Warn("scan error", slog.String("error", result.Err.Error()))
					continue
				}
				fileDocs, err := p.ProcessFile(gctx, result.File, repository)
				mu.Lock()
				stats.FilesScanned++
				if err != nil {
					stats.FilesFailed++
				} else {
					stats.ChunksCreated += len(fileDocs)
				}
				mu.Unlock()
				if err != nil {
					p.logger.Warn("failed to process file",
						slog.String("path", result.File.Path),
						slog.String("error", err.Error()))
					continue
				}
				for _, doc := range fileDocs {
					select {
					case docs <- doc:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
			}
			return nil
		})
	}
	go func() {
		wg.Wait()
		close(docs)
	}()

	// Single uploader preserves batch pacing.
	g.Go(func() error {
		return p.uploadLoop(gctx, indexName, docs, stats, &mu)
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}

	if cached, ok := p.embedder.(*embed.CachedEmbedder); ok {
		stats.EmbedCache = cached.Stats()
	}
	p.logger.Info("ingestion complete",
		slog.String("repository", repository),
		slog.Int("files", stats.FilesScanned),
		slog.Int("chunks", stats.ChunksCreated),
		slog.Int("uploaded", stats.DocumentsUploaded),
		slog.Int("failed", stats.DocumentsFailed))
	return stats, nil
}

// ProcessFile reads, chunks, and converts one file into documents.
// Embeddings are attached later, per upload batch.
func (p *Processor) ProcessFile(ctx context.Context, file *scanner.FileInfo, repository string) ([]*Document, error) {
	content, err := os.ReadFile(file.AbsPath)
	if err != nil {
		return nil, kerrors.Wrap(err, kerrors.ErrCodeFilePermission, "reading "+file.Path)
	}

	chunks, err := p.chunker.Chunk(ctx, file.Path, content)
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(chunks))
	for i, c := range chunks {
		docs = append(docs, NewDocument(repository, file.Path, i, c, file.ModTime))
	}
	return docs, nil
}

// UploadFileDocuments embeds and uploads a prepared document set in
// one merge batch. Watch sync uses it for single-file updates so
// re-synced files keep their vectors.
func (p *Processor) UploadFileDocuments(ctx context.Context, indexName string, docs []*Document) (*ops.IndexBatchResult, error) {
	if len(docs) == 0 {
		return &ops.IndexBatchResult{}, nil
	}
	p.embedBatch(ctx, docs)
	payload := make([]ops.Document, len(docs))
	for i, doc := range docs {
		payload[i] = doc.ToMap()
	}
	return p.ops.UploadDocuments(ctx, indexName, payload, true)
}

// uploadLoop embeds and uploads documents in configured batches.
func (p *Processor) uploadLoop(ctx context.Context, indexName string, docs <-chan *Document, stats *Stats, mu *sync.Mutex) error {
	batchSize := p.cfg.Upload.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	pacer := rest.NewPacer(p.cfg.Upload.RateLimitDelay)

	batch := make([]*Document, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		embedFailed := p.embedBatch(ctx, batch)
		if embedFailed > 0 {
			mu.Lock()
			stats.EmbedFailed += embedFailed
			mu.Unlock()
		}
		if err := pacer.Wait(ctx); err != nil {
			return err
		}

		payload := make([]ops.Document, len(batch))
		truncated := 0
		for i, doc := range batch {
			payload[i] = doc.ToMap()
			if doc.Truncated {
				truncated++
			}
		}
		result, err := p.ops.UploadDocuments(ctx, indexName, payload, true)
		if err != nil {
			return err
		}
		mu.Lock()
		stats.DocumentsUploaded += result.Succeeded
		stats.DocumentsFailed += result.Failed
		stats.Truncated += truncated
		mu.Unlock()
		for _, failure := range result.FailedKeys {
			p.logger.Warn("document rejected",
				slog.String("key", failure.Key),
				slog.String("error", failure.Message))
		}
		batch = batch[:0]
		return nil
	}

	for doc := range docs {
		batch = append(batch, doc)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

// embedBatch attaches content vectors to a batch, chunked to the
// embedder's own batch limit. A provider failure leaves the affected
// documents without vectors; they still upload. Returns the number of
// documents that missed their embedding.
func (p *Processor) embedBatch(ctx context.Context, batch []*Document) int {
	if _, ok := p.embedder.(embed.NullEmbedder); ok {
		return 0
	}

	failed := 0
	for start := 0; start < len(batch); start += embed.DefaultBatchSize {
		end := start + embed.DefaultBatchSize
		if end > len(batch) {
			end = len(batch)
		}
		texts := make([]string, 0, end-start)
		for _, doc := range batch[start:end] {
			texts = append(texts, embedInput(doc))
		}
		vecs, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			failed += end - start
			p.logger.Warn("embedding failed, uploading batch without vectors",
				slog.Int("documents", end-start),
				slog.String("error", err.Error()))
			continue
		}
		for i, vec := range vecs {
			batch[start+i].ContentVector = vec
		}
	}
	return failed
}

// embedInput is the text embedded for a document: a compact header
// plus the chunk content, clamped by the embedder.
func embedInput(doc *Document) string {
	header := doc.FilePath
	if doc.FunctionName != "" {
		header += " " + doc.FunctionName
	} else if doc.ClassName != "" {
		header += " " + doc.ClassName
	}
	return header + "\n" + doc.Content
}
