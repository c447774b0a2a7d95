package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/kestrelsearch/kestrel/internal/ingest"
	"github.com/kestrelsearch/kestrel/internal/ops"
	"github.com/kestrelsearch/kestrel/internal/query"
	"github.com/kestrelsearch/kestrel/internal/scanner"
)

// deletePageSize bounds the id pages fetched when removing a file's
// documents.
const deletePageSize = 1000

// Syncer applies change batches to the index: changed files are
// re-chunked and re-uploaded, deleted files have their documents
// removed. A changed file's old documents are removed first so chunk
// count shrinkage leaves no strays.
type Syncer struct {
	processor  *ingest.Processor
	scanner    *scanner.Scanner
	svc        *ops.Operations
	repository string
	indexName  string
	logger     *slog.Logger
}

// NewSyncer creates a Syncer for one repository and index.
func NewSyncer(processor *ingest.Processor, sc *scanner.Scanner, svc *ops.Operations, repository, indexName string, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		processor:  processor,
		scanner:    sc,
		svc:        svc,
		repository: repository,
		indexName:  indexName,
		logger:     logger,
	}
}

// Run consumes batches from the watcher until ctx is canceled.
func (s *Syncer) Run(ctx context.Context, w *Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch := <-w.Batches():
			s.Apply(ctx, w.Root(), batch)
		}
	}
}

// Apply processes one debounced batch. Per-file failures are logged
// and do not stop the batch.
func (s *Syncer) Apply(ctx context.Context, absRoot string, batch []Event) {
	for _, ev := range batch {
		if filepath.Base(ev.Path) == ".gitignore" {
			s.scanner.InvalidateGitignoreCache()
			continue
		}

		var err error
		switch ev.Op {
		case OpDelete:
			err = s.removeFile(ctx, ev.Path)
		default:
			err = s.updateFile(ctx, absRoot, ev.Path)
		}
		if err != nil {
			s.logger.Warn("sync failed",
				slog.String("path", ev.Path),
				slog.String("op", ev.Op.String()),
				slog.String("error", err.Error()))
		}
	}
}

// updateFile re-ingests one file. Files the scanner rules reject are
// treated as deletions so a newly gitignored file drops out of the
// index.
func (s *Syncer) updateFile(ctx context.Context, absRoot, relPath string) error {
	file, ok := s.scanner.Eligible(absRoot, relPath)
	if !ok {
		return s.removeFile(ctx, relPath)
	}

	if err := s.removeFile(ctx, relPath); err != nil {
		return err
	}
	docs, err := s.processor.ProcessFile(ctx, file, s.repository)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	result, err := s.processor.UploadFileDocuments(ctx, s.indexName, docs)
	if err != nil {
		return err
	}
	s.logger.Debug("file synced",
		slog.String("path", relPath),
		slog.Int("documents", result.Succeeded))
	return nil
}

// removeFile deletes every document of one file.
func (s *Syncer) removeFile(ctx context.Context, relPath string) error {
	filter := query.Render(query.And(
		query.Eq("repository", s.repository),
		query.Eq("file_path", strings.TrimPrefix(relPath, "./")),
	))
	for {
		resp, err := s.svc.Search(ctx, s.indexName, &ops.SearchRequest{
			Search: "*",
			Filter: filter,
			Select: "id",
			Top:    deletePageSize,
		})
		if err != nil {
			return err
		}
		if len(resp.Results) == 0 {
			return nil
		}
		keys := make([]string, 0, len(resp.Results))
		for _, r := range resp.Results {
			keys = append(keys, r.Document.Key())
		}
		if _, err := s.svc.DeleteDocumentsByKeys(ctx, s.indexName, keys); err != nil {
			return err
		}
		if len(resp.Results) < deletePageSize {
			return nil
		}
	}
}
