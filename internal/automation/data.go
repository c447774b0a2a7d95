// Package automation composes the service operations into the
// higher-level maintenance workflows: bulk data movement, indexer
// pipelines, reindexing, schema backup, and health rollups.
package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelsearch/kestrel/internal/ops"
)

const (
	// MaxBatchDocuments is the service limit per batch submission.
	MaxBatchDocuments = 1000

	// maxBatchBytes splits batches whose serialization would exceed
	// the service's request limit.
	maxBatchBytes = 1 << 20

	// maxReportedFailures bounds the failed-document list in reports.
	maxReportedFailures = 100

	// exportPageDelay spaces export pages to avoid saturating the
	// service.
	exportPageDelay = 50 * time.Millisecond

	// defaultPageSize is the pagination unit for cleanup, export, and
	// reindex streams.
	defaultPageSize = 1000
)

// UploadReport summarizes a bulk upload.
type UploadReport struct {
	TotalProcessed     int
	Succeeded          int
	Failed             int
	Elapsed            time.Duration
	DocumentsPerSecond float64
	FailedDocuments    []ops.FailedKey
}

// DataAutomation runs bulk document workflows against one service.
type DataAutomation struct {
	svc    *ops.Operations
	logger *slog.Logger
}

// NewDataAutomation creates a DataAutomation.
func NewDataAutomation(svc *ops.Operations, logger *slog.Logger) *DataAutomation {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataAutomation{svc: svc, logger: logger}
}

// BulkUpload streams documents into index in batches of at most
// batchSize, splitting early when a batch's serialization approaches
// the request size limit. Per-item failures are collected, bounded to
// the first 100; they do not abort the upload.
func (d *DataAutomation) BulkUpload(ctx context.Context, index string, docs <-chan ops.Document, batchSize int, merge bool, progress func(processed int)) (*UploadReport, error) {
	if batchSize <= 0 || batchSize > MaxBatchDocuments {
		batchSize = MaxBatchDocuments
	}

	report := &UploadReport{}
	start := time.Now()

	batch := make([]ops.Document, 0, batchSize)
	batchBytes := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		result, err := d.svc.UploadDocuments(ctx, index, batch, merge)
		if err != nil {
			return err
		}
		report.TotalProcessed += len(batch)
		report.Succeeded += result.Succeeded
		report.Failed += result.Failed
		for _, fk := range result.FailedKeys {
			if len(report.FailedDocuments) < maxReportedFailures {
				report.FailedDocuments = append(report.FailedDocuments, fk)
			}
		}
		if progress != nil {
			progress(report.TotalProcessed)
		}
		batch = batch[:0]
		batchBytes = 0
		return nil
	}

	for doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			report.Failed++
			continue
		}
		if len(batch) > 0 && batchBytes+len(raw) > maxBatchBytes {
			if err := flush(); err != nil {
				return report, err
			}
		}
		batch = append(batch, doc)
		batchBytes += len(raw)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return report, err
			}
		}
	}
	if err := flush(); err != nil {
		return report, err
	}

	report.Elapsed = time.Since(start)
	if secs := report.Elapsed.Seconds(); secs > 0 {
		report.DocumentsPerSecond = float64(report.TotalProcessed) / secs
	}
	d.logger.Info("bulk upload finished",
		slog.String("index", index),
		slog.Int("processed", report.TotalProcessed),
		slog.Int("failed", report.Failed))
	return report, nil
}

// CleanupOldDocuments deletes documents whose dateField is older than
// daysOld. With dryRun it only counts. Returns the affected count.
func (d *DataAutomation) CleanupOldDocuments(ctx context.Context, index, dateField string, daysOld int, dryRun bool) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld).Format(time.RFC3339)
	filter := fmt.Sprintf("%s lt %s", dateField, cutoff)

	total := 0
	skip := 0
	for {
		resp, err := d.svc.Search(ctx, index, &ops.SearchRequest{
			Search: "*",
			Filter: filter,
			Select: "id",
			Top:    defaultPageSize,
			Skip:   skip,
		})
		if err != nil {
			return total, err
		}
		if len(resp.Results) == 0 {
			return total, nil
		}
		total += len(resp.Results)
		if dryRun {
			if len(resp.Results) < defaultPageSize {
				return total, nil
			}
			// Counting only; page past without deleting.
			skip += defaultPageSize
			continue
		}

		// Deletion shrinks the result set, so the next page starts at
		// zero again.
		keys := make([]string, 0, len(resp.Results))
		for _, r := range resp.Results {
			keys = append(keys, r.Document.Key())
		}
		if _, err := d.svc.DeleteDocumentsByKeys(ctx, index, keys); err != nil {
			return total, err
		}
		if len(resp.Results) < defaultPageSize {
			return total, nil
		}
	}
}

// ReindexDocuments copies documents from source to target, optionally
// transforming each one. Pagination is ordered by id, so a rerun over
// unchanged source content copies in the same order. Returns the
// number of documents copied.
func (d *DataAutomation) ReindexDocuments(ctx context.Context, source, target string, transform func(ops.Document) ops.Document, filter string) (int, error) {
	copied := 0
	for skip := 0; ; skip += defaultPageSize {
		resp, err := d.svc.Search(ctx, source, &ops.SearchRequest{
			Search:  "*",
			Filter:  filter,
			OrderBy: "id asc",
			Top:     defaultPageSize,
			Skip:    skip,
		})
		if err != nil {
			return copied, err
		}
		if len(resp.Results) == 0 {
			return copied, nil
		}

		page := make([]ops.Document, 0, len(resp.Results))
		for _, r := range resp.Results {
			doc := r.Document
			if transform != nil {
				doc = transform(doc)
			}
			page = append(page, doc)
		}
		result, err := d.svc.UploadDocuments(ctx, target, page, true)
		if err != nil {
			return copied, err
		}
		copied += result.Succeeded

		if len(resp.Results) < defaultPageSize {
			return copied, nil
		}
	}
}

// FieldCoverage reports how a sampled field is populated.
type FieldCoverage struct {
	Present int
	Empty   int
	Missing int
}

// VerifyReport is the result of a document sample check.
type VerifyReport struct {
	Sampled  int
	Coverage map[string]*FieldCoverage
}

// VerifyDocuments samples up to sampleSize documents and reports
// missing and empty values for checkFields.
func (d *DataAutomation) VerifyDocuments(ctx context.Context, index string, sampleSize int, checkFields []string) (*VerifyReport, error) {
	if sampleSize <= 0 {
		sampleSize = 100
	}
	resp, err := d.svc.Search(ctx, index, &ops.SearchRequest{
		Search: "*",
		Top:    sampleSize,
	})
	if err != nil {
		return nil, err
	}

	report := &VerifyReport{
		Sampled:  len(resp.Results),
		Coverage: make(map[string]*FieldCoverage, len(checkFields)),
	}
	for _, field := range checkFields {
		report.Coverage[field] = &FieldCoverage{}
	}
	for _, r := range resp.Results {
		for _, field := range checkFields {
			cov := report.Coverage[field]
			value, ok := r.Document[field]
			switch {
			case !ok || value == nil:
				cov.Missing++
			case isEmptyValue(value):
				cov.Empty++
			default:
				cov.Present++
			}
		}
	}
	return report, nil
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	return false
}

// ExportDocumentsIterator streams documents matching filter, selecting
// selectFields when non-empty. Pages are spaced by a small delay. The
// channel closes at end of data or on error; a trailing error is
// reported through the returned error channel.
func (d *DataAutomation) ExportDocumentsIterator(ctx context.Context, index, filter, selectFields string) (<-chan ops.Document, <-chan error) {
	out := make(chan ops.Document, defaultPageSize)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)
		for skip := 0; ; skip += defaultPageSize {
			resp, err := d.svc.Search(ctx, index, &ops.SearchRequest{
				Search:  "*",
				Filter:  filter,
				Select:  selectFields,
				OrderBy: "id asc",
				Top:     defaultPageSize,
				Skip:    skip,
			})
			if err != nil {
				errs <- err
				return
			}
			for _, r := range resp.Results {
				select {
				case out <- r.Document:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			if len(resp.Results) < defaultPageSize {
				return
			}
			select {
			case <-time.After(exportPageDelay):
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return out, errs
}

// ExportDocuments materializes the export iterator.
func (d *DataAutomation) ExportDocuments(ctx context.Context, index, filter, selectFields string) ([]ops.Document, error) {
	out, errs := d.ExportDocumentsIterator(ctx, index, filter, selectFields)
	var docs []ops.Document
	for doc := range out {
		docs = append(docs, doc)
	}
	if err := <-errs; err != nil {
		return docs, err
	}
	return docs, nil
}
