package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/kestrelsearch/kestrel/internal/config"
	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
	"github.com/kestrelsearch/kestrel/internal/ingest"
	"github.com/kestrelsearch/kestrel/internal/ops"
	"github.com/kestrelsearch/kestrel/internal/schema"
)

// Reindex methods.
const (
	MethodDropRebuild = "drop-rebuild"
	MethodClear       = "clear"
	MethodRepository  = "repository"
)

// backupLockName is the lock file guarding a backup directory against
// concurrent backup/restore runs.
const backupLockName = ".kestrel-backup.lock"

// defaultStaleThresholdDays is the freshness bound applied when a
// reindex analysis is run without an explicit threshold.
const defaultStaleThresholdDays = 7

// ReindexAutomation rebuilds, clears, and repairs indexes.
type ReindexAutomation struct {
	svc       *ops.Operations
	processor *ingest.Processor
	cfg       config.Config
	logger    *slog.Logger
}

// NewReindexAutomation creates a ReindexAutomation. The processor is
// only needed for the repository method and may be nil otherwise.
func NewReindexAutomation(svc *ops.Operations, processor *ingest.Processor, cfg config.Config, logger *slog.Logger) *ReindexAutomation {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReindexAutomation{svc: svc, processor: processor, cfg: cfg, logger: logger}
}

// HealthIssue is one finding of a health check.
type HealthIssue struct {
	Type     string
	Message  string
	Severity string // warning, critical
}

// IndexHealth is the composed health picture of one index.
type IndexHealth struct {
	IndexName     string
	Exists        bool
	DocumentCount int64
	StorageSize   int64
	FieldCount    int
	Issues        []HealthIssue
	Warnings      []HealthIssue
}

// GetIndexHealth composes schema presence, field coverage, vector
// dimensions, and stats into issues and warnings.
func (r *ReindexAutomation) GetIndexHealth(ctx context.Context, indexName string) (*IndexHealth, error) {
	health := &IndexHealth{IndexName: indexName}

	ix, err := r.svc.GetIndex(ctx, indexName)
	if err != nil {
		if kerrors.IsNotFound(err) {
			health.Issues = append(health.Issues, HealthIssue{
				Type:     "missing_index",
				Message:  fmt.Sprintf("index %q does not exist", indexName),
				Severity: "critical",
			})
			return health, nil
		}
		return nil, err
	}
	health.Exists = true
	health.FieldCount = len(ix.Fields)

	required := map[string]bool{"id": false, "content": false, "repository": false, "file_path": false}
	for _, f := range ix.Fields {
		if _, ok := required[f.Name]; ok {
			required[f.Name] = true
		}
		if f.IsVector() && r.cfg.Embedding.Dimensions > 0 && f.Dimensions != r.cfg.Embedding.Dimensions {
			health.Issues = append(health.Issues, HealthIssue{
				Type: "dimension_mismatch",
				Message: fmt.Sprintf("field %q has %d dimensions, config expects %d",
					f.Name, f.Dimensions, r.cfg.Embedding.Dimensions),
				Severity: "critical",
			})
		}
	}
	for name, present := range required {
		if !present {
			health.Issues = append(health.Issues, HealthIssue{
				Type:     "missing_field",
				Message:  fmt.Sprintf("required field %q is absent", name),
				Severity: "critical",
			})
		}
	}

	stats, err := r.svc.GetIndexStats(ctx, indexName)
	if err != nil {
		health.Warnings = append(health.Warnings, HealthIssue{
			Type:     "stats_unavailable",
			Message:  err.Error(),
			Severity: "warning",
		})
		return health, nil
	}
	health.DocumentCount = stats.DocumentCount
	health.StorageSize = stats.StorageSize
	if stats.DocumentCount == 0 {
		health.Warnings = append(health.Warnings, HealthIssue{
			Type:     "empty_index",
			Message:  "index holds no documents",
			Severity: "warning",
		})
	}
	return health, nil
}

// ReindexRequest parameterizes PerformReindex.
type ReindexRequest struct {
	Method     string
	IndexName  string
	SchemaPath string // drop-rebuild: recreate from this backup instead of the live schema
	Filter     string // clear: documents to remove
	RepoRoot   string // repository: tree to ingest
	Repository string // repository: tag for ingested documents
	ClearFirst bool   // repository: clear Filter before ingesting
	DryRun     bool
}

// ReindexResult reports what a reindex did (or would do).
type ReindexResult struct {
	Method           string
	IndexName        string
	DryRun           bool
	PlannedAction    string
	DocumentsCleared int
	IngestStats      *ingest.Stats
}

// PerformReindex executes one of the reindex methods. With DryRun it
// validates and reports the intended action without side effects.
func (r *ReindexAutomation) PerformReindex(ctx context.Context, req ReindexRequest) (*ReindexResult, error) {
	result := &ReindexResult{Method: req.Method, IndexName: req.IndexName, DryRun: req.DryRun}

	switch req.Method {
	case MethodDropRebuild:
		return r.dropRebuild(ctx, req, result)
	case MethodClear:
		if req.Filter == "" {
			return nil, kerrors.ValidationError("clear reindex requires a filter", nil)
		}
		result.PlannedAction = fmt.Sprintf("delete documents matching %q from %q", req.Filter, req.IndexName)
		if req.DryRun {
			return result, nil
		}
		cleared, err := r.clearByFilter(ctx, req.IndexName, req.Filter)
		result.DocumentsCleared = cleared
		return result, err
	case MethodRepository:
		if r.processor == nil {
			return nil, kerrors.InternalError("repository reindex requires an ingestion processor", nil)
		}
		if req.RepoRoot == "" || req.Repository == "" {
			return nil, kerrors.ValidationError("repository reindex requires a repo root and repository name", nil)
		}
		result.PlannedAction = fmt.Sprintf("ingest %q into %q as repository %q", req.RepoRoot, req.IndexName, req.Repository)
		if req.DryRun {
			return result, nil
		}
		if req.ClearFirst && req.Filter != "" {
			cleared, err := r.clearByFilter(ctx, req.IndexName, req.Filter)
			if err != nil {
				return result, err
			}
			result.DocumentsCleared = cleared
		}
		stats, err := r.processor.IngestRepository(ctx, req.RepoRoot, req.Repository, req.IndexName)
		result.IngestStats = stats
		return result, err
	default:
		return nil, kerrors.ValidationError("unknown reindex method: "+req.Method, nil)
	}
}

func (r *ReindexAutomation) dropRebuild(ctx context.Context, req ReindexRequest, result *ReindexResult) (*ReindexResult, error) {
	var ix *schema.Index
	if req.SchemaPath != "" {
		loaded, _, err := readBackup(req.SchemaPath)
		if err != nil {
			return nil, err
		}
		ix = loaded
	} else {
		live, err := r.svc.GetIndex(ctx, req.IndexName)
		if err != nil {
			return nil, err
		}
		ix = live
	}
	ix.StripServiceMetadata()
	ix.Name = req.IndexName

	result.PlannedAction = fmt.Sprintf("delete index %q and recreate it with %d fields", req.IndexName, len(ix.Fields))
	if req.DryRun {
		return result, nil
	}

	if err := r.svc.DeleteIndex(ctx, req.IndexName); err != nil && !kerrors.IsNotFound(err) {
		return result, err
	}
	if _, err := r.svc.CreateOrUpdateIndex(ctx, ix); err != nil {
		return result, err
	}
	r.logger.Info("index rebuilt", slog.String("index", req.IndexName))
	return result, nil
}

// clearByFilter pages id-only results for the filter and deletes them
// in service-maximum batches.
func (r *ReindexAutomation) clearByFilter(ctx context.Context, indexName, filter string) (int, error) {
	total := 0
	for {
		resp, err := r.svc.Search(ctx, indexName, &ops.SearchRequest{
			Search: "*",
			Filter: filter,
			Select: "id",
			Top:    MaxBatchDocuments,
		})
		if err != nil {
			return total, err
		}
		if len(resp.Results) == 0 {
			return total, nil
		}
		keys := make([]string, 0, len(resp.Results))
		for _, hit := range resp.Results {
			keys = append(keys, hit.Document.Key())
		}
		if _, err := r.svc.DeleteDocumentsByKeys(ctx, indexName, keys); err != nil {
			return total, err
		}
		total += len(keys)
		if len(resp.Results) < MaxBatchDocuments {
			return total, nil
		}
	}
}

// backupMetadata is the header stored alongside a schema backup.
type backupMetadata struct {
	Timestamp     string `json:"timestamp"`
	IndexName     string `json:"index_name"`
	DocumentCount int64  `json:"document_count"`
}

// backupFile is the on-disk backup layout: the index definition plus
// the metadata header.
type backupFile struct {
	schema.Index
	Metadata backupMetadata `json:"_backup_metadata"`
}

// Backup writes the live schema of indexName into dir and returns the
// file path. The write is atomic (temp file + rename) and the
// directory is locked against concurrent backup/restore.
func (r *ReindexAutomation) Backup(ctx context.Context, indexName, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", kerrors.New(kerrors.ErrCodeBackupWrite, "creating backup directory", err)
	}
	lock := flock.New(filepath.Join(dir, backupLockName))
	if err := lock.Lock(); err != nil {
		return "", kerrors.New(kerrors.ErrCodeBackupWrite, "locking backup directory", err)
	}
	defer func() { _ = lock.Unlock() }()

	ix, err := r.svc.GetIndex(ctx, indexName)
	if err != nil {
		return "", err
	}
	count, err := r.svc.CountDocuments(ctx, indexName)
	if err != nil {
		count = -1
	}

	payload := backupFile{
		Index: *ix,
		Metadata: backupMetadata{
			Timestamp:     time.Now().UTC().Format(time.RFC3339),
			IndexName:     indexName,
			DocumentCount: count,
		},
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", kerrors.InternalError("encoding backup", err)
	}

	name := fmt.Sprintf("%s_backup_%s.json", indexName, time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	path := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return "", kerrors.New(kerrors.ErrCodeBackupWrite, "creating backup temp file", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", kerrors.New(kerrors.ErrCodeBackupWrite, "writing backup", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", kerrors.New(kerrors.ErrCodeBackupWrite, "closing backup temp file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", kerrors.New(kerrors.ErrCodeBackupWrite, "publishing backup", err)
	}

	r.logger.Info("schema backup written",
		slog.String("index", indexName),
		slog.String("path", path))
	return path, nil
}

// Restore deletes the index named in the backup (best-effort) and
// recreates it from the file.
func (r *ReindexAutomation) Restore(ctx context.Context, path string) error {
	lock := flock.New(filepath.Join(filepath.Dir(path), backupLockName))
	if err := lock.Lock(); err != nil {
		return kerrors.New(kerrors.ErrCodeBackupWrite, "locking backup directory", err)
	}
	defer func() { _ = lock.Unlock() }()

	ix, meta, err := readBackup(path)
	if err != nil {
		return err
	}
	if err := r.svc.DeleteIndex(ctx, ix.Name); err != nil && !kerrors.IsNotFound(err) {
		r.logger.Warn("could not delete index before restore",
			slog.String("index", ix.Name),
			slog.String("error", err.Error()))
	}
	if _, err := r.svc.CreateOrUpdateIndex(ctx, ix); err != nil {
		return err
	}
	r.logger.Info("index restored from backup",
		slog.String("index", ix.Name),
		slog.String("backed_up_at", meta.Timestamp))
	return nil
}

func readBackup(path string) (*schema.Index, *backupMetadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, kerrors.New(kerrors.ErrCodeFileNotFound, "reading backup file", err)
	}
	var payload backupFile
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, kerrors.ValidationError("parsing backup file", err)
	}
	if payload.Name == "" || len(payload.Fields) == 0 {
		return nil, nil, kerrors.ValidationError("backup file holds no index definition", nil)
	}
	ix := payload.Index
	ix.StripServiceMetadata()
	return &ix, &payload.Metadata, nil
}

// Recommendation is one entry of a reindex analysis, ordered by
// priority.
type Recommendation struct {
	Priority int // 1 is most urgent
	Action   string
	Reason   string
}

// AnalyzeReindexNeed composes health signals into a priority-ordered
// recommendation list. Documents older than thresholdDays count as
// stale; zero or negative selects the default.
func (r *ReindexAutomation) AnalyzeReindexNeed(ctx context.Context, indexName string, thresholdDays int) ([]Recommendation, error) {
	if thresholdDays <= 0 {
		thresholdDays = defaultStaleThresholdDays
	}
	health, err := r.GetIndexHealth(ctx, indexName)
	if err != nil {
		return nil, err
	}

	var recs []Recommendation
	if !health.Exists {
		recs = append(recs, Recommendation{
			Priority: 1,
			Action:   "create",
			Reason:   "index does not exist; create it and run a full ingestion",
		})
		return recs, nil
	}
	for _, issue := range health.Issues {
		recs = append(recs, Recommendation{
			Priority: 1,
			Action:   MethodDropRebuild,
			Reason:   issue.Message,
		})
	}
	for _, warning := range health.Warnings {
		if warning.Type == "empty_index" {
			recs = append(recs, Recommendation{
				Priority: 2,
				Action:   MethodRepository,
				Reason:   "index is empty; ingest a repository",
			})
			continue
		}
		recs = append(recs, Recommendation{
			Priority: 3,
			Action:   "inspect",
			Reason:   warning.Message,
		})
	}
	if stale, age := r.documentStaleness(ctx, indexName, thresholdDays); stale {
		recs = append(recs, Recommendation{
			Priority: 2,
			Action:   MethodRepository,
			Reason: fmt.Sprintf("newest document is %dd old, over the %d-day freshness threshold",
				int(age.Hours()/24), thresholdDays),
		})
	}
	if len(recs) == 0 {
		recs = append(recs, Recommendation{
			Priority: 4,
			Action:   "none",
			Reason:   "index is healthy",
		})
	}
	return recs, nil
}

// documentStaleness reads the newest last_modified value. Errors and
// empty indexes report not stale; those surface through health checks
// instead.
func (r *ReindexAutomation) documentStaleness(ctx context.Context, indexName string, thresholdDays int) (bool, time.Duration) {
	resp, err := r.svc.Search(ctx, indexName, &ops.SearchRequest{
		Search:  "*",
		Select:  "last_modified",
		OrderBy: "last_modified desc",
		Top:     1,
	})
	if err != nil || len(resp.Results) == 0 {
		return false, 0
	}
	raw, _ := resp.Results[0].Document["last_modified"].(string)
	newest, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return false, 0
	}
	age := time.Since(newest)
	return age > time.Duration(thresholdDays)*24*time.Hour, age
}
