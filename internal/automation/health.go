package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kestrelsearch/kestrel/internal/ops"
)

// quotaWarningPercent is the usage level at which a counter starts
// raising warnings.
const quotaWarningPercent = 80

// HealthMonitor rolls service counters, index stats, and indexer runs
// into one report.
type HealthMonitor struct {
	svc    *ops.Operations
	logger *slog.Logger
}

// NewHealthMonitor creates a HealthMonitor.
func NewHealthMonitor(svc *ops.Operations, logger *slog.Logger) *HealthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthMonitor{svc: svc, logger: logger}
}

// QuotaUsage reports one service counter against its quota.
type QuotaUsage struct {
	Name    string
	Usage   int64
	Quota   int64 // 0 when the service reports no quota
	Percent float64
}

// IndexReport is the per-index slice of a health report.
type IndexReport struct {
	Name          string
	DocumentCount int64
	StorageSize   int64
}

// IndexerReport is the per-indexer slice of a health report.
type IndexerReport struct {
	Name       string
	LastStatus string
	LastRun    string
	LastError  string
}

// ServiceHealth is the full rollup. Status is healthy, warning,
// critical, or error when the service itself is unreachable.
type ServiceHealth struct {
	Status   string
	Quotas   []QuotaUsage
	Indexes  []IndexReport
	Indexers []IndexerReport
	Issues   []HealthIssue
}

// CheckService gathers counters, index stats, and indexer runs, and
// classifies overall status by the worst finding.
func (h *HealthMonitor) CheckService(ctx context.Context) (*ServiceHealth, error) {
	health := &ServiceHealth{Status: "healthy"}

	stats, err := h.svc.GetServiceStats(ctx)
	if err != nil {
		health.Status = "error"
		health.Issues = append(health.Issues, HealthIssue{
			Type:     "service_unreachable",
			Message:  err.Error(),
			Severity: "critical",
		})
		return health, nil
	}
	h.collectQuotas(stats, health)
	h.collectIndexes(ctx, health)
	h.collectIndexers(ctx, health)

	for _, issue := range health.Issues {
		if issue.Severity == "critical" {
			health.Status = "critical"
			break
		}
		health.Status = "warning"
	}
	return health, nil
}

func (h *HealthMonitor) collectQuotas(stats *ops.ServiceStats, health *ServiceHealth) {
	for name, counter := range stats.Counters {
		usage := QuotaUsage{Name: name, Usage: counter.Usage}
		if counter.Quota != nil && *counter.Quota > 0 {
			usage.Quota = *counter.Quota
			usage.Percent = float64(counter.Usage) / float64(*counter.Quota) * 100
			switch {
			case usage.Percent >= 95:
				health.Issues = append(health.Issues, HealthIssue{
					Type:     "quota_exhausted",
					Message:  fmt.Sprintf("counter %q at %.0f%% of quota", name, usage.Percent),
					Severity: "critical",
				})
			case usage.Percent >= quotaWarningPercent:
				health.Issues = append(health.Issues, HealthIssue{
					Type:     "quota_pressure",
					Message:  fmt.Sprintf("counter %q at %.0f%% of quota", name, usage.Percent),
					Severity: "warning",
				})
			}
		}
		health.Quotas = append(health.Quotas, usage)
	}
}

func (h *HealthMonitor) collectIndexes(ctx context.Context, health *ServiceHealth) {
	indexes, err := h.svc.ListIndexes(ctx)
	if err != nil {
		health.Issues = append(health.Issues, HealthIssue{
			Type:     "index_list_failed",
			Message:  err.Error(),
			Severity: "warning",
		})
		return
	}
	for _, ix := range indexes {
		report := IndexReport{Name: ix.Name}
		if stats, err := h.svc.GetIndexStats(ctx, ix.Name); err == nil {
			report.DocumentCount = stats.DocumentCount
			report.StorageSize = stats.StorageSize
		}
		health.Indexes = append(health.Indexes, report)
	}
}

func (h *HealthMonitor) collectIndexers(ctx context.Context, health *ServiceHealth) {
	indexers, err := h.svc.ListIndexers(ctx)
	if err != nil {
		health.Issues = append(health.Issues, HealthIssue{
			Type:     "indexer_list_failed",
			Message:  err.Error(),
			Severity: "warning",
		})
		return
	}
	for _, indexer := range indexers {
		report := IndexerReport{Name: indexer.Name}
		status, err := h.svc.GetIndexerStatus(ctx, indexer.Name)
		if err != nil {
			report.LastStatus = "unknown"
			health.Indexers = append(health.Indexers, report)
			continue
		}
		if last := status.LastResult; last != nil {
			report.LastStatus = last.Status
			report.LastRun = last.StartTime
			report.LastError = last.ErrorMessage
			if last.Status != ops.IndexerStatusSuccess && last.IsTerminal() {
				health.Issues = append(health.Issues, HealthIssue{
					Type:     "indexer_failed",
					Message:  fmt.Sprintf("indexer %q last run ended %s", indexer.Name, last.Status),
					Severity: "warning",
				})
			}
			if stale(last.StartTime, 7*24*time.Hour) {
				health.Issues = append(health.Issues, HealthIssue{
					Type:     "indexer_stale",
					Message:  fmt.Sprintf("indexer %q has not run in over a week", indexer.Name),
					Severity: "warning",
				})
			}
		}
		health.Indexers = append(health.Indexers, report)
	}
}

func stale(startTime string, maxAge time.Duration) bool {
	if startTime == "" {
		return false
	}
	start, err := time.Parse(time.RFC3339, startTime)
	if err != nil {
		return false
	}
	return time.Since(start) > maxAge
}
