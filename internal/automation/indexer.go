package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	kerrors "github.com/kestrelsearch/kestrel/internal/errors"
	"github.com/kestrelsearch/kestrel/internal/ops"
)

// Health classification thresholds, in percent.
const (
	healthyThreshold = 90
	warningThreshold = 70
)

// scheduleSampleSize is how many recent executions feed schedule
// optimization.
const scheduleSampleSize = 20

// IndexerAutomation manages pull-model indexer pipelines.
type IndexerAutomation struct {
	svc    *ops.Operations
	logger *slog.Logger
}

// NewIndexerAutomation creates an IndexerAutomation.
func NewIndexerAutomation(svc *ops.Operations, logger *slog.Logger) *IndexerAutomation {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexerAutomation{svc: svc, logger: logger}
}

// PipelineParams configures CreateBlobIndexerPipeline.
type PipelineParams struct {
	Prefix           string
	IndexName        string
	ConnectionString string
	Container        string
	ScheduleHours    int
	// Skills, when non-empty, attaches a skillset to the indexer.
	Skills []json.RawMessage
}

// PipelineResult names the resources a pipeline creation produced.
type PipelineResult struct {
	DataSourceName string
	SkillsetName   string
	IndexerName    string
}

// CreateBlobIndexerPipeline creates datasource, optional skillset, and
// indexer, attaches an hourly schedule, and triggers an immediate run.
// On any failure the resources created by this call are deleted before
// the error is returned; rollback failures are aggregated onto it.
func (a *IndexerAutomation) CreateBlobIndexerPipeline(ctx context.Context, p PipelineParams) (*PipelineResult, error) {
	if p.Prefix == "" || p.IndexName == "" {
		return nil, kerrors.ValidationError("pipeline prefix and index name are required", nil)
	}
	if p.ScheduleHours <= 0 {
		p.ScheduleHours = 24
	}

	result := &PipelineResult{
		DataSourceName: p.Prefix + "-datasource",
		IndexerName:    p.Prefix + "-indexer",
	}
	var cleanups []func(context.Context) error

	rollback := func(cause error) error {
		errs := multierror.Append(nil, cause)
		for i := len(cleanups) - 1; i >= 0; i-- {
			if err := cleanups[i](ctx); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("rollback: %w", err))
			}
		}
		a.logger.Error("pipeline creation rolled back",
			slog.String("prefix", p.Prefix),
			slog.String("error", cause.Error()))
		return errs.ErrorOrNil()
	}

	credentials, _ := json.Marshal(map[string]string{"connectionString": p.ConnectionString})
	_, err := a.svc.CreateOrUpdateDataSource(ctx, &ops.DataSource{
		Name:        result.DataSourceName,
		Type:        "azureblob",
		Credentials: credentials,
		Container:   &ops.DataContainer{Name: p.Container},
	})
	if err != nil {
		return nil, rollback(err)
	}
	cleanups = append(cleanups, func(ctx context.Context) error {
		return a.svc.DeleteDataSource(ctx, result.DataSourceName)
	})

	if len(p.Skills) > 0 {
		result.SkillsetName = p.Prefix + "-skillset"
		_, err := a.svc.CreateOrUpdateSkillset(ctx, &ops.Skillset{
			Name:   result.SkillsetName,
			Skills: p.Skills,
		})
		if err != nil {
			return nil, rollback(err)
		}
		cleanups = append(cleanups, func(ctx context.Context) error {
			return a.svc.DeleteSkillset(ctx, result.SkillsetName)
		})
	}

	indexer := &ops.Indexer{
		Name:            result.IndexerName,
		DataSourceName:  result.DataSourceName,
		TargetIndexName: p.IndexName,
		SkillsetName:    result.SkillsetName,
		Schedule:        &ops.IndexerSchedule{Interval: fmt.Sprintf("PT%dH", p.ScheduleHours)},
		Parameters: &ops.IndexerParams{
			MaxFailedItems:         0,
			MaxFailedItemsPerBatch: 0,
			Configuration:          &ops.IndexerParamsConf{ParsingMode: "default"},
		},
	}
	if _, err := a.svc.CreateOrUpdateIndexer(ctx, indexer); err != nil {
		return nil, rollback(err)
	}
	cleanups = append(cleanups, func(ctx context.Context) error {
		return a.svc.DeleteIndexer(ctx, result.IndexerName)
	})

	if err := a.svc.RunIndexer(ctx, result.IndexerName); err != nil {
		return nil, rollback(err)
	}

	a.logger.Info("indexer pipeline created",
		slog.String("indexer", result.IndexerName),
		slog.String("index", p.IndexName))
	return result, nil
}

// IndexerHealth is the outcome of a health window scan.
type IndexerHealth struct {
	Status      string // healthy, warning, critical
	Score       float64
	Executions  int
	Successes   int
	Failures    int
	LastError   string
	WindowHours int
}

// MonitorIndexerHealth scores the executions within the lookback
// window: successes / total × 100, classified healthy at 90 and
// warning at 70.
func (a *IndexerAutomation) MonitorIndexerHealth(ctx context.Context, name string, lookback time.Duration) (*IndexerHealth, error) {
	status, err := a.svc.GetIndexerStatus(ctx, name)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-lookback)
	health := &IndexerHealth{WindowHours: int(lookback.Hours())}
	for _, exec := range status.ExecutionHistory {
		start, err := time.Parse(time.RFC3339, exec.StartTime)
		if err != nil || start.Before(cutoff) {
			continue
		}
		health.Executions++
		if exec.Status == ops.IndexerStatusSuccess {
			health.Successes++
		} else {
			health.Failures++
			if health.LastError == "" && exec.ErrorMessage != "" {
				health.LastError = exec.ErrorMessage
			}
		}
	}

	if health.Executions == 0 {
		health.Status = "warning"
		return health, nil
	}
	health.Score = float64(health.Successes) / float64(health.Executions) * 100
	switch {
	case health.Score >= healthyThreshold:
		health.Status = "healthy"
	case health.Score >= warningThreshold:
		health.Status = "warning"
	default:
		health.Status = "critical"
	}
	return health, nil
}

// ScheduleRecommendation is the outcome of schedule optimization.
type ScheduleRecommendation struct {
	Action          string // keep, increase_interval, decrease_frequency, increase_frequency
	Reason          string
	CurrentInterval time.Duration
	AvgExecution    time.Duration
	AvgItems        float64
}

// OptimizeIndexerSchedule inspects the last executions and recommends
// a schedule change against the target freshness.
func (a *IndexerAutomation) OptimizeIndexerSchedule(ctx context.Context, name string, targetFreshness time.Duration) (*ScheduleRecommendation, error) {
	indexer, err := a.svc.GetIndexer(ctx, name)
	if err != nil {
		return nil, err
	}
	status, err := a.svc.GetIndexerStatus(ctx, name)
	if err != nil {
		return nil, err
	}

	interval := time.Hour
	if indexer.Schedule != nil {
		if parsed, err := parseISODuration(indexer.Schedule.Interval); err == nil {
			interval = parsed
		}
	}

	history := status.ExecutionHistory
	if len(history) > scheduleSampleSize {
		history = history[:scheduleSampleSize]
	}
	var totalExec time.Duration
	var totalItems, counted int64
	for _, exec := range history {
		start, errS := time.Parse(time.RFC3339, exec.StartTime)
		end, errE := time.Parse(time.RFC3339, exec.EndTime)
		if errS != nil || errE != nil {
			continue
		}
		totalExec += end.Sub(start)
		totalItems += exec.ItemsProcessed
		counted++
	}

	rec := &ScheduleRecommendation{Action: "keep", CurrentInterval: interval}
	if counted == 0 {
		rec.Reason = "no execution history"
		return rec, nil
	}
	rec.AvgExecution = totalExec / time.Duration(counted)
	rec.AvgItems = float64(totalItems) / float64(counted)

	switch {
	case rec.AvgExecution > interval/2:
		rec.Action = "increase_interval"
		rec.Reason = fmt.Sprintf("average execution %s exceeds half the %s schedule", rec.AvgExecution, interval)
	case rec.AvgItems < 10 && interval < 24*time.Hour:
		rec.Action = "decrease_frequency"
		rec.Reason = fmt.Sprintf("average of %.1f items per run does not justify a %s interval", rec.AvgItems, interval)
	case interval > targetFreshness && targetFreshness > 0:
		rec.Action = "increase_frequency"
		rec.Reason = fmt.Sprintf("interval %s exceeds freshness target %s", interval, targetFreshness)
	default:
		rec.Reason = "schedule matches observed load"
	}
	return rec, nil
}

// ResetAndRun resets the indexer's change tracking and starts a run,
// optionally waiting for a terminal state.
func (a *IndexerAutomation) ResetAndRun(ctx context.Context, name string, wait bool, timeout time.Duration) (*ops.IndexerStatus, error) {
	if err := a.svc.ResetIndexer(ctx, name); err != nil {
		return nil, err
	}
	if !wait {
		return nil, a.svc.RunIndexer(ctx, name)
	}
	if timeout <= 0 {
		timeout = ops.DefaultRunTimeout
	}
	return a.svc.RunAndWait(ctx, name, ops.DefaultPollInterval, timeout)
}

// parseISODuration handles the schedule interval subset of ISO-8601:
// PT#H, PT#M, P#D, and combinations like P1DT2H.
func parseISODuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	orig := s
	if !strings.HasPrefix(s, "P") {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", orig)
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	num := ""
	for _, r := range s {
		switch {
		case r == 'T':
			inTime = true
		case r >= '0' && r <= '9':
			num += string(r)
		default:
			v, err := strconv.Atoi(num)
			if err != nil {
				return 0, fmt.Errorf("invalid ISO-8601 duration %q", orig)
			}
			num = ""
			switch {
			case r == 'D' && !inTime:
				total += time.Duration(v) * 24 * time.Hour
			case r == 'H' && inTime:
				total += time.Duration(v) * time.Hour
			case r == 'M' && inTime:
				total += time.Duration(v) * time.Minute
			case r == 'S' && inTime:
				total += time.Duration(v) * time.Second
			default:
				return 0, fmt.Errorf("invalid ISO-8601 duration %q", orig)
			}
		}
	}
	if num != "" {
		return 0, fmt.Errorf("invalid ISO-8601 duration %q", orig)
	}
	return total, nil
}
