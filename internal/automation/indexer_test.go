package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBlobIndexerPipelineRunsImmediately(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		switch r.URL.Path {
		case "/datasources/docs-datasource":
			_, _ = w.Write([]byte(`{"name":"docs-datasource","type":"azureblob"}`))
		case "/skillsets/docs-skillset":
			_, _ = w.Write([]byte(`{"name":"docs-skillset","skills":[]}`))
		case "/indexers/docs-indexer":
			_, _ = w.Write([]byte(`{"name":"docs-indexer"}`))
		case "/indexers/docs-indexer/run":
			w.WriteHeader(http.StatusAccepted)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	a := NewIndexerAutomation(svc, nil)

	result, err := a.CreateBlobIndexerPipeline(context.Background(), PipelineParams{
		Prefix:           "docs",
		IndexName:        "code-index",
		ConnectionString: "DefaultEndpointsProtocol=https;AccountName=acct",
		Container:        "sources",
		ScheduleHours:    6,
		Skills:           []json.RawMessage{json.RawMessage(`{"@odata.type":"#Microsoft.Skills.Text.SplitSkill"}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, "docs-datasource", result.DataSourceName)
	assert.Equal(t, "docs-skillset", result.SkillsetName)
	assert.Equal(t, "docs-indexer", result.IndexerName)
	assert.Contains(t, calls, "POST /indexers/docs-indexer/run")
}

func TestPipelineRollbackDeletesCreatedResources(t *testing.T) {
	var mu sync.Mutex
	var deletes []string
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method == http.MethodDelete {
			deletes = append(deletes, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		switch r.URL.Path {
		case "/datasources/docs-datasource":
			_, _ = w.Write([]byte(`{"name":"docs-datasource","type":"azureblob"}`))
		case "/skillsets/docs-skillset":
			_, _ = w.Write([]byte(`{"name":"docs-skillset","skills":[]}`))
		case "/indexers/docs-indexer":
			w.WriteHeader(http.StatusBadRequest)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	a := NewIndexerAutomation(svc, nil)

	_, err := a.CreateBlobIndexerPipeline(context.Background(), PipelineParams{
		Prefix:           "docs",
		IndexName:        "code-index",
		ConnectionString: "cs",
		Container:        "sources",
		Skills:           []json.RawMessage{json.RawMessage(`{}`)},
	})
	require.Error(t, err)

	// Skillset then datasource, reverse creation order.
	assert.Equal(t, []string{"/skillsets/docs-skillset", "/datasources/docs-datasource"}, deletes)
}

func TestMonitorIndexerHealthClassification(t *testing.T) {
	now := time.Now().UTC()
	exec := func(minutesAgo int, status string) string {
		start := now.Add(-time.Duration(minutesAgo) * time.Minute).Format(time.RFC3339)
		return fmt.Sprintf(`{"status":%q,"startTime":%q,"endTime":%q}`, status, start, start)
	}

	tests := []struct {
		name       string
		executions string
		wantStatus string
		wantScore  float64
	}{
		{
			name:       "all successes healthy",
			executions: exec(10, "success") + "," + exec(20, "success"),
			wantStatus: "healthy",
			wantScore:  100,
		},
		{
			name: "three of four warning",
			executions: exec(10, "success") + "," + exec(20, "success") + "," +
				exec(30, "success") + "," + exec(40, "transientFailure"),
			wantStatus: "warning",
			wantScore:  75,
		},
		{
			name:       "half critical",
			executions: exec(10, "success") + "," + exec(20, "error"),
			wantStatus: "critical",
			wantScore:  50,
		},
		{
			name:       "stale runs outside window",
			executions: exec(60*48, "success"),
			wantStatus: "warning",
			wantScore:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"status":"running","executionHistory":[` + tt.executions + `]}`))
			}))
			a := NewIndexerAutomation(svc, nil)

			health, err := a.MonitorIndexerHealth(context.Background(), "docs-indexer", 24*time.Hour)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, health.Status)
			assert.Equal(t, tt.wantScore, health.Score)
		})
	}
}

func TestOptimizeIndexerScheduleLongRuns(t *testing.T) {
	now := time.Now().UTC()
	start := now.Add(-2 * time.Hour)
	end := start.Add(40 * time.Minute)
	svc := newService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/indexers/docs-indexer":
			_, _ = w.Write([]byte(`{"name":"docs-indexer","schedule":{"interval":"PT1H"}}`))
		case "/indexers/docs-indexer/status":
			_, _ = w.Write([]byte(fmt.Sprintf(
				`{"status":"running","executionHistory":[{"status":"success","startTime":%q,"endTime":%q,"itemsProcessed":500}]}`,
				start.Format(time.RFC3339), end.Format(time.RFC3339))))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	a := NewIndexerAutomation(svc, nil)

	rec, err := a.OptimizeIndexerSchedule(context.Background(), "docs-indexer", 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "increase_interval", rec.Action)
	assert.Equal(t, time.Hour, rec.CurrentInterval)
	assert.Equal(t, 40*time.Minute, rec.AvgExecution)
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"PT1H", time.Hour, true},
		{"PT30M", 30 * time.Minute, true},
		{"PT90S", 90 * time.Second, true},
		{"P1D", 24 * time.Hour, true},
		{"P1DT2H", 26 * time.Hour, true},
		{"PT2H30M", 2*time.Hour + 30*time.Minute, true},
		{"", 0, false},
		{"1H", 0, false},
		{"PT1X", 0, false},
		{"PTH", 0, false},
	}
	for _, tt := range tests {
		got, err := parseISODuration(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
