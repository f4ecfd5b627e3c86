package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarbstats/econ-cli/internal/model"
	"github.com/sarbstats/econ-cli/internal/pipeline"
)

type stubRunLog struct {
	entries []pipeline.RunEntry
	err     error
}

func (s *stubRunLog) ListAll(context.Context) ([]pipeline.RunEntry, error) {
	return s.entries, s.err
}

func day(s string) *time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return &d
}

func completedEntry(started time.Time, landed, malformed, validated, rejected int, annotated bool) pipeline.RunEntry {
	return pipeline.RunEntry{
		Status:       model.RunStatusComplete,
		StartedAt:    started,
		SnapshotDate: day("2024-06-30"),
		Report: &model.RunReport{
			Status:    model.RunStatusComplete,
			Annotated: annotated,
			Stages: []model.StageReport{
				{Stage: model.StageLand, Accepted: landed, Rejected: malformed},
				{Stage: model.StageValidate, Accepted: validated, Rejected: rejected},
				{Stage: model.StageProject, Accepted: 1},
			},
		},
	}
}

func TestCollect(t *testing.T) {
	now := time.Now().UTC()
	runLog := &stubRunLog{entries: []pipeline.RunEntry{
		completedEntry(now.Add(-1*time.Hour), 100, 2, 95, 3, true),
		completedEntry(now.Add(-2*time.Hour), 50, 0, 50, 0, false),
		{Status: model.RunStatusFailed, StartedAt: now.Add(-3 * time.Hour)},
		{Status: model.RunStatusRunning, StartedAt: now.Add(-10 * time.Minute)},
	}}

	snap, err := NewCollector(runLog).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 0.0001)

	assert.Equal(t, 150, snap.Landed)
	assert.Equal(t, 2, snap.LandedMalformed)
	assert.Equal(t, 145, snap.Validated)
	assert.Equal(t, 3, snap.ValidationRejected)
	assert.Equal(t, 1, snap.Annotated)

	require.NotNil(t, snap.LatestSnapshotDate)
	assert.Equal(t, *day("2024-06-30"), *snap.LatestSnapshotDate)
	assert.Equal(t, 24, snap.LookbackHours)
}

func TestCollect_LookbackExcludesOldRuns(t *testing.T) {
	now := time.Now().UTC()
	runLog := &stubRunLog{entries: []pipeline.RunEntry{
		completedEntry(now.Add(-1*time.Hour), 10, 0, 10, 0, false),
		completedEntry(now.Add(-48*time.Hour), 999, 0, 999, 0, true),
	}}

	snap, err := NewCollector(runLog).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.RunsTotal)
	assert.Equal(t, 10, snap.Landed)
	assert.Equal(t, 0, snap.Annotated)
}

func TestCollect_EmptyRunLog(t *testing.T) {
	snap, err := NewCollector(&stubRunLog{}).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.InDelta(t, 0.0, snap.RunFailRate, 0.0001)
	assert.Nil(t, snap.LatestSnapshotDate)
}

func TestCollect_RunLogError(t *testing.T) {
	_, err := NewCollector(&stubRunLog{err: errors.New("connection refused")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs")
}
