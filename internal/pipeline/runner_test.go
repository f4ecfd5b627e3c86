package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarbstats/econ-cli/internal/insight"
	"github.com/sarbstats/econ-cli/internal/model"
	"github.com/sarbstats/econ-cli/internal/project"
	"github.com/sarbstats/econ-cli/internal/rawstore"
	"github.com/sarbstats/econ-cli/internal/validate"
)

type stubAnnotator struct {
	annotation *model.InsightAnnotation
	err        error
	calls      int
}

func (s *stubAnnotator) Annotate(context.Context, *model.ReportingSnapshot) (*model.InsightAnnotation, error) {
	s.calls++
	return s.annotation, s.err
}

func fv(v float64) *float64 { return &v }

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func newTestRunner(mock pgxmock.PgxPoolIface, annotator insight.Annotator) *Runner {
	return NewRunner(mock, rawstore.New(mock), annotator, NewRunLog(mock),
		"sarb_indicators", validate.Config{}, project.DefaultConfig())
}

func expectRunStart(mock pgxmock.PgxPoolIface, id int64) {
	mock.ExpectQuery("INSERT INTO econ_meta.run_log").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(id))
}

func expectLock(mock pgxmock.PgxPoolIface, acquired bool) {
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT pg_try_advisory_xact_lock").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(acquired))
	if !acquired {
		mock.ExpectRollback()
	}
}

func expectUnlock(mock pgxmock.PgxPoolIface) {
	mock.ExpectRollback()
}

func expectComplete(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("UPDATE econ_meta.run_log").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

// expectValidatedLoad returns one committed silver row so projection has input.
func expectValidatedLoad(mock pgxmock.PgxPoolIface) {
	rows := pgxmock.NewRows([]string{
		"indicator_name", "category", "value", "unit", "observed_date", "source",
		"is_valid", "confidence", "previous_value", "absolute_change",
		"percent_change", "rolling_average", "trend",
	}).AddRow(
		model.IndicatorPrimeRate, "Monetary Policy", 11.75, "Percentage", day("2024-06-30"), "SARB",
		true, 1.0, (*float64)(nil), (*float64)(nil), (*float64)(nil), fv(11.75), "STABLE",
	)
	mock.ExpectQuery("SELECT indicator_name, category, value, unit, observed_date, source").
		WillReturnRows(rows)
}

func expectSnapshotUpsert(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("INSERT INTO econ_gold.reporting_snapshots").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

// expectBulkUpsert sets up expectations for one db.BulkUpsert call:
// Begin -> CREATE TEMP TABLE -> COPY -> INSERT ON CONFLICT -> Commit.
func expectBulkUpsert(mock pgxmock.PgxPoolIface, table string, cols []string, n int64) {
	tempTable := fmt.Sprintf("_tmp_upsert_%s", strings.ReplaceAll(table, ".", "_"))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{tempTable}, cols).WillReturnResult(n)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", n))
	mock.ExpectCommit()
}

func TestRun_LockBusy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectRunStart(mock, 1)
	expectLock(mock, false)
	mock.ExpectExec("UPDATE econ_meta.run_log").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	runner := newTestRunner(mock, insight.NullProvider{})
	report, err := runner.Run(context.Background(), RunConfig{})

	require.ErrorIs(t, err, ErrRunInFlight)
	assert.Equal(t, model.RunStatusFailed, report.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_AllStagesSkipped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectRunStart(mock, 1)
	expectLock(mock, true)
	expectComplete(mock)
	expectUnlock(mock)

	runner := newTestRunner(mock, insight.NullProvider{})
	report, err := runner.Run(context.Background(), RunConfig{
		SkipStages: map[model.StageName]bool{
			model.StageLand:     true,
			model.StageValidate: true,
			model.StageProject:  true,
			model.StageAnnotate: true,
		},
	})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, report.Status)
	require.Len(t, report.Stages, 4)
	for _, st := range report.Stages {
		assert.True(t, st.Skipped, "stage %s should be skipped", st.Stage)
	}
	assert.Nil(t, report.SnapshotDate)
	assert.False(t, report.Annotated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_FullPipeline(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectRunStart(mock, 7)
	expectLock(mock, true)

	// Land: no known hashes, batch of two copied into bronze.
	mock.ExpectQuery("SELECT DISTINCT content_hash").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"content_hash"}))
	mock.ExpectCopyFrom(pgx.Identifier{"econ_bronze", "observations_raw"}, []string{
		"indicator_name", "category", "value", "unit", "observed_date",
		"source", "ingestion_timestamp", "source_tag", "content_hash",
	}).WillReturnResult(2)

	// Validate reads the whole raw store back.
	rawRows := pgxmock.NewRows([]string{
		"indicator_name", "category", "value", "unit", "observed_date",
		"source", "ingestion_timestamp", "source_tag", "content_hash",
	}).AddRow(
		model.IndicatorGDPGrowth, "Economic Growth", fv(1.9), "Percentage", day("2024-03-31"),
		"SARB", time.Now().UTC(), "sarb_api", "hash1",
	).AddRow(
		model.IndicatorGDPGrowth, "Economic Growth", fv(2.3), "Percentage", day("2024-06-30"),
		"SARB", time.Now().UTC(), "sarb_api", "hash2",
	)
	mock.ExpectQuery("SELECT indicator_name, category, value").WillReturnRows(rawRows)

	expectBulkUpsert(mock, "econ_silver.indicators_validated", []string{
		"indicator_name", "category", "value", "unit", "observed_date", "source",
		"is_valid", "confidence", "previous_value", "absolute_change",
		"percent_change", "rolling_average", "trend",
	}, 2)

	expectSnapshotUpsert(mock)
	mock.ExpectExec("INSERT INTO econ_ai.insight_annotations").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectComplete(mock)
	expectUnlock(mock)

	annotator := &stubAnnotator{annotation: &model.InsightAnnotation{
		SnapshotDate: day("2024-06-30"),
		Narrative:    "steady improvement",
		Provider:     "anthropic:test",
	}}

	runner := newTestRunner(mock, annotator)
	report, err := runner.Run(context.Background(), RunConfig{
		Observations: []model.Observation{
			{IndicatorName: model.IndicatorGDPGrowth, Category: "Economic Growth", Value: fv(1.9), Unit: "Percentage", ObservedDate: day("2024-03-31"), Source: "SARB"},
			{IndicatorName: model.IndicatorGDPGrowth, Category: "Economic Growth", Value: fv(2.3), Unit: "Percentage", ObservedDate: day("2024-06-30"), Source: "SARB"},
		},
		SourceTag: "sarb_api",
	})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusComplete, report.Status)
	assert.True(t, report.Annotated)
	require.NotNil(t, report.SnapshotDate)
	assert.Equal(t, day("2024-06-30"), *report.SnapshotDate)

	land := report.StageFor(model.StageLand)
	require.NotNil(t, land)
	assert.Equal(t, 2, land.Accepted)

	val := report.StageFor(model.StageValidate)
	require.NotNil(t, val)
	assert.Equal(t, 2, val.Accepted)
	assert.Equal(t, 0, val.Rejected)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_AnnotatorFailureIsIsolated(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectRunStart(mock, 2)
	expectLock(mock, true)
	expectValidatedLoad(mock)
	expectSnapshotUpsert(mock)
	// No annotation insert: the provider errored.
	expectComplete(mock)
	expectUnlock(mock)

	annotator := &stubAnnotator{err: errors.New("model overloaded")}

	runner := newTestRunner(mock, annotator)
	report, err := runner.Run(context.Background(), RunConfig{
		SkipStages: map[model.StageName]bool{
			model.StageLand:     true,
			model.StageValidate: true,
		},
	})
	require.NoError(t, err)

	// The snapshot published; only the annotate stage records the failure.
	assert.Equal(t, model.RunStatusComplete, report.Status)
	assert.False(t, report.Annotated)
	require.NotNil(t, report.SnapshotDate)

	ann := report.StageFor(model.StageAnnotate)
	require.NotNil(t, ann)
	assert.Equal(t, 1, ann.Rejected)
	assert.Equal(t, 1, annotator.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_NullAnnotatorSkipsStage(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectRunStart(mock, 3)
	expectLock(mock, true)
	expectValidatedLoad(mock)
	expectSnapshotUpsert(mock)
	expectComplete(mock)
	expectUnlock(mock)

	runner := newTestRunner(mock, insight.NullProvider{})
	report, err := runner.Run(context.Background(), RunConfig{
		SkipStages: map[model.StageName]bool{
			model.StageLand:     true,
			model.StageValidate: true,
		},
	})
	require.NoError(t, err)

	assert.False(t, report.Annotated)
	ann := report.StageFor(model.StageAnnotate)
	require.NotNil(t, ann)
	assert.True(t, ann.Skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_ProjectStageFailureAbortsRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectRunStart(mock, 4)
	expectLock(mock, true)
	// Silver layer is empty: projection has nothing to pivot.
	mock.ExpectQuery("SELECT indicator_name, category, value, unit, observed_date, source").
		WillReturnRows(pgxmock.NewRows([]string{
			"indicator_name", "category", "value", "unit", "observed_date", "source",
			"is_valid", "confidence", "previous_value", "absolute_change",
			"percent_change", "rolling_average", "trend",
		}))
	mock.ExpectExec("UPDATE econ_meta.run_log").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	expectUnlock(mock)

	runner := newTestRunner(mock, insight.NullProvider{})
	report, err := runner.Run(context.Background(), RunConfig{
		SkipStages: map[model.StageName]bool{
			model.StageLand:     true,
			model.StageValidate: true,
		},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, project.ErrNoRecords)
	assert.Equal(t, model.RunStatusFailed, report.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockKey_StablePerPipeline(t *testing.T) {
	assert.Equal(t, lockKey("sarb_indicators"), lockKey("sarb_indicators"))
	assert.NotEqual(t, lockKey("sarb_indicators"), lockKey("other_pipeline"))
}
