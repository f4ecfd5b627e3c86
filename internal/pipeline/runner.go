// Package pipeline sequences the batch run: land, validate, project,
// annotate, persist. Stages run strictly in order; the raw layer is only
// ever read by the validator, and the projector only ever sees the
// validator's output.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sarbstats/econ-cli/internal/db"
	"github.com/sarbstats/econ-cli/internal/insight"
	"github.com/sarbstats/econ-cli/internal/model"
	"github.com/sarbstats/econ-cli/internal/project"
	"github.com/sarbstats/econ-cli/internal/rawstore"
	"github.com/sarbstats/econ-cli/internal/store"
	"github.com/sarbstats/econ-cli/internal/validate"
)

// RunConfig configures a single pipeline run. SkipStages replaces the old
// global pause/resume flags: stage selection is explicit per run, with no
// state shared across unrelated runs.
type RunConfig struct {
	// Observations to land. Empty with StageLand not skipped means the
	// run revalidates whatever is already in the raw store.
	Observations []model.Observation
	SourceTag    string
	SkipStages   map[model.StageName]bool
}

// Runner executes pipeline runs against one warehouse.
type Runner struct {
	pool        db.Pool
	raw         *rawstore.Store
	annotator   insight.Annotator
	runLog      *RunLog
	pipeline    string
	validateCfg validate.Config
	projectCfg  project.Config
	export      store.Store
}

// WithExport mirrors gold-layer writes into a local store so the JSON API
// can serve them without warehouse access. Export failures are logged, not
// fatal: the warehouse remains the source of truth.
func (r *Runner) WithExport(st store.Store) *Runner {
	r.export = st
	return r
}

// NewRunner wires a Runner. The annotator may be insight.NullProvider when
// no AI provider is configured.
func NewRunner(pool db.Pool, raw *rawstore.Store, annotator insight.Annotator,
	runLog *RunLog, pipeline string, vcfg validate.Config, pcfg project.Config) *Runner {
	return &Runner{
		pool:        pool,
		raw:         raw,
		annotator:   annotator,
		runLog:      runLog,
		pipeline:    pipeline,
		validateCfg: vcfg,
		projectCfg:  pcfg,
	}
}

// Run executes one batch. Errors local to a record never abort the run;
// errors that make a stage's output unreliable (store unreachable) abort it
// and leave previously-committed stage outputs untouched. The advisory lock
// is held from landing through projection, so overlapping invocations
// serialize rather than interleave.
func (r *Runner) Run(ctx context.Context, rc RunConfig) (*model.RunReport, error) {
	log := zap.L().With(zap.String("component", "pipeline.runner"), zap.String("pipeline", r.pipeline))

	logID, runID, err := r.runLog.Start(ctx, r.pipeline)
	if err != nil {
		return nil, err
	}

	report := &model.RunReport{
		RunID:     runID,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	lock, err := acquireLock(ctx, r.pool, r.pipeline)
	if err != nil {
		r.fail(ctx, logID, report, err)
		return report, err
	}
	defer func() {
		if err := lock.release(ctx); err != nil {
			log.Warn("failed to release pipeline lock", zap.Error(err))
		}
	}()

	if err := r.runStages(ctx, rc, report, log); err != nil {
		r.fail(ctx, logID, report, err)
		return report, err
	}

	report.Status = model.RunStatusComplete
	report.Elapsed = time.Since(report.StartedAt)
	if err := r.runLog.Complete(ctx, logID, report); err != nil {
		log.Warn("failed to record run completion", zap.Error(err))
	}

	log.Info("run complete",
		zap.String("run_id", runID),
		zap.Duration("elapsed", report.Elapsed),
		zap.Bool("annotated", report.Annotated),
	)
	return report, nil
}

func (r *Runner) runStages(ctx context.Context, rc RunConfig, report *model.RunReport, log *zap.Logger) error {
	// Land.
	if rc.SkipStages[model.StageLand] {
		report.Stages = append(report.Stages, model.StageReport{Stage: model.StageLand, Skipped: true})
	} else {
		land, err := r.raw.Land(ctx, rc.Observations, rc.SourceTag)
		if err != nil {
			return eris.Wrap(err, "pipeline: land stage")
		}
		report.Stages = append(report.Stages, model.StageReport{
			Stage:      model.StageLand,
			Accepted:   land.Accepted,
			Rejected:   len(land.Malformed),
			Rejections: land.Malformed,
		})
	}

	// Validate. Rebuilt from the full raw store every run: the validator is
	// a pure function of raw state, so re-running is idempotent.
	var validated []model.ValidatedRecord
	if rc.SkipStages[model.StageValidate] {
		// Projection still needs input; replay the previously-committed
		// silver layer instead of recomputing it.
		if !rc.SkipStages[model.StageProject] {
			var err error
			validated, err = r.loadValidated(ctx)
			if err != nil {
				return eris.Wrap(err, "pipeline: load validated records")
			}
		}
		report.Stages = append(report.Stages, model.StageReport{Stage: model.StageValidate, Skipped: true})
	} else {
		raw, err := r.raw.List(ctx)
		if err != nil {
			return eris.Wrap(err, "pipeline: read raw store")
		}

		var rejections []model.Rejection
		validated, rejections = validate.ValidateAndEnrich(raw, r.validateCfg)

		for _, rej := range rejections {
			log.Warn("record rejected at validation",
				zap.String("identity", rej.Identity),
				zap.String("reason", string(rej.Reason)),
			)
		}

		if err := r.persistValidated(ctx, validated); err != nil {
			return eris.Wrap(err, "pipeline: persist validated records")
		}

		report.Stages = append(report.Stages, model.StageReport{
			Stage:      model.StageValidate,
			Accepted:   len(validated),
			Rejected:   len(rejections),
			Rejections: rejections,
		})
	}

	// Project.
	var snap *model.ReportingSnapshot
	if rc.SkipStages[model.StageProject] {
		report.Stages = append(report.Stages, model.StageReport{Stage: model.StageProject, Skipped: true})
	} else {
		var err error
		snap, err = project.Project(validated, r.projectCfg)
		if err != nil {
			return eris.Wrap(err, "pipeline: project stage")
		}

		// The snapshot upsert is a single statement: either the full row
		// publishes or nothing does.
		if err := r.persistSnapshot(ctx, snap); err != nil {
			return eris.Wrap(err, "pipeline: persist snapshot")
		}

		if r.export != nil {
			if err := r.export.SaveSnapshot(ctx, snap); err != nil {
				log.Warn("failed to export snapshot locally", zap.Error(err))
			}
		}

		report.Stages = append(report.Stages, model.StageReport{
			Stage:    model.StageProject,
			Accepted: 1,
		})
		report.SnapshotDate = &snap.SnapshotDate
	}

	// Annotate. Failures here are isolated and logged, never escalated:
	// the snapshot is already published and stays usable without commentary.
	if rc.SkipStages[model.StageAnnotate] || snap == nil {
		report.Stages = append(report.Stages, model.StageReport{Stage: model.StageAnnotate, Skipped: true})
		return nil
	}

	annotation, err := r.annotator.Annotate(ctx, snap)
	if err != nil {
		log.Warn("annotator failed, continuing without insight", zap.Error(err))
		report.Stages = append(report.Stages, model.StageReport{Stage: model.StageAnnotate, Rejected: 1})
		return nil
	}
	if annotation == nil {
		report.Stages = append(report.Stages, model.StageReport{Stage: model.StageAnnotate, Skipped: true})
		return nil
	}

	if err := r.persistAnnotation(ctx, annotation); err != nil {
		log.Warn("failed to persist annotation", zap.Error(err))
		report.Stages = append(report.Stages, model.StageReport{Stage: model.StageAnnotate, Rejected: 1})
		return nil
	}

	if r.export != nil {
		if err := r.export.SaveAnnotation(ctx, annotation); err != nil {
			log.Warn("failed to export annotation locally", zap.Error(err))
		}
	}

	report.Annotated = true
	report.Stages = append(report.Stages, model.StageReport{Stage: model.StageAnnotate, Accepted: 1})
	return nil
}

func (r *Runner) fail(ctx context.Context, logID int64, report *model.RunReport, runErr error) {
	report.Status = model.RunStatusFailed
	report.Error = runErr.Error()
	report.Elapsed = time.Since(report.StartedAt)
	if err := r.runLog.Fail(ctx, logID, runErr.Error()); err != nil {
		zap.L().Warn("failed to record run failure", zap.Error(err))
	}
}

// loadValidated reads the committed silver layer back, used when the
// validate stage is skipped but projection still runs.
func (r *Runner) loadValidated(ctx context.Context) ([]model.ValidatedRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT indicator_name, category, value, unit, observed_date, source,
		        is_valid, confidence, previous_value, absolute_change,
		        percent_change, rolling_average, trend
		 FROM econ_silver.indicators_validated
		 ORDER BY indicator_name, observed_date`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: query validated records")
	}
	defer rows.Close()

	var out []model.ValidatedRecord
	for rows.Next() {
		var v model.ValidatedRecord
		var trend string
		if err := rows.Scan(&v.IndicatorName, &v.Category, &v.Value, &v.Unit,
			&v.ObservedDate, &v.Source, &v.IsValid, &v.Confidence,
			&v.PreviousValue, &v.AbsoluteChange, &v.PercentChange,
			&v.RollingAverage, &trend); err != nil {
			return nil, eris.Wrap(err, "pipeline: scan validated record")
		}
		v.Trend = model.Trend(trend)
		out = append(out, v)
	}
	return out, rows.Err()
}

var validatedColumns = []string{
	"indicator_name", "category", "value", "unit", "observed_date", "source",
	"is_valid", "confidence", "previous_value", "absolute_change",
	"percent_change", "rolling_average", "trend",
}

func (r *Runner) persistValidated(ctx context.Context, validated []model.ValidatedRecord) error {
	rows := make([][]any, 0, len(validated))
	for _, v := range validated {
		rows = append(rows, []any{
			v.IndicatorName, v.Category, v.Value, v.Unit, v.ObservedDate, v.Source,
			v.IsValid, v.Confidence, v.PreviousValue, v.AbsoluteChange,
			v.PercentChange, v.RollingAverage, string(v.Trend),
		})
	}

	_, err := db.BulkUpsert(ctx, r.pool, db.UpsertConfig{
		Table:        "econ_silver.indicators_validated",
		Columns:      validatedColumns,
		ConflictKeys: []string{"indicator_name", "observed_date", "value"},
	}, rows)
	return err
}

func (r *Runner) persistSnapshot(ctx context.Context, snap *model.ReportingSnapshot) error {
	indicators, err := json.Marshal(snap.Indicators)
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal indicators")
	}
	trends, err := json.Marshal(snap.Trends)
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal trends")
	}
	var missing []byte
	if len(snap.MissingIndicators) > 0 {
		missing, err = json.Marshal(snap.MissingIndicators)
		if err != nil {
			return eris.Wrap(err, "pipeline: marshal missing indicators")
		}
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO econ_gold.reporting_snapshots
		   (snapshot_date, indicators, trends, policy_stance, health_score, risk_level, missing_indicators, generated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (snapshot_date) DO UPDATE SET
		   indicators = EXCLUDED.indicators,
		   trends = EXCLUDED.trends,
		   policy_stance = EXCLUDED.policy_stance,
		   health_score = EXCLUDED.health_score,
		   risk_level = EXCLUDED.risk_level,
		   missing_indicators = EXCLUDED.missing_indicators,
		   generated_at = EXCLUDED.generated_at`,
		snap.SnapshotDate, indicators, trends, snap.PolicyStance,
		snap.HealthScore, snap.RiskLevel, missing, snap.GeneratedAt,
	)
	return err
}

func (r *Runner) persistAnnotation(ctx context.Context, a *model.InsightAnnotation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO econ_ai.insight_annotations
		   (snapshot_date, narrative_text, provider, confidence, generated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (snapshot_date) DO UPDATE SET
		   narrative_text = EXCLUDED.narrative_text,
		   provider = EXCLUDED.provider,
		   confidence = EXCLUDED.confidence,
		   generated_at = EXCLUDED.generated_at`,
		a.SnapshotDate, a.Narrative, a.Provider, a.Confidence, a.GeneratedAt,
	)
	return err
}
