package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sarbstats/econ-cli/internal/db"
	"github.com/sarbstats/econ-cli/internal/model"
)

// RunEntry represents a row in econ_meta.run_log.
type RunEntry struct {
	ID           int64            `json:"id"`
	RunID        string           `json:"run_id"`
	Pipeline     string           `json:"pipeline"`
	Status       model.RunStatus  `json:"status"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	SnapshotDate *time.Time       `json:"snapshot_date,omitempty"`
	Report       *model.RunReport `json:"report,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// RunLog provides read/write access to the econ_meta.run_log table.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a RunLog backed by the given connection pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a run and returns its row ID and run ID.
func (l *RunLog) Start(ctx context.Context, pipeline string) (int64, string, error) {
	runID := uuid.NewString()
	var id int64
	err := l.pool.QueryRow(ctx,
		`INSERT INTO econ_meta.run_log (run_id, pipeline, status, started_at)
		 VALUES ($1, $2, 'running', now()) RETURNING id`,
		runID, pipeline,
	).Scan(&id)
	if err != nil {
		return 0, "", eris.Wrapf(err, "runlog: start run for %s", pipeline)
	}
	return id, runID, nil
}

// Complete marks a run as successfully completed and stores its report.
func (l *RunLog) Complete(ctx context.Context, id int64, report *model.RunReport) error {
	var reportJSON []byte
	if report != nil {
		var err error
		reportJSON, err = json.Marshal(report)
		if err != nil {
			return eris.Wrap(err, "runlog: marshal report")
		}
	}

	var snapshotDate *time.Time
	if report != nil {
		snapshotDate = report.SnapshotDate
	}

	_, err := l.pool.Exec(ctx,
		`UPDATE econ_meta.run_log
		 SET status = 'complete', completed_at = now(), snapshot_date = $1, report = $2
		 WHERE id = $3`,
		snapshotDate, reportJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %d", id)
	}
	return nil
}

// Fail marks a run as failed with an error message.
func (l *RunLog) Fail(ctx context.Context, id int64, errMsg string) error {
	_, err := l.pool.Exec(ctx,
		`UPDATE econ_meta.run_log
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %d", id)
	}
	return nil
}

// ListAll returns all run log entries ordered by most recent first.
func (l *RunLog) ListAll(ctx context.Context) ([]RunEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, run_id, pipeline, status, started_at, completed_at, snapshot_date, report, error
		 FROM econ_meta.run_log ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list all")
	}
	defer rows.Close()

	var entries []RunEntry
	for rows.Next() {
		var e RunEntry
		var errStr *string
		var reportJSON []byte
		if err := rows.Scan(&e.ID, &e.RunID, &e.Pipeline, &e.Status, &e.StartedAt,
			&e.CompletedAt, &e.SnapshotDate, &reportJSON, &errStr); err != nil {
			return nil, eris.Wrap(err, "runlog: scan entry")
		}
		if errStr != nil {
			e.Error = *errStr
		}
		if reportJSON != nil {
			_ = json.Unmarshal(reportJSON, &e.Report)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
