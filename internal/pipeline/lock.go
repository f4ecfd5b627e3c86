package pipeline

import (
	"context"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sarbstats/econ-cli/internal/db"
)

// ErrRunInFlight is returned when another run already holds the pipeline lock.
var ErrRunInFlight = eris.New("pipeline: another run is already in flight")

// lockKey derives a stable advisory lock key from the pipeline name.
func lockKey(pipeline string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(pipeline))
	return int64(h.Sum64())
}

// runLock holds the pipeline advisory lock. Advisory locks are owned by a
// single server session, so the lock rides a transaction held open for its
// whole lifetime: the open transaction pins one pooled connection as the
// owner (pool health checks cannot recycle a checked-out connection), and
// the transaction-scoped lock releases on that same session at rollback,
// or server-side if the process dies mid-run.
type runLock struct {
	tx pgx.Tx
}

// acquireLock takes the advisory lock for the pipeline, failing fast if
// another run holds it. Overlapping scheduler invocations serialize here;
// at most one run per logical pipeline is ever in flight.
func acquireLock(ctx context.Context, pool db.Pool, pipeline string) (*runLock, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: begin lock session for %s", pipeline)
	}

	var acquired bool
	if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", lockKey(pipeline)).Scan(&acquired); err != nil {
		_ = tx.Rollback(ctx)
		return nil, eris.Wrapf(err, "pipeline: acquire lock for %s", pipeline)
	}
	if !acquired {
		_ = tx.Rollback(ctx)
		return nil, ErrRunInFlight
	}
	return &runLock{tx: tx}, nil
}

// release ends the lock transaction, releasing the lock on the session that
// acquired it and returning the pinned connection to the pool.
func (l *runLock) release(ctx context.Context) error {
	if err := l.tx.Rollback(ctx); err != nil && !eris.Is(err, pgx.ErrTxClosed) {
		return eris.Wrap(err, "pipeline: release lock")
	}
	return nil
}
