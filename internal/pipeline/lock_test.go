package pipeline

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Acquire and release must both run on the one connection the lock
// transaction pins. Issuing either through the pool at large would let the
// unlock land on a different pooled session, where it silently fails and
// the lock leaks until that session closes.
func TestAcquireLock_PinsOneSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT pg_try_advisory_xact_lock").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(true))
	mock.ExpectRollback()

	lock, err := acquireLock(context.Background(), mock, "sarb_indicators")
	require.NoError(t, err)
	require.NoError(t, lock.release(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock_BusyReturnsConnection(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT pg_try_advisory_xact_lock").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(false))
	mock.ExpectRollback()

	_, err = acquireLock(context.Background(), mock, "sarb_indicators")
	require.ErrorIs(t, err, ErrRunInFlight)

	assert.NoError(t, mock.ExpectationsWereMet())
}
