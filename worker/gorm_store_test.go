package worker

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"raiseflow/models"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormStore(db), mock
}

func TestGormStore_ClaimDue(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "enrollments" WHERE .*status = \$1 AND next_send_at <= \$2.*claimed_until IS NULL OR claimed_until <= \$3.*ORDER BY next_send_at ASC, id ASC LIMIT .*FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sequence_id", "investor_id", "status", "current_step_order", "next_send_at"}).
			AddRow(4, 1, 7, "active", 0, t0.Add(-time.Hour)).
			AddRow(9, 1, 8, "active", 2, t0))
	mock.ExpectExec(`UPDATE "enrollments" SET .*"claimed_by"=.*"claimed_until"=.* WHERE id IN \(\$\d+,\$\d+\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	got, err := store.ClaimDue(context.Background(), t0, 100, "pass-1", time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint(4), got[0].ID)
	assert.Equal(t, 2, got[1].CurrentStepOrder)
	for _, e := range got {
		assert.Equal(t, "pass-1", e.ClaimedBy)
		assert.Equal(t, t0.Add(time.Minute), *e.ClaimedUntil)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ClaimDueEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "enrollments"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	got, err := store.ClaimDue(context.Background(), t0, 100, "pass-1", time.Minute)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_SaveEnrollment(t *testing.T) {
	until := t0.Add(time.Minute)

	t.Run("releases lease", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "enrollments" SET .*"claimed_by"=.*"current_step_order"=.* WHERE .*id = \$\d+ AND claimed_by = \$\d+`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		e := enrollment(4, 1, 7, t0)
		e.ClaimedBy, e.ClaimedUntil = "pass-1", &until
		require.NoError(t, store.SaveEnrollment(context.Background(), e))
		assert.Empty(t, e.ClaimedBy)
		assert.Nil(t, e.ClaimedUntil)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lease taken over", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "enrollments" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		e := enrollment(4, 1, 7, t0)
		e.ClaimedBy, e.ClaimedUntil = "pass-1", &until
		err := store.SaveEnrollment(context.Background(), e)
		assert.ErrorIs(t, err, ErrLeaseLost)
		assert.Equal(t, "pass-1", e.ClaimedBy)
	})

	t.Run("never claimed", func(t *testing.T) {
		store, mock := newMockStore(t)
		err := store.SaveEnrollment(context.Background(), enrollment(4, 1, 7, t0))
		assert.ErrorIs(t, err, ErrLeaseLost)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormStore_LoadSequenceNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "sequences" WHERE "sequences"."id" = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.LoadSequence(context.Background(), 3)
	assert.ErrorIs(t, err, ErrSequenceNotFound)
}

func TestGormStore_LoadSequenceOrdersSteps(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "sequences" WHERE "sequences"."id" = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status"}).AddRow(3, "Seed", "active"))
	mock.ExpectQuery(`SELECT \* FROM "sequence_steps" WHERE "sequence_steps"."sequence_id" = \$1 .*ORDER BY step_order ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "sequence_id", "step_order", "type", "delay_days"}).
			AddRow(30, 3, 0, "email", 0).
			AddRow(31, 3, 1, "wait", 2))

	seq, err := store.LoadSequence(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, seq.IsActive())
	require.Len(t, seq.Steps, 2)
	assert.Equal(t, models.StepWait, seq.Steps[1].Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_FindExecutedEvent(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT \* FROM "outreach_events" WHERE .*enrollment_id = \$1 AND step_id = \$2 AND status <> \$3`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT \* FROM "outreach_events"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "enrollment_id", "step_id", "status"}).AddRow(8, 4, 11, "sent"))

	ev, err := store.FindExecutedEvent(context.Background(), 4, 11)
	require.NoError(t, err)
	assert.Nil(t, ev)

	ev, err = store.FindExecutedEvent(context.Background(), 4, 11)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, uint(8), ev.ID)
	assert.True(t, ev.Executed())
}

func TestGormStore_UpdateEnrollmentStatusRefusesLeasedRow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "enrollments" SET .*"status"=.* WHERE .*id = \$\d+ AND status = \$\d+.*claimed_until IS NULL OR claimed_until <= \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	e := enrollment(4, 1, 7, t0)
	e.Status = models.EnrollmentCancelled
	err := store.UpdateEnrollmentStatus(context.Background(), e, models.EnrollmentActive, t0)
	assert.ErrorIs(t, err, ErrEnrollmentBusy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_Stats(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT status, count\(\*\) as count FROM "enrollments" .*GROUP BY`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("active", 4).
			AddRow("paused", 1).
			AddRow("failed", 2).
			AddRow("completed", 9))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "enrollments" WHERE .*next_send_at <= \$2.*claimed_until IS NULL OR claimed_until <= \$3`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "enrollments" WHERE .*skip_count > 0`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "outreach_events" WHERE .*sent_at >= \$1`).
		WithArgs(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	stats, err := store.Stats(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, &ProcessingStats{
		ActiveEnrollments:  4,
		DueNow:             3,
		SentToday:          5,
		PausedEnrollments:  1,
		FailedEnrollments:  2,
		StalledEnrollments: 1,
		GeneratedAt:        t0,
	}, stats)
	assert.NoError(t, mock.ExpectationsWereMet())
}
