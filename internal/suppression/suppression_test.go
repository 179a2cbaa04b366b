package suppression

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaysend/mailat/internal/model"
)

func fixedTime() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func TestCheckReturnsBlockedSubset(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"email"}).AddRow("blocked@example.com")
	mock.ExpectQuery("SELECT DISTINCT email FROM email_suppressions").
		WillReturnRows(rows)

	e := New(db)
	domainID := "dom-1"
	suppressed, err := e.Check(context.Background(), "user-1", []string{"blocked@example.com", "ok@example.com"}, &domainID)
	require.NoError(t, err)
	assert.Equal(t, []string{"blocked@example.com"}, suppressed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckEmptyInputIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	e := New(db)
	suppressed, err := e.Check(context.Background(), "user-1", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, suppressed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddIsIdempotentOnExistingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	existingRows := sqlmock.NewRows([]string{"id", "user_id", "domain_id", "email", "reason", "source_event_id", "metadata", "created_at"}).
		AddRow("sup-1", "user-1", nil, "a@example.com", model.ReasonHardBounce, nil, []byte(`{}`), fixedTime())
	mock.ExpectQuery("SELECT id, user_id, domain_id, email, reason, source_event_id, metadata, created_at").
		WithArgs("user-1", "a@example.com").
		WillReturnRows(existingRows)

	e := New(db)
	result, err := e.Add(context.Background(), "user-1", "A@Example.com", model.ReasonManual, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonHardBounce, result.Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddInsertsNewRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	empty := sqlmock.NewRows([]string{"id", "user_id", "domain_id", "email", "reason", "source_event_id", "metadata", "created_at"})
	mock.ExpectQuery("SELECT id, user_id, domain_id, email, reason, source_event_id, metadata, created_at").
		WithArgs("user-1", "a@example.com").
		WillReturnRows(empty)

	mock.ExpectExec("INSERT INTO email_suppressions").
		WillReturnResult(sqlmock.NewResult(1, 1))

	inserted := sqlmock.NewRows([]string{"id", "user_id", "domain_id", "email", "reason", "source_event_id", "metadata", "created_at"}).
		AddRow("sup-2", "user-1", nil, "a@example.com", model.ReasonManual, nil, []byte(`{}`), fixedTime())
	mock.ExpectQuery("SELECT id, user_id, domain_id, email, reason, source_event_id, metadata, created_at").
		WithArgs("user-1", "a@example.com").
		WillReturnRows(inserted)

	e := New(db)
	result, err := e.Add(context.Background(), "user-1", "a@example.com", model.ReasonManual, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "sup-2", result.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSoftBouncePromotesAtThreeCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	existing := sqlmock.NewRows([]string{"id", "user_id", "domain_id", "email", "reason", "source_event_id", "metadata", "created_at"}).
		AddRow("sup-3", "user-1", nil, "bounce@example.com", model.ReasonSoftBounce, nil, []byte(`{"softBounceCount":2}`), fixedTime())
	mock.ExpectQuery("SELECT id, user_id, domain_id, email, reason, source_event_id, metadata, created_at").
		WithArgs("user-1", "bounce@example.com").
		WillReturnRows(existing)

	mock.ExpectExec("UPDATE email_suppressions SET reason = 'hard_bounce'").
		WillReturnResult(sqlmock.NewResult(0, 1))

	promoted := sqlmock.NewRows([]string{"id", "user_id", "domain_id", "email", "reason", "source_event_id", "metadata", "created_at"}).
		AddRow("sup-3", "user-1", nil, "bounce@example.com", model.ReasonHardBounce, nil, []byte(`{"softBounceCount":3}`), fixedTime())
	mock.ExpectQuery("SELECT id, user_id, domain_id, email, reason, source_event_id, metadata, created_at").
		WithArgs("user-1", "bounce@example.com").
		WillReturnRows(promoted)

	e := New(db)
	result, err := e.HandleSoftBounce(context.Background(), "user-1", "bounce@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonHardBounce, result.Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleSoftBounceLeavesHardBounceUntouched(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	existing := sqlmock.NewRows([]string{"id", "user_id", "domain_id", "email", "reason", "source_event_id", "metadata", "created_at"}).
		AddRow("sup-4", "user-1", nil, "hard@example.com", model.ReasonHardBounce, nil, []byte(`{}`), fixedTime())
	mock.ExpectQuery("SELECT id, user_id, domain_id, email, reason, source_event_id, metadata, created_at").
		WithArgs("user-1", "hard@example.com").
		WillReturnRows(existing)

	e := New(db)
	result, err := e.HandleSoftBounce(context.Background(), "user-1", "hard@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ReasonHardBounce, result.Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveNotFoundReturnsErrNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM email_suppressions").
		WithArgs("sup-missing", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	e := New(db)
	err = e.Remove(context.Background(), "user-1", "sup-missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
