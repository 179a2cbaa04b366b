package send

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaysend/mailat/internal/authgate"
	"github.com/relaysend/mailat/internal/model"
	"github.com/relaysend/mailat/internal/queue"
)

type fakeQueue struct {
	enqueued int
}

func (f *fakeQueue) Enqueue(ctx context.Context, jobID, taskType string, payload queue.Payload, opts queue.EnqueueOptions) error {
	f.enqueued++
	return nil
}

func (f *fakeQueue) Subscribe(taskType string, handler queue.Handler, concurrency, rateLimit, attempts int, backoffBase time.Duration) error {
	return nil
}

func (f *fakeQueue) Close() error { return nil }

func testAuth() *authgate.AuthContext {
	return &authgate.AuthContext{
		APIKey:  model.DomainApiKey{ID: "key-1", UserID: "user-1", DomainID: "dom-1"},
		Domain:  model.Domain{ID: "dom-1", UserID: "user-1", Name: "example.com", TxtVerified: true},
		User:    model.User{ID: "user-1", Email: "a@example.com"},
		Billing: &model.UserBilling{ID: "bill-1", UserID: "user-1", EmailLimit: 1000, EmailUsed: 0},
	}
}

func newTestService(t *testing.T, db *sql.DB, rdb *redis.Client, q queue.Queue) *Service {
	t.Helper()
	return New(db, rdb, q, Config{
		TrackingBaseURL:     "https://track.example.com",
		EnableOpenTracking:  true,
		EnableClickTracking: true,
		WorkerMaxAttempts:   3,
		WorkerRetryBaseSec:  1,
	})
}

func TestSendRejectsFromOnWrongDomain(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := newTestService(t, db, nil, &fakeQueue{})
	_, err = s.Send(context.Background(), testAuth(), Request{
		From: "alerts@other.com", To: []string{"to@example.com"}, Subject: "Hi", HTML: "<p>hi</p>",
	})
	require.Error(t, err)
	sendErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindForbidden, sendErr.Kind)
}

func TestSendRejectsOverQuota(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	auth := testAuth()
	auth.Billing.EmailUsed = 999
	auth.Billing.EmailLimit = 1000

	s := newTestService(t, db, nil, &fakeQueue{})
	_, err = s.Send(context.Background(), auth, Request{
		From: "alerts@example.com", To: []string{"a@x.com", "b@x.com"}, Subject: "Hi", HTML: "<p>hi</p>",
	})
	require.Error(t, err)
	sendErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindQuota, sendErr.Kind)
}

func TestSendRequiresSubjectAndBody(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := newTestService(t, db, nil, &fakeQueue{})
	_, err = s.Send(context.Background(), testAuth(), Request{
		From: "alerts@example.com", To: []string{"a@x.com"},
	})
	require.Error(t, err)
	sendErr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindValidation, sendErr.Kind)
}

func TestSendAllRecipientsSuppressedSkipsPersistAndEnqueue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT DISTINCT email FROM email_suppressions").
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("blocked@x.com"))

	q := &fakeQueue{}
	s := newTestService(t, db, nil, q)
	result, err := s.Send(context.Background(), testAuth(), Request{
		From: "alerts@example.com", To: []string{"blocked@x.com"}, Subject: "Hi", HTML: "<p>hi</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Recipients)
	assert.Equal(t, 1, result.Suppressed)
	assert.Equal(t, 0, q.enqueued)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSendHappyPathPersistsAndEnqueues(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT DISTINCT email FROM email_suppressions").
		WillReturnRows(sqlmock.NewRows([]string{"email"}))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO email_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO email_tracking_opens").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO email_tracking_links").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectExec("UPDATE user_billing SET email_used").WillReturnResult(sqlmock.NewResult(1, 1))

	q := &fakeQueue{}
	s := newTestService(t, db, nil, q)
	result, err := s.Send(context.Background(), testAuth(), Request{
		From: "alerts@example.com", To: []string{"to@x.com"}, Subject: "Hi",
		HTML: `<p>hi</p><a href="https://example.com/path">link</a>`,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recipients)
	assert.Equal(t, "queued", result.Status)
	assert.Equal(t, 1, q.enqueued)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSendIdempotencyKeyReturnsCachedResult(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT DISTINCT email FROM email_suppressions").
		WillReturnRows(sqlmock.NewRows([]string{"email"}))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO email_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO email_tracking_opens").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE user_billing SET email_used").WillReturnResult(sqlmock.NewResult(1, 1))

	q := &fakeQueue{}
	s := newTestService(t, db, rdb, q)
	req := Request{
		From: "alerts@example.com", To: []string{"to@x.com"}, Subject: "Hi", HTML: "<p>hi</p>",
		IdempotencyKey: "key-123",
	}

	first, err := s.Send(context.Background(), testAuth(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, q.enqueued)

	second, err := s.Send(context.Background(), testAuth(), req)
	require.NoError(t, err)
	assert.Equal(t, first.JobID, second.JobID)
	assert.Equal(t, 1, q.enqueued, "second call with same idempotency key must not enqueue again")
	require.NoError(t, mock.ExpectationsWereMet())
}
