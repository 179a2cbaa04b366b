package events

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "message_id", "event_type", "recipient_email",
		"sending_domain", "subject", "metadata", "ip_address", "user_agent", "created_at",
	})
}

func TestListAppliesFiltersAndPagination(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM email_events").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	now := time.Now().UTC()
	rows := eventRows().AddRow("evt-1", "user-1", "msg-1", "sent", "a@example.com", "example.com", "Hi", []byte(`{}`), nil, nil, now)
	mock.ExpectQuery("SELECT id, user_id, message_id, event_type").
		WillReturnRows(rows)

	s := New(db)
	list, total, err := s.List(context.Background(), "user-1", ListFilter{EventType: "sent", Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, "sent", list[0].EventType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestByMessageGroupsByRecipient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := eventRows().
		AddRow("evt-1", "user-1", "msg-1", "queued", "a@example.com", "example.com", "Hi", []byte(`{}`), nil, nil, now).
		AddRow("evt-2", "user-1", "msg-1", "sent", "a@example.com", "example.com", "Hi", []byte(`{}`), nil, nil, now).
		AddRow("evt-3", "user-1", "msg-1", "queued", "b@example.com", "example.com", "Hi", []byte(`{}`), nil, nil, now)
	mock.ExpectQuery("SELECT id, user_id, message_id, event_type").
		WithArgs("user-1", "msg-1").
		WillReturnRows(rows)

	s := New(db)
	grouped, err := s.ByMessage(context.Background(), "user-1", "msg-1")
	require.NoError(t, err)
	assert.Len(t, grouped["a@example.com"], 2)
	assert.Len(t, grouped["b@example.com"], 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsComputesRatesAgainstQueued(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"event_type", "count"}).
		AddRow("queued", 100).
		AddRow("sent", 90).
		AddRow("opened", 45).
		AddRow("bounced", 5)
	mock.ExpectQuery("SELECT event_type, count\\(\\*\\) FROM email_events").
		WillReturnRows(rows)

	s := New(db)
	stats, err := s.Stats(context.Background(), "user-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "90.00", stats.DeliveryRate)
	assert.Equal(t, "45.00", stats.OpenRate)
	assert.Equal(t, "0.00", stats.ClickRate)
	assert.Equal(t, "5.00", stats.BounceRate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStatsWithNoEventsReturnsZeroRates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT event_type, count\\(\\*\\) FROM email_events").
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}))

	s := New(db)
	stats, err := s.Stats(context.Background(), "user-1", "", "")
	require.NoError(t, err)
	assert.Equal(t, "0.00", stats.DeliveryRate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestRejectsMissingFields(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := New(db)
	_, err = s.Ingest(context.Background(), "user-1", nil, IngestRequest{})
	assert.Error(t, err)
}

func TestIngestBounceFoldsIntoSuppression(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO email_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	empty := sqlmock.NewRows([]string{"id", "user_id", "domain_id", "email", "reason", "source_event_id", "metadata", "created_at"})
	mock.ExpectQuery("SELECT id, user_id, domain_id, email, reason, source_event_id, metadata, created_at").
		WillReturnRows(empty)
	mock.ExpectExec("INSERT INTO email_suppressions").
		WillReturnResult(sqlmock.NewResult(1, 1))
	inserted := sqlmock.NewRows([]string{"id", "user_id", "domain_id", "email", "reason", "source_event_id", "metadata", "created_at"}).
		AddRow("sup-1", "user-1", nil, "bounced@example.com", "hard_bounce", nil, []byte(`{}`), time.Now().UTC())
	mock.ExpectQuery("SELECT id, user_id, domain_id, email, reason, source_event_id, metadata, created_at").
		WillReturnRows(inserted)

	s := New(db)
	event, err := s.Ingest(context.Background(), "user-1", nil, IngestRequest{
		EventType:      "bounced",
		RecipientEmail: "bounced@example.com",
		MessageID:      "msg-1",
		Metadata:       map[string]any{"bounceType": "hard_bounce"},
	})
	require.NoError(t, err)
	assert.Equal(t, "bounced", event.EventType)
	require.NoError(t, mock.ExpectationsWereMet())
}

type recordingHook struct {
	calls int
}

func (h *recordingHook) OnEventIngested(context.Context, string, string, map[string]any) {
	h.calls++
}

func TestIngestCallsHook(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO email_events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	hook := &recordingHook{}
	s := New(db).WithHook(hook)
	_, err = s.Ingest(context.Background(), "user-1", nil, IngestRequest{
		EventType:      "delivered",
		RecipientEmail: "a@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, hook.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}
