package worker

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaysend/mailat/internal/config"
	"github.com/relaysend/mailat/internal/provider"
)

type fakeProvider struct {
	err    error
	result *provider.SendResult
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) SendEmail(ctx context.Context, msg *provider.EmailMessage) (*provider.SendResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
func (f *fakeProvider) SendRawEmail(context.Context, string, []string, []byte) (*provider.SendResult, error) {
	return nil, nil
}
func (f *fakeProvider) VerifyDomain(context.Context, string) (*provider.DomainVerificationResult, error) {
	return nil, nil
}
func (f *fakeProvider) CheckDomainVerification(context.Context, string) (*provider.DomainIdentity, error) {
	return nil, nil
}
func (f *fakeProvider) DeleteDomainIdentity(context.Context, string) error { return nil }
func (f *fakeProvider) VerifyEmailIdentity(context.Context, string) error { return nil }
func (f *fakeProvider) GetSendQuota(context.Context) (*provider.SendQuota, error) { return nil, nil }
func (f *fakeProvider) GetSendStatistics(context.Context) (*provider.SendStatistics, error) {
	return nil, nil
}
func (f *fakeProvider) IsHealthy(context.Context) bool { return true }
func (f *fakeProvider) Close() error                   { return nil }

type recordingTransitionHook struct {
	transitions []EventTransition
}

func (h *recordingTransitionHook) OnEventTransition(ctx context.Context, t EventTransition) {
	h.transitions = append(h.transitions, t)
}

func testPayload(t *testing.T) []byte {
	t.Helper()
	p := &EmailSendPayload{
		JobID: "job-1", UserID: "user-1", DomainID: "dom-1", APIKeyID: "key-1",
		MessageID: "<abc@example.com>", From: "a@example.com", To: []string{"to@x.com"},
		Subject: "Hi", HTML: "<p>hi</p>",
	}
	data, err := p.Marshal()
	require.NoError(t, err)
	return data
}

func TestHandleSentTransitionsEventsAndFiresHook(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE email_events SET event_type = \\$1").
		WithArgs("sent", sqlmock.AnyArg(), "<abc@example.com>").
		WillReturnResult(sqlmock.NewResult(0, 1))

	hook := &recordingTransitionHook{}
	h := &EmailHandler{db: db, cfg: &config.Config{WorkerMaxAttempts: 3}, provider: &fakeProvider{result: &provider.SendResult{MessageID: "prov-1"}}, hook: hook}

	err = h.Handle(context.Background(), testPayload(t))
	require.NoError(t, err)
	require.Len(t, hook.transitions, 1)
	assert.Equal(t, "sent", hook.transitions[0].EventType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleEmptyRecipientsIsNoop(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := &EmailSendPayload{JobID: "job-1", MessageID: "<abc@example.com>", To: nil}
	data, err := p.Marshal()
	require.NoError(t, err)

	h := &EmailHandler{db: db, cfg: &config.Config{WorkerMaxAttempts: 3}, provider: &fakeProvider{}, hook: noopHook{}}
	err = h.Handle(context.Background(), data)
	require.NoError(t, err)
}

func TestHandleFailureBelowMaxAttemptsTransitionsButDoesNotRollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE email_events SET event_type = \\$1").
		WithArgs("failed", sqlmock.AnyArg(), "<abc@example.com>").
		WillReturnResult(sqlmock.NewResult(0, 1))

	hook := &recordingTransitionHook{}
	h := &EmailHandler{
		db: db, cfg: &config.Config{WorkerMaxAttempts: 3},
		provider: &fakeProvider{err: assertError{"smtp: connection refused"}},
		hook:     hook,
	}

	err = h.Handle(context.Background(), testPayload(t))
	require.Error(t, err)
	require.Len(t, hook.transitions, 1)
	assert.Equal(t, "failed", hook.transitions[0].EventType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleFailureAtMaxAttemptsRollsBackQuota(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE email_events SET event_type = \\$1").
		WithArgs("failed", sqlmock.AnyArg(), "<abc@example.com>").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE user_billing SET email_used = GREATEST").
		WithArgs(1, "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	h := &EmailHandler{
		db: db, cfg: &config.Config{WorkerMaxAttempts: 1},
		provider: &fakeProvider{err: assertError{"smtp: connection refused"}},
		hook:     noopHook{},
	}

	err = h.Handle(context.Background(), testPayload(t))
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
