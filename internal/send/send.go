// Package send implements the accept-and-enqueue path (spec.md §4.2), the
// hot path tying the template renderer, tracking rewriter, suppression
// engine, quota reservation, and job queue together. Grounded on the
// teacher's TransactionalService.SendEmail, regrounded around the new
// schema and the explicit filtering behavior spec.md §9 calls for.
package send

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaysend/mailat/internal/authgate"
	"github.com/relaysend/mailat/internal/idgen"
	"github.com/relaysend/mailat/internal/queue"
	"github.com/relaysend/mailat/internal/render"
	"github.com/relaysend/mailat/internal/suppression"
	"github.com/relaysend/mailat/internal/tracking"
	"github.com/relaysend/mailat/internal/worker"
)

const idempotencyTTL = 24 * time.Hour

// Kind categorizes a Error for HTTP status mapping (spec.md §7).
type Kind string

const (
	KindValidation Kind = "validation"
	KindForbidden  Kind = "forbidden"
	KindNotFound   Kind = "not_found"
	KindQuota      Kind = "quota"
	KindInternal   Kind = "internal"
)

// Error is the taxonomy the controller maps to {error, message} JSON.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func validationErr(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Request is the normalized wire input, post-ParseTo/ParseVariables.
type Request struct {
	From            string
	To              []string
	Subject         string
	HTML            string
	Text            string
	TemplateID      string
	Variables       map[string]string
	Headers         map[string]string
	ReplyTo         string
	DisableTracking bool
	IdempotencyKey  string
}

// Result is what the controller echoes back per spec.md §4.2 step 12, §6.
type Result struct {
	Success    bool   `json:"success"`
	JobID      string `json:"jobId"`
	MessageID  string `json:"messageId"`
	Recipients int    `json:"recipients"`
	Suppressed int    `json:"suppressed"`
	Status     string `json:"status"`
}

type Service struct {
	db          *sql.DB
	redis       *redis.Client
	renderer    *render.Renderer
	suppression *suppression.Engine
	queue       queue.Queue
	cfg         Config
}

// Config is the subset of worker/runtime settings the send pipeline needs.
type Config struct {
	TrackingBaseURL     string
	EnableOpenTracking  bool
	EnableClickTracking bool
	WorkerMaxAttempts   int
	WorkerRetryBaseSec  int
}

func New(db *sql.DB, rdb *redis.Client, q queue.Queue, cfg Config) *Service {
	return &Service{
		db:          db,
		redis:       rdb,
		renderer:    render.New(&templateStore{db: db}),
		suppression: suppression.New(db),
		queue:       q,
		cfg:         cfg,
	}
}

func (s *Service) idempotencyCacheKey(userID, key string) string {
	return "idempotency:" + userID + ":" + key
}

// idempotentResult returns a previously cached Result for (userID, key), if
// any. Redis errors are treated as a cache miss — the idempotency cache is
// an optimization, never the source of truth (SPEC_FULL.md Idempotency-Key
// supplement).
func (s *Service) idempotentResult(ctx context.Context, userID, key string) (*Result, bool) {
	if s.redis == nil || key == "" {
		return nil, false
	}
	data, err := s.redis.Get(ctx, s.idempotencyCacheKey(userID, key)).Bytes()
	if err != nil {
		return nil, false
	}
	var cached Result
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false
	}
	return &cached, true
}

func (s *Service) cacheIdempotentResult(ctx context.Context, userID, key string, result *Result) {
	if s.redis == nil || key == "" {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, s.idempotencyCacheKey(userID, key), data, idempotencyTTL).Err()
}

// Send runs the full accept-and-enqueue algorithm, spec.md §4.2.
func (s *Service) Send(ctx context.Context, auth *authgate.AuthContext, req Request) (*Result, error) {
	if cached, ok := s.idempotentResult(ctx, auth.User.ID, req.IdempotencyKey); ok {
		return cached, nil
	}

	name, address, err := ParseFrom(req.From)
	if err != nil {
		return nil, validationErr("%s", err.Error())
	}
	if !strings.EqualFold(DomainOf(address), auth.Domain.Name) {
		return nil, &Error{Kind: KindForbidden, Message: fmt.Sprintf("from address must be on domain %s", auth.Domain.Name)}
	}

	if len(req.To) == 0 {
		return nil, validationErr("at least one recipient required")
	}

	if auth.Billing != nil && auth.Billing.EmailUsed+len(req.To) > auth.Billing.EmailLimit {
		return nil, &Error{Kind: KindQuota, Message: fmt.Sprintf(
			"Monthly email limit reached. Used: %d/%d", auth.Billing.EmailUsed, auth.Billing.EmailLimit)}
	}

	subject, htmlBody, textBody, err := s.resolveContent(ctx, auth.User.ID, req)
	if err != nil {
		return nil, err
	}
	if subject == "" {
		return nil, validationErr("subject is required")
	}
	if htmlBody == "" && textBody == "" {
		return nil, validationErr("html or text body is required")
	}

	domainIDCopy := auth.Domain.ID
	suppressed, err := s.suppression.Check(ctx, auth.User.ID, req.To, &domainIDCopy)
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "failed to check suppression list"}
	}
	blocked := make(map[string]bool, len(suppressed))
	for _, e := range suppressed {
		blocked[e] = true
	}

	effective := make([]string, 0, len(req.To))
	for _, to := range req.To {
		if !blocked[strings.ToLower(strings.TrimSpace(to))] {
			effective = append(effective, to)
		}
	}

	jobID := idgen.JobID()
	messageID := idgen.MessageID(auth.Domain.Name)

	trackingApplied := !req.DisableTracking && htmlBody != "" && s.cfg.EnableOpenTracking
	finalHTML := htmlBody
	var rewriteResult *tracking.Result
	if trackingApplied {
		rewriteResult = tracking.Rewrite(htmlBody, s.cfg.TrackingBaseURL)
		finalHTML = rewriteResult.ModifiedHTML
	}

	result := &Result{
		Success:    true,
		JobID:      jobID,
		MessageID:  messageID,
		Recipients: len(effective),
		Suppressed: len(req.To) - len(effective),
		Status:     "queued",
	}

	if len(effective) == 0 {
		s.cacheIdempotentResult(ctx, auth.User.ID, req.IdempotencyKey, result)
		return result, nil
	}

	if err := s.persist(ctx, auth, messageID, subject, effective, rewriteResult); err != nil {
		return nil, &Error{Kind: KindInternal, Message: "failed to persist send"}
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE user_billing SET email_used = email_used + $1 WHERE user_id = $2`, len(effective), auth.User.ID,
	); err != nil {
		return nil, &Error{Kind: KindInternal, Message: "failed to reserve quota"}
	}

	payload := &worker.EmailSendPayload{
		JobID:     jobID,
		UserID:    auth.User.ID,
		DomainID:  auth.Domain.ID,
		APIKeyID:  auth.APIKey.ID,
		MessageID: messageID,
		From:      address,
		FromName:  name,
		To:        effective,
		Subject:   subject,
		HTML:      finalHTML,
		Text:      textBody,
		ReplyTo:   req.ReplyTo,
		Headers:   req.Headers,
	}
	data, err := payload.Marshal()
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: "failed to marshal job payload"}
	}
	// MaxRetry counts retries after the first attempt, so WorkerMaxAttempts
	// attempts in total matches the worker's terminal-attempt check.
	if err := s.queue.Enqueue(ctx, jobID, worker.TypeEmailSend, queue.Payload(data), queue.EnqueueOptions{
		MaxRetry: s.cfg.WorkerMaxAttempts - 1,
	}); err != nil {
		return nil, &Error{Kind: KindInternal, Message: "failed to enqueue job"}
	}

	s.cacheIdempotentResult(ctx, auth.User.ID, req.IdempotencyKey, result)
	return result, nil
}

func (s *Service) resolveContent(ctx context.Context, userID string, req Request) (subject, htmlBody, textBody string, err error) {
	if req.TemplateID != "" {
		rendered, rerr := s.renderer.Render(ctx, userID, req.TemplateID, req.Variables)
		if rerr != nil {
			return "", "", "", &Error{Kind: KindInternal, Message: "failed to render template"}
		}
		if rendered == nil {
			return "", "", "", &Error{Kind: KindNotFound, Message: "template not found"}
		}
		return rendered.Subject, rendered.HTML, req.Text, nil
	}
	return req.Subject, req.HTML, req.Text, nil
}

// persist inserts the queued event row per recipient and, when tracking
// applied, one emailTrackingOpen row per recipient plus the click-link
// rows once overall (spec.md §4.2 step 9).
func (s *Service) persist(ctx context.Context, auth *authgate.AuthContext, messageID, subject string, recipients []string, rw *tracking.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("send: begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, recipient := range recipients {
		eventID := idgen.EventID()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO email_events (id, user_id, message_id, event_type, recipient_email, sending_domain, subject, metadata, created_at)
			 VALUES ($1, $2, $3, 'queued', $4, $5, $6, '{}', NOW())`,
			eventID, auth.User.ID, messageID, recipient, auth.Domain.Name, subject,
		); err != nil {
			return fmt.Errorf("send: insert queued event: %w", err)
		}

		if rw != nil {
			openID := rw.OpenTrackingID
			if i > 0 {
				openID = rw.OpenTrackingID + "_" + strconv.Itoa(i)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO email_tracking_opens (id, user_id, message_id, recipient_email, sending_domain, open_count, created_at)
				 VALUES ($1, $2, $3, $4, $5, 0, NOW())`,
				openID, auth.User.ID, messageID, recipient, auth.Domain.Name,
			); err != nil {
				return fmt.Errorf("send: insert tracking open: %w", err)
			}

			if i == 0 {
				for _, link := range rw.Links {
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO email_tracking_links (id, user_id, message_id, recipient_email, sending_domain, original_url, click_count, created_at)
						 VALUES ($1, $2, $3, $4, $5, $6, 0, NOW())`,
						link.TrackingID, auth.User.ID, messageID, recipient, auth.Domain.Name, link.OriginalURL,
					); err != nil {
						return fmt.Errorf("send: insert tracking link: %w", err)
					}
				}
			}
		}
	}

	return tx.Commit()
}
