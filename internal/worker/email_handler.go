package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/relaysend/mailat/internal/config"
	"github.com/relaysend/mailat/internal/provider"
)

// EmailHandler dials the configured relay, transitions the per-recipient
// emailEvent rows, and rolls back quota on terminal failure — spec.md
// §4.6. Grounded on the teacher's EmailHandler, trimmed of the
// transactional_emails/webhooks tables that don't exist in this schema.
type EmailHandler struct {
	db       *sql.DB
	cfg      *config.Config
	provider provider.EmailProvider
	hook     EventTransitionHook
}

// NewEmailHandler builds a handler with the no-op transition hook. Use
// WithHook to attach a webhook-delivery subsystem later.
func NewEmailHandler(db *sql.DB, cfg *config.Config) *EmailHandler {
	h := &EmailHandler{db: db, cfg: cfg, hook: noopHook{}}

	if cfg.EmailProvider == "ses" && cfg.AWSAccessKeyID != "" {
		sesProvider, err := provider.NewSESProvider(context.Background(), &provider.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			fmt.Printf("worker: failed to create SES provider: %v, falling back to SMTP relay\n", err)
			h.provider = newRelayProvider(cfg)
		} else {
			h.provider = sesProvider
		}
	} else {
		h.provider = newRelayProvider(cfg)
	}

	return h
}

// WithHook attaches an EventTransitionHook, replacing the default no-op.
func (h *EmailHandler) WithHook(hook EventTransitionHook) *EmailHandler {
	h.hook = hook
	return h
}

func newRelayProvider(cfg *config.Config) provider.EmailProvider {
	return provider.NewSMTPProvider(&provider.SMTPConfig{
		Host:          cfg.HarakaHost,
		Port:          cfg.HarakaPort,
		Username:      cfg.SMTPUser,
		Password:      cfg.SMTPPassword,
		UseTLS:        cfg.SMTPTLS,
		SkipTLSVerify: cfg.SMTPSkipTLSVerify,
	})
}

// Handle processes one email:send job.
func (h *EmailHandler) Handle(ctx context.Context, payload []byte) error {
	p, err := UnmarshalEmailSendPayload(payload)
	if err != nil {
		return fmt.Errorf("worker: unmarshal payload: %w", err)
	}
	if len(p.To) == 0 {
		// Every recipient was suppressed at accept time; nothing to send
		// and nothing to transition.
		return nil
	}

	msg := h.buildMessage(p)

	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	result, sendErr := h.provider.SendEmail(sendCtx, msg)

	attempt := asynq.GetRetryCount(ctx) + 1
	maxAttempts := h.cfg.WorkerMaxAttempts

	if sendErr != nil {
		metadata := map[string]any{
			"error":   sendErr.Error(),
			"attempt": attempt,
		}
		if updateErr := h.transitionEvents(ctx, p.MessageID, "failed", metadata); updateErr != nil {
			fmt.Printf("worker: failed to transition events to failed: %v\n", updateErr)
		}
		h.hook.OnEventTransition(ctx, EventTransition{MessageID: p.MessageID, EventType: "failed", Metadata: metadata})

		if attempt >= maxAttempts {
			if rbErr := h.rollbackQuota(ctx, p.UserID, len(p.To)); rbErr != nil {
				fmt.Printf("worker: quota rollback failed: %v\n", rbErr)
			}
		}

		return fmt.Errorf("worker: send failed (attempt %d/%d): %w", attempt, maxAttempts, sendErr)
	}

	metadata := map[string]any{
		"provider": h.provider.Name(),
		"accepted": p.To,
	}
	if result != nil && result.MessageID != "" {
		metadata["providerMessageId"] = result.MessageID
	}
	if updateErr := h.transitionEvents(ctx, p.MessageID, "sent", metadata); updateErr != nil {
		return fmt.Errorf("worker: transition events to sent: %w", updateErr)
	}
	h.hook.OnEventTransition(ctx, EventTransition{MessageID: p.MessageID, EventType: "sent", Metadata: metadata})

	return nil
}

// transitionEvents scopes its UPDATE to rows still in `queued` state so a
// later opened/clicked row for the same messageId is never clobbered
// (spec.md §9 Design Note on event row mutation).
func (h *EmailHandler) transitionEvents(ctx context.Context, messageID, eventType string, metadata map[string]any) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = h.db.ExecContext(ctx,
		`UPDATE email_events SET event_type = $1, metadata = $2 WHERE message_id = $3 AND event_type = 'queued'`,
		eventType, metaJSON, messageID,
	)
	return err
}

// rollbackQuota decrements emailUsed, clamped at 0, on terminal failure.
func (h *EmailHandler) rollbackQuota(ctx context.Context, userID string, n int) error {
	_, err := h.db.ExecContext(ctx,
		`UPDATE user_billing SET email_used = GREATEST(0, email_used - $1) WHERE user_id = $2`,
		n, userID,
	)
	return err
}

func (h *EmailHandler) buildMessage(p *EmailSendPayload) *provider.EmailMessage {
	headers := map[string]string{
		"X-Message-Id": p.MessageID,
		"X-User-Id":    p.UserID,
		"X-Domain-Id":  p.DomainID,
		"X-API-Key-Id": p.APIKeyID,
	}
	for k, v := range p.Headers {
		headers[k] = v
	}

	from := p.From
	if p.FromName != "" {
		from = fmt.Sprintf("%q <%s>", p.FromName, p.From)
	}

	return &provider.EmailMessage{
		From:      from,
		To:        p.To,
		ReplyTo:   p.ReplyTo,
		Subject:   p.Subject,
		TextBody:  p.Text,
		HTMLBody:  p.HTML,
		MessageID: p.MessageID,
		Headers:   headers,
	}
}
