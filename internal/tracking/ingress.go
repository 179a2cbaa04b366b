package tracking

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/relaysend/mailat/internal/idgen"
)

// Service backs the tracking ingress endpoints (spec.md §4.7). DB errors
// here are swallowed by callers so the pixel/redirect still resolves —
// see spec.md §7 propagation policy.
type Service struct {
	db *sql.DB
}

func New(db *sql.DB) *Service {
	return &Service{db: db}
}

type openRow struct {
	UserID, MessageID, RecipientEmail, SendingDomain string
	OpenedAt                                         sql.NullTime
}

// RecordOpen increments openCount and, on first touch, inserts an `opened`
// emailEvent row. Returns (found, error); found=false means the id is
// unknown and the caller should still serve the GIF.
func (s *Service) RecordOpen(ctx context.Context, id, ip, userAgent string) (bool, error) {
	var row openRow
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, message_id, recipient_email, sending_domain, opened_at FROM email_tracking_opens WHERE id = $1`,
		id,
	).Scan(&row.UserID, &row.MessageID, &row.RecipientEmail, &row.SendingDomain, &row.OpenedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("tracking: lookup open row: %w", err)
	}

	firstTouch := !row.OpenedAt.Valid

	var newCount int
	err = s.db.QueryRowContext(ctx,
		`UPDATE email_tracking_opens SET open_count = open_count + 1, opened_at = COALESCE(opened_at, NOW())
		 WHERE id = $1 RETURNING open_count`,
		id,
	).Scan(&newCount)
	if err != nil {
		return true, fmt.Errorf("tracking: update open row: %w", err)
	}

	if firstTouch {
		metadata, _ := json.Marshal(map[string]any{"trackingId": id, "openCount": newCount})
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO email_events (id, user_id, message_id, event_type, recipient_email, sending_domain, metadata, ip_address, user_agent, created_at)
			 VALUES ($1, $2, $3, 'opened', $4, $5, $6, $7, $8, NOW())`,
			idgen.EventID(), row.UserID, row.MessageID, row.RecipientEmail, row.SendingDomain, metadata, truncate(ip, 45), truncate(userAgent, 500),
		)
		if err != nil {
			return true, fmt.Errorf("tracking: insert opened event: %w", err)
		}
	}

	return true, nil
}

type clickRow struct {
	UserID, MessageID, RecipientEmail, SendingDomain, OriginalURL string
	ClickedAt                                                     sql.NullTime
}

// RecordClick mirrors RecordOpen for the click-redirect endpoint. Returns
// the original URL to redirect to, or ("", false, nil) if the id is unknown.
func (s *Service) RecordClick(ctx context.Context, id string) (string, bool, error) {
	var row clickRow
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, message_id, recipient_email, sending_domain, original_url, clicked_at FROM email_tracking_links WHERE id = $1`,
		id,
	).Scan(&row.UserID, &row.MessageID, &row.RecipientEmail, &row.SendingDomain, &row.OriginalURL, &row.ClickedAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("tracking: lookup click row: %w", err)
	}

	firstTouch := !row.ClickedAt.Valid

	var newCount int
	err = s.db.QueryRowContext(ctx,
		`UPDATE email_tracking_links SET click_count = click_count + 1, clicked_at = COALESCE(clicked_at, NOW())
		 WHERE id = $1 RETURNING click_count`,
		id,
	).Scan(&newCount)
	if err != nil {
		return row.OriginalURL, true, fmt.Errorf("tracking: update click row: %w", err)
	}

	if firstTouch {
		metadata, _ := json.Marshal(map[string]any{"originalUrl": row.OriginalURL, "clickCount": newCount})
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO email_events (id, user_id, message_id, event_type, recipient_email, sending_domain, metadata, created_at)
			 VALUES ($1, $2, $3, 'clicked', $4, $5, $6, NOW())`,
			idgen.EventID(), row.UserID, row.MessageID, row.RecipientEmail, row.SendingDomain, metadata,
		)
		if err != nil {
			return row.OriginalURL, true, fmt.Errorf("tracking: insert clicked event: %w", err)
		}
	}

	return row.OriginalURL, true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
