// Package events implements the Event API (spec.md §4.8, §6): listing with
// filters/pagination, per-message grouping, rate stats, and external event
// ingestion that folds into the suppression engine. Grounded on the
// teacher's tracking.go stats aggregation and compliance.go ingestion
// pattern.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relaysend/mailat/internal/idgen"
	"github.com/relaysend/mailat/internal/model"
	"github.com/relaysend/mailat/internal/suppression"
)

// Hook is the seam a future webhooks-out subsystem attaches to for
// externally-ingested events, mirroring the job worker's transition hook
// (spec.md §1 Non-goal on webhook delivery mechanics — the trigger point is
// kept, the delivery mechanics are not built).
type Hook interface {
	OnEventIngested(ctx context.Context, messageID, eventType string, metadata map[string]any)
}

type noopHook struct{}

func (noopHook) OnEventIngested(context.Context, string, string, map[string]any) {}

type Service struct {
	db          *sql.DB
	suppression *suppression.Engine
	hook        Hook
}

func New(db *sql.DB) *Service {
	return &Service{db: db, suppression: suppression.New(db), hook: noopHook{}}
}

// WithHook attaches a Hook, replacing the default no-op.
func (s *Service) WithHook(hook Hook) *Service {
	s.hook = hook
	return s
}

// ListFilter mirrors the querystring filters spec.md §6 names for
// GET /api/v1/events.
type ListFilter struct {
	Page           int
	Limit          int
	EventType      string
	RecipientEmail string
	MessageID      string
	StartDate      string
	EndDate        string
}

// List returns a page of events for userID plus the total matching count.
func (s *Service) List(ctx context.Context, userID string, f ListFilter) ([]model.EmailEvent, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}

	where := []string{"user_id = $1"}
	args := []any{userID}

	if f.EventType != "" {
		args = append(args, f.EventType)
		where = append(where, fmt.Sprintf("event_type = $%d", len(args)))
	}
	if f.RecipientEmail != "" {
		args = append(args, "%"+f.RecipientEmail+"%")
		where = append(where, fmt.Sprintf("recipient_email ILIKE $%d", len(args)))
	}
	if f.MessageID != "" {
		args = append(args, f.MessageID)
		where = append(where, fmt.Sprintf("message_id = $%d", len(args)))
	}
	if f.StartDate != "" {
		args = append(args, f.StartDate)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.EndDate != "" {
		args = append(args, f.EndDate)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT count(*) FROM email_events WHERE " + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("events: count: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`SELECT id, user_id, message_id, event_type, recipient_email, sending_domain, subject, metadata, ip_address, user_agent, created_at
		FROM email_events WHERE %s ORDER BY id DESC LIMIT $%d OFFSET $%d`, whereClause, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("events: list: %w", err)
	}
	defer rows.Close()

	out, err := scanEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// ByMessage returns every event row for messageId, grouped by recipient.
func (s *Service) ByMessage(ctx context.Context, userID, messageID string) (map[string][]model.EmailEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, message_id, event_type, recipient_email, sending_domain, subject, metadata, ip_address, user_agent, created_at
		 FROM email_events WHERE user_id = $1 AND message_id = $2 ORDER BY id ASC`,
		userID, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("events: by message: %w", err)
	}
	defer rows.Close()

	list, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]model.EmailEvent)
	for _, e := range list {
		grouped[e.RecipientEmail] = append(grouped[e.RecipientEmail], e)
	}
	return grouped, nil
}

// Stats is the computed per-type counts plus delivery/open/click/bounce
// rates, expressed as 2-decimal percentage strings per spec.md §6.
type Stats struct {
	Counts       map[string]int `json:"counts"`
	DeliveryRate string         `json:"deliveryRate"`
	OpenRate     string         `json:"openRate"`
	ClickRate    string         `json:"clickRate"`
	BounceRate   string         `json:"bounceRate"`
}

func (s *Service) Stats(ctx context.Context, userID, startDate, endDate string) (*Stats, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	if startDate != "" {
		args = append(args, startDate)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if endDate != "" {
		args = append(args, endDate)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := "SELECT event_type, count(*) FROM email_events WHERE " + strings.Join(where, " AND ") + " GROUP BY event_type"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("events: stats: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var eventType string
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, fmt.Errorf("events: scan stats: %w", err)
		}
		counts[eventType] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	queued := counts["queued"]
	return &Stats{
		Counts:       counts,
		DeliveryRate: rate(counts["sent"], queued),
		OpenRate:     rate(counts["opened"], queued),
		ClickRate:    rate(counts["clicked"], queued),
		BounceRate:   rate(counts["bounced"], queued),
	}, nil
}

func rate(n, total int) string {
	if total == 0 {
		return "0.00"
	}
	return strconv.FormatFloat(float64(n)/float64(total)*100, 'f', 2, 64)
}

// IngestRequest is the body of POST /api/v1/events (spec.md §4.8).
type IngestRequest struct {
	EventType      string         `json:"eventType"`
	RecipientEmail string         `json:"recipientEmail"`
	MessageID      string         `json:"messageId"`
	Metadata       map[string]any `json:"metadata"`
}

// Ingest inserts an external event and folds terminal event types into the
// suppression engine.
func (s *Service) Ingest(ctx context.Context, userID string, domainID *string, req IngestRequest) (*model.EmailEvent, error) {
	if req.EventType == "" || req.RecipientEmail == "" {
		return nil, fmt.Errorf("eventType and recipientEmail are required")
	}

	eventID := idgen.EventID()
	messageID := req.MessageID
	if messageID == "" {
		messageID = "manual_" + eventID
	}

	metaJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("events: marshal metadata: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO email_events (id, user_id, message_id, event_type, recipient_email, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		eventID, userID, messageID, req.EventType, req.RecipientEmail, metaJSON,
	); err != nil {
		return nil, fmt.Errorf("events: insert: %w", err)
	}

	sourceEventID := eventID
	switch req.EventType {
	case "complained":
		_, err = s.suppression.Add(ctx, userID, req.RecipientEmail, model.ReasonComplaint, &sourceEventID, domainID, req.Metadata)
	case "unsubscribed":
		_, err = s.suppression.Add(ctx, userID, req.RecipientEmail, model.ReasonUnsubscribe, &sourceEventID, domainID, req.Metadata)
	case "bounced":
		if bounceType, _ := req.Metadata["bounceType"].(string); bounceType == "soft_bounce" {
			_, err = s.suppression.HandleSoftBounce(ctx, userID, req.RecipientEmail, domainID)
		} else {
			_, err = s.suppression.Add(ctx, userID, req.RecipientEmail, model.ReasonHardBounce, &sourceEventID, domainID, req.Metadata)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("events: fold into suppression: %w", err)
	}

	s.hook.OnEventIngested(ctx, messageID, req.EventType, req.Metadata)

	return &model.EmailEvent{
		ID: eventID, UserID: userID, MessageID: messageID, EventType: req.EventType,
		RecipientEmail: req.RecipientEmail, Metadata: req.Metadata, CreatedAt: time.Now().UTC(),
	}, nil
}

func scanEvents(rows *sql.Rows) ([]model.EmailEvent, error) {
	var out []model.EmailEvent
	for rows.Next() {
		var e model.EmailEvent
		var sendingDomain, subject, ipAddress, userAgent sql.NullString
		var metaJSON []byte
		if err := rows.Scan(&e.ID, &e.UserID, &e.MessageID, &e.EventType, &e.RecipientEmail,
			&sendingDomain, &subject, &metaJSON, &ipAddress, &userAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan: %w", err)
		}
		e.SendingDomain = sendingDomain.String
		e.Subject = subject.String
		e.IPAddress = ipAddress.String
		e.UserAgent = userAgent.String
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
