// Package suppression implements the blocklist engine (spec.md §4.5):
// check, add, soft-bounce accumulate-and-promote, remove, stats. Grounded
// on the idempotent-insert and metadata-JSON patterns in the teacher's
// compliance.go (ON CONFLICT DO NOTHING / DO UPDATE).
package suppression

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/relaysend/mailat/internal/model"
)

type Engine struct {
	db *sql.DB
}

func New(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// Check returns the subset of emails that are currently blocked for
// userID, scoped to domainID when given (NULL-domain rows are global and
// always apply).
func (e *Engine) Check(ctx context.Context, userID string, emails []string, domainID *string) ([]string, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	lowered := make([]string, len(emails))
	for i, addr := range emails {
		lowered[i] = strings.ToLower(strings.TrimSpace(addr))
	}

	query := `SELECT DISTINCT email FROM email_suppressions
		WHERE user_id = $1 AND email = ANY($2) AND reason = ANY($3)`
	args := []any{userID, pqStringArray(lowered), pqStringArray(model.BlockingReasons())}
	if domainID != nil {
		query += ` AND (domain_id IS NULL OR domain_id = $4)`
		args = append(args, *domainID)
	} else {
		query += ` AND domain_id IS NULL`
	}

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("suppression: check: %w", err)
	}
	defer rows.Close()

	var suppressed []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("suppression: scan: %w", err)
		}
		suppressed = append(suppressed, email)
	}
	return suppressed, rows.Err()
}

// Add inserts a suppression row, returning the existing row unchanged if
// one already exists for (userId, email) — idempotent per spec.md §4.5.
func (e *Engine) Add(ctx context.Context, userID, email, reason string, sourceEventID, domainID *string, metadata map[string]any) (*model.EmailSuppression, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if existing, err := e.getByEmail(ctx, userID, email); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("suppression: marshal metadata: %w", err)
	}

	id := uuid.New().String()
	_, err = e.db.ExecContext(ctx,
		`INSERT INTO email_suppressions (id, user_id, domain_id, email, reason, source_event_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (user_id, email) DO NOTHING`,
		id, userID, domainID, email, reason, sourceEventID, metaJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("suppression: insert: %w", err)
	}

	return e.getByEmail(ctx, userID, email)
}

// HandleSoftBounce accumulates soft_bounce counts and promotes to
// hard_bounce at 3, per spec.md §4.5. Existing non-soft_bounce rows are
// left unchanged — a hard_bounce/complaint/unsubscribe/manual row never
// gets downgraded.
func (e *Engine) HandleSoftBounce(ctx context.Context, userID, email string, domainID *string) (*model.EmailSuppression, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := e.getByEmail(ctx, userID, email)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	if existing == nil {
		meta := map[string]any{"softBounceCount": 1, "firstBounceAt": now}
		metaJSON, _ := json.Marshal(meta)
		id := uuid.New().String()
		_, err = e.db.ExecContext(ctx,
			`INSERT INTO email_suppressions (id, user_id, domain_id, email, reason, metadata, created_at)
			 VALUES ($1, $2, $3, $4, 'soft_bounce', $5, NOW())
			 ON CONFLICT (user_id, email) DO NOTHING`,
			id, userID, domainID, email, metaJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("suppression: insert soft bounce: %w", err)
		}
		return e.getByEmail(ctx, userID, email)
	}

	if existing.Reason != model.ReasonSoftBounce {
		return existing, nil
	}

	count := 1
	if raw, ok := existing.Metadata["softBounceCount"]; ok {
		if f, ok := raw.(float64); ok {
			count = int(f)
		}
	}
	newCount := count + 1

	if newCount >= 3 {
		meta := map[string]any{
			"softBounceCount": newCount,
			"upgradedAt":      now,
			"upgradeReason":   "soft_bounce_threshold_reached",
		}
		metaJSON, _ := json.Marshal(meta)
		_, err = e.db.ExecContext(ctx,
			`UPDATE email_suppressions SET reason = 'hard_bounce', metadata = $3 WHERE user_id = $1 AND email = $2`,
			userID, email, metaJSON,
		)
	} else {
		meta := existing.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		meta["softBounceCount"] = newCount
		meta["lastBounceAt"] = now
		metaJSON, _ := json.Marshal(meta)
		_, err = e.db.ExecContext(ctx,
			`UPDATE email_suppressions SET metadata = $3 WHERE user_id = $1 AND email = $2`,
			userID, email, metaJSON,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("suppression: update soft bounce: %w", err)
	}

	return e.getByEmail(ctx, userID, email)
}

// ListFilter mirrors the querystring filters for GET /api/v1/suppressions.
type ListFilter struct {
	Page     int
	Limit    int
	Reason   string
	Email    string
	DomainID string
}

// List returns a page of suppression rows for userID plus the total
// matching count.
func (e *Engine) List(ctx context.Context, userID string, f ListFilter) ([]model.EmailSuppression, int, error) {
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
	if f.Reason != "" {
		args = append(args, f.Reason)
		where = append(where, fmt.Sprintf("reason = $%d", len(args)))
	}
	if f.Email != "" {
		args = append(args, "%"+strings.ToLower(f.Email)+"%")
		where = append(where, fmt.Sprintf("email ILIKE $%d", len(args)))
	}
	if f.DomainID != "" {
		args = append(args, f.DomainID)
		where = append(where, fmt.Sprintf("domain_id = $%d", len(args)))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := e.db.QueryRowContext(ctx, "SELECT count(*) FROM email_suppressions WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("suppression: count: %w", err)
	}

	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf(`SELECT id, user_id, domain_id, email, reason, source_event_id, metadata, created_at
		FROM email_suppressions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, whereClause, len(args)-1, len(args))

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("suppression: list: %w", err)
	}
	defer rows.Close()

	var out []model.EmailSuppression
	for rows.Next() {
		var s model.EmailSuppression
		var domainID, sourceEventID sql.NullString
		var metaJSON []byte
		if err := rows.Scan(&s.ID, &s.UserID, &domainID, &s.Email, &s.Reason, &sourceEventID, &metaJSON, &s.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("suppression: scan: %w", err)
		}
		if domainID.Valid {
			s.DomainID = &domainID.String
		}
		if sourceEventID.Valid {
			s.SourceEventID = &sourceEventID.String
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &s.Metadata)
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// Remove deletes the suppression row iff owned by userID.
func (e *Engine) Remove(ctx context.Context, userID, id string) error {
	res, err := e.db.ExecContext(ctx, `DELETE FROM email_suppressions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("suppression: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("suppression: rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Stats returns a count per reason for userID.
func (e *Engine) Stats(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT reason, count(*) FROM email_suppressions WHERE user_id = $1 GROUP BY reason`, userID)
	if err != nil {
		return nil, fmt.Errorf("suppression: stats: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var reason string
		var count int
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, fmt.Errorf("suppression: scan stats: %w", err)
		}
		out[reason] = count
	}
	return out, rows.Err()
}

func (e *Engine) getByEmail(ctx context.Context, userID, email string) (*model.EmailSuppression, error) {
	var s model.EmailSuppression
	var domainID sql.NullString
	var sourceEventID sql.NullString
	var metaJSON []byte

	err := e.db.QueryRowContext(ctx,
		`SELECT id, user_id, domain_id, email, reason, source_event_id, metadata, created_at
		 FROM email_suppressions WHERE user_id = $1 AND email = $2`,
		userID, email,
	).Scan(&s.ID, &s.UserID, &domainID, &s.Email, &s.Reason, &sourceEventID, &metaJSON, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("suppression: get by email: %w", err)
	}
	if domainID.Valid {
		s.DomainID = &domainID.String
	}
	if sourceEventID.Valid {
		s.SourceEventID = &sourceEventID.String
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &s.Metadata)
	}
	return &s, nil
}

// pqStringArray formats a Go string slice as a Postgres text array literal
// for use with ANY($n), avoiding a dependency on lib/pq's Array helper so
// this package stays storage-driver agnostic at the call site.
func pqStringArray(ss []string) string {
	var b strings.Builder
	b.WriteString("{")
	for i, s := range ss {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`"`)
		b.WriteString(strings.ReplaceAll(s, `"`, `\"`))
		b.WriteString(`"`)
	}
	b.WriteString("}")
	return b.String()
}
