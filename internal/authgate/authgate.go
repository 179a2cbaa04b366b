// Package authgate implements the authentication and tenancy gate
// (spec.md §4.1). Grounded on the teacher's middleware/auth.go Bearer/API
// key flow, reworked around a single resolved AuthContext passed through
// request context values (spec.md §9's explicit instruction to avoid
// mutating a framework-global store) instead of the teacher's JWT/API-key
// dual path — the core only ever accepts Bearer API keys.
package authgate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"

	"github.com/gogf/gf/v2/net/ghttp"

	"github.com/relaysend/mailat/internal/model"
	"github.com/relaysend/mailat/pkg/response"
)

type contextKey string

const authContextKey contextKey = "authContext"

// AuthContext is the resolved identity attached to a request after the
// gate succeeds.
type AuthContext struct {
	APIKey  model.DomainApiKey
	Domain  model.Domain
	User    model.User
	Billing *model.UserBilling
}

// Middleware validates the Authorization header and, on success, attaches
// an *AuthContext to the request context before calling r.Middleware.Next.
func Middleware(db *sql.DB) func(r *ghttp.Request) {
	return func(r *ghttp.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.Unauthorized(r, "Missing Authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			response.Unauthorized(r, "Invalid Authorization format")
			return
		}
		raw := strings.TrimSpace(authHeader[len("Bearer "):])
		if raw == "" {
			response.Unauthorized(r, "API key is empty")
			return
		}

		sum := sha256.Sum256([]byte(raw))
		keyHash := hex.EncodeToString(sum[:])

		auth, err := resolve(r.Context(), db, keyHash)
		if err == sql.ErrNoRows {
			response.Unauthorized(r, "Invalid API key")
			return
		}
		if err != nil {
			response.InternalError(r, "Failed to authenticate")
			return
		}
		if !auth.APIKey.IsActive {
			response.Unauthorized(r, "API key is disabled")
			return
		}
		if !auth.Domain.TxtVerified {
			response.Forbidden(r, "Domain is not verified")
			return
		}

		// Best-effort fire-and-forget lastUsedAt update; failures must
		// never fail the request (spec.md §9 async fire-and-forget).
		go func(hash string) {
			_, _ = db.ExecContext(context.Background(),
				`UPDATE domain_api_keys SET last_used_at = NOW() WHERE key_hash = $1`, hash)
		}(keyHash)

		ctx := context.WithValue(r.Context(), authContextKey, auth)
		r.SetCtx(ctx)

		r.Middleware.Next()
	}
}

// FromContext extracts the AuthContext attached by Middleware.
func FromContext(r *ghttp.Request) *AuthContext {
	auth, ok := r.Context().Value(authContextKey).(*AuthContext)
	if !ok {
		return nil
	}
	return auth
}

func resolve(ctx context.Context, db *sql.DB, keyHash string) (*AuthContext, error) {
	var auth AuthContext
	var lastUsedAt sql.NullTime
	var billingID, billingUserID sql.NullString
	var emailLimit, emailUsed sql.NullInt64

	err := db.QueryRowContext(ctx, `
		SELECT
			k.id, k.user_id, k.domain_id, k.name, k.is_active, k.last_used_at,
			d.id, d.user_id, d.name, d.txt_verified,
			u.id, u.email, u.name,
			b.id, b.user_id, b.email_limit, b.email_used
		FROM domain_api_keys k
		JOIN domains d ON d.id = k.domain_id
		JOIN users u ON u.id = k.user_id
		LEFT JOIN user_billing b ON b.user_id = u.id
		WHERE k.key_hash = $1
	`, keyHash).Scan(
		&auth.APIKey.ID, &auth.APIKey.UserID, &auth.APIKey.DomainID, &auth.APIKey.Name, &auth.APIKey.IsActive, &lastUsedAt,
		&auth.Domain.ID, &auth.Domain.UserID, &auth.Domain.Name, &auth.Domain.TxtVerified,
		&auth.User.ID, &auth.User.Email, &auth.User.Name,
		&billingID, &billingUserID, &emailLimit, &emailUsed,
	)
	if err != nil {
		return nil, err
	}

	if lastUsedAt.Valid {
		auth.APIKey.LastUsedAt = &lastUsedAt.Time
	}
	if billingID.Valid {
		auth.Billing = &model.UserBilling{
			ID:         billingID.String,
			UserID:     billingUserID.String,
			EmailLimit: int(emailLimit.Int64),
			EmailUsed:  int(emailUsed.Int64),
		}
	}

	return &auth, nil
}
