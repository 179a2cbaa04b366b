// Package model holds the data-access structs for the send pipeline's
// tables. Field names mirror spec.md §3; JSON tags follow the teacher's
// camelCase convention.
package model

import "time"

// User is external to the core; read-only.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Domain gates sending: a FROM address is only authorized against a
// verified domain.
type Domain struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	TxtVerified bool   `json:"txtVerified"`
}

// DomainApiKey is the credential resolved by the authentication gate.
type DomainApiKey struct {
	ID         string     `json:"id"`
	UserID     string     `json:"userId"`
	DomainID   string     `json:"domainId"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	IsActive   bool       `json:"isActive"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// UserBilling tracks the monthly quota consumed by accept-and-enqueue.
type UserBilling struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	EmailLimit int    `json:"emailLimit"`
	EmailUsed  int    `json:"emailUsed"`
}

// EmailTemplate is resolved by id-or-slug in the template renderer.
type EmailTemplate struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Slug        string    `json:"slug"`
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"htmlContent"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// EmailTemplateVariable supplies a fallback value applied after caller
// variables during rendering.
type EmailTemplateVariable struct {
	TemplateID   string `json:"templateId"`
	Name         string `json:"name"`
	DefaultValue string `json:"defaultValue"`
}

// EmailEvent is the append-in-spirit lifecycle row keyed by (messageId,
// recipient); the `queued` row is the one the worker transitions.
type EmailEvent struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	MessageID      string         `json:"messageId"`
	EventType      string         `json:"eventType"`
	RecipientEmail string         `json:"recipientEmail"`
	SendingDomain  string         `json:"sendingDomain,omitempty"`
	Subject        string         `json:"subject,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	IPAddress      string         `json:"ipAddress,omitempty"`
	UserAgent      string         `json:"userAgent,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// EmailTrackingOpen backs the 1x1 pixel endpoint.
type EmailTrackingOpen struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	MessageID      string     `json:"messageId"`
	RecipientEmail string     `json:"recipientEmail"`
	SendingDomain  string     `json:"sendingDomain,omitempty"`
	OpenedAt       *time.Time `json:"openedAt,omitempty"`
	OpenCount      int        `json:"openCount"`
}

// EmailTrackingLink backs the click-redirect endpoint.
type EmailTrackingLink struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	MessageID      string     `json:"messageId"`
	RecipientEmail string     `json:"recipientEmail"`
	SendingDomain  string     `json:"sendingDomain,omitempty"`
	OriginalURL    string     `json:"originalUrl"`
	ClickedAt      *time.Time `json:"clickedAt,omitempty"`
	ClickCount     int        `json:"clickCount"`
}

// Blocking suppression reasons; soft_bounce is tracked but never blocks.
const (
	ReasonHardBounce = "hard_bounce"
	ReasonSoftBounce = "soft_bounce"
	ReasonComplaint  = "complaint"
	ReasonUnsubscribe = "unsubscribe"
	ReasonManual     = "manual"
)

// BlockingReasons returns the suppression reasons that prevent sending.
func BlockingReasons() []string {
	return []string{ReasonHardBounce, ReasonComplaint, ReasonUnsubscribe, ReasonManual}
}

// EmailSuppression is unique per (userId, email); soft-bounce promotion to
// hard_bounce is an update of this row, never a second insert.
type EmailSuppression struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	DomainID      *string        `json:"domainId,omitempty"`
	Email         string         `json:"email"`
	Reason        string         `json:"reason"`
	SourceEventID *string        `json:"sourceEventId,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}
