package worker

import "encoding/json"

// TypeEmailSend is the only task type the core enqueues (spec.md §4.6).
const TypeEmailSend = "email:send"

// EmailSendPayload is everything the job worker needs to dial the relay
// and transition events, built by the accept-and-enqueue path (spec.md
// §4.2 step 11). Recipients here have already had suppressed addresses
// filtered out.
type EmailSendPayload struct {
	JobID     string            `json:"jobId"`
	UserID    string            `json:"userId"`
	DomainID  string            `json:"domainId"`
	APIKeyID  string            `json:"apiKeyId"`
	MessageID string            `json:"messageId"`
	From      string            `json:"from"`
	FromName  string            `json:"fromName,omitempty"`
	To        []string          `json:"to"`
	Subject   string            `json:"subject"`
	HTML      string            `json:"html,omitempty"`
	Text      string            `json:"text,omitempty"`
	ReplyTo   string            `json:"replyTo,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func (p *EmailSendPayload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

func UnmarshalEmailSendPayload(data []byte) (*EmailSendPayload, error) {
	var p EmailSendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
