package controller

import (
	"encoding/json"

	"github.com/gogf/gf/v2/net/ghttp"

	"github.com/relaysend/mailat/internal/authgate"
	"github.com/relaysend/mailat/internal/send"
	"github.com/relaysend/mailat/pkg/response"
)

// SendController backs POST /api/v1/send (spec.md §4.2, §6).
type SendController struct {
	svc *send.Service
}

func NewSendController(svc *send.Service) *SendController {
	return &SendController{svc: svc}
}

// sendBody mirrors the wire request; To and Variables accept the relaxed
// shapes send.ParseTo/send.ParseVariables normalize.
type sendBody struct {
	From            string            `json:"from"`
	To              json.RawMessage   `json:"to"`
	Subject         string            `json:"subject"`
	HTML            string            `json:"html"`
	Text            string            `json:"text"`
	TemplateID      string            `json:"templateId"`
	Variables       json.RawMessage   `json:"variables"`
	Headers         map[string]string `json:"headers"`
	ReplyTo         string            `json:"replyTo"`
	DisableTracking bool              `json:"disableTracking"`
}

func (c *SendController) Send(r *ghttp.Request) {
	auth := authgate.FromContext(r)
	if auth == nil {
		response.Unauthorized(r, "missing auth context")
		return
	}

	var body sendBody
	if err := r.Parse(&body); err != nil {
		response.BadRequest(r, "invalid request body")
		return
	}

	to, err := send.ParseTo(body.To)
	if err != nil {
		response.BadRequest(r, err.Error())
		return
	}

	req := send.Request{
		From:            body.From,
		To:              to,
		Subject:         body.Subject,
		HTML:            body.HTML,
		Text:            body.Text,
		TemplateID:      body.TemplateID,
		Variables:       send.ParseVariables(body.Variables),
		Headers:         body.Headers,
		ReplyTo:         body.ReplyTo,
		DisableTracking: body.DisableTracking,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	}

	result, err := c.svc.Send(r.Context(), auth, req)
	if err != nil {
		writeSendError(r, err)
		return
	}
	response.OK(r, result)
}

func writeSendError(r *ghttp.Request, err error) {
	sendErr, ok := err.(*send.Error)
	if !ok {
		response.InternalError(r, "failed to send")
		return
	}
	switch sendErr.Kind {
	case send.KindValidation:
		response.BadRequest(r, sendErr.Message)
	case send.KindForbidden:
		response.Forbidden(r, sendErr.Message)
	case send.KindNotFound:
		response.NotFound(r, sendErr.Message)
	case send.KindQuota:
		response.QuotaExceeded(r, sendErr.Message)
	default:
		response.InternalError(r, sendErr.Message)
	}
}
