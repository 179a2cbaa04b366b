package controller

import (
	"github.com/gogf/gf/v2/net/ghttp"

	"github.com/relaysend/mailat/internal/authgate"
	"github.com/relaysend/mailat/pkg/response"
)

// MeController backs GET /api/v1/me, an identity echo of the resolved
// auth context (spec.md §6).
type MeController struct{}

func NewMeController() *MeController {
	return &MeController{}
}

func (c *MeController) Me(r *ghttp.Request) {
	auth := authgate.FromContext(r)
	if auth == nil {
		response.Unauthorized(r, "missing auth context")
		return
	}

	body := map[string]any{
		"user": map[string]any{
			"id":    auth.User.ID,
			"email": auth.User.Email,
			"name":  auth.User.Name,
		},
		"domain": map[string]any{
			"id":          auth.Domain.ID,
			"name":        auth.Domain.Name,
			"txtVerified": auth.Domain.TxtVerified,
		},
		"apiKey": map[string]any{
			"id":   auth.APIKey.ID,
			"name": auth.APIKey.Name,
		},
	}
	if auth.Billing != nil {
		body["billing"] = map[string]any{
			"emailLimit": auth.Billing.EmailLimit,
			"emailUsed":  auth.Billing.EmailUsed,
		}
	}
	response.OK(r, body)
}
