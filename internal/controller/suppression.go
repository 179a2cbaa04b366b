package controller

import (
	"database/sql"

	"github.com/gogf/gf/v2/net/ghttp"

	"github.com/relaysend/mailat/internal/authgate"
	"github.com/relaysend/mailat/internal/model"
	"github.com/relaysend/mailat/internal/suppression"
	"github.com/relaysend/mailat/pkg/response"
)

// SuppressionController backs the suppression list API (spec.md §4.5, §6).
type SuppressionController struct {
	engine *suppression.Engine
}

func NewSuppressionController(engine *suppression.Engine) *SuppressionController {
	return &SuppressionController{engine: engine}
}

// List handles GET /api/v1/suppressions.
func (c *SuppressionController) List(r *ghttp.Request) {
	auth := authgate.FromContext(r)
	if auth == nil {
		response.Unauthorized(r, "missing auth context")
		return
	}

	filter := suppression.ListFilter{
		Page:     r.Get("page").Int(),
		Limit:    r.Get("limit").Int(),
		Reason:   r.Get("reason").String(),
		Email:    r.Get("email").String(),
		DomainID: r.Get("domainId").String(),
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	list, total, err := c.engine.List(r.Context(), auth.User.ID, filter)
	if err != nil {
		response.InternalError(r, "failed to list suppressions")
		return
	}
	response.Paginated(r, list, total, filter.Page, filter.Limit)
}

// Check handles GET /api/v1/suppressions/check.
func (c *SuppressionController) Check(r *ghttp.Request) {
	auth := authgate.FromContext(r)
	if auth == nil {
		response.Unauthorized(r, "missing auth context")
		return
	}

	email := r.Get("email").String()
	if email == "" {
		response.BadRequest(r, "email is required")
		return
	}

	domainID := auth.Domain.ID
	blocked, err := c.engine.Check(r.Context(), auth.User.ID, []string{email}, &domainID)
	if err != nil {
		response.InternalError(r, "failed to check suppression")
		return
	}
	response.OK(r, map[string]any{
		"email":      email,
		"suppressed": len(blocked) > 0,
	})
}

// addBody is the body of POST /api/v1/suppressions.
type addBody struct {
	Email    string         `json:"email"`
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata"`
}

// Add handles POST /api/v1/suppressions.
func (c *SuppressionController) Add(r *ghttp.Request) {
	auth := authgate.FromContext(r)
	if auth == nil {
		response.Unauthorized(r, "missing auth context")
		return
	}

	var body addBody
	if err := r.Parse(&body); err != nil {
		response.BadRequest(r, "invalid request body")
		return
	}
	if body.Email == "" {
		response.BadRequest(r, "email is required")
		return
	}
	if body.Reason == "" {
		body.Reason = model.ReasonManual
	}

	domainID := auth.Domain.ID
	row, err := c.engine.Add(r.Context(), auth.User.ID, body.Email, body.Reason, nil, &domainID, body.Metadata)
	if err != nil {
		response.InternalError(r, "failed to add suppression")
		return
	}
	response.Created(r, row)
}

// Delete handles DELETE /api/v1/suppressions/:id.
func (c *SuppressionController) Delete(r *ghttp.Request) {
	auth := authgate.FromContext(r)
	if auth == nil {
		response.Unauthorized(r, "missing auth context")
		return
	}

	id := r.Get("id").String()
	if err := c.engine.Remove(r.Context(), auth.User.ID, id); err != nil {
		if err == sql.ErrNoRows {
			response.NotFound(r, "suppression not found")
			return
		}
		response.InternalError(r, "failed to remove suppression")
		return
	}
	response.OK(r, map[string]any{"removed": true})
}

// Stats handles GET /api/v1/suppressions/stats.
func (c *SuppressionController) Stats(r *ghttp.Request) {
	auth := authgate.FromContext(r)
	if auth == nil {
		response.Unauthorized(r, "missing auth context")
		return
	}

	byReason, err := c.engine.Stats(r.Context(), auth.User.ID)
	if err != nil {
		response.InternalError(r, "failed to compute suppression stats")
		return
	}
	total := 0
	for _, n := range byReason {
		total += n
	}
	response.OK(r, map[string]any{
		"total":    total,
		"byReason": byReason,
	})
}
