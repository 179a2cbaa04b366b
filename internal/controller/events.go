package controller

import (
	"github.com/gogf/gf/v2/net/ghttp"

	"github.com/relaysend/mailat/internal/authgate"
	"github.com/relaysend/mailat/internal/events"
	"github.com/relaysend/mailat/pkg/response"
)

// EventsController backs the Event API (spec.md §4.8, §6).
type EventsController struct {
	svc *events.Service
}

func NewEventsController(svc *events.Service) *EventsController {
	return &EventsController{svc: svc}
}

// List handles GET /api/v1/events.
func (c *EventsController) List(r *ghttp.Request) {
	auth := authgate.FromContext(r)
	if auth == nil {
		response.Unauthorized(r, "missing auth context")
		return
	}

	filter := events.ListFilter{
		Page:           r.Get("page").Int(),
		Limit:          r.Get("limit").Int(),
		EventType:      r.Get("eventType").String(),
		RecipientEmail: r.Get("recipientEmail").String(),
		MessageID:      r.Get("messageId").String(),
		StartDate:      r.Get("startDate").String(),
		EndDate:        r.Get("endDate").String(),
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = 20
	}

	list, total, err := c.svc.List(r.Context(), auth.User.ID, filter)
	if err != nil {
		response.InternalError(r, "failed to list events")
		return
	}
	response.Paginated(r, list, total, filter.Page, filter.Limit)
}

// ByMessage handles GET /api/v1/events/:messageId.
func (c *EventsController) ByMessage(r *ghttp.Request) {
	auth := authgate.FromContext(r)
	if auth == nil {
		response.Unauthorized(r, "missing auth context")
		return
	}

	messageID := r.Get("messageId").String()
	grouped, err := c.svc.ByMessage(r.Context(), auth.User.ID, messageID)
	if err != nil {
		response.InternalError(r, "failed to load events")
		return
	}
	response.OK(r, grouped)
}

// Stats handles GET /api/v1/events/stats.
func (c *EventsController) Stats(r *ghttp.Request) {
	auth := authgate.FromContext(r)
	if auth == nil {
		response.Unauthorized(r, "missing auth context")
		return
	}

	stats, err := c.svc.Stats(r.Context(), auth.User.ID, r.Get("startDate").String(), r.Get("endDate").String())
	if err != nil {
		response.InternalError(r, "failed to compute stats")
		return
	}
	response.OK(r, stats)
}

// Ingest handles POST /api/v1/events.
func (c *EventsController) Ingest(r *ghttp.Request) {
	auth := authgate.FromContext(r)
	if auth == nil {
		response.Unauthorized(r, "missing auth context")
		return
	}

	var req events.IngestRequest
	if err := r.Parse(&req); err != nil {
		response.BadRequest(r, "invalid request body")
		return
	}

	domainID := auth.Domain.ID
	event, err := c.svc.Ingest(r.Context(), auth.User.ID, &domainID, req)
	if err != nil {
		response.BadRequest(r, err.Error())
		return
	}
	response.Created(r, event)
}
