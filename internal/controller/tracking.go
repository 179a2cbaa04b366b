package controller

import (
	"strings"

	"github.com/gogf/gf/v2/net/ghttp"

	"github.com/relaysend/mailat/internal/idgen"
	"github.com/relaysend/mailat/internal/tracking"
	"github.com/relaysend/mailat/pkg/response"
)

// TrackingController backs the public open pixel and click redirect
// (spec.md §4.7). DB errors here are swallowed so the pixel/redirect
// still resolves, per spec.md §7's ingress propagation policy.
type TrackingController struct {
	svc *tracking.Service
}

func NewTrackingController(svc *tracking.Service) *TrackingController {
	return &TrackingController{svc: svc}
}

func clientIP(r *ghttp.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return r.Header.Get("X-Real-IP")
}

// TrackOpen always returns the transparent GIF, regardless of lookup
// outcome (spec.md §8 universal property).
// GET /t/o/:id
func (c *TrackingController) TrackOpen(r *ghttp.Request) {
	id := r.Get("id").String()
	ip := clientIP(r)
	userAgent := r.Header.Get("User-Agent")

	_, _ = c.svc.RecordOpen(r.Context(), id, ip, userAgent)

	r.Response.Header().Set("Content-Type", "image/gif")
	r.Response.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	r.Response.Header().Set("Pragma", "no-cache")
	r.Response.Header().Set("Expires", "0")
	r.Response.Write(idgen.TransparentGIF)
}

// TrackClick 302s to the original URL, or 404s if the id is unknown.
// GET /t/c/:id
func (c *TrackingController) TrackClick(r *ghttp.Request) {
	id := r.Get("id").String()

	originalURL, found, _ := c.svc.RecordClick(r.Context(), id)
	if !found {
		response.NotFound(r, "tracking link not found")
		return
	}

	r.Response.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	r.Response.RedirectTo(originalURL)
}
