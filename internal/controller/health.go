package controller

import (
	"context"
	"database/sql"
	"time"

	"github.com/gogf/gf/v2/net/ghttp"
	"github.com/redis/go-redis/v9"

	"github.com/relaysend/mailat/pkg/response"
)

// HealthController backs the public, unauthenticated health probe
// (spec.md §6 — an external collaborator, included for completeness).
type HealthController struct {
	db    *sql.DB
	redis *redis.Client
}

func NewHealthController(db *sql.DB, rdb *redis.Client) *HealthController {
	return &HealthController{db: db, redis: rdb}
}

// Health reports DB/Redis reachability alongside a timestamp.
// GET /health
func (c *HealthController) Health(r *ghttp.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	checks := make(map[string]string)

	if err := c.db.PingContext(ctx); err != nil {
		status = "unhealthy"
		checks["postgresql"] = "error: " + err.Error()
	} else {
		checks["postgresql"] = "ok"
	}

	if err := c.redis.Ping(ctx).Err(); err != nil {
		status = "unhealthy"
		checks["redis"] = "error: " + err.Error()
	} else {
		checks["redis"] = "ok"
	}

	statusCode := 200
	if status == "unhealthy" {
		statusCode = 503
	}
	response.JSON(r, statusCode, map[string]any{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
