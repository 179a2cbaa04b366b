// Package router wires the HTTP surface spec.md §6 names onto GoFrame
// groups, split into an unauthenticated group (health, tracking pixel/
// redirect) and a Bearer-gated API group. Grounded on the teacher's
// router.go group/middleware layout, trimmed to the endpoints this core
// actually serves.
package router

import (
	"database/sql"

	"github.com/gogf/gf/v2/net/ghttp"
	"github.com/redis/go-redis/v9"

	"github.com/relaysend/mailat/internal/authgate"
	"github.com/relaysend/mailat/internal/controller"
	"github.com/relaysend/mailat/internal/events"
	"github.com/relaysend/mailat/internal/queue"
	"github.com/relaysend/mailat/internal/send"
	"github.com/relaysend/mailat/internal/suppression"
	"github.com/relaysend/mailat/internal/tracking"
)

// Deps is everything the router needs to construct its controllers.
type Deps struct {
	DB      *sql.DB
	Redis   *redis.Client
	Queue   queue.Queue
	SendCfg send.Config
}

// Setup registers every route spec.md §6 names on s.
func Setup(s *ghttp.Server, deps Deps) {
	healthCtrl := controller.NewHealthController(deps.DB, deps.Redis)
	trackingCtrl := controller.NewTrackingController(tracking.New(deps.DB))
	sendCtrl := controller.NewSendController(send.New(deps.DB, deps.Redis, deps.Queue, deps.SendCfg))
	eventsCtrl := controller.NewEventsController(events.New(deps.DB))
	suppressionCtrl := controller.NewSuppressionController(suppression.New(deps.DB))
	meCtrl := controller.NewMeController()

	s.Group("/", func(group *ghttp.RouterGroup) {
		group.GET("/health", healthCtrl.Health)
		group.GET("/t/o/:id", trackingCtrl.TrackOpen)
		group.GET("/t/c/:id", trackingCtrl.TrackClick)
	})

	s.Group("/api/v1", func(group *ghttp.RouterGroup) {
		group.Middleware(authgate.Middleware(deps.DB))

		group.GET("/me", meCtrl.Me)

		group.POST("/send", sendCtrl.Send)

		group.GET("/events", eventsCtrl.List)
		group.GET("/events/stats", eventsCtrl.Stats)
		group.GET("/events/:messageId", eventsCtrl.ByMessage)
		group.POST("/events", eventsCtrl.Ingest)

		group.GET("/suppressions", suppressionCtrl.List)
		group.GET("/suppressions/check", suppressionCtrl.Check)
		group.GET("/suppressions/stats", suppressionCtrl.Stats)
		group.POST("/suppressions", suppressionCtrl.Add)
		group.DELETE("/suppressions/:id", suppressionCtrl.Delete)
	})
}
