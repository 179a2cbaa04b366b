// Command api runs the HTTP server half of the two-process model spec.md
// §6 calls for: the auth gate, accept-and-enqueue endpoint, event/
// suppression APIs, and the tracking pixel/redirect. Job dispatch lives in
// cmd/worker.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gogf/gf/v2/frame/g"

	"github.com/relaysend/mailat/internal/config"
	"github.com/relaysend/mailat/internal/database"
	"github.com/relaysend/mailat/internal/queue"
	"github.com/relaysend/mailat/internal/router"
	"github.com/relaysend/mailat/internal/send"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Starting mailat API server (env=%s)\n", cfg.Env)

	db, err := database.Connect(cfg)
	if err != nil {
		fmt.Printf("Failed to connect to PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	fmt.Println("Connected to PostgreSQL")

	if err := database.InitSchema(db); err != nil {
		fmt.Printf("Failed to initialize database schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Database schema initialized")

	rdb, err := database.ConnectRedis(cfg)
	if err != nil {
		fmt.Printf("Failed to connect to Redis: %v\n", err)
		os.Exit(1)
	}
	defer rdb.Close()
	fmt.Println("Connected to Redis")

	q := queue.NewAsynqQueue(cfg.RedisURL)
	defer q.Close()

	s := g.Server()
	s.SetPort(cfg.Port)
	s.SetDumpRouterMap(false)

	router.Setup(s, router.Deps{
		DB:    db,
		Redis: rdb,
		Queue: q,
		SendCfg: send.Config{
			TrackingBaseURL:     cfg.TrackingBaseURL,
			EnableOpenTracking:  cfg.EnableOpenTracking,
			EnableClickTracking: cfg.EnableClickTracking,
			WorkerMaxAttempts:   cfg.WorkerMaxAttempts,
			WorkerRetryBaseSec:  cfg.WorkerRetryBaseSec,
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down API server...")
		s.Shutdown()
	}()

	fmt.Printf("API listening on :%d\n", cfg.Port)
	s.Run()
}
