// Command worker runs the job-dispatch half of the two-process model
// spec.md §6 calls for: it consumes TypeEmailSend jobs and performs the
// single-attempt SMTP relay send, letting the queue own retry/backoff.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/relaysend/mailat/internal/config"
	"github.com/relaysend/mailat/internal/database"
	"github.com/relaysend/mailat/internal/queue"
	"github.com/relaysend/mailat/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Starting mailat worker (env=%s)\n", cfg.Env)

	db, err := database.Connect(cfg)
	if err != nil {
		fmt.Printf("Failed to connect to PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	fmt.Println("Connected to PostgreSQL")

	q := queue.NewAsynqQueue(cfg.RedisURL)

	w := worker.NewWorker(db, cfg, q)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		w.Shutdown()
	}()

	if err := w.Start(); err != nil {
		fmt.Printf("worker: stopped: %v\n", err)
	}
}
