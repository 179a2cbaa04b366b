package worker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/relaysend/mailat/internal/config"
	"github.com/relaysend/mailat/internal/queue"
)

// Worker runs the consumer loop for TypeEmailSend against the shared
// queue.Queue abstraction (spec.md §4.6, §9). Grounded on the teacher's
// Worker/RegisterHandlers, trimmed to the one task type the core enqueues.
type Worker struct {
	q       queue.Queue
	handler *EmailHandler
	cfg     *config.Config
}

func NewWorker(db *sql.DB, cfg *config.Config, q queue.Queue) *Worker {
	return &Worker{
		q:       q,
		handler: NewEmailHandler(db, cfg),
		cfg:     cfg,
	}
}

// Start blocks, running the consumer loop until the queue's Subscribe
// returns (on Shutdown or a fatal broker error).
func (w *Worker) Start() error {
	fmt.Printf("worker: subscribing to %s (concurrency=%d rateLimit=%d attempts=%d)\n",
		TypeEmailSend, w.cfg.WorkerConcurrency, w.cfg.WorkerRateLimit, w.cfg.WorkerMaxAttempts)

	backoffBase := time.Duration(w.cfg.WorkerRetryBaseSec) * time.Second
	return w.q.Subscribe(
		TypeEmailSend,
		func(ctx context.Context, payload queue.Payload) error {
			return w.handler.Handle(ctx, []byte(payload))
		},
		w.cfg.WorkerConcurrency,
		w.cfg.WorkerRateLimit,
		w.cfg.WorkerMaxAttempts,
		backoffBase,
	)
}

// Shutdown gracefully stops the consumer loop.
func (w *Worker) Shutdown() {
	fmt.Println("worker: shutting down")
	_ = w.q.Close()
}
