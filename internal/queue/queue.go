// Package queue abstracts the durable job queue per spec.md §9's Design
// Note: "Abstract as an interface {enqueue(jobId, payload, opts),
// subscribe(handler, concurrency, rateLimit, attempts, backoff)}; the
// durability and dedup-by-jobId properties are the contract." Grounded on
// the teacher's worker.go (asynq.NewServer/asynq.NewClient, Redis URL
// parsing, the backoff table), generalized from a fixed task-type fanout
// into the narrow two-method contract the spec names.
package queue

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/time/rate"
)

// Payload is an opaque job body; callers marshal/unmarshal their own
// concrete types (see worker.EmailSendPayload).
type Payload []byte

// EnqueueOptions configures one job.
type EnqueueOptions struct {
	MaxRetry  int
	Timeout   time.Duration
	ProcessAt *time.Time
}

// Handler processes one job. Returning an error causes the queue to retry
// per the configured backoff, up to MaxRetry retries after the first
// attempt.
type Handler func(ctx context.Context, payload Payload) error

// Queue is the durable job queue contract the send pipeline depends on.
type Queue interface {
	// Enqueue submits a job keyed by jobID; re-enqueuing the same jobID
	// while the original is still pending/retrying is a no-op (dedup).
	Enqueue(ctx context.Context, jobID, taskType string, payload Payload, opts EnqueueOptions) error
	// Subscribe registers handler for taskType and blocks running the
	// consumer loop at concurrency workers and rateLimit jobs/s, retrying
	// failed jobs with exponential backoff starting at backoffBase. The
	// number of retries is fixed per job by EnqueueOptions.MaxRetry;
	// AsynqQueue does not read attempts.
	Subscribe(taskType string, handler Handler, concurrency, rateLimit, attempts int, backoffBase time.Duration) error
	Close() error
}

// AsynqQueue implements Queue on top of github.com/hibiken/asynq.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redisOpt  asynq.RedisClientOpt
	mux       *asynq.ServeMux
	server    *asynq.Server
}

// NewAsynqQueue connects to the Redis broker at redisURL.
func NewAsynqQueue(redisURL string) *AsynqQueue {
	opt := parseRedisURL(redisURL)
	return &AsynqQueue{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		redisOpt:  opt,
		mux:       asynq.NewServeMux(),
	}
}

func (q *AsynqQueue) Enqueue(ctx context.Context, jobID, taskType string, payload Payload, opts EnqueueOptions) error {
	task := asynq.NewTask(taskType, payload)

	asynqOpts := []asynq.Option{
		asynq.TaskID(jobID),
	}
	if opts.MaxRetry >= 0 {
		asynqOpts = append(asynqOpts, asynq.MaxRetry(opts.MaxRetry))
	}
	if opts.Timeout > 0 {
		asynqOpts = append(asynqOpts, asynq.Timeout(opts.Timeout))
	}
	if opts.ProcessAt != nil {
		asynqOpts = append(asynqOpts, asynq.ProcessAt(*opts.ProcessAt))
	}

	_, err := q.client.EnqueueContext(ctx, task, asynqOpts...)
	if err != nil {
		// A conflicting TaskID means a job with this jobID is already
		// pending/retrying: treat re-enqueue as a no-op (dedup contract).
		if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("queue: enqueue: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Subscribe(taskType string, handler Handler, concurrency, rateLimit, attempts int, backoffBase time.Duration) error {
	var limiter *rate.Limiter
	if rateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateLimit), rateLimit)
	}

	q.mux.HandleFunc(taskType, func(ctx context.Context, task *asynq.Task) error {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return handler(ctx, task.Payload())
	})

	server := asynq.NewServer(q.redisOpt, asynq.Config{
		Concurrency: concurrency,
		RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
			delay := backoffBase
			for i := 0; i < n; i++ {
				delay *= 2
			}
			return delay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			fmt.Printf("worker: task %s failed: %v\n", task.Type(), err)
		}),
	})
	q.server = server

	return server.Run(q.mux)
}

func (q *AsynqQueue) Close() error {
	if q.server != nil {
		q.server.Shutdown()
	}
	q.inspector.Close()
	return q.client.Close()
}

// parseRedisURL parses a Redis URL into asynq.RedisClientOpt, grounded on
// the teacher's worker.go parseRedisURL.
func parseRedisURL(redisURL string) asynq.RedisClientOpt {
	addr := "localhost:6379"
	password := ""

	if u, err := url.Parse(redisURL); err == nil && u.Host != "" {
		addr = u.Host
		if u.User != nil {
			if p, ok := u.User.Password(); ok {
				password = p
			}
		}
	} else {
		addr = redisURL
	}

	return asynq.RedisClientOpt{Addr: addr, Password: password}
}
