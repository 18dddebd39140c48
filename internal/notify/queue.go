package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// QueueConfig sizes the in-memory dispatcher.
type QueueConfig struct {
	Workers      int
	QueueSize    int
	MaxRetries   int
	RetryBackoff time.Duration
}

// Queue is a buffered, worker-backed Dispatcher. Dispatch never blocks;
// workers render and send each intent, retrying failures with quadratic
// backoff before giving up and logging.
type Queue struct {
	sender Sender
	cfg    QueueConfig
	log    *zap.Logger
	jobs   chan Intent
	wg     sync.WaitGroup
}

// NewQueue constructs a Queue. Call Start to begin delivery.
func NewQueue(sender Sender, cfg QueueConfig, log *zap.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	return &Queue{
		sender: sender,
		cfg:    cfg,
		log:    log,
		jobs:   make(chan Intent, cfg.QueueSize),
	}
}

// Dispatch buffers the intent, or returns ErrQueueFull.
func (q *Queue) Dispatch(_ context.Context, in Intent) error {
	select {
	case q.jobs <- in:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the workers. They stop when ctx is cancelled; buffered
// intents left at that point are dropped.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	q.log.Debug("notification worker started", zap.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			q.log.Debug("notification worker stopping", zap.Int("worker", id))
			return
		case in := <-q.jobs:
			deliver(ctx, q.sender, in, q.cfg.MaxRetries, q.cfg.RetryBackoff, q.log)
		}
	}
}

// deliver renders and sends one intent with bounded retries. It reports
// whether the message went out.
func deliver(ctx context.Context, sender Sender, in Intent, maxRetries int, backoff time.Duration, log *zap.Logger) bool {
	fields := []zap.Field{
		zap.String("kind", string(in.Kind)),
		zap.String("registration_id", in.RegistrationID),
		zap.String("event_id", in.EventID),
	}

	msg, err := Render(in)
	if err != nil {
		log.Error("notification dispatch failed", append(fields, zap.Error(err))...)
		return false
	}

	for attempt := 0; ; attempt++ {
		if err = sender.Send(ctx, msg); err == nil {
			log.Info("notification sent", fields...)
			return true
		}
		if attempt >= maxRetries {
			break
		}
		wait := time.Duration((attempt+1)*(attempt+1)) * backoff
		log.Warn("notification send failed, retrying",
			append(fields, zap.Error(err), zap.Int("attempt", attempt+1), zap.Duration("backoff", wait))...)
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
	}
	log.Error("notification dispatch failed", append(fields, zap.Error(err))...)
	return false
}

// Discard drops every intent. It backs tools that must not send mail.
type Discard struct{}

func (Discard) Dispatch(context.Context, Intent) error { return nil }

// Direct delivers each intent inline before Dispatch returns. It backs
// one-shot commands that exit right after dispatching; failures are logged,
// not returned.
type Direct struct {
	sender       Sender
	maxRetries   int
	retryBackoff time.Duration
	log          *zap.Logger
}

// NewDirect constructs a Direct dispatcher.
func NewDirect(sender Sender, maxRetries int, retryBackoff time.Duration, log *zap.Logger) *Direct {
	if retryBackoff <= 0 {
		retryBackoff = time.Second
	}
	return &Direct{sender: sender, maxRetries: maxRetries, retryBackoff: retryBackoff, log: log}
}

func (d *Direct) Dispatch(ctx context.Context, in Intent) error {
	deliver(ctx, d.sender, in, d.maxRetries, d.retryBackoff, d.log)
	return nil
}
