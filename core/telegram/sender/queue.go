// Package sender delivers outbound Telegram calls from a bounded worker pool
// so that slow API round trips never hold the per-user conversation lock.
// Each chat is pinned to one worker, so its messages arrive in send order.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maximcoj/teleblog/core/logger"
	"github.com/maximcoj/teleblog/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	ErrQueueFull   = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls the queue. Zero values select defaults.
type Options struct {
	// QueueSize is the total capacity, split evenly across workers.
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent on a single job including retries.
	MaxDuration time.Duration
}

func (o *Options) defaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
}

type job struct {
	ctx    context.Context
	action string
	run    func() error
}

// Queue runs send jobs asynchronously with retries.
type Queue struct {
	opts   Options
	shards []chan job

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	sent   atomic.Uint64
	failed atomic.Uint64
}

func NewQueue(opts Options) *Queue {
	opts.defaults()
	perShard := opts.QueueSize / opts.Workers
	if perShard < 1 {
		perShard = 1
	}
	q := &Queue{
		opts:   opts,
		shards: make([]chan job, opts.Workers),
	}
	q.wg.Add(opts.Workers)
	for i := range q.shards {
		q.shards[i] = make(chan job, perShard)
		go q.worker(q.shards[i])
	}
	return q
}

func (q *Queue) shard(key int64) chan job {
	return q.shards[uint64(key)%uint64(len(q.shards))]
}

// Submit schedules run on the worker owning key, usually the chat id. Jobs
// with the same key run in submission order. run may be invoked more than once.
func (q *Queue) Submit(ctx context.Context, key int64, action string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil job")
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.shard(key) <- job{ctx: ctx, action: action, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats returns the number of delivered and failed jobs.
func (q *Queue) Stats() (sent, failed uint64) {
	return q.sent.Load(), q.failed.Load()
}

// Close drains pending jobs and stops the workers.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, s := range q.shards {
		close(s)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) worker(jobs <-chan job) {
	defer q.wg.Done()
	for j := range jobs {
		q.process(j)
	}
}

func (q *Queue) process(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	// The update context may already be done once the handler returned.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := q.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = j.run(); err == nil {
			q.sent.Add(1)
			logger.Debug(ctx, "tg.sender", "send.success",
				slog.String("action", j.action),
				slog.Int("attempt", attempt),
				slog.Duration("duration", logger.RoundMS(time.Since(start))),
			)
			return
		}
		delay, retry := q.backoff(err, attempt)
		if !retry || attempt == attempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-runCtx.Done():
			timer.Stop()
			err = errors.Join(err, runCtx.Err())
			attempt = attempts
		case <-timer.C:
		}
	}

	q.failed.Add(1)
	logger.Error(ctx, "tg.sender", "send.fail",
		slog.String("action", j.action),
		slog.String("err", redact(err)),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
}

// backoff reports whether err is transient and how long to wait.
func (q *Queue) backoff(err error, attempt int) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return time.Duration(flood.RetryAfter) * time.Second, true
	}
	if netutil.ShouldRetry(err) {
		return q.opts.RetryBackoff * time.Duration(attempt), true
	}
	return 0, false
}

func redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
