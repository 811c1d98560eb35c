// Package jobs runs post-commit side work (booking notifications) on a small
// goroutine pool so request handlers never wait on the broker.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueClosed is returned by Submit once the queue is not accepting work.
var ErrQueueClosed = errors.New("jobs: queue closed")

// ErrQueueFull is returned by Submit when the buffer has no room.
var ErrQueueFull = errors.New("jobs: queue full")

// Task is one unit of background work.
type Task struct {
	ID      string
	Kind    string
	Payload []byte
	Attempt int
	Queued  time.Time
}

// Handler processes a task. A returned error schedules a retry.
type Handler func(context.Context, Task) error

// Options sizes the pool.
type Options struct {
	Workers    int
	Buffer     int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue is an in-memory task dispatcher with bounded retries.
type Queue struct {
	name    string
	handler Handler
	opts    Options

	tasks  chan Task
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	retry  sync.WaitGroup

	mu      sync.RWMutex
	running bool
}

// New builds a queue. Start must be called before Submit.
func New(name string, handler Handler, opts Options) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Buffer <= 0 {
		opts.Buffer = opts.Workers * 16
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Queue{
		name:    name,
		handler: handler,
		opts:    opts,
		tasks:   make(chan Task, opts.Buffer),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.work(i + 1)
	}
	q.running = true
	q.opts.Logger.Info("queue started", zap.String("queue", q.name), zap.Int("workers", q.opts.Workers))
}

// Stop stops accepting tasks, lets workers drain what is already buffered,
// and waits for them to exit. Pending retries are abandoned.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()

	q.retry.Wait()
	close(q.tasks)
	q.wg.Wait()
	q.opts.Logger.Info("queue stopped", zap.String("queue", q.name))
}

// Submit enqueues a task without blocking.
func (q *Queue) Submit(task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return ErrQueueClosed
	}
	if task.Queued.IsZero() {
		task.Queued = time.Now().UTC()
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) work(id int) {
	defer q.wg.Done()
	for task := range q.tasks {
		if err := q.handler(q.ctx, task); err != nil {
			q.fail(id, task, err)
		}
	}
}

func (q *Queue) fail(worker int, task Task, err error) {
	log := q.opts.Logger.With(
		zap.String("queue", q.name),
		zap.String("task_id", task.ID),
		zap.String("kind", task.Kind),
		zap.Int("worker", worker),
		zap.Error(err),
	)
	task.Attempt++
	if task.Attempt > q.opts.MaxRetries {
		log.Error("task dropped after retries", zap.Int("attempts", task.Attempt))
		return
	}
	if q.ctx.Err() != nil {
		log.Warn("task dropped, queue stopping")
		return
	}
	log.Warn("task failed, retrying", zap.Int("attempt", task.Attempt))

	q.retry.Add(1)
	go func(t Task) {
		defer q.retry.Done()
		timer := time.NewTimer(q.opts.RetryDelay * time.Duration(t.Attempt))
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.Submit(t); err != nil {
				log.Error("requeue failed", zap.NamedError("requeue_error", err))
			}
		}
	}(task)
}
