package action

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// jobTimeout bounds a single dispatched job.
const jobTimeout = 10 * time.Second

// Job is a unit of fire-and-forget work.
type Job func(ctx context.Context) error

// Dispatcher runs jobs on one worker goroutine in submission order. Dispatch
// never blocks; when the queue is full the job is dropped.
type Dispatcher struct {
	log   zerolog.Logger
	queue chan namedJob

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type namedJob struct {
	name string
	fn   Job
}

func NewDispatcher(size int, log zerolog.Logger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		log:    log.With().Str("component", "dispatcher").Logger(),
		queue:  make(chan namedJob, size),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

// Dispatch queues fn. It reports false if the job was dropped.
func (d *Dispatcher) Dispatch(name string, fn Job) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}
	select {
	case d.queue <- namedJob{name: name, fn: fn}:
		return true
	default:
		d.log.Warn().Str("job", name).Msg("Action queue full, dropping")
		return false
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for job := range d.queue {
		d.exec(job)
	}
}

func (d *Dispatcher) exec(job namedJob) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Str("job", job.name).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered panic in action")
		}
	}()

	ctx, cancel := context.WithTimeout(d.ctx, jobTimeout)
	defer cancel()

	if err := job.fn(ctx); err != nil {
		d.log.Error().Err(err).Str("job", job.name).Msg("Action failed")
	}
}

// Close stops accepting jobs and waits for queued ones to finish, up to
// ctx's deadline. Running jobs are cancelled when ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}
