package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/me/nodelet/pkg/model"
)

// EventKind discriminates pool events.
type EventKind int

const (
	// EventStarted: a worker picked the task up and began executing.
	EventStarted EventKind = iota
	// EventFinished: execution ended. Err distinguishes success,
	// failure, and a missing-object abort (*MissingObjectError).
	EventFinished
)

// Event reports a task execution state change back to the scheduler.
type Event struct {
	Kind   EventKind
	TaskID model.TaskID
	Value  any
	Err    error
}

// Pool runs task functions on a fixed set of workers. Tasks are
// admitted through Submit into a bounded channel; each worker reports
// Started and Finished events on the Events channel, which the
// scheduler's event loop consumes.
type Pool struct {
	runtime  *Runtime
	tasks    chan *model.Task
	events   chan Event
	workers  int
	wg       sync.WaitGroup
	stopOnce sync.Once
	logger   *slog.Logger
}

// NewPool creates a pool of `workers` workers with a submission queue
// of depth `depth`.
func NewPool(workers, depth int, rt *Runtime, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if depth <= 0 {
		depth = workers
	}
	return &Pool{
		runtime: rt,
		tasks:   make(chan *model.Task, depth),
		events:  make(chan Event, depth+2*workers),
		workers: workers,
		logger:  logger.With("component", "worker-pool"),
	}
}

// Start launches the workers. They run until Stop is called or ctx is
// cancelled.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", "workers", p.workers, "depth", cap(p.tasks))
}

// Events returns the channel the pool reports execution events on.
func (p *Pool) Events() <-chan Event {
	return p.events
}

// Submit offers a task to the pool without blocking. It returns false
// when the submission queue is full; the scheduler keeps such tasks in
// the ready bucket and retries on the next dispatch round.
func (p *Pool) Submit(task *model.Task) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Slots returns the number of submissions the pool can currently accept
// without blocking.
func (p *Pool) Slots() int {
	return cap(p.tasks) - len(p.tasks)
}

// Stop closes the submission queue, waits for in-flight tasks to
// finish, and closes the event channel. Queued tasks still run; their
// events are drained here, since the scheduler has already stopped
// consuming and a worker blocked on a full event channel would never
// exit. Safe to call more than once.
func (p *Pool) Stop() {
	p.stopOnce.Do(p.stop)
}

func (p *Pool) stop() {
	close(p.tasks)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-p.events:
		case <-done:
			close(p.events)
			return
		}
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.events <- Event{Kind: EventStarted, TaskID: task.ID}
			value, err := p.runtime.Execute(task)
			if err != nil {
				p.logger.Debug("task did not complete", "worker", id, "task_id", task.ID, "error", err)
			} else {
				p.logger.Debug("task finished", "worker", id, "task_id", task.ID)
			}
			p.events <- Event{Kind: EventFinished, TaskID: task.ID, Value: value, Err: err}
		}
	}
}
