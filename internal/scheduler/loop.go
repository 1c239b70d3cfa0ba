package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/me/nodelet/internal/objectstore"
	"github.com/me/nodelet/internal/schedqueue"
	"github.com/me/nodelet/internal/store"
	"github.com/me/nodelet/internal/worker"
	"github.com/me/nodelet/pkg/model"
)

// ErrNotRunning is returned by Submit and PutObject after the loop has
// shut down.
var ErrNotRunning = errors.New("scheduler is not running")

type submitEvent struct {
	task  *model.Task
	reply chan error
}

type putObjectEvent struct {
	id    model.ObjectID
	value any
	reply chan error
}

type countsEvent struct {
	reply chan map[string]int
}

type bucketEvent struct {
	bucket schedqueue.Bucket
	reply  chan []model.Task
}

var _ Scheduler = (*Loop)(nil)

// Loop implements Scheduler. One goroutine (Start) owns the scheduling
// queue, the dependency manager, and the actor registry; everything
// else talks to it through the event channel.
type Loop struct {
	queue    *schedqueue.SchedulingQueue
	deps     *dependencyManager
	actors   *actorRegistry
	objects  *objectstore.Store
	pool     *worker.Pool
	journal  store.Store
	logger   *slog.Logger
	events   chan any
	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
}

// NewLoop creates a scheduler loop over the given journal, object
// store, and worker pool. The pool is started and stopped by the loop.
func NewLoop(journal store.Store, objects *objectstore.Store, pool *worker.Pool, logger *slog.Logger) *Loop {
	return &Loop{
		queue:   schedqueue.New(),
		deps:    newDependencyManager(objects),
		actors:  newActorRegistry(),
		objects: objects,
		pool:    pool,
		journal: journal,
		logger:  logger.With("component", "scheduler"),
		events:  make(chan any, 64),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start runs the event loop. Blocks until ctx is cancelled or Stop is
// called.
func (l *Loop) Start(ctx context.Context) error {
	l.pool.Start(ctx)
	l.logger.Info("scheduler started")
	defer close(l.doneCh)

	workerEvents := l.pool.Events()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("scheduler stopping (context cancelled)")
			return ctx.Err()
		case <-l.stopCh:
			l.logger.Info("scheduler stopping (stop called)")
			return nil
		case ev := <-l.events:
			l.handle(ctx, ev)
			l.dispatch(ctx)
		case wev, ok := <-workerEvents:
			if !ok {
				workerEvents = nil
				continue
			}
			l.handleWorkerEvent(ctx, wev)
			l.dispatch(ctx)
		}
	}
}

// Stop shuts down the loop, then the worker pool. Safe to call more
// than once.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
	l.pool.Stop()
	return nil
}

// Submit hands a new task to the scheduler. The scheduler queues its
// own copy; the caller's task reflects the admitted state and is not
// touched after Submit returns.
func (l *Loop) Submit(task *model.Task) error {
	reply := make(chan error, 1)
	select {
	case l.events <- submitEvent{task: task, reply: reply}:
	case <-l.doneCh:
		return ErrNotRunning
	}
	select {
	case err := <-reply:
		return err
	case <-l.doneCh:
		return ErrNotRunning
	}
}

// PutObject publishes an object to the node.
func (l *Loop) PutObject(id model.ObjectID, value any) error {
	reply := make(chan error, 1)
	select {
	case l.events <- putObjectEvent{id: id, value: value, reply: reply}:
	case <-l.doneCh:
		return ErrNotRunning
	}
	select {
	case err := <-reply:
		return err
	case <-l.doneCh:
		return ErrNotRunning
	}
}

// QueueCounts returns the per-bucket task counts.
func (l *Loop) QueueCounts() map[string]int {
	reply := make(chan map[string]int, 1)
	select {
	case l.events <- countsEvent{reply: reply}:
	case <-l.doneCh:
		return nil
	}
	select {
	case counts := <-reply:
		return counts
	case <-l.doneCh:
		return nil
	}
}

// BucketTasks returns a snapshot of one bucket's contents.
func (l *Loop) BucketTasks(b schedqueue.Bucket) []model.Task {
	reply := make(chan []model.Task, 1)
	select {
	case l.events <- bucketEvent{bucket: b, reply: reply}:
	case <-l.doneCh:
		return nil
	}
	select {
	case tasks := <-reply:
		return tasks
	case <-l.doneCh:
		return nil
	}
}

func (l *Loop) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case submitEvent:
		ev.reply <- l.admit(ctx, ev.task)
	case putObjectEvent:
		l.objects.Put(ev.id, ev.value)
		l.logger.Debug("object published", "object_id", ev.id)
		l.resolveLocal(ctx, ev.id)
		ev.reply <- nil
	case countsEvent:
		ev.reply <- l.queue.Counts()
	case bucketEvent:
		view := l.queue.Tasks(ev.bucket)
		snapshot := make([]model.Task, len(view))
		for i, t := range view {
			snapshot[i] = *t
		}
		ev.reply <- snapshot
	}
}

// admit decides a new task's initial bucket, journals it, then queues
// it. The decision order matters: an actor method for an uncreated
// actor is staged even if its object dependencies are also unmet,
// because the actor gate is the stronger condition.
func (l *Loop) admit(ctx context.Context, task *model.Task) error {
	if task.ID == "" {
		return fmt.Errorf("task has no ID")
	}
	if task.Function == "" {
		return fmt.Errorf("task %s has no function", task.ID)
	}
	if l.queue.Contains(task.ID) {
		return fmt.Errorf("task %s is already tracked by this node", task.ID)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	unmet := l.deps.Unmet(task)
	switch {
	case task.IsActorMethod() && !l.actors.Created(task.ActorID):
		task.State = model.TaskStateUncreatedActorMethod
	case len(unmet) > 0:
		task.State = model.TaskStateWaiting
	default:
		task.State = model.TaskStateReady
	}

	if err := l.journal.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("journal task %s: %w", task.ID, err)
	}

	// The queue owns its entries outright. Queue a private copy so the
	// submitter can keep reading its task after Submit returns while
	// the loop updates the queued one.
	queued := *task
	switch queued.State {
	case model.TaskStateUncreatedActorMethod:
		l.queue.QueueUncreatedActorMethods([]*model.Task{&queued})
		l.actors.StageMethod(queued.ActorID, queued.ID)
	case model.TaskStateWaiting:
		l.queue.QueueWaitingTasks([]*model.Task{&queued})
		l.deps.Park(queued.ID, unmet)
	default:
		l.queue.QueueReadyTasks([]*model.Task{&queued})
	}

	l.logger.Info("task submitted", "task_id", task.ID, "state", task.State)
	return nil
}

// resolveLocal moves tasks parked on obj (waiting or blocked) to ready.
func (l *Loop) resolveLocal(ctx context.Context, obj model.ObjectID) {
	resolved := l.deps.OnObjectLocal(obj)
	if len(resolved) == 0 {
		return
	}
	moved := l.queue.RemoveTasks(resolved)
	for _, task := range moved {
		l.recordTransition(ctx, task, model.TaskStateReady)
	}
	l.queue.QueueReadyTasks(moved)
	l.logger.Debug("tasks unparked", "object_id", obj, "tasks", len(moved))
}

func (l *Loop) handleWorkerEvent(ctx context.Context, ev worker.Event) {
	switch ev.Kind {
	case worker.EventStarted:
		moved := l.queue.RemoveTasks([]model.TaskID{ev.TaskID})
		l.recordTransition(ctx, moved[0], model.TaskStateRunning)
		l.queue.QueueRunningTasks(moved)

	case worker.EventFinished:
		moved := l.queue.RemoveTasks([]model.TaskID{ev.TaskID})
		task := moved[0]

		var missing *worker.MissingObjectError
		switch {
		case ev.Err == nil:
			l.finishTask(ctx, task, ev.Value)

		case errors.As(ev.Err, &missing):
			// The object may have arrived while the worker was
			// reporting the miss; re-run the task instead of parking
			// it on an event that already fired.
			if l.objects.Contains(missing.ID) {
				l.recordTransition(ctx, task, model.TaskStateBlocked)
				l.queue.QueueBlockedTasks(moved)
				l.resolveBlocked(ctx, task.ID)
				return
			}
			l.recordTransition(ctx, task, model.TaskStateBlocked)
			l.queue.QueueBlockedTasks(moved)
			l.deps.Park(task.ID, []model.ObjectID{missing.ID})
			l.logger.Info("task blocked", "task_id", task.ID, "object_id", missing.ID)

		default:
			now := time.Now().UTC()
			task.State = model.TaskStateFailed
			task.CompletedAt = &now
			if err := l.journal.SetTaskResult(ctx, task.ID, model.TaskStateFailed, nil, ev.Err.Error()); err != nil {
				l.logger.Error("journal task failure", "task_id", task.ID, "error", err)
			}
			l.logger.Warn("task failed", "task_id", task.ID, "error", ev.Err)
		}
	}
}

// finishTask records a completed task, publishes its result, and
// releases anything the completion unblocks.
func (l *Loop) finishTask(ctx context.Context, task *model.Task, value any) {
	now := time.Now().UTC()
	task.State = model.TaskStateDone
	task.CompletedAt = &now
	if err := l.journal.SetTaskResult(ctx, task.ID, model.TaskStateDone, value, ""); err != nil {
		l.logger.Error("journal task result", "task_id", task.ID, "error", err)
	}
	l.logger.Info("task done", "task_id", task.ID)

	if task.ReturnID != "" {
		l.objects.Put(task.ReturnID, value)
		l.resolveLocal(ctx, task.ReturnID)
	}
	if task.ActorCreation {
		l.releaseActorMethods(ctx, task.ActorID)
	}
}

// resolveBlocked immediately returns a just-blocked task to ready.
func (l *Loop) resolveBlocked(ctx context.Context, id model.TaskID) {
	moved := l.queue.RemoveTasks([]model.TaskID{id})
	l.recordTransition(ctx, moved[0], model.TaskStateReady)
	l.queue.QueueReadyTasks(moved)
}

// releaseActorMethods marks the actor created and moves its staged
// methods out of the uncreated bucket: to ready if their object
// dependencies are local, to waiting otherwise.
func (l *Loop) releaseActorMethods(ctx context.Context, actor model.ActorID) {
	staged := l.actors.MarkCreated(actor)
	if len(staged) == 0 {
		return
	}
	moved := l.queue.RemoveTasks(staged)

	var ready, waiting []*model.Task
	for _, task := range moved {
		if unmet := l.deps.Unmet(task); len(unmet) > 0 {
			l.recordTransition(ctx, task, model.TaskStateWaiting)
			l.deps.Park(task.ID, unmet)
			waiting = append(waiting, task)
			continue
		}
		l.recordTransition(ctx, task, model.TaskStateReady)
		ready = append(ready, task)
	}
	l.queue.QueueReadyTasks(ready)
	l.queue.QueueWaitingTasks(waiting)
	l.logger.Info("actor created", "actor_id", actor, "released", len(ready), "still_waiting", len(waiting))
}

// dispatch admits ready tasks to the worker pool, oldest first, while
// the pool can accept them. Admitted tasks move to the scheduled bucket
// until a worker picks them up.
func (l *Loop) dispatch(ctx context.Context) {
	for l.pool.Slots() > 0 {
		ready := l.queue.ReadyTasks()
		if len(ready) == 0 {
			return
		}
		moved := l.queue.RemoveTasks([]model.TaskID{ready[0].ID})
		if !l.pool.Submit(moved[0]) {
			l.queue.QueueReadyTasks(moved)
			return
		}
		l.recordTransition(ctx, moved[0], model.TaskStateScheduled)
		l.queue.QueueScheduledTasks(moved)
	}
}

// recordTransition updates the in-memory state and mirrors it into the
// journal. Journal failures are logged, not propagated: the queue, not
// the journal, is authoritative for scheduling.
func (l *Loop) recordTransition(ctx context.Context, task *model.Task, next model.TaskState) {
	prev := task.State
	task.State = next
	if err := l.journal.UpdateTaskState(ctx, task.ID, next); err != nil {
		l.logger.Error("journal transition", "task_id", task.ID, "from", prev, "to", next, "error", err)
	}
}
