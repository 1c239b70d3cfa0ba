// Package schedqueue holds the node scheduler's task queues. Each queue
// represents a scheduling state for a task: waiting for object
// dependencies, ready to be scheduled, scheduled but waiting for a
// worker, running on a worker, blocked on a dependency discovered
// missing at runtime, or staged for an actor that has not been created
// yet.
//
// The queue is pure bookkeeping: it partitions the tasks known to this
// node into disjoint buckets and moves them between buckets in bulk. It
// enforces no transition policy; the scheduler composes every
// transition as RemoveTasks followed by a Queue* call.
//
// Precondition violations (queueing an ID already present anywhere,
// removing an ID present nowhere) mean the surrounding scheduler has
// lost track of a task. They panic; there is no recovery path.
//
// The queue is not synchronized. It is owned by the scheduler's event
// goroutine, which serializes all access.
package schedqueue

import (
	"container/list"
	"fmt"

	"github.com/me/nodelet/pkg/model"
)

// Bucket identifies one of the queue's lifecycle buckets.
type Bucket int

const (
	BucketUncreatedActorMethods Bucket = iota
	BucketWaiting
	BucketReady
	BucketScheduled
	BucketRunning
	BucketBlocked
	numBuckets
)

// String returns the bucket name as used in the HTTP API.
func (b Bucket) String() string {
	return b.State().BucketName()
}

// State returns the TaskState corresponding to this bucket.
func (b Bucket) State() model.TaskState {
	return model.QueueStates[b]
}

// BucketForState maps a queue TaskState back to its bucket. Returns
// false for terminal states, which have no bucket.
func BucketForState(s model.TaskState) (Bucket, bool) {
	for i, qs := range model.QueueStates {
		if qs == s {
			return Bucket(i), true
		}
	}
	return 0, false
}

// slot records where a task currently lives, so RemoveTasks is O(1)
// per id instead of a scan over every bucket.
type slot struct {
	bucket Bucket
	elem   *list.Element
}

// SchedulingQueue partitions the tasks known to this node into six
// disjoint, insertion-ordered buckets.
type SchedulingQueue struct {
	buckets [numBuckets]*list.List // of *model.Task
	index   map[model.TaskID]slot
}

// New creates an empty scheduling queue.
func New() *SchedulingQueue {
	q := &SchedulingQueue{
		index: make(map[model.TaskID]slot),
	}
	for i := range q.buckets {
		q.buckets[i] = list.New()
	}
	return q
}

// view materializes the current contents of a bucket in insertion
// order. The returned slice is fresh, but the tasks it points to remain
// owned by the queue: callers must not mutate them, and must not hold
// the slice across a mutating call.
func (q *SchedulingQueue) view(b Bucket) []*model.Task {
	bucket := q.buckets[b]
	tasks := make([]*model.Task, 0, bucket.Len())
	for e := bucket.Front(); e != nil; e = e.Next() {
		tasks = append(tasks, e.Value.(*model.Task))
	}
	return tasks
}

// UncreatedActorMethods returns the tasks destined for actors that have
// not yet been created, in insertion order.
func (q *SchedulingQueue) UncreatedActorMethods() []*model.Task {
	return q.view(BucketUncreatedActorMethods)
}

// WaitingTasks returns the tasks waiting for object dependencies to
// become available, in insertion order.
func (q *SchedulingQueue) WaitingTasks() []*model.Task {
	return q.view(BucketWaiting)
}

// ReadyTasks returns the tasks that have all dependencies local and are
// waiting to be scheduled, in insertion order.
func (q *SchedulingQueue) ReadyTasks() []*model.Task {
	return q.view(BucketReady)
}

// ReadyMethods returns the actor methods in the ready state. Ready
// methods share a bucket with ready tasks; this accessor exists for the
// dispatcher's actor-method call sites and returns the same contents as
// ReadyTasks.
func (q *SchedulingQueue) ReadyMethods() []*model.Task {
	return q.view(BucketReady)
}

// ScheduledTasks returns the tasks scheduled to execute on this node
// but still waiting for a worker, in insertion order.
func (q *SchedulingQueue) ScheduledTasks() []*model.Task {
	return q.view(BucketScheduled)
}

// RunningTasks returns the tasks currently executing on a worker, in
// insertion order.
func (q *SchedulingQueue) RunningTasks() []*model.Task {
	return q.view(BucketRunning)
}

// BlockedTasks returns the tasks that were dispatched to a worker but
// are parked on a data dependency discovered missing at runtime, in
// insertion order.
func (q *SchedulingQueue) BlockedTasks() []*model.Task {
	return q.view(BucketBlocked)
}

// Tasks returns the contents of an arbitrary bucket in insertion order.
func (q *SchedulingQueue) Tasks(b Bucket) []*model.Task {
	return q.view(b)
}

// Len returns the number of tasks in one bucket.
func (q *SchedulingQueue) Len(b Bucket) int {
	return q.buckets[b].Len()
}

// TotalLen returns the number of tasks across all buckets.
func (q *SchedulingQueue) TotalLen() int {
	return len(q.index)
}

// Contains reports whether any bucket holds the given task.
func (q *SchedulingQueue) Contains(id model.TaskID) bool {
	_, ok := q.index[id]
	return ok
}

// Counts returns the per-bucket task counts keyed by bucket name.
func (q *SchedulingQueue) Counts() map[string]int {
	counts := make(map[string]int, numBuckets)
	for b := Bucket(0); b < numBuckets; b++ {
		counts[b.String()] = q.buckets[b].Len()
	}
	return counts
}

// queue appends tasks, in the given order, to the tail of one bucket.
func (q *SchedulingQueue) queue(b Bucket, tasks []*model.Task) {
	for _, t := range tasks {
		if existing, ok := q.index[t.ID]; ok {
			panic(fmt.Sprintf("schedqueue: task %s queued into %s but already present in %s", t.ID, b, existing.bucket))
		}
		q.index[t.ID] = slot{bucket: b, elem: q.buckets[b].PushBack(t)}
	}
}

// QueueUncreatedActorMethods queues tasks that are destined for actors
// that have not yet been created.
func (q *SchedulingQueue) QueueUncreatedActorMethods(tasks []*model.Task) {
	q.queue(BucketUncreatedActorMethods, tasks)
}

// QueueWaitingTasks queues tasks that cannot yet be scheduled because
// they are blocked on a missing object dependency.
func (q *SchedulingQueue) QueueWaitingTasks(tasks []*model.Task) {
	q.queue(BucketWaiting, tasks)
}

// QueueReadyTasks queues tasks in the ready state.
func (q *SchedulingQueue) QueueReadyTasks(tasks []*model.Task) {
	q.queue(BucketReady, tasks)
}

// QueueScheduledTasks queues tasks in the scheduled state.
func (q *SchedulingQueue) QueueScheduledTasks(tasks []*model.Task) {
	q.queue(BucketScheduled, tasks)
}

// QueueRunningTasks queues tasks in the running state.
func (q *SchedulingQueue) QueueRunningTasks(tasks []*model.Task) {
	q.queue(BucketRunning, tasks)
}

// QueueBlockedTasks queues tasks that were dispatched to a worker but
// are blocked on a data dependency that was missing at runtime.
func (q *SchedulingQueue) QueueBlockedTasks(tasks []*model.Task) {
	q.queue(BucketBlocked, tasks)
}

// QueueTasks appends tasks to an arbitrary bucket.
func (q *SchedulingQueue) QueueTasks(b Bucket, tasks []*model.Task) {
	q.queue(b, tasks)
}

// RemoveTasks removes every task whose ID is in ids from whichever
// bucket holds it and returns the removed tasks. Each requested ID must
// be present in some bucket. The relative order of the surviving tasks
// in each bucket is preserved.
//
// The order of the returned slice follows ids. Callers should not rely
// on it: callers that need a specific order must impose it themselves.
func (q *SchedulingQueue) RemoveTasks(ids []model.TaskID) []*model.Task {
	removed := make([]*model.Task, 0, len(ids))
	for _, id := range ids {
		s, ok := q.index[id]
		if !ok {
			panic(fmt.Sprintf("schedqueue: remove of task %s not present in any bucket", id))
		}
		removed = append(removed, q.buckets[s.bucket].Remove(s.elem).(*model.Task))
		delete(q.index, id)
	}
	return removed
}
