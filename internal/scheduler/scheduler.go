// Package scheduler implements the node's task scheduler: a single
// event loop that owns the scheduling queue and moves tasks through
// their lifecycle as objects arrive, workers free up, and actors get
// created. All queue access happens on the loop goroutine; the public
// methods post events and, for reads, wait for a reply.
package scheduler

import (
	"context"

	"github.com/me/nodelet/internal/schedqueue"
	"github.com/me/nodelet/pkg/model"
)

// Scheduler is the node scheduler's public surface, used by the HTTP
// server and by tests.
type Scheduler interface {
	// Start begins the event loop. Blocks until ctx is cancelled or
	// Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the loop and the worker pool.
	Stop() error

	// Submit hands a new task to the scheduler. Returns an error if a
	// task with the same ID is already tracked.
	Submit(task *model.Task) error

	// PutObject publishes an object to the local object store and
	// resolves any tasks waiting on it.
	PutObject(id model.ObjectID, value any) error

	// QueueCounts returns the per-bucket task counts.
	QueueCounts() map[string]int

	// BucketTasks returns a snapshot of one bucket's contents in
	// insertion order.
	BucketTasks(b schedqueue.Bucket) []model.Task
}
