package store

import (
	"context"

	"github.com/me/nodelet/pkg/model"
)

// Store is the node's task journal. It records task metadata, state
// transitions, and final results so the HTTP API can serve task history
// after tasks leave the scheduling queue. It is never used to restore
// queue state: the queue is memory-only by contract.
type Store interface {
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, id model.TaskID) (*model.Task, error)
	ListTasks(ctx context.Context, opts model.ListOptions) ([]*model.Task, int, error)

	// UpdateTaskState records a transition, validating it against
	// ValidTaskTransitions. It returns *model.InvalidTransitionError
	// for a transition the lifecycle does not allow.
	UpdateTaskState(ctx context.Context, id model.TaskID, next model.TaskState) error

	// SetTaskResult marks a task terminal (DONE or FAILED) and stores
	// its result value or error message.
	SetTaskResult(ctx context.Context, id model.TaskID, state model.TaskState, result any, errMsg string) error

	// Transitions returns the recorded transition history for a task,
	// oldest first.
	Transitions(ctx context.Context, id model.TaskID) ([]Transition, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Transition is one recorded state change of a task.
type Transition struct {
	TaskID model.TaskID    `json:"task_id"`
	From   model.TaskState `json:"from"`
	To     model.TaskState `json:"to"`
	At     string          `json:"at"` // RFC3339Nano
}
