package model

import (
	"time"
)

// TaskID uniquely identifies a task on the cluster. IDs are minted by
// clients (or by the submit handler on their behalf), never by the node.
type TaskID string

// ObjectID names a piece of data produced by a task and tracked by the
// local object store.
type ObjectID string

// ActorID identifies a stateful actor instance.
type ActorID string

// Task is a schedulable unit of work tracked by the node scheduler.
//
// The scheduling queue treats a Task as opaque: it reads only the ID.
// Everything else (dependencies, actor target, function body) is
// interpreted by the scheduler's collaborators.
type Task struct {
	ID TaskID `json:"id"`

	// ActorID is set for tasks addressed to a stateful actor instance.
	// If ActorCreation is true, this task creates the actor.
	ActorID       ActorID `json:"actor_id,omitempty"`
	ActorCreation bool    `json:"actor_creation,omitempty"`

	// Function is the JavaScript source executed by the worker runtime.
	// It may reference `args` and call `get(objectID)` for objects not
	// declared as dependencies.
	Function string `json:"function"`

	// Args are literal argument values passed to Function as `args`.
	Args []any `json:"args,omitempty"`

	// Dependencies are the objects that must be local before the task
	// leaves the waiting bucket.
	Dependencies []ObjectID `json:"dependencies,omitempty"`

	// ReturnID is the object the task's result is published under.
	ReturnID ObjectID `json:"return_id,omitempty"`

	// Resources are advisory resource demands (e.g. "cpu": 1).
	Resources map[string]float64 `json:"resources,omitempty"`

	// Result and Error are populated by the journal once the task is
	// terminal.
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`

	State       TaskState  `json:"state,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// IsActorMethod returns true for tasks addressed to an existing actor
// instance (as opposed to plain tasks and actor-creation tasks).
func (t *Task) IsActorMethod() bool {
	return t.ActorID != "" && !t.ActorCreation
}
