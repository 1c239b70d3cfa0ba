package model

// TaskState represents the scheduling state of a task on a node.
//
// The first six states correspond one-to-one to the buckets of the
// scheduling queue. DONE and FAILED are terminal journal states: a task
// in a terminal state has been removed from the queue.
type TaskState string

const (
	// TaskStateUncreatedActorMethod: addressed to an actor whose
	// creation task has not yet completed on any node.
	TaskStateUncreatedActorMethod TaskState = "UNCREATED_ACTOR_METHOD"
	// TaskStateWaiting: has unmet object dependencies.
	TaskStateWaiting TaskState = "WAITING"
	// TaskStateReady: all object dependencies local; eligible for dispatch.
	TaskStateReady TaskState = "READY"
	// TaskStateScheduled: assigned to run on this node; waiting for a worker.
	TaskStateScheduled TaskState = "SCHEDULED"
	// TaskStateRunning: executing on a worker.
	TaskStateRunning TaskState = "RUNNING"
	// TaskStateBlocked: was running; the worker hit a missing object at
	// runtime and parked.
	TaskStateBlocked TaskState = "BLOCKED"

	TaskStateDone   TaskState = "DONE"
	TaskStateFailed TaskState = "FAILED"
)

// String returns the string representation of the task state.
func (s TaskState) String() string {
	return string(s)
}

// IsTerminal returns true if the task is in a final state.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateDone, TaskStateFailed:
		return true
	}
	return false
}

// QueueStates lists the states that correspond to scheduling-queue
// buckets, in lifecycle order.
var QueueStates = []TaskState{
	TaskStateUncreatedActorMethod,
	TaskStateWaiting,
	TaskStateReady,
	TaskStateScheduled,
	TaskStateRunning,
	TaskStateBlocked,
}

// ValidTaskTransitions defines the allowed state transitions. This is
// scheduler policy: the scheduling queue itself never consults it.
var ValidTaskTransitions = map[TaskState][]TaskState{
	TaskStateUncreatedActorMethod: {TaskStateReady, TaskStateWaiting, TaskStateFailed},
	TaskStateWaiting:              {TaskStateReady, TaskStateFailed},
	TaskStateReady:                {TaskStateScheduled, TaskStateFailed},
	TaskStateScheduled:            {TaskStateRunning, TaskStateFailed},
	TaskStateRunning:              {TaskStateBlocked, TaskStateDone, TaskStateFailed},
	TaskStateBlocked:              {TaskStateReady, TaskStateFailed},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s TaskState) CanTransitionTo(next TaskState) bool {
	for _, allowed := range ValidTaskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseTaskState maps a bucket name (as used in the HTTP API) to a
// TaskState. Returns false for unknown names.
func ParseTaskState(name string) (TaskState, bool) {
	switch name {
	case "uncreated_actor_methods":
		return TaskStateUncreatedActorMethod, true
	case "waiting":
		return TaskStateWaiting, true
	case "ready":
		return TaskStateReady, true
	case "scheduled":
		return TaskStateScheduled, true
	case "running":
		return TaskStateRunning, true
	case "blocked":
		return TaskStateBlocked, true
	case "done":
		return TaskStateDone, true
	case "failed":
		return TaskStateFailed, true
	}
	return "", false
}

// BucketName returns the lowercase bucket name used in the HTTP API.
func (s TaskState) BucketName() string {
	switch s {
	case TaskStateUncreatedActorMethod:
		return "uncreated_actor_methods"
	case TaskStateWaiting:
		return "waiting"
	case TaskStateReady:
		return "ready"
	case TaskStateScheduled:
		return "scheduled"
	case TaskStateRunning:
		return "running"
	case TaskStateBlocked:
		return "blocked"
	case TaskStateDone:
		return "done"
	case TaskStateFailed:
		return "failed"
	}
	return string(s)
}
