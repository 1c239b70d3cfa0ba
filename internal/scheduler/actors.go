package scheduler

import "github.com/me/nodelet/pkg/model"

// actorRegistry tracks which actors have been created and stages
// methods addressed to actors that do not exist yet.
type actorRegistry struct {
	created map[model.ActorID]bool
	// staged holds parked method task IDs per actor, in arrival order.
	staged map[model.ActorID][]model.TaskID
}

func newActorRegistry() *actorRegistry {
	return &actorRegistry{
		created: make(map[model.ActorID]bool),
		staged:  make(map[model.ActorID][]model.TaskID),
	}
}

// Created reports whether the actor's creation task has completed.
func (r *actorRegistry) Created(id model.ActorID) bool {
	return r.created[id]
}

// StageMethod parks a method task until its actor is created.
func (r *actorRegistry) StageMethod(actor model.ActorID, task model.TaskID) {
	r.staged[actor] = append(r.staged[actor], task)
}

// MarkCreated records the actor as created and returns its staged
// methods in arrival order.
func (r *actorRegistry) MarkCreated(actor model.ActorID) []model.TaskID {
	r.created[actor] = true
	staged := r.staged[actor]
	delete(r.staged, actor)
	return staged
}
