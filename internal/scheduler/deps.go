package scheduler

import (
	"github.com/me/nodelet/internal/objectstore"
	"github.com/me/nodelet/pkg/model"
)

// dependencyManager tracks which objects each parked task is still
// missing. It covers both waiting tasks (declared dependencies unmet at
// submit time) and blocked tasks (a get() miss discovered at runtime).
type dependencyManager struct {
	objects *objectstore.Store
	// waiters maps an object to the tasks parked on it.
	waiters map[model.ObjectID]map[model.TaskID]struct{}
	// missing maps a parked task to the objects it still needs.
	missing map[model.TaskID]map[model.ObjectID]struct{}
}

func newDependencyManager(objects *objectstore.Store) *dependencyManager {
	return &dependencyManager{
		objects: objects,
		waiters: make(map[model.ObjectID]map[model.TaskID]struct{}),
		missing: make(map[model.TaskID]map[model.ObjectID]struct{}),
	}
}

// Unmet returns the task's declared dependencies that are not local,
// without registering anything.
func (m *dependencyManager) Unmet(task *model.Task) []model.ObjectID {
	var unmet []model.ObjectID
	for _, dep := range task.Dependencies {
		if !m.objects.Contains(dep) {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// Park subscribes the task to the given missing objects. The task stays
// parked until OnObjectLocal has reported every one of them.
func (m *dependencyManager) Park(id model.TaskID, objs []model.ObjectID) {
	for _, obj := range objs {
		if m.waiters[obj] == nil {
			m.waiters[obj] = make(map[model.TaskID]struct{})
		}
		m.waiters[obj][id] = struct{}{}
		if m.missing[id] == nil {
			m.missing[id] = make(map[model.ObjectID]struct{})
		}
		m.missing[id][obj] = struct{}{}
	}
}

// OnObjectLocal records that obj is now local and returns the parked
// tasks that have no missing objects left, in no particular order.
func (m *dependencyManager) OnObjectLocal(obj model.ObjectID) []model.TaskID {
	var resolved []model.TaskID
	for id := range m.waiters[obj] {
		delete(m.missing[id], obj)
		if len(m.missing[id]) == 0 {
			delete(m.missing, id)
			resolved = append(resolved, id)
		}
	}
	delete(m.waiters, obj)
	return resolved
}
