// Package worker provides the node's worker pool and the JavaScript
// runtime that executes task functions against the local object store.
package worker

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/me/nodelet/internal/objectstore"
	"github.com/me/nodelet/pkg/model"
)

// MissingObjectError reports that a task touched an object that is not
// local. The scheduler parks the task in the blocked bucket until the
// object arrives.
type MissingObjectError struct {
	ID model.ObjectID
}

func (e *MissingObjectError) Error() string {
	return fmt.Sprintf("object %s is not local", e.ID)
}

// Runtime executes task functions in a JavaScript VM.
//
// The VM exposes:
//   - args: the task's literal argument values
//   - deps: the task's declared dependency values, keyed by object ID
//   - get(objectID): reads any local object; aborts the task with a
//     MissingObjectError if the object is not local
//
// The value of the final expression becomes the task's result.
type Runtime struct {
	objects *objectstore.Store
}

// NewRuntime creates a runtime reading from the given object store.
func NewRuntime(objects *objectstore.Store) *Runtime {
	return &Runtime{objects: objects}
}

// Execute runs the task's function and returns its result.
//
// Declared dependencies are resolved before the VM starts; a missing
// declared dependency or a get() on a non-local object returns a
// *MissingObjectError.
func (r *Runtime) Execute(task *model.Task) (result any, err error) {
	deps := make(map[string]any, len(task.Dependencies))
	for _, dep := range task.Dependencies {
		v, ok := r.objects.Get(dep)
		if !ok {
			return nil, &MissingObjectError{ID: dep}
		}
		deps[string(dep)] = v
	}

	// get() signals a miss by panicking with the typed error; recover
	// it here so the pool sees a normal error return.
	defer func() {
		if rec := recover(); rec != nil {
			if missing, ok := rec.(*MissingObjectError); ok {
				result, err = nil, missing
				return
			}
			panic(rec)
		}
	}()

	vm := goja.New()
	if err := vm.Set("args", task.Args); err != nil {
		return nil, fmt.Errorf("set args: %w", err)
	}
	if err := vm.Set("deps", deps); err != nil {
		return nil, fmt.Errorf("set deps: %w", err)
	}
	if err := vm.Set("get", func(call goja.FunctionCall) goja.Value {
		id := model.ObjectID(call.Argument(0).String())
		v, ok := r.objects.Get(id)
		if !ok {
			panic(&MissingObjectError{ID: id})
		}
		return vm.ToValue(v)
	}); err != nil {
		return nil, fmt.Errorf("set get: %w", err)
	}

	value, err := vm.RunString(task.Function)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", task.ID, err)
	}
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, nil
	}
	return value.Export(), nil
}
