package scheduler

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/me/nodelet/internal/objectstore"
	"github.com/me/nodelet/internal/schedqueue"
	"github.com/me/nodelet/internal/store"
	"github.com/me/nodelet/internal/worker"
	"github.com/me/nodelet/pkg/model"
)

// testSetup creates an in-memory journal, an object store, a two-worker
// pool, and a running scheduler loop.
func testSetup(t *testing.T) (*Loop, store.Store, *objectstore.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	objects := objectstore.New()
	pool := worker.NewPool(2, 4, worker.NewRuntime(objects), logger)
	loop := NewLoop(st, objects, pool, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go loop.Start(ctx)
	t.Cleanup(func() {
		loop.Stop()
		cancel()
	})

	return loop, st, objects
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// taskState reads a task's journaled state.
func taskState(t *testing.T, st store.Store, id model.TaskID) model.TaskState {
	t.Helper()
	task, err := st.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTask(%s): %v", id, err)
	}
	if task == nil {
		t.Fatalf("task %s not journaled", id)
	}
	return task.State
}

func queueEmpty(loop *Loop) bool {
	for _, n := range loop.QueueCounts() {
		if n != 0 {
			return false
		}
	}
	return true
}

func TestSubmitRunsToCompletion(t *testing.T) {
	loop, st, objects := testSetup(t)

	err := loop.Submit(&model.Task{
		ID:       "t1",
		Function: "1 + 2",
		ReturnID: "o1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, func() bool { return taskState(t, st, "t1") == model.TaskStateDone }, "t1 DONE")

	v, ok := objects.Get("o1")
	if !ok {
		t.Fatal("result object o1 not published")
	}
	if v != int64(3) {
		t.Errorf("o1 = %v, want 3", v)
	}
	waitFor(t, func() bool { return queueEmpty(loop) }, "queue empty")
}

func TestSubmitWaitsForDependency(t *testing.T) {
	loop, st, _ := testSetup(t)

	err := loop.Submit(&model.Task{
		ID:           "t1",
		Function:     `deps["obj-x"] * 2`,
		Dependencies: []model.ObjectID{"obj-x"},
		ReturnID:     "o1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if got := loop.QueueCounts()["waiting"]; got != 1 {
		t.Fatalf("waiting count = %d, want 1", got)
	}
	if got := taskState(t, st, "t1"); got != model.TaskStateWaiting {
		t.Fatalf("state = %s, want WAITING", got)
	}

	if err := loop.PutObject("obj-x", 21); err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	waitFor(t, func() bool { return taskState(t, st, "t1") == model.TaskStateDone }, "t1 DONE")

	task, err := st.GetTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Result != float64(42) {
		t.Errorf("result = %v, want 42", task.Result)
	}
}

func TestTaskChaining(t *testing.T) {
	loop, st, _ := testSetup(t)

	if err := loop.Submit(&model.Task{
		ID:           "t2",
		Function:     `deps["o1"] + 1`,
		Dependencies: []model.ObjectID{"o1"},
		ReturnID:     "o2",
	}); err != nil {
		t.Fatalf("Submit t2: %v", err)
	}
	if err := loop.Submit(&model.Task{
		ID:       "t1",
		Function: "10",
		ReturnID: "o1",
	}); err != nil {
		t.Fatalf("Submit t1: %v", err)
	}

	waitFor(t, func() bool { return taskState(t, st, "t2") == model.TaskStateDone }, "t2 DONE")

	task, err := st.GetTask(context.Background(), "t2")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Result != float64(11) {
		t.Errorf("t2 result = %v, want 11", task.Result)
	}
}

func TestDuplicateSubmitRejected(t *testing.T) {
	loop, _, _ := testSetup(t)

	task := &model.Task{
		ID:           "t1",
		Function:     `deps["never"]`,
		Dependencies: []model.ObjectID{"never"},
	}
	if err := loop.Submit(task); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := loop.Submit(&model.Task{ID: "t1", Function: "1"}); err == nil {
		t.Error("second Submit of t1 did not fail")
	}
}

func TestSubmitValidation(t *testing.T) {
	loop, _, _ := testSetup(t)

	if err := loop.Submit(&model.Task{Function: "1"}); err == nil {
		t.Error("Submit without ID did not fail")
	}
	if err := loop.Submit(&model.Task{ID: "t1"}); err == nil {
		t.Error("Submit without function did not fail")
	}
}

func TestActorMethodStaging(t *testing.T) {
	loop, st, _ := testSetup(t)

	// Methods for actor-1 arrive before the actor exists.
	for _, id := range []model.TaskID{"m1", "m2"} {
		if err := loop.Submit(&model.Task{
			ID:       id,
			ActorID:  "actor-1",
			Function: `"method result"`,
		}); err != nil {
			t.Fatalf("Submit %s: %v", id, err)
		}
	}

	if got := loop.QueueCounts()["uncreated_actor_methods"]; got != 2 {
		t.Fatalf("uncreated_actor_methods count = %d, want 2", got)
	}
	if got := taskState(t, st, "m1"); got != model.TaskStateUncreatedActorMethod {
		t.Fatalf("m1 state = %s, want UNCREATED_ACTOR_METHOD", got)
	}

	// The creation task completes and releases the staged methods.
	if err := loop.Submit(&model.Task{
		ID:            "create",
		ActorID:       "actor-1",
		ActorCreation: true,
		Function:      "true",
	}); err != nil {
		t.Fatalf("Submit create: %v", err)
	}

	for _, id := range []model.TaskID{"create", "m1", "m2"} {
		waitFor(t, func() bool { return taskState(t, st, id) == model.TaskStateDone }, string(id)+" DONE")
	}

	// A method submitted after creation skips staging entirely.
	if err := loop.Submit(&model.Task{
		ID:       "m3",
		ActorID:  "actor-1",
		Function: "3",
	}); err != nil {
		t.Fatalf("Submit m3: %v", err)
	}
	waitFor(t, func() bool { return taskState(t, st, "m3") == model.TaskStateDone }, "m3 DONE")
}

func TestBlockedRecycling(t *testing.T) {
	loop, st, _ := testSetup(t)

	// No declared dependency, so the task dispatches immediately and
	// discovers the missing object at runtime.
	if err := loop.Submit(&model.Task{
		ID:       "t1",
		Function: `get("late-obj") + 1`,
		ReturnID: "o1",
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, func() bool { return loop.QueueCounts()["blocked"] == 1 }, "t1 blocked")
	if got := taskState(t, st, "t1"); got != model.TaskStateBlocked {
		t.Fatalf("state = %s, want BLOCKED", got)
	}

	if err := loop.PutObject("late-obj", 41); err != nil {
		t.Fatalf("PutObject: %v", err)
	}

	waitFor(t, func() bool { return taskState(t, st, "t1") == model.TaskStateDone }, "t1 DONE")

	task, err := st.GetTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Result != float64(42) {
		t.Errorf("result = %v, want 42", task.Result)
	}

	transitions, err := st.Transitions(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	var path []string
	for _, tr := range transitions {
		path = append(path, tr.To.String())
	}
	want := "SCHEDULED,RUNNING,BLOCKED,READY,SCHEDULED,RUNNING,DONE"
	if got := strings.Join(path, ","); got != want {
		t.Errorf("transition path = %s, want %s", got, want)
	}
}

func TestFailedTask(t *testing.T) {
	loop, st, _ := testSetup(t)

	if err := loop.Submit(&model.Task{
		ID:       "t1",
		Function: `throw new Error("boom")`,
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	waitFor(t, func() bool { return taskState(t, st, "t1") == model.TaskStateFailed }, "t1 FAILED")

	task, err := st.GetTask(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if !strings.Contains(task.Error, "boom") {
		t.Errorf("error = %q, want it to mention boom", task.Error)
	}
	waitFor(t, func() bool { return queueEmpty(loop) }, "queue empty")
}

func TestBucketTasksSnapshot(t *testing.T) {
	loop, _, _ := testSetup(t)

	for _, id := range []model.TaskID{"w1", "w2"} {
		if err := loop.Submit(&model.Task{
			ID:           id,
			Function:     "1",
			Dependencies: []model.ObjectID{"never"},
		}); err != nil {
			t.Fatalf("Submit %s: %v", id, err)
		}
	}

	waiting := loop.BucketTasks(schedqueue.BucketWaiting)
	if len(waiting) != 2 {
		t.Fatalf("waiting snapshot has %d tasks, want 2", len(waiting))
	}
	if waiting[0].ID != "w1" || waiting[1].ID != "w2" {
		t.Errorf("waiting order = [%s %s], want [w1 w2]", waiting[0].ID, waiting[1].ID)
	}
}

func TestSubmitDoesNotShareCallerTask(t *testing.T) {
	loop, st, _ := testSetup(t)

	task := &model.Task{ID: "t-caller", Function: "40 + 2", ReturnID: "o-caller"}
	if err := loop.Submit(task); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if task.State != model.TaskStateReady {
		t.Fatalf("State after Submit = %s, want READY", task.State)
	}

	// Read the caller's struct while the task runs. The loop must be
	// updating its own queued copy; the race detector flags any write
	// it still makes through the caller's pointer.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for i := 0; i < 1000; i++ {
			_ = task.State
			_ = task.StartedAt
		}
	}()

	waitFor(t, func() bool { return taskState(t, st, "t-caller") == model.TaskStateDone }, "t-caller DONE")
	<-readDone

	if task.State != model.TaskStateReady {
		t.Errorf("caller's task mutated after Submit: state = %s", task.State)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	loop, _, _ := testSetup(t)

	if err := loop.Submit(&model.Task{ID: "t1", Function: "1", ReturnID: "o1"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := loop.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := loop.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if err := loop.Submit(&model.Task{ID: "t2", Function: "1"}); err != ErrNotRunning {
		t.Errorf("Submit after Stop = %v, want ErrNotRunning", err)
	}
}
