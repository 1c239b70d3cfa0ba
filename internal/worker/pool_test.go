package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/me/nodelet/internal/objectstore"
	"github.com/me/nodelet/pkg/model"
)

func testPool(t *testing.T, workers, depth int) (*Pool, *objectstore.Store) {
	t.Helper()
	objects := objectstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPool(workers, depth, NewRuntime(objects), logger)
	p.Start(context.Background())
	t.Cleanup(p.Stop)
	return p, objects
}

// drain collects events for one task until its Finished event arrives.
func drain(t *testing.T, p *Pool, id model.TaskID) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-p.Events():
			if ev.TaskID == id && ev.Kind == EventFinished {
				return ev
			}
		case <-deadline:
			t.Fatalf("no Finished event for task %s", id)
		}
	}
}

func TestPoolExecutesTask(t *testing.T) {
	p, _ := testPool(t, 2, 4)

	task := &model.Task{ID: "t1", Function: "40 + 2"}
	if !p.Submit(task) {
		t.Fatal("Submit returned false with free slots")
	}

	ev := drain(t, p, "t1")
	if ev.Err != nil {
		t.Fatalf("task error: %v", ev.Err)
	}
	if ev.Value != int64(42) {
		t.Errorf("task value = %v, want 42", ev.Value)
	}
}

func TestPoolReportsStartedBeforeFinished(t *testing.T) {
	p, _ := testPool(t, 1, 1)

	if !p.Submit(&model.Task{ID: "t1", Function: "1"}) {
		t.Fatal("Submit returned false")
	}

	var kinds []EventKind
	deadline := time.After(5 * time.Second)
	for len(kinds) < 2 {
		select {
		case ev := <-p.Events():
			kinds = append(kinds, ev.Kind)
		case <-deadline:
			t.Fatalf("got %d events, want 2", len(kinds))
		}
	}
	if kinds[0] != EventStarted || kinds[1] != EventFinished {
		t.Errorf("event order = %v, want [Started Finished]", kinds)
	}
}

func TestPoolReportsMissingObject(t *testing.T) {
	p, _ := testPool(t, 1, 1)

	p.Submit(&model.Task{ID: "t1", Function: `get("nope")`})
	ev := drain(t, p, "t1")

	var missing *MissingObjectError
	if !errors.As(ev.Err, &missing) {
		t.Fatalf("ev.Err = %v, want *MissingObjectError", ev.Err)
	}
}

func TestPoolStopWithUnconsumedEvents(t *testing.T) {
	objects := objectstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPool(1, 2, NewRuntime(objects), logger)
	p.Start(context.Background())

	// Enough work that the worker overflows the event buffer with
	// nobody reading it.
	submitted := 0
	deadline := time.Now().Add(5 * time.Second)
	for submitted < 3 && time.Now().Before(deadline) {
		if p.Submit(&model.Task{ID: model.TaskID(fmt.Sprintf("t%d", submitted)), Function: "1 + 1"}) {
			submitted++
		} else {
			time.Sleep(time.Millisecond)
		}
	}
	if submitted < 3 {
		t.Fatal("could not submit 3 tasks")
	}

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return with queued tasks and no event consumer")
	}

	// A second Stop is a no-op.
	p.Stop()
}

func TestPoolSubmitFullQueue(t *testing.T) {
	objects := objectstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := NewPool(1, 1, NewRuntime(objects), logger)
	// Not started: nothing drains the queue, so the second submit must
	// be rejected rather than block.
	if !p.Submit(&model.Task{ID: "t1", Function: "1"}) {
		t.Fatal("first Submit returned false")
	}
	if p.Submit(&model.Task{ID: "t2", Function: "1"}) {
		t.Error("second Submit returned true with a full queue")
	}
	if p.Slots() != 0 {
		t.Errorf("Slots() = %d, want 0", p.Slots())
	}
}
