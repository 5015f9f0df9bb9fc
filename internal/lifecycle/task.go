package lifecycle

import (
	"context"
	"sync"
)

// Task tracks one asynchronous manager operation. It completes after the
// operation's state changes have been published.
type Task struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

func completedTask(err error) *Task {
	t := newTask()
	t.finish(err)
	return t
}

func (t *Task) finish(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

// Done is closed when the task completes.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the task's outcome. It is only meaningful after Done is closed.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the task completes or ctx ends.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
