package reviews

import (
	"sync"

	"github.com/hanko-field/storefront/internal/domain"
)

// Result is the terminal outcome of a submission.
type Result struct {
	State   State
	Review  domain.Review
	Message string
	Err     error
}

// Task tracks one in-flight submission.
type Task struct {
	ProductID string
	ReviewID  string

	once   sync.Once
	done   chan struct{}
	result Result
}

func newTask(productID, reviewID string) *Task {
	return &Task{ProductID: productID, ReviewID: reviewID, done: make(chan struct{})}
}

// Done is closed once the task resolves.
func (t *Task) Done() <-chan struct{} { return t.done }

// Result returns the outcome and whether the task has resolved.
func (t *Task) Result() (Result, bool) {
	select {
	case <-t.done:
		return t.result, true
	default:
		return Result{State: StatePending}, false
	}
}

func (t *Task) resolve(result Result) bool {
	resolved := false
	t.once.Do(func() {
		t.result = result
		close(t.done)
		resolved = true
	})
	return resolved
}
