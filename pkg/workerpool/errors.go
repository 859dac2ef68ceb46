package workerpool

import "errors"

var (
	// ErrSuperseded rejects a pending task when a newer task for the same agent arrives
	ErrSuperseded = errors.New("task superseded by a newer task for the same agent")
	// ErrTaskTimeout rejects a task whose worker did not report before the deadline
	ErrTaskTimeout = errors.New("task timed out")
	// ErrWorkerFailed wraps a decider error or a recovered worker panic
	ErrWorkerFailed = errors.New("worker failed")
	// ErrPoolShutdown is returned for pending and new tasks once ShutdownAll ran
	ErrPoolShutdown = errors.New("worker pool is shut down")
	// ErrInvalidTask is returned for tasks without an agent id
	ErrInvalidTask = errors.New("invalid task")
)

// outcomeLabel maps a task error to its metrics label
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	case errors.Is(err, ErrTaskTimeout):
		return "timeout"
	case errors.Is(err, ErrPoolShutdown):
		return "shutdown"
	default:
		return "error"
	}
}
