package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/harun/conclave/internal/tracing"
	"github.com/harun/conclave/pkg/agent"
	"github.com/rs/zerolog"
)

// job is one task handed to a worker
type job struct {
	taskID string
	task   agent.Task
	ctx    context.Context // carries tracing fields only
}

// report is what a worker sends back on the pool's result channel
type report struct {
	agentID    string
	instanceID string
	taskID     string
	decision   agent.Decision
	err        error
}

// worker is the long-lived execution context for one agent
type worker struct {
	agentID    string
	instanceID string
	inbox      chan job
	quit       chan struct{}
	quitOnce   sync.Once
	ctx        context.Context
	cancel     context.CancelFunc
}

func newWorker(agentID string) *worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &worker{
		agentID:    agentID,
		instanceID: uuid.New().String(),
		inbox:      make(chan job, 1),
		quit:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// deliver hands j to the worker, replacing a job that is still queued.
// The caller must hold the pool mutex so that it is the only producer.
func (w *worker) deliver(j job) {
	select {
	case <-w.inbox:
	default:
	}
	w.inbox <- j
}

// stop asks the worker to exit after its current job
func (w *worker) stop() {
	w.quitOnce.Do(func() { close(w.quit) })
}

// terminate cancels the worker's context, aborting the decider call in flight
func (w *worker) terminate() {
	w.stop()
	w.cancel()
}

func (w *worker) run(decider agent.Decider, reports chan<- report, logger zerolog.Logger) {
	for {
		select {
		case <-w.quit:
			return
		case <-w.ctx.Done():
			return
		case j := <-w.inbox:
			decision, err := w.decide(decider, j)
			r := report{
				agentID:    w.agentID,
				instanceID: w.instanceID,
				taskID:     j.taskID,
				decision:   decision,
				err:        err,
			}

			select {
			case reports <- r:
			case <-w.ctx.Done():
				logger.Debug().
					Str("agent_id", w.agentID).
					Str("task_id", j.taskID).
					Msg("Worker terminated before reporting")
				return
			}
		}
	}
}

func (w *worker) decide(decider agent.Decider, j job) (decision agent.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			decision = nil
			err = fmt.Errorf("panic in decider: %v", r)
		}
	}()

	ctx := tracing.MergeContext(w.ctx, j.ctx)
	decision, err = decider.Decide(ctx, j.task)
	if err == nil && decision == nil {
		err = fmt.Errorf("decider returned no decision")
	}
	return decision, err
}
