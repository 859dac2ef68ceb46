package workerpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/conclave/internal/observability"
	"github.com/harun/conclave/internal/tracing"
	"github.com/harun/conclave/pkg/agent"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Stats is a read-only snapshot of pool occupancy
type Stats struct {
	Active  int `json:"active"`  // workers currently holding a slot
	Max     int `json:"max"`     // bound on Active
	Total   int `json:"total"`   // live workers, busy or warm
	Pending int `json:"pending"` // tasks awaiting a result
}

type outcome struct {
	decision agent.Decision
	err      error
}

// pendingTask is the single in-flight task of one agent
type pendingTask struct {
	id      string
	task    agent.Task
	started time.Time
	timer   *time.Timer
	done    chan outcome // buffered; written exactly once
}

func (pt *pendingTask) resolve(o outcome) {
	if pt.timer != nil {
		pt.timer.Stop()
	}
	pt.done <- o
}

type entry struct {
	worker  *worker
	active  bool // holds one semaphore unit
	pending *pendingTask
}

// Pool schedules decision tasks onto per-agent workers with bounded concurrency
type Pool struct {
	decider        agent.Decider
	maxWorkers     int
	defaultTimeout time.Duration
	logger         zerolog.Logger

	sem     *semaphore.Weighted
	reports chan report

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool

	ctx           context.Context
	cancel        context.CancelFunc
	collectorDone chan struct{}
	shutdownOnce  sync.Once
}

// New creates a pool that runs tasks through decider
func New(decider agent.Decider, opts ...Option) *Pool {
	observability.EnsureRegistered()

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		decider:        decider,
		maxWorkers:     DefaultMaxWorkers,
		defaultTimeout: DefaultTaskTimeout,
		logger:         log.Logger,
		entries:        make(map[string]*entry),
		ctx:            ctx,
		cancel:         cancel,
		collectorDone:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With().Str("component", "workerpool").Logger()
	p.sem = semaphore.NewWeighted(int64(p.maxWorkers))
	p.reports = make(chan report, p.maxWorkers)

	go p.collect()

	return p
}

// Submit runs task on the agent's worker and blocks until it resolves.
//
// A task for an agent that already has a task in flight supersedes it: the
// earlier caller receives ErrSuperseded and the worker gets the new task.
// Cancelling ctx abandons the wait; the task itself still ends by result or
// timeout.
func (p *Pool) Submit(ctx context.Context, task agent.Task) (agent.Decision, error) {
	if task.AgentID == "" {
		return nil, fmt.Errorf("%w: missing agent id", ErrInvalidTask)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if task.Timeout <= 0 {
		task.Timeout = p.defaultTimeout
	}

	taskID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate task id: %w", err)
	}
	if task.ID == "" {
		task.ID = taskID
	}

	ctx = tracing.ForTask(ctx, task.AgentID, string(task.Role), task.Round, taskID)
	ctx, span := tracing.StartSpan(ctx, "workerpool.submit")
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, p.logger)

	pt, err := p.schedule(ctx, taskID, task, logger)
	if err != nil {
		tracing.FailSpan(span, err)
		return nil, err
	}

	select {
	case out := <-pt.done:
		observability.RecordTaskOutcome(string(task.Role), outcomeLabel(out.err), time.Since(pt.started))
		if out.err != nil {
			tracing.FailSpan(span, out.err)
			logger.Debug().Err(out.err).Msg("Task rejected")
			return nil, out.err
		}
		logger.Debug().Str("action", string(out.decision.Action())).Msg("Task resolved")
		return out.decision, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// schedule installs task as the agent's pending task and hands it to the worker
func (p *Pool) schedule(ctx context.Context, taskID string, task agent.Task, logger zerolog.Logger) (*pendingTask, error) {
	agentID := task.AgentID

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolShutdown
	}

	e := p.entries[agentID]
	if e == nil || !e.active {
		p.mu.Unlock()

		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("wait for worker slot: %w", err)
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.sem.Release(1)
			return nil, ErrPoolShutdown
		}

		e = p.entries[agentID]
		switch {
		case e == nil:
			e = &entry{worker: newWorker(agentID), active: true}
			p.entries[agentID] = e
			go e.worker.run(p.decider, p.reports, p.logger)
			logger.Debug().Str("instance_id", e.worker.instanceID).Msg("Worker spawned")
		case e.active:
			// another submit for this agent activated it while we waited
			p.sem.Release(1)
		default:
			e.active = true
		}
	}

	if prev := e.pending; prev != nil {
		e.pending = nil
		prev.resolve(outcome{err: fmt.Errorf("%w: agent %s round %d", ErrSuperseded, agentID, prev.task.Round)})
		logger.Debug().Int("superseded_round", prev.task.Round).Msg("Pending task superseded")
	}

	pt := &pendingTask{
		id:      taskID,
		task:    task,
		started: time.Now(),
		done:    make(chan outcome, 1),
	}
	pt.timer = time.AfterFunc(task.Timeout, func() { p.expire(agentID, taskID) })
	e.pending = pt
	e.worker.deliver(job{taskID: taskID, task: task, ctx: ctx})

	p.publishStatsLocked()
	p.mu.Unlock()

	return pt, nil
}

// expire fires when a task's timer elapses before its worker reported
func (p *Pool) expire(agentID, taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.entries[agentID]
	if e == nil || e.pending == nil || e.pending.id != taskID {
		return
	}

	pt := e.pending
	p.removeLocked(agentID, e)
	pt.resolve(outcome{err: fmt.Errorf("%w: agent %s round %d after %s", ErrTaskTimeout, agentID, pt.task.Round, pt.task.Timeout)})

	p.logger.Warn().
		Str("agent_id", agentID).
		Str("role", string(pt.task.Role)).
		Int("round", pt.task.Round).
		Dur("timeout", pt.task.Timeout).
		Msg("Task timed out, worker terminated")
}

// collect matches worker reports to pending tasks until the pool shuts down
func (p *Pool) collect() {
	defer close(p.collectorDone)

	for {
		select {
		case <-p.ctx.Done():
			return
		case r := <-p.reports:
			p.handleReport(r)
		}
	}
}

func (p *Pool) handleReport(r report) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.entries[r.agentID]
	if e == nil || e.worker.instanceID != r.instanceID || e.pending == nil || e.pending.id != r.taskID {
		p.logger.Debug().
			Str("agent_id", r.agentID).
			Str("instance_id", r.instanceID).
			Str("task_id", r.taskID).
			Msg("Dropping stale worker report")
		return
	}

	pt := e.pending
	e.pending = nil

	if r.err != nil {
		p.removeLocked(r.agentID, e)
		pt.resolve(outcome{err: fmt.Errorf("%w: agent %s round %d: %w", ErrWorkerFailed, r.agentID, pt.task.Round, r.err)})
		p.logger.Warn().Err(r.err).Str("agent_id", r.agentID).Int("round", pt.task.Round).Msg("Worker failed, torn down")
		return
	}

	// success keeps the worker warm but gives its slot back
	if e.active {
		e.active = false
		p.sem.Release(1)
	}
	p.publishStatsLocked()
	pt.resolve(outcome{decision: r.decision})
}

// removeLocked terminates e's worker, drops its bookkeeping and frees its slot
func (p *Pool) removeLocked(agentID string, e *entry) {
	delete(p.entries, agentID)
	e.pending = nil
	e.worker.terminate()
	if e.active {
		e.active = false
		p.sem.Release(1)
	}
	p.publishStatsLocked()
}

// ShutdownAll stops every worker and rejects pending tasks with ErrPoolShutdown.
// It is safe to call more than once.
func (p *Pool) ShutdownAll() {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		entries := p.entries
		p.entries = make(map[string]*entry)

		for _, e := range entries {
			e.worker.stop()
		}
		for agentID, e := range entries {
			e.worker.terminate()
			if e.pending != nil {
				e.pending.resolve(outcome{err: fmt.Errorf("%w: agent %s", ErrPoolShutdown, agentID)})
				e.pending = nil
			}
			if e.active {
				e.active = false
				p.sem.Release(1)
			}
		}
		p.publishStatsLocked()
		p.mu.Unlock()

		p.cancel()
		<-p.collectorDone

		p.logger.Debug().Int("workers", len(entries)).Msg("Worker pool shut down")
	})
}

// Stats returns a snapshot of pool occupancy
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statsLocked()
}

func (p *Pool) statsLocked() Stats {
	s := Stats{Max: p.maxWorkers, Total: len(p.entries)}
	for _, e := range p.entries {
		if e.active {
			s.Active++
		}
		if e.pending != nil {
			s.Pending++
		}
	}
	return s
}

func (p *Pool) publishStatsLocked() {
	s := p.statsLocked()
	observability.SetPoolWorkers(s.Active, s.Total, s.Pending)
}
