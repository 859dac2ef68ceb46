// Package deliberation drives one session's agents through rounds of
// deliberation until a voting quorum closes the session.
//
// A Runner registers one agent per role, then loops: build a task for every
// agent that has not voted, run the tasks on the pool, apply each decision
// to the session, and check the authoritative vote tally for quorum. When the
// round budget runs out or every agent passes, the runner goes idle until an
// operator command wakes it.
package deliberation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/conclave/internal/observability"
	"github.com/harun/conclave/internal/tracing"
	"github.com/harun/conclave/pkg/agent"
	"github.com/harun/conclave/pkg/command"
	"github.com/harun/conclave/pkg/runnerstate"
	"github.com/harun/conclave/pkg/workerpool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Snapshot is a point-in-time view of a runner
type Snapshot struct {
	SessionID           string                `json:"session_id"`
	State               runnerstate.State     `json:"state"`
	Round               int                   `json:"round"`
	RoundBudget         int                   `json:"round_budget"`
	ForcedVoteRound     bool                  `json:"forced_vote_round"`
	Agents              map[agent.Role]string `json:"agents"`
	Voted               int                   `json:"voted"`
	PendingInstructions int                   `json:"pending_instructions"`
}

// Runner orchestrates the agents of a single session
type Runner struct {
	cfg      Config
	api      SessionAPI
	pool     TaskPool
	commands CommandSource
	logger   zerolog.Logger
	roster   map[agent.Role]bool

	// guarded by mu; commands arrive on the channel's goroutine
	mu           sync.Mutex
	state        runnerstate.State
	forced       bool
	instructions command.Instructions
	agents       map[agent.Role]string
	voted        map[string]bool
	round        int
	roundBudget  int
	started      bool
	cancel       context.CancelFunc

	// a vote command arrived after the current round's tasks were built
	voteCalled bool
	// the loop is waiting for a wake
	parked bool

	// loop goroutine only
	sent *fingerprintSet

	wake     chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New validates cfg and creates a runner. Nothing talks to the network until Start.
func New(cfg Config, deps Dependencies) (*Runner, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid runner config: %w", err)
	}
	if deps.API == nil {
		return nil, fmt.Errorf("session api is required")
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("task pool is required")
	}

	roster := make(map[agent.Role]bool, len(cfg.Roles))
	for _, role := range cfg.Roles {
		roster[role] = true
	}

	return &Runner{
		cfg:          cfg,
		api:          deps.API,
		pool:         deps.Pool,
		commands:     deps.Commands,
		logger:       cfg.Logger.With().Str("component", "deliberation").Str("session_id", cfg.SessionID).Logger(),
		roster:       roster,
		state:        runnerstate.Idle,
		instructions: command.Instructions{},
		agents:       make(map[agent.Role]string, len(cfg.Roles)),
		voted:        make(map[string]bool),
		roundBudget:  cfg.MaxRounds,
		sent:         newFingerprintSet(),
		wake:         make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}, nil
}

// Start fetches the session, registers every role and runs the loop until the
// session closes, Stop is called or ctx is done. Failing to fetch the session
// or to register an agent aborts before the loop starts. The runner is torn
// down when Start returns.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state == runnerstate.Stopped {
		r.mu.Unlock()
		return ErrStopped
	}
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	ctx, cancel := context.WithCancel(tracing.NewSessionContext(ctx, r.cfg.SessionID))
	r.cancel = cancel
	r.mu.Unlock()

	defer r.Stop()

	session, err := r.api.GetSession(ctx, r.cfg.SessionID)
	if err != nil {
		return fmt.Errorf("fetch session %s: %w", r.cfg.SessionID, err)
	}

	agents := make(map[agent.Role]string, len(r.cfg.Roles))
	for _, role := range r.cfg.Roles {
		id, err := r.api.RegisterAgent(ctx, r.cfg.SessionID, role)
		if err != nil {
			return fmt.Errorf("register %s agent: %w", role, err)
		}
		agents[role] = id
		r.logger.Info().Str("role", string(role)).Str("agent_id", id).Msg("Agent registered")
	}

	r.mu.Lock()
	r.agents = agents
	if r.state == runnerstate.Stopped {
		r.mu.Unlock()
		return nil
	}
	r.state = runnerstate.Running
	r.mu.Unlock()

	if r.commands != nil {
		if err := r.commands.Subscribe(ctx, r.cfg.SessionID, r.HandleCommand); err != nil {
			r.logger.Warn().Err(err).Msg("Command channel unavailable, continuing without it")
		}
	}

	r.logger.Info().
		Str("title", session.Title).
		Int("agents", len(agents)).
		Int("max_rounds", r.cfg.MaxRounds).
		Msg("Deliberation started")

	r.loop(ctx)
	return nil
}

// Stop halts the loop, terminates the pool's workers and closes the command
// channel. It is idempotent.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.state = runnerstate.Stopped
		cancel := r.cancel
		r.mu.Unlock()

		close(r.stopCh)
		if cancel != nil {
			cancel()
		}

		r.pool.ShutdownAll()
		if r.commands != nil {
			if err := r.commands.Close(); err != nil {
				r.logger.Debug().Err(err).Msg("Command channel close failed")
			}
		}
		r.logger.Info().Msg("Runner stopped")
	})
}

// Stats reports the pool occupancy
func (r *Runner) Stats() workerpool.Stats {
	return r.pool.Stats()
}

// Snapshot returns the runner's current state
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents := make(map[agent.Role]string, len(r.agents))
	for role, id := range r.agents {
		agents[role] = id
	}
	pending := 0
	for _, queue := range r.instructions {
		pending += len(queue)
	}

	return Snapshot{
		SessionID:           r.cfg.SessionID,
		State:               r.state,
		Round:               r.round,
		RoundBudget:         r.roundBudget,
		ForcedVoteRound:     r.forced,
		Agents:              agents,
		Voted:               len(r.voted),
		PendingInstructions: pending,
	}
}

// HandleCommand applies one raw command frame. Malformed frames and frames for
// other sessions are ignored.
func (r *Runner) HandleCommand(payload []byte) {
	ev, ok := command.Parse(payload)
	if !ok {
		observability.RecordCommandDropped()
		r.logger.Debug().Int("bytes", len(payload)).Msg("Ignoring malformed command frame")
		return
	}
	if ev.SessionID != r.cfg.SessionID {
		observability.RecordCommandDropped()
		r.logger.Debug().Str("command_session", ev.SessionID).Msg("Ignoring command for another session")
		return
	}
	if ev.TargetAgentRole != nil && !r.roster[*ev.TargetAgentRole] {
		r.logger.Warn().Str("target_role", string(*ev.TargetAgentRole)).Msg("Command targets a role outside the roster, instruction dropped")
		ev.TargetAgentRole = nil
	}

	r.mu.Lock()
	if r.state == runnerstate.Stopped {
		r.mu.Unlock()
		r.logger.Debug().Str("command", string(ev.CommandType)).Msg("Ignoring command, runner stopped")
		return
	}
	out := command.Dispatch(ev, r.forced, r.instructions, r.cfg.Roles)
	r.instructions = out.Instructions
	r.forced = out.ForcedVoteRound
	if ev.CommandType == runnerstate.CommandVote {
		r.voteCalled = true
	}
	// start does not wake a parked loop, so it stays idle
	if out.Wake || !r.parked {
		r.state = out.State
	}
	r.mu.Unlock()

	observability.RecordCommand(string(ev.CommandType))
	metadata := map[string]interface{}{"wake": out.Wake, "forced_vote_round": out.ForcedVoteRound}
	if ev.TargetAgentRole != nil {
		metadata["target_role"] = string(*ev.TargetAgentRole)
	}
	observability.RecordCommandAudit(context.Background(), ev.SessionID, ev.IssuedBy, string(ev.CommandType), metadata)

	r.logger.Info().
		Str("command", string(ev.CommandType)).
		Str("issued_by", ev.IssuedBy).
		Bool("forced_vote_round", out.ForcedVoteRound).
		Bool("wake", out.Wake).
		Msg("Command applied")

	if out.Wake {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

func (r *Runner) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		r.mu.Lock()
		state := r.state
		budgetSpent := state == runnerstate.Running && r.round >= r.roundBudget
		if budgetSpent {
			r.state = runnerstate.Idle
			state = runnerstate.Idle
		}
		round := r.round
		r.parked = state == runnerstate.Idle
		r.mu.Unlock()

		switch state {
		case runnerstate.Stopped:
			return
		case runnerstate.Idle:
			if budgetSpent {
				r.logger.Info().Int("round", round).Msg("Round budget spent, waiting for a command")
			}
			if !r.waitForWake(ctx) {
				return
			}
			continue
		}

		if r.runRound(ctx) {
			return
		}

		if !r.sleep(ctx, r.cfg.RoundDelay) {
			return
		}
	}
}

// waitForWake blocks until a command wakes the runner. It returns false when
// the runner is stopping.
func (r *Runner) waitForWake(ctx context.Context) bool {
	select {
	case <-r.wake:
	case <-r.stopCh:
		return false
	case <-ctx.Done():
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.parked = false
	if r.state == runnerstate.Stopped {
		return false
	}
	if r.round >= r.roundBudget {
		r.roundBudget = r.round + r.cfg.MaxRounds
		r.logger.Info().Int("round_budget", r.roundBudget).Msg("Round budget extended")
	}
	r.state = runnerstate.Running
	return true
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-r.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// runRound executes one pass and reports whether the runner stopped
func (r *Runner) runRound(ctx context.Context) bool {
	r.mu.Lock()
	// a wake queued before this round is served by it
	select {
	case <-r.wake:
	default:
	}
	r.round++
	round := r.round
	forced := r.forced
	r.voteCalled = false
	tasks := r.buildTasksLocked(round)
	r.mu.Unlock()

	ctx = tracing.WithRound(ctx, round)
	ctx, span := tracing.StartSpan(ctx, "deliberation.round", attribute.Int("tasks", len(tasks)))
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, r.logger)
	logger.Info().Int("tasks", len(tasks)).Msg("Round started")
	observability.RecordRound(r.cfg.SessionID)

	results := r.dispatch(ctx, tasks)
	waiting := r.interpret(ctx, tasks, results)

	if r.closeOnQuorum(ctx, round) {
		r.setStopped()
		return true
	}

	r.mu.Lock()
	allVoted := len(r.voted) == len(r.agents)
	next := runnerstate.AfterIteration(waiting == len(tasks), forced, allVoted)
	// a vote called during this round applies to the next one
	r.forced = next.ForcedVoteRound || r.voteCalled
	if r.state != runnerstate.Stopped {
		r.state = next.State
	}
	r.parked = r.state == runnerstate.Idle
	stopped := r.state == runnerstate.Stopped
	r.mu.Unlock()

	logger.Info().
		Int("waiting", waiting).
		Bool("all_voted", allVoted).
		Str("next_state", string(next.State)).
		Msg("Round finished")

	if next.State == runnerstate.Stopped {
		r.closeSession(ctx, round)
	}
	return stopped
}

// buildTasksLocked creates a task for every agent that has not voted and
// drains that role's instruction queue into it
func (r *Runner) buildTasksLocked(round int) []agent.Task {
	tasks := make([]agent.Task, 0, len(r.cfg.Roles))
	for _, role := range r.cfg.Roles {
		agentID := r.agents[role]
		if r.voted[agentID] {
			continue
		}

		instructions := r.instructions[role]
		delete(r.instructions, role)

		tasks = append(tasks, agent.Task{
			SessionID:    r.cfg.SessionID,
			AgentID:      agentID,
			Role:         role,
			Round:        round,
			Timeout:      r.cfg.TaskTimeout,
			Instructions: instructions,
			ForceVote:    r.forced,
		})
	}
	return tasks
}

type taskResult struct {
	decision agent.Decision
	err      error
}

// dispatch runs all tasks concurrently and waits for every one to settle
func (r *Runner) dispatch(ctx context.Context, tasks []agent.Task) []taskResult {
	results := make([]taskResult, len(tasks))

	var g errgroup.Group
	for i, task := range tasks {
		g.Go(func() error {
			d, err := r.pool.Submit(ctx, task)
			results[i] = taskResult{decision: d, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Runner) setStopped() {
	r.mu.Lock()
	r.state = runnerstate.Stopped
	r.mu.Unlock()
}
