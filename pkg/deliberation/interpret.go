package deliberation

import (
	"context"
	"errors"
	"strings"

	"github.com/harun/conclave/internal/observability"
	"github.com/harun/conclave/internal/tracing"
	"github.com/harun/conclave/pkg/agent"
	"github.com/harun/conclave/pkg/sessionapi"
	"github.com/harun/conclave/pkg/workerpool"
)

// interpret applies every decision of a round and returns how many agents
// passed. A failed task counts as a pass.
func (r *Runner) interpret(ctx context.Context, tasks []agent.Task, results []taskResult) int {
	waiting := 0

	for i, task := range tasks {
		res := results[i]
		taskCtx := tracing.ForTask(ctx, task.AgentID, string(task.Role), task.Round, "")
		logger := tracing.LoggerFromContext(taskCtx, r.logger)

		if res.err != nil {
			event := logger.Warn()
			if errors.Is(res.err, workerpool.ErrSuperseded) || errors.Is(res.err, workerpool.ErrPoolShutdown) {
				event = logger.Debug()
			}
			event.Err(res.err).Msg("Task failed, counting agent as waiting")
			waiting++
			continue
		}
		if res.decision == nil {
			logger.Warn().Msg("Task returned no decision, counting agent as waiting")
			waiting++
			continue
		}

		observability.RecordDecision(string(res.decision.Action()))

		switch d := res.decision.(type) {
		case agent.Opinion:
			if err := r.api.PostOpinion(taskCtx, r.cfg.SessionID, task.AgentID, d.Content); err != nil {
				observability.RecordSideEffectError("opinion")
				logger.Warn().Err(err).Msg("Failed to post opinion")
				continue
			}
			logger.Info().Msg("Opinion posted")
		case agent.Message:
			r.postMessage(taskCtx, task, d)
		case agent.Vote:
			r.castVote(taskCtx, task, d)
		case agent.Wait:
			logger.Debug().Str("reason", d.Reason).Msg("Agent waiting")
			waiting++
		case agent.Search:
			logger.Debug().Str("query", d.Query).Msg("Agent searching, counted as waiting")
			waiting++
		default:
			logger.Warn().Str("action", string(res.decision.Action())).Msg("Unrecognized decision, counted as waiting")
			waiting++
		}
	}

	return waiting
}

func (r *Runner) postMessage(ctx context.Context, task agent.Task, msg agent.Message) {
	logger := tracing.LoggerFromContext(ctx, r.logger).With().Str("to_role", string(msg.ToRole)).Logger()

	r.mu.Lock()
	toAgentID, ok := r.agents[msg.ToRole]
	r.mu.Unlock()
	if !ok {
		logger.Warn().Msg("Message addressed to a role outside the roster, skipped")
		return
	}
	if strings.TrimSpace(msg.Content) == "" {
		logger.Debug().Msg("Empty message skipped")
		return
	}

	key := fingerprint(task.AgentID, toAgentID, msg.Content)
	if r.sent.Seen(key) {
		logger.Debug().Msg("Duplicate message skipped")
		return
	}

	if err := r.api.PostMessage(ctx, r.cfg.SessionID, task.AgentID, toAgentID, msg.Content); err != nil {
		observability.RecordSideEffectError("message")
		logger.Warn().Err(err).Msg("Failed to post message")
		return
	}
	r.sent.Mark(key)
	logger.Info().Msg("Message posted")
}

func (r *Runner) castVote(ctx context.Context, task agent.Task, vote agent.Vote) {
	logger := tracing.LoggerFromContext(ctx, r.logger).With().Str("choice", string(vote.Choice)).Logger()

	r.mu.Lock()
	already := r.voted[task.AgentID]
	r.mu.Unlock()
	if already {
		logger.Debug().Msg("Agent already voted, vote skipped")
		return
	}

	err := r.api.PostVote(ctx, r.cfg.SessionID, task.AgentID, vote.Choice, vote.Rationale)
	switch {
	case err == nil:
		logger.Info().Msg("Vote cast")
		observability.RecordVoteAudit(ctx, r.cfg.SessionID, task.AgentID, string(vote.Choice), "success")
	case errors.Is(err, sessionapi.ErrAlreadyVoted):
		logger.Info().Msg("Vote already recorded by the session store")
		observability.RecordVoteAudit(ctx, r.cfg.SessionID, task.AgentID, string(vote.Choice), "reconciled")
	default:
		observability.RecordSideEffectError("vote")
		observability.RecordVoteAudit(ctx, r.cfg.SessionID, task.AgentID, string(vote.Choice), "failure")
		logger.Warn().Err(err).Msg("Failed to post vote")
		return
	}

	r.mu.Lock()
	r.voted[task.AgentID] = true
	r.mu.Unlock()
}
