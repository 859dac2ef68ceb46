package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// ForTask derives the context a single agent task runs under. The trace and
// session carry over from the round; agent, role, round and task are replaced.
func ForTask(ctx context.Context, agentID, role string, round int, taskID string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithAgentID(ctx, agentID)
	ctx = WithRole(ctx, role)
	ctx = WithRound(ctx, round)
	if taskID != "" {
		ctx = WithTaskID(ctx, taskID)
	}
	return ctx
}

// PropagateToLogger adds tracing context to a zerolog logger
func PropagateToLogger(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	tc := FromContext(ctx)
	lc := logger.With()

	if tc.TraceID != "" {
		lc = lc.Str("trace_id", tc.TraceID)
	}
	if tc.SessionID != "" {
		lc = lc.Str("session_id", tc.SessionID)
	}
	if tc.AgentID != "" {
		lc = lc.Str("agent_id", tc.AgentID)
	}
	if tc.Role != "" {
		lc = lc.Str("role", tc.Role)
	}
	if tc.Round > 0 {
		lc = lc.Int("round", tc.Round)
	}
	if tc.TaskID != "" {
		lc = lc.Str("task_id", tc.TaskID)
	}

	return lc.Logger()
}

// LoggerFromContext creates a logger with tracing context from the given context
func LoggerFromContext(ctx context.Context, baseLogger zerolog.Logger) zerolog.Logger {
	return PropagateToLogger(ctx, baseLogger)
}

// MergeContext copies tracing fields from source that target lacks
func MergeContext(target, source context.Context) context.Context {
	tc := FromContext(source)

	if tc.TraceID != "" && GetTraceID(target) == "" {
		target = WithTraceID(target, tc.TraceID)
	}
	if tc.SessionID != "" && GetSessionID(target) == "" {
		target = WithSessionID(target, tc.SessionID)
	}
	if tc.AgentID != "" && GetAgentID(target) == "" {
		target = WithAgentID(target, tc.AgentID)
	}
	if tc.Role != "" && GetRole(target) == "" {
		target = WithRole(target, tc.Role)
	}
	if tc.Round > 0 && GetRound(target) == 0 {
		target = WithRound(target, tc.Round)
	}
	if tc.TaskID != "" && GetTaskID(target) == "" {
		target = WithTaskID(target, tc.TaskID)
	}

	return target
}
