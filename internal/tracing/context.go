package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// SessionIDKey is the context key for the deliberation session
	SessionIDKey ContextKey = "session_id"
	// AgentIDKey is the context key for agent ID
	AgentIDKey ContextKey = "agent_id"
	// RoleKey is the context key for the agent role
	RoleKey ContextKey = "role"
	// RoundKey is the context key for the round number
	RoundKey ContextKey = "round"
	// TaskIDKey is the context key for the pool task id
	TaskIDKey ContextKey = "task_id"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID   string
	SessionID string
	AgentID   string
	Role      string
	Round     int
	TaskID    string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, AgentIDKey, agentID)
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, RoleKey, role)
}

// WithRound adds a round number; rounds start at 1 so zero means unset
func WithRound(ctx context.Context, round int) context.Context {
	return context.WithValue(ctx, RoundKey, round)
}

func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func GetTraceID(ctx context.Context) string   { return stringValue(ctx, TraceIDKey) }
func GetSessionID(ctx context.Context) string { return stringValue(ctx, SessionIDKey) }
func GetAgentID(ctx context.Context) string   { return stringValue(ctx, AgentIDKey) }
func GetRole(ctx context.Context) string      { return stringValue(ctx, RoleKey) }
func GetTaskID(ctx context.Context) string    { return stringValue(ctx, TaskIDKey) }

// GetRound retrieves the round number from the context, or 0
func GetRound(ctx context.Context) int {
	if round, ok := ctx.Value(RoundKey).(int); ok {
		return round
	}
	return 0
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:   GetTraceID(ctx),
		SessionID: GetSessionID(ctx),
		AgentID:   GetAgentID(ctx),
		Role:      GetRole(ctx),
		Round:     GetRound(ctx),
		TaskID:    GetTaskID(ctx),
	}
}

// NewContext copies the non-empty fields of tc into ctx
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.SessionID != "" {
		ctx = WithSessionID(ctx, tc.SessionID)
	}
	if tc.AgentID != "" {
		ctx = WithAgentID(ctx, tc.AgentID)
	}
	if tc.Role != "" {
		ctx = WithRole(ctx, tc.Role)
	}
	if tc.Round > 0 {
		ctx = WithRound(ctx, tc.Round)
	}
	if tc.TaskID != "" {
		ctx = WithTaskID(ctx, tc.TaskID)
	}
	return ctx
}

// NewSessionContext starts a fresh trace for one runner session
func NewSessionContext(ctx context.Context, sessionID string) context.Context {
	ctx = WithTraceID(ctx, NewTraceID())
	return WithSessionID(ctx, sessionID)
}
