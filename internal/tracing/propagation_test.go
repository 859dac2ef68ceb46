package tracing

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestForTask(t *testing.T) {
	roundCtx := NewSessionContext(context.Background(), "s-1")
	roundCtx = WithAgentID(roundCtx, "stale")

	taskCtx := ForTask(roundCtx, "agent-7", "market", 2, "task-xyz")

	if GetTraceID(taskCtx) != GetTraceID(roundCtx) {
		t.Error("trace id should carry over")
	}
	if GetSessionID(taskCtx) != "s-1" {
		t.Error("session id should carry over")
	}
	if GetAgentID(taskCtx) != "agent-7" {
		t.Errorf("expected agent-7, got %q", GetAgentID(taskCtx))
	}
	if GetRole(taskCtx) != "market" {
		t.Errorf("expected market, got %q", GetRole(taskCtx))
	}
	if GetRound(taskCtx) != 2 {
		t.Errorf("expected round 2, got %d", GetRound(taskCtx))
	}
	if GetTaskID(taskCtx) != "task-xyz" {
		t.Errorf("expected task-xyz, got %q", GetTaskID(taskCtx))
	}
}

func TestForTaskGeneratesTraceID(t *testing.T) {
	ctx := ForTask(context.Background(), "a", "debt", 1, "")
	if GetTraceID(ctx) == "" {
		t.Error("trace id not generated")
	}
	if ctx.Value(TaskIDKey) != nil {
		t.Error("empty task id should not be stored")
	}
}

func TestPropagateToLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ForTask(NewSessionContext(context.Background(), "s-9"), "agent-1", "tech", 4, "t-1")
	logger := LoggerFromContext(ctx, base)
	logger.Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{
		`"session_id":"s-9"`,
		`"agent_id":"agent-1"`,
		`"role":"tech"`,
		`"round":4`,
		`"task_id":"t-1"`,
		`"trace_id":"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %s: %s", want, out)
		}
	}
}

func TestPropagateToLoggerEmptyContext(t *testing.T) {
	var buf bytes.Buffer
	logger := PropagateToLogger(context.Background(), zerolog.New(&buf))
	logger.Info().Msg("plain")

	if strings.Contains(buf.String(), "session_id") {
		t.Errorf("unexpected fields: %s", buf.String())
	}
}

func TestMergeContext(t *testing.T) {
	source := ForTask(NewSessionContext(context.Background(), "s-1"), "agent-1", "debt", 1, "t-1")
	target := WithAgentID(context.Background(), "keep-me")

	merged := MergeContext(target, source)

	if GetAgentID(merged) != "keep-me" {
		t.Error("existing agent id should not be overwritten")
	}
	if GetSessionID(merged) != "s-1" {
		t.Error("session id should be merged")
	}
	if GetRound(merged) != 1 {
		t.Error("round should be merged")
	}
	if GetTaskID(merged) != "t-1" {
		t.Error("task id should be merged")
	}
}
