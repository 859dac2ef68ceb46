package observability

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AuditEvent is one entry in the deliberation audit trail
type AuditEvent struct {
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Session   string                 `json:"session_id"`
	Actor     string                 `json:"actor,omitempty"` // operator or agent id
	Action    string                 `json:"action"`          // e.g. "command:vote", "close"
	Status    string                 `json:"status"`          // "success", "failure", "skipped"
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
}

// AuditLogger writes audit events as JSON lines
type AuditLogger struct {
	logger zerolog.Logger
	mu     sync.Mutex
	file   *os.File
}

var (
	auditMu   sync.RWMutex
	auditInst = newAuditLogger(io.Discard, nil)
)

func newAuditLogger(w io.Writer, file *os.File) *AuditLogger {
	if w == nil {
		w = io.Discard
	}
	return &AuditLogger{
		logger: zerolog.New(w).With().Timestamp().Logger(),
		file:   file,
	}
}

// GetAuditLogger returns the global audit logger; it discards events until
// InitAuditLogger or SetAuditWriter is called.
func GetAuditLogger() *AuditLogger {
	auditMu.RLock()
	defer auditMu.RUnlock()
	return auditInst
}

// InitAuditLogger points the global audit logger at an append-only file
func InitAuditLogger(path string) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	auditMu.Lock()
	prev := auditInst
	auditInst = newAuditLogger(file, file)
	auditMu.Unlock()

	_ = prev.Close()
	return nil
}

// SetAuditWriter replaces the global audit sink
func SetAuditWriter(w io.Writer) {
	auditMu.Lock()
	prev := auditInst
	auditInst = newAuditLogger(w, nil)
	auditMu.Unlock()

	_ = prev.Close()
}

// Record emits an audit event and mirrors it onto the active span, if any
func (a *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		event.TraceID = span.SpanContext().TraceID().String()

		span.AddEvent(event.Action, trace.WithAttributes(
			attribute.String("audit.type", event.Type),
			attribute.String("audit.status", event.Status),
			attribute.String("audit.actor", event.Actor),
			attribute.String("audit.session", event.Session),
		))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry := a.logger.Log().
		Str("type", event.Type).
		Str("session_id", event.Session).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("status", event.Status).
		Str("trace_id", event.TraceID)

	if event.Metadata != nil {
		entry.Interface("metadata", event.Metadata)
	}

	entry.Msg("")
}

// Close closes the audit logger's file handle
func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		return err
	}
	return nil
}

func RecordCommandAudit(ctx context.Context, session, issuedBy, commandType string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "command",
		Session:  session,
		Actor:    issuedBy,
		Action:   "command:" + commandType,
		Status:   "success",
		Metadata: metadata,
	})
}

func RecordVoteAudit(ctx context.Context, session, agentID, choice, status string) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "vote",
		Session:  session,
		Actor:    agentID,
		Action:   "vote:" + choice,
		Status:   status,
	})
}

func RecordCloseAudit(ctx context.Context, session, verdict, status string, metadata map[string]interface{}) {
	GetAuditLogger().Record(ctx, AuditEvent{
		Type:     "session",
		Session:  session,
		Action:   "close:" + verdict,
		Status:   status,
		Metadata: metadata,
	})
}
