package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidDecision is returned when a provider reply cannot be turned into a Decision
var ErrInvalidDecision = errors.New("invalid decision")

// Decider produces one Decision for one Task
type Decider interface {
	Decide(ctx context.Context, task Task) (Decision, error)
}

// DeciderFunc adapts a function to the Decider interface
type DeciderFunc func(ctx context.Context, task Task) (Decision, error)

// Decide calls f(ctx, task)
func (f DeciderFunc) Decide(ctx context.Context, task Task) (Decision, error) {
	return f(ctx, task)
}

// ContextSource supplies the session material an agent reasons about
type ContextSource interface {
	Briefing(ctx context.Context, sessionID, agentID string) (string, error)
}

// LLMDeciderConfig holds LLMDecider configuration
type LLMDeciderConfig struct {
	Provider    LLMProvider
	Model       string
	Temperature float64
	MaxTokens   int
	Context     ContextSource // optional
	Logger      zerolog.Logger
}

// LLMDecider asks a language model for a decision and validates the reply
type LLMDecider struct {
	provider    LLMProvider
	model       string
	temperature float64
	maxTokens   int
	context     ContextSource
	schema      *gojsonschema.Schema
	logger      zerolog.Logger
}

// NewLLMDecider creates a new LLM-backed decider
func NewLLMDecider(cfg LLMDeciderConfig) (*LLMDecider, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(DecisionSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile decision schema: %w", err)
	}

	return &LLMDecider{
		provider:    cfg.Provider,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		context:     cfg.Context,
		schema:      schema,
		logger:      cfg.Logger.With().Str("component", "decider").Str("provider", cfg.Provider.Provider()).Logger(),
	}, nil
}

// Decide implements Decider
func (d *LLMDecider) Decide(ctx context.Context, task Task) (Decision, error) {
	briefing := ""
	if d.context != nil {
		b, err := d.context.Briefing(ctx, task.SessionID, task.AgentID)
		if err != nil {
			// Deciding without context is still useful
			d.logger.Warn().Err(err).Str("agent_id", task.AgentID).Msg("Failed to load session briefing")
		} else {
			briefing = b
		}
	}

	request := LLMRequest{
		Model:        d.model,
		SystemPrompt: SystemPrompt(task.Role),
		Messages:     []ChatMessage{{Role: "user", Content: TaskPrompt(task, briefing)}},
		Temperature:  d.temperature,
		MaxTokens:    d.maxTokens,
	}

	start := time.Now()
	response, err := d.provider.Call(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("provider call failed: %w", err)
	}

	d.logger.Debug().
		Str("agent_id", task.AgentID).
		Int("round", task.Round).
		Dur("duration", time.Since(start)).
		Msg("Provider replied")

	return d.parse(response.Content)
}

// decisionPayload is the JSON object a model is asked to reply with
type decisionPayload struct {
	Action     Action     `json:"action"`
	Content    string     `json:"content,omitempty"`
	TargetRole string     `json:"targetRole,omitempty"`
	Vote       VoteChoice `json:"vote,omitempty"`
	Rationale  string     `json:"rationale,omitempty"`
	Query      string     `json:"query,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

func (d *LLMDecider) parse(reply string) (Decision, error) {
	raw, err := extractJSONObject(reply)
	if err != nil {
		return nil, err
	}

	result, err := d.schema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidDecision, strings.Join(msgs, "; "))
	}

	var payload decisionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
	}

	return payload.toDecision()
}

func (p decisionPayload) toDecision() (Decision, error) {
	switch p.Action {
	case ActionOpinion:
		return Opinion{Content: p.Content}, nil
	case ActionMessage:
		role, err := ParseRole(p.TargetRole)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDecision, err)
		}
		return Message{ToRole: role, Content: p.Content}, nil
	case ActionVote:
		if !p.Vote.Valid() {
			return nil, fmt.Errorf("%w: vote choice %q", ErrInvalidDecision, p.Vote)
		}
		return Vote{Choice: p.Vote, Rationale: p.Rationale}, nil
	case ActionWait:
		return Wait{Reason: p.Reason}, nil
	case ActionSearch:
		return Search{Query: p.Query}, nil
	default:
		return nil, fmt.Errorf("%w: action %q", ErrInvalidDecision, p.Action)
	}
}

// extractJSONObject returns the outermost {...} span of a model reply,
// which may be wrapped in prose or a code fence.
func extractJSONObject(reply string) (string, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("%w: no JSON object in reply", ErrInvalidDecision)
	}
	return reply[start : end+1], nil
}

// DecisionSchema is the JSON Schema every model reply must satisfy
const DecisionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["action"],
  "properties": {
    "action": {"type": "string", "enum": ["opinion", "message", "vote", "wait", "search"]},
    "content": {"type": "string"},
    "targetRole": {"type": "string"},
    "vote": {"type": "string", "enum": ["approve", "reject", "abstain"]},
    "rationale": {"type": "string"},
    "query": {"type": "string"},
    "reason": {"type": "string"}
  },
  "allOf": [
    {"if": {"properties": {"action": {"const": "opinion"}}}, "then": {"required": ["content"]}},
    {"if": {"properties": {"action": {"const": "message"}}}, "then": {"required": ["targetRole", "content"]}},
    {"if": {"properties": {"action": {"const": "vote"}}}, "then": {"required": ["vote"]}},
    {"if": {"properties": {"action": {"const": "search"}}}, "then": {"required": ["query"]}}
  ]
}`
