// Package sessionapi is the HTTP client for the session store that holds
// sessions, agent registrations, votes, messages and opinions.
package sessionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/harun/conclave/pkg/agent"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	opGetSession    = "get session"
	opRegisterAgent = "register agent"
	opListVotes     = "list votes"
	opPostVote      = "post vote"
	opListMessages  = "list messages"
	opPostMessage   = "post message"
	opPostOpinion   = "post opinion"
	opCloseSession  = "close session"

	// DefaultTimeout bounds each request when the caller sets none
	DefaultTimeout = 15 * time.Second

	maxErrorBody = 4 << 10
)

// Client talks to the session API over REST/JSON
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client rooted at baseURL (e.g. http://localhost:3000)
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}

	c := &Client{
		baseURL:    u.String(),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "sessionapi").Logger()
	return c, nil
}

func (c *Client) sessionPath(sessionID string, parts ...string) string {
	p := "/api/sessions/" + url.PathEscape(sessionID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// GetSession fetches a session. A missing session yields an error matching ErrNotFound.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := c.do(ctx, opGetSession, http.MethodGet, c.sessionPath(sessionID), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// RegisterAgent registers role in the session and returns the issued agent id
func (c *Client) RegisterAgent(ctx context.Context, sessionID string, role agent.Role) (string, error) {
	var reg AgentRegistration
	if err := c.do(ctx, opRegisterAgent, http.MethodPost, c.sessionPath(sessionID, "agents"), registerRequest{Role: role}, &reg); err != nil {
		return "", err
	}
	if reg.ID == "" {
		return "", fmt.Errorf("%s: empty agent id for role %s", opRegisterAgent, role)
	}
	return reg.ID, nil
}

func (c *Client) ListVotes(ctx context.Context, sessionID string) ([]Vote, error) {
	var votes []Vote
	if err := c.do(ctx, opListVotes, http.MethodGet, c.sessionPath(sessionID, "votes"), nil, &votes); err != nil {
		return nil, err
	}
	return votes, nil
}

// PostVote records a vote. A second vote by the same agent yields an error
// matching ErrAlreadyVoted.
func (c *Client) PostVote(ctx context.Context, sessionID, agentID string, choice agent.VoteChoice, rationale string) error {
	body := struct {
		AgentID   string           `json:"agentId"`
		Choice    agent.VoteChoice `json:"choice"`
		Rationale string           `json:"rationale,omitempty"`
	}{agentID, choice, rationale}
	return c.do(ctx, opPostVote, http.MethodPost, c.sessionPath(sessionID, "votes"), body, nil)
}

func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var messages []Message
	if err := c.do(ctx, opListMessages, http.MethodGet, c.sessionPath(sessionID, "messages"), nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *Client) PostMessage(ctx context.Context, sessionID, fromAgentID, toAgentID, content string) error {
	body := struct {
		FromAgentID string `json:"fromAgentId"`
		ToAgentID   string `json:"toAgentId"`
		Content     string `json:"content"`
	}{fromAgentID, toAgentID, content}
	return c.do(ctx, opPostMessage, http.MethodPost, c.sessionPath(sessionID, "messages"), body, nil)
}

func (c *Client) PostOpinion(ctx context.Context, sessionID, agentID, content string) error {
	return c.do(ctx, opPostOpinion, http.MethodPost, c.sessionPath(sessionID, "opinions"), Opinion{AgentID: agentID, Content: content}, nil)
}

func (c *Client) CloseSession(ctx context.Context, sessionID string, verdict Verdict, rationale string) error {
	return c.do(ctx, opCloseSession, http.MethodPost, c.sessionPath(sessionID, "close"), closeRequest{Verdict: verdict, Rationale: rationale}, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Session API call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// errorMessage prefers a JSON {"error": "..."} or {"message": "..."} body
func errorMessage(raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(raw))
}
