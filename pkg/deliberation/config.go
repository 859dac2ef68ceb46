package deliberation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/conclave/pkg/agent"
	"github.com/harun/conclave/pkg/sessionapi"
	"github.com/harun/conclave/pkg/workerpool"
	"github.com/rs/zerolog"
)

const (
	DefaultMaxRounds   = 10
	DefaultRoundDelay  = 2 * time.Second
	DefaultTaskTimeout = 60 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("runner already started")
	ErrStopped        = errors.New("runner stopped")
)

// Config holds the settings of one session runner
type Config struct {
	SessionID   string
	Roles       []agent.Role
	MaxRounds   int
	RoundDelay  time.Duration
	TaskTimeout time.Duration
	Logger      zerolog.Logger
}

// withDefaults fills zero values
func (c Config) withDefaults() Config {
	if len(c.Roles) == 0 {
		c.Roles = agent.DefaultRoster()
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.TaskTimeout == 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	return c
}

func (c Config) validate() error {
	if c.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if c.MaxRounds < 1 {
		return fmt.Errorf("max rounds must be at least 1, got %d", c.MaxRounds)
	}
	if c.RoundDelay < 0 {
		return fmt.Errorf("round delay must not be negative")
	}
	if c.TaskTimeout < 0 {
		return fmt.Errorf("task timeout must not be negative")
	}

	seen := make(map[agent.Role]bool, len(c.Roles))
	for _, role := range c.Roles {
		if !role.Valid() {
			return fmt.Errorf("%w: %q", agent.ErrUnknownRole, role)
		}
		if seen[role] {
			return fmt.Errorf("duplicate role in roster: %s", role)
		}
		seen[role] = true
	}
	return nil
}

// SessionAPI is the subset of the session store the runner needs
type SessionAPI interface {
	GetSession(ctx context.Context, sessionID string) (*sessionapi.Session, error)
	RegisterAgent(ctx context.Context, sessionID string, role agent.Role) (string, error)
	ListVotes(ctx context.Context, sessionID string) ([]sessionapi.Vote, error)
	PostVote(ctx context.Context, sessionID, agentID string, choice agent.VoteChoice, rationale string) error
	PostMessage(ctx context.Context, sessionID, fromAgentID, toAgentID, content string) error
	PostOpinion(ctx context.Context, sessionID, agentID, content string) error
	CloseSession(ctx context.Context, sessionID string, verdict sessionapi.Verdict, rationale string) error
}

// TaskPool runs one decision task per agent
type TaskPool interface {
	Submit(ctx context.Context, task agent.Task) (agent.Decision, error)
	ShutdownAll()
	Stats() workerpool.Stats
}

// CommandSource delivers raw operator command frames
type CommandSource interface {
	Subscribe(ctx context.Context, sessionID string, handler func([]byte)) error
	Close() error
}

// Dependencies are the collaborators of a Runner. Commands may be nil.
type Dependencies struct {
	API      SessionAPI
	Pool     TaskPool
	Commands CommandSource
}
