package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownRole is returned when a role name is not part of the roster enumeration
var ErrUnknownRole = errors.New("unknown agent role")

// Role identifies an agent's seat in the deliberation
type Role string

const (
	RoleDebt     Role = "debt"     // Debt and leverage analysis
	RoleTech     Role = "tech"     // Technology and product assessment
	RoleMarket   Role = "market"   // Market sizing and competition
	RoleCapital  Role = "capital"  // Capital structure and returns
	RoleResearch Role = "research" // Open research and fact finding
)

// DefaultRoster returns the full role roster in its canonical order
func DefaultRoster() []Role {
	return []Role{RoleDebt, RoleTech, RoleMarket, RoleCapital, RoleResearch}
}

// Valid reports whether r belongs to the role enumeration
func (r Role) Valid() bool {
	for _, known := range DefaultRoster() {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole converts a free-form string into a Role
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
	return r, nil
}

// ParseRoster converts a list of role names, rejecting unknown and duplicate roles
func ParseRoster(names []string) ([]Role, error) {
	if len(names) == 0 {
		return nil, errors.New("roster must contain at least one role")
	}

	seen := make(map[Role]bool, len(names))
	roster := make([]Role, 0, len(names))
	for _, name := range names {
		r, err := ParseRole(name)
		if err != nil {
			return nil, err
		}
		if seen[r] {
			return nil, fmt.Errorf("duplicate role in roster: %s", r)
		}
		seen[r] = true
		roster = append(roster, r)
	}
	return roster, nil
}

// Task is one decision request for one agent in one round
type Task struct {
	ID           string        `json:"id"`
	SessionID    string        `json:"session_id"`
	AgentID      string        `json:"agent_id"`
	Role         Role          `json:"role"`
	Round        int           `json:"round"`
	Timeout      time.Duration `json:"timeout"`
	Instructions []string      `json:"instructions,omitempty"`
	ForceVote    bool          `json:"force_vote"`
}

// VoteChoice is the verdict an agent votes for
type VoteChoice string

const (
	VoteApprove VoteChoice = "approve"
	VoteReject  VoteChoice = "reject"
	VoteAbstain VoteChoice = "abstain"
)

// Valid reports whether c is a recognized vote choice
func (c VoteChoice) Valid() bool {
	return c == VoteApprove || c == VoteReject || c == VoteAbstain
}

// Action names the kind of a Decision
type Action string

const (
	ActionOpinion Action = "opinion"
	ActionMessage Action = "message"
	ActionVote    Action = "vote"
	ActionWait    Action = "wait"
	ActionSearch  Action = "search"
)

// Decision is the result of one agent task. The set of implementations is
// closed; callers switch on the concrete type.
type Decision interface {
	Action() Action
	isDecision()
}

// Opinion publishes the agent's current position on the session document
type Opinion struct {
	Content string `json:"content"`
}

// Message addresses another role directly
type Message struct {
	ToRole  Role   `json:"to_role"`
	Content string `json:"content"`
}

// Vote casts the agent's final verdict
type Vote struct {
	Choice    VoteChoice `json:"choice"`
	Rationale string     `json:"rationale,omitempty"`
}

// Wait passes on this round
type Wait struct {
	Reason string `json:"reason,omitempty"`
}

// Search asks for outside information before deciding. The runner treats it
// as a pass for the current round.
type Search struct {
	Query string `json:"query"`
}

func (Opinion) Action() Action { return ActionOpinion }
func (Message) Action() Action { return ActionMessage }
func (Vote) Action() Action    { return ActionVote }
func (Wait) Action() Action    { return ActionWait }
func (Search) Action() Action  { return ActionSearch }

func (Opinion) isDecision() {}
func (Message) isDecision() {}
func (Vote) isDecision()    {}
func (Wait) isDecision()    {}
func (Search) isDecision()  {}
