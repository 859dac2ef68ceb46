package sessionapi

import (
	"time"

	"github.com/harun/conclave/pkg/agent"
)

// Session is the deliberation session as stored by the API
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Document  string    `json:"document"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// AgentRegistration is the id the API issued for a role
type AgentRegistration struct {
	ID   string     `json:"id"`
	Role agent.Role `json:"role"`
}

type Vote struct {
	ID        string           `json:"id,omitempty"`
	AgentID   string           `json:"agentId"`
	Choice    agent.VoteChoice `json:"choice"`
	Rationale string           `json:"rationale,omitempty"`
	CreatedAt time.Time        `json:"createdAt,omitempty"`
}

type Message struct {
	ID          string    `json:"id,omitempty"`
	FromAgentID string    `json:"fromAgentId"`
	ToAgentID   string    `json:"toAgentId"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
}

type Opinion struct {
	AgentID string `json:"agentId"`
	Content string `json:"content"`
}

// Verdict is the outcome a session is closed with
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

type closeRequest struct {
	Verdict   Verdict `json:"verdict"`
	Rationale string  `json:"rationale"`
}

type registerRequest struct {
	Role agent.Role `json:"role"`
}

// VoteCounts tallies votes by choice
type VoteCounts struct {
	Approve int `json:"approve"`
	Reject  int `json:"reject"`
	Abstain int `json:"abstain"`
}

// Total is the number of votes counted
func (c VoteCounts) Total() int {
	return c.Approve + c.Reject + c.Abstain
}

// TallyVotes counts votes by choice. Unknown choices count as abstentions.
func TallyVotes(votes []Vote) VoteCounts {
	var c VoteCounts
	for _, v := range votes {
		switch v.Choice {
		case agent.VoteApprove:
			c.Approve++
		case agent.VoteReject:
			c.Reject++
		default:
			c.Abstain++
		}
	}
	return c
}
