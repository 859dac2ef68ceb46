// Package command turns operator commands into runner state changes.
//
// Parse validates raw payloads from the command channel; Dispatch applies a
// validated Event to the runner's instruction queues. Both are pure.
package command

import (
	"github.com/harun/conclave/pkg/agent"
	"github.com/harun/conclave/pkg/runnerstate"
)

// VoteNowInstruction is queued for every role when a vote command arrives
const VoteNowInstruction = "The operator has called the vote. Cast your final vote now."

// Event is one validated operator command
type Event struct {
	SessionID       string                  `json:"sessionId"`
	CommandType     runnerstate.CommandType `json:"commandType"`
	IssuedBy        string                  `json:"issuedBy"`
	TargetAgentRole *agent.Role             `json:"targetAgentRole,omitempty"`
	Content         *string                 `json:"content,omitempty"`
}

// Instructions maps a role to its queued operator instructions
type Instructions map[agent.Role][]string

// Clone returns a deep copy; the result never shares slices with i
func (i Instructions) Clone() Instructions {
	out := make(Instructions, len(i))
	for role, queue := range i {
		out[role] = append([]string(nil), queue...)
	}
	return out
}

// Outcome is the result of dispatching one Event
type Outcome struct {
	State           runnerstate.State
	ForcedVoteRound bool
	Instructions    Instructions
	Wake            bool
}

// Dispatch applies ev to the current forced-vote flag and instruction queues.
// The input map is never modified; the returned map is always a fresh copy.
func Dispatch(ev Event, forcedVoteRound bool, instructions Instructions, roster []agent.Role) Outcome {
	next := instructions.Clone()

	if ev.CommandType == runnerstate.CommandStart {
		return Outcome{
			State:           runnerstate.Running,
			ForcedVoteRound: forcedVoteRound,
			Instructions:    next,
			Wake:            false,
		}
	}

	transition := runnerstate.AfterCommand(ev.CommandType, forcedVoteRound)

	switch ev.CommandType {
	case runnerstate.CommandAsk:
		if ev.TargetAgentRole != nil && ev.Content != nil {
			role := *ev.TargetAgentRole
			next[role] = append(next[role], *ev.Content)
		}
	case runnerstate.CommandVote:
		for _, role := range roster {
			next[role] = append(next[role], VoteNowInstruction)
		}
	}

	return Outcome{
		State:           transition.State,
		ForcedVoteRound: transition.ForcedVoteRound,
		Instructions:    next,
		Wake:            true,
	}
}
