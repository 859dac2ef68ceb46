// Package runnerstate computes the session runner's next state.
//
// Both transitions are pure: they take plain values and return a new
// Transition. Nothing here performs I/O or keeps state between calls.
package runnerstate

// State is the lifecycle state of a session runner
type State string

const (
	Running State = "running" // Building and dispatching rounds
	Idle    State = "idle"    // Waiting for a command to wake the loop
	Stopped State = "stopped" // Terminal, the loop exits
)

// IsTerminal returns true if the runner cannot leave this state
func (s State) IsTerminal() bool {
	return s == Stopped
}

// CommandType enumerates the externally issued runner commands
type CommandType string

const (
	CommandStart  CommandType = "start"
	CommandAsk    CommandType = "ask"
	CommandResume CommandType = "resume"
	CommandVote   CommandType = "vote"
)

// CommandTypes lists every recognized command type
var CommandTypes = []CommandType{CommandStart, CommandAsk, CommandResume, CommandVote}

// Valid reports whether t is a recognized command type
func (t CommandType) Valid() bool {
	for _, known := range CommandTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Transition is the pair of values carried between loop passes
type Transition struct {
	State           State
	ForcedVoteRound bool
}

// AfterIteration returns the transition once a round has been fully interpreted.
//
// A forced-vote round ends the session once every agent has voted. Otherwise a
// round in which every agent was waiting parks the runner and clears the
// forced flag; any other round keeps it running.
func AfterIteration(allWaiting, forcedVoteRound, allVoted bool) Transition {
	if forcedVoteRound && allVoted {
		return Transition{State: Stopped, ForcedVoteRound: true}
	}
	if allWaiting {
		return Transition{State: Idle, ForcedVoteRound: false}
	}
	return Transition{State: Running, ForcedVoteRound: forcedVoteRound}
}

// AfterCommand returns the transition caused by a non-start command.
// A vote command forces a vote round; everything else only resumes the runner.
func AfterCommand(commandType CommandType, forcedVoteRound bool) Transition {
	if commandType == CommandVote {
		return Transition{State: Running, ForcedVoteRound: true}
	}
	return Transition{State: Running, ForcedVoteRound: forcedVoteRound}
}
