package runnerstate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAfterIteration_AllCombinations(t *testing.T) {
	tests := []struct {
		allWaiting bool
		forced     bool
		allVoted   bool
		want       Transition
	}{
		{false, false, false, Transition{State: Running, ForcedVoteRound: false}},
		{false, false, true, Transition{State: Running, ForcedVoteRound: false}},
		{false, true, false, Transition{State: Running, ForcedVoteRound: true}},
		{false, true, true, Transition{State: Stopped, ForcedVoteRound: true}},
		{true, false, false, Transition{State: Idle, ForcedVoteRound: false}},
		{true, false, true, Transition{State: Idle, ForcedVoteRound: false}},
		{true, true, false, Transition{State: Idle, ForcedVoteRound: false}},
		{true, true, true, Transition{State: Stopped, ForcedVoteRound: true}},
	}

	for _, tt := range tests {
		name := fmt.Sprintf("waiting=%v/forced=%v/voted=%v", tt.allWaiting, tt.forced, tt.allVoted)
		t.Run(name, func(t *testing.T) {
			waiting, forced, voted := tt.allWaiting, tt.forced, tt.allVoted

			got := AfterIteration(waiting, forced, voted)

			assert.Equal(t, tt.want, got)
			// inputs are values; make sure the caller's copies are untouched
			assert.Equal(t, tt.allWaiting, waiting)
			assert.Equal(t, tt.forced, forced)
			assert.Equal(t, tt.allVoted, voted)
		})
	}
}

func TestAfterIteration_Deterministic(t *testing.T) {
	first := AfterIteration(true, true, false)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, AfterIteration(true, true, false))
	}
}

func TestAfterCommand(t *testing.T) {
	t.Run("vote forces a vote round", func(t *testing.T) {
		assert.Equal(t, Transition{State: Running, ForcedVoteRound: true}, AfterCommand(CommandVote, false))
		assert.Equal(t, Transition{State: Running, ForcedVoteRound: true}, AfterCommand(CommandVote, true))
	})

	t.Run("resume keeps the flag", func(t *testing.T) {
		assert.Equal(t, Transition{State: Running, ForcedVoteRound: false}, AfterCommand(CommandResume, false))
		assert.Equal(t, Transition{State: Running, ForcedVoteRound: true}, AfterCommand(CommandResume, true))
	})

	t.Run("ask keeps the flag", func(t *testing.T) {
		assert.Equal(t, Transition{State: Running, ForcedVoteRound: false}, AfterCommand(CommandAsk, false))
		assert.Equal(t, Transition{State: Running, ForcedVoteRound: true}, AfterCommand(CommandAsk, true))
	})
}

func TestCommandType_Valid(t *testing.T) {
	for _, ct := range CommandTypes {
		assert.True(t, ct.Valid(), string(ct))
	}
	assert.False(t, CommandType("invalid").Valid())
	assert.False(t, CommandType("").Valid())
}

func TestState_IsTerminal(t *testing.T) {
	assert.True(t, Stopped.IsTerminal())
	assert.False(t, Running.IsTerminal())
	assert.False(t, Idle.IsTerminal())
}
