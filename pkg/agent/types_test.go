package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Research ")
	require.NoError(t, err)
	assert.Equal(t, RoleResearch, r)

	_, err = ParseRole("legal")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestParseRoster(t *testing.T) {
	roster, err := ParseRoster([]string{"debt", "tech", "market"})
	require.NoError(t, err)
	assert.Equal(t, []Role{RoleDebt, RoleTech, RoleMarket}, roster)

	_, err = ParseRoster(nil)
	assert.Error(t, err)

	_, err = ParseRoster([]string{"debt", "debt"})
	assert.Error(t, err)

	_, err = ParseRoster([]string{"debt", "legal"})
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestDecisionActions(t *testing.T) {
	assert.Equal(t, ActionOpinion, Opinion{}.Action())
	assert.Equal(t, ActionMessage, Message{}.Action())
	assert.Equal(t, ActionVote, Vote{}.Action())
	assert.Equal(t, ActionWait, Wait{}.Action())
	assert.Equal(t, ActionSearch, Search{}.Action())
}

func TestVoteChoice_Valid(t *testing.T) {
	assert.True(t, VoteApprove.Valid())
	assert.True(t, VoteReject.Valid())
	assert.True(t, VoteAbstain.Valid())
	assert.False(t, VoteChoice("maybe").Valid())
}
