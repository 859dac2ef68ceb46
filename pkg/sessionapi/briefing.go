package sessionapi

import (
	"context"
	"fmt"
	"strings"
)

// briefingMessages is how many recent messages a briefing includes
const briefingMessages = 20

// Briefing renders the session document, the recent message thread and the
// vote tally as plain text for an agent prompt. Messages addressed to or sent
// by agentID are marked.
func (c *Client) Briefing(ctx context.Context, sessionID, agentID string) (string, error) {
	session, err := c.GetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if session.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", session.Title)
	}
	if session.Document != "" {
		b.WriteString("\n### Document\n")
		b.WriteString(strings.TrimSpace(session.Document))
		b.WriteString("\n")
	}

	messages, err := c.ListMessages(ctx, sessionID)
	if err != nil {
		c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Briefing without message thread")
	} else if len(messages) > 0 {
		if len(messages) > briefingMessages {
			messages = messages[len(messages)-briefingMessages:]
		}
		b.WriteString("\n### Recent messages\n")
		for _, m := range messages {
			marker := ""
			switch agentID {
			case m.ToAgentID:
				marker = " (to you)"
			case m.FromAgentID:
				marker = " (from you)"
			}
			fmt.Fprintf(&b, "- %s -> %s%s: %s\n", m.FromAgentID, m.ToAgentID, marker, m.Content)
		}
	}

	votes, err := c.ListVotes(ctx, sessionID)
	if err != nil {
		c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Briefing without vote tally")
	} else {
		counts := TallyVotes(votes)
		fmt.Fprintf(&b, "\nVotes so far: approve=%d, reject=%d, abstain=%d\n", counts.Approve, counts.Reject, counts.Abstain)
	}

	return b.String(), nil
}
