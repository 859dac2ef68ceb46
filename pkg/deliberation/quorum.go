package deliberation

import (
	"context"
	"fmt"

	"github.com/harun/conclave/internal/observability"
	"github.com/harun/conclave/pkg/sessionapi"
)

// quorumSize is the number of matching votes that decides a session of n agents
func quorumSize(n int) int {
	return n/2 + 1
}

// quorumReached reports whether counts decide a session of n agents
func quorumReached(counts sessionapi.VoteCounts, n int) bool {
	q := quorumSize(n)
	return counts.Approve >= q || counts.Reject >= q || counts.Total() >= n
}

func verdictFor(counts sessionapi.VoteCounts) sessionapi.Verdict {
	if counts.Approve > counts.Reject {
		return sessionapi.VerdictApprove
	}
	return sessionapi.VerdictReject
}

func rationaleFor(counts sessionapi.VoteCounts, n, round int) string {
	return fmt.Sprintf("Closed after round %d with %d of %d votes (quorum %d): approve=%d, reject=%d, abstain=%d",
		round, counts.Total(), n, quorumSize(n), counts.Approve, counts.Reject, counts.Abstain)
}

// closeOnQuorum fetches the authoritative tally and closes the session when it
// is decided. A failed fetch skips the check for this round.
func (r *Runner) closeOnQuorum(ctx context.Context, round int) bool {
	votes, err := r.api.ListVotes(ctx, r.cfg.SessionID)
	if err != nil {
		r.logger.Warn().Err(err).Int("round", round).Msg("Failed to fetch votes, quorum not evaluated")
		return false
	}

	counts := sessionapi.TallyVotes(votes)
	n := len(r.cfg.Roles)
	observability.SetVotesCast(r.cfg.SessionID, counts.Total())

	if !quorumReached(counts, n) {
		return false
	}

	r.logger.Info().
		Int("approve", counts.Approve).
		Int("reject", counts.Reject).
		Int("abstain", counts.Abstain).
		Int("quorum", quorumSize(n)).
		Msg("Quorum reached")
	r.closeWithCounts(ctx, counts, round)
	return true
}

// closeSession closes the session from the current tally. With no votes cast
// the session is left open.
func (r *Runner) closeSession(ctx context.Context, round int) {
	votes, err := r.api.ListVotes(ctx, r.cfg.SessionID)
	if err != nil {
		observability.RecordSideEffectError("close")
		r.logger.Warn().Err(err).Msg("Failed to fetch votes, session left open")
		return
	}
	r.closeWithCounts(ctx, sessionapi.TallyVotes(votes), round)
}

func (r *Runner) closeWithCounts(ctx context.Context, counts sessionapi.VoteCounts, round int) {
	n := len(r.cfg.Roles)
	verdict := verdictFor(counts)

	if counts.Total() == 0 {
		r.logger.Warn().Msg("No votes cast, session left open")
		observability.RecordCloseAudit(ctx, r.cfg.SessionID, string(verdict), "skipped", nil)
		return
	}

	rationale := rationaleFor(counts, n, round)
	metadata := map[string]interface{}{
		"approve": counts.Approve,
		"reject":  counts.Reject,
		"abstain": counts.Abstain,
		"round":   round,
	}

	if err := r.api.CloseSession(ctx, r.cfg.SessionID, verdict, rationale); err != nil {
		observability.RecordSideEffectError("close")
		observability.RecordCloseAudit(ctx, r.cfg.SessionID, string(verdict), "failure", metadata)
		r.logger.Warn().Err(err).Str("verdict", string(verdict)).Msg("Failed to close session")
		return
	}

	observability.RecordSessionClosed(string(verdict))
	observability.RecordCloseAudit(ctx, r.cfg.SessionID, string(verdict), "success", metadata)
	r.logger.Info().Str("verdict", string(verdict)).Str("rationale", rationale).Msg("Session closed")
}
