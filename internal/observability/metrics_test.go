package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandler_ExposesConclaveSeries(t *testing.T) {
	SetPoolWorkers(2, 3, 1)
	RecordTaskOutcome("tech", "success", 150*time.Millisecond)
	RecordRound("s-1")
	RecordDecision("vote")
	RecordCommand("ask")
	RecordCommandDropped()
	SetVotesCast("s-1", 2)
	RecordSessionClosed("approve")
	RecordSideEffectError("opinion")

	srv := httptest.NewServer(MetricsHandler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `conclave_pool_workers{state="active"} 2`)
	assert.Contains(t, text, `conclave_pool_workers{state="pending"} 1`)
	assert.Contains(t, text, `conclave_task_outcomes_total{outcome="success"}`)
	assert.Contains(t, text, `conclave_task_duration_seconds_bucket{role="tech"`)
	assert.Contains(t, text, `conclave_rounds_total{session="s-1"}`)
	assert.Contains(t, text, `conclave_decisions_total{action="vote"}`)
	assert.Contains(t, text, `conclave_commands_total{type="ask"}`)
	assert.Contains(t, text, `conclave_commands_dropped_total`)
	assert.Contains(t, text, `conclave_votes_cast{session="s-1"} 2`)
	assert.Contains(t, text, `conclave_sessions_closed_total{verdict="approve"}`)
	assert.Contains(t, text, `conclave_side_effect_errors_total{kind="opinion"}`)
}

func TestEnsureRegistered_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		EnsureRegistered()
		EnsureRegistered()
	})
}
