package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordCommandAudit_WritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	SetAuditWriter(&buf)
	t.Cleanup(func() { SetAuditWriter(nil) })

	RecordCommandAudit(context.Background(), "s-1", "operator", "vote", map[string]interface{}{"target": "tech"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "command", entry["type"])
	assert.Equal(t, "s-1", entry["session_id"])
	assert.Equal(t, "operator", entry["actor"])
	assert.Equal(t, "command:vote", entry["action"])
	assert.Equal(t, "success", entry["status"])
	assert.Equal(t, map[string]interface{}{"target": "tech"}, entry["metadata"])
}

func TestRecordCloseAudit_Skipped(t *testing.T) {
	var buf bytes.Buffer
	SetAuditWriter(&buf)
	t.Cleanup(func() { SetAuditWriter(nil) })

	RecordCloseAudit(context.Background(), "s-2", "approve", "skipped", nil)
	RecordVoteAudit(context.Background(), "s-2", "agent-1", "reject", "success")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"action":"close:approve"`)
	assert.Contains(t, lines[0], `"status":"skipped"`)
	assert.NotContains(t, lines[0], "metadata")
	assert.Contains(t, lines[1], `"action":"vote:reject"`)
}

func TestInitAuditLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	require.NoError(t, InitAuditLogger(path))
	t.Cleanup(func() { SetAuditWriter(nil) })

	RecordCommandAudit(context.Background(), "s-3", "ops", "resume", nil)
	require.NoError(t, GetAuditLogger().Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"command:resume"`)
}
