package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/conclave/internal/config"
	"github.com/harun/conclave/internal/logger"
	"github.com/harun/conclave/pkg/agent"
	"github.com/harun/conclave/pkg/runnerstate"
	"github.com/harun/conclave/pkg/sessionapi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sessionStore is an in-memory session API with a command websocket
type sessionStore struct {
	mu      sync.Mutex
	votes   []sessionapi.Vote
	verdict sessionapi.Verdict
	closed  chan struct{}
}

func newSessionStore(t *testing.T) (*sessionStore, *httptest.Server) {
	t.Helper()
	store := &sessionStore{closed: make(chan struct{})}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sessions/s-1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, sessionapi.Session{ID: "s-1", Title: "Acme Series B"})
	})
	mux.HandleFunc("POST /api/sessions/s-1/agents", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Role string `json:"role"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, sessionapi.AgentRegistration{ID: req.Role + "-id", Role: agent.Role(req.Role)})
	})
	mux.HandleFunc("GET /api/sessions/s-1/votes", func(w http.ResponseWriter, r *http.Request) {
		store.mu.Lock()
		defer store.mu.Unlock()
		writeJSON(w, store.votes)
	})
	mux.HandleFunc("POST /api/sessions/s-1/votes", func(w http.ResponseWriter, r *http.Request) {
		var v sessionapi.Vote
		_ = json.NewDecoder(r.Body).Decode(&v)
		store.mu.Lock()
		store.votes = append(store.votes, v)
		store.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /api/sessions/s-1/close", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Verdict sessionapi.Verdict `json:"verdict"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		store.mu.Lock()
		store.verdict = req.Verdict
		store.mu.Unlock()
		close(store.closed)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return store, srv
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func testConfig(t *testing.T, srv *httptest.Server) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = srv.URL
	cfg.Channel.URL = srv.URL + "/ws"
	cfg.Channel.ReconnectDelayMS = 10
	cfg.Runner.Roles = []string{"debt", "tech", "market"}
	cfg.Runner.RoundDelayMS = 1
	cfg.Runner.TaskTimeoutSeconds = 5
	cfg.Metrics.Enabled = false
	cfg.DataDir = t.TempDir()
	return cfg
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(logger.Config{Level: "error", Console: true, Output: io.Discard})
	require.NoError(t, err)
	return l
}

func useDecider(t *testing.T, fn agent.DeciderFunc) {
	t.Helper()
	prev := newDecider
	newDecider = func(*config.Config, agent.ContextSource, zerolog.Logger) (agent.Decider, error) {
		return fn, nil
	}
	t.Cleanup(func() { newDecider = prev })
}

func runAsync(d *Daemon) <-chan error {
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	return done
}

func TestDaemon_RunsSessionToVerdict(t *testing.T) {
	store, srv := newSessionStore(t)
	useDecider(t, func(ctx context.Context, task agent.Task) (agent.Decision, error) {
		return agent.Vote{Choice: agent.VoteApprove, Rationale: "solid"}, nil
	})

	cfg := testConfig(t, srv)
	d, err := New(cfg, testLogger(t), "s-1")
	require.NoError(t, err)

	done := runAsync(d)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not finish")
	}

	select {
	case <-store.closed:
	default:
		t.Fatal("session was not closed")
	}
	assert.Equal(t, sessionapi.VerdictApprove, store.verdict)
	assert.Len(t, store.votes, 3)

	status := d.Status()
	assert.False(t, status.Running)
	assert.Equal(t, runnerstate.Stopped, status.Snapshot.State)

	_, err = os.Stat(PIDFilePath(cfg.DataDir, "s-1"))
	assert.True(t, os.IsNotExist(err))
}

func TestDaemon_HealthAndMetricsUntilStopped(t *testing.T) {
	_, srv := newSessionStore(t)
	useDecider(t, func(ctx context.Context, task agent.Task) (agent.Decision, error) {
		return agent.Wait{Reason: "reading"}, nil
	})

	cfg := testConfig(t, srv)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"

	d, err := New(cfg, testLogger(t), "s-1")
	require.NoError(t, err)
	done := runAsync(d)

	require.Eventually(t, func() bool {
		return d.MetricsAddr() != "" && d.Runner().Snapshot().State == runnerstate.Idle && d.Runner().Snapshot().Round >= 1
	}, 5*time.Second, 10*time.Millisecond)

	pid, err := ReadPID(PIDFilePath(cfg.DataDir, "s-1"))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	resp, err := http.Get("http://" + d.MetricsAddr() + "/healthz")
	require.NoError(t, err)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "s-1", health.Session.SessionID)
	assert.Equal(t, runnerstate.Idle, health.Session.State)
	assert.Len(t, health.Session.Agents, 3)

	resp, err = http.Get("http://" + d.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), "conclave_rounds_total"))

	d.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	_, err = os.Stat(PIDFilePath(cfg.DataDir, "s-1"))
	assert.True(t, os.IsNotExist(err))
}

func TestDaemon_RunTwice(t *testing.T) {
	_, srv := newSessionStore(t)
	useDecider(t, func(ctx context.Context, task agent.Task) (agent.Decision, error) {
		return agent.Vote{Choice: agent.VoteReject}, nil
	})

	d, err := New(testConfig(t, srv), testLogger(t), "s-1")
	require.NoError(t, err)

	require.NoError(t, d.Run(context.Background()))
	assert.Error(t, d.Run(context.Background()))
}

func TestNew_Errors(t *testing.T) {
	_, srv := newSessionStore(t)
	useDecider(t, func(ctx context.Context, task agent.Task) (agent.Decision, error) {
		return agent.Wait{}, nil
	})

	_, err := New(testConfig(t, srv), testLogger(t), "")
	assert.Error(t, err)

	cfg := testConfig(t, srv)
	cfg.API.BaseURL = "ftp://sessions"
	_, err = New(cfg, testLogger(t), "s-1")
	assert.Error(t, err)

	cfg = testConfig(t, srv)
	cfg.Runner.Roles = []string{"legal"}
	_, err = New(cfg, testLogger(t), "s-1")
	assert.Error(t, err)
}

func TestNewDecider_RequiresKnownProvider(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Decision.Provider = "gemini"
	cfg.Decision.APIKey = "key"

	_, err := newDecider(cfg, nil, zerolog.Nop())
	assert.Error(t, err)

	cfg.Decision.Provider = "anthropic"
	d, err := newDecider(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, d)
}
