package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/harun/conclave/internal/config"
	"github.com/harun/conclave/internal/logger"
	"github.com/harun/conclave/internal/observability"
	"github.com/harun/conclave/internal/tracing"
	"github.com/harun/conclave/pkg/agent"
	"github.com/harun/conclave/pkg/commandchannel"
	"github.com/harun/conclave/pkg/deliberation"
	"github.com/harun/conclave/pkg/sessionapi"
	"github.com/harun/conclave/pkg/workerpool"
	"github.com/rs/zerolog"
)

// Version is reported by the CLI and attached to trace resources
const Version = "0.1.0"

const shutdownTimeout = 5 * time.Second

// Daemon runs the deliberation of one session with everything it needs:
// session API client, worker pool, command channel, metrics endpoint and PID file
type Daemon struct {
	config    *config.Config
	logger    *logger.Logger
	log       zerolog.Logger
	sessionID string

	api     *sessionapi.Client
	pool    *workerpool.Pool
	channel *commandchannel.Subscriber
	runner  *deliberation.Runner

	lifecycle  *LifecycleManager
	httpServer *http.Server
	listener   net.Listener

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
}

// Status describes a running daemon
type Status struct {
	Running   bool
	SessionID string
	Uptime    time.Duration
	StartTime time.Time
	Snapshot  deliberation.Snapshot
	Pool      workerpool.Stats
}

// newDecider builds the agents' decision maker. Tests replace it with a scripted one.
var newDecider = func(cfg *config.Config, source agent.ContextSource, log zerolog.Logger) (agent.Decider, error) {
	provider, err := agent.NewProvider(cfg.Decision.Provider, cfg.Decision.APIKey)
	if err != nil {
		return nil, err
	}
	return agent.NewLLMDecider(agent.LLMDeciderConfig{
		Provider:    provider,
		Model:       cfg.Decision.Model,
		Temperature: cfg.Decision.Temperature,
		MaxTokens:   cfg.Decision.MaxTokens,
		Context:     source,
		Logger:      log,
	})
}

// New assembles a daemon for sessionID
func New(cfg *config.Config, log *logger.Logger, sessionID string) (*Daemon, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	zl := log.Zerolog().With().Str("session_id", sessionID).Logger()
	d := &Daemon{
		config:    cfg,
		logger:    log,
		log:       zl.With().Str("component", "daemon").Logger(),
		sessionID: sessionID,
	}

	observability.EnsureRegistered()
	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry("conclave", Version, cfg.Tracing.SampleRatio); err != nil {
			d.log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
			d.log.Info().Float64("sample_ratio", cfg.Tracing.SampleRatio).Msg("Tracing initialized")
		}
	}

	if err := d.initialize(zl); err != nil {
		d.shutdownTracing()
		return nil, err
	}

	return d, nil
}

func (d *Daemon) initialize(zl zerolog.Logger) error {
	cfg := d.config

	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			d.log.Warn().Err(err).Msg("Failed to initialize audit logger, audit events discarded")
		} else {
			d.log.Info().Str("path", cfg.Logging.AuditFile).Msg("Audit logger initialized")
		}
	}

	api, err := sessionapi.NewClient(cfg.API.BaseURL,
		sessionapi.WithTimeout(cfg.APITimeout()),
		sessionapi.WithLogger(zl))
	if err != nil {
		return fmt.Errorf("failed to create session api client: %w", err)
	}
	d.api = api

	decider, err := newDecider(cfg, api, zl)
	if err != nil {
		return fmt.Errorf("failed to create decider: %w", err)
	}

	d.pool = workerpool.New(decider, append(cfg.PoolOptions(), workerpool.WithLogger(zl))...)
	d.log.Info().Int("max_workers", d.pool.Stats().Max).Msg("Worker pool initialized")

	channelCfg := cfg.ChannelSubscriberConfig()
	channelCfg.Logger = zl
	channel, err := commandchannel.New(channelCfg)
	if err != nil {
		d.pool.ShutdownAll()
		return fmt.Errorf("failed to create command channel: %w", err)
	}
	d.channel = channel

	runnerCfg, err := cfg.DeliberationConfig(d.sessionID)
	if err != nil {
		d.pool.ShutdownAll()
		return fmt.Errorf("invalid runner config: %w", err)
	}
	runnerCfg.Logger = zl

	runner, err := deliberation.New(runnerCfg, deliberation.Dependencies{
		API:      api,
		Pool:     d.pool,
		Commands: channel,
	})
	if err != nil {
		d.pool.ShutdownAll()
		return fmt.Errorf("failed to create runner: %w", err)
	}
	d.runner = runner

	d.lifecycle = NewLifecycleManager(cfg.DataDir, d.sessionID, zl)
	return nil
}

// Run blocks until the session closes, the runner is stopped or ctx ends,
// then releases everything the daemon holds
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	traceID := tracing.NewTraceID()
	ctx = tracing.WithTraceID(ctx, traceID)
	d.log.Info().Str("trace_id", traceID).Msg("Starting conclave daemon")

	defer d.shutdown()

	if err := d.lifecycle.Start(); err != nil {
		d.runner.Stop()
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if d.config.Metrics.Enabled {
		if err := d.startHTTP(); err != nil {
			d.runner.Stop()
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	return d.runner.Start(ctx)
}

// Stop asks the runner to halt. Run returns once teardown is done.
func (d *Daemon) Stop() {
	d.log.Info().Msg("Stopping conclave daemon")
	d.runner.Stop()
}

func (d *Daemon) startHTTP() error {
	ln, err := net.Listen("tcp", d.config.Metrics.Addr)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.listener = ln
	d.httpServer = &http.Server{
		Handler:           d.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := d.httpServer
	d.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	d.log.Info().Str("addr", ln.Addr().String()).Msg("Metrics server started")
	return nil
}

func (d *Daemon) shutdown() {
	d.runner.Stop()

	d.mu.Lock()
	srv := d.httpServer
	d.mu.Unlock()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.log.Error().Err(err).Msg("Failed to stop metrics server")
		}
		cancel()
	}

	if err := d.lifecycle.Stop(); err != nil {
		d.log.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	d.shutdownTracing()

	if err := observability.GetAuditLogger().Close(); err != nil {
		d.log.Error().Err(err).Msg("Failed to close audit logger")
	}

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	snap := d.runner.Snapshot()
	d.log.Info().
		Int("rounds", snap.Round).
		Int("votes", snap.Voted).
		Msg("Daemon stopped")
}

func (d *Daemon) shutdownTracing() {
	if !d.tracingEnabled {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
		d.log.Error().Err(err).Msg("Failed to shutdown tracing")
	}
	d.tracingEnabled = false
}

// Status reports the daemon's current state
func (d *Daemon) Status() Status {
	d.mu.RLock()
	status := Status{
		Running:   d.running,
		SessionID: d.sessionID,
	}
	if d.running {
		status.StartTime = d.startTime
		status.Uptime = time.Since(d.startTime)
	}
	d.mu.RUnlock()

	status.Snapshot = d.runner.Snapshot()
	status.Pool = d.runner.Stats()
	return status
}

// MetricsAddr returns the bound address of the metrics server, if running
func (d *Daemon) MetricsAddr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

func (d *Daemon) Runner() *deliberation.Runner {
	return d.runner
}
