package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const (
	pidPrefix = "conclave-"
	pidSuffix = ".pid"
)

// LifecycleManager owns the PID file of one session's daemon
type LifecycleManager struct {
	dataDir string
	pidFile string
	logger  zerolog.Logger
}

// ProcessInfo describes a daemon found through its PID file
type ProcessInfo struct {
	SessionID string
	PID       int
	PIDFile   string
	StartTime time.Time
	Running   bool
}

// PIDFilePath returns where the daemon for sessionID records its PID
func PIDFilePath(dataDir, sessionID string) string {
	return filepath.Join(dataDir, pidPrefix+sessionID+pidSuffix)
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(dataDir, sessionID string, logger zerolog.Logger) *LifecycleManager {
	return &LifecycleManager{
		dataDir: dataDir,
		pidFile: PIDFilePath(dataDir, sessionID),
		logger:  logger.With().Str("component", "lifecycle").Logger(),
	}
}

// Start writes the PID file, refusing when a live daemon already owns the session
func (l *LifecycleManager) Start() error {
	if err := os.MkdirAll(l.dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if pid, err := ReadPID(l.pidFile); err == nil && pid != os.Getpid() && ProcessAlive(pid) {
		return fmt.Errorf("session already has a running daemon (pid %d)", pid)
	}

	if err := os.WriteFile(l.pidFile, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	l.logger.Info().
		Str("pid_file", l.pidFile).
		Int("pid", os.Getpid()).
		Msg("Lifecycle manager started")

	return nil
}

// Stop removes the PID file
func (l *LifecycleManager) Stop() error {
	if err := os.Remove(l.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}
	l.logger.Debug().Msg("Lifecycle manager stopped")
	return nil
}

func (l *LifecycleManager) PIDFile() string {
	return l.pidFile
}

// ReadPID parses a PID file
func ReadPID(pidFile string) (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

// ProcessAlive reports whether pid names a live process
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix; signal 0 probes for existence.
	// EPERM means the process exists but belongs to another user.
	err = process.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// ListProcesses returns every daemon with a PID file under dataDir, sorted by session
func ListProcesses(dataDir string) ([]ProcessInfo, error) {
	matches, err := filepath.Glob(filepath.Join(dataDir, pidPrefix+"*"+pidSuffix))
	if err != nil {
		return nil, err
	}

	infos := make([]ProcessInfo, 0, len(matches))
	for _, path := range matches {
		base := filepath.Base(path)
		info := ProcessInfo{
			SessionID: strings.TrimSuffix(strings.TrimPrefix(base, pidPrefix), pidSuffix),
			PIDFile:   path,
		}
		pid, err := ReadPID(path)
		if err != nil {
			infos = append(infos, info)
			continue
		}
		info.PID = pid
		info.Running = ProcessAlive(pid)
		if stat, err := os.Stat(path); err == nil {
			info.StartTime = stat.ModTime()
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].SessionID < infos[j].SessionID })
	return infos, nil
}
