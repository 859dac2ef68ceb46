package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/harun/conclave/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop <session-id>",
	Short: "Stop the daemon running a session",
	Long: `Stop the daemon running a session gracefully.
Sends SIGTERM and waits for it to shut down, then falls back to SIGKILL after the timeout.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for the daemon to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	pidFile := daemon.PIDFilePath(cfg.DataDir, args[0])
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no daemon is running session %s", args[0])
		}
		return err
	}

	out := cmd.OutOrStdout()
	if !daemon.ProcessAlive(pid) {
		os.Remove(pidFile)
		fmt.Fprintln(out, "Daemon was not running, removed stale PID file")
		return nil
	}

	if err := signalProcess(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(time.Duration(stopTimeout) * time.Second)
	for time.Now().Before(deadline) {
		if !daemon.ProcessAlive(pid) {
			os.Remove(pidFile)
			fmt.Fprintln(out, "Daemon stopped successfully")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")
	if err := signalProcess(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}

	os.Remove(pidFile)
	fmt.Fprintln(out, "Daemon killed")
	return nil
}

func signalProcess(pid int, sig os.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	return process.Signal(sig)
}
