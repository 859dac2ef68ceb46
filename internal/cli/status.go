package cli

import (
	"fmt"
	"time"

	"github.com/harun/conclave/internal/daemon"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show running sessions",
	Long:  `List the sessions that have a conclave daemon on this machine, with PID and uptime.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	procs, err := daemon.ListProcesses(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(procs) == 0 {
		fmt.Fprintln(out, "No running sessions")
		return nil
	}

	for _, p := range procs {
		if !p.Running {
			fmt.Fprintf(out, "%s\tstale (pid file %s)\n", p.SessionID, p.PIDFile)
			continue
		}
		fmt.Fprintf(out, "%s\trunning\tpid %d\tuptime %s\n", p.SessionID, p.PID, formatDuration(time.Since(p.StartTime)))
	}

	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
