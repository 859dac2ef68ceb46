package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/conclave/internal/daemon"
	"github.com/harun/conclave/internal/logger"
	"github.com/spf13/cobra"
)

var (
	runRoles     []string
	runMaxRounds int
)

var runCmd = &cobra.Command{
	Use:   "run <session-id>",
	Short: "Run the deliberation of a session",
	Long: `Register the agent panel in a session and run deliberation rounds until a
quorum closes the session or the process receives SIGINT or SIGTERM.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVar(&runRoles, "roles", nil, "agent roles to seat, overrides runner.roles (e.g. debt,tech,market)")
	runCmd.Flags().IntVar(&runMaxRounds, "max-rounds", 0, "round budget, overrides runner.max_rounds")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(runRoles) > 0 {
		cfg.Runner.Roles = runRoles
	}
	if runMaxRounds > 0 {
		cfg.Runner.MaxRounds = runMaxRounds
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return d.Run(ctx)
}
