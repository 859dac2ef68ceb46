package cli

import (
	"fmt"
	"os"

	"github.com/harun/conclave/internal/config"
	"github.com/spf13/cobra"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and initialize configuration",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration",
	Long: `Load the configuration with environment overrides applied and validate it.
Errors fail the command. Advisory findings are printed as warnings.`,
	Args: cobra.NoArgs,
	RunE: runConfigCheck,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing config file")
	configCmd.AddCommand(configCheckCmd, configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, finding := range config.NewValidator().ValidateConfig(cfg) {
		fmt.Fprintf(out, "warning: %v\n", finding)
	}
	fmt.Fprintf(out, "Configuration OK (%s)\n", config.NewLoader(cfgFile).GetConfigPath())
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	path := loader.GetConfigPath()

	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}

	if err := loader.Save(config.DefaultConfig()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration saved to: %s\n", path)
	fmt.Fprintln(out, "Set decision.api_key (or CONCLAVE_DECISION_API_KEY), then run: conclave run <session-id>")
	return nil
}
