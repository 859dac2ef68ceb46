package cli

import (
	"github.com/harun/conclave/internal/config"
	"github.com/harun/conclave/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "conclave",
	Short: "Conclave - multi-agent deliberation orchestrator",
	Long: `Conclave runs a panel of AI agents that deliberate over a session held by
an external session store. Agents post opinions, message each other and vote
until a quorum closes the session with a verdict. Operators steer a running
deliberation through the session's command channel.`,
	Version:       daemon.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.conclave/conclave.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error), overrides the config file")

	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// loadConfig reads the config selected by --config and applies --log-level
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return daemon.Version
}
