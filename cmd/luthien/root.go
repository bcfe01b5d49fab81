package main

import (
	"fmt"
	"io"
	"os"

	"mercator-hq/luthien/pkg/cli"
	"mercator-hq/luthien/pkg/config"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "luthien",
	Short: "Luthien - policy-mediated proxy for chat completions",
	Long: `Luthien is an OpenAI-compatible reverse proxy that runs every chat
completion through a composable tree of policies.

Policies are configured by name in a file, SQLite, or Git store and may be
combined with sequential and conditional composites. The tree is rebuilt
atomically when its configuration changes.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return cli.ExitCode(err)
	}
	return cli.ExitOK
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults plus LUTHIEN_* environment when empty)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// loadConfig reads the configuration named by --config with environment
// overrides applied.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError(cfgFile, err.Error())
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	return cfg, nil
}

// out returns where a command writes its results.
func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
