package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aretw0/itinera/internal/cli"
	"github.com/aretw0/itinera/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "itinera",
	Short: "Itinera runs tool-calling conversations with durable threads",
	Long: `Itinera drives a model through tool-calling turns, checkpointing every message
so a thread can be resumed after a crash or from another process.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().String("store", "", "Checkpoint store: memory, file, sqlite or redis (overrides ITINERA_STORE)")
	rootCmd.PersistentFlags().Bool("debug", false, "Log every model call, tool call and checkpoint")
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if store, _ := cmd.Flags().GetString("store"); store != "" {
		cfg.Store = store
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.LogLevel = "debug"
	}
	return cfg, cfg.Validate()
}

// openApp builds the application for a command. The caller must Close it.
func openApp(ctx context.Context, cmd *cobra.Command) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	return cli.NewApp(ctx, cfg, cli.WithDebugHooks(debug))
}
