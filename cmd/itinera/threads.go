package main

import (
	"context"
	"os"

	"github.com/aretw0/itinera/internal/cli"
	"github.com/spf13/cobra"
)

var threadsCmd = &cobra.Command{
	Use:   "threads",
	Short: "Inspect stored threads",
}

var threadsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every thread id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.ListThreads(ctx, app, os.Stdout)
		})
	},
}

var threadsShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Print the messages of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd, func(ctx context.Context, app *cli.App) error {
			return cli.ShowThread(ctx, app, args[0], os.Stdout, asJSON)
		})
	},
}

func withApp(cmd *cobra.Command, fn func(context.Context, *cli.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close(context.Background())
	return fn(ctx, app)
}

func init() {
	rootCmd.AddCommand(threadsCmd)
	threadsCmd.AddCommand(threadsLsCmd, threadsShowCmd)
	threadsShowCmd.Flags().Bool("json", false, "Print JSON Lines instead of rendered text")
}
