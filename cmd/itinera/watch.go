package main

import (
	"context"
	"os"

	"github.com/aretw0/itinera/internal/cli"
	"github.com/aretw0/itinera/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <thread-id>",
	Short: "Follow a thread on a running server",
	Long:  `Subscribes to the events of a thread on an itinera server and prints each turn as it runs.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		printer := tui.NewPrinter(os.Stdout, tui.NewRenderer())
		return cli.Watch(sigCtx, nil, server, args[0], printer)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().String("server", "http://localhost:8080", "Base URL of the itinera server")
}
