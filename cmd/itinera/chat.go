package main

import (
	"context"
	"os"
	"time"

	"github.com/aretw0/itinera"
	"github.com/aretw0/itinera/internal/cli"
	"github.com/aretw0/itinera/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [thread-id]",
	Short: "Start an interactive conversation",
	Long: `Starts a conversation in the terminal. Pass a thread id to resume it;
without one a new thread is created.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quiet, _ := cmd.Flags().GetBool("quiet")

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()

		app, err := openApp(sigCtx, cmd)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = app.Close(ctx)
		}()

		if !quiet {
			tui.PrintBanner(os.Stdout, itinera.Version)
		}
		printer := tui.NewPrinter(os.Stdout, tui.NewRenderer())
		if !quiet {
			for _, src := range app.Sources {
				if src.Degraded() {
					printer.System("Tool source %s", src)
				}
			}
		}

		opts := cli.ChatOptions{Quiet: quiet}
		if len(args) == 1 {
			opts.ThreadID = args[0]
		}
		chat := cli.NewChat(app, printer, opts)
		err = chat.Run(sigCtx, os.Stdin, os.Stdout)
		if sig := sigCtx.Signal(); sig != nil && !quiet {
			printer.System("Interrupted. Resume with: itinera chat %s", chat.ThreadID())
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().BoolP("quiet", "q", false, "Suppress the banner and status lines")
}
