package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/morichikawa/echa25/cli/internal/ui"
	"github.com/morichikawa/echa25/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "echa",
	Short:   "Shared whiteboard in the terminal, peer-to-peer over WebRTC",
	Long:    `echa joins a whiteboard room through a signaling relay and draws together with everyone in it. Strokes travel directly between participants over WebRTC data channels; the relay only keeps the roster and forwards connection setup.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
