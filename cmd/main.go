package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chat-client/internal/config"
)

var (
	configPath string
	envFile    string
	flags      *config.Flags
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chat-client",
		Short: "Terminal client for a text-to-SQL chat backend",
		Long: `chat-client sends questions to a chat backend's /get_response/ endpoint
and shows the replies in a scrolling transcript.

Run without arguments to start the interactive chat interface.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default: ./.env if present)")
	flags = config.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newSendCmd())
	rootCmd.AddCommand(newAddSourceCmd())
	return rootCmd
}
