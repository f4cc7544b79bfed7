package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/duochat/duochat/pkg/config"
	"github.com/duochat/duochat/pkg/logger"
)

var version = "dev"

type rootFlags struct {
	configPath string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "duochat",
		Short:         "Chat with the AI assistant or human support from your terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadConfig(flags.configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg = loaded
			level := cfg.Log.Level
			if flags.logLevel != "" {
				level = flags.logLevel
			}
			return logger.Init(logger.Options{Level: level, File: cfg.LogFilePath()})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", config.DefaultPath(), "config file (.json, .toml or .yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	getConfig := func() *config.Config { return cfg }
	root.AddCommand(
		newChatCmd(getConfig, flags),
		newSendCmd(getConfig),
		newHistoryCmd(getConfig),
		newSessionCmd(getConfig),
		newPreviewCmd(getConfig),
		newAdminCmd(getConfig),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "duochat", version)
		},
	}
}
