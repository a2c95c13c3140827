package main

import (
	"context"
	"runonsave/cmd/runonsave/settings"
	"runonsave/cmd/runonsave/watch"
	"runonsave/internal/config"
	"runonsave/pkg/logger"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

func NewRootCommand() *cobra.Command {
	global := &config.GlobalFlags{}

	rootCmd := &cobra.Command{
		Use:   "runonsave",
		Short: "Run a shell command whenever a file is saved",
		Long: `runonsave watches workspace folders and runs a command for every saved file.
A save interrupts the command still running for the same file.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logger.LevelFor(global.Verbose)
			logrus.SetLevel(level)
			logger.SetLevel(level)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&global.Verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&global.ConfigFile, "config", "", "Configuration file (default: runonsave.yaml in ., ./config, $HOME/.runonsave, /etc/runonsave)")

	rootCmd.AddCommand(watch.NewWatchCommand(global))
	rootCmd.AddCommand(settings.NewEnableCommand(global))
	rootCmd.AddCommand(settings.NewDisableCommand(global))
	rootCmd.AddCommand(settings.NewStatusCommand(global))

	return rootCmd
}
