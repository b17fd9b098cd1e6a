package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultJournal = "tracker.sqlite3"

var rootCmd = &cobra.Command{
	Use:          `tracker`,
	Short:        `peer-share tracker`,
	Long:         `tracker keeps track of which peers are online and which files they share`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(logsCmd)
}
