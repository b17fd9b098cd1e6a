package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peer-share/internal/journal"
	"github.com/rudransh-shrivastava/peer-share/internal/logger"
)

var logsOpts struct {
	journal string
	shared  bool
	file    string
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "print the request journal",
	Long:  `print requests recorded by the tracker, optionally only shares or only those about one file`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := journal.Open(logsOpts.journal, logger.Discard())
		if err != nil {
			return err
		}
		defer j.Close()

		ctx := cmd.Context()
		var events []journal.Event
		switch {
		case logsOpts.file != "":
			events, err = j.ByFile(ctx, logsOpts.file)
		case logsOpts.shared:
			events, err = j.Shared(ctx)
		default:
			events, err = j.All(ctx)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(events) == 0 {
			fmt.Fprintln(out, "No logs available.")
			return nil
		}
		for _, e := range events {
			fmt.Fprintln(out, e.String())
		}
		return nil
	},
}

func init() {
	logsCmd.Flags().StringVar(&logsOpts.journal, "journal", defaultJournal, "sqlite file written by tracker serve")
	logsCmd.Flags().BoolVar(&logsOpts.shared, "shared", false, "only share_file events")
	logsCmd.Flags().StringVar(&logsOpts.file, "file", "", "only events about this file")
}
