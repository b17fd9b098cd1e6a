package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peer-share/internal/logger"
	"github.com/rudransh-shrivastava/peer-share/internal/peer"
)

var fetchOpts struct {
	from int
}

var fetchCmd = &cobra.Command{
	Use:   "fetch name",
	Short: "download one file and leave",
	Long:  `join the tracker under a throwaway id, download a file from one of the peers sharing it and leave again`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		log := logger.NewLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		trackerAddr, err := resolveTracker(ctx, log)
		if err != nil {
			return err
		}

		node, err := peer.NewNode(nodeConfig("fetch-"+uuid.NewString(), trackerAddr, ":0", log))
		if err != nil {
			return err
		}
		defer node.Close()

		if err := node.Join(ctx); err != nil {
			return err
		}
		defer func() {
			leaveCtx, cancel := context.WithTimeout(context.Background(), commonOpts.timeout)
			defer cancel()
			if err := node.Leave(leaveCtx); err != nil {
				log.WithError(err).Warn("Failed to leave tracker")
			}
		}()

		path, err := download(ctx, node, name, fetchOpts.from)
		if err != nil {
			return err
		}
		log.WithField("path", path).Info("Download complete")
		return nil
	},
}

func init() {
	fetchCmd.Flags().IntVar(&fetchOpts.from, "from", 0, "index of the source in the tracker's peer list")
}
