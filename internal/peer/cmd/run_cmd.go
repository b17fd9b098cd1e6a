package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peer-share/internal/logger"
	"github.com/rudransh-shrivastava/peer-share/internal/peer"
)

var runOpts struct {
	id     string
	listen string
	shares []string
	gets   []string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "join the tracker and serve files",
	Long:  `join the tracker, share the given files, download the requested ones and keep serving until interrupted`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		trackerAddr, err := resolveTracker(ctx, log)
		if err != nil {
			return err
		}

		id := runOpts.id
		if id == "" {
			id = uuid.NewString()
		}

		node, err := peer.NewNode(nodeConfig(id, trackerAddr, runOpts.listen, log))
		if err != nil {
			return err
		}
		defer node.Close()

		for _, s := range runOpts.shares {
			name, path, err := parseShare(s)
			if err != nil {
				return err
			}
			if err := node.AddLocal(name, path); err != nil {
				return err
			}
		}

		if err := node.Join(ctx); err != nil {
			return err
		}

		served := make(chan error, 1)
		go func() { served <- node.Serve(ctx) }()

		for _, name := range runOpts.gets {
			path, err := download(ctx, node, name, 0)
			if err != nil {
				log.WithError(err).WithField("file", name).Error("Download failed")
				continue
			}
			log.WithField("path", path).Info("Download complete")
		}

		log.WithField("peer", id).Info("Serving files, interrupt to leave")

		var serveErr error
		select {
		case <-ctx.Done():
		case serveErr = <-served:
		}

		leaveCtx, cancel := context.WithTimeout(context.Background(), commonOpts.timeout)
		defer cancel()
		if err := node.Leave(leaveCtx); err != nil {
			log.WithError(err).Warn("Failed to leave tracker")
		}

		if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
			return serveErr
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runOpts.id, "id", "", "peer id, a random uuid when empty")
	runCmd.Flags().StringVar(&runOpts.listen, "listen", ":0", "address the transfer server listens on")
	runCmd.Flags().StringArrayVar(&runOpts.shares, "share", nil, "file to share as name=path, repeatable")
	runCmd.Flags().StringArrayVar(&runOpts.gets, "get", nil, "file to download after joining, repeatable")
}
