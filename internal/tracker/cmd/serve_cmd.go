package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peer-share/internal/discovery"
	"github.com/rudransh-shrivastava/peer-share/internal/journal"
	"github.com/rudransh-shrivastava/peer-share/internal/logger"
	"github.com/rudransh-shrivastava/peer-share/internal/tracker"
)

var serveOpts struct {
	addr       string
	streamAddr string
	journal    string
	mdns       bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the tracker",
	Long:  `run the tracker, answering control requests over UDP and optionally over a framed TCP channel`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewLogger()

		cfg := tracker.Config{
			Addr:       serveOpts.addr,
			StreamAddr: serveOpts.streamAddr,
			Logger:     log,
		}
		if serveOpts.journal != "" {
			j, err := journal.Open(serveOpts.journal, log)
			if err != nil {
				return err
			}
			defer j.Close()
			cfg.Journal = j
		}

		srv, err := tracker.NewServer(cfg)
		if err != nil {
			return err
		}

		if serveOpts.mdns {
			port, err := portOf(srv.Addr())
			if err != nil {
				return err
			}
			host, _ := os.Hostname()
			adv, err := discovery.Advertise("tracker-"+host, port)
			if err != nil {
				return err
			}
			defer adv.Shutdown()
			log.WithField("service", discovery.Service).Info("Advertising tracker over mDNS")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func portOf(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("parsing port of %s: %w", addr, err)
	}
	return port, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.addr, "addr", ":6771", "UDP address for control requests")
	serveCmd.Flags().StringVar(&serveOpts.streamAddr, "stream-addr", "", "TCP address for framed control requests, disabled when empty")
	serveCmd.Flags().StringVar(&serveOpts.journal, "journal", defaultJournal, "sqlite file recording every request, disabled when empty")
	serveCmd.Flags().BoolVar(&serveOpts.mdns, "mdns", false, "advertise the tracker on the local network")
}
