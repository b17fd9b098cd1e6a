package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rudransh-shrivastava/peer-share/internal/discovery"
	"github.com/rudransh-shrivastava/peer-share/internal/peer"
)

const discoveryTimeout = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:          `peer`,
	Short:        `peer-share peer`,
	Long:         `peer shares local files with other peers and downloads the files they share`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&commonOpts.tracker, "tracker", "", "tracker address, discovered over mDNS when empty")
	rootCmd.PersistentFlags().StringVar(&commonOpts.control, "control", peer.ControlUDP, "control channel to the tracker: udp or tcp")
	rootCmd.PersistentFlags().StringVar(&commonOpts.dir, "dir", peer.DefaultDownloadDir, "directory downloads are written to")
	rootCmd.PersistentFlags().DurationVar(&commonOpts.timeout, "timeout", peer.DefaultTimeout, "timeout for each tracker request")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(fetchCmd)
}

var commonOpts struct {
	tracker string
	control string
	dir     string
	timeout time.Duration
}

func resolveTracker(ctx context.Context, log *logrus.Logger) (string, error) {
	if commonOpts.tracker != "" {
		return commonOpts.tracker, nil
	}

	log.Info("No tracker given, looking for one over mDNS")
	ctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	addr, err := discovery.Lookup(ctx)
	if err != nil {
		return "", err
	}
	log.WithField("tracker", addr).Info("Found tracker")
	return addr, nil
}

func nodeConfig(id, trackerAddr, listen string, log *logrus.Logger) peer.NodeConfig {
	return peer.NodeConfig{
		Config: peer.Config{
			PeerID:      id,
			TrackerAddr: trackerAddr,
			Control:     commonOpts.control,
			Timeout:     commonOpts.timeout,
			Logger:      log,
		},
		ListenAddr:  listen,
		DownloadDir: commonOpts.dir,
		NewProgress: func(name string, size int64) io.Writer {
			return progressbar.DefaultBytes(size, "downloading "+name)
		},
	}
}

// download asks the tracker who has name and fetches it from the peer at
// index from in the returned list.
func download(ctx context.Context, node *peer.Node, name string, from int) (string, error) {
	peers, err := node.Locate(ctx, name)
	if err != nil {
		return "", err
	}
	if len(peers) == 0 {
		return "", fmt.Errorf("no peer shares %s", name)
	}
	if from < 0 || from >= len(peers) {
		return "", fmt.Errorf("source index %d out of range, %d peers share %s", from, len(peers), name)
	}
	return node.Download(ctx, peers[from], name)
}

// parseShare accepts "name=path" or a bare path shared under its base name.
func parseShare(s string) (string, string, error) {
	name, path, ok := strings.Cut(s, "=")
	if !ok {
		path = s
		name = filepath.Base(s)
	}
	if name == "" || path == "" {
		return "", "", fmt.Errorf("invalid share %q, want name=path", s)
	}
	return name, path, nil
}
