package peer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/transfer"
)

var (
	ErrLocalFileMissing = errors.New("local file missing")
	ErrInvalidName      = errors.New("invalid file name")
	ErrDestinationTaken = errors.New("download destination serves another file")
)

// Node is a running peer: it serves its shared files and fetches files from
// other peers, keeping the tracker informed of both.
type Node struct {
	config  NodeConfig
	logger  *logrus.Logger
	tracker *Client
	shares  *transfer.Shares
	server  *transfer.Server
	fetcher *transfer.Fetcher
}

// NewNode binds the transfer listener. Nothing is sent to the tracker
// until Start.
func NewNode(cfg NodeConfig) (*Node, error) {
	cfg = cfg.withDefaults()

	client, err := NewClient(cfg.Config)
	if err != nil {
		return nil, err
	}

	shares := transfer.NewShares()
	server, err := transfer.NewServer(transfer.ServerConfig{
		Addr:    cfg.ListenAddr,
		Workers: cfg.Workers,
		Logger:  cfg.Logger,
	}, shares)
	if err != nil {
		return nil, err
	}

	return &Node{
		config:  cfg,
		logger:  cfg.Logger,
		tracker: client,
		shares:  shares,
		server:  server,
		fetcher: transfer.NewFetcher(transfer.FetcherConfig{
			Logger:      cfg.Logger,
			NewProgress: cfg.NewProgress,
		}),
	}, nil
}

func (n *Node) PeerID() string {
	return n.tracker.PeerID()
}

func (n *Node) TransferPort() int {
	return n.server.Port()
}

// Start joins the tracker and then serves transfers until ctx is done or
// Close is called. Join errors are returned before anything is served.
func (n *Node) Start(ctx context.Context) error {
	if err := n.Join(ctx); err != nil {
		return err
	}
	return n.Serve(ctx)
}

// Join registers with the tracker, announcing every file in the share table.
func (n *Node) Join(ctx context.Context) error {
	files := n.shares.Names()
	if err := n.tracker.Join(ctx, files, n.server.Port()); err != nil {
		return fmt.Errorf("joining tracker: %w", err)
	}

	n.logger.WithFields(logrus.Fields{
		"peer":  n.PeerID(),
		"port":  n.server.Port(),
		"files": len(files),
	}).Info("Joined tracker")
	return nil
}

func (n *Node) Serve(ctx context.Context) error {
	return n.server.Serve(ctx)
}

// AddLocal registers a file in the share table without telling the tracker.
// Files added before Start are announced by the join.
func (n *Node) AddLocal(name, path string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := checkRegular(path); err != nil {
		return err
	}
	n.shares.Add(name, path)
	return nil
}

// Share makes path available as name and announces it. If the tracker
// refuses, the share table is restored.
func (n *Node) Share(ctx context.Context, name, path string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := checkRegular(path); err != nil {
		return err
	}

	prev, replaced := n.shares.Add(name, path)
	if err := n.tracker.ShareFile(ctx, name); err != nil {
		if replaced {
			n.shares.Add(name, prev)
		} else {
			n.shares.Remove(name)
		}
		return err
	}

	n.logger.WithFields(logrus.Fields{"peer": n.PeerID(), "file": name}).Info("Shared file")
	return nil
}

func (n *Node) Locate(ctx context.Context, name string) ([]protocol.PeerAddr, error) {
	return n.tracker.GetPeers(ctx, name)
}

// Download fetches name from one source into DownloadDir, starts serving it
// and reports the completed download to the tracker. It returns the local
// path of the file. If the report fails the file is still served, since it
// is present locally; the tracker just does not list this peer for it.
func (n *Node) Download(ctx context.Context, from protocol.PeerAddr, name string) (string, error) {
	dst, err := downloadPath(n.config.DownloadDir, name)
	if err != nil {
		return "", err
	}
	if owner, ok := n.shares.NameOf(dst); ok && owner != name {
		return "", fmt.Errorf("%w: %s already holds %q", ErrDestinationTaken, dst, owner)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}

	if _, err := n.fetcher.Fetch(ctx, from.String(), name, dst); err != nil {
		return "", err
	}

	n.shares.Add(name, dst)
	if err := n.tracker.GotTheFile(ctx, name); err != nil {
		return dst, fmt.Errorf("reporting download: %w", err)
	}
	return dst, nil
}

// Leave deregisters from the tracker. The transfer server keeps running
// until Close.
func (n *Node) Leave(ctx context.Context) error {
	if err := n.tracker.Leave(ctx); err != nil {
		return err
	}
	n.logger.WithField("peer", n.PeerID()).Info("Left tracker")
	return nil
}

func (n *Node) Close() error {
	return n.server.Close()
}

func checkName(name string) error {
	base := filepath.Base(name)
	if name == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// downloadPath maps a shared name to a file under dir. Directories in the
// name are kept, with leading "/" and ".." elements dropped, so two names
// only land on the same path when they clean to the same relative path.
func downloadPath(dir, name string) (string, error) {
	rel := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(name)), "/")
	if rel == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(dir, filepath.FromSlash(rel)), nil
}

func checkRegular(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLocalFileMissing, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrLocalFileMissing, path)
	}
	return nil
}
