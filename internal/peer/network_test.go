package peer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rudransh-shrivastava/peer-share/internal/logger"
	"github.com/rudransh-shrivastava/peer-share/internal/tracker"
)

// network is a tracker plus any number of peers, all on loopback.
type network struct {
	t       *testing.T
	ctx     context.Context
	tracker *tracker.Server
	control string
}

func newNetwork(t *testing.T, control string) *network {
	t.Helper()

	srv, err := tracker.NewServer(tracker.Config{
		Addr:       "127.0.0.1:0",
		StreamAddr: "127.0.0.1:0",
		Logger:     logger.Discard(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Start(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &network{t: t, ctx: ctx, tracker: srv, control: control}
}

func (n *network) trackerAddr() string {
	if n.control == ControlTCP {
		return n.tracker.StreamAddr()
	}
	return n.tracker.Addr()
}

func (n *network) client(id string) *Client {
	n.t.Helper()

	c, err := NewClient(Config{
		PeerID:      id,
		TrackerAddr: n.trackerAddr(),
		Control:     n.control,
		Timeout:     2 * time.Second,
		Logger:      logger.Discard(),
	})
	require.NoError(n.t, err)
	return c
}

// node starts a peer that serves until the test ends. It is not joined.
func (n *network) node(id string) *Node {
	n.t.Helper()

	node, err := NewNode(NodeConfig{
		Config: Config{
			PeerID:      id,
			TrackerAddr: n.trackerAddr(),
			Control:     n.control,
			Timeout:     2 * time.Second,
			Logger:      logger.Discard(),
		},
		ListenAddr:  "127.0.0.1:0",
		DownloadDir: n.t.TempDir(),
	})
	require.NoError(n.t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = node.Serve(n.ctx)
	}()
	n.t.Cleanup(func() {
		_ = node.Close()
		<-done
	})
	return node
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
