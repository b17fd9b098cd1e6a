package peer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
	"github.com/rudransh-shrivastava/peer-share/internal/registry"
	"github.com/rudransh-shrivastava/peer-share/internal/transfer"
)

// The two-peer walkthrough: A shares, B downloads and becomes a source, A
// leaves and B remains.
func TestScenario(t *testing.T) {
	for _, control := range []string{ControlUDP, ControlTCP} {
		t.Run(control, func(t *testing.T) {
			nw := newNetwork(t, control)
			ctx := nw.ctx

			a := nw.node("A")
			require.NoError(t, a.Join(ctx))
			require.NoError(t, a.Share(ctx, "doc.txt", writeTemp(t, "doc.txt", "the quick brown fox")))

			b := nw.node("B")
			require.NoError(t, b.Join(ctx))

			addrA := protocol.PeerAddr{IP: "127.0.0.1", Port: a.TransferPort()}
			addrB := protocol.PeerAddr{IP: "127.0.0.1", Port: b.TransferPort()}

			peers, err := b.Locate(ctx, "doc.txt")
			require.NoError(t, err)
			require.Equal(t, []protocol.PeerAddr{addrA}, peers)

			path, err := b.Download(ctx, peers[0], "doc.txt")
			require.NoError(t, err)
			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "the quick brown fox", string(got))

			peers, err = b.Locate(ctx, "doc.txt")
			require.NoError(t, err)
			assert.Equal(t, []protocol.PeerAddr{addrA, addrB}, peers)

			require.NoError(t, a.Leave(ctx))
			peers, err = b.Locate(ctx, "doc.txt")
			require.NoError(t, err)
			assert.Equal(t, []protocol.PeerAddr{addrB}, peers)

			// B now serves the file it downloaded.
			c := nw.node("C")
			require.NoError(t, c.Join(ctx))
			path, err = c.Download(ctx, peers[0], "doc.txt")
			require.NoError(t, err)
			got, err = os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "the quick brown fox", string(got))
		})
	}
}

func TestNodeJoinAnnouncesLocalFiles(t *testing.T) {
	nw := newNetwork(t, ControlUDP)

	a := nw.node("A")
	require.NoError(t, a.AddLocal("one.txt", writeTemp(t, "one.txt", "1")))
	require.NoError(t, a.AddLocal("two.txt", writeTemp(t, "two.txt", "2")))
	require.NoError(t, a.Join(nw.ctx))

	files, ok := nw.tracker.Registry().Files("A")
	require.True(t, ok)
	assert.Equal(t, []string{"one.txt", "two.txt"}, files)
}

func TestNodeShareMissingFile(t *testing.T) {
	nw := newNetwork(t, ControlUDP)
	a := nw.node("A")
	require.NoError(t, a.Join(nw.ctx))

	err := a.Share(nw.ctx, "nope.txt", filepath.Join(t.TempDir(), "nope.txt"))
	assert.ErrorIs(t, err, ErrLocalFileMissing)

	err = a.Share(nw.ctx, "dir", t.TempDir())
	assert.ErrorIs(t, err, ErrLocalFileMissing)

	err = a.AddLocal("nope.txt", filepath.Join(t.TempDir(), "nope.txt"))
	assert.ErrorIs(t, err, ErrLocalFileMissing)
}

func TestNodeShareRollsBackWhenNotJoined(t *testing.T) {
	nw := newNetwork(t, ControlUDP)
	a := nw.node("A")

	err := a.Share(nw.ctx, "doc.txt", writeTemp(t, "doc.txt", "x"))
	assert.ErrorIs(t, err, registry.ErrPeerNotFound)

	_, ok := a.shares.Lookup("doc.txt")
	assert.False(t, ok, "rejected share should not be served")
}

func TestNodeShareRollbackKeepsPreviousPath(t *testing.T) {
	nw := newNetwork(t, ControlUDP)
	a := nw.node("A")

	first := writeTemp(t, "doc.txt", "v1")
	require.NoError(t, a.AddLocal("doc.txt", first))

	err := a.Share(nw.ctx, "doc.txt", writeTemp(t, "doc.txt", "v2"))
	require.ErrorIs(t, err, registry.ErrPeerNotFound)

	path, ok := a.shares.Lookup("doc.txt")
	require.True(t, ok)
	assert.Equal(t, first, path)
}

func TestNodeDownloadNotShared(t *testing.T) {
	nw := newNetwork(t, ControlUDP)
	a := nw.node("A")
	require.NoError(t, a.Join(nw.ctx))
	b := nw.node("B")
	require.NoError(t, b.Join(nw.ctx))

	_, err := b.Download(nw.ctx, protocol.PeerAddr{IP: "127.0.0.1", Port: a.TransferPort()}, "ghost.txt")
	assert.ErrorIs(t, err, transfer.ErrRemoteFileNotFound)

	files, ok := nw.tracker.Registry().Files("B")
	require.True(t, ok)
	assert.Empty(t, files, "failed download must not be reported")
}

func TestNodeDownloadRejectsBadNames(t *testing.T) {
	nw := newNetwork(t, ControlUDP)
	b := nw.node("B")

	for _, name := range []string{"", ".", ".."} {
		_, err := b.Download(nw.ctx, protocol.PeerAddr{IP: "127.0.0.1", Port: 1}, name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestNodeDownloadStripsDirectories(t *testing.T) {
	nw := newNetwork(t, ControlUDP)

	a := nw.node("A")
	require.NoError(t, a.AddLocal("../../etc/passwd", writeTemp(t, "passwd", "not really")))
	require.NoError(t, a.Join(nw.ctx))

	b := nw.node("B")
	require.NoError(t, b.Join(nw.ctx))

	path, err := b.Download(nw.ctx, protocol.PeerAddr{IP: "127.0.0.1", Port: a.TransferPort()}, "../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(b.config.DownloadDir, "etc", "passwd"), path)
}

func TestNodeDownloadKeepsSameBaseNamesApart(t *testing.T) {
	nw := newNetwork(t, ControlUDP)

	a := nw.node("A")
	require.NoError(t, a.AddLocal("x/doc.txt", writeTemp(t, "doc.txt", "CONTENT-X")))
	require.NoError(t, a.AddLocal("y/doc.txt", writeTemp(t, "doc.txt", "CONTENT-Y")))
	require.NoError(t, a.Join(nw.ctx))
	addrA := protocol.PeerAddr{IP: "127.0.0.1", Port: a.TransferPort()}

	b := nw.node("B")
	require.NoError(t, b.Join(nw.ctx))
	_, err := b.Download(nw.ctx, addrA, "x/doc.txt")
	require.NoError(t, err)
	_, err = b.Download(nw.ctx, addrA, "y/doc.txt")
	require.NoError(t, err)

	c := nw.node("C")
	require.NoError(t, c.Join(nw.ctx))
	addrB := protocol.PeerAddr{IP: "127.0.0.1", Port: b.TransferPort()}
	for name, want := range map[string]string{"x/doc.txt": "CONTENT-X", "y/doc.txt": "CONTENT-Y"} {
		path, err := c.Download(nw.ctx, addrB, name)
		require.NoError(t, err)
		got, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, want, string(got), "content of %s served by B", name)
	}
}

func TestNodeDownloadRefusesTakenDestination(t *testing.T) {
	nw := newNetwork(t, ControlUDP)

	a := nw.node("A")
	require.NoError(t, a.AddLocal("x/doc.txt", writeTemp(t, "doc.txt", "first")))
	require.NoError(t, a.AddLocal("x//doc.txt", writeTemp(t, "doc.txt", "second")))
	require.NoError(t, a.Join(nw.ctx))
	addrA := protocol.PeerAddr{IP: "127.0.0.1", Port: a.TransferPort()}

	b := nw.node("B")
	require.NoError(t, b.Join(nw.ctx))
	path, err := b.Download(nw.ctx, addrA, "x/doc.txt")
	require.NoError(t, err)

	_, err = b.Download(nw.ctx, addrA, "x//doc.txt")
	assert.ErrorIs(t, err, ErrDestinationTaken)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	_, err = b.Download(nw.ctx, addrA, "x/doc.txt")
	assert.NoError(t, err, "downloading the same name again is allowed")

	files, ok := nw.tracker.Registry().Files("B")
	require.True(t, ok)
	assert.Equal(t, []string{"x/doc.txt"}, files)
}
