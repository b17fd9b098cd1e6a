package registry

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
)

func addr(port int) protocol.PeerAddr {
	return protocol.PeerAddr{IP: "127.0.0.1", Port: port}
}

// checkIntegrity verifies both directions of the peer/file index and that no
// file maps to an empty set.
func checkIntegrity(t *testing.T, r *Registry) {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, rec := range r.peers {
		for f := range rec.files {
			_, ok := r.files[f][id]
			require.True(t, ok, "peer %s offers %s but is missing from the index", id, f)
		}
	}
	for f, holders := range r.files {
		require.NotEmpty(t, holders, "file %s maps to an empty set", f)
		for id := range holders {
			rec, ok := r.peers[id]
			require.True(t, ok, "index lists unknown peer %s for %s", id, f)
			_, ok = rec.files[f]
			require.True(t, ok, "index lists %s under %s but the peer does not offer it", id, f)
		}
	}
}

func TestJoinIndexesFiles(t *testing.T) {
	r := New()
	r.Join("A", addr(5001), []string{"a.txt", "b.txt"})

	assert.Equal(t, []protocol.PeerAddr{addr(5001)}, r.LocatePeers("a.txt"))
	assert.Equal(t, []protocol.PeerAddr{addr(5001)}, r.LocatePeers("b.txt"))
	checkIntegrity(t, r)
}

func TestRejoinReplaces(t *testing.T) {
	r := New()
	r.Join("A", addr(5001), []string{"old.txt", "shared.txt"})
	r.Join("A", addr(6001), []string{"new.txt", "shared.txt"})

	assert.Empty(t, r.LocatePeers("old.txt"))
	assert.Equal(t, []protocol.PeerAddr{addr(6001)}, r.LocatePeers("new.txt"))
	assert.Equal(t, []protocol.PeerAddr{addr(6001)}, r.LocatePeers("shared.txt"))

	files, ok := r.Files("A")
	require.True(t, ok)
	assert.Equal(t, []string{"new.txt", "shared.txt"}, files)

	peers, indexed := r.Len()
	assert.Equal(t, 1, peers)
	assert.Equal(t, 2, indexed)
	checkIntegrity(t, r)
}

func TestAnnounceIsIdempotent(t *testing.T) {
	r := New()
	r.Join("A", addr(5001), nil)

	require.NoError(t, r.AnnounceFile("A", "doc.txt"))
	require.NoError(t, r.AnnounceFile("A", "doc.txt"))

	assert.Len(t, r.LocatePeers("doc.txt"), 1)
	files, _ := r.Files("A")
	assert.Equal(t, []string{"doc.txt"}, files)
	checkIntegrity(t, r)
}

func TestUnknownPeerFailsClosed(t *testing.T) {
	r := New()
	r.Join("A", addr(5001), []string{"doc.txt"})

	assert.ErrorIs(t, r.AnnounceFile("ghost", "doc.txt"), ErrPeerNotFound)
	assert.ErrorIs(t, r.RecordDownload("ghost", "other.txt"), ErrPeerNotFound)

	assert.Equal(t, []protocol.PeerAddr{addr(5001)}, r.LocatePeers("doc.txt"))
	assert.Empty(t, r.LocatePeers("other.txt"))
	_, ok := r.Files("ghost")
	assert.False(t, ok)

	peers, files := r.Len()
	assert.Equal(t, 1, peers)
	assert.Equal(t, 1, files)
	checkIntegrity(t, r)
}

func TestLeavePrunes(t *testing.T) {
	r := New()
	r.Join("A", addr(5001), []string{"solo.txt", "both.txt"})
	r.Join("B", addr(5002), []string{"both.txt"})

	r.Leave("A")

	assert.Empty(t, r.LocatePeers("solo.txt"))
	assert.Equal(t, []protocol.PeerAddr{addr(5002)}, r.LocatePeers("both.txt"))

	r.mu.Lock()
	_, indexed := r.files["solo.txt"]
	r.mu.Unlock()
	assert.False(t, indexed, "sole holder left, file should be gone from the index")

	r.Leave("A")
	r.Leave("never-joined")
	checkIntegrity(t, r)
}

func TestLocatePeersOrderedByID(t *testing.T) {
	r := New()
	r.Join("C", addr(5003), []string{"f"})
	r.Join("A", addr(5001), []string{"f"})
	r.Join("B", addr(5002), []string{"f"})

	assert.Equal(t, []protocol.PeerAddr{addr(5001), addr(5002), addr(5003)}, r.LocatePeers("f"))
	assert.NotNil(t, r.LocatePeers("missing"))
}

func TestRandomSequencesKeepIntegrity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := New()

	ids := []string{"p0", "p1", "p2", "p3"}
	names := []string{"f0", "f1", "f2", "f3", "f4"}

	for i := 0; i < 2000; i++ {
		id := ids[rng.Intn(len(ids))]
		name := names[rng.Intn(len(names))]

		switch rng.Intn(4) {
		case 0:
			var files []string
			for _, n := range names {
				if rng.Intn(3) == 0 {
					files = append(files, n)
				}
			}
			r.Join(id, addr(5000+rng.Intn(100)), files)
		case 1:
			_ = r.AnnounceFile(id, name)
		case 2:
			_ = r.RecordDownload(id, name)
		case 3:
			r.Leave(id)
		}

		if i%50 == 0 {
			checkIntegrity(t, r)
		}
	}
	checkIntegrity(t, r)
}

func TestConcurrentOperations(t *testing.T) {
	r := New()

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := fmt.Sprintf("peer-%d", w%4)
			for i := 0; i < 200; i++ {
				name := fmt.Sprintf("file-%d", i%7)
				switch i % 5 {
				case 0:
					r.Join(id, addr(5000+w), []string{name})
				case 1, 2:
					_ = r.AnnounceFile(id, name)
				case 3:
					_ = r.LocatePeers(name)
				case 4:
					r.Leave(id)
				}
			}
		}(w)
	}
	wg.Wait()

	checkIntegrity(t, r)
}
