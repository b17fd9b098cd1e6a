// Package registry holds the tracker's view of the network: which peers are
// joined, where their transfer listeners are, and which files they offer.
package registry

import (
	"errors"
	"sort"
	"sync"

	"github.com/rudransh-shrivastava/peer-share/internal/protocol"
)

var ErrPeerNotFound = errors.New("peer not found")

type peerRecord struct {
	addr  protocol.PeerAddr
	files map[string]struct{}
}

// Registry is safe for concurrent use. Every operation holds mu for its whole
// duration, which keeps peers and files consistent with each other:
// f is in peers[p].files exactly when p is in files[f], and no entry of files
// is ever an empty set.
type Registry struct {
	mu    sync.Mutex
	peers map[string]*peerRecord
	files map[string]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		peers: make(map[string]*peerRecord),
		files: make(map[string]map[string]struct{}),
	}
}

// Join registers peerID at addr offering files. A previous record under the
// same id is dropped first, so a rejoin replaces rather than merges.
func (r *Registry) Join(peerID string, addr protocol.PeerAddr, files []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(peerID)

	rec := &peerRecord{
		addr:  addr,
		files: make(map[string]struct{}, len(files)),
	}
	r.peers[peerID] = rec
	for _, f := range files {
		r.addLocked(peerID, rec, f)
	}
}

// AnnounceFile adds name to the files peerID offers.
func (r *Registry) AnnounceFile(peerID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.peers[peerID]
	if !ok {
		return ErrPeerNotFound
	}
	r.addLocked(peerID, rec, name)
	return nil
}

// RecordDownload marks that peerID finished downloading name and now serves it.
func (r *Registry) RecordDownload(peerID, name string) error {
	return r.AnnounceFile(peerID, name)
}

// LocatePeers returns the transfer address of every peer offering name,
// ordered by peer id. Unknown names yield an empty slice.
func (r *Registry) LocatePeers(name string) []protocol.PeerAddr {
	r.mu.Lock()
	defer r.mu.Unlock()

	holders := r.files[name]
	ids := make([]string, 0, len(holders))
	for id := range holders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	addrs := make([]protocol.PeerAddr, 0, len(ids))
	for _, id := range ids {
		addrs = append(addrs, r.peers[id].addr)
	}
	return addrs
}

// Leave forgets peerID. Unknown ids are ignored.
func (r *Registry) Leave(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(peerID)
}

// Files returns the sorted names peerID offers.
func (r *Registry) Files(peerID string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.peers[peerID]
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(rec.files))
	for f := range rec.files {
		names = append(names, f)
	}
	sort.Strings(names)
	return names, true
}

// Len reports how many peers are joined and how many distinct files are indexed.
func (r *Registry) Len() (peers, files int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.peers), len(r.files)
}

func (r *Registry) addLocked(peerID string, rec *peerRecord, name string) {
	rec.files[name] = struct{}{}

	holders, ok := r.files[name]
	if !ok {
		holders = make(map[string]struct{})
		r.files[name] = holders
	}
	holders[peerID] = struct{}{}
}

func (r *Registry) removeLocked(peerID string) {
	rec, ok := r.peers[peerID]
	if !ok {
		return
	}

	for name := range rec.files {
		holders := r.files[name]
		delete(holders, peerID)
		if len(holders) == 0 {
			delete(r.files, name)
		}
	}
	delete(r.peers, peerID)
}
