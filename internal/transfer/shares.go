package transfer

import (
	"path/filepath"
	"sort"
	"sync"
)

// ShareTable resolves a shared file name to a local path.
type ShareTable interface {
	Lookup(name string) (string, bool)
}

// Shares is the peer-local table of files this peer serves.
type Shares struct {
	mu    sync.RWMutex
	paths map[string]string
}

func NewShares() *Shares {
	return &Shares{paths: make(map[string]string)}
}

// Add maps name to path and returns the previous path, if any.
func (s *Shares) Add(name, path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.paths[name]
	s.paths[name] = path
	return prev, ok
}

func (s *Shares) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.paths, name)
}

func (s *Shares) Lookup(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, ok := s.paths[name]
	return path, ok
}

// NameOf returns the name under which path is shared, if any.
func (s *Shares) NameOf(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path = filepath.Clean(path)
	for name, p := range s.paths {
		if filepath.Clean(p) == path {
			return name, true
		}
	}
	return "", false
}

func (s *Shares) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.paths))
	for name := range s.paths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
