package server

import (
	"math/rand"
	"sync"
)

// --------------------------------------------------------------------------------------------- //

// TrustedPeer is a client that has previously completed an
// MD5-verified download of a given file id and is willing to re-serve
// its blocks (§3, GLOSSARY). Duplicates are acceptable.
type TrustedPeer struct {
	Host string
	Port int
}

// --------------------------------------------------------------------------------------------- //

// peerRegistry is the trusted-peers-by-file index: a concurrent map
// whose per-entry list is mutated under a lock, tolerating additions
// during iteration (§9's "Peer registration concurrency").
type peerRegistry struct {
	mu     sync.RWMutex
	byFile map[string][]TrustedPeer
}

// --------------------------------------------------------------------------------------------- //

func newPeerRegistry() *peerRegistry {
	return &peerRegistry{byFile: make(map[string][]TrustedPeer)}
}

// --------------------------------------------------------------------------------------------- //

// register adds peer as trusted for fileID. Duplicates are allowed
// (§3).
func (r *peerRegistry) register(fileID string, peer TrustedPeer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byFile[fileID] = append(r.byFile[fileID], peer)
}

// --------------------------------------------------------------------------------------------- //

/*
snapshot returns a randomized copy of the peers registered for fileID,
so a long redirect probe over one candidate never blocks a concurrent
register (§9).
*/
func (r *peerRegistry) snapshot(fileID string) []TrustedPeer {
	r.mu.RLock()
	peers := append([]TrustedPeer(nil), r.byFile[fileID]...)
	r.mu.RUnlock()

	rand.Shuffle(len(peers), func(i, j int) {
		peers[i], peers[j] = peers[j], peers[i]
	})

	return peers
}

// --------------------------------------------------------------------------------------------- //

// has reports whether fileID has any registered trusted peer.
func (r *peerRegistry) has(fileID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.byFile[fileID]) > 0
}

// --------------------------------------------------------------------------------------------- //
