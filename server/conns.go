package server

import (
	"math/rand"
	"net"
	"sync"
)

// --------------------------------------------------------------------------------------------- //

// connSet is the server's ActiveConnectionSet (§3, §4.2): every socket
// currently owned by a normal handler. Mutated on accept and on
// handler exit; sampled by the chaos task. One mutex guards it, and
// no handler holds it across I/O (§4.2's "MUST NOT hold shared locks
// across I/O").
type connSet struct {
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// --------------------------------------------------------------------------------------------- //

func newConnSet() *connSet {
	return &connSet{conns: make(map[net.Conn]struct{})}
}

// --------------------------------------------------------------------------------------------- //

func (s *connSet) add(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns[conn] = struct{}{}
}

// --------------------------------------------------------------------------------------------- //

func (s *connSet) remove(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, conn)
}

// --------------------------------------------------------------------------------------------- //

func (s *connSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conns)
}

// --------------------------------------------------------------------------------------------- //

/*
closeRandom picks one live connection uniformly at random and closes
it, retrying another candidate if the chosen one's close fails because
it was already gone, until one succeeds or the set is exhausted
(§4.2's chaos task robustness requirement).

Returns:
  - bool: true if a connection was closed.
*/
func (s *connSet) closeRandom() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		candidates = append(candidates, c)
	}

	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	for _, c := range candidates {
		if err := c.Close(); err == nil {
			delete(s.conns, c)
			return true
		}

		delete(s.conns, c)
	}

	return false
}

// --------------------------------------------------------------------------------------------- //
