// Package server implements the admission/dispatch path of spec.md
// §4.2: a bounded pool of concurrent command handlers, a chaos task
// that simulates transient disconnection, and peer redirection when
// the pool is saturated.
package server

import (
	"fmt"
	"log"
	"net"
	"sync/atomic"
	"time"

	"blockswarm/catalog"
)

// --------------------------------------------------------------------------------------------- //

// Server holds everything the three §4.2 responsibilities share: the
// file catalog, the bounded handler pool's connection set, and the
// trusted-peers-by-file registry the overflow path and MD5 command
// both touch.
type Server struct {
	Catalog *catalog.Catalog
	Cs      int           // max concurrent normal handlers
	P       float64       // chaos per-tick disconnect probability
	T       time.Duration // chaos tick interval

	conns    *connSet
	registry *peerRegistry

	// sem bounds the number of normal handlers in flight to Cs. A slot
	// is acquired before a connection joins conns and released when its
	// handler exits, so ActiveHandlerCount() never exceeds Cs even
	// across the overflow path's delayed admission (§8.5).
	sem chan struct{}

	chaosClosed int64
}

// --------------------------------------------------------------------------------------------- //

/*
New builds a Server over an already-scanned catalog.

Parameters:
  - cat: the file catalog to serve LIST_FILES/DOWNLOAD against.
  - cs: the bounded pool size (Cs, §6).
  - p: per-tick chaos disconnect probability (P, §6).
  - chaosInterval: chaos tick period (T, §6), in seconds.
*/
func New(cat *catalog.Catalog, cs int, p float64, chaosInterval int) *Server {
	return &Server{
		Catalog:  cat,
		Cs:       cs,
		P:        p,
		T:        time.Duration(chaosInterval) * time.Second,
		conns:    newConnSet(),
		registry: newPeerRegistry(),
		sem:      make(chan struct{}, cs),
	}
}

// --------------------------------------------------------------------------------------------- //

/*
Serve accepts connections on ln indefinitely, applying the admission
policy of §4.2 to each: dispatch directly while the pool has room,
otherwise take the overflow path. Runs the chaos task as a companion
goroutine and stops it when Serve returns.

Parameters:
  - ln: a listener already bound to the server's port.

Returns:
  - error: non-nil once the listener itself fails.
*/
func (s *Server) Serve(ln net.Listener) error {
	stop := make(chan struct{})
	defer close(stop)
	defer func() {
		log.Printf("[INFO]\tserver: shutting down, chaos closed %d connections total\n", s.ChaosClosedCount())
	}()

	go s.runChaos(stop)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("server: accept: %w", err)
		}

		select {
		case s.sem <- struct{}{}:
			s.enqueue(conn, "")
		default:
			log.Printf("[INFO]\tserver: pool saturated (%d/%d), taking overflow path for %s\n",
				s.conns.count(), s.Cs, conn.RemoteAddr())

			go s.overflow(conn)
		}
	}
}

// --------------------------------------------------------------------------------------------- //

// enqueue registers conn in the ActiveConnectionSet and dispatches a
// normal handler for it, optionally seeded with a line the overflow
// path already consumed (§4.2, §9). The caller must already hold a
// sem slot for conn.
func (s *Server) enqueue(conn net.Conn, firstCommand string) {
	s.conns.add(conn)

	go s.handle(conn, firstCommand)
}

// --------------------------------------------------------------------------------------------- //

// ChaosClosedCount reports how many connections the chaos task has
// closed so far, for observability (§4.2 "closed counts may be
// recorded").
func (s *Server) ChaosClosedCount() int64 {
	return atomic.LoadInt64(&s.chaosClosed)
}

// --------------------------------------------------------------------------------------------- //

// ActiveHandlerCount reports the current number of normal handlers in
// flight, for the invariant in spec.md §8 item 5 (<= Cs at all times).
func (s *Server) ActiveHandlerCount() int {
	return s.conns.count()
}

// --------------------------------------------------------------------------------------------- //
