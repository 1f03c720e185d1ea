package server

import (
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"blockswarm/wire"
)

// --------------------------------------------------------------------------------------------- //

// probeTimeout bounds how long the overflow path waits on any one
// candidate peer before moving to the next (§4.2's "short-lived TCP
// connection").
const probeTimeout = 3 * time.Second

// --------------------------------------------------------------------------------------------- //

/*
overflow runs the overflow path taken when the handler pool is
saturated (§4.2, GLOSSARY). It reads exactly one command line from
conn; if it is a DOWNLOAD for a file id with registered trusted peers,
it probes candidates in randomized order for a token and forwards the
first TOKEN line back to conn, closing the control side. On any other
outcome — not a DOWNLOAD, no peers registered, or every candidate
denies/fails — it waits for a pool slot to free (a handler finishing or
chaos closing one) and only then falls through to a normal handler with
the consumed line as that handler's first command (§9's handoff
boundary); this keeps ActiveHandlerCount bounded by Cs at every instant
(§8.5), since a connection admitted this way still consumes a sem slot.
*/
func (s *Server) overflow(conn net.Conn) {
	f := wire.NewFramer(conn)

	line, err := f.ReadLine()
	if err != nil {
		conn.Close()
		return
	}

	cmd := wire.ParseCommand(line)

	if cmd.Verb == wire.VerbDownload && len(cmd.Args) == 2 {
		fileID := cmd.Args[0]

		if tokenLine, ok := s.findPeerToken(fileID); ok {
			f.WriteLine(tokenLine)
			conn.Close()

			return
		}
	}

	log.Printf("[INFO]\tserver: overflow path found no peer, waiting for a pool slot for %s\n", conn.RemoteAddr())

	s.sem <- struct{}{}
	s.enqueue(conn, line)
}

// --------------------------------------------------------------------------------------------- //

/*
findPeerToken tries every trusted peer registered for fileID, in
randomized order, until one yields a TOKEN reply.

Returns:
  - string: the exact "TOKEN ..." line to forward, if any.
  - bool: false if no candidate (including an empty set) yields one.
*/
func (s *Server) findPeerToken(fileID string) (string, bool) {
	for _, peer := range s.registry.snapshot(fileID) {
		line, ok := probePeer(peer, fileID)
		if ok {
			return line, true
		}
	}

	return "", false
}

// --------------------------------------------------------------------------------------------- //

func probePeer(peer TrustedPeer, fileID string) (string, bool) {
	addr := fmt.Sprintf("%s:%d", peer.Host, peer.Port)

	conn, err := net.DialTimeout("tcp", addr, probeTimeout)
	if err != nil {
		log.Printf("[FAIL]\tserver: probing peer %s failed: %v\n", addr, err)
		return "", false
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(probeTimeout))

	f := wire.NewFramer(conn)

	if err := f.WriteLine(wire.VerbTokenRequest + " " + fileID); err != nil {
		return "", false
	}

	reply, err := f.ReadLine()
	if err != nil {
		log.Printf("[FAIL]\tserver: peer %s gave no reply: %v\n", addr, err)
		return "", false
	}

	if strings.HasPrefix(reply, wire.ReplyToken+" ") {
		return reply, true
	}

	log.Printf("[INFO]\tserver: peer %s declined: %s\n", addr, reply)

	return "", false
}

// --------------------------------------------------------------------------------------------- //
