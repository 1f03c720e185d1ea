package server

import (
	"log"
	"net"
	"strconv"
	"strings"

	"blockswarm/wire"
)

// --------------------------------------------------------------------------------------------- //

/*
handle runs one normal handler's command loop (§4.2) until the peer
closes the stream or sends CLOSE_CONNECTION. It is the sole owner of
conn for its lifetime, removes conn from the server's
ActiveConnectionSet on exit however it ends, and releases the sem slot
its admission consumed so a waiting overflow connection (or the next
Accept) can take its place.

Parameters:
  - conn: the client socket; already registered in s.conns by the caller.
  - firstCommand: a line already consumed by the overflow path before
    handing the connection to a normal handler, or "" if none was
    consumed (§4.2, §9's handoff boundary).
*/
func (s *Server) handle(conn net.Conn, firstCommand string) {
	defer func() {
		s.conns.remove(conn)
		conn.Close()
		<-s.sem
	}()

	f := wire.NewFramer(conn)

	if firstCommand != "" {
		if !s.dispatch(f, conn, firstCommand) {
			return
		}
	}

	for {
		line, err := f.ReadLine()
		if err != nil {
			log.Printf("[INFO]\tserver: connection from %s ended: %v\n", conn.RemoteAddr(), err)
			return
		}

		if !s.dispatch(f, conn, line) {
			return
		}
	}
}

// --------------------------------------------------------------------------------------------- //

/*
dispatch interprets one command line and writes its reply. Returns
false only when the connection should be closed (CLOSE_CONNECTION or a
blank line signalling end-of-stream); every other outcome, including a
protocol or resource error, keeps the connection open per §7.
*/
func (s *Server) dispatch(f *wire.Framer, conn net.Conn, line string) bool {
	cmd := wire.ParseCommand(line)

	switch cmd.Verb {
	case wire.VerbListFiles:
		s.handleListFiles(f)
	case wire.VerbDownload:
		s.handleDownload(f, cmd)
	case wire.VerbMD5:
		s.handleMD5(f, conn, cmd)
	case wire.VerbCloseConn:
		return false
	case "":
		return false
	default:
		f.WriteLine(wire.ReplyUnknownVerb)
	}

	return true
}

// --------------------------------------------------------------------------------------------- //

func (s *Server) handleListFiles(f *wire.Framer) {
	for _, sf := range s.Catalog.List() {
		f.WriteLine(wire.FileListLine(sf.Name, sf.ID))
	}

	f.WriteLine(wire.ReplyEndOfList)
}

// --------------------------------------------------------------------------------------------- //

func (s *Server) handleDownload(f *wire.Framer, cmd wire.Command) {
	fileID, idx, ok := parseDownloadArgs(f, cmd)
	if !ok {
		return
	}

	if _, known := s.Catalog.Lookup(fileID); !known {
		f.WriteLine(wire.ErrorLine("unknown file id %s", fileID))
		return
	}

	block, err := s.Catalog.GetBlock(fileID, idx)
	if err != nil {
		f.WriteLine(wire.ErrorLine("reading block: %v", err))
		return
	}

	f.WriteLine(wire.ReplySending)
	f.WriteFrame(block)
}

// --------------------------------------------------------------------------------------------- //

func parseDownloadArgs(f *wire.Framer, cmd wire.Command) (string, int, bool) {
	if len(cmd.Args) != 2 {
		f.WriteLine(wire.ErrorLine("DOWNLOAD requires exactly 2 arguments"))
		return "", 0, false
	}

	idx, err := strconv.Atoi(cmd.Args[1])
	if err != nil {
		f.WriteLine(wire.ErrorLine("invalid block index %q", cmd.Args[1]))
		return "", 0, false
	}

	return cmd.Args[0], idx, true
}

// --------------------------------------------------------------------------------------------- //

func (s *Server) handleMD5(f *wire.Framer, conn net.Conn, cmd wire.Command) {
	if len(cmd.Args) != 3 {
		f.WriteLine(wire.ErrorLine("MD5 requires exactly 3 arguments"))
		return
	}

	fileID, md5Hex, portStr := cmd.Args[0], cmd.Args[1], cmd.Args[2]

	sf, known := s.Catalog.Lookup(fileID)
	if !known {
		f.WriteLine(wire.ErrorLine("unknown file id %s", fileID))
		return
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		f.WriteLine(wire.ErrorLine("invalid listen port %q", portStr))
		return
	}

	if !strings.EqualFold(sf.MD5, md5Hex) {
		log.Printf("[INFO]\tserver: MD5 mismatch from %s for %s\n", conn.RemoteAddr(), fileID)
		f.WriteLine(wire.ReplyWrong)

		return
	}

	host := hostOf(conn)
	s.registry.register(fileID, TrustedPeer{Host: host, Port: port})

	log.Printf("[INFO]\tserver: registered trusted peer %s:%d for %s\n", host, port, fileID)
	f.WriteLine(wire.ReplyCorrect)
}

// --------------------------------------------------------------------------------------------- //

func hostOf(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}

	return host
}

// --------------------------------------------------------------------------------------------- //
