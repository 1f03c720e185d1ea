// Package trustedpeer implements the in-process block-server a
// downloading client starts on its own listen port once its download
// has verified (§4.4): it issues short-lived tokens to TOKEN_REQUEST,
// denying a configurable fraction of them, and honors DOWNLOAD_TOKEN
// by streaming one block from its own saved copy of the file.
package trustedpeer

import (
	"fmt"
	"log"
	"math/rand"
	"net"

	"blockswarm/catalog"
	"blockswarm/wire"
)

// --------------------------------------------------------------------------------------------- //

// Peer is the trusted-peer server. It re-serves any file id whose
// verified copy is saved in FilesDir as output_<fileId>.bin, the way §9
// treats "whatever local object it verified against the advertised md5".
type Peer struct {
	Host      string
	Port      int
	FilesDir  string
	BlockSize int64
	Pc        float64 // token-deny probability

	tokens *Table
}

// --------------------------------------------------------------------------------------------- //

/*
New creates a trusted-peer server advertised at host:port, serving
verified files out of filesDir with the given block size and deny
probability.
*/
func New(host string, port int, filesDir string, blockSize int64, pc float64) *Peer {
	return &Peer{
		Host:      host,
		Port:      port,
		FilesDir:  filesDir,
		BlockSize: blockSize,
		Pc:        pc,
		tokens:    NewTable(),
	}
}

// --------------------------------------------------------------------------------------------- //

/*
Serve accepts connections on ln indefinitely, one goroutine per
connection, until ln is closed. Starts the token sweeper as a
companion goroutine and stops it when Serve returns.

Parameters:
  - ln: a listener already bound to the peer's advertised port.

Returns:
  - error: non-nil only once the listener itself fails.
*/
func (p *Peer) Serve(ln net.Listener) error {
	go p.tokens.Sweep()
	defer p.tokens.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("trustedpeer: accept: %w", err)
		}

		go p.handle(conn)
	}
}

// --------------------------------------------------------------------------------------------- //

func (p *Peer) handle(conn net.Conn) {
	defer conn.Close()

	f := wire.NewFramer(conn)

	for {
		line, err := f.ReadLine()
		if err != nil {
			return
		}

		cmd := wire.ParseCommand(line)

		switch cmd.Verb {
		case wire.VerbTokenRequest:
			if !p.handleTokenRequest(f, cmd) {
				return
			}
		case wire.VerbDownloadToken:
			p.handleDownloadToken(f, cmd)
		case wire.VerbCloseConn:
			return
		case "":
			return
		default:
			f.WriteLine(wire.ReplyUnknownVerb)
		}
	}
}

// --------------------------------------------------------------------------------------------- //

/*
handleTokenRequest answers one TOKEN_REQUEST. On denial it writes the
reply and reports false so the caller closes the connection
immediately, per §4.4's "reply ... and close" — a denied requester has
nothing further to ask this peer.

Returns:
  - bool: false if the connection should be closed now.
*/
func (p *Peer) handleTokenRequest(f *wire.Framer, cmd wire.Command) bool {
	if len(cmd.Args) != 1 {
		f.WriteLine(wire.ErrorLine("TOKEN_REQUEST requires exactly 1 argument"))
		return true
	}

	fileID := cmd.Args[0]

	if rand.Float64() < p.Pc {
		log.Printf("[INFO]\ttrustedpeer: denying token request for %s\n", fileID)
		f.WriteLine(wire.ReplyDenied)

		return false
	}

	tokenID := p.tokens.Mint(fileID)

	log.Printf("[INFO]\ttrustedpeer: minted token %s for %s\n", tokenID, fileID)
	f.WriteLine(wire.TokenLine(tokenID, p.Host, p.Port))

	return true
}

// --------------------------------------------------------------------------------------------- //

func (p *Peer) handleDownloadToken(f *wire.Framer, cmd wire.Command) {
	if len(cmd.Args) != 3 {
		f.WriteLine(wire.ErrorLine("DOWNLOAD_TOKEN requires exactly 3 arguments"))
		return
	}

	tokenID, fileID := cmd.Args[0], cmd.Args[1]

	idx, err := parseIndex(cmd.Args[2])
	if err != nil {
		f.WriteLine(wire.ErrorLine("invalid block index %q", cmd.Args[2]))
		return
	}

	if !p.tokens.Check(tokenID, fileID) {
		f.WriteLine(wire.ReplyInvalidToken)
		return
	}

	block, err := catalog.ServeSavedBlock(p.FilesDir, fileID, idx, p.BlockSize)
	if err != nil {
		f.WriteLine(wire.ErrorLine("reading block: %v", err))
		return
	}

	f.WriteLine(wire.ReplySending)
	f.WriteFrame(block)
}

// --------------------------------------------------------------------------------------------- //

func parseIndex(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)

	return n, err
}

// --------------------------------------------------------------------------------------------- //
