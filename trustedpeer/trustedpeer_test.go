package trustedpeer

import (
	"net"
	"testing"
	"time"

	"blockswarm/catalog"
	"blockswarm/wire"
)

// --------------------------------------------------------------------------------------------- //

func startPeer(t *testing.T, pc float64) (*Peer, net.Listener, string) {
	t.Helper()

	dir := t.TempDir()

	_, err := catalog.SaveFile(dir, "fileid", []byte("0123456789abcdefghij"))
	if err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	port := ln.Addr().(*net.TCPAddr).Port
	p := New("127.0.0.1", port, dir, 10, pc)

	go p.Serve(ln)

	return p, ln, ln.Addr().String()
}

// --------------------------------------------------------------------------------------------- //

func TestTokenRequestThenDownloadToken(t *testing.T) {
	_, ln, addr := startPeer(t, 0.0)
	defer ln.Close()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	f := wire.NewFramer(conn)

	f.WriteLine(wire.VerbTokenRequest + " fileid")

	line, err := f.ReadLine()
	if err != nil {
		t.Fatalf("ReadLine: %v", err)
	}

	cmd := wire.ParseCommand(line)
	if cmd.Verb != wire.ReplyToken {
		t.Fatalf("got reply %q, want TOKEN", line)
	}

	tokenID := cmd.Args[0]

	f.WriteLine(wire.VerbDownloadToken + " " + tokenID + " fileid 0")

	sendLine, err := f.ReadLine()
	if err != nil || sendLine != wire.ReplySending {
		t.Fatalf("got %q, %v", sendLine, err)
	}

	block, err := f.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	if string(block) != "0123456789" {
		t.Fatalf("got block %q", block)
	}
}

// --------------------------------------------------------------------------------------------- //

func TestTokenRequestAlwaysDenied(t *testing.T) {
	_, ln, addr := startPeer(t, 1.0)
	defer ln.Close()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	f := wire.NewFramer(conn)
	f.WriteLine(wire.VerbTokenRequest + " fileid")

	line, err := f.ReadLine()
	if err != nil || line != wire.ReplyDenied {
		t.Fatalf("got %q, %v, want denial", line, err)
	}

	// the peer must close its side after a denial; a further read
	// should see EOF rather than hang waiting for another command.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	if _, err := f.ReadLine(); err == nil {
		t.Fatalf("expected connection to be closed after denial")
	}
}

// --------------------------------------------------------------------------------------------- //

func TestDownloadTokenRejectsMismatchedFile(t *testing.T) {
	_, ln, addr := startPeer(t, 0.0)
	defer ln.Close()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	f := wire.NewFramer(conn)
	f.WriteLine(wire.VerbTokenRequest + " fileid")

	line, _ := f.ReadLine()
	tokenID := wire.ParseCommand(line).Args[0]

	f.WriteLine(wire.VerbDownloadToken + " " + tokenID + " otherfile 0")

	reply, err := f.ReadLine()
	if err != nil || reply != wire.ReplyInvalidToken {
		t.Fatalf("got %q, %v, want INVALID_TOKEN", reply, err)
	}
}

// --------------------------------------------------------------------------------------------- //

func TestTableExpiry(t *testing.T) {
	tb := NewTable()
	id := tb.Mint("fileid")

	if !tb.Check(id, "fileid") {
		t.Fatalf("expected fresh token to check out")
	}

	tb.mu.Lock()
	entry := tb.tokens[id]
	entry.expiresAt = time.Now().Add(-time.Second)
	tb.tokens[id] = entry
	tb.mu.Unlock()

	if tb.Check(id, "fileid") {
		t.Fatalf("expected expired token to fail Check")
	}
}

// --------------------------------------------------------------------------------------------- //

func TestTableSweepEvicts(t *testing.T) {
	tb := NewTable()
	id := tb.Mint("fileid")

	tb.mu.Lock()
	entry := tb.tokens[id]
	entry.expiresAt = time.Now().Add(-time.Second)
	tb.tokens[id] = entry
	tb.mu.Unlock()

	tb.evictExpired()

	tb.mu.Lock()
	_, ok := tb.tokens[id]
	tb.mu.Unlock()

	if ok {
		t.Fatalf("expected evictExpired to remove expired token")
	}
}

// --------------------------------------------------------------------------------------------- //
