package client

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"net"
	"testing"

	"blockswarm/wire"
)

// --------------------------------------------------------------------------------------------- //

func TestBlockMapAssembleOrdersByKey(t *testing.T) {
	m := NewBlockMap()
	m.Put(2, []byte("c"))
	m.Put(0, []byte("a"))
	m.Put(1, []byte("b"))

	if got := string(m.Assemble()); got != "abc" {
		t.Fatalf("got %q, want abc", got)
	}

	if m.Len() != 3 {
		t.Fatalf("got len %d, want 3", m.Len())
	}
}

// --------------------------------------------------------------------------------------------- //

// stubServer serves LIST_FILES, DOWNLOAD (striped across Dc=2), and
// MD5, matching spec.md's "small file, no chaos" scenario: 250 bytes,
// B=100, Dc=2 -> three SENDING frames of 100, 100, 50.
func stubServer(t *testing.T, data []byte, fileID, md5Hex string, blockSize int) (string, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	blockCount := (len(data) + blockSize - 1) / blockSize

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}

			go serveStubConn(conn, data, fileID, md5Hex, blockSize, blockCount)
		}
	}()

	return ln.Addr().String(), func() { ln.Close() }
}

// --------------------------------------------------------------------------------------------- //

func serveStubConn(conn net.Conn, data []byte, fileID, md5Hex string, blockSize, blockCount int) {
	defer conn.Close()

	f := wire.NewFramer(conn)

	for {
		line, err := f.ReadLine()
		if err != nil {
			return
		}

		cmd := wire.ParseCommand(line)

		switch cmd.Verb {
		case wire.VerbListFiles:
			f.WriteLine(wire.FileListLine("movie.bin", fileID))
			f.WriteLine(wire.ReplyEndOfList)

		case wire.VerbDownload:
			idx := atoiSafe(cmd.Args[1])

			if idx >= blockCount {
				f.WriteLine(wire.ReplySending)
				f.WriteFrame(nil)
				continue
			}

			start := idx * blockSize
			end := start + blockSize
			if end > len(data) {
				end = len(data)
			}

			f.WriteLine(wire.ReplySending)
			f.WriteFrame(data[start:end])

		case wire.VerbMD5:
			if cmd.Args[1] == md5Hex {
				f.WriteLine(wire.ReplyCorrect)
			} else {
				f.WriteLine(wire.ReplyWrong)
			}

		default:
			f.WriteLine(wire.ReplyUnknownVerb)
		}
	}
}

// --------------------------------------------------------------------------------------------- //

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}

	return n
}

// --------------------------------------------------------------------------------------------- //

func TestRunDownloadsSmallFileNoChaos(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 250)
	sum := md5.Sum(data)
	wantMD5 := hex.EncodeToString(sum[:])

	addr, closeFn := stubServer(t, data, "fileid", wantMD5, 100)
	defer closeFn()

	host, port := splitAddr(t, addr)

	c := &Client{
		ServerHost: host,
		ServerPort: port,
		Dc:         2,
		B:          100,
		Pc:         0,
		Host:       "127.0.0.1",
		Port:       9090,
		FilesDir:   t.TempDir(),
	}

	peer, err := c.Run("fileid")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if peer == nil {
		t.Fatalf("expected a trusted-peer server to be returned")
	}
}

// --------------------------------------------------------------------------------------------- //

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("splitting %q: %v", addr, err)
	}

	port := atoiSafe(portStr)

	return host, port
}

// --------------------------------------------------------------------------------------------- //
