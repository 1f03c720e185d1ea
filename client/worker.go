package client

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"blockswarm/wire"
)

// --------------------------------------------------------------------------------------------- //

// workerDialTimeout bounds how long a worker waits to establish its
// server or peer connection.
const workerDialTimeout = 5 * time.Second

// --------------------------------------------------------------------------------------------- //

/*
runWorker drives one of the Dc parallel block workers (§4.3). It owns
one socket to the server, requests blocks idx, idx+Dc, idx+2*Dc, ...,
inserting each into blocks, and switches to a trusted peer on a TOKEN
reply, continuing to pull its striped indices there until the peer
ends the stream (§9's "keep pulling from peer" mandate).

Parameters:
  - serverAddr: host:port of the main server.
  - fileID: the file being downloaded.
  - workerIndex: this worker's starting index (0..Dc-1).
  - dc: Dc, used to compute the stride.
  - blocks: the shared BlockMap to insert into.

Returns:
  - error: the reason this worker stopped (for the retry loop's
    aggregated diagnostics); a clean end-of-file is not an error.
*/
func runWorker(serverAddr, fileID string, workerIndex, dc int, blocks *BlockMap) error {
	conn, err := net.DialTimeout("tcp", serverAddr, workerDialTimeout)
	if err != nil {
		return fmt.Errorf("worker %d: dialing server: %w", workerIndex, err)
	}
	defer conn.Close()

	f := wire.NewFramer(conn)
	idx := workerIndex

	for {
		next, stop, err := pullOne(f, fileID, idx, blocks)
		if err != nil {
			return fmt.Errorf("worker %d: %w", workerIndex, err)
		}

		if stop {
			return nil
		}

		if next.switchToPeer {
			log.Printf("[INFO]\tworker %d: switching to peer %s:%d\n", workerIndex, next.peerHost, next.peerPort)

			err := runPeerWorker(next.peerHost, next.peerPort, next.tokenID, fileID, idx, dc, blocks)
			if err != nil {
				return fmt.Errorf("worker %d: %w", workerIndex, err)
			}

			return nil
		}

		idx += dc
	}
}

// --------------------------------------------------------------------------------------------- //

// pullResult carries either "advance and keep pulling from the main
// server" or "switch to this peer for the rest of this worker's run".
type pullResult struct {
	switchToPeer bool
	peerHost     string
	peerPort     int
	tokenID      string
}

// --------------------------------------------------------------------------------------------- //

func pullOne(f *wire.Framer, fileID string, idx int, blocks *BlockMap) (pullResult, bool, error) {
	err := f.WriteLine(fmt.Sprintf("%s %s %d", wire.VerbDownload, fileID, idx))
	if err != nil {
		return pullResult{}, false, err
	}

	line, err := f.ReadLine()
	if err != nil {
		return pullResult{}, false, err
	}

	cmd := wire.ParseCommand(line)

	switch {
	case line == wire.ReplySending:
		frame, err := f.ReadFrame()
		if err != nil {
			return pullResult{}, false, err
		}

		if len(frame) == 0 {
			return pullResult{}, true, nil
		}

		blocks.Put(idx, frame)

		return pullResult{}, false, nil

	case cmd.Verb == wire.ReplyToken:
		if len(cmd.Args) != 3 {
			return pullResult{}, true, nil
		}

		port, err := strconv.Atoi(cmd.Args[2])
		if err != nil {
			return pullResult{}, true, nil
		}

		return pullResult{switchToPeer: true, tokenID: cmd.Args[0], peerHost: cmd.Args[1], peerPort: port}, false, nil

	default:
		if strings.HasPrefix(line, "ERROR:") {
			return pullResult{}, true, nil
		}

		return pullResult{}, true, nil
	}
}

// --------------------------------------------------------------------------------------------- //

/*
runPeerWorker continues a worker's striped pull against a trusted
peer using the token already obtained, requesting idx, idx+dc, ... via
DOWNLOAD_TOKEN until the peer ends the stream (zero-length frame) or
errors (§4.1, §9).
*/
func runPeerWorker(host string, port int, tokenID, fileID string, idx, dc int, blocks *BlockMap) error {
	addr := fmt.Sprintf("%s:%d", host, port)

	conn, err := net.DialTimeout("tcp", addr, workerDialTimeout)
	if err != nil {
		return fmt.Errorf("dialing peer %s: %w", addr, err)
	}
	defer conn.Close()

	f := wire.NewFramer(conn)

	for {
		err := f.WriteLine(fmt.Sprintf("%s %s %s %d", wire.VerbDownloadToken, tokenID, fileID, idx))
		if err != nil {
			return fmt.Errorf("requesting block %d from peer: %w", idx, err)
		}

		line, err := f.ReadLine()
		if err != nil {
			return fmt.Errorf("reading peer reply for block %d: %w", idx, err)
		}

		if line != wire.ReplySending {
			// INVALID_TOKEN or an ERROR: line both stop this worker (§7).
			return nil
		}

		frame, err := f.ReadFrame()
		if err != nil {
			return fmt.Errorf("reading peer block %d: %w", idx, err)
		}

		if len(frame) == 0 {
			return nil
		}

		blocks.Put(idx, frame)
		idx += dc
	}
}

// --------------------------------------------------------------------------------------------- //
