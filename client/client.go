// Package client implements the downloading client's parallel
// block-fetch engine (§4.3): file selection, Dc parallel workers with
// round-robin striping and token failover, assembly, MD5 verification
// with automatic retry, and activation of the client's own
// trusted-peer server once verified.
package client

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/colorstring"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"blockswarm/catalog"
	"blockswarm/trustedpeer"
	"blockswarm/wire"
)

// --------------------------------------------------------------------------------------------- //

// maxAttempts bounds the retry loop so a systematically corrupt
// source (or a chaos setting of P=1 against a pathological T) cannot
// spin the client forever; spec.md's chaos-induced-retry scenario
// expects success within "a bounded number of attempts".
const maxAttempts = 50

// --------------------------------------------------------------------------------------------- //

// Client is one download run's configuration (§6).
type Client struct {
	ServerHost string
	ServerPort int
	Dc         int
	B          int64 // block size the trusted-peer server re-serves under
	Pc         float64
	Host       string // this client's own advertised trusted-peer host
	Port       int    // this client's own trusted-peer listen port
	FilesDir   string
}

// --------------------------------------------------------------------------------------------- //

func (c *Client) serverAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// --------------------------------------------------------------------------------------------- //

/*
Run executes the full §4.3 sequence for one file: selection, repeated
parallel-fetch attempts until MD5 verifies, then hands back a
trusted-peer server, not yet serving, for the caller to start.

Parameters:
  - fileID: a catalog file id, or the literal "random" to pick one
    uniformly from the server's LIST_FILES response.

Returns:
  - *trustedpeer.Peer: the activated trusted-peer server (§4.4); the
    caller is responsible for binding its listener and calling Serve.
  - error: non-nil only if file selection itself fails, every retry
    attempt is exhausted, or the verified file cannot be saved.
*/
func (c *Client) Run(fileID string) (*trustedpeer.Peer, error) {
	resolvedID, err := c.resolveFileID(fileID)
	if err != nil {
		return nil, err
	}

	colorstring.Println("[bold]blockswarm[reset]: downloading file [cyan]" + resolvedID + "[reset]")

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		data, err := c.fetchAttempt(resolvedID, attempt)
		if err != nil {
			log.Printf("[FAIL]\tclient: attempt %d failed: %v\n", attempt, err)
			continue
		}

		sum := md5Hex(data)

		ok, err := c.submitMD5(resolvedID, sum)
		if err != nil {
			log.Printf("[FAIL]\tclient: attempt %d MD5 submission failed: %v\n", attempt, err)
			continue
		}

		if !ok {
			colorstring.Println("[yellow]verification failed, retrying[reset]")
			continue
		}

		path, err := catalog.SaveFile(c.FilesDir, resolvedID, data)
		if err != nil {
			return nil, fmt.Errorf("client: saving verified file: %w", err)
		}

		colorstring.Println("[green]download complete and verified[reset]: " + path)

		peer := trustedpeer.New(c.Host, c.Port, c.FilesDir, c.B, c.Pc)

		return peer, nil
	}

	return nil, fmt.Errorf("client: giving up after %d attempts", maxAttempts)
}

// --------------------------------------------------------------------------------------------- //

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// --------------------------------------------------------------------------------------------- //

/*
resolveFileID contacts the server's LIST_FILES and either validates
fileID against the returned set or, for the literal "random", picks
one uniformly (§4.3 step 1).
*/
func (c *Client) resolveFileID(fileID string) (string, error) {
	conn, err := net.DialTimeout("tcp", c.serverAddr(), workerDialTimeout)
	if err != nil {
		return "", fmt.Errorf("client: dialing server for file list: %w", err)
	}
	defer conn.Close()

	f := wire.NewFramer(conn)

	if err := f.WriteLine(wire.VerbListFiles); err != nil {
		return "", fmt.Errorf("client: requesting file list: %w", err)
	}

	var ids []string

	for {
		line, err := f.ReadLine()
		if err != nil {
			return "", fmt.Errorf("client: reading file list: %w", err)
		}

		if line == wire.ReplyEndOfList {
			break
		}

		id, ok := wire.ParseFileListLine(line)
		if ok {
			ids = append(ids, id)
		}
	}

	if fileID != "random" {
		for _, id := range ids {
			if id == fileID {
				return fileID, nil
			}
		}

		return "", fmt.Errorf("client: file id %s is not in the server catalog", fileID)
	}

	if len(ids) == 0 {
		return "", fmt.Errorf("client: server catalog is empty")
	}

	return ids[rand.Intn(len(ids))], nil
}

// --------------------------------------------------------------------------------------------- //

/*
fetchAttempt runs one parallel-fetch attempt: Dc workers pulling
round-robin striped blocks, assembled once all have terminated (§4.3
step 2-3). Per-worker failures are collected rather than discarded, so
a failed attempt's log line explains every worker's stop reason.
*/
func (c *Client) fetchAttempt(fileID string, attempt int) ([]byte, error) {
	blocks := NewBlockMap()
	bar := newProgressBar(fmt.Sprintf("attempt %d", attempt))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs *multierror.Error

	stopProgress := make(chan struct{})
	go reportProgress(blocks, bar, stopProgress)

	for i := 0; i < c.Dc; i++ {
		wg.Add(1)

		go func(workerIndex int) {
			defer wg.Done()

			err := runWorker(c.serverAddr(), fileID, workerIndex, c.Dc, blocks)
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	close(stopProgress)
	bar.Finish()

	if errs.ErrorOrNil() != nil {
		log.Printf("[INFO]\tclient: attempt %d workers reported: %v\n", attempt, errs.ErrorOrNil())
	}

	return blocks.Assemble(), nil
}

// --------------------------------------------------------------------------------------------- //

func newProgressBar(description string) *progressbar.ProgressBar {
	width := 40

	if w, _, err := term.GetSize(0); err == nil && w > 20 {
		width = w - 20
	}

	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(width),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
}

// --------------------------------------------------------------------------------------------- //

func reportProgress(blocks *BlockMap, bar *progressbar.ProgressBar, stop <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	last := 0

	for {
		select {
		case <-ticker.C:
			n := blocks.Len()
			if n > last {
				bar.Add(n - last)
				last = n
			}

		case <-stop:
			return
		}
	}
}

// --------------------------------------------------------------------------------------------- //

/*
submitMD5 opens a fresh connection and submits MD5 <fileId> <md5>
<listenPort> per §4.3 step 3.

Returns:
  - bool: true on CORRECT, false on WRONG.
  - error: non-nil on transport failure or an unexpected reply.
*/
func (c *Client) submitMD5(fileID, md5Hex string) (bool, error) {
	conn, err := net.DialTimeout("tcp", c.serverAddr(), workerDialTimeout)
	if err != nil {
		return false, fmt.Errorf("client: dialing server for MD5: %w", err)
	}
	defer conn.Close()

	f := wire.NewFramer(conn)

	err = f.WriteLine(fmt.Sprintf("%s %s %s %d", wire.VerbMD5, fileID, md5Hex, c.Port))
	if err != nil {
		return false, fmt.Errorf("client: submitting MD5: %w", err)
	}

	line, err := f.ReadLine()
	if err != nil {
		return false, fmt.Errorf("client: reading MD5 reply: %w", err)
	}

	switch line {
	case wire.ReplyCorrect:
		return true, nil
	case wire.ReplyWrong:
		return false, nil
	default:
		return false, fmt.Errorf("client: unexpected MD5 reply %q", line)
	}
}
