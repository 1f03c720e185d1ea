package trustedpeer

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// --------------------------------------------------------------------------------------------- //

// TokenTTL is how long a minted token authorizes DOWNLOAD_TOKEN
// requests for its file id (§3, §4.4).
const TokenTTL = 240 * time.Second

// SweepInterval is how often expired tokens are evicted from the
// table (§3, §4.4).
const SweepInterval = 5 * time.Second

// --------------------------------------------------------------------------------------------- //

type tokenEntry struct {
	fileID    string
	expiresAt time.Time
}

// Table is the trusted-peer's token table: random id -> (fileId,
// expiresAt). A single token authorizes many DOWNLOAD_TOKEN requests
// for its file id until expiry (§3's "multi-use until expiry").
type Table struct {
	mu     sync.Mutex
	tokens map[string]tokenEntry

	stop chan struct{}
	once sync.Once
}

// --------------------------------------------------------------------------------------------- //

/*
NewTable creates an empty token table. Call Sweep in its own goroutine
to start the periodic eviction; call Close to stop it.
*/
func NewTable() *Table {
	return &Table{
		tokens: make(map[string]tokenEntry),
		stop:   make(chan struct{}),
	}
}

// --------------------------------------------------------------------------------------------- //

/*
Mint generates a fresh random 128-bit hex token id bound to fileID,
valid for TokenTTL.

Returns:
  - string: the new token id.
*/
func (tb *Table) Mint(fileID string) string {
	u := uuid.New()
	id := hex.EncodeToString(u[:])

	tb.mu.Lock()
	tb.tokens[id] = tokenEntry{fileID: fileID, expiresAt: time.Now().Add(TokenTTL)}
	tb.mu.Unlock()

	return id
}

// --------------------------------------------------------------------------------------------- //

/*
Check validates tokenID against fileID. A past expiresAt is treated as
missing even between sweeps (§9, clock-regression guard).

Returns:
  - bool: true if tokenID exists, matches fileID, and has not expired.
*/
func (tb *Table) Check(tokenID, fileID string) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	entry, ok := tb.tokens[tokenID]
	if !ok {
		return false
	}

	if time.Now().After(entry.expiresAt) {
		return false
	}

	return entry.fileID == fileID
}

// --------------------------------------------------------------------------------------------- //

/*
Sweep runs the periodic eviction loop every SweepInterval until Close
is called. Intended to run in its own goroutine.
*/
func (tb *Table) Sweep() {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tb.evictExpired()
		case <-tb.stop:
			return
		}
	}
}

// --------------------------------------------------------------------------------------------- //

func (tb *Table) evictExpired() {
	now := time.Now()

	tb.mu.Lock()
	defer tb.mu.Unlock()

	for id, entry := range tb.tokens {
		if now.After(entry.expiresAt) {
			delete(tb.tokens, id)
		}
	}
}

// --------------------------------------------------------------------------------------------- //

// Close stops the sweeper goroutine. Safe to call more than once.
func (tb *Table) Close() {
	tb.once.Do(func() {
		close(tb.stop)
	})
}

// --------------------------------------------------------------------------------------------- //
