package client

import (
	"sort"
	"sync"
)

// --------------------------------------------------------------------------------------------- //

// BlockMap is the per-download-attempt shared map of blockIndex ->
// bytes (§3): concurrently written by the Dc workers, read-only once
// they've all terminated. Keys are unique because worker indices
// never collide (§4.3's correctness notes).
type BlockMap struct {
	mu     sync.Mutex
	blocks map[int][]byte
}

// --------------------------------------------------------------------------------------------- //

// NewBlockMap creates an empty BlockMap for one download attempt.
func NewBlockMap() *BlockMap {
	return &BlockMap{blocks: make(map[int][]byte)}
}

// --------------------------------------------------------------------------------------------- //

// Put inserts the block at index i. Safe for concurrent use across
// workers.
func (m *BlockMap) Put(i int, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks[i] = data
}

// --------------------------------------------------------------------------------------------- //

// Len reports how many blocks have been inserted so far, for progress
// reporting.
func (m *BlockMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.blocks)
}

// --------------------------------------------------------------------------------------------- //

/*
Assemble concatenates every inserted block in ascending key order. No
ordering is required during insertion; only key order matters (§3, §9).
Called once all Dc workers have terminated.
*/
func (m *BlockMap) Assemble() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	indices := make([]int, 0, len(m.blocks))
	for i := range m.blocks {
		indices = append(indices, i)
	}

	sort.Ints(indices)

	var out []byte
	for _, i := range indices {
		out = append(out, m.blocks[i]...)
	}

	return out
}

// --------------------------------------------------------------------------------------------- //
