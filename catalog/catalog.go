// Package catalog implements the block-file access surface spec.md §4.5
// treats as an external collaborator: scanning a directory into
// (name, sha256Id, md5) records, random-access block reads, saving a
// downloaded file under a deterministic name, and recomputing its MD5.
// Hash algorithms are used only as opaque byte->hex functions.
package catalog

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// --------------------------------------------------------------------------------------------- //

// ServerFile is one immutable catalog entry (§3).
type ServerFile struct {
	Name string
	ID   string // sha256 hex
	MD5  string // md5 hex
}

// --------------------------------------------------------------------------------------------- //

// Catalog is the read-only, post-scan view of a files directory plus
// the block-size it serves under.
type Catalog struct {
	dir       string
	blockSize int64

	mu    sync.RWMutex
	files []ServerFile
	byID  map[string]ServerFile
}

// --------------------------------------------------------------------------------------------- //

/*
Scan walks dir (non-recursively, skipping subdirectories) and computes each
file's sha256 id and md5. Partial failures (an unreadable file) are
collected and returned together rather than aborting the whole scan,
so one bad file doesn't hide the server's entire catalog.

Parameters:
  - dir: the files directory to scan.
  - blockSize: B, the fixed block size this catalog serves blocks as.

Returns:
  - *Catalog: populated and ready to serve, even if err is non-nil for
    some individual files.
  - error: non-nil (a *multierror.Error) if any file could not be hashed.
*/
func Scan(dir string, blockSize int64) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading directory %q: %w", dir, err)
	}

	c := &Catalog{
		dir:       dir,
		blockSize: blockSize,
		byID:      make(map[string]ServerFile),
	}

	var errs *multierror.Error

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		sf, err := hashFile(dir, entry.Name())
		if err != nil {
			errs = multierror.Append(errs, err)
			log.Printf("[FAIL]\tcatalog: skipping %s: %v\n", entry.Name(), err)

			continue
		}

		c.files = append(c.files, sf)
		c.byID[sf.ID] = sf

		log.Printf("[INFO]\tcatalog: indexed %s id=%s md5=%s\n", sf.Name, sf.ID, sf.MD5)
	}

	return c, errs.ErrorOrNil()
}

// --------------------------------------------------------------------------------------------- //

func hashFile(dir, name string) (ServerFile, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return ServerFile{}, fmt.Errorf("catalog: opening %s: %w", name, err)
	}
	defer f.Close()

	sha := sha256.New()
	md := md5.New()

	_, err = io.Copy(io.MultiWriter(sha, md), f)
	if err != nil {
		return ServerFile{}, fmt.Errorf("catalog: hashing %s: %w", name, err)
	}

	return ServerFile{
		Name: name,
		ID:   hex.EncodeToString(sha.Sum(nil)),
		MD5:  hex.EncodeToString(md.Sum(nil)),
	}, nil
}

// --------------------------------------------------------------------------------------------- //

/*
List returns a snapshot of every indexed file. Safe for concurrent use.
*/
func (c *Catalog) List() []ServerFile {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ServerFile, len(c.files))
	copy(out, c.files)

	return out
}

// --------------------------------------------------------------------------------------------- //

/*
Lookup finds a catalog entry by file id.

Returns:
  - ServerFile: the matching entry.
  - bool: false if no file with that id is known.
*/
func (c *Catalog) Lookup(fileID string) (ServerFile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sf, ok := c.byID[fileID]

	return sf, ok
}

// --------------------------------------------------------------------------------------------- //

/*
BlockCount returns ceil(fileLen / B) for fileID, or 0 if unknown.
*/
func (c *Catalog) BlockCount(fileID string) int {
	sf, ok := c.Lookup(fileID)
	if !ok {
		return 0
	}

	info, err := os.Stat(filepath.Join(c.dir, sf.Name))
	if err != nil {
		return 0
	}

	return int((info.Size() + c.blockSize - 1) / c.blockSize)
}

// --------------------------------------------------------------------------------------------- //

/*
GetBlock returns the i-th B-sized slice of fileID: bytes
[i*B, min((i+1)*B, fileLen)). Returns an empty, non-nil slice for an
out-of-range index or unknown file id rather than an error, per §3.

Parameters:
  - fileID: sha256 hex id as returned by Scan.
  - i: zero-based block index.

Returns:
  - []byte: the block's bytes, possibly empty.
  - error: non-nil only on an I/O failure reading a block that should exist.
*/
func (c *Catalog) GetBlock(fileID string, i int) ([]byte, error) {
	sf, ok := c.Lookup(fileID)
	if !ok || i < 0 {
		return []byte{}, nil
	}

	return readBlock(filepath.Join(c.dir, sf.Name), i, c.blockSize)
}

// --------------------------------------------------------------------------------------------- //

func readBlock(path string, i int, blockSize int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return []byte{}, nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return []byte{}, nil
	}

	start := int64(i) * blockSize
	if start >= info.Size() {
		return []byte{}, nil
	}

	end := start + blockSize
	if end > info.Size() {
		end = info.Size()
	}

	buf := make([]byte, end-start)

	_, err = f.ReadAt(buf, start)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("catalog: reading block %d of %s: %w", i, path, err)
	}

	return buf, nil
}

// --------------------------------------------------------------------------------------------- //

/*
SaveFile writes data to a deterministic name under dir so an
in-process trusted-peer server can later re-serve it (§6): output_<fileID>.bin.

Parameters:
  - dir: the caller's own directory (a client's own filesDir).
  - fileID: the sha256 id the bytes were downloaded for.
  - data: the fully assembled file bytes.

Returns:
  - string: the path written.
  - error: non-nil on I/O failure.
*/
func SaveFile(dir, fileID string, data []byte) (string, error) {
	path := filepath.Join(dir, OutputName(fileID))

	err := os.WriteFile(path, data, 0644)
	if err != nil {
		return "", fmt.Errorf("catalog: saving %s: %w", path, err)
	}

	return path, nil
}

// --------------------------------------------------------------------------------------------- //

/*
OutputName is the deterministic per-client file name for a downloaded
file id, per §6's "output_<fileId>.<ext>" convention.
*/
func OutputName(fileID string) string {
	return fmt.Sprintf("output_%s.bin", fileID)
}

// --------------------------------------------------------------------------------------------- //

/*
MD5OfSaved recomputes the MD5 of a file already written under dir by
SaveFile, without trusting any value cached in memory.

Returns:
  - string: hex md5.
  - error: non-nil on I/O failure.
*/
func MD5OfSaved(dir, fileID string) (string, error) {
	f, err := os.Open(filepath.Join(dir, OutputName(fileID)))
	if err != nil {
		return "", fmt.Errorf("catalog: opening saved file for %s: %w", fileID, err)
	}
	defer f.Close()

	h := md5.New()

	_, err = io.Copy(h, f)
	if err != nil {
		return "", fmt.Errorf("catalog: hashing saved file for %s: %w", fileID, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// --------------------------------------------------------------------------------------------- //

/*
ServeSavedBlock reads the i-th block directly from a previously saved
output_<fileId>.bin, for the trusted-peer server re-serving from its
own verified copy (§4.4, §9's "peer reads from whatever local object
it verified against the advertised md5").
*/
func ServeSavedBlock(dir, fileID string, i int, blockSize int64) ([]byte, error) {
	if i < 0 {
		return []byte{}, nil
	}

	return readBlock(filepath.Join(dir, OutputName(fileID)), i, blockSize)
}

// --------------------------------------------------------------------------------------------- //
