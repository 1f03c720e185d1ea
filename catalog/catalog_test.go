package catalog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// --------------------------------------------------------------------------------------------- //

func writeTempFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()

	if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
		t.Fatalf("writing fixture %s: %v", name, err)
	}
}

// --------------------------------------------------------------------------------------------- //

func TestScanAndGetBlock(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "small.bin", bytes.Repeat([]byte("x"), 250))

	c, err := Scan(dir, 100)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	files := c.List()
	if len(files) != 1 {
		t.Fatalf("got %d files, want 1", len(files))
	}

	sf := files[0]
	if c.BlockCount(sf.ID) != 3 {
		t.Fatalf("got block count %d, want 3", c.BlockCount(sf.ID))
	}

	b0, err := c.GetBlock(sf.ID, 0)
	if err != nil || len(b0) != 100 {
		t.Fatalf("block 0: len=%d err=%v", len(b0), err)
	}

	b2, err := c.GetBlock(sf.ID, 2)
	if err != nil || len(b2) != 50 {
		t.Fatalf("block 2 (tail): len=%d err=%v", len(b2), err)
	}

	b3, err := c.GetBlock(sf.ID, 3)
	if err != nil || len(b3) != 0 {
		t.Fatalf("out-of-range block: len=%d err=%v", len(b3), err)
	}
}

// --------------------------------------------------------------------------------------------- //

func TestGetBlockUnknownFileID(t *testing.T) {
	dir := t.TempDir()

	c, err := Scan(dir, 100)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	b, err := c.GetBlock("doesnotexist", 0)
	if err != nil || len(b) != 0 {
		t.Fatalf("got len=%d err=%v, want empty/nil error", len(b), err)
	}
}

// --------------------------------------------------------------------------------------------- //

func TestSaveAndMD5OfSaved(t *testing.T) {
	dir := t.TempDir()
	data := []byte("reassembled file contents")

	path, err := SaveFile(dir, "abc123", data)
	if err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	if filepath.Base(path) != OutputName("abc123") {
		t.Fatalf("got path %s", path)
	}

	md5Hex, err := MD5OfSaved(dir, "abc123")
	if err != nil {
		t.Fatalf("MD5OfSaved: %v", err)
	}

	if md5Hex == "" {
		t.Fatalf("empty md5")
	}

	block, err := ServeSavedBlock(dir, "abc123", 0, 10)
	if err != nil {
		t.Fatalf("ServeSavedBlock: %v", err)
	}

	if string(block) != "reassemble" {
		t.Fatalf("got block %q", block)
	}
}

// --------------------------------------------------------------------------------------------- //

func TestLookupMiss(t *testing.T) {
	dir := t.TempDir()

	c, err := Scan(dir, 100)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if _, ok := c.Lookup("nope"); ok {
		t.Fatalf("expected miss")
	}
}

// --------------------------------------------------------------------------------------------- //
