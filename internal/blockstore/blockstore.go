// Package blockstore implements C1: physical read/write/delete of a
// single block on a local directory, and free/used space accounting
// for that directory.
package blockstore

import (
	"fmt"
	"os"

	"blocknode/internal/errs"
	"blocknode/internal/paths"
)

// Store writes blocks as <BlockDir>/block_<id>.dat files.
type Store struct {
	paths paths.Paths
}

// New returns a Store rooted at p.BlockDir.
func New(p paths.Paths) *Store {
	return &Store{paths: p}
}

// Write stores data as the block file for blockID, creating the
// block directory if necessary.
func (s *Store) Write(blockID int, data []byte) error {
	if err := os.MkdirAll(s.paths.BlockDir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir block dir: %v", errs.ErrBlockIOLocal, err)
	}
	if err := os.WriteFile(s.paths.BlockFile(blockID), data, 0o644); err != nil {
		return fmt.Errorf("%w: write block %d: %v", errs.ErrBlockIOLocal, blockID, err)
	}
	return nil
}

// Read returns the bytes stored for blockID.
func (s *Store) Read(blockID int) ([]byte, error) {
	data, err := os.ReadFile(s.paths.BlockFile(blockID))
	if err != nil {
		return nil, fmt.Errorf("%w: read block %d: %v", errs.ErrBlockIOLocal, blockID, err)
	}
	return data, nil
}

// Delete removes the block file for blockID. Deleting a block that
// does not exist on disk is not an error (it may never have been
// written locally, e.g. this node only ever held the metadata slot).
func (s *Store) Delete(blockID int) error {
	err := os.Remove(s.paths.BlockFile(blockID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: delete block %d: %v", errs.ErrBlockIOLocal, blockID, err)
	}
	return nil
}

// Has reports whether blockID is stored locally.
func (s *Store) Has(blockID int) bool {
	_, err := os.Stat(s.paths.BlockFile(blockID))
	return err == nil
}

// UsedMB returns the number of entries in the block directory: each
// stored block counts as one whole MB whatever its actual size, the
// same way a whole slot is reserved regardless of last-chunk size.
func (s *Store) UsedMB() (int, error) {
	entries, err := os.ReadDir(s.paths.BlockDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: list block dir: %v", errs.ErrBlockIOLocal, err)
	}
	return len(entries), nil
}
