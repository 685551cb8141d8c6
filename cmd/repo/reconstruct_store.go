package main

import (
	"os"

	"repocore"
	"repocore/store"
)

// newEmptyStore truncates any existing WAL at path and opens a fresh
// Store backed by it, for reconstruct's "rebuild from loose files" flow;
// unlike every other command's openSession, this one must not replay
// whatever the file already held.
func newEmptyStore(path string) (*store.Store, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, repocore.NewError("reconstruct", repocore.KindIO, err)
	}
	return store.Open(store.Options{WALPath: path, SizeRatio: 0.5})
}
