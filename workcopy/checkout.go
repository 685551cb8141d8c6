package workcopy

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"repocore"
	"repocore/graph"
	"repocore/manifest"
	"repocore/store"
)

// Checkout is one open working copy: a directory on disk projected from a
// base check-in (vid), its VFILE table, and the undo/stash bookkeeping
// that makes mutating commands reversible.
//
// Checkout satisfies resolve.Checkout (CurrentRid) without resolve
// importing this package, avoiding an import cycle.
type Checkout struct {
	mu sync.Mutex

	store *store.Store
	idx   *manifest.Index
	root  string

	baseVid store.Rid
	files   map[string]*VFile

	undo   *UndoSession
	stash  *Manager
	graph  *graph.Engine

	// binaryGlob holds the configured user-supplied binary-file patterns,
	// consulted by Merge in addition to the NUL-byte heuristic.
	binaryGlob []string
}

// SetBinaryGlob configures the glob patterns Merge treats as binary
// regardless of content, e.g. from config.Config.BinaryGlob.
func (c *Checkout) SetBinaryGlob(globs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.binaryGlob = globs
}

// Open projects vid's file state into the working copy at root: every file
// the check-in names is written to disk, overwriting whatever is there, and
// the VFILE table is populated.
func Open(s *store.Store, idx *manifest.Index, root string, vid store.Rid) (*Checkout, error) {
	c := &Checkout{
		store: s, idx: idx, root: root, baseVid: vid,
		graph: graph.New(idx),
	}
	c.stash = newManager(s, idx)
	files := newVFiles(idx, vid)
	for _, vf := range files {
		if err := c.materialize(vf); err != nil {
			return nil, err
		}
	}
	c.files = files
	return c, nil
}

// materialize writes vf's expected content to disk at its permission bits,
// creating parent directories as needed.
func (c *Checkout) materialize(vf *VFile) error {
	full := filepath.Join(c.root, vf.Pathname)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return repocore.NewError("workcopy.materialize", repocore.KindIO, err)
	}
	content, err := c.store.Read(vf.Rid)
	if err != nil {
		return err
	}
	if vf.IsLink {
		target := string(content)
		_ = os.Remove(full)
		if err := os.Symlink(target, full); err != nil {
			return repocore.NewError("workcopy.materialize", repocore.KindIO, err)
		}
		return nil
	}
	mode := os.FileMode(0o644)
	if vf.IsExe {
		mode = 0o755
	}
	if err := os.WriteFile(full, content, mode); err != nil {
		return repocore.NewError("workcopy.materialize", repocore.KindIO, err)
	}
	return nil
}

// CurrentRid implements resolve.Checkout: "current" resolves to the base
// check-in this working copy was opened against.
func (c *Checkout) CurrentRid() (store.Rid, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseVid, c.baseVid != 0
}

// BaseVid returns the check-in this working copy is projected from.
func (c *Checkout) BaseVid() store.Rid {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baseVid
}

// CheckSignature refreshes Chnged/Deleted on every VFILE row by comparing
// on-disk state against expected content.
func (c *Checkout) CheckSignature() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return checkSignature(c.root, c.store, c.files)
}

// Status returns a copy of the current VFILE table, after refreshing
// signatures.
func (c *Checkout) Status() ([]VFile, error) {
	if err := c.CheckSignature(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]VFile, 0, len(c.files))
	for _, vf := range c.files {
		out = append(out, *vf)
	}
	return out, nil
}

// IsDirty reports whether any tracked path is changed or deleted relative
// to its expected content. Callers use this to enforce the
// WorkingCopyDirty refusal before a mutating operation.
func (c *Checkout) IsDirty() (bool, error) {
	st, err := c.Status()
	if err != nil {
		return false, err
	}
	for _, vf := range st {
		if vf.Chnged || vf.Deleted {
			return true, nil
		}
	}
	return false, nil
}

// RequireClean returns KindWorkingCopyDirty if the working copy has
// uncommitted changes.
func (c *Checkout) RequireClean(op string) error {
	dirty, err := c.IsDirty()
	if err != nil {
		return err
	}
	if dirty {
		return repocore.NewError(op, repocore.KindWorkingCopyDirty, fmt.Errorf("working copy has uncommitted changes"))
	}
	return nil
}

// Root returns the working copy's directory.
func (c *Checkout) Root() string { return c.root }

// Files returns the live VFILE table (no signature refresh), for callers
// that have already checked it this command (e.g. commit, after Status).
func (c *Checkout) Files() map[string]*VFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*VFile, len(c.files))
	for k, v := range c.files {
		cp := *v
		out[k] = &cp
	}
	return out
}

// Revert restores the named paths to their base check-in content. An
// empty paths list reverts every tracked path.
func (c *Checkout) Revert(paths []string) error {
	if err := c.CheckSignature(); err != nil {
		return err
	}
	c.mu.Lock()
	targets := paths
	if len(targets) == 0 {
		for p := range c.files {
			targets = append(targets, p)
		}
	}
	c.mu.Unlock()

	u := c.Begin()
	for _, p := range targets {
		c.mu.Lock()
		vf, ok := c.files[p]
		c.mu.Unlock()
		if !ok {
			continue
		}
		if err := u.Save(p); err != nil {
			return err
		}
		if err := c.materialize(vf); err != nil {
			return err
		}
	}
	u.Finish()
	return nil
}

// Switch re-projects the working copy onto a new base check-in newVid,
// replacing every tracked file's on-disk content and VFILE row. Committing
// or switching a checkout always clears the undo log.
func (c *Checkout) Switch(newVid store.Rid) error {
	if err := c.RequireClean("workcopy.Switch"); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	newFiles := newVFiles(c.idx, newVid)
	for path, old := range c.files {
		if _, ok := newFiles[path]; !ok {
			full := filepath.Join(c.root, old.Pathname)
			_ = os.Remove(full)
		}
	}
	for _, vf := range newFiles {
		if err := c.materialize(vf); err != nil {
			return err
		}
	}
	c.files = newFiles
	c.baseVid = newVid
	c.undo = nil
	return nil
}

// Undo restores this checkout's currently open undo session.
func (c *Checkout) Undo() error {
	c.mu.Lock()
	u := c.undo
	c.mu.Unlock()
	if u == nil {
		return repocore.NewError("workcopy.Undo", repocore.KindNotFound, errNotActive{})
	}
	return u.Undo()
}

// Redo replays whatever this checkout's undo session last undid.
func (c *Checkout) Redo() error {
	c.mu.Lock()
	u := c.undo
	c.mu.Unlock()
	if u == nil {
		return repocore.NewError("workcopy.Redo", repocore.KindNotFound, errNotActive{})
	}
	return u.Redo()
}
