package workcopy

import (
	"os"
	"path/filepath"

	"repocore"
)

// undoEntry is one recorded prior-state snapshot for a path: its content
// (nil if exists was false, meaning the path didn't exist before this
// session touched it), permission bits, and existence flag.
type undoEntry struct {
	path     string
	content  []byte
	isExe    bool
	isLink   bool
	exists   bool
}

// UndoSession brackets one reversible command. Only one level is
// maintained at a time: Begin clears whatever a prior session left behind,
// the same way a collector discards a stale recorded-intent list before
// starting a fresh sweep.
type UndoSession struct {
	c        *Checkout
	entries  []undoEntry
	seen     map[string]bool
	vfiles   map[string]*VFile // VFILE snapshot at Begin, for restore
	redoable []undoEntry       // populated by Undo, consumed by Redo
	active   bool
}

// Begin starts an undo session, clearing any prior log and capturing the
// current VFILE table.
func (c *Checkout) Begin() *UndoSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := make(map[string]*VFile, len(c.files))
	for k, v := range c.files {
		cp := *v
		snap[k] = &cp
	}
	u := &UndoSession{c: c, seen: make(map[string]bool), vfiles: snap, active: true}
	c.undo = u
	return u
}

// Save records path's current on-disk state before the caller overwrites
// it, per-path, the first time in this session only.
func (u *UndoSession) Save(path string) error {
	if !u.active {
		return repocore.NewError("workcopy.Save", repocore.KindCorrupt, errNotActive{})
	}
	if u.seen[path] {
		return nil
	}
	u.seen[path] = true

	full := filepath.Join(u.c.root, path)
	info, err := os.Lstat(full)
	if os.IsNotExist(err) {
		u.entries = append(u.entries, undoEntry{path: path, exists: false})
		return nil
	}
	if err != nil {
		return repocore.NewError("workcopy.Save", repocore.KindIO, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(full)
		if err != nil {
			return repocore.NewError("workcopy.Save", repocore.KindIO, err)
		}
		u.entries = append(u.entries, undoEntry{path: path, content: []byte(target), isLink: true, exists: true})
		return nil
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return repocore.NewError("workcopy.Save", repocore.KindIO, err)
	}
	u.entries = append(u.entries, undoEntry{
		path: path, content: data, isExe: info.Mode()&0o111 != 0, exists: true,
	})
	return nil
}

// Finish closes the session, leaving its log in place for Undo/Redo.
func (u *UndoSession) Finish() {
	u.active = false
}

// restore writes every entry's prior state back to disk, in forward
// recorded order.
func restore(root string, entries []undoEntry) error {
	for _, e := range entries {
		full := filepath.Join(root, e.path)
		if !e.exists {
			_ = os.Remove(full)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return repocore.NewError("workcopy.restore", repocore.KindIO, err)
		}
		if e.isLink {
			_ = os.Remove(full)
			if err := os.Symlink(string(e.content), full); err != nil {
				return repocore.NewError("workcopy.restore", repocore.KindIO, err)
			}
			continue
		}
		mode := os.FileMode(0o644)
		if e.isExe {
			mode = 0o755
		}
		if err := os.WriteFile(full, e.content, mode); err != nil {
			return repocore.NewError("workcopy.restore", repocore.KindIO, err)
		}
	}
	return nil
}

// snapshotCurrent captures the live on-disk state of every path this
// session touched, for Redo to replay after an Undo.
func (u *UndoSession) snapshotCurrent() ([]undoEntry, error) {
	out := make([]undoEntry, 0, len(u.entries))
	for _, e := range u.entries {
		full := filepath.Join(u.c.root, e.path)
		info, err := os.Lstat(full)
		if os.IsNotExist(err) {
			out = append(out, undoEntry{path: e.path, exists: false})
			continue
		}
		if err != nil {
			return nil, repocore.NewError("workcopy.snapshotCurrent", repocore.KindIO, err)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(full)
			if err != nil {
				return nil, repocore.NewError("workcopy.snapshotCurrent", repocore.KindIO, err)
			}
			out = append(out, undoEntry{path: e.path, content: []byte(target), isLink: true, exists: true})
			continue
		}
		data, err := os.ReadFile(full)
		if err != nil {
			return nil, repocore.NewError("workcopy.snapshotCurrent", repocore.KindIO, err)
		}
		out = append(out, undoEntry{path: e.path, content: data, isExe: info.Mode()&0o111 != 0, exists: true})
	}
	return out, nil
}

// Undo restores every recorded path to its pre-session content, and
// restores the VFILE table captured at Begin: undo(op(state)) == state.
func (u *UndoSession) Undo() error {
	redo, err := u.snapshotCurrent()
	if err != nil {
		return err
	}
	if err := restore(u.c.root, u.entries); err != nil {
		return err
	}
	u.redoable = redo

	u.c.mu.Lock()
	u.c.files = u.vfiles
	u.c.mu.Unlock()
	return nil
}

// Redo replays the session's changes again after an Undo:
// redo(undo(op(state))) == op(state).
func (u *UndoSession) Redo() error {
	if u.redoable == nil {
		return repocore.NewError("workcopy.Redo", repocore.KindCorrupt, errNothingToRedo{})
	}
	if err := restore(u.c.root, u.redoable); err != nil {
		return err
	}
	u.redoable = nil
	return nil
}

// Rollback runs the restore pass automatically, for a fatal error during a
// session. It does not require Finish to have been called.
func (u *UndoSession) Rollback() error {
	if err := restore(u.c.root, u.entries); err != nil {
		return err
	}
	u.c.mu.Lock()
	u.c.files = u.vfiles
	u.c.undo = nil
	u.c.mu.Unlock()
	return nil
}

type errNotActive struct{}

func (errNotActive) Error() string { return "undo session is not active" }

type errNothingToRedo struct{}

func (errNothingToRedo) Error() string { return "nothing to redo" }
