package workcopy

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"repocore"
	"repocore/manifest"
	"repocore/merge"
	"repocore/store"
)

// StashFile is one per-path delta recorded in a stash entry.
type StashFile struct {
	Rid       store.Rid // the path's content rid in base_vid; zero for an added path
	IsAdded   bool
	IsRemoved bool
	IsExec    bool
	IsLink    bool
	Origname  string
	Newname   string
	Content   []byte // the stashed file's full content, for apply/pop
}

// StashEntry is a named collection of per-path deltas against a base
// check-in.
type StashEntry struct {
	StashID string
	BaseVid store.Rid
	Comment string
	Ctime   time.Time
	Files   []StashFile
}

// Manager holds every stash entry for one repository's working copies.
// It follows the same "named, listable, recoverable set of deferred
// changes" shape as a recorded-intent list, generalized from deferred
// deletes to deferred local edits.
type Manager struct {
	store   *store.Store
	idx     *manifest.Index
	entries map[string]*StashEntry
}

func newManager(s *store.Store, idx *manifest.Index) *Manager {
	return &Manager{store: s, idx: idx, entries: make(map[string]*StashEntry)}
}

// Stash returns this checkout's stash manager.
func (c *Checkout) Stash() *Manager { return c.stash }

// capture walks the checkout's tracked files plus any untracked new files
// the caller names, producing the StashFile list for a new entry.
func (c *Checkout) capture(extraPaths []string) ([]StashFile, error) {
	if err := c.CheckSignature(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var files []StashFile
	for path, vf := range c.files {
		if vf.Deleted {
			files = append(files, StashFile{Rid: vf.Rid, IsRemoved: true, Newname: path})
			continue
		}
		if !vf.Chnged {
			continue
		}
		full := filepath.Join(c.root, path)
		content, err := os.ReadFile(full)
		if err != nil {
			return nil, repocore.NewError("workcopy.capture", repocore.KindIO, err)
		}
		files = append(files, StashFile{
			Rid: vf.Rid, IsExec: vf.IsExe, IsLink: vf.IsLink, Newname: path, Content: content,
		})
	}
	for _, path := range extraPaths {
		if _, tracked := c.files[path]; tracked {
			continue
		}
		full := filepath.Join(c.root, path)
		content, err := os.ReadFile(full)
		if err != nil {
			return nil, repocore.NewError("workcopy.capture", repocore.KindIO, err)
		}
		info, err := os.Lstat(full)
		if err != nil {
			return nil, repocore.NewError("workcopy.capture", repocore.KindIO, err)
		}
		files = append(files, StashFile{
			IsAdded: true, IsExec: info.Mode()&0o111 != 0, Newname: path, Content: content,
		})
	}
	return files, nil
}

// Snapshot captures the working copy's current changes into a new stash
// entry without reverting them.
func (c *Checkout) Snapshot(comment string, extraPaths []string) (*StashEntry, error) {
	files, err := c.capture(extraPaths)
	if err != nil {
		return nil, err
	}
	e := &StashEntry{StashID: uuid.NewString(), BaseVid: c.baseVid, Comment: comment, Ctime: time.Now(), Files: files}
	c.stash.entries[e.StashID] = e
	return e, nil
}

// Save captures the working copy's current changes into a new stash entry
// and reverts the working copy to its base check-in's content.
func (c *Checkout) Save(comment string, extraPaths []string) (*StashEntry, error) {
	e, err := c.Snapshot(comment, extraPaths)
	if err != nil {
		return nil, err
	}
	u := c.Begin()
	for _, sf := range e.Files {
		path := sf.Newname
		if err := u.Save(path); err != nil {
			return nil, err
		}
		full := filepath.Join(c.root, path)
		if sf.IsAdded {
			_ = os.Remove(full)
			continue
		}
		if err := c.materialize(c.files[path]); err != nil {
			return nil, err
		}
	}
	u.Finish()
	return e, nil
}

// List returns every stash entry, most recently created first is not
// guaranteed (entries carry no creation order beyond Ctime, which callers
// may sort by).
func (m *Manager) List() []StashEntry {
	out := make([]StashEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, *e)
	}
	return out
}

// Drop removes a stash entry without applying it.
func (m *Manager) Drop(stashID string) bool {
	if _, ok := m.entries[stashID]; !ok {
		return false
	}
	delete(m.entries, stashID)
	return true
}

// applyEntry three-way merges e's recorded files against the working
// copy's current content, pivoting on e.BaseVid's stored content per path.
func (c *Checkout) applyEntry(e *StashEntry) (conflicts int, err error) {
	for _, sf := range e.Files {
		path := sf.Newname
		full := filepath.Join(c.root, path)

		if sf.IsRemoved {
			_ = os.Remove(full)
			continue
		}
		if merge.IsBinary(sf.Content) || sf.IsLink {
			if err := os.WriteFile(full, sf.Content, 0o644); err != nil {
				return conflicts, repocore.NewError("workcopy.applyEntry", repocore.KindIO, err)
			}
			continue
		}

		var pivot string
		if sf.Rid != 0 {
			base, err := c.store.Read(sf.Rid)
			if err != nil {
				return conflicts, err
			}
			pivot = string(base)
		}

		var current string
		if cur, err := os.ReadFile(full); err == nil {
			current = string(cur)
		}

		res := merge.MergeText(pivot, current, string(sf.Content))
		conflicts += res.Conflicts
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return conflicts, repocore.NewError("workcopy.applyEntry", repocore.KindIO, err)
		}
		mode := os.FileMode(0o644)
		if sf.IsExec {
			mode = 0o755
		}
		if err := os.WriteFile(full, []byte(res.Text), mode); err != nil {
			return conflicts, repocore.NewError("workcopy.applyEntry", repocore.KindIO, err)
		}
	}
	return conflicts, nil
}

// Apply replays stashID's changes into the working copy via three-way
// merge, leaving the stash entry in place.
func (c *Checkout) Apply(stashID string) (int, error) {
	e, ok := c.stash.entries[stashID]
	if !ok {
		return 0, repocore.NewError("workcopy.Apply", repocore.KindNotFound, errNoSuchStash{stashID})
	}
	return c.applyEntry(e)
}

// Pop applies stashID then drops it.
func (c *Checkout) Pop(stashID string) (int, error) {
	conflicts, err := c.Apply(stashID)
	if err != nil {
		return conflicts, err
	}
	c.stash.Drop(stashID)
	return conflicts, nil
}

// Goto first switches the working copy to stashID's base check-in, then
// applies the stash.
func (c *Checkout) Goto(stashID string) (int, error) {
	e, ok := c.stash.entries[stashID]
	if !ok {
		return 0, repocore.NewError("workcopy.Goto", repocore.KindNotFound, errNoSuchStash{stashID})
	}
	if err := c.Switch(e.BaseVid); err != nil {
		return 0, err
	}
	return c.applyEntry(e)
}

type errNoSuchStash struct{ id string }

func (e errNoSuchStash) Error() string { return "no such stash entry: " + e.id }
