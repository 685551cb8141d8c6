// Package workcopy implements the working-copy transaction layer: the
// VFILE projection of a check-in onto disk, signature checking,
// an undo/redo log bracketed by sessions, automatic rollback on a fatal
// error, and named stash entries applied via three-way merge.
//
// The state machine here generalizes an active/soft_deleted/archived/
// purged lifecycle shape to a working file's unchanged/changed/
// deleted/added states, and the undo log's recorded per-path entries
// follow a "collector sweeps a recorded-intent list" pattern.
package workcopy

import (
	"crypto/sha256"
	"os"
	"path/filepath"
	"time"

	"repocore"
	"repocore/manifest"
	"repocore/store"
)

// VFile is one VFILE row: the projection of a single path from the base
// check-in into the working copy.
type VFile struct {
	ID       int64
	Vid      store.Rid // base manifest this row was projected from
	Rid      store.Rid // expected content rid
	Mrid     store.Rid // content rid during a merge; zero outside a merge
	Pathname string
	Origname string // non-empty only mid-rename
	IsExe    bool
	IsLink   bool
	Chnged   bool
	Deleted  bool
	Mtime    time.Time
}

func permToFlags(perm string) (isExe, isLink bool) {
	switch perm {
	case "x":
		return true, false
	case "l":
		return false, true
	default:
		return false, false
	}
}

func flagsToPerm(isExe, isLink bool) string {
	switch {
	case isLink:
		return "l"
	case isExe:
		return "x"
	default:
		return ""
	}
}

// newVFiles projects the path→rid snapshot at vid (idx.FileState/FilePerm)
// into a fresh, unchecked VFILE table.
func newVFiles(idx *manifest.Index, vid store.Rid) map[string]*VFile {
	state := idx.FileState(vid)
	perm := idx.FilePerm(vid)
	out := make(map[string]*VFile, len(state))
	id := int64(1)
	for path, rid := range state {
		isExe, isLink := permToFlags(perm[path])
		out[path] = &VFile{
			ID: id, Vid: vid, Rid: rid, Pathname: path, IsExe: isExe, IsLink: isLink,
		}
		id++
	}
	return out
}

// checkSignature compares the working copy's on-disk state for every VFILE
// row against its expected rid, setting Chnged or Deleted as appropriate.
// Run before any mutating operation. It does not touch content the store
// has not hashed.
func checkSignature(root string, s *store.Store, files map[string]*VFile) error {
	for _, vf := range files {
		full := filepath.Join(root, vf.Pathname)
		info, err := os.Lstat(full)
		if os.IsNotExist(err) {
			vf.Deleted = true
			vf.Chnged = false
			continue
		}
		if err != nil {
			return repocore.NewError("workcopy.checkSignature", repocore.KindIO, err)
		}
		vf.Deleted = false
		vf.Mtime = info.ModTime()

		expected, err := s.Read(vf.Rid)
		if err != nil {
			return err
		}
		onDisk, err := os.ReadFile(full)
		if err != nil {
			return repocore.NewError("workcopy.checkSignature", repocore.KindIO, err)
		}
		vf.Chnged = sha256.Sum256(expected) != sha256.Sum256(onDisk)
	}
	return nil
}
