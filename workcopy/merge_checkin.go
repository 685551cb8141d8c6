package workcopy

import (
	"os"
	"path/filepath"

	"repocore"
	"repocore/graph"
	"repocore/manifest"
	"repocore/merge"
	"repocore/metrics"
	"repocore/store"
)

// MergeResult summarizes one whole-check-in merge.
type MergeResult struct {
	PivotVid  store.Rid
	Conflicts int
	Warnings  []string
}

// renameMap resolves a rename-chain replay: for every
// rename edge (oldFnid, newFnid) discovered between base and head, the
// path named by oldFnid maps to the path named by newFnid.
func renameMap(idx *manifest.Index, g *graph.Engine, base, head store.Rid) map[string]string {
	out := make(map[string]string)
	if base == head {
		return out
	}
	for _, e := range g.FindFilenameChanges(base, head) {
		oldName, ok1 := idx.FilenameOf(e.OldFnid)
		newName, ok2 := idx.FilenameOf(e.NewFnid)
		if ok1 && ok2 {
			out[oldName] = newName
		}
	}
	return out
}

// rewritePath follows a (possibly chained) rename map to its final name.
func rewritePath(renames map[string]string, path string) string {
	seen := map[string]bool{}
	for {
		next, ok := renames[path]
		if !ok || next == path || seen[next] {
			return path
		}
		seen[next] = true
		path = next
	}
}

// Merge performs a three-way merge between the working copy (v, currently
// projected from c.baseVid, including any uncommitted on-disk edits) and
// target check-in m, with pivot p either computed by g.Pivot or supplied
// directly (cherry-pick/backout callers resolve their own pivot via
// merge.SelectPivot before calling Merge).
//
// Paths are matched across p/v/m by replaying the rename chains p to v and
// p to m; a path renamed differently on both sides keeps v's name and is
// reported as a warning rather than a hard error.
func (c *Checkout) Merge(g *graph.Engine, pivot, mVid store.Rid) (*MergeResult, error) {
	if err := c.CheckSignature(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	baseVid := c.baseVid
	root := c.root
	c.mu.Unlock()

	pivotFiles := c.idx.FileState(pivot)
	mFiles := c.idx.FileState(mVid)

	vRenames := renameMap(c.idx, g, pivot, baseVid)
	mRenames := renameMap(c.idx, g, pivot, mVid)

	// Build the pivot-coordinate path union, seeded with v's current paths,
	// i.e. the live VFILE table.
	c.mu.Lock()
	vPaths := make(map[string]bool, len(c.files))
	for p := range c.files {
		vPaths[p] = true
	}
	c.mu.Unlock()

	type triple struct {
		pivotPath, vPath, mPath string
		havePivot, haveV, haveM bool
	}
	entries := make(map[string]*triple) // keyed by canonical (v-side) path

	for pPath := range pivotFiles {
		vPath := rewritePath(vRenames, pPath)
		mPath := rewritePath(mRenames, pPath)
		canon := vPath
		t, ok := entries[canon]
		if !ok {
			t = &triple{}
			entries[canon] = t
		}
		t.pivotPath, t.havePivot = pPath, true
		t.vPath = vPath
		t.mPath = mPath
	}
	for vp := range vPaths {
		if _, ok := entries[vp]; !ok {
			entries[vp] = &triple{vPath: vp}
		}
		entries[vp].haveV = true
	}
	for mp := range mFiles {
		canon := mp
		// If m's path is the target of a rename from pivot, it was already
		// keyed under the v-side canonical name above.
		matched := false
		for _, t := range entries {
			if t.mPath == mp {
				t.haveM = true
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if _, ok := entries[canon]; !ok {
			entries[canon] = &triple{mPath: canon}
		}
		entries[canon].haveM = true
		entries[canon].mPath = canon
	}

	res := &MergeResult{PivotVid: pivot}
	binaryGlob := c.binaryGlob

	for canon, t := range entries {
		pContent, havePivotContent := readPivotContent(c.store, pivotFiles, t.pivotPath, t.havePivot)
		mContent, haveMContent := readPivotContent(c.store, mFiles, t.mPath, t.haveM)
		vContent, haveVContent, vIsLink, vIsExe, err := c.readLiveContent(canon, t.haveV)
		if err != nil {
			return nil, err
		}

		if t.havePivot && t.haveV && t.haveM && t.vPath != t.mPath && t.mPath != t.pivotPath && t.vPath != t.pivotPath {
			res.Warnings = append(res.Warnings, "path "+t.pivotPath+" renamed differently on each side; kept "+t.vPath)
		}

		vEqP := havePivotContent && haveVContent && string(pContent) == string(vContent)
		mEqP := havePivotContent && haveMContent && string(pContent) == string(mContent)
		vEqM := haveVContent && haveMContent && string(vContent) == string(mContent)

		decision := merge.SelectAction(t.havePivot, t.haveV, t.haveM, vEqP, mEqP, vEqM)
		if decision.Warning != "" {
			res.Warnings = append(res.Warnings, canon+": "+decision.Warning)
		}

		full := filepath.Join(root, canon)
		switch decision.Action {
		case merge.ActionKeep:
			// v already holds the right content.
		case merge.ActionCopyM, merge.ActionAddM:
			if err := writeMergedFile(full, mContent, false); err != nil {
				return nil, err
			}
		case merge.ActionDeleteV:
			_ = os.Remove(full)
		case merge.ActionConflictNoCommonAncestor:
			res.Conflicts++
			res.Warnings = append(res.Warnings, canon+": no common ancestor for this path, keeping both sides apart")
		case merge.ActionMerge:
			isBinary := merge.IsBinary(pContent) || merge.IsBinary(vContent) || merge.IsBinary(mContent) ||
				merge.MatchesBinaryGlob(canon, binaryGlob)
			if isBinary || vIsLink {
				res.Conflicts++
				if err := writeMergedFile(full, vContent, vIsExe); err != nil {
					return nil, err
				}
				continue
			}
			mr := merge.MergeText(string(pContent), string(vContent), string(mContent))
			res.Conflicts += mr.Conflicts
			if err := writeMergedFile(full, []byte(mr.Text), vIsExe); err != nil {
				return nil, err
			}
		}
	}

	metrics.ObserveMerge(res.Conflicts)
	return res, nil
}

// readPivotContent reads path's content from store as it existed in a
// check-in's FileState snapshot, given the path was present there.
func readPivotContent(s *store.Store, fileState map[string]store.Rid, path string, present bool) ([]byte, bool) {
	if !present {
		return nil, false
	}
	rid, ok := fileState[path]
	if !ok {
		return nil, false
	}
	content, err := s.Read(rid)
	if err != nil {
		return nil, false
	}
	return content, true
}

// readLiveContent reads path's current on-disk bytes in the working copy.
func (c *Checkout) readLiveContent(path string, present bool) (content []byte, ok bool, isLink, isExe bool, err error) {
	if !present {
		return nil, false, false, false, nil
	}
	full := filepath.Join(c.root, path)
	info, statErr := os.Lstat(full)
	if os.IsNotExist(statErr) {
		return nil, false, false, false, nil
	}
	if statErr != nil {
		return nil, false, false, false, repocore.NewError("workcopy.Merge", repocore.KindIO, statErr)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, lerr := os.Readlink(full)
		if lerr != nil {
			return nil, false, false, false, repocore.NewError("workcopy.Merge", repocore.KindIO, lerr)
		}
		return []byte(target), true, true, false, nil
	}
	data, rerr := os.ReadFile(full)
	if rerr != nil {
		return nil, false, false, false, repocore.NewError("workcopy.Merge", repocore.KindIO, rerr)
	}
	return data, true, false, info.Mode()&0o111 != 0, nil
}

func writeMergedFile(full string, content []byte, exe bool) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return repocore.NewError("workcopy.Merge", repocore.KindIO, err)
	}
	mode := os.FileMode(0o644)
	if exe {
		mode = 0o755
	}
	if err := os.WriteFile(full, content, mode); err != nil {
		return repocore.NewError("workcopy.Merge", repocore.KindIO, err)
	}
	return nil
}
