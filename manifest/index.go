package manifest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"repocore"
	"repocore/store"
)

// Plink is one PLINK row: a parent→child check-in edge.
type Plink struct {
	Pid, Cid store.Rid
	IsPrim   bool
	Mtime    time.Time
}

// Mlink is one MLINK row: one file version's lineage within a check-in.
type Mlink struct {
	Mid, Pid   store.Rid
	Fid        store.Rid
	Fnid, Pfnid int
	Mperm      string
}

// Event is one EVENT row: the unified timeline entry for a linked artifact.
type Event struct {
	Type    string
	ObjID   store.Rid
	Mtime   time.Time
	User    string
	Comment string
}

// tagApplication is one explicit T-card application read off a manifest,
// prior to propagation resolution.
type tagApplication struct {
	Op     TagOp
	Value  string
	SrcRid store.Rid
	Mtime  time.Time
}

// Index holds every derived table for one repository, built incrementally
// by LinkManifest and fully rebuildable from the artifact store alone by
// replaying LinkManifest over every non-shunned manifest.
//
// Tag identity is interned the way a namespace table would intern a name,
// and temporal version tracking is generalized here from a per-entity tag
// list to cross-linked relational tables.
type Index struct {
	mu sync.RWMutex

	plinks       []Plink
	childrenOf   map[store.Rid][]store.Rid
	primaryParent map[store.Rid]store.Rid

	mlinks []Mlink

	fnameToID map[string]int
	idToFname []string

	// tagDirect[rid][name] accumulates every explicit T-card application
	// whose Target resolves to rid, across every linked manifest.
	tagDirect map[store.Rid]map[string][]tagApplication

	events []Event

	// fileState[rid] is the path→content-rid snapshot inherited from the
	// primary parent and overridden by this check-in's F cards; it is what
	// makes "prior_rid" for MLINK derivable without re-walking history.
	fileState map[store.Rid]map[string]store.Rid

	// filePerm[rid] mirrors fileState's keys with the F-card permission
	// marker ("", "x", "l"), for projecting a check-in into VFILE rows.
	filePerm map[store.Rid]map[string]string

	batching bool
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		childrenOf:    make(map[store.Rid][]store.Rid),
		primaryParent: make(map[store.Rid]store.Rid),
		fnameToID:     make(map[string]int),
		tagDirect:     make(map[store.Rid]map[string][]tagApplication),
		fileState:     make(map[store.Rid]map[string]store.Rid),
		filePerm:      make(map[store.Rid]map[string]string),
	}
}

// Begin starts a cross-linking batch: tag propagation effects are
// computed lazily regardless, so Begin/End exist to bracket bulk linking
// calls (e.g. from the rebuilder) for callers that want a single commit
// point; Index itself has no expensive batched recomputation to defer.
func (idx *Index) Begin() { idx.mu.Lock(); idx.batching = true }

// End closes a batch started with Begin.
func (idx *Index) End() { idx.batching = false; idx.mu.Unlock() }

func (idx *Index) internFilename(path string) int {
	if id, ok := idx.fnameToID[path]; ok {
		return id
	}
	id := len(idx.idToFname)
	idx.fnameToID[path] = id
	idx.idToFname = append(idx.idToFname, path)
	return id
}

// FilenameOf returns the interned path for fnid.
func (idx *Index) FilenameOf(fnid int) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if fnid < 0 || fnid >= len(idx.idToFname) {
		return "", false
	}
	return idx.idToFname[fnid], true
}

// resolveUUID looks up a manifest-referenced UUID string in s, returning
// KindPhantom if it's known only by reference.
func resolveUUID(s *store.Store, u repocore.UUID) (store.Rid, error) {
	rid, err := s.RidOf(u)
	if err != nil {
		return 0, repocore.NewError("manifest.LinkManifest", repocore.KindPhantom, fmt.Errorf("uuid %s not yet present", u))
	}
	return rid, nil
}

// LinkManifest projects one parsed check-in manifest at rid r into every
// derived table. It is idempotent: linking an rid that is already linked
// returns nil and leaves the tables unchanged.
func (idx *Index) LinkManifest(s *store.Store, r store.Rid, m *Manifest) error {
	if !idx.batching {
		idx.mu.Lock()
		defer idx.mu.Unlock()
	}
	if _, linked := idx.fileState[r]; linked {
		return nil
	}

	// File state inherits from the primary parent, then this check-in's F
	// cards override it.
	state := make(map[string]store.Rid)
	perm := make(map[string]string)
	if len(m.Parents) > 0 {
		if pid, err := resolveUUID(s, m.Parents[0]); err == nil {
			idx.primaryParent[r] = pid
			if prior, ok := idx.fileState[pid]; ok {
				for k, v := range prior {
					state[k] = v
				}
			}
			if priorPerm, ok := idx.filePerm[pid]; ok {
				for k, v := range priorPerm {
					perm[k] = v
				}
			}
		}
	}

	for _, f := range m.Files {
		fid, err := resolveUUID(s, f.UUID)
		if err != nil {
			return err
		}
		fnid := idx.internFilename(f.Path)
		pfnid := fnid
		oldPath := f.Path
		if f.OldPath != "" {
			oldPath = f.OldPath
			pfnid = idx.internFilename(f.OldPath)
		}
		priorRid := state[oldPath]

		idx.mlinks = append(idx.mlinks, Mlink{
			Mid: r, Pid: priorRid, Fid: fid, Fnid: fnid, Pfnid: pfnid, Mperm: f.Perm,
		})

		delete(state, oldPath)
		delete(perm, oldPath)
		state[f.Path] = fid
		perm[f.Path] = f.Perm
	}
	idx.fileState[r] = state
	idx.filePerm[r] = perm

	for i, pu := range m.Parents {
		pid, err := resolveUUID(s, pu)
		if err != nil {
			return err
		}
		idx.plinks = append(idx.plinks, Plink{Pid: pid, Cid: r, IsPrim: i == 0, Mtime: m.Date})
		idx.childrenOf[pid] = append(idx.childrenOf[pid], r)
	}

	for _, t := range m.Tags {
		target := r
		if t.Target != "*" {
			tu, err := repocore.ParseUUID(t.Target)
			if err == nil {
				if tr, rerr := resolveUUID(s, tu); rerr == nil {
					target = tr
				}
			}
		}
		if idx.tagDirect[target] == nil {
			idx.tagDirect[target] = make(map[string][]tagApplication)
		}
		idx.tagDirect[target][t.Name] = append(idx.tagDirect[target][t.Name], tagApplication{
			Op: t.Op, Value: t.Value, SrcRid: r, Mtime: m.Date,
		})
	}

	idx.events = append(idx.events, Event{Type: "checkin", ObjID: r, Mtime: m.Date, User: m.User, Comment: m.Comment})

	return nil
}

// effectiveDirect picks the controlling application among every explicit
// T-card that targeted rid under this tag name: most recent by mtime, tied
// by lowest SrcRid.
func (idx *Index) effectiveDirect(rid store.Rid, name string) (tagApplication, bool) {
	apps := idx.tagDirect[rid][name]
	if len(apps) == 0 {
		return tagApplication{}, false
	}
	best := apps[0]
	for _, a := range apps[1:] {
		if a.Mtime.After(best.Mtime) || (a.Mtime.Equal(best.Mtime) && a.SrcRid < best.SrcRid) {
			best = a
		}
	}
	return best, true
}

// EffectiveTag resolves the effective value of tag name at rid. A direct
// T-card on rid itself is always authoritative, whatever its kind. Above
// rid, only a propagating application or a cancel can still control the
// result: a propagating tag keeps applying to every descendant until
// canceled, and a cancel on an ancestor blocks that propagation from
// reaching rid. A plain (non-propagating) apply on an ancestor targets
// only that one check-in and is invisible to rid, so it is skipped and the
// walk continues toward the next, older ancestor.
func (idx *Index) EffectiveTag(rid store.Rid, name string) (value string, ok bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	cur := rid
	atTarget := true
	for depth := 0; depth < 1_000_000; depth++ {
		if app, found := idx.effectiveDirect(cur, name); found && (atTarget || app.Op != TagApply) {
			if app.Op == TagCancel {
				return "", false
			}
			return app.Value, true
		}
		parent, hasParent := idx.primaryParent[cur]
		if !hasParent {
			return "", false
		}
		cur = parent
		atTarget = false
	}
	return "", false
}

// BranchOf resolves the effective "branch" tag, defaulting to "trunk" for a
// check-in with no branch tag anywhere in its primary ancestry.
func (idx *Index) BranchOf(rid store.Rid) string {
	if v, ok := idx.EffectiveTag(rid, "branch"); ok {
		return v
	}
	return "trunk"
}

// TaggedRids returns every rid whose most recent direct T-card application
// of name is a non-canceled apply or propagating application. Used by the
// name resolver's "tag:NAME" and "sym-NAME" lookups; unlike EffectiveTag
// this does not walk inheritance, it only reports direct hits.
func (idx *Index) TaggedRids(name string) []store.Rid {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []store.Rid
	for rid, byName := range idx.tagDirect {
		apps, ok := byName[name]
		if !ok || len(apps) == 0 {
			continue
		}
		best := apps[0]
		for _, a := range apps[1:] {
			if a.Mtime.After(best.Mtime) || (a.Mtime.Equal(best.Mtime) && a.SrcRid < best.SrcRid) {
				best = a
			}
		}
		if best.Op != TagCancel {
			out = append(out, rid)
		}
	}
	return out
}

// Children returns every rid directly linked as a PLINK child of pid, in
// ascending rid order.
func (idx *Index) Children(pid store.Rid) []store.Rid {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := append([]store.Rid(nil), idx.childrenOf[pid]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PrimaryParent returns rid's primary parent, if any.
func (idx *Index) PrimaryParent(rid store.Rid) (store.Rid, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	p, ok := idx.primaryParent[rid]
	return p, ok
}

// Plinks returns every PLINK row whose Cid is rid (i.e. every parent edge
// into rid: the primary parent plus any merge parents).
func (idx *Index) Plinks(cid store.Rid) []Plink {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []Plink
	for _, p := range idx.plinks {
		if p.Cid == cid {
			out = append(out, p)
		}
	}
	return out
}

// AllPlinks returns every PLINK row.
func (idx *Index) AllPlinks() []Plink {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]Plink(nil), idx.plinks...)
}

// MlinksFor returns every MLINK row recorded for check-in mid.
func (idx *Index) MlinksFor(mid store.Rid) []Mlink {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	var out []Mlink
	for _, l := range idx.mlinks {
		if l.Mid == mid {
			out = append(out, l)
		}
	}
	return out
}

// AllMlinks returns every MLINK row across every linked check-in.
func (idx *Index) AllMlinks() []Mlink {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]Mlink(nil), idx.mlinks...)
}

// EventMtime returns the EVENT mtime recorded for objID, used by the name
// resolver's "tip" keyword and the graph engine's ancestor priority queue.
func (idx *Index) EventMtime(objID store.Rid) (time.Time, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for i := len(idx.events) - 1; i >= 0; i-- {
		if idx.events[i].ObjID == objID {
			return idx.events[i].Mtime, true
		}
	}
	return time.Time{}, false
}

// AllEvents returns every EVENT row, ordered by mtime ascending.
func (idx *Index) AllEvents() []Event {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := append([]Event(nil), idx.events...)
	sort.Slice(out, func(i, j int) bool { return out[i].Mtime.Before(out[j].Mtime) })
	return out
}

// FileState returns the path→content-rid snapshot effective at rid (the
// inherited-then-overridden state LinkManifest computed for it), for
// projecting a check-in into a working copy.
func (idx *Index) FileState(rid store.Rid) map[string]store.Rid {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]store.Rid, len(idx.fileState[rid]))
	for k, v := range idx.fileState[rid] {
		out[k] = v
	}
	return out
}

// FilePerm returns the path→permission-marker snapshot effective at rid,
// paired with FileState for VFILE projection.
func (idx *Index) FilePerm(rid store.Rid) map[string]string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]string, len(idx.filePerm[rid]))
	for k, v := range idx.filePerm[rid] {
		out[k] = v
	}
	return out
}

// Reset clears every derived table, for the rebuilder's "drop all derived
// tables" first step.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.plinks = nil
	idx.childrenOf = make(map[store.Rid][]store.Rid)
	idx.primaryParent = make(map[store.Rid]store.Rid)
	idx.mlinks = nil
	idx.fnameToID = make(map[string]int)
	idx.idToFname = nil
	idx.tagDirect = make(map[store.Rid]map[string][]tagApplication)
	idx.events = nil
	idx.fileState = make(map[store.Rid]map[string]store.Rid)
	idx.filePerm = make(map[store.Rid]map[string]string)
}
