// Package rebuild implements the four-pass rebuilder: drop every
// derived table, then re-derive PLINK/MLINK/FILENAME/TAG/TAGXREF/EVENT and
// recompute LEAF/PRIVATE membership directly from BLOB (cluster membership
// is not computed), proving
// (with --randomize) that insertion order never affects the result.
//
// It is a full-table scan that rebuilds derived state from the
// authoritative source, reporting progress and flagging inconsistency,
// following a "sweep with progress" maintenance-job shape.
package rebuild

import (
	"fmt"
	"math/rand"
	"time"

	"repocore"
	"repocore/manifest"
	"repocore/store"
)

// Options configures a rebuild run.
type Options struct {
	// Randomize processes manifests in a pseudo-random order within each
	// topological round, to exercise order-independence.
	Randomize bool

	// Progress, if non-nil, is called after every manifest is linked with
	// the completion fraction in permille (0..1000).
	Progress func(permille int)
}

// Result summarizes one rebuild pass.
type Result struct {
	ManifestsLinked int
	RawFilesSeen    int
	Leaves          []store.Rid
	PrivateRids     []store.Rid
}

type pendingManifest struct {
	rid    store.Rid
	parsed *manifest.Manifest
}

// Rebuild drops every table in idx and relinks it from s's non-shunned
// BLOB rows:
// first pass over non-delta rows, second pass materializing
// delta-stored rows on demand, then manifests are linked in primary-parent
// topological order (ready when every parent is either already linked or
// not itself a manifest), then LEAF/PRIVATE are recomputed.
func Rebuild(s *store.Store, idx *manifest.Index, opts Options) (*Result, error) {
	idx.Reset()

	allRids := s.AllRids()
	var nonDelta, delta []store.Rid
	for _, rid := range allRids {
		isDelta, err := s.IsDelta(rid)
		if err != nil {
			return nil, err
		}
		if isDelta {
			delta = append(delta, rid)
		} else {
			nonDelta = append(nonDelta, rid)
		}
	}

	res := &Result{}
	var pending []pendingManifest
	pendingRids := make(map[store.Rid]bool)

	// Pass 1: non-delta manifests and raw file artifacts (cheap reads, no
	// delta-chain materialization).
	p, err := classify(s, nonDelta, res)
	if err != nil {
		return nil, err
	}
	pending = append(pending, p...)

	// Pass 2: delta-stored artifacts, materialized on demand by s.Read's
	// chain walk.
	p, err = classify(s, delta, res)
	if err != nil {
		return nil, err
	}
	pending = append(pending, p...)

	for _, pm := range pending {
		pendingRids[pm.rid] = true
	}

	// Pass 3: link manifests in primary-parent topological order, then
	// finalize tag propagation and event rows (both happen as part of
	// LinkManifest itself).
	if err := linkInOrder(s, idx, pending, pendingRids, opts, res); err != nil {
		return nil, err
	}

	// Pass 4: recompute LEAF and PRIVATE membership.
	res.Leaves = recomputeLeaves(idx, pending)
	priv, err := recomputePrivate(s, allRids)
	if err != nil {
		return nil, err
	}
	res.PrivateRids = priv

	return res, nil
}

// classify reads each rid's content and attempts to parse it as a
// manifest; parse failures are counted as raw file artifacts, which need
// no direct linking (they are referenced by MLINK once their owning
// manifest links). Shunned rows are skipped.
func classify(s *store.Store, rids []store.Rid, res *Result) ([]pendingManifest, error) {
	var out []pendingManifest
	for _, rid := range rids {
		content, err := s.Read(rid)
		if err != nil {
			if k, ok := repocore.KindOf(err); ok && k == repocore.KindShunned {
				continue
			}
			return nil, err
		}
		parsed, err := manifest.Parse(content)
		if err != nil {
			res.RawFilesSeen++
			continue
		}
		out = append(out, pendingManifest{rid: rid, parsed: parsed})
	}
	return out, nil
}

// linkInOrder repeatedly links every pending manifest whose parents are
// already linked (or aren't manifests at all), looping to a fixed point so
// the result does not depend on the order Rebuild discovered manifests in.
// A round that links nothing while manifests remain indicates a parent
// cycle: a corrupt repository, not a retry-able state.
func linkInOrder(s *store.Store, idx *manifest.Index, pending []pendingManifest, pendingRids map[store.Rid]bool, opts Options, res *Result) error {
	linked := make(map[store.Rid]bool, len(pending))
	remaining := append([]pendingManifest(nil), pending...)
	total := len(pending)

	var rng *rand.Rand
	if opts.Randomize {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	for len(remaining) > 0 {
		if rng != nil {
			rng.Shuffle(len(remaining), func(i, j int) { remaining[i], remaining[j] = remaining[j], remaining[i] })
		}

		var next []pendingManifest
		progressed := false
		for _, pm := range remaining {
			ready, err := parentsLinked(s, pm.parsed, pendingRids, linked)
			if err != nil {
				return err
			}
			if !ready {
				next = append(next, pm)
				continue
			}
			if err := idx.LinkManifest(s, pm.rid, pm.parsed); err != nil {
				return err
			}
			linked[pm.rid] = true
			res.ManifestsLinked++
			progressed = true
			if opts.Progress != nil && total > 0 {
				opts.Progress(int(1000 * res.ManifestsLinked / total))
			}
		}
		if !progressed {
			return repocore.NewError("rebuild.Rebuild", repocore.KindCorrupt,
				fmt.Errorf("%d manifest(s) form a parent cycle or reference an unresolvable ancestor", len(next)))
		}
		remaining = next
	}
	return nil
}

func parentsLinked(s *store.Store, m *manifest.Manifest, pendingRids map[store.Rid]bool, linked map[store.Rid]bool) (bool, error) {
	for _, pu := range m.Parents {
		prid, err := s.RidOf(pu)
		if err != nil {
			return false, repocore.NewError("rebuild.Rebuild", repocore.KindPhantom, fmt.Errorf("parent %s not present in store", pu))
		}
		if pendingRids[prid] && !linked[prid] {
			return false, nil
		}
	}
	return true, nil
}

// recomputeLeaves recomputes LEAF directly from invariant 6's definition:
// rid c is a leaf iff no PLINK(c, c') child shares c's effective branch.
func recomputeLeaves(idx *manifest.Index, pending []pendingManifest) []store.Rid {
	var out []store.Rid
	for _, pm := range pending {
		branch := idx.BranchOf(pm.rid)
		isLeaf := true
		for _, c := range idx.Children(pm.rid) {
			if idx.BranchOf(c) == branch {
				isLeaf = false
				break
			}
		}
		if isLeaf {
			out = append(out, pm.rid)
		}
	}
	return out
}

func recomputePrivate(s *store.Store, rids []store.Rid) ([]store.Rid, error) {
	var out []store.Rid
	for _, rid := range rids {
		priv, err := s.IsPrivate(rid)
		if err != nil {
			return nil, err
		}
		if priv {
			out = append(out, rid)
		}
	}
	return out, nil
}
