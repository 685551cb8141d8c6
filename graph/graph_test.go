package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repocore"
	"repocore/manifest"
	"repocore/store"
)

type fixture struct {
	s   *store.Store
	idx *manifest.Index
	t   *testing.T
}

func newFixture(t *testing.T) *fixture {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	return &fixture{s: s, idx: manifest.NewIndex(), t: t}
}

// checkin inserts and links a new check-in with an optional parent UUID and
// tags, returning its own UUID (for use as the next check-in's parent) and
// store rid.
func (f *fixture) checkin(comment string, mtime time.Time, parent *repocore.UUID, tags []manifest.TagCard) (repocore.UUID, store.Rid) {
	m := &manifest.Manifest{Comment: comment, Date: mtime, User: "alice", Tags: tags}
	if parent != nil {
		m.Parents = []repocore.UUID{*parent}
	}
	raw := []byte(m.String())
	uuid, rid, err := f.s.Insert(raw, 0)
	require.NoError(f.t, err)

	parsed, err := manifest.Parse(raw)
	require.NoError(f.t, err)
	require.NoError(f.t, f.idx.LinkManifest(f.s, rid, parsed))

	return uuid, rid
}

func day(n int) time.Time { return time.Date(2026, 1, n, 0, 0, 0, 0, time.UTC) }

func TestLeavesScenario(t *testing.T) {
	f := newFixture(t)

	t1u, t1 := f.checkin("T1", day(1), nil, nil)
	t2u, t2 := f.checkin("T2", day(2), &t1u, nil)
	_, t3 := f.checkin("T3", day(3), &t2u, nil)

	s1u, _ := f.checkin("S1", day(4), &t2u, []manifest.TagCard{
		{Op: manifest.TagPropagating, Name: "branch", Target: "*", Value: "side"},
	})
	_, s2 := f.checkin("S2", day(5), &s1u, []manifest.TagCard{
		{Op: manifest.TagApply, Name: "closed", Target: "*", Value: "1"},
	})

	eng := New(f.idx)

	all := eng.Leaves(t1, CloseAny)
	require.ElementsMatch(t, []store.Rid{t3, s2}, all)

	open := eng.Leaves(t1, CloseOpen)
	require.ElementsMatch(t, []store.Rid{t3}, open)

	closed := eng.Leaves(t1, CloseClosed)
	require.ElementsMatch(t, []store.Rid{s2}, closed)
}

func TestPivotScenario(t *testing.T) {
	f := newFixture(t)
	eng := New(f.idx)

	pu, p := f.checkin("P", day(1), nil, nil)
	au, aRid := f.checkin("A", day(2), &pu, nil)
	bu, _ := f.checkin("B", day(2), &pu, nil)
	_, v := f.checkin("V", day(3), &au, nil)
	_, m := f.checkin("M", day(3), &bu, nil)

	pivot, err := eng.Pivot(v, m)
	require.NoError(t, err)
	require.Equal(t, p, pivot)

	cu, _ := f.checkin("C", day(4), &au, nil)
	_, m2 := f.checkin("M2", day(4), &cu, nil)

	pivot2, err := eng.Pivot(v, m2)
	require.NoError(t, err)
	require.Equal(t, aRid, pivot2)
}

func TestAncestorsOrderedByMtimeDesc(t *testing.T) {
	f := newFixture(t)
	eng := New(f.idx)

	u1, r1 := f.checkin("1", day(1), nil, nil)
	u2, r2 := f.checkin("2", day(2), &u1, nil)
	_, r3 := f.checkin("3", day(3), &u2, nil)

	anc := eng.Ancestors(r3, 10)
	require.Len(t, anc, 2)
	require.Equal(t, []store.Rid{r2, r1}, anc)
}

func TestDirectAncestorsGenerationNumbers(t *testing.T) {
	f := newFixture(t)
	eng := New(f.idx)

	u1, r1 := f.checkin("1", day(1), nil, nil)
	u2, r2 := f.checkin("2", day(2), &u1, nil)
	_, r3 := f.checkin("3", day(3), &u2, nil)

	das := eng.DirectAncestors(r3)
	require.Len(t, das, 3)
	require.Equal(t, r3, das[0].Rid)
	require.Equal(t, 0, das[0].Generation)
	require.Equal(t, r2, das[1].Rid)
	require.Equal(t, 1, das[1].Generation)
	require.Equal(t, r1, das[2].Rid)
	require.Equal(t, 2, das[2].Generation)
}
