package rebuild

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repocore"
	"repocore/manifest"
	"repocore/store"
)

func day(n int) time.Time { return time.Date(2026, 1, n, 0, 0, 0, 0, time.UTC) }

// chainStore builds a three check-in chain (root -> mid -> tip), each
// adding one file, and returns the store plus the tip's rid.
func chainStore(t *testing.T) (*store.Store, store.Rid) {
	t.Helper()
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)

	put := func(content string) repocore.UUID {
		u, _, err := s.Insert([]byte(content), 0)
		require.NoError(t, err)
		return u
	}

	commit := func(comment string, mtime time.Time, parent *repocore.UUID, path, content string) repocore.UUID {
		fu := put(content)
		m := &manifest.Manifest{Comment: comment, Date: mtime, User: "alice", Files: []manifest.FileCard{{Path: path, UUID: fu}}}
		if parent != nil {
			m.Parents = []repocore.UUID{*parent}
		}
		raw := []byte(m.String())
		u, _, err := s.Insert(raw, 0)
		require.NoError(t, err)
		return u
	}

	u1 := commit("root", day(1), nil, "a.txt", "a")
	u2 := commit("mid", day(2), &u1, "b.txt", "b")
	u3 := commit("tip", day(3), &u2, "c.txt", "c")

	tipRid, err := s.RidOf(u3)
	require.NoError(t, err)
	return s, tipRid
}

func TestRebuildLinksEveryManifest(t *testing.T) {
	s, tip := chainStore(t)
	idx := manifest.NewIndex()

	res, err := Rebuild(s, idx, Options{})
	require.NoError(t, err)
	require.Equal(t, 3, res.ManifestsLinked)
	require.Equal(t, 3, res.RawFilesSeen) // a, b, c file blobs

	require.Equal(t, []store.Rid{tip}, res.Leaves)

	state := idx.FileState(tip)
	require.Len(t, state, 3)
}

func TestRebuildRandomizeProducesSameResult(t *testing.T) {
	s, tip := chainStore(t)

	idxA := manifest.NewIndex()
	resA, err := Rebuild(s, idxA, Options{})
	require.NoError(t, err)

	idxB := manifest.NewIndex()
	resB, err := Rebuild(s, idxB, Options{Randomize: true})
	require.NoError(t, err)

	require.Equal(t, resA.ManifestsLinked, resB.ManifestsLinked)
	require.Equal(t, resA.Leaves, resB.Leaves)

	stateA := idxA.FileState(tip)
	stateB := idxB.FileState(tip)
	require.Equal(t, stateA, stateB)

	plinksA := idxA.AllPlinks()
	plinksB := idxB.AllPlinks()
	sort.Slice(plinksA, func(i, j int) bool { return plinksA[i].Cid < plinksA[j].Cid })
	sort.Slice(plinksB, func(i, j int) bool { return plinksB[i].Cid < plinksB[j].Cid })
	require.Equal(t, plinksA, plinksB)
}

func TestRebuildReportsProgress(t *testing.T) {
	s, _ := chainStore(t)
	idx := manifest.NewIndex()

	var seen []int
	_, err := Rebuild(s, idx, Options{Progress: func(permille int) { seen = append(seen, permille) }})
	require.NoError(t, err)
	require.Len(t, seen, 3)
	require.Equal(t, 1000, seen[len(seen)-1])
}
