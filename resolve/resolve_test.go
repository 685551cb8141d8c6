package resolve

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repocore"
	"repocore/manifest"
	"repocore/store"
)

func day(n int) time.Time { return time.Date(2026, 1, n, 0, 0, 0, 0, time.UTC) }

func link(t *testing.T, s *store.Store, idx *manifest.Index, comment string, mtime time.Time, parent *repocore.UUID, tags []manifest.TagCard) (repocore.UUID, store.Rid) {
	t.Helper()
	m := &manifest.Manifest{Comment: comment, Date: mtime, User: "alice", Tags: tags}
	if parent != nil {
		m.Parents = []repocore.UUID{*parent}
	}
	raw := []byte(m.String())
	uuid, rid, err := s.Insert(raw, 0)
	require.NoError(t, err)
	parsed, err := manifest.Parse(raw)
	require.NoError(t, err)
	require.NoError(t, idx.LinkManifest(s, rid, parsed))
	return uuid, rid
}

func TestResolveTipAndTag(t *testing.T) {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	idx := manifest.NewIndex()

	u1, _ := link(t, s, idx, "one", day(1), nil, []manifest.TagCard{
		{Op: manifest.TagPropagating, Name: "branch", Target: "*", Value: "trunk"},
	})
	_, r2 := link(t, s, idx, "two", day(2), &u1, nil)

	r := New(s, idx, nil)

	res := r.Resolve("tip")
	require.Equal(t, Found, res.Outcome)
	require.Equal(t, r2, res.Rid)

	res = r.Resolve("tag:branch")
	require.Equal(t, Found, res.Outcome)
}

func TestResolveHexPrefixAmbiguity(t *testing.T) {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	idx := manifest.NewIndex()
	r := New(s, idx, nil)

	// A single match and no match first; then contents are inserted until
	// two UUIDs share a 4-digit prefix, which must resolve as ambiguous.
	content := []byte("abc content")
	uuid, rid, err := s.Insert(content, 0)
	require.NoError(t, err)

	res := r.Resolve(uuid.String()[:10])
	require.Equal(t, Found, res.Outcome)
	require.Equal(t, rid, res.Rid)

	res = r.Resolve("ffffffff")
	require.Equal(t, NotFound, res.Outcome)

	seen := map[string]bool{}
	for i := 0; ; i++ {
		u, _, err := s.Insert([]byte("grind "+strconv.Itoa(i)), 0)
		require.NoError(t, err)
		p := u.String()[:4]
		if seen[p] {
			require.Equal(t, Ambiguous, r.Resolve(p).Outcome)
			break
		}
		seen[p] = true
	}
}

func TestResolveBareRidFallback(t *testing.T) {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	idx := manifest.NewIndex()
	r := New(s, idx, nil)

	_, rid, err := s.Insert([]byte("some content"), 0)
	require.NoError(t, err)

	res := r.Resolve(strconv.FormatInt(int64(rid), 10))
	require.Equal(t, Found, res.Outcome)
	require.Equal(t, rid, res.Rid)
}
