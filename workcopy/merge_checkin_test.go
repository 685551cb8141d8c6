package workcopy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repocore"
	"repocore/graph"
	"repocore/manifest"
	"repocore/store"
)

// newCheckinWithParent is newCheckin plus an explicit parent, so callers can
// build branching history to merge across.
func newCheckinWithParent(t *testing.T, s *store.Store, idx *manifest.Index, parent repocore.UUID, files map[string]string) store.Rid {
	t.Helper()
	m := &manifest.Manifest{Comment: "c", Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), User: "alice"}
	if !parent.IsZero() {
		m.Parents = []repocore.UUID{parent}
	}
	for path, content := range files {
		_, _, err := s.Insert([]byte(content), 0)
		require.NoError(t, err)
		m.Files = append(m.Files, manifest.FileCard{Path: path, UUID: repocore.ComputeUUID([]byte(content))})
	}
	raw := []byte(m.String())
	selfUUID, rid, err := s.Insert(raw, 0)
	require.NoError(t, err)
	parsed, err := manifest.Parse(raw)
	require.NoError(t, err)
	parsed.Self = selfUUID
	require.NoError(t, idx.LinkManifest(s, rid, parsed))
	return rid
}

func TestMergeAppliesNonOverlappingChangesFromBothSidesCleanly(t *testing.T) {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	idx := manifest.NewIndex()

	pivotContent := "line1\nline2\nline3\n"
	pivotRid := newCheckinWithParent(t, s, idx, repocore.UUID{}, map[string]string{"a.txt": pivotContent})
	pivotUUID, err := s.UUIDOf(pivotRid)
	require.NoError(t, err)

	mContent := "line1\nline2\nline3-m\n"
	mRid := newCheckinWithParent(t, s, idx, pivotUUID, map[string]string{"a.txt": mContent})

	dir := t.TempDir()
	co, err := Open(s, idx, dir, pivotRid)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("line1-v\nline2\nline3\n"), 0o644))

	g := graph.New(idx)
	res, err := co.Merge(g, pivotRid, mRid)
	require.NoError(t, err)
	require.Equal(t, 0, res.Conflicts)

	merged, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "line1-v\nline2\nline3-m\n", string(merged))
}

func TestMergeReportsConflictOnOverlappingEdits(t *testing.T) {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	idx := manifest.NewIndex()

	pivotContent := "line1\nline2\nline3\n"
	pivotRid := newCheckinWithParent(t, s, idx, repocore.UUID{}, map[string]string{"a.txt": pivotContent})
	pivotUUID, err := s.UUIDOf(pivotRid)
	require.NoError(t, err)

	mContent := "line1-m\nline2\nline3\n"
	mRid := newCheckinWithParent(t, s, idx, pivotUUID, map[string]string{"a.txt": mContent})

	dir := t.TempDir()
	co, err := Open(s, idx, dir, pivotRid)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("line1-v\nline2\nline3\n"), 0o644))

	g := graph.New(idx)
	res, err := co.Merge(g, pivotRid, mRid)
	require.NoError(t, err)
	require.Equal(t, 1, res.Conflicts)

	merged, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Contains(t, string(merged), "line1-v")
	require.Contains(t, string(merged), "line1-m")
}

func TestMergeAddsFileIntroducedOnlyOnOtherSide(t *testing.T) {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	idx := manifest.NewIndex()

	pivotRid := newCheckinWithParent(t, s, idx, repocore.UUID{}, map[string]string{"a.txt": "base"})
	pivotUUID, err := s.UUIDOf(pivotRid)
	require.NoError(t, err)

	mRid := newCheckinWithParent(t, s, idx, pivotUUID, map[string]string{"a.txt": "base", "b.txt": "new-from-m"})

	dir := t.TempDir()
	co, err := Open(s, idx, dir, pivotRid)
	require.NoError(t, err)

	g := graph.New(idx)
	res, err := co.Merge(g, pivotRid, mRid)
	require.NoError(t, err)
	require.Equal(t, 0, res.Conflicts)

	data, err := os.ReadFile(filepath.Join(dir, "b.txt"))
	require.NoError(t, err)
	require.Equal(t, "new-from-m", string(data))
}
