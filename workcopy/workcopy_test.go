package workcopy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repocore"
	"repocore/manifest"
	"repocore/store"
)

func newCheckin(t *testing.T, s *store.Store, idx *manifest.Index, files map[string]string) store.Rid {
	t.Helper()
	m := &manifest.Manifest{Comment: "c", Date: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), User: "alice"}
	for path, content := range files {
		_, _, err := s.Insert([]byte(content), 0)
		require.NoError(t, err)
		m.Files = append(m.Files, manifest.FileCard{Path: path, UUID: repocore.ComputeUUID([]byte(content))})
	}
	raw := []byte(m.String())
	_, rid, err := s.Insert(raw, 0)
	require.NoError(t, err)
	parsed, err := manifest.Parse(raw)
	require.NoError(t, err)
	require.NoError(t, idx.LinkManifest(s, rid, parsed))
	return rid
}

func TestOpenProjectsFilesToDisk(t *testing.T) {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	idx := manifest.NewIndex()
	rid := newCheckin(t, s, idx, map[string]string{"a.txt": "hello"})

	dir := t.TempDir()
	co, err := Open(s, idx, dir, rid)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	cur, ok := co.CurrentRid()
	require.True(t, ok)
	require.Equal(t, rid, cur)
}

func TestUndoRestoresPriorContentAndRedoReappliesChange(t *testing.T) {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	idx := manifest.NewIndex()
	rid := newCheckin(t, s, idx, map[string]string{"a.txt": "hello"})

	dir := t.TempDir()
	co, err := Open(s, idx, dir, rid)
	require.NoError(t, err)

	u := co.Begin()
	require.NoError(t, u.Save("a.txt"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("modified"), 0o644))
	u.Finish()

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "modified", string(data))

	require.NoError(t, u.Undo())
	data, err = os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	require.NoError(t, u.Redo())
	data, err = os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "modified", string(data))
}

func TestUndoRestoresDeletedFile(t *testing.T) {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	idx := manifest.NewIndex()
	rid := newCheckin(t, s, idx, map[string]string{"a.txt": "hello"})

	dir := t.TempDir()
	co, err := Open(s, idx, dir, rid)
	require.NoError(t, err)

	u := co.Begin()
	require.NoError(t, u.Save("a.txt"))
	require.NoError(t, os.Remove(filepath.Join(dir, "a.txt")))
	u.Finish()

	require.NoError(t, u.Undo())
	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestCheckSignatureDetectsChangeAndDeletion(t *testing.T) {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	idx := manifest.NewIndex()
	rid := newCheckin(t, s, idx, map[string]string{"a.txt": "hello", "b.txt": "world"})

	dir := t.TempDir()
	co, err := Open(s, idx, dir, rid)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("changed"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "b.txt")))

	st, err := co.Status()
	require.NoError(t, err)

	byPath := make(map[string]VFile)
	for _, vf := range st {
		byPath[vf.Pathname] = vf
	}
	require.True(t, byPath["a.txt"].Chnged)
	require.True(t, byPath["b.txt"].Deleted)
}

func TestStashSaveAndPopRoundTrip(t *testing.T) {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	idx := manifest.NewIndex()
	rid := newCheckin(t, s, idx, map[string]string{"a.txt": "hello"})

	dir := t.TempDir()
	co, err := Open(s, idx, dir, rid)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("local edit"), 0o644))

	entry, err := co.Save("wip", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	conflicts, err := co.Pop(entry.StashID)
	require.NoError(t, err)
	require.Equal(t, 0, conflicts)

	data, err = os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "local edit", string(data))

	require.Empty(t, co.Stash().List())
}

func TestRevertRestoresBaseContent(t *testing.T) {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	idx := manifest.NewIndex()
	rid := newCheckin(t, s, idx, map[string]string{"a.txt": "hello"})

	dir := t.TempDir()
	co, err := Open(s, idx, dir, rid)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("dirty"), 0o644))
	require.NoError(t, co.Revert([]string{"a.txt"}))

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}
