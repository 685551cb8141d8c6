package manifest

import (
	"crypto/md5"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repocore"
	"repocore/store"
)

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func mustUUID(t *testing.T, content []byte) repocore.UUID {
	t.Helper()
	return repocore.ComputeUUID(content)
}

func TestParseStringRoundTrip(t *testing.T) {
	m := &Manifest{
		Comment: "initial commit\nwith a second line",
		Date:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Files: []FileCard{
			{Path: "b.txt", UUID: mustUUID(t, []byte("b"))},
			{Path: "a.txt", UUID: mustUUID(t, []byte("a")), Perm: "x"},
		},
		Tags: []TagCard{
			{Op: TagPropagating, Name: "branch", Target: "*", Value: "trunk"},
		},
		User: "alice",
	}

	text := m.String()
	parsed, err := Parse([]byte(text))
	require.NoError(t, err)

	require.Equal(t, m.Comment, parsed.Comment)
	require.True(t, m.Date.Equal(parsed.Date))
	require.Len(t, parsed.Files, 2)
	require.Equal(t, "a.txt", parsed.Files[0].Path) // sorted on emission
	require.Equal(t, "b.txt", parsed.Files[1].Path)
	require.Equal(t, m.User, parsed.User)
	require.Len(t, parsed.Tags, 1)
	require.Equal(t, "branch", parsed.Tags[0].Name)
	require.Equal(t, "trunk", parsed.Tags[0].Value)

	// Re-emitting the parsed manifest must be byte-identical to the input.
	require.Equal(t, text, parsed.String())
}

func TestParseRejectsBadChecksum(t *testing.T) {
	m := &Manifest{Comment: "c", Date: time.Now().UTC(), User: "bob"}
	text := m.String()
	corrupted := text[:len(text)-5] + "ffff\n"
	_, err := Parse([]byte(corrupted))
	require.Error(t, err)
	kind, ok := repocore.KindOf(err)
	require.True(t, ok)
	require.Equal(t, repocore.KindMalformed, kind)
}

func TestParseRejectsUnsortedFiles(t *testing.T) {
	raw := "C c\nD 2026-01-02T03:04:05Z\nF b.txt " + mustUUID(t, []byte("b")).String() + "\nF a.txt " + mustUUID(t, []byte("a")).String() + "\nU bob\n"
	sum := md5Hex(raw)
	raw += "Z " + sum + "\n"
	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestLinkManifestBuildsPlinkAndMlink(t *testing.T) {
	s, err := store.Open(store.Options{SizeRatio: 0.5})
	require.NoError(t, err)
	defer s.Close()

	idx := NewIndex()

	fileContent := []byte("hello world\n")
	fileUUID, fileRid, err := s.Insert(fileContent, 0)
	require.NoError(t, err)
	require.NotZero(t, fileRid)

	root := &Manifest{
		Comment: "root",
		Date:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Files:   []FileCard{{Path: "a.txt", UUID: fileUUID}},
		User:    "alice",
	}
	rootBytes := []byte(root.String())
	_, rootRid, err := s.Insert(rootBytes, 0)
	require.NoError(t, err)

	rootParsed, err := Parse(rootBytes)
	require.NoError(t, err)
	require.NoError(t, idx.LinkManifest(s, rootRid, rootParsed))

	child := &Manifest{
		Comment: "child",
		Date:    time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		Files:   []FileCard{{Path: "a.txt", UUID: fileUUID}},
		Parents: []repocore.UUID{repocore.ComputeUUID(rootBytes)},
		User:    "alice",
	}
	childBytes := []byte(child.String())
	_, childRid, err := s.Insert(childBytes, 0)
	require.NoError(t, err)

	childParsed, err := Parse(childBytes)
	require.NoError(t, err)
	require.NoError(t, idx.LinkManifest(s, childRid, childParsed))

	plinks := idx.Plinks(childRid)
	require.Len(t, plinks, 1)
	require.Equal(t, rootRid, plinks[0].Pid)
	require.True(t, plinks[0].IsPrim)

	mlinks := idx.MlinksFor(childRid)
	require.Len(t, mlinks, 1)
	require.Equal(t, fileRid, mlinks[0].Fid)
}

func TestEffectiveTagPropagatesAlongPrimaryChain(t *testing.T) {
	idx := NewIndex()
	idx.primaryParent[store.Rid(2)] = store.Rid(1)
	idx.primaryParent[store.Rid(3)] = store.Rid(2)
	idx.tagDirect[store.Rid(1)] = map[string][]tagApplication{
		"branch": {{Op: TagPropagating, Value: "trunk", SrcRid: 1, Mtime: time.Unix(100, 0)}},
	}

	require.Equal(t, "trunk", idx.BranchOf(store.Rid(3)))

	idx.tagDirect[store.Rid(2)] = map[string][]tagApplication{
		"branch": {{Op: TagCancel, SrcRid: 2, Mtime: time.Unix(200, 0)}},
	}
	require.Equal(t, "trunk", idx.BranchOf(store.Rid(2))) // canceled: falls back to default
}
