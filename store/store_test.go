package store

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"repocore"
)

func TestInsertReadRoundTrip(t *testing.T) {
	s, err := Open(Options{SizeRatio: 0.5})
	require.NoError(t, err)
	defer s.Close()

	content := []byte("the quick brown fox jumps over the lazy dog\n")
	uuid, rid, err := s.Insert(content, 0)
	require.NoError(t, err)
	require.Equal(t, repocore.ComputeUUID(content), uuid)

	got, err := s.Read(rid)
	require.NoError(t, err)
	require.True(t, bytes.Equal(content, got))
}

func TestInsertDedup(t *testing.T) {
	s, err := Open(Options{SizeRatio: 0.5})
	require.NoError(t, err)
	defer s.Close()

	content := []byte("duplicate me")
	_, rid1, err := s.Insert(content, 0)
	require.NoError(t, err)
	_, rid2, err := s.Insert(content, 0)
	require.NoError(t, err)
	require.Equal(t, rid1, rid2)
	require.Equal(t, 1, s.Len())
}

func TestDeltaChainRoundTrip(t *testing.T) {
	s, err := Open(Options{SizeRatio: 0.9})
	require.NoError(t, err)
	defer s.Close()

	base := bytes.Repeat([]byte("line of text repeated many times\n"), 200)
	_, baseRid, err := s.Insert(base, 0)
	require.NoError(t, err)

	modified := append(append([]byte{}, base...), []byte("one more line appended at the end\n")...)
	_, modRid, err := s.Insert(modified, baseRid)
	require.NoError(t, err)

	got, err := s.Read(modRid)
	require.NoError(t, err)
	require.True(t, bytes.Equal(modified, got))

	got, err = s.Read(baseRid)
	require.NoError(t, err)
	require.True(t, bytes.Equal(base, got))
}

func TestShunIsIdempotentAndBlocksInsert(t *testing.T) {
	s, err := Open(Options{SizeRatio: 0.5})
	require.NoError(t, err)
	defer s.Close()

	content := []byte("to be shunned")
	uuid := repocore.ComputeUUID(content)

	require.NoError(t, s.Shun(uuid))
	require.NoError(t, s.Shun(uuid)) // idempotent
	require.True(t, s.IsShunned(uuid))

	_, _, err = s.Insert(content, 0)
	require.Error(t, err)
	kind, ok := repocore.KindOf(err)
	require.True(t, ok)
	require.Equal(t, repocore.KindShunned, kind)
}

func TestSweepRematerializesChainThroughShunnedBase(t *testing.T) {
	s, err := Open(Options{SizeRatio: 0.9})
	require.NoError(t, err)
	defer s.Close()

	base := bytes.Repeat([]byte("base content block\n"), 100)
	baseUUID, baseRid, err := s.Insert(base, 0)
	require.NoError(t, err)

	modified := append(append([]byte{}, base...), []byte("appended tail\n")...)
	_, modRid, err := s.Insert(modified, baseRid)
	require.NoError(t, err)

	// Force modRid onto a delta chain against baseRid even if Insert picked
	// raw, so Sweep has something to rematerialize.
	require.NoError(t, s.Deltify(modRid, baseRid))

	require.NoError(t, s.Shun(baseUUID))

	n, err := s.Sweep()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := s.Read(modRid)
	require.NoError(t, err)
	require.True(t, bytes.Equal(modified, got))

	_, err = s.Read(baseRid)
	require.Error(t, err)
	kind, ok := repocore.KindOf(err)
	require.True(t, ok)
	require.Equal(t, repocore.KindPhantom, kind)

	_, err = s.RidOf(baseUUID)
	require.Error(t, err)
	kind, ok = repocore.KindOf(err)
	require.True(t, ok)
	require.Equal(t, repocore.KindNotFound, kind)
}

func TestWALReplayRecoversAfterReopen(t *testing.T) {
	dir := t.TempDir()
	walPath := filepath.Join(dir, "repo.wal")

	s1, err := Open(Options{WALPath: walPath, SizeRatio: 0.5})
	require.NoError(t, err)

	content := []byte("durable across restart")
	uuid, rid, err := s1.Insert(content, 0)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(Options{WALPath: walPath, SizeRatio: 0.5})
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Read(rid)
	require.NoError(t, err)
	require.True(t, bytes.Equal(content, got))

	recoveredRid, err := s2.RidOf(uuid)
	require.NoError(t, err)
	require.Equal(t, rid, recoveredRid)

	_ = os.Remove(walPath) // TempDir cleans this up too; explicit for clarity
}
