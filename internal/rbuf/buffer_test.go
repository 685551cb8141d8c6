package rbuf

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressRoundTrip(t *testing.T) {
	// 0 bytes, 1MB of 'A', and 256KB random must each round-trip to
	// themselves exactly.
	zeros := []byte{}
	ones := bytes.Repeat([]byte{'A'}, 1<<20)
	random := make([]byte, 256<<10)
	_, err := rand.Read(random)
	require.NoError(t, err)

	for _, in := range [][]byte{zeros, ones, random} {
		compressed, err := Compress(in)
		require.NoError(t, err)
		out, err := Uncompress(compressed)
		require.NoError(t, err)
		require.True(t, bytes.Equal(in, out))
	}
}

func TestReadLine(t *testing.T) {
	b := NewFromBytes([]byte("first\nsecond\nthird"))

	line, err := b.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "first\n", string(line))

	line, err = b.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "second\n", string(line))

	_, err = b.ReadLine()
	require.ErrorIs(t, err, ErrNoNewline)
}

func TestReadToken(t *testing.T) {
	b := NewFromBytes([]byte("  hello   world\n"))

	tok, err := b.ReadToken()
	require.NoError(t, err)
	require.Equal(t, "hello", string(tok))

	tok, err = b.ReadToken()
	require.NoError(t, err)
	require.Equal(t, "world", string(tok))
}

func TestReadSQLToken(t *testing.T) {
	b := NewFromBytes([]byte(`'it''s a test'`))
	s, err := b.ReadSQLToken()
	require.NoError(t, err)
	require.Equal(t, "it's a test", s)
}

func TestSeekEndOffByOne(t *testing.T) {
	b := NewFromBytes([]byte("12345"))
	pos, err := b.Seek(0, SeekEnd)
	require.NoError(t, err)
	// SEEK_END lands one byte short of the true end; see the Seek doc
	// comment for why this is kept rather than fixed.
	require.Equal(t, 4, pos)
}

func TestConstantTimeEqual(t *testing.T) {
	require.True(t, ConstantTimeEqual([]byte("abcd"), []byte("abcd")))
	require.False(t, ConstantTimeEqual([]byte("abcd"), []byte("abce")))
	require.False(t, ConstantTimeEqual([]byte("abc"), []byte("abcd")))
}

func TestIsHex(t *testing.T) {
	require.True(t, IsHex("abc123"))
	require.False(t, IsHex("abc123g"))
	require.False(t, IsHex(""))
}
