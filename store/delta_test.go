package store

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyDeltaRoundTrip(t *testing.T) {
	cases := []struct {
		name         string
		base, target []byte
	}{
		{"identical", []byte("no change at all"), []byte("no change at all")},
		{"empty base", nil, []byte("everything is new")},
		{"empty target", []byte("everything removed"), nil},
		{"append", bytes.Repeat([]byte("abc"), 50), append(bytes.Repeat([]byte("abc"), 50), []byte("tail")...)},
		{"prepend", bytes.Repeat([]byte("xyz"), 50), append([]byte("head"), bytes.Repeat([]byte("xyz"), 50)...)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			d := ComputeDelta(c.base, c.target)
			out, err := ApplyDelta(c.base, d)
			require.NoError(t, err)
			require.True(t, bytes.Equal(c.target, out))
		})
	}
}

func TestApplyDeltaRandomPairs(t *testing.T) {
	for i := 0; i < 20; i++ {
		base := make([]byte, 512)
		target := make([]byte, 512)
		_, err := rand.Read(base)
		require.NoError(t, err)
		_, err = rand.Read(target)
		require.NoError(t, err)

		d := ComputeDelta(base, target)
		out, err := ApplyDelta(base, d)
		require.NoError(t, err)
		require.True(t, bytes.Equal(target, out))
	}
}

func TestApplyDeltaRejectsChecksumMismatch(t *testing.T) {
	base := []byte("base content")
	target := []byte("target content")
	d := ComputeDelta(base, target)
	d[len(d)-1] ^= 0xFF // corrupt the trailing checksum

	_, err := ApplyDelta(base, d)
	require.Error(t, err)
}
