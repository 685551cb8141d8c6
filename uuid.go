package repocore

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// UUID is the 160-bit SHA-1 content hash that identifies an artifact. The
// hash algorithm is fixed by the on-disk format, not a free library choice,
// so crypto/sha1 is used directly rather than routed through a hashing
// library.
type UUID [20]byte

// NilUUID is the zero-value UUID, never a valid artifact identity.
var NilUUID UUID

// ComputeUUID hashes content and returns its UUID.
func ComputeUUID(content []byte) UUID {
	return UUID(sha1.Sum(content))
}

// String renders the UUID as 40 lowercase hex digits.
func (u UUID) String() string {
	return hex.EncodeToString(u[:])
}

// IsZero reports whether u is the nil UUID.
func (u UUID) IsZero() bool {
	return u == NilUUID
}

// ParseUUID decodes a 40-character lowercase hex string into a UUID.
func ParseUUID(s string) (UUID, error) {
	var u UUID
	if len(s) != 40 {
		return u, NewError("ParseUUID", KindMalformed, fmt.Errorf("uuid %q: want 40 hex digits, got %d", s, len(s)))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return u, NewError("ParseUUID", KindMalformed, fmt.Errorf("uuid %q: %w", s, err))
	}
	copy(u[:], b)
	return u, nil
}
