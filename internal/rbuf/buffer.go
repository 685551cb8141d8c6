// Package rbuf implements the blob/buffer layer: a growable byte
// container with a read cursor, line/token/SQL-token extraction, seeking,
// lexicographic and constant-time comparison, and the zlib compression
// codec used for raw-stored artifacts.
//
// The field-by-field, explicit-endianness encode/decode style uses
// encoding/binary's BigEndian helpers rather than a reflection-based codec.
package rbuf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// SeekWhence mirrors io.Seek* without importing io just for the constants.
type SeekWhence int

const (
	SeekSet SeekWhence = iota
	SeekCur
	SeekEnd
)

var (
	// ErrOutOfRange is returned by Seek/Read operations that would move the
	// cursor outside [0, len(data)].
	ErrOutOfRange = errors.New("rbuf: cursor out of range")

	// ErrNoNewline is returned by ReadLine when the cursor reaches the end
	// of the buffer without finding a terminating newline.
	ErrNoNewline = errors.New("rbuf: unterminated line")

	// ErrUnterminatedToken is returned by ReadSQLToken when the closing
	// quote is never found.
	ErrUnterminatedToken = errors.New("rbuf: unterminated quoted token")
)

// Buffer is a growable byte container with a read cursor. It is the
// in-memory representation of one artifact's bytes as they move between the
// store, the manifest parser, and the working copy.
type Buffer struct {
	data   []byte
	cursor int
}

// New returns an empty Buffer.
func New() *Buffer { return &Buffer{} }

// NewFromBytes wraps existing bytes without copying; the caller must not
// mutate b after handing it to NewFromBytes.
func NewFromBytes(b []byte) *Buffer { return &Buffer{data: b} }

// Bytes returns the full underlying content, independent of cursor position.
func (b *Buffer) Bytes() []byte { return b.data }

// Len returns the total content length.
func (b *Buffer) Len() int { return len(b.data) }

// Tell returns the current cursor offset.
func (b *Buffer) Tell() int { return b.cursor }

// Append writes p to the end of the buffer; the cursor does not move.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Rewind resets the cursor to the start of the buffer.
func (b *Buffer) Rewind() { b.cursor = 0 }

// Seek moves the cursor relative to whence and returns the resulting
// absolute offset.
//
// SEEK_END off-by-one: the historical contract this format preserves
// reduces the SEEK_END target by one byte, so Seek(0, SeekEnd) lands on
// len(data)-1, not len(data). Callers that want the true end must Seek(1,
// SeekEnd). This is a likely latent bug in the original format but is
// preserved here deliberately; do not "fix" it without updating every
// caller that compensates for it.
func (b *Buffer) Seek(offset int, whence SeekWhence) (int, error) {
	var target int
	switch whence {
	case SeekSet:
		target = offset
	case SeekCur:
		target = b.cursor + offset
	case SeekEnd:
		target = len(b.data) - 1 + offset
	default:
		return b.cursor, fmt.Errorf("rbuf: invalid whence %d", whence)
	}
	if target < 0 || target > len(b.data) {
		return b.cursor, ErrOutOfRange
	}
	b.cursor = target
	return b.cursor, nil
}

// ReadN reads exactly n bytes from the cursor, advancing it. Returns
// ErrOutOfRange if fewer than n bytes remain.
func (b *Buffer) ReadN(n int) ([]byte, error) {
	if b.cursor+n > len(b.data) {
		return nil, ErrOutOfRange
	}
	out := b.data[b.cursor : b.cursor+n]
	b.cursor += n
	return out, nil
}

// ReadLine extracts one line, including its terminating newline, advancing
// the cursor past it. Returns ErrNoNewline (with the partial trailing bytes)
// if the buffer ends before a newline is found.
func (b *Buffer) ReadLine() ([]byte, error) {
	idx := bytes.IndexByte(b.data[b.cursor:], '\n')
	if idx < 0 {
		rest := b.data[b.cursor:]
		b.cursor = len(b.data)
		if len(rest) == 0 {
			return nil, ErrNoNewline
		}
		return rest, ErrNoNewline
	}
	line := b.data[b.cursor : b.cursor+idx+1]
	b.cursor += idx + 1
	return line, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// ReadToken extracts the next whitespace-delimited token, skipping leading
// whitespace. Returns io.EOF-equivalent ErrOutOfRange if no token remains.
func (b *Buffer) ReadToken() ([]byte, error) {
	for b.cursor < len(b.data) && isSpace(b.data[b.cursor]) {
		b.cursor++
	}
	if b.cursor >= len(b.data) {
		return nil, ErrOutOfRange
	}
	start := b.cursor
	for b.cursor < len(b.data) && !isSpace(b.data[b.cursor]) {
		b.cursor++
	}
	return b.data[start:b.cursor], nil
}

// ReadSQLToken extracts a SQL-style single-quoted token starting at the
// cursor (which must point at the opening `'`), unescaping doubled `''`
// into a literal `'`. The cursor advances past the closing quote.
func (b *Buffer) ReadSQLToken() (string, error) {
	if b.cursor >= len(b.data) || b.data[b.cursor] != '\'' {
		return "", fmt.Errorf("rbuf: ReadSQLToken: expected opening quote at offset %d", b.cursor)
	}
	i := b.cursor + 1
	var out bytes.Buffer
	for {
		if i >= len(b.data) {
			return "", ErrUnterminatedToken
		}
		if b.data[i] == '\'' {
			if i+1 < len(b.data) && b.data[i+1] == '\'' {
				out.WriteByte('\'')
				i += 2
				continue
			}
			b.cursor = i + 1
			return out.String(), nil
		}
		out.WriteByte(b.data[i])
		i++
	}
}

// Compare does a lexicographic byte comparison, returning -1, 0, or 1.
func Compare(a, b []byte) int { return bytes.Compare(a, b) }

// ConstantTimeEqual compares two equal-length buffers in time independent
// of their contents, for UUID/checksum comparisons that must not leak
// timing information. Unequal lengths always return false in non-constant
// time (the length itself is not secret).
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

// IsHex reports whether s consists entirely of lowercase hex digits with no
// other characters (no UTF-8 multi-byte suffixes permitted).
func IsHex(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// ParseInt parses a decimal integer token, matching the permissive style
// the manifest parser needs for card fields (optional leading '-').
func ParseInt(tok []byte) (int64, error) {
	var neg bool
	i := 0
	if len(tok) > 0 && tok[0] == '-' {
		neg = true
		i = 1
	}
	if i >= len(tok) {
		return 0, fmt.Errorf("rbuf: ParseInt: empty token")
	}
	var v int64
	for ; i < len(tok); i++ {
		c := tok[i]
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("rbuf: ParseInt: invalid digit %q", c)
		}
		v = v*10 + int64(c-'0')
	}
	if neg {
		v = -v
	}
	return v, nil
}

// putUint32BE encodes v as four big-endian bytes; compress.go uses it to
// write the codec's size header.
func putUint32BE(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
