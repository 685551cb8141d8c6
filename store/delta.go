package store

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Delta format: a sequence of commands
//
//	copy(src_offset, len)
//	insert(inline_bytes, len)
//	end(checksum)
//
// encoded as:
//
//	1 byte   opcode (opCopy | opInsert | opEnd)
//	opCopy:   varint src_offset, varint len
//	opInsert: varint len, len bytes of inline data
//	opEnd:    4 bytes big-endian CRC32 of the reconstructed target
//
// An implementation must round-trip bit-identically with this format
// (invariant 3: apply(delta(a,b), a) == b for any pair of artifacts).

const (
	opCopy byte = iota
	opInsert
	opEnd
)

// blockSize is the anchor granularity used to find copyable runs between
// base and target. Smaller values find more matches at higher CPU cost.
const blockSize = 16

// minMatch is the shortest run worth encoding as a copy instead of folding
// into the surrounding literal insert.
const minMatch = blockSize

// ComputeDelta encodes target as a sequence of copy/insert commands against
// base, terminated by an end(checksum) command.
func ComputeDelta(base, target []byte) []byte {
	anchors := indexBlocks(base)

	var out []byte
	var literal []byte

	flushLiteral := func() {
		if len(literal) == 0 {
			return
		}
		out = append(out, opInsert)
		out = appendUvarint(out, uint64(len(literal)))
		out = append(out, literal...)
		literal = nil
	}

	i := 0
	for i < len(target) {
		if i+blockSize <= len(target) {
			h := hashBlock(target[i : i+blockSize])
			if pos, ok := anchors[h]; ok && bytesEqual(base[pos:pos+blockSize], target[i:i+blockSize]) {
				// Extend the match forward as far as possible within the
				// available bytes.
				start := pos
				end := pos + blockSize
				tEnd := i + blockSize
				for end < len(base) && tEnd < len(target) && base[end] == target[tEnd] {
					end++
					tEnd++
				}
				runLen := end - start
				if runLen >= minMatch {
					flushLiteral()
					out = append(out, opCopy)
					out = appendUvarint(out, uint64(start))
					out = appendUvarint(out, uint64(runLen))
					i += runLen
					continue
				}
			}
		}
		literal = append(literal, target[i])
		i++
	}
	flushLiteral()

	out = append(out, opEnd)
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc32.ChecksumIEEE(target))
	out = append(out, crcBuf[:]...)

	return out
}

// ApplyDelta reconstructs the target bytes by replaying delta against base.
// It validates the trailing checksum and returns a plain, unclassified error
// if the command stream is malformed or truncated or the checksum doesn't
// match the reconstructed bytes; Store.Read wraps such errors as KindCorrupt.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	var out []byte
	i := 0
	for i < len(delta) {
		op := delta[i]
		i++
		switch op {
		case opCopy:
			off, n, err := readUvarint(delta, i)
			if err != nil {
				return nil, fmt.Errorf("store: apply delta: copy offset: %w", err)
			}
			i = n
			length, n, err := readUvarint(delta, i)
			if err != nil {
				return nil, fmt.Errorf("store: apply delta: copy length: %w", err)
			}
			i = n
			if off+length > uint64(len(base)) {
				return nil, fmt.Errorf("store: apply delta: copy out of range (off=%d len=%d base=%d)", off, length, len(base))
			}
			out = append(out, base[off:off+length]...)
		case opInsert:
			length, n, err := readUvarint(delta, i)
			if err != nil {
				return nil, fmt.Errorf("store: apply delta: insert length: %w", err)
			}
			i = n
			if i+int(length) > len(delta) {
				return nil, fmt.Errorf("store: apply delta: insert truncated")
			}
			out = append(out, delta[i:i+int(length)]...)
			i += int(length)
		case opEnd:
			if i+4 > len(delta) {
				return nil, fmt.Errorf("store: apply delta: truncated checksum")
			}
			want := binary.BigEndian.Uint32(delta[i : i+4])
			got := crc32.ChecksumIEEE(out)
			if want != got {
				return nil, fmt.Errorf("store: apply delta: checksum mismatch (want %x got %x)", want, got)
			}
			return out, nil
		default:
			return nil, fmt.Errorf("store: apply delta: unknown opcode %d", op)
		}
	}
	return nil, fmt.Errorf("store: apply delta: missing end command")
}

func indexBlocks(base []byte) map[uint32]int {
	anchors := make(map[uint32]int, len(base)/blockSize+1)
	for i := 0; i+blockSize <= len(base); i++ {
		h := hashBlock(base[i : i+blockSize])
		if _, exists := anchors[h]; !exists {
			anchors[h] = i
		}
	}
	return anchors
}

func hashBlock(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func appendUvarint(b []byte, v uint64) []byte {
	var buf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(buf[:], v)
	return append(b, buf[:n]...)
}

func readUvarint(b []byte, off int) (uint64, int, error) {
	v, n := binary.Uvarint(b[off:])
	if n <= 0 {
		return 0, off, fmt.Errorf("malformed varint at offset %d", off)
	}
	return v, off + n, nil
}
