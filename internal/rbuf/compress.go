package rbuf

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
)

// Compress encodes content as a 4-byte big-endian uncompressed-size header
// followed by a zlib deflate stream at level 9. The codec is pure and
// deterministic: identical input always produces identical output.
func Compress(content []byte) ([]byte, error) {
	var out bytes.Buffer
	out.Write(putUint32BE(uint32(len(content))))

	zw, err := zlib.NewWriterLevel(&out, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("rbuf: compress: %w", err)
	}
	if _, err := zw.Write(content); err != nil {
		return nil, fmt.Errorf("rbuf: compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("rbuf: compress: %w", err)
	}
	return out.Bytes(), nil
}

// Uncompress validates the size header and inflates into a buffer sized to
// match it exactly. Decode failures return a typed error and never return
// a partially-filled buffer.
func Uncompress(blob []byte) ([]byte, error) {
	if len(blob) < 4 {
		return nil, fmt.Errorf("rbuf: uncompress: blob too short for size header")
	}
	size := binary.BigEndian.Uint32(blob[:4])

	zr, err := zlib.NewReader(bytes.NewReader(blob[4:]))
	if err != nil {
		return nil, fmt.Errorf("rbuf: uncompress: %w", err)
	}
	defer zr.Close()

	out := make([]byte, size)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("rbuf: uncompress: short read against declared size %d: %w", size, err)
	}

	// The declared size must exactly account for the inflated stream: a
	// well-formed encoder never leaves trailing plaintext.
	if n, _ := zr.Read(make([]byte, 1)); n != 0 {
		return nil, fmt.Errorf("rbuf: uncompress: trailing data beyond declared size %d", size)
	}

	return out, nil
}
