package store

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"repocore"
)

// WALOp identifies the kind of record logged to the write-ahead log, using
// a length-prefixed-record-then-Sync discipline generalized from
// create/update/delete to the store's insert-raw/insert-delta/shun
// operations.
type WALOp byte

const (
	WALOpInsertRaw WALOp = iota
	WALOpInsertDelta
	WALOpShun
	WALOpCheckpoint
)

// WALEntry is one logged record. Exactly the fields relevant to Op are
// populated.
type WALEntry struct {
	Op         WALOp
	Rid        int64
	UUID       repocore.UUID
	Compressed []byte // WALOpInsertRaw
	SrcRid     int64  // WALOpInsertDelta
	DeltaCmds  []byte // WALOpInsertDelta
	Size       int
	Private    bool
}

// WAL is an append-only, length-prefixed, checksummed record log opened
// alongside the store's main table. Every Insert/Shun is logged here and
// fsynced before the in-memory tables are mutated, so a crash mid-write
// loses at most the in-flight record rather than corrupting the table.
type WAL struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// OpenWAL opens (creating if needed) the WAL file at path.
func OpenWAL(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("store: open WAL %s: %w", path, err)
	}
	return &WAL{file: f, path: path}, nil
}

// LogInsertRaw appends an insert-raw record and syncs to disk.
func (w *WAL) LogInsertRaw(rid int64, uuid repocore.UUID, compressed []byte, size int, private bool) error {
	return w.logEntry(WALEntry{Op: WALOpInsertRaw, Rid: rid, UUID: uuid, Compressed: compressed, Size: size, Private: private})
}

// LogInsertDelta appends an insert-delta record and syncs to disk.
func (w *WAL) LogInsertDelta(rid int64, uuid repocore.UUID, srcRid int64, cmds []byte, size int, private bool) error {
	return w.logEntry(WALEntry{Op: WALOpInsertDelta, Rid: rid, UUID: uuid, SrcRid: srcRid, DeltaCmds: cmds, Size: size, Private: private})
}

// LogShun appends a shun record and syncs to disk.
func (w *WAL) LogShun(uuid repocore.UUID) error {
	return w.logEntry(WALEntry{Op: WALOpShun, UUID: uuid})
}

// LogCheckpoint marks that every prior record has been durably applied to
// the main table; Replay can use this to skip ahead, though the current
// implementation always replays the whole log (the main table is held
// entirely in memory, so a full replay is cheap).
func (w *WAL) LogCheckpoint() error {
	return w.logEntry(WALEntry{Op: WALOpCheckpoint})
}

// serialize encodes an entry as:
//
//	[Op:1][Rid:8][SrcRid:8][Size:8][Private:1][UUID:20]
//	[CompressedLen:4][Compressed:var][DeltaLen:4][Delta:var]
//	[Checksum:32 sha256 of everything above]
func serializeEntry(e WALEntry) []byte {
	var buf []byte
	buf = append(buf, byte(e.Op))
	buf = appendUint64(buf, uint64(e.Rid))
	buf = appendUint64(buf, uint64(e.SrcRid))
	buf = appendUint64(buf, uint64(e.Size))
	if e.Private {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, e.UUID[:]...)
	buf = appendUint32(buf, uint32(len(e.Compressed)))
	buf = append(buf, e.Compressed...)
	buf = appendUint32(buf, uint32(len(e.DeltaCmds)))
	buf = append(buf, e.DeltaCmds...)

	sum := sha256.Sum256(buf)
	buf = append(buf, sum[:]...)
	return buf
}

func deserializeEntry(data []byte) (WALEntry, error) {
	var e WALEntry
	if len(data) < 1+8+8+8+1+20+4+4+32 {
		return e, fmt.Errorf("store: WAL entry too short (%d bytes)", len(data))
	}
	checksumAt := len(data) - 32
	sum := sha256.Sum256(data[:checksumAt])
	if string(sum[:]) != string(data[checksumAt:]) {
		return e, fmt.Errorf("store: WAL entry checksum mismatch")
	}

	i := 0
	e.Op = WALOp(data[i])
	i++
	e.Rid = int64(binary.BigEndian.Uint64(data[i : i+8]))
	i += 8
	e.SrcRid = int64(binary.BigEndian.Uint64(data[i : i+8]))
	i += 8
	e.Size = int(binary.BigEndian.Uint64(data[i : i+8]))
	i += 8
	e.Private = data[i] == 1
	i++
	copy(e.UUID[:], data[i:i+20])
	i += 20
	compLen := binary.BigEndian.Uint32(data[i : i+4])
	i += 4
	e.Compressed = append([]byte(nil), data[i:i+int(compLen)]...)
	i += int(compLen)
	deltaLen := binary.BigEndian.Uint32(data[i : i+4])
	i += 4
	e.DeltaCmds = append([]byte(nil), data[i:i+int(deltaLen)]...)
	i += int(deltaLen)

	return e, nil
}

func (w *WAL) logEntry(e WALEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data := serializeEntry(e)
	if err := binary.Write(w.file, binary.BigEndian, uint32(len(data))); err != nil {
		return fmt.Errorf("store: WAL write length: %w", err)
	}
	if _, err := w.file.Write(data); err != nil {
		return fmt.Errorf("store: WAL write entry: %w", err)
	}
	return w.file.Sync()
}

// Replay scans the WAL from the start and invokes fn for every entry in
// order. It is only used at Open time, before any concurrent access begins.
func (w *WAL) Replay(fn func(WALEntry) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("store: WAL replay seek: %w", err)
	}
	for {
		var length uint32
		if err := binary.Read(w.file, binary.BigEndian, &length); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("store: WAL replay length: %w", err)
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(w.file, buf); err != nil {
			// A truncated final record means the process died mid-append;
			// stop replay here rather than erroring the whole open.
			break
		}
		entry, err := deserializeEntry(buf)
		if err != nil {
			break
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("store: WAL replay seek end: %w", err)
	}
	return nil
}

// Close syncs and closes the underlying file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		return err
	}
	return w.file.Close()
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}
