// Package store implements the artifact store: content-addressed insertion
// with delta-vs-raw compression choice, iterative delta-chain
// reconstruction, SHUN/PRIVATE bookkeeping, and crash-safe writes via a
// write-ahead log.
//
// The BLOB/DELTA/SHUN/PRIVATE rows, keyed by rid, are held in in-memory
// maps; the WAL, when enabled, is the only on-disk state and is replayed
// on Open to rebuild those maps.
package store

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"repocore"
	"repocore/internal/rbuf"
	"repocore/logger"
)

// Rid is the store-local monotonically increasing row id. It is never
// persisted across repositories and carries no meaning outside one Store.
type Rid int64

// record is one BLOB table row. Exactly one of content (raw, compressed) or
// (srcRid, deltaCmds) is populated, selected by isDelta.
type record struct {
	uuid    repocore.UUID
	size    int  // uncompressed size of the artifact this row represents
	isDelta bool

	// raw storage: zlib-compressed bytes of the artifact content, or nil if
	// size 0 (rbuf.Compress(nil) still yields a valid empty-payload blob).
	compressed []byte

	// delta storage: srcRid is the base this delta is computed against;
	// deltaCmds is the ComputeDelta/ApplyDelta command stream.
	srcRid    Rid
	deltaCmds []byte

	private bool
}

// Store is a single repository's artifact table plus its derived indices.
// All exported methods are safe for concurrent use; a single in-flight
// writer is enforced by writeMu, which every mutating method holds for its
// duration (one atomic transaction per command).
type Store struct {
	mu sync.RWMutex // guards the maps below
	// writeMu serializes mutating operations repo-wide: an exclusive write
	// lock and a shared read lock cooperating model. Normal Go code would
	// reach for mu alone, but a multi-step operation like Deltify needs a
	// single in-flight writer across its whole duration, so callers take
	// writeMu explicitly.
	writeMu sync.Mutex

	byUUID map[repocore.UUID]Rid
	blobs  map[Rid]*record
	shunned map[repocore.UUID]bool

	nextRid Rid
	wal     *WAL

	sizeRatio float64 // delta chosen only if size(delta) < sizeRatio * size(content)
}

// Options configures a new Store.
type Options struct {
	// WALPath, if non-empty, enables crash-safe inserts: every Insert is
	// logged before it is applied to the in-memory tables, and replayed on
	// Open if the process died mid-write.
	WALPath string

	// SizeRatio is the delta-vs-raw threshold from config (default 0.5).
	SizeRatio float64
}

// Open creates a Store and, if opts.WALPath is set, replays any WAL entries
// left behind by a prior crash before returning.
func Open(opts Options) (*Store, error) {
	s := &Store{
		byUUID:    make(map[repocore.UUID]Rid),
		blobs:     make(map[Rid]*record),
		shunned:   make(map[repocore.UUID]bool),
		nextRid:   1,
		sizeRatio: opts.SizeRatio,
	}
	if s.sizeRatio <= 0 {
		s.sizeRatio = 0.5
	}

	if opts.WALPath != "" {
		w, err := OpenWAL(opts.WALPath)
		if err != nil {
			return nil, repocore.NewError("store.Open", repocore.KindIO, err)
		}
		s.wal = w
		if err := s.replayWAL(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Close flushes and closes the WAL, if any.
func (s *Store) Close() error {
	if s.wal == nil {
		return nil
	}
	return s.wal.Close()
}

func (s *Store) replayWAL() error {
	return s.wal.Replay(func(e WALEntry) error {
		switch e.Op {
		case WALOpInsertRaw:
			s.applyInsertRaw(Rid(e.Rid), e.UUID, e.Compressed, e.Size, e.Private)
		case WALOpInsertDelta:
			s.applyInsertDelta(Rid(e.Rid), e.UUID, Rid(e.SrcRid), e.DeltaCmds, e.Size, e.Private)
		case WALOpShun:
			s.shunned[e.UUID] = true
		case WALOpCheckpoint:
			// no-op marker; future entries supersede prior state naturally.
		default:
			return fmt.Errorf("store: replay: unknown WAL op %d", e.Op)
		}
		if Rid(e.Rid) >= s.nextRid {
			s.nextRid = Rid(e.Rid) + 1
		}
		return nil
	})
}

// Insert stores content, choosing between a raw (compressed) record and a
// delta against baseHint (if provided and smaller than sizeRatio * the
// uncompressed content size). It returns the UUID and rid of the new artifact, or the rid of the
// existing record if content was already present (dedup by UUID).
//
// If content's UUID is listed in SHUN, Insert returns a KindShunned error
// without storing anything; the shun check runs before the dedup lookup.
func (s *Store) Insert(content []byte, baseHint Rid) (repocore.UUID, Rid, error) {
	logger.LogLockOperation("", "store.writeMu", "acquire")
	s.writeMu.Lock()
	defer func() {
		s.writeMu.Unlock()
		logger.LogLockOperation("", "store.writeMu", "release")
	}()

	uuid := repocore.ComputeUUID(content)

	s.mu.RLock()
	if s.shunned[uuid] {
		s.mu.RUnlock()
		return uuid, 0, repocore.NewError("store.Insert", repocore.KindShunned, fmt.Errorf("artifact %s is shunned", uuid))
	}
	if rid, ok := s.byUUID[uuid]; ok {
		s.mu.RUnlock()
		logger.Debug("store: insert %s deduped to existing rid %d", uuid, rid)
		return uuid, rid, nil
	}
	s.mu.RUnlock()

	raw, err := rbuf.Compress(content)
	if err != nil {
		return uuid, 0, repocore.NewError("store.Insert", repocore.KindIO, err)
	}

	rid := s.nextRid

	// Decide raw vs delta.
	if baseHint != 0 {
		if base, err := s.readRid(baseHint); err == nil {
			cmds := ComputeDelta(base, content)
			logger.TraceIf("store.insert", "rid %d: delta against %d is %d bytes, raw is %d (ratio %.2f)", rid, baseHint, len(cmds), len(raw), s.sizeRatio)
			if float64(len(cmds)) < s.sizeRatio*float64(len(content)) {
				if s.wal != nil {
					if err := s.wal.LogInsertDelta(int64(rid), uuid, int64(baseHint), cmds, len(content), false); err != nil {
						return uuid, 0, repocore.NewError("store.Insert", repocore.KindIO, err)
					}
				}
				s.applyInsertDelta(rid, uuid, baseHint, cmds, len(content), false)
				s.nextRid++
				return uuid, rid, nil
			}
		}
	}

	if s.wal != nil {
		if err := s.wal.LogInsertRaw(int64(rid), uuid, raw, len(content), false); err != nil {
			return uuid, 0, repocore.NewError("store.Insert", repocore.KindIO, err)
		}
	}
	s.applyInsertRaw(rid, uuid, raw, len(content), false)
	s.nextRid++
	return uuid, rid, nil
}

func (s *Store) applyInsertRaw(rid Rid, uuid repocore.UUID, compressed []byte, size int, private bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[rid] = &record{uuid: uuid, size: size, compressed: compressed, private: private}
	s.byUUID[uuid] = rid
}

func (s *Store) applyInsertDelta(rid Rid, uuid repocore.UUID, srcRid Rid, cmds []byte, size int, private bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[rid] = &record{uuid: uuid, size: size, isDelta: true, srcRid: srcRid, deltaCmds: cmds, private: private}
	s.byUUID[uuid] = rid
}

// Read reconstructs the full content of rid, walking the delta chain
// iteratively (an explicit work-stack, never recursion, so chain depth
// cannot exhaust the goroutine stack). A rid whose own UUID is shunned is
// refused even if the row has not yet been physically removed by Sweep;
// ancestors visited only while reconstructing some other, non-shunned rid
// are read regardless, since their bytes are still needed internally
// until Sweep rematerializes every row that depends on them.
func (s *Store) Read(rid Rid) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.blobs[rid]; ok && s.shunned[rec.uuid] {
		return nil, repocore.NewError("store.Read", repocore.KindShunned, fmt.Errorf("rid %d is shunned", rid))
	}
	return s.readRid(rid)
}

// readRid must be called with s.mu held (read or write).
func (s *Store) readRid(rid Rid) ([]byte, error) {
	var chain []Rid
	cur := rid
	for {
		rec, ok := s.blobs[cur]
		if !ok {
			return nil, repocore.NewError("store.Read", repocore.KindPhantom, fmt.Errorf("rid %d has no content", cur))
		}
		chain = append(chain, cur)
		if !rec.isDelta {
			break
		}
		cur = rec.srcRid
	}

	// chain[len-1] is the raw base; walk back toward rid applying deltas.
	base := s.blobs[chain[len(chain)-1]]
	content, err := rbuf.Uncompress(base.compressed)
	if err != nil {
		return nil, repocore.NewError("store.Read", repocore.KindCorrupt, err)
	}

	for i := len(chain) - 2; i >= 0; i-- {
		rec := s.blobs[chain[i]]
		content, err = ApplyDelta(content, rec.deltaCmds)
		if err != nil {
			return nil, repocore.NewError("store.Read", repocore.KindCorrupt, fmt.Errorf("rid %d: %w", chain[i], err))
		}
	}

	if got := repocore.ComputeUUID(content); !bytes.Equal(got[:], s.blobs[rid].uuid[:]) {
		return nil, repocore.NewError("store.Read", repocore.KindCorrupt,
			fmt.Errorf("rid %d: reconstructed content hashes to %s, want %s", rid, got, s.blobs[rid].uuid))
	}

	return content, nil
}

// PrefixMatch returns every rid whose UUID starts with prefix (a lowercase
// hex string; any length from 4 to 40 hex digits is a valid shorthand). The
// caller decides what to do with zero, one, or many matches: the resolver
// treats one as found and two-or-more as ambiguous.
func (s *Store) PrefixMatch(prefix string) []Rid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Rid
	for uuid, rid := range s.byUUID {
		if strings.HasPrefix(uuid.String(), prefix) {
			out = append(out, rid)
		}
	}
	return out
}

// RidOf returns the rid for a known UUID, or KindNotFound.
func (s *Store) RidOf(uuid repocore.UUID) (Rid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rid, ok := s.byUUID[uuid]
	if !ok {
		return 0, repocore.NewError("store.RidOf", repocore.KindNotFound, fmt.Errorf("uuid %s not in store", uuid))
	}
	return rid, nil
}

// UUIDOf returns the UUID stored at rid.
func (s *Store) UUIDOf(rid Rid) (repocore.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.blobs[rid]
	if !ok {
		return repocore.NilUUID, repocore.NewError("store.UUIDOf", repocore.KindNotFound, fmt.Errorf("rid %d unknown", rid))
	}
	return rec.uuid, nil
}

// Deltify recompresses an existing raw rid as a delta against srcRid, in
// place, if doing so is smaller. It never changes rid's UUID or visible
// content, only its physical encoding, applying the detect-and-rematerialize
// recovery pattern proactively instead of reactively.
func (s *Store) Deltify(rid, srcRid Rid) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	rec, ok := s.blobs[rid]
	if !ok {
		s.mu.Unlock()
		return repocore.NewError("store.Deltify", repocore.KindNotFound, fmt.Errorf("rid %d unknown", rid))
	}
	s.mu.Unlock()

	content, err := s.Read(rid)
	if err != nil {
		return err
	}
	base, err := s.Read(srcRid)
	if err != nil {
		return err
	}

	cmds := ComputeDelta(base, content)
	if len(cmds) >= int(s.sizeRatio*float64(len(rec.compressed))) && rec.compressed != nil {
		return nil // not worth it, leave as raw
	}

	if s.wal != nil {
		if err := s.wal.LogInsertDelta(int64(rid), rec.uuid, int64(srcRid), cmds, rec.size, rec.private); err != nil {
			return repocore.NewError("store.Deltify", repocore.KindIO, err)
		}
	}

	s.mu.Lock()
	rec.isDelta = true
	rec.srcRid = srcRid
	rec.deltaCmds = cmds
	rec.compressed = nil
	s.mu.Unlock()
	return nil
}

// Shun marks uuid as shunned: future Insert calls for that content are
// rejected and Read refuses it outright. The row itself is left in place,
// bytes intact, until Sweep runs: Sweep needs those bytes to rematerialize
// any surviving delta that still names this rid as its base, and only once
// that is done can the row be removed without dangling a chain. Shun is
// idempotent.
func (s *Store) Shun(uuid repocore.UUID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shunned[uuid] {
		return nil
	}
	s.shunned[uuid] = true

	if s.wal != nil {
		if err := s.wal.LogShun(uuid); err != nil {
			return repocore.NewError("store.Shun", repocore.KindIO, err)
		}
	}
	return nil
}

// IsShunned reports whether uuid is listed in SHUN.
func (s *Store) IsShunned(uuid repocore.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shunned[uuid]
}

// Sweep reclaims every shunned artifact's storage. It first rematerializes
// every surviving delta whose base chain passes through a shunned rid, as
// a standalone raw record, so none of them still needs the shunned bytes
// to reconstruct. Only then does it delete each shunned rid's row from the
// BLOB table and its byUUID entry entirely, so a shunned UUID resolves to
// nothing at all once Sweep returns. This follows a "detect inconsistency,
// rebuild affected record, then drop it" pattern, run proactively over the
// whole table instead of lazily on read.
func (s *Store) Sweep() (rematerialized int, err error) {
	logger.LogLockOperation("", "store.writeMu", "acquire")
	s.writeMu.Lock()
	defer func() {
		s.writeMu.Unlock()
		logger.LogLockOperation("", "store.writeMu", "release")
	}()

	s.mu.RLock()
	victims := make([]Rid, 0)
	for rid, rec := range s.blobs {
		if rec.isDelta && !s.shunned[rec.uuid] && s.ancestorChainShunned(rid) {
			victims = append(victims, rid)
		}
	}
	s.mu.RUnlock()

	for _, rid := range victims {
		content, err := s.Read(rid)
		if err != nil {
			// The chain's raw base is itself already gone; nothing left to
			// rematerialize from.
			continue
		}
		raw, err := rbuf.Compress(content)
		if err != nil {
			return rematerialized, repocore.NewError("store.Sweep", repocore.KindIO, err)
		}
		s.mu.Lock()
		rec := s.blobs[rid]
		rec.isDelta = false
		rec.compressed = raw
		rec.deltaCmds = nil
		s.mu.Unlock()
		rematerialized++
	}

	s.mu.Lock()
	for uuid := range s.shunned {
		if rid, ok := s.byUUID[uuid]; ok {
			delete(s.blobs, rid)
			delete(s.byUUID, uuid)
		}
	}
	s.mu.Unlock()

	return rematerialized, nil
}

// ancestorChainShunned reports whether rid's delta base, or any of that
// base's own ancestors, is shunned. It deliberately does not check rid
// itself: a shunned rid is a deletion candidate, not a rematerialization
// candidate. Must be called with s.mu held (read or write).
func (s *Store) ancestorChainShunned(rid Rid) bool {
	rec, ok := s.blobs[rid]
	if !ok || !rec.isDelta {
		return false
	}
	cur := rec.srcRid
	for {
		anc, ok := s.blobs[cur]
		if !ok {
			return true
		}
		if s.shunned[anc.uuid] {
			return true
		}
		if !anc.isDelta {
			return false
		}
		cur = anc.srcRid
	}
}

// Len returns the number of rows in the BLOB table (raw and delta
// combined), for rebuild progress reporting.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// AllRids returns every rid currently in the table, for rebuild/scrub scans.
// The order is unspecified.
func (s *Store) AllRids() []Rid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rid, 0, len(s.blobs))
	for rid := range s.blobs {
		out = append(out, rid)
	}
	return out
}

// IsDelta reports whether rid is stored as a delta against another row,
// for the rebuilder's first-pass/second-pass split.
func (s *Store) IsDelta(rid Rid) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.blobs[rid]
	if !ok {
		return false, repocore.NewError("store.IsDelta", repocore.KindNotFound, fmt.Errorf("rid %d unknown", rid))
	}
	return rec.isDelta, nil
}

// IsPrivate reports whether rid was inserted as a private artifact, for
// rebuild's cluster/private membership pass.
func (s *Store) IsPrivate(rid Rid) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.blobs[rid]
	if !ok {
		return false, repocore.NewError("store.IsPrivate", repocore.KindNotFound, fmt.Errorf("rid %d unknown", rid))
	}
	return rec.private, nil
}
