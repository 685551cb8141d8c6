// Package resolve implements the name resolver: mapping a user string to
// an artifact identity through a seven-step precedence order: reserved
// keywords, tag: prefix, date expressions, NAME:DATE, UUID hex prefix,
// symbolic tag lookup, and bare-rid fallback.
package resolve

import (
	"strconv"
	"strings"
	"time"

	"repocore/manifest"
	"repocore/store"
)

// Outcome is the closed result enumeration: found, not_found, or
// ambiguous. Callers switch on Outcome rather than relying on virtual
// dispatch.
type Outcome int

const (
	NotFound Outcome = iota
	Found
	Ambiguous
)

// Result is the resolver's return value.
type Result struct {
	Outcome Outcome
	Rid     store.Rid
}

// Checkout is the minimal working-copy state the resolver needs for the
// current/prev/next keywords, satisfied by workcopy.Checkout without
// resolve importing workcopy (which itself imports graph).
type Checkout interface {
	CurrentRid() (store.Rid, bool)
}

// Resolver answers name-resolution queries against one store and index.
type Resolver struct {
	store    *store.Store
	idx      *manifest.Index
	checkout Checkout // nil if no working copy is open
}

// New returns a Resolver. checkout may be nil when no working copy is open;
// current/prev/previous/next then resolve to NotFound.
func New(s *store.Store, idx *manifest.Index, checkout Checkout) *Resolver {
	return &Resolver{store: s, idx: idx, checkout: checkout}
}

func isHex(s string) bool {
	if s == "" {
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

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// looksLikeISODate reports whether s, taken whole, is a parseable date: an
// ISO-8601 timestamp or plain date.
func looksLikeISODate(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseDateExpr accepts the documented forms plus the deprecated
// undocumented local:/utc: prefixes, accepted for compatibility but not
// advertised in CLI help.
func parseDateExpr(expr string) (time.Time, bool) {
	expr = strings.TrimPrefix(expr, "local:")
	expr = strings.TrimPrefix(expr, "utc:")
	return looksLikeISODate(expr)
}

// Resolve maps input to an artifact rid following the resolver's
// precedence order.
func (r *Resolver) Resolve(input string) Result {
	// Step 1: reserved keywords.
	switch input {
	case "tip":
		return r.tip()
	case "current":
		if r.checkout != nil {
			if rid, ok := r.checkout.CurrentRid(); ok {
				return Result{Outcome: Found, Rid: rid}
			}
		}
		return Result{Outcome: NotFound}
	case "prev", "previous":
		return r.relativeToCurrent(-1)
	case "next":
		return r.relativeToCurrent(1)
	}

	// Step 2: tag:NAME.
	if name, ok := strings.CutPrefix(input, "tag:"); ok {
		return r.latestTagged(name)
	}

	// Step 3: date:EXPR, or a bare ISO-8601 date.
	if expr, ok := strings.CutPrefix(input, "date:"); ok {
		if t, ok := parseDateExpr(expr); ok {
			return r.latestBefore(t)
		}
		return Result{Outcome: NotFound}
	}
	if t, ok := looksLikeISODate(input); ok {
		return r.latestBefore(t)
	}

	// Step 4: NAME:DATE.
	if idx := strings.LastIndex(input, ":"); idx > 0 {
		name, dateStr := input[:idx], input[idx+1:]
		if t, ok := parseDateExpr(dateStr); ok {
			return r.latestTaggedBefore(name, t)
		}
	}

	// Step 5: hex UUID prefix, 4..40 digits.
	if len(input) >= 4 && len(input) <= 40 && isHex(input) {
		matches := r.store.PrefixMatch(input)
		switch len(matches) {
		case 0:
			// fall through to later steps; a short hex string might also
			// be a tag name or, per step 7, a literal rid.
		case 1:
			return Result{Outcome: Found, Rid: matches[0]}
		default:
			return Result{Outcome: Ambiguous}
		}
	}

	// Step 6: sym-NAME.
	res := r.latestTagged("sym-" + input)
	if res.Outcome != NotFound {
		return res
	}

	// Step 7: pure digits as a literal rid (undocumented fallback).
	if isDigits(input) {
		n, err := strconv.ParseInt(input, 10, 64)
		if err == nil {
			rid := store.Rid(n)
			if _, err := r.store.UUIDOf(rid); err == nil {
				return Result{Outcome: Found, Rid: rid}
			}
		}
	}

	return Result{Outcome: NotFound}
}

func (r *Resolver) tip() Result {
	events := r.idx.AllEvents()
	if len(events) == 0 {
		return Result{Outcome: NotFound}
	}
	best := events[len(events)-1] // AllEvents is mtime-ascending
	return Result{Outcome: Found, Rid: best.ObjID}
}

func (r *Resolver) relativeToCurrent(direction int) Result {
	if r.checkout == nil {
		return Result{Outcome: NotFound}
	}
	cur, ok := r.checkout.CurrentRid()
	if !ok {
		return Result{Outcome: NotFound}
	}
	if direction < 0 {
		if parent, ok := r.idx.PrimaryParent(cur); ok {
			return Result{Outcome: Found, Rid: parent}
		}
		return Result{Outcome: NotFound}
	}
	children := r.idx.Children(cur)
	if len(children) == 0 {
		return Result{Outcome: NotFound}
	}
	return Result{Outcome: Found, Rid: children[0]}
}

func (r *Resolver) latestTagged(name string) Result {
	rids := r.idx.TaggedRids(name)
	return r.latestOf(rids)
}

func (r *Resolver) latestTaggedBefore(name string, t time.Time) Result {
	rids := r.idx.TaggedRids(name)
	var filtered []store.Rid
	for _, rid := range rids {
		if mt, ok := r.idx.EventMtime(rid); ok && !mt.After(t) {
			filtered = append(filtered, rid)
		}
	}
	return r.latestOf(filtered)
}

func (r *Resolver) latestBefore(t time.Time) Result {
	events := r.idx.AllEvents()
	var best *manifest.Event
	for i := range events {
		e := &events[i]
		if !e.Mtime.After(t) {
			if best == nil || e.Mtime.After(best.Mtime) {
				best = e
			}
		}
	}
	if best == nil {
		return Result{Outcome: NotFound}
	}
	return Result{Outcome: Found, Rid: best.ObjID}
}

func (r *Resolver) latestOf(rids []store.Rid) Result {
	if len(rids) == 0 {
		return Result{Outcome: NotFound}
	}
	best := rids[0]
	bestMtime, _ := r.idx.EventMtime(best)
	for _, rid := range rids[1:] {
		mt, _ := r.idx.EventMtime(rid)
		if mt.After(bestMtime) {
			best, bestMtime = rid, mt
		}
	}
	return Result{Outcome: Found, Rid: best}
}
