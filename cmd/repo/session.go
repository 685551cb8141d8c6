package main

import (
	"os"
	"path/filepath"

	"repocore"
	"repocore/config"
	"repocore/graph"
	"repocore/manifest"
	"repocore/rebuild"
	"repocore/resolve"
	"repocore/store"
	"repocore/workcopy"
)

// session is the command-layer context threaded into every subcommand's
// RunE: the store, its derived index, the open working copy (nil if one
// isn't open at cwd), and the committer identity.
type session struct {
	cfg      *config.Config
	store    *store.Store
	idx      *manifest.Index
	graph    *graph.Engine
	checkout *workcopy.Checkout // nil outside an open working copy
}

// checkoutMarker names the file a working copy keeps at its root recording
// which check-in it was opened against, so later invocations in the same
// directory reopen the same base without the caller repeating REF.
const checkoutMarker = ".repocore-checkout"

// openSession replays the repository's WAL into a fresh Store, rebuilds
// the derived index from it (nothing beyond BLOB/SHUN survives between
// process invocations), and opens the working copy at cfg.WorkDir if a
// checkout marker is present there.
func openSession() (*session, error) {
	s, err := store.Open(store.Options{WALPath: cfgManager.Config().RepoFile, SizeRatio: cfgManager.Config().SizeRatio})
	if err != nil {
		return nil, err
	}
	idx := manifest.NewIndex()
	if _, err := rebuild.Rebuild(s, idx, rebuild.Options{}); err != nil {
		return nil, err
	}

	sess := &session{cfg: cfgManager.Config(), store: s, idx: idx, graph: graph.New(idx)}

	markerPath := filepath.Join(sess.cfg.WorkDir, checkoutMarker)
	if data, err := os.ReadFile(markerPath); err == nil {
		uuidStr := string(data)
		u, err := repocore.ParseUUID(trimNewline(uuidStr))
		if err != nil {
			return nil, err
		}
		rid, err := s.RidOf(u)
		if err != nil {
			return nil, err
		}
		co, err := workcopy.Open(s, idx, sess.cfg.WorkDir, rid)
		if err != nil {
			return nil, err
		}
		sess.checkout = co
	}
	return sess, nil
}

// writeCheckoutMarker records vid's UUID as the working copy's base, so
// the next invocation in this directory reopens against it.
func (sess *session) writeCheckoutMarker(vid store.Rid) error {
	u, err := sess.store.UUIDOf(vid)
	if err != nil {
		return err
	}
	markerPath := filepath.Join(sess.cfg.WorkDir, checkoutMarker)
	if err := os.WriteFile(markerPath, []byte(u.String()+"\n"), 0o644); err != nil {
		return repocore.NewError("main.writeCheckoutMarker", repocore.KindIO, err)
	}
	return nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// resolver builds a resolve.Resolver bound to this session's store/index
// and, if open, its working copy.
func (sess *session) resolver() *resolve.Resolver {
	if sess.checkout != nil {
		return resolve.New(sess.store, sess.idx, sess.checkout)
	}
	return resolve.New(sess.store, sess.idx, nil)
}

// resolveRequired resolves ref and returns a typed error for NotFound or
// Ambiguous, instead of a bare zero rid, for commands that cannot proceed
// without a single hit.
func (sess *session) resolveRequired(op, ref string) (store.Rid, error) {
	res := sess.resolver().Resolve(ref)
	switch res.Outcome {
	case resolve.Found:
		return res.Rid, nil
	case resolve.Ambiguous:
		return 0, repocore.NewError(op, repocore.KindAmbiguous, errAmbiguousRef{ref})
	default:
		return 0, repocore.NewError(op, repocore.KindNotFound, errNoSuchRef{ref})
	}
}

// requireCheckout returns the open working copy or a NotFound error naming
// the missing precondition.
func (sess *session) requireCheckout(op string) (*workcopy.Checkout, error) {
	if sess.checkout == nil {
		return nil, repocore.NewError(op, repocore.KindNotFound, errNoCheckout{})
	}
	return sess.checkout, nil
}

type errNoSuchRef struct{ ref string }

func (e errNoSuchRef) Error() string { return "no such check-in: " + e.ref }

type errAmbiguousRef struct{ ref string }

func (e errAmbiguousRef) Error() string { return "ambiguous reference: " + e.ref }

type errNoCheckout struct{}

func (errNoCheckout) Error() string { return "no open working copy here" }
