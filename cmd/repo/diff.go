package main

import (
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"repocore/store"
)

var diffCmd = &cobra.Command{
	Use:   "diff [FILE...]",
	Short: "Show a unified diff between two check-ins, or between a check-in and the working copy",
	RunE:  runDiff,
}

func init() {
	diffCmd.Flags().String("from", "", "check-in to diff from (defaults to the working copy's base)")
	diffCmd.Flags().String("to", "", "check-in to diff to (defaults to the working copy's current on-disk content)")
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}

	fromRef, _ := cmd.Flags().GetString("from")
	toRef, _ := cmd.Flags().GetString("to")

	var fromVid store.Rid
	if fromRef != "" {
		fromVid, err = sess.resolveRequired("diff", fromRef)
		if err != nil {
			return err
		}
	} else {
		co, err := sess.requireCheckout("diff")
		if err != nil {
			return err
		}
		fromVid = co.BaseVid()
	}
	fromFiles := sess.idx.FileState(fromVid)

	// toFiles == nil means "the live working copy", read straight off disk.
	var toFiles map[string]store.Rid
	var liveRoot string
	if toRef != "" {
		toVid, err := sess.resolveRequired("diff", toRef)
		if err != nil {
			return err
		}
		toFiles = sess.idx.FileState(toVid)
	} else {
		co, err := sess.requireCheckout("diff")
		if err != nil {
			return err
		}
		liveRoot = co.Root()
	}

	paths := args
	if len(paths) == 0 {
		seen := map[string]bool{}
		for p := range fromFiles {
			seen[p] = true
		}
		if toFiles != nil {
			for p := range toFiles {
				seen[p] = true
			}
		} else {
			st, err := requireStatusPaths(sess)
			if err != nil {
				return err
			}
			for _, p := range st {
				seen[p] = true
			}
		}
		for p := range seen {
			paths = append(paths, p)
		}
	}

	for _, path := range paths {
		a, aOK := readRidContent(sess.store, fromFiles, path)
		var b []byte
		var bOK bool
		if toFiles != nil {
			b, bOK = readRidContent(sess.store, toFiles, path)
		} else {
			data, err := os.ReadFile(filepath.Join(liveRoot, path))
			bOK = err == nil
			b = data
		}
		if !aOK && !bOK {
			continue
		}
		if aOK && bOK && string(a) == string(b) {
			continue
		}
		ud := difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(a)),
			B:        difflib.SplitLines(string(b)),
			FromFile: path,
			ToFile:   path,
			Context:  3,
		}
		text, err := difflib.GetUnifiedDiffString(ud)
		if err != nil {
			return err
		}
		cmd.Print(text)
	}
	return nil
}

func readRidContent(s *store.Store, fileState map[string]store.Rid, path string) ([]byte, bool) {
	rid, ok := fileState[path]
	if !ok {
		return nil, false
	}
	content, err := s.Read(rid)
	if err != nil {
		return nil, false
	}
	return content, true
}

// requireStatusPaths lists the working copy's tracked paths, for the
// no-FILE-args case when comparing against live disk content.
func requireStatusPaths(sess *session) ([]string, error) {
	co, err := sess.requireCheckout("diff")
	if err != nil {
		return nil, err
	}
	st, err := co.Status()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(st))
	for _, vf := range st {
		out = append(out, vf.Pathname)
	}
	return out, nil
}
