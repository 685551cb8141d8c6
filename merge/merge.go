// Package merge implements the three-way merge engine: LCS-based
// per-line diffing against a pivot, the six-case per-file action table,
// conflict-block emission, and binary/symlink guards.
//
// The LCS matching itself is delegated to github.com/pmezard/go-difflib's
// SequenceMatcher, a direct Go port of Python's difflib, rather than
// hand-rolling an LCS implementation.
package merge

import (
	"bytes"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"repocore"
)

// FileAction is the outcome of per-file action selection.
type FileAction int

const (
	ActionKeep FileAction = iota // keep v as is (v≡p≡m, or v already equals m)
	ActionCopyM
	ActionMerge
	ActionDeleteV
	ActionAddM
	ActionConflictNoCommonAncestor
)

// FileDecision is the result of SelectAction for one path.
type FileDecision struct {
	Action  FileAction
	Warning string // e.g. "local edits lost" when v≠p but m deleted the file
}

// SelectAction implements the six-row per-file action table. present*
// reports whether the path exists in pivot/v/m; eq* reports content
// equality between the named pair, valid only when both sides are present.
func SelectAction(presentP, presentV, presentM bool, vEqP, mEqP, vEqM bool) FileDecision {
	switch {
	case presentP && presentV && presentM:
		switch {
		case vEqP && mEqP:
			return FileDecision{Action: ActionKeep}
		case vEqP && !mEqP:
			return FileDecision{Action: ActionCopyM}
		case !vEqP && !mEqP && !vEqM:
			return FileDecision{Action: ActionMerge}
		default: // vEqM, or v unchanged from p table already handled above
			return FileDecision{Action: ActionKeep}
		}
	case presentP && presentV && !presentM:
		d := FileDecision{Action: ActionDeleteV}
		if !vEqP {
			d.Warning = "local edits lost"
		}
		return d
	case !presentP && !presentV && presentM:
		return FileDecision{Action: ActionAddM}
	case presentP && !presentV && presentM:
		return FileDecision{Action: ActionConflictNoCommonAncestor}
	default:
		return FileDecision{Action: ActionKeep}
	}
}

// Result is the outcome of a three-way text merge.
type Result struct {
	Text      string
	Conflicts int
}

const (
	conflictStart   = "<<<<<<< v\n"
	conflictMiddle  = "======= p\n"
	conflictMiddle2 = "------- m\n"
	conflictEnd     = ">>>>>>> m\n"
)

// region is one non-equal opcode expressed in pivot-line coordinates, with
// the replacement lines it contributes. An insertion has pStart == pEnd.
type region struct {
	pStart, pEnd int
	lines        []string
}

func opcodesFor(a, b []string) []difflib.OpCode {
	sm := difflib.NewMatcher(a, b)
	return sm.GetOpCodes()
}

// nonEqualRegions extracts every replace/delete/insert opcode from diffing
// pivot against other, in ascending pivot-coordinate order (the order
// SequenceMatcher already produces them in).
func nonEqualRegions(pivot, other []string) []region {
	var out []region
	for _, op := range opcodesFor(pivot, other) {
		if op.Tag == 'e' {
			continue
		}
		out = append(out, region{pStart: op.I1, pEnd: op.I2, lines: append([]string(nil), other[op.J1:op.J2]...)})
	}
	return out
}

// MergeText performs an LCS-based three-way merge: diff p to v and p to
// m with go-difflib's SequenceMatcher, then sweep the pivot's
// line coordinates left to right, grouping every v-change and m-change
// that overlap (even transitively, through a chain of touching regions on
// either side) into one merge group. A group touched by only one side
// emits that side's text; a group touched by both sides emits the shared
// text once if both produced the identical result, otherwise a conflict
// block, counting one conflict per group.
func MergeText(pivot, v, m string) Result {
	pLines := splitLines(pivot)
	vLines := splitLines(v)
	mLines := splitLines(m)

	vRegions := nonEqualRegions(pLines, vLines)
	mRegions := nonEqualRegions(pLines, mLines)

	var out strings.Builder
	conflicts := 0

	pos, vi, mi := 0, 0, 0
	for vi < len(vRegions) || mi < len(mRegions) {
		start := len(pLines)
		if vi < len(vRegions) && vRegions[vi].pStart < start {
			start = vRegions[vi].pStart
		}
		if mi < len(mRegions) && mRegions[mi].pStart < start {
			start = mRegions[mi].pStart
		}
		if start > pos {
			out.WriteString(strings.Join(pLines[pos:start], ""))
			pos = start
		}

		groupEnd := pos
		var groupV, groupM []region
		for {
			advanced := false
			if vi < len(vRegions) && vRegions[vi].pStart <= groupEnd {
				groupV = append(groupV, vRegions[vi])
				if vRegions[vi].pEnd > groupEnd {
					groupEnd = vRegions[vi].pEnd
				}
				vi++
				advanced = true
			}
			if mi < len(mRegions) && mRegions[mi].pStart <= groupEnd {
				groupM = append(groupM, mRegions[mi])
				if mRegions[mi].pEnd > groupEnd {
					groupEnd = mRegions[mi].pEnd
				}
				mi++
				advanced = true
			}
			if !advanced {
				break
			}
		}

		switch {
		case len(groupV) > 0 && len(groupM) == 0:
			out.WriteString(joinRegions(groupV))
		case len(groupM) > 0 && len(groupV) == 0:
			out.WriteString(joinRegions(groupM))
		default:
			vText := joinRegions(groupV)
			mText := joinRegions(groupM)
			if vText == mText {
				out.WriteString(vText)
			} else {
				conflicts++
				writeConflict(&out, pLines[pos:groupEnd], linesOfGroup(groupV), linesOfGroup(groupM))
			}
		}
		pos = groupEnd
	}
	if pos < len(pLines) {
		out.WriteString(strings.Join(pLines[pos:], ""))
	}

	return Result{Text: out.String(), Conflicts: conflicts}
}

func joinRegions(rs []region) string {
	return strings.Join(linesOfGroup(rs), "")
}

func linesOfGroup(rs []region) []string {
	var out []string
	for _, r := range rs {
		out = append(out, r.lines...)
	}
	return out
}

func writeConflict(out *strings.Builder, pivotLines, vLines, mLines []string) {
	out.WriteString(conflictStart)
	for _, l := range vLines {
		out.WriteString(l)
	}
	out.WriteString(conflictMiddle)
	for _, l := range pivotLines {
		out.WriteString(l)
	}
	out.WriteString(conflictMiddle2)
	for _, l := range mLines {
		out.WriteString(l)
	}
	out.WriteString(conflictEnd)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// IsBinary applies the content heuristic: a NUL byte anywhere in the
// first 8KiB marks content as binary.
func IsBinary(content []byte) bool {
	probe := content
	if len(probe) > 8192 {
		probe = probe[:8192]
	}
	return bytes.IndexByte(probe, 0) >= 0
}

// MatchesBinaryGlob reports whether path matches any of the configured
// binary-file glob patterns (e.g. "*.png", "*.zip").
func MatchesBinaryGlob(path string, globs []string) bool {
	base := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		base = path[idx+1:]
	}
	for _, g := range globs {
		if ok, err := filepath.Match(g, base); ok && err == nil {
			return true
		}
	}
	return false
}

// ErrSymlinkMerge is the error value for a merge where one side is a
// symlink and the other a regular file, or both sides are symlinks with
// differing targets: symlinks are never merged. No function in this
// package returns it.
var ErrSymlinkMerge = repocore.NewError("merge.MergeEntry", repocore.KindMalformed, symlinkMergeErr{})

type symlinkMergeErr struct{}

func (symlinkMergeErr) Error() string { return "symlinks are never merged" }

// Pivot selection for cherry-pick/backout: collapse to a two-parent
// pivot choice instead of the general multi-parent Pivot computation.
type PivotMode int

const (
	PivotNormal PivotMode = iota
	PivotCherryPick
	PivotBackout
)

// SelectPivot returns the (pivot, target) rid pair to feed into MergeText
// given the mode. primaryParentOfM and m are the merge target's primary
// parent and own rid; normalPivot is the result of graph.Pivot for the
// non-cherry-pick case.
func SelectPivot(mode PivotMode, normalPivot, primaryParentOfM, m int64) (pivot, target int64) {
	switch mode {
	case PivotCherryPick:
		return primaryParentOfM, m
	case PivotBackout:
		return m, primaryParentOfM
	default:
		return normalPivot, m
	}
}
