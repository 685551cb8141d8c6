// Package manifest implements the manifest parser and cross-linker: strict
// line-oriented parsing of the structured-artifact card format, and
// projection of parsed manifests into the derived PLINK/MLINK/FILENAME/
// TAG/TAGXREF/EVENT indices.
//
// Temporal tag precedence ("effective value as of mtime") is tracked the
// way a version history table would, but over a typed card grammar instead
// of free-form string tags.
package manifest

import (
	"fmt"
	"sort"
	"strings"

	"repocore"
)

// CardKind is one line-leading letter in the manifest grammar.
type CardKind byte

const (
	CardComment CardKind = 'C'
	CardDate    CardKind = 'D'
	CardFile    CardKind = 'F'
	CardParent  CardKind = 'P'
	CardRCheck  CardKind = 'R'
	CardTag     CardKind = 'T'
	CardUser    CardKind = 'U'
	CardZ       CardKind = 'Z'
)

// cardOrder is the only letter order a well-formed manifest may use; a card
// whose letter sorts earlier than the previous card's letter is out of
// order. Multiple F and T cards are permitted and sorted amongst
// themselves; the rest are singletons.
var cardOrder = map[CardKind]int{
	CardComment: 0,
	CardDate:    1,
	CardFile:    2,
	CardParent:  3,
	CardRCheck:  4,
	CardTag:     5,
	CardUser:    6,
	CardZ:       7,
}

func isSingleton(k CardKind) bool {
	switch k {
	case CardComment, CardDate, CardParent, CardRCheck, CardUser, CardZ:
		return true
	}
	return false
}

// FileCard is one F card: a file entry at a path with content UUID,
// optional permission marker, and optional prior path (rename).
type FileCard struct {
	Path    string
	UUID    repocore.UUID
	Perm    string // "" (regular), "x" (executable), "l" (symlink)
	OldPath string // non-empty only when this F card records a rename
}

// TagOp is the operator of a T card.
type TagOp byte

const (
	TagCancel      TagOp = '-'
	TagApply       TagOp = '+'
	TagPropagating TagOp = '*'
)

// TagCard is one T card.
type TagCard struct {
	Op     TagOp
	Name   string
	Value  string // only meaningful for TagApply/TagPropagating with a value
	Target string // UUID string the tag applies to; "*" means self
}

// validatePath enforces the manifest grammar's path rules: no "..", no
// leading "/", no NUL, canonical "/"-separated components.
func validatePath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("path %q: leading slash not allowed", p)
	}
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("path %q: contains NUL", p)
	}
	for _, part := range strings.Split(p, "/") {
		if part == ".." {
			return fmt.Errorf("path %q: contains ..", p)
		}
		if part == "" {
			return fmt.Errorf("path %q: empty path component", p)
		}
	}
	return nil
}

// sortFileCards sorts F cards lexicographically by path, required for
// canonical re-emission.
func sortFileCards(files []FileCard) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}
