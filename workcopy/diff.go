package workcopy

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"repocore"
)

// Diff returns a unified diff of stashID's recorded content against the
// working copy's current on-disk content, one section per path.
func (c *Checkout) Diff(stashID string) (string, error) {
	e, ok := c.stash.entries[stashID]
	if !ok {
		return "", repocore.NewError("workcopy.Diff", repocore.KindNotFound, errNoSuchStash{stashID})
	}
	var b strings.Builder
	for _, sf := range e.Files {
		current, _ := readCurrent(c, sf.Newname)
		ud := difflib.UnifiedDiff{
			A:        difflib.SplitLines(current),
			B:        difflib.SplitLines(string(sf.Content)),
			FromFile: sf.Newname,
			ToFile:   sf.Newname + " (stash)",
			Context:  3,
		}
		text, err := difflib.GetUnifiedDiffString(ud)
		if err != nil {
			return "", err
		}
		b.WriteString(text)
	}
	return b.String(), nil
}

func readCurrent(c *Checkout, path string) (string, error) {
	full := filepath.Join(c.root, path)
	data, err := os.ReadFile(full)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
