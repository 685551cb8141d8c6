package merge

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeTextScenario(t *testing.T) {
	pivot := "1\n2\n3\n4\n5\n"
	v := "1\n2v\n3\n4\n5\n"
	m := "1\n2\n3\n4m\n5\n"

	res := MergeText(pivot, v, m)
	require.Equal(t, "1\n2v\n3\n4m\n5\n", res.Text)
	require.Equal(t, 0, res.Conflicts)
}

func TestMergeTextConflict(t *testing.T) {
	pivot := "1\n2\n3\n4\n5\n"
	v := "1\n2v\n3\n4\n5\n"
	m := "1\n2m\n3\n4m\n5\n"

	res := MergeText(pivot, v, m)
	require.Equal(t, 1, res.Conflicts)
	require.Contains(t, res.Text, "<<<<<<< v")
	require.Contains(t, res.Text, "2v\n")
	require.Contains(t, res.Text, "2m\n")
	require.Contains(t, res.Text, "4m\n") // the non-conflicting change still applies
}

func TestMergeTextNoOpWhenMEqualsPivot(t *testing.T) {
	pivot := "a\nb\nc\n"
	v := "a\nb2\nc\n"
	res := MergeText(pivot, v, pivot)
	require.Equal(t, v, res.Text)
	require.Equal(t, 0, res.Conflicts)
}

func TestMergeTextProducesMWhenVEqualsPivot(t *testing.T) {
	pivot := "a\nb\nc\n"
	m := "a\nb2\nc\n"
	res := MergeText(pivot, pivot, m)
	require.Equal(t, m, res.Text)
	require.Equal(t, 0, res.Conflicts)
}

func TestSelectActionTable(t *testing.T) {
	require.Equal(t, ActionKeep, SelectAction(true, true, true, true, true, true).Action)
	require.Equal(t, ActionCopyM, SelectAction(true, true, true, true, false, false).Action)
	require.Equal(t, ActionMerge, SelectAction(true, true, true, false, false, false).Action)

	d := SelectAction(true, true, false, false, false, false)
	require.Equal(t, ActionDeleteV, d.Action)
	require.Equal(t, "local edits lost", d.Warning)

	require.Equal(t, ActionAddM, SelectAction(false, false, true, false, false, false).Action)
	require.Equal(t, ActionConflictNoCommonAncestor, SelectAction(true, false, true, false, false, false).Action)
}

func TestIsBinaryDetectsNUL(t *testing.T) {
	require.True(t, IsBinary([]byte("abc\x00def")))
	require.False(t, IsBinary([]byte("plain text\n")))
}

func TestMatchesBinaryGlob(t *testing.T) {
	require.True(t, MatchesBinaryGlob("assets/logo.png", []string{"*.png", "*.jpg"}))
	require.False(t, MatchesBinaryGlob("main.go", []string{"*.png", "*.jpg"}))
}
