package main

import (
	"sort"

	"github.com/spf13/cobra"

	"repocore"
	"repocore/metrics"
	"repocore/workcopy"
)

var stashCmd = &cobra.Command{
	Use:   "stash",
	Short: "Manage named off-tree collections of pending working-copy changes",
}

var stashSaveCmd = &cobra.Command{
	Use:   "save [FILE...]",
	Short: "Capture pending changes into a new stash entry and revert the working copy",
	RunE:  runStashSave,
}

var stashSnapshotCmd = &cobra.Command{
	Use:   "snapshot [FILE...]",
	Short: "Capture pending changes into a new stash entry without reverting",
	RunE:  runStashSnapshot,
}

var stashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stash entries",
	RunE:  runStashList,
}

var stashApplyCmd = &cobra.Command{
	Use:   "apply STASHID",
	Short: "Replay a stash entry into the working copy via three-way merge, keeping it",
	Args:  cobra.ExactArgs(1),
	RunE:  runStashApply,
}

var stashPopCmd = &cobra.Command{
	Use:   "pop STASHID",
	Short: "Apply a stash entry then drop it",
	Args:  cobra.ExactArgs(1),
	RunE:  runStashPop,
}

var stashGotoCmd = &cobra.Command{
	Use:   "goto STASHID",
	Short: "Switch to the stash entry's base check-in, then apply it",
	Args:  cobra.ExactArgs(1),
	RunE:  runStashGoto,
}

var stashDropCmd = &cobra.Command{
	Use:   "drop STASHID",
	Short: "Discard a stash entry without applying it",
	Args:  cobra.ExactArgs(1),
	RunE:  runStashDrop,
}

var stashDiffCmd = &cobra.Command{
	Use:   "diff STASHID",
	Short: "Show a unified diff of a stash entry against the working copy",
	Args:  cobra.ExactArgs(1),
	RunE:  runStashDiff,
}

func init() {
	stashCmd.Flags().StringP("message", "m", "", "stash comment")
	stashSaveCmd.Flags().StringP("message", "m", "", "stash comment")
	stashSnapshotCmd.Flags().StringP("message", "m", "", "stash comment")
	stashCmd.AddCommand(stashSaveCmd, stashSnapshotCmd, stashListCmd, stashApplyCmd, stashPopCmd, stashGotoCmd, stashDropCmd, stashDiffCmd)
	rootCmd.AddCommand(stashCmd)
}

func runStashSave(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	co, err := sess.requireCheckout("stash save")
	if err != nil {
		return err
	}
	msg, _ := cmd.Flags().GetString("message")
	e, err := co.Save(msg, args)
	if err != nil {
		return err
	}
	metrics.StashEntriesTotal.Set(float64(len(co.Stash().List())))
	cmd.Printf("stashed as %s\n", e.StashID)
	return nil
}

func runStashSnapshot(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	co, err := sess.requireCheckout("stash snapshot")
	if err != nil {
		return err
	}
	msg, _ := cmd.Flags().GetString("message")
	e, err := co.Snapshot(msg, args)
	if err != nil {
		return err
	}
	metrics.StashEntriesTotal.Set(float64(len(co.Stash().List())))
	cmd.Printf("snapshotted as %s\n", e.StashID)
	return nil
}

func runStashList(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	co, err := sess.requireCheckout("stash list")
	if err != nil {
		return err
	}
	entries := co.Stash().List()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Ctime.Before(entries[j].Ctime) })
	for _, e := range entries {
		cmd.Printf("%s  %s  %d file(s)\n", e.StashID, e.Comment, len(e.Files))
	}
	return nil
}

func runStashApply(cmd *cobra.Command, args []string) error {
	co, err := openCheckout("stash apply")
	if err != nil {
		return err
	}
	conflicts, err := co.Apply(args[0])
	return reportStashConflicts(cmd, args[0], conflicts, err)
}

func runStashPop(cmd *cobra.Command, args []string) error {
	co, err := openCheckout("stash pop")
	if err != nil {
		return err
	}
	conflicts, err := co.Pop(args[0])
	return reportStashConflicts(cmd, args[0], conflicts, err)
}

func runStashGoto(cmd *cobra.Command, args []string) error {
	co, err := openCheckout("stash goto")
	if err != nil {
		return err
	}
	conflicts, err := co.Goto(args[0])
	return reportStashConflicts(cmd, args[0], conflicts, err)
}

func runStashDrop(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	co, err := sess.requireCheckout("stash drop")
	if err != nil {
		return err
	}
	if !co.Stash().Drop(args[0]) {
		return repocore.NewError("stash drop", repocore.KindNotFound, errNoSuchStashRef{args[0]})
	}
	metrics.StashEntriesTotal.Set(float64(len(co.Stash().List())))
	return nil
}

func runStashDiff(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	co, err := sess.requireCheckout("stash diff")
	if err != nil {
		return err
	}
	text, err := co.Diff(args[0])
	if err != nil {
		return err
	}
	cmd.Print(text)
	return nil
}

// openCheckout is a small convenience for subcommands that only need the
// working copy, not the rest of the session.
func openCheckout(op string) (*workcopy.Checkout, error) {
	sess, err := openSession()
	if err != nil {
		return nil, err
	}
	return sess.requireCheckout(op)
}

func reportStashConflicts(cmd *cobra.Command, stashID string, conflicts int, err error) error {
	if err != nil {
		return err
	}
	if conflicts > 0 {
		cmd.Printf("applied %s with %d conflict(s)\n", stashID, conflicts)
	} else {
		cmd.Printf("applied %s cleanly\n", stashID)
	}
	return nil
}

type errNoSuchStashRef struct{ id string }

func (e errNoSuchStashRef) Error() string { return "no such stash entry: " + e.id }
