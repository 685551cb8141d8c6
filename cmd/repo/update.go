package main

import (
	"github.com/spf13/cobra"

	"repocore/workcopy"
)

var updateCmd = &cobra.Command{
	Use:   "update [REF]",
	Short: "Move the working copy to REF (defaulting to tip), merging local edits forward",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	ref := "tip"
	if len(args) == 1 {
		ref = args[0]
	}
	target, err := sess.resolveRequired("update", ref)
	if err != nil {
		return err
	}

	// No working copy open yet at cfg.WorkDir: this invocation opens one,
	// projecting target directly (there is nothing local to preserve).
	if sess.checkout == nil {
		co, err := workcopy.Open(sess.store, sess.idx, sess.cfg.WorkDir, target)
		if err != nil {
			return err
		}
		if err := sess.writeCheckoutMarker(target); err != nil {
			return err
		}
		u, _ := sess.store.UUIDOf(target)
		cmd.Printf("checked out %s\n", abbrev(u))
		_ = co
		return nil
	}

	co := sess.checkout
	dirty, err := co.IsDirty()
	if err != nil {
		return err
	}

	if !dirty {
		if err := co.Switch(target); err != nil {
			return err
		}
		return sess.writeCheckoutMarker(target)
	}

	// Preserve uncommitted edits across the move: autostash, switch, then
	// replay the stash back in via three-way merge (workcopy.Save/Switch/Pop
	// compose exactly into this without a dedicated merge-on-update path).
	entry, err := co.Save("update: autostash", nil)
	if err != nil {
		return err
	}
	if err := co.Switch(target); err != nil {
		return err
	}
	conflicts, err := co.Pop(entry.StashID)
	if err != nil {
		return err
	}
	if err := sess.writeCheckoutMarker(target); err != nil {
		return err
	}
	u, _ := sess.store.UUIDOf(target)
	if conflicts > 0 {
		cmd.Printf("updated to %s with %d conflict(s)\n", abbrev(u), conflicts)
	} else {
		cmd.Printf("updated to %s\n", abbrev(u))
	}
	return nil
}
