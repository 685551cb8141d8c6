package main

import (
	"github.com/spf13/cobra"

	"repocore"
	"repocore/merge"
	"repocore/store"
)

var mergeCmd = &cobra.Command{
	Use:   "merge REF",
	Short: "Three-way merge REF into the working copy",
	Args:  cobra.ExactArgs(1),
	RunE:  runMerge,
}

func init() {
	mergeCmd.Flags().Bool("cherrypick", false, "pivot on REF's primary parent instead of the common ancestor")
	mergeCmd.Flags().Bool("backout", false, "reverse REF's change instead of applying it")
	mergeCmd.Flags().String("baseline", "", "use REF2 as the pivot directly, overriding common-ancestor computation")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	co, err := sess.requireCheckout("merge")
	if err != nil {
		return err
	}
	if err := co.RequireClean("merge"); err != nil {
		return err
	}
	co.SetBinaryGlob(sess.cfg.BinaryGlobs())

	mRid, err := sess.resolveRequired("merge", args[0])
	if err != nil {
		return err
	}

	cherrypick, _ := cmd.Flags().GetBool("cherrypick")
	backout, _ := cmd.Flags().GetBool("backout")
	baseline, _ := cmd.Flags().GetString("baseline")

	var pivot store.Rid
	switch {
	case baseline != "":
		pivot, err = sess.resolveRequired("merge", baseline)
		if err != nil {
			return err
		}
	case cherrypick || backout:
		primaryParent, ok := sess.idx.PrimaryParent(mRid)
		if !ok {
			return repocore.NewError("merge", repocore.KindNotFound, errNoParentForPivot{})
		}
		mode := merge.PivotCherryPick
		if backout {
			mode = merge.PivotBackout
		}
		p, target := merge.SelectPivot(mode, 0, int64(primaryParent), int64(mRid))
		pivot, mRid = store.Rid(p), store.Rid(target)
	default:
		pivot, err = sess.graph.Pivot(co.BaseVid(), mRid)
		if err != nil {
			return err
		}
	}

	res, err := co.Merge(sess.graph, pivot, mRid)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		cmd.Printf("warning: %s\n", w)
	}
	if res.Conflicts > 0 {
		cmd.Printf("merged with %d conflict(s); resolve and commit\n", res.Conflicts)
	} else {
		cmd.Println("merged cleanly")
	}
	return nil
}

type errNoParentForPivot struct{}

func (errNoParentForPivot) Error() string { return "cherry-pick/backout target has no primary parent" }
