package main

import (
	"github.com/spf13/cobra"
)

var whatisCmd = &cobra.Command{
	Use:   "whatis NAME",
	Short: "Resolve NAME and report what it identifies",
	Args:  cobra.ExactArgs(1),
	RunE:  runWhatis,
}

func init() {
	rootCmd.AddCommand(whatisCmd)
}

func runWhatis(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	rid, err := sess.resolveRequired("whatis", args[0])
	if err != nil {
		return err
	}
	u, err := sess.store.UUIDOf(rid)
	if err != nil {
		return err
	}
	branch := sess.idx.BranchOf(rid)
	if parent, ok := sess.idx.PrimaryParent(rid); ok {
		pu, _ := sess.store.UUIDOf(parent)
		cmd.Printf("%s  check-in  branch=%s  parent=%s\n", u, branch, abbrev(pu))
		return nil
	}
	cmd.Printf("%s  check-in  branch=%s  (root)\n", u, branch)
	return nil
}
