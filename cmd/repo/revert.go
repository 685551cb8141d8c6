package main

import (
	"github.com/spf13/cobra"
)

var revertCmd = &cobra.Command{
	Use:   "revert [FILE...]",
	Short: "Restore named paths (or the whole working copy) to the base check-in's content",
	RunE:  runRevert,
}

func init() {
	rootCmd.AddCommand(revertCmd)
}

func runRevert(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	co, err := sess.requireCheckout("revert")
	if err != nil {
		return err
	}
	return co.Revert(args)
}
