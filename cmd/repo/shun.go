package main

import (
	"github.com/spf13/cobra"

	"repocore"
)

var shunCmd = &cobra.Command{
	Use:   "shun UUID",
	Short: "Add UUID to the shun list, hiding its content from future reads",
	Args:  cobra.ExactArgs(1),
	RunE:  runShun,
}

func init() {
	rootCmd.AddCommand(shunCmd)
}

func runShun(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	u, err := repocore.ParseUUID(args[0])
	if err != nil {
		return err
	}
	if err := sess.store.Shun(u); err != nil {
		return err
	}
	cmd.Printf("shunned %s\n", abbrev(u))
	return nil
}
