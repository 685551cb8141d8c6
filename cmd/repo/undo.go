package main

import (
	"github.com/spf13/cobra"
)

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Reverse the effect of the last reversible working-copy operation",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession()
		if err != nil {
			return err
		}
		co, err := sess.requireCheckout("undo")
		if err != nil {
			return err
		}
		return co.Undo()
	},
}

var redoCmd = &cobra.Command{
	Use:   "redo",
	Short: "Reapply an operation just undone",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := openSession()
		if err != nil {
			return err
		}
		co, err := sess.requireCheckout("redo")
		if err != nil {
			return err
		}
		return co.Redo()
	},
}

func init() {
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(redoCmd)
}
