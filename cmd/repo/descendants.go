package main

import (
	"github.com/spf13/cobra"

	"repocore/graph"
)

var descendantsCmd = &cobra.Command{
	Use:   "descendants [REF]",
	Short: "List every descendant of REF (defaulting to current) on its branch",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDescendants,
}

var leavesCmd = &cobra.Command{
	Use:   "leaves",
	Short: "List leaf check-ins",
	RunE:  runLeaves,
}

func init() {
	leavesCmd.Flags().Bool("all", false, "include closed leaves")
	leavesCmd.Flags().Bool("closed", false, "list only closed leaves")
	rootCmd.AddCommand(descendantsCmd)
	rootCmd.AddCommand(leavesCmd)
}

func runDescendants(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	ref := "current"
	if len(args) == 1 {
		ref = args[0]
	}
	base, err := sess.resolveRequired("descendants", ref)
	if err != nil {
		return err
	}
	for _, d := range sess.graph.Descendants(base) {
		u, err := sess.store.UUIDOf(d)
		if err != nil {
			return err
		}
		cmd.Println(abbrev(u))
	}
	return nil
}

func runLeaves(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	co, err := sess.requireCheckout("leaves")
	if err != nil {
		return err
	}
	base := co.BaseVid()

	mode := graph.CloseOpen
	allFlag, _ := cmd.Flags().GetBool("all")
	closedFlag, _ := cmd.Flags().GetBool("closed")
	switch {
	case allFlag:
		mode = graph.CloseAny
	case closedFlag:
		mode = graph.CloseClosed
	}

	for _, l := range sess.graph.Leaves(base, mode) {
		u, err := sess.store.UUIDOf(l)
		if err != nil {
			return err
		}
		cmd.Println(abbrev(u))
	}
	return nil
}
