package main

import (
	"github.com/spf13/cobra"

	"repocore"
)

var scrubCmd = &cobra.Command{
	Use:   "scrub",
	Short: "Permanently remove shunned content and, with --private, private artifacts",
	RunE:  runScrub,
}

func init() {
	scrubCmd.Flags().Bool("private", false, "also shun every artifact marked private")
	scrubCmd.Flags().Bool("verily", false, "has no effect: scrub always rematerializes every delta whose chain reaches a shunned artifact")
	scrubCmd.Flags().Bool("force", false, "skip the confirmation that scrub is irreversible")
	rootCmd.AddCommand(scrubCmd)
}

func runScrub(cmd *cobra.Command, args []string) error {
	private, _ := cmd.Flags().GetBool("private")
	force, _ := cmd.Flags().GetBool("force")
	if !force {
		return repocore.NewError("scrub", repocore.KindWorkingCopyDirty, errScrubNeedsForce{})
	}

	sess, err := openSession()
	if err != nil {
		return err
	}

	shunned := 0
	if private {
		for _, rid := range sess.store.AllRids() {
			priv, err := sess.store.IsPrivate(rid)
			if err != nil {
				return err
			}
			if !priv {
				continue
			}
			u, err := sess.store.UUIDOf(rid)
			if err != nil {
				return err
			}
			if err := sess.store.Shun(u); err != nil {
				return err
			}
			shunned++
		}
	}

	rematerialized, err := sess.store.Sweep()
	if err != nil {
		return err
	}

	cmd.Printf("shunned %d private artifact(s), rematerialized %d descendant(s)\n", shunned, rematerialized)
	return nil
}

type errScrubNeedsForce struct{}

func (errScrubNeedsForce) Error() string {
	return "scrub is irreversible; pass --force to proceed"
}
