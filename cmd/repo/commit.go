package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"repocore"
	"repocore/manifest"
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Record the working copy's tracked changes as a new check-in",
	RunE:  runCommit,
}

func init() {
	commitCmd.Flags().StringP("message", "m", "", "check-in comment (required)")
	_ = commitCmd.MarkFlagRequired("message")
	rootCmd.AddCommand(commitCmd)
}

func runCommit(cmd *cobra.Command, args []string) error {
	sess, err := openSession()
	if err != nil {
		return err
	}
	co, err := sess.requireCheckout("commit")
	if err != nil {
		return err
	}

	st, err := co.Status()
	if err != nil {
		return err
	}

	var changed, deleted int
	for _, vf := range st {
		if vf.Chnged {
			changed++
		}
		if vf.Deleted {
			deleted++
		}
	}
	if changed == 0 && deleted == 0 {
		return repocore.NewError("commit", repocore.KindNotFound, errNothingToCommit{})
	}

	baseVid := co.BaseVid()
	basePerm := sess.idx.FilePerm(baseVid)

	files := make([]manifest.FileCard, 0, len(st))
	for i := range st {
		vf := &st[i]
		if vf.Deleted {
			continue
		}
		path := vf.Pathname
		if vf.Chnged {
			full := filepath.Join(co.Root(), path)
			content, err := os.ReadFile(full)
			if err != nil {
				return repocore.NewError("commit", repocore.KindIO, err)
			}
			perm := permMarker(vf.IsExe, vf.IsLink)
			_, newRid, err := sess.store.Insert(content, vf.Rid)
			if err != nil {
				return err
			}
			u, err := sess.store.UUIDOf(newRid)
			if err != nil {
				return err
			}
			files = append(files, manifest.FileCard{Path: path, UUID: u, Perm: perm})
			continue
		}
		u, err := sess.store.UUIDOf(vf.Rid)
		if err != nil {
			return err
		}
		files = append(files, manifest.FileCard{Path: path, UUID: u, Perm: basePerm[path]})
	}

	msg, _ := cmd.Flags().GetString("message")
	baseUUID, err := sess.store.UUIDOf(baseVid)
	if err != nil {
		return err
	}

	m := &manifest.Manifest{
		Comment: msg,
		Date:    time.Now(),
		User:    sess.cfg.User,
		Files:   files,
		Parents: []repocore.UUID{baseUUID},
	}
	raw := []byte(m.String())
	_, newRid, err := sess.store.Insert(raw, 0)
	if err != nil {
		return err
	}
	if err := sess.idx.LinkManifest(sess.store, newRid, m); err != nil {
		return err
	}

	if err := co.Switch(newRid); err != nil {
		return err
	}
	if err := sess.writeCheckoutMarker(newRid); err != nil {
		return err
	}

	u, err := sess.store.UUIDOf(newRid)
	if err != nil {
		return err
	}
	cmd.Printf("checked in %s\n", abbrev(u))
	return nil
}

// permMarker renders a VFILE row's executable/symlink flags as the F-card
// permission marker ("", "x", "l").
func permMarker(isExe, isLink bool) string {
	switch {
	case isLink:
		return "l"
	case isExe:
		return "x"
	default:
		return ""
	}
}

func abbrev(u repocore.UUID) string { return u.String()[:10] }

type errNothingToCommit struct{}

func (errNothingToCommit) Error() string { return "nothing has changed; nothing to commit" }
