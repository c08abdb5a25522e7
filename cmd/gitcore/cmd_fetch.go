package main

import (
	"fmt"

	"github.com/gitcore/gitcore/pkg/remote"
	"github.com/gitcore/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [remote]",
		Short: "Download objects and refs from another repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remoteName := "origin"
			if len(args) == 1 {
				remoteName = args[0]
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			if err := remote.Fetch(r, remoteName); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "fetched from %s\n", remoteName)
			return nil
		},
	}
}

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push [remote] [branch]",
		Short: "Upload local branch commits to another repository",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			remoteName := "origin"
			if len(args) >= 1 {
				remoteName = args[0]
			}

			branch := ""
			if len(args) == 2 {
				branch = args[1]
			} else {
				branch, err = r.CurrentBranch()
				if err != nil {
					return fmt.Errorf("push: %w", err)
				}
			}

			if err := remote.Push(r, remoteName, branch); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %s to %s\n", branch, remoteName)
			return nil
		},
	}
}
