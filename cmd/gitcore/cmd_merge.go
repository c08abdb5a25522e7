package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gitcore/gitcore/pkg/merge"
	"github.com/gitcore/gitcore/pkg/rebase"
	"github.com/gitcore/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func cliAuthor() merge.Author {
	name := os.Getenv("USER")
	if name == "" {
		name = "unknown"
	}
	now := time.Now()
	return merge.Author{Name: name, Email: name + "@localhost", Time: now.Unix(), TZ: now.Format("-0700")}
}

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <branch>",
		Short: "Merge a branch into the current branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branchName := args[0]

			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			current, err := r.CurrentBranch()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "merging %s into %s...\n", branchName, current)

			result, err := r.Merge(branchName, cliAuthor())
			if err != nil {
				return err
			}

			switch {
			case result.NoOp:
				fmt.Fprintln(out, "already up to date")
			case result.HasConflicts:
				fmt.Fprintf(out, "merge completed with %d conflict", len(result.Conflicts))
				if len(result.Conflicts) != 1 {
					fmt.Fprint(out, "s")
				}
				fmt.Fprintln(out, ":")
				for _, c := range result.Conflicts {
					fmt.Fprintf(out, "  %s\n", c)
				}
				fmt.Fprintln(out, "fix conflicts and run gitcore commit")
			case result.FastForward:
				fmt.Fprintf(out, "fast-forward to %s\n", short(string(result.NewHead)))
			default:
				fmt.Fprintf(out, "merge completed cleanly\n[%s %s] merge branch '%s'\n", current, short(string(result.MergeCommit)), branchName)
			}
			return nil
		},
	}
}

func short(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

func newRebaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebase <branch>",
		Short: "Replay the current branch's commits onto another branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			branchName := args[0]

			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			current, err := r.CurrentBranch()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rebasing %s onto %s...\n", current, branchName)

			a := cliAuthor()
			result, err := r.Rebase(branchName, rebase.Author{Name: a.Name, Email: a.Email, Time: a.Time, TZ: a.TZ})
			if err != nil {
				return err
			}

			if result.Stopped {
				fmt.Fprintf(out, "rebase stopped with %d conflict", len(result.Conflicts))
				if len(result.Conflicts) != 1 {
					fmt.Fprint(out, "s")
				}
				fmt.Fprintln(out, ":")
				for _, c := range result.Conflicts {
					fmt.Fprintf(out, "  %s\n", c)
				}
				fmt.Fprintln(out, "fix conflicts, gitcore add the files, then run gitcore rebase --continue")
				return nil
			}
			fmt.Fprintln(out, "rebase completed")
			return nil
		},
	}
}

