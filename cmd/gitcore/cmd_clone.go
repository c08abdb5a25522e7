package main

import (
	"fmt"
	"path"
	"strings"

	"github.com/gitcore/gitcore/pkg/remote"
	"github.com/spf13/cobra"
)

func newCloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <url> [dir]",
		Short: "Clone a repository into a new directory",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			dest := args[1:]
			dir := ""
			if len(dest) == 1 {
				dir = dest[0]
			} else {
				dir = inferCloneDir(url)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cloning %s into %s...\n", url, dir)

			if _, err := remote.Clone(url, dir); err != nil {
				return err
			}
			fmt.Fprintf(out, "done\n")
			return nil
		},
	}
}

// inferCloneDir derives a destination directory from the last path segment
// of url, the way `git clone` does when no directory is given.
func inferCloneDir(url string) string {
	trimmed := strings.TrimSuffix(url, "/")
	base := path.Base(trimmed)
	base = strings.TrimSuffix(base, ".git")
	if base == "" || base == "." || base == "/" {
		return "cloned-repo"
	}
	return base
}
