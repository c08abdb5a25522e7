package main

import (
	"fmt"
	"time"

	"github.com/gitcore/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newLogCmd() *cobra.Command {
	var oneline bool
	var limit int

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show commit history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			headHash, err := r.ResolveRef("HEAD")
			if err != nil {
				return fmt.Errorf("cannot resolve HEAD: %w", err)
			}

			commits, err := r.Log(headHash, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range commits {
				short := string(c.Hash)
				if len(short) > 8 {
					short = short[:8]
				}
				if oneline {
					fmt.Fprintf(out, "%s %s\n", short, firstLine(c.Message))
					continue
				}
				fmt.Fprintf(out, "commit %s\n", c.Hash)
				fmt.Fprintf(out, "Author: %s <%s>\n", c.Author, c.AuthorEmail)
				fmt.Fprintf(out, "Date:   %s\n", time.Unix(c.AuthorTime, 0).Format(time.RFC1123Z))
				fmt.Fprintln(out)
				fmt.Fprintf(out, "    %s\n\n", c.Message)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oneline, "oneline", false, "show one line per commit")
	cmd.Flags().IntVar(&limit, "limit", 0, "limit the number of commits shown (0 = unlimited)")

	return cmd
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
