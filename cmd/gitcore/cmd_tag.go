package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/gitcore/gitcore/pkg/repo"
	"github.com/spf13/cobra"
)

func newTagCmd() *cobra.Command {
	var message string
	var deleteTag string
	var force bool

	cmd := &cobra.Command{
		Use:   "tag [name]",
		Short: "Create, list, or delete tags",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			if deleteTag != "" {
				if err := r.DeleteTag(deleteTag); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted tag '%s'\n", deleteTag)
				return nil
			}

			if len(args) == 1 {
				head, err := r.ResolveRef("HEAD")
				if err != nil {
					return fmt.Errorf("cannot resolve HEAD: %w", err)
				}
				if message != "" {
					tagger := os.Getenv("USER")
					if tagger == "" {
						tagger = "unknown"
					}
					if _, err := r.CreateAnnotatedTag(args[0], head, tagger, message, force); err != nil {
						return err
					}
					return nil
				}
				return r.CreateTag(args[0], head, force)
			}

			tags, err := r.ListTags()
			if err != nil {
				return err
			}
			sort.Strings(tags)
			out := cmd.OutOrStdout()
			for _, t := range tags {
				fmt.Fprintln(out, t)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "create an annotated tag with this message")
	cmd.Flags().StringVarP(&deleteTag, "delete", "d", "", "delete the named tag")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing tag")
	return cmd
}
