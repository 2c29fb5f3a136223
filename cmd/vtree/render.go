package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vango-dev/vtree/internal/treedoc"
)

func renderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render <tree.yaml>",
		Short: "Print a tree as HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := treedoc.ParseFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHTML(n))
			return nil
		},
	}
}
