package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dusk-indust/tsgdraft/internal/tsg"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check writer output for markers, headings, and placeholders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readOptional(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			v := tsg.Validate(text)
			if v.Valid {
				fmt.Fprintln(out, doneStyle.Render("✓ TSG structure is valid."))
				if ph := tsg.Placeholders(v.TSGContent); len(ph) > 0 {
					fmt.Fprintf(out, "  %d placeholder(s) awaiting answers:\n", len(ph))
					for _, p := range ph {
						fmt.Fprintf(out, "  - %s\n", p)
					}
				}
				return nil
			}

			fmt.Fprintln(out, errorStyle.Render("Validation errors:"))
			for _, issue := range v.Issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
			return fmt.Errorf("TSG has %d validation issue(s)", len(v.Issues))
		},
	}
}
