package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newAbstractCmd creates the 'abstract' subcommand, which prints the English
// abstract of a PubMed article cited by a study.
func newAbstractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abstract PMID",
		Short: "Print a PubMed abstract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			text, err := a.Text().Abstract(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("fetch abstract %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}
