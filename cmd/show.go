package cmd

import (
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/geo-harvester/internal/geo"
)

// newShowCmd creates the 'show' subcommand, which prints one stored study.
func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ACCESSION",
		Short: "Print a stored study row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			key := geo.StudyKey(strings.ToUpper(strings.TrimSpace(args[0])))
			rec, err := a.Lookup(cmd.Context(), key)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Field", "Value"})
			t.AppendRows([]table.Row{
				{"id", rec.ID},
				{"study_id", rec.StudyID},
				{"status", orNull(rec.Status)},
				{"title", orNull(rec.Title)},
				{"organism", orNull(rec.Organism)},
				{"experiment_type", orNull(rec.ExperimentType)},
				{"summary", orNull(rec.Summary)},
				{"overall_design", orNull(rec.OverallDesign)},
				{"citations", orNull(rec.Citations)},
				{"bioproject", orNull(rec.BioProject)},
				{"platforms", orNull(rec.Platforms)},
				{"num_samples", intOrNull(rec.NumSamples)},
				{"sample_ids", orNull(rec.SampleIDs)},
				{"sample_metadata", orNull(rec.SampleMetadata)},
			})
			t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, WidthMax: 100}})
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
}

// orNull mirrors how NULL columns print in the sqlite shell.
func orNull(s *string) string {
	if s == nil {
		return "NULL"
	}
	return *s
}

func intOrNull(n *int64) string {
	if n == nil {
		return "NULL"
	}
	return strconv.FormatInt(*n, 10)
}
