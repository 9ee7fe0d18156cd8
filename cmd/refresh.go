package cmd

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-harvester/internal/enumerate"
	"github.com/JakeFAU/geo-harvester/internal/geo"
)

// newRefreshCmd creates the 'refresh' subcommand, which re-reads the overall
// design of studies that are already stored.
func newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh [ACCESSION...]",
		Short: "Re-fetch the overall design of stored studies",
		Long: `Re-fetches only the study page of each accession and overwrites the stored
overall_design column. Accessions come from the arguments, or from the
--start/--end range when none are given. Studies that are not stored are
reported and left alone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := a.Config()

			keys := enumerate.Explicit(args)
			if len(keys) == 0 {
				keys = enumerate.Range(cfg.Harvest.Prefix, cfg.Harvest.Start, cfg.Harvest.End)
			}

			runID, err := newRunID()
			if err != nil {
				return err
			}
			logger := commandLogger(a, "refresh", runID)
			coordinator := a.Coordinator(runID)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Study", "Result"})
			for _, key := range keys {
				if cmd.Context().Err() != nil {
					break
				}
				t.AppendRow(table.Row{key, refreshResult(coordinator.RefreshOverallDesign(cmd.Context(), key), key, logger)})
			}
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
	cmd.Flags().String("prefix", enumerate.DefaultPrefix, "accession prefix for the range")
	cmd.Flags().Int("start", 1, "first accession number (inclusive)")
	cmd.Flags().Int("end", 1, "last accession number (inclusive)")
	return cmd
}

func refreshResult(err error, key geo.StudyKey, logger *zap.Logger) string {
	switch {
	case err == nil:
		return "updated"
	case errors.Is(err, geo.ErrNotFound):
		return "not stored"
	default:
		logger.Warn("refresh failed", zap.String("study_id", string(key)), zap.Error(err))
		return fmt.Sprintf("failed: %v", err)
	}
}
