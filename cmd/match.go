package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/casampa-lab/sinaliza/internal/pipeline"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match a lot's need rows against the inventory",
	Long: `Runs the batch orchestrator for one lot, highway and asset type: matches each need, infers its service, flags divergences and stores the outcome.

Match tiers come from matching.tier_exact_pct and matching.tier_high_pct
(defaults 95 and 75). An overlap or score at or above tier_high_pct is "alto";
set SINALIZA_MATCHING_TIER_HIGH_PCT=70 to class a 70% overlap as alto.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("match"); err != nil {
			return err
		}
		sel, err := selectionFromFlags(cmd)
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		asJSON, _ := cmd.Flags().GetBool("json")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc := newServices(st)
		report, err := svc.Pipeline.Run(ctx, sel, force)
		if err != nil {
			return eris.Wrap(err, "match")
		}

		zap.L().Info("match complete",
			zap.Int("total", report.Total),
			zap.Int("matches", report.Matches),
			zap.Int("divergences", report.Divergences),
			zap.Int("errors", report.Errors),
		)

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		formatReport(os.Stdout, report)
		return nil
	},
}

func init() {
	addSelectionFlags(matchCmd, true)
	matchCmd.Flags().Bool("force", false, "recompute needs that were already reconciled")
	matchCmd.Flags().Bool("json", false, "print the batch report as JSON")
	rootCmd.AddCommand(matchCmd)
}

// formatReport writes a batch report summary to out.
func formatReport(out io.Writer, r *pipeline.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Lot\t%s\n", r.Selection.LotID)
	_, _ = fmt.Fprintf(w, "Highway\t%s\n", r.Selection.HighwayID)
	_, _ = fmt.Fprintf(w, "Asset type\t%s\n", r.Selection.AssetType)
	_, _ = fmt.Fprintf(w, "Tolerance (m)\t%g\n", r.ToleranceM)
	_, _ = fmt.Fprintf(w, "Inventory\t%d\n", r.Inventory)
	_, _ = fmt.Fprintf(w, "Needs\t%d\n", r.Total)
	_, _ = fmt.Fprintf(w, "Matches\t%d\n", r.Matches)
	_, _ = fmt.Fprintf(w, "New elements\t%d\n", r.NewElements)
	_, _ = fmt.Fprintf(w, "Divergences\t%d\n", r.Divergences)
	_, _ = fmt.Fprintf(w, "Errors\t%d\n", r.Errors)
	_, _ = fmt.Fprintf(w, "Duration\t%dms\n", r.DurationMs)
	_ = w.Flush()

	if len(r.ErrorLog) == 0 {
		return
	}
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NEED\tERROR")
	for _, e := range r.ErrorLog {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", e.NeedID, e.Message)
	}
	_ = w.Flush()
}
