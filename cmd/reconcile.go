package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/casampa-lab/sinaliza/internal/model"
	"github.com/casampa-lab/sinaliza/internal/workflow"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [need-id]",
	Short: "Record an operator decision on a divergent need",
	Long:  "Reconciles one pending need, or with --batch confirms the project value of every need listed in --ids.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		batch, _ := cmd.Flags().GetBool("batch")
		ids, _ := cmd.Flags().GetStringSlice("ids")
		by, _ := cmd.Flags().GetString("by")
		source, _ := cmd.Flags().GetString("source")
		justification, _ := cmd.Flags().GetString("justification")

		if batch && len(args) > 0 {
			return eris.New("reconcile: pass need ids with --ids when using --batch")
		}
		if !batch && len(args) == 0 {
			return eris.New("reconcile: need id is required")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		svc := newServices(st)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if batch {
			res, err := svc.Workflow.ReconcileBatch(ctx, idSet(ids), by, justification)
			if err != nil {
				return eris.Wrap(err, "reconcile batch")
			}
			fmt.Fprintf(os.Stderr, "Reconciled %d of %d needs (%d failed)\n", res.Reconciled, res.Requested, res.Failed)
			return enc.Encode(res)
		}

		need, err := svc.Workflow.Reconcile(ctx, args[0], workflow.DecisionInput{
			ChosenSource:  model.Source(source),
			Justification: justification,
			DecidedBy:     by,
		})
		if err != nil {
			return eris.Wrap(err, "reconcile")
		}
		return enc.Encode(need)
	},
}

func init() {
	reconcileCmd.Flags().Bool("batch", false, "confirm the project value of every need in --ids")
	reconcileCmd.Flags().StringSlice("ids", nil, "need ids for --batch (comma separated)")
	reconcileCmd.Flags().String("source", string(model.SourceProjeto), "chosen source: projeto or inferencia")
	reconcileCmd.Flags().String("justification", "", "decision justification (required for inferencia)")
	reconcileCmd.Flags().String("by", "", "operator recording the decision (required)")
	_ = reconcileCmd.MarkFlagRequired("by")
	rootCmd.AddCommand(reconcileCmd)
}

// idSet trims and deduplicates ids.
func idSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}
