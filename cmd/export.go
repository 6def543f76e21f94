package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/casampa-lab/sinaliza/internal/model"
	"github.com/casampa-lab/sinaliza/internal/report"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a lot's needs, outcomes and decisions to XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		sel, err := selectionFromFlags(cmd)
		if err != nil {
			return err
		}
		if err := sel.Validate(); err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		withConflicts, _ := cmd.Flags().GetBool("conflicts")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		needs, err := st.ListNeeds(ctx, sel, false)
		if err != nil {
			return eris.Wrap(err, "export")
		}

		var conflicts []model.ConflictRecord
		if withConflicts {
			conflicts, err = st.ListConflicts(ctx, sel.LotID, sel.HighwayID, sel.AssetType)
			if err != nil {
				return eris.Wrap(err, "export")
			}
		}

		if err := report.Save(out, sel.AssetType, needs, conflicts); err != nil {
			return err
		}
		fmt.Printf("Exported %d needs to %s\n", len(needs), out)
		return nil
	},
}

func init() {
	addSelectionFlags(exportCmd, true)
	exportCmd.Flags().String("out", "sinaliza.xlsx", "output workbook path")
	exportCmd.Flags().Bool("conflicts", true, "include a conflicts sheet")
	rootCmd.AddCommand(exportCmd)
}
