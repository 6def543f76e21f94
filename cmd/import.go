package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/casampa-lab/sinaliza/internal/fetcher"
	"github.com/casampa-lab/sinaliza/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import project needs or surveyed inventory from spreadsheets",
}

var importNeedsCmd = &cobra.Command{
	Use:   "needs",
	Short: "Import a project need spreadsheet (xlsx or csv)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		sel, err := selectionFromFlags(cmd)
		if err != nil {
			return err
		}
		tbl, err := readTableFromFlags(cmd)
		if err != nil {
			return err
		}

		res, err := importer.Needs(tbl, importer.NeedOptions{
			LotID:     sel.LotID,
			HighwayID: sel.HighwayID,
			AssetType: sel.AssetType,
		})
		if err != nil {
			return eris.Wrap(err, "import needs")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.InsertNeeds(ctx, res.Needs)
		if err != nil {
			return eris.Wrap(err, "import needs")
		}

		zap.L().Info("import complete",
			zap.String("kind", "needs"),
			zap.Int("inserted", n),
			zap.Int("skipped", len(res.Skipped)),
		)
		fmt.Printf("Imported %d needs (%d rows skipped)\n", n, len(res.Skipped))
		formatSkipped(os.Stderr, res.Skipped)
		return nil
	},
}

var importInventoryCmd = &cobra.Command{
	Use:   "inventory",
	Short: "Import a surveyed inventory (xlsx, csv, shp or zipped shapefile)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		sel, err := selectionFromFlags(cmd)
		if err != nil {
			return err
		}
		tbl, err := readTableFromFlags(cmd)
		if err != nil {
			return err
		}

		res, err := importer.Inventory(tbl, importer.InventoryOptions{
			HighwayID: sel.HighwayID,
			AssetType: sel.AssetType,
		})
		if err != nil {
			return eris.Wrap(err, "import inventory")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.InsertInventory(ctx, res.Records)
		if err != nil {
			return eris.Wrap(err, "import inventory")
		}

		zap.L().Info("import complete",
			zap.String("kind", "inventory"),
			zap.Int("inserted", n),
			zap.Int("skipped", len(res.Skipped)),
		)
		fmt.Printf("Imported %d inventory records (%d rows skipped)\n", n, len(res.Skipped))
		formatSkipped(os.Stderr, res.Skipped)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{importNeedsCmd, importInventoryCmd} {
		c.Flags().String("file", "", "path to the source file (required)")
		c.Flags().String("sheet", "", "xlsx sheet name (default first sheet)")
		_ = c.MarkFlagRequired("file")
	}

	addSelectionFlags(importNeedsCmd, false)
	_ = importNeedsCmd.MarkFlagRequired("type")

	importInventoryCmd.Flags().String("highway", "", "highway id (default from the rodovia column)")
	importInventoryCmd.Flags().String("type", "", "asset type ("+assetTypeNames()+")")
	_ = importInventoryCmd.MarkFlagRequired("type")

	importCmd.AddCommand(importNeedsCmd)
	importCmd.AddCommand(importInventoryCmd)
	rootCmd.AddCommand(importCmd)
}

func readTableFromFlags(cmd *cobra.Command) (*fetcher.Table, error) {
	path, _ := cmd.Flags().GetString("file")
	sheet, _ := cmd.Flags().GetString("sheet")
	tbl, err := fetcher.ReadTable(cmd.Context(), path, fetcher.Options{SheetName: sheet})
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return tbl, nil
}

// formatSkipped lists rows the importer could not map.
func formatSkipped(out io.Writer, skipped []importer.RowError) {
	if len(skipped) == 0 {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROW\tREASON")
	for _, s := range skipped {
		_, _ = fmt.Fprintf(w, "%d\t%s\n", s.Row, s.Message)
	}
	_ = w.Flush()
}
