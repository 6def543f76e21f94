package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/casampa-lab/sinaliza/internal/conflict"
	"github.com/casampa-lab/sinaliza/internal/model"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Detect and resolve conflicts between need rows",
}

// -- conflicts detect --

var conflictsDetectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Scan a lot for contradictory or duplicated need rows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		sel, err := selectionFromFlags(cmd)
		if err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		found, err := newServices(st).Conflicts.Detect(ctx, sel)
		if err != nil {
			return eris.Wrap(err, "conflicts detect")
		}
		if len(found) == 0 {
			fmt.Fprintln(os.Stderr, "No conflicts found.")
			return nil
		}
		formatConflicts(os.Stdout, found)
		return nil
	},
}

// -- conflicts list --

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the conflicts of a lot and highway",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		sel, err := selectionFromFlags(cmd)
		if err != nil {
			return err
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		out, err := newServices(st).Conflicts.List(ctx, sel.LotID, sel.HighwayID, sel.AssetType)
		if err != nil {
			return eris.Wrap(err, "conflicts list")
		}
		if len(out) == 0 {
			fmt.Fprintln(os.Stderr, "No conflicts found.")
			return nil
		}
		formatConflicts(os.Stdout, out)
		return nil
	},
}

// -- conflicts resolve --

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Close a conflict with a justification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		justification, _ := cmd.Flags().GetString("justification")
		by, _ := cmd.Flags().GetString("by")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		err = newServices(st).Conflicts.Resolve(ctx, args[0], conflict.ResolveInput{
			Justification: justification,
			ResolvedBy:    by,
		})
		if err != nil {
			return eris.Wrap(err, "conflicts resolve")
		}
		fmt.Printf("Conflict %s resolved\n", args[0])
		return nil
	},
}

// -- conflicts delete --

var conflictsDeleteCmd = &cobra.Command{
	Use:   "delete <need-id>",
	Short: "Delete an offending need row and the conflicts that reference it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := newServices(st).Conflicts.DeleteNeed(ctx, args[0]); err != nil {
			return eris.Wrap(err, "conflicts delete")
		}
		fmt.Printf("Need %s deleted\n", args[0])
		return nil
	},
}

func init() {
	addSelectionFlags(conflictsDetectCmd, true)

	addSelectionFlags(conflictsListCmd, false)
	_ = conflictsListCmd.MarkFlagRequired("lot")
	_ = conflictsListCmd.MarkFlagRequired("highway")

	conflictsResolveCmd.Flags().String("justification", "", "why the conflict is closed (required)")
	conflictsResolveCmd.Flags().String("by", "", "operator closing the conflict (required)")
	_ = conflictsResolveCmd.MarkFlagRequired("justification")
	_ = conflictsResolveCmd.MarkFlagRequired("by")

	conflictsCmd.AddCommand(conflictsDetectCmd)
	conflictsCmd.AddCommand(conflictsListCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)
	conflictsCmd.AddCommand(conflictsDeleteCmd)
	rootCmd.AddCommand(conflictsCmd)
}

// formatConflicts writes a tabular list of conflicts to out.
func formatConflicts(out io.Writer, conflicts []model.ConflictRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tROWS\tRESOLVED\tDETAILS")
	for _, c := range conflicts {
		resolved := "no"
		if c.Resolved {
			resolved = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
			c.ID, c.Kind, c.RowA, c.RowB, resolved, truncate(c.Details, 60))
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
