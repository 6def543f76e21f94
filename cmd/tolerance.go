package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/casampa-lab/sinaliza/internal/model"
	"github.com/casampa-lab/sinaliza/internal/store"
)

var toleranceCmd = &cobra.Command{
	Use:   "tolerance",
	Short: "Manage per-highway point match tolerances",
}

var toleranceSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set the tolerance of a highway, optionally for one asset type",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		highway, _ := cmd.Flags().GetString("highway")
		typ, _ := cmd.Flags().GetString("type")
		meters, _ := cmd.Flags().GetFloat64("meters")
		if meters <= 0 {
			return eris.Wrap(model.ErrValidation, "tolerance set: --meters must be positive")
		}

		var t model.AssetType
		if typ != "" {
			var err error
			if t, err = model.ParseAssetType(typ); err != nil {
				return err
			}
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SetTolerance(ctx, highway, t, meters); err != nil {
			return eris.Wrap(err, "tolerance set")
		}
		scope := "all types"
		if t != "" {
			scope = string(t)
		}
		fmt.Printf("Tolerance for %s (%s) set to %gm\n", highway, scope, meters)
		return nil
	},
}

var toleranceLoadCmd = &cobra.Command{
	Use:   "load <file.yaml>",
	Short: "Load tolerances from a YAML seed file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		seeds, err := store.LoadToleranceSeeds(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := store.ApplyToleranceSeeds(ctx, st, seeds)
		if err != nil {
			return eris.Wrap(err, "tolerance load")
		}
		fmt.Printf("Loaded %d tolerances for %d highways\n", n, len(seeds))
		return nil
	},
}

func init() {
	toleranceSetCmd.Flags().String("highway", "", "highway id (required)")
	toleranceSetCmd.Flags().String("type", "", "asset type (empty sets the highway default)")
	toleranceSetCmd.Flags().Float64("meters", 0, "admission distance in meters (required)")
	_ = toleranceSetCmd.MarkFlagRequired("highway")
	_ = toleranceSetCmd.MarkFlagRequired("meters")

	toleranceCmd.AddCommand(toleranceSetCmd)
	toleranceCmd.AddCommand(toleranceLoadCmd)
	rootCmd.AddCommand(toleranceCmd)
}
