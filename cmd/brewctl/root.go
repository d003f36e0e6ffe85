package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var jsonFlag bool
	var traceFlag string

	ctx := newCommandContext(&configFlag, &jsonFlag)
	ctx.traceFlag = &traceFlag

	rootCmd := &cobra.Command{
		Use:           "brewctl",
		Short:         "Production workflow for meads, wines, and ciders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Write machine-readable JSON instead of tables")
	rootCmd.PersistentFlags().StringVar(&traceFlag, "trace", "", "Append a JSON line per service operation to this file")

	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newStagesCommand(ctx))
	rootCmd.AddCommand(newIngredientTypeCommand(ctx))
	rootCmd.AddCommand(newSupplyTypeCommand(ctx))
	rootCmd.AddCommand(newConsumableCommand(ctx))
	rootCmd.AddCommand(newVesselCommand(ctx))
	rootCmd.AddCommand(newInventoryCommand(ctx))
	rootCmd.AddCommand(newRecipeCommand(ctx))
	rootCmd.AddCommand(newBatchCommand(ctx))
	rootCmd.AddCommand(newDBCommand(ctx))
	rootCmd.AddCommand(newBackupCommand(ctx))

	return rootCmd
}
