package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"brewcore/internal/core"
	"brewcore/pkg/domain"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run production batches",
	}
	cmd.AddCommand(
		newBatchCreateCommand(ctx),
		newBatchListCommand(ctx),
		newBatchShowCommand(ctx),
		newBatchStartCommand(ctx),
		newBatchStageCommand(ctx, "complete", "Complete an active stage", (*core.ProductionService).CompleteStage),
		newBatchStageCommand(ctx, "skip", "Skip a pending optional stage", (*core.ProductionService).SkipStage),
		newBatchAbandonCommand(ctx),
		newBatchUseCommand(ctx),
		newBatchDeleteCommand(ctx),
	)
	return cmd
}

func printBatchSummary(cmd *cobra.Command, b domain.Batch) {
	fmt.Fprintf(cmd.OutOrStdout(), "Batch %s (%s) %s from %s\n", b.Name, b.ID, b.Status, b.RecipeName)
}

func newBatchCreateCommand(ctx *commandContext) *cobra.Command {
	var id, recipe, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Snapshot a recipe into a planned batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				b, _, err := svc.CreateBatch(c, core.BatchInput{ID: id, RecipeID: recipe, Name: name})
				if err != nil {
					return err
				}
				return ctx.emit(cmd, b, func() { printBatchSummary(cmd, b) })
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Explicit id (generated when empty)")
	cmd.Flags().StringVar(&recipe, "recipe", "", "Recipe to snapshot")
	cmd.Flags().StringVar(&name, "name", "", "Batch name (defaults to the recipe name)")
	_ = cmd.MarkFlagRequired("recipe")
	return cmd
}

func newBatchListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				batches, err := svc.ListBatches(c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, batches, func() {
					rows := make([][]string, 0, len(batches))
					for _, b := range batches {
						rows = append(rows, []string{
							b.ID, b.Name, b.RecipeName, string(b.Status),
							formatDate(b.StartedAt), formatDate(b.CompletedAt), progress(b),
						})
					}
					printTable(cmd, []string{"ID", "Name", "Recipe", "Status", "Started", "Completed", "Stages"}, rows)
				})
			})
		},
	}
}

// progress reports finished stages over the total, e.g. "2/5".
func progress(b domain.Batch) string {
	done := 0
	for _, s := range b.Stages {
		if s.Status == domain.StageStatusCompleted || s.Status == domain.StageStatusSkipped {
			done++
		}
	}
	return strconv.Itoa(done) + "/" + strconv.Itoa(len(b.Stages))
}

func newBatchShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show a batch's stages and recorded ingredients",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				b, err := svc.GetBatch(c, args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, b, func() {
					printBatchSummary(cmd, b)
					if b.AbandonReason != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "Abandoned: %s\n", b.AbandonReason)
					}
					rows := make([][]string, 0, len(b.Stages))
					for _, s := range b.Stages {
						used := make([]string, 0, len(s.Ingredients))
						for _, ing := range s.Ingredients {
							used = append(used, fmt.Sprintf("%s %s %s", ing.ConsumableName, formatAmount(ing.ActualAmount), ing.ActualUnit))
						}
						rows = append(rows, []string{
							s.ID, strconv.Itoa(s.Order), s.StageName, string(s.Status),
							formatDate(s.StartDate), formatDate(s.EndDate), deref(s.VesselID), strings.Join(used, "; "),
						})
					}
					printTable(cmd, []string{"Stage ID", "Order", "Stage", "Status", "Start", "End", "Vessel", "Used"}, rows,
						alignLeft, alignRight)
				})
			})
		},
	}
}

func newBatchStartCommand(ctx *commandContext) *cobra.Command {
	var date, vessel string
	var multiple bool
	cmd := &cobra.Command{
		Use:   "start <batch-id> <stage-id>",
		Short: "Start a pending stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseWhen(date)
			if err != nil {
				return err
			}
			opts := core.StartOptions{AllowMultipleAdditions: multiple, StartDate: when, VesselID: optionalString(vessel)}
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				b, _, err := svc.StartStage(c, args[0], args[1], opts)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, b, func() { printBatchSummary(cmd, b) })
			})
		},
	}
	cmd.Flags().BoolVar(&multiple, "allow-multiple", false, "Allow repeated additions of the same consumable")
	cmd.Flags().StringVar(&date, "date", "", "Start date (default now)")
	cmd.Flags().StringVar(&vessel, "vessel", "", "Vessel to occupy for this stage")
	return cmd
}

type stageTransition func(*core.ProductionService, context.Context, string, string, time.Time) (domain.Batch, domain.Result, error)

func newBatchStageCommand(ctx *commandContext, use, short string, apply stageTransition) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   use + " <batch-id> <stage-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseWhen(date)
			if err != nil {
				return err
			}
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				b, _, err := apply(svc, c, args[0], args[1], when)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, b, func() { printBatchSummary(cmd, b) })
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Date of the transition (default now)")
	return cmd
}

func newBatchAbandonCommand(ctx *commandContext) *cobra.Command {
	var reason, date string
	cmd := &cobra.Command{
		Use:   "abandon <batch-id>",
		Short: "Abandon a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseWhen(date)
			if err != nil {
				return err
			}
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				b, _, err := svc.AbandonBatch(c, args[0], reason, when)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, b, func() { printBatchSummary(cmd, b) })
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the batch was abandoned")
	cmd.Flags().StringVar(&date, "date", "", "Date abandoned (default now)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newBatchUseCommand(ctx *commandContext) *cobra.Command {
	var consumable, unit, role, at string
	var amount float64
	cmd := &cobra.Command{
		Use:   "use <batch-id> <stage-id>",
		Short: "Record an ingredient or supply added to an active stage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseWhen(at)
			if err != nil {
				return err
			}
			req := core.UseRequest{
				BatchID:      args[0],
				StageID:      args[1],
				ConsumableID: consumable,
				Amount:       amount,
				Unit:         unit,
				Role:         domain.ConsumableRole(role),
				At:           when,
			}
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				ing, _, err := svc.UseIngredient(c, req)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, ing, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s %s %s, cost %.2f\n",
						formatAmount(ing.ActualAmount), ing.ActualUnit, ing.ConsumableName, ing.ActualCost)
				})
			})
		},
	}
	cmd.Flags().StringVar(&consumable, "consumable", "", "Consumable drawn")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Amount added")
	cmd.Flags().StringVar(&unit, "unit", "", "Unit, must match the consumable")
	cmd.Flags().StringVar(&role, "role", "", "ingredient or supply (inferred when empty)")
	cmd.Flags().StringVar(&at, "at", "", "When it was added (default now)")
	_ = cmd.MarkFlagRequired("consumable")
	return cmd
}

func newBatchDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <batch-id>",
		Short: "Delete a batch that never started",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				if _, err := svc.DeleteBatch(c, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted batch %s\n", args[0])
				return nil
			})
		},
	}
}
