package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"brewcore/internal/core"
	"brewcore/pkg/domain"
)

func newRecipeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recipe",
		Short: "Author and validate recipes",
	}
	cmd.AddCommand(
		newRecipeCreateCommand(ctx),
		newRecipeUpdateCommand(ctx),
		newRecipeListCommand(ctx),
		newRecipeShowCommand(ctx),
		newRecipeValidateCommand(ctx),
		newRecipeStatusCommand(ctx, "finalize", "Validate a recipe and mark it final", (*core.ProductionService).FinalizeRecipe),
		newRecipeStatusCommand(ctx, "draft", "Return a recipe to draft", (*core.ProductionService).ReturnRecipeToDraft),
		newRecipeDeleteCommand(ctx),
	)
	return cmd
}

// readRecipe decodes a recipe document. YAML is a superset of JSON, so
// both go through the YAML decoder and are then bound via the JSON tags.
func readRecipe(path string, stdin io.Reader) (domain.Recipe, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("read recipe: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return domain.Recipe{}, fmt.Errorf("parse recipe %s: %w", path, err)
	}
	if doc == nil {
		return domain.Recipe{}, fmt.Errorf("recipe %s is empty", path)
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return domain.Recipe{}, fmt.Errorf("parse recipe %s: %w", path, err)
	}
	var recipe domain.Recipe
	if err := json.Unmarshal(encoded, &recipe); err != nil {
		return domain.Recipe{}, fmt.Errorf("parse recipe %s: %w", path, err)
	}
	return recipe, nil
}

func printRecipeSummary(cmd *cobra.Command, r domain.Recipe) {
	fmt.Fprintf(cmd.OutOrStdout(), "Recipe %s (%s) %s %s %s\n", r.Name, r.ID, r.Status, formatAmount(r.BatchSize), r.BatchUnit)
}

func newRecipeCreateCommand(ctx *commandContext) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a recipe from a YAML or JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			recipe, err := readRecipe(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				created, _, err := svc.CreateRecipe(c, recipe)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, created, func() { printRecipeSummary(cmd, created) })
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Recipe document (- for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRecipeUpdateCommand(ctx *commandContext) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "update <recipe-id>",
		Short: "Replace a recipe's content from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			next, err := readRecipe(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				updated, _, err := svc.UpdateRecipe(c, args[0], func(r *domain.Recipe) error {
					base := r.Base
					*r = next
					r.Base = base
					if r.Status == "" {
						r.Status = domain.RecipeStatusDraft
					}
					return nil
				})
				if err != nil {
					return err
				}
				return ctx.emit(cmd, updated, func() { printRecipeSummary(cmd, updated) })
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Recipe document (- for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRecipeListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recipes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				recipes, err := svc.ListRecipes(c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, recipes, func() {
					rows := make([][]string, 0, len(recipes))
					for _, r := range recipes {
						rows = append(rows, []string{r.ID, r.Name, string(r.Status), formatAmount(r.BatchSize), r.BatchUnit, strconv.Itoa(len(r.Stages))})
					}
					printTable(cmd, []string{"ID", "Name", "Status", "Size", "Unit", "Stages"}, rows,
						alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight)
				})
			})
		},
	}
}

func newRecipeShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <recipe-id>",
		Short: "Show a recipe's stages and ingredients",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				r, err := svc.GetRecipe(c, args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, r, func() {
					printRecipeSummary(cmd, r)
					graph := svc.Graph()
					var rows [][]string
					for _, stage := range r.Stages {
						if len(stage.Ingredients) == 0 {
							rows = append(rows, []string{strconv.Itoa(stage.Order), graph.Name(stage.StageTypeID), "-", "", "", ""})
							continue
						}
						for _, req := range stage.Ingredients {
							rows = append(rows, []string{
								strconv.Itoa(stage.Order), graph.Name(stage.StageTypeID),
								req.IngredientTypeID, formatAmount(req.Amount), req.Unit, string(req.ScalingMethod),
							})
						}
					}
					printTable(cmd, []string{"Order", "Stage", "Ingredient Type", "Amount", "Unit", "Scaling"}, rows,
						alignRight, alignLeft, alignLeft, alignRight)
				})
			})
		},
	}
}

type validationReport struct {
	RecipeID string `json:"recipe_id"`
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
}

func newRecipeValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <recipe-id>",
		Short: "Check a recipe against the stage rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				ok, reason, err := svc.ValidateRecipe(c, args[0])
				if err != nil {
					return err
				}
				report := validationReport{RecipeID: args[0], Valid: ok, Reason: reason}
				if err := ctx.emit(cmd, report, func() {
					if ok {
						fmt.Fprintln(cmd.OutOrStdout(), "valid")
					} else {
						fmt.Fprintf(cmd.OutOrStdout(), "invalid: %s\n", reason)
					}
				}); err != nil {
					return err
				}
				if !ok {
					return errSilent
				}
				return nil
			})
		},
	}
}

func newRecipeStatusCommand(ctx *commandContext, use, short string, apply func(*core.ProductionService, context.Context, string) (domain.Recipe, domain.Result, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <recipe-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				r, _, err := apply(svc, c, args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, r, func() { printRecipeSummary(cmd, r) })
			})
		},
	}
}

func newRecipeDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <recipe-id>",
		Short: "Delete a recipe",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				if _, err := svc.DeleteRecipe(c, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted recipe %s\n", args[0])
				return nil
			})
		},
	}
}
