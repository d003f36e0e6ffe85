package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"brewcore/internal/core"
	"brewcore/pkg/domain"
)

func newIngredientTypeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ingredient-type",
		Aliases: []string{"it"},
		Short:   "Manage ingredient types",
	}

	var id, name string
	var contexts []string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an ingredient type",
		RunE: func(cmd *cobra.Command, args []string) error {
			it := domain.IngredientType{Base: domain.Base{ID: id}, Name: name}
			for _, c := range contexts {
				it.Contexts = append(it.Contexts, domain.UsageContext(strings.ToLower(strings.TrimSpace(c))))
			}
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				created, _, err := svc.CreateIngredientType(c, it)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, created, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "Created ingredient type %s (%s)\n", created.Name, created.ID)
				})
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "Explicit id (generated when empty)")
	add.Flags().StringVar(&name, "name", "", "Display name")
	add.Flags().StringSliceVar(&contexts, "context", nil, "Usage context, repeatable (fermentable, yeast, nutrient, ...)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List ingredient types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				inv, err := svc.ListInventory(c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, inv.IngredientTypes, func() {
					rows := make([][]string, 0, len(inv.IngredientTypes))
					for _, it := range inv.IngredientTypes {
						names := make([]string, 0, len(it.Contexts))
						for _, c := range it.Contexts {
							names = append(names, string(c))
						}
						rows = append(rows, []string{it.ID, it.Name, strings.Join(names, ",")})
					}
					printTable(cmd, []string{"ID", "Name", "Contexts"}, rows)
				})
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an ingredient type no recipe uses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				if _, err := svc.DeleteIngredientType(c, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted ingredient type %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

func newSupplyTypeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "supply-type",
		Short: "Manage supply types",
	}

	var id, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a supply type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				created, _, err := svc.CreateSupplyType(c, domain.SupplyType{Base: domain.Base{ID: id}, Name: name})
				if err != nil {
					return err
				}
				return ctx.emit(cmd, created, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "Created supply type %s (%s)\n", created.Name, created.ID)
				})
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "Explicit id (generated when empty)")
	add.Flags().StringVar(&name, "name", "", "Display name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List supply types",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				inv, err := svc.ListInventory(c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, inv.SupplyTypes, func() {
					rows := make([][]string, 0, len(inv.SupplyTypes))
					for _, st := range inv.SupplyTypes {
						rows = append(rows, []string{st.ID, st.Name})
					}
					printTable(cmd, []string{"ID", "Name"}, rows)
				})
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a supply type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				if _, err := svc.DeleteSupplyType(c, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted supply type %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

func newConsumableCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consumable",
		Short: "Manage purchasable consumables",
	}

	var in struct {
		id, brand, name, unit, ingredientType, supplyType string
		onDemand                                          bool
	}
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a consumable",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := domain.Consumable{
				Base:             domain.Base{ID: in.id},
				Brand:            in.brand,
				Name:             in.name,
				Unit:             in.unit,
				IngredientTypeID: optionalString(in.ingredientType),
				SupplyTypeID:     optionalString(in.supplyType),
				OnDemand:         in.onDemand,
			}
			return ctx.withService(cmd, func(cc context.Context, svc *core.ProductionService) error {
				created, _, err := svc.CreateConsumable(cc, c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, created, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "Created consumable %s (%s)\n", created.Name, created.ID)
				})
			})
		},
	}
	add.Flags().StringVar(&in.id, "id", "", "Explicit id (generated when empty)")
	add.Flags().StringVar(&in.brand, "brand", "", "Brand")
	add.Flags().StringVar(&in.name, "name", "", "Display name")
	add.Flags().StringVar(&in.unit, "unit", "", "Stock unit (kg, g, L, each, ...)")
	add.Flags().StringVar(&in.ingredientType, "ingredient-type", "", "Ingredient type id for the ingredient role")
	add.Flags().StringVar(&in.supplyType, "supply-type", "", "Supply type id for the supply role")
	add.Flags().BoolVar(&in.onDemand, "on-demand", false, "Always available, never tracked in lots")

	list := &cobra.Command{
		Use:   "list",
		Short: "List consumables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				inv, err := svc.ListInventory(c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, inv.Consumables, func() {
					rows := make([][]string, 0, len(inv.Consumables))
					for _, item := range inv.Consumables {
						rows = append(rows, []string{
							item.ID, item.Brand, item.Name, item.Unit,
							deref(item.IngredientTypeID), deref(item.SupplyTypeID),
							yesNo(item.OnDemand), yesNo(item.HasBeenUsed),
						})
					}
					printTable(cmd, []string{"ID", "Brand", "Name", "Unit", "Ingredient Type", "Supply Type", "On Demand", "Used"}, rows)
				})
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a consumable; batch history keeps its name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				if _, err := svc.DeleteConsumable(c, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted consumable %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, del)
	return cmd
}

func newVesselCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vessel",
		Short: "Manage fermentation vessels",
	}

	var id, name string
	var capacity float64
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a vessel",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				created, _, err := svc.CreateVessel(c, domain.Vessel{Base: domain.Base{ID: id}, Name: name, CapacityLiters: capacity})
				if err != nil {
					return err
				}
				return ctx.emit(cmd, created, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "Created vessel %s (%s)\n", created.Name, created.ID)
				})
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "Explicit id (generated when empty)")
	add.Flags().StringVar(&name, "name", "", "Display name")
	add.Flags().Float64Var(&capacity, "capacity", 0, "Capacity in liters")

	list := &cobra.Command{
		Use:   "list",
		Short: "List vessels and their occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				inv, err := svc.ListInventory(c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, inv.Vessels, func() {
					rows := make([][]string, 0, len(inv.Vessels))
					for _, v := range inv.Vessels {
						rows = append(rows, []string{v.ID, v.Name, formatAmount(v.CapacityLiters), string(v.Status), deref(v.BatchID), deref(v.BatchStageID)})
					}
					printTable(cmd, []string{"ID", "Name", "Liters", "Status", "Batch", "Stage"}, rows, alignLeft, alignLeft, alignRight)
				})
			})
		},
	}

	assign := &cobra.Command{
		Use:   "assign <vessel-id> <batch-id> <stage-id>",
		Short: "Put an active stage into a vessel",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				v, _, err := svc.AssignVessel(c, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, v, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "Vessel %s now holds batch %s\n", v.Name, args[1])
				})
			})
		},
	}

	release := &cobra.Command{
		Use:   "release <vessel-id>",
		Short: "Free a vessel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				v, _, err := svc.ReleaseVessel(c, args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, v, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "Vessel %s is available\n", v.Name)
				})
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove an unoccupied vessel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				if _, err := svc.DeleteVessel(c, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted vessel %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, assign, release, del)
	return cmd
}
