package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"brewcore/internal/core"
	"brewcore/pkg/domain"
)

func newInventoryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inventory",
		Aliases: []string{"inv"},
		Short:   "Stock lots and the consumption ledger",
	}
	cmd.AddCommand(
		newAddLotCommand(ctx),
		newListLotsCommand(ctx),
		newConsumeCommand(ctx),
		newReverseCommand(ctx),
		newExpireLotCommand(ctx),
		newDeleteLotCommand(ctx),
		newEventsCommand(ctx),
	)
	return cmd
}

func lotRows(lots []domain.InventoryLot) [][]string {
	rows := make([][]string, 0, len(lots))
	for _, l := range lots {
		purchased := l.PurchaseDate
		rows = append(rows, []string{
			l.ID, l.ConsumableID,
			formatAmount(l.QuantityRemaining) + "/" + formatAmount(l.QuantityPurchased), l.Unit,
			formatMoney(l.CostPerUnit), formatDate(&purchased), formatDate(l.ExpirationDate),
			string(l.Status), yesNo(l.CanDelete),
		})
	}
	return rows
}

var lotHeaders = []string{"ID", "Consumable", "Remaining", "Unit", "Cost/Unit", "Purchased", "Expires", "Status", "Deletable"}

func newAddLotCommand(ctx *commandContext) *cobra.Command {
	var id, unit, purchased, expires, notes string
	var qty, cost float64
	cmd := &cobra.Command{
		Use:   "add-lot <consumable-id>",
		Short: "Record a purchase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			purchaseDate, err := parseWhen(purchased)
			if err != nil {
				return err
			}
			expiration, err := optionalWhen(expires)
			if err != nil {
				return err
			}
			in := core.LotInput{
				ID:             id,
				ConsumableID:   args[0],
				Quantity:       qty,
				Unit:           unit,
				PurchaseDate:   purchaseDate,
				ExpirationDate: expiration,
				Notes:          notes,
			}
			if cmd.Flags().Changed("cost") {
				in.CostPerUnit = &cost
			}
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				lot, _, err := svc.AddLot(c, in)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, lot, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "Added lot %s: %s %s\n", lot.ID, formatAmount(lot.QuantityPurchased), lot.Unit)
				})
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Explicit id (generated when empty)")
	cmd.Flags().Float64Var(&qty, "qty", 0, "Quantity purchased")
	cmd.Flags().StringVar(&unit, "unit", "", "Unit, must match the consumable")
	cmd.Flags().Float64Var(&cost, "cost", 0, "Cost per unit")
	cmd.Flags().StringVar(&purchased, "purchased", "", "Purchase date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&expires, "expires", "", "Expiration date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&notes, "notes", "", "Free-form notes")
	_ = cmd.MarkFlagRequired("purchased")
	return cmd
}

func newListLotsCommand(ctx *commandContext) *cobra.Command {
	var consumable string
	var available bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List lots oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				var lots []domain.InventoryLot
				var err error
				if available {
					if consumable == "" {
						return errors.New("--available requires --consumable")
					}
					lots, err = svc.AvailableLots(c, consumable)
				} else {
					lots, err = svc.ListLots(c, consumable)
				}
				if err != nil {
					return err
				}
				return ctx.emitRows(cmd, lots, lotHeaders, func() [][]string { return lotRows(lots) },
					alignLeft, alignLeft, alignRight, alignLeft, alignRight)
			})
		},
	}
	cmd.Flags().StringVar(&consumable, "consumable", "", "Only lots of this consumable")
	cmd.Flags().BoolVar(&available, "available", false, "Only active lots with stock (requires --consumable)")
	return cmd
}

func newConsumeCommand(ctx *commandContext) *cobra.Command {
	var unit, reason, at string
	var amount float64
	cmd := &cobra.Command{
		Use:   "consume <consumable-id>",
		Short: "Draw stock outside a batch (spoilage, adjustment)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseWhen(at)
			if err != nil {
				return err
			}
			req := core.ConsumeRequest{ConsumableID: args[0], Amount: amount, Unit: unit, Reason: reason, OccurredAt: when}
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				res, _, err := svc.ConsumeStock(c, req)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, res, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "Consumed %s %s from %d lot(s), cost %.2f (event %s)\n",
						formatAmount(res.TotalUsed), res.Unit, len(res.Lots), res.TotalCost, res.EventID)
				})
			})
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0, "Amount to draw")
	cmd.Flags().StringVar(&unit, "unit", "", "Unit, must match the consumable")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the stock left inventory")
	cmd.Flags().StringVar(&at, "at", "", "When it happened (default now)")
	return cmd
}

func newReverseCommand(ctx *commandContext) *cobra.Command {
	var reason, at string
	cmd := &cobra.Command{
		Use:   "reverse <event-id>",
		Short: "Return a manual consumption to its lots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseWhen(at)
			if err != nil {
				return err
			}
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				ev, _, err := svc.ReverseConsumption(c, args[0], reason, when)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, ev, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "Reversed %s with event %s\n", args[0], ev.ID)
				})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Why the consumption is reversed")
	cmd.Flags().StringVar(&at, "at", "", "When it happened (default now)")
	return cmd
}

func newExpireLotCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "expire <lot-id>",
		Short: "Mark a lot expired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				lot, _, err := svc.MarkLotExpired(c, args[0])
				if err != nil {
					return err
				}
				return ctx.emit(cmd, lot, func() {
					fmt.Fprintf(cmd.OutOrStdout(), "Lot %s is %s\n", lot.ID, lot.Status)
				})
			})
		},
	}
}

func newDeleteLotCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <lot-id>",
		Short: "Delete a lot nothing has drawn from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				if _, err := svc.DeleteLot(c, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted lot %s\n", args[0])
				return nil
			})
		},
	}
}

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var consumable string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the consumption ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(cmd, func(c context.Context, svc *core.ProductionService) error {
				events, err := svc.ListConsumptionEvents(c, consumable)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, events, func() {
					rows := make([][]string, 0, len(events))
					for _, ev := range events {
						at := ev.OccurredAt
						rows = append(rows, []string{
							ev.ID, formatDate(&at), string(ev.Source), ev.ConsumableName,
							formatAmount(ev.TotalUsed), ev.Unit, fmt.Sprintf("%.2f", ev.TotalCost),
							deref(ev.BatchID), deref(ev.ReversesEventID), deref(ev.ReversedBy), ev.Reason,
						})
					}
					printTable(cmd, []string{"ID", "Date", "Source", "Consumable", "Used", "Unit", "Cost", "Batch", "Reverses", "Reversed By", "Reason"}, rows,
						alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight)
				})
			})
		},
	}
	cmd.Flags().StringVar(&consumable, "consumable", "", "Only events of this consumable")
	return cmd
}
