package core

import (
	"context"
	"fmt"

	"brewcore/pkg/domain"
)

// NewLotIntegrityRule guards lot quantity bounds, status consistency and the
// permanent deletion lock, which also covers cascaded deletes.
func NewLotIntegrityRule() domain.Rule {
	return lotIntegrityRule{}
}

type lotIntegrityRule struct{}

func (lotIntegrityRule) Name() string { return "lot_integrity" }

func (lotIntegrityRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityInventoryLot {
			continue
		}
		if change.Action == domain.ActionDelete {
			if before, ok := change.Before.(domain.InventoryLot); ok && !before.CanDelete {
				res.Violations = append(res.Violations, violation("lot_integrity", domain.EntityInventoryLot, before.ID,
					fmt.Sprintf("lot %s has been drawn from and cannot be deleted", before.ID)))
			}
			continue
		}
		after, ok := change.After.(domain.InventoryLot)
		if !ok {
			continue
		}
		add := func(format string, args ...any) {
			res.Violations = append(res.Violations, violation("lot_integrity", domain.EntityInventoryLot, after.ID, fmt.Sprintf(format, args...)))
		}
		if after.QuantityRemaining < 0 || after.QuantityRemaining > after.QuantityPurchased {
			add("lot %s remaining %v is outside 0..%v", after.ID, after.QuantityRemaining, after.QuantityPurchased)
		}
		switch after.Status {
		case domain.LotStatusConsumed:
			if after.QuantityRemaining != 0 {
				add("lot %s is consumed but still holds %v %s", after.ID, after.QuantityRemaining, after.Unit)
			}
		case domain.LotStatusActive:
			if after.QuantityRemaining == 0 {
				add("lot %s is empty but still active", after.ID)
			}
		}
		if before, ok := change.Before.(domain.InventoryLot); ok && !before.CanDelete && after.CanDelete {
			add("lot %s has been drawn from and cannot be unlocked", after.ID)
		}
	}
	return res, nil
}
