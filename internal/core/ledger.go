package core

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"brewcore/pkg/domain"
)

// LotInput describes a purchase to add to inventory. PurchaseDate is supplied
// by the caller; the ledger never defaults it to the current time.
type LotInput struct {
	ID             string
	ConsumableID   string
	Quantity       float64
	Unit           string
	PurchaseDate   time.Time
	ExpirationDate *time.Time
	CostPerUnit    *float64
	Notes          string
}

// ConsumeRequest asks the ledger to draw stock oldest lot first.
type ConsumeRequest struct {
	ConsumableID string
	Amount       float64
	Unit         string
	BatchID      *string
	BatchStageID *string
	Reason       string
	OccurredAt   time.Time
}

// ConsumptionResult summarizes a fully satisfied draw.
type ConsumptionResult struct {
	EventID   string                 `json:"event_id"`
	Lots      []domain.LotAllocation `json:"lots"`
	TotalUsed float64                `json:"total_used"`
	TotalCost float64                `json:"total_cost"`
	Unit      string                 `json:"unit"`
}

// InventoryLedger owns lot quantities for the duration of one transaction.
// Every lot quantity change goes through it.
type InventoryLedger struct {
	tx domain.Transaction
}

// NewInventoryLedger binds a ledger to tx.
func NewInventoryLedger(tx domain.Transaction) *InventoryLedger {
	return &InventoryLedger{tx: tx}
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// AddLot records a purchase.
func (l *InventoryLedger) AddLot(in LotInput) (domain.InventoryLot, error) {
	consumable, ok := l.tx.Snapshot().FindConsumable(in.ConsumableID)
	if !ok {
		return domain.InventoryLot{}, domain.NotFoundError{Entity: domain.EntityConsumable, ID: in.ConsumableID}
	}
	name := consumable.DisplayName()
	if consumable.OnDemand {
		return domain.InventoryLot{}, domain.Invalidf("%s is bought on demand and cannot hold stock lots", name)
	}
	if !positive(in.Quantity) {
		return domain.InventoryLot{}, domain.Invalidf("lot quantity for %s must be positive, got %v", name, in.Quantity)
	}
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		return domain.InventoryLot{}, domain.Invalidf("lot unit for %s is required", name)
	}
	if consumable.Unit != "" && unit != consumable.Unit {
		return domain.InventoryLot{}, domain.Invalidf("lot unit %q does not match %s unit %q", unit, name, consumable.Unit)
	}
	if in.PurchaseDate.IsZero() {
		return domain.InventoryLot{}, domain.Invalidf("purchase date for %s is required", name)
	}
	if in.ExpirationDate != nil && !in.ExpirationDate.After(in.PurchaseDate) {
		return domain.InventoryLot{}, domain.Invalidf("expiration date %s must be after purchase date %s",
			in.ExpirationDate.Format(time.DateOnly), in.PurchaseDate.Format(time.DateOnly))
	}
	if in.CostPerUnit != nil && (*in.CostPerUnit < 0 || math.IsNaN(*in.CostPerUnit)) {
		return domain.InventoryLot{}, domain.Invalidf("cost per unit for %s cannot be negative", name)
	}
	return l.tx.CreateInventoryLot(domain.InventoryLot{
		Base:              domain.Base{ID: in.ID},
		ConsumableID:      in.ConsumableID,
		QuantityPurchased: in.Quantity,
		QuantityRemaining: in.Quantity,
		Unit:              unit,
		PurchaseDate:      in.PurchaseDate,
		ExpirationDate:    in.ExpirationDate,
		CostPerUnit:       in.CostPerUnit,
		Status:            domain.LotStatusActive,
		CanDelete:         true,
		Notes:             in.Notes,
	})
}

// Available returns the active lots of a consumable in FIFO order: ascending
// purchase date, then lot id.
func (l *InventoryLedger) Available(consumableID string) []domain.InventoryLot {
	return AvailableLots(l.tx.Snapshot(), consumableID)
}

// AvailableLots applies the FIFO ordering to any read-only view.
func AvailableLots(view domain.RuleView, consumableID string) []domain.InventoryLot {
	var lots []domain.InventoryLot
	for _, lot := range view.ListInventoryLots() {
		if lot.ConsumableID == consumableID && lot.Status == domain.LotStatusActive {
			lots = append(lots, lot)
		}
	}
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].PurchaseDate.Equal(lots[j].PurchaseDate) {
			return lots[i].PurchaseDate.Before(lots[j].PurchaseDate)
		}
		return lots[i].ID < lots[j].ID
	})
	return lots
}

// Consume draws amount from the oldest lots first and appends a ledger
// event. Either the full amount is drawn or no lot is touched.
// Every lot walked must be held in the request unit. Quantities are never
// rounded, so a draw can leave float dust that keeps a lot active.
func (l *InventoryLedger) Consume(req ConsumeRequest) (ConsumptionResult, error) {
	consumable, ok := l.tx.Snapshot().FindConsumable(req.ConsumableID)
	if !ok {
		return ConsumptionResult{}, domain.NotFoundError{Entity: domain.EntityConsumable, ID: req.ConsumableID}
	}
	name := consumable.DisplayName()
	if !positive(req.Amount) {
		return ConsumptionResult{}, domain.Invalidf("amount of %s must be positive, got %v", name, req.Amount)
	}
	lots := l.Available(req.ConsumableID)
	if len(lots) == 0 {
		return ConsumptionResult{}, domain.ConflictError{
			Reason:  fmt.Sprintf("no stock of %s: requested %v %s, short by %v %s", name, req.Amount, req.Unit, req.Amount, req.Unit),
			Deficit: req.Amount,
		}
	}
	unit := lots[0].Unit
	if req.Unit != unit {
		return ConsumptionResult{}, domain.Invalidf("unit %q does not match stock unit %q for %s", req.Unit, unit, name)
	}
	var available float64
	for _, lot := range lots {
		if lot.Unit != unit {
			return ConsumptionResult{}, domain.Invalidf("lot %s of %s is held in %q, not %q", lot.ID, name, lot.Unit, unit)
		}
		available += lot.QuantityRemaining
	}
	if available < req.Amount {
		deficit := req.Amount - available
		return ConsumptionResult{}, domain.ConflictError{
			Reason: fmt.Sprintf("insufficient stock of %s: requested %v %s, available %v %s, short by %v %s",
				name, req.Amount, unit, available, unit, deficit, unit),
			Deficit: deficit,
		}
	}

	result := ConsumptionResult{Unit: unit}
	remaining := req.Amount
	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		take := math.Min(remaining, lot.QuantityRemaining)
		if _, err := l.tx.UpdateInventoryLot(lot.ID, func(m *domain.InventoryLot) error {
			m.QuantityRemaining -= take
			if m.QuantityRemaining == 0 {
				m.Status = domain.LotStatusConsumed
			}
			m.CanDelete = false
			return nil
		}); err != nil {
			return ConsumptionResult{}, err
		}
		lotID := lot.ID
		result.Lots = append(result.Lots, domain.LotAllocation{LotID: &lotID, Used: take, CostPerUnit: lot.CostPerUnit})
		result.TotalUsed += take
		if lot.CostPerUnit != nil {
			result.TotalCost += take * *lot.CostPerUnit
		}
		remaining -= take
	}
	if remaining > 0 {
		return ConsumptionResult{}, domain.ConflictError{
			Reason:  fmt.Sprintf("insufficient stock of %s: short by %v %s", name, remaining, unit),
			Deficit: remaining,
		}
	}

	if err := l.markUsed(consumable); err != nil {
		return ConsumptionResult{}, err
	}
	occurred := req.OccurredAt
	if occurred.IsZero() {
		occurred = l.tx.Now()
	}
	source := domain.SourceManual
	if req.BatchID != nil {
		source = domain.SourceBatch
	}
	consumableID := consumable.ID
	event, err := l.tx.AppendConsumption(domain.ConsumptionEvent{
		ConsumableID:   &consumableID,
		ConsumableName: name,
		Source:         source,
		BatchID:        req.BatchID,
		BatchStageID:   req.BatchStageID,
		Lots:           result.Lots,
		TotalUsed:      result.TotalUsed,
		TotalCost:      result.TotalCost,
		Unit:           unit,
		Reason:         req.Reason,
		OccurredAt:     occurred,
	})
	if err != nil {
		return ConsumptionResult{}, err
	}
	result.EventID = event.ID
	return result, nil
}

func (l *InventoryLedger) markUsed(c domain.Consumable) error {
	if c.HasBeenUsed {
		return nil
	}
	_, err := l.tx.UpdateConsumable(c.ID, func(m *domain.Consumable) error {
		m.HasBeenUsed = true
		return nil
	})
	return err
}

// MarkExpired flags a lot as expired. Expiring an expired lot is a no-op.
func (l *InventoryLedger) MarkExpired(lotID string) (domain.InventoryLot, error) {
	lot, ok := l.tx.Snapshot().FindInventoryLot(lotID)
	if !ok {
		return domain.InventoryLot{}, domain.NotFoundError{Entity: domain.EntityInventoryLot, ID: lotID}
	}
	switch lot.Status {
	case domain.LotStatusExpired:
		return lot, nil
	case domain.LotStatusConsumed:
		return domain.InventoryLot{}, domain.Conflictf("lot %s is fully consumed and cannot expire", lotID)
	}
	return l.tx.UpdateInventoryLot(lotID, func(m *domain.InventoryLot) error {
		m.Status = domain.LotStatusExpired
		return nil
	})
}

// DeleteLot removes a lot that has never been drawn from.
func (l *InventoryLedger) DeleteLot(lotID string) error {
	lot, ok := l.tx.Snapshot().FindInventoryLot(lotID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityInventoryLot, ID: lotID}
	}
	if !lot.CanDelete {
		return domain.Conflictf("lot %s has been drawn from and is kept for the audit trail", lotID)
	}
	return l.tx.DeleteInventoryLot(lotID)
}

// ReverseConsumption returns the quantities of a manual consumption to their
// lots and appends a reversal event. Lots stay locked against deletion.
func (l *InventoryLedger) ReverseConsumption(eventID, reason string, at time.Time) (domain.ConsumptionEvent, error) {
	view := l.tx.Snapshot()
	original, ok := view.FindConsumptionEvent(eventID)
	if !ok {
		return domain.ConsumptionEvent{}, domain.NotFoundError{Entity: domain.EntityConsumption, ID: eventID}
	}
	switch {
	case original.Source == domain.SourceBatch:
		return domain.ConsumptionEvent{}, domain.Conflictf("consumption %s belongs to a batch record and cannot be reversed", eventID)
	case original.Source == domain.SourceReversal:
		return domain.ConsumptionEvent{}, domain.Conflictf("consumption %s is itself a reversal", eventID)
	case original.ReversedBy != nil:
		return domain.ConsumptionEvent{}, domain.Conflictf("consumption %s was already reversed", eventID)
	}

	restored := make([]domain.LotAllocation, 0, len(original.Lots))
	for _, alloc := range original.Lots {
		if alloc.LotID == nil {
			continue
		}
		if _, ok := view.FindInventoryLot(*alloc.LotID); !ok {
			continue
		}
		used := alloc.Used
		if _, err := l.tx.UpdateInventoryLot(*alloc.LotID, func(m *domain.InventoryLot) error {
			m.QuantityRemaining += used
			if m.QuantityRemaining > m.QuantityPurchased {
				m.QuantityRemaining = m.QuantityPurchased
			}
			if m.Status == domain.LotStatusConsumed {
				m.Status = domain.LotStatusActive
			}
			return nil
		}); err != nil {
			return domain.ConsumptionEvent{}, err
		}
		restored = append(restored, domain.LotAllocation{LotID: alloc.LotID, Used: -used, CostPerUnit: alloc.CostPerUnit})
	}

	if at.IsZero() {
		at = l.tx.Now()
	}
	originalID := original.ID
	reversal, err := l.tx.AppendConsumption(domain.ConsumptionEvent{
		ConsumableID:    original.ConsumableID,
		ConsumableName:  original.ConsumableName,
		Source:          domain.SourceReversal,
		Lots:            restored,
		TotalUsed:       -original.TotalUsed,
		TotalCost:       -original.TotalCost,
		Unit:            original.Unit,
		Reason:          reason,
		OccurredAt:      at,
		ReversesEventID: &originalID,
	})
	if err != nil {
		return domain.ConsumptionEvent{}, err
	}
	if _, err := l.tx.MarkConsumptionReversed(original.ID, reversal.ID); err != nil {
		return domain.ConsumptionEvent{}, err
	}
	return reversal, nil
}
