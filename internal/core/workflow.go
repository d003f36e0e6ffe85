package core

import (
	"strings"
	"time"

	"brewcore/internal/stagegraph"
	"brewcore/pkg/domain"
)

// StartOptions configure stage activation.
type StartOptions struct {
	// AllowMultipleAdditions lets the same consumable be added to the stage
	// more than once, each addition drawing its own stock.
	AllowMultipleAdditions bool
	StartDate              time.Time
	VesselID               *string
}

// IngredientUse is one addition of a consumable to an active stage.
type IngredientUse struct {
	Consumable domain.Consumable
	Role       domain.ConsumableRole
	Amount     float64
	Unit       string
	Cost       float64
	Lots       []domain.LotAllocation
	EventID    string
}

// BatchWorkflow drives the stage state machine of batches inside one
// transaction. Batch status is always derived from stage states, except for
// abandonment.
type BatchWorkflow struct {
	tx    domain.Transaction
	graph *stagegraph.Graph
}

// NewBatchWorkflow binds a workflow to tx.
func NewBatchWorkflow(tx domain.Transaction, graph *stagegraph.Graph) *BatchWorkflow {
	if graph == nil {
		graph = stagegraph.Default()
	}
	return &BatchWorkflow{tx: tx, graph: graph}
}

func (w *BatchWorkflow) load(batchID, stageID string) (domain.Batch, int, error) {
	batch, ok := w.tx.Snapshot().FindBatch(batchID)
	if !ok {
		return domain.Batch{}, -1, domain.NotFoundError{Entity: domain.EntityBatch, ID: batchID}
	}
	if isTerminalBatch(batch.Status) {
		return domain.Batch{}, -1, domain.Conflictf("batch %q is %s", batch.Name, batch.Status)
	}
	if stageID == "" {
		return batch, -1, nil
	}
	_, idx, ok := batch.Stage(stageID)
	if !ok {
		return domain.Batch{}, -1, domain.NotFoundError{Entity: "batch_stage", ID: stageID}
	}
	return batch, idx, nil
}

func isTerminalBatch(status domain.BatchStatus) bool {
	return status == domain.BatchStatusCompleted || status == domain.BatchStatusAbandoned
}

// StartStage moves a pending stage to active.
func (w *BatchWorkflow) StartStage(batchID, stageID string, opts StartOptions) (domain.Batch, error) {
	batch, idx, err := w.load(batchID, stageID)
	if err != nil {
		return domain.Batch{}, err
	}
	stage := batch.Stages[idx]
	if stage.Status != domain.StageStatusPending {
		return domain.Batch{}, domain.Conflictf("stage %q is %s and cannot start", stage.StageName, stage.Status)
	}
	start := opts.StartDate
	if start.IsZero() {
		start = w.tx.Now()
	}
	if opts.VesselID != nil {
		if err := w.occupy(*opts.VesselID, batch.ID, stage.ID); err != nil {
			return domain.Batch{}, err
		}
	}
	return w.tx.UpdateBatch(batchID, func(b *domain.Batch) error {
		s := &b.Stages[idx]
		s.Status = domain.StageStatusActive
		s.StartDate = &start
		s.AllowMultipleAdditions = opts.AllowMultipleAdditions
		if opts.VesselID != nil {
			v := *opts.VesselID
			s.VesselID = &v
		}
		if b.StartedAt == nil {
			b.StartedAt = &start
		}
		w.derive(b, start)
		return nil
	})
}

// CompleteStage moves an active stage to completed and releases its vessel.
func (w *BatchWorkflow) CompleteStage(batchID, stageID string, end time.Time) (domain.Batch, error) {
	batch, idx, err := w.load(batchID, stageID)
	if err != nil {
		return domain.Batch{}, err
	}
	stage := batch.Stages[idx]
	if stage.Status != domain.StageStatusActive {
		return domain.Batch{}, domain.Conflictf("stage %q is %s; only active stages can complete", stage.StageName, stage.Status)
	}
	return w.finish(batch, idx, domain.StageStatusCompleted, end)
}

// SkipStage moves a pending optional stage to skipped.
func (w *BatchWorkflow) SkipStage(batchID, stageID string, at time.Time) (domain.Batch, error) {
	batch, idx, err := w.load(batchID, stageID)
	if err != nil {
		return domain.Batch{}, err
	}
	stage := batch.Stages[idx]
	if w.graph.IsRequired(stage.StageTypeID) {
		return domain.Batch{}, domain.Conflictf("stage %q is required and cannot be skipped", stage.StageName)
	}
	if stage.Status != domain.StageStatusPending {
		return domain.Batch{}, domain.Conflictf("stage %q is %s; only pending stages can be skipped", stage.StageName, stage.Status)
	}
	return w.finish(batch, idx, domain.StageStatusSkipped, at)
}

func (w *BatchWorkflow) finish(batch domain.Batch, idx int, status domain.StageStatus, at time.Time) (domain.Batch, error) {
	if at.IsZero() {
		at = w.tx.Now()
	}
	stage := batch.Stages[idx]
	if stage.StartDate != nil && at.Before(*stage.StartDate) {
		return domain.Batch{}, domain.Invalidf("end date %s is before stage %q start %s",
			at.Format(time.DateOnly), stage.StageName, stage.StartDate.Format(time.DateOnly))
	}
	if err := w.releaseStage(stage); err != nil {
		return domain.Batch{}, err
	}
	return w.tx.UpdateBatch(batch.ID, func(b *domain.Batch) error {
		s := &b.Stages[idx]
		s.Status = status
		s.EndDate = &at
		s.VesselID = nil
		if b.StartedAt == nil {
			b.StartedAt = &at
		}
		w.derive(b, at)
		return nil
	})
}

// AbandonBatch ends a batch early. The reason is mandatory.
func (w *BatchWorkflow) AbandonBatch(batchID, reason string, at time.Time) (domain.Batch, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Batch{}, domain.Invalidf("a reason is required to abandon a batch")
	}
	batch, _, err := w.load(batchID, "")
	if err != nil {
		return domain.Batch{}, err
	}
	if at.IsZero() {
		at = w.tx.Now()
	}
	for _, stage := range batch.Stages {
		if err := w.releaseStage(stage); err != nil {
			return domain.Batch{}, err
		}
	}
	return w.tx.UpdateBatch(batchID, func(b *domain.Batch) error {
		b.Status = domain.BatchStatusAbandoned
		b.AbandonReason = reason
		b.CompletedAt = &at
		for i := range b.Stages {
			b.Stages[i].VesselID = nil
		}
		return nil
	})
}

// derive recomputes batch status from its stages. A batch completes once every
// required stage is completed and nothing is left pending or active.
func (w *BatchWorkflow) derive(b *domain.Batch, at time.Time) {
	if b.Status == domain.BatchStatusAbandoned {
		return
	}
	started, open := false, false
	requiredDone := true
	for _, s := range b.Stages {
		if s.Status != domain.StageStatusPending {
			started = true
		}
		if s.Status == domain.StageStatusPending || s.Status == domain.StageStatusActive {
			open = true
		}
		if w.graph.IsRequired(s.StageTypeID) && s.Status != domain.StageStatusCompleted {
			requiredDone = false
		}
	}
	switch {
	case requiredDone && !open && len(b.Stages) > 0:
		b.Status = domain.BatchStatusCompleted
		b.CompletedAt = &at
	case started:
		b.Status = domain.BatchStatusActive
	default:
		b.Status = domain.BatchStatusPlanned
	}
}

// CheckUse verifies that the stage accepts an addition of consumableID.
func (w *BatchWorkflow) CheckUse(batchID, stageID, consumableID string) error {
	batch, idx, err := w.load(batchID, stageID)
	if err != nil {
		return err
	}
	stage := batch.Stages[idx]
	if stage.Status != domain.StageStatusActive {
		return domain.Conflictf("stage %q is %s; ingredients can only be added to an active stage", stage.StageName, stage.Status)
	}
	if slot := findSlot(stage, consumableID); slot >= 0 && !stage.AllowMultipleAdditions {
		return domain.Conflictf("%s was already added to stage %q, which does not allow multiple additions",
			stage.Ingredients[slot].ConsumableName, stage.StageName)
	}
	return nil
}

func findSlot(stage domain.BatchStage, consumableID string) int {
	for i, ing := range stage.Ingredients {
		if ing.ConsumableID != nil && *ing.ConsumableID == consumableID {
			return i
		}
	}
	return -1
}

// RecordUse writes an addition into the stage's ingredient slot for the
// consumable, creating the slot on first use and accumulating afterwards.
func (w *BatchWorkflow) RecordUse(batchID, stageID string, use IngredientUse) (domain.BatchIngredient, error) {
	if err := w.CheckUse(batchID, stageID, use.Consumable.ID); err != nil {
		return domain.BatchIngredient{}, err
	}
	var recorded domain.BatchIngredient
	_, err := w.tx.UpdateBatch(batchID, func(b *domain.Batch) error {
		_, idx, _ := b.Stage(stageID)
		stage := &b.Stages[idx]
		slot := findSlot(*stage, use.Consumable.ID)
		if slot < 0 {
			consumableID := use.Consumable.ID
			ing := domain.BatchIngredient{
				ID:             w.tx.NewID(),
				ConsumableID:   &consumableID,
				ConsumableName: use.Consumable.DisplayName(),
				Role:           use.Role,
				ActualUnit:     use.Unit,
			}
			if use.Role == domain.RoleIngredient && use.Consumable.IngredientTypeID != nil {
				typeID := *use.Consumable.IngredientTypeID
				ing.IngredientTypeID = &typeID
				if it, ok := w.tx.Snapshot().FindIngredientType(typeID); ok {
					ing.IngredientName = it.Name
				}
			}
			stage.Ingredients = append(stage.Ingredients, ing)
			slot = len(stage.Ingredients) - 1
		}
		ing := &stage.Ingredients[slot]
		if ing.ActualUnit != use.Unit {
			return domain.Invalidf("unit %q does not match earlier additions of %s in %q (%s)",
				use.Unit, ing.ConsumableName, stage.StageName, ing.ActualUnit)
		}
		ing.ActualAmount += use.Amount
		ing.ActualCost += use.Cost
		ing.Allocations = append(ing.Allocations, use.Lots...)
		if use.EventID != "" {
			ing.EventIDs = append(ing.EventIDs, use.EventID)
		}
		ing.Additions++
		recorded = ing.Clone()
		return nil
	})
	if err != nil {
		return domain.BatchIngredient{}, err
	}
	return recorded, nil
}

func (w *BatchWorkflow) occupy(vesselID, batchID, stageID string) error {
	vessel, ok := w.tx.Snapshot().FindVessel(vesselID)
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityVessel, ID: vesselID}
	}
	if vessel.Status == domain.VesselStatusOccupied {
		return domain.Conflictf("vessel %q is already occupied", vessel.Name)
	}
	_, err := w.tx.UpdateVessel(vesselID, func(v *domain.Vessel) error {
		b, s := batchID, stageID
		v.Status = domain.VesselStatusOccupied
		v.BatchID = &b
		v.BatchStageID = &s
		return nil
	})
	return err
}

func (w *BatchWorkflow) releaseStage(stage domain.BatchStage) error {
	if stage.VesselID == nil {
		return nil
	}
	vessel, ok := w.tx.Snapshot().FindVessel(*stage.VesselID)
	if !ok || vessel.BatchStageID == nil || *vessel.BatchStageID != stage.ID {
		return nil
	}
	_, err := w.tx.UpdateVessel(vessel.ID, releaseVessel)
	return err
}

func releaseVessel(v *domain.Vessel) error {
	v.Status = domain.VesselStatusAvailable
	v.BatchID = nil
	v.BatchStageID = nil
	return nil
}
