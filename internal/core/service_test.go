package core

import (
	"errors"
	"strings"
	"testing"

	"brewcore/internal/stagegraph"
	"brewcore/pkg/domain"
)

func stageOf(t *testing.T, b domain.Batch, typeID string) domain.BatchStage {
	t.Helper()
	for _, s := range b.Stages {
		if s.StageTypeID == typeID {
			return s
		}
	}
	t.Fatalf("batch has no %s stage", typeID)
	return domain.BatchStage{}
}

func TestCreateBatchSnapshotsRecipeByValue(t *testing.T) {
	f := newFixture(t)
	recipe := f.recipe(domain.RecipeStatusFinal, f.meadStages())
	batch, _, err := f.svc.CreateBatch(f.ctx, BatchInput{RecipeID: recipe.ID, Name: "Melomel #1"})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if batch.Status != domain.BatchStatusPlanned || batch.Name != "Melomel #1" || batch.RecipeName != recipe.Name {
		t.Fatalf("unexpected batch header %+v", batch)
	}
	if len(batch.Stages) != 4 {
		t.Fatalf("expected 4 stages, got %d", len(batch.Stages))
	}
	for i, s := range batch.Stages {
		if s.Status != domain.StageStatusPending || s.ID == "" || s.Order != i+1 {
			t.Fatalf("unexpected stage %d: %+v", i, s)
		}
	}
	prep := batch.Stages[0]
	if prep.StageName != "Must Preparation" || len(prep.Planned) != 2 || prep.Planned[0].IngredientName != "Honey" || prep.Planned[0].Amount != 3 {
		t.Fatalf("unexpected planned snapshot %+v", prep)
	}
	if prep.Planned[0].ScalingMethod != domain.ScalingLinear {
		t.Fatalf("expected default linear scaling, got %q", prep.Planned[0].ScalingMethod)
	}

	if _, _, err := f.svc.UpdateRecipe(f.ctx, recipe.ID, func(r *domain.Recipe) error {
		r.Status = domain.RecipeStatusDraft
		r.Name = "Renamed"
		r.Stages[0].Ingredients[0].Amount = 99
		r.Stages = r.Stages[:1]
		return nil
	}); err != nil {
		t.Fatalf("update recipe: %v", err)
	}
	if _, err := f.svc.DeleteRecipe(f.ctx, recipe.ID); err != nil {
		t.Fatalf("delete recipe: %v", err)
	}
	after := f.getBatch(batch.ID)
	if after.RecipeID != nil {
		t.Fatalf("expected recipe link cleared")
	}
	if after.RecipeName != "Raspberry Melomel" || len(after.Stages) != 4 || after.Stages[0].Planned[0].Amount != 3 {
		t.Fatalf("recipe edits leaked into the batch: %+v", after)
	}
}

func TestCreateBatchRequiresValidRecipe(t *testing.T) {
	f := newFixture(t)
	draft := f.recipe(domain.RecipeStatusDraft, f.meadStages()[:1])
	_, _, err := f.svc.CreateBatch(f.ctx, BatchInput{RecipeID: draft.ID})
	requireErrorIs(t, err, domain.ErrValidation)
	if !strings.Contains(err.Error(), `missing required stage "Fermentation"`) {
		t.Fatalf("unexpected reason %q", err)
	}
	_, _, err = f.svc.CreateBatch(f.ctx, BatchInput{RecipeID: "missing"})
	requireErrorIs(t, err, domain.ErrNotFound)
	if batches, _ := f.svc.ListBatches(f.ctx); len(batches) != 0 {
		t.Fatalf("no batch should exist, got %d", len(batches))
	}

	valid := f.recipe(domain.RecipeStatusDraft, f.meadStages())
	if _, _, err := f.svc.CreateBatch(f.ctx, BatchInput{RecipeID: valid.ID}); err != nil {
		t.Fatalf("a valid draft recipe can still be brewed: %v", err)
	}
}

func TestRecipeStatusGatesValidation(t *testing.T) {
	f := newFixture(t)
	broken := []domain.RecipeStage{f.meadStages()[1], f.meadStages()[0]}
	broken[0].Order, broken[1].Order = 1, 2

	_, _, err := f.svc.CreateRecipe(f.ctx, domain.Recipe{Name: "Backwards", Status: domain.RecipeStatusFinal, Stages: broken})
	requireErrorIs(t, err, domain.ErrValidation)

	draft := f.recipe(domain.RecipeStatusDraft, broken)
	_, _, err = f.svc.FinalizeRecipe(f.ctx, draft.ID)
	requireErrorIs(t, err, domain.ErrValidation)
	if got, _ := f.svc.GetRecipe(f.ctx, draft.ID); got.Status != domain.RecipeStatusDraft {
		t.Fatalf("failed finalize must leave the recipe draft")
	}
	ok, reason, err := f.svc.ValidateRecipe(f.ctx, draft.ID)
	if err != nil || ok || !strings.Contains(reason, "requires") {
		t.Fatalf("expected prerequisite failure, got ok=%v %q %v", ok, reason, err)
	}

	final := f.recipe(domain.RecipeStatusFinal, f.meadStages())
	_, _, err = f.svc.UpdateRecipe(f.ctx, final.ID, func(r *domain.Recipe) error {
		r.Stages = r.Stages[:1]
		return nil
	})
	requireErrorIs(t, err, domain.ErrValidation)
	if got, _ := f.svc.GetRecipe(f.ctx, final.ID); len(got.Stages) != 4 {
		t.Fatalf("rejected edit was stored")
	}
	if _, _, err := f.svc.ReturnRecipeToDraft(f.ctx, final.ID); err != nil {
		t.Fatalf("return to draft: %v", err)
	}
	if _, _, err := f.svc.UpdateRecipe(f.ctx, final.ID, func(r *domain.Recipe) error {
		r.Stages = r.Stages[:1]
		return nil
	}); err != nil {
		t.Fatalf("draft edits are free: %v", err)
	}

	_, _, err = f.svc.CreateRecipe(f.ctx, domain.Recipe{Name: "Odd", Stages: []domain.RecipeStage{{
		StageTypeID: stagegraph.MustPrep, Order: 1,
		Ingredients: []domain.IngredientRequirement{{IngredientTypeID: f.honeyType.ID, Amount: 1, Unit: "kg", ScalingMethod: "cubic"}},
	}}})
	requireErrorIs(t, err, domain.ErrValidation)
}

func TestBatchStatusIsDerivedFromStages(t *testing.T) {
	f := newFixture(t)
	b := f.batch()
	prep := stageOf(t, b, stagegraph.MustPrep)
	ferm := stageOf(t, b, stagegraph.Fermentation)

	b, _, err := f.svc.StartStage(f.ctx, b.ID, prep.ID, StartOptions{})
	if err != nil {
		t.Fatalf("start prep: %v", err)
	}
	if b.Status != domain.BatchStatusActive || b.StartedAt == nil || !b.StartedAt.Equal(day0) {
		t.Fatalf("expected active batch started at clock time, got %+v", b)
	}
	f.now = days(1)
	if _, _, err := f.svc.CompleteStage(f.ctx, b.ID, prep.ID, days(1)); err != nil {
		t.Fatalf("complete prep: %v", err)
	}
	if _, _, err := f.svc.StartStage(f.ctx, b.ID, ferm.ID, StartOptions{StartDate: days(1)}); err != nil {
		t.Fatalf("start fermentation: %v", err)
	}
	b, _, err = f.svc.CompleteStage(f.ctx, b.ID, ferm.ID, days(30))
	if err != nil {
		t.Fatalf("complete fermentation: %v", err)
	}
	if b.Status != domain.BatchStatusActive {
		t.Fatalf("optional stages still pending; expected active, got %s", b.Status)
	}

	stab := stageOf(t, b, stagegraph.Stabilisation)
	flavor := stageOf(t, b, stagegraph.FlavorAdjustment)
	if _, _, err := f.svc.SkipStage(f.ctx, b.ID, stab.ID, days(31)); err != nil {
		t.Fatalf("skip stabilisation: %v", err)
	}
	b, _, err = f.svc.SkipStage(f.ctx, b.ID, flavor.ID, days(31))
	if err != nil {
		t.Fatalf("skip flavor: %v", err)
	}
	if b.Status != domain.BatchStatusCompleted || b.CompletedAt == nil || !b.CompletedAt.Equal(days(31)) {
		t.Fatalf("expected completed batch, got %+v", b)
	}
	_, _, err = f.svc.AbandonBatch(f.ctx, b.ID, "too late", days(32))
	requireErrorIs(t, err, domain.ErrConflict)
}

func TestStageTransitionsAreOneWay(t *testing.T) {
	f := newFixture(t)
	b := f.batch()
	prep := stageOf(t, b, stagegraph.MustPrep)
	ferm := stageOf(t, b, stagegraph.Fermentation)
	stab := stageOf(t, b, stagegraph.Stabilisation)

	_, _, err := f.svc.SkipStage(f.ctx, b.ID, ferm.ID, days(0))
	requireErrorIs(t, err, domain.ErrConflict)
	_, _, err = f.svc.CompleteStage(f.ctx, b.ID, prep.ID, days(0))
	requireErrorIs(t, err, domain.ErrConflict)

	if _, _, err := f.svc.StartStage(f.ctx, b.ID, prep.ID, StartOptions{StartDate: days(2)}); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _, err = f.svc.StartStage(f.ctx, b.ID, prep.ID, StartOptions{})
	requireErrorIs(t, err, domain.ErrConflict)
	_, _, err = f.svc.CompleteStage(f.ctx, b.ID, prep.ID, days(1))
	requireErrorIs(t, err, domain.ErrValidation)

	if _, _, err := f.svc.StartStage(f.ctx, b.ID, stab.ID, StartOptions{}); err != nil {
		t.Fatalf("start stabilisation: %v", err)
	}
	_, _, err = f.svc.SkipStage(f.ctx, b.ID, stab.ID, days(3))
	requireErrorIs(t, err, domain.ErrConflict)

	_, _, err = f.svc.StartStage(f.ctx, b.ID, "no-such-stage", StartOptions{})
	requireErrorIs(t, err, domain.ErrNotFound)
	_, _, err = f.svc.StartStage(f.ctx, "no-such-batch", prep.ID, StartOptions{})
	requireErrorIs(t, err, domain.ErrNotFound)
}

func TestAbandonBatch(t *testing.T) {
	f := newFixture(t)
	vessel, _, err := f.svc.CreateVessel(f.ctx, domain.Vessel{Name: "Carboy 1", CapacityLiters: 23})
	if err != nil {
		t.Fatalf("create vessel: %v", err)
	}
	b := f.batch()
	prep := stageOf(t, b, stagegraph.MustPrep)
	if _, _, err := f.svc.StartStage(f.ctx, b.ID, prep.ID, StartOptions{VesselID: &vessel.ID}); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, _, err = f.svc.AbandonBatch(f.ctx, b.ID, "   ", days(1))
	requireErrorIs(t, err, domain.ErrValidation)

	b, _, err = f.svc.AbandonBatch(f.ctx, b.ID, " infection ", days(1))
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if b.Status != domain.BatchStatusAbandoned || b.AbandonReason != "infection" {
		t.Fatalf("unexpected abandoned batch %+v", b)
	}
	inv, _ := f.svc.ListInventory(f.ctx)
	if inv.Vessels[0].Status != domain.VesselStatusAvailable {
		t.Fatalf("abandon must release the vessel")
	}
	_, _, err = f.svc.CompleteStage(f.ctx, b.ID, prep.ID, days(2))
	requireErrorIs(t, err, domain.ErrConflict)
}

func TestUseIngredientDrawsStockIntoStage(t *testing.T) {
	f := newFixture(t)
	f.lot(f.honey, 2, 10, days(-9))
	f.lot(f.honey, 4, 12, days(-3))
	b := f.batch()
	prep := stageOf(t, b, stagegraph.MustPrep)
	if _, _, err := f.svc.StartStage(f.ctx, b.ID, prep.ID, StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	ing, _, err := f.svc.UseIngredient(f.ctx, UseRequest{BatchID: b.ID, StageID: prep.ID, ConsumableID: f.honey.ID, Amount: 3, Unit: "kg"})
	if err != nil {
		t.Fatalf("use honey: %v", err)
	}
	if ing.ActualAmount != 3 || ing.ActualCost != 32 || ing.Role != domain.RoleIngredient || ing.Additions != 1 {
		t.Fatalf("unexpected batch ingredient %+v", ing)
	}
	if ing.ConsumableName != "Local Wildflower Honey" || ing.IngredientName != "Honey" || len(ing.Allocations) != 2 || len(ing.EventIDs) != 1 {
		t.Fatalf("unexpected snapshot %+v", ing)
	}

	events, _ := f.svc.ListConsumptionEvents(f.ctx, f.honey.ID)
	if len(events) != 1 || events[0].Source != domain.SourceBatch || *events[0].BatchID != b.ID || *events[0].BatchStageID != prep.ID {
		t.Fatalf("unexpected batch event %+v", events)
	}
	_, _, err = f.svc.ReverseConsumption(f.ctx, events[0].ID, "oops", days(0))
	requireErrorIs(t, err, domain.ErrConflict)

	_, _, err = f.svc.UseIngredient(f.ctx, UseRequest{BatchID: b.ID, StageID: prep.ID, ConsumableID: f.honey.ID, Amount: 1, Unit: "kg"})
	requireErrorIs(t, err, domain.ErrConflict)
	if events, _ := f.svc.ListConsumptionEvents(f.ctx, f.honey.ID); len(events) != 1 {
		t.Fatalf("refused addition must not draw stock")
	}
}

func TestUseIngredientMultipleAdditionsAccumulate(t *testing.T) {
	f := newFixture(t)
	f.lot(f.nutrient, 20, 0.5, days(-1))
	b := f.batch()
	ferm := stageOf(t, b, stagegraph.Fermentation)
	if _, _, err := f.svc.StartStage(f.ctx, b.ID, ferm.ID, StartOptions{AllowMultipleAdditions: true}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, _, err := f.svc.UseIngredient(f.ctx, UseRequest{BatchID: b.ID, StageID: ferm.ID, ConsumableID: f.nutrient.ID, Amount: 2, Unit: "g"}); err != nil {
			t.Fatalf("addition %d: %v", i+1, err)
		}
	}
	stage := stageOf(t, f.getBatch(b.ID), stagegraph.Fermentation)
	if len(stage.Ingredients) != 1 {
		t.Fatalf("expected one slot per consumable, got %d", len(stage.Ingredients))
	}
	ing := stage.Ingredients[0]
	if ing.Additions != 3 || ing.ActualAmount != 6 || ing.ActualCost != 3 || len(ing.EventIDs) != 3 {
		t.Fatalf("unexpected accumulated slot %+v", ing)
	}
	lots, _ := f.svc.AvailableLots(f.ctx, f.nutrient.ID)
	if lots[0].QuantityRemaining != 14 {
		t.Fatalf("expected 14 g left, got %v", lots[0].QuantityRemaining)
	}
}

func TestFailedUseWritesNothing(t *testing.T) {
	f := newFixture(t)
	lot := f.lot(f.honey, 1, 10, days(-1))
	b := f.batch()
	prep := stageOf(t, b, stagegraph.MustPrep)

	_, _, err := f.svc.UseIngredient(f.ctx, UseRequest{BatchID: b.ID, StageID: prep.ID, ConsumableID: f.honey.ID, Amount: 1, Unit: "kg"})
	requireErrorIs(t, err, domain.ErrConflict)

	if _, _, err := f.svc.StartStage(f.ctx, b.ID, prep.ID, StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, _, err = f.svc.UseIngredient(f.ctx, UseRequest{BatchID: b.ID, StageID: prep.ID, ConsumableID: f.honey.ID, Amount: 3, Unit: "kg"})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) || conflict.Deficit != 2 {
		t.Fatalf("expected deficit 2, got %v", err)
	}
	if got := f.getLot(lot.ID); got.QuantityRemaining != 1 || !got.CanDelete {
		t.Fatalf("lot changed after failed use: %+v", got)
	}
	if stage := stageOf(t, f.getBatch(b.ID), stagegraph.MustPrep); len(stage.Ingredients) != 0 {
		t.Fatalf("failed use left a slot: %+v", stage.Ingredients)
	}
	if events, _ := f.svc.ListConsumptionEvents(f.ctx, ""); len(events) != 0 {
		t.Fatalf("failed use wrote events")
	}

	_, _, err = f.svc.UseIngredient(f.ctx, UseRequest{BatchID: b.ID, StageID: prep.ID, ConsumableID: f.honey.ID, Amount: 1, Unit: "kg", Role: domain.RoleSupply})
	requireErrorIs(t, err, domain.ErrValidation)
}

func TestOnDemandAndSupplyUse(t *testing.T) {
	f := newFixture(t)
	f.lot(f.bottles, 24, 0.75, days(-1))
	b := f.batch()
	prep := stageOf(t, b, stagegraph.MustPrep)
	flavor := stageOf(t, b, stagegraph.FlavorAdjustment)
	for _, id := range []string{prep.ID, flavor.ID} {
		if _, _, err := f.svc.StartStage(f.ctx, b.ID, id, StartOptions{}); err != nil {
			t.Fatalf("start: %v", err)
		}
	}

	_, _, err := f.svc.UseIngredient(f.ctx, UseRequest{BatchID: b.ID, StageID: prep.ID, ConsumableID: f.water.ID, Amount: 10, Unit: "gal"})
	requireErrorIs(t, err, domain.ErrValidation)
	water, _, err := f.svc.UseIngredient(f.ctx, UseRequest{BatchID: b.ID, StageID: prep.ID, ConsumableID: f.water.ID, Amount: 10, Unit: "L"})
	if err != nil {
		t.Fatalf("use water: %v", err)
	}
	if water.ActualAmount != 10 || water.ActualCost != 0 || len(water.EventIDs) != 0 {
		t.Fatalf("on-demand use must bypass the ledger: %+v", water)
	}
	if c, _ := findConsumable(f, f.water.ID); !c.HasBeenUsed {
		t.Fatalf("on-demand consumable should be flagged used")
	}

	bottles, _, err := f.svc.UseIngredient(f.ctx, UseRequest{BatchID: b.ID, StageID: flavor.ID, ConsumableID: f.bottles.ID, Amount: 12, Unit: "each"})
	if err != nil {
		t.Fatalf("use bottles: %v", err)
	}
	if bottles.Role != domain.RoleSupply || bottles.IngredientTypeID != nil || bottles.ActualCost != 9 {
		t.Fatalf("unexpected supply slot %+v", bottles)
	}
	if events, _ := f.svc.ListConsumptionEvents(f.ctx, ""); len(events) != 1 {
		t.Fatalf("expected one event for stocked supply, got %d", len(events))
	}
}

func TestConsumableFreezesAfterUse(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.svc.UpdateConsumable(f.ctx, f.yeast.ID, func(c *domain.Consumable) error {
		c.Unit = "packet"
		return nil
	}); err != nil {
		t.Fatalf("unused consumable should accept unit change: %v", err)
	}
	if _, _, err := f.svc.UpdateConsumable(f.ctx, f.yeast.ID, func(c *domain.Consumable) error {
		c.Unit = "g"
		return nil
	}); err != nil {
		t.Fatalf("restore unit: %v", err)
	}
	f.lot(f.yeast, 10, 1, days(-1))
	if _, _, err := f.svc.ConsumeStock(f.ctx, ConsumeRequest{ConsumableID: f.yeast.ID, Amount: 1, Unit: "g", Reason: "test"}); err != nil {
		t.Fatalf("consume: %v", err)
	}

	_, _, err := f.svc.UpdateConsumable(f.ctx, f.yeast.ID, func(c *domain.Consumable) error {
		c.Unit = "packet"
		return nil
	})
	requireErrorIs(t, err, domain.ErrConflict)
	_, _, err = f.svc.UpdateConsumable(f.ctx, f.yeast.ID, func(c *domain.Consumable) error {
		c.SupplyTypeID = &f.bottleType.ID
		return nil
	})
	requireErrorIs(t, err, domain.ErrConflict)

	updated, _, err := f.svc.UpdateConsumable(f.ctx, f.yeast.ID, func(c *domain.Consumable) error {
		c.Name = "EC-1118 Champagne"
		c.HasBeenUsed = false
		return nil
	})
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if !updated.HasBeenUsed || updated.Name != "EC-1118 Champagne" {
		t.Fatalf("unexpected consumable %+v", updated)
	}

	_, _, err = f.svc.UpdateConsumable(f.ctx, f.honey.ID, func(c *domain.Consumable) error {
		c.OnDemand = true
		return nil
	})
	if err != nil {
		t.Fatalf("honey has no lots and may become on-demand: %v", err)
	}
	_, _, err = f.svc.UpdateConsumable(f.ctx, f.yeast.ID, func(c *domain.Consumable) error {
		c.OnDemand = true
		return nil
	})
	requireErrorIs(t, err, domain.ErrConflict)
}

func TestDeleteConsumableKeepsBatchSnapshot(t *testing.T) {
	f := newFixture(t)
	b := f.batch()
	prep := stageOf(t, b, stagegraph.MustPrep)
	if _, _, err := f.svc.StartStage(f.ctx, b.ID, prep.ID, StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := f.svc.UseIngredient(f.ctx, UseRequest{BatchID: b.ID, StageID: prep.ID, ConsumableID: f.water.ID, Amount: 8, Unit: "L"}); err != nil {
		t.Fatalf("use: %v", err)
	}
	if _, err := f.svc.DeleteConsumable(f.ctx, f.water.ID); err != nil {
		t.Fatalf("delete consumable: %v", err)
	}
	ing := stageOf(t, f.getBatch(b.ID), stagegraph.MustPrep).Ingredients[0]
	if ing.ConsumableID != nil || ing.ConsumableName != "Tap Water" || ing.ActualAmount != 8 {
		t.Fatalf("expected detached snapshot, got %+v", ing)
	}
}

func TestDeleteConsumableRefusedWhileLotsAreLocked(t *testing.T) {
	f := newFixture(t)
	drawn := f.lot(f.honey, 5, 1, days(-2))
	spare := f.lot(f.nutrient, 5, 1, days(-2))
	if _, _, err := f.svc.ConsumeStock(f.ctx, ConsumeRequest{ConsumableID: f.honey.ID, Amount: 2, Unit: "kg", Reason: "x"}); err != nil {
		t.Fatalf("consume: %v", err)
	}
	_, err := f.svc.DeleteLot(f.ctx, drawn.ID)
	requireErrorIs(t, err, domain.ErrConflict)
	_, err = f.svc.DeleteConsumable(f.ctx, f.honey.ID)
	requireErrorIs(t, err, domain.ErrConflict)
	if got := f.getLot(drawn.ID); got.QuantityRemaining != 3 {
		t.Fatalf("locked lot lost: %+v", got)
	}
	if _, ok := findConsumable(f, f.honey.ID); !ok {
		t.Fatalf("consumable deleted despite locked lot")
	}

	_, err = f.svc.Store().RunInTransaction(f.ctx, func(tx domain.Transaction) error {
		return tx.DeleteConsumable(f.honey.ID)
	})
	requireBlockedBy(t, err, "lot_integrity")

	if _, err := f.svc.DeleteConsumable(f.ctx, f.nutrient.ID); err != nil {
		t.Fatalf("untouched lots go with their consumable: %v", err)
	}
	if lots, _ := f.svc.ListLots(f.ctx, f.nutrient.ID); len(lots) != 0 {
		t.Fatalf("expected %s removed, got %+v", spare.ID, lots)
	}
}

func TestReferenceDataValidation(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.CreateIngredientType(f.ctx, domain.IngredientType{Name: "Nothing"})
	requireErrorIs(t, err, domain.ErrValidation)
	_, _, err = f.svc.CreateIngredientType(f.ctx, domain.IngredientType{Name: "Odd", Contexts: []domain.UsageContext{"sparkle"}})
	requireErrorIs(t, err, domain.ErrValidation)
	_, _, err = f.svc.CreateConsumable(f.ctx, domain.Consumable{Name: "Orphan", Unit: "g"})
	requireErrorIs(t, err, domain.ErrValidation)
	_, _, err = f.svc.CreateConsumable(f.ctx, domain.Consumable{Name: "Ghost", Unit: "g", IngredientTypeID: strPtr("missing")})
	requireErrorIs(t, err, domain.ErrNotFound)

	f.recipe(domain.RecipeStatusDraft, f.meadStages())
	_, err = f.svc.DeleteIngredientType(f.ctx, f.sorbateType.ID)
	requireErrorIs(t, err, domain.ErrConflict)

	spare := f.ingredientType("Spare", domain.ContextAcid)
	if _, err := f.svc.DeleteIngredientType(f.ctx, spare.ID); err != nil {
		t.Fatalf("delete unused type: %v", err)
	}
	if _, err := f.svc.DeleteSupplyType(f.ctx, f.bottleType.ID); err != nil {
		t.Fatalf("delete supply type: %v", err)
	}
	if c, _ := findConsumable(f, f.bottles.ID); c.SupplyTypeID != nil {
		t.Fatalf("expected supply link cleared")
	}
}

func TestAssignVesselRefusesTerminalBatch(t *testing.T) {
	f := newFixture(t)
	tank, _, err := f.svc.CreateVessel(f.ctx, domain.Vessel{Name: "Tank"})
	if err != nil {
		t.Fatalf("create vessel: %v", err)
	}
	b := f.batch()
	prep := stageOf(t, b, stagegraph.MustPrep)
	if _, _, err := f.svc.StartStage(f.ctx, b.ID, prep.ID, StartOptions{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, _, err := f.svc.AbandonBatch(f.ctx, b.ID, "infected", days(1)); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	vessel, _, err := f.svc.AssignVessel(f.ctx, tank.ID, b.ID, prep.ID)
	requireErrorIs(t, err, domain.ErrConflict)
	if vessel.ID != "" {
		t.Fatalf("failed assignment must not return a vessel, got %+v", vessel)
	}
	var stored domain.Vessel
	_ = f.svc.Store().View(f.ctx, func(v domain.TransactionView) error {
		stored, _ = v.FindVessel(tank.ID)
		return nil
	})
	if stored.Status != domain.VesselStatusAvailable || stored.BatchID != nil {
		t.Fatalf("vessel changed after refused assignment: %+v", stored)
	}
}

func TestVesselOccupancy(t *testing.T) {
	f := newFixture(t)
	tank, _, err := f.svc.CreateVessel(f.ctx, domain.Vessel{Name: "Tank A", CapacityLiters: 50})
	if err != nil {
		t.Fatalf("create vessel: %v", err)
	}
	first := f.batch()
	second := f.batch()
	prep1 := stageOf(t, first, stagegraph.MustPrep)
	prep2 := stageOf(t, second, stagegraph.MustPrep)

	if _, _, err := f.svc.StartStage(f.ctx, first.ID, prep1.ID, StartOptions{VesselID: &tank.ID}); err != nil {
		t.Fatalf("start with vessel: %v", err)
	}
	_, _, err = f.svc.StartStage(f.ctx, second.ID, prep2.ID, StartOptions{VesselID: &tank.ID})
	requireErrorIs(t, err, domain.ErrConflict)
	if got := stageOf(t, f.getBatch(second.ID), stagegraph.MustPrep); got.Status != domain.StageStatusPending {
		t.Fatalf("refused start must leave the stage pending")
	}
	_, err = f.svc.DeleteVessel(f.ctx, tank.ID)
	requireErrorIs(t, err, domain.ErrConflict)

	if _, _, err := f.svc.CompleteStage(f.ctx, first.ID, prep1.ID, days(1)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if stage := stageOf(t, f.getBatch(first.ID), stagegraph.MustPrep); stage.VesselID != nil {
		t.Fatalf("completed stage should drop the vessel")
	}

	if _, _, err := f.svc.StartStage(f.ctx, second.ID, prep2.ID, StartOptions{}); err != nil {
		t.Fatalf("start second: %v", err)
	}
	vessel, _, err := f.svc.AssignVessel(f.ctx, tank.ID, second.ID, prep2.ID)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if vessel.Status != domain.VesselStatusOccupied || *vessel.BatchStageID != prep2.ID {
		t.Fatalf("unexpected assigned vessel %+v", vessel)
	}
	if stage := stageOf(t, f.getBatch(second.ID), stagegraph.MustPrep); stage.VesselID == nil || *stage.VesselID != tank.ID {
		t.Fatalf("stage should reference the vessel")
	}
	vessel, _, err = f.svc.ReleaseVessel(f.ctx, tank.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if vessel.Status != domain.VesselStatusAvailable || vessel.BatchID != nil {
		t.Fatalf("unexpected released vessel %+v", vessel)
	}

	pending := stageOf(t, second, stagegraph.Fermentation)
	_, _, err = f.svc.AssignVessel(f.ctx, tank.ID, second.ID, pending.ID)
	requireErrorIs(t, err, domain.ErrConflict)

	if _, _, err := f.svc.AssignVessel(f.ctx, tank.ID, second.ID, prep2.ID); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	if _, err := f.svc.DeleteBatch(f.ctx, second.ID); err != nil {
		t.Fatalf("delete batch: %v", err)
	}
	if _, err := f.svc.DeleteVessel(f.ctx, tank.ID); err != nil {
		t.Fatalf("vessel should be free after its batch is deleted: %v", err)
	}
}
