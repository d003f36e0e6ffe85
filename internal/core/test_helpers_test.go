package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"brewcore/internal/stagegraph"
	"brewcore/pkg/domain"
)

var day0 = time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)

func days(n int) time.Time { return day0.AddDate(0, 0, n) }

func strPtr(v string) *string { return &v }

func floatPtr(v float64) *float64 { return &v }

// fixture is a service seeded with a small mead cellar.
type fixture struct {
	t   *testing.T
	ctx context.Context
	svc *ProductionService
	now time.Time

	honeyType, yeastType, nutrientType, sorbateType, fruitType, waterType domain.IngredientType

	bottleType domain.SupplyType

	honey, yeast, nutrient, sorbate, fruit, water, bottles domain.Consumable
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), now: days(0)}
	opts = append([]Option{WithClock(ClockFunc(func() time.Time { return f.now }))}, opts...)
	f.svc = NewInMemoryService(nil, opts...)

	f.honeyType = f.ingredientType("Honey", domain.ContextFermentable)
	f.yeastType = f.ingredientType("Wine Yeast", domain.ContextYeast)
	f.nutrientType = f.ingredientType("Nutrient", domain.ContextNutrient)
	f.sorbateType = f.ingredientType("Sorbate", domain.ContextStabiliser)
	f.fruitType = f.ingredientType("Fruit", domain.ContextFermentable, domain.ContextFlavoring)
	f.waterType = f.ingredientType("Water", domain.ContextWater)

	bottleType, _, err := f.svc.CreateSupplyType(f.ctx, domain.SupplyType{Name: "Bottle"})
	if err != nil {
		t.Fatalf("create supply type: %v", err)
	}
	f.bottleType = bottleType

	f.honey = f.consumable(domain.Consumable{Brand: "Local", Name: "Wildflower Honey", Unit: "kg", IngredientTypeID: &f.honeyType.ID})
	f.yeast = f.consumable(domain.Consumable{Name: "EC-1118", Unit: "g", IngredientTypeID: &f.yeastType.ID})
	f.nutrient = f.consumable(domain.Consumable{Name: "Fermaid O", Unit: "g", IngredientTypeID: &f.nutrientType.ID})
	f.sorbate = f.consumable(domain.Consumable{Name: "Potassium Sorbate", Unit: "g", IngredientTypeID: &f.sorbateType.ID})
	f.fruit = f.consumable(domain.Consumable{Name: "Raspberries", Unit: "kg", IngredientTypeID: &f.fruitType.ID})
	f.water = f.consumable(domain.Consumable{Name: "Tap Water", Unit: "L", IngredientTypeID: &f.waterType.ID, OnDemand: true})
	f.bottles = f.consumable(domain.Consumable{Name: "750ml Bottle", Unit: "each", SupplyTypeID: &f.bottleType.ID})
	return f
}

func (f *fixture) ingredientType(name string, contexts ...domain.UsageContext) domain.IngredientType {
	f.t.Helper()
	it, _, err := f.svc.CreateIngredientType(f.ctx, domain.IngredientType{Name: name, Contexts: contexts})
	if err != nil {
		f.t.Fatalf("create ingredient type %s: %v", name, err)
	}
	return it
}

func (f *fixture) consumable(c domain.Consumable) domain.Consumable {
	f.t.Helper()
	created, _, err := f.svc.CreateConsumable(f.ctx, c)
	if err != nil {
		f.t.Fatalf("create consumable %s: %v", c.Name, err)
	}
	return created
}

func (f *fixture) lot(c domain.Consumable, qty, cost float64, purchased time.Time) domain.InventoryLot {
	f.t.Helper()
	lot, _, err := f.svc.AddLot(f.ctx, LotInput{
		ConsumableID: c.ID,
		Quantity:     qty,
		Unit:         c.Unit,
		PurchaseDate: purchased,
		CostPerUnit:  floatPtr(cost),
	})
	if err != nil {
		f.t.Fatalf("add lot for %s: %v", c.Name, err)
	}
	return lot
}

func (f *fixture) getLot(id string) domain.InventoryLot {
	f.t.Helper()
	var lot domain.InventoryLot
	err := f.svc.Store().View(f.ctx, func(v domain.TransactionView) error {
		var ok bool
		if lot, ok = v.FindInventoryLot(id); !ok {
			return domain.NotFoundError{Entity: domain.EntityInventoryLot, ID: id}
		}
		return nil
	})
	if err != nil {
		f.t.Fatalf("find lot: %v", err)
	}
	return lot
}

func (f *fixture) req(typeID string, amount float64, unit string) domain.IngredientRequirement {
	return domain.IngredientRequirement{IngredientTypeID: typeID, Amount: amount, Unit: unit}
}

// meadStages is a valid still mead: prep, ferment, stabilise, back-sweeten.
func (f *fixture) meadStages() []domain.RecipeStage {
	return []domain.RecipeStage{
		{StageTypeID: stagegraph.MustPrep, Order: 1, Ingredients: []domain.IngredientRequirement{
			f.req(f.honeyType.ID, 3, "kg"), f.req(f.waterType.ID, 10, "L"),
		}},
		{StageTypeID: stagegraph.Fermentation, Order: 2, Ingredients: []domain.IngredientRequirement{
			f.req(f.yeastType.ID, 5, "g"), f.req(f.nutrientType.ID, 10, "g"),
		}},
		{StageTypeID: stagegraph.Stabilisation, Order: 3, Ingredients: []domain.IngredientRequirement{
			f.req(f.sorbateType.ID, 2, "g"),
		}},
		{StageTypeID: stagegraph.FlavorAdjustment, Order: 4, Ingredients: []domain.IngredientRequirement{
			f.req(f.fruitType.ID, 1, "kg"),
		}},
	}
}

func (f *fixture) recipe(status domain.RecipeStatus, stages []domain.RecipeStage) domain.Recipe {
	f.t.Helper()
	r, _, err := f.svc.CreateRecipe(f.ctx, domain.Recipe{
		Name: "Raspberry Melomel", BatchSize: 10, BatchUnit: "L", Status: status, Stages: stages,
	})
	if err != nil {
		f.t.Fatalf("create recipe: %v", err)
	}
	return r
}

func (f *fixture) batch() domain.Batch {
	f.t.Helper()
	r := f.recipe(domain.RecipeStatusFinal, f.meadStages())
	b, _, err := f.svc.CreateBatch(f.ctx, BatchInput{RecipeID: r.ID})
	if err != nil {
		f.t.Fatalf("create batch: %v", err)
	}
	return b
}

func (f *fixture) getBatch(id string) domain.Batch {
	f.t.Helper()
	b, err := f.svc.GetBatch(f.ctx, id)
	if err != nil {
		f.t.Fatalf("get batch: %v", err)
	}
	return b
}

func requireErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v, got nil", target)
	}
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %T: %v", target, err, err)
	}
}
