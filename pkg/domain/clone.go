package domain

import "time"

func cloneStringPtr(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneFloatPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneTimePtr(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// Clone returns a deep copy of the ingredient type.
func (i IngredientType) Clone() IngredientType {
	cp := i
	cp.Contexts = append([]UsageContext(nil), i.Contexts...)
	return cp
}

// Clone returns a deep copy of the consumable.
func (c Consumable) Clone() Consumable {
	cp := c
	cp.IngredientTypeID = cloneStringPtr(c.IngredientTypeID)
	cp.SupplyTypeID = cloneStringPtr(c.SupplyTypeID)
	return cp
}

// Clone returns a deep copy of the lot.
func (l InventoryLot) Clone() InventoryLot {
	cp := l
	cp.ExpirationDate = cloneTimePtr(l.ExpirationDate)
	cp.CostPerUnit = cloneFloatPtr(l.CostPerUnit)
	return cp
}

func cloneAllocations(in []LotAllocation) []LotAllocation {
	if in == nil {
		return nil
	}
	out := make([]LotAllocation, len(in))
	for i, a := range in {
		out[i] = LotAllocation{LotID: cloneStringPtr(a.LotID), Used: a.Used, CostPerUnit: cloneFloatPtr(a.CostPerUnit)}
	}
	return out
}

// Clone returns a deep copy of the consumption event.
func (e ConsumptionEvent) Clone() ConsumptionEvent {
	cp := e
	cp.ConsumableID = cloneStringPtr(e.ConsumableID)
	cp.BatchID = cloneStringPtr(e.BatchID)
	cp.BatchStageID = cloneStringPtr(e.BatchStageID)
	cp.ReversesEventID = cloneStringPtr(e.ReversesEventID)
	cp.ReversedBy = cloneStringPtr(e.ReversedBy)
	cp.Lots = cloneAllocations(e.Lots)
	return cp
}

// Clone returns a deep copy of the recipe including its stages.
func (r Recipe) Clone() Recipe {
	cp := r
	if r.Stages != nil {
		cp.Stages = make([]RecipeStage, len(r.Stages))
		for i, stage := range r.Stages {
			cp.Stages[i] = stage
			cp.Stages[i].Ingredients = append([]IngredientRequirement(nil), stage.Ingredients...)
		}
	}
	return cp
}

// Clone returns a deep copy of the batch including stages and ingredients.
func (b Batch) Clone() Batch {
	cp := b
	cp.RecipeID = cloneStringPtr(b.RecipeID)
	cp.StartedAt = cloneTimePtr(b.StartedAt)
	cp.CompletedAt = cloneTimePtr(b.CompletedAt)
	if b.Stages != nil {
		cp.Stages = make([]BatchStage, len(b.Stages))
		for i, stage := range b.Stages {
			cp.Stages[i] = stage.Clone()
		}
	}
	return cp
}

// Clone returns a deep copy of the batch stage.
func (s BatchStage) Clone() BatchStage {
	cp := s
	cp.Planned = append([]PlannedIngredient(nil), s.Planned...)
	cp.StartDate = cloneTimePtr(s.StartDate)
	cp.EndDate = cloneTimePtr(s.EndDate)
	cp.VesselID = cloneStringPtr(s.VesselID)
	if s.Ingredients != nil {
		cp.Ingredients = make([]BatchIngredient, len(s.Ingredients))
		for i, ing := range s.Ingredients {
			cp.Ingredients[i] = ing.Clone()
		}
	}
	return cp
}

// Clone returns a deep copy of the batch ingredient.
func (b BatchIngredient) Clone() BatchIngredient {
	cp := b
	cp.ConsumableID = cloneStringPtr(b.ConsumableID)
	cp.IngredientTypeID = cloneStringPtr(b.IngredientTypeID)
	cp.Allocations = cloneAllocations(b.Allocations)
	cp.EventIDs = append([]string(nil), b.EventIDs...)
	return cp
}

// Clone returns a deep copy of the vessel.
func (v Vessel) Clone() Vessel {
	cp := v
	cp.BatchID = cloneStringPtr(v.BatchID)
	cp.BatchStageID = cloneStringPtr(v.BatchStageID)
	return cp
}
