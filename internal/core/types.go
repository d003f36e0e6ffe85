package core

import "brewcore/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	IngredientType     = domain.IngredientType
	SupplyType         = domain.SupplyType
	Consumable         = domain.Consumable
	InventoryLot       = domain.InventoryLot
	LotAllocation      = domain.LotAllocation
	ConsumptionEvent   = domain.ConsumptionEvent
	Recipe             = domain.Recipe
	RecipeStage        = domain.RecipeStage
	Batch              = domain.Batch
	BatchStage         = domain.BatchStage
	BatchIngredient    = domain.BatchIngredient
	Vessel             = domain.Vessel
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
)

const (
	EntityIngredientType = domain.EntityIngredientType
	EntitySupplyType     = domain.EntitySupplyType
	EntityConsumable     = domain.EntityConsumable
	EntityInventoryLot   = domain.EntityInventoryLot
	EntityConsumption    = domain.EntityConsumption
	EntityRecipe         = domain.EntityRecipe
	EntityBatch          = domain.EntityBatch
	EntityVessel         = domain.EntityVessel
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
