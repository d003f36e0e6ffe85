package domain

import (
	"context"
	"time"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope. Nothing is visible to other callers
// until the enclosing RunInTransaction returns without error.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time

	CreateIngredientType(IngredientType) (IngredientType, error)
	UpdateIngredientType(id string, mutator func(*IngredientType) error) (IngredientType, error)
	DeleteIngredientType(id string) error
	CreateSupplyType(SupplyType) (SupplyType, error)
	DeleteSupplyType(id string) error

	CreateConsumable(Consumable) (Consumable, error)
	UpdateConsumable(id string, mutator func(*Consumable) error) (Consumable, error)
	DeleteConsumable(id string) error

	CreateInventoryLot(InventoryLot) (InventoryLot, error)
	UpdateInventoryLot(id string, mutator func(*InventoryLot) error) (InventoryLot, error)
	DeleteInventoryLot(id string) error

	AppendConsumption(ConsumptionEvent) (ConsumptionEvent, error)
	MarkConsumptionReversed(id, reversalID string) (ConsumptionEvent, error)

	CreateRecipe(Recipe) (Recipe, error)
	UpdateRecipe(id string, mutator func(*Recipe) error) (Recipe, error)
	DeleteRecipe(id string) error

	CreateBatch(Batch) (Batch, error)
	UpdateBatch(id string, mutator func(*Batch) error) (Batch, error)
	DeleteBatch(id string) error

	CreateVessel(Vessel) (Vessel, error)
	UpdateVessel(id string, mutator func(*Vessel) error) (Vessel, error)
	DeleteVessel(id string) error

	NewID() string
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
	ListSupplyTypes() []SupplyType
	FindSupplyType(id string) (SupplyType, bool)
	ListConsumptionEvents() []ConsumptionEvent
	FindConsumptionEvent(id string) (ConsumptionEvent, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	RulesEngine() *RulesEngine
}
