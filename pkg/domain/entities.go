// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by brewcore.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityIngredientType identifies an ingredient type reference record.
	EntityIngredientType EntityType = "ingredient_type"
	// EntitySupplyType identifies a supply type reference record.
	EntitySupplyType EntityType = "supply_type"
	// EntityConsumable identifies a purchasable consumable.
	EntityConsumable EntityType = "consumable"
	// EntityInventoryLot identifies a purchased lot of a consumable.
	EntityInventoryLot EntityType = "inventory_lot"
	// EntityConsumption identifies an append-only consumption ledger event.
	EntityConsumption EntityType = "consumption_event"
	// EntityRecipe identifies a recipe and its owned stages.
	EntityRecipe EntityType = "recipe"
	// EntityBatch identifies a batch snapshot and its owned stages.
	EntityBatch EntityType = "batch"
	// EntityVessel identifies a fermentation vessel.
	EntityVessel EntityType = "vessel"
	// EntityStageType identifies a stage graph node. Stage types are static
	// reference data and never appear in Change records.
	EntityStageType EntityType = "stage_type"
)

// UsageContext describes how an ingredient may be used.
type UsageContext string

// Canonical usage contexts shared by ingredient types and stage types.
const (
	ContextFermentable UsageContext = "fermentable"
	ContextNutrient    UsageContext = "nutrient"
	ContextYeast       UsageContext = "yeast"
	ContextAcid        UsageContext = "acid"
	ContextTannin      UsageContext = "tannin"
	ContextEnzyme      UsageContext = "enzyme"
	ContextFlavoring   UsageContext = "flavoring"
	ContextFining      UsageContext = "fining"
	ContextStabiliser  UsageContext = "stabiliser"
	ContextPriming     UsageContext = "priming"
	ContextWater       UsageContext = "water"
)

// ScalingMethod names how an ingredient amount follows the batch size.
type ScalingMethod string

// Scaling methods carried on ingredient requirements. Arithmetic lives with the
// authoring collaborator.
const (
	ScalingLinear ScalingMethod = "linear"
	ScalingFixed  ScalingMethod = "fixed"
	ScalingStep   ScalingMethod = "step"
)

// RecipeStatus tracks whether a recipe is still being authored.
type RecipeStatus string

// Recipe statuses. Only final recipes are guaranteed to satisfy the stage graph.
const (
	RecipeStatusDraft RecipeStatus = "draft"
	RecipeStatusFinal RecipeStatus = "final"
)

// BatchStatus enumerates the derived batch lifecycle.
type BatchStatus string

// Batch statuses. Completed and abandoned are terminal.
const (
	BatchStatusPlanned   BatchStatus = "planned"
	BatchStatusActive    BatchStatus = "active"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusAbandoned BatchStatus = "abandoned"
)

// StageStatus enumerates batch stage execution states.
type StageStatus string

// Stage statuses. Completed and skipped are terminal.
const (
	StageStatusPending   StageStatus = "pending"
	StageStatusActive    StageStatus = "active"
	StageStatusCompleted StageStatus = "completed"
	StageStatusSkipped   StageStatus = "skipped"
)

// LotStatus enumerates inventory lot states.
type LotStatus string

// Lot statuses.
const (
	LotStatusActive   LotStatus = "active"
	LotStatusConsumed LotStatus = "consumed"
	LotStatusExpired  LotStatus = "expired"
)

// ConsumableRole names the role a consumable plays in a batch.
type ConsumableRole string

// Consumable roles. A consumable may carry both.
const (
	RoleIngredient ConsumableRole = "ingredient"
	RoleSupply     ConsumableRole = "supply"
)

// ConsumptionSource tells what produced a ledger event.
type ConsumptionSource string

// Ledger event sources. Only manual events may be reversed.
const (
	SourceBatch    ConsumptionSource = "batch"
	SourceManual   ConsumptionSource = "manual"
	SourceReversal ConsumptionSource = "reversal"
)

// VesselStatus tracks equipment occupancy.
type VesselStatus string

// Vessel statuses.
const (
	VesselStatusAvailable VesselStatus = "available"
	VesselStatusOccupied  VesselStatus = "occupied"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StageType is a node of the system-defined workflow graph.
type StageType struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name" yaml:"name"`
	IsRequired      bool           `json:"is_required" yaml:"required"`
	Requires        string         `json:"requires,omitempty" yaml:"requires"`
	Excludes        string         `json:"excludes,omitempty" yaml:"excludes"`
	AllowedContexts []UsageContext `json:"allowed_contexts" yaml:"allowed_contexts"`
}

// Allows reports whether the stage type accepts any of the supplied contexts.
func (s StageType) Allows(contexts []UsageContext) bool {
	for _, allowed := range s.AllowedContexts {
		for _, ctx := range contexts {
			if allowed == ctx {
				return true
			}
		}
	}
	return false
}

// IngredientType is a category of ingredient carrying the contexts it satisfies.
type IngredientType struct {
	Base
	Name     string         `json:"name"`
	Contexts []UsageContext `json:"contexts"`
}

// HasContext reports whether the ingredient type satisfies ctx.
func (i IngredientType) HasContext(ctx UsageContext) bool {
	for _, c := range i.Contexts {
		if c == ctx {
			return true
		}
	}
	return false
}

// SupplyType is a category of production supply (bottles, caps, sanitiser).
type SupplyType struct {
	Base
	Name string `json:"name"`
}

// Consumable is a purchasable item playing the ingredient role, the supply
// role, or both. Unit and role linkage are frozen once HasBeenUsed is set.
type Consumable struct {
	Base
	Brand            string  `json:"brand"`
	Name             string  `json:"name"`
	Unit             string  `json:"unit"`
	IngredientTypeID *string `json:"ingredient_type_id,omitempty"`
	SupplyTypeID     *string `json:"supply_type_id,omitempty"`
	OnDemand         bool    `json:"on_demand"`
	HasBeenUsed      bool    `json:"has_been_used"`
}

// Roles lists the roles present on the consumable.
func (c Consumable) Roles() []ConsumableRole {
	var roles []ConsumableRole
	if c.IngredientTypeID != nil {
		roles = append(roles, RoleIngredient)
	}
	if c.SupplyTypeID != nil {
		roles = append(roles, RoleSupply)
	}
	return roles
}

// DisplayName joins brand and name for snapshots.
func (c Consumable) DisplayName() string {
	if c.Brand == "" {
		return c.Name
	}
	return c.Brand + " " + c.Name
}

// InventoryLot is a purchased quantity of a consumable, drawn down oldest first.
type InventoryLot struct {
	Base
	ConsumableID      string     `json:"consumable_id"`
	QuantityPurchased float64    `json:"quantity_purchased"`
	QuantityRemaining float64    `json:"quantity_remaining"`
	Unit              string     `json:"unit"`
	PurchaseDate      time.Time  `json:"purchase_date"`
	ExpirationDate    *time.Time `json:"expiration_date,omitempty"`
	CostPerUnit       *float64   `json:"cost_per_unit,omitempty"`
	Status            LotStatus  `json:"status"`
	CanDelete         bool       `json:"can_delete"`
	Notes             string     `json:"notes,omitempty"`
}

// LotAllocation records how much of one lot a consumption drew.
type LotAllocation struct {
	LotID       *string  `json:"lot_id,omitempty"`
	Used        float64  `json:"used"`
	CostPerUnit *float64 `json:"cost_per_unit,omitempty"`
}

// ConsumptionEvent is an append-only ledger entry written for every
// consumption and every reversal.
type ConsumptionEvent struct {
	Base
	ConsumableID    *string           `json:"consumable_id,omitempty"`
	ConsumableName  string            `json:"consumable_name"`
	Source          ConsumptionSource `json:"source"`
	BatchID         *string           `json:"batch_id,omitempty"`
	BatchStageID    *string           `json:"batch_stage_id,omitempty"`
	Lots            []LotAllocation   `json:"lots"`
	TotalUsed       float64           `json:"total_used"`
	TotalCost       float64           `json:"total_cost"`
	Unit            string            `json:"unit"`
	Reason          string            `json:"reason,omitempty"`
	OccurredAt      time.Time         `json:"occurred_at"`
	ReversesEventID *string           `json:"reverses_event_id,omitempty"`
	ReversedBy      *string           `json:"reversed_by,omitempty"`
}

// IngredientRequirement is a planned ingredient amount on a stage.
type IngredientRequirement struct {
	IngredientTypeID string        `json:"ingredient_type_id"`
	Amount           float64       `json:"amount"`
	Unit             string        `json:"unit"`
	ScalingMethod    ScalingMethod `json:"scaling_method"`
}

// RecipeStage is one ordered step of a recipe.
type RecipeStage struct {
	StageTypeID string                  `json:"stage_type_id"`
	Order       int                     `json:"order"`
	Notes       string                  `json:"notes,omitempty"`
	Ingredients []IngredientRequirement `json:"ingredients"`
}

// Recipe owns an ordered list of stages.
type Recipe struct {
	Base
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	BatchSize   float64       `json:"batch_size"`
	BatchUnit   string        `json:"batch_unit"`
	Status      RecipeStatus  `json:"status"`
	Stages      []RecipeStage `json:"stages"`
}

// IsDraft reports whether the recipe is exempt from workflow validation.
func (r Recipe) IsDraft() bool {
	return r.Status != RecipeStatusFinal
}

// PlannedIngredient is a by-value copy of a requirement taken at batch creation.
type PlannedIngredient struct {
	IngredientTypeID string        `json:"ingredient_type_id"`
	IngredientName   string        `json:"ingredient_name"`
	Amount           float64       `json:"amount"`
	Unit             string        `json:"unit"`
	ScalingMethod    ScalingMethod `json:"scaling_method"`
}

// BatchIngredient records a consumable actually used by a batch stage.
type BatchIngredient struct {
	ID               string          `json:"id"`
	ConsumableID     *string         `json:"consumable_id,omitempty"`
	ConsumableName   string          `json:"consumable_name"`
	IngredientTypeID *string         `json:"ingredient_type_id,omitempty"`
	IngredientName   string          `json:"ingredient_name,omitempty"`
	Role             ConsumableRole  `json:"role"`
	ActualAmount     float64         `json:"actual_amount"`
	ActualUnit       string          `json:"actual_unit"`
	ActualCost       float64         `json:"actual_cost"`
	Allocations      []LotAllocation `json:"allocations"`
	EventIDs         []string        `json:"event_ids"`
	Additions        int             `json:"additions"`
}

// BatchStage is a snapshot of a recipe stage plus execution state.
type BatchStage struct {
	ID                     string              `json:"id"`
	StageTypeID            string              `json:"stage_type_id"`
	StageName              string              `json:"stage_name"`
	Order                  int                 `json:"order"`
	Notes                  string              `json:"notes,omitempty"`
	Planned                []PlannedIngredient `json:"planned"`
	Status                 StageStatus         `json:"status"`
	StartDate              *time.Time          `json:"start_date,omitempty"`
	EndDate                *time.Time          `json:"end_date,omitempty"`
	AllowMultipleAdditions bool                `json:"allow_multiple_additions"`
	VesselID               *string             `json:"vessel_id,omitempty"`
	Ingredients            []BatchIngredient   `json:"ingredients"`
}

// Batch is an immutable production record snapshotted from a recipe.
type Batch struct {
	Base
	Name          string       `json:"name"`
	RecipeID      *string      `json:"recipe_id,omitempty"`
	RecipeName    string       `json:"recipe_name"`
	BatchSize     float64      `json:"batch_size"`
	BatchUnit     string       `json:"batch_unit"`
	Status        BatchStatus  `json:"status"`
	AbandonReason string       `json:"abandon_reason,omitempty"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	Stages        []BatchStage `json:"stages"`
}

// Stage returns the stage with the given id.
func (b Batch) Stage(id string) (BatchStage, int, bool) {
	for i, stage := range b.Stages {
		if stage.ID == id {
			return stage, i, true
		}
	}
	return BatchStage{}, -1, false
}

// Vessel is a piece of equipment a batch stage may occupy.
type Vessel struct {
	Base
	Name           string       `json:"name"`
	CapacityLiters float64      `json:"capacity_liters"`
	Status         VesselStatus `json:"status"`
	BatchID        *string      `json:"batch_id,omitempty"`
	BatchStageID   *string      `json:"batch_stage_id,omitempty"`
}

// Change describes a mutation applied within a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}

// Is reports blocked transactions as state conflicts.
func (e RuleViolationError) Is(target error) bool { return target == ErrConflict }
