package core

import (
	"context"
	"sort"
	"strings"
	"time"

	"brewcore/internal/infra/persistence/memory"
	"brewcore/internal/stagegraph"
	"brewcore/pkg/domain"
)

// ProductionService is the composition root for recipe authoring, batch
// execution and inventory. Every mutating call runs in one store transaction.
type ProductionService struct {
	store   domain.PersistentStore
	graph   *stagegraph.Graph
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

// NewProductionService constructs a service backed by the supplied store.
func NewProductionService(store domain.PersistentStore, opts ...Option) *ProductionService {
	svc := &ProductionService{
		store:   store,
		graph:   stagegraph.Default(),
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:  noopLogger{},
		audit:   noopAudit{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// NewInMemoryService creates a service over an in-memory store. A nil engine
// selects the default rules.
func NewInMemoryService(engine *RulesEngine, opts ...Option) *ProductionService {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewProductionService(memory.NewStore(engine), opts...)
}

// WithStageGraph replaces the embedded workflow graph.
func WithStageGraph(graph *stagegraph.Graph) Option {
	return func(s *ProductionService) {
		if graph != nil {
			s.graph = graph
		}
	}
}

// Store returns the underlying storage implementation.
func (s *ProductionService) Store() domain.PersistentStore {
	return s.store
}

// Graph returns the stage graph the service validates against.
func (s *ProductionService) Graph() *stagegraph.Graph {
	return s.graph
}

func (s *ProductionService) now(t time.Time) time.Time {
	if t.IsZero() {
		return s.clock.Now()
	}
	return t
}

// run wraps a transactional operation with tracing, metrics, audit and logging.
func (s *ProductionService) run(ctx context.Context, op string, fn func(tx domain.Transaction) (string, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	var entityID string
	res, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		id, err := fn(tx)
		entityID = id
		return err
	})
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityWarn {
			s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		}
	}
	if err != nil {
		s.logger.Warn("operation failed", "operation", op, "entity", operations[op].entity, "entity_id", entityID, "error", err)
		s.recordAuditError(ctx, op, entityID, duration, err)
		return res, err
	}
	s.logger.Debug("operation completed", "operation", op, "entity", operations[op].entity, "entity_id", entityID)
	s.recordAuditSuccess(ctx, op, entityID, duration)
	return res, nil
}

// settle drops a value built inside a transaction that did not commit.
func settle[T any](v T, res Result, err error) (T, Result, error) {
	if err != nil {
		var zero T
		return zero, res, err
	}
	return v, res, nil
}

func (s *ProductionService) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, duration, AuditStatusSuccess, "")
}

func (s *ProductionService) recordAuditError(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	s.recordAudit(ctx, op, entityID, duration, AuditStatusError, err.Error())
}

func (s *ProductionService) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, status AuditStatus, msg string) {
	meta, ok := operations[op]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    status,
		Error:     msg,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

func (s *ProductionService) view(ctx context.Context, fn func(domain.TransactionView) error) error {
	return s.store.View(ctx, fn)
}

func validContext(c domain.UsageContext) bool {
	switch c {
	case domain.ContextFermentable, domain.ContextNutrient, domain.ContextYeast, domain.ContextAcid,
		domain.ContextTannin, domain.ContextEnzyme, domain.ContextFlavoring, domain.ContextFining,
		domain.ContextStabiliser, domain.ContextPriming, domain.ContextWater:
		return true
	}
	return false
}

func checkIngredientType(it domain.IngredientType) error {
	if strings.TrimSpace(it.Name) == "" {
		return domain.Invalidf("ingredient type name is required")
	}
	if len(it.Contexts) == 0 {
		return domain.Invalidf("ingredient type %q needs at least one usage context", it.Name)
	}
	for _, c := range it.Contexts {
		if !validContext(c) {
			return domain.Invalidf("ingredient type %q has unknown usage context %q", it.Name, c)
		}
	}
	return nil
}

// CreateIngredientType persists a new ingredient type.
func (s *ProductionService) CreateIngredientType(ctx context.Context, it IngredientType) (IngredientType, Result, error) {
	var created IngredientType
	res, err := s.run(ctx, "create_ingredient_type", func(tx domain.Transaction) (string, error) {
		if err := checkIngredientType(it); err != nil {
			return it.ID, err
		}
		var err error
		created, err = tx.CreateIngredientType(it)
		return created.ID, err
	})
	return settle(created, res, err)
}

// UpdateIngredientType mutates an ingredient type.
func (s *ProductionService) UpdateIngredientType(ctx context.Context, id string, mutator func(*IngredientType) error) (IngredientType, Result, error) {
	var updated IngredientType
	res, err := s.run(ctx, "update_ingredient_type", func(tx domain.Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateIngredientType(id, func(it *IngredientType) error {
			if err := mutator(it); err != nil {
				return err
			}
			return checkIngredientType(*it)
		})
		return id, err
	})
	return settle(updated, res, err)
}

// DeleteIngredientType removes an ingredient type no recipe still plans with.
func (s *ProductionService) DeleteIngredientType(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_ingredient_type", func(tx domain.Transaction) (string, error) {
		for _, r := range tx.Snapshot().ListRecipes() {
			for _, stage := range r.Stages {
				for _, req := range stage.Ingredients {
					if req.IngredientTypeID == id {
						return id, domain.Conflictf("ingredient type is still planned by recipe %q", r.Name)
					}
				}
			}
		}
		return id, tx.DeleteIngredientType(id)
	})
}

// CreateSupplyType persists a new supply type.
func (s *ProductionService) CreateSupplyType(ctx context.Context, st SupplyType) (SupplyType, Result, error) {
	var created SupplyType
	res, err := s.run(ctx, "create_supply_type", func(tx domain.Transaction) (string, error) {
		if strings.TrimSpace(st.Name) == "" {
			return st.ID, domain.Invalidf("supply type name is required")
		}
		var err error
		created, err = tx.CreateSupplyType(st)
		return created.ID, err
	})
	return settle(created, res, err)
}

// DeleteSupplyType removes a supply type.
func (s *ProductionService) DeleteSupplyType(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_supply_type", func(tx domain.Transaction) (string, error) {
		return id, tx.DeleteSupplyType(id)
	})
}

func checkConsumable(view domain.TransactionView, c domain.Consumable) error {
	if strings.TrimSpace(c.Name) == "" {
		return domain.Invalidf("consumable name is required")
	}
	if strings.TrimSpace(c.Unit) == "" {
		return domain.Invalidf("consumable %q needs a unit", c.Name)
	}
	if c.IngredientTypeID == nil && c.SupplyTypeID == nil {
		return domain.Invalidf("consumable %q must be an ingredient, a supply, or both", c.Name)
	}
	if c.IngredientTypeID != nil {
		if _, ok := view.FindIngredientType(*c.IngredientTypeID); !ok {
			return domain.NotFoundError{Entity: domain.EntityIngredientType, ID: *c.IngredientTypeID}
		}
	}
	if c.SupplyTypeID != nil {
		if _, ok := view.FindSupplyType(*c.SupplyTypeID); !ok {
			return domain.NotFoundError{Entity: domain.EntitySupplyType, ID: *c.SupplyTypeID}
		}
	}
	return nil
}

// CreateConsumable persists a new consumable.
func (s *ProductionService) CreateConsumable(ctx context.Context, c Consumable) (Consumable, Result, error) {
	var created Consumable
	res, err := s.run(ctx, "create_consumable", func(tx domain.Transaction) (string, error) {
		c.HasBeenUsed = false
		if err := checkConsumable(tx.Snapshot(), c); err != nil {
			return c.ID, err
		}
		var err error
		created, err = tx.CreateConsumable(c)
		return created.ID, err
	})
	return settle(created, res, err)
}

func samePtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// UpdateConsumable mutates a consumable. Once used, its unit and type
// linkage are frozen.
func (s *ProductionService) UpdateConsumable(ctx context.Context, id string, mutator func(*Consumable) error) (Consumable, Result, error) {
	var updated Consumable
	res, err := s.run(ctx, "update_consumable", func(tx domain.Transaction) (string, error) {
		view := tx.Snapshot()
		var err error
		updated, err = tx.UpdateConsumable(id, func(c *Consumable) error {
			before := c.Clone()
			if err := mutator(c); err != nil {
				return err
			}
			c.HasBeenUsed = before.HasBeenUsed
			if before.HasBeenUsed && (c.Unit != before.Unit ||
				!samePtr(c.IngredientTypeID, before.IngredientTypeID) ||
				!samePtr(c.SupplyTypeID, before.SupplyTypeID)) {
				return domain.Conflictf("%s has been used; its unit and type linkage can no longer change", before.DisplayName())
			}
			if c.Unit != before.Unit {
				for _, lot := range view.ListInventoryLots() {
					if lot.ConsumableID == id {
						return domain.Conflictf("%s has stock lots in %s; its unit can no longer change", before.DisplayName(), before.Unit)
					}
				}
			}
			if c.OnDemand && !before.OnDemand {
				for _, lot := range view.ListInventoryLots() {
					if lot.ConsumableID == id && lot.Status == domain.LotStatusActive {
						return domain.Conflictf("%s still holds active lots and cannot become on-demand", before.DisplayName())
					}
				}
			}
			return checkConsumable(view, *c)
		})
		return id, err
	})
	return settle(updated, res, err)
}

// DeleteConsumable removes a consumable and its lots. Batch records keep the
// name snapshot. A consumable whose stock has been drawn keeps its lots for
// the audit trail and cannot be deleted.
func (s *ProductionService) DeleteConsumable(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_consumable", func(tx domain.Transaction) (string, error) {
		c, ok := tx.Snapshot().FindConsumable(id)
		if !ok {
			return id, domain.NotFoundError{Entity: domain.EntityConsumable, ID: id}
		}
		for _, lot := range tx.Snapshot().ListInventoryLots() {
			if lot.ConsumableID == id && !lot.CanDelete {
				return id, domain.Conflictf("%s has drawn lot %s kept for the audit trail", c.DisplayName(), lot.ID)
			}
		}
		return id, tx.DeleteConsumable(id)
	})
}

// AddLot records a stock purchase.
func (s *ProductionService) AddLot(ctx context.Context, in LotInput) (InventoryLot, Result, error) {
	var created InventoryLot
	res, err := s.run(ctx, "add_lot", func(tx domain.Transaction) (string, error) {
		var err error
		created, err = NewInventoryLedger(tx).AddLot(in)
		return created.ID, err
	})
	return settle(created, res, err)
}

// AvailableLots returns the active lots of a consumable in FIFO order.
func (s *ProductionService) AvailableLots(ctx context.Context, consumableID string) ([]InventoryLot, error) {
	var lots []InventoryLot
	err := s.view(ctx, func(v domain.TransactionView) error {
		if _, ok := v.FindConsumable(consumableID); !ok {
			return domain.NotFoundError{Entity: domain.EntityConsumable, ID: consumableID}
		}
		lots = AvailableLots(v, consumableID)
		return nil
	})
	return lots, err
}

// ListLots returns every lot of a consumable regardless of status, oldest first.
func (s *ProductionService) ListLots(ctx context.Context, consumableID string) ([]InventoryLot, error) {
	var lots []InventoryLot
	err := s.view(ctx, func(v domain.TransactionView) error {
		for _, lot := range v.ListInventoryLots() {
			if consumableID == "" || lot.ConsumableID == consumableID {
				lots = append(lots, lot)
			}
		}
		return nil
	})
	sort.SliceStable(lots, func(i, j int) bool {
		if !lots[i].PurchaseDate.Equal(lots[j].PurchaseDate) {
			return lots[i].PurchaseDate.Before(lots[j].PurchaseDate)
		}
		return lots[i].ID < lots[j].ID
	})
	return lots, err
}

// MarkLotExpired flags a lot as expired. Repeating the call is harmless.
func (s *ProductionService) MarkLotExpired(ctx context.Context, lotID string) (InventoryLot, Result, error) {
	var lot InventoryLot
	res, err := s.run(ctx, "mark_lot_expired", func(tx domain.Transaction) (string, error) {
		var err error
		lot, err = NewInventoryLedger(tx).MarkExpired(lotID)
		return lotID, err
	})
	return settle(lot, res, err)
}

// DeleteLot removes a lot that was never drawn from.
func (s *ProductionService) DeleteLot(ctx context.Context, lotID string) (Result, error) {
	return s.run(ctx, "delete_lot", func(tx domain.Transaction) (string, error) {
		return lotID, NewInventoryLedger(tx).DeleteLot(lotID)
	})
}

// ConsumeStock draws stock outside any batch, for spoilage or corrections.
func (s *ProductionService) ConsumeStock(ctx context.Context, req ConsumeRequest) (ConsumptionResult, Result, error) {
	var out ConsumptionResult
	res, err := s.run(ctx, "consume_stock", func(tx domain.Transaction) (string, error) {
		if strings.TrimSpace(req.Reason) == "" {
			return "", domain.Invalidf("a reason is required for stock consumption outside a batch")
		}
		req.BatchID, req.BatchStageID = nil, nil
		req.OccurredAt = s.now(req.OccurredAt)
		var err error
		out, err = NewInventoryLedger(tx).Consume(req)
		return out.EventID, err
	})
	return settle(out, res, err)
}

// ReverseConsumption undoes a manual stock consumption.
func (s *ProductionService) ReverseConsumption(ctx context.Context, eventID, reason string, at time.Time) (ConsumptionEvent, Result, error) {
	var reversal ConsumptionEvent
	res, err := s.run(ctx, "reverse_consumption", func(tx domain.Transaction) (string, error) {
		var err error
		reversal, err = NewInventoryLedger(tx).ReverseConsumption(eventID, reason, s.now(at))
		return eventID, err
	})
	return settle(reversal, res, err)
}

// ListConsumptionEvents returns ledger events in append order, optionally
// filtered to one consumable.
func (s *ProductionService) ListConsumptionEvents(ctx context.Context, consumableID string) ([]ConsumptionEvent, error) {
	var events []ConsumptionEvent
	err := s.view(ctx, func(v domain.TransactionView) error {
		for _, ev := range v.ListConsumptionEvents() {
			if consumableID == "" || (ev.ConsumableID != nil && *ev.ConsumableID == consumableID) {
				events = append(events, ev)
			}
		}
		return nil
	})
	return events, err
}

// ValidateStages runs the recipe validator against the current ingredient types.
func (s *ProductionService) ValidateStages(ctx context.Context, stages []RecipeStage) (bool, string, error) {
	var ok bool
	var reason string
	err := s.view(ctx, func(v domain.TransactionView) error {
		ok, reason = NewRecipeValidator(s.graph, LookupFromView(v)).Validate(stages)
		return nil
	})
	return ok, reason, err
}

// ValidateRecipe validates a stored recipe's current stages.
func (s *ProductionService) ValidateRecipe(ctx context.Context, id string) (bool, string, error) {
	var ok bool
	var reason string
	err := s.view(ctx, func(v domain.TransactionView) error {
		recipe, found := v.FindRecipe(id)
		if !found {
			return domain.NotFoundError{Entity: domain.EntityRecipe, ID: id}
		}
		ok, reason = NewRecipeValidator(s.graph, LookupFromView(v)).Validate(recipe.Stages)
		return nil
	})
	return ok, reason, err
}

func normalizeRecipe(r *Recipe) error {
	if strings.TrimSpace(r.Name) == "" {
		return domain.Invalidf("recipe name is required")
	}
	switch r.Status {
	case "":
		r.Status = domain.RecipeStatusDraft
	case domain.RecipeStatusDraft, domain.RecipeStatusFinal:
	default:
		return domain.Invalidf("unknown recipe status %q", r.Status)
	}
	for si := range r.Stages {
		for ii := range r.Stages[si].Ingredients {
			req := &r.Stages[si].Ingredients[ii]
			switch req.ScalingMethod {
			case "":
				req.ScalingMethod = domain.ScalingLinear
			case domain.ScalingLinear, domain.ScalingFixed, domain.ScalingStep:
			default:
				return domain.Invalidf("unknown scaling method %q", req.ScalingMethod)
			}
			if req.Amount < 0 {
				return domain.Invalidf("ingredient amount cannot be negative")
			}
		}
	}
	return nil
}

func (s *ProductionService) checkFinal(tx domain.Transaction, r Recipe) error {
	if r.IsDraft() {
		return nil
	}
	if ok, reason := NewRecipeValidator(s.graph, LookupFromView(tx.Snapshot())).Validate(r.Stages); !ok {
		return domain.ValidationError{Reason: reason}
	}
	return nil
}

// CreateRecipe persists a recipe. Final recipes must pass validation.
func (s *ProductionService) CreateRecipe(ctx context.Context, recipe Recipe) (Recipe, Result, error) {
	var created Recipe
	res, err := s.run(ctx, "create_recipe", func(tx domain.Transaction) (string, error) {
		r := recipe.Clone()
		if err := normalizeRecipe(&r); err != nil {
			return r.ID, err
		}
		if err := s.checkFinal(tx, r); err != nil {
			return r.ID, err
		}
		var err error
		created, err = tx.CreateRecipe(r)
		return created.ID, err
	})
	return settle(created, res, err)
}

// UpdateRecipe mutates a recipe. When the result is not a draft, the merged
// stage list is validated before anything is written.
func (s *ProductionService) UpdateRecipe(ctx context.Context, id string, mutator func(*Recipe) error) (Recipe, Result, error) {
	var updated Recipe
	res, err := s.run(ctx, "update_recipe", func(tx domain.Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateRecipe(id, func(r *Recipe) error {
			if err := mutator(r); err != nil {
				return err
			}
			if err := normalizeRecipe(r); err != nil {
				return err
			}
			return s.checkFinal(tx, *r)
		})
		return id, err
	})
	return settle(updated, res, err)
}

// FinalizeRecipe marks a recipe final after validating it.
func (s *ProductionService) FinalizeRecipe(ctx context.Context, id string) (Recipe, Result, error) {
	var updated Recipe
	res, err := s.run(ctx, "finalize_recipe", func(tx domain.Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateRecipe(id, func(r *Recipe) error {
			r.Status = domain.RecipeStatusFinal
			return s.checkFinal(tx, *r)
		})
		return id, err
	})
	return settle(updated, res, err)
}

// ReturnRecipeToDraft reopens a recipe for free editing.
func (s *ProductionService) ReturnRecipeToDraft(ctx context.Context, id string) (Recipe, Result, error) {
	var updated Recipe
	res, err := s.run(ctx, "return_recipe_to_draft", func(tx domain.Transaction) (string, error) {
		var err error
		updated, err = tx.UpdateRecipe(id, func(r *Recipe) error {
			r.Status = domain.RecipeStatusDraft
			return nil
		})
		return id, err
	})
	return settle(updated, res, err)
}

// DeleteRecipe removes a recipe. Batches created from it are unaffected.
func (s *ProductionService) DeleteRecipe(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_recipe", func(tx domain.Transaction) (string, error) {
		return id, tx.DeleteRecipe(id)
	})
}

// GetRecipe returns a recipe by id.
func (s *ProductionService) GetRecipe(ctx context.Context, id string) (Recipe, error) {
	var recipe Recipe
	err := s.view(ctx, func(v domain.TransactionView) error {
		var ok bool
		if recipe, ok = v.FindRecipe(id); !ok {
			return domain.NotFoundError{Entity: domain.EntityRecipe, ID: id}
		}
		return nil
	})
	return recipe, err
}

// ListRecipes returns all recipes ordered by name.
func (s *ProductionService) ListRecipes(ctx context.Context) ([]Recipe, error) {
	var recipes []Recipe
	err := s.view(ctx, func(v domain.TransactionView) error {
		recipes = v.ListRecipes()
		return nil
	})
	sort.SliceStable(recipes, func(i, j int) bool { return recipes[i].Name < recipes[j].Name })
	return recipes, err
}

// BatchInput names the recipe to snapshot and optional batch overrides.
type BatchInput struct {
	ID       string
	RecipeID string
	Name     string
}

// CreateBatch snapshots a recipe into a new planned batch. The recipe must
// pass validation as it stands; otherwise nothing is created.
func (s *ProductionService) CreateBatch(ctx context.Context, in BatchInput) (Batch, Result, error) {
	var created Batch
	res, err := s.run(ctx, "create_batch", func(tx domain.Transaction) (string, error) {
		view := tx.Snapshot()
		recipe, ok := view.FindRecipe(in.RecipeID)
		if !ok {
			return "", domain.NotFoundError{Entity: domain.EntityRecipe, ID: in.RecipeID}
		}
		if ok, reason := NewRecipeValidator(s.graph, LookupFromView(view)).Validate(recipe.Stages); !ok {
			return "", domain.ValidationError{Reason: reason}
		}
		batch := snapshotRecipe(tx, s.graph, view, recipe)
		batch.ID = in.ID
		if name := strings.TrimSpace(in.Name); name != "" {
			batch.Name = name
		}
		var err error
		created, err = tx.CreateBatch(batch)
		return created.ID, err
	})
	return settle(created, res, err)
}

// snapshotRecipe copies the recipe by value, stages in order.
func snapshotRecipe(tx domain.Transaction, graph *stagegraph.Graph, view domain.TransactionView, recipe Recipe) Batch {
	stages := make([]RecipeStage, len(recipe.Stages))
	copy(stages, recipe.Stages)
	sort.SliceStable(stages, func(i, j int) bool { return stages[i].Order < stages[j].Order })

	recipeID := recipe.ID
	batch := Batch{
		Name:       recipe.Name,
		RecipeID:   &recipeID,
		RecipeName: recipe.Name,
		BatchSize:  recipe.BatchSize,
		BatchUnit:  recipe.BatchUnit,
		Status:     domain.BatchStatusPlanned,
	}
	for _, rs := range stages {
		stage := BatchStage{
			ID:          tx.NewID(),
			StageTypeID: rs.StageTypeID,
			StageName:   graph.Name(rs.StageTypeID),
			Order:       rs.Order,
			Notes:       rs.Notes,
			Status:      domain.StageStatusPending,
		}
		for _, req := range rs.Ingredients {
			planned := domain.PlannedIngredient{
				IngredientTypeID: req.IngredientTypeID,
				Amount:           req.Amount,
				Unit:             req.Unit,
				ScalingMethod:    req.ScalingMethod,
			}
			if it, ok := view.FindIngredientType(req.IngredientTypeID); ok {
				planned.IngredientName = it.Name
			}
			stage.Planned = append(stage.Planned, planned)
		}
		batch.Stages = append(batch.Stages, stage)
	}
	return batch
}

// StartStage activates a pending stage, optionally placing it in a vessel.
func (s *ProductionService) StartStage(ctx context.Context, batchID, stageID string, opts StartOptions) (Batch, Result, error) {
	var batch Batch
	res, err := s.run(ctx, "start_stage", func(tx domain.Transaction) (string, error) {
		opts.StartDate = s.now(opts.StartDate)
		var err error
		batch, err = NewBatchWorkflow(tx, s.graph).StartStage(batchID, stageID, opts)
		return batchID, err
	})
	return settle(batch, res, err)
}

// CompleteStage completes an active stage.
func (s *ProductionService) CompleteStage(ctx context.Context, batchID, stageID string, at time.Time) (Batch, Result, error) {
	var batch Batch
	res, err := s.run(ctx, "complete_stage", func(tx domain.Transaction) (string, error) {
		var err error
		batch, err = NewBatchWorkflow(tx, s.graph).CompleteStage(batchID, stageID, s.now(at))
		return batchID, err
	})
	return settle(batch, res, err)
}

// SkipStage skips a pending optional stage.
func (s *ProductionService) SkipStage(ctx context.Context, batchID, stageID string, at time.Time) (Batch, Result, error) {
	var batch Batch
	res, err := s.run(ctx, "skip_stage", func(tx domain.Transaction) (string, error) {
		var err error
		batch, err = NewBatchWorkflow(tx, s.graph).SkipStage(batchID, stageID, s.now(at))
		return batchID, err
	})
	return settle(batch, res, err)
}

// AbandonBatch ends a batch with a reason.
func (s *ProductionService) AbandonBatch(ctx context.Context, batchID, reason string, at time.Time) (Batch, Result, error) {
	var batch Batch
	res, err := s.run(ctx, "abandon_batch", func(tx domain.Transaction) (string, error) {
		var err error
		batch, err = NewBatchWorkflow(tx, s.graph).AbandonBatch(batchID, reason, s.now(at))
		return batchID, err
	})
	return settle(batch, res, err)
}

// UseRequest records an actual ingredient or supply addition to a stage.
type UseRequest struct {
	BatchID      string
	StageID      string
	ConsumableID string
	Amount       float64
	Unit         string
	// Role defaults to ingredient when the consumable has an ingredient type.
	Role domain.ConsumableRole
	At   time.Time
}

// UseIngredient draws stock for an active stage and records it against the
// stage's slot for the consumable. On-demand consumables skip the ledger.
// If the draw fails nothing is written.
func (s *ProductionService) UseIngredient(ctx context.Context, req UseRequest) (BatchIngredient, Result, error) {
	var recorded BatchIngredient
	res, err := s.run(ctx, "use_ingredient", func(tx domain.Transaction) (string, error) {
		workflow := NewBatchWorkflow(tx, s.graph)
		if err := workflow.CheckUse(req.BatchID, req.StageID, req.ConsumableID); err != nil {
			return req.BatchID, err
		}
		consumable, ok := tx.Snapshot().FindConsumable(req.ConsumableID)
		if !ok {
			return req.BatchID, domain.NotFoundError{Entity: domain.EntityConsumable, ID: req.ConsumableID}
		}
		role, err := resolveRole(consumable, req.Role)
		if err != nil {
			return req.BatchID, err
		}
		use := IngredientUse{Consumable: consumable, Role: role, Amount: req.Amount, Unit: req.Unit}
		if consumable.OnDemand {
			if !positive(req.Amount) {
				return req.BatchID, domain.Invalidf("amount of %s must be positive, got %v", consumable.DisplayName(), req.Amount)
			}
			if req.Unit != consumable.Unit {
				return req.BatchID, domain.Invalidf("unit %q does not match %s unit %q", req.Unit, consumable.DisplayName(), consumable.Unit)
			}
			if err := NewInventoryLedger(tx).markUsed(consumable); err != nil {
				return req.BatchID, err
			}
		} else {
			batchID, stageID := req.BatchID, req.StageID
			out, err := NewInventoryLedger(tx).Consume(ConsumeRequest{
				ConsumableID: req.ConsumableID,
				Amount:       req.Amount,
				Unit:         req.Unit,
				BatchID:      &batchID,
				BatchStageID: &stageID,
				OccurredAt:   s.now(req.At),
			})
			if err != nil {
				return req.BatchID, err
			}
			use.Amount, use.Unit, use.Cost = out.TotalUsed, out.Unit, out.TotalCost
			use.Lots, use.EventID = out.Lots, out.EventID
		}
		recorded, err = workflow.RecordUse(req.BatchID, req.StageID, use)
		return req.BatchID, err
	})
	return settle(recorded, res, err)
}

func resolveRole(c domain.Consumable, requested domain.ConsumableRole) (domain.ConsumableRole, error) {
	switch requested {
	case "":
		if c.IngredientTypeID != nil {
			return domain.RoleIngredient, nil
		}
		return domain.RoleSupply, nil
	case domain.RoleIngredient:
		if c.IngredientTypeID == nil {
			return "", domain.Invalidf("%s is not an ingredient", c.DisplayName())
		}
	case domain.RoleSupply:
		if c.SupplyTypeID == nil {
			return "", domain.Invalidf("%s is not a supply", c.DisplayName())
		}
	default:
		return "", domain.Invalidf("unknown consumable role %q", requested)
	}
	return requested, nil
}

// DeleteBatch removes a batch and frees any vessel it holds.
func (s *ProductionService) DeleteBatch(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_batch", func(tx domain.Transaction) (string, error) {
		for _, v := range tx.Snapshot().ListVessels() {
			if v.BatchID != nil && *v.BatchID == id {
				if _, err := tx.UpdateVessel(v.ID, releaseVessel); err != nil {
					return id, err
				}
			}
		}
		return id, tx.DeleteBatch(id)
	})
}

// GetBatch returns a batch by id.
func (s *ProductionService) GetBatch(ctx context.Context, id string) (Batch, error) {
	var batch Batch
	err := s.view(ctx, func(v domain.TransactionView) error {
		var ok bool
		if batch, ok = v.FindBatch(id); !ok {
			return domain.NotFoundError{Entity: domain.EntityBatch, ID: id}
		}
		return nil
	})
	return batch, err
}

// ListBatches returns all batches, oldest first.
func (s *ProductionService) ListBatches(ctx context.Context) ([]Batch, error) {
	var batches []Batch
	err := s.view(ctx, func(v domain.TransactionView) error {
		batches = v.ListBatches()
		return nil
	})
	return batches, err
}

// CreateVessel registers a vessel.
func (s *ProductionService) CreateVessel(ctx context.Context, vessel Vessel) (Vessel, Result, error) {
	var created Vessel
	res, err := s.run(ctx, "create_vessel", func(tx domain.Transaction) (string, error) {
		if strings.TrimSpace(vessel.Name) == "" {
			return vessel.ID, domain.Invalidf("vessel name is required")
		}
		vessel.Status = domain.VesselStatusAvailable
		vessel.BatchID, vessel.BatchStageID = nil, nil
		var err error
		created, err = tx.CreateVessel(vessel)
		return created.ID, err
	})
	return settle(created, res, err)
}

// AssignVessel places an active stage in a vessel.
func (s *ProductionService) AssignVessel(ctx context.Context, vesselID, batchID, stageID string) (Vessel, Result, error) {
	var vessel Vessel
	res, err := s.run(ctx, "assign_vessel", func(tx domain.Transaction) (string, error) {
		batch, ok := tx.Snapshot().FindBatch(batchID)
		if !ok {
			return vesselID, domain.NotFoundError{Entity: domain.EntityBatch, ID: batchID}
		}
		if isTerminalBatch(batch.Status) {
			return vesselID, domain.Conflictf("batch %q is %s and cannot take a vessel", batch.Name, batch.Status)
		}
		stage, idx, ok := batch.Stage(stageID)
		if !ok {
			return vesselID, domain.NotFoundError{Entity: "batch_stage", ID: stageID}
		}
		if stage.Status != domain.StageStatusActive {
			return vesselID, domain.Conflictf("stage %q is %s; only active stages can hold a vessel", stage.StageName, stage.Status)
		}
		if stage.VesselID != nil {
			return vesselID, domain.Conflictf("stage %q already holds a vessel", stage.StageName)
		}
		if err := NewBatchWorkflow(tx, s.graph).occupy(vesselID, batchID, stageID); err != nil {
			return vesselID, err
		}
		if _, err := tx.UpdateBatch(batchID, func(b *Batch) error {
			v := vesselID
			b.Stages[idx].VesselID = &v
			return nil
		}); err != nil {
			return vesselID, err
		}
		vessel, _ = tx.Snapshot().FindVessel(vesselID)
		return vesselID, nil
	})
	return settle(vessel, res, err)
}

// ReleaseVessel frees a vessel and clears the stage that held it.
func (s *ProductionService) ReleaseVessel(ctx context.Context, vesselID string) (Vessel, Result, error) {
	var vessel Vessel
	res, err := s.run(ctx, "release_vessel", func(tx domain.Transaction) (string, error) {
		current, ok := tx.Snapshot().FindVessel(vesselID)
		if !ok {
			return vesselID, domain.NotFoundError{Entity: domain.EntityVessel, ID: vesselID}
		}
		if current.BatchID != nil && current.BatchStageID != nil {
			stageID := *current.BatchStageID
			if _, found := tx.Snapshot().FindBatch(*current.BatchID); found {
				if _, err := tx.UpdateBatch(*current.BatchID, func(b *Batch) error {
					if _, idx, ok := b.Stage(stageID); ok {
						b.Stages[idx].VesselID = nil
					}
					return nil
				}); err != nil {
					return vesselID, err
				}
			}
		}
		var err error
		vessel, err = tx.UpdateVessel(vesselID, releaseVessel)
		return vesselID, err
	})
	return settle(vessel, res, err)
}

// DeleteVessel removes an unoccupied vessel.
func (s *ProductionService) DeleteVessel(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_vessel", func(tx domain.Transaction) (string, error) {
		v, ok := tx.Snapshot().FindVessel(id)
		if !ok {
			return id, domain.NotFoundError{Entity: domain.EntityVessel, ID: id}
		}
		if v.Status == domain.VesselStatusOccupied {
			return id, domain.Conflictf("vessel %q is occupied", v.Name)
		}
		return id, tx.DeleteVessel(id)
	})
}

// Inventory returns the reference data and stock needed to render an
// overview in one consistent read.
type Inventory struct {
	IngredientTypes []IngredientType
	SupplyTypes     []SupplyType
	Consumables     []Consumable
	Vessels         []Vessel
}

// ListInventory reads all reference data.
func (s *ProductionService) ListInventory(ctx context.Context) (Inventory, error) {
	var inv Inventory
	err := s.view(ctx, func(v domain.TransactionView) error {
		inv = Inventory{
			IngredientTypes: v.ListIngredientTypes(),
			SupplyTypes:     v.ListSupplyTypes(),
			Consumables:     v.ListConsumables(),
			Vessels:         v.ListVessels(),
		}
		return nil
	})
	return inv, err
}
