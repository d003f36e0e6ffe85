// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments. The sqlite and postgres
// stores embed it and snapshot its state after each commit.
package memory

import (
	"brewcore/pkg/domain"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// IngredientType aliases domain.IngredientType.
	IngredientType = domain.IngredientType
	// SupplyType aliases domain.SupplyType.
	SupplyType = domain.SupplyType
	// Consumable aliases domain.Consumable.
	Consumable = domain.Consumable
	// InventoryLot aliases domain.InventoryLot.
	InventoryLot = domain.InventoryLot
	// ConsumptionEvent aliases domain.ConsumptionEvent.
	ConsumptionEvent = domain.ConsumptionEvent
	// Recipe aliases domain.Recipe.
	Recipe = domain.Recipe
	// Batch aliases domain.Batch.
	Batch = domain.Batch
	// Vessel aliases domain.Vessel.
	Vessel = domain.Vessel
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	ingredientTypes map[string]IngredientType
	supplyTypes     map[string]SupplyType
	consumables     map[string]Consumable
	lots            map[string]InventoryLot
	events          map[string]ConsumptionEvent
	recipes         map[string]Recipe
	batches         map[string]Batch
	vessels         map[string]Vessel
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	IngredientTypes map[string]IngredientType   `json:"ingredient_types"`
	SupplyTypes     map[string]SupplyType       `json:"supply_types"`
	Consumables     map[string]Consumable       `json:"consumables"`
	Lots            map[string]InventoryLot     `json:"lots"`
	Events          map[string]ConsumptionEvent `json:"events"`
	Recipes         map[string]Recipe           `json:"recipes"`
	Batches         map[string]Batch            `json:"batches"`
	Vessels         map[string]Vessel           `json:"vessels"`
}

// Buckets names the snapshot sections in the order durable stores persist them.
var Buckets = []string{"ingredient_types", "supply_types", "consumables", "lots", "events", "recipes", "batches", "vessels"}

// Target returns a pointer to the map backing bucket, for decoding.
func (s *Snapshot) Target(bucket string) (any, bool) {
	switch bucket {
	case "ingredient_types":
		return &s.IngredientTypes, true
	case "supply_types":
		return &s.SupplyTypes, true
	case "consumables":
		return &s.Consumables, true
	case "lots":
		return &s.Lots, true
	case "events":
		return &s.Events, true
	case "recipes":
		return &s.Recipes, true
	case "batches":
		return &s.Batches, true
	case "vessels":
		return &s.Vessels, true
	}
	return nil, false
}

// Section returns the map backing bucket, for encoding.
func (s Snapshot) Section(bucket string) (any, bool) {
	switch bucket {
	case "ingredient_types":
		return s.IngredientTypes, true
	case "supply_types":
		return s.SupplyTypes, true
	case "consumables":
		return s.Consumables, true
	case "lots":
		return s.Lots, true
	case "events":
		return s.Events, true
	case "recipes":
		return s.Recipes, true
	case "batches":
		return s.Batches, true
	case "vessels":
		return s.Vessels, true
	}
	return nil, false
}

func newMemoryState() memoryState {
	return memoryState{
		ingredientTypes: map[string]IngredientType{},
		supplyTypes:     map[string]SupplyType{},
		consumables:     map[string]Consumable{},
		lots:            map[string]InventoryLot{},
		events:          map[string]ConsumptionEvent{},
		recipes:         map[string]Recipe{},
		batches:         map[string]Batch{},
		vessels:         map[string]Vessel{},
	}
}

func cloneMap[T any](in map[string]T, clone func(T) T) map[string]T {
	out := make(map[string]T, len(in))
	for k, v := range in {
		out[k] = clone(v)
	}
	return out
}

func identity[T any](v T) T { return v }

func (s memoryState) clone() memoryState {
	return memoryState{
		ingredientTypes: cloneMap(s.ingredientTypes, IngredientType.Clone),
		supplyTypes:     cloneMap(s.supplyTypes, identity[SupplyType]),
		consumables:     cloneMap(s.consumables, Consumable.Clone),
		lots:            cloneMap(s.lots, InventoryLot.Clone),
		events:          cloneMap(s.events, ConsumptionEvent.Clone),
		recipes:         cloneMap(s.recipes, Recipe.Clone),
		batches:         cloneMap(s.batches, Batch.Clone),
		vessels:         cloneMap(s.vessels, Vessel.Clone),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		IngredientTypes: cloned.ingredientTypes,
		SupplyTypes:     cloned.supplyTypes,
		Consumables:     cloned.consumables,
		Lots:            cloned.lots,
		Events:          cloned.events,
		Recipes:         cloned.recipes,
		Batches:         cloned.batches,
		Vessels:         cloned.vessels,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		ingredientTypes: s.IngredientTypes,
		supplyTypes:     s.SupplyTypes,
		consumables:     s.Consumables,
		lots:            s.Lots,
		events:          s.Events,
		recipes:         s.Recipes,
		batches:         s.Batches,
		vessels:         s.Vessels,
	}
	empty := newMemoryState()
	if state.ingredientTypes == nil {
		state.ingredientTypes = empty.ingredientTypes
	}
	if state.supplyTypes == nil {
		state.supplyTypes = empty.supplyTypes
	}
	if state.consumables == nil {
		state.consumables = empty.consumables
	}
	if state.lots == nil {
		state.lots = empty.lots
	}
	if state.events == nil {
		state.events = empty.events
	}
	if state.recipes == nil {
		state.recipes = empty.recipes
	}
	if state.batches == nil {
		state.batches = empty.batches
	}
	if state.vessels == nil {
		state.vessels = empty.vessels
	}
	return state.clone()
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
	commit CommitHook
}

// CommitHook receives the candidate state of a transaction that passed the
// rules, before it replaces committed state. An error discards the candidate.
type CommitHook func(ctx context.Context, candidate Snapshot) error

// SetCommitHook installs hook; nil removes it.
func (s *Store) SetCommitHook(hook CommitHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit = hook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// newID returns a time-ordered identifier so that ids created later sort
// after ids created earlier.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return id.String()
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// SetNowFunc overrides the clock used to stamp records.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}

// transaction represents a mutation set applied to a cloned store state.
type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces committed state only when fn succeeds, no blocking rule
// fires and the commit hook accepts it. A failure at any step leaves the
// prior state untouched.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}
	if s.commit != nil {
		if err := s.commit(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return Result{}, err
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp shared by every record written in the transaction.
func (tx *transaction) Now() time.Time { return tx.now }

// NewID returns a fresh time-ordered identifier.
func (tx *transaction) NewID() string { return newID() }

func (tx *transaction) stamp(base *domain.Base) {
	if base.ID == "" {
		base.ID = newID()
	}
	base.CreatedAt = tx.now
	base.UpdatedAt = tx.now
}

// CreateIngredientType stores a new ingredient type.
func (tx *transaction) CreateIngredientType(it IngredientType) (IngredientType, error) {
	tx.stamp(&it.Base)
	if _, exists := tx.state.ingredientTypes[it.ID]; exists {
		return IngredientType{}, fmt.Errorf("ingredient type %q already exists", it.ID)
	}
	tx.state.ingredientTypes[it.ID] = it.Clone()
	tx.recordChange(Change{Entity: domain.EntityIngredientType, Action: domain.ActionCreate, After: it.Clone()})
	return it.Clone(), nil
}

// UpdateIngredientType mutates an ingredient type.
func (tx *transaction) UpdateIngredientType(id string, mutator func(*IngredientType) error) (IngredientType, error) {
	current, ok := tx.state.ingredientTypes[id]
	if !ok {
		return IngredientType{}, domain.NotFoundError{Entity: domain.EntityIngredientType, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return IngredientType{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.ingredientTypes[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityIngredientType, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteIngredientType removes an ingredient type. Consumables linked to it
// lose the ingredient role; batch snapshots keep their names.
func (tx *transaction) DeleteIngredientType(id string) error {
	current, ok := tx.state.ingredientTypes[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityIngredientType, ID: id}
	}
	delete(tx.state.ingredientTypes, id)
	for cid, c := range tx.state.consumables {
		if c.IngredientTypeID != nil && *c.IngredientTypeID == id {
			c.IngredientTypeID = nil
			tx.state.consumables[cid] = c
		}
	}
	for bid, b := range tx.state.batches {
		changed := false
		for si := range b.Stages {
			for ii := range b.Stages[si].Ingredients {
				ing := &b.Stages[si].Ingredients[ii]
				if ing.IngredientTypeID != nil && *ing.IngredientTypeID == id {
					ing.IngredientTypeID = nil
					changed = true
				}
			}
		}
		if changed {
			tx.state.batches[bid] = b
		}
	}
	tx.recordChange(Change{Entity: domain.EntityIngredientType, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateSupplyType stores a new supply type.
func (tx *transaction) CreateSupplyType(st SupplyType) (SupplyType, error) {
	tx.stamp(&st.Base)
	if _, exists := tx.state.supplyTypes[st.ID]; exists {
		return SupplyType{}, fmt.Errorf("supply type %q already exists", st.ID)
	}
	tx.state.supplyTypes[st.ID] = st
	tx.recordChange(Change{Entity: domain.EntitySupplyType, Action: domain.ActionCreate, After: st})
	return st, nil
}

// DeleteSupplyType removes a supply type and clears the supply role it backed.
func (tx *transaction) DeleteSupplyType(id string) error {
	current, ok := tx.state.supplyTypes[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntitySupplyType, ID: id}
	}
	delete(tx.state.supplyTypes, id)
	for cid, c := range tx.state.consumables {
		if c.SupplyTypeID != nil && *c.SupplyTypeID == id {
			c.SupplyTypeID = nil
			tx.state.consumables[cid] = c
		}
	}
	tx.recordChange(Change{Entity: domain.EntitySupplyType, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateConsumable stores a new consumable.
func (tx *transaction) CreateConsumable(c Consumable) (Consumable, error) {
	tx.stamp(&c.Base)
	if _, exists := tx.state.consumables[c.ID]; exists {
		return Consumable{}, fmt.Errorf("consumable %q already exists", c.ID)
	}
	tx.state.consumables[c.ID] = c.Clone()
	tx.recordChange(Change{Entity: domain.EntityConsumable, Action: domain.ActionCreate, After: c.Clone()})
	return c.Clone(), nil
}

// UpdateConsumable mutates a consumable.
func (tx *transaction) UpdateConsumable(id string, mutator func(*Consumable) error) (Consumable, error) {
	current, ok := tx.state.consumables[id]
	if !ok {
		return Consumable{}, domain.NotFoundError{Entity: domain.EntityConsumable, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return Consumable{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.consumables[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityConsumable, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteConsumable removes a consumable and its lots. Batch ingredients and
// ledger events keep their name snapshots with the references nulled.
func (tx *transaction) DeleteConsumable(id string) error {
	current, ok := tx.state.consumables[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityConsumable, ID: id}
	}
	for lotID, lot := range tx.state.lots {
		if lot.ConsumableID == id {
			delete(tx.state.lots, lotID)
			tx.detachLot(lotID)
			tx.recordChange(Change{Entity: domain.EntityInventoryLot, Action: domain.ActionDelete, Before: lot})
		}
	}
	delete(tx.state.consumables, id)
	for eid, ev := range tx.state.events {
		if ev.ConsumableID != nil && *ev.ConsumableID == id {
			ev.ConsumableID = nil
			tx.state.events[eid] = ev
		}
	}
	for bid, b := range tx.state.batches {
		changed := false
		for si := range b.Stages {
			for ii := range b.Stages[si].Ingredients {
				ing := &b.Stages[si].Ingredients[ii]
				if ing.ConsumableID != nil && *ing.ConsumableID == id {
					ing.ConsumableID = nil
					changed = true
				}
			}
		}
		if changed {
			tx.state.batches[bid] = b
		}
	}
	tx.recordChange(Change{Entity: domain.EntityConsumable, Action: domain.ActionDelete, Before: current})
	return nil
}

// detachLot nulls every historical reference to lotID.
func (tx *transaction) detachLot(lotID string) {
	for eid, ev := range tx.state.events {
		if detachAllocations(ev.Lots, lotID) {
			tx.state.events[eid] = ev
		}
	}
	for bid, b := range tx.state.batches {
		changed := false
		for si := range b.Stages {
			for ii := range b.Stages[si].Ingredients {
				if detachAllocations(b.Stages[si].Ingredients[ii].Allocations, lotID) {
					changed = true
				}
			}
		}
		if changed {
			tx.state.batches[bid] = b
		}
	}
}

func detachAllocations(allocs []domain.LotAllocation, lotID string) bool {
	changed := false
	for i := range allocs {
		if allocs[i].LotID != nil && *allocs[i].LotID == lotID {
			allocs[i].LotID = nil
			changed = true
		}
	}
	return changed
}

// CreateInventoryLot stores a new lot.
func (tx *transaction) CreateInventoryLot(l InventoryLot) (InventoryLot, error) {
	if _, ok := tx.state.consumables[l.ConsumableID]; !ok {
		return InventoryLot{}, domain.NotFoundError{Entity: domain.EntityConsumable, ID: l.ConsumableID}
	}
	tx.stamp(&l.Base)
	if _, exists := tx.state.lots[l.ID]; exists {
		return InventoryLot{}, fmt.Errorf("inventory lot %q already exists", l.ID)
	}
	tx.state.lots[l.ID] = l.Clone()
	tx.recordChange(Change{Entity: domain.EntityInventoryLot, Action: domain.ActionCreate, After: l.Clone()})
	return l.Clone(), nil
}

// UpdateInventoryLot mutates a lot.
func (tx *transaction) UpdateInventoryLot(id string, mutator func(*InventoryLot) error) (InventoryLot, error) {
	current, ok := tx.state.lots[id]
	if !ok {
		return InventoryLot{}, domain.NotFoundError{Entity: domain.EntityInventoryLot, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return InventoryLot{}, err
	}
	current.ID = id
	current.ConsumableID = before.ConsumableID
	current.UpdatedAt = tx.now
	tx.state.lots[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityInventoryLot, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteInventoryLot removes a lot and nulls historical references to it.
func (tx *transaction) DeleteInventoryLot(id string) error {
	current, ok := tx.state.lots[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityInventoryLot, ID: id}
	}
	delete(tx.state.lots, id)
	tx.detachLot(id)
	tx.recordChange(Change{Entity: domain.EntityInventoryLot, Action: domain.ActionDelete, Before: current})
	return nil
}

// AppendConsumption writes a ledger event. Events are never updated apart
// from the reversal back-link.
func (tx *transaction) AppendConsumption(ev ConsumptionEvent) (ConsumptionEvent, error) {
	tx.stamp(&ev.Base)
	if _, exists := tx.state.events[ev.ID]; exists {
		return ConsumptionEvent{}, fmt.Errorf("consumption event %q already exists", ev.ID)
	}
	tx.state.events[ev.ID] = ev.Clone()
	tx.recordChange(Change{Entity: domain.EntityConsumption, Action: domain.ActionCreate, After: ev.Clone()})
	return ev.Clone(), nil
}

// MarkConsumptionReversed links an event to the reversal that undid it.
func (tx *transaction) MarkConsumptionReversed(id, reversalID string) (ConsumptionEvent, error) {
	current, ok := tx.state.events[id]
	if !ok {
		return ConsumptionEvent{}, domain.NotFoundError{Entity: domain.EntityConsumption, ID: id}
	}
	if current.ReversedBy != nil {
		return ConsumptionEvent{}, domain.Conflictf("consumption event %s already reversed by %s", id, *current.ReversedBy)
	}
	before := current.Clone()
	rid := reversalID
	current.ReversedBy = &rid
	current.UpdatedAt = tx.now
	tx.state.events[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityConsumption, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// CreateRecipe stores a new recipe.
func (tx *transaction) CreateRecipe(r Recipe) (Recipe, error) {
	tx.stamp(&r.Base)
	if _, exists := tx.state.recipes[r.ID]; exists {
		return Recipe{}, fmt.Errorf("recipe %q already exists", r.ID)
	}
	if r.Status == "" {
		r.Status = domain.RecipeStatusDraft
	}
	tx.state.recipes[r.ID] = r.Clone()
	tx.recordChange(Change{Entity: domain.EntityRecipe, Action: domain.ActionCreate, After: r.Clone()})
	return r.Clone(), nil
}

// UpdateRecipe mutates a recipe.
func (tx *transaction) UpdateRecipe(id string, mutator func(*Recipe) error) (Recipe, error) {
	current, ok := tx.state.recipes[id]
	if !ok {
		return Recipe{}, domain.NotFoundError{Entity: domain.EntityRecipe, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return Recipe{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.recipes[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityRecipe, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteRecipe removes a recipe with its stages. Batches keep their snapshot
// and lose only the back-reference.
func (tx *transaction) DeleteRecipe(id string) error {
	current, ok := tx.state.recipes[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityRecipe, ID: id}
	}
	delete(tx.state.recipes, id)
	for bid, b := range tx.state.batches {
		if b.RecipeID != nil && *b.RecipeID == id {
			b.RecipeID = nil
			tx.state.batches[bid] = b
		}
	}
	tx.recordChange(Change{Entity: domain.EntityRecipe, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateBatch stores a new batch.
func (tx *transaction) CreateBatch(b Batch) (Batch, error) {
	tx.stamp(&b.Base)
	if _, exists := tx.state.batches[b.ID]; exists {
		return Batch{}, fmt.Errorf("batch %q already exists", b.ID)
	}
	tx.state.batches[b.ID] = b.Clone()
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionCreate, After: b.Clone()})
	return b.Clone(), nil
}

// UpdateBatch mutates a batch.
func (tx *transaction) UpdateBatch(id string, mutator func(*Batch) error) (Batch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return Batch{}, domain.NotFoundError{Entity: domain.EntityBatch, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return Batch{}, err
	}
	current.ID = id
	current.CreatedAt = before.CreatedAt
	current.UpdatedAt = tx.now
	tx.state.batches[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteBatch removes a batch with its stages and ingredients.
func (tx *transaction) DeleteBatch(id string) error {
	current, ok := tx.state.batches[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityBatch, ID: id}
	}
	delete(tx.state.batches, id)
	for eid, ev := range tx.state.events {
		if ev.BatchID != nil && *ev.BatchID == id {
			ev.BatchID = nil
			ev.BatchStageID = nil
			tx.state.events[eid] = ev
		}
	}
	tx.recordChange(Change{Entity: domain.EntityBatch, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateVessel stores a new vessel.
func (tx *transaction) CreateVessel(v Vessel) (Vessel, error) {
	tx.stamp(&v.Base)
	if _, exists := tx.state.vessels[v.ID]; exists {
		return Vessel{}, fmt.Errorf("vessel %q already exists", v.ID)
	}
	if v.Status == "" {
		v.Status = domain.VesselStatusAvailable
	}
	tx.state.vessels[v.ID] = v.Clone()
	tx.recordChange(Change{Entity: domain.EntityVessel, Action: domain.ActionCreate, After: v.Clone()})
	return v.Clone(), nil
}

// UpdateVessel mutates a vessel.
func (tx *transaction) UpdateVessel(id string, mutator func(*Vessel) error) (Vessel, error) {
	current, ok := tx.state.vessels[id]
	if !ok {
		return Vessel{}, domain.NotFoundError{Entity: domain.EntityVessel, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return Vessel{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.vessels[id] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityVessel, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// DeleteVessel removes a vessel and clears stage references to it.
func (tx *transaction) DeleteVessel(id string) error {
	current, ok := tx.state.vessels[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityVessel, ID: id}
	}
	delete(tx.state.vessels, id)
	for bid, b := range tx.state.batches {
		changed := false
		for si := range b.Stages {
			if b.Stages[si].VesselID != nil && *b.Stages[si].VesselID == id {
				b.Stages[si].VesselID = nil
				changed = true
			}
		}
		if changed {
			tx.state.batches[bid] = b
		}
	}
	tx.recordChange(Change{Entity: domain.EntityVessel, Action: domain.ActionDelete, Before: current})
	return nil
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func sortedValues[T any](in map[string]T, clone func(T) T) []T {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		out = append(out, clone(in[k]))
	}
	return out
}

func find[T any](in map[string]T, id string, clone func(T) T) (T, bool) {
	v, ok := in[id]
	if !ok {
		var zero T
		return zero, false
	}
	return clone(v), true
}

// ListIngredientTypes returns ingredient types ordered by id.
func (v transactionView) ListIngredientTypes() []IngredientType {
	return sortedValues(v.state.ingredientTypes, IngredientType.Clone)
}

// ListSupplyTypes returns supply types ordered by id.
func (v transactionView) ListSupplyTypes() []SupplyType {
	return sortedValues(v.state.supplyTypes, identity[SupplyType])
}

// ListConsumables returns consumables ordered by id.
func (v transactionView) ListConsumables() []Consumable {
	return sortedValues(v.state.consumables, Consumable.Clone)
}

// ListInventoryLots returns all lots ordered by id.
func (v transactionView) ListInventoryLots() []InventoryLot {
	return sortedValues(v.state.lots, InventoryLot.Clone)
}

// ListConsumptionEvents returns ledger events ordered by id, which is also
// append order.
func (v transactionView) ListConsumptionEvents() []ConsumptionEvent {
	return sortedValues(v.state.events, ConsumptionEvent.Clone)
}

// ListRecipes returns recipes ordered by id.
func (v transactionView) ListRecipes() []Recipe {
	return sortedValues(v.state.recipes, Recipe.Clone)
}

// ListBatches returns batches ordered by id.
func (v transactionView) ListBatches() []Batch {
	return sortedValues(v.state.batches, Batch.Clone)
}

// ListVessels returns vessels ordered by id.
func (v transactionView) ListVessels() []Vessel {
	return sortedValues(v.state.vessels, Vessel.Clone)
}

// FindIngredientType retrieves an ingredient type by id.
func (v transactionView) FindIngredientType(id string) (IngredientType, bool) {
	return find(v.state.ingredientTypes, id, IngredientType.Clone)
}

// FindSupplyType retrieves a supply type by id.
func (v transactionView) FindSupplyType(id string) (SupplyType, bool) {
	return find(v.state.supplyTypes, id, identity[SupplyType])
}

// FindConsumable retrieves a consumable by id.
func (v transactionView) FindConsumable(id string) (Consumable, bool) {
	return find(v.state.consumables, id, Consumable.Clone)
}

// FindInventoryLot retrieves a lot by id.
func (v transactionView) FindInventoryLot(id string) (InventoryLot, bool) {
	return find(v.state.lots, id, InventoryLot.Clone)
}

// FindConsumptionEvent retrieves a ledger event by id.
func (v transactionView) FindConsumptionEvent(id string) (ConsumptionEvent, bool) {
	return find(v.state.events, id, ConsumptionEvent.Clone)
}

// FindRecipe retrieves a recipe by id.
func (v transactionView) FindRecipe(id string) (Recipe, bool) {
	return find(v.state.recipes, id, Recipe.Clone)
}

// FindBatch retrieves a batch by id.
func (v transactionView) FindBatch(id string) (Batch, bool) {
	return find(v.state.batches, id, Batch.Clone)
}

// FindVessel retrieves a vessel by id.
func (v transactionView) FindVessel(id string) (Vessel, bool) {
	return find(v.state.vessels, id, Vessel.Clone)
}
