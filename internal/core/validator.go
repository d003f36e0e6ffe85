package core

import (
	"fmt"
	"sort"
	"strings"

	"brewcore/internal/stagegraph"
	"brewcore/pkg/domain"
)

// IngredientLookup resolves an ingredient type id to its display name and
// usage contexts.
type IngredientLookup func(ingredientTypeID string) (domain.IngredientType, bool)

// LookupFromView resolves ingredient types through a read-only store view.
func LookupFromView(view domain.RuleView) IngredientLookup {
	return view.FindIngredientType
}

// RecipeValidator checks an ordered stage list against the stage graph.
// Checks run in a fixed order and the first failure is reported.
type RecipeValidator struct {
	graph  *stagegraph.Graph
	lookup IngredientLookup
}

// NewRecipeValidator builds a validator. A nil graph selects the embedded one.
func NewRecipeValidator(graph *stagegraph.Graph, lookup IngredientLookup) *RecipeValidator {
	if graph == nil {
		graph = stagegraph.Default()
	}
	if lookup == nil {
		lookup = func(string) (domain.IngredientType, bool) { return domain.IngredientType{}, false }
	}
	return &RecipeValidator{graph: graph, lookup: lookup}
}

// Validate reports whether stages satisfy every workflow rule. When ok is
// false, reason names the offending stage or ingredient and is meant to be
// shown to the user verbatim.
func (v *RecipeValidator) Validate(stages []domain.RecipeStage) (bool, string) {
	sorted := make([]domain.RecipeStage, len(stages))
	copy(sorted, stages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	checks := []func([]domain.RecipeStage) string{
		v.checkWellFormed,
		v.checkContexts,
		v.checkAdjacentRepeat,
		v.checkPrerequisites,
		v.checkExclusions,
		v.checkFermentableAfterStabilisation,
		v.checkRequiredPresent,
	}
	for _, check := range checks {
		if reason := check(sorted); reason != "" {
			return false, reason
		}
	}
	return true, ""
}

func (v *RecipeValidator) stageName(id string) string {
	return v.graph.Name(id)
}

func (v *RecipeValidator) checkWellFormed(stages []domain.RecipeStage) string {
	if len(stages) == 0 {
		return "recipe has no stages"
	}
	for i, stage := range stages {
		if _, ok := v.graph.Lookup(stage.StageTypeID); !ok {
			return fmt.Sprintf("unknown stage type %q at order %d", stage.StageTypeID, stage.Order)
		}
		if i > 0 && stages[i-1].Order == stage.Order {
			return fmt.Sprintf("stages %q and %q share order %d; orders must be unique",
				v.stageName(stages[i-1].StageTypeID), v.stageName(stage.StageTypeID), stage.Order)
		}
		for _, req := range stage.Ingredients {
			if _, ok := v.lookup(req.IngredientTypeID); !ok {
				return fmt.Sprintf("stage %q (order %d) references unknown ingredient type %q",
					v.stageName(stage.StageTypeID), stage.Order, req.IngredientTypeID)
			}
		}
	}
	return ""
}

func (v *RecipeValidator) checkContexts(stages []domain.RecipeStage) string {
	for _, stage := range stages {
		st, _ := v.graph.Lookup(stage.StageTypeID)
		for _, req := range stage.Ingredients {
			it, _ := v.lookup(req.IngredientTypeID)
			if st.Allows(it.Contexts) {
				continue
			}
			return fmt.Sprintf("ingredient %q cannot be used in stage %q: its contexts [%s] do not match the stage's allowed contexts [%s]",
				it.Name, st.Name, joinContexts(it.Contexts), joinContexts(st.AllowedContexts))
		}
	}
	return ""
}

func (v *RecipeValidator) checkAdjacentRepeat(stages []domain.RecipeStage) string {
	for i := 1; i < len(stages); i++ {
		if stages[i].StageTypeID == stages[i-1].StageTypeID {
			return fmt.Sprintf("stage %q appears twice in a row (orders %d and %d)",
				v.stageName(stages[i].StageTypeID), stages[i-1].Order, stages[i].Order)
		}
	}
	return ""
}

func (v *RecipeValidator) checkPrerequisites(stages []domain.RecipeStage) string {
	firstOrder := make(map[string]int, len(stages))
	for _, stage := range stages {
		if _, seen := firstOrder[stage.StageTypeID]; !seen {
			firstOrder[stage.StageTypeID] = stage.Order
		}
	}
	for _, stage := range stages {
		st, _ := v.graph.Lookup(stage.StageTypeID)
		if st.Requires == "" {
			continue
		}
		at, present := firstOrder[st.Requires]
		if !present {
			return fmt.Sprintf("stage %q requires %q, which is missing from the recipe",
				st.Name, v.stageName(st.Requires))
		}
		if at >= stage.Order {
			return fmt.Sprintf("stage %q (order %d) requires %q earlier, but %q first appears at order %d",
				st.Name, stage.Order, v.stageName(st.Requires), v.stageName(st.Requires), at)
		}
	}
	return ""
}

func (v *RecipeValidator) checkExclusions(stages []domain.RecipeStage) string {
	present := make(map[string]bool, len(stages))
	for _, stage := range stages {
		present[stage.StageTypeID] = true
	}
	for _, stage := range stages {
		st, _ := v.graph.Lookup(stage.StageTypeID)
		if st.Excludes != "" && present[st.Excludes] {
			return fmt.Sprintf("stage %q cannot be combined with %q", st.Name, v.stageName(st.Excludes))
		}
	}
	return ""
}

// checkFermentableAfterStabilisation keeps fermentable additions in a flavor
// adjustment behind a stabilisation step. It is a fixed pair, not a graph edge.
func (v *RecipeValidator) checkFermentableAfterStabilisation(stages []domain.RecipeStage) string {
	stabilisedAt, stabilised := 0, false
	for _, stage := range stages {
		if stage.StageTypeID == stagegraph.Stabilisation && !stabilised {
			stabilisedAt, stabilised = stage.Order, true
		}
	}
	for _, stage := range stages {
		if stage.StageTypeID != stagegraph.FlavorAdjustment {
			continue
		}
		for _, req := range stage.Ingredients {
			it, _ := v.lookup(req.IngredientTypeID)
			if !it.HasContext(domain.ContextFermentable) {
				continue
			}
			if !stabilised || stabilisedAt >= stage.Order {
				return fmt.Sprintf("fermentable ingredient %q in %q (order %d) requires a %q stage earlier in the recipe",
					it.Name, v.stageName(stage.StageTypeID), stage.Order, v.stageName(stagegraph.Stabilisation))
			}
		}
	}
	return ""
}

func (v *RecipeValidator) checkRequiredPresent(stages []domain.RecipeStage) string {
	present := make(map[string]bool, len(stages))
	for _, stage := range stages {
		present[stage.StageTypeID] = true
	}
	for _, id := range v.graph.Required() {
		if !present[id] {
			return fmt.Sprintf("recipe is missing required stage %q", v.stageName(id))
		}
	}
	return ""
}

func joinContexts(contexts []domain.UsageContext) string {
	parts := make([]string, len(contexts))
	for i, c := range contexts {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
