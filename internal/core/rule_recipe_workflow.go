package core

import (
	"context"

	"brewcore/internal/stagegraph"
	"brewcore/pkg/domain"
)

// NewRecipeWorkflowRule re-validates every changed non-draft recipe at commit.
func NewRecipeWorkflowRule(graph *stagegraph.Graph) domain.Rule {
	return recipeWorkflowRule{graph: graph}
}

type recipeWorkflowRule struct {
	graph *stagegraph.Graph
}

func (recipeWorkflowRule) Name() string { return "recipe_workflow" }

func (r recipeWorkflowRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var validator *RecipeValidator
	for _, change := range changes {
		if change.Entity != domain.EntityRecipe || change.Action == domain.ActionDelete {
			continue
		}
		recipe, ok := change.After.(domain.Recipe)
		if !ok || recipe.IsDraft() {
			continue
		}
		current, ok := view.FindRecipe(recipe.ID)
		if !ok || current.IsDraft() {
			continue
		}
		if validator == nil {
			validator = NewRecipeValidator(r.graph, LookupFromView(view))
		}
		if ok, reason := validator.Validate(current.Stages); !ok {
			res.Violations = append(res.Violations, violation("recipe_workflow", domain.EntityRecipe, current.ID,
				"recipe "+current.Name+": "+reason))
		}
	}
	return res, nil
}
