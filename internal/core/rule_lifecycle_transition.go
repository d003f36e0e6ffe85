package core

import (
	"context"
	"fmt"

	"brewcore/pkg/domain"
)

// LifecycleTransitionRule blocks illegal state transitions on stateful entities.
func LifecycleTransitionRule() domain.Rule {
	return lifecycleTransitionRule{}
}

type lifecycleTransitionRule struct{}

type lifecycleMachine struct {
	label     string
	terminal  map[string]struct{}
	valid     map[string]struct{}
	extractor func(payload any) (id string, state string, ok bool)
}

type stageState struct {
	name  string
	state string
}

var lifecycleMachines = map[domain.EntityType]lifecycleMachine{
	domain.EntityBatch: {
		label:    "batch",
		terminal: toSet(string(domain.BatchStatusCompleted), string(domain.BatchStatusAbandoned)),
		valid: toSet(
			string(domain.BatchStatusPlanned),
			string(domain.BatchStatusActive),
			string(domain.BatchStatusCompleted),
			string(domain.BatchStatusAbandoned),
		),
		extractor: func(payload any) (string, string, bool) {
			batch, ok := payload.(domain.Batch)
			return batch.ID, string(batch.Status), ok
		},
	},
	domain.EntityInventoryLot: {
		label:    "lot",
		terminal: toSet(string(domain.LotStatusExpired)),
		valid: toSet(
			string(domain.LotStatusActive),
			string(domain.LotStatusConsumed),
			string(domain.LotStatusExpired),
		),
		extractor: func(payload any) (string, string, bool) {
			lot, ok := payload.(domain.InventoryLot)
			return lot.ID, string(lot.Status), ok
		},
	},
	domain.EntityRecipe: {
		label:    "recipe",
		terminal: map[string]struct{}{},
		valid:    toSet(string(domain.RecipeStatusDraft), string(domain.RecipeStatusFinal)),
		extractor: func(payload any) (string, string, bool) {
			recipe, ok := payload.(domain.Recipe)
			return recipe.ID, string(recipe.Status), ok
		},
	},
}

var stageMachine = lifecycleMachine{
	label:    "stage",
	terminal: toSet(string(domain.StageStatusCompleted), string(domain.StageStatusSkipped)),
	valid: toSet(
		string(domain.StageStatusPending),
		string(domain.StageStatusActive),
		string(domain.StageStatusCompleted),
		string(domain.StageStatusSkipped),
	),
}

func (lifecycleTransitionRule) Name() string { return "lifecycle_transition" }

func (lifecycleTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(entity domain.EntityType, id, msg string) {
		res.Violations = append(res.Violations, violation("lifecycle_transition", entity, id, msg))
	}
	for _, change := range changes {
		machine, ok := lifecycleMachines[change.Entity]
		if !ok {
			continue
		}

		afterID, afterState, ok := machine.extractor(change.After)
		if !ok {
			continue
		}
		if _, valid := machine.valid[afterState]; !valid {
			block(change.Entity, afterID, fmt.Sprintf("%s %s is set to invalid state %s", machine.label, afterID, afterState))
			continue
		}
		if _, beforeState, ok := machine.extractor(change.Before); ok {
			if _, terminal := machine.terminal[beforeState]; terminal && afterState != beforeState {
				block(change.Entity, afterID, fmt.Sprintf("cannot move %s %s from terminal state %s to %s", machine.label, afterID, beforeState, afterState))
			}
		}

		if change.Entity == domain.EntityBatch {
			before, _ := change.Before.(domain.Batch)
			after, _ := change.After.(domain.Batch)
			for _, msg := range stageTransitions(before, after) {
				block(domain.EntityBatch, afterID, msg)
			}
		}
	}
	return res, nil
}

func stageTransitions(before, after domain.Batch) []string {
	prior := make(map[string]stageState, len(before.Stages))
	for _, s := range before.Stages {
		prior[s.ID] = stageState{name: s.StageName, state: string(s.Status)}
	}
	var msgs []string
	for _, s := range after.Stages {
		state := string(s.Status)
		if _, valid := stageMachine.valid[state]; !valid {
			msgs = append(msgs, fmt.Sprintf("stage %s of batch %s is set to invalid state %s", s.StageName, after.ID, state))
			continue
		}
		p, ok := prior[s.ID]
		if !ok {
			continue
		}
		if _, terminal := stageMachine.terminal[p.state]; terminal && p.state != state {
			msgs = append(msgs, fmt.Sprintf("cannot move stage %s of batch %s from terminal state %s to %s", p.name, after.ID, p.state, state))
		}
	}
	return msgs
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
