package core

import (
	"brewcore/internal/stagegraph"
	"brewcore/pkg/domain"
)

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set
// checked against the embedded stage graph.
func NewDefaultRulesEngine() *RulesEngine {
	return NewRulesEngineForGraph(stagegraph.Default())
}

// NewRulesEngineForGraph builds the built-in policy set for a custom graph.
func NewRulesEngineForGraph(graph *stagegraph.Graph) *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewRecipeWorkflowRule(graph))
	engine.Register(NewLotIntegrityRule())
	engine.Register(LifecycleTransitionRule())
	engine.Register(NewVesselOccupancyRule())
	return engine
}

func violation(rule string, entity domain.EntityType, id, msg string) domain.Violation {
	return domain.Violation{Rule: rule, Severity: domain.SeverityBlock, Message: msg, Entity: entity, EntityID: id}
}
