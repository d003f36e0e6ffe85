package core

import (
	"context"
	"time"

	"brewcore/pkg/domain"
)

// Clock supplies timestamps for audit records and default stage dates.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// Logger is the structured logger surface used by the service. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger returns a logger that discards everything.
func NoopLogger() Logger { return noopLogger{} }

// AuditStatus captures the outcome of an audited operation.
type AuditStatus string

// Audit outcomes.
const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one service operation.
type AuditEntry struct {
	Operation string
	Entity    domain.EntityType
	Action    domain.Action
	EntityID  string
	Status    AuditStatus
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// AuditRecorder receives an entry for every service operation.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

// MetricsRecorder observes operation latency and outcome.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan is ended exactly once with the operation's error.
type TraceSpan interface {
	End(err error)
}

// Tracer starts spans around service operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, AuditEntry) {}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

type noopSpan struct{}

func (noopSpan) End(error) {}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type operationMeta struct {
	entity domain.EntityType
	action domain.Action
}

var operations = map[string]operationMeta{
	"create_ingredient_type": {domain.EntityIngredientType, domain.ActionCreate},
	"update_ingredient_type": {domain.EntityIngredientType, domain.ActionUpdate},
	"delete_ingredient_type": {domain.EntityIngredientType, domain.ActionDelete},
	"create_supply_type":     {domain.EntitySupplyType, domain.ActionCreate},
	"delete_supply_type":     {domain.EntitySupplyType, domain.ActionDelete},
	"create_consumable":      {domain.EntityConsumable, domain.ActionCreate},
	"update_consumable":      {domain.EntityConsumable, domain.ActionUpdate},
	"delete_consumable":      {domain.EntityConsumable, domain.ActionDelete},
	"add_lot":                {domain.EntityInventoryLot, domain.ActionCreate},
	"mark_lot_expired":       {domain.EntityInventoryLot, domain.ActionUpdate},
	"delete_lot":             {domain.EntityInventoryLot, domain.ActionDelete},
	"consume_stock":          {domain.EntityConsumption, domain.ActionCreate},
	"reverse_consumption":    {domain.EntityConsumption, domain.ActionCreate},
	"create_recipe":          {domain.EntityRecipe, domain.ActionCreate},
	"update_recipe":          {domain.EntityRecipe, domain.ActionUpdate},
	"finalize_recipe":        {domain.EntityRecipe, domain.ActionUpdate},
	"return_recipe_to_draft": {domain.EntityRecipe, domain.ActionUpdate},
	"delete_recipe":          {domain.EntityRecipe, domain.ActionDelete},
	"create_batch":           {domain.EntityBatch, domain.ActionCreate},
	"start_stage":            {domain.EntityBatch, domain.ActionUpdate},
	"complete_stage":         {domain.EntityBatch, domain.ActionUpdate},
	"skip_stage":             {domain.EntityBatch, domain.ActionUpdate},
	"abandon_batch":          {domain.EntityBatch, domain.ActionUpdate},
	"use_ingredient":         {domain.EntityBatch, domain.ActionUpdate},
	"delete_batch":           {domain.EntityBatch, domain.ActionDelete},
	"create_vessel":          {domain.EntityVessel, domain.ActionCreate},
	"assign_vessel":          {domain.EntityVessel, domain.ActionUpdate},
	"release_vessel":         {domain.EntityVessel, domain.ActionUpdate},
	"delete_vessel":          {domain.EntityVessel, domain.ActionDelete},
}

// Option configures a ProductionService.
type Option func(*ProductionService)

// WithClock overrides the service clock.
func WithClock(clock Clock) Option {
	return func(s *ProductionService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger Logger) Option {
	return func(s *ProductionService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(s *ProductionService) {
		if rec != nil {
			s.audit = rec
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(s *ProductionService) {
		if rec != nil {
			s.metrics = rec
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) Option {
	return func(s *ProductionService) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}
