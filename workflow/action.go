package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/config"
	"bitbucket.org/mmdatafocus/coordinator_backend/metrics"
	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Action fans one lifecycle operation out to a command per record type.
type Action struct {
	Logger  *logrus.Logger
	Metrics *metrics.Metrics
	Tracer  trace.Tracer
}

func NewAction(logger *logrus.Logger, m *metrics.Metrics) *Action {
	return &Action{
		Logger:  logger,
		Metrics: m,
		Tracer:  otel.Tracer("bitbucket.org/mmdatafocus/coordinator_backend/workflow"),
	}
}

// Run executes every command concurrently and waits for all of them. Outcomes
// keep the order of cmds. The error aggregates every failed command; a
// failure never cancels the other commands.
func (a *Action) Run(ctx context.Context, operation string, cmds []Command) ([]Outcome, error) {
	outcomes := make([]Outcome, len(cmds))
	var g errgroup.Group
	for i, cmd := range cmds {
		g.Go(func() error {
			outcomes[i] = a.execute(ctx, operation, cmd)
			return nil
		})
	}
	_ = g.Wait()

	errs := make([]error, 0, len(outcomes))
	for _, out := range outcomes {
		errs = append(errs, out.Err)
	}
	return outcomes, utils.JoinFailures(errs...)
}

func (a *Action) execute(ctx context.Context, operation string, cmd Command) Outcome {
	ctx, span := a.Tracer.Start(ctx, "command."+operation, trace.WithAttributes(
		attribute.String("coordinator.operation", operation),
		attribute.String("coordinator.entity_type", string(cmd.EntityType)),
	))
	defer span.End()

	started := time.Now()
	out := cmd.Execute(ctx)
	out.EntityType = cmd.EntityType
	a.Metrics.ObserveCommand(operation, string(cmd.EntityType), out.Err, time.Since(started))

	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, utils.UserMessage(out.Err))
		config.LoggerWithContext(ctx, a.Logger).WithFields(logrus.Fields{
			"entityType": cmd.EntityType,
			"kind":       utils.KindOf(out.Err),
			"error":      out.Err.Error(),
		}).Warn(operation + " command failed")
	}
	return out
}

// Compensate runs the rollback of every successful outcome. Failures are
// logged and counted; the caller's original error is what gets reported.
func (a *Action) Compensate(ctx context.Context, operation string, outcomes []Outcome) {
	for _, out := range outcomes {
		if out.Err != nil || out.Rollback == nil {
			continue
		}
		err := out.Rollback(ctx)
		a.Metrics.ObserveCompensation(operation, string(out.EntityType), err)
		if err != nil {
			config.LogError(a.Logger, "workflow", "Compensate", "rollback "+operation+" of "+string(out.EntityType), out.Entity, err)
		}
	}
}

// Entities collects the versioned records of successful outcomes.
func Entities(outcomes []Outcome) []models.VersionedEntity {
	out := make([]models.VersionedEntity, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil && o.Entity != nil {
			out = append(out, *o.Entity)
		}
	}
	return out
}
