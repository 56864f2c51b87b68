package strategy

import (
	"bitbucket.org/mmdatafocus/coordinator_backend/config"
	"bitbucket.org/mmdatafocus/coordinator_backend/clients"
	"bitbucket.org/mmdatafocus/coordinator_backend/ledger"
	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
)

// Registry maps record types to their strategy. Built once at startup.
type Registry struct {
	strategies map[models.RecordType]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[models.RecordType]Strategy, len(strategies))}
	for _, s := range strategies {
		r.strategies[s.EntityType()] = s
	}
	return r
}

// Get fails with a configuration failure when the type's backend is disabled.
func (r *Registry) Get(entityType models.RecordType) (Strategy, error) {
	s, ok := r.strategies[entityType]
	if !ok {
		return nil, utils.ConfigurationFailure("no strategy configured for %s", entityType)
	}
	return s, nil
}

// Active returns the configured strategies in the fixed fan-out order.
func (r *Registry) Active() []Strategy {
	out := make([]Strategy, 0, len(r.strategies))
	for _, t := range models.RecordTypes {
		if s, ok := r.strategies[t]; ok {
			out = append(out, s)
		}
	}
	return out
}

// FromSettings wires a strategy for every backend enabled by feature flag.
func FromSettings(settings config.Settings, versions *ledger.Ledger) *Registry {
	var strategies []Strategy
	if config.StrategyEnabled(string(models.RecordTypeAssessment)) {
		strategies = append(strategies, NewAssessmentStrategy(clients.NewAssessmentClient(settings.AssessmentApiUrl, settings.DownstreamTimeout)))
	}
	if config.StrategyEnabled(string(models.RecordTypePlan)) {
		strategies = append(strategies, NewPlanStrategy(clients.NewPlanClient(settings.PlanApiUrl, settings.DownstreamTimeout)))
	}
	if config.StrategyEnabled(string(models.RecordTypeAAPPlan)) {
		strategies = append(strategies, NewAAPPlanStrategy(clients.NewPlatformClient(settings.PlatformApiUrl, settings.DownstreamTimeout), versions))
	}
	return NewRegistry(strategies...)
}
