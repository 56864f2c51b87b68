package config

// StrategyEnabled reports whether the backend for a record type is wired in.
// A disabled backend has no strategy, so lifecycle operations skip it.
//
// Set via env:
// - ASSESSMENT_ENABLED (default true)
// - PLAN_ENABLED (default true)
// - AAP_PLAN_ENABLED (default false)
func StrategyEnabled(recordType string) bool {
	switch recordType {
	case "ASSESSMENT":
		return boolFromEnv("ASSESSMENT_ENABLED", true)
	case "PLAN":
		return boolFromEnv("PLAN_ENABLED", true)
	case "AAP_PLAN":
		return boolFromEnv("AAP_PLAN_ENABLED", false)
	}
	return false
}

// CompensateOnAssociationFailure controls what happens when entities were
// created downstream but the association rows could not be stored.
// true: delete the created entities and soft-delete any stored associations.
// false: log the orphaned records and return the failure.
//
// Set via env:
// - COMPENSATE_ON_ASSOCIATION_FAILURE (default true)
func CompensateOnAssociationFailure() bool {
	return boolFromEnv("COMPENSATE_ON_ASSOCIATION_FAILURE", true)
}
