// Package strategy holds one lifecycle implementation per record type.
package strategy

import (
	"context"

	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"github.com/google/uuid"
)

type CreateData struct {
	UserDetails models.UserDetails
	PlanType    string
}

type SignData struct {
	SignType    models.SignType
	UserDetails models.UserDetails
}

type CounterSignData struct {
	Version     int64
	Outcome     models.VersionEvent
	UserDetails models.UserDetails
}

type LockData struct {
	UserDetails models.UserDetails
}

type RollbackData struct {
	Version     int64
	UserDetails models.UserDetails
}

// SoftDeleteData selects versions From..To; a nil To means "up to the latest".
type SoftDeleteData struct {
	From        int64
	To          *int64
	UserDetails models.UserDetails
}

// Strategy is the lifecycle contract every record type implements. Errors
// are always *utils.Failure; a conflict from the backend stays a conflict.
type Strategy interface {
	EntityType() models.RecordType
	Create(ctx context.Context, data CreateData) (*models.VersionedEntity, error)
	Fetch(ctx context.Context, id uuid.UUID) (*models.EntityView, error)
	FetchVersions(ctx context.Context, id uuid.UUID) ([]models.VersionDetails, error)
	Sign(ctx context.Context, data SignData, id uuid.UUID) (*models.VersionedEntity, error)
	CounterSign(ctx context.Context, id uuid.UUID, data CounterSignData) (*models.VersionedEntity, error)
	Lock(ctx context.Context, data LockData, id uuid.UUID) (*models.VersionedEntity, error)
	Rollback(ctx context.Context, data RollbackData, id uuid.UUID) (*models.VersionedEntity, error)
	SoftDelete(ctx context.Context, data SoftDeleteData, id uuid.UUID) (*models.VersionedEntity, error)
	Undelete(ctx context.Context, data SoftDeleteData, id uuid.UUID) (*models.VersionedEntity, error)
	Clone(ctx context.Context, data CreateData, id uuid.UUID) (*models.VersionedEntity, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

var (
	_ Strategy = (*AssessmentStrategy)(nil)
	_ Strategy = (*PlanStrategy)(nil)
	_ Strategy = (*AAPPlanStrategy)(nil)
)
