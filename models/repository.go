package models

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AssociationRepository is implemented by the gorm store and by memstore.
type AssociationRepository interface {
	// Create returns an error matching IsDuplicateKeyError when an active row
	// already exists for the same reference and type.
	Create(ctx context.Context, association *Association) error
	FindActiveByReference(ctx context.Context, oasysAssessmentPk string) ([]Association, error)
	FindDeletedByReference(ctx context.Context, oasysAssessmentPk string) ([]Association, error)
	FindAllByEntityUuid(ctx context.Context, entityUuid uuid.UUID) ([]Association, error)
	SetDeleted(ctx context.Context, ids []int, deleted bool) error
	// Merge moves every row under from to to in one transaction. It returns
	// ErrMergeTargetInUse or ErrMergeSourceEmpty without touching any row.
	Merge(ctx context.Context, from string, to string) (int64, error)
}

// VersionRepository is implemented by the gorm store and by memstore.
// Query results are ordered by version ascending.
type VersionRepository interface {
	// Mint creates the next version for entityUuid. Deleted rows count
	// towards the highest version so numbers are never reused.
	Mint(ctx context.Context, entityUuid uuid.UUID, event VersionEvent, now time.Time) (*VersionRecord, error)
	// UpdateEvent returns utils.ErrorRecordNotFound when no row exists at version.
	UpdateEvent(ctx context.Context, entityUuid uuid.UUID, version int64, event VersionEvent, now time.Time) (*VersionRecord, error)
	// LatestVersion returns 0 when the entity has no rows.
	LatestVersion(ctx context.Context, entityUuid uuid.UUID) (int64, error)
	// FlipRange sets deleted on the rows in [from, to] currently in the
	// opposite state and returns them. utils.ErrorRecordNotFound when none match.
	// Timestamps are left alone so history keeps its dates.
	FlipRange(ctx context.Context, entityUuid uuid.UUID, from int64, to int64, deleted bool) ([]VersionRecord, error)
	FindAll(ctx context.Context, entityUuid uuid.UUID, includeDeleted bool) ([]VersionRecord, error)
}
