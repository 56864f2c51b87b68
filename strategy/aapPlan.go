package strategy

import (
	"context"
	"encoding/json"

	"bitbucket.org/mmdatafocus/coordinator_backend/config"
	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"github.com/google/uuid"
)

// PlatformBackend is the client surface of the assessment platform.
// *clients.PlatformClient implements it.
type PlatformBackend interface {
	CreateAssessment(ctx context.Context, user models.UserDetails) (uuid.UUID, error)
	DeleteAssessment(ctx context.Context, id uuid.UUID, user models.UserDetails) error
	FetchAssessment(ctx context.Context, id uuid.UUID, user models.UserDetails) (json.RawMessage, error)
}

// VersionLedger is the part of *ledger.Ledger the plan variant needs.
type VersionLedger interface {
	CreateVersionFor(ctx context.Context, event models.VersionEvent, entityUuid uuid.UUID) (*models.VersionRecord, error)
	UpdateVersion(ctx context.Context, event models.VersionEvent, entityUuid uuid.UUID, version int64) (*models.VersionRecord, error)
	SoftDelete(ctx context.Context, entityUuid uuid.UUID, from int64, to *int64) (*models.VersionRecord, error)
	Undelete(ctx context.Context, entityUuid uuid.UUID, from int64, to *int64) (*models.VersionRecord, error)
	Versions(ctx context.Context, entityUuid uuid.UUID) ([]models.VersionRecord, error)
	Latest(ctx context.Context, entityUuid uuid.UUID) (*models.VersionRecord, error)
}

// systemUser acts for operations that carry no caller, such as compensating deletes.
var systemUser = models.UserDetails{ID: "coordinator", Name: "Coordinator"}

// AAPPlanStrategy keeps plan content on the assessment platform and version
// numbers in the local ledger.
type AAPPlanStrategy struct {
	Platform PlatformBackend
	Ledger   VersionLedger
}

func NewAAPPlanStrategy(platform PlatformBackend, versions VersionLedger) *AAPPlanStrategy {
	return &AAPPlanStrategy{Platform: platform, Ledger: versions}
}

func (s *AAPPlanStrategy) EntityType() models.RecordType {
	return models.RecordTypeAAPPlan
}

func (s *AAPPlanStrategy) versioned(record *models.VersionRecord) *models.VersionedEntity {
	return &models.VersionedEntity{ID: record.EntityUuid, Version: record.Version, EntityType: models.RecordTypeAAPPlan}
}

func (s *AAPPlanStrategy) mint(ctx context.Context, event models.VersionEvent, id uuid.UUID) (*models.VersionedEntity, error) {
	record, err := s.Ledger.CreateVersionFor(ctx, event, id)
	if err != nil {
		return nil, utils.WrapFailure("failed to record plan version", err)
	}
	return s.versioned(record), nil
}

func (s *AAPPlanStrategy) Create(ctx context.Context, data CreateData) (*models.VersionedEntity, error) {
	id, err := s.Platform.CreateAssessment(ctx, data.UserDetails)
	if err != nil {
		return nil, utils.WrapFailure("failed to create AAP_PLAN", err)
	}
	entity, err := s.mint(ctx, models.VersionEventCreated, id)
	if err != nil {
		// the platform record has no version, so nothing can reference it
		if delErr := s.Platform.DeleteAssessment(ctx, id, data.UserDetails); delErr != nil {
			config.LogError(config.GetLogger(), "strategy", "AAPPlanStrategy.Create", "remove unversioned platform record", id, delErr)
		}
		return nil, err
	}
	return entity, nil
}

func (s *AAPPlanStrategy) Fetch(ctx context.Context, id uuid.UUID) (*models.EntityView, error) {
	data, err := s.Platform.FetchAssessment(ctx, id, systemUser)
	if err != nil {
		return nil, utils.WrapFailure("failed to fetch AAP_PLAN", err)
	}
	latest, err := s.Ledger.Latest(ctx, id)
	if err != nil {
		return nil, utils.WrapFailure("failed to fetch AAP_PLAN version", err)
	}
	return &models.EntityView{VersionedEntity: *s.versioned(latest), Data: data}, nil
}

func (s *AAPPlanStrategy) FetchVersions(ctx context.Context, id uuid.UUID) ([]models.VersionDetails, error) {
	rows, err := s.Ledger.Versions(ctx, id)
	if err != nil {
		return nil, utils.WrapFailure("failed to fetch AAP_PLAN versions", err)
	}
	out := make([]models.VersionDetails, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Details(models.RecordTypeAAPPlan))
	}
	return out, nil
}

func (s *AAPPlanStrategy) Sign(ctx context.Context, data SignData, id uuid.UUID) (*models.VersionedEntity, error) {
	switch data.SignType {
	case models.SignTypeSelf:
		return s.mint(ctx, models.VersionEventSelfSigned, id)
	case models.SignTypeCountersign:
		return s.mint(ctx, models.VersionEventAwaitingCountersign, id)
	}
	return nil, utils.ValidationFailure("invalid sign type %q", data.SignType)
}

func (s *AAPPlanStrategy) CounterSign(ctx context.Context, id uuid.UUID, data CounterSignData) (*models.VersionedEntity, error) {
	if !data.Outcome.IsCountersignOutcome() {
		return nil, utils.ValidationFailure("invalid countersign outcome %q", data.Outcome)
	}
	record, err := s.Ledger.UpdateVersion(ctx, data.Outcome, id, data.Version)
	if err != nil {
		return nil, utils.WrapFailure("failed to countersign AAP_PLAN", err)
	}
	return s.versioned(record), nil
}

func (s *AAPPlanStrategy) Lock(ctx context.Context, data LockData, id uuid.UUID) (*models.VersionedEntity, error) {
	latest, err := s.Ledger.Latest(ctx, id)
	if err != nil {
		return nil, utils.WrapFailure("failed to lock AAP_PLAN", err)
	}
	if latest.CreatedByEvent == models.VersionEventLocked {
		return nil, utils.ConflictFailure("AAP_PLAN %s is already locked", id)
	}
	return s.mint(ctx, models.VersionEventLocked, id)
}

func (s *AAPPlanStrategy) Rollback(ctx context.Context, data RollbackData, id uuid.UUID) (*models.VersionedEntity, error) {
	rows, err := s.Ledger.Versions(ctx, id)
	if err != nil {
		return nil, utils.WrapFailure("failed to roll back AAP_PLAN", err)
	}
	found := false
	for _, row := range rows {
		if row.Version == data.Version {
			found = true
			break
		}
	}
	if !found {
		return nil, utils.NotFoundFailure("AAP_PLAN version %d not found", data.Version)
	}
	return s.mint(ctx, models.VersionEventRolledBack, id)
}

func (s *AAPPlanStrategy) SoftDelete(ctx context.Context, data SoftDeleteData, id uuid.UUID) (*models.VersionedEntity, error) {
	record, err := s.Ledger.SoftDelete(ctx, id, data.From, data.To)
	if err != nil {
		return nil, utils.WrapFailure("failed to soft delete AAP_PLAN", err)
	}
	return s.versioned(record), nil
}

func (s *AAPPlanStrategy) Undelete(ctx context.Context, data SoftDeleteData, id uuid.UUID) (*models.VersionedEntity, error) {
	record, err := s.Ledger.Undelete(ctx, id, data.From, data.To)
	if err != nil {
		return nil, utils.WrapFailure("failed to undelete AAP_PLAN", err)
	}
	return s.versioned(record), nil
}

// Clone keeps the platform record and starts a new version for the new reference.
func (s *AAPPlanStrategy) Clone(ctx context.Context, data CreateData, id uuid.UUID) (*models.VersionedEntity, error) {
	if _, err := s.Platform.FetchAssessment(ctx, id, data.UserDetails); err != nil {
		return nil, utils.WrapFailure("failed to clone AAP_PLAN", err)
	}
	return s.mint(ctx, models.VersionEventCloned, id)
}

func (s *AAPPlanStrategy) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.Platform.DeleteAssessment(ctx, id, systemUser); err != nil {
		return utils.WrapFailure("failed to delete AAP_PLAN", err)
	}
	return nil
}
