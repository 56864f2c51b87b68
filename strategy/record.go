package strategy

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/coordinator_backend/clients"
	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"github.com/google/uuid"
)

// RecordBackend is the client surface of a backend that versions its own
// records. *clients.RecordClient implements it.
type RecordBackend interface {
	Create(ctx context.Context, req clients.CreateRequest) (*clients.RecordVersion, error)
	Fetch(ctx context.Context, id uuid.UUID) (*clients.RecordPayload, error)
	FetchVersions(ctx context.Context, id uuid.UUID) ([]clients.VersionPayload, error)
	Sign(ctx context.Context, id uuid.UUID, req clients.SignRequest) (*clients.RecordVersion, error)
	CounterSign(ctx context.Context, id uuid.UUID, req clients.CounterSignRequest) (*clients.RecordVersion, error)
	Lock(ctx context.Context, id uuid.UUID, req clients.UserRequest) (*clients.RecordVersion, error)
	Rollback(ctx context.Context, id uuid.UUID, req clients.RollbackRequest) (*clients.RecordVersion, error)
	SoftDelete(ctx context.Context, id uuid.UUID, req clients.VersionRangeRequest) (*clients.RecordVersion, error)
	Undelete(ctx context.Context, id uuid.UUID, req clients.VersionRangeRequest) (*clients.RecordVersion, error)
	Clone(ctx context.Context, id uuid.UUID, req clients.UserRequest) (*clients.RecordVersion, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// recordStrategy delegates every operation, version bookkeeping included,
// to the backend.
type recordStrategy struct {
	entityType models.RecordType
	backend    RecordBackend
}

func (s *recordStrategy) EntityType() models.RecordType {
	return s.entityType
}

func (s *recordStrategy) failure(action string, err error) error {
	return utils.WrapFailure(fmt.Sprintf("failed to %s %s", action, s.entityType), err)
}

func (s *recordStrategy) versioned(action string, out *clients.RecordVersion, err error) (*models.VersionedEntity, error) {
	if err != nil {
		return nil, s.failure(action, err)
	}
	return &models.VersionedEntity{ID: out.ID, Version: out.Version, EntityType: s.entityType}, nil
}

func (s *recordStrategy) create(ctx context.Context, req clients.CreateRequest) (*models.VersionedEntity, error) {
	out, err := s.backend.Create(ctx, req)
	return s.versioned("create", out, err)
}

func (s *recordStrategy) Fetch(ctx context.Context, id uuid.UUID) (*models.EntityView, error) {
	out, err := s.backend.Fetch(ctx, id)
	if err != nil {
		return nil, s.failure("fetch", err)
	}
	return &models.EntityView{
		VersionedEntity: models.VersionedEntity{ID: out.ID, Version: out.Version, EntityType: s.entityType},
		Data:            out.Data,
	}, nil
}

func (s *recordStrategy) fetchVersions(ctx context.Context, id uuid.UUID, keepAgreement bool) ([]models.VersionDetails, error) {
	out, err := s.backend.FetchVersions(ctx, id)
	if err != nil {
		return nil, s.failure("fetch versions of", err)
	}
	versions := make([]models.VersionDetails, 0, len(out))
	for _, v := range out {
		d := models.VersionDetails{
			Uuid:       v.Uuid,
			Version:    v.Version,
			CreatedAt:  v.CreatedAt,
			UpdatedAt:  v.UpdatedAt,
			Status:     v.Status,
			EntityType: s.entityType,
		}
		if keepAgreement {
			d.AgreementStatus = v.PlanAgreementStatus
		}
		versions = append(versions, d)
	}
	return versions, nil
}

func (s *recordStrategy) Sign(ctx context.Context, data SignData, id uuid.UUID) (*models.VersionedEntity, error) {
	if !data.SignType.IsValid() {
		return nil, utils.ValidationFailure("invalid sign type %q", data.SignType)
	}
	out, err := s.backend.Sign(ctx, id, clients.SignRequest{SignType: data.SignType, UserDetails: data.UserDetails})
	return s.versioned("sign", out, err)
}

func (s *recordStrategy) CounterSign(ctx context.Context, id uuid.UUID, data CounterSignData) (*models.VersionedEntity, error) {
	if !data.Outcome.IsCountersignOutcome() {
		return nil, utils.ValidationFailure("invalid countersign outcome %q", data.Outcome)
	}
	out, err := s.backend.CounterSign(ctx, id, clients.CounterSignRequest{Version: data.Version, Outcome: data.Outcome, UserDetails: data.UserDetails})
	return s.versioned("countersign", out, err)
}

func (s *recordStrategy) Lock(ctx context.Context, data LockData, id uuid.UUID) (*models.VersionedEntity, error) {
	out, err := s.backend.Lock(ctx, id, clients.UserRequest{UserDetails: data.UserDetails})
	return s.versioned("lock", out, err)
}

func (s *recordStrategy) Rollback(ctx context.Context, data RollbackData, id uuid.UUID) (*models.VersionedEntity, error) {
	out, err := s.backend.Rollback(ctx, id, clients.RollbackRequest{Version: data.Version, UserDetails: data.UserDetails})
	return s.versioned("roll back", out, err)
}

func (s *recordStrategy) SoftDelete(ctx context.Context, data SoftDeleteData, id uuid.UUID) (*models.VersionedEntity, error) {
	out, err := s.backend.SoftDelete(ctx, id, clients.VersionRangeRequest{From: data.From, To: data.To, UserDetails: data.UserDetails})
	return s.versioned("soft delete", out, err)
}

func (s *recordStrategy) Undelete(ctx context.Context, data SoftDeleteData, id uuid.UUID) (*models.VersionedEntity, error) {
	out, err := s.backend.Undelete(ctx, id, clients.VersionRangeRequest{From: data.From, To: data.To, UserDetails: data.UserDetails})
	return s.versioned("undelete", out, err)
}

func (s *recordStrategy) Clone(ctx context.Context, data CreateData, id uuid.UUID) (*models.VersionedEntity, error) {
	out, err := s.backend.Clone(ctx, id, clients.UserRequest{UserDetails: data.UserDetails})
	return s.versioned("clone", out, err)
}

func (s *recordStrategy) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.backend.Delete(ctx, id); err != nil {
		return s.failure("delete", err)
	}
	return nil
}

// AssessmentStrategy fronts the strengths and needs assessment service.
type AssessmentStrategy struct {
	recordStrategy
}

func NewAssessmentStrategy(backend RecordBackend) *AssessmentStrategy {
	return &AssessmentStrategy{recordStrategy{entityType: models.RecordTypeAssessment, backend: backend}}
}

func (s *AssessmentStrategy) Create(ctx context.Context, data CreateData) (*models.VersionedEntity, error) {
	return s.create(ctx, clients.CreateRequest{UserDetails: data.UserDetails})
}

func (s *AssessmentStrategy) FetchVersions(ctx context.Context, id uuid.UUID) ([]models.VersionDetails, error) {
	return s.fetchVersions(ctx, id, false)
}

// PlanStrategy fronts the sentence plan service. Plans carry an agreement
// status the version history reports alongside each version.
type PlanStrategy struct {
	recordStrategy
}

func NewPlanStrategy(backend RecordBackend) *PlanStrategy {
	return &PlanStrategy{recordStrategy{entityType: models.RecordTypePlan, backend: backend}}
}

func (s *PlanStrategy) Create(ctx context.Context, data CreateData) (*models.VersionedEntity, error) {
	planType := data.PlanType
	if planType == "" {
		planType = "INITIAL"
	}
	return s.create(ctx, clients.CreateRequest{UserDetails: data.UserDetails, PlanType: planType})
}

func (s *PlanStrategy) FetchVersions(ctx context.Context, id uuid.UUID) ([]models.VersionDetails, error) {
	return s.fetchVersions(ctx, id, true)
}
