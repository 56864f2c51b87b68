// Package association tracks which downstream records belong to an OASys reference.
package association

import (
	"context"
	"errors"
	"sort"

	"bitbucket.org/mmdatafocus/coordinator_backend/config"
	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const moduleName = "association"

type Store struct {
	Repo   models.AssociationRepository
	Clock  utils.Clock
	Logger *logrus.Logger
}

func NewStore(repo models.AssociationRepository, clock utils.Clock, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Store{Repo: repo, Clock: clock, Logger: logger}
}

// EnsureNoExistingAssociation fails with a conflict listing the record types
// already linked to the reference. The unique index remains the authority;
// this check only gives a better message.
func (s *Store) EnsureNoExistingAssociation(ctx context.Context, oasysAssessmentPk string) ([]models.RecordType, error) {
	rows, err := s.FindByReference(ctx, oasysAssessmentPk)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	types := recordTypes(rows)
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return types, utils.ConflictFailure("OASys PK %s already has associations for %v", oasysAssessmentPk, names)
}

func recordTypes(rows []models.Association) []models.RecordType {
	seen := map[models.RecordType]bool{}
	var out []models.RecordType
	for _, row := range rows {
		if !seen[row.EntityType] {
			seen[row.EntityType] = true
			out = append(out, row.EntityType)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// StoreAssociation persists one row. Every storage error comes back as a Failure.
func (s *Store) StoreAssociation(ctx context.Context, association *models.Association) error {
	if association.OasysAssessmentPk == "" {
		return utils.ValidationFailure("oasysAssessmentPk is required")
	}
	if !association.EntityType.IsValid() {
		return utils.ValidationFailure("invalid entity type %q", association.EntityType)
	}
	if association.CreatedAt.IsZero() {
		association.CreatedAt = s.Clock.Now()
	}
	err := s.Repo.Create(ctx, association)
	if err == nil {
		return nil
	}
	if models.IsDuplicateKeyError(err) {
		return utils.ConflictFailure("OASys PK %s already has an active %s association", association.OasysAssessmentPk, association.EntityType)
	}
	config.LogError(s.Logger, moduleName, "StoreAssociation", "create association", association, err)
	return utils.GenericFailure("failed to store association", err)
}

func (s *Store) FindByReference(ctx context.Context, oasysAssessmentPk string) ([]models.Association, error) {
	rows, err := s.Repo.FindActiveByReference(ctx, oasysAssessmentPk)
	if err != nil {
		config.LogError(s.Logger, moduleName, "FindByReference", "find associations", oasysAssessmentPk, err)
		return nil, utils.GenericFailure("failed to read associations", err)
	}
	return rows, nil
}

func (s *Store) FindDeletedByReference(ctx context.Context, oasysAssessmentPk string) ([]models.Association, error) {
	rows, err := s.Repo.FindDeletedByReference(ctx, oasysAssessmentPk)
	if err != nil {
		config.LogError(s.Logger, moduleName, "FindDeletedByReference", "find deleted associations", oasysAssessmentPk, err)
		return nil, utils.GenericFailure("failed to read associations", err)
	}
	return rows, nil
}

func (s *Store) FindAllIncludingDeleted(ctx context.Context, entityUuid uuid.UUID) ([]models.Association, error) {
	rows, err := s.Repo.FindAllByEntityUuid(ctx, entityUuid)
	if err != nil {
		config.LogError(s.Logger, moduleName, "FindAllIncludingDeleted", "find associations by entity", entityUuid, err)
		return nil, utils.GenericFailure("failed to read associations", err)
	}
	return rows, nil
}

// SetDeleted flips the soft-delete flag. Restoring a row while another active
// row holds its (reference, type) slot is a conflict.
func (s *Store) SetDeleted(ctx context.Context, ids []int, deleted bool) error {
	err := s.Repo.SetDeleted(ctx, ids, deleted)
	if err == nil {
		return nil
	}
	if models.IsDuplicateKeyError(err) {
		return utils.ConflictFailure("an active association already exists for this record type")
	}
	config.LogError(s.Logger, moduleName, "SetDeleted", "update associations", ids, err)
	return utils.GenericFailure("failed to update associations", err)
}

// Merge relabels every association under from to to, atomically.
func (s *Store) Merge(ctx context.Context, from string, to string) (int64, error) {
	if from == "" || to == "" {
		return 0, utils.ValidationFailure("both OASys PKs are required for a merge")
	}
	if from == to {
		return 0, utils.ValidationFailure("cannot merge OASys PK %s into itself", from)
	}
	moved, err := s.Repo.Merge(ctx, from, to)
	switch {
	case err == nil:
		return moved, nil
	case errors.Is(err, models.ErrMergeTargetInUse), models.IsDuplicateKeyError(err):
		return 0, utils.ConflictFailure("OASys PK %s already has associations", to)
	case errors.Is(err, models.ErrMergeSourceEmpty):
		return 0, utils.NotFoundFailure("no associations found for OASys PK %s", from)
	}
	config.LogError(s.Logger, moduleName, "Merge", "merge associations", map[string]string{"from": from, "to": to}, err)
	return 0, utils.GenericFailure("failed to merge associations", err)
}
