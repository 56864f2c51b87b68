// Package memstore keeps associations and version records in process memory.
// It honours the same uniqueness rules as the SQL schema and backs tests and
// DB_DRIVER=memory.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"github.com/google/uuid"
)

type AssociationStore struct {
	mu     sync.Mutex
	nextID int
	rows   []models.Association
	now    utils.Clock
}

func NewAssociationStore(clock utils.Clock) *AssociationStore {
	return &AssociationStore{now: clock}
}

func (s *AssociationStore) Create(ctx context.Context, association *models.Association) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	association.RefreshActiveKey()
	if association.ActiveKey != nil && s.activeKeyTaken(*association.ActiveKey, 0) {
		return models.ErrDuplicateKey
	}
	s.nextID++
	association.ID = s.nextID
	if association.CreatedAt.IsZero() {
		association.CreatedAt = s.now.Now()
	}
	s.rows = append(s.rows, *association)
	return nil
}

func (s *AssociationStore) activeKeyTaken(key string, exceptID int) bool {
	for _, row := range s.rows {
		if row.ID != exceptID && row.ActiveKey != nil && *row.ActiveKey == key {
			return true
		}
	}
	return false
}

func (s *AssociationStore) filter(keep func(models.Association) bool) []models.Association {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Association
	for _, row := range s.rows {
		if keep(row) {
			out = append(out, row)
		}
	}
	return out
}

func (s *AssociationStore) FindActiveByReference(ctx context.Context, oasysAssessmentPk string) ([]models.Association, error) {
	return s.filter(func(a models.Association) bool {
		return a.OasysAssessmentPk == oasysAssessmentPk && !a.Deleted
	}), nil
}

func (s *AssociationStore) FindDeletedByReference(ctx context.Context, oasysAssessmentPk string) ([]models.Association, error) {
	return s.filter(func(a models.Association) bool {
		return a.OasysAssessmentPk == oasysAssessmentPk && a.Deleted
	}), nil
}

func (s *AssociationStore) FindAllByEntityUuid(ctx context.Context, entityUuid uuid.UUID) ([]models.Association, error) {
	return s.filter(func(a models.Association) bool {
		return a.EntityUuid == entityUuid
	}), nil
}

func (s *AssociationStore) SetDeleted(ctx context.Context, ids []int, deleted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[int]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	updated := make([]models.Association, len(s.rows))
	copy(updated, s.rows)
	for i := range updated {
		if !wanted[updated[i].ID] {
			continue
		}
		updated[i].Deleted = deleted
		updated[i].RefreshActiveKey()
	}
	if hasDuplicateActiveKey(updated) {
		return models.ErrDuplicateKey
	}
	s.rows = updated
	return nil
}

func (s *AssociationStore) Merge(ctx context.Context, from string, to string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sourceCount int
	for _, row := range s.rows {
		if row.OasysAssessmentPk == to && !row.Deleted {
			return 0, models.ErrMergeTargetInUse
		}
		if row.OasysAssessmentPk == from {
			sourceCount++
		}
	}
	if sourceCount == 0 {
		return 0, models.ErrMergeSourceEmpty
	}

	updated := make([]models.Association, len(s.rows))
	copy(updated, s.rows)
	for i := range updated {
		if updated[i].OasysAssessmentPk == from {
			updated[i].OasysAssessmentPk = to
			updated[i].RefreshActiveKey()
		}
	}
	if hasDuplicateActiveKey(updated) {
		return 0, models.ErrDuplicateKey
	}
	s.rows = updated
	return int64(sourceCount), nil
}

func hasDuplicateActiveKey(rows []models.Association) bool {
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row.ActiveKey == nil {
			continue
		}
		if seen[*row.ActiveKey] {
			return true
		}
		seen[*row.ActiveKey] = true
	}
	return false
}

type VersionStore struct {
	mu     sync.Mutex
	nextID int
	rows   map[uuid.UUID][]models.VersionRecord
}

func NewVersionStore() *VersionStore {
	return &VersionStore{rows: map[uuid.UUID][]models.VersionRecord{}}
}

func (s *VersionStore) Mint(ctx context.Context, entityUuid uuid.UUID, event models.VersionEvent, now time.Time) (*models.VersionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest int64
	for _, row := range s.rows[entityUuid] {
		if row.Version > latest {
			latest = row.Version
		}
	}
	s.nextID++
	record := models.VersionRecord{
		ID:             s.nextID,
		Uuid:           uuid.New(),
		CreatedAt:      now,
		CreatedByEvent: event,
		UpdatedAt:      now,
		Version:        latest + 1,
		EntityUuid:     entityUuid,
	}
	s.rows[entityUuid] = append(s.rows[entityUuid], record)
	return &record, nil
}

func (s *VersionStore) UpdateEvent(ctx context.Context, entityUuid uuid.UUID, version int64, event models.VersionEvent, now time.Time) (*models.VersionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.rows[entityUuid]
	for i := range rows {
		if rows[i].Version == version {
			rows[i].CreatedByEvent = event
			rows[i].UpdatedAt = now
			record := rows[i]
			return &record, nil
		}
	}
	return nil, utils.ErrorRecordNotFound
}

func (s *VersionStore) LatestVersion(ctx context.Context, entityUuid uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest int64
	for _, row := range s.rows[entityUuid] {
		if row.Version > latest {
			latest = row.Version
		}
	}
	return latest, nil
}

func (s *VersionStore) FlipRange(ctx context.Context, entityUuid uuid.UUID, from int64, to int64, deleted bool) ([]models.VersionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.rows[entityUuid]
	var flipped []models.VersionRecord
	for i := range rows {
		if rows[i].Version < from || rows[i].Version > to || rows[i].Deleted == deleted {
			continue
		}
		rows[i].Deleted = deleted
		flipped = append(flipped, rows[i])
	}
	if len(flipped) == 0 {
		return nil, utils.ErrorRecordNotFound
	}
	sortByVersion(flipped)
	return flipped, nil
}

func (s *VersionStore) FindAll(ctx context.Context, entityUuid uuid.UUID, includeDeleted bool) ([]models.VersionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.VersionRecord
	for _, row := range s.rows[entityUuid] {
		if includeDeleted || !row.Deleted {
			out = append(out, row)
		}
	}
	sortByVersion(out)
	return out, nil
}

func sortByVersion(rows []models.VersionRecord) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Version < rows[j].Version })
}
