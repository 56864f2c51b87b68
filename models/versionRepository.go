package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const mintMaxAttempts = 10

type GormVersionRepository struct {
	DB *gorm.DB
}

func NewGormVersionRepository(db *gorm.DB) *GormVersionRepository {
	return &GormVersionRepository{DB: db}
}

// Mint locks the highest row for the entity and inserts highest+1. The unique
// (entity_uuid, version) index catches the first-insert race that row locks
// cannot cover; those attempts are retried in a fresh transaction.
func (r *GormVersionRepository) Mint(ctx context.Context, entityUuid uuid.UUID, event VersionEvent, now time.Time) (*VersionRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= mintMaxAttempts; attempt++ {
		record, err := r.mintOnce(ctx, entityUuid, event, now)
		if err == nil {
			return record, nil
		}
		if !isRetryableWriteError(err) {
			return nil, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt*15) * time.Millisecond):
		}
	}
	return nil, lastErr
}

func (r *GormVersionRepository) mintOnce(ctx context.Context, entityUuid uuid.UUID, event VersionEvent, now time.Time) (*VersionRecord, error) {
	record := &VersionRecord{
		Uuid:           uuid.New(),
		CreatedAt:      now,
		CreatedByEvent: event,
		UpdatedAt:      now,
		EntityUuid:     entityUuid,
	}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest []VersionRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("entity_uuid = ?", entityUuid).
			Order("version desc").
			Limit(1).
			Find(&latest).Error; err != nil {
			return err
		}
		if len(latest) > 0 {
			record.Version = latest[0].Version + 1
		} else {
			record.Version = 1
		}
		return tx.Create(record).Error
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (r *GormVersionRepository) UpdateEvent(ctx context.Context, entityUuid uuid.UUID, version int64, event VersionEvent, now time.Time) (*VersionRecord, error) {
	var record VersionRecord
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("entity_uuid = ? AND version = ?", entityUuid, version).
			First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRecordNotFound
		}
		if err != nil {
			return err
		}
		record.CreatedByEvent = event
		record.UpdatedAt = now
		return tx.Model(&VersionRecord{}).
			Where("id = ?", record.ID).
			Updates(map[string]interface{}{"created_by_event": event, "updated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *GormVersionRepository) LatestVersion(ctx context.Context, entityUuid uuid.UUID) (int64, error) {
	var latest []VersionRecord
	err := r.DB.WithContext(ctx).
		Where("entity_uuid = ?", entityUuid).
		Order("version desc").
		Limit(1).
		Find(&latest).Error
	if err != nil || len(latest) == 0 {
		return 0, err
	}
	return latest[0].Version, nil
}

func (r *GormVersionRepository) FlipRange(ctx context.Context, entityUuid uuid.UUID, from int64, to int64, deleted bool) ([]VersionRecord, error) {
	var rows []VersionRecord
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("entity_uuid = ? AND version BETWEEN ? AND ? AND deleted = ?", entityUuid, from, to, !deleted).
			Order("version").
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return utils.ErrorRecordNotFound
		}
		ids := make([]int, 0, len(rows))
		for i := range rows {
			ids = append(ids, rows[i].ID)
			rows[i].Deleted = deleted
		}
		return tx.Model(&VersionRecord{}).
			Where("id IN ?", ids).
			Update("deleted", deleted).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *GormVersionRepository) FindAll(ctx context.Context, entityUuid uuid.UUID, includeDeleted bool) ([]VersionRecord, error) {
	var rows []VersionRecord
	query := r.DB.WithContext(ctx).Where("entity_uuid = ?", entityUuid)
	if !includeDeleted {
		query = query.Where("deleted = ?", false)
	}
	err := query.Order("version").Find(&rows).Error
	return rows, err
}
