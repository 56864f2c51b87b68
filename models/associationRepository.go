package models

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormAssociationRepository struct {
	DB *gorm.DB
}

func NewGormAssociationRepository(db *gorm.DB) *GormAssociationRepository {
	return &GormAssociationRepository{DB: db}
}

func (r *GormAssociationRepository) Create(ctx context.Context, association *Association) error {
	return r.DB.WithContext(ctx).Create(association).Error
}

func (r *GormAssociationRepository) FindActiveByReference(ctx context.Context, oasysAssessmentPk string) ([]Association, error) {
	var rows []Association
	err := r.DB.WithContext(ctx).
		Where("oasys_assessment_pk = ? AND deleted = ?", oasysAssessmentPk, false).
		Order("id").
		Find(&rows).Error
	return rows, err
}

func (r *GormAssociationRepository) FindDeletedByReference(ctx context.Context, oasysAssessmentPk string) ([]Association, error) {
	var rows []Association
	err := r.DB.WithContext(ctx).
		Where("oasys_assessment_pk = ? AND deleted = ?", oasysAssessmentPk, true).
		Order("id").
		Find(&rows).Error
	return rows, err
}

func (r *GormAssociationRepository) FindAllByEntityUuid(ctx context.Context, entityUuid uuid.UUID) ([]Association, error) {
	var rows []Association
	err := r.DB.WithContext(ctx).
		Where("entity_uuid = ?", entityUuid).
		Order("id").
		Find(&rows).Error
	return rows, err
}

func (r *GormAssociationRepository) SetDeleted(ctx context.Context, ids []int, deleted bool) error {
	if len(ids) == 0 {
		return nil
	}
	activeKey := gorm.Expr("NULL")
	if !deleted {
		activeKey = gorm.Expr("CONCAT(oasys_assessment_pk, '|', entity_type)")
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&Association{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{"deleted": deleted, "active_key": activeKey}).Error
	})
}

func (r *GormAssociationRepository) Merge(ctx context.Context, from string, to string) (int64, error) {
	var moved int64
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target []Association
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("oasys_assessment_pk = ? AND deleted = ?", to, false).
			Find(&target).Error; err != nil {
			return err
		}
		if len(target) > 0 {
			return ErrMergeTargetInUse
		}

		var source []Association
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("oasys_assessment_pk = ?", from).
			Find(&source).Error; err != nil {
			return err
		}
		if len(source) == 0 {
			return ErrMergeSourceEmpty
		}

		result := tx.Model(&Association{}).
			Where("oasys_assessment_pk = ?", from).
			Updates(map[string]interface{}{
				"oasys_assessment_pk": to,
				"active_key":          gorm.Expr("CASE WHEN deleted THEN NULL ELSE CONCAT(?, '|', entity_type) END", to),
			})
		if result.Error != nil {
			return result.Error
		}
		moved = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}
