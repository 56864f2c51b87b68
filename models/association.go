package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Association links an OASys reference to one downstream record.
// At most one non-deleted row may exist per (reference, type); the unique
// index on active_key enforces it.
type Association struct {
	ID                int        `gorm:"primary_key" json:"id"`
	CreatedAt         time.Time  `gorm:"autoCreateTime:false;not null" json:"createdAt"`
	EntityType        RecordType `gorm:"size:30;not null" json:"entityType"`
	EntityUuid        uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"entityUuid"`
	OasysAssessmentPk string     `gorm:"size:64;not null;index" json:"oasysAssessmentPk"`
	RegionPrisonCode  *string    `gorm:"size:20" json:"regionPrisonCode,omitempty"`
	Deleted           bool       `gorm:"not null" json:"deleted"`
	BaseVersion       int64      `gorm:"not null" json:"baseVersion"`
	ActiveKey         *string    `gorm:"size:100;uniqueIndex:uniq_active_association" json:"-"`
}

func (Association) TableName() string {
	return "oasys_associations"
}

func ActiveAssociationKey(oasysAssessmentPk string, entityType RecordType) string {
	return oasysAssessmentPk + "|" + string(entityType)
}

// RefreshActiveKey derives active_key from the current reference and deleted flag.
func (a *Association) RefreshActiveKey() {
	if a.Deleted {
		a.ActiveKey = nil
		return
	}
	key := ActiveAssociationKey(a.OasysAssessmentPk, a.EntityType)
	a.ActiveKey = &key
}

func (a *Association) BeforeSave(tx *gorm.DB) error {
	a.RefreshActiveKey()
	return nil
}
