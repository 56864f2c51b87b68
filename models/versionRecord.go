package models

import (
	"time"

	"github.com/google/uuid"
)

// VersionRecord is one entry of the local version ledger. Timestamps come from
// the injected clock, so gorm's auto timestamps are switched off.
type VersionRecord struct {
	ID             int          `gorm:"primary_key" json:"id"`
	Uuid           uuid.UUID    `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	CreatedAt      time.Time    `gorm:"autoCreateTime:false;not null" json:"createdAt"`
	CreatedByEvent VersionEvent `gorm:"size:40;not null" json:"createdByEvent"`
	UpdatedAt      time.Time    `gorm:"autoUpdateTime:false;not null" json:"updatedAt"`
	Version        int64        `gorm:"not null;uniqueIndex:uniq_entity_version,priority:2" json:"version"`
	EntityUuid     uuid.UUID    `gorm:"type:varchar(36);not null;uniqueIndex:uniq_entity_version,priority:1" json:"entityUuid"`
	Deleted        bool         `gorm:"not null;index" json:"deleted"`
}

func (VersionRecord) TableName() string {
	return "entity_versions"
}

// Details projects the record into the reporting shape.
func (v VersionRecord) Details(entityType RecordType) VersionDetails {
	return VersionDetails{
		Uuid:       v.Uuid,
		Version:    v.Version,
		CreatedAt:  v.CreatedAt,
		UpdatedAt:  v.UpdatedAt,
		Status:     string(v.CreatedByEvent),
		EntityType: entityType,
	}
}
