package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// VersionDetails is derived from ledger rows or a backend's version list. Never persisted.
type VersionDetails struct {
	Uuid            uuid.UUID  `json:"uuid"`
	Version         int64      `json:"version"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	Status          string     `json:"status"`
	AgreementStatus *string    `json:"planAgreementStatus,omitempty"`
	EntityType      RecordType `json:"entityType"`
}

func (v VersionDetails) IsCountersigned() bool {
	return v.Status == StatusCountersigned
}

type VersionedEntity struct {
	ID         uuid.UUID  `json:"id"`
	Version    int64      `json:"version"`
	EntityType RecordType `json:"entityType"`
}

// EntityView is a downstream record as returned by fetch. Data stays opaque.
type EntityView struct {
	VersionedEntity
	Data json.RawMessage `json:"data,omitempty"`
}

type UserDetails struct {
	ID       string `json:"id" validate:"required,max=255"`
	Name     string `json:"name" validate:"required,max=255"`
	Location string `json:"location,omitempty"`
}
