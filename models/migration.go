package models

import (
	"gorm.io/gorm"
)

// Tables lists every model AutoMigrate manages, in creation order.
func Tables() []interface{} {
	return []interface{}{
		&Association{},
		&VersionRecord{},
	}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(Tables()...)
}
