package main

import (
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/coordinator_backend/config"
	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// migrate applies the schema for associations and the version ledger. Run it
// as a one-off job before rolling out with SKIP_MIGRATIONS=true.
func main() {
	dryRun := flag.Bool("dry-run", false, "If true, do not write; only print which tables would be migrated")
	attempts := flag.Int("attempts", 5, "Database connect attempts (0 retries forever)")
	flag.Parse()

	settings := config.LoadSettings()
	if settings.Database.Driver == config.DriverMemory {
		fmt.Fprintln(os.Stderr, "DB_DRIVER=memory has no schema to migrate")
		os.Exit(1)
	}

	db, err := config.ConnectDatabaseWithRetry(settings.Database, *attempts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	logger := config.GetLogger()

	if *dryRun {
		fmt.Println("[dry-run] no changes will be written")
		for _, model := range models.Tables() {
			table, err := tableName(db, model)
			if err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
				os.Exit(1)
			}
			fmt.Printf("%s exists=%v\n", table, db.Migrator().HasTable(model))
		}
		return
	}

	if err := models.MigrateTable(db); err != nil {
		logger.WithFields(logrus.Fields{"field": "migrate"}).Error(err.Error())
		os.Exit(1)
	}
	logger.WithFields(logrus.Fields{"field": "migrate", "driver": settings.Database.Driver}).Info("migration complete")
}

func tableName(db *gorm.DB, model interface{}) (string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return "", err
	}
	return stmt.Schema.Table, nil
}
