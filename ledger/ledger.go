// Package ledger assigns and maintains version numbers for records whose
// backend does not version them itself.
package ledger

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/coordinator_backend/config"
	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const moduleName = "ledger"

type Ledger struct {
	Repo   models.VersionRepository
	Locker Locker
	Clock  utils.Clock
	Logger *logrus.Logger
}

func New(repo models.VersionRepository, locker Locker, clock utils.Clock, logger *logrus.Logger) *Ledger {
	if locker == nil {
		locker = NoopLocker{}
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Ledger{Repo: repo, Locker: locker, Clock: clock, Logger: logger}
}

// CreateVersionFor mints highest+1 for the entity, tagged with event.
func (l *Ledger) CreateVersionFor(ctx context.Context, event models.VersionEvent, entityUuid uuid.UUID) (*models.VersionRecord, error) {
	if !event.IsValid() {
		return nil, utils.ValidationFailure("unknown version event %q", event)
	}
	if event.IsCountersignOutcome() {
		return nil, utils.ValidationFailure("%s applies to an existing version", event)
	}

	release, err := l.Locker.Lock(ctx, entityUuid.String())
	if err != nil {
		// The database constraint is the authority; the lock only reduces retries.
		config.LoggerWithContext(ctx, l.Logger).WithFields(logrus.Fields{
			"entityUuid": entityUuid,
			"error":      err.Error(),
		}).Warn("could not obtain version lock; proceeding without it")
	} else {
		defer release()
	}

	record, err := l.Repo.Mint(ctx, entityUuid, event, l.Clock.Now())
	if err != nil {
		config.LogError(l.Logger, moduleName, "CreateVersionFor", "mint version", entityUuid, err)
		return nil, utils.GenericFailure("failed to create version", err)
	}
	return record, nil
}

// UpdateVersion re-tags an existing version in place. The version number is kept.
func (l *Ledger) UpdateVersion(ctx context.Context, event models.VersionEvent, entityUuid uuid.UUID, version int64) (*models.VersionRecord, error) {
	if !event.IsValid() {
		return nil, utils.ValidationFailure("unknown version event %q", event)
	}
	record, err := l.Repo.UpdateEvent(ctx, entityUuid, version, event, l.Clock.Now())
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, utils.NotFoundFailure("version %d not found for entity %s", version, entityUuid)
	}
	if err != nil {
		config.LogError(l.Logger, moduleName, "UpdateVersion", "update version event", map[string]any{"entityUuid": entityUuid, "version": version}, err)
		return nil, utils.GenericFailure("failed to update version", err)
	}
	return record, nil
}

// SoftDelete hides versions from..to (to defaults to the latest version) and
// returns the highest affected record.
func (l *Ledger) SoftDelete(ctx context.Context, entityUuid uuid.UUID, from int64, to *int64) (*models.VersionRecord, error) {
	return l.flipRange(ctx, "SoftDelete", entityUuid, from, to, true)
}

// Undelete restores versions from..to previously hidden by SoftDelete.
func (l *Ledger) Undelete(ctx context.Context, entityUuid uuid.UUID, from int64, to *int64) (*models.VersionRecord, error) {
	return l.flipRange(ctx, "Undelete", entityUuid, from, to, false)
}

func (l *Ledger) flipRange(ctx context.Context, funcName string, entityUuid uuid.UUID, from int64, to *int64, deleted bool) (*models.VersionRecord, error) {
	var upper int64
	if to != nil {
		upper = *to
	} else {
		latest, err := l.Repo.LatestVersion(ctx, entityUuid)
		if err != nil {
			config.LogError(l.Logger, moduleName, funcName, "resolve latest version", entityUuid, err)
			return nil, utils.GenericFailure("failed to resolve latest version", err)
		}
		upper = latest
	}

	rows, err := l.Repo.FlipRange(ctx, entityUuid, from, upper, deleted)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, utils.NotFoundFailure("no versions found in range %d..%d for entity %s", from, upper, entityUuid)
	}
	if err != nil {
		config.LogError(l.Logger, moduleName, funcName, "flip version range", map[string]any{"entityUuid": entityUuid, "from": from, "to": upper}, err)
		return nil, utils.GenericFailure("failed to update versions", err)
	}

	highest := rows[0]
	for _, row := range rows[1:] {
		if row.Version > highest.Version {
			highest = row
		}
	}
	return &highest, nil
}

// Versions lists the visible versions of an entity, oldest first.
func (l *Ledger) Versions(ctx context.Context, entityUuid uuid.UUID) ([]models.VersionRecord, error) {
	rows, err := l.Repo.FindAll(ctx, entityUuid, false)
	if err != nil {
		config.LogError(l.Logger, moduleName, "Versions", "list versions", entityUuid, err)
		return nil, utils.GenericFailure("failed to list versions", err)
	}
	return rows, nil
}

// Latest is the highest visible version.
func (l *Ledger) Latest(ctx context.Context, entityUuid uuid.UUID) (*models.VersionRecord, error) {
	rows, err := l.Versions(ctx, entityUuid)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, utils.NotFoundFailure("no versions found for entity %s", entityUuid)
	}
	latest := rows[len(rows)-1]
	return &latest, nil
}
