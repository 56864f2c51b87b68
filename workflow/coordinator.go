package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/association"
	"bitbucket.org/mmdatafocus/coordinator_backend/config"
	"bitbucket.org/mmdatafocus/coordinator_backend/events"
	"bitbucket.org/mmdatafocus/coordinator_backend/history"
	"bitbucket.org/mmdatafocus/coordinator_backend/metrics"
	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/strategy"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"github.com/sirupsen/logrus"
)

const moduleName = "workflow"

const (
	OperationCreate      = "create"
	OperationClone       = "clone"
	OperationFetch       = "fetch"
	OperationSign        = "sign"
	OperationCounterSign = "counter-sign"
	OperationLock        = "lock"
	OperationRollback    = "rollback"
	OperationSoftDelete  = "soft-delete"
	OperationUndelete    = "undelete"
	OperationMerge       = "merge"
	OperationHistory     = "version-history"
)

// Coordinator applies one lifecycle operation to every record linked to an
// OASys reference.
type Coordinator struct {
	Associations *association.Store
	Strategies   *strategy.Registry
	Action       *Action
	Publisher    events.Publisher
	Reconciler   *history.Reconciler
	Clock        utils.Clock
	Logger       *logrus.Logger
	Metrics      *metrics.Metrics

	// CompensateOnAssociationFailure undoes created records when their
	// associations cannot be stored. When false the orphans are only logged.
	CompensateOnAssociationFailure bool
}

func NewCoordinator(associations *association.Store, strategies *strategy.Registry, action *Action, publisher events.Publisher, reconciler *history.Reconciler, clock utils.Clock, logger *logrus.Logger) *Coordinator {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if reconciler == nil {
		reconciler = history.NewReconciler(time.UTC)
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	return &Coordinator{
		Associations:                   associations,
		Strategies:                     strategies,
		Action:                         action,
		Publisher:                      publisher,
		Reconciler:                     reconciler,
		Clock:                          clock,
		Logger:                         logger,
		Metrics:                        action.Metrics,
		CompensateOnAssociationFailure: config.CompensateOnAssociationFailure(),
	}
}

// Create makes one record per active strategy, or clones the records of
// PreviousOasysAssessmentPk, and links them to the new reference.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (entities []models.VersionedEntity, err error) {
	operation := OperationCreate
	if req.PreviousOasysAssessmentPk != nil {
		operation = OperationClone
	}
	ctx = utils.SetOperationInContext(ctx, operation)
	defer func() { c.finish(ctx, operation, req.OasysAssessmentPk, entities, err) }()

	if _, err := c.Associations.EnsureNoExistingAssociation(ctx, req.OasysAssessmentPk); err != nil {
		return nil, err
	}

	data := strategy.CreateData{UserDetails: req.UserDetails, PlanType: req.PlanType}
	var cmds []Command
	if req.PreviousOasysAssessmentPk != nil {
		previous, err := c.resolve(ctx, *req.PreviousOasysAssessmentPk)
		if err != nil {
			return nil, err
		}
		cmds, err = c.commandsFor(previous, func(s strategy.Strategy, a models.Association) Command {
			return CloneCommand(s, data, a.EntityUuid)
		})
		if err != nil {
			return nil, err
		}
	} else {
		active := c.Strategies.Active()
		if len(active) == 0 {
			return nil, utils.ConfigurationFailure("no record types are enabled")
		}
		for _, s := range active {
			cmds = append(cmds, CreateCommand(s, data))
		}
	}

	outcomes, err := c.Action.Run(ctx, operation, cmds)
	if err != nil {
		c.Action.Compensate(ctx, operation, outcomes)
		return nil, err
	}

	var stored []int
	for _, out := range outcomes {
		row := &models.Association{
			CreatedAt:         c.Clock.Now(),
			EntityType:        out.EntityType,
			EntityUuid:        out.Entity.ID,
			OasysAssessmentPk: req.OasysAssessmentPk,
			RegionPrisonCode:  req.RegionPrisonCode,
			BaseVersion:       out.Entity.Version,
		}
		if err := c.Associations.StoreAssociation(ctx, row); err != nil {
			c.associationFailed(ctx, operation, outcomes, stored)
			return nil, err
		}
		stored = append(stored, row.ID)
	}
	return Entities(outcomes), nil
}

func (c *Coordinator) associationFailed(ctx context.Context, operation string, outcomes []Outcome, stored []int) {
	if !c.CompensateOnAssociationFailure {
		config.LoggerWithContext(ctx, c.Logger).WithFields(logrus.Fields{
			"records": Entities(outcomes),
		}).Error("association store failed after records were created; records left without associations")
		return
	}
	c.Action.Compensate(ctx, operation, outcomes)
	if len(stored) == 0 {
		return
	}
	if err := c.Associations.SetDeleted(ctx, stored, true); err != nil {
		config.LogError(c.Logger, moduleName, "associationFailed", "soft-delete stored associations", stored, err)
	}
}

func (c *Coordinator) Fetch(ctx context.Context, oasysAssessmentPk string) (views []models.EntityView, err error) {
	ctx = utils.SetOperationInContext(ctx, OperationFetch)
	defer func() { c.Metrics.ObserveOperation(OperationFetch, err) }()

	rows, err := c.resolve(ctx, oasysAssessmentPk)
	if err != nil {
		return nil, err
	}
	cmds, err := c.commandsFor(rows, func(s strategy.Strategy, a models.Association) Command {
		return FetchCommand(s, a.EntityUuid)
	})
	if err != nil {
		return nil, err
	}
	outcomes, err := c.Action.Run(ctx, OperationFetch, cmds)
	if err != nil {
		return nil, err
	}
	for _, out := range outcomes {
		if out.View != nil {
			views = append(views, *out.View)
		}
	}
	return views, nil
}

// ListAssociations lists the active associations of a reference.
func (c *Coordinator) ListAssociations(ctx context.Context, oasysAssessmentPk string) ([]models.Association, error) {
	return c.resolve(ctx, oasysAssessmentPk)
}

func (c *Coordinator) Sign(ctx context.Context, oasysAssessmentPk string, req SignRequest) ([]models.VersionedEntity, error) {
	if !req.SignType.IsValid() {
		return nil, utils.ValidationFailure("invalid sign type %q", req.SignType)
	}
	data := strategy.SignData{SignType: req.SignType, UserDetails: req.UserDetails}
	return c.apply(ctx, OperationSign, oasysAssessmentPk, func(s strategy.Strategy, a models.Association) Command {
		return SignCommand(s, data, a.EntityUuid)
	})
}

// CounterSign applies the outcome to the given version of each side.
func (c *Coordinator) CounterSign(ctx context.Context, oasysAssessmentPk string, req CounterSignRequest) ([]models.VersionedEntity, error) {
	if !req.Outcome.IsCountersignOutcome() {
		return nil, utils.ValidationFailure("%q is not a countersign outcome", req.Outcome)
	}
	return c.apply(ctx, OperationCounterSign, oasysAssessmentPk, func(s strategy.Strategy, a models.Association) Command {
		version := req.AssessmentVersion
		if a.EntityType.IsPlan() {
			version = req.SentencePlanVersion
		}
		return CounterSignCommand(s, strategy.CounterSignData{
			Version:     version,
			Outcome:     req.Outcome,
			UserDetails: req.UserDetails,
		}, a.EntityUuid)
	})
}

func (c *Coordinator) Lock(ctx context.Context, oasysAssessmentPk string, req LockRequest) ([]models.VersionedEntity, error) {
	data := strategy.LockData{UserDetails: req.UserDetails}
	return c.apply(ctx, OperationLock, oasysAssessmentPk, func(s strategy.Strategy, a models.Association) Command {
		return LockCommand(s, data, a.EntityUuid)
	})
}

// Rollback only touches the sides that name a version.
func (c *Coordinator) Rollback(ctx context.Context, oasysAssessmentPk string, req RollbackRequest) (entities []models.VersionedEntity, err error) {
	if req.AssessmentVersion == nil && req.SentencePlanVersion == nil {
		return nil, utils.ValidationFailure("at least one version number is required to roll back")
	}
	ctx = utils.SetOperationInContext(ctx, OperationRollback)
	defer func() { c.finish(ctx, OperationRollback, oasysAssessmentPk, entities, err) }()

	rows, err := c.resolve(ctx, oasysAssessmentPk)
	if err != nil {
		return nil, err
	}
	var targets []models.Association
	for _, row := range rows {
		if versionFor(row.EntityType, req.AssessmentVersion, req.SentencePlanVersion) != nil {
			targets = append(targets, row)
		}
	}
	if len(targets) == 0 {
		return nil, utils.ValidationFailure("no linked record matches the requested versions")
	}
	cmds, err := c.commandsFor(targets, func(s strategy.Strategy, a models.Association) Command {
		version := versionFor(a.EntityType, req.AssessmentVersion, req.SentencePlanVersion)
		return RollbackCommand(s, strategy.RollbackData{Version: *version, UserDetails: req.UserDetails}, a.EntityUuid)
	})
	if err != nil {
		return nil, err
	}
	outcomes, err := c.Action.Run(ctx, OperationRollback, cmds)
	if err != nil {
		return nil, err
	}
	return Entities(outcomes), nil
}

func versionFor(entityType models.RecordType, assessment *int64, plan *int64) *int64 {
	if entityType.IsPlan() {
		return plan
	}
	return assessment
}

// SoftDelete hides every version the reference owns, then marks its
// associations deleted. Associations stay active unless every record succeeded.
func (c *Coordinator) SoftDelete(ctx context.Context, oasysAssessmentPk string, req SoftDeleteRequest) (entities []models.VersionedEntity, err error) {
	ctx = utils.SetOperationInContext(ctx, OperationSoftDelete)
	defer func() { c.finish(ctx, OperationSoftDelete, oasysAssessmentPk, entities, err) }()

	rows, err := c.resolve(ctx, oasysAssessmentPk)
	if err != nil {
		return nil, err
	}
	ranges, err := c.ownedRanges(ctx, rows, req.UserDetails)
	if err != nil {
		return nil, err
	}
	cmds, err := c.commandsFor(rows, func(s strategy.Strategy, a models.Association) Command {
		return SoftDeleteCommand(s, ranges[a.ID], a.EntityUuid)
	})
	if err != nil {
		return nil, err
	}
	outcomes, err := c.Action.Run(ctx, OperationSoftDelete, cmds)
	if err != nil {
		return nil, err
	}
	if err := c.Associations.SetDeleted(ctx, associationIds(rows), true); err != nil {
		return nil, err
	}
	return Entities(outcomes), nil
}

// Undelete restores the most recently deleted association of each record
// type. A reference that still has active associations is a conflict.
func (c *Coordinator) Undelete(ctx context.Context, oasysAssessmentPk string, req UndeleteRequest) (entities []models.VersionedEntity, err error) {
	ctx = utils.SetOperationInContext(ctx, OperationUndelete)
	defer func() { c.finish(ctx, OperationUndelete, oasysAssessmentPk, entities, err) }()

	active, err := c.Associations.FindByReference(ctx, oasysAssessmentPk)
	if err != nil {
		return nil, err
	}
	if len(active) > 0 {
		return nil, utils.ConflictFailure("OASys PK %s is not deleted", oasysAssessmentPk)
	}
	deleted, err := c.Associations.FindDeletedByReference(ctx, oasysAssessmentPk)
	if err != nil {
		return nil, err
	}
	rows := latestPerType(deleted)
	if len(rows) == 0 {
		return nil, utils.NotFoundFailure("no deleted associations found for OASys PK %s", oasysAssessmentPk)
	}
	ranges, err := c.ownedRanges(ctx, rows, req.UserDetails)
	if err != nil {
		return nil, err
	}
	cmds, err := c.commandsFor(rows, func(s strategy.Strategy, a models.Association) Command {
		return UndeleteCommand(s, ranges[a.ID], a.EntityUuid)
	})
	if err != nil {
		return nil, err
	}
	outcomes, err := c.Action.Run(ctx, OperationUndelete, cmds)
	if err != nil {
		return nil, err
	}
	if err := c.Associations.SetDeleted(ctx, associationIds(rows), false); err != nil {
		return nil, err
	}
	return Entities(outcomes), nil
}

// ownedRanges maps each association id to the versions its reference owns:
// from its BaseVersion up to the version before the next association of the
// same record. A clone shares the record uuid, so the range of the reference
// it was cloned from stops where the clone starts.
func (c *Coordinator) ownedRanges(ctx context.Context, rows []models.Association, user models.UserDetails) (map[int]strategy.SoftDeleteData, error) {
	ranges := make(map[int]strategy.SoftDeleteData, len(rows))
	for _, row := range rows {
		siblings, err := c.Associations.FindAllIncludingDeleted(ctx, row.EntityUuid)
		if err != nil {
			return nil, err
		}
		data := strategy.SoftDeleteData{From: row.BaseVersion, UserDetails: user}
		for _, next := range siblings {
			if next.ID == row.ID || next.BaseVersion <= row.BaseVersion {
				continue
			}
			if data.To == nil || next.BaseVersion-1 < *data.To {
				to := next.BaseVersion - 1
				data.To = &to
			}
		}
		ranges[row.ID] = data
	}
	return ranges, nil
}

// latestPerType keeps one row per record type: the newest by creation time,
// then id. Output follows the fan-out order.
func latestPerType(rows []models.Association) []models.Association {
	latest := map[models.RecordType]models.Association{}
	for _, row := range rows {
		current, ok := latest[row.EntityType]
		if !ok || row.CreatedAt.After(current.CreatedAt) || (row.CreatedAt.Equal(current.CreatedAt) && row.ID > current.ID) {
			latest[row.EntityType] = row
		}
	}
	out := make([]models.Association, 0, len(latest))
	for _, t := range models.RecordTypes {
		if row, ok := latest[t]; ok {
			out = append(out, row)
		}
	}
	return out
}

// Merge relabels each pair in order. Each pair is atomic; a failing pair
// stops the run and the pairs before it stay merged.
func (c *Coordinator) Merge(ctx context.Context, req MergeRequest) (results []MergeResult, err error) {
	ctx = utils.SetOperationInContext(ctx, OperationMerge)
	defer func() { c.Metrics.ObserveOperation(OperationMerge, err) }()

	if len(req.Merge) == 0 {
		return nil, utils.ValidationFailure("at least one merge pair is required")
	}
	for _, pair := range req.Merge {
		moved, err := c.Associations.Merge(ctx, pair.OldOasysAssessmentPk, pair.NewOasysAssessmentPk)
		if err != nil {
			if len(results) > 0 {
				config.LoggerWithContext(ctx, c.Logger).WithField("merged", results).Warn("merge stopped after partial progress")
			}
			return results, err
		}
		results = append(results, MergeResult{From: pair.OldOasysAssessmentPk, To: pair.NewOasysAssessmentPk, Moved: moved})
		c.publish(ctx, pair.NewOasysAssessmentPk, nil)
	}
	return results, nil
}

// VersionHistory merges the assessment and plan timelines of a reference.
func (c *Coordinator) VersionHistory(ctx context.Context, oasysAssessmentPk string) (buckets []history.VersionsOnDate, err error) {
	ctx = utils.SetOperationInContext(ctx, OperationHistory)
	defer func() { c.Metrics.ObserveOperation(OperationHistory, err) }()

	rows, err := c.resolve(ctx, oasysAssessmentPk)
	if err != nil {
		return nil, err
	}
	cmds, err := c.commandsFor(rows, func(s strategy.Strategy, a models.Association) Command {
		return FetchVersionsCommand(s, a.EntityUuid)
	})
	if err != nil {
		return nil, err
	}
	outcomes, err := c.Action.Run(ctx, OperationHistory, cmds)
	if err != nil {
		return nil, err
	}

	var assessment, plan []models.VersionDetails
	for _, out := range outcomes {
		for _, v := range out.Versions {
			if v.EntityType == "" {
				v.EntityType = out.EntityType
			}
			if out.EntityType.IsPlan() {
				plan = append(plan, v)
			} else {
				assessment = append(assessment, v)
			}
		}
	}
	return c.Reconciler.Reconcile(assessment, plan), nil
}

// apply is the shape shared by the simple lifecycle operations.
func (c *Coordinator) apply(ctx context.Context, operation string, oasysAssessmentPk string, build func(strategy.Strategy, models.Association) Command) (entities []models.VersionedEntity, err error) {
	ctx = utils.SetOperationInContext(ctx, operation)
	defer func() { c.finish(ctx, operation, oasysAssessmentPk, entities, err) }()

	rows, err := c.resolve(ctx, oasysAssessmentPk)
	if err != nil {
		return nil, err
	}
	cmds, err := c.commandsFor(rows, build)
	if err != nil {
		return nil, err
	}
	outcomes, err := c.Action.Run(ctx, operation, cmds)
	if err != nil {
		return nil, err
	}
	return Entities(outcomes), nil
}

func (c *Coordinator) resolve(ctx context.Context, oasysAssessmentPk string) ([]models.Association, error) {
	if oasysAssessmentPk == "" {
		return nil, utils.ValidationFailure("oasysAssessmentPk is required")
	}
	rows, err := c.Associations.FindByReference(ctx, oasysAssessmentPk)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, utils.NotFoundFailure("no associations found for OASys PK %s", oasysAssessmentPk)
	}
	sort.SliceStable(rows, func(i, j int) bool { return typeOrder(rows[i].EntityType) < typeOrder(rows[j].EntityType) })
	return rows, nil
}

// commandsFor builds every command before any runs, so a missing strategy
// fails the whole operation without side effects.
func (c *Coordinator) commandsFor(rows []models.Association, build func(strategy.Strategy, models.Association) Command) ([]Command, error) {
	cmds := make([]Command, 0, len(rows))
	for _, row := range rows {
		s, err := c.Strategies.Get(row.EntityType)
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, build(s, row))
	}
	return cmds, nil
}

func (c *Coordinator) finish(ctx context.Context, operation string, oasysAssessmentPk string, entities []models.VersionedEntity, err error) {
	c.Metrics.ObserveOperation(operation, err)
	if err != nil {
		return
	}
	c.publish(ctx, oasysAssessmentPk, entities)
}

// publish never fails the operation; the change is already applied. The
// operation name comes from the context.
func (c *Coordinator) publish(ctx context.Context, oasysAssessmentPk string, entities []models.VersionedEntity) {
	event := events.LifecycleEvent{
		OasysAssessmentPk: oasysAssessmentPk,
		Records:           entities,
		OccurredAt:        c.Clock.Now(),
	}
	event.Operation, _ = utils.GetOperationFromContext(ctx)
	event.UserId, _ = utils.GetUserIdFromContext(ctx)
	event.UserName, _ = utils.GetUserNameFromContext(ctx)
	event.CorrelationId, _ = utils.GetCorrelationIdFromContext(ctx)
	if err := c.Publisher.Publish(ctx, event); err != nil {
		config.LogError(c.Logger, moduleName, "publish", fmt.Sprintf("publish %s event", event.Operation), oasysAssessmentPk, err)
	}
}

func associationIds(rows []models.Association) []int {
	ids := make([]int, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids
}

func typeOrder(t models.RecordType) int {
	for i, candidate := range models.RecordTypes {
		if candidate == t {
			return i
		}
	}
	return len(models.RecordTypes)
}
