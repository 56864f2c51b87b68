package workflow

import (
	"context"

	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/strategy"
	"github.com/google/uuid"
)

// Outcome is what one command produced. Rollback is set only when the
// command applied an effect that can be compensated.
type Outcome struct {
	EntityType models.RecordType
	Entity     *models.VersionedEntity
	View       *models.EntityView
	Versions   []models.VersionDetails
	Err        error
	Rollback   func(ctx context.Context) error
}

// Command is a single strategy call for one record type. It runs once; retries
// belong to the backend client.
type Command struct {
	EntityType models.RecordType
	Execute    func(ctx context.Context) Outcome
}

func entityCommand(s strategy.Strategy, call func(ctx context.Context) (*models.VersionedEntity, error)) Command {
	return Command{
		EntityType: s.EntityType(),
		Execute: func(ctx context.Context) Outcome {
			entity, err := call(ctx)
			return Outcome{EntityType: s.EntityType(), Entity: entity, Err: err}
		},
	}
}

// CreateCommand compensates by deleting the created record.
func CreateCommand(s strategy.Strategy, data strategy.CreateData) Command {
	return Command{
		EntityType: s.EntityType(),
		Execute: func(ctx context.Context) Outcome {
			entity, err := s.Create(ctx, data)
			out := Outcome{EntityType: s.EntityType(), Entity: entity, Err: err}
			if err == nil {
				id := entity.ID
				out.Rollback = func(ctx context.Context) error {
					return s.Delete(ctx, id)
				}
			}
			return out
		},
	}
}

// CloneCommand compensates by hiding the version the clone added; the
// record itself still belongs to the previous reference.
func CloneCommand(s strategy.Strategy, data strategy.CreateData, id uuid.UUID) Command {
	return Command{
		EntityType: s.EntityType(),
		Execute: func(ctx context.Context) Outcome {
			entity, err := s.Clone(ctx, data, id)
			out := Outcome{EntityType: s.EntityType(), Entity: entity, Err: err}
			if err == nil {
				version := entity.Version
				out.Rollback = func(ctx context.Context) error {
					_, err := s.SoftDelete(ctx, strategy.SoftDeleteData{From: version, To: &version, UserDetails: data.UserDetails}, id)
					return err
				}
			}
			return out
		},
	}
}

func FetchCommand(s strategy.Strategy, id uuid.UUID) Command {
	return Command{
		EntityType: s.EntityType(),
		Execute: func(ctx context.Context) Outcome {
			view, err := s.Fetch(ctx, id)
			out := Outcome{EntityType: s.EntityType(), View: view, Err: err}
			if view != nil {
				entity := view.VersionedEntity
				out.Entity = &entity
			}
			return out
		},
	}
}

func FetchVersionsCommand(s strategy.Strategy, id uuid.UUID) Command {
	return Command{
		EntityType: s.EntityType(),
		Execute: func(ctx context.Context) Outcome {
			versions, err := s.FetchVersions(ctx, id)
			return Outcome{EntityType: s.EntityType(), Versions: versions, Err: err}
		},
	}
}

func SignCommand(s strategy.Strategy, data strategy.SignData, id uuid.UUID) Command {
	return entityCommand(s, func(ctx context.Context) (*models.VersionedEntity, error) {
		return s.Sign(ctx, data, id)
	})
}

func CounterSignCommand(s strategy.Strategy, data strategy.CounterSignData, id uuid.UUID) Command {
	return entityCommand(s, func(ctx context.Context) (*models.VersionedEntity, error) {
		return s.CounterSign(ctx, id, data)
	})
}

func LockCommand(s strategy.Strategy, data strategy.LockData, id uuid.UUID) Command {
	return entityCommand(s, func(ctx context.Context) (*models.VersionedEntity, error) {
		return s.Lock(ctx, data, id)
	})
}

func RollbackCommand(s strategy.Strategy, data strategy.RollbackData, id uuid.UUID) Command {
	return entityCommand(s, func(ctx context.Context) (*models.VersionedEntity, error) {
		return s.Rollback(ctx, data, id)
	})
}

func SoftDeleteCommand(s strategy.Strategy, data strategy.SoftDeleteData, id uuid.UUID) Command {
	return entityCommand(s, func(ctx context.Context) (*models.VersionedEntity, error) {
		return s.SoftDelete(ctx, data, id)
	})
}

func UndeleteCommand(s strategy.Strategy, data strategy.SoftDeleteData, id uuid.UUID) Command {
	return entityCommand(s, func(ctx context.Context) (*models.VersionedEntity, error) {
		return s.Undelete(ctx, data, id)
	})
}
