package association

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/models/memstore"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var testNow = time.Date(2025, 6, 24, 12, 0, 0, 0, time.UTC)

func newTestStore(repo models.AssociationRepository) *Store {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewStore(repo, utils.FixedClock(testNow), logger)
}

func seed(t *testing.T, s *Store, pk string, types ...models.RecordType) []*models.Association {
	t.Helper()
	var out []*models.Association
	for _, rt := range types {
		a := &models.Association{EntityType: rt, EntityUuid: uuid.New(), OasysAssessmentPk: pk}
		if err := s.StoreAssociation(context.Background(), a); err != nil {
			t.Fatalf("StoreAssociation: %v", err)
		}
		out = append(out, a)
	}
	return out
}

type brokenRepo struct {
	models.AssociationRepository
}

func (brokenRepo) Create(ctx context.Context, a *models.Association) error {
	return errors.New("connection reset")
}

func (brokenRepo) FindActiveByReference(ctx context.Context, pk string) ([]models.Association, error) {
	return nil, errors.New("connection reset")
}

func TestEnsureNoExistingAssociation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memstore.NewAssociationStore(utils.FixedClock(testNow)))

	types, err := s.EnsureNoExistingAssociation(ctx, "100")
	if err != nil || len(types) != 0 {
		t.Fatalf("empty reference should pass: types=%v err=%v", types, err)
	}

	seed(t, s, "100", models.RecordTypePlan, models.RecordTypeAssessment)
	types, err = s.EnsureNoExistingAssociation(ctx, "100")
	if !utils.IsConflict(err) {
		t.Fatalf("want conflict, got %v", err)
	}
	if len(types) != 2 || types[0] != models.RecordTypeAssessment || types[1] != models.RecordTypePlan {
		t.Fatalf("unexpected conflicting types: %v", types)
	}
	if !strings.Contains(utils.UserMessage(err), "ASSESSMENT") {
		t.Fatalf("message should list the types: %q", utils.UserMessage(err))
	}
}

func TestStoreAssociation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memstore.NewAssociationStore(utils.FixedClock(testNow)))

	rows := seed(t, s, "200", models.RecordTypeAssessment)
	if !rows[0].CreatedAt.Equal(testNow) || rows[0].ID == 0 {
		t.Fatalf("unexpected stored row: %+v", rows[0])
	}

	dup := &models.Association{EntityType: models.RecordTypeAssessment, EntityUuid: uuid.New(), OasysAssessmentPk: "200"}
	if err := s.StoreAssociation(ctx, dup); !utils.IsConflict(err) {
		t.Fatalf("want conflict for second active row, got %v", err)
	}

	if err := s.StoreAssociation(ctx, &models.Association{EntityType: "BOGUS", OasysAssessmentPk: "200"}); utils.KindOf(err) != utils.FailureKindValidation {
		t.Fatalf("want validation failure, got %v", err)
	}

	broken := newTestStore(brokenRepo{})
	err := broken.StoreAssociation(ctx, &models.Association{EntityType: models.RecordTypePlan, EntityUuid: uuid.New(), OasysAssessmentPk: "200"})
	var failure *utils.Failure
	if !errors.As(err, &failure) || failure.Kind != utils.FailureKindGeneric || failure.Cause == nil {
		t.Fatalf("storage error should be wrapped as generic failure, got %#v", err)
	}
}

func TestFinds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memstore.NewAssociationStore(utils.FixedClock(testNow)))

	first := seed(t, s, "300", models.RecordTypeAssessment)[0]
	if err := s.SetDeleted(ctx, []int{first.ID}, true); err != nil {
		t.Fatalf("SetDeleted: %v", err)
	}
	second := &models.Association{EntityType: models.RecordTypeAssessment, EntityUuid: first.EntityUuid, OasysAssessmentPk: "300"}
	if err := s.StoreAssociation(ctx, second); err != nil {
		t.Fatalf("StoreAssociation: %v", err)
	}

	active, _ := s.FindByReference(ctx, "300")
	deleted, _ := s.FindDeletedByReference(ctx, "300")
	all, _ := s.FindAllIncludingDeleted(ctx, first.EntityUuid)
	if len(active) != 1 || len(deleted) != 1 || len(all) != 2 {
		t.Fatalf("active=%d deleted=%d all=%d", len(active), len(deleted), len(all))
	}

	if err := s.SetDeleted(ctx, []int{first.ID}, false); !utils.IsConflict(err) {
		t.Fatalf("restoring over an active row should conflict, got %v", err)
	}

	broken := newTestStore(brokenRepo{})
	if _, err := broken.FindByReference(ctx, "300"); utils.KindOf(err) != utils.FailureKindGeneric {
		t.Fatalf("want generic failure, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(memstore.NewAssociationStore(utils.FixedClock(testNow)))

	if _, err := s.Merge(ctx, "A", "A"); utils.KindOf(err) != utils.FailureKindValidation {
		t.Fatalf("self merge should be invalid, got %v", err)
	}
	if _, err := s.Merge(ctx, "missing", "B"); !utils.IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}

	seed(t, s, "A", models.RecordTypeAssessment, models.RecordTypePlan)
	seed(t, s, "B", models.RecordTypeAssessment)
	if _, err := s.Merge(ctx, "A", "B"); !utils.IsConflict(err) {
		t.Fatalf("want conflict, got %v", err)
	}
	if rows, _ := s.FindByReference(ctx, "A"); len(rows) != 2 {
		t.Fatalf("failed merge must not relabel rows, A has %d", len(rows))
	}

	moved, err := s.Merge(ctx, "A", "C")
	if err != nil || moved != 2 {
		t.Fatalf("Merge: moved=%d err=%v", moved, err)
	}
	if rows, _ := s.FindByReference(ctx, "C"); len(rows) != 2 {
		t.Fatalf("C should have 2 rows, got %d", len(rows))
	}
	if rows, _ := s.FindByReference(ctx, "A"); len(rows) != 0 {
		t.Fatalf("A should be empty, got %d", len(rows))
	}
}
