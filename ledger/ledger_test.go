package ledger

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/models/memstore"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func newTestLedger(t *testing.T, clock utils.Clock, locker Locker) *Ledger {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(memstore.NewVersionStore(), locker, clock, logger)
}

type failingLocker struct{ calls int }

func (f *failingLocker) Lock(ctx context.Context, key string) (func(), error) {
	f.calls++
	return nil, errors.New("redis down")
}

func int64Ptr(v int64) *int64 { return &v }

func TestCreateVersionFor_Monotonic(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, utils.NewClock(), nil)
	entity := uuid.New()

	const workers = 20
	var wg sync.WaitGroup
	versions := make(chan int64, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := l.CreateVersionFor(ctx, models.VersionEventCreated, entity)
			if err != nil {
				t.Errorf("CreateVersionFor: %v", err)
				return
			}
			versions <- rec.Version
		}()
	}
	wg.Wait()
	close(versions)

	seen := map[int64]bool{}
	for v := range versions {
		if seen[v] {
			t.Fatalf("version %d minted twice", v)
		}
		seen[v] = true
	}
	for v := int64(1); v <= workers; v++ {
		if !seen[v] {
			t.Fatalf("version %d missing", v)
		}
	}
}

func TestCreateVersionFor_ProceedsWithoutLock(t *testing.T) {
	locker := &failingLocker{}
	l := newTestLedger(t, utils.NewClock(), locker)
	rec, err := l.CreateVersionFor(context.Background(), models.VersionEventLocked, uuid.New())
	if err != nil {
		t.Fatalf("CreateVersionFor: %v", err)
	}
	if rec.Version != 1 || locker.calls != 1 {
		t.Fatalf("unexpected result: version=%d lockCalls=%d", rec.Version, locker.calls)
	}
}

func TestCreateVersionFor_RejectsCountersignOutcome(t *testing.T) {
	l := newTestLedger(t, utils.NewClock(), nil)
	_, err := l.CreateVersionFor(context.Background(), models.VersionEventCountersigned, uuid.New())
	if utils.KindOf(err) != utils.FailureKindValidation {
		t.Fatalf("want validation failure, got %v", err)
	}
}

func TestUpdateVersion(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 6, 24, 9, 0, 0, 0, time.UTC)
	later := created.Add(2 * time.Hour)
	current := created
	clock := utils.Clock(func() time.Time { return current })
	l := newTestLedger(t, clock, nil)
	entity := uuid.New()

	if _, err := l.UpdateVersion(ctx, models.VersionEventCountersigned, entity, 1); !utils.IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}

	rec, err := l.CreateVersionFor(ctx, models.VersionEventAwaitingCountersign, entity)
	if err != nil {
		t.Fatalf("CreateVersionFor: %v", err)
	}

	current = later
	updated, err := l.UpdateVersion(ctx, models.VersionEventCountersigned, entity, rec.Version)
	if err != nil {
		t.Fatalf("UpdateVersion: %v", err)
	}
	if updated.Version != rec.Version || updated.ID != rec.ID || updated.Uuid != rec.Uuid {
		t.Fatalf("identity changed: before=%+v after=%+v", rec, updated)
	}
	if updated.CreatedByEvent != models.VersionEventCountersigned {
		t.Fatalf("event not updated: %s", updated.CreatedByEvent)
	}
	if !updated.CreatedAt.Equal(created) || !updated.UpdatedAt.Equal(later) {
		t.Fatalf("timestamps: created=%v updated=%v", updated.CreatedAt, updated.UpdatedAt)
	}

	if _, err := l.UpdateVersion(ctx, models.VersionEventRejected, entity, rec.Version+1); !utils.IsNotFound(err) {
		t.Fatalf("want not found for missing version, got %v", err)
	}
}

func TestSoftDeleteAndUndelete(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, utils.NewClock(), nil)
	entity := uuid.New()
	for i := 0; i < 5; i++ {
		if _, err := l.CreateVersionFor(ctx, models.VersionEventCreated, entity); err != nil {
			t.Fatalf("CreateVersionFor: %v", err)
		}
	}

	last, err := l.SoftDelete(ctx, entity, 3, nil)
	if err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if last.Version != 5 || !last.Deleted {
		t.Fatalf("want highest deleted record v5, got %+v", last)
	}
	visible, _ := l.Versions(ctx, entity)
	if len(visible) != 2 {
		t.Fatalf("want 2 visible versions, got %d", len(visible))
	}

	if _, err := l.SoftDelete(ctx, entity, 3, int64Ptr(5)); !utils.IsNotFound(err) {
		t.Fatalf("soft-deleting an already deleted range must fail, got %v", err)
	}

	restored, err := l.Undelete(ctx, entity, 3, int64Ptr(5))
	if err != nil {
		t.Fatalf("Undelete: %v", err)
	}
	if restored.Version != 5 || restored.Deleted {
		t.Fatalf("unexpected undelete result: %+v", restored)
	}
	visible, _ = l.Versions(ctx, entity)
	if len(visible) != 5 {
		t.Fatalf("want all 5 versions back, got %d", len(visible))
	}

	if _, err := l.Undelete(ctx, entity, 1, nil); !utils.IsNotFound(err) {
		t.Fatalf("undelete with nothing deleted must fail, got %v", err)
	}
}

func TestSoftDelete_EmptyRange(t *testing.T) {
	l := newTestLedger(t, utils.NewClock(), nil)
	_, err := l.SoftDelete(context.Background(), uuid.New(), 1, nil)
	if !utils.IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
	if utils.UserMessage(err) == "" {
		t.Fatalf("expected a user message")
	}
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, utils.NewClock(), nil)
	entity := uuid.New()
	if _, err := l.Latest(ctx, entity); !utils.IsNotFound(err) {
		t.Fatalf("want not found, got %v", err)
	}
	l.CreateVersionFor(ctx, models.VersionEventCreated, entity)
	l.CreateVersionFor(ctx, models.VersionEventSelfSigned, entity)
	latest, err := l.Latest(ctx, entity)
	if err != nil || latest.Version != 2 || latest.CreatedByEvent != models.VersionEventSelfSigned {
		t.Fatalf("unexpected latest: %+v err=%v", latest, err)
	}
}
