package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/config"
	"bitbucket.org/mmdatafocus/coordinator_backend/history"
	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"bitbucket.org/mmdatafocus/coordinator_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

// stubService answers every call with entities/err and records the last request.
type stubService struct {
	entities []models.VersionedEntity
	buckets  []history.VersionsOnDate
	err      error

	lastPk     string
	lastCreate workflow.CreateRequest
	lastUserId string
	lastCid    string
}

func (s *stubService) remember(ctx context.Context, pk string) {
	s.lastPk = pk
	s.lastUserId, _ = utils.GetUserIdFromContext(ctx)
	s.lastCid, _ = utils.GetCorrelationIdFromContext(ctx)
}

func (s *stubService) Create(ctx context.Context, req workflow.CreateRequest) ([]models.VersionedEntity, error) {
	s.remember(ctx, req.OasysAssessmentPk)
	s.lastCreate = req
	return s.entities, s.err
}

func (s *stubService) Fetch(ctx context.Context, pk string) ([]models.EntityView, error) {
	s.remember(ctx, pk)
	return nil, s.err
}

func (s *stubService) ListAssociations(ctx context.Context, pk string) ([]models.Association, error) {
	s.remember(ctx, pk)
	return nil, s.err
}

func (s *stubService) Sign(ctx context.Context, pk string, req workflow.SignRequest) ([]models.VersionedEntity, error) {
	s.remember(ctx, pk)
	return s.entities, s.err
}

func (s *stubService) CounterSign(ctx context.Context, pk string, req workflow.CounterSignRequest) ([]models.VersionedEntity, error) {
	s.remember(ctx, pk)
	return s.entities, s.err
}

func (s *stubService) Lock(ctx context.Context, pk string, req workflow.LockRequest) ([]models.VersionedEntity, error) {
	s.remember(ctx, pk)
	return s.entities, s.err
}

func (s *stubService) Rollback(ctx context.Context, pk string, req workflow.RollbackRequest) ([]models.VersionedEntity, error) {
	s.remember(ctx, pk)
	return s.entities, s.err
}

func (s *stubService) SoftDelete(ctx context.Context, pk string, req workflow.SoftDeleteRequest) ([]models.VersionedEntity, error) {
	s.remember(ctx, pk)
	return s.entities, s.err
}

func (s *stubService) Undelete(ctx context.Context, pk string, req workflow.UndeleteRequest) ([]models.VersionedEntity, error) {
	s.remember(ctx, pk)
	return s.entities, s.err
}

func (s *stubService) Merge(ctx context.Context, req workflow.MergeRequest) ([]workflow.MergeResult, error) {
	s.remember(ctx, "")
	return nil, s.err
}

func (s *stubService) VersionHistory(ctx context.Context, pk string) ([]history.VersionsOnDate, error) {
	s.remember(ctx, pk)
	return s.buckets, s.err
}

func newTestRouter(service coordinatorService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return newRouter(config.Settings{Env: "test"}, service, logger, prometheus.NewRegistry())
}

func do(t *testing.T, r http.Handler, method string, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-correlation-id", "cid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const createBody = `{"oasysAssessmentPk":"100","userDetails":{"id":"u1","name":"Probation Officer"}}`

func TestCreate_ReturnsRecords(t *testing.T) {
	id := uuid.New()
	service := &stubService{entities: []models.VersionedEntity{{ID: id, Version: 0, EntityType: models.RecordTypeAssessment}}}
	w := do(t, newTestRouter(service), http.MethodPost, "/oasys/create", createBody)

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp recordsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Records) != 1 || resp.Records[0].RecordId != id || resp.Records[0].EntityType != models.RecordTypeAssessment {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if service.lastUserId != "u1" || service.lastCid != "cid-1" {
		t.Fatalf("context not populated: user=%q cid=%q", service.lastUserId, service.lastCid)
	}
	if w.Header().Get("x-correlation-id") != "cid-1" {
		t.Fatalf("correlation id not echoed")
	}
}

func TestCreate_ValidationFailure(t *testing.T) {
	service := &stubService{}
	w := do(t, newTestRouter(service), http.MethodPost, "/oasys/create", `{"userDetails":{"id":"u1"}}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", w.Code)
	}
	var resp errorResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if !strings.Contains(resp.UserMessage, "oasysAssessmentPk") || !strings.Contains(resp.UserMessage, "userDetails.name") {
		t.Fatalf("unexpected message %q", resp.UserMessage)
	}
	if service.lastPk != "" {
		t.Fatalf("service must not be called")
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{utils.ValidationFailure("bad"), http.StatusBadRequest},
		{utils.NotFoundFailure("no associations found for OASys PK 100"), http.StatusNotFound},
		{utils.ConflictFailure("already locked"), http.StatusConflict},
		{utils.ConfigurationFailure("no strategy configured for AAP_PLAN"), http.StatusInternalServerError},
		{utils.GenericFailure("assessment service is unavailable", nil), http.StatusInternalServerError},
	}
	body := `{"userDetails":{"id":"u1","name":"Probation Officer"}}`
	for _, tc := range cases {
		w := do(t, newTestRouter(&stubService{err: tc.err}), http.MethodPost, "/oasys/100/lock", body)
		if w.Code != tc.want {
			t.Fatalf("%v: want %d, got %d", tc.err, tc.want, w.Code)
		}
		var resp errorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.UserMessage != utils.UserMessage(tc.err) {
			t.Fatalf("userMessage %q, want %q", resp.UserMessage, utils.UserMessage(tc.err))
		}
	}
}

func TestRoutesPassReference(t *testing.T) {
	user := `"userDetails":{"id":"u1","name":"Probation Officer"}`
	cases := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodGet, "/oasys/200", ""},
		{http.MethodGet, "/oasys/200/associations", ""},
		{http.MethodGet, "/oasys/200/versions", ""},
		{http.MethodPost, "/oasys/200/sign", `{"signType":"SELF",` + user + `}`},
		{http.MethodPost, "/oasys/200/counter-sign", `{"sanVersionNumber":1,"sentencePlanVersionNumber":2,"outcome":"COUNTERSIGNED",` + user + `}`},
		{http.MethodPost, "/oasys/200/rollback", `{"sanVersionNumber":1,` + user + `}`},
		{http.MethodPost, "/oasys/200/soft-delete", `{` + user + `}`},
		{http.MethodPost, "/oasys/200/undelete", `{` + user + `}`},
	}
	for _, tc := range cases {
		service := &stubService{}
		w := do(t, newTestRouter(service), tc.method, tc.path, tc.body)
		if w.Code != http.StatusOK {
			t.Fatalf("%s %s: want 200, got %d: %s", tc.method, tc.path, w.Code, w.Body.String())
		}
		if service.lastPk != "200" {
			t.Fatalf("%s %s: reference not passed, got %q", tc.method, tc.path, service.lastPk)
		}
	}
}

func TestMerge_RequiresPairs(t *testing.T) {
	w := do(t, newTestRouter(&stubService{}), http.MethodPost, "/oasys/merge", `{"merge":[],"userDetails":{"id":"u1","name":"n"}}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", w.Code)
	}
	w = do(t, newTestRouter(&stubService{}), http.MethodPost, "/oasys/merge", `{"merge":[{"oldOasysAssessmentPK":"1","newOasysAssessmentPK":"2"}],"userDetails":{"id":"u1","name":"n"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestExportVersionHistory(t *testing.T) {
	service := &stubService{buckets: history.NewReconciler(time.UTC).Reconcile([]models.VersionDetails{{
		Uuid:      uuid.New(),
		Version:   1,
		UpdatedAt: time.Date(2025, 6, 24, 10, 0, 0, 0, time.UTC),
		Status:    "UNSIGNED",
	}}, nil)}
	w := do(t, newTestRouter(service), http.MethodGet, "/oasys/100/versions/export", "")

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if w.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("unexpected content type %q", w.Header().Get("Content-Type"))
	}
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(history.SheetName)
	if err != nil || len(rows) != 2 || rows[1][1] != history.DescriptionAssessment {
		t.Fatalf("unexpected rows %v, %v", rows, err)
	}
}

func TestHealthzAndUnknownRoute(t *testing.T) {
	r := newTestRouter(&stubService{})
	if w := do(t, r, http.MethodGet, "/healthz", ""); w.Code != http.StatusNoContent {
		t.Fatalf("healthz: want 204, got %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown route: want 404, got %d", w.Code)
	}
}
