package clients

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"github.com/google/uuid"
)

var testUser = models.UserDetails{ID: "user-1", Name: "Test User"}

func TestRecordClient_CreateSendsJSONAndCorrelationId(t *testing.T) {
	id := uuid.New()
	var gotPath, gotCorrelation string
	var gotBody CreateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotCorrelation = r.Header.Get(CorrelationIdHeader)
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"`+id.String()+`","version":0}`)
	}))
	defer srv.Close()

	c := NewPlanClient(srv.URL, time.Second)
	ctx := utils.SetCorrelationIdInContext(context.Background(), "corr-123")
	out, err := c.Create(ctx, CreateRequest{UserDetails: testUser, PlanType: "INITIAL"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.ID != id || out.Version != 0 {
		t.Fatalf("unexpected response: %+v", out)
	}
	if gotPath != "/coordinator/plan" || gotCorrelation != "corr-123" {
		t.Fatalf("path=%q correlation=%q", gotPath, gotCorrelation)
	}
	if gotBody.UserDetails.ID != "user-1" || gotBody.PlanType != "INITIAL" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestRecordClient_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		kind   utils.FailureKind
		substr string
	}{
		{http.StatusNotFound, ``, utils.FailureKindNotFound, "not found"},
		{http.StatusConflict, `{"userMessage":"already locked"}`, utils.FailureKindConflict, "already locked"},
		{http.StatusInternalServerError, `kaboom`, utils.FailureKindGeneric, "status 500"},
		{http.StatusBadRequest, `bad`, utils.FailureKindGeneric, "status 400"},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, tt.body)
		}))
		c := NewAssessmentClient(srv.URL, time.Second)
		_, err := c.Lock(context.Background(), uuid.New(), UserRequest{UserDetails: testUser})
		srv.Close()

		if utils.KindOf(err) != tt.kind {
			t.Fatalf("status %d: want kind %s, got %v", tt.status, tt.kind, err)
		}
		if !strings.Contains(utils.UserMessage(err), tt.substr) {
			t.Fatalf("status %d: message %q does not contain %q", tt.status, utils.UserMessage(err), tt.substr)
		}
	}
}

func TestRecordClient_GenericFailureKeepsBodyExcerptInCause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, strings.Repeat("x", 2000))
	}))
	defer srv.Close()

	c := NewAssessmentClient(srv.URL, time.Second)
	_, err := c.Fetch(context.Background(), uuid.New())
	if err == nil {
		t.Fatalf("expected error")
	}
	if strings.Contains(utils.UserMessage(err), "xxx") {
		t.Fatalf("body must not leak into the user message")
	}
	if !strings.HasSuffix(err.Error(), "...") {
		t.Fatalf("expected truncated excerpt in cause, got %d chars", len(err.Error()))
	}
}

func TestRecordClient_TransportErrorIsGeneric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewAssessmentClient(url, time.Second)
	err := c.Delete(context.Background(), uuid.New())
	if utils.KindOf(err) != utils.FailureKindGeneric {
		t.Fatalf("want generic failure, got %v", err)
	}
}

func TestRecordClient_FetchVersions(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assessment/"+id.String()+"/all" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `[{"uuid":"`+id.String()+`","version":2,"createdAt":"2025-06-24T10:00:00Z","updatedAt":"2025-06-24T11:00:00Z","status":"COUNTERSIGNED"}]`)
	}))
	defer srv.Close()

	c := NewAssessmentClient(srv.URL, time.Second)
	versions, err := c.FetchVersions(context.Background(), id)
	if err != nil {
		t.Fatalf("FetchVersions: %v", err)
	}
	if len(versions) != 1 || versions[0].Version != 2 || versions[0].Status != "COUNTERSIGNED" {
		t.Fatalf("unexpected versions: %+v", versions)
	}
	if versions[0].UpdatedAt.Hour() != 11 {
		t.Fatalf("timestamps not parsed: %v", versions[0].UpdatedAt)
	}
}

func TestPlatformClient_CreateAndFetch(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/command":
			var env commandEnvelope
			_ = json.NewDecoder(r.Body).Decode(&env)
			if len(env.Commands) != 1 || env.Commands[0].Type != "CreateAssessmentCommand" {
				t.Errorf("unexpected command: %+v", env)
			}
			_, _ = io.WriteString(w, `{"commands":[{"result":{"type":"CreateAssessmentCommandResult","success":true,"assessmentUuid":"`+id.String()+`"}}]}`)
		case "/query":
			_, _ = io.WriteString(w, `{"queries":[{"result":{"type":"AssessmentVersionQueryResult","success":true,"data":{"goals":[]}}}]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewPlatformClient(srv.URL, time.Second)
	created, err := c.CreateAssessment(context.Background(), testUser)
	if err != nil || created != id {
		t.Fatalf("CreateAssessment: id=%s err=%v", created, err)
	}
	data, err := c.FetchAssessment(context.Background(), id, testUser)
	if err != nil || string(data) != `{"goals":[]}` {
		t.Fatalf("FetchAssessment: data=%s err=%v", data, err)
	}
}

func TestPlatformClient_UnsuccessfulCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"commands":[{"result":{"type":"DeleteAssessmentCommandResult","success":false,"message":"nope"}}]}`)
	}))
	defer srv.Close()

	c := NewPlatformClient(srv.URL, time.Second)
	err := c.DeleteAssessment(context.Background(), uuid.New(), testUser)
	if utils.KindOf(err) != utils.FailureKindGeneric || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("unexpected error: %v", err)
	}
}
