package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"github.com/google/uuid"
)

// RecordClient covers the backends that version their own records
// (strengths and needs assessment, sentence plan). Both expose the same
// REST shape under different base paths.
type RecordClient struct {
	jsonClient
	basePath string
}

func NewAssessmentClient(baseURL string, timeout time.Duration) *RecordClient {
	return &RecordClient{jsonClient: newJSONClient("assessment service", baseURL, timeout), basePath: "/assessment"}
}

func NewPlanClient(baseURL string, timeout time.Duration) *RecordClient {
	return &RecordClient{jsonClient: newJSONClient("sentence plan service", baseURL, timeout), basePath: "/coordinator/plan"}
}

type UserRequest struct {
	UserDetails models.UserDetails `json:"userDetails"`
}

type CreateRequest struct {
	UserDetails models.UserDetails `json:"userDetails"`
	PlanType    string             `json:"planType,omitempty"`
}

type SignRequest struct {
	SignType    models.SignType    `json:"signType"`
	UserDetails models.UserDetails `json:"userDetails"`
}

type CounterSignRequest struct {
	Version     int64               `json:"versionNumber"`
	Outcome     models.VersionEvent `json:"outcome"`
	UserDetails models.UserDetails  `json:"userDetails"`
}

type RollbackRequest struct {
	Version     int64              `json:"versionNumber"`
	UserDetails models.UserDetails `json:"userDetails"`
}

type VersionRangeRequest struct {
	From        int64              `json:"versionFrom"`
	To          *int64             `json:"versionTo,omitempty"`
	UserDetails models.UserDetails `json:"userDetails"`
}

type RecordVersion struct {
	ID      uuid.UUID `json:"id"`
	Version int64     `json:"version"`
}

type RecordPayload struct {
	ID      uuid.UUID       `json:"id"`
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

type VersionPayload struct {
	Uuid                uuid.UUID `json:"uuid"`
	Version             int64     `json:"version"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
	Status              string    `json:"status"`
	PlanAgreementStatus *string   `json:"planAgreementStatus,omitempty"`
}

func (c *RecordClient) path(id uuid.UUID, action string) string {
	p := c.basePath + "/" + id.String()
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *RecordClient) Create(ctx context.Context, req CreateRequest) (*RecordVersion, error) {
	var out RecordVersion
	if err := c.do(ctx, http.MethodPost, c.basePath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RecordClient) Fetch(ctx context.Context, id uuid.UUID) (*RecordPayload, error) {
	var out RecordPayload
	if err := c.do(ctx, http.MethodGet, c.path(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RecordClient) FetchVersions(ctx context.Context, id uuid.UUID) ([]VersionPayload, error) {
	var out []VersionPayload
	if err := c.do(ctx, http.MethodGet, c.path(id, "all"), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RecordClient) Sign(ctx context.Context, id uuid.UUID, req SignRequest) (*RecordVersion, error) {
	return c.post(ctx, id, "sign", req)
}

func (c *RecordClient) CounterSign(ctx context.Context, id uuid.UUID, req CounterSignRequest) (*RecordVersion, error) {
	return c.post(ctx, id, "countersign", req)
}

func (c *RecordClient) Lock(ctx context.Context, id uuid.UUID, req UserRequest) (*RecordVersion, error) {
	return c.post(ctx, id, "lock", req)
}

func (c *RecordClient) Rollback(ctx context.Context, id uuid.UUID, req RollbackRequest) (*RecordVersion, error) {
	return c.post(ctx, id, "rollback", req)
}

func (c *RecordClient) SoftDelete(ctx context.Context, id uuid.UUID, req VersionRangeRequest) (*RecordVersion, error) {
	return c.post(ctx, id, "soft-delete", req)
}

func (c *RecordClient) Undelete(ctx context.Context, id uuid.UUID, req VersionRangeRequest) (*RecordVersion, error) {
	return c.post(ctx, id, "undelete", req)
}

func (c *RecordClient) Clone(ctx context.Context, id uuid.UUID, req UserRequest) (*RecordVersion, error) {
	return c.post(ctx, id, "clone", req)
}

func (c *RecordClient) Delete(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, c.path(id, ""), nil, nil)
}

func (c *RecordClient) post(ctx context.Context, id uuid.UUID, action string, body any) (*RecordVersion, error) {
	var out RecordVersion
	if err := c.do(ctx, http.MethodPost, c.path(id, action), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
