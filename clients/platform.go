package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"github.com/google/uuid"
)

// PlatformClient talks to the assessment platform, which accepts batches of
// typed commands and queries instead of REST resources. It does not version
// records the way the coordinator reports them; the local ledger does.
type PlatformClient struct {
	jsonClient
}

func NewPlatformClient(baseURL string, timeout time.Duration) *PlatformClient {
	return &PlatformClient{jsonClient: newJSONClient("assessment platform", baseURL, timeout)}
}

type platformUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type assessmentIdentifier struct {
	Type string    `json:"type"`
	Uuid uuid.UUID `json:"uuid"`
}

type platformCommand struct {
	Type       string                `json:"type"`
	User       platformUser          `json:"user"`
	Assessment *assessmentIdentifier `json:"assessmentUuid,omitempty"`
	FormType   string                `json:"formVersion,omitempty"`
}

type platformQuery struct {
	Type       string               `json:"type"`
	User       platformUser         `json:"user"`
	Assessment assessmentIdentifier `json:"assessmentIdentifier"`
}

type platformResult struct {
	Type           string          `json:"type"`
	Success        bool            `json:"success"`
	Message        string          `json:"message"`
	AssessmentUuid *uuid.UUID      `json:"assessmentUuid,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
}

type commandEnvelope struct {
	Commands []platformCommand `json:"commands"`
}

type commandResponse struct {
	Commands []struct {
		Result platformResult `json:"result"`
	} `json:"commands"`
}

type queryEnvelope struct {
	Queries []platformQuery `json:"queries"`
}

type queryResponse struct {
	Queries []struct {
		Result platformResult `json:"result"`
	} `json:"queries"`
}

func toPlatformUser(user models.UserDetails) platformUser {
	return platformUser{ID: user.ID, Name: user.Name}
}

func (c *PlatformClient) command(ctx context.Context, cmd platformCommand) (*platformResult, error) {
	var resp commandResponse
	if err := c.do(ctx, http.MethodPost, "/command", commandEnvelope{Commands: []platformCommand{cmd}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Commands) != 1 {
		return nil, utils.GenericFailure("assessment platform returned no command result", fmt.Errorf("%s: %d results", cmd.Type, len(resp.Commands)))
	}
	result := resp.Commands[0].Result
	if !result.Success {
		return nil, utils.GenericFailure(fmt.Sprintf("assessment platform rejected %s", cmd.Type), fmt.Errorf("%s", result.Message))
	}
	return &result, nil
}

// CreateAssessment creates an empty plan record and returns its uuid.
func (c *PlatformClient) CreateAssessment(ctx context.Context, user models.UserDetails) (uuid.UUID, error) {
	result, err := c.command(ctx, platformCommand{
		Type:     "CreateAssessmentCommand",
		User:     toPlatformUser(user),
		FormType: "sentence-plan",
	})
	if err != nil {
		return uuid.Nil, err
	}
	if result.AssessmentUuid == nil {
		return uuid.Nil, utils.GenericFailure("assessment platform did not return an assessment uuid", nil)
	}
	return *result.AssessmentUuid, nil
}

func (c *PlatformClient) DeleteAssessment(ctx context.Context, id uuid.UUID, user models.UserDetails) error {
	_, err := c.command(ctx, platformCommand{
		Type:       "DeleteAssessmentCommand",
		User:       toPlatformUser(user),
		Assessment: &assessmentIdentifier{Type: "UUID", Uuid: id},
	})
	return err
}

func (c *PlatformClient) FetchAssessment(ctx context.Context, id uuid.UUID, user models.UserDetails) (json.RawMessage, error) {
	var resp queryResponse
	query := platformQuery{
		Type:       "AssessmentVersionQuery",
		User:       toPlatformUser(user),
		Assessment: assessmentIdentifier{Type: "UUID", Uuid: id},
	}
	if err := c.do(ctx, http.MethodPost, "/query", queryEnvelope{Queries: []platformQuery{query}}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Queries) != 1 {
		return nil, utils.GenericFailure("assessment platform returned no query result", nil)
	}
	result := resp.Queries[0].Result
	if !result.Success {
		return nil, utils.NotFoundFailure("assessment platform record %s not found", id)
	}
	return result.Data, nil
}
