// Package clients talks JSON over HTTP to the downstream record backends.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	CorrelationIdHeader = "x-correlation-id"
	maxErrorBodyExcerpt = 512
)

type jsonClient struct {
	name    string
	baseURL string
	http    *http.Client
}

func newJSONClient(name string, baseURL string, timeout time.Duration) jsonClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return jsonClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// do sends body as JSON and decodes the response into out (when non-nil).
// Non-2xx statuses become Failures: 404 not found, 409 conflict, anything
// else generic with an excerpt of the response body.
func (c jsonClient) do(ctx context.Context, method string, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return utils.GenericFailure(fmt.Sprintf("failed to encode %s request", c.name), err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return utils.GenericFailure(fmt.Sprintf("failed to build %s request", c.name), err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if correlationId, ok := utils.GetCorrelationIdFromContext(ctx); ok && correlationId != "" {
		req.Header.Set(CorrelationIdHeader, correlationId)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return utils.GenericFailure(fmt.Sprintf("%s is unavailable", c.name), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return utils.GenericFailure(fmt.Sprintf("failed to read %s response", c.name), err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return utils.NotFoundFailure("%s record not found", c.name)
	case resp.StatusCode == http.StatusConflict:
		return &utils.Failure{
			Kind:    utils.FailureKindConflict,
			Message: fmt.Sprintf("%s rejected the request: %s", c.name, conflictReason(respBody)),
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return utils.GenericFailure(
			fmt.Sprintf("%s returned status %d", c.name, resp.StatusCode),
			fmt.Errorf("%s %s: %s", method, path, excerpt(respBody)),
		)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return utils.GenericFailure(fmt.Sprintf("failed to decode %s response", c.name), err)
	}
	return nil
}

// conflictReason pulls userMessage out of a backend error body when present.
func conflictReason(body []byte) string {
	var parsed struct {
		UserMessage string `json:"userMessage"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.UserMessage != "" {
		return parsed.UserMessage
	}
	if s := excerpt(body); s != "" {
		return s
	}
	return "conflict"
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyExcerpt {
		s = s[:maxErrorBodyExcerpt] + "..."
	}
	return s
}
