// Package client talks to the events API from the capture side.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wooogler/swag/internal/event"
)

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("events API returned status %d: %s", e.StatusCode, e.Body)
}

// EventsClient implements tracker.Sink over HTTP.
type EventsClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewEventsClient(baseURL string) *EventsClient {
	return &EventsClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type saveRequest struct {
	SessionID string         `json:"sessionId"`
	Events    []event.Record `json:"events"`
}

type saveResponse struct {
	Success    bool `json:"success"`
	SavedCount int  `json:"savedCount"`
}

type submissionsRequest struct {
	SessionID string `json:"sessionId"`
}

type submissionsResponse struct {
	Submissions []event.Record `json:"submissions"`
}

func (c *EventsClient) SaveEvents(ctx context.Context, sessionID string, records []event.Record) (int, error) {
	var resp saveResponse
	if err := c.post(ctx, "/api/events", saveRequest{SessionID: sessionID, Events: records}, &resp); err != nil {
		return 0, err
	}
	return resp.SavedCount, nil
}

// Submissions returns the submitted documents of a session in sequence order.
func (c *EventsClient) Submissions(ctx context.Context, sessionID string) ([]event.Record, error) {
	var resp submissionsResponse
	if err := c.post(ctx, "/api/events/submissions", submissionsRequest{SessionID: sessionID}, &resp); err != nil {
		return nil, err
	}
	return resp.Submissions, nil
}

func (c *EventsClient) post(ctx context.Context, endpoint string, body, out interface{}) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
