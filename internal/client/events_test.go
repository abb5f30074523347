package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wooogler/swag/internal/event"
	"github.com/wooogler/swag/internal/tracker"
)

var _ tracker.Sink = (*EventsClient)(nil)

func TestSaveEvents(t *testing.T) {
	var got saveRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/events", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"savedCount":2}`))
	}))
	defer srv.Close()

	c := NewEventsClient(srv.URL + "/")
	records := []event.Record{
		{Type: event.KindSnapshot, Timestamp: 10, SequenceNumber: 0, Data: json.RawMessage(`[]`)},
		{Type: event.KindPasteExternal, Timestamp: 20, SequenceNumber: 1, Data: json.RawMessage(`{"content":"x"}`)},
	}
	n, err := c.SaveEvents(context.Background(), "abc", records)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "abc", got.SessionID)
	require.Len(t, got.Events, 2)
	assert.Equal(t, event.KindPasteExternal, got.Events[1].Type)
}

func TestSaveEvents_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Session not found"}`))
	}))
	defer srv.Close()

	_, err := NewEventsClient(srv.URL).SaveEvents(context.Background(), "missing", nil)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Contains(t, se.Body, "Session not found")
}

func TestSaveEvents_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEventsClient(srv.URL).SaveEvents(ctx, "abc", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubmissions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events/submissions", r.URL.Path)
		var req submissionsRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "abc", req.SessionID)
		w.Write([]byte(`{"submissions":[{"type":"submission","timestamp":5,"sequenceNumber":9,"data":[]}]}`))
	}))
	defer srv.Close()

	subs, err := NewEventsClient(srv.URL).Submissions(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, int64(9), subs[0].SequenceNumber)
}

func TestEventsClient_DrivesTracker(t *testing.T) {
	var batches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req saveRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batches++
		json.NewEncoder(w).Encode(saveResponse{Success: true, SavedCount: len(req.Events)})
	}))
	defer srv.Close()

	tr := tracker.New("abc", NewEventsClient(srv.URL))
	defer tr.Stop()
	require.NoError(t, tr.RecordSubmission(event.Document(`[]`)))
	tr.Wait()
	assert.Equal(t, 1, batches)
	assert.Empty(t, tr.Pending())
}
