package handler

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wooogler/swag/internal/auth"
	"github.com/wooogler/swag/internal/cache"
	"github.com/wooogler/swag/internal/config"
	"github.com/wooogler/swag/internal/database"
	"github.com/wooogler/swag/internal/idle"
	"github.com/wooogler/swag/internal/limiter"
	"github.com/wooogler/swag/internal/model"
	"github.com/wooogler/swag/internal/store"
)

const testSecret = "handler-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router     *gin.Engine
	store      *store.Store
	mr         *miniredis.Miniredis
	assignment *model.Assignment
	session    *model.Session
	token      string
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.Migrate(db))
	st := store.New(db)

	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { rc.Close() })

	cfg := &config.Config{
		JWTSecret:        testSecret,
		FrontendURL:      "http://localhost:3000",
		EventsRateLimit:  1000,
		EventsRateWindow: time.Minute,
		ReplayCacheTTL:   time.Minute,
		Idle:             idle.DefaultConfig(),
	}
	for _, m := range mutate {
		m(cfg)
	}

	inst := model.Instructor{Email: "prof@example.edu", Name: "Prof"}
	require.NoError(t, db.Create(&inst).Error)
	asg := model.Assignment{
		Title:        "Essay",
		Instructions: "Write.",
		Deadline:     time.Now().Add(time.Hour),
		InstructorID: &inst.ID,
	}
	require.NoError(t, db.Create(&asg).Error)
	sess, _, err := st.StartSession(context.Background(), asg.ID, "Sam", "sam@example.edu")
	require.NoError(t, err)

	token, err := auth.GenerateAccessToken(&inst, testSecret)
	require.NoError(t, err)

	lim := limiter.NewLimiter(rc, RateLimits(cfg))
	return &testEnv{
		router:     NewRouter(cfg, st, rc, lim),
		store:      st,
		mr:         mr,
		assignment: &asg,
		session:    sess,
		token:      token,
	}
}

func (e *testEnv) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) saveEvents(t *testing.T, events string) {
	t.Helper()
	w := e.do(http.MethodPost, "/api/events", fmt.Sprintf(`{"sessionId":%q,"events":%s}`, e.session.ID, events), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

const base = int64(1_700_000_000_000)

const helloDoc = `[{"type":"paragraph","content":[{"type":"text","text":"Hello world"}]}]`

// =============================================================================
// Events
// =============================================================================

func TestSaveEvents_EmptyBatchIsANoOp(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		"",
		fmt.Sprintf(`{"sessionId":%q,"events":[]}`, env.session.ID),
		`{"sessionId":"not-even-a-uuid","events":[]}`,
	} {
		w := env.do(http.MethodPost, "/api/events", body, "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true,"savedCount":0}`, w.Body.String())
	}

	sess, err := env.store.GetSession(context.Background(), env.session.ID)
	require.NoError(t, err)
	assert.Nil(t, sess.LastSavedAt)
}

func TestSaveEvents_OutOfOrderBatches(t *testing.T) {
	env := newTestEnv(t)

	env.saveEvents(t, fmt.Sprintf(`[
		{"type":"submission","timestamp":%d,"sequenceNumber":3,"data":[]},
		{"type":"submission","timestamp":%d,"sequenceNumber":2,"data":[]}
	]`, base+3000, base+2000))
	env.saveEvents(t, fmt.Sprintf(`[
		{"type":"snapshot","timestamp":%d,"sequenceNumber":0,"data":[]},
		{"type":"submission","timestamp":%d,"sequenceNumber":1,"data":[]}
	]`, base, base+1000))

	w := env.do(http.MethodPost, "/api/events/submissions", map[string]string{"sessionId": env.session.ID}, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Submissions []struct {
			SequenceNumber int64 `json:"sequenceNumber"`
			Timestamp      int64 `json:"timestamp"`
		} `json:"submissions"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Submissions, 3)
	for i, s := range resp.Submissions {
		assert.Equal(t, int64(i+1), s.SequenceNumber)
		assert.Equal(t, base+int64(i+1)*1000, s.Timestamp)
	}
}

func TestSaveEvents_Rejections(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"sessionId":`, http.StatusBadRequest},
		{"bad session id", `{"sessionId":"abc","events":[{"type":"snapshot","timestamp":1,"sequenceNumber":0}]}`, http.StatusBadRequest},
		{"unknown type", fmt.Sprintf(`{"sessionId":%q,"events":[{"type":"keystroke","timestamp":1,"sequenceNumber":0}]}`, env.session.ID), http.StatusBadRequest},
		{"unknown session", `{"sessionId":"9b2f0f4e-0000-4000-8000-000000000000","events":[{"type":"snapshot","timestamp":1,"sequenceNumber":0,"data":[]}]}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/events", tt.body, "")
			assert.Equal(t, tt.code, w.Code, w.Body.String())
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestSaveEvents_RateLimited(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.EventsRateLimit = 2 })

	for i := 0; i < 2; i++ {
		w := env.do(http.MethodPost, "/api/events", "", "")
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w := env.do(http.MethodPost, "/api/events", "", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

// metricValue reads an unlabelled sample from /metrics.
func (e *testEnv) metricValue(t *testing.T, name string) float64 {
	t.Helper()
	w := e.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if v, ok := strings.CutPrefix(line, name+" "); ok {
			f, err := strconv.ParseFloat(v, 64)
			require.NoError(t, err)
			return f
		}
	}
	t.Fatalf("metric %s not exported", name)
	return 0
}

func TestSaveEvents_RetriedBatchCountsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	batch := fmt.Sprintf(`[
		{"type":"snapshot","timestamp":%d,"sequenceNumber":0,"data":[]},
		{"type":"paste_external","timestamp":%d,"sequenceNumber":1,"data":{"content":"x"}}
	]`, base, base+100)

	env.saveEvents(t, batch)
	before := env.metricValue(t, "editor_events_duplicate_total")

	w := env.do(http.MethodPost, "/api/events", fmt.Sprintf(`{"sessionId":%q,"events":%s}`, env.session.ID, batch), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"savedCount":2}`, w.Body.String())
	assert.Equal(t, before+2, env.metricValue(t, "editor_events_duplicate_total"))
}

func TestSubmissions_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodPost, "/api/events/submissions", map[string]string{"sessionId": "9b2f0f4e-0000-4000-8000-000000000000"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/events/submissions", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Sessions
// =============================================================================

func TestStartSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/sessions/start", map[string]string{
		"shareToken":   env.assignment.ShareToken,
		"studentName":  "Kim",
		"studentEmail": "Kim@Example.edu",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var first struct {
		SessionID string `json:"sessionId"`
	}
	decode(t, w, &first)

	w = env.do(http.MethodPost, "/api/sessions/start", map[string]string{
		"assignmentId": env.assignment.ID,
		"studentName":  "Kim",
		"studentEmail": "kim@example.edu",
	}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var second struct {
		SessionID string `json:"sessionId"`
	}
	decode(t, w, &second)
	assert.Equal(t, first.SessionID, second.SessionID)

	w = env.do(http.MethodPost, "/api/sessions/start", map[string]string{
		"shareToken":   "nope",
		"studentName":  "Kim",
		"studentEmail": "kim@example.edu",
	}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPost, "/api/sessions/start", map[string]string{"studentName": "Kim"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/sessions/"+first.SessionID, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kim@example.edu")
}

// =============================================================================
// Conversations
// =============================================================================

func TestConversationFlow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/conversations", map[string]string{"sessionId": env.session.ID}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var conv model.ChatConversation
	decode(t, w, &conv)
	assert.Equal(t, model.DefaultConversationTitle, conv.Title)

	w = env.do(http.MethodPatch, "/api/conversations/"+conv.ID, map[string]string{"title": "Outline"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/conversations/"+conv.ID+"/messages", map[string]any{
		"role": "user", "content": "What is a thesis?", "timestamp": base,
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = env.do(http.MethodPost, "/api/conversations/"+conv.ID+"/messages", map[string]any{
		"role": "assistant", "content": "A claim.", "metadata": map[string]bool{"webSearchEnabled": false},
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(http.MethodPost, "/api/conversations/"+conv.ID+"/messages", map[string]any{"role": "system", "content": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/conversations/"+conv.ID+"/messages", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var msgs struct {
		Messages []model.ChatMessage `json:"messages"`
	}
	decode(t, w, &msgs)
	require.Len(t, msgs.Messages, 2)
	assert.Equal(t, 0, msgs.Messages[0].SequenceNumber)
	assert.Equal(t, 1, msgs.Messages[1].SequenceNumber)

	w = env.do(http.MethodGet, "/api/sessions/"+env.session.ID+"/conversations", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Outline")

	w = env.do(http.MethodGet, "/api/conversations/missing/messages", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// Replay
// =============================================================================

func TestReplay_RequiresOwningInstructor(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/replay/"+env.session.ID, nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other, err := auth.GenerateAccessToken(&model.Instructor{ID: "someone-else", Email: "x@example.edu"}, testSecret)
	require.NoError(t, err)
	w = env.do(http.MethodGet, "/api/replay/"+env.session.ID, nil, other)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/replay/not-a-uuid", nil, env.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReplay_CacheInvalidatedOnAppend(t *testing.T) {
	env := newTestEnv(t)
	env.saveEvents(t, fmt.Sprintf(`[{"type":"snapshot","timestamp":%d,"sequenceNumber":0,"data":[]}]`, base))

	w := env.do(http.MethodGet, "/api/replay/"+env.session.ID, nil, env.token)
	require.Equal(t, http.StatusOK, w.Code)
	var data store.ReplayData
	decode(t, w, &data)
	assert.Len(t, data.Events, 1)
	assert.True(t, env.mr.Exists(cache.ReplayKey(env.session.ID)))

	env.saveEvents(t, fmt.Sprintf(`[{"type":"paste_external","timestamp":%d,"sequenceNumber":1,"data":{"content":"x"}}]`, base+500))
	assert.False(t, env.mr.Exists(cache.ReplayKey(env.session.ID)))

	w = env.do(http.MethodGet, "/api/replay/"+env.session.ID, nil, env.token)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &data)
	assert.Len(t, data.Events, 2)
	assert.Equal(t, base, data.StartTime)
	assert.Equal(t, base+500, data.EndTime)
}

func TestReplay_ServedFromCache(t *testing.T) {
	env := newTestEnv(t)
	key := cache.ReplayKey(env.session.ID)
	require.NoError(t, env.mr.Set(key, `{"session":{"id":"cached"},"events":[],"startTime":7,"endTime":8}`))

	w := env.do(http.MethodGet, "/api/replay/"+env.session.ID, nil, env.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cached"`)
}

func TestReplay_Frame(t *testing.T) {
	env := newTestEnv(t)
	env.saveEvents(t, fmt.Sprintf(`[
		{"type":"snapshot","timestamp":%d,"sequenceNumber":0,"data":[]},
		{"type":"paste_internal","timestamp":%d,"sequenceNumber":1,"data":{"content":"Hello"}},
		{"type":"snapshot","timestamp":%d,"sequenceNumber":2,"data":%s},
		{"type":"snapshot","timestamp":%d,"sequenceNumber":3,"data":%s}
	]`, base, base+1000, base+1500, helloDoc, base+600_000, helloDoc))

	w := env.do(http.MethodGet, fmt.Sprintf("/api/replay/%s/frame?t=%d", env.session.ID, base+1600), nil, env.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Frame struct {
			Text  string `json:"text"`
			Paste *struct {
				Internal bool   `json:"internal"`
				Content  string `json:"content"`
			} `json:"paste"`
		} `json:"frame"`
		Progress float64      `json:"progress"`
		Idle     *idle.Period `json:"idle"`
	}
	decode(t, w, &resp)
	assert.Equal(t, "Hello world", resp.Frame.Text)
	require.NotNil(t, resp.Frame.Paste)
	assert.True(t, resp.Frame.Paste.Internal)
	assert.Nil(t, resp.Idle)
	assert.Greater(t, resp.Progress, 0.0)

	// Halfway through the ten minute break sits inside the collapsed middle.
	w = env.do(http.MethodGet, fmt.Sprintf("/api/replay/%s/frame?t=%d", env.session.ID, base+300_000), nil, env.token)
	require.Equal(t, http.StatusOK, w.Code)
	resp.Idle = nil
	resp.Frame.Paste = nil
	decode(t, w, &resp)
	require.NotNil(t, resp.Idle)
	assert.Equal(t, base+1500, resp.Idle.Start)
	assert.Nil(t, resp.Frame.Paste)

	w = env.do(http.MethodGet, "/api/replay/"+env.session.ID+"/frame?t=soon", nil, env.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReplay_Summary(t *testing.T) {
	env := newTestEnv(t)
	env.saveEvents(t, fmt.Sprintf(`[
		{"type":"snapshot","timestamp":%d,"sequenceNumber":0,"data":[]},
		{"type":"paste_external","timestamp":%d,"sequenceNumber":1,"data":{"content":"x"}},
		{"type":"snapshot","timestamp":%d,"sequenceNumber":2,"data":%s}
	]`, base, base+1000, base+30_000, helloDoc))

	w := env.do(http.MethodGet, "/api/summary/"+env.session.ID, nil, env.token)
	require.Equal(t, http.StatusOK, w.Code)
	var sum struct {
		TotalEditorEvents     int   `json:"totalEditorEvents"`
		ExternalPasteAttempts int   `json:"externalPasteAttempts"`
		ActiveTimeMs          int64 `json:"activeTimeMs"`
		WordCount             int   `json:"wordCount"`
	}
	decode(t, w, &sum)
	assert.Equal(t, 3, sum.TotalEditorEvents)
	assert.Equal(t, 1, sum.ExternalPasteAttempts)
	assert.Equal(t, int64(30_000), sum.ActiveTimeMs)
	assert.Equal(t, 2, sum.WordCount)
}

func TestReplay_Export(t *testing.T) {
	env := newTestEnv(t)
	env.saveEvents(t, fmt.Sprintf(`[
		{"type":"snapshot","timestamp":%d,"sequenceNumber":0,"data":[]},
		{"type":"submission","timestamp":%d,"sequenceNumber":1,"data":%s}
	]`, base, base+1000, helloDoc))
	path := "/api/export/" + env.session.ID

	w := env.do(http.MethodGet, path+"?format=csv", nil, env.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
	rows, err := csv.NewReader(strings.NewReader(w.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Sequence", "Timestamp", "Source", "Type", "Detail"}, rows[0])
	assert.Equal(t, "submission", rows[2][3])
	assert.Equal(t, "2 words", rows[2][4])

	w = env.do(http.MethodGet, path+"?format=md", nil, env.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# Sam")
	assert.Contains(t, w.Body.String(), "Hello world")

	w = env.do(http.MethodGet, path, nil, env.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"summary"`)

	w = env.do(http.MethodGet, path+"?format=xml", nil, env.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReplay_Delete(t *testing.T) {
	env := newTestEnv(t)
	env.saveEvents(t, fmt.Sprintf(`[{"type":"snapshot","timestamp":%d,"sequenceNumber":0,"data":[]}]`, base))

	w := env.do(http.MethodDelete, "/api/replay/"+env.session.ID, nil, env.token)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/api/sessions/"+env.session.ID, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
