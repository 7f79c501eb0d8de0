package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/kairos/internal/actions"
	"github.com/suPer8Hu/kairos/internal/ai"
	"github.com/suPer8Hu/kairos/internal/auth"
	"github.com/suPer8Hu/kairos/internal/chat"
	"github.com/suPer8Hu/kairos/internal/dispatch"
	"github.com/suPer8Hu/kairos/internal/httpapi/handlers"
	"github.com/suPer8Hu/kairos/internal/quota"
	"gorm.io/gorm"
)

const testSecret = "test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	engine *gin.Engine
	db     *gorm.DB
	fail   bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	models := append([]any{&chat.Session{}, &chat.Message{}, &quota.Usage{}}, actions.Models()...)
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	ts := &testServer{db: db}
	general := ai.CompleterFunc(func(ctx context.Context, req ai.Request) (string, error) {
		if ts.fail {
			return "", errors.New("down")
		}
		return "general: " + req.Message, nil
	})
	live := ai.CompleterFunc(func(ctx context.Context, req ai.Request) (string, error) {
		return "live: " + req.Message, nil
	})
	router, err := dispatch.NewRouter(map[ai.Mode]ai.Completer{ai.ModeGeneral: general, ai.ModeLiveSearch: live})
	if err != nil {
		t.Fatalf("router: %v", err)
	}

	repo := chat.NewRepo(db)
	quotas := quota.NewManager(quota.NewDBStore(db), repo, quota.Limits{ai.ModeLiveSearch: 1, ai.ModeSecondaryAI: 5})
	svc := chat.NewService(repo, router, quotas, actions.NewRecorder(db, nil), 20)
	ts.engine = NewRouter(handlers.NewHandler(svc, nil), testSecret)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, uid uint64, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if uid != 0 {
		tok, err := auth.SignToken(testSecret, uid, time.Hour)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s %s: %v body=%s", method, path, err, w.Body.String())
	}
	return w, env
}

func (ts *testServer) createSession(t *testing.T, uid uint64, mode string) string {
	t.Helper()
	w, env := ts.do(t, http.MethodPost, "/chat/sessions", uid, gin.H{"mode": mode})
	if w.Code != http.StatusOK {
		t.Fatalf("create session: %d %s", w.Code, env.Message)
	}
	var data struct {
		SessionID string `json:"session_id"`
	}
	_ = json.Unmarshal(env.Data, &data)
	if len(data.SessionID) != 26 {
		t.Fatalf("expected ulid session id, got %q", data.SessionID)
	}
	return data.SessionID
}

func TestPingAndUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(t, http.MethodGet, "/ping", 0, nil)
	if w.Code != http.StatusOK || env.Code != 0 {
		t.Fatalf("ping: %d %+v", w.Code, env)
	}
	w, env = ts.do(t, http.MethodGet, "/nope", 0, nil)
	if w.Code != http.StatusNotFound || env.Code != 40400 {
		t.Fatalf("unknown route: %d %+v", w.Code, env)
	}
	w, _ = ts.do(t, http.MethodPost, "/chat/sessions", 0, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestSendAndList(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.createSession(t, 1, "")

	w, env := ts.do(t, http.MethodPost, "/chat/messages", 1, gin.H{"session_id": sid, "message": "spent $12 on lunch"})
	if w.Code != http.StatusOK {
		t.Fatalf("send: %d %s", w.Code, env.Message)
	}
	var sent struct {
		Reply  string `json:"reply"`
		Source string `json:"source"`
		Intent struct {
			Intent string `json:"intent"`
		} `json:"intent"`
		Action *actions.Record `json:"action"`
	}
	_ = json.Unmarshal(env.Data, &sent)
	if sent.Reply != "general: spent $12 on lunch" || sent.Source != "general" {
		t.Fatalf("unexpected reply %+v", sent)
	}
	if sent.Intent.Intent != "expense" || sent.Action == nil {
		t.Fatalf("expected a recorded expense, got %+v", sent)
	}

	w, env = ts.do(t, http.MethodGet, "/chat/sessions/"+sid+"/messages", 1, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, env.Message)
	}
	var listed struct {
		Messages []chat.Message `json:"messages"`
	}
	_ = json.Unmarshal(env.Data, &listed)
	if len(listed.Messages) != 2 || listed.Messages[0].Role != chat.RoleAssistant {
		t.Fatalf("expected newest first, got %+v", listed.Messages)
	}

	w, _ = ts.do(t, http.MethodGet, "/chat/sessions/"+sid+"/messages", 2, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("other user should get 404, got %d", w.Code)
	}
}

func TestModeToggleAndQuota(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.createSession(t, 1, "general")

	w, env := ts.do(t, http.MethodPut, "/chat/sessions/"+sid+"/mode", 1, gin.H{"mode": "liveSearch"})
	if w.Code != http.StatusOK {
		t.Fatalf("toggle: %d %s", w.Code, env.Message)
	}

	_, env = ts.do(t, http.MethodPost, "/chat/messages", 1, gin.H{"session_id": sid, "message": "news?"})
	var sent struct {
		Source   string `json:"source"`
		Fallback bool   `json:"fell_back_to_general"`
	}
	_ = json.Unmarshal(env.Data, &sent)
	if sent.Source != "liveSearch" || sent.Fallback {
		t.Fatalf("expected live search answer, got %+v", sent)
	}

	// limit is 1, so the next one falls back
	_, env = ts.do(t, http.MethodPost, "/chat/messages", 1, gin.H{"session_id": sid, "message": "more?"})
	var second struct {
		Source string `json:"source"`
		Reason string `json:"fallback_reason"`
	}
	_ = json.Unmarshal(env.Data, &second)
	if second.Source != "general" || second.Reason != "Quota exceeded for liveSearch" {
		t.Fatalf("expected fallback, got %+v", second)
	}

	w, env = ts.do(t, http.MethodGet, "/chat/sessions/"+sid+"/quota", 1, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("quota: %d %s", w.Code, env.Message)
	}
	var st chat.SessionState
	_ = json.Unmarshal(env.Data, &st)
	if st.Mode != ai.ModeLiveSearch {
		t.Fatalf("expected mode liveSearch, got %q", st.Mode)
	}
	for _, c := range st.Quotas {
		if c.Mode == ai.ModeLiveSearch && c.Used != 1 {
			t.Fatalf("expected used=1, got %+v", c)
		}
	}

	w, env = ts.do(t, http.MethodPut, "/chat/sessions/"+sid+"/mode", 1, gin.H{"mode": "general"})
	if w.Code != http.StatusOK {
		t.Fatalf("toggle back: %d %s", w.Code, env.Message)
	}
	w, env = ts.do(t, http.MethodPut, "/chat/sessions/"+sid+"/mode", 1, gin.H{"mode": "liveSearch"})
	if w.Code != http.StatusConflict || env.Code != 40901 {
		t.Fatalf("expected 409, got %d %+v", w.Code, env)
	}
	w, _ = ts.do(t, http.MethodPut, "/chat/sessions/"+sid+"/mode", 1, gin.H{"mode": "turbo"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown mode, got %d", w.Code)
	}
}

func TestGeneralFailureReturns502(t *testing.T) {
	ts := newTestServer(t)
	sid := ts.createSession(t, 1, "")
	ts.fail = true

	w, env := ts.do(t, http.MethodPost, "/chat/messages", 1, gin.H{"session_id": sid, "message": "hello"})
	if w.Code != http.StatusBadGateway || env.Code != 50201 {
		t.Fatalf("expected 502, got %d %+v", w.Code, env)
	}

	var n int64
	ts.db.Model(&chat.Message{}).Where("session_id = ?", sid).Count(&n)
	if n != 1 {
		t.Fatalf("user message should be kept, got %d rows", n)
	}
}

func TestClassify(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(t, http.MethodPost, "/chat/classify", 1, gin.H{"message": "ran for 45 minutes"})
	if w.Code != http.StatusOK {
		t.Fatalf("classify: %d %s", w.Code, env.Message)
	}
	var got struct {
		Intent  string `json:"intent"`
		Payload struct {
			Exercise        string `json:"exercise"`
			DurationMinutes int    `json:"duration_minutes"`
		} `json:"payload"`
	}
	_ = json.Unmarshal(env.Data, &got)
	if got.Intent != "fitness" || got.Payload.Exercise != "running" || got.Payload.DurationMinutes != 45 {
		t.Fatalf("unexpected classification %+v", got)
	}

	var rows int64
	ts.db.Model(&actions.FitnessWorkout{}).Count(&rows)
	if rows != 0 {
		t.Fatalf("classify must not write, got %d rows", rows)
	}
}
