package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"mentora/internal/auth"
	"mentora/internal/config"
	"mentora/internal/credstore"
	"mentora/internal/history"
	"mentora/internal/mentor"
	"mentora/internal/models"
	"mentora/internal/prompt"
	"mentora/internal/session"
	"mentora/internal/storage"
)

const testTemplates = `
default_instructions: "Be a supportive mentor."
roles:
  default: "You mentor a general learner."
tasks:
  chat:
    system_prompt: |
      {role_instruction}
      {history}
      Learner: {message}
    user_prompt_wrapper: "Earlier: {summary}"
  summarize_conversation: "Summarize the conversation."
  generate_intro_and_topics: "Welcome!\n- Introduction"
  generate_topic_prompts: "- What is {topic}?"
`

type fakeCompleter struct {
	reply string
	err   error
}

func (f *fakeCompleter) Complete(ctx context.Context, p string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeCompleter) Chat(ctx context.Context, system string, turns []models.ChatTurn) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeCompleter, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}

	creds := credstore.New(db)
	if err := creds.CreateUser(context.Background(), models.User{
		Username: "vijaya01",
		Name:     "Vijaya",
		Email:    "vijaya@example.com",
	}, "vijaya@123"); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte(testTemplates), 0o644); err != nil {
		t.Fatalf("write templates: %v", err)
	}
	prompts, err := prompt.Load(path)
	if err != nil {
		t.Fatalf("load templates: %v", err)
	}

	fake := &fakeCompleter{reply: "Here is my advice."}
	svc := mentor.NewService(creds, session.New(db), history.New(db), prompts, fake, nil, nil)
	handler := NewHandler(svc, creds, auth.NewService(db, time.Hour))

	router := gin.New()
	handler.RegisterRoutes(router)
	return router, fake, db
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any, decorate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if decorate != nil {
		decorate(req)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestChatEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/chat", map[string]any{
		"username": "vijaya01",
		"password": "vijaya@123",
		"message":  "How do I delegate?",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["reply"] != "Here is my advice." {
		t.Fatalf("unexpected reply: %v", body["reply"])
	}
	if body["session_id"] == "" || body["new_session"] != true {
		t.Fatalf("unexpected session fields: %v", body)
	}
}

func TestChatEndpointBadCredentials(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/chat", map[string]any{
		"username": "vijaya01",
		"password": "wrong",
		"message":  "hello",
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if decodeBody(t, w)["error"] != msgLoginFailed {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

func TestChatEndpointProviderFailure(t *testing.T) {
	router, fake, _ := newTestRouter(t)

	fake.err = errors.New("upstream exploded")
	w := doJSON(t, router, http.MethodPost, "/api/chat", map[string]any{
		"username": "vijaya01",
		"password": "vijaya@123",
		"message":  "hello",
	}, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if decodeBody(t, w)["error"] != msgUnavailable {
		t.Fatalf("unexpected error body: %s", w.Body.String())
	}
}

func TestChatEndpointProviderTimeout(t *testing.T) {
	router, fake, _ := newTestRouter(t)

	fake.err = context.DeadlineExceeded
	w := doJSON(t, router, http.MethodPost, "/api/chat", map[string]any{
		"username": "vijaya01",
		"password": "vijaya@123",
		"message":  "hello",
	}, nil)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", w.Code)
	}
}

func TestChatEndpointEmptyMessage(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/chat", map[string]any{
		"username": "vijaya01",
		"password": "vijaya@123",
		"message":  "  ",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestLoginIssuesToken(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/login", map[string]any{
		"username": "vijaya01",
		"password": "vijaya@123",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	token, _ := body["auth_token"].(string)
	if token == "" {
		t.Fatalf("no auth token in response: %v", body)
	}
	cookies := w.Result().Cookies()
	var names []string
	for _, ck := range cookies {
		names = append(names, ck.Name)
	}
	if len(cookies) < 2 {
		t.Fatalf("expected auth and csrf cookies, got %v", names)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/login", map[string]any{
		"username": "vijaya01",
		"password": "wrong",
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestBrowseRoutesRequireToken(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/sessions", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestSessionBrowsingWithBearerToken(t *testing.T) {
	router, _, _ := newTestRouter(t)

	// Create a session through the chat endpoint first.
	w := doJSON(t, router, http.MethodPost, "/api/chat", map[string]any{
		"username": "vijaya01",
		"password": "vijaya@123",
		"message":  "hello",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("chat status = %d", w.Code)
	}
	sessionID, _ := decodeBody(t, w)["session_id"].(string)

	w = doJSON(t, router, http.MethodPost, "/api/login", map[string]any{
		"username": "vijaya01",
		"password": "vijaya@123",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d", w.Code)
	}
	token, _ := decodeBody(t, w)["auth_token"].(string)
	bearer := func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w = doJSON(t, router, http.MethodGet, "/api/sessions", nil, bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("sessions status = %d, body %s", w.Code, w.Body.String())
	}
	sessions, _ := decodeBody(t, w)["sessions"].([]any)
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}

	w = doJSON(t, router, http.MethodGet, "/api/sessions/"+sessionID+"/messages", nil, bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("messages status = %d, body %s", w.Code, w.Body.String())
	}
	messages, _ := decodeBody(t, w)["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(messages))
	}

	// Bearer requests are exempt from the CSRF check.
	w = doJSON(t, router, http.MethodPost, "/api/topic-prompts", map[string]any{"topic": "delegation"}, bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("topic prompts status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestSessionMessagesUnknownSession(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/login", map[string]any{
		"username": "vijaya01",
		"password": "vijaya@123",
	}, nil)
	token, _ := decodeBody(t, w)["auth_token"].(string)

	w = doJSON(t, router, http.MethodGet, "/api/sessions/no-such-session/messages", nil, func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	router, _, db := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/login", map[string]any{
		"username": "vijaya01",
		"password": "vijaya@123",
	}, nil)
	token, _ := decodeBody(t, w)["auth_token"].(string)
	bearer := func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w = doJSON(t, router, http.MethodPost, "/api/logout", nil, bearer)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", w.Code)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_tokens WHERE token = ?`, token).Scan(&n); err != nil {
		t.Fatalf("count tokens: %v", err)
	}
	if n != 0 {
		t.Fatalf("token still present after logout")
	}

	w = doJSON(t, router, http.MethodGet, "/api/sessions", nil, bearer)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status after logout = %d, want 401", w.Code)
	}
}

func TestCSRFBlocksCookieOnlyWrites(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/login", map[string]any{
		"username": "vijaya01",
		"password": "vijaya@123",
	}, nil)
	cookies := w.Result().Cookies()

	// Cookie-authenticated POST without the CSRF header is rejected.
	w = doJSON(t, router, http.MethodPost, "/api/topic-prompts", map[string]any{"topic": "delegation"}, func(req *http.Request) {
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}

	// Replaying the CSRF cookie in the header passes the double-submit check.
	w = doJSON(t, router, http.MethodPost, "/api/topic-prompts", map[string]any{"topic": "delegation"}, func(req *http.Request) {
		for _, ck := range cookies {
			req.AddCookie(ck)
			if ck.Name == "csrf_token" {
				req.Header.Set("X-CSRF-Token", ck.Value)
			}
		}
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestStartSessionEndpoint(t *testing.T) {
	router, fake, _ := newTestRouter(t)
	fake.reply = "Welcome!\n- Introduction\n- Delegation"

	w := doJSON(t, router, http.MethodPost, "/api/sessions/start", map[string]any{
		"username":      "vijaya01",
		"password":      "vijaya@123",
		"learning_goal": "leadership",
		"skills":        []string{"delegation"},
		"difficulty":    "medium",
		"role":          "default",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["session_id"] == "" || body["intro"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}
	topics, _ := body["topics"].([]any)
	if len(topics) != 2 {
		t.Fatalf("got %d topics, want 2", len(topics))
	}
}
