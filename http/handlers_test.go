package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"quizadmin/auth"
	"quizadmin/fallback"
	"quizadmin/persist"
	"quizadmin/quiz"
	"quizadmin/store"
	"quizadmin/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminPassword = "adminpass123"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	sqliteStore, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteStore.Close() })

	_, err = store.EnsureSchema(sqliteStore.DB(), "admin", testAdminPassword)
	require.NoError(t, err)

	fb, err := fallback.NewStore(filepath.Join(t.TempDir(), "fallback_data"))
	require.NoError(t, err)

	coord := persist.New(sqliteStore, fb, time.Second)
	hub := ws.NewHub()
	coord.SetListener(hub)

	authService := auth.NewService(coord, auth.NewSessionManager("test-secret-key-for-sessions"))
	quizService := quiz.NewService(coord)

	return NewServer(authService, quizService, coord, fb, hub)
}

func loginAsAdmin(t *testing.T, srv *Server) *http.Cookie {
	t.Helper()

	body, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": testAdminPassword,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, "login response: %s", rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	return cookies[0]
}

func doJSON(srv *Server, method, path string, payload interface{}, cookie *http.Cookie) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &body)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestDashboardRequiresAuth(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodGet, "/api/dashboard", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginBadCredentials(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(srv, http.MethodPost, "/api/auth/login", map[string]string{
		"username": "admin",
		"password": "wrong-password1",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestLoginAndDashboard(t *testing.T) {
	srv := newTestServer(t)
	cookie := loginAsAdmin(t, srv)

	rec := doJSON(srv, http.MethodGet, "/api/dashboard", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var view quiz.DashboardView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.False(t, view.DegradedMode)
	assert.Equal(t, 1, view.Stats.TotalUsers)
}

func TestQuestionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	cookie := loginAsAdmin(t, srv)

	rec := doJSON(srv, http.MethodPost, "/api/questions", map[string]interface{}{
		"prompt":         "What is 2+2?",
		"correct_answer": "4",
		"wrong_answer1":  "3",
		"wrong_answer2":  "5",
		"wrong_answer3":  "22",
		"difficulty":     "easy",
	}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, "create response: %s", rec.Body.String())

	var created struct {
		Status string `json:"status"`
		ID     int64  `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "created", created.Status)
	require.Greater(t, created.ID, int64(0))

	rec = doJSON(srv, http.MethodGet, "/api/questions", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var questions []store.Question
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &questions))
	require.Len(t, questions, 1)
	assert.Equal(t, created.ID, questions[0].ID)

	rec = doJSON(srv, http.MethodPost, "/api/questions", map[string]interface{}{
		"prompt": "Incomplete question",
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUserDuplicate(t *testing.T) {
	srv := newTestServer(t)
	cookie := loginAsAdmin(t, srv)

	payload := map[string]string{
		"username": "alice",
		"password": "alicepass1",
		"role":     store.RolePlayer,
	}
	rec := doJSON(srv, http.MethodPost, "/api/users", payload, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, "create response: %s", rec.Body.String())

	rec = doJSON(srv, http.MethodPost, "/api/users", payload, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncStatusHealthy(t *testing.T) {
	srv := newTestServer(t)
	cookie := loginAsAdmin(t, srv)

	rec := doJSON(srv, http.MethodGet, "/api/sync/status", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		DegradedMode bool `json:"degradedMode"`
		PendingCount int  `json:"pendingCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.DegradedMode)
	assert.Equal(t, 0, status.PendingCount)
}

func TestSyncNow(t *testing.T) {
	srv := newTestServer(t)
	cookie := loginAsAdmin(t, srv)

	rec := doJSON(srv, http.MethodPost, "/api/sync/now", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var result persist.ReconcileResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.Synced)
}

func TestRawQuery(t *testing.T) {
	srv := newTestServer(t)
	cookie := loginAsAdmin(t, srv)

	rec := doJSON(srv, http.MethodPost, "/api/query", map[string]interface{}{
		"query": "SELECT username FROM users",
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		DegradedMode bool                     `json:"degradedMode"`
		Rows         []map[string]interface{} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "admin", resp.Rows[0]["username"])
}

func TestExport(t *testing.T) {
	srv := newTestServer(t)
	cookie := loginAsAdmin(t, srv)

	rec := doJSON(srv, http.MethodGet, "/api/export", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var docs map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	for _, name := range []string{"users", "questions", "game_sessions", "user_stats", "sync_status"} {
		assert.Contains(t, docs, name)
	}
}

func TestUnknownAPIRouteIs404(t *testing.T) {
	srv := newTestServer(t)
	cookie := loginAsAdmin(t, srv)

	rec := doJSON(srv, http.MethodGet, "/api/no-such-thing", nil, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
