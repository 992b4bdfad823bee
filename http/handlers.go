package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"quizadmin/auth"
	"quizadmin/fallback"
	"quizadmin/persist"
	"quizadmin/quiz"
	"quizadmin/store"
	"quizadmin/ws"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Only allow same origin
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

type Handlers struct {
	authService *auth.Service
	quizService *quiz.Service
	coord       *persist.Coordinator
	fb          *fallback.Store
	hub         *ws.Hub
}

func NewHandlers(authService *auth.Service, quizService *quiz.Service, coord *persist.Coordinator, fb *fallback.Store, hub *ws.Hub) *Handlers {
	return &Handlers{
		authService: authService,
		quizService: quizService,
		coord:       coord,
		fb:          fb,
		hub:         hub,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write JSON response: %v", err)
	}
}

// writeOutcome reports a coordinator write to the client. The three
// outcomes (applied, queued for sync, rejected) must stay
// distinguishable; queued writes answer 202.
func writeOutcome(w http.ResponseWriter, id int64, queued bool) {
	if queued {
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"status": "queued",
			"id":     id,
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status": "created",
		"id":     id,
	})
}

// Auth handlers

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sessionID, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		switch err {
		case auth.ErrInvalidCredentials, auth.ErrNotAdmin, auth.ErrAccountDisabled:
			http.Error(w, err.Error(), http.StatusUnauthorized)
		default:
			log.Printf("Login error: %v", err)
			http.Error(w, "Login failed", http.StatusInternalServerError)
		}
		return
	}

	h.authService.GetSessionManager().SetSessionCookie(w, sessionID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Login successful",
		"degradedMode": h.coord.InFallbackMode(),
	})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := h.authService.GetSessionManager().SessionFromRequest(r)
	if sessionID != "" {
		h.authService.Logout(sessionID)
		h.authService.GetSessionManager().ClearSessionCookie(w)
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Dashboard

func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.quizService.Dashboard())
}

// User handlers

func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.quizService.ListUsers()
	if err != nil {
		log.Printf("ListUsers error: %v", err)
		http.Error(w, "Failed to list users", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []store.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = store.RolePlayer
	}

	id, queued, err := h.authService.CreateAccount(req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidUsername),
			errors.Is(err, auth.ErrInvalidPassword),
			errors.Is(err, auth.ErrInvalidRole),
			errors.Is(err, auth.ErrUserExists):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, store.ErrConstraint):
			http.Error(w, "username already exists", http.StatusConflict)
		default:
			log.Printf("CreateUser error: %v", err)
			http.Error(w, "Failed to create user", http.StatusInternalServerError)
		}
		return
	}

	writeOutcome(w, id, queued)
}

func (h *Handlers) SetUserActive(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Active bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	queued, err := h.quizService.SetUserActive(userID, req.Active)
	if err != nil {
		log.Printf("SetUserActive error: %v", err)
		http.Error(w, "Failed to update user", http.StatusInternalServerError)
		return
	}
	writeOutcome(w, userID, queued)
}

// Question handlers

func (h *Handlers) ListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.quizService.ListQuestions()
	if err != nil {
		log.Printf("ListQuestions error: %v", err)
		http.Error(w, "Failed to list questions", http.StatusInternalServerError)
		return
	}
	if questions == nil {
		questions = []store.Question{}
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handlers) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var q store.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id, queued, err := h.quizService.CreateQuestion(q)
	if err != nil {
		h.questionError(w, err, "CreateQuestion")
		return
	}
	writeOutcome(w, id, queued)
}

func (h *Handlers) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var q store.Question
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	q.ID = questionID

	queued, err := h.quizService.UpdateQuestion(q)
	if err != nil {
		h.questionError(w, err, "UpdateQuestion")
		return
	}
	writeOutcome(w, questionID, queued)
}

func (h *Handlers) SetQuestionActive(w http.ResponseWriter, r *http.Request) {
	questionID, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Active bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	queued, err := h.quizService.SetQuestionActive(questionID, req.Active)
	if err != nil {
		log.Printf("SetQuestionActive error: %v", err)
		http.Error(w, "Failed to update question", http.StatusInternalServerError)
		return
	}
	writeOutcome(w, questionID, queued)
}

func (h *Handlers) questionError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, quiz.ErrEmptyPrompt),
		errors.Is(err, quiz.ErrMissingAnswers),
		errors.Is(err, quiz.ErrInvalidDifficulty):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrConstraint):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Printf("%s error: %v", op, err)
		http.Error(w, "Failed to save question", http.StatusInternalServerError)
	}
}

// Session handlers

func (h *Handlers) RecentSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	sessions, err := h.quizService.RecentSessions(limit)
	if err != nil {
		log.Printf("RecentSessions error: %v", err)
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []store.GameSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handlers) RecordSession(w http.ResponseWriter, r *http.Request) {
	var gs store.GameSession
	if err := json.NewDecoder(r.Body).Decode(&gs); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id, queued, err := h.quizService.RecordScore(gs)
	if err != nil {
		if errors.Is(err, quiz.ErrInvalidScore) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("RecordSession error: %v", err)
		http.Error(w, "Failed to record session", http.StatusInternalServerError)
		return
	}
	writeOutcome(w, id, queued)
}

// Sync handlers

func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.coord.SyncStatus()
	if err != nil {
		log.Printf("SyncStatus error: %v", err)
		http.Error(w, "Failed to read sync status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"degradedMode": h.coord.InFallbackMode(),
		"lastSync":     status.LastSync,
		"direction":    status.SyncDirection,
		"pendingCount": len(status.PendingOperations),
	})
}

func (h *Handlers) PendingOperations(w http.ResponseWriter, r *http.Request) {
	pending, err := h.coord.PendingOperations()
	if err != nil {
		log.Printf("PendingOperations error: %v", err)
		http.Error(w, "Failed to read pending operations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (h *Handlers) SyncNow(w http.ResponseWriter, r *http.Request) {
	result := h.coord.Reconcile()
	status := http.StatusOK
	if !result.Success {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

func (h *Handlers) DropPending(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		http.Error(w, "Missing operation id", http.StatusBadRequest)
		return
	}
	if err := h.coord.DropPending(id); err != nil {
		log.Printf("DropPending error: %v", err)
		http.Error(w, "Failed to drop pending operation", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dropped"})
}

func (h *Handlers) SyncLog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.coord.SyncLog())
}

// RawQuery is the admin console passthrough. In fallback mode it answers
// an empty result set; the fallback store cannot run arbitrary SQL.
func (h *Handlers) RawQuery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query  string        `json:"query"`
		Params []interface{} `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "Missing query", http.StatusBadRequest)
		return
	}

	rows, err := h.coord.Query(req.Query, req.Params...)
	if err != nil {
		log.Printf("RawQuery error: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"degradedMode": h.coord.InFallbackMode(),
		"rows":         rows,
	})
}

// Export serves the fallback documents verbatim for backup tooling.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	docs, err := h.fb.Export()
	if err != nil {
		log.Printf("Export error: %v", err)
		http.Error(w, "Failed to export fallback documents", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// WebSocket status feed

func (h *Handlers) HandleStatusSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	h.hub.HandleConnection(conn)
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
