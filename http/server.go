package http

import (
	"net/http"
	"time"

	"quizadmin/auth"
	"quizadmin/fallback"
	"quizadmin/persist"
	"quizadmin/quiz"
	"quizadmin/ws"

	"github.com/gorilla/mux"
)

type Server struct {
	router   *mux.Router
	handlers *Handlers
}

func NewServer(authService *auth.Service, quizService *quiz.Service, coord *persist.Coordinator, fb *fallback.Store, hub *ws.Hub) *Server {
	router := mux.NewRouter()
	handlers := NewHandlers(authService, quizService, coord, fb, hub)

	server := &Server{
		router:   router,
		handlers: handlers,
	}

	server.setupRoutes(authService)
	return server
}

func (s *Server) setupRoutes(authService *auth.Service) {
	// Apply global middleware
	s.router.Use(LoggingMiddleware)
	s.router.Use(SecurityHeadersMiddleware)

	// CSRF note: SameSite=Lax on the session cookie prevents cross-site POST
	// requests from including the cookie, providing CSRF protection for all
	// state-changing endpoints without needing a token-based scheme.

	// Login is the only public endpoint; rate-limit it per IP.
	loginLimiter := NewRateLimiter(5.0/60.0, 5)
	s.router.Handle("/api/auth/login", loginLimiter.Middleware(http.HandlerFunc(s.handlers.Login))).Methods("POST")

	// Protected routes
	protected := s.router.PathPrefix("/api").Subrouter()
	protected.Use(AuthMiddleware(authService))

	protected.HandleFunc("/auth/logout", s.handlers.Logout).Methods("POST")

	protected.HandleFunc("/dashboard", s.handlers.Dashboard).Methods("GET")

	protected.HandleFunc("/users", s.handlers.ListUsers).Methods("GET")
	protected.HandleFunc("/users", s.handlers.CreateUser).Methods("POST")
	protected.HandleFunc("/users/{id:[0-9]+}/active", s.handlers.SetUserActive).Methods("PUT")

	protected.HandleFunc("/questions", s.handlers.ListQuestions).Methods("GET")
	protected.HandleFunc("/questions", s.handlers.CreateQuestion).Methods("POST")
	protected.HandleFunc("/questions/{id:[0-9]+}", s.handlers.UpdateQuestion).Methods("PUT")
	protected.HandleFunc("/questions/{id:[0-9]+}/active", s.handlers.SetQuestionActive).Methods("PUT")

	protected.HandleFunc("/sessions/recent", s.handlers.RecentSessions).Methods("GET")
	protected.HandleFunc("/sessions", s.handlers.RecordSession).Methods("POST")

	protected.HandleFunc("/sync/status", s.handlers.SyncStatus).Methods("GET")
	protected.HandleFunc("/sync/pending", s.handlers.PendingOperations).Methods("GET")
	protected.HandleFunc("/sync/pending/{id}", s.handlers.DropPending).Methods("DELETE")
	protected.HandleFunc("/sync/now", s.handlers.SyncNow).Methods("POST")
	protected.HandleFunc("/sync/log", s.handlers.SyncLog).Methods("GET")

	protected.HandleFunc("/query", s.handlers.RawQuery).Methods("POST")
	protected.HandleFunc("/export", s.handlers.Export).Methods("GET")

	// WebSocket status feed (protected)
	wsRouter := s.router.PathPrefix("/ws").Subrouter()
	wsRouter.Use(AuthMiddleware(authService))
	wsRouter.HandleFunc("/status", s.handlers.HandleStatusSocket)

	// Catch-all for unmatched API routes
	s.router.PathPrefix("/api/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) GetHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
