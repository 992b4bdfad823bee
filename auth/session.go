package auth

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/securecookie"
)

const sessionCookieName = "qa_session"

type Session struct {
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

// SessionManager keeps sessions in memory; the session cookie carries
// only a signed opaque id.
type SessionManager struct {
	sessions map[string]*Session
	codec    *securecookie.SecureCookie
	mu       sync.RWMutex
}

func NewSessionManager(secret string) *SessionManager {
	sm := &SessionManager{
		sessions: make(map[string]*Session),
		codec:    securecookie.New([]byte(secret), nil),
	}

	// Start cleanup goroutine
	go sm.cleanupExpiredSessions()

	return sm
}

func (sm *SessionManager) CreateSession(userID int64, username string) (string, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return "", err
	}

	sm.mu.Lock()
	sm.sessions[sessionID] = &Session{
		UserID:    userID,
		Username:  username,
		ExpiresAt: time.Now().Add(8 * time.Hour), // one working day
	}
	sm.mu.Unlock()

	return sessionID, nil
}

func (sm *SessionManager) GetUserID(sessionID string) (int64, bool) {
	sm.mu.RLock()
	session, exists := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if !exists {
		return 0, false
	}

	if time.Now().After(session.ExpiresAt) {
		sm.DeleteSession(sessionID)
		return 0, false
	}

	return session.UserID, true
}

func (sm *SessionManager) DeleteSession(sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()
}

func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	encoded, err := sm.codec.Encode(sessionCookieName, sessionID)
	if err != nil {
		return
	}
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    encoded,
		Path:     "/",
		MaxAge:   8 * 60 * 60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		// Secure: true, // Enable in production with HTTPS
	}
	http.SetCookie(w, cookie)
}

func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}
	http.SetCookie(w, cookie)
}

// SessionFromRequest extracts and verifies the signed session id from the
// request cookie. Tampered or unsigned cookies read as no session.
func (sm *SessionManager) SessionFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	var sessionID string
	if err := sm.codec.Decode(sessionCookieName, cookie.Value, &sessionID); err != nil {
		return ""
	}
	return sessionID
}

func (sm *SessionManager) cleanupExpiredSessions() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		sm.mu.Lock()
		now := time.Now()
		for id, session := range sm.sessions {
			if now.After(session.ExpiresAt) {
				delete(sm.sessions, id)
			}
		}
		sm.mu.Unlock()
	}
}

func generateSessionID() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}
