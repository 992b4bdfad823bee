package auth

import (
	"errors"
	"fmt"
	"regexp"

	"quizadmin/persist"
	"quizadmin/store"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidUsername    = errors.New("username must be alphanumeric and 3-20 characters")
	ErrInvalidPassword    = errors.New("password must be at least 8 characters and contain both letters and numbers")
	ErrInvalidRole        = errors.New("role must be admin or player")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNotAdmin           = errors.New("account is not an administrator")
	ErrAccountDisabled    = errors.New("account is disabled")
)

type Service struct {
	coord   *persist.Coordinator
	session *SessionManager
}

func NewService(coord *persist.Coordinator, sessionManager *SessionManager) *Service {
	return &Service{
		coord:   coord,
		session: sessionManager,
	}
}

// CreateAccount registers a new account through the coordinator. The
// second return value reports whether the write was queued for later sync
// instead of reaching the primary store.
func (s *Service) CreateAccount(username, email, password, role string) (int64, bool, error) {
	// Sanitize username to prevent XSS
	username = SanitizeUsername(username)

	if err := validateUsername(username); err != nil {
		return 0, false, err
	}
	if err := validatePassword(password); err != nil {
		return 0, false, err
	}
	if role != store.RoleAdmin && role != store.RolePlayer {
		return 0, false, ErrInvalidRole
	}

	existingUser, err := s.coord.UserByUsername(username)
	if err != nil {
		return 0, false, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existingUser != nil {
		return 0, false, ErrUserExists
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, false, fmt.Errorf("failed to hash password: %w", err)
	}

	id, queued, err := s.coord.AddUser(store.User{
		Username:     username,
		Email:        SanitizeString(email),
		PasswordHash: string(passwordHash),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return 0, false, fmt.Errorf("failed to create user: %w", err)
	}
	return id, queued, nil
}

// Login authenticates an administrator and opens a session. Only active
// admin-role accounts may enter the back office.
func (s *Service) Login(username, password string) (string, error) {
	username = SanitizeUsername(username)

	user, err := s.coord.UserByUsername(username)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	if !user.Active {
		return "", ErrAccountDisabled
	}
	if user.Role != store.RoleAdmin {
		return "", ErrNotAdmin
	}

	s.coord.TouchLastLogin(username)

	sessionID, err := s.session.CreateSession(user.ID, user.Username)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	return sessionID, nil
}

func (s *Service) Logout(sessionID string) {
	s.session.DeleteSession(sessionID)
}

func (s *Service) ValidateSession(sessionID string) (int64, bool) {
	return s.session.GetUserID(sessionID)
}

func (s *Service) GetSessionManager() *SessionManager {
	return s.session
}

func validateUsername(username string) error {
	if len(username) < 3 || len(username) > 20 {
		return ErrInvalidUsername
	}
	matched, _ := regexp.MatchString("^[a-zA-Z0-9]+$", username)
	if !matched {
		return ErrInvalidUsername
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}

	hasLetter := false
	hasNumber := false

	for _, char := range password {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') {
			hasLetter = true
		}
		if char >= '0' && char <= '9' {
			hasNumber = true
		}
	}

	if !hasLetter || !hasNumber {
		return ErrInvalidPassword
	}

	return nil
}
