// Package quiz is the admin service layer: input validation and view
// assembly between the HTTP handlers and the persistence coordinator.
// Handlers never talk to either store directly.
package quiz

import (
	"errors"

	"quizadmin/auth"
	"quizadmin/persist"
	"quizadmin/store"
)

var (
	ErrEmptyPrompt       = errors.New("question prompt must not be empty")
	ErrMissingAnswers    = errors.New("question needs one correct and three wrong answers")
	ErrInvalidDifficulty = errors.New("difficulty must be easy, medium or hard")
	ErrInvalidScore      = errors.New("score and answer counts must not be negative")
)

type Service struct {
	coord *persist.Coordinator
}

func NewService(coord *persist.Coordinator) *Service {
	return &Service{coord: coord}
}

// DashboardView is what the admin landing page renders. It is always
// available: stats degrade to zeros rather than failing.
type DashboardView struct {
	Stats        store.Stats `json:"stats"`
	DegradedMode bool        `json:"degradedMode"`
	PendingOps   int         `json:"pendingOps"`
}

func (s *Service) Dashboard() DashboardView {
	view := DashboardView{
		Stats:        s.coord.GetStats(),
		DegradedMode: s.coord.InFallbackMode(),
	}
	if pending, err := s.coord.PendingOperations(); err == nil {
		view.PendingOps = len(pending)
	}
	return view
}

func (s *Service) CreateQuestion(q store.Question) (int64, bool, error) {
	q = sanitizeQuestion(q)
	if err := validateQuestion(q); err != nil {
		return 0, false, err
	}
	q.Active = true
	return s.coord.AddQuestion(q)
}

func (s *Service) UpdateQuestion(q store.Question) (bool, error) {
	q = sanitizeQuestion(q)
	if err := validateQuestion(q); err != nil {
		return false, err
	}
	return s.coord.UpdateQuestion(q)
}

func (s *Service) SetQuestionActive(questionID int64, active bool) (bool, error) {
	return s.coord.SetQuestionActive(questionID, active)
}

func (s *Service) ListQuestions() ([]store.Question, error) {
	return s.coord.Questions()
}

func (s *Service) ListUsers() ([]store.User, error) {
	users, err := s.coord.Users()
	if err != nil {
		return nil, err
	}
	// Credential hashes never leave the service layer.
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

func (s *Service) SetUserActive(userID int64, active bool) (bool, error) {
	return s.coord.SetUserActive(userID, active)
}

// RecordScore ingests one finished game session.
func (s *Service) RecordScore(gs store.GameSession) (int64, bool, error) {
	if gs.Score < 0 || gs.QuestionsAnswered < 0 || gs.CorrectAnswers < 0 ||
		gs.CorrectAnswers > gs.QuestionsAnswered {
		return 0, false, ErrInvalidScore
	}
	return s.coord.RecordSession(gs)
}

func (s *Service) RecentSessions(limit int) ([]store.GameSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.coord.RecentSessions(limit)
}

func sanitizeQuestion(q store.Question) store.Question {
	q.Prompt = auth.SanitizeString(q.Prompt)
	q.CorrectAnswer = auth.SanitizeString(q.CorrectAnswer)
	q.WrongAnswer1 = auth.SanitizeString(q.WrongAnswer1)
	q.WrongAnswer2 = auth.SanitizeString(q.WrongAnswer2)
	q.WrongAnswer3 = auth.SanitizeString(q.WrongAnswer3)
	q.Category = auth.SanitizeString(q.Category)
	if q.Category == "" {
		q.Category = "general"
	}
	if q.Difficulty == "" {
		q.Difficulty = store.DifficultyMedium
	}
	return q
}

func validateQuestion(q store.Question) error {
	if q.Prompt == "" {
		return ErrEmptyPrompt
	}
	if q.CorrectAnswer == "" || q.WrongAnswer1 == "" || q.WrongAnswer2 == "" || q.WrongAnswer3 == "" {
		return ErrMissingAnswers
	}
	if !store.ValidDifficulty(q.Difficulty) {
		return ErrInvalidDifficulty
	}
	return nil
}
