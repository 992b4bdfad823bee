package store

import (
	"context"
)

// Store is the primary relational store as seen by the persistence
// coordinator. Implementations must classify failures so the coordinator
// can tell connectivity loss (ErrUnavailable) apart from logical
// rejections (ErrConstraint).
type Store interface {
	Ping(ctx context.Context) error

	CreateUser(u User) (int64, error)
	GetUserByUsername(username string) (*User, error)
	ListUsers() ([]User, error)
	SetUserActive(userID int64, active bool) error
	TouchLastLogin(username string) error

	CreateQuestion(q Question) (int64, error)
	UpdateQuestion(q Question) error
	SetQuestionActive(questionID int64, active bool) error
	ListQuestions() ([]Question, error)

	CreateSession(gs GameSession) (int64, error)
	RecentSessions(limit int) ([]GameSession, error)

	Stats() (Stats, error)
	RecordAudit(action, detail string) error

	// Query runs an arbitrary parameterized read for the admin passthrough.
	Query(query string, args ...interface{}) ([]map[string]interface{}, error)

	Close() error
}

type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
	Role         string `json:"role"`
	Active       bool   `json:"is_active"`
	CreatedAt    string `json:"created_at"`
	LastLogin    string `json:"last_login,omitempty"`
}

const (
	RoleAdmin  = "admin"
	RolePlayer = "player"
)

type Question struct {
	ID            int64  `json:"id"`
	Prompt        string `json:"prompt"`
	CorrectAnswer string `json:"correct_answer"`
	WrongAnswer1  string `json:"wrong_answer1"`
	WrongAnswer2  string `json:"wrong_answer2"`
	WrongAnswer3  string `json:"wrong_answer3"`
	Category      string `json:"category"`
	Difficulty    string `json:"difficulty"`
	Active        bool   `json:"is_active"`
	CreatedAt     string `json:"created_at"`
}

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

func ValidDifficulty(d string) bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

type GameSession struct {
	ID                int64  `json:"id"`
	UserID            *int64 `json:"user_id"`
	Score             int    `json:"score"`
	QuestionsAnswered int    `json:"questions_answered"`
	CorrectAnswers    int    `json:"correct_answers"`
	StartedAt         string `json:"started_at"`
	EndedAt           string `json:"ended_at,omitempty"`
}

// UserStats is the per-user aggregate kept alongside the fallback
// documents for the backup/export surface.
type UserStats struct {
	UserID      int64 `json:"user_id"`
	GamesPlayed int   `json:"games_played"`
	TotalScore  int   `json:"total_score"`
	BestScore   int   `json:"best_score"`
}

// Stats is the dashboard aggregate snapshot.
type Stats struct {
	TotalUsers     int     `json:"totalUsers"`
	TotalQuestions int     `json:"totalQuestions"`
	TotalSessions  int     `json:"totalSessions"`
	AverageScore   float64 `json:"averageScore"`
}
