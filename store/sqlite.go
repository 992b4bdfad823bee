package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", classify(err))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", classify(err))
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying handle for the schema initializer.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", classify(err))
	}
	return nil
}

func (s *SQLiteStore) CreateUser(u User) (int64, error) {
	result, err := s.db.Exec(
		"INSERT INTO users (username, email, password_hash, role, is_active) VALUES (?, ?, ?, ?, ?)",
		u.Username, u.Email, u.PasswordHash, u.Role, boolToInt(u.Active),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create user: %w", classify(err))
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	user := &User{}
	var active int
	var email, lastLogin sql.NullString
	err := s.db.QueryRow(
		"SELECT id, username, email, password_hash, role, is_active, created_at, last_login FROM users WHERE username = ?",
		username,
	).Scan(&user.ID, &user.Username, &email, &user.PasswordHash, &user.Role, &active, &user.CreatedAt, &lastLogin)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", classify(err))
	}
	user.Email = email.String
	user.LastLogin = lastLogin.String
	user.Active = active == 1
	return user, nil
}

func (s *SQLiteStore) ListUsers() ([]User, error) {
	rows, err := s.db.Query(
		"SELECT id, username, email, password_hash, role, is_active, created_at, last_login FROM users ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", classify(err))
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		var active int
		var email, lastLogin sql.NullString
		if err := rows.Scan(&u.ID, &u.Username, &email, &u.PasswordHash, &u.Role, &active, &u.CreatedAt, &lastLogin); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Email = email.String
		u.LastLogin = lastLogin.String
		u.Active = active == 1
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLiteStore) SetUserActive(userID int64, active bool) error {
	_, err := s.db.Exec(
		"UPDATE users SET is_active = ? WHERE id = ?",
		boolToInt(active), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user active flag: %w", classify(err))
	}
	return nil
}

func (s *SQLiteStore) TouchLastLogin(username string) error {
	_, err := s.db.Exec(
		"UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE username = ?",
		username,
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", classify(err))
	}
	return nil
}

func (s *SQLiteStore) CreateQuestion(q Question) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO questions (prompt, correct_answer, wrong_answer1, wrong_answer2, wrong_answer3, category, difficulty, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.Prompt, q.CorrectAnswer, q.WrongAnswer1, q.WrongAnswer2, q.WrongAnswer3, q.Category, q.Difficulty, boolToInt(q.Active),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create question: %w", classify(err))
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateQuestion(q Question) error {
	_, err := s.db.Exec(
		`UPDATE questions SET prompt = ?, correct_answer = ?, wrong_answer1 = ?, wrong_answer2 = ?, wrong_answer3 = ?, category = ?, difficulty = ?
		 WHERE id = ?`,
		q.Prompt, q.CorrectAnswer, q.WrongAnswer1, q.WrongAnswer2, q.WrongAnswer3, q.Category, q.Difficulty, q.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update question: %w", classify(err))
	}
	return nil
}

func (s *SQLiteStore) SetQuestionActive(questionID int64, active bool) error {
	_, err := s.db.Exec(
		"UPDATE questions SET is_active = ? WHERE id = ?",
		boolToInt(active), questionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update question active flag: %w", classify(err))
	}
	return nil
}

func (s *SQLiteStore) ListQuestions() ([]Question, error) {
	rows, err := s.db.Query(
		`SELECT id, prompt, correct_answer, wrong_answer1, wrong_answer2, wrong_answer3, category, difficulty, is_active, created_at
		 FROM questions ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", classify(err))
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		var active int
		if err := rows.Scan(&q.ID, &q.Prompt, &q.CorrectAnswer, &q.WrongAnswer1, &q.WrongAnswer2, &q.WrongAnswer3, &q.Category, &q.Difficulty, &active, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		q.Active = active == 1
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *SQLiteStore) CreateSession(gs GameSession) (int64, error) {
	var endedAt interface{}
	if gs.EndedAt != "" {
		endedAt = gs.EndedAt
	}
	result, err := s.db.Exec(
		"INSERT INTO game_sessions (user_id, score, questions_answered, correct_answers, ended_at) VALUES (?, ?, ?, ?, ?)",
		gs.UserID, gs.Score, gs.QuestionsAnswered, gs.CorrectAnswers, endedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create session: %w", classify(err))
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) RecentSessions(limit int) ([]GameSession, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, score, questions_answered, correct_answers, started_at, ended_at
		 FROM game_sessions ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", classify(err))
	}
	defer rows.Close()

	var sessions []GameSession
	for rows.Next() {
		var gs GameSession
		var userID sql.NullInt64
		var endedAt sql.NullString
		if err := rows.Scan(&gs.ID, &userID, &gs.Score, &gs.QuestionsAnswered, &gs.CorrectAnswers, &gs.StartedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if userID.Valid {
			id := userID.Int64
			gs.UserID = &id
		}
		gs.EndedAt = endedAt.String
		sessions = append(sessions, gs)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) Stats() (Stats, error) {
	var stats Stats
	err := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM questions),
			(SELECT COUNT(*) FROM game_sessions),
			(SELECT COALESCE(AVG(score), 0) FROM game_sessions)
	`).Scan(&stats.TotalUsers, &stats.TotalQuestions, &stats.TotalSessions, &stats.AverageScore)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to compute stats: %w", classify(err))
	}
	return stats, nil
}

func (s *SQLiteStore) RecordAudit(action, detail string) error {
	_, err := s.db.Exec(
		"INSERT INTO audit_log (action, detail) VALUES (?, ?)",
		action, detail,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", classify(err))
	}
	return nil
}

func (s *SQLiteStore) Query(query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run query: %w", classify(err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
