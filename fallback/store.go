// Package fallback is the local JSON-document store used while the
// primary relational store is unreachable. One pretty-printed JSON array
// per entity kind, plus a sync_status document carrying the pending
// operation log. The document shapes are a compatibility surface: the
// backup/export endpoint and external tooling read these files directly.
package fallback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"quizadmin/store"
)

const (
	usersFile      = "users.json"
	questionsFile  = "questions.json"
	sessionsFile   = "game_sessions.json"
	userStatsFile  = "user_stats.json"
	syncStatusFile = "sync_status.json"
)

type Store struct {
	dir string

	// Single writer lock: every mutation is a whole-file read-modify-write,
	// so concurrent writers would otherwise race and lose updates.
	mu sync.Mutex
}

// NewStore opens (and on first use creates) the fallback document
// directory. Permissions are conservative: the documents hold credential
// hashes.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create fallback directory: %w", err)
	}

	s := &Store{dir: dir}
	defaults := map[string]interface{}{
		usersFile:      []store.User{},
		questionsFile:  []store.Question{},
		sessionsFile:   []store.GameSession{},
		userStatsFile:  []store.UserStats{},
		syncStatusFile: defaultSyncStatus(),
	}
	for name, doc := range defaults {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := s.writeDoc(name, doc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) LoadUsers() ([]store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var users []store.User
	if err := s.readDoc(usersFile, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// AppendUser mirrors a user record into the fallback document. A zero ID
// means the record never reached the primary; the fallback assigns
// max(id)+1. An existing record with the same username is replaced so the
// mirror stays consistent when the primary write already succeeded.
func (s *Store) AppendUser(u store.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []store.User
	if err := s.readDoc(usersFile, &users); err != nil {
		return 0, err
	}

	if u.ID == 0 {
		var maxID int64
		for _, existing := range users {
			if existing.ID > maxID {
				maxID = existing.ID
			}
		}
		u.ID = maxID + 1
	}

	replaced := false
	for i, existing := range users {
		if existing.Username == u.Username {
			users[i] = u
			replaced = true
			break
		}
	}
	if !replaced {
		users = append(users, u)
	}

	if err := s.writeDoc(usersFile, users); err != nil {
		return 0, err
	}
	return u.ID, nil
}

func (s *Store) LoadQuestions() ([]store.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var questions []store.Question
	if err := s.readDoc(questionsFile, &questions); err != nil {
		return nil, err
	}
	return questions, nil
}

func (s *Store) AppendQuestion(q store.Question) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var questions []store.Question
	if err := s.readDoc(questionsFile, &questions); err != nil {
		return 0, err
	}

	if q.ID == 0 {
		var maxID int64
		for _, existing := range questions {
			if existing.ID > maxID {
				maxID = existing.ID
			}
		}
		q.ID = maxID + 1
	}

	replaced := false
	for i, existing := range questions {
		if existing.ID == q.ID {
			questions[i] = q
			replaced = true
			break
		}
	}
	if !replaced {
		questions = append(questions, q)
	}

	if err := s.writeDoc(questionsFile, questions); err != nil {
		return 0, err
	}
	return q.ID, nil
}

func (s *Store) LoadSessions() ([]store.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sessions []store.GameSession
	if err := s.readDoc(sessionsFile, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *Store) AppendSession(gs store.GameSession) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sessions []store.GameSession
	if err := s.readDoc(sessionsFile, &sessions); err != nil {
		return 0, err
	}

	if gs.ID == 0 {
		var maxID int64
		for _, existing := range sessions {
			if existing.ID > maxID {
				maxID = existing.ID
			}
		}
		gs.ID = maxID + 1
	}
	sessions = append(sessions, gs)

	if err := s.writeDoc(sessionsFile, sessions); err != nil {
		return 0, err
	}

	if gs.UserID != nil {
		if err := s.bumpUserStats(*gs.UserID, gs.Score); err != nil {
			return 0, err
		}
	}
	return gs.ID, nil
}

// bumpUserStats keeps the per-user aggregate document in step with
// appended sessions. Caller holds s.mu.
func (s *Store) bumpUserStats(userID int64, score int) error {
	var stats []store.UserStats
	if err := s.readDoc(userStatsFile, &stats); err != nil {
		return err
	}

	found := false
	for i := range stats {
		if stats[i].UserID == userID {
			stats[i].GamesPlayed++
			stats[i].TotalScore += score
			if score > stats[i].BestScore {
				stats[i].BestScore = score
			}
			found = true
			break
		}
	}
	if !found {
		stats = append(stats, store.UserStats{
			UserID:      userID,
			GamesPlayed: 1,
			TotalScore:  score,
			BestScore:   score,
		})
	}
	return s.writeDoc(userStatsFile, stats)
}

// Export returns the raw contents of every fallback document, keyed by
// entity kind. Consumed by the backup/export endpoint.
func (s *Store) Export() (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]json.RawMessage)
	for key, name := range map[string]string{
		"users":         usersFile,
		"questions":     questionsFile,
		"game_sessions": sessionsFile,
		"user_stats":    userStatsFile,
		"sync_status":   syncStatusFile,
	} {
		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read fallback document %s: %w", name, err)
		}
		out[key] = json.RawMessage(data)
	}
	return out, nil
}

// readDoc loads one document into v. A missing file reads as the empty
// document. Caller holds s.mu.
func (s *Store) readDoc(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read fallback document %s: %w", name, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse fallback document %s: %w", name, err)
	}
	return nil
}

// writeDoc rewrites one document atomically (temp file + rename). The
// output is pretty-printed and leaves non-ASCII text unescaped so the
// documents stay readable for the export tooling. Caller holds s.mu.
func (s *Store) writeDoc(name string, v interface{}) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode fallback document %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write fallback document %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace fallback document %s: %w", name, err)
	}
	return nil
}
