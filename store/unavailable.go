package store

import (
	"context"
	"fmt"
)

// Unavailable is a Store whose every operation fails with
// ErrUnavailable. It stands in for a primary that could not even be
// opened at startup, so the coordinator still has a probe target and the
// process can serve from the fallback documents.
type Unavailable struct{}

var _ Store = Unavailable{}

func (Unavailable) err() error {
	return fmt.Errorf("%w: store not opened", ErrUnavailable)
}

func (u Unavailable) Ping(ctx context.Context) error { return u.err() }

func (u Unavailable) CreateUser(User) (int64, error)             { return 0, u.err() }
func (u Unavailable) GetUserByUsername(string) (*User, error)    { return nil, u.err() }
func (u Unavailable) ListUsers() ([]User, error)                 { return nil, u.err() }
func (u Unavailable) SetUserActive(int64, bool) error            { return u.err() }
func (u Unavailable) TouchLastLogin(string) error                { return u.err() }
func (u Unavailable) CreateQuestion(Question) (int64, error)     { return 0, u.err() }
func (u Unavailable) UpdateQuestion(Question) error              { return u.err() }
func (u Unavailable) SetQuestionActive(int64, bool) error        { return u.err() }
func (u Unavailable) ListQuestions() ([]Question, error)         { return nil, u.err() }
func (u Unavailable) CreateSession(GameSession) (int64, error)   { return 0, u.err() }
func (u Unavailable) RecentSessions(int) ([]GameSession, error)  { return nil, u.err() }
func (u Unavailable) Stats() (Stats, error)                      { return Stats{}, u.err() }
func (u Unavailable) RecordAudit(string, string) error           { return u.err() }
func (u Unavailable) Close() error                               { return nil }

func (u Unavailable) Query(string, ...interface{}) ([]map[string]interface{}, error) {
	return nil, u.err()
}
