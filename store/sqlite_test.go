package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = EnsureSchema(s.DB(), "admin", "s3cret-admin")
	require.NoError(t, err)
	return s
}

func TestOpenBadPathIsUnavailable(t *testing.T) {
	_, err := NewSQLiteStore(filepath.Join(t.TempDir(), "missing", "nested", "test.db"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateUser(User{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "hash",
		Role:         RolePlayer,
		Active:       true,
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	user, err := s.GetUserByUsername("alice")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, RolePlayer, user.Role)
	assert.True(t, user.Active)
	assert.NotEmpty(t, user.CreatedAt)
	assert.Empty(t, user.LastLogin)

	missing, err := s.GetUserByUsername("nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDuplicateUsernameIsConstraint(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateUser(User{Username: "alice", PasswordHash: "h", Role: RolePlayer})
	require.NoError(t, err)

	_, err = s.CreateUser(User{Username: "alice", PasswordHash: "h", Role: RolePlayer})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConstraint)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestInvalidDifficultyIsConstraint(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateQuestion(Question{
		Prompt:        "What is 2+2?",
		CorrectAnswer: "4",
		WrongAnswer1:  "3",
		WrongAnswer2:  "5",
		WrongAnswer3:  "22",
		Difficulty:    "impossible",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConstraint)
}

func TestStatsAggregates(t *testing.T) {
	s := newTestStore(t)

	uid, err := s.CreateUser(User{Username: "alice", PasswordHash: "h", Role: RolePlayer, Active: true})
	require.NoError(t, err)

	for _, score := range []int{10, 20, 30} {
		_, err := s.CreateSession(GameSession{UserID: &uid, Score: score, QuestionsAnswered: 5, CorrectAnswers: 3})
		require.NoError(t, err)
	}

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalUsers) // seeded admin + alice
	assert.Equal(t, 3, stats.TotalSessions)
	assert.InDelta(t, 20.0, stats.AverageScore, 0.001)
}

func TestRecentSessionsNewestFirst(t *testing.T) {
	s := newTestStore(t)

	for _, score := range []int{1, 2, 3} {
		_, err := s.CreateSession(GameSession{Score: score})
		require.NoError(t, err)
	}

	sessions, err := s.RecentSessions(2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, 3, sessions[0].Score)
	assert.Equal(t, 2, sessions[1].Score)
}

func TestQueryPassthrough(t *testing.T) {
	s := newTestStore(t)

	rows, err := s.Query("SELECT username, role FROM users WHERE role = ?", RoleAdmin)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "admin", rows[0]["username"])
	assert.Equal(t, RoleAdmin, rows[0]["role"])
}

func TestPingHonorsContext(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Ping(ctx))

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Ping(expired)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}
