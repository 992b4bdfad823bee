package persist

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"quizadmin/fallback"
	"quizadmin/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is a scriptable primary: availability can be toggled and
// specific usernames can be made to violate the unique constraint.
type fakeStore struct {
	mu            sync.Mutex
	available     bool
	nextID        int64
	users         []store.User
	sessions      []store.GameSession
	questions     []store.Question
	conflictUsers map[string]bool
	audits        []string
}

func newFakeStore(available bool) *fakeStore {
	return &fakeStore{available: available, conflictUsers: map[string]bool{}}
}

func (f *fakeStore) setAvailable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available = v
}

func (f *fakeStore) err() error {
	return fmt.Errorf("%w: fake store down", store.ErrUnavailable)
}

func (f *fakeStore) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return f.err()
	}
	return nil
}

func (f *fakeStore) CreateUser(u store.User) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return 0, f.err()
	}
	if f.conflictUsers[u.Username] {
		return 0, fmt.Errorf("%w: UNIQUE constraint failed: users.username", store.ErrConstraint)
	}
	for _, existing := range f.users {
		if existing.Username == u.Username {
			return 0, fmt.Errorf("%w: UNIQUE constraint failed: users.username", store.ErrConstraint)
		}
	}
	f.nextID++
	u.ID = f.nextID
	f.users = append(f.users, u)
	return u.ID, nil
}

func (f *fakeStore) GetUserByUsername(username string) (*store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return nil, f.err()
	}
	for i := range f.users {
		if f.users[i].Username == username {
			u := f.users[i]
			return &u, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListUsers() ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return nil, f.err()
	}
	out := make([]store.User, len(f.users))
	copy(out, f.users)
	return out, nil
}

func (f *fakeStore) SetUserActive(userID int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return f.err()
	}
	for i := range f.users {
		if f.users[i].ID == userID {
			f.users[i].Active = active
		}
	}
	return nil
}

func (f *fakeStore) TouchLastLogin(username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return f.err()
	}
	return nil
}

func (f *fakeStore) CreateQuestion(q store.Question) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return 0, f.err()
	}
	f.nextID++
	q.ID = f.nextID
	f.questions = append(f.questions, q)
	return q.ID, nil
}

func (f *fakeStore) UpdateQuestion(q store.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return f.err()
	}
	for i := range f.questions {
		if f.questions[i].ID == q.ID {
			f.questions[i] = q
		}
	}
	return nil
}

func (f *fakeStore) SetQuestionActive(questionID int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return f.err()
	}
	for i := range f.questions {
		if f.questions[i].ID == questionID {
			f.questions[i].Active = active
		}
	}
	return nil
}

func (f *fakeStore) ListQuestions() ([]store.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return nil, f.err()
	}
	out := make([]store.Question, len(f.questions))
	copy(out, f.questions)
	return out, nil
}

func (f *fakeStore) CreateSession(gs store.GameSession) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return 0, f.err()
	}
	f.nextID++
	gs.ID = f.nextID
	f.sessions = append(f.sessions, gs)
	return gs.ID, nil
}

func (f *fakeStore) RecentSessions(limit int) ([]store.GameSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return nil, f.err()
	}
	var out []store.GameSession
	for i := len(f.sessions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.sessions[i])
	}
	return out, nil
}

func (f *fakeStore) Stats() (store.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return store.Stats{}, f.err()
	}
	return store.Stats{
		TotalUsers:     len(f.users),
		TotalQuestions: len(f.questions),
		TotalSessions:  len(f.sessions),
	}, nil
}

func (f *fakeStore) RecordAudit(action, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return f.err()
	}
	f.audits = append(f.audits, action)
	return nil
}

func (f *fakeStore) Query(query string, args ...interface{}) ([]map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.available {
		return nil, f.err()
	}
	return []map[string]interface{}{{"ok": int64(1)}}, nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) usernames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, u := range f.users {
		names = append(names, u.Username)
	}
	return names
}

type recordingListener struct {
	mu    sync.Mutex
	modes []bool
	syncs []ReconcileResult
}

func (l *recordingListener) ModeChanged(fallbackMode bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modes = append(l.modes, fallbackMode)
}

func (l *recordingListener) SyncCompleted(result ReconcileResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.syncs = append(l.syncs, result)
}

func newTestCoordinator(t *testing.T, primary store.Store) (*Coordinator, *fallback.Store) {
	t.Helper()
	fb, err := fallback.NewStore(filepath.Join(t.TempDir(), "fallback_data"))
	require.NoError(t, err)
	return New(primary, fb, time.Second), fb
}

func TestInitialModeFollowsProbe(t *testing.T) {
	up, _ := newTestCoordinator(t, newFakeStore(true))
	assert.False(t, up.InFallbackMode())

	down, _ := newTestCoordinator(t, newFakeStore(false))
	assert.True(t, down.InFallbackMode())
}

func TestFailoverQueuesWrite(t *testing.T) {
	primary := newFakeStore(true)
	c, fb := newTestCoordinator(t, primary)

	listener := &recordingListener{}
	c.SetListener(listener)

	primary.setAvailable(false)

	id, queued, err := c.AddUser(store.User{Username: "alice", Role: store.RolePlayer})
	require.NoError(t, err)
	assert.True(t, queued)
	assert.Equal(t, int64(1), id)
	assert.True(t, c.InFallbackMode())

	// The fallback document holds the record immediately after the call.
	users, err := fb.LoadUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Username)

	// Exactly one pending operation references it.
	pending, err := c.PendingOperations()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, OpAddUser, pending[0].Operation)

	require.Len(t, listener.modes, 1)
	assert.True(t, listener.modes[0])
}

func TestConstraintViolationDoesNotDemote(t *testing.T) {
	primary := newFakeStore(true)
	c, _ := newTestCoordinator(t, primary)

	_, _, err := c.AddUser(store.User{Username: "alice"})
	require.NoError(t, err)

	_, queued, err := c.AddUser(store.User{Username: "alice"})
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrConstraint)
	assert.False(t, queued)
	assert.False(t, c.InFallbackMode())

	pending, err := c.PendingOperations()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReconcileReplaysFIFO(t *testing.T) {
	primary := newFakeStore(false)
	c, _ := newTestCoordinator(t, primary)

	for _, name := range []string{"first", "second", "third"} {
		_, queued, err := c.AddUser(store.User{Username: name})
		require.NoError(t, err)
		assert.True(t, queued)
	}

	primary.setAvailable(true)
	result := c.Reconcile()

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Synced)
	assert.Equal(t, 0, result.Pending)
	assert.Empty(t, result.Errors)
	assert.False(t, c.InFallbackMode())

	// Replay order matches record order, observable through the
	// primary's id assignment.
	assert.Equal(t, []string{"first", "second", "third"}, primary.usernames())
}

func TestReconcileIsIdempotent(t *testing.T) {
	primary := newFakeStore(false)
	c, _ := newTestCoordinator(t, primary)

	_, _, err := c.AddUser(store.User{Username: "alice"})
	require.NoError(t, err)

	primary.setAvailable(true)
	first := c.Reconcile()
	require.Equal(t, 1, first.Synced)

	second := c.Reconcile()
	assert.True(t, second.Success)
	assert.Equal(t, 0, second.Synced)
	assert.Equal(t, 0, second.Pending)

	// No double-apply.
	assert.Equal(t, []string{"alice"}, primary.usernames())
}

func TestReconcileRetainsFailedOperations(t *testing.T) {
	primary := newFakeStore(false)
	c, _ := newTestCoordinator(t, primary)

	for _, name := range []string{"ok1", "conflict", "ok2"} {
		_, _, err := c.AddUser(store.User{Username: name})
		require.NoError(t, err)
	}

	primary.setAvailable(true)
	primary.conflictUsers["conflict"] = true

	result := c.Reconcile()
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, 1, result.Pending)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], OpAddUser)

	// Partial progress: the conflicting operation stays queued, the
	// coordinator still promotes.
	assert.False(t, c.InFallbackMode())
	pending, err := c.PendingOperations()
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// The operator can resolve the conflict by discarding the entry.
	require.NoError(t, c.DropPending(pending[0].ID))
	pending, err = c.PendingOperations()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReconcileFailsWhilePrimaryDown(t *testing.T) {
	primary := newFakeStore(false)
	c, _ := newTestCoordinator(t, primary)

	_, _, err := c.AddUser(store.User{Username: "alice"})
	require.NoError(t, err)

	result := c.Reconcile()
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.Synced)
	assert.Equal(t, 1, result.Pending)
	assert.True(t, c.InFallbackMode())
}

func TestNoAutomaticPromotionOnReads(t *testing.T) {
	primary := newFakeStore(false)
	c, _ := newTestCoordinator(t, primary)
	require.True(t, c.InFallbackMode())

	// The primary comes back, but only an explicit Reconcile may
	// promote; reads keep serving from the fallback.
	primary.setAvailable(true)
	_, err := c.Users()
	require.NoError(t, err)
	assert.True(t, c.InFallbackMode())
}

func TestStatsNeverFails(t *testing.T) {
	c, _ := newTestCoordinator(t, newFakeStore(false))

	stats := c.GetStats()
	assert.Equal(t, store.Stats{}, stats)
}

func TestStatsFromFallbackDocuments(t *testing.T) {
	primary := newFakeStore(false)
	c, fb := newTestCoordinator(t, primary)

	_, _, err := c.AddUser(store.User{Username: "alice"})
	require.NoError(t, err)
	_, err = fb.AppendSession(store.GameSession{Score: 10})
	require.NoError(t, err)
	_, err = fb.AppendSession(store.GameSession{Score: 30})
	require.NoError(t, err)

	stats := c.GetStats()
	assert.Equal(t, 1, stats.TotalUsers)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.InDelta(t, 20.0, stats.AverageScore, 0.001)
}

func TestQueryReturnsEmptyInFallbackMode(t *testing.T) {
	c, _ := newTestCoordinator(t, newFakeStore(false))

	rows, err := c.Query("SELECT * FROM game_sessions")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestMirrorOnPrimarySuccess(t *testing.T) {
	primary := newFakeStore(true)
	c, fb := newTestCoordinator(t, primary)

	id, queued, err := c.AddUser(store.User{Username: "alice"})
	require.NoError(t, err)
	assert.False(t, queued)

	// The fallback mirror carries the primary-assigned id and no
	// pending operation is queued.
	users, err := fb.LoadUsers()
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, id, users[0].ID)

	pending, err := c.PendingOperations()
	require.NoError(t, err)
	assert.Empty(t, pending)
}
