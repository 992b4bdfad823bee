// Package persist holds the persistence coordinator: the component that
// decides, per logical data operation, whether to use the primary
// relational store or the local fallback documents, queues writes made
// while the primary was down, and replays them once it returns.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"quizadmin/fallback"
	"quizadmin/store"
)

// Operation names recorded in the pending log. Replay keys on these, so
// they are part of the on-disk compatibility surface.
const (
	OpAddUser           = "addUser"
	OpAddQuestion       = "addQuestion"
	OpUpdateQuestion    = "updateQuestion"
	OpSetUserActive     = "setUserActive"
	OpSetQuestionActive = "setQuestionActive"
	OpRecordSession     = "recordSession"
)

// activeChange is the payload for the two active-flag toggle operations.
type activeChange struct {
	ID     int64 `json:"id"`
	Active bool  `json:"is_active"`
}

// ReconcileResult reports one reconciliation pass.
type ReconcileResult struct {
	Success bool     `json:"success"`
	Synced  int      `json:"synced"`
	Pending int      `json:"pending"`
	Errors  []string `json:"errors"`
}

// Listener receives coordinator events. Used by the live status feed.
type Listener interface {
	ModeChanged(fallbackMode bool)
	SyncCompleted(result ReconcileResult)
}

// Coordinator composes the primary store and the fallback documents
// behind one interface. One instance per process, constructed explicitly
// and injected into the services that need it; the mode flag is
// per-process state.
type Coordinator struct {
	primary      store.Store
	fb           *fallback.Store
	probeTimeout time.Duration

	mu           sync.RWMutex
	fallbackMode bool
	listener     Listener

	logMu   sync.Mutex
	syncLog []LogEntry
}

// New builds a coordinator and determines the initial mode with a single
// bounded connectivity probe.
func New(primary store.Store, fb *fallback.Store, probeTimeout time.Duration) *Coordinator {
	c := &Coordinator{
		primary:      primary,
		fb:           fb,
		probeTimeout: probeTimeout,
	}
	if err := c.probe(); err != nil {
		c.fallbackMode = true
		c.logEvent("startup", fmt.Sprintf("primary unreachable, starting in fallback mode: %v", err))
	} else {
		c.logEvent("startup", "primary reachable, starting in primary mode")
	}
	return c
}

// SetListener registers the event listener. Must be called before the
// coordinator is shared across goroutines.
func (c *Coordinator) SetListener(l Listener) {
	c.listener = l
}

func (c *Coordinator) InFallbackMode() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fallbackMode
}

// probe checks primary connectivity within the configured bound, so a
// hung primary degrades the caller instead of hanging the request.
func (c *Coordinator) probe() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.probeTimeout)
	defer cancel()
	return c.primary.Ping(ctx)
}

// demote flips to fallback mode. The reverse transition only happens in
// Reconcile, never on a sporadic successful read, which would mask an
// unstable primary.
func (c *Coordinator) demote(cause error) {
	c.mu.Lock()
	already := c.fallbackMode
	c.fallbackMode = true
	c.mu.Unlock()

	if already {
		return
	}
	c.logEvent("demote", fmt.Sprintf("primary unavailable, switching to fallback mode: %v", cause))
	log.Printf("Coordinator: primary unavailable, switching to fallback mode: %v", cause)
	if c.listener != nil {
		c.listener.ModeChanged(true)
	}
}

// GetStats returns the dashboard aggregates. It never fails: if the
// primary is unreachable the fallback documents are scanned, and if both
// paths fail a zero-valued snapshot is returned so the dashboard can
// still render (with its degraded banner).
func (c *Coordinator) GetStats() store.Stats {
	if !c.InFallbackMode() {
		stats, err := c.primary.Stats()
		if err == nil {
			return stats
		}
		if errors.Is(err, store.ErrUnavailable) {
			c.demote(err)
		} else {
			c.logEvent("stats", fmt.Sprintf("primary stats failed: %v", err))
		}
	}

	return c.fallbackStats()
}

func (c *Coordinator) fallbackStats() store.Stats {
	var stats store.Stats

	users, err := c.fb.LoadUsers()
	if err != nil {
		c.logEvent("stats", fmt.Sprintf("fallback users scan failed: %v", err))
		return store.Stats{}
	}
	questions, err := c.fb.LoadQuestions()
	if err != nil {
		c.logEvent("stats", fmt.Sprintf("fallback questions scan failed: %v", err))
		return store.Stats{}
	}
	sessions, err := c.fb.LoadSessions()
	if err != nil {
		c.logEvent("stats", fmt.Sprintf("fallback sessions scan failed: %v", err))
		return store.Stats{}
	}

	stats.TotalUsers = len(users)
	stats.TotalQuestions = len(questions)
	stats.TotalSessions = len(sessions)
	if len(sessions) > 0 {
		total := 0
		for _, gs := range sessions {
			total += gs.Score
		}
		stats.AverageScore = float64(total) / float64(len(sessions))
	}
	return stats
}

// Query is the raw SQL passthrough for the admin console. The fallback
// store cannot execute arbitrary relational queries, so in fallback mode
// it returns an empty result; the enumerable reads below are the
// fallback-capable operation set.
func (c *Coordinator) Query(query string, args ...interface{}) ([]map[string]interface{}, error) {
	if c.InFallbackMode() {
		c.logEvent("query", "raw query skipped in fallback mode")
		return []map[string]interface{}{}, nil
	}

	rows, err := c.primary.Query(query, args...)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			c.demote(err)
			return []map[string]interface{}{}, nil
		}
		return nil, err
	}
	return rows, nil
}

func (c *Coordinator) Users() ([]store.User, error) {
	if !c.InFallbackMode() {
		users, err := c.primary.ListUsers()
		if err == nil {
			return users, nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			return nil, err
		}
		c.demote(err)
	}
	return c.fb.LoadUsers()
}

func (c *Coordinator) UserByUsername(username string) (*store.User, error) {
	if !c.InFallbackMode() {
		user, err := c.primary.GetUserByUsername(username)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			return nil, err
		}
		c.demote(err)
	}

	users, err := c.fb.LoadUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].Username == username {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (c *Coordinator) Questions() ([]store.Question, error) {
	if !c.InFallbackMode() {
		questions, err := c.primary.ListQuestions()
		if err == nil {
			return questions, nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			return nil, err
		}
		c.demote(err)
	}
	return c.fb.LoadQuestions()
}

func (c *Coordinator) RecentSessions(limit int) ([]store.GameSession, error) {
	if !c.InFallbackMode() {
		sessions, err := c.primary.RecentSessions(limit)
		if err == nil {
			return sessions, nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			return nil, err
		}
		c.demote(err)
	}

	sessions, err := c.fb.LoadSessions()
	if err != nil {
		return nil, err
	}
	// Newest first, matching the primary read.
	out := make([]store.GameSession, 0, limit)
	for i := len(sessions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, sessions[i])
	}
	return out, nil
}

// TouchLastLogin is a best-effort bookkeeping write. It is not queued for
// replay: a stale last_login is not worth a pending-log entry.
func (c *Coordinator) TouchLastLogin(username string) {
	if c.InFallbackMode() {
		return
	}
	if err := c.primary.TouchLastLogin(username); err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			c.demote(err)
			return
		}
		c.logEvent("touchLastLogin", fmt.Sprintf("update failed: %v", err))
	}
}

// AddUser writes a user record. Returns the assigned id and whether the
// write was queued for later sync instead of reaching the primary.
// Constraint violations pass through unchanged and never demote.
func (c *Coordinator) AddUser(u store.User) (int64, bool, error) {
	if !c.InFallbackMode() {
		id, err := c.primary.CreateUser(u)
		if err == nil {
			u.ID = id
			c.mirrorUser(u)
			return id, false, nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			return 0, false, err
		}
		c.demote(err)
	}

	u.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	id, err := c.fb.AppendUser(u)
	if err != nil {
		return 0, false, fmt.Errorf("failed to write user to fallback store: %w", err)
	}
	u.ID = id

	if _, err := c.fb.AppendPending(OpAddUser, u); err != nil {
		return 0, false, fmt.Errorf("failed to queue user for sync: %w", err)
	}
	c.logEvent(OpAddUser, fmt.Sprintf("user %q queued for sync (fallback id %d)", u.Username, id))
	return id, true, nil
}

func (c *Coordinator) AddQuestion(q store.Question) (int64, bool, error) {
	if !c.InFallbackMode() {
		id, err := c.primary.CreateQuestion(q)
		if err == nil {
			q.ID = id
			c.mirrorQuestion(q)
			return id, false, nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			return 0, false, err
		}
		c.demote(err)
	}

	q.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	id, err := c.fb.AppendQuestion(q)
	if err != nil {
		return 0, false, fmt.Errorf("failed to write question to fallback store: %w", err)
	}
	q.ID = id

	if _, err := c.fb.AppendPending(OpAddQuestion, q); err != nil {
		return 0, false, fmt.Errorf("failed to queue question for sync: %w", err)
	}
	c.logEvent(OpAddQuestion, fmt.Sprintf("question queued for sync (fallback id %d)", id))
	return id, true, nil
}

func (c *Coordinator) UpdateQuestion(q store.Question) (bool, error) {
	if !c.InFallbackMode() {
		err := c.primary.UpdateQuestion(q)
		if err == nil {
			c.mirrorQuestion(q)
			return false, nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			return false, err
		}
		c.demote(err)
	}

	if _, err := c.fb.AppendQuestion(q); err != nil {
		return false, fmt.Errorf("failed to update question in fallback store: %w", err)
	}
	if _, err := c.fb.AppendPending(OpUpdateQuestion, q); err != nil {
		return false, fmt.Errorf("failed to queue question update for sync: %w", err)
	}
	c.logEvent(OpUpdateQuestion, fmt.Sprintf("question %d update queued for sync", q.ID))
	return true, nil
}

func (c *Coordinator) SetUserActive(userID int64, active bool) (bool, error) {
	if !c.InFallbackMode() {
		err := c.primary.SetUserActive(userID, active)
		if err == nil {
			c.mirrorUserActive(userID, active)
			return false, nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			return false, err
		}
		c.demote(err)
	}

	c.mirrorUserActive(userID, active)
	if _, err := c.fb.AppendPending(OpSetUserActive, activeChange{ID: userID, Active: active}); err != nil {
		return false, fmt.Errorf("failed to queue user toggle for sync: %w", err)
	}
	c.logEvent(OpSetUserActive, fmt.Sprintf("user %d active=%v queued for sync", userID, active))
	return true, nil
}

func (c *Coordinator) SetQuestionActive(questionID int64, active bool) (bool, error) {
	if !c.InFallbackMode() {
		err := c.primary.SetQuestionActive(questionID, active)
		if err == nil {
			c.mirrorQuestionActive(questionID, active)
			return false, nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			return false, err
		}
		c.demote(err)
	}

	c.mirrorQuestionActive(questionID, active)
	if _, err := c.fb.AppendPending(OpSetQuestionActive, activeChange{ID: questionID, Active: active}); err != nil {
		return false, fmt.Errorf("failed to queue question toggle for sync: %w", err)
	}
	c.logEvent(OpSetQuestionActive, fmt.Sprintf("question %d active=%v queued for sync", questionID, active))
	return true, nil
}

func (c *Coordinator) RecordSession(gs store.GameSession) (int64, bool, error) {
	if !c.InFallbackMode() {
		id, err := c.primary.CreateSession(gs)
		if err == nil {
			gs.ID = id
			if _, mirrorErr := c.fb.AppendSession(gs); mirrorErr != nil {
				c.logEvent("mirror", fmt.Sprintf("session mirror failed: %v", mirrorErr))
			}
			return id, false, nil
		}
		if !errors.Is(err, store.ErrUnavailable) {
			return 0, false, err
		}
		c.demote(err)
	}

	gs.StartedAt = time.Now().UTC().Format(time.RFC3339)
	id, err := c.fb.AppendSession(gs)
	if err != nil {
		return 0, false, fmt.Errorf("failed to write session to fallback store: %w", err)
	}
	gs.ID = id

	if _, err := c.fb.AppendPending(OpRecordSession, gs); err != nil {
		return 0, false, fmt.Errorf("failed to queue session for sync: %w", err)
	}
	c.logEvent(OpRecordSession, fmt.Sprintf("session queued for sync (fallback id %d)", id))
	return id, true, nil
}

// mirrorUser keeps the fallback document in step with a successful
// primary write, so reconciliation state stays consistent even after a
// mid-session recovery. Mirror failures are logged, never surfaced.
func (c *Coordinator) mirrorUser(u store.User) {
	if _, err := c.fb.AppendUser(u); err != nil {
		c.logEvent("mirror", fmt.Sprintf("user mirror failed: %v", err))
	}
}

func (c *Coordinator) mirrorQuestion(q store.Question) {
	if _, err := c.fb.AppendQuestion(q); err != nil {
		c.logEvent("mirror", fmt.Sprintf("question mirror failed: %v", err))
	}
}

func (c *Coordinator) mirrorUserActive(userID int64, active bool) {
	users, err := c.fb.LoadUsers()
	if err != nil {
		c.logEvent("mirror", fmt.Sprintf("user toggle mirror failed: %v", err))
		return
	}
	for _, u := range users {
		if u.ID == userID {
			u.Active = active
			c.mirrorUser(u)
			return
		}
	}
}

func (c *Coordinator) mirrorQuestionActive(questionID int64, active bool) {
	questions, err := c.fb.LoadQuestions()
	if err != nil {
		c.logEvent("mirror", fmt.Sprintf("question toggle mirror failed: %v", err))
		return
	}
	for _, q := range questions {
		if q.ID == questionID {
			q.Active = active
			c.mirrorQuestion(q)
			return
		}
	}
}

// SyncStatus returns the durable reconciliation state: last sync time,
// direction, and the queued operations.
func (c *Coordinator) SyncStatus() (fallback.SyncStatus, error) {
	return c.fb.LoadSyncStatus()
}

// PendingOperations returns the queued writes, oldest first.
func (c *Coordinator) PendingOperations() ([]fallback.PendingOperation, error) {
	status, err := c.fb.LoadSyncStatus()
	if err != nil {
		return nil, err
	}
	return status.PendingOperations, nil
}

// DropPending discards one queued operation without replaying it. This is
// the operator's resolution path for replay conflicts (for example a
// username created independently in both stores).
func (c *Coordinator) DropPending(id string) error {
	if err := c.fb.RemovePending(id); err != nil {
		return err
	}
	c.logEvent("dropPending", fmt.Sprintf("pending operation %s discarded by operator", id))
	return nil
}

// Reconcile replays the pending operation log into the primary store and,
// if the primary answered the probe, promotes back to primary mode. It is
// only ever caller-triggered. Replay is FIFO with partial progress:
// failed operations stay queued for the next pass.
func (c *Coordinator) Reconcile() ReconcileResult {
	if err := c.probe(); err != nil {
		c.logEvent("reconcile", fmt.Sprintf("primary still unreachable: %v", err))
		pending, _ := c.PendingOperations()
		return ReconcileResult{
			Success: false,
			Pending: len(pending),
			Errors:  []string{fmt.Sprintf("primary still unreachable: %v", err)},
		}
	}

	status, err := c.fb.LoadSyncStatus()
	if err != nil {
		c.logEvent("reconcile", fmt.Sprintf("cannot read pending log: %v", err))
		return ReconcileResult{Success: false, Errors: []string{err.Error()}}
	}

	result := ReconcileResult{Success: true, Errors: []string{}}
	for _, op := range status.PendingOperations {
		if err := c.replay(op); err != nil {
			msg := fmt.Sprintf("%s %s: %v", op.Operation, op.ID, err)
			result.Errors = append(result.Errors, msg)
			c.logEvent("replayFailure", msg)
			continue
		}
		if err := c.fb.RemovePending(op.ID); err != nil {
			// The operation reached the primary but is still queued; the
			// next pass may re-apply it. Best-effort, surfaced to the
			// operator.
			msg := fmt.Sprintf("%s %s applied but not dequeued: %v", op.Operation, op.ID, err)
			result.Errors = append(result.Errors, msg)
			c.logEvent("replayFailure", msg)
			continue
		}
		result.Synced++
	}

	remaining, _ := c.PendingOperations()
	result.Pending = len(remaining)

	c.mu.Lock()
	wasFallback := c.fallbackMode
	c.fallbackMode = false
	c.mu.Unlock()

	if err := c.fb.MarkSynced(time.Now(), "fallback_to_primary"); err != nil {
		c.logEvent("reconcile", fmt.Sprintf("failed to record sync time: %v", err))
	}
	if err := c.primary.RecordAudit("reconcile", fmt.Sprintf("synced=%d pending=%d", result.Synced, result.Pending)); err != nil {
		c.logEvent("reconcile", fmt.Sprintf("audit write failed: %v", err))
	}

	c.logEvent("reconcile", fmt.Sprintf("completed: synced=%d pending=%d errors=%d", result.Synced, result.Pending, len(result.Errors)))
	if wasFallback && c.listener != nil {
		c.listener.ModeChanged(false)
	}
	if c.listener != nil {
		c.listener.SyncCompleted(result)
	}
	return result
}

// replay applies one queued operation against the primary store. The
// fallback-assigned id is dropped; the primary assigns its own.
func (c *Coordinator) replay(op fallback.PendingOperation) error {
	switch op.Operation {
	case OpAddUser:
		var u store.User
		if err := json.Unmarshal(op.Data, &u); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		_, err := c.primary.CreateUser(u)
		return err
	case OpAddQuestion:
		var q store.Question
		if err := json.Unmarshal(op.Data, &q); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		_, err := c.primary.CreateQuestion(q)
		return err
	case OpUpdateQuestion:
		var q store.Question
		if err := json.Unmarshal(op.Data, &q); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		return c.primary.UpdateQuestion(q)
	case OpSetUserActive:
		var ch activeChange
		if err := json.Unmarshal(op.Data, &ch); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		return c.primary.SetUserActive(ch.ID, ch.Active)
	case OpSetQuestionActive:
		var ch activeChange
		if err := json.Unmarshal(op.Data, &ch); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		return c.primary.SetQuestionActive(ch.ID, ch.Active)
	case OpRecordSession:
		var gs store.GameSession
		if err := json.Unmarshal(op.Data, &gs); err != nil {
			return fmt.Errorf("bad payload: %w", err)
		}
		// Fallback-assigned user ids have no meaning in the primary.
		gs.UserID = nil
		_, err := c.primary.CreateSession(gs)
		return err
	default:
		return fmt.Errorf("unknown operation %q", op.Operation)
	}
}
