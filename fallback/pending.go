package fallback

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PendingOperation is a write that succeeded against the fallback store
// but has not been confirmed applied to the primary. The on-disk field
// names are a compatibility surface.
type PendingOperation struct {
	ID        string          `json:"id"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// SyncStatus is the durability anchor for reconciliation: it is the only
// structure that must survive process restarts.
type SyncStatus struct {
	LastSync          *string            `json:"last_sync"`
	SyncDirection     string             `json:"sync_direction"`
	PendingOperations []PendingOperation `json:"pending_operations"`
}

func defaultSyncStatus() SyncStatus {
	return SyncStatus{PendingOperations: []PendingOperation{}}
}

func (s *Store) LoadSyncStatus() (SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSyncStatus()
}

// loadSyncStatus reads sync_status.json. Caller holds s.mu.
func (s *Store) loadSyncStatus() (SyncStatus, error) {
	status := defaultSyncStatus()
	if err := s.readDoc(syncStatusFile, &status); err != nil {
		return status, err
	}
	if status.PendingOperations == nil {
		status.PendingOperations = []PendingOperation{}
	}
	return status, nil
}

// AppendPending queues one operation for replay. Order of appends is the
// order of replay (FIFO).
func (s *Store) AppendPending(operation string, data interface{}) (PendingOperation, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return PendingOperation{}, fmt.Errorf("failed to encode pending operation payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status, err := s.loadSyncStatus()
	if err != nil {
		return PendingOperation{}, err
	}

	op := PendingOperation{
		ID:        uuid.NewString(),
		Operation: operation,
		Data:      payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status.PendingOperations = append(status.PendingOperations, op)

	if err := s.writeDoc(syncStatusFile, status); err != nil {
		return PendingOperation{}, err
	}
	return op, nil
}

// RemovePending drops one replayed (or operator-discarded) operation from
// the queue. Unknown ids are a no-op.
func (s *Store) RemovePending(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, err := s.loadSyncStatus()
	if err != nil {
		return err
	}

	kept := status.PendingOperations[:0]
	for _, op := range status.PendingOperations {
		if op.ID != id {
			kept = append(kept, op)
		}
	}
	status.PendingOperations = kept

	return s.writeDoc(syncStatusFile, status)
}

// MarkSynced records the completion time and direction of a
// reconciliation pass.
func (s *Store) MarkSynced(t time.Time, direction string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, err := s.loadSyncStatus()
	if err != nil {
		return err
	}

	ts := t.UTC().Format(time.RFC3339)
	status.LastSync = &ts
	status.SyncDirection = direction

	return s.writeDoc(syncStatusFile, status)
}
