package persist

import (
	"time"
)

// syncLogCap bounds the in-memory diagnostic trail. Old entries are
// discarded; the trail is operator visibility, not an audit record.
const syncLogCap = 200

// LogEntry is one line of the coordinator's diagnostic trail.
type LogEntry struct {
	Time   string `json:"time"`
	Event  string `json:"event"`
	Detail string `json:"detail"`
}

func (c *Coordinator) logEvent(event, detail string) {
	c.logMu.Lock()
	defer c.logMu.Unlock()

	c.syncLog = append(c.syncLog, LogEntry{
		Time:   time.Now().UTC().Format(time.RFC3339),
		Event:  event,
		Detail: detail,
	})
	if len(c.syncLog) > syncLogCap {
		c.syncLog = c.syncLog[len(c.syncLog)-syncLogCap:]
	}
}

// SyncLog returns a copy of the diagnostic trail, oldest first.
func (c *Coordinator) SyncLog() []LogEntry {
	c.logMu.Lock()
	defer c.logMu.Unlock()

	out := make([]LogEntry, len(c.syncLog))
	copy(out, c.syncLog)
	return out
}
