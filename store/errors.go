package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnavailable marks connectivity-class failures: the database could
	// not be reached or the statement never executed. The coordinator
	// demotes to fallback mode on this error and on nothing else.
	ErrUnavailable = errors.New("primary store unavailable")

	// ErrConstraint marks logical rejections (unique/check/not-null
	// violations). These must pass through to the caller unchanged and
	// never trigger a mode transition.
	ErrConstraint = errors.New("constraint violation")

	// ErrManualMigrationRequired is returned by the schema initializer when
	// it finds a legacy users table that already holds rows. Recreating it
	// would destroy data, so an operator has to migrate by hand.
	ErrManualMigrationRequired = errors.New("manual migration required: legacy users table has rows")
)

// classify wraps raw driver errors with the sentinel the coordinator keys
// on. sqlite has no wire protocol, so connectivity loss shows up as failed
// opens, I/O errors, or timeouts rather than a dropped connection.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"),
		strings.Contains(msg, "CHECK constraint failed"),
		strings.Contains(msg, "NOT NULL constraint failed"),
		strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %v", ErrConstraint, err)
	case strings.Contains(msg, "unable to open database"),
		strings.Contains(msg, "disk I/O error"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database disk image is malformed"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "connection refused"):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
