package store

import (
	"database/sql"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"
)

// StatementResult reports the outcome of one schema initialization step.
// Individual step failures are best-effort (recorded, not fatal) because
// older installations have partially-applied schemas.
type StatementResult struct {
	Name    string
	Applied bool
	Err     error
}

var schemaStatements = []struct {
	name string
	sql  string
}{
	{"create_users", `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    email TEXT,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL DEFAULT 'player',
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    last_login DATETIME
)`},
	{"create_questions", `
CREATE TABLE IF NOT EXISTS questions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    prompt TEXT NOT NULL,
    correct_answer TEXT NOT NULL,
    wrong_answer1 TEXT NOT NULL,
    wrong_answer2 TEXT NOT NULL,
    wrong_answer3 TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT 'general',
    difficulty TEXT NOT NULL DEFAULT 'medium' CHECK (difficulty IN ('easy', 'medium', 'hard')),
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`},
	{"create_game_sessions", `
CREATE TABLE IF NOT EXISTS game_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER REFERENCES users(id),
    score INTEGER NOT NULL DEFAULT 0,
    questions_answered INTEGER NOT NULL DEFAULT 0,
    correct_answers INTEGER NOT NULL DEFAULT 0,
    started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    ended_at DATETIME
)`},
	{"create_audit_log", `
CREATE TABLE IF NOT EXISTS audit_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    action TEXT NOT NULL,
    detail TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`},
	{"index_questions_category", `CREATE INDEX IF NOT EXISTS idx_questions_category ON questions(category)`},
	{"index_sessions_user", `CREATE INDEX IF NOT EXISTS idx_game_sessions_user_id ON game_sessions(user_id)`},
}

// EnsureSchema brings the primary store schema up to date without ever
// dropping or truncating existing data. It is idempotent. Connection
// failure and ErrManualMigrationRequired abort; any other per-statement
// failure is recorded in the returned results and initialization
// continues.
func EnsureSchema(db *sql.DB, adminUsername, adminPassword string) ([]StatementResult, error) {
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to reach database: %w", classify(err))
	}

	var results []StatementResult

	// A legacy installation created users without a surrogate key. We only
	// recreate the table when it is verifiably empty; with rows present the
	// safe move is to stop and let an operator migrate.
	res, err := migrateLegacyUsers(db)
	if res != nil {
		results = append(results, *res)
	}
	if err != nil {
		return results, err
	}

	for _, stmt := range schemaStatements {
		_, err := db.Exec(stmt.sql)
		if err != nil {
			log.Printf("Schema init: statement %s failed: %v", stmt.name, err)
		}
		results = append(results, StatementResult{Name: stmt.name, Applied: err == nil, Err: err})
	}

	results = append(results, ensureRoleColumn(db))
	results = append(results, seedAdminAccount(db, adminUsername, adminPassword))

	return results, nil
}

func migrateLegacyUsers(db *sql.DB) (*StatementResult, error) {
	exists, err := tableExists(db, "users")
	if err != nil || !exists {
		return nil, err
	}
	hasID, err := columnExists(db, "users", "id")
	if err != nil || hasID {
		return nil, err
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to inspect legacy users table: %w", classify(err))
	}
	if count > 0 {
		return &StatementResult{Name: "recreate_legacy_users", Err: ErrManualMigrationRequired}, ErrManualMigrationRequired
	}

	if _, err := db.Exec("DROP TABLE users"); err != nil {
		return &StatementResult{Name: "recreate_legacy_users", Err: err}, nil
	}
	log.Printf("Schema init: recreated empty legacy users table")
	return &StatementResult{Name: "recreate_legacy_users", Applied: true}, nil
}

// ensureRoleColumn backfills the role column on installations that predate
// account types. Failure is tolerated: the rest of the system runs in a
// degraded-compatibility mode without roles.
func ensureRoleColumn(db *sql.DB) StatementResult {
	hasRole, err := columnExists(db, "users", "role")
	if err != nil {
		return StatementResult{Name: "add_role_column", Err: err}
	}
	if hasRole {
		return StatementResult{Name: "add_role_column", Applied: false}
	}
	if _, err := db.Exec("ALTER TABLE users ADD COLUMN role TEXT NOT NULL DEFAULT 'player'"); err != nil {
		log.Printf("Schema init: could not add role column: %v", err)
		return StatementResult{Name: "add_role_column", Err: err}
	}
	return StatementResult{Name: "add_role_column", Applied: true}
}

// seedAdminAccount inserts one bootstrap administrator if no account holds
// the admin role. The credential is stored hashed and never logged.
func seedAdminAccount(db *sql.DB, username, password string) StatementResult {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM users WHERE role = ?", RoleAdmin).Scan(&count); err != nil {
		return StatementResult{Name: "seed_admin", Err: err}
	}
	if count > 0 {
		return StatementResult{Name: "seed_admin", Applied: false}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return StatementResult{Name: "seed_admin", Err: fmt.Errorf("failed to hash admin credential: %w", err)}
	}
	_, err = db.Exec(
		"INSERT INTO users (username, password_hash, role, is_active) VALUES (?, ?, ?, 1)",
		username, string(hash), RoleAdmin,
	)
	if err != nil {
		log.Printf("Schema init: could not seed admin account: %v", err)
		return StatementResult{Name: "seed_admin", Err: err}
	}
	log.Printf("Schema init: seeded bootstrap admin account %q", username)
	return StatementResult{Name: "seed_admin", Applied: true}
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, classify(err))
	}
	return n > 0, nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to inspect table %s: %w", table, classify(err))
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("failed to scan table info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
