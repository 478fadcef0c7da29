package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"expense-ledger/internal/models"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrDuplicate is returned when an insert violates a uniqueness
// constraint (nickname or email already taken).
var ErrDuplicate = errors.New("duplicate value")

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations. Any migration
// failure is returned so the caller can refuse to serve on a broken
// schema.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer at a time; a single pooled connection
	// avoids lock churn and keeps :memory: databases coherent in tests.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// dsn applies the connection pragmas: foreign keys on, WAL journaling so
// readers are not blocked by a writer, and a 10s busy timeout so brief
// write contention waits instead of surfacing "database is locked".
func dsn(path string) string {
	if path == ":memory:" {
		path = "file::memory:"
	}
	return path + "?_time_format=sqlite" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(10000)"
}

// migrate creates the baseline schema and then applies versioned
// migrations recorded in PRAGMA user_version. Safe to run repeatedly.
func (db *DB) migrate() error {
	baseline := []string{
		`CREATE TABLE IF NOT EXISTS expenses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			amount REAL NOT NULL CHECK (amount > 0),
			category TEXT NOT NULL,
			description TEXT,
			date TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			nickname TEXT NOT NULL UNIQUE,
			email TEXT UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TEXT DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			expires_at DATETIME NOT NULL,
			last_activity DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_date ON expenses(date)`,
		`CREATE INDEX IF NOT EXISTS idx_expenses_amount ON expenses(amount)`,
	}

	for _, stmt := range baseline {
		if _, err := db.conn.Exec(stmt); err != nil {
			return err
		}
	}

	var version int
	if err := db.conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}

	if version < 1 {
		if err := db.migrateOwnership(); err != nil {
			return fmt.Errorf("ownership migration: %w", err)
		}
	}

	return nil
}

// migrateOwnership is the v0 -> v1 step: it adds the owner_id column to
// expenses (pre-existing rows keep a NULL owner) plus its indexes, and
// advances the version marker. The whole step is one transaction.
func (db *DB) migrateOwnership() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// ALTER TABLE ADD COLUMN fails if the column already exists, so
	// check first; the marker may be behind the schema after a crash.
	hasOwner, err := columnExists(tx, "expenses", "owner_id")
	if err != nil {
		return err
	}
	if !hasOwner {
		if _, err := tx.Exec("ALTER TABLE expenses ADD COLUMN owner_id INTEGER REFERENCES users(id)"); err != nil {
			return err
		}
	}

	steps := []string{
		"CREATE INDEX IF NOT EXISTS idx_expenses_owner ON expenses(owner_id)",
		"CREATE INDEX IF NOT EXISTS idx_expenses_owner_date ON expenses(owner_id, date)",
		"PRAGMA user_version = 1",
	}
	for _, stmt := range steps {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// SchemaVersion returns the persisted migration marker.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.conn.QueryRow("PRAGMA user_version").Scan(&version)
	return version, err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func isUniqueViolation(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
	}
	return false
}

// CreateExpense inserts a new expense owned by the given user. The
// amount check constraint backs up handler validation; a violation
// surfaces as a plain error.
func (db *DB) CreateExpense(amount float64, category, description, date string, ownerID int64) error {
	_, err := db.conn.Exec(
		"INSERT INTO expenses (amount, category, description, date, owner_id) VALUES (?, ?, ?, ?, ?)",
		amount, category, description, date, ownerID,
	)
	return err
}

// ListExpenses returns the owner's expenses matching the filter, newest
// first, together with the sum of their amounts. The total is computed
// over the exact same WHERE clause and bound parameters as the row
// query, so it always covers precisely the returned set.
func (db *DB) ListExpenses(ownerID int64, f ExpenseFilter) ([]models.Expense, float64, error) {
	where, args := whereClause(ownerID, f)

	rows, err := db.conn.Query(
		"SELECT id, amount, category, description, date, owner_id FROM expenses WHERE "+where+" ORDER BY date DESC",
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var expenses []models.Expense
	for rows.Next() {
		var e models.Expense
		var desc sql.NullString
		if err := rows.Scan(&e.ID, &e.Amount, &e.Category, &desc, &e.Date, &e.OwnerID); err != nil {
			return nil, 0, err
		}
		e.Description = desc.String
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total float64
	err = db.conn.QueryRow(
		"SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE "+where,
		args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	return expenses, total, nil
}

// DeleteExpense removes an expense only if it belongs to the owner.
// Returns false when nothing was deleted; a missing row and someone
// else's row are indistinguishable on purpose.
func (db *DB) DeleteExpense(id, ownerID int64) (bool, error) {
	res, err := db.conn.Exec("DELETE FROM expenses WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ExpenseCount returns the total number of expense rows.
func (db *DB) ExpenseCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM expenses").Scan(&count)
	return count, err
}

// CategoryTotal aggregates one category's spending for the summary view.
type CategoryTotal struct {
	Category string
	Total    float64
	Count    int
}

// CategoryTotals returns per-category spending for the owner, biggest
// spender first.
func (db *DB) CategoryTotals(ownerID int64) ([]CategoryTotal, error) {
	rows, err := db.conn.Query(
		"SELECT category, COALESCE(SUM(amount), 0), COUNT(*) FROM expenses WHERE owner_id = ? GROUP BY category ORDER BY SUM(amount) DESC",
		ownerID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.Category, &ct.Total, &ct.Count); err != nil {
			return nil, err
		}
		totals = append(totals, ct)
	}
	return totals, rows.Err()
}

// CreateUser inserts a new account. email may be nil. A nickname or
// email collision is reported as ErrDuplicate; any other failure is
// passed through untouched.
func (db *DB) CreateUser(nickname string, email *string, passwordHash string) (*models.User, error) {
	result, err := db.conn.Exec(
		"INSERT INTO users (nickname, email, password_hash) VALUES (?, ?, ?)",
		nickname, email, passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetUserByID(id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(id int64) (*models.User, error) {
	return db.scanUser(db.conn.QueryRow(
		"SELECT id, nickname, email, password_hash, created_at FROM users WHERE id = ?", id,
	))
}

// GetUserByNickname retrieves a user by nickname.
func (db *DB) GetUserByNickname(nickname string) (*models.User, error) {
	return db.scanUser(db.conn.QueryRow(
		"SELECT id, nickname, email, password_hash, created_at FROM users WHERE nickname = ?", nickname,
	))
}

func (db *DB) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var email sql.NullString
	var createdAt sql.NullString
	if err := row.Scan(&u.ID, &u.Nickname, &email, &u.PasswordHash, &createdAt); err != nil {
		return nil, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	u.CreatedAt = createdAt.String
	return &u, nil
}

// UserCount returns the number of users in the database.
func (db *DB) UserCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

// CreateSession creates a new session for a user.
func (db *DB) CreateSession(token string, userID int64, expiresAt time.Time) error {
	_, err := db.conn.Exec(
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		token, userID, expiresAt.UTC(), time.Now().UTC(),
	)
	return err
}

// RotateSession discards the previous session (if any) and issues a
// fresh one in a single transaction. Logging in always rotates the
// token so a pre-login session can never carry over.
func (db *DB) RotateSession(oldToken, newToken string, userID int64, expiresAt time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if oldToken != "" {
		if _, err := tx.Exec("DELETE FROM sessions WHERE token = ?", oldToken); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(
		"INSERT INTO sessions (token, user_id, expires_at, last_activity) VALUES (?, ?, ?, ?)",
		newToken, userID, expiresAt.UTC(), time.Now().UTC(),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// SessionInfo holds session validation data.
type SessionInfo struct {
	User         *models.User
	LastActivity time.Time
	ExpiresAt    time.Time
}

// ValidateSession checks if a session token is valid and returns the
// associated user.
func (db *DB) ValidateSession(token string) (*models.User, error) {
	info, err := db.ValidateSessionWithInfo(token)
	if err != nil {
		return nil, err
	}
	return info.User, nil
}

// ValidateSessionWithInfo checks if a session token is valid and returns
// session details. An expired or unknown token is an error; a deleted
// account drops out via the join.
func (db *DB) ValidateSessionWithInfo(token string) (*SessionInfo, error) {
	row := db.conn.QueryRow(`
		SELECT u.id, u.nickname, u.email, u.password_hash, u.created_at, s.last_activity, s.expires_at
		FROM sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.token = ? AND s.expires_at > ?
	`, token, time.Now().UTC())

	var u models.User
	var email, createdAt sql.NullString
	var lastActivity, expiresAt time.Time
	if err := row.Scan(&u.ID, &u.Nickname, &email, &u.PasswordHash, &createdAt, &lastActivity, &expiresAt); err != nil {
		return nil, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	u.CreatedAt = createdAt.String
	return &SessionInfo{
		User:         &u,
		LastActivity: lastActivity,
		ExpiresAt:    expiresAt,
	}, nil
}

// RenewSession updates the last_activity and expires_at for a session.
func (db *DB) RenewSession(token string, newExpiresAt time.Time) error {
	_, err := db.conn.Exec(
		"UPDATE sessions SET last_activity = ?, expires_at = ? WHERE token = ?",
		time.Now().UTC(), newExpiresAt.UTC(), token,
	)
	return err
}

// DeleteSession removes a session by token.
func (db *DB) DeleteSession(token string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE token = ?", token)
	return err
}

// CleanExpiredSessions removes all expired sessions.
func (db *DB) CleanExpiredSessions() error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE expires_at <= ?", time.Now().UTC())
	return err
}
