// Package sqlstore implements store.Store over PostgreSQL or SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/store"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    username TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL UNIQUE,
    mobile TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at BIGINT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS tasks (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    title TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    FOREIGN KEY (owner_id) REFERENCES users (id) ON DELETE CASCADE
)`,
	`CREATE INDEX IF NOT EXISTS tasks_owner_created_idx ON tasks (owner_id, created_at)`,
}

// Store runs every query through one *sql.DB.
type Store struct {
	db     *sql.DB
	driver string
}

var _ store.Store = (*Store)(nil)

// Open connects with the given driver, pings, and creates missing tables.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db source is required")
	}
	switch driver {
	case DriverPostgres:
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases alive and serializes writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	log.Printf("%s connection successful and tables created.", driver)
	return s, nil
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// DB returns the raw handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

var placeholder = regexp.MustCompile(`\$\d+`)

// rebind rewrites $N placeholders for SQLite. Queries in this file use each
// $N exactly once and in ascending order, so positional ? is equivalent.
func (s *Store) rebind(query string) string {
	if s.driver != DriverSQLite {
		return query
	}
	return placeholder.ReplaceAllString(query, "?")
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

// Names the drivers report for a duplicate email: the Postgres default
// constraint name and the SQLite "table.column" target.
const (
	pgEmailConstraint     = "users_email_key"
	sqliteEmailConstraint = "users.email"
)

// uniqueViolation reports whether err is a unique constraint failure and
// returns the constraint it names. The key value is never part of it.
func uniqueViolation(err error) (constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return pqErr.Constraint, true
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			(code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")) {
			return sqliteConstraint(liteErr.Error()), true
		}
	}
	return "", false
}

// sqliteConstraint extracts "users.email" from
// "constraint failed: UNIQUE constraint failed: users.email (2067)".
func sqliteConstraint(msg string) string {
	_, target, ok := strings.Cut(msg, "UNIQUE constraint failed: ")
	if !ok {
		return ""
	}
	if fields := strings.Fields(target); len(fields) > 0 {
		return strings.TrimSuffix(fields[0], ",")
	}
	return ""
}

const userColumns = "id, username, email, mobile, password_hash, created_at"

func scanUser(row interface{ Scan(...any) error }) (api.User, error) {
	var u api.User
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Mobile, &u.PasswordHash, &createdAt); err != nil {
		return api.User{}, err
	}
	u.CreatedAt = store.FromMillis(createdAt)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u api.User) (api.User, error) {
	u.ID = uuid.NewString()
	_, err := s.exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.Username, u.Email, u.Mobile, u.PasswordHash, store.ToMillis(u.CreatedAt),
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == pgEmailConstraint || constraint == sqliteEmailConstraint {
				return api.User{}, store.ErrEmailTaken
			}
			return api.User{}, store.ErrUsernameTaken
		}
		return api.User{}, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *Store) getUser(ctx context.Context, column, value string) (api.User, error) {
	u, err := scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value))
	if err == sql.ErrNoRows {
		return api.User{}, store.ErrNotFound
	}
	if err != nil {
		return api.User{}, fmt.Errorf("select user by %s: %w", column, err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (api.User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (api.User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (api.User, error) {
	return s.getUser(ctx, "email", email)
}

const taskColumns = "id, owner_id, title, description, completed, created_at, updated_at"

func scanTask(row interface{ Scan(...any) error }) (api.Task, error) {
	var t api.Task
	var createdAt, updatedAt int64
	if err := row.Scan(&t.ID, &t.Owner, &t.Title, &t.Description, &t.Completed, &createdAt, &updatedAt); err != nil {
		return api.Task{}, err
	}
	t.CreatedAt = store.FromMillis(createdAt)
	t.UpdatedAt = store.FromMillis(updatedAt)
	return t, nil
}

func (s *Store) ListTasks(ctx context.Context, ownerID string) ([]api.Task, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+taskColumns+` FROM tasks WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`),
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	tasks := []api.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Store) GetTask(ctx context.Context, ownerID, id string) (api.Task, error) {
	t, err := scanTask(s.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if err == sql.ErrNoRows {
		return api.Task{}, store.ErrNotFound
	}
	if err != nil {
		return api.Task{}, fmt.Errorf("select task: %w", err)
	}
	return t, nil
}

func (s *Store) CreateTask(ctx context.Context, t api.Task) (api.Task, error) {
	t.ID = uuid.NewString()
	_, err := s.exec(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.Owner, t.Title, t.Description, t.Completed, store.ToMillis(t.CreatedAt), store.ToMillis(t.UpdatedAt),
	)
	if err != nil {
		return api.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateTask(ctx context.Context, ownerID, id string, patch api.TaskPatch, updatedAt time.Time) (api.Task, error) {
	var sets []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Completed != nil {
		add("completed", *patch.Completed)
	}
	add("updated_at", store.ToMillis(updatedAt))
	args = append(args, id, ownerID)
	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = $%d AND owner_id = $%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))

	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return api.Task{}, fmt.Errorf("update task: %w", err)
	}
	if rowsAffected, _ := res.RowsAffected(); rowsAffected == 0 {
		return api.Task{}, store.ErrNotFound
	}
	return s.GetTask(ctx, ownerID, id)
}

func (s *Store) DeleteTask(ctx context.Context, ownerID, id string) error {
	res, err := s.exec(ctx, `DELETE FROM tasks WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if rowsAffected, _ := res.RowsAffected(); rowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
