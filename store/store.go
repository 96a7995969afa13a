// Package store defines the persistence contract for users and tasks.
//
// Every task query takes the owner's id; implementations must never return or
// mutate a task owned by someone else and report such ids as ErrNotFound.
package store

import (
	"context"
	"time"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/apperr"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = apperr.NotFound("record not found")
	// ErrUsernameTaken is returned when a username is already registered.
	ErrUsernameTaken = apperr.Conflict("User already exists")
	// ErrEmailTaken is returned when an email is already registered.
	ErrEmailTaken = apperr.Conflict("Email already exists")
)

type UserStore interface {
	// CreateUser persists u and returns it with its generated id.
	CreateUser(ctx context.Context, u api.User) (api.User, error)
	GetUser(ctx context.Context, id string) (api.User, error)
	GetUserByUsername(ctx context.Context, username string) (api.User, error)
	GetUserByEmail(ctx context.Context, email string) (api.User, error)
}

type TaskStore interface {
	// ListTasks returns the owner's tasks, newest first.
	ListTasks(ctx context.Context, ownerID string) ([]api.Task, error)
	GetTask(ctx context.Context, ownerID, id string) (api.Task, error)
	// CreateTask persists t and returns it with its generated id.
	CreateTask(ctx context.Context, t api.Task) (api.Task, error)
	// UpdateTask applies patch and stamps updatedAt, returning the new state.
	UpdateTask(ctx context.Context, ownerID, id string, patch api.TaskPatch, updatedAt time.Time) (api.Task, error)
	DeleteTask(ctx context.Context, ownerID, id string) error
}

// Store is a complete backend.
type Store interface {
	UserStore
	TaskStore
	Close(ctx context.Context) error
}

// ToMillis normalizes timestamps into millisecond precision for storage.
func ToMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// FromMillis restores millisecond precision and keeps UTC normalization.
func FromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
