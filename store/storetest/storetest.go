// Package storetest holds the behaviour every store.Store must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/apperr"
	"github.com/sridharsr7/personal-task-manager/store"
)

// Run exercises s against the store contract. s must start empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	t.Run("users", func(t *testing.T) { testUsers(t, s) })
	t.Run("tasks", func(t *testing.T) { testTasks(t, s) })
}

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func mustCreateUser(t *testing.T, s store.Store, username, email string) api.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), api.User{
		Username:     username,
		Email:        email,
		Mobile:       "555",
		PasswordHash: "hash",
		CreatedAt:    base,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mustCreateUser(t, s, "alice", "a@x.com")
	mustCreateUser(t, s, "email-fan", "fan@x.com")
	mustCreateUser(t, s, "username-fan", "username@x.com")
	if alice.ID == "" {
		t.Fatal("expected generated user id")
	}

	got, err := s.GetUser(ctx, alice.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "alice" || got.Email != "a@x.com" || got.Mobile != "555" || got.PasswordHash != "hash" {
		t.Errorf("unexpected user %+v", got)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("expected createdAt %s; got %s", base, got.CreatedAt)
	}

	if byName, err := s.GetUserByUsername(ctx, "alice"); err != nil || byName.ID != alice.ID {
		t.Errorf("GetUserByUsername: got %+v, %v", byName, err)
	}
	if byEmail, err := s.GetUserByEmail(ctx, "a@x.com"); err != nil || byEmail.ID != alice.ID {
		t.Errorf("GetUserByEmail: got %+v, %v", byEmail, err)
	}

	testCases := []struct {
		name     string
		username string
		email    string
		wantMsg  string
	}{
		{name: "duplicate username", username: "alice", email: "other@x.com", wantMsg: store.ErrUsernameTaken.Message},
		{name: "duplicate email", username: "alice2", email: "a@x.com", wantMsg: store.ErrEmailTaken.Message},
		{name: "duplicate username that mentions email", username: "email-fan", email: "fan2@x.com", wantMsg: store.ErrUsernameTaken.Message},
		{name: "duplicate email that mentions username", username: "fan3", email: "username@x.com", wantMsg: store.ErrEmailTaken.Message},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.CreateUser(ctx, api.User{Username: tc.username, Email: tc.email, Mobile: "1", PasswordHash: "h", CreatedAt: base})
			appErr := apperr.As(err)
			if appErr == nil || appErr.Code != apperr.CodeConflict {
				t.Fatalf("expected conflict; got %v", err)
			}
			if appErr.Message != tc.wantMsg {
				t.Errorf("expected message %q; got %q", tc.wantMsg, appErr.Message)
			}
		})
	}

	for _, id := range []string{"missing", "000000000000000000000000"} {
		if _, err := s.GetUser(ctx, id); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetUser(%q): expected not found; got %v", id, err)
		}
	}
	if _, err := s.GetUserByUsername(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetUserByUsername: expected not found; got %v", err)
	}
}

func testTasks(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustCreateUser(t, s, "owner", "owner@x.com")
	other := mustCreateUser(t, s, "other", "other@x.com")

	first, err := s.CreateTask(ctx, api.Task{Title: "buy milk", Owner: owner.ID, CreatedAt: base, UpdatedAt: base})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected generated task id")
	}
	second, err := s.CreateTask(ctx, api.Task{Title: "walk dog", Description: "park", Owner: owner.ID, CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute)})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := s.CreateTask(ctx, api.Task{Title: "not yours", Owner: other.ID, CreatedAt: base, UpdatedAt: base}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	list, err := s.ListTasks(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 tasks; got %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("expected newest first; got %q, %q", list[0].Title, list[1].Title)
	}

	got, err := s.GetTask(ctx, owner.ID, second.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Title != "walk dog" || got.Description != "park" || got.Completed || got.Owner != owner.ID {
		t.Errorf("unexpected task %+v", got)
	}
	if _, err := s.GetTask(ctx, other.ID, second.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetTask by non-owner: expected not found; got %v", err)
	}

	done := true
	later := base.Add(time.Hour)
	updated, err := s.UpdateTask(ctx, owner.ID, second.ID, api.TaskPatch{Completed: &done}, later)
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if !updated.Completed || updated.Title != "walk dog" || updated.Description != "park" {
		t.Errorf("expected only completed to change; got %+v", updated)
	}
	if !updated.UpdatedAt.Equal(later) || !updated.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("unexpected timestamps %s / %s", updated.CreatedAt, updated.UpdatedAt)
	}

	title := "walk cat"
	if _, err := s.UpdateTask(ctx, other.ID, second.ID, api.TaskPatch{Title: &title}, later); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateTask by non-owner: expected not found; got %v", err)
	}
	if _, err := s.UpdateTask(ctx, owner.ID, "missing", api.TaskPatch{Title: &title}, later); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateTask missing: expected not found; got %v", err)
	}

	if err := s.DeleteTask(ctx, other.ID, first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("DeleteTask by non-owner: expected not found; got %v", err)
	}
	if err := s.DeleteTask(ctx, owner.ID, first.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := s.DeleteTask(ctx, owner.ID, first.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second DeleteTask: expected not found; got %v", err)
	}

	list, err = s.ListTasks(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(list) != 1 || list[0].ID != second.ID {
		t.Errorf("expected only %q left; got %+v", second.ID, list)
	}
	empty, err := s.ListTasks(ctx, "nobody")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no tasks for unknown owner; got %d", len(empty))
	}
}
