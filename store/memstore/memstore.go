// Package memstore is an in-memory store.Store for tests and local runs.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/store"
)

type taskRecord struct {
	task api.Task
	seq  uint64
}

// Store keeps users and tasks in maps guarded by a single lock.
type Store struct {
	mu    sync.RWMutex
	users map[string]api.User
	tasks map[string]taskRecord
	seq   uint64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users: make(map[string]api.User),
		tasks: make(map[string]taskRecord),
	}
}

func (s *Store) CreateUser(_ context.Context, u api.User) (api.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username {
			return api.User{}, store.ErrUsernameTaken
		}
		if existing.Email == u.Email {
			return api.User{}, store.ErrEmailTaken
		}
	}
	u.ID = uuid.NewString()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (api.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return api.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (api.User, error) {
	return s.findUser(func(u api.User) bool { return u.Username == username })
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (api.User, error) {
	return s.findUser(func(u api.User) bool { return u.Email == email })
}

func (s *Store) findUser(match func(api.User) bool) (api.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			return u, nil
		}
	}
	return api.User{}, store.ErrNotFound
}

func (s *Store) ListTasks(_ context.Context, ownerID string) ([]api.Task, error) {
	s.mu.RLock()
	records := make([]taskRecord, 0, len(s.tasks))
	for _, rec := range s.tasks {
		if rec.task.Owner == ownerID {
			records = append(records, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if !records[i].task.CreatedAt.Equal(records[j].task.CreatedAt) {
			return records[i].task.CreatedAt.After(records[j].task.CreatedAt)
		}
		return records[i].seq > records[j].seq
	})
	tasks := make([]api.Task, len(records))
	for i, rec := range records {
		tasks[i] = rec.task
	}
	return tasks, nil
}

func (s *Store) GetTask(_ context.Context, ownerID, id string) (api.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tasks[id]
	if !ok || rec.task.Owner != ownerID {
		return api.Task{}, store.ErrNotFound
	}
	return rec.task, nil
}

func (s *Store) CreateTask(_ context.Context, t api.Task) (api.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = uuid.NewString()
	s.seq++
	s.tasks[t.ID] = taskRecord{task: t, seq: s.seq}
	return t, nil
}

func (s *Store) UpdateTask(_ context.Context, ownerID, id string, patch api.TaskPatch, updatedAt time.Time) (api.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok || rec.task.Owner != ownerID {
		return api.Task{}, store.ErrNotFound
	}
	rec.task = patch.Apply(rec.task)
	rec.task.UpdatedAt = updatedAt
	s.tasks[id] = rec
	return rec.task, nil
}

func (s *Store) DeleteTask(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tasks[id]
	if !ok || rec.task.Owner != ownerID {
		return store.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *Store) Close(context.Context) error {
	return nil
}
