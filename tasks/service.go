// Package tasks implements the owner-scoped task operations.
package tasks

import (
	"context"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/apperr"
	"github.com/sridharsr7/personal-task-manager/cache"
	"github.com/sridharsr7/personal-task-manager/store"
	"github.com/sridharsr7/personal-task-manager/telemetry"
)

var tracer = telemetry.Tracer("github.com/sridharsr7/personal-task-manager/tasks")

var (
	errTitleRequired = apperr.Validation("Title is required")
	errTaskNotFound  = apperr.NotFound("Task not found")
)

// Service reads through the cache and writes through to the store. Every
// call is scoped to ownerID, the authenticated user.
type Service struct {
	tasks store.TaskStore
	cache cache.Cache
	now   func() time.Time
}

// NewService builds the task service. A nil cache disables caching.
func NewService(tasks store.TaskStore, c cache.Cache) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	return &Service{tasks: tasks, cache: c, now: time.Now}
}

func (s *Service) start(ctx context.Context, name, ownerID string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	span.SetAttributes(attribute.String("user.id", ownerID))
	return ctx, span
}

// List returns the owner's tasks, newest first. It never returns nil.
func (s *Service) List(ctx context.Context, ownerID string) (list []api.Task, err error) {
	ctx, span := s.start(ctx, "tasks.List", ownerID)
	defer func() { telemetry.End(span, err) }()

	version, cached := s.version(ctx, ownerID)
	key := cache.TaskListKey(ownerID, version)
	if cached {
		if found, err := s.cache.Get(ctx, key, &list); err == nil && found {
			return list, nil
		} else if err != nil {
			log.Printf("WARN: cache read %s: %v", key, err)
		}
	}

	list, err = s.tasks.ListTasks(ctx, ownerID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if list == nil {
		list = []api.Task{}
	}
	if cached {
		s.fill(ctx, key, list)
	}
	return list, nil
}

// Get returns one task.
func (s *Service) Get(ctx context.Context, ownerID, id string) (task api.Task, err error) {
	ctx, span := s.start(ctx, "tasks.Get", ownerID)
	defer func() { telemetry.End(span, err) }()

	version, cached := s.version(ctx, ownerID)
	key := cache.TaskKey(ownerID, version, id)
	if cached {
		if found, err := s.cache.Get(ctx, key, &task); err == nil && found {
			log.Println("CACHE HIT for key:", key)
			return task, nil
		} else if err != nil {
			log.Printf("WARN: cache read %s: %v", key, err)
		}
	}

	task, err = s.tasks.GetTask(ctx, ownerID, id)
	if err != nil {
		return api.Task{}, storeError(err)
	}
	if cached {
		s.fill(ctx, key, task)
	}
	return task, nil
}

// Create stores a new, incomplete task owned by ownerID.
func (s *Service) Create(ctx context.Context, ownerID string, req api.CreateTaskRequest) (task api.Task, err error) {
	ctx, span := s.start(ctx, "tasks.Create", ownerID)
	defer func() { telemetry.End(span, err) }()

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return api.Task{}, errTitleRequired
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	task, err = s.tasks.CreateTask(ctx, api.Task{
		Title:       title,
		Description: req.Description,
		Completed:   false,
		Owner:       ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return api.Task{}, apperr.Internal(err)
	}
	s.invalidate(ctx, ownerID)
	return task, nil
}

// Update changes only the fields present in req.
func (s *Service) Update(ctx context.Context, ownerID, id string, req api.UpdateTaskRequest) (task api.Task, err error) {
	ctx, span := s.start(ctx, "tasks.Update", ownerID)
	defer func() { telemetry.End(span, err) }()

	patch := req.Patch()
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return api.Task{}, errTitleRequired
		}
		patch.Title = &title
	}

	task, err = s.tasks.UpdateTask(ctx, ownerID, id, patch, s.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		return api.Task{}, storeError(err)
	}
	s.invalidate(ctx, ownerID)
	return task, nil
}

// Delete removes a task. Deleting the same id twice fails the second time.
func (s *Service) Delete(ctx context.Context, ownerID, id string) (err error) {
	ctx, span := s.start(ctx, "tasks.Delete", ownerID)
	defer func() { telemetry.End(span, err) }()

	if err := s.tasks.DeleteTask(ctx, ownerID, id); err != nil {
		return storeError(err)
	}
	s.invalidate(ctx, ownerID)
	return nil
}

func (s *Service) fill(ctx context.Context, key string, value any) {
	if err := s.cache.Set(ctx, key, value); err != nil {
		log.Printf("ERROR: Failed to set the cache %s: %v", key, err)
	}
}

// version reads the owner's cache version. It must be read before the store
// so that a write landing in between bumps past it. ok is false when the
// cache is unreachable and should be skipped for this call.
func (s *Service) version(ctx context.Context, ownerID string) (version int64, ok bool) {
	version, err := s.cache.Version(ctx, cache.VersionKey(ownerID))
	if err != nil {
		log.Printf("WARN: cache version %s: %v", ownerID, err)
		return 0, false
	}
	return version, true
}

// invalidate orphans every cached entry of the owner. A failure only delays
// freshness until the entries expire, so it is logged and not returned.
func (s *Service) invalidate(ctx context.Context, ownerID string) {
	if err := s.cache.Bump(ctx, cache.VersionKey(ownerID)); err != nil {
		log.Printf("WARN: Failed to bump the cache version of %s: %v", ownerID, err)
	}
}

func storeError(err error) error {
	if apperr.CodeOf(err) == apperr.CodeNotFound {
		return errTaskNotFound
	}
	return apperr.Internal(err)
}
