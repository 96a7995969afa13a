package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sridharsr7/personal-task-manager/api"
	"github.com/sridharsr7/personal-task-manager/apperr"
	"github.com/sridharsr7/personal-task-manager/cache"
	"github.com/sridharsr7/personal-task-manager/store/memstore"
)

const (
	alice = "alice-id"
	bob   = "bob-id"
)

func ptr[T any](v T) *T { return &v }

func newTestService(t *testing.T, c cache.Cache) (*Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	svc := NewService(st, c)
	clock := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc, st
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)

	testCases := []struct {
		name     string
		req      api.CreateTaskRequest
		wantCode apperr.Code
		wantDesc string
	}{
		{name: "title only", req: api.CreateTaskRequest{Title: "buy milk"}},
		{name: "with description", req: api.CreateTaskRequest{Title: "walk dog", Description: "around the park"}, wantDesc: "around the park"},
		{name: "empty title", req: api.CreateTaskRequest{Title: ""}, wantCode: apperr.CodeValidation},
		{name: "blank title", req: api.CreateTaskRequest{Title: "  \t", Description: "x"}, wantCode: apperr.CodeValidation},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			task, err := svc.Create(ctx, alice, tc.req)
			if tc.wantCode != "" {
				if got := apperr.CodeOf(err); got != tc.wantCode {
					t.Fatalf("expected %s; got %v", tc.wantCode, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if task.ID == "" || task.Completed || task.Owner != alice {
				t.Errorf("unexpected task %+v", task)
			}
			if task.Title != tc.req.Title || task.Description != tc.wantDesc {
				t.Errorf("unexpected title/description %q/%q", task.Title, task.Description)
			}
		})
	}
}

func TestUpdateChangesOnlyGivenFields(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	created, err := svc.Create(ctx, alice, api.CreateTaskRequest{Title: "buy milk", Description: "2 litres"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := svc.Update(ctx, alice, created.ID, api.UpdateTaskRequest{Completed: ptr(true)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !updated.Completed || updated.Title != "buy milk" || updated.Description != "2 litres" {
		t.Errorf("expected only completed to change; got %+v", updated)
	}
	if !updated.UpdatedAt.After(created.UpdatedAt) {
		t.Errorf("expected updatedAt to advance; %s vs %s", updated.UpdatedAt, created.UpdatedAt)
	}

	updated, err = svc.Update(ctx, alice, created.ID, api.UpdateTaskRequest{Title: ptr(" buy oat milk "), Completed: ptr(false)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Completed || updated.Title != "buy oat milk" || updated.Description != "2 litres" {
		t.Errorf("unexpected task %+v", updated)
	}

	if _, err := svc.Update(ctx, alice, created.ID, api.UpdateTaskRequest{Title: ptr("")}); apperr.CodeOf(err) != apperr.CodeValidation {
		t.Errorf("expected validation error for blank title; got %v", err)
	}
	if _, err := svc.Update(ctx, alice, "missing", api.UpdateTaskRequest{Completed: ptr(true)}); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("expected not found; got %v", err)
	}
}

func TestDeleteTwice(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	created, err := svc.Create(ctx, alice, api.CreateTaskRequest{Title: "buy milk"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.Delete(ctx, alice, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	err = svc.Delete(ctx, alice, created.ID)
	appErr := apperr.As(err)
	if appErr == nil || appErr.Code != apperr.CodeNotFound || appErr.Message != "Task not found" {
		t.Fatalf("expected Task not found; got %v", err)
	}
	if err := svc.Delete(ctx, alice, "never-existed"); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("expected not found; got %v", err)
	}

	list, err := svc.List(ctx, alice)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list; got %#v", list)
	}
}

func TestOwnerScoping(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	mine, err := svc.Create(ctx, alice, api.CreateTaskRequest{Title: "alice's"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, bob, api.CreateTaskRequest{Title: "bob's"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := svc.List(ctx, bob)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Title != "bob's" {
		t.Errorf("expected only bob's task; got %+v", list)
	}

	if _, err := svc.Get(ctx, bob, mine.ID); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("Get: expected not found; got %v", err)
	}
	if _, err := svc.Update(ctx, bob, mine.ID, api.UpdateTaskRequest{Completed: ptr(true)}); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("Update: expected not found; got %v", err)
	}
	if err := svc.Delete(ctx, bob, mine.ID); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Errorf("Delete: expected not found; got %v", err)
	}

	got, err := svc.Get(ctx, alice, mine.ID)
	if err != nil || got.Completed {
		t.Errorf("expected alice's task untouched; got %+v, %v", got, err)
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, nil)
	for _, title := range []string{"first", "second", "third"} {
		if _, err := svc.Create(ctx, alice, api.CreateTaskRequest{Title: title}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	list, err := svc.List(ctx, alice)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].Title != "third" || list[2].Title != "first" {
		t.Errorf("expected newest first; got %+v", list)
	}
}

func newRedisCache(t *testing.T) (*cache.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := cache.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
	t.Cleanup(func() { rc.Close() })
	return rc, mr
}

func TestCacheReadThroughAndInvalidation(t *testing.T) {
	ctx := context.Background()
	rc, mr := newRedisCache(t)
	svc, _ := newTestService(t, rc)

	created, err := svc.Create(ctx, alice, api.CreateTaskRequest{Title: "buy milk"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Get(ctx, alice, created.ID); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !mr.Exists(cache.TaskKey(alice, 1, created.ID)) {
		t.Fatal("expected task to be cached after Get")
	}
	if _, err := svc.List(ctx, alice); err != nil {
		t.Fatalf("List: %v", err)
	}
	if !mr.Exists(cache.TaskListKey(alice, 1)) {
		t.Fatal("expected list to be cached after List")
	}

	if _, err := svc.Update(ctx, alice, created.ID, api.UpdateTaskRequest{Completed: ptr(true)}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v, _ := mr.Get(cache.VersionKey(alice)); v != "2" {
		t.Fatalf("expected update to bump the owner version to 2; got %q", v)
	}

	got, err := svc.Get(ctx, alice, created.ID)
	if err != nil || !got.Completed {
		t.Fatalf("expected fresh completed task; got %+v, %v", got, err)
	}
	list, err := svc.List(ctx, alice)
	if err != nil || len(list) != 1 || !list[0].Completed {
		t.Fatalf("expected fresh list; got %+v, %v", list, err)
	}

	if _, err := svc.Create(ctx, alice, api.CreateTaskRequest{Title: "walk dog"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if list, _ := svc.List(ctx, alice); len(list) != 2 {
		t.Fatalf("expected create to show up in the list; got %+v", list)
	}

	if err := svc.Delete(ctx, alice, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, alice, created.ID); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected deleted task to be gone from cache and store; got %v", err)
	}
	if v, _ := mr.Get(cache.VersionKey(bob)); v != "" {
		t.Errorf("expected bob's version untouched; got %q", v)
	}
}

// pausingStore holds the first call to method after it has read the store,
// until resume is closed.
type pausingStore struct {
	*memstore.Store
	method string
	paused chan struct{}
	resume chan struct{}
	once   sync.Once
}

func newPausingStore(method string) *pausingStore {
	return &pausingStore{
		Store:  memstore.New(),
		method: method,
		paused: make(chan struct{}),
		resume: make(chan struct{}),
	}
}

func (p *pausingStore) hold(method string) {
	if method != p.method {
		return
	}
	p.once.Do(func() {
		close(p.paused)
		<-p.resume
	})
}

func (p *pausingStore) ListTasks(ctx context.Context, ownerID string) ([]api.Task, error) {
	list, err := p.Store.ListTasks(ctx, ownerID)
	p.hold("ListTasks")
	return list, err
}

func (p *pausingStore) GetTask(ctx context.Context, ownerID, id string) (api.Task, error) {
	task, err := p.Store.GetTask(ctx, ownerID, id)
	p.hold("GetTask")
	return task, err
}

func TestSlowListDoesNotCacheOverConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	rc, _ := newRedisCache(t)
	st := newPausingStore("ListTasks")
	svc := NewService(st, rc)

	done := make(chan error, 1)
	go func() {
		_, err := svc.List(ctx, alice)
		done <- err
	}()
	<-st.paused

	_, err := svc.Create(ctx, alice, api.CreateTaskRequest{Title: "buy milk"})
	close(st.resume)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("List: %v", err)
	}

	list, err := svc.List(ctx, alice)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 || list[0].Title != "buy milk" {
		t.Fatalf("expected created task in the list; got %+v", list)
	}
}

func TestSlowGetDoesNotCacheOverConcurrentDelete(t *testing.T) {
	ctx := context.Background()
	rc, _ := newRedisCache(t)
	st := newPausingStore("GetTask")
	svc := NewService(st, rc)

	created, err := svc.Create(ctx, alice, api.CreateTaskRequest{Title: "buy milk"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Get(ctx, alice, created.ID)
		done <- err
	}()
	<-st.paused

	err = svc.Delete(ctx, alice, created.ID)
	close(st.resume)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Get: %v", err)
	}

	if _, err := svc.Get(ctx, alice, created.ID); apperr.CodeOf(err) != apperr.CodeNotFound {
		t.Fatalf("expected deleted task to stay gone; got %v", err)
	}
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string, any) (bool, error) {
	return false, errors.New("connection refused")
}
func (brokenCache) Set(context.Context, string, any) error { return errors.New("connection refused") }
func (brokenCache) Version(context.Context, string) (int64, error) {
	return 0, errors.New("connection refused")
}
func (brokenCache) Bump(context.Context, string) error { return errors.New("connection refused") }

func TestCacheFailuresDoNotFailRequests(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, brokenCache{})

	created, err := svc.Create(ctx, alice, api.CreateTaskRequest{Title: "buy milk"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Get(ctx, alice, created.ID); err != nil {
		t.Errorf("Get: %v", err)
	}
	if _, err := svc.List(ctx, alice); err != nil {
		t.Errorf("List: %v", err)
	}
	if err := svc.Delete(ctx, alice, created.ID); err != nil {
		t.Errorf("Delete: %v", err)
	}
}
