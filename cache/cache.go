// Package cache stores JSON snapshots of task reads in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the subset of key/value operations the services need.
//
// Entries are never deleted. Writers Bump a version counter instead and
// readers embed the version they saw in the entry key, so a fill that lost
// a race with a write lands under a version nobody reads any more.
type Cache interface {
	// Get loads key into dst. A miss returns found=false and no error.
	Get(ctx context.Context, key string, dst any) (found bool, err error)
	Set(ctx context.Context, key string, value any) error
	// Version returns the counter stored at key, 0 when unset.
	Version(ctx context.Context, key string) (int64, error)
	// Bump advances the counter stored at key.
	Bump(ctx context.Context, key string) error
}

// Redis is a Cache backed by a go-redis client.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps client; entries expire after ttl.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr string, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("could not connect to redis at %s: %w", addr, err)
	}
	log.Println("Redis connection successful.")
	return NewRedis(client, ttl), nil
}

func (r *Redis) Get(ctx context.Context, key string, dst any) (bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(val, dst); err != nil {
		// A corrupt entry behaves like a miss and is overwritten on refill.
		log.Printf("WARN: dropping undecodable cache entry %s: %v", key, err)
		return false, nil
	}
	return true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

func (r *Redis) Version(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *Redis) Bump(ctx context.Context, key string) error {
	return r.client.Incr(ctx, key).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Nop never stores anything. It is used when no Redis address is configured.
type Nop struct{}

func (Nop) Get(context.Context, string, any) (bool, error)  { return false, nil }
func (Nop) Set(context.Context, string, any) error          { return nil }
func (Nop) Version(context.Context, string) (int64, error) { return 0, nil }
func (Nop) Bump(context.Context, string) error             { return nil }

// VersionKey names the counter that every write to an owner's tasks bumps.
func VersionKey(ownerID string) string {
	return "tasks:ver:" + ownerID
}

// TaskKey names the cache entry of one task at a given owner version.
func TaskKey(ownerID string, version int64, taskID string) string {
	return fmt.Sprintf("task:%s:%d:%s", ownerID, version, taskID)
}

// TaskListKey names the cache entry of an owner's task list at a given version.
func TaskListKey(ownerID string, version int64) string {
	return fmt.Sprintf("tasks:%s:%d", ownerID, version)
}
