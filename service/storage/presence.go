package storage

import (
	"context"

	errs "RTGateway/tools/errs"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Presence is the durable (room,user) -> connection handle registry shared
// by every gateway instance. It is the single source of truth for who is
// connected where; each gateway keeps it synchronized on auth and
// disconnect.
type Presence interface {
	Put(ctx context.Context, room, user, handle string) error
	Remove(ctx context.Context, room, user string) error
	// RemoveHandle removes (room,user) only while it still maps to the
	// given handle; disconnect teardown uses it so an evicted session
	// cannot delete its successor's entry.
	RemoveHandle(ctx context.Context, room, user, handle string) error
	ListUsers(ctx context.Context, room string) (map[string]string, error)
	ListHandles(ctx context.Context, room string) ([]string, error)
}

// room presence key: room:<roomId>
// value: hash of userId -> connection handle
func roomKey(room string) string { return "room:" + room }

// RedisPresence stores room presence as one Redis hash per room.
type RedisPresence struct {
	rdb redis.Cmdable
}

func NewRedisPresence(rdb redis.Cmdable) *RedisPresence {
	return &RedisPresence{rdb: rdb}
}

// Put upserts the handle for (room,user). Overwriting a prior handle is
// the normal path on re-authentication and duplicate-session takeover.
func (p *RedisPresence) Put(ctx context.Context, room, user, handle string) error {
	if err := p.rdb.HSet(ctx, roomKey(room), user, handle).Err(); err != nil {
		return errors.Wrap(errs.ErrRegistryUnavailable.WithMsg("put %s/%s: %v", room, user, err), "presence")
	}
	return nil
}

// Remove deletes the (room,user) entry. Removing an absent entry is a
// no-op so teardown stays idempotent under double invocation.
func (p *RedisPresence) Remove(ctx context.Context, room, user string) error {
	if err := p.rdb.HDel(ctx, roomKey(room), user).Err(); err != nil {
		return errors.Wrap(errs.ErrRegistryUnavailable.WithMsg("remove %s/%s: %v", room, user, err), "presence")
	}
	return nil
}

// removeIfHandle deletes the field only while it still holds the given
// handle. Runs as a script so the compare and the delete cannot interleave
// with a concurrent re-authentication overwriting the entry.
var removeIfHandle = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
  return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

func (p *RedisPresence) RemoveHandle(ctx context.Context, room, user, handle string) error {
	if err := removeIfHandle.Run(ctx, p.rdb, []string{roomKey(room)}, user, handle).Err(); err != nil {
		return errors.Wrap(errs.ErrRegistryUnavailable.WithMsg("remove %s/%s: %v", room, user, err), "presence")
	}
	return nil
}

// ListUsers returns userId -> handle for the room; empty map for an
// unknown room.
func (p *RedisPresence) ListUsers(ctx context.Context, room string) (map[string]string, error) {
	users, err := p.rdb.HGetAll(ctx, roomKey(room)).Result()
	if err != nil {
		return nil, errors.Wrap(errs.ErrRegistryUnavailable.WithMsg("list %s: %v", room, err), "presence")
	}
	return users, nil
}

// ListHandles returns only the handle values, used for default broadcast
// resolution.
func (p *RedisPresence) ListHandles(ctx context.Context, room string) ([]string, error) {
	users, err := p.ListUsers(ctx, room)
	if err != nil {
		return nil, err
	}
	handles := make([]string, 0, len(users))
	for _, h := range users {
		handles = append(handles, h)
	}
	return handles, nil
}
