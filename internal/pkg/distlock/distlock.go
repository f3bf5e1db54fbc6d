// Package distlock elects a single holder for cluster-wide jobs such as the
// calendar sweep. Redis is the primary backend; deployments running without
// Redis-based coordination fall back to a PostgreSQL advisory lock.
package distlock

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a non-blocking mutual exclusion primitive. One value per
// would-be holder; Acquire reports whether this holder won.
type DistLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// NewLock picks a backend: Redis when a client is available, otherwise a
// PG advisory lock on the given handle.
func NewLock(rdb *redis.Client, db *sql.DB, name string, ttl time.Duration) DistLock {
	if rdb != nil {
		return newRedisLock(rdb, name, ttl)
	}
	return newAdvisoryLock(db, name)
}

// redisLock is SET NX with a TTL. The token identifies this holder so a slow
// holder cannot delete a lock that has since expired and been re-acquired.
type redisLock struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

func newRedisLock(rdb *redis.Client, name string, ttl time.Duration) *redisLock {
	buf := make([]byte, 16)
	rand.Read(buf)
	return &redisLock{
		rdb:   rdb,
		key:   "coldpost:lock:" + name,
		token: hex.EncodeToString(buf),
		ttl:   ttl,
	}
}

func (l *redisLock) Acquire(ctx context.Context) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *redisLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}

// advisoryLock maps the lock name onto a pg_try_advisory_lock id. Advisory
// locks are session-scoped, so a dropped connection releases the lock much
// like a Redis TTL expiry would.
type advisoryLock struct {
	db *sql.DB
	id int64
}

func newAdvisoryLock(db *sql.DB, name string) *advisoryLock {
	h := fnv.New64a()
	h.Write([]byte(name))
	return &advisoryLock{db: db, id: int64(h.Sum64())}
}

func (l *advisoryLock) Acquire(ctx context.Context) (bool, error) {
	var won bool
	err := l.db.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.id).Scan(&won)
	return won, err
}

func (l *advisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.id)
	return err
}
