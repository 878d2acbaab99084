package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/studiofoundry/backstage/internal/domain"
)

const lockTTL = 5 * time.Minute

// releaseScript deletes the lock key only while it still carries our
// holder token. Checking and deleting in one script keeps a slow
// release after TTL expiry from clobbering the next holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
end
return 0
`)

// LockService serializes staged operations per entity with a redis
// SETNX lease. The TTL keeps a crashed worker from wedging the entity
// forever.
type LockService struct {
	rdb *redis.Client
}

func NewLockService(redisClient *redis.Client) *LockService {
	return &LockService{
		rdb: redisClient,
	}
}

func (s *LockService) Acquire(ctx context.Context, id string) (func(), error) {

	key := "lock:" + id
	holder := uuid.New().String()

	ok, err := s.rdb.SetNX(ctx, key, holder, lockTTL).Result()
	if err != nil {
		return nil, domain.TransientError{Op: "acquire lock " + id, Err: err}
	}
	if !ok {
		return nil, domain.ConflictError{Resource: id}
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()

		releaseScript.Run(releaseCtx, s.rdb, []string{key}, holder)
	}

	return release, nil
}
