package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"loanflow/internal/subject"
)

// ErrRunInProgress means another run for the same subject and pipeline holds
// the lock. The caller retries later; nothing was executed.
var ErrRunInProgress = errors.New("pipeline run already in progress for subject")

// RunLock prevents two concurrent runs for the same subject and pipeline
// from both missing the cache and issuing duplicate remote calls.
type RunLock interface {
	// Acquire returns a release func, or ErrRunInProgress.
	Acquire(ctx context.Context, kind subject.Kind, subjectID uuid.UUID, pipelineID int64) (func(), error)
}

// lockTTL bounds how long an abandoned lock can block retries if a process
// dies without releasing.
const lockTTL = 10 * time.Minute

// RedisLock implements RunLock with SET NX PX, so the lock works across
// processes. Release only deletes the key when the stored token still
// matches, to avoid releasing somebody else's lock after expiry.
type RedisLock struct {
	client redis.Cmdable
}

func NewRedisLock(client redis.Cmdable) *RedisLock {
	return &RedisLock{client: client}
}

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *RedisLock) Acquire(ctx context.Context, kind subject.Kind, subjectID uuid.UUID, pipelineID int64) (func(), error) {
	key := lockKey(kind, subjectID, pipelineID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}

	release := func() {
		// Best effort; TTL is the backstop.
		_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
	}
	return release, nil
}

func lockKey(kind subject.Kind, subjectID uuid.UUID, pipelineID int64) string {
	return fmt.Sprintf("loanflow:runlock:%s:%s:%d", kind, subjectID, pipelineID)
}

// LocalLock implements RunLock within one process, for dev setups without
// Redis. It does not protect against a second process.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]struct{})}
}

func (l *LocalLock) Acquire(_ context.Context, kind subject.Kind, subjectID uuid.UUID, pipelineID int64) (func(), error) {
	key := lockKey(kind, subjectID, pipelineID)

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrRunInProgress
	}
	l.held[key] = struct{}{}

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}
