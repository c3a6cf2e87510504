//go:build integration

package flow

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow/internal/subject"
	"loanflow/pkg/testutil/containers"
)

func TestRedisLock_BlocksConcurrentRun(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	lock := NewRedisLock(rc.Client)
	ctx := context.Background()

	subjectID := uuid.New()

	release, err := lock.Acquire(ctx, subject.KindApplication, subjectID, 1)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, subject.KindApplication, subjectID, 1)
	assert.ErrorIs(t, err, ErrRunInProgress)

	// A different pipeline for the same subject is an independent run.
	otherRelease, err := lock.Acquire(ctx, subject.KindApplication, subjectID, 2)
	require.NoError(t, err)
	otherRelease()

	release()

	release, err = lock.Acquire(ctx, subject.KindApplication, subjectID, 1)
	require.NoError(t, err, "released lock must be reacquirable")
	release()
}

func TestRedisLock_ReleaseIsTokenSafe(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	lock := NewRedisLock(rc.Client)
	ctx := context.Background()

	subjectID := uuid.New()
	key := lockKey(subject.KindApplication, subjectID, 1)

	staleRelease, err := lock.Acquire(ctx, subject.KindApplication, subjectID, 1)
	require.NoError(t, err)

	// Simulate TTL expiry followed by another process taking the lock.
	require.NoError(t, rc.Client.Del(ctx, key).Err())
	_, err = lock.Acquire(ctx, subject.KindApplication, subjectID, 1)
	require.NoError(t, err)

	// The stale holder's release must not free the new holder's lock.
	staleRelease()
	_, err = lock.Acquire(ctx, subject.KindApplication, subjectID, 1)
	assert.ErrorIs(t, err, ErrRunInProgress)
}
