package history

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loanflow/internal/subject"
)

func record(serviceID int64, ref string, status Status, createdAt time.Time) *Record {
	return &Record{
		SubjectKind: subject.KindApplication,
		SubjectID:   uuid.New(),
		ServiceID:   serviceID,
		ReferenceID: ref,
		Status:      status,
		CreatedAt:   createdAt,
	}
}

func TestFindCached_ReturnsMostRecentSuccessInWindow(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now()

	older := record(1, "900101300123", StatusSucceeded, now.Add(-48*time.Hour))
	older.Payload = map[string]any{"score": 600}
	newer := record(1, "900101300123", StatusSucceeded, now.Add(-2*time.Hour))
	newer.Payload = map[string]any{"score": 640}
	require.NoError(t, store.Append(context.Background(), older))
	require.NoError(t, store.Append(context.Background(), newer))

	found, err := store.FindCached(context.Background(), 1, "900101300123", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 640, found.Payload["score"])
}

func TestFindCached_IgnoresFailuresAndOtherServices(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now()

	require.NoError(t, store.Append(context.Background(), record(1, "900101300123", StatusFailed, now)))
	require.NoError(t, store.Append(context.Background(), record(2, "900101300123", StatusSucceeded, now)))
	require.NoError(t, store.Append(context.Background(), record(1, "850505400987", StatusSucceeded, now)))

	_, err := store.FindCached(context.Background(), 1, "900101300123", now.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindCached_ExpiredWindow(t *testing.T) {
	store := NewInMemoryStore()
	now := time.Now()

	require.NoError(t, store.Append(context.Background(),
		record(1, "900101300123", StatusSucceeded, now.Add(-72*time.Hour))))

	_, err := store.FindCached(context.Background(), 1, "900101300123", now.Add(-24*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLatestStatuses_LastRecordWinsPerService(t *testing.T) {
	store := NewInMemoryStore()
	subjectID := uuid.New()
	pipelineID := int64(7)

	add := func(serviceID int64, status Status) {
		require.NoError(t, store.Append(context.Background(), &Record{
			SubjectKind: subject.KindApplication,
			SubjectID:   subjectID,
			ServiceID:   serviceID,
			PipelineID:  &pipelineID,
			Status:      status,
		}))
	}
	add(1, StatusFailed)
	add(1, StatusSucceeded)
	add(2, StatusUnavailable)

	latest, err := store.LatestStatuses(context.Background(), subject.KindApplication, subjectID, pipelineID)
	require.NoError(t, err)
	assert.Equal(t, map[int64]Status{1: StatusSucceeded, 2: StatusUnavailable}, latest)
}

func TestLatestStatuses_FiltersByPipeline(t *testing.T) {
	store := NewInMemoryStore()
	subjectID := uuid.New()
	scoring, verification := int64(1), int64(2)

	require.NoError(t, store.Append(context.Background(), &Record{
		SubjectKind: subject.KindApplication, SubjectID: subjectID,
		ServiceID: 1, PipelineID: &scoring, Status: StatusSucceeded,
	}))
	require.NoError(t, store.Append(context.Background(), &Record{
		SubjectKind: subject.KindApplication, SubjectID: subjectID,
		ServiceID: 1, PipelineID: &verification, Status: StatusFailed,
	}))
	// ad-hoc run outside any pipeline
	require.NoError(t, store.Append(context.Background(), &Record{
		SubjectKind: subject.KindApplication, SubjectID: subjectID,
		ServiceID: 2, Status: StatusSucceeded,
	}))

	latest, err := store.LatestStatuses(context.Background(), subject.KindApplication, subjectID, scoring)
	require.NoError(t, err)
	assert.Equal(t, map[int64]Status{1: StatusSucceeded}, latest)
}

func TestListBySubject_NewestFirst(t *testing.T) {
	store := NewInMemoryStore()
	subjectID := uuid.New()

	for _, serviceID := range []int64{1, 2, 3} {
		require.NoError(t, store.Append(context.Background(), &Record{
			SubjectKind: subject.KindApplication,
			SubjectID:   subjectID,
			ServiceID:   serviceID,
			Status:      StatusSucceeded,
		}))
	}

	records, err := store.ListBySubject(context.Background(), subject.KindApplication, subjectID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, int64(3), records[0].ServiceID)
	assert.Equal(t, int64(1), records[2].ServiceID)
}

func TestSettled(t *testing.T) {
	assert.True(t, StatusSucceeded.Settled())
	assert.True(t, StatusCached.Settled())
	assert.False(t, StatusFailed.Settled())
	assert.False(t, StatusUnavailable.Settled())
}
