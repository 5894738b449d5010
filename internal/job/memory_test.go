package job

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediatools-api/internal/result"
	"github.com/maauso/mediatools-api/internal/tools"
)

func TestMemoryRepository_SaveStoresSnapshot(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	j := NewWithID("job-1", tools.AudioExtract)
	require.NoError(t, repo.Save(ctx, j))

	require.NoError(t, j.Start())
	j.SetProgress("size=  512kB time=00:00:03.00")

	saved, err := repo.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, saved.Status)
	assert.Empty(t, saved.Progress)

	require.NoError(t, repo.Save(ctx, j))
	saved, err = repo.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, saved.Status)
	assert.Equal(t, "size=  512kB time=00:00:03.00", saved.Progress)
}

func TestMemoryRepository_FindByID(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.FindByID(ctx, "job-missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	require.NoError(t, repo.Save(ctx, NewWithID("job-1", tools.VideoConvert)))
	found, err := repo.FindByID(ctx, "job-1")
	require.NoError(t, err)
	found.Progress = "changed"
	require.NoError(t, found.Start())

	again, err := repo.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, again.Progress)
	assert.Equal(t, StatusPending, again.Status)
}

func TestMemoryRepository_ListKeepsSubmissionOrder(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	first := NewWithID("job-b", tools.AudioSplit)
	second := NewWithID("job-a", tools.AudioConvert)
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))
	require.NoError(t, first.Start())
	require.NoError(t, repo.Save(ctx, first))

	jobs, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-b", jobs[0].ID)
	assert.Equal(t, StatusRunning, jobs[0].Status)
	assert.Equal(t, "job-a", jobs[1].ID)

	jobs[1].Progress = "changed"
	stored, err := repo.FindByID(ctx, "job-a")
	require.NoError(t, err)
	assert.Empty(t, stored.Progress)
}

func TestMemoryRepository_DeleteReturnsLastSnapshot(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	j := NewWithID("job-1", tools.AudioSplit)
	require.NoError(t, j.Start())
	j.AddResult(result.Handle{ID: "res-1", Slot: "audio-split/intro"})
	require.NoError(t, repo.Save(ctx, j))
	require.NoError(t, repo.Save(ctx, NewWithID("job-2", tools.AudioSplit)))

	removed, err := repo.Delete(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, removed.Results, 1)
	assert.Equal(t, "res-1", removed.Results[0].ID)

	_, err = repo.FindByID(ctx, "job-1")
	assert.ErrorIs(t, err, ErrJobNotFound)
	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-2", jobs[0].ID)

	_, err = repo.Delete(ctx, "job-1")
	assert.ErrorIs(t, err, ErrJobNotFound)

	require.NoError(t, repo.Save(ctx, NewWithID("job-1", tools.AudioSplit)))
	jobs, err = repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-1", jobs[1].ID)
}

func TestMemoryRepository_ConcurrentAccess(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				id := fmt.Sprintf("job-%d-%d", w, i)
				_ = repo.Save(ctx, NewWithID(id, tools.AudioExtract))
				_, _ = repo.List(ctx)
				if i%2 == 0 {
					_, _ = repo.Delete(ctx, id)
				}
			}
		}(w)
	}
	wg.Wait()

	jobs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 100)
}
