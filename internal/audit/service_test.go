package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	entries []Entry

	gotFilters TimelineFilters
	gotLimit   int
	gotOffset  int
}

func (f *fakeRepo) Window(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error) {
	f.gotFilters = filters
	f.gotLimit = limit
	f.gotOffset = offset

	if offset >= len(f.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.entries) {
		end = len(f.entries)
	}
	return f.entries[offset:end], nil
}

func entriesCount(n int) []Entry {
	out := make([]Entry, n)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = Entry{
			ID:         int64(n - i),
			Action:     "recovery.create",
			Entity:     "recovery",
			OccurredAt: base.Add(-time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestTimelinePagination(t *testing.T) {
	repo := &fakeRepo{entries: entriesCount(25)}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Rows, 10)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Equal(t, 11, repo.gotLimit)

	result, err = svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.PrevPage)
	require.Equal(t, 20, repo.gotOffset)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &fakeRepo{entries: entriesCount(5)}
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 51, repo.gotLimit)

	_, err = svc.Timeline(context.Background(), TimelineFilters{PageSize: -1})
	require.NoError(t, err)
	require.Equal(t, 21, repo.gotLimit)
}

func TestTimelinePassesFilters(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo)

	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Timeline(context.Background(), TimelineFilters{From: from, ActorID: 7, Entity: "recovery"})
	require.NoError(t, err)
	require.Equal(t, from, repo.gotFilters.From)
	require.Equal(t, int64(7), repo.gotFilters.ActorID)
	require.Equal(t, "recovery", repo.gotFilters.Entity)
}

func TestTimelineRequiresRepository(t *testing.T) {
	var svc *Service
	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.Error(t, err)
}
