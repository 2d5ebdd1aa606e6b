package lineup_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/openmic/internal/domain"
	"github.com/kirinyoku/openmic/internal/repository"
	"github.com/kirinyoku/openmic/internal/repository/memory"
	"github.com/kirinyoku/openmic/internal/service/lineup"
)

func TestNowPlaying(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 7, 4, 21, 15, 0, 0, time.UTC)

	st := memory.New()
	st.AddEvent(domain.EventConfig{ID: 1, HostID: 100, TotalSlots: 2, SlotDurationMinutes: 5})
	st.AddEvent(domain.EventConfig{ID: 2, HostID: 200, TotalSlots: 1, SlotDurationMinutes: 5})
	st.AddMember(300, true)

	mine, other := uuid.New(), uuid.New()
	require.NoError(t, st.RunTx(ctx, func(ctx context.Context, tx repository.Repos) error {
		return tx.Timeslots().BatchCreate(ctx, []domain.Timeslot{
			{ID: mine, EventID: 1, SlotIndex: 0, DurationMinutes: 5},
			{ID: other, EventID: 2, SlotIndex: 0, DurationMinutes: 5},
		})
	}))

	svc := lineup.New(st, st, nil, nil, lineup.Config{Now: func() time.Time { return at }})

	empty, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), empty.EventID)
	assert.Nil(t, empty.NowPlayingTimeslotID)

	_, err = svc.SetNowPlaying(ctx, domain.Member{ID: 200}, 1, &mine)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = svc.SetNowPlaying(ctx, domain.Member{ID: 100}, 1, &other)
	assert.ErrorIs(t, err, domain.ErrValidation)

	missing := uuid.New()
	_, err = svc.SetNowPlaying(ctx, domain.Member{ID: 100}, 1, &missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.SetNowPlaying(ctx, domain.Member{ID: 100}, 9, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	set, err := svc.SetNowPlaying(ctx, domain.Member{ID: 300}, 1, &mine)
	require.NoError(t, err)
	require.NotNil(t, set.NowPlayingTimeslotID)
	assert.Equal(t, mine, *set.NowPlayingTimeslotID)

	got, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got.UpdatedBy)
	assert.Equal(t, int64(300), *got.UpdatedBy)
	assert.Equal(t, at, got.UpdatedAt)

	cleared, err := svc.SetNowPlaying(ctx, domain.Member{ID: 100}, 1, nil)
	require.NoError(t, err)
	assert.Nil(t, cleared.NowPlayingTimeslotID)

	got, err = svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, got.NowPlayingTimeslotID)
}
