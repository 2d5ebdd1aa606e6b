package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/openmic/internal/domain"
	"github.com/kirinyoku/openmic/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(t *testing.T) (*Store, domain.Timeslot) {
	t.Helper()

	st := New()
	st.AddEvent(domain.EventConfig{ID: 1, HostID: 10, TotalSlots: 1, SlotDurationMinutes: 10, IsPublished: true})
	st.AddMember(1, false)
	st.AddMember(2, false)

	ts := domain.Timeslot{ID: uuid.New(), EventID: 1, SlotIndex: 0, DurationMinutes: 10}
	require.NoError(t, st.Timeslots().BatchCreate(context.Background(), []domain.Timeslot{ts}))
	return st, ts
}

func claim(ts domain.Timeslot, memberID int64, status domain.ClaimStatus) *domain.Claim {
	now := time.Now().UTC()
	return &domain.Claim{
		ID:         uuid.New(),
		TimeslotID: ts.ID,
		EventID:    ts.EventID,
		Occupant:   domain.Member{ID: memberID},
		Status:     status,
		ClaimedAt:  now,
		UpdatedAt:  now,
	}
}

func TestInsertRejectsSecondOccupant(t *testing.T) {
	st, ts := seeded(t)
	ctx := context.Background()

	require.NoError(t, st.Claims().Insert(ctx, claim(ts, 1, domain.ClaimConfirmed)))

	err := st.Claims().Insert(ctx, claim(ts, 2, domain.ClaimConfirmed))
	assert.ErrorIs(t, err, repository.ErrConflict)

	pos := 1
	wl := claim(ts, 2, domain.ClaimWaitlist)
	wl.WaitlistPosition = &pos
	require.NoError(t, st.Claims().Insert(ctx, wl))

	occ, err := st.Claims().Occupying(ctx, ts.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Member{ID: 1}, occ.Occupant)
}

func TestInsertRequiresKnownMember(t *testing.T) {
	st, ts := seeded(t)

	err := st.Claims().Insert(context.Background(), claim(ts, 99, domain.ClaimConfirmed))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRunTxRollsBack(t *testing.T) {
	st, ts := seeded(t)
	ctx := context.Background()

	err := st.RunTx(ctx, func(ctx context.Context, tx repository.Repos) error {
		if err := tx.Claims().Insert(ctx, claim(ts, 1, domain.ClaimConfirmed)); err != nil {
			return err
		}
		if _, err := tx.Members().IncrementNoShow(ctx, 1); err != nil {
			return err
		}
		return tx.Claims().Insert(ctx, claim(ts, 2, domain.ClaimConfirmed))
	})
	require.ErrorIs(t, err, repository.ErrConflict)

	_, err = st.Claims().Occupying(ctx, ts.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	n, err := st.Members().NoShowCount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteByEventCascades(t *testing.T) {
	st, ts := seeded(t)
	ctx := context.Background()

	require.NoError(t, st.Claims().Insert(ctx, claim(ts, 1, domain.ClaimConfirmed)))
	require.NoError(t, st.Lineup().Upsert(ctx, &domain.LineupState{EventID: 1, NowPlayingTimeslotID: &ts.ID}))

	n, err := st.Timeslots().DeleteByEvent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	claims, err := st.Claims().ListByEvent(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, claims)

	l, err := st.Lineup().Get(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, l.NowPlayingTimeslotID)
}

func TestAccessInsideTx(t *testing.T) {
	st, _ := seeded(t)
	st.AddCoHost(1, 2, true)
	st.AddCoHost(1, 3, false)

	type result struct {
		host, cohost, pending, member bool
		err                           error
	}
	done := make(chan result, 1)

	go func() {
		var r result
		r.err = st.RunTx(context.Background(), func(ctx context.Context, tx repository.Repos) error {
			var err error
			if r.host, err = tx.Access().CanAdminister(ctx, 1, 10); err != nil {
				return err
			}
			if r.cohost, err = tx.Access().CanAdminister(ctx, 1, 2); err != nil {
				return err
			}
			if r.pending, err = tx.Access().CanAdminister(ctx, 1, 3); err != nil {
				return err
			}
			r.member, err = tx.Access().CanAdminister(ctx, 1, 1)
			return err
		})
		done <- r
	}()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.True(t, r.host)
		assert.True(t, r.cohost)
		assert.False(t, r.pending)
		assert.False(t, r.member)
	case <-time.After(2 * time.Second):
		t.Fatal("access check inside a transaction did not return")
	}

	ok, err := st.Access().CanAdminister(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.True(t, ok)
}
