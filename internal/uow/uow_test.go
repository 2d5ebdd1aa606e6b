package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/kirinyoku/openmic/internal/domain"
	"github.com/kirinyoku/openmic/internal/repository"
	"github.com/kirinyoku/openmic/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore() *memory.Store {
	st := memory.New()
	st.AddEvent(domain.EventConfig{ID: 1, HostID: 10, TotalSlots: 1, SlotDurationMinutes: 10, IsPublished: true})
	return st
}

func TestDoRunsHooksAfterCommit(t *testing.T) {
	st := newStore()
	u := NewUoW(st)

	var order []string
	err := u.Do(context.Background(), func(ctx context.Context, tx repository.Repos, after func(AfterCommit)) error {
		after(func(context.Context) { order = append(order, "first") })
		after(func(context.Context) { order = append(order, "second") })
		order = append(order, "body")
		return tx.Timeslots().BatchCreate(ctx, []domain.Timeslot{
			{ID: uuid.New(), EventID: 1, SlotIndex: 0, DurationMinutes: 10},
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"body", "first", "second"}, order)

	slots, err := st.Timeslots().ListByEvent(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, slots, 1)
}

func TestDoDropsHooksOnRollback(t *testing.T) {
	st := newStore()
	u := NewUoW(st)
	boom := errors.New("boom")

	ran := false
	err := u.Do(context.Background(), func(ctx context.Context, tx repository.Repos, after func(AfterCommit)) error {
		after(func(context.Context) { ran = true })
		if err := tx.Timeslots().BatchCreate(ctx, []domain.Timeslot{
			{ID: uuid.New(), EventID: 1, SlotIndex: 0, DurationMinutes: 10},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, ran)

	slots, err := st.Timeslots().ListByEvent(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, slots)
}
