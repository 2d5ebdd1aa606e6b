package waitlist_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/openmic/internal/domain"
	"github.com/kirinyoku/openmic/internal/repository"
	"github.com/kirinyoku/openmic/internal/repository/memory"
	"github.com/kirinyoku/openmic/internal/service/waitlist"
)

var now = time.Date(2026, 5, 2, 19, 30, 0, 0, time.UTC)

type env struct {
	store  *memory.Store
	svc    *waitlist.Service
	slotID uuid.UUID
}

func setup(t *testing.T) *env {
	t.Helper()

	st := memory.New()
	st.AddEvent(domain.EventConfig{ID: 7, HostID: 70, TotalSlots: 1, SlotDurationMinutes: 5, IsPublished: true})

	slotID := uuid.New()
	require.NoError(t, st.RunTx(context.Background(), func(ctx context.Context, tx repository.Repos) error {
		return tx.Timeslots().BatchCreate(ctx, []domain.Timeslot{{ID: slotID, EventID: 7, DurationMinutes: 5}})
	}))

	svc := waitlist.New(st, st, nil, waitlist.Config{Now: func() time.Time { return now }})
	return &env{store: st, svc: svc, slotID: slotID}
}

// insert writes claims directly, bypassing the ledger.
func (e *env) insert(t *testing.T, status domain.ClaimStatus, pos int) uuid.UUID {
	t.Helper()

	c := &domain.Claim{
		ID:         uuid.New(),
		TimeslotID: e.slotID,
		Occupant:   domain.Guest{Name: "g", VerificationID: uuid.New()},
		Status:     status,
		ClaimedAt:  now,
		UpdatedAt:  now,
	}
	if status == domain.ClaimWaitlist {
		c.WaitlistPosition = &pos
	}
	if status == domain.ClaimOffered {
		exp := now.Add(time.Hour)
		c.OfferExpiresAt = &exp
	}

	require.NoError(t, e.store.RunTx(context.Background(), func(ctx context.Context, tx repository.Repos) error {
		return tx.Claims().Insert(ctx, c)
	}))
	return c.ID
}

func (e *env) release(t *testing.T, id uuid.UUID) {
	t.Helper()

	require.NoError(t, e.store.RunTx(context.Background(), func(ctx context.Context, tx repository.Repos) error {
		c, err := tx.Claims().Get(ctx, id)
		if err != nil {
			return err
		}
		c.Status = domain.ClaimCancelled
		c.OfferExpiresAt = nil
		return tx.Claims().Update(ctx, c)
	}))
}

func TestPromoteEmptyWaitlist(t *testing.T) {
	e := setup(t)

	p, err := e.svc.Promote(context.Background(), e.slotID, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, p)

	all, err := e.store.Claims().ListByEvent(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPromoteFollowsWaitlistPosition(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	// Inserted out of order; positions decide.
	w3 := e.insert(t, domain.ClaimWaitlist, 3)
	w1 := e.insert(t, domain.ClaimWaitlist, 1)
	w2 := e.insert(t, domain.ClaimWaitlist, 2)

	for _, want := range []uuid.UUID{w1, w2, w3} {
		p, err := e.svc.Promote(ctx, e.slotID, 30*time.Minute)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, want, p.ClaimID)
		assert.Equal(t, now.Add(30*time.Minute), p.OfferExpiresAt)

		c, err := e.store.Claims().Get(ctx, want)
		require.NoError(t, err)
		assert.Equal(t, domain.ClaimOffered, c.Status)
		assert.Nil(t, c.WaitlistPosition)

		// The offer holds the slot until it is released.
		again, err := e.svc.Promote(ctx, e.slotID, 30*time.Minute)
		require.NoError(t, err)
		assert.Nil(t, again)

		e.release(t, want)
	}

	p, err := e.svc.Promote(ctx, e.slotID, 30*time.Minute)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestPromoteOccupiedSlot(t *testing.T) {
	e := setup(t)
	e.insert(t, domain.ClaimConfirmed, 0)
	w := e.insert(t, domain.ClaimWaitlist, 1)

	p, err := e.svc.Promote(context.Background(), e.slotID, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, p)

	c, err := e.store.Claims().Get(context.Background(), w)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimWaitlist, c.Status)
}

func TestPromoteValidation(t *testing.T) {
	e := setup(t)

	_, err := e.svc.Promote(context.Background(), e.slotID, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = e.svc.Promote(context.Background(), uuid.New(), time.Hour)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPromoteNext(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	w := e.insert(t, domain.ClaimWaitlist, 1)

	_, err := e.svc.PromoteNext(ctx, domain.Member{ID: 71}, e.slotID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	p, err := e.svc.PromoteNext(ctx, domain.Member{ID: 70}, e.slotID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, w, p.ClaimID)
	// Event has no window of its own.
	assert.Equal(t, now.Add(120*time.Minute), p.OfferExpiresAt)

	c, err := e.store.Claims().Get(ctx, w)
	require.NoError(t, err)
	require.NotNil(t, c.UpdatedBy)
	assert.Equal(t, int64(70), *c.UpdatedBy)
}

func TestOfferWindow(t *testing.T) {
	svc := waitlist.New(memory.New(), nil, nil, waitlist.Config{DefaultOfferWindow: 45 * time.Minute})

	assert.Equal(t, 45*time.Minute, svc.OfferWindow(nil))
	assert.Equal(t, 45*time.Minute, svc.OfferWindow(&domain.EventConfig{}))
	assert.Equal(t, 15*time.Minute, svc.OfferWindow(&domain.EventConfig{SlotOfferWindowMinutes: 15}))
}

// busyStore reports every timeslot as locked by another transaction.
type busyStore struct{ *memory.Store }

func (b busyStore) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repos) error) error {
	return b.Store.RunTx(ctx, func(ctx context.Context, tx repository.Repos) error {
		return fn(ctx, busyRepos{tx})
	})
}

type busyRepos struct{ repository.Repos }

func (r busyRepos) Timeslots() repository.TimeslotRepo { return busyTimeslots{r.Repos.Timeslots()} }

type busyTimeslots struct{ repository.TimeslotRepo }

func (busyTimeslots) TryLock(context.Context, uuid.UUID) (*domain.Timeslot, bool, error) {
	return nil, false, nil
}

func TestPromoteBusySlot(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	w := e.insert(t, domain.ClaimWaitlist, 1)

	svc := waitlist.New(busyStore{e.store}, e.store, nil, waitlist.Config{Now: func() time.Time { return now }})

	done := make(chan struct{})
	var (
		p   *domain.Promotion
		err error
	)
	go func() {
		defer close(done)
		p, err = svc.Promote(ctx, e.slotID, time.Hour)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("promotion waited on a busy timeslot")
	}

	require.NoError(t, err)
	assert.Nil(t, p)

	c, err := e.store.Claims().Get(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, domain.ClaimWaitlist, c.Status)
	require.NotNil(t, c.WaitlistPosition)
	assert.Equal(t, 1, *c.WaitlistPosition)
}

func TestPromoteConcurrent(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	for pos := 1; pos <= 3; pos++ {
		e.insert(t, domain.ClaimWaitlist, pos)
	}

	const n = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		offers []*domain.Promotion
		errs   []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := e.svc.Promote(ctx, e.slotID, time.Hour)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
			}
			if p != nil {
				offers = append(offers, p)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	require.Len(t, offers, 1)

	all, err := e.store.Claims().ListByEvent(ctx, 7)
	require.NoError(t, err)

	counts := map[domain.ClaimStatus]int{}
	for _, c := range all {
		counts[c.Status]++
	}
	assert.Equal(t, map[domain.ClaimStatus]int{domain.ClaimOffered: 1, domain.ClaimWaitlist: 2}, counts)
}
