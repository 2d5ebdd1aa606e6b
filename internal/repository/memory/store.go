// Package memory is an in-process repository.Store. Transactions are fully
// serialized by a single mutex and rolled back from a snapshot on error, so
// every lock the Postgres store takes is trivially held. It backs service and
// transport tests and local runs without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/kirinyoku/openmic/internal/domain"
	"github.com/kirinyoku/openmic/internal/repository"
)

type state struct {
	events    map[int64]domain.EventConfig
	cohosts   map[int64]map[int64]bool
	admins    map[int64]bool
	noShows   map[int64]int64
	timeslots map[uuid.UUID]domain.Timeslot
	claims    map[uuid.UUID]domain.Claim
	order     []uuid.UUID
	lineup    map[int64]domain.LineupState
}

func newState() *state {
	return &state{
		events:    map[int64]domain.EventConfig{},
		cohosts:   map[int64]map[int64]bool{},
		admins:    map[int64]bool{},
		noShows:   map[int64]int64{},
		timeslots: map[uuid.UUID]domain.Timeslot{},
		claims:    map[uuid.UUID]domain.Claim{},
		lineup:    map[int64]domain.LineupState{},
	}
}

func (st *state) clone() *state {
	cp := newState()
	for k, v := range st.events {
		cp.events[k] = v
	}
	for k, v := range st.cohosts {
		m := make(map[int64]bool, len(v))
		for mk, mv := range v {
			m[mk] = mv
		}
		cp.cohosts[k] = m
	}
	for k, v := range st.admins {
		cp.admins[k] = v
	}
	for k, v := range st.noShows {
		cp.noShows[k] = v
	}
	for k, v := range st.timeslots {
		cp.timeslots[k] = v
	}
	for k, v := range st.claims {
		cp.claims[k] = v
	}
	cp.order = append([]uuid.UUID(nil), st.order...)
	for k, v := range st.lineup {
		cp.lineup[k] = v
	}
	return cp
}

type Store struct {
	mu sync.Mutex
	st *state
}

func New() *Store {
	return &Store{st: newState()}
}

// AddMember registers a member so no-show counters can be kept for it.
func (s *Store) AddMember(id int64, admin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.noShows[id]; !ok {
		s.st.noShows[id] = 0
	}
	s.st.admins[id] = admin
}

// AddEvent registers an event configuration. The host is registered as a member.
func (s *Store) AddEvent(cfg domain.EventConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.events[cfg.ID] = cfg
	if _, ok := s.st.noShows[cfg.HostID]; !ok {
		s.st.noShows[cfg.HostID] = 0
	}
}

func (s *Store) AddCoHost(eventID, memberID int64, accepted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.st.cohosts[eventID] == nil {
		s.st.cohosts[eventID] = map[int64]bool{}
	}
	s.st.cohosts[eventID][memberID] = accepted
}

// RunTx runs fn exclusively. Any error restores the state seen before fn.
func (s *Store) RunTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.st.clone()
	if err := fn(ctx, view{s: s, inTx: true}); err != nil {
		s.st = snapshot
		return err
	}

	return nil
}

// CanAdminister implements access.Policy outside a transaction.
func (s *Store) CanAdminister(ctx context.Context, eventID, memberID int64) (bool, error) {
	return view{s: s}.CanAdminister(ctx, eventID, memberID)
}

func (s *Store) Events() repository.EventRepo       { return view{s: s} }
func (s *Store) Timeslots() repository.TimeslotRepo { return view{s: s} }
func (s *Store) Claims() repository.ClaimRepo       { return (*claimView)(&view{s: s}) }
func (s *Store) Lineup() repository.LineupRepo      { return (*lineupView)(&view{s: s}) }
func (s *Store) Members() repository.MemberRepo     { return view{s: s} }
func (s *Store) Access() repository.AccessRepo      { return view{s: s} }

// view implements the repositories on top of the store. Outside a
// transaction every call takes the mutex itself.
type view struct {
	s    *Store
	inTx bool
}

func (v view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v view) Events() repository.EventRepo       { return v }
func (v view) Timeslots() repository.TimeslotRepo { return v }
func (v view) Claims() repository.ClaimRepo       { return (*claimView)(&v) }
func (v view) Lineup() repository.LineupRepo      { return (*lineupView)(&v) }
func (v view) Members() repository.MemberRepo     { return v }
func (v view) Access() repository.AccessRepo      { return v }

func notFound(op string) error {
	return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
}

// EventRepo

func (v view) GetConfig(_ context.Context, eventID int64) (*domain.EventConfig, error) {
	defer v.lock()()

	ev, ok := v.s.st.events[eventID]
	if !ok {
		return nil, notFound("memory.EventRepo.GetConfig")
	}
	return &ev, nil
}

// TimeslotRepo

func (v view) Get(_ context.Context, id uuid.UUID) (*domain.Timeslot, error) {
	defer v.lock()()

	return v.timeslot("memory.TimeslotRepo.Get", id)
}

func (v view) timeslot(op string, id uuid.UUID) (*domain.Timeslot, error) {
	ts, ok := v.s.st.timeslots[id]
	if !ok {
		return nil, notFound(op)
	}
	return &ts, nil
}

func (v view) Lock(_ context.Context, id uuid.UUID) (*domain.Timeslot, error) {
	defer v.lock()()

	return v.timeslot("memory.TimeslotRepo.Lock", id)
}

func (v view) TryLock(_ context.Context, id uuid.UUID) (*domain.Timeslot, bool, error) {
	defer v.lock()()

	ts, err := v.timeslot("memory.TimeslotRepo.TryLock", id)
	if err != nil {
		return nil, false, err
	}
	return ts, true, nil
}

func (v view) ListByEvent(_ context.Context, eventID int64) ([]domain.Timeslot, error) {
	defer v.lock()()

	return v.slotsOf(eventID), nil
}

func (v view) slotsOf(eventID int64) []domain.Timeslot {
	var out []domain.Timeslot
	for _, ts := range v.s.st.timeslots {
		if ts.EventID == eventID {
			out = append(out, ts)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotIndex < out[j].SlotIndex })
	return out
}

func (v view) DeleteByEvent(_ context.Context, eventID int64) (int64, error) {
	defer v.lock()()

	st := v.s.st
	var n int64
	for id, ts := range st.timeslots {
		if ts.EventID != eventID {
			continue
		}
		delete(st.timeslots, id)
		n++
	}

	kept := st.order[:0]
	for _, cid := range st.order {
		c := st.claims[cid]
		if _, ok := st.timeslots[c.TimeslotID]; !ok {
			delete(st.claims, cid)
			continue
		}
		kept = append(kept, cid)
	}
	st.order = kept

	if l, ok := st.lineup[eventID]; ok && l.NowPlayingTimeslotID != nil {
		if _, ok := st.timeslots[*l.NowPlayingTimeslotID]; !ok {
			l.NowPlayingTimeslotID = nil
			st.lineup[eventID] = l
		}
	}

	return n, nil
}

func (v view) BatchCreate(_ context.Context, slots []domain.Timeslot) error {
	const op = "memory.TimeslotRepo.BatchCreate"
	defer v.lock()()

	st := v.s.st
	for _, s := range slots {
		if _, ok := st.events[s.EventID]; !ok {
			return notFound(op)
		}
		if _, ok := st.timeslots[s.ID]; ok {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
		for _, other := range st.timeslots {
			if other.EventID == s.EventID && other.SlotIndex == s.SlotIndex {
				return fmt.Errorf("%s:%w", op, repository.ErrConflict)
			}
		}
		st.timeslots[s.ID] = s
	}
	return nil
}

// AccessRepo

func (v view) CanAdminister(_ context.Context, eventID, memberID int64) (bool, error) {
	defer v.lock()()

	st := v.s.st
	if st.admins[memberID] {
		return true, nil
	}
	if ev, ok := st.events[eventID]; ok && ev.HostID == memberID {
		return true, nil
	}
	return st.cohosts[eventID][memberID], nil
}

// MemberRepo

func (v view) IncrementNoShow(_ context.Context, memberID int64) (int64, error) {
	defer v.lock()()

	n, ok := v.s.st.noShows[memberID]
	if !ok {
		return 0, notFound("memory.MemberRepo.IncrementNoShow")
	}
	n++
	v.s.st.noShows[memberID] = n
	return n, nil
}

func (v view) NoShowCount(_ context.Context, memberID int64) (int64, error) {
	defer v.lock()()

	n, ok := v.s.st.noShows[memberID]
	if !ok {
		return 0, notFound("memory.MemberRepo.NoShowCount")
	}
	return n, nil
}

type lineupView view

func (l *lineupView) Get(_ context.Context, eventID int64) (*domain.LineupState, error) {
	defer view(*l).lock()()

	st, ok := l.s.st.lineup[eventID]
	if !ok {
		return nil, notFound("memory.LineupRepo.Get")
	}
	return &st, nil
}

func (l *lineupView) Upsert(_ context.Context, st *domain.LineupState) error {
	defer view(*l).lock()()

	if _, ok := l.s.st.events[st.EventID]; !ok {
		return notFound("memory.LineupRepo.Upsert")
	}
	cp := *st
	cp.NowPlayingTimeslotID = copyPtr(st.NowPlayingTimeslotID)
	cp.UpdatedBy = copyPtr(st.UpdatedBy)
	l.s.st.lineup[st.EventID] = cp
	return nil
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyClaim(c domain.Claim) domain.Claim {
	c.OfferExpiresAt = copyPtr(c.OfferExpiresAt)
	c.WaitlistPosition = copyPtr(c.WaitlistPosition)
	c.UpdatedBy = copyPtr(c.UpdatedBy)
	return c
}
