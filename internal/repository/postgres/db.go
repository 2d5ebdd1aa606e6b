package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/openmic/internal/repository"
)

const maxTxAttempts = 3

type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

// RunTx runs fn in a read-committed transaction. Mutual exclusion comes from
// explicit row locks taken by the repositories, so serializable isolation is
// not needed. Deadlocks and serialization failures are retried.
func (s *Store) RunTx(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTxOnce(ctx, fn)
		if err == nil || !IsRetryable(err) || ctx.Err() != nil {
			return err
		}
	}

	return err
}

func (s *Store) runTxOnce(
	ctx context.Context,
	fn func(ctx context.Context, tx repository.Repos) error,
) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(ctx, bound{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func (s *Store) Events() repository.EventRepo       { return &EventRepo{db: s.pool} }
func (s *Store) Timeslots() repository.TimeslotRepo { return &TimeslotRepo{db: s.pool} }
func (s *Store) Claims() repository.ClaimRepo       { return &ClaimRepo{db: s.pool} }
func (s *Store) Lineup() repository.LineupRepo      { return &LineupRepo{db: s.pool} }
func (s *Store) Members() repository.MemberRepo     { return &MemberRepo{db: s.pool} }

// Access returns the access policy backed by the events tables.
func (s *Store) Access() repository.AccessRepo { return &AccessPolicy{db: s.pool} }

// bound hands out repositories running on a single transaction.
type bound struct {
	db DB
}

func (b bound) Events() repository.EventRepo       { return &EventRepo{db: b.db} }
func (b bound) Timeslots() repository.TimeslotRepo { return &TimeslotRepo{db: b.db} }
func (b bound) Claims() repository.ClaimRepo       { return &ClaimRepo{db: b.db} }
func (b bound) Lineup() repository.LineupRepo      { return &LineupRepo{db: b.db} }
func (b bound) Members() repository.MemberRepo     { return &MemberRepo{db: b.db} }
func (b bound) Access() repository.AccessRepo      { return &AccessPolicy{db: b.db} }
