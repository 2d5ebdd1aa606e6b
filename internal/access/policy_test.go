package access

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/kirinyoku/openmic/internal/domain"
	"github.com/stretchr/testify/assert"
)

type policyFunc func(ctx context.Context, eventID, memberID int64) (bool, error)

func (f policyFunc) CanAdminister(ctx context.Context, eventID, memberID int64) (bool, error) {
	return f(ctx, eventID, memberID)
}

func TestRequire(t *testing.T) {
	ctx := context.Background()
	hostOnly := policyFunc(func(_ context.Context, eventID, memberID int64) (bool, error) {
		return eventID == 1 && memberID == 10, nil
	})

	assert.NoError(t, Require(ctx, hostOnly, 1, domain.Member{ID: 10}))
	assert.ErrorIs(t, Require(ctx, hostOnly, 1, domain.Member{ID: 11}), domain.ErrPermissionDenied)
	assert.ErrorIs(t, Require(ctx, hostOnly, 2, domain.Member{ID: 10}), domain.ErrPermissionDenied)
	assert.ErrorIs(t,
		Require(ctx, hostOnly, 1, domain.Guest{Name: "g", VerificationID: uuid.New()}),
		domain.ErrPermissionDenied)

	boom := errors.New("boom")
	failing := policyFunc(func(context.Context, int64, int64) (bool, error) { return false, boom })
	err := Require(ctx, failing, 1, domain.Member{ID: 10})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrPermissionDenied)
}
