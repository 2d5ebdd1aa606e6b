package access

import (
	"context"
	"fmt"

	"github.com/kirinyoku/openmic/internal/domain"
)

// Policy decides whether a member may administer an event (host, accepted
// co-host or site admin).
type Policy interface {
	CanAdminister(ctx context.Context, eventID, memberID int64) (bool, error)
}

// Require returns domain.ErrPermissionDenied unless caller administers the
// event. Guests never do.
func Require(ctx context.Context, p Policy, eventID int64, caller domain.Occupant) error {
	const op = "access.Require"

	memberID, ok := domain.MemberID(caller)
	if !ok {
		return fmt.Errorf("%s:%w", op, domain.ErrPermissionDenied)
	}

	allowed, err := p.CanAdminister(ctx, eventID, memberID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if !allowed {
		return fmt.Errorf("%s:%w", op, domain.ErrPermissionDenied)
	}

	return nil
}
