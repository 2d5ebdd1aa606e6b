package postgres

import (
	"context"
	"fmt"
)

// AccessPolicy answers administration questions from the events, event_hosts
// and members tables.
type AccessPolicy struct {
	db DB
}

// CanAdminister reports whether the member hosts the event, is an accepted
// co-host, or is a site administrator.
func (p *AccessPolicy) CanAdminister(ctx context.Context, eventID, memberID int64) (bool, error) {
	const op = "postgres.AccessPolicy.CanAdminister"

	var ok bool
	err := p.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE id = $1 AND host_id = $2)
		     OR EXISTS (SELECT 1 FROM event_hosts
		                WHERE event_id = $1 AND member_id = $2 AND accepted)
		     OR EXISTS (SELECT 1 FROM members WHERE id = $2 AND is_admin)`,
		eventID, memberID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return ok, nil
}
