package db

import (
	"fmt"
	"time"
)

/*
Visibility is the same rule for projects, tasks and notes: the entity's
project must not be archived, and a non-superuser needs an active membership
on that project. Keeping the membership predicate in one place stops the
three entity kinds from drifting apart on what "visible" means.
*/

// activeMembership returns a SQL predicate matching rows whose project has a
// membership for one user that is open-ended or expires on or after a given
// date (a membership expiring today is still active). projectCol is the SQL
// expression holding the project id; the caller must append the user id and
// the date to the args at positions pos and pos+1.
func activeMembership(projectCol string, pos int) string {
	return fmt.Sprintf(`EXISTS (
		SELECT 1 FROM project_memberships m
		WHERE m.project_id = %s
		AND m.user_id = $%d
		AND (m.expires_at IS NULL OR m.expires_at >= $%d))`, projectCol, pos, pos+1)
}

// dateOf truncates a point in time to its UTC calendar date. Membership
// expiry and due dates are stored and compared at day granularity.
func dateOf(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
