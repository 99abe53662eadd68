// Package quota tracks the daily free-tier allowance of each user and the
// set of premium users that bypass it.
//
// A request is checked and a slot reserved in one atomic store operation.
// The reservation is later committed (counted) or rolled back, so two
// in-flight requests from one user can never both take the last slot.
package quota

import (
	"context"
	"errors"
	"time"
)

// Day is a UTC calendar date in YYYY-MM-DD form.
type Day string

// DayOf returns the UTC calendar date of t.
func DayOf(t time.Time) Day {
	return Day(t.UTC().Format(time.DateOnly))
}

// UsageRecord is the per-user usage for one day.
type UsageRecord struct {
	Date     Day
	Count    int
	Reserved int
}

// ErrNilStore is returned when a Tracker is built without a store.
var ErrNilStore = errors.New("quota: store is nil")

// Store holds usage records and the premium set.
//
// Reserve must reset a record whose date differs from day before checking
// it, and must check and reserve in one atomic step.
type Store interface {
	// Reserve takes one slot for userID on day if Count+Reserved < limit.
	Reserve(ctx context.Context, userID int64, day Day, limit int) (bool, error)

	// Commit turns a reservation made on day into a counted use.
	// A reservation from a day that has since been reset is dropped.
	Commit(ctx context.Context, userID int64, day Day) error

	// Rollback releases a reservation made on day without counting it.
	Rollback(ctx context.Context, userID int64, day Day) error

	// Usage returns the record for day; a missing or stale record reads as empty.
	Usage(ctx context.Context, userID int64, day Day) (UsageRecord, error)

	AddPremium(ctx context.Context, userID int64) error
	IsPremium(ctx context.Context, userID int64) (bool, error)

	Close() error
}
