package quota

import (
	"context"
	"fmt"
	"time"
)

// Decision is the outcome of a quota check.
type Decision int

const (
	Allowed Decision = iota
	Denied
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

// Ticket is the result of Check. An allowed non-premium ticket holds one
// reserved slot that must be passed to Consume or Release exactly once.
type Ticket struct {
	UserID   int64
	Day      Day
	Premium  bool
	Decision Decision
}

// Allowed reports whether the request may proceed.
func (t Ticket) Allowed() bool {
	return t.Decision == Allowed
}

func (t Ticket) holdsReservation() bool {
	return t.Decision == Allowed && !t.Premium
}

// Tracker applies the daily free limit on top of a Store.
type Tracker struct {
	store Store
	limit int
	now   func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the clock used to compute the current day.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func NewTracker(store Store, freeLimit int, opts ...Option) (*Tracker, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if freeLimit <= 0 {
		return nil, fmt.Errorf("quota: free limit must be positive, got %d", freeLimit)
	}

	t := &Tracker{
		store: store,
		limit: freeLimit,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Limit returns the daily free allowance.
func (t *Tracker) Limit() int {
	return t.limit
}

// Today is computed on every call; it is never cached.
func (t *Tracker) Today() Day {
	return DayOf(t.now())
}

// Check decides whether userID may ask a question now. Premium users are
// always allowed and nothing is recorded. Otherwise a slot is reserved
// when one is free.
func (t *Tracker) Check(ctx context.Context, userID int64) (Ticket, error) {
	ticket := Ticket{UserID: userID, Day: t.Today(), Decision: Denied}

	premium, err := t.store.IsPremium(ctx, userID)
	if err != nil {
		return ticket, fmt.Errorf("check premium status: %w", err)
	}
	if premium {
		ticket.Premium = true
		ticket.Decision = Allowed
		return ticket, nil
	}

	ok, err := t.store.Reserve(ctx, userID, ticket.Day, t.limit)
	if err != nil {
		return ticket, fmt.Errorf("reserve quota: %w", err)
	}
	if ok {
		ticket.Decision = Allowed
	}
	return ticket, nil
}

// Consume counts an answered question against the ticket's day.
func (t *Tracker) Consume(ctx context.Context, ticket Ticket) error {
	if !ticket.holdsReservation() {
		return nil
	}
	if err := t.store.Commit(ctx, ticket.UserID, ticket.Day); err != nil {
		return fmt.Errorf("commit quota: %w", err)
	}
	return nil
}

// Release returns the ticket's slot without counting it.
func (t *Tracker) Release(ctx context.Context, ticket Ticket) error {
	if !ticket.holdsReservation() {
		return nil
	}
	if err := t.store.Rollback(ctx, ticket.UserID, ticket.Day); err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}

// Usage returns today's record for userID.
func (t *Tracker) Usage(ctx context.Context, userID int64) (UsageRecord, error) {
	return t.store.Usage(ctx, userID, t.Today())
}

// Remaining returns how many questions userID may still ask today, or -1
// for premium users.
func (t *Tracker) Remaining(ctx context.Context, userID int64) (int, error) {
	premium, err := t.store.IsPremium(ctx, userID)
	if err != nil {
		return 0, err
	}
	if premium {
		return -1, nil
	}

	rec, err := t.Usage(ctx, userID)
	if err != nil {
		return 0, err
	}
	left := t.limit - rec.Count - rec.Reserved
	if left < 0 {
		left = 0
	}
	return left, nil
}

// Upgrade adds userID to the premium set.
func (t *Tracker) Upgrade(ctx context.Context, userID int64) error {
	if err := t.store.AddPremium(ctx, userID); err != nil {
		return fmt.Errorf("add premium user: %w", err)
	}
	return nil
}

func (t *Tracker) IsPremium(ctx context.Context, userID int64) (bool, error) {
	return t.store.IsPremium(ctx, userID)
}
