package quota

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store. State is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	usage   map[int64]*UsageRecord
	premium map[int64]struct{}
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usage:   make(map[int64]*UsageRecord),
		premium: make(map[int64]struct{}),
	}
}

// record returns the user's record for day, creating or resetting it.
// Caller must hold s.mu.
func (s *MemoryStore) record(userID int64, day Day) *UsageRecord {
	rec, ok := s.usage[userID]
	if !ok || rec.Date != day {
		rec = &UsageRecord{Date: day}
		s.usage[userID] = rec
	}
	return rec
}

func (s *MemoryStore) Reserve(_ context.Context, userID int64, day Day, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(userID, day)
	if rec.Count+rec.Reserved >= limit {
		return false, nil
	}
	rec.Reserved++
	return true, nil
}

func (s *MemoryStore) Commit(_ context.Context, userID int64, day Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.usage[userID]
	if !ok || rec.Date != day || rec.Reserved == 0 {
		return nil
	}
	rec.Reserved--
	rec.Count++
	return nil
}

func (s *MemoryStore) Rollback(_ context.Context, userID int64, day Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.usage[userID]
	if !ok || rec.Date != day || rec.Reserved == 0 {
		return nil
	}
	rec.Reserved--
	return nil
}

func (s *MemoryStore) Usage(_ context.Context, userID int64, day Day) (UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.usage[userID]
	if !ok || rec.Date != day {
		return UsageRecord{Date: day}, nil
	}
	return *rec, nil
}

func (s *MemoryStore) AddPremium(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.premium[userID] = struct{}{}
	return nil
}

func (s *MemoryStore) IsPremium(_ context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.premium[userID]
	return ok, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
