// Package store holds the single "latest snapshot" slot shared between the
// writer (ingress or poller) and the readers (relay endpoint, presenter).
//
// The store is last-write-wins: every Put replaces the previous record
// regardless of content. There is no merge and no history.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/vpbank/routerpulse/models"
)

// ErrNoData is the explicit "no data yet" sentinel returned by Latest before
// the first Put.
var ErrNoData = errors.New("store: no data yet")

// NeverUpdated is what Age reports before the first Put.
const NeverUpdated time.Duration = -1

// Clock lets tests control time.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// Record is one stored snapshot together with its receipt metadata.
type Record struct {
	Snapshot models.Snapshot

	// Timestamp is the payload's explicit timestamp when it carried one,
	// otherwise the receipt time. Used for display only.
	Timestamp time.Time

	// StoredAt is when Put was called. Age is measured from here.
	StoredAt time.Time
}

// SnapshotStore is a concurrency-safe single-slot store.
type SnapshotStore struct {
	clock Clock

	mu     sync.RWMutex
	record Record
	has    bool
}

// New creates an empty store. A nil clock means RealClock.
func New(clock Clock) *SnapshotStore {
	if clock == nil {
		clock = RealClock{}
	}
	return &SnapshotStore{clock: clock}
}

// Put unconditionally replaces the current snapshot and returns the stored
// record.
func (s *SnapshotStore) Put(snap models.Snapshot) Record {
	now := s.clock.Now()
	rec := Record{Snapshot: snap, Timestamp: now, StoredAt: now}
	if ts := snap.Timestamp(); !ts.IsZero() {
		rec.Timestamp = ts
	}

	s.mu.Lock()
	s.record = rec
	s.has = true
	s.mu.Unlock()
	return rec
}

// Get returns the current record and true, or a zero Record and false before
// the first Put.
func (s *SnapshotStore) Get() (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record, s.has
}

// Latest is Get with ErrNoData in place of the boolean.
func (s *SnapshotStore) Latest() (Record, error) {
	rec, ok := s.Get()
	if !ok {
		return Record{}, ErrNoData
	}
	return rec, nil
}

// Age returns the time elapsed since the last Put, or NeverUpdated.
func (s *SnapshotStore) Age() time.Duration {
	s.mu.RLock()
	has, storedAt := s.has, s.record.StoredAt
	s.mu.RUnlock()

	if !has {
		return NeverUpdated
	}
	age := s.clock.Now().Sub(storedAt)
	if age < 0 {
		return 0
	}
	return age
}
