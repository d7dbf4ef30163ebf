package progress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

type pairKey struct{ player, location string }

// memStore is an in-memory Store with the same commit-time guarantees
// as the SQLite store: one passing row per pair and a conditional
// cooldown write.
type memStore struct {
	mu        sync.Mutex
	locations []treasurehunt.Location
	passed    map[pairKey]treasurehunt.Progress
	attempts  map[pairKey]treasurehunt.Attempt
	nextID    int64

	failComplete   error
	beforeComplete func()
}

func newMemStore(locations ...treasurehunt.Location) *memStore {
	return &memStore{
		locations: locations,
		passed:    make(map[pairKey]treasurehunt.Progress),
		attempts:  make(map[pairKey]treasurehunt.Attempt),
	}
}

func (m *memStore) Locations(context.Context) ([]treasurehunt.Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SortLocations(m.locations), nil
}

func (m *memStore) PassingProgress(_ context.Context, playerID string) ([]treasurehunt.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []treasurehunt.Progress
	for k, p := range m.passed {
		if k.player == playerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) passingRows(playerID, locationID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.passed[pairKey{playerID, locationID}]; ok {
		return 1
	}
	return 0
}

func (m *memStore) Attempts(_ context.Context, playerID string) ([]treasurehunt.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []treasurehunt.Attempt
	for k, a := range m.attempts {
		if k.player == playerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) Attempt(_ context.Context, playerID, locationID string) (treasurehunt.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[pairKey{playerID, locationID}]
	if !ok {
		return treasurehunt.Attempt{PlayerID: playerID, LocationID: locationID}, nil
	}
	return a, nil
}

func (m *memStore) row(playerID, locationID string) treasurehunt.Attempt {
	a, ok := m.attempts[pairKey{playerID, locationID}]
	if !ok {
		a = treasurehunt.Attempt{PlayerID: playerID, LocationID: locationID}
	}
	return a
}

func (m *memStore) RecordScan(_ context.Context, playerID, locationID, method string, at time.Time) (treasurehunt.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.row(playerID, locationID)
	if a.ScannedAt == nil {
		a.ScannedAt, a.ScanMethod = &at, method
	}
	m.attempts[pairKey{playerID, locationID}] = a
	return a, nil
}

func (m *memStore) RecordPhoto(_ context.Context, playerID, locationID, url string, at time.Time) (treasurehunt.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.row(playerID, locationID)
	a.PhotoURL, a.PhotoAt = url, &at
	m.attempts[pairKey{playerID, locationID}] = a
	return a, nil
}

func (m *memStore) RecordWrongAnswer(_ context.Context, playerID, locationID string, at, until time.Time) (treasurehunt.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.row(playerID, locationID)
	if a.NextAttemptAllowed != nil && at.Before(*a.NextAttemptAllowed) {
		return a, treasurehunt.ErrCooldownActive
	}
	a.QuizAttempts++
	a.NextAttemptAllowed = &until
	m.attempts[pairKey{playerID, locationID}] = a
	return a, nil
}

func (m *memStore) ClearAttempts(_ context.Context, playerID, locationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := pairKey{playerID, locationID}
	a, ok := m.attempts[k]
	if !ok {
		return nil
	}
	a.QuizAttempts, a.NextAttemptAllowed = 0, nil
	m.attempts[k] = a
	return nil
}

func (m *memStore) CompleteLocation(_ context.Context, playerID, locationID string, at time.Time) (treasurehunt.Progress, error) {
	if m.beforeComplete != nil {
		m.beforeComplete()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failComplete != nil {
		return treasurehunt.Progress{}, m.failComplete
	}
	k := pairKey{playerID, locationID}
	if _, ok := m.passed[k]; ok {
		return treasurehunt.Progress{}, treasurehunt.ErrAlreadyCompleted
	}
	a := m.row(playerID, locationID)
	if a.NextAttemptAllowed != nil && a.NextAttemptAllowed.After(at) {
		return treasurehunt.Progress{}, treasurehunt.ErrCooldownActive
	}
	if prev, ok := m.predecessor(locationID); ok {
		if _, done := m.passed[pairKey{playerID, prev}]; !done {
			return treasurehunt.Progress{}, treasurehunt.ErrLocationLocked
		}
	}
	m.nextID++
	p := treasurehunt.Progress{
		ID:           m.nextID,
		PlayerID:     playerID,
		LocationID:   locationID,
		CompletedAt:  at,
		PhotoURL:     a.PhotoURL,
		QuizAttempts: a.QuizAttempts + 1,
		QuizPassed:   true,
	}
	m.passed[k] = p
	a.QuizAttempts, a.NextAttemptAllowed = 0, nil
	m.attempts[k] = a
	return p, nil
}

// predecessor returns the location directly before id in unlock order.
// Callers hold m.mu.
func (m *memStore) predecessor(id string) (string, bool) {
	sorted := SortLocations(m.locations)
	for i, l := range sorted {
		if l.ID == id && i > 0 {
			return sorted[i-1].ID, true
		}
	}
	return "", false
}

var errStoreDown = errors.New("store unavailable")
