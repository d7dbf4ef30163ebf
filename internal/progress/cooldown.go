package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

// DefaultCooldown is the lockout after a wrong quiz answer.
const DefaultCooldown = 3 * time.Hour

// CooldownError reports an active lockout. It matches
// treasurehunt.ErrCooldownActive with errors.Is.
type CooldownError struct {
	Until time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("quiz cooldown active until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *CooldownError) Is(target error) bool {
	return target == treasurehunt.ErrCooldownActive
}

// CooldownStore persists attempt counters and lockout deadlines.
//
// RecordWrongAnswer must refuse (ErrCooldownActive) when the stored
// deadline is after at; the check and the write happen in one statement.
type CooldownStore interface {
	Attempt(ctx context.Context, playerID, locationID string) (treasurehunt.Attempt, error)
	RecordWrongAnswer(ctx context.Context, playerID, locationID string, at, until time.Time) (treasurehunt.Attempt, error)
	ClearAttempts(ctx context.Context, playerID, locationID string) error
}

// Tracker records quiz attempts and answers lockout queries against the
// stored deadline, so a reload or another device sees the same lockout.
type Tracker struct {
	store    CooldownStore
	cooldown time.Duration
	now      func() time.Time
}

func NewTracker(store CooldownStore, cooldown time.Duration, now func() time.Time) *Tracker {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{store: store, cooldown: cooldown, now: now}
}

// RecordAttempt clears the counter and lockout on a correct answer, and
// increments the counter and starts a new lockout on a wrong one.
func (t *Tracker) RecordAttempt(ctx context.Context, playerID, locationID string, wasCorrect bool) (treasurehunt.Attempt, error) {
	if wasCorrect {
		if err := t.store.ClearAttempts(ctx, playerID, locationID); err != nil {
			return treasurehunt.Attempt{}, fmt.Errorf("clearing attempts: %w", err)
		}
		return t.store.Attempt(ctx, playerID, locationID)
	}

	at := t.now()
	a, err := t.store.RecordWrongAnswer(ctx, playerID, locationID, at, at.Add(t.cooldown))
	if errors.Is(err, treasurehunt.ErrCooldownActive) {
		if until, locked, lerr := t.IsLocked(ctx, playerID, locationID); lerr == nil && locked {
			return a, &CooldownError{Until: until}
		}
		return a, err
	}
	if err != nil {
		return a, fmt.Errorf("recording wrong answer: %w", err)
	}
	return a, nil
}

// IsLocked reports whether the pair is inside a lockout window.
func (t *Tracker) IsLocked(ctx context.Context, playerID, locationID string) (time.Time, bool, error) {
	a, err := t.store.Attempt(ctx, playerID, locationID)
	if err != nil {
		return time.Time{}, false, err
	}
	if a.NextAttemptAllowed == nil || !t.now().Before(*a.NextAttemptAllowed) {
		return time.Time{}, false, nil
	}
	return *a.NextAttemptAllowed, true, nil
}
