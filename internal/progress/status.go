package progress

import (
	"slices"
	"time"

	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

// Status is the derived availability of a location for one player.
type Status string

const (
	StatusLocked    Status = "locked"
	StatusAvailable Status = "available"
	StatusCompleted Status = "completed"
)

// Stage is the position of a (player, location) pair in the
// scan -> photo -> quiz challenge.
type Stage string

const (
	StageLocked        Stage = "LOCKED"
	StageAvailableScan Stage = "AVAILABLE_SCAN"
	StageAwaitingPhoto Stage = "AWAITING_PHOTO"
	StageAwaitingQuiz  Stage = "AWAITING_QUIZ"
	StageCooldown      Stage = "COOLDOWN"
	StageCompleted     Stage = "COMPLETED"
)

type LocationStatus struct {
	Location treasurehunt.Location
	Status   Status
}

// Challenge is the current stage of one (player, location) pair.
type Challenge struct {
	LocationID    string
	Status        Status
	Stage         Stage
	Attempts      int
	CooldownUntil *time.Time
	PhotoURL      string
}

// SortLocations returns a copy of locations ordered by UnlockOrder.
func SortLocations(locations []treasurehunt.Location) []treasurehunt.Location {
	sorted := slices.Clone(locations)
	slices.SortStableFunc(sorted, func(a, b treasurehunt.Location) int {
		return a.UnlockOrder - b.UnlockOrder
	})
	return sorted
}

// Statuses derives every location's status from the player's progress
// rows. Only rows with QuizPassed count. A location is available when it
// is first in unlock order or its predecessor is passed; a passed
// location whose predecessor is not passed still reports locked.
func Statuses(locations []treasurehunt.Location, rows []treasurehunt.Progress) []LocationStatus {
	passed := PassedSet(rows)
	sorted := SortLocations(locations)

	out := make([]LocationStatus, len(sorted))
	for i, loc := range sorted {
		st := StatusAvailable
		switch {
		case i > 0 && !passed[sorted[i-1].ID]:
			st = StatusLocked
		case passed[loc.ID]:
			st = StatusCompleted
		}
		out[i] = LocationStatus{Location: loc, Status: st}
	}
	return out
}

// StatusOf returns the status of a single location.
func StatusOf(locations []treasurehunt.Location, rows []treasurehunt.Progress, locationID string) (LocationStatus, error) {
	for _, ls := range Statuses(locations, rows) {
		if ls.Location.ID == locationID {
			return ls, nil
		}
	}
	return LocationStatus{}, treasurehunt.ErrNotFound
}

// PassedSet returns the IDs of locations with a passing row.
func PassedSet(rows []treasurehunt.Progress) map[string]bool {
	passed := make(map[string]bool, len(rows))
	for _, p := range rows {
		if p.QuizPassed {
			passed[p.LocationID] = true
		}
	}
	return passed
}

// StageOf maps a derived status and the stored attempt to a stage. A
// cooldown deadline is compared against now; once it has passed the pair
// is back to AWAITING_QUIZ.
func StageOf(status LocationStatus, a treasurehunt.Attempt, now time.Time) Challenge {
	ch := Challenge{
		LocationID: status.Location.ID,
		Status:     status.Status,
		Attempts:   a.QuizAttempts,
		PhotoURL:   a.PhotoURL,
	}

	switch {
	case status.Status == StatusLocked:
		ch.Stage = StageLocked
	case status.Status == StatusCompleted:
		ch.Stage = StageCompleted
	case a.NextAttemptAllowed != nil && now.Before(*a.NextAttemptAllowed):
		until := *a.NextAttemptAllowed
		ch.Stage = StageCooldown
		ch.CooldownUntil = &until
	case a.PhotoTaken():
		ch.Stage = StageAwaitingQuiz
	case a.Scanned():
		ch.Stage = StageAwaitingPhoto
	default:
		ch.Stage = StageAvailableScan
	}
	return ch
}
