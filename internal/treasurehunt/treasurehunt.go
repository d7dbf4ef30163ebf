// Package treasurehunt defines the core domain types and errors.
// It has no external dependencies.
package treasurehunt

import (
	"errors"
	"time"
)

type Player struct {
	ID              string
	Name            string
	Phone           string
	SignupCode      string
	RegisteredAt    time.Time
	CurrentProgress int
	CompletedAll    bool
}

type CodeStatus string

const (
	CodeActive CodeStatus = "ACTIVE"
	CodeUsed   CodeStatus = "USED"
)

type SignupCode struct {
	Code      string
	Status    CodeStatus
	UsedBy    string
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Location is a fixed challenge site. UnlockOrder defines a strict linear
// sequence starting at 1.
type Location struct {
	ID            string
	Name          string
	Floor         string
	UnlockOrder   int
	Description   string
	QuizQuestion  string
	QuizOptions   []string
	CorrectAnswer string
	Tokens        []string
	MapX          *float64
	MapY          *float64
}

// Progress is a passing record: the player completed the location.
type Progress struct {
	ID           int64
	PlayerID     string
	LocationID   string
	CompletedAt  time.Time
	PhotoURL     string
	QuizAttempts int
	QuizPassed   bool
}

// Attempt is the in-flight challenge state for one (player, location)
// pair. It is cleared when the quiz is passed.
type Attempt struct {
	PlayerID           string
	LocationID         string
	ScannedAt          *time.Time
	ScanMethod         string
	PhotoURL           string
	PhotoAt            *time.Time
	QuizAttempts       int
	NextAttemptAllowed *time.Time
}

func (a Attempt) Scanned() bool { return a.ScannedAt != nil }

func (a Attempt) PhotoTaken() bool { return a.PhotoAt != nil }

const (
	ScanMethodCamera = "camera"
	ScanMethodManual = "manual"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrCodeInvalid      = errors.New("signup code invalid")
	ErrCodeUsed         = errors.New("signup code already used")
	ErrPhoneTaken       = errors.New("phone already registered")
	ErrLocationLocked   = errors.New("location locked")
	ErrAlreadyCompleted = errors.New("location already completed")
	ErrCooldownActive   = errors.New("quiz cooldown active")
	ErrWrongStage       = errors.New("action not allowed at current stage")
	ErrInvalidOption    = errors.New("option not offered by quiz")
	ErrPhotoRejected    = errors.New("photo rejected")
)
