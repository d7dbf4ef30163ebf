package server

import (
	"context"
	"time"

	"github.com/mallhunt/treasurehunt/internal/progress"
	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

type RegisterParams struct {
	Code  string
	Name  string
	Phone string
	At    time.Time
}

// StatRepair describes one player whose denormalized counters disagreed
// with the passing rows.
type StatRepair struct {
	PlayerID     string `json:"playerId"`
	Name         string `json:"name"`
	OldProgress  int    `json:"oldProgress"`
	NewProgress  int    `json:"newProgress"`
	OldCompleted bool   `json:"oldCompleted"`
	NewCompleted bool   `json:"newCompleted"`
}

// Store is everything the handlers persist. The progression methods are
// shared with the engine.
type Store interface {
	progress.Store

	SignupCode(ctx context.Context, code string) (treasurehunt.SignupCode, error)
	RegisterPlayer(ctx context.Context, p RegisterParams) (treasurehunt.Player, error)
	Player(ctx context.Context, id string) (treasurehunt.Player, error)
	PlayerByPhone(ctx context.Context, phone string) (treasurehunt.Player, error)

	AdminByEmail(ctx context.Context, email string) (adminID, passwordHash string, err error)
	EnsureAdmin(ctx context.Context, email, passwordHash string) error
	CreateAdminSession(ctx context.Context, adminID string, expires time.Time) (token string, err error)
	DeleteAdminSession(ctx context.Context, token string) error
	AdminFromSession(ctx context.Context, token string, now time.Time) (adminSession, error)

	Location(ctx context.Context, id string) (treasurehunt.Location, error)
	CreateLocation(ctx context.Context, loc treasurehunt.Location) error
	UpdateLocation(ctx context.Context, loc treasurehunt.Location) error
	DeleteLocation(ctx context.Context, id string) error

	ListSignupCodes(ctx context.Context) ([]treasurehunt.SignupCode, error)
	CreateSignupCodes(ctx context.Context, codes []string, at time.Time) ([]treasurehunt.SignupCode, error)
	ListPlayers(ctx context.Context) ([]treasurehunt.Player, error)
	RepairStats(ctx context.Context, dryRun bool) ([]StatRepair, error)
}
