package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

func ptr(f float64) *float64 { return &f }

var demoLocations = []treasurehunt.Location{
	{
		ID:            "main_lobby",
		Name:          "Main Lobby",
		Floor:         "GF",
		UnlockOrder:   1,
		Description:   "Start at the fountain by the main entrance.",
		QuizQuestion:  "Kapan Indonesia memproklamirkan kemerdekaan?",
		QuizOptions:   []string{"16 Agustus 1945", "17 Agustus 1945", "18 Agustus 1945", "19 Agustus 1945"},
		CorrectAnswer: "17 Agustus 1945",
		MapX:          ptr(50),
		MapY:          ptr(80),
	},
	{
		ID:            "south_lobby",
		Name:          "South Lobby",
		Floor:         "GF",
		UnlockOrder:   2,
		Description:   "Find the QR poster next to the south escalators.",
		QuizQuestion:  "Siapa yang membacakan teks proklamasi kemerdekaan Indonesia?",
		QuizOptions:   []string{"Mohammad Hatta", "Soekarno", "Soeharto", "Tan Malaka"},
		CorrectAnswer: "Soekarno",
		MapX:          ptr(50),
		MapY:          ptr(20),
	},
	{
		ID:            "u_walk",
		Name:          "U Walk",
		Floor:         "GF",
		UnlockOrder:   3,
		Description:   "Walk the open-air promenade to the information kiosk.",
		QuizQuestion:  "Apa bunyi sila pertama Pancasila?",
		QuizOptions:   []string{"Kemanusiaan yang adil dan beradab", "Ketuhanan Yang Maha Esa", "Persatuan Indonesia", "Keadilan sosial bagi seluruh rakyat Indonesia"},
		CorrectAnswer: "Ketuhanan Yang Maha Esa",
		MapX:          ptr(15),
		MapY:          ptr(50),
	},
	{
		ID:            "east_dome",
		Name:          "East Dome",
		Floor:         "FF",
		UnlockOrder:   4,
		Description:   "Go up to the first floor under the glass dome.",
		QuizQuestion:  "Apa semboyan bangsa Indonesia?",
		QuizOptions:   []string{"Bhinneka Tunggal Ika", "Gotong Royong", "Merdeka atau Mati", "Tut Wuri Handayani"},
		CorrectAnswer: "Bhinneka Tunggal Ika",
		MapX:          ptr(85),
		MapY:          ptr(50),
	},
}

var demoCodes = []string{"ABC123", "DEF456", "GHI789", "JKL012", "MNO345"}

// SeedDemo creates the demo locations and signup codes when no location
// exists yet. It does nothing on a populated database.
func SeedDemo(ctx context.Context, logger *slog.Logger, store Store) error {
	existing, err := store.Locations(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	for _, loc := range demoLocations {
		if err := store.CreateLocation(ctx, loc); err != nil {
			return fmt.Errorf("seeding location %s: %w", loc.ID, err)
		}
	}
	if _, err := store.CreateSignupCodes(ctx, demoCodes, time.Now()); err != nil {
		return fmt.Errorf("seeding signup codes: %w", err)
	}

	logger.Info("demo locations and signup codes seeded", "locations", len(demoLocations), "codes", len(demoCodes))
	return nil
}
