package migrations_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/mallhunt/treasurehunt/internal/database"
	"github.com/mallhunt/treasurehunt/internal/migrations"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestMigrations(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, discard); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	want := []string{"signup_codes", "players", "locations", "challenge_attempts", "player_progress", "admins", "admin_sessions"}

	for _, table := range want {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", table, err)
		}
	}

	v, err := migrations.Version(ctx, db)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 1 {
		t.Errorf("expected schema version 1, got %d", v)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, discard); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := migrations.Run(ctx, db, discard); err != nil {
		t.Fatalf("second run (should be no-op): %v", err)
	}
}

func TestProgressUniquePerPlayerLocation(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	defer db.Close()
	if err := migrations.Run(ctx, db, discard); err != nil {
		t.Fatalf("running migrations: %v", err)
	}

	stmts := []string{
		`INSERT INTO signup_codes (code, status, created_at) VALUES ('ABC123', 'ACTIVE', '2025-01-01T00:00:00.000000000Z')`,
		`INSERT INTO players (id, name, phone, signup_code, registered_at) VALUES ('p1', 'Ani', '081234567890', 'ABC123', '2025-01-01T00:00:00.000000000Z')`,
		`INSERT INTO locations (id, name, floor, unlock_order, quiz_question, quiz_options, correct_answer) VALUES ('main_lobby', 'Main Lobby', 'GF', 1, 'Q?', '["a","b"]', 'a')`,
		`INSERT INTO player_progress (player_id, location_id, completed_at, quiz_attempts, quiz_passed) VALUES ('p1', 'main_lobby', '2025-01-01T00:00:00.000000000Z', 1, 1)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}

	_, err = db.ExecContext(ctx, `INSERT INTO player_progress (player_id, location_id, completed_at, quiz_attempts, quiz_passed) VALUES ('p1', 'main_lobby', '2025-01-01T00:00:01.000000000Z', 1, 1)`)
	if !database.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}
