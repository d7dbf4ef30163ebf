package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mallhunt/treasurehunt/internal/database"
	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

// --- admin accounts and sessions ---

func (s *SQLiteStore) AdminByEmail(ctx context.Context, email string) (string, string, error) {
	var adminID, passwordHash string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, password_hash FROM admins WHERE email = ?
	`, email).Scan(&adminID, &passwordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", treasurehunt.ErrNotFound
	}
	return adminID, passwordHash, err
}

// EnsureAdmin creates the admin or resets its password hash.
func (s *SQLiteStore) EnsureAdmin(ctx context.Context, email, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admins (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET password_hash = excluded.password_hash
	`, uuid.NewString(), email, passwordHash, formatTS(time.Now()))
	return err
}

func (s *SQLiteStore) CreateAdminSession(ctx context.Context, adminID string, expires time.Time) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO admin_sessions (token, admin_id, expires_at)
		VALUES (lower(hex(randomblob(16))), ?, ?)
		RETURNING token
	`, adminID, formatTS(expires)).Scan(&token)
	return token, err
}

func (s *SQLiteStore) DeleteAdminSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM admin_sessions WHERE token = ?`, token)
	return err
}

func (s *SQLiteStore) AdminFromSession(ctx context.Context, token string, now time.Time) (adminSession, error) {
	var sess adminSession
	err := s.db.QueryRowContext(ctx, `
		SELECT a.id, a.email
		FROM admin_sessions s
		JOIN admins a ON a.id = s.admin_id
		WHERE s.token = ? AND s.expires_at > ?
	`, token, formatTS(now)).Scan(&sess.AdminID, &sess.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return adminSession{}, errNoAdminSession
	}
	return sess, err
}

// --- locations ---

func locationArgs(l treasurehunt.Location) ([]any, error) {
	options, err := json.Marshal(l.QuizOptions)
	if err != nil {
		return nil, err
	}
	tokens := l.Tokens
	if tokens == nil {
		tokens = []string{}
	}
	tokenJSON, err := json.Marshal(tokens)
	if err != nil {
		return nil, err
	}
	return []any{l.Name, l.Floor, l.UnlockOrder, l.Description, l.QuizQuestion,
		string(options), l.CorrectAnswer, string(tokenJSON), l.MapX, l.MapY, l.ID}, nil
}

func (s *SQLiteStore) CreateLocation(ctx context.Context, l treasurehunt.Location) error {
	args, err := locationArgs(l)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO locations (name, floor, unlock_order, description, quiz_question,
			quiz_options, correct_answer, tokens, map_x, map_y, id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: id or unlock order already in use", errConflict)
	}
	return err
}

func (s *SQLiteStore) UpdateLocation(ctx context.Context, l treasurehunt.Location) error {
	args, err := locationArgs(l)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE locations SET name = ?, floor = ?, unlock_order = ?, description = ?, quiz_question = ?,
			quiz_options = ?, correct_answer = ?, tokens = ?, map_x = ?, map_y = ?
		WHERE id = ?
	`, args...)
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%w: unlock order already in use", errConflict)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return treasurehunt.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteLocation(ctx context.Context, id string) error {
	var completions int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM player_progress WHERE location_id = ?`, id).Scan(&completions); err != nil {
		return err
	}
	if completions > 0 {
		return fmt.Errorf("%w: location has %d completions", errConflict, completions)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return treasurehunt.ErrNotFound
	}
	return nil
}

// --- signup codes ---

func (s *SQLiteStore) ListSignupCodes(ctx context.Context) ([]treasurehunt.SignupCode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code, status, used_by, used_at, created_at
		FROM signup_codes ORDER BY created_at, code
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []treasurehunt.SignupCode
	for rows.Next() {
		var (
			c              treasurehunt.SignupCode
			usedBy, usedAt sql.NullString
			createdAt      string
		)
		if err := rows.Scan(&c.Code, &c.Status, &usedBy, &usedAt, &createdAt); err != nil {
			return nil, err
		}
		c.UsedBy = usedBy.String
		if c.UsedAt, err = parseNullTS(usedAt); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = parseTS(createdAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateSignupCodes inserts the codes as ACTIVE, skipping ones that
// already exist, and returns those actually created.
func (s *SQLiteStore) CreateSignupCodes(ctx context.Context, codes []string, at time.Time) ([]treasurehunt.SignupCode, error) {
	var created []treasurehunt.SignupCode
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, code := range codes {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO signup_codes (code, status, created_at) VALUES (?, 'ACTIVE', ?)
				ON CONFLICT (code) DO NOTHING
			`, code, formatTS(at))
			if err != nil {
				return fmt.Errorf("inserting code %s: %w", code, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				created = append(created, treasurehunt.SignupCode{Code: code, Status: treasurehunt.CodeActive, CreatedAt: at.UTC()})
			}
		}
		return nil
	})
	return created, err
}

// --- players ---

func (s *SQLiteStore) ListPlayers(ctx context.Context) ([]treasurehunt.Player, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+playerColumns+` FROM players ORDER BY registered_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []treasurehunt.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RepairStats recomputes current_progress and completed_all from the
// passing rows and reports every player whose stored values differed.
// With dryRun nothing is written.
func (s *SQLiteStore) RepairStats(ctx context.Context, dryRun bool) ([]StatRepair, error) {
	var repairs []StatRepair
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT p.id, p.name, p.current_progress, p.completed_all,
				(SELECT COUNT(*) FROM player_progress pp WHERE pp.player_id = p.id AND pp.quiz_passed = 1),
				(SELECT COUNT(*) FROM locations)
			FROM players p
			ORDER BY p.registered_at
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				r             StatRepair
				passed, total int
			)
			if err := rows.Scan(&r.PlayerID, &r.Name, &r.OldProgress, &r.OldCompleted, &passed, &total); err != nil {
				return err
			}
			r.NewProgress = passed
			r.NewCompleted = total > 0 && passed >= total
			if r.NewProgress != r.OldProgress || r.NewCompleted != r.OldCompleted {
				repairs = append(repairs, r)
			}
		}
		if err := rows.Err(); err != nil {
			return err
		}
		rows.Close()

		if dryRun {
			return nil
		}
		for _, r := range repairs {
			if _, err := tx.ExecContext(ctx, refreshPlayerStats+` WHERE id = ?`, r.PlayerID); err != nil {
				return fmt.Errorf("repairing %s: %w", r.PlayerID, err)
			}
		}
		return nil
	})
	return repairs, err
}
