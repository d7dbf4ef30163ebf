package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mallhunt/treasurehunt/internal/database"
	"github.com/mallhunt/treasurehunt/internal/treasurehunt"
)

// Timestamps are stored as fixed-width UTC text so that string
// comparison in SQL orders them correctly.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

func formatTS(t time.Time) string { return t.UTC().Format(tsLayout) }

func parseTS(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Parse(time.RFC3339Nano, s)
	}
	return t, nil
}

func parseNullTS(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTS(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// --- signup and players ---

func (s *SQLiteStore) SignupCode(ctx context.Context, code string) (treasurehunt.SignupCode, error) {
	var (
		c              treasurehunt.SignupCode
		usedBy, usedAt sql.NullString
		createdAt      string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT code, status, used_by, used_at, created_at
		FROM signup_codes WHERE code = ?
	`, code).Scan(&c.Code, &c.Status, &usedBy, &usedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return c, treasurehunt.ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.UsedBy = usedBy.String
	if c.UsedAt, err = parseNullTS(usedAt); err != nil {
		return c, err
	}
	c.CreatedAt, err = parseTS(createdAt)
	return c, err
}

// RegisterPlayer consumes the code and creates the player in one
// transaction. The code flips ACTIVE to USED through a conditional
// update, so two concurrent registrations cannot both succeed.
func (s *SQLiteStore) RegisterPlayer(ctx context.Context, p RegisterParams) (treasurehunt.Player, error) {
	player := treasurehunt.Player{
		ID:           uuid.NewString(),
		Name:         p.Name,
		Phone:        p.Phone,
		SignupCode:   p.Code,
		RegisteredAt: p.At.UTC(),
	}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE signup_codes SET status = 'USED', used_by = ?, used_at = ?
			WHERE code = ? AND status = 'ACTIVE'
		`, player.ID, formatTS(p.At), p.Code)
		if err != nil {
			return fmt.Errorf("claiming code: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			var status string
			err := tx.QueryRowContext(ctx, `SELECT status FROM signup_codes WHERE code = ?`, p.Code).Scan(&status)
			if errors.Is(err, sql.ErrNoRows) {
				return treasurehunt.ErrCodeInvalid
			}
			if err != nil {
				return err
			}
			return treasurehunt.ErrCodeUsed
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO players (id, name, phone, signup_code, registered_at)
			VALUES (?, ?, ?, ?, ?)
		`, player.ID, player.Name, player.Phone, player.SignupCode, formatTS(p.At))
		if database.IsUniqueViolation(err) {
			if strings.Contains(err.Error(), "phone") {
				return treasurehunt.ErrPhoneTaken
			}
			return treasurehunt.ErrCodeUsed
		}
		if err != nil {
			return fmt.Errorf("inserting player: %w", err)
		}
		return nil
	})
	if err != nil {
		return treasurehunt.Player{}, err
	}
	return player, nil
}

const playerColumns = `id, name, phone, signup_code, registered_at, current_progress, completed_all`

func scanPlayer(row interface{ Scan(...any) error }) (treasurehunt.Player, error) {
	var (
		p            treasurehunt.Player
		registeredAt string
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.SignupCode, &registeredAt, &p.CurrentProgress, &p.CompletedAll); err != nil {
		return p, err
	}
	var err error
	p.RegisteredAt, err = parseTS(registeredAt)
	return p, err
}

func (s *SQLiteStore) Player(ctx context.Context, id string) (treasurehunt.Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, treasurehunt.ErrNotFound
	}
	return p, err
}

func (s *SQLiteStore) PlayerByPhone(ctx context.Context, phone string) (treasurehunt.Player, error) {
	p, err := scanPlayer(s.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE phone = ?`, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return p, treasurehunt.ErrNotFound
	}
	return p, err
}

// --- locations ---

const locationColumns = `id, name, floor, unlock_order, description, quiz_question, quiz_options, correct_answer, tokens, map_x, map_y`

func scanLocation(row interface{ Scan(...any) error }) (treasurehunt.Location, error) {
	var (
		l               treasurehunt.Location
		options, tokens string
		mapX, mapY      sql.NullFloat64
	)
	if err := row.Scan(&l.ID, &l.Name, &l.Floor, &l.UnlockOrder, &l.Description, &l.QuizQuestion,
		&options, &l.CorrectAnswer, &tokens, &mapX, &mapY); err != nil {
		return l, err
	}
	if err := json.Unmarshal([]byte(options), &l.QuizOptions); err != nil {
		return l, fmt.Errorf("decoding quiz options of %s: %w", l.ID, err)
	}
	if err := json.Unmarshal([]byte(tokens), &l.Tokens); err != nil {
		return l, fmt.Errorf("decoding tokens of %s: %w", l.ID, err)
	}
	if mapX.Valid {
		l.MapX = &mapX.Float64
	}
	if mapY.Valid {
		l.MapY = &mapY.Float64
	}
	return l, nil
}

func (s *SQLiteStore) Locations(ctx context.Context) ([]treasurehunt.Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY unlock_order`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []treasurehunt.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Location(ctx context.Context, id string) (treasurehunt.Location, error) {
	l, err := scanLocation(s.db.QueryRowContext(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return l, treasurehunt.ErrNotFound
	}
	return l, err
}

// --- progression ---

func (s *SQLiteStore) PassingProgress(ctx context.Context, playerID string) ([]treasurehunt.Progress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player_id, location_id, completed_at, photo_url, quiz_attempts, quiz_passed
		FROM player_progress
		WHERE player_id = ? AND quiz_passed = 1
		ORDER BY completed_at
	`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []treasurehunt.Progress
	for rows.Next() {
		var (
			p           treasurehunt.Progress
			completedAt string
		)
		if err := rows.Scan(&p.ID, &p.PlayerID, &p.LocationID, &completedAt, &p.PhotoURL, &p.QuizAttempts, &p.QuizPassed); err != nil {
			return nil, err
		}
		if p.CompletedAt, err = parseTS(completedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const attemptColumns = `player_id, location_id, scanned_at, scan_method, photo_url, photo_at, quiz_attempts, next_attempt_allowed`

func scanAttempt(row interface{ Scan(...any) error }) (treasurehunt.Attempt, error) {
	var (
		a                         treasurehunt.Attempt
		scannedAt, photoAt, until sql.NullString
	)
	if err := row.Scan(&a.PlayerID, &a.LocationID, &scannedAt, &a.ScanMethod, &a.PhotoURL, &photoAt, &a.QuizAttempts, &until); err != nil {
		return a, err
	}
	var err error
	if a.ScannedAt, err = parseNullTS(scannedAt); err != nil {
		return a, err
	}
	if a.PhotoAt, err = parseNullTS(photoAt); err != nil {
		return a, err
	}
	a.NextAttemptAllowed, err = parseNullTS(until)
	return a, err
}

func (s *SQLiteStore) Attempts(ctx context.Context, playerID string) ([]treasurehunt.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+attemptColumns+` FROM challenge_attempts WHERE player_id = ?`, playerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []treasurehunt.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Attempt(ctx context.Context, playerID, locationID string) (treasurehunt.Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM challenge_attempts WHERE player_id = ? AND location_id = ?`,
		playerID, locationID))
	if errors.Is(err, sql.ErrNoRows) {
		return treasurehunt.Attempt{PlayerID: playerID, LocationID: locationID}, nil
	}
	return a, err
}

func (s *SQLiteStore) RecordScan(ctx context.Context, playerID, locationID, method string, at time.Time) (treasurehunt.Attempt, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenge_attempts (player_id, location_id, scanned_at, scan_method)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (player_id, location_id) DO UPDATE SET
			scan_method = CASE WHEN challenge_attempts.scanned_at IS NULL THEN excluded.scan_method ELSE challenge_attempts.scan_method END,
			scanned_at  = COALESCE(challenge_attempts.scanned_at, excluded.scanned_at)
	`, playerID, locationID, formatTS(at), method)
	if err != nil {
		return treasurehunt.Attempt{}, err
	}
	return s.Attempt(ctx, playerID, locationID)
}

func (s *SQLiteStore) RecordPhoto(ctx context.Context, playerID, locationID, photoURL string, at time.Time) (treasurehunt.Attempt, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenge_attempts (player_id, location_id, photo_url, photo_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (player_id, location_id) DO UPDATE SET
			photo_url = excluded.photo_url,
			photo_at  = excluded.photo_at
	`, playerID, locationID, photoURL, formatTS(at))
	if err != nil {
		return treasurehunt.Attempt{}, err
	}
	return s.Attempt(ctx, playerID, locationID)
}

// RecordWrongAnswer increments the counter and sets the new deadline
// only when no lockout is active at `at`. The condition lives in the
// upsert itself.
func (s *SQLiteStore) RecordWrongAnswer(ctx context.Context, playerID, locationID string, at, until time.Time) (treasurehunt.Attempt, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO challenge_attempts (player_id, location_id, quiz_attempts, next_attempt_allowed)
		VALUES (?, ?, 1, ?)
		ON CONFLICT (player_id, location_id) DO UPDATE SET
			quiz_attempts        = challenge_attempts.quiz_attempts + 1,
			next_attempt_allowed = excluded.next_attempt_allowed
		WHERE challenge_attempts.next_attempt_allowed IS NULL
		   OR challenge_attempts.next_attempt_allowed <= ?
	`, playerID, locationID, formatTS(until), formatTS(at))
	if err != nil {
		return treasurehunt.Attempt{}, err
	}
	a, err := s.Attempt(ctx, playerID, locationID)
	if err != nil {
		return a, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return a, treasurehunt.ErrCooldownActive
	}
	return a, nil
}

func (s *SQLiteStore) ClearAttempts(ctx context.Context, playerID, locationID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE challenge_attempts SET quiz_attempts = 0, next_attempt_allowed = NULL
		WHERE player_id = ? AND location_id = ?
	`, playerID, locationID)
	return err
}

// CompleteLocation writes the passing row, resets the attempt row and
// refreshes the player's counters in one transaction. The lockout and
// the predecessor's passing row are rechecked inside it, so an answer
// racing a wrong one on another tab cannot slip past the cooldown. The
// UNIQUE (player_id, location_id) constraint turns a duplicate into
// zero returned rows.
func (s *SQLiteStore) CompleteLocation(ctx context.Context, playerID, locationID string, at time.Time) (treasurehunt.Progress, error) {
	p := treasurehunt.Progress{
		PlayerID:    playerID,
		LocationID:  locationID,
		CompletedAt: at.UTC(),
		QuizPassed:  true,
	}

	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var (
			prior int
			next  sql.NullString
		)
		err := tx.QueryRowContext(ctx, `
			SELECT photo_url, quiz_attempts, next_attempt_allowed FROM challenge_attempts
			WHERE player_id = ? AND location_id = ?
		`, playerID, locationID).Scan(&p.PhotoURL, &prior, &next)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("loading attempt: %w", err)
		}
		until, err := parseNullTS(next)
		if err != nil {
			return fmt.Errorf("parsing cooldown: %w", err)
		}
		if until != nil && until.After(at) {
			return treasurehunt.ErrCooldownActive
		}
		p.QuizAttempts = prior + 1

		var pending int
		if err := tx.QueryRowContext(ctx, lockedByPredecessor, locationID, playerID).Scan(&pending); err != nil {
			return fmt.Errorf("checking unlock order: %w", err)
		}
		if pending > 0 {
			return treasurehunt.ErrLocationLocked
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO player_progress (player_id, location_id, completed_at, photo_url, quiz_attempts, quiz_passed)
			VALUES (?, ?, ?, ?, ?, 1)
			ON CONFLICT (player_id, location_id) DO NOTHING
			RETURNING id
		`, playerID, locationID, formatTS(at), p.PhotoURL, p.QuizAttempts).Scan(&p.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return treasurehunt.ErrAlreadyCompleted
		}
		if err != nil {
			return fmt.Errorf("inserting progress: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE challenge_attempts SET quiz_attempts = 0, next_attempt_allowed = NULL
			WHERE player_id = ? AND location_id = ?
		`, playerID, locationID); err != nil {
			return fmt.Errorf("clearing attempt: %w", err)
		}

		if _, err := tx.ExecContext(ctx, refreshPlayerStats+` WHERE id = ?`, playerID); err != nil {
			return fmt.Errorf("updating player stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return treasurehunt.Progress{}, err
	}
	return p, nil
}

// lockedByPredecessor counts the location directly before the target in
// unlock order when the player has no passing row for it.
const lockedByPredecessor = `
	SELECT COUNT(*) FROM locations prev
	WHERE prev.unlock_order = (
		SELECT MAX(l.unlock_order) FROM locations l
		WHERE l.unlock_order < (SELECT unlock_order FROM locations WHERE id = ?)
	)
	AND NOT EXISTS (
		SELECT 1 FROM player_progress pp
		WHERE pp.player_id = ? AND pp.location_id = prev.id AND pp.quiz_passed = 1
	)`

const refreshPlayerStats = `
	UPDATE players SET
		current_progress = (SELECT COUNT(*) FROM player_progress pp WHERE pp.player_id = players.id AND pp.quiz_passed = 1),
		completed_all = (SELECT COUNT(*) FROM player_progress pp WHERE pp.player_id = players.id AND pp.quiz_passed = 1)
			>= (SELECT COUNT(*) FROM locations) AND (SELECT COUNT(*) FROM locations) > 0`
